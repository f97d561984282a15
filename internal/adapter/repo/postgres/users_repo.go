package postgres

import (
	"fmt"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/sensor-relay/internal/domain"
)

// UserRepo persists known chat users in PostgreSQL.
type UserRepo struct{ Pool PgxPool }

// NewUserRepo constructs a UserRepo with the given pool.
func NewUserRepo(p PgxPool) *UserRepo { return &UserRepo{Pool: p} }

// CreateIfAbsent records a user the first time their id is seen.
func (r *UserRepo) CreateIfAbsent(ctx domain.Context, u domain.UserRecord) error {
	tracer := otel.Tracer("repo.users")
	ctx, span := tracer.Start(ctx, "users.CreateIfAbsent")
	defer span.End()
	createdAt := u.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	q := `INSERT INTO users (user_id, created_at) VALUES ($1,$2) ON CONFLICT (user_id) DO NOTHING`
	if _, err := r.Pool.Exec(ctx, q, u.UserID, createdAt); err != nil {
		return fmt.Errorf("op=users.create: %w", err)
	}
	return nil
}

// ListAll returns every known user; this is the broadcast recipient list.
func (r *UserRepo) ListAll(ctx domain.Context) ([]domain.UserRecord, error) {
	tracer := otel.Tracer("repo.users")
	ctx, span := tracer.Start(ctx, "users.ListAll")
	defer span.End()
	rows, err := r.Pool.Query(ctx, `SELECT user_id, created_at FROM users ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("op=users.list: %w", err)
	}
	defer rows.Close()
	var out []domain.UserRecord
	for rows.Next() {
		var u domain.UserRecord
		if err := rows.Scan(&u.UserID, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("op=users.list: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=users.list: %w", err)
	}
	return out, nil
}
