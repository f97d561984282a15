package postgres

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/sensor-relay/internal/domain"
)

// PendingReplyRepo persists the dedup guard records in PostgreSQL.
type PendingReplyRepo struct{ Pool PgxPool }

// NewPendingReplyRepo constructs a PendingReplyRepo with the given pool.
func NewPendingReplyRepo(p PgxPool) *PendingReplyRepo { return &PendingReplyRepo{Pool: p} }

// CreateIfAbsent inserts a pending reply keyed by its delivery token.
// The insert is atomic: a token already present yields
// domain.ErrDuplicateDelivery and no second record.
func (r *PendingReplyRepo) CreateIfAbsent(ctx domain.Context, p domain.PendingReply) (string, error) {
	tracer := otel.Tracer("repo.pending")
	ctx, span := tracer.Start(ctx, "pending.CreateIfAbsent")
	defer span.End()
	id := p.ID
	if id == "" {
		id = uuid.New().String()
	}
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	q := `INSERT INTO pending_replies (id, delivery_token, user_id, message_kind, text, created_at)
	      VALUES ($1,$2,$3,$4,$5,$6)
	      ON CONFLICT (delivery_token) DO NOTHING`
	tag, err := r.Pool.Exec(ctx, q, id, p.DeliveryToken, p.UserID, p.MessageKind, p.Text, createdAt)
	if err != nil {
		if isUniqueViolation(err) {
			return "", fmt.Errorf("op=pending.create: %w", domain.ErrDuplicateDelivery)
		}
		return "", fmt.Errorf("op=pending.create: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return "", fmt.Errorf("op=pending.create: %w", domain.ErrDuplicateDelivery)
	}
	return id, nil
}

// FindByToken loads a pending reply by delivery token.
func (r *PendingReplyRepo) FindByToken(ctx domain.Context, token string) (domain.PendingReply, error) {
	tracer := otel.Tracer("repo.pending")
	ctx, span := tracer.Start(ctx, "pending.FindByToken")
	defer span.End()
	q := `SELECT id, delivery_token, user_id, message_kind, text, created_at FROM pending_replies WHERE delivery_token=$1`
	row := r.Pool.QueryRow(ctx, q, token)
	var p domain.PendingReply
	if err := row.Scan(&p.ID, &p.DeliveryToken, &p.UserID, &p.MessageKind, &p.Text, &p.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return domain.PendingReply{}, fmt.Errorf("op=pending.find: %w", domain.ErrNotFound)
		}
		return domain.PendingReply{}, fmt.Errorf("op=pending.find: %w", err)
	}
	return p, nil
}

// Delete removes a pending reply by id. Deleting a missing record is not
// an error; the commit point is idempotent.
func (r *PendingReplyRepo) Delete(ctx domain.Context, id string) error {
	tracer := otel.Tracer("repo.pending")
	ctx, span := tracer.Start(ctx, "pending.Delete")
	defer span.End()
	if _, err := r.Pool.Exec(ctx, `DELETE FROM pending_replies WHERE id=$1`, id); err != nil {
		return fmt.Errorf("op=pending.delete: %w", err)
	}
	return nil
}
