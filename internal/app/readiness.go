package app

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
)

// BuildReadinessChecks returns ping functions for the readiness probe.
// The redis check is nil when no Redis client is configured.
func BuildReadinessChecks(pool *pgxpool.Pool, rdb *goredis.Client) (dbCheck, redisCheck func(ctx context.Context) error) {
	dbCheck = func(ctx context.Context) error {
		return pool.Ping(ctx)
	}
	if rdb != nil {
		redisCheck = func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}
	}
	return dbCheck, redisCheck
}
