// Package redis provides a Redis-backed answer cache so cached answers
// survive process restarts and are shared across replicas.
package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/sensor-relay/internal/adapter/observability"
)

const keyPrefix = "answer:"

// Cache implements domain.AnswerCache on top of Redis with a TTL per key.
// Redis failures degrade to cache misses; they never fail the caller.
type Cache struct {
	rdb *goredis.Client
	ttl time.Duration
}

// New wraps an existing Redis client. TTL <= 0 falls back to two minutes.
func New(rdb *goredis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Cache{rdb: rdb, ttl: ttl}
}

// Get returns the cached answer for fingerprint, if present and fresh.
func (c *Cache) Get(ctx context.Context, fingerprint string) (string, bool) {
	v, err := c.rdb.Get(ctx, key(fingerprint)).Result()
	if err == goredis.Nil {
		observability.AnswerCacheHits.WithLabelValues("miss").Inc()
		return "", false
	}
	if err != nil {
		slog.Warn("redis answer cache get failed", slog.Any("error", err))
		observability.AnswerCacheHits.WithLabelValues("miss").Inc()
		return "", false
	}
	observability.AnswerCacheHits.WithLabelValues("hit").Inc()
	return v, true
}

// Put stores value under fingerprint with the configured TTL.
func (c *Cache) Put(ctx context.Context, fingerprint, value string) {
	if err := c.rdb.Set(ctx, key(fingerprint), value, c.ttl).Err(); err != nil {
		slog.Warn("redis answer cache put failed", slog.Any("error", err))
	}
}

// key hashes the fingerprint so raw question text never lands in Redis keys.
func key(fingerprint string) string {
	h := sha256.Sum256([]byte(fingerprint))
	return keyPrefix + hex.EncodeToString(h[:])
}
