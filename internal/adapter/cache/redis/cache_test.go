package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCache(t *testing.T, ttl time.Duration) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, ttl), mr
}

func TestCache_PutGet(t *testing.T) {
	t.Parallel()
	c, _ := testCache(t, time.Minute)
	ctx := context.Background()

	_, ok := c.Get(ctx, "fp")
	assert.False(t, ok)

	c.Put(ctx, "fp", "answer")
	v, ok := c.Get(ctx, "fp")
	require.True(t, ok)
	assert.Equal(t, "answer", v)
}

func TestCache_ExpiryIsMiss(t *testing.T) {
	t.Parallel()
	c, mr := testCache(t, 2*time.Minute)
	ctx := context.Background()

	c.Put(ctx, "fp", "answer")
	mr.FastForward(90 * time.Second)
	_, ok := c.Get(ctx, "fp")
	assert.True(t, ok, "fresh within TTL")

	mr.FastForward(60 * time.Second)
	_, ok = c.Get(ctx, "fp")
	assert.False(t, ok, "stale beyond TTL")
}

func TestCache_KeyIsHashedFingerprint(t *testing.T) {
	t.Parallel()
	c, mr := testCache(t, time.Minute)
	c.Put(context.Background(), "คำถาม|20000|32|55", "answer")

	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.NotContains(t, keys[0], "คำถาม", "raw question text never lands in a key")
	assert.Contains(t, keys[0], keyPrefix)
}

func TestCache_BackendFailureDegradesToMiss(t *testing.T) {
	t.Parallel()
	c, mr := testCache(t, time.Minute)
	ctx := context.Background()
	c.Put(ctx, "fp", "answer")

	mr.Close()
	v, ok := c.Get(ctx, "fp")
	assert.False(t, ok)
	assert.Empty(t, v)
	// Put after the outage must not panic either.
	c.Put(ctx, "fp", "answer")
}
