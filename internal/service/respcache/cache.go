// Package respcache is the short-lived in-memory answer cache keyed by
// a (question, rounded readings) fingerprint.
package respcache

import (
	"context"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fairyhunter13/sensor-relay/internal/adapter/observability"
	"github.com/fairyhunter13/sensor-relay/internal/domain"
)

// DefaultTTL bounds answer staleness when no TTL is configured.
const DefaultTTL = 2 * time.Minute

type entry struct {
	value      string
	insertedAt time.Time
}

// Cache is a TTL map with lazy expiry on read plus a background sweep.
// Safe for concurrent use.
type Cache struct {
	ttl time.Duration

	mu sync.Mutex
	m  map[string]entry

	stop chan struct{}
	once sync.Once

	now func() time.Time
}

// New builds a cache with the given TTL (DefaultTTL when <= 0). A
// janitor goroutine sweeps expired entries every TTL; stop it with Close.
func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		ttl:  ttl,
		m:    make(map[string]entry),
		stop: make(chan struct{}),
		now:  time.Now,
	}
	go c.janitor()
	return c
}

// Get returns the cached value for fingerprint. An entry older than the
// TTL reads as a miss and is purged on that read.
func (c *Cache) Get(_ context.Context, fingerprint string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.m[fingerprint]
	if !ok {
		observability.AnswerCacheHits.WithLabelValues("miss").Inc()
		return "", false
	}
	if c.now().Sub(e.insertedAt) > c.ttl {
		delete(c.m, fingerprint)
		observability.AnswerCacheHits.WithLabelValues("stale").Inc()
		return "", false
	}
	observability.AnswerCacheHits.WithLabelValues("hit").Inc()
	return e.value, true
}

// Put stores value under fingerprint, restarting its TTL window.
func (c *Cache) Put(_ context.Context, fingerprint, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[fingerprint] = entry{value: value, insertedAt: c.now()}
}

// Len reports the number of live entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.m)
}

// Close stops the janitor goroutine.
func (c *Cache) Close() {
	c.once.Do(func() { close(c.stop) })
}

func (c *Cache) janitor() {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stop:
			return
		}
	}
}

func (c *Cache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for k, e := range c.m {
		if now.Sub(e.insertedAt) > c.ttl {
			delete(c.m, k)
		}
	}
}

// Fingerprint collapses near-duplicate questions under near-identical
// conditions into one cache slot: the question is lowercased and
// whitespace-normalized, each sensor field is rounded to the nearest
// integer, and the parts are joined with a stable delimiter.
func Fingerprint(question string, r domain.SensorReading) string {
	q := strings.ToLower(strings.TrimSpace(question))
	q = strings.Join(strings.Fields(q), " ")
	parts := []string{
		q,
		strconv.Itoa(int(math.Round(r.Light))),
		strconv.Itoa(int(math.Round(r.Temperature))),
		strconv.Itoa(int(math.Round(r.Humidity))),
	}
	return strings.Join(parts, "|")
}
