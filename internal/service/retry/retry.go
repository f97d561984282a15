// Package retry wraps a single completion-API attempt with bounded
// retries on throttling signals, honoring server retry hints.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"github.com/fairyhunter13/sensor-relay/internal/domain"
)

const (
	baseDelay = time.Second
	maxDelay  = 30 * time.Second
	maxJitter = 800 * time.Millisecond
)

// throttleBackOff implements backoff.BackOff with the relay's policy:
// prefer the server-supplied retry hint, otherwise capped exponential
// backoff with jitter. The attempt counter advances only when a backoff
// is actually taken, i.e. only on throttling retries.
type throttleBackOff struct {
	attempt int
	hint    time.Duration
	rand    *rand.Rand
}

func (b *throttleBackOff) NextBackOff() time.Duration {
	defer func() { b.attempt++; b.hint = 0 }()
	if b.hint > 0 {
		return b.hint
	}
	if b.attempt >= 5 {
		// 2^5 s already exceeds the cap.
		return maxDelay
	}
	d := (1 << b.attempt) * baseDelay
	d += time.Duration(b.rand.Int63n(int64(maxJitter)))
	if d > maxDelay {
		d = maxDelay
	}
	return d
}

func (b *throttleBackOff) Reset() {
	b.attempt = 0
	b.hint = 0
}

// Execute runs fn, retrying up to maxRetries times on throttling errors
// (errors unwrapping to domain.ErrUpstreamRateLimit). Any other error
// propagates immediately. Exhausting retries returns the last error.
func Execute(ctx context.Context, fn func(context.Context) (string, error), maxRetries int) (string, error) {
	if maxRetries < 0 {
		maxRetries = 0
	}
	b := &throttleBackOff{rand: rand.New(rand.NewSource(time.Now().UnixNano()))} //nolint:gosec // Jitter does not need crypto randomness.

	var value string
	op := func() error {
		v, err := fn(ctx)
		if err == nil {
			value = v
			return nil
		}
		var throttled *domain.ThrottledError
		if errors.As(err, &throttled) {
			b.hint = throttled.RetryAfter
			return err
		}
		if errors.Is(err, domain.ErrUpstreamRateLimit) {
			return err
		}
		return backoff.Permanent(err)
	}

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxRetries)), ctx))
	if err != nil {
		return "", err
	}
	return value, nil
}

// ParseRetryAfter normalizes a numeric retry-after value to a duration.
// Values below 1000 are read as seconds, larger ones as milliseconds,
// matching the two units remote services have been observed to send.
func ParseRetryAfter(v float64) time.Duration {
	if v <= 0 {
		return 0
	}
	if v < 1000 {
		return time.Duration(v * float64(time.Second))
	}
	return time.Duration(v * float64(time.Millisecond))
}
