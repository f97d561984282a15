// Package domain holds the core entities, ports, and error taxonomy of the relay.
package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrDuplicateDelivery = errors.New("duplicate delivery")
	ErrUpstreamRateLimit = errors.New("upstream rate limit")
	ErrUpstreamTimeout   = errors.New("upstream timeout")
	ErrUnavailable       = errors.New("upstream unavailable")
	ErrInternal          = errors.New("internal error")
)

// ThrottledError wraps ErrUpstreamRateLimit and carries an optional
// server-supplied retry hint, already normalized to a duration.
type ThrottledError struct {
	RetryAfter time.Duration
}

func (e *ThrottledError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("upstream rate limit (retry after %s)", e.RetryAfter)
	}
	return "upstream rate limit"
}

// Unwrap makes errors.Is(err, ErrUpstreamRateLimit) hold for throttled errors.
func (e *ThrottledError) Unwrap() error { return ErrUpstreamRateLimit }

// SensorReading is the latest environmental snapshot. It is replaced
// wholesale on every ingest; no history is kept.
type SensorReading struct {
	Light       float64 // lux, >= 0
	Temperature float64 // degrees Celsius
	Humidity    float64 // percent, 0..100
	IngestedAt  time.Time
}

// Validate checks the physical bounds of a reading.
func (r SensorReading) Validate() error {
	if r.Light < 0 {
		return fmt.Errorf("%w: light must be >= 0", ErrInvalidArgument)
	}
	if r.Humidity < 0 || r.Humidity > 100 {
		return fmt.Errorf("%w: humidity must be within 0..100", ErrInvalidArgument)
	}
	return nil
}

// PendingReply is proof that an inbound chat event was admitted for
// processing but has not been answered yet. At most one live record per
// delivery token; deleting the record is the commit point for the token.
type PendingReply struct {
	ID            string
	DeliveryToken string
	UserID        string
	MessageKind   string
	Text          string
	CreatedAt     time.Time
}

// UserRecord identifies a chat user known to the relay. Users are the
// recipient list for broadcast status reports.
type UserRecord struct {
	UserID    string
	CreatedAt time.Time
}

// Repositories (ports)

// PendingReplyRepository persists the at-most-once delivery guard records.
// CreateIfAbsent must be atomic with respect to the delivery-token
// uniqueness: a second create for the same token returns
// ErrDuplicateDelivery instead of a second record.
type PendingReplyRepository interface {
	CreateIfAbsent(ctx context.Context, p PendingReply) (string, error)
	FindByToken(ctx context.Context, token string) (PendingReply, error)
	Delete(ctx context.Context, id string) error
}

// UserRepository stores known chat users, keyed by user id.
type UserRepository interface {
	CreateIfAbsent(ctx context.Context, u UserRecord) error
	ListAll(ctx context.Context) ([]UserRecord, error)
}

// ChatTransport delivers text back to the chat platform, either as a
// reply routed by the one-time delivery token or as a push to a user id.
// Implementations truncate text beyond the platform bound.
type ChatTransport interface {
	Reply(ctx context.Context, deliveryToken, text string) error
	Push(ctx context.Context, userID, text string) error
}

// CompletionClient is the remote natural-language model. A throttling
// signal is returned as *ThrottledError so callers can distinguish it
// from other failures.
type CompletionClient interface {
	ChatCompletion(ctx context.Context, prompt string) (string, error)
}

// AnswerCache is the short-lived response cache keyed by fingerprint.
// A stale or missing entry reads as ok=false.
type AnswerCache interface {
	Get(ctx context.Context, fingerprint string) (value string, ok bool)
	Put(ctx context.Context, fingerprint, value string)
}

// Context aliases context.Context; adapters use it so repository
// signatures read in domain terms.
type Context = context.Context
