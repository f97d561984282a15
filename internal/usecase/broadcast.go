package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fairyhunter13/sensor-relay/internal/domain"
	"github.com/fairyhunter13/sensor-relay/internal/report"
)

// broadcastQuestion is the fixed prompt used for the periodic report.
// It flows through the same rate-limited call path as user questions.
const broadcastQuestion = "ช่วยสรุปสภาพแวดล้อมตอนนี้สั้นๆ พร้อมคำแนะนำ"

// Broadcaster periodically pushes a status report to all known users.
type Broadcaster struct {
	Users    domain.UserRepository
	Chat     domain.ChatTransport
	Readings ReadingSource
	Answerer Answerer
	Interval time.Duration
}

// NewBroadcaster constructs a Broadcaster with its dependencies.
func NewBroadcaster(users domain.UserRepository, chat domain.ChatTransport, readings ReadingSource, answerer Answerer, interval time.Duration) *Broadcaster {
	return &Broadcaster{Users: users, Chat: chat, Readings: readings, Answerer: answerer, Interval: interval}
}

// Run ticks until ctx is done. A zero interval disables broadcasting.
func (b *Broadcaster) Run(ctx context.Context) {
	if b.Interval <= 0 {
		slog.Info("broadcasting disabled")
		return
	}
	ticker := time.NewTicker(b.Interval)
	defer ticker.Stop()
	slog.Info("broadcaster started", slog.Duration("interval", b.Interval))
	for {
		select {
		case <-ticker.C:
			if err := b.RunOnce(ctx); err != nil {
				slog.Warn("broadcast round failed", slog.Any("error", err))
			}
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce composes and pushes one status report. The model-composed
// summary degrades to the pure templated status when the rate-limited
// call path fails; a broadcast never fabricates a model answer.
func (b *Broadcaster) RunOnce(ctx context.Context) error {
	reading, ok := b.Readings.Current()
	if !ok {
		slog.Debug("broadcast skipped; no reading yet")
		return nil
	}

	lead := ""
	if b.Answerer != nil {
		v, err := b.Answerer.Answer(ctx, broadcastQuestion, reading)
		if err != nil {
			slog.Warn("broadcast summary failed; falling back to templated status", slog.Any("error", err))
		} else {
			lead = v
		}
	}
	text := report.Broadcast(reading, lead)

	users, err := b.Users.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("op=broadcast.users: %w", err)
	}
	for _, u := range users {
		if err := b.Chat.Push(ctx, u.UserID, text); err != nil {
			slog.Warn("broadcast push failed", slog.String("user_id", u.UserID), slog.Any("error", err))
		}
	}
	slog.Info("broadcast delivered", slog.Int("recipients", len(users)))
	return nil
}
