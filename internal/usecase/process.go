package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fairyhunter13/sensor-relay/internal/adapter/observability"
	"github.com/fairyhunter13/sensor-relay/internal/domain"
	"github.com/fairyhunter13/sensor-relay/internal/report"
)

// ReadingSource exposes the current sensor conditions.
type ReadingSource interface {
	Current() (domain.SensorReading, bool)
}

// Processor drives one inbound chat event from admission to reply.
type Processor struct {
	Pending  domain.PendingReplyRepository
	Users    domain.UserRepository
	Chat     domain.ChatTransport
	Answerer Answerer
	Readings ReadingSource
	Questions report.QuestionSet
	// PersistTimeout bounds each persistence call.
	PersistTimeout time.Duration
}

// NewProcessor constructs a Processor with its dependencies.
func NewProcessor(pending domain.PendingReplyRepository, users domain.UserRepository, chat domain.ChatTransport, answerer Answerer, readings ReadingSource, questions report.QuestionSet, persistTimeout time.Duration) *Processor {
	if persistTimeout <= 0 {
		persistTimeout = 5 * time.Second
	}
	return &Processor{
		Pending:        pending,
		Users:          users,
		Chat:           chat,
		Answerer:       answerer,
		Readings:       readings,
		Questions:      questions,
		PersistTimeout: persistTimeout,
	}
}

// Process handles one event: dedup admission, classification, reply
// delivery, and clearing the pending record exactly once. Duplicate
// deliveries are skipped silently. The pending record is cleared in
// every branch; a clearing failure is logged, not retried, and may cause
// one redundant reprocessing of the same token later.
func (p *Processor) Process(ctx context.Context, ev domain.InboundEvent) error {
	pendingID, err := p.admit(ctx, ev)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateDelivery) {
			observability.EventsProcessedTotal.WithLabelValues("duplicate").Inc()
			slog.Debug("duplicate delivery skipped", slog.String("token", ev.Token()))
			return nil
		}
		observability.EventsProcessedTotal.WithLabelValues("admit_failed").Inc()
		return fmt.Errorf("op=processor.admit: %w", err)
	}

	p.rememberUser(ctx, ev.User())

	outcome := p.respond(ctx, ev)
	observability.EventsProcessedTotal.WithLabelValues(outcome).Inc()

	p.clear(ctx, pendingID, ev.Token())
	return nil
}

// admit is the dedup guard: an atomic insert-if-absent on the delivery
// token. Admission and record creation are one operation, so concurrent
// deliveries of the same token admit exactly one.
func (p *Processor) admit(ctx context.Context, ev domain.InboundEvent) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, p.PersistTimeout)
	defer cancel()
	pending := domain.PendingReply{
		DeliveryToken: ev.Token(),
		UserID:        ev.User(),
		MessageKind:   ev.Kind(),
		CreatedAt:     time.Now().UTC(),
	}
	if m, ok := ev.(domain.TextMessage); ok {
		pending.Text = m.Text
	}
	return p.Pending.CreateIfAbsent(cctx, pending)
}

// respond classifies the event and delivers a reply. It returns the
// terminal outcome label and never leaves the user without a message.
func (p *Processor) respond(ctx context.Context, ev domain.InboundEvent) string {
	reading, ok := p.Readings.Current()
	if !ok {
		// Never call the orchestrator without a reading.
		p.reply(ctx, ev.Token(), report.NoDataMessage)
		return "no_data"
	}

	msg, isText := ev.(domain.TextMessage)
	if !isText || !p.Questions.Recognized(msg.Text) {
		p.reply(ctx, ev.Token(), report.Status(reading))
		return "status_reply"
	}

	// Recognized question: ack immediately, then answer through the
	// orchestrator. The reply token is consumed by the ack, so the
	// final answer is pushed to the user id.
	p.reply(ctx, ev.Token(), report.PleaseWaitMessage)

	answer, err := p.Answerer.Answer(ctx, msg.Text, reading)
	if err != nil {
		slog.Warn("model answer failed; sending failure notice",
			slog.String("user_id", ev.User()),
			slog.Any("error", err))
		p.push(ctx, ev.User(), report.FailureNotice)
		return "ai_failed"
	}
	p.push(ctx, ev.User(), report.Answer(msg.Text, answer))
	return "ai_reply"
}

func (p *Processor) rememberUser(ctx context.Context, userID string) {
	cctx, cancel := context.WithTimeout(ctx, p.PersistTimeout)
	defer cancel()
	if err := p.Users.CreateIfAbsent(cctx, domain.UserRecord{UserID: userID}); err != nil {
		slog.Warn("user record upsert failed", slog.String("user_id", userID), slog.Any("error", err))
	}
}

// clear deletes the pending record: the commit point for the token.
func (p *Processor) clear(ctx context.Context, pendingID, token string) {
	cctx, cancel := context.WithTimeout(ctx, p.PersistTimeout)
	defer cancel()
	if err := p.Pending.Delete(cctx, pendingID); err != nil {
		// Accepted at-least-once risk: the same token may be
		// reprocessed on redelivery, governed by the dedup guard.
		slog.Error("pending record delete failed",
			slog.String("pending_id", pendingID),
			slog.String("token", token),
			slog.Any("error", err))
	}
}

func (p *Processor) reply(ctx context.Context, token, text string) {
	if err := p.Chat.Reply(ctx, token, text); err != nil {
		slog.Warn("chat reply failed", slog.String("token", token), slog.Any("error", err))
	}
}

func (p *Processor) push(ctx context.Context, userID, text string) {
	if err := p.Chat.Push(ctx, userID, text); err != nil {
		slog.Warn("chat push failed", slog.String("user_id", userID), slog.Any("error", err))
	}
}
