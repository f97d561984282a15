package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fairyhunter13/sensor-relay/internal/domain"
	"github.com/fairyhunter13/sensor-relay/internal/service/callqueue"
	"github.com/fairyhunter13/sensor-relay/internal/service/respcache"
	"github.com/fairyhunter13/sensor-relay/internal/service/retry"
)

// CallScheduler is the serialized, rate-limited call queue.
type CallScheduler interface {
	Schedule(ctx context.Context, fn callqueue.Thunk) (string, error)
}

// Answerer produces an answer for a question under given conditions.
type Answerer interface {
	Answer(ctx context.Context, question string, reading domain.SensorReading) (string, error)
}

// Orchestrator composes cache, rate-limited scheduling, retry, and the
// completion transport into one operation: answer a question given the
// current environmental context.
type Orchestrator struct {
	Cache           domain.AnswerCache
	Queue           CallScheduler
	Client          domain.CompletionClient
	MaxRetries      int
	PromptMaxTokens int
}

// NewOrchestrator constructs an Orchestrator with its dependencies.
func NewOrchestrator(cache domain.AnswerCache, queue CallScheduler, client domain.CompletionClient, maxRetries, promptMaxTokens int) *Orchestrator {
	return &Orchestrator{Cache: cache, Queue: queue, Client: client, MaxRetries: maxRetries, PromptMaxTokens: promptMaxTokens}
}

// Answer returns a cached answer when the fingerprint matches within the
// TTL; otherwise it schedules one rate-limited, retried completion call,
// caches the real model answer, and returns it. Failures propagate:
// fallback copy is the caller's concern, so only genuine model answers
// ever enter the cache.
func (o *Orchestrator) Answer(ctx context.Context, question string, reading domain.SensorReading) (string, error) {
	fingerprint := respcache.Fingerprint(question, reading)
	if v, ok := o.Cache.Get(ctx, fingerprint); ok {
		slog.Debug("answer cache hit", slog.String("fingerprint", fingerprint))
		return v, nil
	}

	prompt := BuildPrompt(question, reading, o.PromptMaxTokens)
	answer, err := o.Queue.Schedule(ctx, func(ctx context.Context) (string, error) {
		return retry.Execute(ctx, func(ctx context.Context) (string, error) {
			return o.Client.ChatCompletion(ctx, prompt)
		}, o.MaxRetries)
	})
	if err != nil {
		return "", fmt.Errorf("op=orchestrator.answer: %w", err)
	}
	if strings.TrimSpace(answer) == "" {
		return "", fmt.Errorf("op=orchestrator.answer: %w: empty answer", domain.ErrUnavailable)
	}
	o.Cache.Put(ctx, fingerprint, answer)
	return answer, nil
}
