// Package openai implements the completion transport against an
// OpenAI-compatible chat completions API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/sensor-relay/internal/adapter/observability"
	"github.com/fairyhunter13/sensor-relay/internal/config"
	"github.com/fairyhunter13/sensor-relay/internal/domain"
	"github.com/fairyhunter13/sensor-relay/internal/service/retry"
)

// Client calls the chat completions endpoint. Throttling responses are
// classified as *domain.ThrottledError with any Retry-After hint parsed.
type Client struct {
	cfg config.Config
	hc  *http.Client
}

// New constructs a client with the configured call timeout and a traced
// transport.
func New(cfg config.Config) *Client {
	timeout := cfg.CompletionTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		cfg: cfg,
		hc: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Messages    []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// ChatCompletion sends prompt and returns the generated text.
func (c *Client) ChatCompletion(ctx context.Context, prompt string) (string, error) {
	if c.cfg.OpenAIAPIKey == "" {
		return "", fmt.Errorf("%w: OPENAI_API_KEY missing", domain.ErrInvalidArgument)
	}

	body := chatRequest{
		Model:       c.cfg.CompletionModel,
		Temperature: 0.2,
		MaxTokens:   c.cfg.MaxAnswerTokens,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
	}
	buf, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("op=openai.marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.OpenAIBaseURL+"/chat/completions", bytes.NewReader(buf))
	if err != nil {
		return "", fmt.Errorf("op=openai.request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.OpenAIAPIKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.hc.Do(req)
	observability.CompletionCallDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		observability.CompletionCallsTotal.WithLabelValues("error").Inc()
		if ctx.Err() != nil {
			return "", fmt.Errorf("op=openai.chat: %w", domain.ErrUpstreamTimeout)
		}
		return "", fmt.Errorf("op=openai.chat: %w: %v", domain.ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		observability.CompletionCallsTotal.WithLabelValues("throttled").Inc()
		hint := retryAfterHint(resp)
		slog.Warn("completion API throttled",
			slog.Duration("retry_after", hint),
			slog.Int("status", resp.StatusCode))
		return "", fmt.Errorf("op=openai.chat: %w", &domain.ThrottledError{RetryAfter: hint})
	case resp.StatusCode >= 500:
		observability.CompletionCallsTotal.WithLabelValues("error").Inc()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("op=openai.chat: %w: status %d: %s", domain.ErrUnavailable, resp.StatusCode, strings.TrimSpace(string(snippet)))
	case resp.StatusCode >= 400:
		observability.CompletionCallsTotal.WithLabelValues("error").Inc()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("op=openai.chat: %w: status %d: %s", domain.ErrInvalidArgument, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		observability.CompletionCallsTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("op=openai.decode: %w", err)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		observability.CompletionCallsTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("op=openai.chat: %w: empty completion", domain.ErrUnavailable)
	}
	observability.CompletionCallsTotal.WithLabelValues("ok").Inc()
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

// retryAfterHint reads the Retry-After header, accepting either a
// millisecond or second unit and normalizing to a duration.
func retryAfterHint(resp *http.Response) time.Duration {
	raw := resp.Header.Get("Retry-After")
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0
	}
	return retry.ParseRetryAfter(v)
}
