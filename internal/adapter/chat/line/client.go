// Package line implements the chat transport against the LINE
// Messaging API (reply by token, push by user id).
package line

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/sensor-relay/internal/config"
	"github.com/fairyhunter13/sensor-relay/internal/domain"
	"github.com/fairyhunter13/sensor-relay/pkg/textx"
)

// truncationMarker is appended when outgoing text exceeds the bound.
const truncationMarker = "…"

// Client posts reply/push messages to the chat platform.
type Client struct {
	baseURL  string
	token    string
	maxChars int
	hc       *http.Client
}

// New constructs a chat client from config. The message length bound is
// 4000 characters by default, within the platform's documented limit.
func New(cfg config.Config) *Client {
	maxChars := cfg.ReplyMaxChars
	if maxChars <= 0 {
		maxChars = 4000
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.LineAPIBaseURL, "/"),
		token:    cfg.LineChannelToken,
		maxChars: maxChars,
		hc: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type textMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Reply delivers text to the chat platform using a one-time delivery token.
func (c *Client) Reply(ctx context.Context, deliveryToken, text string) error {
	payload := map[string]any{
		"replyToken": deliveryToken,
		"messages":   []textMessage{{Type: "text", Text: c.bound(text)}},
	}
	return c.post(ctx, "/v2/bot/message/reply", payload)
}

// Push delivers text to a user directly, outside any reply window.
func (c *Client) Push(ctx context.Context, userID, text string) error {
	payload := map[string]any{
		"to":       userID,
		"messages": []textMessage{{Type: "text", Text: c.bound(text)}},
	}
	return c.post(ctx, "/v2/bot/message/push", payload)
}

func (c *Client) post(ctx context.Context, path string, payload any) error {
	if c.token == "" {
		return fmt.Errorf("%w: LINE_CHANNEL_TOKEN missing", domain.ErrInvalidArgument)
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("op=line.marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("op=line.request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("op=line.post: %w", domain.ErrUpstreamTimeout)
		}
		return fmt.Errorf("op=line.post: %w: %v", domain.ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("op=line.post: %w", &domain.ThrottledError{})
	}
	if resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		slog.Warn("chat platform rejected message",
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
			slog.String("body", strings.TrimSpace(string(snippet))))
		return fmt.Errorf("op=line.post: %w: status %d", domain.ErrUnavailable, resp.StatusCode)
	}
	return nil
}

// bound sanitizes and truncates text to the platform limit.
func (c *Client) bound(text string) string {
	return textx.Truncate(textx.SanitizeText(text), c.maxChars, truncationMarker)
}
