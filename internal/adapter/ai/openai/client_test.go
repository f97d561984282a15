package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/sensor-relay/internal/config"
	"github.com/fairyhunter13/sensor-relay/internal/domain"
)

func testClient(baseURL string) *Client {
	return New(config.Config{
		OpenAIAPIKey:    "test-key",
		OpenAIBaseURL:   baseURL,
		CompletionModel: "gpt-4o-mini",
		MaxAnswerTokens: 256,
	})
}

func completionJSON(text string) string {
	return `{"choices":[{"message":{"content":"` + text + `"}}]}`
}

func TestChatCompletion_Success(t *testing.T) {
	t.Parallel()
	var gotAuth string
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		assert.Equal(t, "/chat/completions", r.URL.Path)
		_, _ = w.Write([]byte(completionJSON("  แดดดี ตากได้เลย  ")))
	}))
	defer srv.Close()

	v, err := testClient(srv.URL).ChatCompletion(context.Background(), "prompt text")
	require.NoError(t, err)
	assert.Equal(t, "แดดดี ตากได้เลย", v, "answers are whitespace-trimmed")
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "gpt-4o-mini", gotReq.Model)
	assert.Equal(t, 256, gotReq.MaxTokens)
	require.Len(t, gotReq.Messages, 1)
	assert.Equal(t, "prompt text", gotReq.Messages[0].Content)
}

func TestChatCompletion_ThrottledCarriesRetryAfter(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		header string
		want   time.Duration
	}{
		{name: "seconds", header: "5", want: 5 * time.Second},
		{name: "milliseconds", header: "2000", want: 2 * time.Second},
		{name: "absent", header: "", want: 0},
		{name: "garbage", header: "later", want: 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				if tc.header != "" {
					w.Header().Set("Retry-After", tc.header)
				}
				w.WriteHeader(http.StatusTooManyRequests)
			}))
			defer srv.Close()

			_, err := testClient(srv.URL).ChatCompletion(context.Background(), "p")
			require.ErrorIs(t, err, domain.ErrUpstreamRateLimit)
			var te *domain.ThrottledError
			require.True(t, errors.As(err, &te))
			assert.Equal(t, tc.want, te.RetryAfter)
		})
	}
}

func TestChatCompletion_ServerErrorIsUnavailable(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).ChatCompletion(context.Background(), "p")
	require.ErrorIs(t, err, domain.ErrUnavailable)
	assert.NotErrorIs(t, err, domain.ErrUpstreamRateLimit)
}

func TestChatCompletion_ClientErrorIsInvalidArgument(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad model", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).ChatCompletion(context.Background(), "p")
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestChatCompletion_EmptyChoicesIsUnavailable(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).ChatCompletion(context.Background(), "p")
	require.ErrorIs(t, err, domain.ErrUnavailable)
}

func TestChatCompletion_MissingAPIKey(t *testing.T) {
	t.Parallel()
	c := New(config.Config{OpenAIBaseURL: "http://unused"})
	_, err := c.ChatCompletion(context.Background(), "p")
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestChatCompletion_CanceledContextIsTimeout(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server starts its background read and
		// cancels the request context when the client disconnects;
		// otherwise this handler blocks forever and srv.Close deadlocks.
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := testClient(srv.URL).ChatCompletion(ctx, "p")
	require.ErrorIs(t, err, domain.ErrUpstreamTimeout)
}
