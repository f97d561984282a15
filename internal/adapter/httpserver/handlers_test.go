package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/sensor-relay/internal/config"
	"github.com/fairyhunter13/sensor-relay/internal/domain"
	"github.com/fairyhunter13/sensor-relay/internal/usecase"
)

type recordingProcessor struct {
	mu     sync.Mutex
	events []domain.InboundEvent
	wg     sync.WaitGroup
}

func (p *recordingProcessor) Process(_ context.Context, ev domain.InboundEvent) error {
	defer p.wg.Done()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingProcessor) processed() []domain.InboundEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.InboundEvent(nil), p.events...)
}

func newTestServer(processor EventProcessor) *Server {
	return NewServer(config.Config{}, usecase.NewReadingStore(), processor, nil, nil)
}

func TestIngestHandler_AcceptsValidReading(t *testing.T) {
	t.Parallel()
	s := newTestServer(nil)
	body := `{"light": 20000, "temperature": 32, "humidity": 55}`
	req := httptest.NewRequest(http.MethodPost, "/v1/sensor", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.IngestHandler()(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	reading, ok := s.Readings.Current()
	require.True(t, ok)
	assert.Equal(t, float64(20000), reading.Light)
}

func TestIngestHandler_RejectsMissingFields(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		body string
	}{
		{name: "missing humidity", body: `{"light": 1, "temperature": 30}`},
		{name: "negative light", body: `{"light": -1, "temperature": 30, "humidity": 50}`},
		{name: "humidity over 100", body: `{"light": 1, "temperature": 30, "humidity": 101}`},
		{name: "not json", body: `nope`},
		{name: "empty object", body: `{}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := newTestServer(nil)
			req := httptest.NewRequest(http.MethodPost, "/v1/sensor", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			s.IngestHandler()(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			_, ok := s.Readings.Current()
			assert.False(t, ok)
		})
	}
}

func TestIngestHandler_ZeroValuesAreValid(t *testing.T) {
	t.Parallel()
	s := newTestServer(nil)
	// Explicit zeros differ from missing fields; pointer fields keep them apart.
	body := `{"light": 0, "temperature": 0, "humidity": 0}`
	req := httptest.NewRequest(http.MethodPost, "/v1/sensor", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.IngestHandler()(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadingHandler_NotFoundBeforeIngest(t *testing.T) {
	t.Parallel()
	s := newTestServer(nil)
	rec := httptest.NewRecorder()
	s.ReadingHandler()(rec, httptest.NewRequest(http.MethodGet, "/v1/sensor", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReadingHandler_ReturnsCurrent(t *testing.T) {
	t.Parallel()
	s := newTestServer(nil)
	require.NoError(t, s.Readings.Ingest(domain.SensorReading{Light: 100, Temperature: 25, Humidity: 40}))

	rec := httptest.NewRecorder()
	s.ReadingHandler()(rec, httptest.NewRequest(http.MethodGet, "/v1/sensor", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, float64(100), got["light"])
	assert.NotEmpty(t, got["ingested_at"])
}

func TestWebhookHandler_AcksAndProcessesAsync(t *testing.T) {
	t.Parallel()
	processor := &recordingProcessor{}
	processor.wg.Add(2)
	s := newTestServer(processor)

	body := `{"events":[
		{"type":"message","replyToken":"tok-1","source":{"userId":"u1"},"message":{"type":"text","text":"ตอนนี้ควรตากผ้าไหม"}},
		{"type":"message","replyToken":"tok-2","source":{"userId":"u2"},"message":{"type":"sticker"}}
	]}`
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.WebhookHandler()(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code, "ack never waits for processing")

	processor.wg.Wait()
	events := processor.processed()
	require.Len(t, events, 2)
	tokens := []string{events[0].Token(), events[1].Token()}
	assert.ElementsMatch(t, []string{"tok-1", "tok-2"}, tokens)
}

func TestWebhookHandler_SkipsMalformedEvents(t *testing.T) {
	t.Parallel()
	processor := &recordingProcessor{}
	processor.wg.Add(1)
	s := newTestServer(processor)

	// The first event has no reply token and is dropped; the second is fine.
	body := `{"events":[
		{"type":"message","source":{"userId":"u1"},"message":{"type":"text","text":"hi"}},
		{"type":"message","replyToken":"tok-2","source":{"userId":"u2"},"message":{"type":"text","text":"hi"}}
	]}`
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.WebhookHandler()(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	processor.wg.Wait()
	assert.Len(t, processor.processed(), 1)
}

func TestWebhookHandler_RejectsBadJSON(t *testing.T) {
	t.Parallel()
	s := newTestServer(&recordingProcessor{})
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	s.WebhookHandler()(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReadyzHandler(t *testing.T) {
	t.Parallel()
	healthy := func(context.Context) error { return nil }
	sick := func(context.Context) error { return context.DeadlineExceeded }

	s := NewServer(config.Config{}, usecase.NewReadingStore(), nil, healthy, healthy)
	rec := httptest.NewRecorder()
	s.ReadyzHandler()(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	s = NewServer(config.Config{}, usecase.NewReadingStore(), nil, healthy, sick)
	rec = httptest.NewRecorder()
	s.ReadyzHandler()(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var got struct {
		OK     bool `json:"ok"`
		Checks []struct {
			Name string `json:"name"`
			OK   bool   `json:"ok"`
		} `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.False(t, got.OK)
	require.Len(t, got.Checks, 2)
}

// Timeout sanity: the detached context must outlive the request.
func TestWebhookHandler_ProcessingOutlivesRequestContext(t *testing.T) {
	t.Parallel()
	done := make(chan error, 1)
	processor := processorFunc(func(ctx context.Context, _ domain.InboundEvent) error {
		select {
		case <-ctx.Done():
			done <- ctx.Err()
		case <-time.After(50 * time.Millisecond):
			done <- nil
		}
		return nil
	})
	s := newTestServer(processor)

	ctx, cancel := context.WithCancel(context.Background())
	body := `{"events":[{"type":"message","replyToken":"tok","source":{"userId":"u"},"message":{"type":"text","text":"hi"}}]}`
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body)).WithContext(ctx)
	rec := httptest.NewRecorder()
	s.WebhookHandler()(rec, req)
	cancel() // Request finished; processing keeps its own lifetime.

	require.NoError(t, <-done, "processing context must not be canceled by the request ending")
}

type processorFunc func(ctx context.Context, ev domain.InboundEvent) error

func (f processorFunc) Process(ctx context.Context, ev domain.InboundEvent) error {
	return f(ctx, ev)
}
