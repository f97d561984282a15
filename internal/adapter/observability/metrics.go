package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// HTTPRequestsTotal counts requests by route/method/status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	// HTTPRequestDuration observes request latency by route/method.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	// CompletionCallsTotal counts completion-API calls by outcome
	// (ok, throttled, error).
	CompletionCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "completion_calls_total",
			Help: "Total number of completion API calls by outcome",
		},
		[]string{"outcome"},
	)
	// CompletionCallDuration observes completion call latency.
	CompletionCallDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "completion_call_duration_seconds",
			Help:    "Completion API call duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)

	// AnswerCacheHits counts cache lookups by result (hit, miss, stale).
	AnswerCacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "answer_cache_lookups_total",
			Help: "Total answer cache lookups by result",
		},
		[]string{"result"},
	)

	// CallQueueDepth tracks calls waiting in the serialized queue.
	CallQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "call_queue_depth",
			Help: "Number of completion calls waiting in the serialized queue",
		},
	)
	// CallQueueWait observes time spent waiting for a rate-limit slot.
	CallQueueWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "call_queue_wait_seconds",
			Help:    "Time a call waits in the queue before starting",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 20, 60},
		},
	)

	// EventsProcessedTotal counts webhook events by terminal outcome
	// (duplicate, no_data, status_reply, ai_reply, ai_failed).
	EventsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_events_processed_total",
			Help: "Total inbound chat events by terminal outcome",
		},
		[]string{"outcome"},
	)
)

// InitMetrics registers all Prometheus collectors once per process.
func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(CompletionCallsTotal)
	prometheus.MustRegister(CompletionCallDuration)
	prometheus.MustRegister(AnswerCacheHits)
	prometheus.MustRegister(CallQueueDepth)
	prometheus.MustRegister(CallQueueWait)
	prometheus.MustRegister(EventsProcessedTotal)
}

// HTTPMetricsMiddleware records request counts and durations per route.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		HTTPRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
