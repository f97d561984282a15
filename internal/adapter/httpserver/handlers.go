package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/sensor-relay/internal/config"
	"github.com/fairyhunter13/sensor-relay/internal/domain"
	"github.com/fairyhunter13/sensor-relay/internal/usecase"
)

// EventProcessor consumes one parsed inbound chat event.
type EventProcessor interface {
	Process(ctx context.Context, ev domain.InboundEvent) error
}

// Server aggregates handler dependencies.
type Server struct {
	Cfg        config.Config
	Readings   *usecase.ReadingStore
	Processor  EventProcessor
	DBCheck    func(ctx context.Context) error
	RedisCheck func(ctx context.Context) error
}

// NewServer constructs an HTTP server with all handlers wired.
func NewServer(cfg config.Config, readings *usecase.ReadingStore, processor EventProcessor, dbCheck, redisCheck func(context.Context) error) *Server {
	return &Server{Cfg: cfg, Readings: readings, Processor: processor, DBCheck: dbCheck, RedisCheck: redisCheck}
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

// ingestPayload uses pointer fields so missing values are rejected
// rather than read as zero.
type ingestPayload struct {
	Light       *float64 `json:"light" validate:"required,gte=0"`
	Temperature *float64 `json:"temperature" validate:"required"`
	Humidity    *float64 `json:"humidity" validate:"required,gte=0,lte=100"`
}

// IngestHandler accepts a sensor reading and replaces the singleton.
func (s *Server) IngestHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload ingestPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err), nil)
			return
		}
		if err := getValidator().Struct(payload); err != nil {
			writeError(w, r, fmt.Errorf("%w: light, temperature and humidity are required", domain.ErrInvalidArgument), map[string]string{"validation": err.Error()})
			return
		}
		reading := domain.SensorReading{
			Light:       *payload.Light,
			Temperature: *payload.Temperature,
			Humidity:    *payload.Humidity,
		}
		if err := s.Readings.Ingest(reading); err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ReadingHandler returns the current reading, or 404 before first ingest.
func (s *Server) ReadingHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reading, ok := s.Readings.Current()
		if !ok {
			writeError(w, r, fmt.Errorf("%w: no reading ingested yet", domain.ErrNotFound), nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"light":       reading.Light,
			"temperature": reading.Temperature,
			"humidity":    reading.Humidity,
			"ingested_at": reading.IngestedAt,
		})
	}
}

type webhookPayload struct {
	Events []domain.RawEvent `json:"events"`
}

// WebhookHandler acknowledges the chat platform immediately and
// processes each event fire-and-forget. Every spawned goroutine has a
// terminal handler; no event processing outcome delays the ack.
func (s *Server) WebhookHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload webhookPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err), nil)
			return
		}
		lg := LoggerFrom(r)
		for _, raw := range payload.Events {
			ev, err := domain.ParseEvent(raw)
			if err != nil {
				lg.Warn("webhook event rejected", slog.Any("error", err))
				continue
			}
			// Detach from the request lifetime: the ack below must not
			// cancel in-flight processing.
			ctx := context.WithoutCancel(r.Context())
			go func(ev domain.InboundEvent) {
				defer func() {
					if rec := recover(); rec != nil {
						lg.Error("event processing panic", slog.Any("recover", rec))
					}
				}()
				if err := s.Processor.Process(ctx, ev); err != nil {
					lg.Error("event processing failed",
						slog.String("token", ev.Token()),
						slog.Any("error", err))
				}
			}(ev)
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ReadyzHandler reports dependency readiness.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		type check struct {
			Name string `json:"name"`
			OK   bool   `json:"ok"`
		}
		checks := []check{}
		allOK := true
		if s.DBCheck != nil {
			ok := s.DBCheck(r.Context()) == nil
			checks = append(checks, check{Name: "db", OK: ok})
			allOK = allOK && ok
		}
		if s.RedisCheck != nil {
			ok := s.RedisCheck(r.Context()) == nil
			checks = append(checks, check{Name: "redis", OK: ok})
			allOK = allOK && ok
		}
		status := http.StatusOK
		if !allOK {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, map[string]any{"ok": allOK, "checks": checks})
	}
}
