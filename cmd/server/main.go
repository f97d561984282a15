// Command server starts the sensor relay: HTTP API, chat webhook, and
// the periodic broadcast scheduler in one process.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/sensor-relay/internal/adapter/ai/openai"
	rediscache "github.com/fairyhunter13/sensor-relay/internal/adapter/cache/redis"
	"github.com/fairyhunter13/sensor-relay/internal/adapter/chat/line"
	httpserver "github.com/fairyhunter13/sensor-relay/internal/adapter/httpserver"
	"github.com/fairyhunter13/sensor-relay/internal/adapter/observability"
	"github.com/fairyhunter13/sensor-relay/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/sensor-relay/internal/app"
	"github.com/fairyhunter13/sensor-relay/internal/config"
	"github.com/fairyhunter13/sensor-relay/internal/domain"
	"github.com/fairyhunter13/sensor-relay/internal/report"
	"github.com/fairyhunter13/sensor-relay/internal/service/callqueue"
	"github.com/fairyhunter13/sensor-relay/internal/service/respcache"
	"github.com/fairyhunter13/sensor-relay/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	// Infra: DB pool
	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()
	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		slog.Error("schema setup failed", slog.Any("error", err))
		os.Exit(1)
	}

	// Repositories
	pendingRepo := postgres.NewPendingReplyRepo(pool)
	userRepo := postgres.NewUserRepo(pool)

	// Answer cache: Redis when configured, in-process TTL cache otherwise.
	var answerCache domain.AnswerCache
	var rdb *goredis.Client
	if cfg.RedisURL != "" {
		opt, err := goredis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", slog.Any("error", err))
			os.Exit(1)
		}
		rdb = goredis.NewClient(opt)
		defer func() { _ = rdb.Close() }()
		answerCache = rediscache.New(rdb, cfg.AnswerCacheTTL)
		slog.Info("answer cache backed by redis")
	} else {
		memCache := respcache.New(cfg.AnswerCacheTTL)
		defer memCache.Close()
		answerCache = memCache
		slog.Info("answer cache in-process", slog.Duration("ttl", cfg.AnswerCacheTTL))
	}

	// One global serialized call queue: the requests-per-minute ceiling
	// spans every completion call in the process.
	queue := callqueue.New(cfg.MinCallGap(), 64)
	defer queue.Close()

	completion := openai.New(cfg)
	orchestrator := usecase.NewOrchestrator(answerCache, queue, completion, cfg.MaxRetries, cfg.PromptMaxTokens)

	questions, err := report.Load(cfg.QuestionsFile)
	if err != nil {
		slog.Error("question set load failed", slog.Any("error", err))
		os.Exit(1)
	}

	chat := line.New(cfg)
	readings := usecase.NewReadingStore()
	processor := usecase.NewProcessor(pendingRepo, userRepo, chat, orchestrator, readings, questions, cfg.PersistTimeout)

	// Periodic status broadcast to all known users.
	broadcastCtx, stopBroadcast := context.WithCancel(ctx)
	defer stopBroadcast()
	broadcaster := usecase.NewBroadcaster(userRepo, chat, readings, orchestrator, cfg.BroadcastInterval)
	go broadcaster.Run(broadcastCtx)

	// HTTP server
	dbCheck, redisCheck := app.BuildReadinessChecks(pool, rdb)
	srv := httpserver.NewServer(cfg, readings, processor, dbCheck, redisCheck)
	handler := app.BuildRouter(cfg, srv)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
}
