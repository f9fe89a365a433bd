package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/formulab/desbank/internal/adapter/cachestatus"
	"github.com/formulab/desbank/internal/adapter/litellm"
	dbnats "github.com/formulab/desbank/internal/adapter/nats"
	"github.com/formulab/desbank/internal/adapter/natskv"
	dbotel "github.com/formulab/desbank/internal/adapter/otel"
	"github.com/formulab/desbank/internal/adapter/postgres"
	"github.com/formulab/desbank/internal/adapter/ristretto"
	"github.com/formulab/desbank/internal/adapter/tiered"
	"github.com/formulab/desbank/internal/config"
	"github.com/formulab/desbank/internal/logger"
	"github.com/formulab/desbank/internal/port/cache"
	"github.com/formulab/desbank/internal/port/jobstatus"
	"github.com/formulab/desbank/internal/port/messagequeue"
	"github.com/formulab/desbank/internal/resilience"
	"github.com/formulab/desbank/internal/service"
)

func main() {
	var err error
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "replay":
			err = runReplay(os.Args[2:])
		case "migrate":
			err = runMigrate(os.Args[2:])
		case "serve":
			err = runServe()
		default:
			fmt.Fprintf(os.Stderr, "Usage: desbank [serve|replay|migrate]\n")
			os.Exit(2)
		}
	} else {
		err = runServe()
	}
	if err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

// engine bundles the wired services of a running instance.
type engine struct {
	Feedback        *service.FeedbackService
	Recommendations *service.RecommendationService
	Insights        *service.InsightService
	Statistics      *service.StatisticsService
	Replay          *service.ReplayService
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closeLogger := logger.New(cfg.Logging)
	defer closeLogger.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"log_level", cfg.Logging.Level,
		"workers", cfg.Feedback.Workers,
		"nats_enabled", cfg.NATS.Enabled,
	)

	ctx := context.Background()

	shutdownTelemetry, err := dbotel.Setup(ctx, cfg.Telemetry, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Error("telemetry shutdown", "error", err)
		}
	}()

	// PostgreSQL
	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	store := postgres.NewStore(pool)
	slog.Info("postgres connected")

	// NATS (optional): lifecycle events plus the shared job status tier.
	var queue messagequeue.Queue = messagequeue.Nop{}
	var natsQueue *dbnats.Queue
	if cfg.NATS.Enabled {
		natsQueue, err = dbnats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() { _ = natsQueue.Drain() }()
		queue = natsQueue
	}

	jobs, err := buildJobStatusStore(ctx, cfg, natsQueue)
	if err != nil {
		return err
	}

	// Extractor behind its circuit breaker.
	extract := litellm.NewClient(cfg.LiteLLM, cfg.Extractor)
	extract.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))

	metrics, err := dbotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	workers := service.NewPool(cfg.Feedback.Workers)
	eng := &engine{
		Feedback:        service.NewFeedbackService(store, jobs, extract, queue, workers, metrics, log),
		Recommendations: service.NewRecommendationService(store, queue, log),
		Insights:        service.NewInsightService(store),
		Statistics:      service.NewStatisticsService(store),
		Replay:          service.NewReplayService(store, extract, log),
	}
	eng.Feedback.SetQueueLimit(cfg.Feedback.QueueSize)

	if sum, err := eng.Statistics.Summarize(ctx); err == nil {
		slog.Info("recommendation bank",
			"total", sum.Total,
			"completion_rate", sum.CompletionRate,
			"average_performance", sum.AveragePerformance)
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)
	slog.Info("engine ready")
	<-done

	slog.Info("shutting down, draining feedback jobs")
	eng.Feedback.Close()
	return nil
}

// buildJobStatusStore assembles the job status backend: in-process
// ristretto L1, and when NATS is available a JetStream KV L2 so multiple
// instances share job visibility.
func buildJobStatusStore(ctx context.Context, cfg *config.Config, natsQueue *dbnats.Queue) (jobstatus.Store, error) {
	l1, err := ristretto.New(cfg.Cache.L1MaxSizeMB << 20)
	if err != nil {
		return nil, fmt.Errorf("l1 cache: %w", err)
	}

	var backing cache.Cache = l1
	if natsQueue != nil {
		kv, err := natsQueue.KeyValue(ctx, cfg.Cache.L2Bucket, cfg.Cache.L2TTL)
		if err != nil {
			return nil, fmt.Errorf("l2 cache: %w", err)
		}
		backing = tiered.New(l1, natskv.New(kv), cfg.Feedback.StatusTTL)
	}
	return cachestatus.New(backing, cfg.Feedback.StatusTTL), nil
}
