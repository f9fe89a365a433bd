package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/formulab/desbank/internal/adapter/jsonfile"
	"github.com/formulab/desbank/internal/adapter/litellm"
	"github.com/formulab/desbank/internal/adapter/postgres"
	"github.com/formulab/desbank/internal/config"
	"github.com/formulab/desbank/internal/domain/recommendation"
	"github.com/formulab/desbank/internal/logger"
	"github.com/formulab/desbank/internal/resilience"
	"github.com/formulab/desbank/internal/service"
)

// runReplay imports historical experiment results from a foreign JSON
// store and re-extracts insights into the primary bank.
func runReplay(args []string) error {
	fs := flag.NewFlagSet("replay", flag.ExitOnError)
	source := fs.String("source", "", "directory holding recommendations.json to replay (required)")
	status := fs.String("status", string(recommendation.StatusCompleted), "status of foreign records to consider")
	reprocess := fs.Bool("reprocess", false, "replay records whose feedback was already consolidated")
	concurrency := fs.Int("concurrency", 4, "parallel extraction calls")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: desbank replay -source DIR [options]\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *source == "" {
		fs.Usage()
		return fmt.Errorf("replay: -source is required")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log, closeLogger := logger.New(cfg.Logging)
	defer closeLogger.Close()
	slog.SetDefault(log)

	ctx := context.Background()

	foreign, err := jsonfile.Open(*source)
	if err != nil {
		return fmt.Errorf("open source store: %w", err)
	}

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	store := postgres.NewStore(pool)

	extract := litellm.NewClient(cfg.LiteLLM, cfg.Extractor)
	extract.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))

	svc := service.NewReplayService(store, extract, log)
	report, err := svc.Replay(ctx, foreign, service.ReplayOptions{
		StatusFilter: recommendation.Status(*status),
		Reprocess:    *reprocess,
		Concurrency:  *concurrency,
	})
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}

	fmt.Printf("Loaded:    %d\n", report.TotalLoaded)
	fmt.Printf("Replayed:  %d\n", report.Replayed)
	fmt.Printf("Skipped:   %d\n", report.Skipped)
	fmt.Printf("Memories:  %d\n", report.MemoriesAdded)
	if len(report.Failures) > 0 {
		fmt.Printf("Failures:  %d\n", len(report.Failures))
		for _, f := range report.Failures {
			fmt.Printf("  %s: %v\n", f.RecommendationID, f.Err)
		}
	}
	return nil
}
