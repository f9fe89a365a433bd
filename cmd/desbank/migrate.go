package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/formulab/desbank/internal/adapter/postgres"
	"github.com/formulab/desbank/internal/config"
)

// runMigrate applies or rolls back database migrations without starting
// the engine.
func runMigrate(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	down := fs.Int("down", 0, "roll back this many migrations instead of applying")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: desbank migrate [-down N]\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx := context.Background()
	if *down > 0 {
		if err := postgres.RollbackMigrations(ctx, cfg.Postgres.DSN, *down); err != nil {
			return fmt.Errorf("rollback: %w", err)
		}
		fmt.Printf("rolled back %d migration(s)\n", *down)
		return nil
	}
	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	fmt.Println("migrations applied")
	return nil
}
