package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"contest-platform/internal/config"
	"contest-platform/internal/store"
	"contest-platform/internal/store/memory"
	"contest-platform/internal/store/postgres"
)

// openStore connects the configured backend. The postgres schema is applied
// on every start; it is idempotent.
func openStore(ctx context.Context, cfg config.Config, logger zerolog.Logger) (store.Store, error) {
	if cfg.Store == "memory" {
		logger.Warn().Msg("Using the in-memory store; data is lost on exit")
		return memory.New(), nil
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	pg, err := postgres.New(ctx, cfg.DSN, logger)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to database: %w", err)
	}
	if err := pg.Migrate(ctx); err != nil {
		pg.Close()
		return nil, fmt.Errorf("cannot migrate database: %w", err)
	}
	return pg, nil
}
