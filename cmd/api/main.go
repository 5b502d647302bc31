package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"contest-platform/internal/config"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "contest-platform",
		Short:         "Paid creative contests: enrollment, submissions and winners",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", ".", "directory holding config.env")

	root.AddCommand(serveCmd(), migrateCmd(), sweepCmd(), reconcileCmd())

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadConfig reads and validates the configuration and builds the root logger.
func loadConfig() (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, zerolog.Nop(), fmt.Errorf("cannot load config: %w", err)
	}
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.Validate(); err != nil {
		return cfg, logger, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, logger, nil
}

func newLogger(level, format string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339

	if format == "console" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}).
			With().Timestamp().Str("service", "contest-platform").Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Str("service", "contest-platform").Logger()
}
