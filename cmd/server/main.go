// Package main is the entry point for the factorrisk daemon.
//
// The daemon keeps factor levels current, runs the analytics pipeline on a
// daily schedule and serves the results over a read-only JSON API:
//   - market.db: factor levels and returns, security prices, position snapshots
//   - analytics.db: betas, exposures, risk decomposition, rankings, run registry
//   - config.db: settings that override the environment
//   - cache.db: FRED/ECOS response cache
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata" // SCHEDULER_TZ must resolve on hosts without zoneinfo

	"github.com/aristath/factorrisk/internal/config"
	"github.com/aristath/factorrisk/internal/server"
	"github.com/aristath/factorrisk/pkg/logger"
)

func main() {
	// Load configuration first to get log level
	cfg, err := config.Load()
	if err != nil {
		// Use fallback logger if config fails
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
	})
	logger.SetGlobalLogger(log)

	log.Info().Str("data_dir", cfg.DataDir).Msg("Starting factorrisk")

	// Wait for interrupt signal
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Serve(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("factorrisk stopped with error")
	}
}
