// Command factorrisk is the operator CLI: imports, factor sync, lag scans,
// one-off pipeline runs, report regeneration and the daemon itself.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata" // SCHEDULER_TZ must resolve on hosts without zoneinfo

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aristath/factorrisk/internal/config"
	"github.com/aristath/factorrisk/internal/di"
	"github.com/aristath/factorrisk/pkg/logger"
)

var (
	outputFormat string
	logLevel     string
)

// rootCmd is the base command for the factorrisk CLI
var rootCmd = &cobra.Command{
	Use:   "factorrisk",
	Short: "Macro factor exposure and risk decomposition for a single portfolio",
	Long: `factorrisk estimates how each holding responds to a small set of macro
factors, aggregates those sensitivities to portfolio exposures and splits
portfolio volatility into per-factor contributions.

Configuration comes from the environment (.env is read when present) and is
overridden by values stored in the settings database.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return validateFormat()
	}
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table", "Output format: table or json")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override LOG_LEVEL (debug, info, warn, error)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// env is what every subcommand receives
type env struct {
	cfg       *config.Config
	container *di.Container
	jobs      *di.JobInstances
	log       zerolog.Logger
	out       io.Writer
}

// loadConfig reads configuration and builds the CLI logger. Logs go to
// stderr so stdout stays clean for --format json.
func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("failed to load configuration: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
		Output: os.Stderr,
	})
	logger.SetGlobalLogger(log)
	return cfg, log, nil
}

// withContainer wires the application, runs fn under a signal-aware
// context and closes the databases afterwards
func withContainer(cmd *cobra.Command, fn func(ctx context.Context, e *env) error) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	container, jobs, err := di.Wire(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := container.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close databases")
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return fn(ctx, &env{
		cfg:       cfg,
		container: container,
		jobs:      jobs,
		log:       log,
		out:       cmd.OutOrStdout(),
	})
}

// printJSON writes v as indented JSON
func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// validateFormat rejects unknown --format values
func validateFormat() error {
	switch outputFormat {
	case "table", "json":
		return nil
	}
	return fmt.Errorf("unknown format %q: use table or json", outputFormat)
}
