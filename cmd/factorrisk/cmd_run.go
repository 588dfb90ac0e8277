package main

import (
	"context"
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/aristath/factorrisk/internal/di"
	"github.com/aristath/factorrisk/internal/domain"
	"github.com/aristath/factorrisk/internal/pipeline"
)

// runCmd runs the analytics pipeline once
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the analytics pipeline for one as-of date",
	Long: `Normalize factor returns, estimate betas, aggregate exposures, decompose
risk and rank securities for the given as-of date. The latest portfolio
snapshot on or before that date is used. A failed run commits nothing.

Examples:
  factorrisk run
  factorrisk run --date 2024-03-29
  factorrisk run --sync --format json`,
	RunE: runPipeline,
}

var (
	runDate string
	runSync bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runDate, "date", "", "As-of date YYYY-MM-DD (default: today in SCHEDULER_TZ)")
	runCmd.Flags().BoolVar(&runSync, "sync", false, "Sync factor levels from FRED/ECOS before running")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	return withContainer(cmd, func(ctx context.Context, e *env) error {
		asOf, err := resolveAsOf(e, runDate)
		if err != nil {
			return err
		}

		if runSync {
			results, err := e.container.SyncService.SyncAll(ctx)
			if err != nil {
				return fmt.Errorf("factor sync failed: %w", err)
			}
			for _, r := range results {
				if r.Error != "" {
					e.log.Warn().Str("factor", r.FactorCode).Str("error", r.Error).Msg("Factor sync failed, continuing with stored levels")
				}
			}
		}

		run, runErr := e.container.Pipeline.Run(ctx, asOf)
		if run == nil {
			return runErr
		}

		if outputFormat == "json" {
			if err := printJSON(e.out, run); err != nil {
				return err
			}
		} else {
			printRun(e, run)
		}
		return runErr
	})
}

// resolveAsOf parses --date, defaulting to today in the scheduler zone
func resolveAsOf(e *env, raw string) (time.Time, error) {
	if raw != "" {
		t, err := domain.ParseDate(raw)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid --date: %w", err)
		}
		return t, nil
	}
	loc, err := di.SchedulerLocation(e.cfg)
	if err != nil {
		return time.Time{}, err
	}
	return domain.Truncate(time.Now().In(loc)), nil
}

func printRun(e *env, run *pipeline.Run) {
	w := tabwriter.NewWriter(e.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Run\t%s\n", run.RunID)
	fmt.Fprintf(w, "Status\t%s\n", run.Status)
	fmt.Fprintf(w, "As of\t%s\n", domain.FormatDate(run.AsOfDate))
	if run.PortfolioDate != nil {
		fmt.Fprintf(w, "Portfolio date\t%s\n", domain.FormatDate(*run.PortfolioDate))
	}
	if run.FinishedAt != nil {
		fmt.Fprintf(w, "Duration\t%s\n", run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
	}
	if run.Error != "" {
		fmt.Fprintf(w, "Error\t%s\n", run.Error)
	}

	keys := make([]string, 0, len(run.Counts))
	for k := range run.Counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%s\t%d\n", k, run.Counts[k])
	}
	for _, m := range domain.AllMethods {
		if reason, ok := run.Undefined[string(m)]; ok {
			fmt.Fprintf(w, "Undefined %s\t%s\n", m, reason)
		}
	}
	_ = w.Flush()
}
