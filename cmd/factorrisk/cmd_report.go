package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aristath/factorrisk/internal/pipeline"
	"github.com/aristath/factorrisk/internal/server"
)

// reportCmd regenerates the report files of a stored run
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Write CSV and XLSX reports for a stored run",
	Long: `Rebuild the report files of a pipeline run from the stored results.
Without --run-id the most recent successful run is used. Files are written to
FACTORRISK_REPORT_DIR and published to R2 when REPORT_PUBLISH is set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(cmd, func(ctx context.Context, e *env) error {
			run, err := findReportRun(e, reportRunID)
			if err != nil {
				return err
			}

			reporter := pipeline.NewFileReporter(e.container.ReportCollector, e.container.ReportWriter, e.container.ReportPublisher, e.log)
			files, err := reporter.Report(ctx, run.RunID, *run.PortfolioDate)
			if err != nil {
				return err
			}

			if outputFormat == "json" {
				return printJSON(e.out, map[string]interface{}{"run_id": run.RunID, "files": files})
			}
			for _, f := range files {
				fmt.Fprintln(e.out, f)
			}
			return nil
		})
	},
}

// serveCmd runs the daemon in the foreground
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler and HTTP API until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return server.Serve(ctx, cfg, log)
	},
}

var reportRunID string

func init() {
	rootCmd.AddCommand(reportCmd, serveCmd)

	reportCmd.Flags().StringVar(&reportRunID, "run-id", "", "Run to report (default: latest successful run)")
}

// findReportRun returns runID, or the latest successful run when empty
func findReportRun(e *env, runID string) (*pipeline.Run, error) {
	runs := e.container.Pipeline.Runs()
	if runID != "" {
		run, err := runs.Get(runID)
		if err != nil {
			return nil, err
		}
		if run == nil {
			return nil, fmt.Errorf("run %s not found", runID)
		}
		if run.Status != pipeline.RunSucceeded || run.PortfolioDate == nil {
			return nil, fmt.Errorf("run %s has status %s and no committed output", runID, run.Status)
		}
		return run, nil
	}

	list, err := runs.List(0)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].Status == pipeline.RunSucceeded && list[i].PortfolioDate != nil {
			return &list[i], nil
		}
	}
	return nil, fmt.Errorf("no successful run found")
}
