package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/aristath/factorrisk/internal/domain"
	"github.com/aristath/factorrisk/internal/modules/factors"
)

// syncFactorsCmd pulls new factor levels from the API providers
var syncFactorsCmd = &cobra.Command{
	Use:   "sync-factors",
	Short: "Fetch new factor levels from FRED and ECOS",
	Long: `Fetch observations newer than the last stored date for every catalog
factor with an API source. Factors sourced from YFINANCE or PYKRX are
imported with 'factorrisk import factors' instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(cmd, func(ctx context.Context, e *env) error {
			results, err := e.container.SyncService.SyncAll(ctx)
			if err != nil {
				return err
			}
			if outputFormat == "json" {
				return printJSON(e.out, results)
			}

			w := tabwriter.NewWriter(e.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "FACTOR\tSOURCE\tFROM\tTO\tFETCHED\tSTORED\tNOTE")
			failed := 0
			for _, r := range results {
				note := r.Skipped
				if r.Error != "" {
					note = "error: " + r.Error
					failed++
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
					r.FactorCode, r.Source, optDate(r.StoreStart), optDate(r.End), r.Fetched, r.Stored, note)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d factor(s) failed to sync", failed)
			}
			return nil
		})
	},
}

// lagScanCmd chooses observation lags against reference securities
var lagScanCmd = &cobra.Command{
	Use:   "lag-scan",
	Short: "Choose each factor's observation lag against its reference security",
	Long: `For every factor with a reference security, regress the security's daily
returns on the factor shifted by each lag in [--min, --max] and keep the lag
with the highest R². The winner is stored as a lag override unless --dry-run.

Examples:
  factorrisk lag-scan --dry-run
  factorrisk lag-scan --factor F_RATE_US10Y --min -2 --max 2`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(cmd, func(ctx context.Context, e *env) error {
			results, err := e.container.LagScanner.Scan(ctx, factors.LagScanOptions{
				LagMin:  lagMin,
				LagMax:  lagMax,
				MinObs:  lagMinObs,
				Factors: lagFactors,
				DryRun:  lagDryRun,
			})
			if err != nil {
				return err
			}
			if outputFormat == "json" {
				return printJSON(e.out, results)
			}

			w := tabwriter.NewWriter(e.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "FACTOR\tREFERENCE\tBEST LAG\tBETA\tR2\tN\tAPPLIED\tNOTE")
			for _, r := range results {
				if r.Best == nil {
					fmt.Fprintf(w, "%s\t%s\t-\t-\t-\t-\t%t\t%s\n", r.FactorCode, r.ReferenceSecurity, r.Applied, r.Skipped)
					continue
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%.4f\t%.4f\t%d\t%t\t%s\n",
					r.FactorCode, r.ReferenceSecurity, r.Best.Lag, r.Best.Beta, r.Best.R2, r.Best.NObs, r.Applied, r.Skipped)
			}
			return w.Flush()
		})
	},
}

var (
	lagMin     int
	lagMax     int
	lagMinObs  int
	lagFactors []string
	lagDryRun  bool
)

func init() {
	rootCmd.AddCommand(syncFactorsCmd, lagScanCmd)

	lagScanCmd.Flags().IntVar(&lagMin, "min", factors.DefaultLagMin, "Smallest lag to try")
	lagScanCmd.Flags().IntVar(&lagMax, "max", factors.DefaultLagMax, "Largest lag to try")
	lagScanCmd.Flags().IntVar(&lagMinObs, "min-obs", 60, "Minimum overlapping observations per lag")
	lagScanCmd.Flags().StringSliceVar(&lagFactors, "factor", nil, "Factor codes to scan (default: all with a reference security)")
	lagScanCmd.Flags().BoolVar(&lagDryRun, "dry-run", false, "Report the best lag without storing it")
}

func optDate(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return domain.FormatDate(*t)
}
