package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/aristath/factorrisk/internal/domain"
	"github.com/aristath/factorrisk/internal/modules/portfolio"
)

// importCmd is the parent command for file imports
var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import factor levels, security prices or a position snapshot",
	Long: `Load inputs that have no API connector. Files are CSV unless noted.

  factors    factor_code,date,level
  prices     security_code,date,close
  positions  as_of_date,security_code,security_name,quantity,eval_amount[,category_tags,currency]
             or a JSON snapshot document (.json)`,
}

var importFactorsCmd = &cobra.Command{
	Use:   "factors FILE",
	Short: "Import factor levels from CSV",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(cmd, func(ctx context.Context, e *env) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			summary, err := e.container.FactorImporter.Import(ctx, f)
			if err != nil {
				return err
			}
			if outputFormat == "json" {
				return printJSON(e.out, summary)
			}

			w := tabwriter.NewWriter(e.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "FACTOR\tROWS")
			for _, code := range e.container.Catalog.Codes() {
				if n, ok := summary.ByFactor[code]; ok {
					fmt.Fprintf(w, "%s\t%d\n", code, n)
				}
			}
			fmt.Fprintf(w, "total\t%d\n", summary.Rows)
			return w.Flush()
		})
	},
}

var importPricesCmd = &cobra.Command{
	Use:   "prices FILE",
	Short: "Import security closes from CSV",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(cmd, func(ctx context.Context, e *env) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			result, err := e.container.PriceImportService.ImportCSV(ctx, f)
			if err != nil {
				return err
			}
			if outputFormat == "json" {
				return printJSON(e.out, result)
			}

			w := tabwriter.NewWriter(e.out, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "Stored\t%d\n", result.Stored)
			fmt.Fprintf(w, "Securities\t%d\n", result.Securities)
			fmt.Fprintf(w, "Rejected\t%d\n", len(result.Rejected))
			for _, r := range result.Rejected {
				fmt.Fprintf(w, "  %s %s\t%s (close %g)\n",
					r.Price.SecurityCode, domain.FormatDate(r.Price.Date), r.Reason, r.Price.Close)
			}
			return w.Flush()
		})
	},
}

var importPositionsCmd = &cobra.Command{
	Use:   "positions FILE",
	Short: "Import a position snapshot from CSV or JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(cmd, func(ctx context.Context, e *env) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			var snapshot portfolio.SnapshotImport
			if strings.EqualFold(filepath.Ext(args[0]), ".json") {
				snapshot, err = portfolio.ParseSnapshotJSON(f)
			} else {
				snapshot, err = portfolio.ParsePositionsCSV(f)
			}
			if err != nil {
				return err
			}

			result, err := e.container.PortfolioService.ImportSnapshot(ctx, snapshot)
			if err != nil {
				return err
			}
			if outputFormat == "json" {
				return printJSON(e.out, result)
			}

			w := tabwriter.NewWriter(e.out, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "As of\t%s\n", domain.FormatDate(result.AsOfDate))
			if result.Skipped {
				fmt.Fprintf(w, "Skipped\t%s\n", result.Reason)
			} else {
				fmt.Fprintf(w, "Positions\t%d\n", result.Positions)
				fmt.Fprintf(w, "Cash\t%.2f\n", result.TotalCash)
			}
			return w.Flush()
		})
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.AddCommand(importFactorsCmd, importPricesCmd, importPositionsCmd)
}
