package reports

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/aristath/factorrisk/internal/domain"
	"github.com/aristath/factorrisk/internal/modules/betas"
)

// utf8BOM lets spreadsheet tools detect the encoding
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

var runReportHeader = []string{
	"run_id", "security_code", "status", "reason", "zscore_status", "zscore_reason",
	"as_of_date", "n_obs", "ok_factors", "skipped_factors",
}

// WriteRunReportCSV writes the per-security run report, BOM first
func WriteRunReportCSV(w io.Writer, rows []betas.ReportRow) error {
	if _, err := w.Write(utf8BOM); err != nil {
		return fmt.Errorf("failed to write BOM: %w", err)
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(runReportHeader); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}
	for i, row := range rows {
		asOf := ""
		if row.AsOfDate != nil {
			asOf = domain.FormatDate(*row.AsOfDate)
		}
		record := []string{
			row.RunID,
			row.SecurityCode,
			string(row.Status),
			row.Reason,
			string(row.ZScoreStatus),
			row.ZScoreReason,
			asOf,
			strconv.Itoa(row.NObs),
			betas.JoinFactors(row.OKFactors),
			betas.JoinFactors(row.SkippedFactors),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteRunReportFile writes the run report CSV to path
func WriteRunReportFile(path string, rows []betas.ReportRow) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create run report: %w", err)
	}
	defer file.Close()

	if err := WriteRunReportCSV(file, rows); err != nil {
		return err
	}
	return file.Close()
}
