// Package reports renders pipeline output as CSV and Excel files.
package reports

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aristath/factorrisk/internal/domain"
	"github.com/aristath/factorrisk/internal/modules/betas"
	"github.com/aristath/factorrisk/internal/modules/exposure"
	"github.com/aristath/factorrisk/internal/modules/ranking"
	"github.com/aristath/factorrisk/internal/modules/risk"
	"github.com/rs/zerolog"
)

// RunData is everything one pipeline run produced
type RunData struct {
	RunID         string
	PortfolioDate time.Time
	Exposures     []exposure.Exposure
	Risk          []risk.Decomposition
	Rankings      []ranking.Entry
	Report        []betas.ReportRow
}

// Source interfaces satisfied by the module repositories
type (
	ReportSource interface {
		GetReport(runID string) ([]betas.ReportRow, error)
	}
	ExposureSource interface {
		Get(date time.Time, method domain.Method) ([]exposure.Exposure, error)
	}
	RiskSource interface {
		Get(date time.Time, method domain.Method) ([]risk.Decomposition, error)
	}
	RankingSource interface {
		Get(asOf time.Time, method domain.Method, factor string, axis ranking.Axis) ([]ranking.Entry, error)
	}
)

// Collector loads a run's stored output, every method included
type Collector struct {
	report   ReportSource
	exposure ExposureSource
	risk     RiskSource
	rankings RankingSource
}

// NewCollector creates a new report collector
func NewCollector(report ReportSource, exposure ExposureSource, risk RiskSource, rankings RankingSource) *Collector {
	return &Collector{report: report, exposure: exposure, risk: risk, rankings: rankings}
}

// Collect gathers the output of runID for portfolioDate
func (c *Collector) Collect(runID string, portfolioDate time.Time) (*RunData, error) {
	data := &RunData{RunID: runID, PortfolioDate: portfolioDate}

	report, err := c.report.GetReport(runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load run report: %w", err)
	}
	data.Report = report

	for _, method := range domain.AllMethods {
		exposures, err := c.exposure.Get(portfolioDate, method)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s exposures: %w", method, err)
		}
		data.Exposures = append(data.Exposures, exposures...)

		rows, err := c.risk.Get(portfolioDate, method)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s risk: %w", method, err)
		}
		data.Risk = append(data.Risk, rows...)

		entries, err := c.rankings.Get(portfolioDate, method, "", "")
		if err != nil {
			return nil, fmt.Errorf("failed to load %s rankings: %w", method, err)
		}
		data.Rankings = append(data.Rankings, entries...)
	}
	return data, nil
}

// Writer writes report files into a directory
type Writer struct {
	dir string
	log zerolog.Logger
}

// NewWriter creates a report writer for dir
func NewWriter(dir string, log zerolog.Logger) *Writer {
	return &Writer{
		dir: dir,
		log: log.With().Str("component", "report_writer").Logger(),
	}
}

// Write renders the run report CSV and the workbook, returning their paths
func (w *Writer) Write(data *RunData) ([]string, error) {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create report directory: %w", err)
	}

	stem := fmt.Sprintf("%s_%s", domain.FormatDate(data.PortfolioDate), data.RunID)
	csvPath := filepath.Join(w.dir, "beta_run_report_"+stem+".csv")
	xlsxPath := filepath.Join(w.dir, "factor_risk_"+stem+".xlsx")

	if err := WriteRunReportFile(csvPath, data.Report); err != nil {
		return nil, err
	}
	if err := WriteWorkbookFile(xlsxPath, data); err != nil {
		return nil, err
	}

	w.log.Info().
		Str("run_id", data.RunID).
		Str("csv", csvPath).
		Str("xlsx", xlsxPath).
		Msg("Reports written")
	return []string{csvPath, xlsxPath}, nil
}
