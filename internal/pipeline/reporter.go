package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/factorrisk/internal/reliability"
	"github.com/aristath/factorrisk/internal/reports"
	"github.com/rs/zerolog"
)

// FileReporter writes a run's reports to disk and, when a publisher is
// configured, uploads them to object storage.
type FileReporter struct {
	collector *reports.Collector
	writer    *reports.Writer
	publisher *reliability.ReportPublisher
	log       zerolog.Logger
}

// NewFileReporter creates a reporter. publisher may be nil.
func NewFileReporter(collector *reports.Collector, writer *reports.Writer, publisher *reliability.ReportPublisher, log zerolog.Logger) *FileReporter {
	return &FileReporter{
		collector: collector,
		writer:    writer,
		publisher: publisher,
		log:       log.With().Str("component", "run_reporter").Logger(),
	}
}

// Report implements Reporter. A failed upload is logged; the local files
// remain the record of the run.
func (r *FileReporter) Report(ctx context.Context, runID string, portfolioDate time.Time) ([]string, error) {
	data, err := r.collector.Collect(runID, portfolioDate)
	if err != nil {
		return nil, fmt.Errorf("failed to collect run output: %w", err)
	}
	files, err := r.writer.Write(data)
	if err != nil {
		return nil, err
	}

	if r.publisher != nil {
		if _, err := r.publisher.Publish(ctx, runID, portfolioDate, files); err != nil {
			r.log.Error().Err(err).Str("run_id", runID).Msg("Failed to publish reports")
		}
	}
	return files, nil
}
