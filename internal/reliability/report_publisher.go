package reliability

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aristath/factorrisk/internal/domain"
	"github.com/rs/zerolog"
)

// reportPrefix is the key prefix of every published report
const reportPrefix = "reports/"

// minReportDatesToKeep survive rotation regardless of age
const minReportDatesToKeep = 3

// ReportManifest describes one published run
type ReportManifest struct {
	RunID         string          `json:"run_id"`
	PortfolioDate string          `json:"portfolio_date"`
	PublishedAt   time.Time       `json:"published_at"`
	Files         []PublishedFile `json:"files"`
}

// PublishedFile is one uploaded report file
type PublishedFile struct {
	Key       string `json:"key"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// PublishedReport is a report date found in the bucket
type PublishedReport struct {
	PortfolioDate time.Time `json:"portfolio_date"`
	Keys          []string  `json:"keys"`
	SizeBytes     int64     `json:"size_bytes"`
}

// ReportPublisher uploads pipeline reports to object storage
type ReportPublisher struct {
	store ObjectStore
	log   zerolog.Logger
}

// NewReportPublisher creates a new report publisher
func NewReportPublisher(store ObjectStore, log zerolog.Logger) *ReportPublisher {
	return &ReportPublisher{
		store: store,
		log:   log.With().Str("service", "report_publisher").Logger(),
	}
}

// Publish uploads the given files under reports/<date>/<run id>/ followed
// by a manifest with their checksums.
func (p *ReportPublisher) Publish(ctx context.Context, runID string, portfolioDate time.Time, paths []string) (*ReportManifest, error) {
	startTime := time.Now()
	prefix := fmt.Sprintf("%s%s/%s/", reportPrefix, domain.FormatDate(portfolioDate), runID)

	manifest := &ReportManifest{
		RunID:         runID,
		PortfolioDate: domain.FormatDate(portfolioDate),
		PublishedAt:   time.Now().UTC(),
		Files:         make([]PublishedFile, 0, len(paths)),
	}

	for _, path := range paths {
		file, err := p.uploadFile(ctx, prefix, path)
		if err != nil {
			return nil, err
		}
		manifest.Files = append(manifest.Files, *file)
	}

	body, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := p.store.Upload(ctx, prefix+"manifest.json", bytes.NewReader(body), int64(len(body))); err != nil {
		return nil, fmt.Errorf("failed to upload manifest: %w", err)
	}

	p.log.Info().
		Str("run_id", runID).
		Int("files", len(manifest.Files)).
		Dur("duration_ms", time.Since(startTime)).
		Msg("Reports published")

	return manifest, nil
}

func (p *ReportPublisher) uploadFile(ctx context.Context, prefix, path string) (*PublishedFile, error) {
	checksum, err := calculateChecksum(path)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate checksum for %s: %w", path, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open report: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat report: %w", err)
	}

	key := prefix + filepath.Base(path)
	if err := p.store.Upload(ctx, key, f, info.Size()); err != nil {
		return nil, err
	}
	return &PublishedFile{Key: key, SizeBytes: info.Size(), Checksum: checksum}, nil
}

// ListReports returns published report dates, newest first
func (p *ReportPublisher) ListReports(ctx context.Context) ([]PublishedReport, error) {
	objects, err := p.store.List(ctx, reportPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list published reports: %w", err)
	}

	byDate := make(map[time.Time]*PublishedReport)
	for _, obj := range objects {
		if obj.Key == nil {
			continue
		}

		// reports/2024-03-29/<run id>/<file>
		parts := strings.SplitN(strings.TrimPrefix(*obj.Key, reportPrefix), "/", 2)
		date, err := domain.ParseDate(parts[0])
		if err != nil {
			p.log.Warn().Str("key", *obj.Key).Msg("Failed to parse date from report key")
			continue
		}

		report, ok := byDate[date]
		if !ok {
			report = &PublishedReport{PortfolioDate: date}
			byDate[date] = report
		}
		report.Keys = append(report.Keys, *obj.Key)
		if obj.Size != nil {
			report.SizeBytes += *obj.Size
		}
	}

	reports := make([]PublishedReport, 0, len(byDate))
	for _, r := range byDate {
		reports = append(reports, *r)
	}
	sort.Slice(reports, func(i, j int) bool {
		return reports[i].PortfolioDate.After(reports[j].PortfolioDate)
	})
	return reports, nil
}

// RotateOldReports deletes report dates older than retentionDays, always
// keeping the newest three. A retention of 0 keeps everything.
func (p *ReportPublisher) RotateOldReports(ctx context.Context, retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}

	reports, err := p.ListReports(ctx)
	if err != nil {
		return 0, err
	}
	if len(reports) <= minReportDatesToKeep {
		return 0, nil
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	deleted := 0
	for _, report := range reports[minReportDatesToKeep:] {
		if !report.PortfolioDate.Before(cutoff) {
			continue
		}
		for _, key := range report.Keys {
			if err := p.store.Delete(ctx, key); err != nil {
				p.log.Error().Err(err).Str("key", key).Msg("Failed to delete old report")
				continue
			}
			deleted++
		}
	}

	p.log.Info().Int("deleted", deleted).Msg("Report rotation completed")
	return deleted, nil
}

// calculateChecksum calculates the SHA256 checksum of a file
func calculateChecksum(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return fmt.Sprintf("sha256:%x", hash.Sum(nil)), nil
}
