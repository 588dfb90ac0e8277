package factors

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/aristath/factorrisk/internal/config"
	"github.com/aristath/factorrisk/internal/domain"
	"github.com/rs/zerolog"
)

// ImportSummary counts stored levels per factor
type ImportSummary struct {
	Rows     int            `json:"rows"`
	ByFactor map[string]int `json:"by_factor"`
}

// Importer loads factor levels from CSV for sources without an API client
type Importer struct {
	catalog *config.Catalog
	store   ObservationStore
	log     zerolog.Logger
}

// NewImporter creates a new factor level importer
func NewImporter(catalog *config.Catalog, store ObservationStore, log zerolog.Logger) *Importer {
	return &Importer{
		catalog: catalog,
		store:   store,
		log:     log.With().Str("component", "factor_import").Logger(),
	}
}

// Import reads factor_code,date,level rows and upserts them. Unknown factor
// codes fail the whole import before anything is written.
func (i *Importer) Import(ctx context.Context, r io.Reader) (*ImportSummary, error) {
	obs, err := ParseObservationsCSV(r)
	if err != nil {
		return nil, err
	}

	grouped := make(map[string][]Observation)
	for _, o := range obs {
		if _, ok := i.catalog.Get(o.FactorCode); !ok {
			return nil, fmt.Errorf("unknown factor code %q", o.FactorCode)
		}
		grouped[o.FactorCode] = append(grouped[o.FactorCode], o)
	}

	codes := make([]string, 0, len(grouped))
	for code := range grouped {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	summary := &ImportSummary{ByFactor: make(map[string]int, len(codes))}
	for _, code := range codes {
		spec, _ := i.catalog.Get(code)
		source := spec.Source
		if source == "" {
			source = SourceImport
		}
		if err := i.store.UpsertObservations(ctx, source, grouped[code]); err != nil {
			return summary, fmt.Errorf("failed to import levels for %s: %w", code, err)
		}
		summary.ByFactor[code] = len(grouped[code])
		summary.Rows += len(grouped[code])
	}

	i.log.Info().Int("rows", summary.Rows).Int("factors", len(codes)).Msg("Imported factor levels")
	return summary, nil
}

// ParseObservationsCSV reads factor_code,date,level rows. A leading UTF-8 BOM
// is accepted and blank levels are skipped.
func ParseObservationsCSV(r io.Reader) ([]Observation, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, required := range []string{"factor_code", "date", "level"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("csv missing column %q", required)
		}
	}

	var out []Observation
	line := 1
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to read csv line %d: %w", line, err)
		}

		raw := strings.TrimSpace(rec[cols["level"]])
		if raw == "" {
			continue
		}
		level, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(level) || math.IsInf(level, 0) {
			return nil, fmt.Errorf("line %d: invalid level %q", line, raw)
		}
		date, err := domain.ParseDate(strings.TrimSpace(rec[cols["date"]]))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, Observation{
			FactorCode: strings.TrimSpace(rec[cols["factor_code"]]),
			Date:       date,
			Level:      level,
		})
	}
	return out, nil
}
