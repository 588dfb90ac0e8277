package factors

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/factorrisk/internal/config"
	"github.com/aristath/factorrisk/internal/domain"
	"github.com/rs/zerolog"
)

// Sources with an API fetcher. YFINANCE and PYKRX levels arrive by CSV import.
const (
	SourceFRED     = "FRED"
	SourceECOS     = "ECOS"
	SourceYFinance = "YFINANCE"
	SourcePyKRX    = "PYKRX"
	SourceImport   = "IMPORT"
)

const (
	// defaultHistoryYears is how far back the first sync of a factor reaches
	defaultHistoryYears = 5
	dailyRefetchDays    = 14
	monthlyRefetchMonth = 2
)

// LevelFetcher fetches raw factor levels for one catalog entry
type LevelFetcher interface {
	FetchLevels(ctx context.Context, spec config.FactorSpec, start, end time.Time) ([]Observation, error)
}

// ObservationStore is the write side of the factor repository
type ObservationStore interface {
	LastObservationDate(code string) (*time.Time, error)
	UpsertObservations(ctx context.Context, source string, obs []Observation) error
}

// SyncResult describes the sync of one factor
type SyncResult struct {
	FactorCode string     `json:"factor_code"`
	Source     string     `json:"source"`
	FetchStart *time.Time `json:"fetch_start,omitempty"`
	StoreStart *time.Time `json:"store_start,omitempty"`
	End        *time.Time `json:"end,omitempty"`
	Fetched    int        `json:"fetched"`
	Stored     int        `json:"stored"`
	Skipped    string     `json:"skipped,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// SyncService keeps factor levels current from the external providers
type SyncService struct {
	catalog  *config.Catalog
	store    ObservationStore
	fetchers map[string]LevelFetcher
	location *time.Location
	now      func() time.Time
	log      zerolog.Logger
}

// NewSyncService creates a sync service. fetchers is keyed by catalog source;
// loc is the calendar "yesterday" is computed in.
func NewSyncService(catalog *config.Catalog, store ObservationStore, fetchers map[string]LevelFetcher, loc *time.Location, log zerolog.Logger) *SyncService {
	if loc == nil {
		loc = time.UTC
	}
	return &SyncService{
		catalog:  catalog,
		store:    store,
		fetchers: fetchers,
		location: loc,
		now:      time.Now,
		log:      log.With().Str("service", "factor_sync").Logger(),
	}
}

// SyncAll syncs every catalog factor that has a fetcher. A failing factor is
// recorded in its result and does not stop the others.
func (s *SyncService) SyncAll(ctx context.Context) ([]SyncResult, error) {
	results := make([]SyncResult, 0, len(s.catalog.Factors))
	failed := 0
	for _, spec := range s.catalog.Factors {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res := s.Sync(ctx, spec)
		if res.Error != "" {
			failed++
		}
		results = append(results, res)
	}

	s.log.Info().
		Int("factors", len(results)).
		Int("failed", failed).
		Msg("Factor sync complete")
	return results, nil
}

// Sync fetches new levels of one factor.
//
// The window ends yesterday so incomplete same-day values are never stored.
// The fetch reaches back a short refetch window before the last stored date
// and only dates after it are written.
func (s *SyncService) Sync(ctx context.Context, spec config.FactorSpec) SyncResult {
	res := SyncResult{FactorCode: spec.Code, Source: spec.Source}
	log := s.log.With().Str("factor", spec.Code).Str("source", spec.Source).Logger()

	fetcher, ok := s.fetchers[spec.Source]
	if !ok {
		res.Skipped = "no_fetcher"
		log.Debug().Msg("No fetcher for source, levels come from import")
		return res
	}

	end := s.yesterday()
	res.End = &end

	last, err := s.store.LastObservationDate(spec.Code)
	if err != nil {
		res.Error = err.Error()
		log.Error().Err(err).Msg("Failed to read last observation date")
		return res
	}

	storeStart, fetchStart := SyncWindow(last, end, spec.Frequency)
	if storeStart.After(end) {
		res.Skipped = "up_to_date"
		log.Debug().Time("last", *last).Msg("Factor already up to date")
		return res
	}
	res.StoreStart, res.FetchStart = &storeStart, &fetchStart

	obs, err := fetcher.FetchLevels(ctx, spec, fetchStart, end)
	if err != nil {
		res.Error = err.Error()
		log.Error().Err(err).Msg("Failed to fetch factor levels")
		return res
	}
	res.Fetched = len(obs)

	keep := obs[:0:0]
	for _, o := range obs {
		if o.Date.Before(storeStart) || o.Date.After(end) {
			continue
		}
		o.FactorCode = spec.Code
		keep = append(keep, o)
	}

	if err := s.store.UpsertObservations(ctx, spec.Source, keep); err != nil {
		res.Error = fmt.Sprintf("failed to store observations: %v", err)
		log.Error().Err(err).Msg("Failed to store factor levels")
		return res
	}
	res.Stored = len(keep)

	log.Info().
		Str("from", domain.FormatDate(storeStart)).
		Str("to", domain.FormatDate(end)).
		Int("fetched", res.Fetched).
		Int("stored", res.Stored).
		Msg("Factor synced")
	return res
}

func (s *SyncService) yesterday() time.Time {
	return domain.Truncate(s.now().In(s.location)).AddDate(0, 0, -1)
}

// SyncWindow returns the first date to store and the first date to fetch.
// Without history the factor is seeded five years back.
func SyncWindow(last *time.Time, end time.Time, frequency string) (storeStart, fetchStart time.Time) {
	if last == nil {
		start := end.AddDate(-defaultHistoryYears, 0, 0)
		return start, start
	}
	storeStart = last.AddDate(0, 0, 1)
	if frequency == config.FrequencyMonthly {
		return storeStart, storeStart.AddDate(0, -monthlyRefetchMonth, 0)
	}
	return storeStart, storeStart.AddDate(0, 0, -dailyRefetchDays)
}
