package factors

import (
	"context"
	"fmt"

	"github.com/aristath/factorrisk/internal/config"
	"github.com/aristath/factorrisk/internal/domain"
	"github.com/rs/zerolog"
)

// LagOverrides supplies lag policies stored in settings. They beat catalog defaults.
type LagOverrides interface {
	LagPolicies() (map[string]domain.LagPolicy, error)
}

// ObservationSource reads raw levels
type ObservationSource interface {
	GetObservations(code string) ([]Observation, error)
}

// Service normalizes every catalog factor
type Service struct {
	catalog   *config.Catalog
	source    ObservationSource
	overrides LagOverrides
	log       zerolog.Logger
}

// NewService creates a new normalizer service. overrides may be nil.
func NewService(catalog *config.Catalog, source ObservationSource, overrides LagOverrides, log zerolog.Logger) *Service {
	return &Service{
		catalog:   catalog,
		source:    source,
		overrides: overrides,
		log:       log.With().Str("service", "factor_normalizer").Logger(),
	}
}

// Catalog returns the factor catalog
func (s *Service) Catalog() *config.Catalog {
	return s.catalog
}

// EffectiveLags returns the lag policy in force for each catalog factor
func (s *Service) EffectiveLags() (map[string]domain.LagPolicy, error) {
	overrides := map[string]domain.LagPolicy{}
	if s.overrides != nil {
		var err error
		if overrides, err = s.overrides.LagPolicies(); err != nil {
			return nil, fmt.Errorf("failed to load lag overrides: %w", err)
		}
	}

	out := make(map[string]domain.LagPolicy, len(s.catalog.Factors))
	for _, spec := range s.catalog.Factors {
		if lag, ok := overrides[spec.Code]; ok {
			out[spec.Code] = lag
			continue
		}
		lag, err := spec.Lag()
		if err != nil {
			return nil, &domain.ConfigurationError{Field: "lag_policy." + spec.Code, Reason: err.Error()}
		}
		out[spec.Code] = lag
	}
	return out, nil
}

// Normalize builds the lagged return and z-score series of every factor.
//
// Observation-lagged factors are laid out first; the union of their effective
// dates is the daily calendar that period-lagged (monthly) factors are placed
// on. A factor without observations is a data gap, not a failure.
func (s *Service) Normalize(ctx context.Context, zscoreWindow int) (*Set, error) {
	lags, err := s.EffectiveLags()
	if err != nil {
		return nil, err
	}

	set := &Set{
		Order:  s.catalog.Codes(),
		Series: make(map[string]*Series, len(s.catalog.Factors)),
	}

	raw := make(map[string][]Return, len(s.catalog.Factors))
	for _, spec := range s.catalog.Factors {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		obs, err := s.source.GetObservations(spec.Code)
		if err != nil {
			return nil, fmt.Errorf("failed to load observations for %s: %w", spec.Code, err)
		}

		returns, err := TransformLevels(spec, obs)
		if err != nil {
			return nil, err
		}
		if len(returns) == 0 {
			gap := &domain.DataGapError{Entity: "factor", Code: spec.Code}
			set.Gaps = append(set.Gaps, gap)
			s.log.Debug().Err(gap).Msg("Factor has no returns")
			continue
		}
		raw[spec.Code] = returns
	}

	var daily [][]Return
	for _, spec := range s.catalog.Factors {
		returns, ok := raw[spec.Code]
		if !ok || lags[spec.Code].IsPeriod() {
			continue
		}
		lagged := ApplyLag(returns, lags[spec.Code], nil)
		raw[spec.Code] = lagged
		daily = append(daily, lagged)
	}
	set.Calendar = BuildCalendar(daily...)

	for _, spec := range s.catalog.Factors {
		returns, ok := raw[spec.Code]
		if !ok {
			continue
		}
		lag := lags[spec.Code]
		if lag.IsPeriod() {
			returns = ApplyLag(returns, lag, set.Calendar)
		}

		points := EffectiveSeries(spec.Code, returns, lag, set.Calendar)
		ApplyZScores(points, zscoreWindow)
		set.Series[spec.Code] = NewSeries(spec, lag, returns, points)

		s.log.Debug().
			Str("factor", spec.Code).
			Str("lag", lag.String()).
			Int("returns", len(returns)).
			Int("points", len(points)).
			Msg("Factor normalized")
	}

	s.log.Info().
		Int("factors", len(set.Series)).
		Int("gaps", len(set.Gaps)).
		Int("calendar_days", len(set.Calendar)).
		Msg("Factor returns normalized")

	return set, nil
}
