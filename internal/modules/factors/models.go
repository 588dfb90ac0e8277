// Package factors turns raw factor levels into lagged daily returns and their
// rolling z-scores, and stores both in market.db.
package factors

import (
	"time"

	"github.com/aristath/factorrisk/internal/config"
	"github.com/aristath/factorrisk/internal/domain"
)

// Observation is a raw factor level as fetched or imported
type Observation struct {
	FactorCode string    `json:"factor_code"`
	Date       time.Time `json:"date"`
	Level      float64   `json:"level"`
}

// Return is one factor return with its lag-derived effective date.
// Ret is the only value the regressions consume; RawLevel is kept for audit.
type Return struct {
	FactorCode    string    `json:"factor_code"`
	ObservedDate  time.Time `json:"observed_date"`
	EffectiveDate time.Time `json:"effective_date"`
	RawLevel      *float64  `json:"raw_level"`
	Ret           float64   `json:"ret"`
	LagPolicy     string    `json:"lag_policy"`
}

// Point is a factor return on its effective calendar with its z-score
type Point struct {
	FactorCode string    `json:"factor_code"`
	Date       time.Time `json:"date"`
	Ret        float64   `json:"ret"`
	RetZ       float64   `json:"ret_z"`
}

// Series is the normalized output for one factor
type Series struct {
	Spec    config.FactorSpec
	Lag     domain.LagPolicy
	Returns []Return
	Points  []Point

	raw map[time.Time]float64
	z   map[time.Time]float64
}

// NewSeries builds a Series and its date lookups
func NewSeries(spec config.FactorSpec, lag domain.LagPolicy, returns []Return, points []Point) *Series {
	s := &Series{
		Spec:    spec,
		Lag:     lag,
		Returns: returns,
		Points:  points,
		raw:     make(map[time.Time]float64, len(points)),
		z:       make(map[time.Time]float64, len(points)),
	}
	for _, p := range points {
		s.raw[p.Date] = p.Ret
		s.z[p.Date] = p.RetZ
	}
	return s
}

// Lookup returns the date-indexed values the given transform regresses on
func (s *Series) Lookup(t domain.Transform) map[time.Time]float64 {
	if t == domain.TransformZScore {
		return s.z
	}
	return s.raw
}

// Value returns the factor value on date, false when the factor has no
// observation that day.
func (s *Series) Value(date time.Time, t domain.Transform) (float64, bool) {
	v, ok := s.Lookup(t)[date]
	return v, ok
}

// Dates returns the effective dates in ascending order
func (s *Series) Dates() []time.Time {
	dates := make([]time.Time, len(s.Points))
	for i, p := range s.Points {
		dates[i] = p.Date
	}
	return dates
}

// Set is the normalizer output for the whole catalog
type Set struct {
	Order    []string // catalog order
	Series   map[string]*Series
	Calendar []time.Time
	Gaps     []*domain.DataGapError
}

// Get returns the series for code, nil when the factor produced no returns
func (s *Set) Get(code string) *Series {
	if s == nil {
		return nil
	}
	return s.Series[code]
}

// Available returns the codes, in catalog order, that have at least one point
func (s *Set) Available() []string {
	out := make([]string, 0, len(s.Order))
	for _, code := range s.Order {
		if series := s.Series[code]; series != nil && len(series.Points) > 0 {
			out = append(out, code)
		}
	}
	return out
}
