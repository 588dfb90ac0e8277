package factors

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/aristath/factorrisk/internal/config"
	"github.com/aristath/factorrisk/internal/domain"
	"github.com/aristath/factorrisk/pkg/formulas"
	"github.com/rs/zerolog"
)

// Lag scan defaults
const (
	DefaultLagMin = -3
	DefaultLagMax = 3
)

// ReferenceReturns supplies a reference security's daily log returns
type ReferenceReturns interface {
	ReturnMap(securityCode string, from, to time.Time) (map[time.Time]float64, error)
}

// LagPolicyWriter persists a chosen lag
type LagPolicyWriter interface {
	SetLagPolicy(factorCode string, policy domain.LagPolicy) error
}

// LagScanOptions controls a lag scan
type LagScanOptions struct {
	LagMin  int
	LagMax  int
	MinObs  int
	Factors []string // empty means every factor with a reference security
	DryRun  bool
}

// LagCandidate is the fit of one lag against the reference security
type LagCandidate struct {
	Lag  int     `json:"lag"`
	Beta float64 `json:"beta"`
	R2   float64 `json:"r2"`
	NObs int     `json:"n_obs"`
}

// LagScanResult is the outcome for one factor
type LagScanResult struct {
	FactorCode        string         `json:"factor_code"`
	ReferenceSecurity string         `json:"reference_security"`
	Candidates        []LagCandidate `json:"candidates"`
	Best              *LagCandidate  `json:"best,omitempty"`
	Applied           bool           `json:"applied"`
	Skipped           string         `json:"skipped,omitempty"`
}

// LagScanner picks, per factor, the observation lag that best explains a
// reference security's returns.
type LagScanner struct {
	catalog *config.Catalog
	source  ObservationSource
	prices  ReferenceReturns
	writer  LagPolicyWriter
	log     zerolog.Logger
}

// NewLagScanner creates a new lag scanner
func NewLagScanner(catalog *config.Catalog, source ObservationSource, prices ReferenceReturns, writer LagPolicyWriter, log zerolog.Logger) *LagScanner {
	return &LagScanner{
		catalog: catalog,
		source:  source,
		prices:  prices,
		writer:  writer,
		log:     log.With().Str("service", "lag_scan").Logger(),
	}
}

// Scan evaluates every lag in [LagMin, LagMax] for the selected factors and,
// unless DryRun, stores the winner as the factor's lag policy.
func (s *LagScanner) Scan(ctx context.Context, opts LagScanOptions) ([]LagScanResult, error) {
	if opts.LagMin == 0 && opts.LagMax == 0 {
		opts.LagMin, opts.LagMax = DefaultLagMin, DefaultLagMax
	}
	if opts.LagMin > opts.LagMax {
		return nil, &domain.ConfigurationError{Field: "lag_range", Reason: fmt.Sprintf("lag min %d exceeds lag max %d", opts.LagMin, opts.LagMax)}
	}
	if opts.MinObs < 3 {
		return nil, &domain.ConfigurationError{Field: "min_obs", Reason: "must be >= 3"}
	}

	wanted := make(map[string]bool, len(opts.Factors))
	for _, code := range opts.Factors {
		wanted[code] = true
	}

	var results []LagScanResult
	for _, spec := range s.catalog.Factors {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		if len(wanted) > 0 && !wanted[spec.Code] {
			continue
		}
		if spec.ReferenceSecurity == "" {
			continue
		}

		result := LagScanResult{FactorCode: spec.Code, ReferenceSecurity: spec.ReferenceSecurity}
		if spec.Frequency == config.FrequencyMonthly {
			result.Skipped = "monthly"
			results = append(results, result)
			continue
		}

		best, candidates, err := s.scanFactor(spec, opts)
		if err != nil {
			return results, err
		}
		result.Candidates = candidates
		result.Best = best

		switch {
		case best == nil:
			result.Skipped = "no_valid_lag"
			s.log.Warn().Str("factor", spec.Code).Int("min_obs", opts.MinObs).Msg("No valid lag")
		case !opts.DryRun:
			if err := s.writer.SetLagPolicy(spec.Code, domain.LagPolicy{Observations: best.Lag}); err != nil {
				return results, fmt.Errorf("failed to store lag policy for %s: %w", spec.Code, err)
			}
			result.Applied = true
		}

		if best != nil {
			s.log.Info().
				Str("factor", spec.Code).
				Str("reference", spec.ReferenceSecurity).
				Int("best_lag", best.Lag).
				Float64("r2", best.R2).
				Float64("beta", best.Beta).
				Int("n_obs", best.NObs).
				Bool("applied", result.Applied).
				Msg("Lag scan result")
		}
		results = append(results, result)
	}

	return results, nil
}

func (s *LagScanner) scanFactor(spec config.FactorSpec, opts LagScanOptions) (*LagCandidate, []LagCandidate, error) {
	obs, err := s.source.GetObservations(spec.Code)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load observations for %s: %w", spec.Code, err)
	}
	returns, err := TransformLevels(spec, obs)
	if err != nil {
		return nil, nil, err
	}
	if len(returns) == 0 {
		return nil, nil, nil
	}

	reference, err := s.prices.ReturnMap(spec.ReferenceSecurity, returns[0].ObservedDate, returns[len(returns)-1].ObservedDate)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load reference returns %s: %w", spec.ReferenceSecurity, err)
	}

	candidates := EvaluateLags(returns, reference, opts.LagMin, opts.LagMax, opts.MinObs)
	return BestLag(candidates), candidates, nil
}

// EvaluateLags fits the reference returns on the factor returns shifted by
// each lag. Lags with fewer than minObs aligned dates, or a non-finite fit,
// are left out.
func EvaluateLags(returns []Return, reference map[time.Time]float64, lagMin, lagMax, minObs int) []LagCandidate {
	var out []LagCandidate
	for lag := lagMin; lag <= lagMax; lag++ {
		shifted := ApplyLag(returns, domain.LagPolicy{Observations: lag}, nil)

		x := make([]float64, 0, len(shifted))
		y := make([]float64, 0, len(shifted))
		for _, r := range shifted {
			ref, ok := reference[r.EffectiveDate]
			if !ok {
				continue
			}
			x = append(x, r.Ret)
			y = append(y, ref)
		}
		if len(x) < minObs {
			continue
		}

		fit, err := formulas.SimpleOLS(y, x)
		if err != nil || fit.R2 == nil {
			continue
		}
		beta, r2 := fit.Betas[0], *fit.R2
		if math.IsNaN(beta) || math.IsInf(beta, 0) || math.IsNaN(r2) || math.IsInf(r2, 0) {
			continue
		}
		out = append(out, LagCandidate{Lag: lag, Beta: beta, R2: r2, NObs: len(x)})
	}
	return out
}

// BestLag orders by R² then |beta|, both descending. Candidates arrive in
// ascending lag order and the sort is stable, so ties keep the smaller lag.
func BestLag(candidates []LagCandidate) *LagCandidate {
	if len(candidates) == 0 {
		return nil
	}
	sorted := make([]LagCandidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].R2 != sorted[j].R2 {
			return sorted[i].R2 > sorted[j].R2
		}
		return math.Abs(sorted[i].Beta) > math.Abs(sorted[j].Beta)
	})
	best := sorted[0]
	return &best
}
