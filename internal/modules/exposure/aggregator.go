package exposure

import (
	"math"
	"time"

	"github.com/aristath/factorrisk/internal/domain"
	"github.com/aristath/factorrisk/internal/modules/betas"
	"github.com/aristath/factorrisk/internal/modules/portfolio"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Aggregator computes portfolio exposures for one method at a time
type Aggregator struct {
	cfg Config
	log zerolog.Logger
}

// NewAggregator creates a new exposure aggregator
func NewAggregator(cfg Config, log zerolog.Logger) *Aggregator {
	return &Aggregator{
		cfg: cfg,
		log: log.With().Str("component", "exposure_aggregator").Logger(),
	}
}

// Aggregate builds one exposure row per factor in factorCodes.
//
// betaRows must already be the latest rows per security for method. A
// position without a beta for a factor adds nothing to the weighted sum but
// its eval still counts in the total denominator; the covered measures use
// only positions that have a beta. A factor no position has a beta for gets
// an undefined total rather than zero. A non-positive total eval makes every
// exposure undefined and is returned as InsufficientObservationsError.
func (a *Aggregator) Aggregate(portfolioDate time.Time, method domain.Method, factorCodes []string, positions []portfolio.Position, betaRows []betas.Beta) ([]Exposure, error) {
	totalEval := 0.0
	for _, p := range positions {
		totalEval += p.EvalAmount
	}
	if totalEval <= 0 {
		return nil, &domain.InsufficientObservationsError{
			Stage: "exposure",
			Key:   domain.FormatDate(portfolioDate) + "/" + string(method),
			Have:  0,
			Need:  1,
		}
	}

	lookup := make(map[string]map[string]betas.Beta)
	for _, b := range betaRows {
		if b.Method != method {
			continue
		}
		if lookup[b.SecurityCode] == nil {
			lookup[b.SecurityCode] = make(map[string]betas.Beta)
		}
		lookup[b.SecurityCode][b.FactorCode] = b
	}

	out := make([]Exposure, 0, len(factorCodes))
	for _, factor := range factorCodes {
		row := Exposure{
			PortfolioDate:   portfolioDate,
			FactorCode:      factor,
			Method:          method,
			NPositionsTotal: len(positions),
			TotalEval:       totalEval,
		}

		var weighted float64
		var asOf *time.Time
		for _, p := range positions {
			value, date, ok := a.betaFor(lookup, p, factor, portfolioDate)
			if !ok {
				continue
			}
			row.NPositionsCovered++
			row.CoveredEval += p.EvalAmount
			weighted += p.EvalAmount * value
			if date != nil && (asOf == nil || date.After(*asOf)) {
				d := *date
				asOf = &d
			}
		}

		row.BetaAsOfDate = asOf
		row.CoveredPct = coveredPct(row.CoveredEval, totalEval, row.NPositionsCovered == row.NPositionsTotal)

		if row.NPositionsCovered > 0 {
			total := weighted / totalEval
			row.BetaWeightedTotal = &total
			row.AnnSensitivityTotal = a.annualize(total)
		}
		if row.CoveredEval != 0 {
			covered := weighted / row.CoveredEval
			row.BetaWeightedCovered = &covered
			row.AnnSensitivityCovered = a.annualize(covered)
		}

		if asOf != nil {
			days := domain.DaysBetween(*asOf, portfolioDate)
			if days > a.cfg.MaxStalenessDays {
				row.Stale = true
				row.StalenessDays = &days
				a.log.Warn().
					Err(&domain.InconsistentAsOfError{PortfolioDate: portfolioDate, BetaAsOf: *asOf, Days: days, Bound: a.cfg.MaxStalenessDays}).
					Str("factor", factor).
					Str("method", string(method)).
					Msg("Stale betas")
			}
		}

		out = append(out, row)
	}
	return out, nil
}

// betaFor returns the beta of position p on factor, with the as-of date it
// carries. CASH is covered with beta 0 only when configured.
func (a *Aggregator) betaFor(lookup map[string]map[string]betas.Beta, p portfolio.Position, factor string, portfolioDate time.Time) (float64, *time.Time, bool) {
	if p.IsCash() {
		if a.cfg.CashBetaZero {
			return 0, nil, true
		}
		return 0, nil, false
	}
	b, ok := lookup[p.SecurityCode][factor]
	if !ok || b.AsOfDate.After(portfolioDate) {
		return 0, nil, false
	}
	date := b.AsOfDate
	return b.Beta, &date, true
}

func (a *Aggregator) annualize(v float64) *float64 {
	ann := v * math.Sqrt(float64(a.cfg.TradingDays)) * 100
	return &ann
}

// coveredPct is covered/total x 100 rounded half away from zero to two
// decimals and clamped to [0, 100]. Full coverage is exactly 100.
func coveredPct(covered, total float64, full bool) float64 {
	if full {
		return 100
	}
	pct, _ := decimal.NewFromFloat(covered / total * 100).Round(2).Float64()
	return math.Min(100, math.Max(0, pct))
}
