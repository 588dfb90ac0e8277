package risk

import (
	"math"
	"sort"
	"time"

	"github.com/aristath/factorrisk/internal/domain"
	"github.com/aristath/factorrisk/internal/modules/exposure"
	"github.com/aristath/factorrisk/internal/modules/factors"
	"github.com/aristath/factorrisk/pkg/formulas"
	"github.com/rs/zerolog"
)

// Config holds the decomposition settings
type Config struct {
	CovWindowDays int
	TradingDays   int
}

// Decomposer computes covariance-based variance contributions
type Decomposer struct {
	cfg Config
	log zerolog.Logger
}

// NewDecomposer creates a new risk decomposer
func NewDecomposer(cfg Config, log zerolog.Logger) *Decomposer {
	return &Decomposer{
		cfg: cfg,
		log: log.With().Str("component", "risk_decomposer").Logger(),
	}
}

// Decompose splits portfolio variance across the factors that have an
// exposure row, in catalog order.
//
// The covariance window is the intersection of dates on which every
// in-scope factor has a return, on or before the beta as-of date, trimmed
// to the most recent CovWindowDays. An exposure factor without returns is
// kept out of the window and gets a row with an undefined exposure and no
// contribution. Fewer than two dates yields an InsufficientObservationsError
// and no rows.
func (d *Decomposer) Decompose(portfolioDate time.Time, method domain.Method, catalogOrder []string, exposures []exposure.Exposure, set *factors.Set) (*Result, error) {
	byFactor := make(map[string]exposure.Exposure, len(exposures))
	for _, e := range exposures {
		byFactor[e.FactorCode] = e
	}

	var codes, scoped []string
	var bound *time.Time
	for _, code := range catalogOrder {
		e, ok := byFactor[code]
		if !ok {
			continue
		}
		codes = append(codes, code)
		if series := set.Get(code); series == nil || len(series.Points) == 0 {
			continue
		}
		scoped = append(scoped, code)
		if e.BetaAsOfDate != nil && (bound == nil || e.BetaAsOfDate.After(*bound)) {
			b := *e.BetaAsOfDate
			bound = &b
		}
	}
	key := domain.FormatDate(portfolioDate) + "/" + string(method)
	if len(codes) == 0 {
		return nil, &domain.InsufficientObservationsError{Stage: "risk", Key: key, Have: 0, Need: 1}
	}

	end := portfolioDate
	if bound != nil {
		end = *bound
	}
	dates, columns := d.commonWindow(scoped, set, method.Transform(), end)
	if len(dates) < 2 {
		return nil, &domain.InsufficientObservationsError{Stage: "risk", Key: key, Have: len(dates), Need: 2}
	}

	cov, err := formulas.CovarianceMatrix(columns)
	if err != nil {
		return nil, err
	}

	k := len(scoped)
	b := make([]float64, k)
	defined := make([]bool, k)
	index := make(map[string]int, k)
	for i, code := range scoped {
		index[code] = i
		if v := byFactor[code].BetaWeightedTotal; v != nil {
			b[i] = *v
			defined[i] = true
		}
	}

	mctr := make([]float64, k)
	vc := make([]float64, k)
	total := 0.0
	for i := 0; i < k; i++ {
		for j := 0; j < k; j++ {
			mctr[i] += cov[i][j] * b[j]
		}
		vc[i] = b[i] * mctr[i]
		total += vc[i]
	}
	annVol := math.Sqrt(math.Max(total, 0) * float64(d.cfg.TradingDays))

	rows := make([]Decomposition, len(codes))
	for n, code := range codes {
		e := byFactor[code]
		row := Decomposition{
			PortfolioDate:          portfolioDate,
			FactorCode:             code,
			Method:                 method,
			BetaAsOfDate:           e.BetaAsOfDate,
			PortfolioVarianceTotal: total,
			PortfolioAnnVolTotal:   annVol,
			Stale:                  e.Stale,
			StalenessDays:          e.StalenessDays,
		}
		if i, ok := index[code]; ok {
			row.CovNObs = len(dates)
			row.ExposureDefined = defined[i]
			row.MarginalVarContrib = mctr[i]
			row.VarContrib = vc[i]
			if total != 0 {
				pct := vc[i] / total * 100
				row.VarContribPct = &pct
			}
		}
		rows[n] = row
	}

	d.log.Debug().
		Str("method", string(method)).
		Int("factors", k).
		Int("without_returns", len(codes)-k).
		Int("cov_n_obs", len(dates)).
		Float64("ann_vol", annVol).
		Msg("Risk decomposed")

	return &Result{
		Rows: rows,
		Covariance: &CovarianceSnapshot{
			PortfolioDate: portfolioDate,
			Method:        method,
			FactorCodes:   scoped,
			NObs:          len(dates),
			WindowStart:   dates[0],
			WindowEnd:     dates[len(dates)-1],
			Matrix:        cov,
		},
	}, nil
}

// commonWindow returns the shared dates and one value column per factor
func (d *Decomposer) commonWindow(codes []string, set *factors.Set, t domain.Transform, end time.Time) ([]time.Time, [][]float64) {
	if len(codes) == 0 {
		return nil, nil
	}
	lookups := make([]map[time.Time]float64, len(codes))
	for i, code := range codes {
		series := set.Get(code)
		if series == nil {
			return nil, nil
		}
		lookups[i] = series.Lookup(t)
	}

	var dates []time.Time
	for date := range lookups[0] {
		if date.After(end) {
			continue
		}
		shared := true
		for _, lookup := range lookups[1:] {
			if _, ok := lookup[date]; !ok {
				shared = false
				break
			}
		}
		if shared {
			dates = append(dates, date)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	if len(dates) > d.cfg.CovWindowDays {
		dates = dates[len(dates)-d.cfg.CovWindowDays:]
	}

	columns := make([][]float64, len(codes))
	for i, lookup := range lookups {
		col := make([]float64, len(dates))
		for n, date := range dates {
			col[n] = lookup[date]
		}
		columns[i] = col
	}
	return dates, columns
}
