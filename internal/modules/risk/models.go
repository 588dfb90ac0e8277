// Package risk decomposes portfolio variance into per-factor contributions.
package risk

import (
	"time"

	"github.com/aristath/factorrisk/internal/domain"
)

// Decomposition is one factor's share of portfolio variance
type Decomposition struct {
	PortfolioDate          time.Time     `json:"portfolio_date"`
	FactorCode             string        `json:"factor_code"`
	Method                 domain.Method `json:"method"`
	BetaAsOfDate           *time.Time    `json:"beta_asof_date"`
	CovNObs                int           `json:"cov_n_obs"`
	ExposureDefined        bool          `json:"exposure_defined"`
	MarginalVarContrib     float64       `json:"marginal_var_contrib"`
	VarContrib             float64       `json:"var_contrib"`
	VarContribPct          *float64      `json:"var_contrib_pct"` // nil when total variance is 0
	PortfolioVarianceTotal float64       `json:"portfolio_variance_total"`
	PortfolioAnnVolTotal   float64       `json:"portfolio_ann_vol_total"`
	Stale                  bool          `json:"stale"`
	StalenessDays          *int          `json:"staleness_days"`
}

// CovarianceSnapshot is the exact factor covariance matrix a decomposition used.
// Only the matrix payload is msgpack encoded; the key columns live in SQL.
type CovarianceSnapshot struct {
	PortfolioDate time.Time     `json:"portfolio_date" msgpack:"-"`
	Method        domain.Method `json:"method" msgpack:"-"`
	FactorCodes   []string      `json:"factor_codes" msgpack:"factor_codes"`
	NObs          int           `json:"n_obs" msgpack:"n_obs"`
	WindowStart   time.Time     `json:"window_start" msgpack:"-"`
	WindowEnd     time.Time     `json:"window_end" msgpack:"-"`
	Matrix        [][]float64   `json:"matrix" msgpack:"matrix"`
}

// Result is the decomposer output for one (portfolio date, method)
type Result struct {
	Rows       []Decomposition
	Covariance *CovarianceSnapshot
}
