// Package exposure aggregates security betas into portfolio factor exposures.
package exposure

import (
	"time"

	"github.com/aristath/factorrisk/internal/domain"
)

// Exposure is the beta-weighted sensitivity of the portfolio to one factor.
// Pointer fields are nil when the value is undefined.
type Exposure struct {
	PortfolioDate         time.Time     `json:"portfolio_date"`
	FactorCode            string        `json:"factor_code"`
	Method                domain.Method `json:"method"`
	BetaAsOfDate          *time.Time    `json:"beta_asof_date"`
	NPositionsTotal       int           `json:"n_positions_total"`
	NPositionsCovered     int           `json:"n_positions_covered"`
	TotalEval             float64       `json:"total_eval"`
	CoveredEval           float64       `json:"covered_eval"`
	CoveredPct            float64       `json:"covered_pct"`
	BetaWeightedTotal     *float64      `json:"beta_weighted_total"`
	BetaWeightedCovered   *float64      `json:"beta_weighted_covered"`
	AnnSensitivityTotal   *float64      `json:"ann_sensitivity_total"`
	AnnSensitivityCovered *float64      `json:"ann_sensitivity_covered"`
	Stale                 bool          `json:"stale"`
	StalenessDays         *int          `json:"staleness_days"`
}

// Config holds the aggregation settings
type Config struct {
	TradingDays      int
	MaxStalenessDays int
	CashBetaZero     bool
}
