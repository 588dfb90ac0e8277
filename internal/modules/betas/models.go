// Package betas estimates security sensitivities to the catalog factors and
// keeps their append-only history in analytics.db.
package betas

import (
	"strings"
	"time"

	"github.com/aristath/factorrisk/internal/domain"
)

// Beta is one estimated sensitivity of a security to a factor
type Beta struct {
	SecurityCode   string        `json:"security_code"`
	FactorCode     string        `json:"factor_code"`
	AsOfDate       time.Time     `json:"as_of_date"`
	Method         domain.Method `json:"method"`
	Beta           float64       `json:"beta"`
	Alpha          float64       `json:"alpha"`
	R2             *float64      `json:"r2"` // nil when the security return has zero variance
	NObs           int           `json:"n_obs"`
	WindowDays     int           `json:"window_days"`
	LookbackWindow string        `json:"lookback_window"`
	RunID          string        `json:"run_id,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

// ReportStatus is the outcome of estimating one security
type ReportStatus string

const (
	StatusOK   ReportStatus = "OK"
	StatusSkip ReportStatus = "SKIP"
	StatusFail ReportStatus = "FAIL"
)

// Report reasons
const (
	ReasonCash            = "cash"
	ReasonPriceEmpty      = "price_empty"
	ReasonNoFactors       = "no_factors"
	ReasonNoFactorOverlap = "no_factor_overlap"
	ReasonThin            = "thin"
	ReasonSingular        = "singular_design"
	ReasonOK              = "ok"
)

// ReportRow is the per-security line of a run report. Status and Reason
// describe the MULTI_RAW regression, ZScoreStatus and ZScoreReason the
// MULTI_ZSCORE one; a skip before any regression sets both pairs.
type ReportRow struct {
	RunID          string       `json:"run_id"`
	SecurityCode   string       `json:"security_code"`
	Status         ReportStatus `json:"status"`
	Reason         string       `json:"reason"`
	ZScoreStatus   ReportStatus `json:"zscore_status"`
	ZScoreReason   string       `json:"zscore_reason"`
	AsOfDate       *time.Time   `json:"as_of_date"`
	NObs           int          `json:"n_obs"`
	OKFactors      []string     `json:"ok_factors"`
	SkippedFactors []string     `json:"skipped_factors"`
}

// JoinFactors renders a factor list the way reports store it
func JoinFactors(codes []string) string {
	return strings.Join(codes, "|")
}

// SplitFactors is the inverse of JoinFactors
func SplitFactors(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "|")
}

// Result is the output of one estimation pass
type Result struct {
	Betas  []Beta
	Report []ReportRow
}

// Count returns the number of betas produced per method
func (r *Result) Count() map[domain.Method]int {
	out := make(map[domain.Method]int, len(domain.AllMethods))
	for _, b := range r.Betas {
		out[b.Method]++
	}
	return out
}

// latestKey groups the rows that share one as-of date. A single-factor
// regression dates each factor by its own sample, so SINGLE rows are picked
// per security and factor; a multi regression dates all of a security's
// betas together.
func latestKey(b Beta) string {
	if b.Method.Mode() == domain.ModeSingle {
		return string(b.Method) + "/" + b.SecurityCode + "/" + b.FactorCode
	}
	return string(b.Method) + "/" + b.SecurityCode
}

// MergeLatest combines stored betas with freshly estimated ones. For each
// security (and factor, for SINGLE methods) the rows of the latest as-of
// date win; fresh rows win a tie.
func MergeLatest(stored, fresh []Beta) []Beta {
	latest := make(map[string]time.Time)
	source := make(map[string]bool) // true when the latest date comes from fresh
	for _, b := range stored {
		k := latestKey(b)
		if t, ok := latest[k]; !ok || b.AsOfDate.After(t) {
			latest[k] = b.AsOfDate
		}
	}
	for _, b := range fresh {
		k := latestKey(b)
		if t, ok := latest[k]; !ok || !b.AsOfDate.Before(t) {
			latest[k] = b.AsOfDate
			source[k] = true
		}
	}

	var out []Beta
	for _, b := range stored {
		k := latestKey(b)
		if !source[k] && b.AsOfDate.Equal(latest[k]) {
			out = append(out, b)
		}
	}
	for _, b := range fresh {
		k := latestKey(b)
		if source[k] && b.AsOfDate.Equal(latest[k]) {
			out = append(out, b)
		}
	}
	return out
}
