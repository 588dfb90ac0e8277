package settings

import "strings"

// LagPolicyPrefix prefixes per-factor lag overrides, e.g. "lag_policy.F_RATE_US10Y"
const LagPolicyPrefix = "lag_policy."

// SettingDefaults holds the documented defaults of every recognized setting.
// Values here mirror the environment defaults; the settings DB only stores overrides.
var SettingDefaults = map[string]interface{}{
	// Normalizer
	"zscore_window": 252.0, // trailing z-score window W

	// Beta estimator
	"beta_window_days": 252.0, // regression window (observations)
	"beta_lookback":    "2y",  // lookback horizon: Ny, Nm or Nd
	"beta_min_obs":     60.0,  // minimum aligned observations per regression
	"cash_beta_zero":   false, // treat CASH as covered with beta 0

	// Exposure / risk / ranking
	"trading_days":       252.0, // annualization constant
	"cov_window_days":    252.0, // covariance window N
	"ranking_top_n":      5.0,   // top/bottom slice size
	"max_staleness_days": 7.0,   // beta as-of vs portfolio date bound

	// Data sources
	"fred_api_key": "",
	"ecos_api_key": "",

	// Job schedules (cron with seconds)
	"schedule_factor_sync":   "0 0 6 * * *",
	"schedule_pipeline":      "0 30 6 * * *",
	"schedule_maintenance":   "0 0 3 * * *",
	"schedule_cache_cleanup": "0 0 4 * * *",
}

// SettingDescriptions documents each setting for the API
var SettingDescriptions = map[string]string{
	"zscore_window":          "Trailing window for factor return z-scores",
	"beta_window_days":       "Number of most recent aligned observations per regression",
	"beta_lookback":          "Lookback horizon for security returns (e.g. 2y, 18m, 400d)",
	"beta_min_obs":           "Minimum aligned observations; fewer leaves the beta undefined",
	"cash_beta_zero":         "Count CASH as covered with an explicit beta of 0",
	"trading_days":           "Trading days per year used for annualization",
	"cov_window_days":        "Most recent common dates used for the factor covariance",
	"ranking_top_n":          "Size of top and bottom ranking slices",
	"max_staleness_days":     "Days a beta as-of date may trail the portfolio date before rows are flagged stale",
	"fred_api_key":           "FRED API key",
	"ecos_api_key":           "Bank of Korea ECOS API key",
	"schedule_factor_sync":   "Cron schedule for the factor sync job",
	"schedule_pipeline":      "Cron schedule for the daily pipeline",
	"schedule_maintenance":   "Cron schedule for database maintenance",
	"schedule_cache_cleanup": "Cron schedule for API cache cleanup",
}

// secretKeys are masked when settings are listed
var secretKeys = map[string]bool{
	"fred_api_key": true,
	"ecos_api_key": true,
}

// Setting is a single setting as served by the API
type Setting struct {
	Key         string      `json:"key"`
	Value       interface{} `json:"value"`
	Default     interface{} `json:"default,omitempty"`
	Description string      `json:"description,omitempty"`
	Overridden  bool        `json:"overridden"`
}

// SettingUpdate is the request body for updating a setting
type SettingUpdate struct {
	Value interface{} `json:"value"`
}

// IsKnownKey reports whether key is a recognized setting or a lag policy override
func IsKnownKey(key string) bool {
	if _, ok := SettingDefaults[key]; ok {
		return true
	}
	return strings.HasPrefix(key, LagPolicyPrefix) && len(key) > len(LagPolicyPrefix)
}

// LagPolicyKey returns the settings key holding the lag override for a factor
func LagPolicyKey(factorCode string) string {
	return LagPolicyPrefix + factorCode
}
