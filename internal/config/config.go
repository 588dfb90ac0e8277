// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/factorrisk/internal/domain"
	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir           string // Base directory for all databases (always absolute)
	ReportDir         string // Where CSV/XLSX reports are written
	FactorCatalogPath string // Optional YAML catalog; empty uses the built-in catalog
	FREDAPIKey        string
	ECOSAPIKey        string
	LogLevel          string
	LogPretty         bool
	Port              int
	DevMode           bool
	Analytics         AnalyticsConfig
	Schedules         ScheduleConfig
	R2                R2Config
}

// AnalyticsConfig is the numeric configuration surface of the pipeline.
// None of these are hard-coded per security; all come from env or settings.
type AnalyticsConfig struct {
	ZScoreWindow     int
	BetaWindowDays   int
	BetaLookback     string // "2y", "18m", "400d"
	BetaMinObs       int
	TradingDays      int
	CovWindowDays    int
	RankingTopN      int
	MaxStalenessDays int
	CashBetaZero     bool
	Workers          int
}

// ScheduleConfig holds cron expressions (with seconds) for background jobs
type ScheduleConfig struct {
	FactorSync    string
	Pipeline      string
	Maintenance   string
	CacheCleanup  string
	SchedulerTZ   string
	RunOnStartup  bool
	ReportPublish bool
}

// R2Config holds Cloudflare R2 (S3-compatible) credentials for report publishing
type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
}

// Enabled reports whether all R2 credentials are present
func (r R2Config) Enabled() bool {
	return r.AccountID != "" && r.AccessKeyID != "" && r.SecretAccessKey != "" && r.Bucket != ""
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("FACTORRISK_DATA_DIR", "./data")

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	analytics, err := loadAnalyticsConfig()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DataDir:           absDataDir,
		ReportDir:         getEnv("FACTORRISK_REPORT_DIR", filepath.Join(absDataDir, "reports")),
		FactorCatalogPath: getEnv("FACTOR_CATALOG", ""),
		FREDAPIKey:        getEnv("FRED_API_KEY", ""),
		ECOSAPIKey:        getEnv("ECOS_API_KEY", ""),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogPretty:         getEnvAsBool("LOG_PRETTY", true),
		Port:              getEnvAsInt("PORT", 8010),
		DevMode:           getEnvAsBool("DEV_MODE", false),
		Analytics:         analytics,
		Schedules:         loadScheduleConfig(),
		R2: R2Config{
			AccountID:       getEnv("R2_ACCOUNT_ID", ""),
			AccessKeyID:     getEnv("R2_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("R2_SECRET_ACCESS_KEY", ""),
			Bucket:          getEnv("R2_BUCKET", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DefaultAnalyticsConfig returns the defaults used when nothing is configured
func DefaultAnalyticsConfig() AnalyticsConfig {
	return AnalyticsConfig{
		ZScoreWindow:     252,
		BetaWindowDays:   252,
		BetaLookback:     "2y",
		BetaMinObs:       60,
		TradingDays:      252,
		CovWindowDays:    252,
		RankingTopN:      5,
		MaxStalenessDays: 7,
		CashBetaZero:     false,
		Workers:          0,
	}
}

func loadAnalyticsConfig() (AnalyticsConfig, error) {
	d := DefaultAnalyticsConfig()
	r := &strictEnv{}
	a := AnalyticsConfig{
		ZScoreWindow:     r.int("ZSCORE_WINDOW", d.ZScoreWindow),
		BetaWindowDays:   r.int("BETA_WINDOW_DAYS", d.BetaWindowDays),
		BetaLookback:     getEnv("BETA_LOOKBACK", d.BetaLookback),
		BetaMinObs:       r.int("BETA_MIN_OBS", d.BetaMinObs),
		TradingDays:      r.int("TRADING_DAYS", d.TradingDays),
		CovWindowDays:    r.int("COV_WINDOW_DAYS", d.CovWindowDays),
		RankingTopN:      r.int("RANKING_TOP_N", d.RankingTopN),
		MaxStalenessDays: r.int("MAX_STALENESS_DAYS", d.MaxStalenessDays),
		CashBetaZero:     getEnvAsBool("CASH_BETA_ZERO", d.CashBetaZero),
		Workers:          r.int("PIPELINE_WORKERS", d.Workers),
	}
	return a, r.err
}

// strictEnv reads numeric analytics settings. Unlike getEnvAsInt, a value
// that is set but unparsable is remembered as a configuration error.
type strictEnv struct {
	err error
}

func (r *strictEnv) int(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		if r.err == nil {
			r.err = &domain.ConfigurationError{Field: key, Reason: fmt.Sprintf("not an integer: %q", value)}
		}
		return defaultValue
	}
	return n
}

func loadScheduleConfig() ScheduleConfig {
	return ScheduleConfig{
		FactorSync:    getEnv("SCHEDULE_FACTOR_SYNC", "0 0 6 * * *"),
		Pipeline:      getEnv("SCHEDULE_PIPELINE", "0 30 6 * * *"),
		Maintenance:   getEnv("SCHEDULE_MAINTENANCE", "0 0 3 * * *"),
		CacheCleanup:  getEnv("SCHEDULE_CACHE_CLEANUP", "0 0 4 * * *"),
		SchedulerTZ:   getEnv("SCHEDULER_TZ", "Asia/Seoul"),
		RunOnStartup:  getEnvAsBool("RUN_ON_STARTUP", false),
		ReportPublish: getEnvAsBool("REPORT_PUBLISH", false),
	}
}

// SettingsGetter is the read side of the settings repository
type SettingsGetter interface {
	Get(key string) (*string, error)
}

// UpdateFromSettings overlays values stored in the settings database.
// Settings DB values take precedence over environment variables; an
// unparsable stored value is a configuration error, never silently ignored.
func (c *Config) UpdateFromSettings(settingsRepo SettingsGetter) error {
	ints := []struct {
		key string
		dst *int
	}{
		{"zscore_window", &c.Analytics.ZScoreWindow},
		{"beta_window_days", &c.Analytics.BetaWindowDays},
		{"beta_min_obs", &c.Analytics.BetaMinObs},
		{"trading_days", &c.Analytics.TradingDays},
		{"cov_window_days", &c.Analytics.CovWindowDays},
		{"ranking_top_n", &c.Analytics.RankingTopN},
		{"max_staleness_days", &c.Analytics.MaxStalenessDays},
	}

	for _, s := range ints {
		value, err := settingsRepo.Get(s.key)
		if err != nil {
			return fmt.Errorf("failed to get %s from settings: %w", s.key, err)
		}
		if value == nil || *value == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(*value))
		if err != nil {
			return &domain.ConfigurationError{Field: s.key, Reason: fmt.Sprintf("not an integer: %q", *value)}
		}
		*s.dst = n
	}

	lookback, err := settingsRepo.Get("beta_lookback")
	if err != nil {
		return fmt.Errorf("failed to get beta_lookback from settings: %w", err)
	}
	if lookback != nil && *lookback != "" {
		c.Analytics.BetaLookback = *lookback
	}

	cashZero, err := settingsRepo.Get("cash_beta_zero")
	if err != nil {
		return fmt.Errorf("failed to get cash_beta_zero from settings: %w", err)
	}
	if cashZero != nil && *cashZero != "" {
		b, err := strconv.ParseBool(*cashZero)
		if err != nil {
			return &domain.ConfigurationError{Field: "cash_beta_zero", Reason: fmt.Sprintf("not a boolean: %q", *cashZero)}
		}
		c.Analytics.CashBetaZero = b
	}

	fredKey, err := settingsRepo.Get("fred_api_key")
	if err != nil {
		return fmt.Errorf("failed to get fred_api_key from settings: %w", err)
	}
	if fredKey != nil && *fredKey != "" {
		c.FREDAPIKey = *fredKey
	}

	ecosKey, err := settingsRepo.Get("ecos_api_key")
	if err != nil {
		return fmt.Errorf("failed to get ecos_api_key from settings: %w", err)
	}
	if ecosKey != nil && *ecosKey != "" {
		c.ECOSAPIKey = *ecosKey
	}

	schedules := []struct {
		key    string
		target *string
	}{
		{"schedule_factor_sync", &c.Schedules.FactorSync},
		{"schedule_pipeline", &c.Schedules.Pipeline},
		{"schedule_maintenance", &c.Schedules.Maintenance},
		{"schedule_cache_cleanup", &c.Schedules.CacheCleanup},
	}
	for _, s := range schedules {
		value, err := settingsRepo.Get(s.key)
		if err != nil {
			return fmt.Errorf("failed to get %s from settings: %w", s.key, err)
		}
		if value != nil && *value != "" {
			*s.target = *value
		}
	}

	return c.Validate()
}

// Validate checks the configuration and returns a *domain.ConfigurationError
// for the first invalid field.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return &domain.ConfigurationError{Field: "PORT", Reason: fmt.Sprintf("out of range: %d", c.Port)}
	}
	return c.Analytics.Validate()
}

// Validate checks window, lookback and minimum-observation settings
func (a AnalyticsConfig) Validate() error {
	if a.ZScoreWindow < 2 {
		return &domain.ConfigurationError{Field: "zscore_window", Reason: "must be >= 2"}
	}
	if a.BetaWindowDays < 2 {
		return &domain.ConfigurationError{Field: "beta_window_days", Reason: "must be >= 2"}
	}
	if a.BetaMinObs < 3 {
		return &domain.ConfigurationError{Field: "beta_min_obs", Reason: "must be >= 3"}
	}
	if a.BetaMinObs > a.BetaWindowDays {
		return &domain.ConfigurationError{
			Field:  "beta_min_obs",
			Reason: fmt.Sprintf("%d exceeds beta_window_days %d", a.BetaMinObs, a.BetaWindowDays),
		}
	}
	if _, err := ParseLookback(a.BetaLookback); err != nil {
		return &domain.ConfigurationError{Field: "beta_lookback", Reason: err.Error()}
	}
	if a.TradingDays < 1 {
		return &domain.ConfigurationError{Field: "trading_days", Reason: "must be >= 1"}
	}
	if a.CovWindowDays < 2 {
		return &domain.ConfigurationError{Field: "cov_window_days", Reason: "must be >= 2"}
	}
	if a.RankingTopN < 1 {
		return &domain.ConfigurationError{Field: "ranking_top_n", Reason: "must be >= 1"}
	}
	if a.MaxStalenessDays < 0 {
		return &domain.ConfigurationError{Field: "max_staleness_days", Reason: "must be >= 0"}
	}
	if a.Workers < 0 {
		return &domain.ConfigurationError{Field: "PIPELINE_WORKERS", Reason: "must be >= 0"}
	}
	return nil
}

// Lookback is a calendar horizon such as "2y", "18m" or "400d"
type Lookback struct {
	Years, Months, Days int
}

// ParseLookback parses a lookback horizon string
func ParseLookback(s string) (Lookback, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) < 2 {
		return Lookback{}, fmt.Errorf("invalid lookback %q", s)
	}
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n <= 0 {
		return Lookback{}, fmt.Errorf("invalid lookback %q", s)
	}
	switch s[len(s)-1] {
	case 'y':
		return Lookback{Years: n}, nil
	case 'm':
		return Lookback{Months: n}, nil
	case 'd':
		return Lookback{Days: n}, nil
	}
	return Lookback{}, fmt.Errorf("invalid lookback unit in %q", s)
}

// Start returns the first date inside the horizon ending at asOf
func (l Lookback) Start(asOf time.Time) time.Time {
	return asOf.AddDate(-l.Years, -l.Months, -l.Days)
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string) (float64, bool) {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}
