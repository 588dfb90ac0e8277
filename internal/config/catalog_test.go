package config

import (
	"errors"
	"testing"

	"github.com/aristath/factorrisk/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCatalog_Default(t *testing.T) {
	c, err := LoadCatalog("")
	require.NoError(t, err)

	us10y, ok := c.Get("F_RATE_US10Y")
	require.True(t, ok)
	assert.Equal(t, RetDuration, us10y.RetType)
	assert.Equal(t, 8.5, us10y.Duration)

	hy, ok := c.Get("F_CREDIT_US_HY_OAS")
	require.True(t, ok)
	assert.Equal(t, 4.5, hy.Duration)

	ig, ok := c.Get("F_CREDIT_US_IG_OAS")
	require.True(t, ok)
	assert.Equal(t, 6.0, ig.Duration)

	cpi, ok := c.Get("F_INFL_KR_CPI")
	require.True(t, ok)
	lag, err := cpi.Lag()
	require.NoError(t, err)
	assert.Equal(t, 1, lag.Months)

	assert.Equal(t, "F_GROWTH_US_EQ", c.Codes()[0])
}

func TestParseCatalog_DurationOverrideFromEnv(t *testing.T) {
	t.Setenv("DURATION_F_X", "7.25")

	c, err := ParseCatalog([]byte(`
factors:
  - code: F_X
    ret_type: duration_return
    duration: 8.5
`))
	require.NoError(t, err)
	assert.Equal(t, 7.25, c.Factors[0].Duration)
	assert.Equal(t, FrequencyDaily, c.Factors[0].Frequency)
}

func TestParseCatalog_Invalid(t *testing.T) {
	tests := map[string]string{
		"duplicate": `
factors:
  - {code: F_A, ret_type: log_return}
  - {code: F_A, ret_type: log_return}`,
		"missing duration": `
factors:
  - {code: F_A, ret_type: duration_return}`,
		"unknown ret type": `
factors:
  - {code: F_A, ret_type: pct_change}`,
		"bad lag": `
factors:
  - {code: F_A, ret_type: log_return, lag_policy: soon}`,
		"bad frequency": `
factors:
  - {code: F_A, ret_type: log_return, frequency: W}`,
		"empty": `factors: []`,
	}

	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(doc))
			var cfgErr *domain.ConfigurationError
			assert.True(t, errors.As(err, &cfgErr), "expected ConfigurationError, got %v", err)
		})
	}
}
