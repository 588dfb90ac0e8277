package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMethod_ModeAndTransform(t *testing.T) {
	assert.Equal(t, ModeSingle, MethodSingleRaw.Mode())
	assert.Equal(t, TransformRaw, MethodSingleRaw.Transform())
	assert.Equal(t, ModeMulti, MethodMultiZScore.Mode())
	assert.Equal(t, TransformZScore, MethodMultiZScore.Transform())
	assert.Equal(t, MethodMultiRaw, NewMethod(ModeMulti, TransformRaw))
	assert.Equal(t, MethodSingleZScore, NewMethod(ModeSingle, TransformZScore))
}

func TestParseMethod(t *testing.T) {
	m, err := ParseMethod(" multi_zscore ")
	require.NoError(t, err)
	assert.Equal(t, MethodMultiZScore, m)

	_, err = ParseMethod("OLS_MULTI")
	assert.Error(t, err)
}

func TestDateHelpers(t *testing.T) {
	d, err := ParseDate("2024-03-01")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01", FormatDate(d))
	assert.Equal(t, 29, DaysBetween(MustParseDate("2024-02-01"), d))
	assert.Equal(t, -29, DaysBetween(d, MustParseDate("2024-02-01")))

	_, err = ParseDate("01/03/2024")
	assert.Error(t, err)
}

func TestErrors_As(t *testing.T) {
	wrapped := fmt.Errorf("failed to load settings: %w", &ConfigurationError{Field: "beta_min_obs", Reason: "must be >= 3"})

	var cfgErr *ConfigurationError
	require.True(t, errors.As(wrapped, &cfgErr))
	assert.Equal(t, "beta_min_obs", cfgErr.Field)
	assert.Contains(t, wrapped.Error(), "must be >= 3")

	gap := &DataGapError{Entity: "factor", Code: "F_VOL_VIX", Date: MustParseDate("2024-01-02")}
	assert.Equal(t, "data gap: factor F_VOL_VIX has no observation on 2024-01-02", gap.Error())
}
