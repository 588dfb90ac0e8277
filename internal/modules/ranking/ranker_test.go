package ranking

import (
	"testing"

	"github.com/aristath/factorrisk/internal/domain"
	"github.com/aristath/factorrisk/internal/modules/betas"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var asOf = domain.MustParseDate("2024-03-29")

func r2(v float64) *float64 { return &v }

func beta(security, factor string, value float64, fit *float64) betas.Beta {
	return betas.Beta{
		SecurityCode: security,
		FactorCode:   factor,
		AsOfDate:     asOf,
		Method:       domain.MethodSingleRaw,
		Beta:         value,
		R2:           fit,
	}
}

func codes(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.SecurityCode
	}
	return out
}

func fixture() []betas.Beta {
	return []betas.Beta{
		beta("005930", "F_A", 1.2, r2(0.40)),
		beta("000660", "F_A", 1.2, r2(0.10)),
		beta("035420", "F_A", -0.3, nil),
		beta("051910", "F_A", 0.8, r2(0.40)),
		beta("068270", "F_A", -0.3, r2(0.05)),
		beta("005930", "F_B", 0.1, r2(0.02)),
	}
}

func TestSlice_SensitivityTieBreaksByCode(t *testing.T) {
	r := NewRanker(3, zerolog.Nop())

	top := r.Slice(asOf, domain.MethodSingleRaw, "F_A", fixture(), AxisSensitivity, SideTop, 3)
	assert.Equal(t, []string{"000660", "005930", "051910"}, codes(top))
	assert.Equal(t, []int{1, 2, 3}, []int{top[0].Rank, top[1].Rank, top[2].Rank})

	bottom := r.Slice(asOf, domain.MethodSingleRaw, "F_A", fixture(), AxisSensitivity, SideBottom, 3)
	assert.Equal(t, []string{"035420", "068270", "051910"}, codes(bottom))
}

func TestSlice_FitExcludesUndefinedR2(t *testing.T) {
	r := NewRanker(5, zerolog.Nop())

	top := r.Slice(asOf, domain.MethodSingleRaw, "F_A", fixture(), AxisFit, SideTop, 10)
	assert.Equal(t, []string{"005930", "051910", "000660", "068270"}, codes(top))

	bottom := r.Slice(asOf, domain.MethodSingleRaw, "F_A", fixture(), AxisFit, SideBottom, 2)
	assert.Equal(t, []string{"068270", "000660"}, codes(bottom))
	assert.Equal(t, 0.05, *bottom[0].R2)
}

func TestSlice_InputOrderDoesNotMatter(t *testing.T) {
	r := NewRanker(5, zerolog.Nop())
	rows := fixture()
	reversed := make([]betas.Beta, len(rows))
	for i := range rows {
		reversed[len(rows)-1-i] = rows[i]
	}

	for _, axis := range []Axis{AxisSensitivity, AxisFit} {
		for _, side := range []Side{SideTop, SideBottom} {
			assert.Equal(t,
				r.Slice(asOf, domain.MethodSingleRaw, "F_A", rows, axis, side, 5),
				r.Slice(asOf, domain.MethodSingleRaw, "F_A", reversed, axis, side, 5),
			)
		}
	}
}

func TestRank_AllFactorsAndSides(t *testing.T) {
	rows := append(fixture(), betas.Beta{SecurityCode: "999999", FactorCode: "F_A", Method: domain.MethodMultiRaw, Beta: 99})
	entries := NewRanker(2, zerolog.Nop()).Rank(asOf, domain.MethodSingleRaw, rows)

	// F_A: 2 per slice on 4 slices; F_B: 1 security on 4 slices
	require.Len(t, entries, 12)
	assert.Equal(t, "F_A", entries[0].FactorCode)
	assert.Equal(t, AxisSensitivity, entries[0].Axis)
	assert.Equal(t, SideTop, entries[0].Side)
	assert.Equal(t, "F_B", entries[11].FactorCode)
	for _, e := range entries {
		assert.NotEqual(t, "999999", e.SecurityCode, "other methods are ignored")
		assert.Equal(t, asOf, e.AsOfDate)
	}
}

func TestNewRanker_DefaultsTopN(t *testing.T) {
	assert.Equal(t, DefaultTopN, NewRanker(0, zerolog.Nop()).TopN())
}

func TestParseAxis(t *testing.T) {
	axis, err := ParseAxis(" fit ")
	require.NoError(t, err)
	assert.Equal(t, AxisFit, axis)

	_, err = ParseAxis("alpha")
	assert.Error(t, err)
}
