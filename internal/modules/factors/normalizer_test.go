package factors

import (
	"math"
	"testing"
	"time"

	"github.com/aristath/factorrisk/internal/config"
	"github.com/aristath/factorrisk/internal/domain"
	"github.com/aristath/factorrisk/pkg/formulas"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) time.Time { return domain.MustParseDate(s) }

func obsSeries(code string, start string, levels ...float64) []Observation {
	out := make([]Observation, len(levels))
	day := d(start)
	for i, l := range levels {
		out[i] = Observation{FactorCode: code, Date: day.AddDate(0, 0, i), Level: l}
	}
	return out
}

func TestTransformLevels_LogReturn(t *testing.T) {
	spec := config.FactorSpec{Code: "F_EQ", RetType: config.RetLog}
	returns, err := TransformLevels(spec, obsSeries("F_EQ", "2024-01-01", 100, 110, 99))
	require.NoError(t, err)
	require.Len(t, returns, 2)

	assert.Equal(t, d("2024-01-02"), returns[0].ObservedDate)
	assert.InDelta(t, math.Log(110.0/100.0), returns[0].Ret, 1e-12)
	assert.InDelta(t, math.Log(99.0/110.0), returns[1].Ret, 1e-12)
	require.NotNil(t, returns[1].RawLevel)
	assert.Equal(t, 99.0, *returns[1].RawLevel)
}

func TestTransformLevels_LogReturnDropsNonPositive(t *testing.T) {
	spec := config.FactorSpec{Code: "F_EQ", RetType: config.RetLog}
	returns, err := TransformLevels(spec, obsSeries("F_EQ", "2024-01-01", 100, 0, -5, 105))
	require.NoError(t, err)
	require.Len(t, returns, 1)
	assert.Equal(t, d("2024-01-04"), returns[0].ObservedDate)
	assert.InDelta(t, math.Log(1.05), returns[0].Ret, 1e-12)
}

func TestTransformLevels_DiffPP(t *testing.T) {
	spec := config.FactorSpec{Code: "F_CURVE", RetType: config.RetDiffPP}
	returns, err := TransformLevels(spec, obsSeries("F_CURVE", "2024-01-01", 0.50, 0.35, -0.10))
	require.NoError(t, err)
	require.Len(t, returns, 2)
	assert.InDelta(t, -0.15, returns[0].Ret, 1e-12)
	assert.InDelta(t, -0.45, returns[1].Ret, 1e-12)
}

func TestTransformLevels_Duration(t *testing.T) {
	spec := config.FactorSpec{Code: "F_RATE", RetType: config.RetDuration, Duration: 8.5}
	returns, err := TransformLevels(spec, obsSeries("F_RATE", "2024-01-01", 4.00, 4.10))
	require.NoError(t, err)
	require.Len(t, returns, 1)
	// A 10bp rise with duration 8.5 is a -0.85% price return
	assert.InDelta(t, -0.0085, returns[0].Ret, 1e-12)
}

func TestTransformLevels_DurationRequiresConfiguration(t *testing.T) {
	spec := config.FactorSpec{Code: "F_RATE", RetType: config.RetDuration}
	_, err := TransformLevels(spec, obsSeries("F_RATE", "2024-01-01", 4.0, 4.1))
	var cfgErr *domain.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestTransformLevels_SingleObservationHasNoReturn(t *testing.T) {
	spec := config.FactorSpec{Code: "F_EQ", RetType: config.RetLog}
	returns, err := TransformLevels(spec, obsSeries("F_EQ", "2024-01-01", 100))
	require.NoError(t, err)
	assert.Empty(t, returns)
}

func TestApplyLag_ObservationShift(t *testing.T) {
	returns := []Return{
		{ObservedDate: d("2024-01-02"), Ret: 0.1},
		{ObservedDate: d("2024-01-03"), Ret: 0.2},
		{ObservedDate: d("2024-01-05"), Ret: 0.3},
	}

	lagged := ApplyLag(returns, domain.LagPolicy{Observations: 1}, nil)
	require.Len(t, lagged, 2)
	assert.Equal(t, d("2024-01-02"), lagged[0].ObservedDate)
	assert.Equal(t, d("2024-01-03"), lagged[0].EffectiveDate)
	// Shift follows the series' own dates, skipping the gap on the 4th
	assert.Equal(t, d("2024-01-05"), lagged[1].EffectiveDate)
	assert.Equal(t, 0.2, lagged[1].Ret)
	assert.Equal(t, "1", lagged[1].LagPolicy)

	back := ApplyLag(returns, domain.LagPolicy{Observations: -1}, nil)
	require.Len(t, back, 2)
	assert.Equal(t, d("2024-01-03"), back[0].ObservedDate)
	assert.Equal(t, d("2024-01-02"), back[0].EffectiveDate)

	same := ApplyLag(returns, domain.LagPolicy{}, nil)
	require.Len(t, same, 3)
	for _, r := range same {
		assert.Equal(t, r.ObservedDate, r.EffectiveDate)
	}
}

func TestApplyLag_MonthlyPlacement(t *testing.T) {
	returns := []Return{
		{ObservedDate: d("2024-01-01"), Ret: 0.004},
		{ObservedDate: d("2024-02-01"), Ret: -0.002},
	}
	// 2024-02-01 falls on no calendar date; the next one is the 5th
	calendar := []time.Time{d("2024-01-31"), d("2024-02-05"), d("2024-02-06"), d("2024-03-01"), d("2024-03-04")}

	lagged := ApplyLag(returns, domain.LagPolicy{Months: 1}, calendar)
	require.Len(t, lagged, 2)
	assert.Equal(t, d("2024-02-05"), lagged[0].EffectiveDate)
	assert.Equal(t, d("2024-03-01"), lagged[1].EffectiveDate)
	assert.Equal(t, "1M", lagged[0].LagPolicy)

	points := EffectiveSeries("F_CPI", lagged, domain.LagPolicy{Months: 1}, calendar)
	require.Len(t, points, 4)
	assert.Equal(t, d("2024-02-05"), points[0].Date)
	assert.Equal(t, 0.004, points[0].Ret)
	assert.Equal(t, 0.0, points[1].Ret, "non-effective day carries zero")
	assert.Equal(t, -0.002, points[2].Ret)
	assert.Equal(t, 0.0, points[3].Ret)
}

func TestApplyLag_MonthlyBeyondCalendarDropped(t *testing.T) {
	returns := []Return{{ObservedDate: d("2024-05-01"), Ret: 0.01}}
	calendar := []time.Time{d("2024-05-02"), d("2024-05-03")}
	assert.Empty(t, ApplyLag(returns, domain.LagPolicy{Months: 1}, calendar))
}

func TestZScores_ZeroDayIsExactlyZero(t *testing.T) {
	values := []float64{0.01, -0.02, 0, 0.03, 0, -0.01, 0.02}
	z := ZScores(values, 5)
	for i, v := range values {
		if v == 0 {
			assert.Equal(t, 0.0, z[i])
		}
	}
}

func TestZScores_UsesOnlyNonZeroMoments(t *testing.T) {
	// 10 observations, 3 of them zero
	values := []float64{0.010, 0, -0.020, 0.015, 0, 0.005, -0.010, 0, 0.030, 0.020}
	z := ZScores(values, 10)

	nonZero := []float64{0.010, -0.020, 0.015, 0.005, -0.010, 0.030, 0.020}
	mean := formulas.Mean(nonZero)
	std := formulas.StdDev(nonZero)
	assert.InDelta(t, (0.020-mean)/std, z[9], 1e-12)

	// Including zeros would give a different answer
	allMean := formulas.Mean(values)
	allStd := formulas.StdDev(values)
	assert.NotEqual(t, (0.020-allMean)/allStd, z[9])
}

func TestZScores_FewerThanTwoNonZero(t *testing.T) {
	z := ZScores([]float64{0, 0, 0.05, 0}, 3)
	assert.Equal(t, []float64{0, 0, 0, 0}, z)
}

func TestZScores_TrailingWindow(t *testing.T) {
	values := []float64{100, 200, 0.01, 0.02, 0.03}
	z := ZScores(values, 3)
	window := []float64{0.01, 0.02, 0.03}
	assert.InDelta(t, (0.03-formulas.Mean(window))/formulas.StdDev(window), z[4], 1e-12)
}

func TestBuildCalendar(t *testing.T) {
	a := []Return{{EffectiveDate: d("2024-01-03")}, {EffectiveDate: d("2024-01-02")}}
	b := []Return{{EffectiveDate: d("2024-01-02")}, {EffectiveDate: d("2024-01-04")}}
	assert.Equal(t, []time.Time{d("2024-01-02"), d("2024-01-03"), d("2024-01-04")}, BuildCalendar(a, b))
}
