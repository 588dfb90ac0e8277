package betas

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/aristath/factorrisk/internal/config"
	"github.com/aristath/factorrisk/internal/domain"
	"github.com/aristath/factorrisk/internal/modules/factors"
	"github.com/aristath/factorrisk/internal/modules/universe"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = domain.MustParseDate("2023-01-02")

type memoryReturns map[string][]universe.DailyReturn

func (m memoryReturns) GetLogReturns(code string, from, to time.Time) ([]universe.DailyReturn, error) {
	var out []universe.DailyReturn
	for _, r := range m[code] {
		if !r.Date.Before(from) && !r.Date.After(to) {
			out = append(out, r)
		}
	}
	return out, nil
}

func x1(i int) float64 { return 0.01 * math.Sin(float64(i)*0.7) }
func x2(i int) float64 { return 0.01 * math.Cos(float64(i)*1.3) }

// factorSet builds a two-factor set over n days plus a sparse third factor
// with only sparse points.
func factorSet(n, sparse int, f2 func(int) float64) *factors.Set {
	mk := func(code string, count int, fn func(int) float64) *factors.Series {
		points := make([]factors.Point, count)
		for i := 0; i < count; i++ {
			v := fn(i)
			points[i] = factors.Point{FactorCode: code, Date: start.AddDate(0, 0, i), Ret: v, RetZ: v * 100}
		}
		return factors.NewSeries(config.FactorSpec{Code: code}, domain.LagPolicy{}, nil, points)
	}
	return &factors.Set{
		Order: []string{"F_A", "F_B", "F_C", "F_MISSING"},
		Series: map[string]*factors.Series{
			"F_A": mk("F_A", n, x1),
			"F_B": mk("F_B", n, f2),
			"F_C": mk("F_C", sparse, func(i int) float64 { return 0.001 * float64(i%3) }),
		},
	}
}

func linearSecurity(n int) []universe.DailyReturn {
	out := make([]universe.DailyReturn, n)
	for i := 0; i < n; i++ {
		out[i] = universe.DailyReturn{Date: start.AddDate(0, 0, i), Ret: 0.001 + 1.5*x1(i) - 0.5*x2(i)}
	}
	return out
}

func newTestEstimator(t *testing.T, returns SecurityReturns, workers int) *Estimator {
	t.Helper()
	e, err := NewEstimator(EstimatorConfig{WindowDays: 60, MinObs: 20, Lookback: "2y", Workers: workers}, returns, zerolog.Nop())
	require.NoError(t, err)
	return e
}

func findBeta(betas []Beta, security, factor string, method domain.Method) *Beta {
	for i := range betas {
		b := &betas[i]
		if b.SecurityCode == security && b.FactorCode == factor && b.Method == method {
			return b
		}
	}
	return nil
}

func TestEstimate_MultiRecoversCoefficients(t *testing.T) {
	returns := memoryReturns{"SEC": linearSecurity(100)}
	e := newTestEstimator(t, returns, 1)
	asOf := start.AddDate(0, 0, 99)

	res, err := e.Estimate(context.Background(), asOf, []string{"SEC"}, factorSet(100, 10, x2))
	require.NoError(t, err)

	a := findBeta(res.Betas, "SEC", "F_A", domain.MethodMultiRaw)
	b := findBeta(res.Betas, "SEC", "F_B", domain.MethodMultiRaw)
	require.NotNil(t, a)
	require.NotNil(t, b)
	assert.InDelta(t, 1.5, a.Beta, 1e-9)
	assert.InDelta(t, -0.5, b.Beta, 1e-9)
	assert.InDelta(t, 0.001, a.Alpha, 1e-9)
	require.NotNil(t, a.R2)
	assert.InDelta(t, 1.0, *a.R2, 1e-9)
	assert.Equal(t, 60, a.NObs, "window keeps the last 60 aligned dates")
	assert.Equal(t, asOf, a.AsOfDate, "as-of is the last date of the sample")
	assert.Equal(t, "2y", a.LookbackWindow)

	// ZSCORE regressors are the raw ones scaled by 100
	z := findBeta(res.Betas, "SEC", "F_A", domain.MethodMultiZScore)
	require.NotNil(t, z)
	assert.InDelta(t, 0.015, z.Beta, 1e-9)

	counts := res.Count()
	for _, m := range domain.AllMethods {
		assert.Equal(t, 2, counts[m], "method %s", m)
	}
}

func TestEstimate_OverlapFilter(t *testing.T) {
	e := newTestEstimator(t, memoryReturns{"SEC": linearSecurity(100)}, 1)

	res, err := e.Estimate(context.Background(), start.AddDate(0, 0, 99), []string{"SEC"}, factorSet(100, 10, x2))
	require.NoError(t, err)
	require.Len(t, res.Report, 1)

	row := res.Report[0]
	assert.Equal(t, StatusOK, row.Status)
	assert.Equal(t, []string{"F_A", "F_B"}, row.OKFactors)
	assert.Equal(t, []string{"F_C", "F_MISSING"}, row.SkippedFactors)
	assert.Equal(t, 60, row.NObs)
	require.NotNil(t, row.AsOfDate)

	// Sparse factor has too few observations for a single beta too
	assert.Nil(t, findBeta(res.Betas, "SEC", "F_C", domain.MethodSingleRaw))
	assert.Nil(t, findBeta(res.Betas, "SEC", "F_C", domain.MethodMultiRaw))
}

func TestEstimate_SkipReasons(t *testing.T) {
	// Security prices exist but on dates no factor covers
	offset := make([]universe.DailyReturn, 50)
	for i := range offset {
		offset[i] = universe.DailyReturn{Date: start.AddDate(1, 0, i), Ret: 0.01}
	}
	returns := memoryReturns{"NOOVERLAP": offset}
	e := newTestEstimator(t, returns, 2)

	res, err := e.Estimate(context.Background(), start.AddDate(1, 2, 0), []string{"CASH", "EMPTY", "NOOVERLAP"}, factorSet(100, 10, x2))
	require.NoError(t, err)
	require.Len(t, res.Report, 3)

	assert.Equal(t, ReasonCash, res.Report[0].Reason)
	assert.Equal(t, ReasonPriceEmpty, res.Report[1].Reason)
	assert.Equal(t, StatusSkip, res.Report[2].Status)
	assert.Equal(t, ReasonNoFactorOverlap, res.Report[2].Reason)
	assert.Empty(t, res.Betas, "zero aligned observations leaves every pair uncovered")
}

func TestEstimate_ThinSample(t *testing.T) {
	e, err := NewEstimator(EstimatorConfig{WindowDays: 60, MinObs: 20, Lookback: "2y"}, memoryReturns{"SEC": linearSecurity(100)}, zerolog.Nop())
	require.NoError(t, err)

	// F_A and F_B each overlap 20+ days but on disjoint halves, so the joint sample is empty
	set := factorSet(100, 10, x2)
	set.Series["F_B"] = factors.NewSeries(config.FactorSpec{Code: "F_B"}, domain.LagPolicy{}, nil, shiftedPoints("F_B", 50, 50))
	set.Series["F_A"] = factors.NewSeries(config.FactorSpec{Code: "F_A"}, domain.LagPolicy{}, nil, shiftedPoints("F_A", 0, 50))

	res, err := e.Estimate(context.Background(), start.AddDate(0, 0, 99), []string{"SEC"}, set)
	require.NoError(t, err)
	assert.Equal(t, ReasonThin, res.Report[0].Reason)
	assert.Equal(t, 0, res.Report[0].NObs)
	// Single betas are still produced for each factor
	assert.NotNil(t, findBeta(res.Betas, "SEC", "F_A", domain.MethodSingleRaw))
	assert.NotNil(t, findBeta(res.Betas, "SEC", "F_B", domain.MethodSingleRaw))
}

func shiftedPoints(code string, from, count int) []factors.Point {
	out := make([]factors.Point, count)
	for i := 0; i < count; i++ {
		out[i] = factors.Point{FactorCode: code, Date: start.AddDate(0, 0, from+i), Ret: x1(from + i), RetZ: x1(from + i)}
	}
	return out
}

func TestEstimate_SingularDesignFailsSecurityOnly(t *testing.T) {
	e := newTestEstimator(t, memoryReturns{"SEC": linearSecurity(100), "SEC2": linearSecurity(100)}, 2)

	collinear := func(i int) float64 { return 2 * x1(i) }
	res, err := e.Estimate(context.Background(), start.AddDate(0, 0, 99), []string{"SEC", "SEC2"}, factorSet(100, 10, collinear))
	require.NoError(t, err)

	for _, row := range res.Report {
		assert.Equal(t, StatusFail, row.Status)
		assert.Equal(t, ReasonSingular, row.Reason)
	}
	assert.Nil(t, findBeta(res.Betas, "SEC", "F_A", domain.MethodMultiRaw))
	assert.NotNil(t, findBeta(res.Betas, "SEC", "F_A", domain.MethodSingleRaw))
	assert.NotNil(t, findBeta(res.Betas, "SEC2", "F_B", domain.MethodSingleZScore))
}

func TestEstimate_LookbackAndAsOfClipping(t *testing.T) {
	e, err := NewEstimator(EstimatorConfig{WindowDays: 252, MinObs: 20, Lookback: "40d"}, memoryReturns{"SEC": linearSecurity(100)}, zerolog.Nop())
	require.NoError(t, err)

	asOf := start.AddDate(0, 0, 80)
	res, err := e.Estimate(context.Background(), asOf, []string{"SEC"}, factorSet(100, 10, x2))
	require.NoError(t, err)

	b := findBeta(res.Betas, "SEC", "F_A", domain.MethodSingleRaw)
	require.NotNil(t, b)
	assert.Equal(t, 41, b.NObs, "dates in [asOf-40d, asOf]")
	assert.Equal(t, asOf, b.AsOfDate)
}

func TestEstimate_Deterministic(t *testing.T) {
	returns := memoryReturns{}
	securities := []string{"A", "B", "C", "D", "E"}
	for k, code := range securities {
		series := linearSecurity(100)
		for i := range series {
			series[i].Ret += 0.0001 * float64(k) * math.Sin(float64(i))
		}
		returns[code] = series
	}
	set := factorSet(100, 10, x2)

	serial, err := newTestEstimator(t, returns, 1).Estimate(context.Background(), start.AddDate(0, 0, 99), securities, set)
	require.NoError(t, err)
	parallel, err := newTestEstimator(t, returns, 4).Estimate(context.Background(), start.AddDate(0, 0, 99), securities, set)
	require.NoError(t, err)

	assert.Equal(t, serial.Betas, parallel.Betas)
	assert.Equal(t, serial.Report, parallel.Report)
}

func TestNewEstimator_RejectsBadConfig(t *testing.T) {
	_, err := NewEstimator(EstimatorConfig{WindowDays: 60, MinObs: 20, Lookback: "2w"}, memoryReturns{}, zerolog.Nop())
	var cfgErr *domain.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)

	_, err = NewEstimator(EstimatorConfig{WindowDays: 10, MinObs: 20, Lookback: "2y"}, memoryReturns{}, zerolog.Nop())
	assert.ErrorAs(t, err, &cfgErr)
}

func TestEstimate_SingleBetasKeepTheirOwnAsOf(t *testing.T) {
	set := factorSet(100, 0, x2)
	shortB := set.Series["F_B"].Points[:99]
	set.Series["F_B"] = factors.NewSeries(config.FactorSpec{Code: "F_B"}, domain.LagPolicy{}, nil, shortB)

	e := newTestEstimator(t, memoryReturns{"SEC": linearSecurity(100)}, 1)
	res, err := e.Estimate(context.Background(), start.AddDate(0, 0, 99), []string{"SEC"}, set)
	require.NoError(t, err)

	var single []Beta
	for _, b := range res.Betas {
		if b.Method == domain.MethodSingleRaw {
			single = append(single, b)
		}
	}
	require.Len(t, single, 2)

	a := findBeta(single, "SEC", "F_A", domain.MethodSingleRaw)
	b := findBeta(single, "SEC", "F_B", domain.MethodSingleRaw)
	require.NotNil(t, a)
	require.NotNil(t, b)
	assert.Equal(t, start.AddDate(0, 0, 99), a.AsOfDate)
	assert.Equal(t, start.AddDate(0, 0, 98), b.AsOfDate)

	merged := MergeLatest(nil, single)
	assert.Len(t, merged, 2, "a factor ending earlier stays covered")
	assert.NotNil(t, findBeta(merged, "SEC", "F_B", domain.MethodSingleRaw))
}

func TestEstimate_ZScoreOutcomeReportedSeparately(t *testing.T) {
	set := factorSet(100, 10, x2)
	// F_B keeps its raw returns but every z-score is zero
	flat := make([]factors.Point, len(set.Series["F_B"].Points))
	copy(flat, set.Series["F_B"].Points)
	for i := range flat {
		flat[i].RetZ = 0
	}
	set.Series["F_B"] = factors.NewSeries(config.FactorSpec{Code: "F_B"}, domain.LagPolicy{}, nil, flat)

	e := newTestEstimator(t, memoryReturns{"SEC": linearSecurity(100)}, 1)
	res, err := e.Estimate(context.Background(), start.AddDate(0, 0, 99), []string{"CASH", "SEC"}, set)
	require.NoError(t, err)
	require.Len(t, res.Report, 2)

	cash := res.Report[0]
	assert.Equal(t, StatusSkip, cash.ZScoreStatus)
	assert.Equal(t, ReasonCash, cash.ZScoreReason)

	row := res.Report[1]
	assert.Equal(t, StatusOK, row.Status)
	assert.Equal(t, ReasonOK, row.Reason)
	assert.Equal(t, StatusFail, row.ZScoreStatus)
	assert.Equal(t, ReasonSingular, row.ZScoreReason)

	assert.NotNil(t, findBeta(res.Betas, "SEC", "F_A", domain.MethodMultiRaw))
	assert.Nil(t, findBeta(res.Betas, "SEC", "F_A", domain.MethodMultiZScore))
}
