package formulas

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pseudo returns a deterministic, non-collinear sequence.
func pseudo(n int, seed float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Sin(seed*float64(i+1)) * 0.02
	}
	return out
}

func TestSimpleOLS_RecoversLine(t *testing.T) {
	x := pseudo(50, 1.3)
	y := make([]float64, len(x))
	for i := range x {
		y[i] = 0.001 + 1.5*x[i]
	}

	res, err := SimpleOLS(y, x)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, res.Betas[0], 1e-9)
	assert.InDelta(t, 0.001, res.Alpha, 1e-9)
	require.NotNil(t, res.R2)
	assert.InDelta(t, 1.0, *res.R2, 1e-9)
	assert.Equal(t, 50, res.NObs)
}

func TestSimpleOLS_ConstantRegressor(t *testing.T) {
	x := []float64{0.01, 0.01, 0.01, 0.01}
	y := []float64{0.1, 0.2, 0.3, 0.4}

	_, err := SimpleOLS(y, x)
	assert.True(t, errors.Is(err, ErrSingularDesign))
}

func TestSimpleOLS_FlatDependentHasUndefinedR2(t *testing.T) {
	x := pseudo(10, 0.7)
	y := make([]float64, 10)

	res, err := SimpleOLS(y, x)
	require.NoError(t, err)
	assert.Nil(t, res.R2)
	assert.InDelta(t, 0.0, res.Betas[0], 1e-12)
}

func TestMultiOLS_RecoversCoefficients(t *testing.T) {
	x1 := pseudo(80, 1.1)
	x2 := pseudo(80, 2.7)
	y := make([]float64, 80)
	for i := range y {
		y[i] = 0.0005 + 1.2*x1[i] - 0.4*x2[i]
	}

	res, err := MultiOLS(y, [][]float64{x1, x2})
	require.NoError(t, err)
	require.Len(t, res.Betas, 2)
	assert.InDelta(t, 1.2, res.Betas[0], 1e-9)
	assert.InDelta(t, -0.4, res.Betas[1], 1e-9)
	assert.InDelta(t, 0.0005, res.Alpha, 1e-9)
	require.NotNil(t, res.R2)
	assert.InDelta(t, 1.0, *res.R2, 1e-9)
}

func TestMultiOLS_MatchesSimpleForOneRegressor(t *testing.T) {
	x := pseudo(40, 0.9)
	y := pseudo(40, 3.1)

	simple, err := SimpleOLS(y, x)
	require.NoError(t, err)
	multi, err := MultiOLS(y, [][]float64{x})
	require.NoError(t, err)

	assert.InDelta(t, simple.Betas[0], multi.Betas[0], 1e-10)
	assert.InDelta(t, simple.Alpha, multi.Alpha, 1e-10)
	assert.InDelta(t, *simple.R2, *multi.R2, 1e-10)
}

func TestMultiOLS_CollinearIsSingular(t *testing.T) {
	x1 := pseudo(30, 1.7)
	x2 := make([]float64, 30)
	for i := range x1 {
		x2[i] = 2 * x1[i]
	}
	y := pseudo(30, 0.4)

	_, err := MultiOLS(y, [][]float64{x1, x2})
	assert.True(t, errors.Is(err, ErrSingularDesign))
}

func TestMultiOLS_TooFewObservations(t *testing.T) {
	_, err := MultiOLS([]float64{1, 2, 3}, [][]float64{{1, 2, 3}, {3, 1, 2}})
	assert.Error(t, err)
}

func TestMultiOLS_Deterministic(t *testing.T) {
	x1 := pseudo(60, 1.9)
	x2 := pseudo(60, 0.3)
	y := pseudo(60, 2.2)

	a, err := MultiOLS(y, [][]float64{x1, x2})
	require.NoError(t, err)
	b, err := MultiOLS(y, [][]float64{x1, x2})
	require.NoError(t, err)

	assert.Equal(t, a.Betas, b.Betas)
	assert.Equal(t, a.Alpha, b.Alpha)
	assert.Equal(t, *a.R2, *b.R2)
}
