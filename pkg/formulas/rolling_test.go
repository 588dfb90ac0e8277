package formulas

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRollingVolatility(t *testing.T) {
	returns := []float64{0.01, -0.01, 0.01, -0.01, 0.01, -0.01}

	vol := RollingVolatility(returns, 4, 252)
	require.Len(t, vol, 3)
	// Population std of a +/-0.01 alternating window is exactly 0.01
	for _, v := range vol {
		assert.InDelta(t, 0.01*math.Sqrt(252), v, 1e-9)
	}

	assert.Empty(t, RollingVolatility(returns, 10, 252))
}

func TestRollingCorrelation(t *testing.T) {
	x := pseudo(30, 1.3)
	y := make([]float64, len(x))
	z := make([]float64, len(x))
	for i := range x {
		y[i] = 2*x[i] + 0.001
		z[i] = -x[i]
	}

	pos := RollingCorrelation(x, y, 10)
	require.Len(t, pos, 21)
	for _, c := range pos {
		assert.InDelta(t, 1.0, c, 1e-6)
	}

	neg := RollingCorrelation(x, z, 10)
	for _, c := range neg {
		assert.InDelta(t, -1.0, c, 1e-6)
	}

	assert.Empty(t, RollingCorrelation(x, y[:5], 3))
}
