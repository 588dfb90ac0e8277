package factors

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryPoints map[string][]Point

func (m memoryPoints) GetPoints(code string) ([]Point, error) {
	return m[code], nil
}

func pointSeries(code string, start time.Time, values ...float64) []Point {
	out := make([]Point, len(values))
	for i, v := range values {
		out[i] = Point{FactorCode: code, Date: start.AddDate(0, 0, i), Ret: v}
	}
	return out
}

func TestComputeDiagnostics(t *testing.T) {
	start := d("2024-01-01")
	a := pointSeries("F_A", start, 0.01, -0.02, 0.015, 0.0, 0.03, -0.01)
	// F_B starts one day later; correlation runs on common dates only
	b := pointSeries("F_B", start.AddDate(0, 0, 1), 0.04, -0.03, 0.0, -0.06, 0.02)

	diag, err := ComputeDiagnostics(memoryPoints{"F_A": a, "F_B": b}, "F_A", "F_B", 3, 252)
	require.NoError(t, err)

	require.Len(t, diag.Volatility, 4)
	assert.Equal(t, d("2024-01-03"), diag.Volatility[0].Date)
	assert.Greater(t, diag.Volatility[0].Value, 0.0)

	require.Len(t, diag.Correlation, 3)
	assert.Equal(t, d("2024-01-04"), diag.Correlation[0].Date)
	for _, p := range diag.Correlation {
		// b is exactly -2 × a on the overlap
		assert.InDelta(t, -1.0, p.Value, 1e-9)
		assert.False(t, math.IsNaN(p.Value))
	}
}

func TestComputeDiagnostics_RejectsTinyWindow(t *testing.T) {
	_, err := ComputeDiagnostics(memoryPoints{}, "F_A", "", 1, 252)
	assert.Error(t, err)
}
