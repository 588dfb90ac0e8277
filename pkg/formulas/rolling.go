package formulas

import (
	"math"

	"github.com/markcheno/go-talib"
)

// RollingVolatility returns the annualized rolling standard deviation of
// returns. Output[i] covers returns[i : i+window]; the slice is empty when
// there are fewer than window points.
//
// TA-Lib's StdDev uses the population variance (n denominator).
func RollingVolatility(returns []float64, window, tradingDays int) []float64 {
	if window < 2 || len(returns) < window {
		return []float64{}
	}
	raw := talib.StdDev(returns, window, 1.0)
	out := make([]float64, 0, len(returns)-window+1)
	scale := math.Sqrt(float64(tradingDays))
	for i := window - 1; i < len(raw); i++ {
		out = append(out, raw[i]*scale)
	}
	return out
}

// RollingCorrelation returns the rolling Pearson correlation of two equally
// long series, aligned the same way as RollingVolatility.
func RollingCorrelation(x, y []float64, window int) []float64 {
	if window < 2 || len(x) != len(y) || len(x) < window {
		return []float64{}
	}
	raw := talib.Correl(x, y, window)
	out := make([]float64, 0, len(x)-window+1)
	for i := window - 1; i < len(raw); i++ {
		out = append(out, raw[i])
	}
	return out
}
