// Package formulas holds the numeric kernels behind the factor-risk pipeline.
// Everything here is pure: no I/O, no logging, deterministic for fixed input.
package formulas

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the sample standard deviation (n-1 denominator)
func StdDev(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.StdDev(data, nil)
}

// NonZeroMoments returns mean and sample standard deviation computed only
// from the non-zero entries of data, together with how many there were.
// With fewer than two non-zero entries both moments are 0.
func NonZeroMoments(data []float64) (mean, std float64, n int) {
	nonZero := make([]float64, 0, len(data))
	for _, v := range data {
		if v != 0 {
			nonZero = append(nonZero, v)
		}
	}
	n = len(nonZero)
	if n < 2 {
		return 0, 0, n
	}
	mean, std = stat.MeanStdDev(nonZero, nil)
	return mean, std, n
}

// LogReturns converts a price or level series into log returns.
// Returns[i] = ln(p[i+1]) - ln(p[i]); both points must be positive.
func LogReturns(prices []float64) ([]float64, error) {
	if len(prices) < 2 {
		return []float64{}, nil
	}
	out := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] <= 0 || prices[i] <= 0 {
			return nil, fmt.Errorf("non-positive level at index %d", i)
		}
		out[i-1] = math.Log(prices[i]) - math.Log(prices[i-1])
	}
	return out, nil
}

// Annualize scales a daily quantity by sqrt(tradingDays).
func Annualize(daily float64, tradingDays int) float64 {
	return daily * math.Sqrt(float64(tradingDays))
}

// CovarianceMatrix builds the sample covariance matrix (n-1 denominator) of
// equally long columns. Element (i,j) is cov(columns[i], columns[j]); the
// result is exactly symmetric.
func CovarianceMatrix(columns [][]float64) ([][]float64, error) {
	k := len(columns)
	if k == 0 {
		return nil, fmt.Errorf("no series provided")
	}

	n := len(columns[0])
	for i, col := range columns {
		if len(col) != n {
			return nil, fmt.Errorf("inconsistent series lengths: expected %d, got %d for series %d", n, len(col), i)
		}
	}
	if n < 2 {
		return nil, fmt.Errorf("insufficient data: need at least 2 observations, got %d", n)
	}

	cov := make([][]float64, k)
	for i := range cov {
		cov[i] = make([]float64, k)
	}
	for i := 0; i < k; i++ {
		for j := i; j < k; j++ {
			c := stat.Covariance(columns[i], columns[j], nil)
			cov[i][j] = c
			cov[j][i] = c
		}
	}
	return cov, nil
}
