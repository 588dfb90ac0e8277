package formulas

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ErrSingularDesign is returned when the regressors are collinear or constant.
var ErrSingularDesign = errors.New("singular design matrix")

// rankTolerance is the smallest |R_jj| relative to the largest that still
// counts as full rank.
const rankTolerance = 1e-10

// OLSResult is an ordinary least squares fit with intercept.
type OLSResult struct {
	Alpha float64
	Betas []float64
	// R2 is nil when the dependent variable has zero total variance.
	R2   *float64
	NObs int
}

// SimpleOLS regresses y on a single regressor x with intercept.
func SimpleOLS(y, x []float64) (*OLSResult, error) {
	if len(y) != len(x) {
		return nil, fmt.Errorf("length mismatch: y=%d x=%d", len(y), len(x))
	}
	if len(y) < 3 {
		return nil, fmt.Errorf("need at least 3 observations, got %d", len(y))
	}
	if stat.Variance(x, nil) == 0 {
		return nil, ErrSingularDesign
	}

	alpha, beta := stat.LinearRegression(x, y, nil, false)
	fitted := make([]float64, len(y))
	for i := range x {
		fitted[i] = alpha + beta*x[i]
	}

	return &OLSResult{
		Alpha: alpha,
		Betas: []float64{beta},
		R2:    rSquared(y, fitted),
		NObs:  len(y),
	}, nil
}

// MultiOLS regresses y jointly on the regressor columns xs with intercept,
// solving the least squares problem through a QR factorization.
func MultiOLS(y []float64, xs [][]float64) (*OLSResult, error) {
	n := len(y)
	k := len(xs)
	if k == 0 {
		return nil, fmt.Errorf("no regressors provided")
	}
	for j, col := range xs {
		if len(col) != n {
			return nil, fmt.Errorf("length mismatch: y=%d x[%d]=%d", n, j, len(col))
		}
	}
	if n <= k+1 {
		return nil, fmt.Errorf("need more than %d observations, got %d", k+1, n)
	}

	design := mat.NewDense(n, k+1, nil)
	for i := 0; i < n; i++ {
		design.Set(i, 0, 1)
		for j := 0; j < k; j++ {
			design.Set(i, j+1, xs[j][i])
		}
	}
	target := mat.NewVecDense(n, append([]float64(nil), y...))

	var qr mat.QR
	qr.Factorize(design)

	// Rank check on R's diagonal; SolveVecTo alone only rejects designs
	// past gonum's condition tolerance, which exact collinearity can miss.
	var r mat.Dense
	qr.RTo(&r)
	maxDiag := 0.0
	for j := 0; j <= k; j++ {
		maxDiag = math.Max(maxDiag, math.Abs(r.At(j, j)))
	}
	for j := 0; j <= k; j++ {
		if math.Abs(r.At(j, j)) <= rankTolerance*maxDiag {
			return nil, ErrSingularDesign
		}
	}

	var coef mat.VecDense
	if err := qr.SolveVecTo(&coef, false, target); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingularDesign, err)
	}

	var fittedVec mat.VecDense
	fittedVec.MulVec(design, &coef)

	betas := make([]float64, k)
	for j := 0; j < k; j++ {
		betas[j] = coef.AtVec(j + 1)
	}
	for _, b := range betas {
		if math.IsNaN(b) || math.IsInf(b, 0) {
			return nil, ErrSingularDesign
		}
	}

	return &OLSResult{
		Alpha: coef.AtVec(0),
		Betas: betas,
		R2:    rSquared(y, fittedVec.RawVector().Data),
		NObs:  n,
	}, nil
}

// rSquared is 1 - SS_res/SS_tot, or nil when SS_tot is zero.
func rSquared(y, fitted []float64) *float64 {
	mean := stat.Mean(y, nil)
	var ssRes, ssTot float64
	for i := range y {
		r := y[i] - fitted[i]
		d := y[i] - mean
		ssRes += r * r
		ssTot += d * d
	}
	if ssTot == 0 {
		return nil
	}
	r2 := 1 - ssRes/ssTot
	return &r2
}
