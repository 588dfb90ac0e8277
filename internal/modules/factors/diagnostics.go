package factors

import (
	"fmt"
	"time"

	"github.com/aristath/factorrisk/pkg/formulas"
)

// DiagnosticPoint is one value of a rolling diagnostic
type DiagnosticPoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// Diagnostics holds rolling statistics for human review of a factor
type Diagnostics struct {
	FactorCode  string            `json:"factor_code"`
	Window      int               `json:"window"`
	Volatility  []DiagnosticPoint `json:"volatility"`
	Against     string            `json:"against,omitempty"`
	Correlation []DiagnosticPoint `json:"correlation,omitempty"`
}

// PointSource reads stored effective-calendar series
type PointSource interface {
	GetPoints(code string) ([]Point, error)
}

// ComputeDiagnostics returns rolling annualized volatility of code and,
// when against is set, its rolling correlation with against over their
// common dates.
func ComputeDiagnostics(src PointSource, code, against string, window, tradingDays int) (*Diagnostics, error) {
	if window < 2 {
		return nil, fmt.Errorf("window must be >= 2, got %d", window)
	}

	points, err := src.GetPoints(code)
	if err != nil {
		return nil, err
	}

	d := &Diagnostics{FactorCode: code, Window: window, Volatility: []DiagnosticPoint{}}

	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.Ret
	}
	vol := formulas.RollingVolatility(values, window, tradingDays)
	offset := len(points) - len(vol)
	for i, v := range vol {
		d.Volatility = append(d.Volatility, DiagnosticPoint{Date: points[offset+i].Date, Value: v})
	}

	if against == "" {
		return d, nil
	}

	other, err := src.GetPoints(against)
	if err != nil {
		return nil, err
	}
	otherByDate := make(map[time.Time]float64, len(other))
	for _, p := range other {
		otherByDate[p.Date] = p.Ret
	}

	var dates []time.Time
	var x, y []float64
	for _, p := range points {
		if v, ok := otherByDate[p.Date]; ok {
			dates = append(dates, p.Date)
			x = append(x, p.Ret)
			y = append(y, v)
		}
	}

	d.Against = against
	d.Correlation = []DiagnosticPoint{}
	corr := formulas.RollingCorrelation(x, y, window)
	offset = len(dates) - len(corr)
	for i, v := range corr {
		d.Correlation = append(d.Correlation, DiagnosticPoint{Date: dates[offset+i], Value: v})
	}
	return d, nil
}
