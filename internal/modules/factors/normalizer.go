package factors

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/aristath/factorrisk/internal/config"
	"github.com/aristath/factorrisk/internal/domain"
	"github.com/aristath/factorrisk/pkg/formulas"
)

// TransformLevels converts levels into returns on their observed dates.
// The first usable observation has no predecessor and yields no return.
// Non-finite levels are dropped, and log returns also drop non-positive levels.
func TransformLevels(spec config.FactorSpec, obs []Observation) ([]Return, error) {
	clean := make([]Observation, 0, len(obs))
	for _, o := range obs {
		if math.IsNaN(o.Level) || math.IsInf(o.Level, 0) {
			continue
		}
		if spec.RetType == config.RetLog && o.Level <= 0 {
			continue
		}
		clean = append(clean, o)
	}
	sort.SliceStable(clean, func(i, j int) bool { return clean[i].Date.Before(clean[j].Date) })

	if spec.RetType == config.RetDuration && spec.Duration <= 0 {
		return nil, &domain.ConfigurationError{
			Field:  "duration." + spec.Code,
			Reason: "duration_return requires a configured duration",
		}
	}

	out := make([]Return, 0, len(clean))
	for i := 1; i < len(clean); i++ {
		prev, cur := clean[i-1].Level, clean[i].Level

		var ret float64
		switch spec.RetType {
		case config.RetLog:
			ret = math.Log(cur) - math.Log(prev)
		case config.RetDiffPP:
			ret = cur - prev
		case config.RetDuration:
			ret = -spec.Duration * (cur - prev) / 100
		default:
			return nil, &domain.ConfigurationError{
				Field:  "ret_type." + spec.Code,
				Reason: fmt.Sprintf("unknown ret_type %q", spec.RetType),
			}
		}

		level := cur
		out = append(out, Return{
			FactorCode:    spec.Code,
			ObservedDate:  clean[i].Date,
			EffectiveDate: clean[i].Date,
			RawLevel:      &level,
			Ret:           ret,
		})
	}
	return out, nil
}

// ApplyLag assigns effective dates.
//
// An observation lag N moves the return observed at index i onto the observed
// date at index i+N of the same series; returns shifted past either end are
// dropped. A period lag moves the observed date forward N months and, when a
// calendar is given, onto the first calendar date on or after it. Returns
// whose effective date falls beyond the calendar are dropped.
func ApplyLag(returns []Return, lag domain.LagPolicy, calendar []time.Time) []Return {
	policy := lag.String()
	out := make([]Return, 0, len(returns))

	if lag.IsPeriod() {
		for _, r := range returns {
			effective := r.ObservedDate.AddDate(0, lag.Months, 0)
			if len(calendar) > 0 {
				idx := sort.Search(len(calendar), func(i int) bool { return !calendar[i].Before(effective) })
				if idx == len(calendar) {
					continue
				}
				effective = calendar[idx]
			}
			r.EffectiveDate = effective
			r.LagPolicy = policy
			out = append(out, r)
		}
		return out
	}

	n := lag.Observations
	for i, r := range returns {
		j := i + n
		if j < 0 || j >= len(returns) {
			continue
		}
		r.EffectiveDate = returns[j].ObservedDate
		r.LagPolicy = policy
		out = append(out, r)
	}
	return out
}

// EffectiveSeries lays lagged returns onto their effective dates.
//
// For period-lagged factors with a calendar, every calendar date from the
// first placement up to one month after the last effective date carries
// ret = 0 unless a return lands on it. Observation-lagged factors only have
// points where a return lands; other dates are gaps, not zeros.
func EffectiveSeries(code string, returns []Return, lag domain.LagPolicy, calendar []time.Time) []Point {
	byDate := make(map[time.Time]float64, len(returns))
	for _, r := range returns {
		// On a collision the later observation wins
		byDate[r.EffectiveDate] = r.Ret
	}

	var dates []time.Time
	if lag.IsPeriod() && len(calendar) > 0 && len(returns) > 0 {
		first := returns[0].EffectiveDate
		end := returns[len(returns)-1].ObservedDate.AddDate(0, lag.Months+1, 0)
		for _, d := range calendar {
			if d.Before(first) || !d.Before(end) {
				continue
			}
			dates = append(dates, d)
		}
	} else {
		dates = make([]time.Time, 0, len(byDate))
		for d := range byDate {
			dates = append(dates, d)
		}
		sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	}

	points := make([]Point, len(dates))
	for i, d := range dates {
		points[i] = Point{FactorCode: code, Date: d, Ret: byDate[d]}
	}
	return points
}

// ApplyZScores fills RetZ using a trailing window of the last window points.
// Moments come from the nonzero returns in the window only. Zero-return days,
// and windows with fewer than two nonzero returns or zero dispersion, get 0.
func ApplyZScores(points []Point, window int) {
	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.Ret
	}
	z := ZScores(values, window)
	for i := range points {
		points[i].RetZ = z[i]
	}
}

// ZScores is ApplyZScores over a plain slice
func ZScores(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	if window < 1 {
		return out
	}
	for t, v := range values {
		if v == 0 {
			continue
		}
		start := t - window + 1
		if start < 0 {
			start = 0
		}
		mean, std, n := formulas.NonZeroMoments(values[start : t+1])
		if n < 2 || std == 0 {
			continue
		}
		out[t] = (v - mean) / std
	}
	return out
}

// BuildCalendar returns the sorted union of effective dates across returns
func BuildCalendar(sets ...[]Return) []time.Time {
	seen := make(map[time.Time]bool)
	for _, rs := range sets {
		for _, r := range rs {
			seen[r.EffectiveDate] = true
		}
	}
	out := make([]time.Time, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
