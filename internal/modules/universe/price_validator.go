package universe

import (
	"math"
	"sort"

	"github.com/rs/zerolog"
)

const (
	// Validation thresholds
	maxPriceChangePercent = 1000.0 // >1000% change is a spike
	minPriceChangePercent = -90.0  // <-90% change is a crash
)

// Rejection records a close that was not stored
type Rejection struct {
	Price  DailyPrice
	Reason string
}

// PriceValidator screens imported closes before they become returns
type PriceValidator struct {
	log zerolog.Logger
}

// NewPriceValidator creates a new price validator
func NewPriceValidator(log zerolog.Logger) *PriceValidator {
	return &PriceValidator{
		log: log.With().Str("component", "price_validator").Logger(),
	}
}

// ValidatePrice checks a close against the previous accepted close.
// Returns (isValid, reason).
func (v *PriceValidator) ValidatePrice(price DailyPrice, prev *DailyPrice) (bool, string) {
	if math.IsNaN(price.Close) || math.IsInf(price.Close, 0) {
		return false, "not_finite"
	}
	if price.Close <= 0 {
		return false, "non_positive"
	}
	if prev != nil && prev.Close > 0 {
		changePercent := (price.Close - prev.Close) / prev.Close * 100.0
		if changePercent > maxPriceChangePercent {
			return false, "spike_detected"
		}
		if changePercent < minPriceChangePercent {
			return false, "crash_detected"
		}
	}
	return true, ""
}

// Filter validates closes per security in date order and returns the
// accepted ones plus the rejections. Rejected closes are dropped rather than
// interpolated, so they surface as data gaps downstream.
func (v *PriceValidator) Filter(prices []DailyPrice) ([]DailyPrice, []Rejection) {
	sorted := make([]DailyPrice, len(prices))
	copy(sorted, prices)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].SecurityCode != sorted[j].SecurityCode {
			return sorted[i].SecurityCode < sorted[j].SecurityCode
		}
		return sorted[i].Date.Before(sorted[j].Date)
	})

	accepted := make([]DailyPrice, 0, len(sorted))
	var rejected []Rejection
	var prev *DailyPrice
	for i := range sorted {
		p := sorted[i]
		if prev != nil && prev.SecurityCode != p.SecurityCode {
			prev = nil
		}
		if ok, reason := v.ValidatePrice(p, prev); !ok {
			rejected = append(rejected, Rejection{Price: p, Reason: reason})
			v.log.Warn().
				Str("security", p.SecurityCode).
				Time("date", p.Date).
				Float64("close", p.Close).
				Str("reason", reason).
				Msg("Rejected price")
			continue
		}
		accepted = append(accepted, p)
		prev = &accepted[len(accepted)-1]
	}
	return accepted, rejected
}
