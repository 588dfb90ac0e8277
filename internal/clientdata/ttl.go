package clientdata

import "time"

// TTL constants for cached observations.
// These are added to time.Now() when storing to calculate expires_at.
const (
	// Daily series publish once per business day
	TTLDailySeries = 12 * time.Hour

	// Monthly series (CPI and the like) change a few times a month at most
	TTLMonthlySeries = 7 * 24 * time.Hour
)

// TTLForFrequency returns the cache TTL for a catalog frequency code
func TTLForFrequency(frequency string) time.Duration {
	if frequency == "M" {
		return TTLMonthlySeries
	}
	return TTLDailySeries
}
