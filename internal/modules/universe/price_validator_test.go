package universe

import (
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceValidator_ValidatePrice(t *testing.T) {
	validator := NewPriceValidator(zerolog.Nop())
	prev := &DailyPrice{SecurityCode: "A", Date: d("2024-01-02"), Close: 100}

	tests := []struct {
		name   string
		close  float64
		prev   *DailyPrice
		want   bool
		reason string
	}{
		{name: "normal move", close: 104, prev: prev, want: true},
		{name: "first close", close: 50, want: true},
		{name: "zero", close: 0, prev: prev, reason: "non_positive"},
		{name: "negative", close: -1, reason: "non_positive"},
		{name: "nan", close: math.NaN(), reason: "not_finite"},
		{name: "spike", close: 1200, prev: prev, reason: "spike_detected"},
		{name: "crash", close: 5, prev: prev, reason: "crash_detected"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reason := validator.ValidatePrice(DailyPrice{SecurityCode: "A", Date: d("2024-01-03"), Close: tt.close}, tt.prev)
			assert.Equal(t, tt.want, ok)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestPriceValidator_Filter(t *testing.T) {
	validator := NewPriceValidator(zerolog.Nop())

	accepted, rejected := validator.Filter([]DailyPrice{
		{SecurityCode: "B", Date: d("2024-01-02"), Close: 10},
		{SecurityCode: "A", Date: d("2024-01-04"), Close: 101},
		{SecurityCode: "A", Date: d("2024-01-03"), Close: 5000},
		{SecurityCode: "A", Date: d("2024-01-02"), Close: 100},
		{SecurityCode: "B", Date: d("2024-01-03"), Close: 0.5},
	})

	require.Len(t, rejected, 2)
	assert.Equal(t, "spike_detected", rejected[0].Reason)
	assert.Equal(t, "crash_detected", rejected[1].Reason)

	require.Len(t, accepted, 3)
	assert.Equal(t, "A", accepted[0].SecurityCode)
	assert.Equal(t, d("2024-01-04"), accepted[1].Date, "spike is skipped and the next close compares to the last accepted one")
	assert.Equal(t, "B", accepted[2].SecurityCode)
}
