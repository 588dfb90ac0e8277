package universe

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/aristath/factorrisk/internal/domain"
	testingutil "github.com/aristath/factorrisk/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) time.Time { return domain.MustParseDate(s) }

func newTestHistoryDB(t *testing.T) *HistoryDB {
	t.Helper()
	db, cleanup := testingutil.NewTestDB(t, "market")
	t.Cleanup(cleanup)
	return NewHistoryDB(db.Conn(), zerolog.New(nil).Level(zerolog.Disabled))
}

func TestHistoryDB_SyncAndReturns(t *testing.T) {
	h := newTestHistoryDB(t)
	ctx := context.Background()

	require.NoError(t, h.SyncHistoricalPrices(ctx, []DailyPrice{
		{SecurityCode: "005930", Date: d("2024-01-02"), Close: 100},
		{SecurityCode: "005930", Date: d("2024-01-03"), Close: 110},
		{SecurityCode: "005930", Date: d("2024-01-04"), Close: 99},
		{SecurityCode: "069500", Date: d("2024-01-02"), Close: 30000},
	}))
	// Upsert corrects a close
	require.NoError(t, h.SyncHistoricalPrices(ctx, []DailyPrice{
		{SecurityCode: "005930", Date: d("2024-01-04"), Close: 121},
	}))

	prices, err := h.GetDailyPrices("005930", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, prices, 3)
	assert.Equal(t, 121.0, prices[2].Close)

	returns, err := h.GetLogReturns("005930", d("2024-01-03"), d("2024-01-04"))
	require.NoError(t, err)
	require.Len(t, returns, 2, "close before the window is the base of the first return")
	assert.InDelta(t, math.Log(1.1), returns[0].Ret, 1e-12)
	assert.InDelta(t, math.Log(1.1), returns[1].Ret, 1e-12)

	m, err := h.ReturnMap("005930", d("2024-01-04"), d("2024-01-04"))
	require.NoError(t, err)
	assert.Len(t, m, 1)

	codes, err := h.SecurityCodes()
	require.NoError(t, err)
	assert.Equal(t, []string{"005930", "069500"}, codes)

	empty, err := h.GetLogReturns("UNKNOWN", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestLogReturns_SkipsNonPositive(t *testing.T) {
	prices := []DailyPrice{
		{Date: d("2024-01-01"), Close: 10},
		{Date: d("2024-01-02"), Close: 0},
		{Date: d("2024-01-03"), Close: 20},
	}
	returns := LogReturns(prices, time.Time{})
	require.Len(t, returns, 1)
	assert.Equal(t, d("2024-01-03"), returns[0].Date)
	assert.InDelta(t, math.Log(2), returns[0].Ret, 1e-12)
}

func TestPriceValidator_FilterMultiSecurity(t *testing.T) {
	v := NewPriceValidator(zerolog.Nop())

	accepted, rejected := v.Filter([]DailyPrice{
		{SecurityCode: "A", Date: d("2024-01-03"), Close: 5},
		{SecurityCode: "A", Date: d("2024-01-01"), Close: 100},
		{SecurityCode: "A", Date: d("2024-01-02"), Close: 101},
		{SecurityCode: "B", Date: d("2024-01-01"), Close: -1},
		{SecurityCode: "B", Date: d("2024-01-02"), Close: 50},
		{SecurityCode: "B", Date: d("2024-01-03"), Close: 5000},
	})

	require.Len(t, accepted, 3)
	assert.Equal(t, "A", accepted[0].SecurityCode)
	assert.Equal(t, d("2024-01-01"), accepted[0].Date)
	assert.Equal(t, "B", accepted[2].SecurityCode)

	reasons := map[string]string{}
	for _, r := range rejected {
		reasons[r.Price.SecurityCode+"/"+domain.FormatDate(r.Price.Date)] = r.Reason
	}
	assert.Equal(t, map[string]string{
		"A/2024-01-03": "crash_detected",
		"B/2024-01-01": "non_positive",
		"B/2024-01-03": "spike_detected",
	}, reasons)
}
