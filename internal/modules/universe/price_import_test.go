package universe

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePricesCSV(t *testing.T) {
	prices, err := ParsePricesCSV(strings.NewReader("security_code,date,close\n005930,2024-01-02,78500\n005930,2024-01-03,\n"))
	require.NoError(t, err)
	require.Len(t, prices, 1)
	assert.Equal(t, DailyPrice{SecurityCode: "005930", Date: d("2024-01-02"), Close: 78500}, prices[0])

	_, err = ParsePricesCSV(strings.NewReader("security_code,close\n005930,1\n"))
	assert.Error(t, err)
	_, err = ParsePricesCSV(strings.NewReader("security_code,date,close\n,2024-01-02,1\n"))
	assert.Error(t, err)
}

func TestPriceImportService_ImportCSV(t *testing.T) {
	h := newTestHistoryDB(t)
	svc := NewPriceImportService(h, NewPriceValidator(zerolog.Nop()), zerolog.Nop())

	csv := "security_code,date,close\n" +
		"005930,2024-01-02,78500\n" +
		"005930,2024-01-03,0\n" +
		"005930,2024-01-04,77000\n" +
		"069500,2024-01-02,35000\n"
	res, err := svc.ImportCSV(context.Background(), strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Stored)
	assert.Equal(t, 2, res.Securities)
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, "non_positive", res.Rejected[0].Reason)

	prices, err := h.GetDailyPrices("005930", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, prices, 2)
}
