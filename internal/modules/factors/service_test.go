package factors

import (
	"context"
	"testing"

	"github.com/aristath/factorrisk/internal/config"
	"github.com/aristath/factorrisk/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memorySource map[string][]Observation

func (m memorySource) GetObservations(code string) ([]Observation, error) {
	return m[code], nil
}

type fixedOverrides map[string]domain.LagPolicy

func (f fixedOverrides) LagPolicies() (map[string]domain.LagPolicy, error) {
	return f, nil
}

func testCatalog() *config.Catalog {
	return &config.Catalog{Factors: []config.FactorSpec{
		{Code: "F_EQ", RetType: config.RetLog, Frequency: config.FrequencyDaily, LagPolicy: "1"},
		{Code: "F_FX", RetType: config.RetLog, Frequency: config.FrequencyDaily, LagPolicy: "0"},
		{Code: "F_CPI", RetType: config.RetLog, Frequency: config.FrequencyMonthly, LagPolicy: "1M"},
		{Code: "F_EMPTY", RetType: config.RetDiffPP, Frequency: config.FrequencyDaily},
	}}
}

func TestService_Normalize(t *testing.T) {
	source := memorySource{
		"F_EQ": obsSeries("F_EQ", "2024-01-01", 100, 101, 102, 101, 103),
		"F_FX": obsSeries("F_FX", "2024-01-29", 1300, 1310, 1305, 1320, 1315, 1330, 1325, 1335, 1340, 1338),
		"F_CPI": {
			{FactorCode: "F_CPI", Date: d("2023-12-01"), Level: 112.0},
			{FactorCode: "F_CPI", Date: d("2024-01-01"), Level: 112.5},
		},
	}

	svc := NewService(testCatalog(), source, nil, zerolog.New(nil).Level(zerolog.Disabled))
	set, err := svc.Normalize(context.Background(), 252)
	require.NoError(t, err)

	assert.Equal(t, []string{"F_EQ", "F_FX", "F_CPI", "F_EMPTY"}, set.Order)
	assert.Equal(t, []string{"F_EQ", "F_FX", "F_CPI"}, set.Available())
	require.Len(t, set.Gaps, 1)
	assert.Equal(t, "F_EMPTY", set.Gaps[0].Code)

	eq := set.Get("F_EQ")
	require.NotNil(t, eq)
	// 4 returns shifted by one observation leaves 3
	assert.Len(t, eq.Returns, 3)
	_, ok := eq.Value(d("2024-01-02"), domain.TransformRaw)
	assert.False(t, ok, "first return moves to the next observed date")
	v, ok := eq.Value(d("2024-01-03"), domain.TransformRaw)
	require.True(t, ok)
	assert.InDelta(t, 0.00995033, v, 1e-8)

	// CPI observed 2024-01-01 lands on the first calendar date on or after 2024-02-01
	cpi := set.Get("F_CPI")
	require.NotNil(t, cpi)
	require.Len(t, cpi.Returns, 1)
	assert.Equal(t, d("2024-02-01"), cpi.Returns[0].EffectiveDate)
	for _, p := range cpi.Points {
		if !p.Date.Equal(d("2024-02-01")) {
			assert.Equal(t, 0.0, p.Ret)
			assert.Equal(t, 0.0, p.RetZ)
		}
	}
}

func TestService_OverridesBeatCatalog(t *testing.T) {
	svc := NewService(testCatalog(), memorySource{}, fixedOverrides{"F_EQ": {Observations: 2}}, zerolog.Nop())

	lags, err := svc.EffectiveLags()
	require.NoError(t, err)
	assert.Equal(t, domain.LagPolicy{Observations: 2}, lags["F_EQ"])
	assert.Equal(t, domain.LagPolicy{}, lags["F_FX"])
	assert.Equal(t, domain.LagPolicy{Months: 1}, lags["F_CPI"])
}

func TestService_DeterministicOutput(t *testing.T) {
	source := memorySource{
		"F_EQ": obsSeries("F_EQ", "2024-01-01", 100, 101, 99, 102, 104, 103),
		"F_FX": obsSeries("F_FX", "2024-01-01", 1300, 1301, 1299, 1302, 1304, 1303),
	}
	svc := NewService(testCatalog(), source, nil, zerolog.Nop())

	a, err := svc.Normalize(context.Background(), 3)
	require.NoError(t, err)
	b, err := svc.Normalize(context.Background(), 3)
	require.NoError(t, err)

	for _, code := range a.Available() {
		assert.Equal(t, a.Get(code).Points, b.Get(code).Points)
	}
}
