package factors

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/aristath/factorrisk/internal/config"
	"github.com/aristath/factorrisk/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryReference map[string]map[time.Time]float64

func (m memoryReference) ReturnMap(code string, from, to time.Time) (map[time.Time]float64, error) {
	return m[code], nil
}

type recordingWriter map[string]domain.LagPolicy

func (w recordingWriter) SetLagPolicy(code string, p domain.LagPolicy) error {
	w[code] = p
	return nil
}

// laggedFixture builds factor levels and a reference series that follows the
// factor return from `lag` observations earlier.
func laggedFixture(n, lag int) ([]Observation, map[time.Time]float64) {
	obs := make([]Observation, n+1)
	level := 100.0
	start := d("2023-01-02")
	for i := 0; i <= n; i++ {
		if i > 0 {
			level *= 1 + 0.01*math.Sin(float64(i)*1.3) + 0.002*math.Cos(float64(i)*0.7)
		}
		obs[i] = Observation{FactorCode: "F_EQ", Date: start.AddDate(0, 0, i), Level: level}
	}

	spec := config.FactorSpec{Code: "F_EQ", RetType: config.RetLog}
	returns, _ := TransformLevels(spec, obs)

	ref := make(map[time.Time]float64)
	for i := range returns {
		j := i + lag
		if j < 0 || j >= len(returns) {
			continue
		}
		ref[returns[j].ObservedDate] = 1.5*returns[i].Ret + 0.0001*math.Sin(float64(j))
	}
	return obs, ref
}

func TestEvaluateLags_FindsTrueLag(t *testing.T) {
	obs, ref := laggedFixture(200, 1)
	spec := config.FactorSpec{Code: "F_EQ", RetType: config.RetLog}
	returns, err := TransformLevels(spec, obs)
	require.NoError(t, err)

	candidates := EvaluateLags(returns, ref, -3, 3, 60)
	require.Len(t, candidates, 7)

	best := BestLag(candidates)
	require.NotNil(t, best)
	assert.Equal(t, 1, best.Lag)
	assert.InDelta(t, 1.5, best.Beta, 0.01)
	assert.Greater(t, best.R2, 0.99)
}

func TestEvaluateLags_MinObs(t *testing.T) {
	obs, ref := laggedFixture(30, 0)
	returns, err := TransformLevels(config.FactorSpec{Code: "F_EQ", RetType: config.RetLog}, obs)
	require.NoError(t, err)

	assert.Empty(t, EvaluateLags(returns, ref, -1, 1, 60))
}

func TestBestLag_TieBreaks(t *testing.T) {
	candidates := []LagCandidate{
		{Lag: -1, Beta: 0.5, R2: 0.30},
		{Lag: 0, Beta: -0.9, R2: 0.40},
		{Lag: 1, Beta: 0.9, R2: 0.40},
		{Lag: 2, Beta: 0.7, R2: 0.40},
	}
	best := BestLag(candidates)
	require.NotNil(t, best)
	// Equal R² and equal |beta|: the smaller lag wins
	assert.Equal(t, 0, best.Lag)

	assert.Nil(t, BestLag(nil))
}

func TestLagScanner_Scan(t *testing.T) {
	obs, ref := laggedFixture(150, 2)
	catalog := &config.Catalog{Factors: []config.FactorSpec{
		{Code: "F_EQ", RetType: config.RetLog, Frequency: config.FrequencyDaily, ReferenceSecurity: "360750"},
		{Code: "F_CPI", RetType: config.RetLog, Frequency: config.FrequencyMonthly, ReferenceSecurity: "360750"},
		{Code: "F_NOREF", RetType: config.RetLog, Frequency: config.FrequencyDaily},
	}}

	writer := recordingWriter{}
	scanner := NewLagScanner(catalog, memorySource{"F_EQ": obs}, memoryReference{"360750": ref}, writer, zerolog.Nop())

	results, err := scanner.Scan(context.Background(), LagScanOptions{MinObs: 60})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "F_EQ", results[0].FactorCode)
	require.NotNil(t, results[0].Best)
	assert.Equal(t, 2, results[0].Best.Lag)
	assert.True(t, results[0].Applied)
	assert.Equal(t, domain.LagPolicy{Observations: 2}, writer["F_EQ"])

	assert.Equal(t, "monthly", results[1].Skipped)
	_, written := writer["F_CPI"]
	assert.False(t, written)
}

func TestLagScanner_DryRun(t *testing.T) {
	obs, ref := laggedFixture(150, 0)
	catalog := &config.Catalog{Factors: []config.FactorSpec{
		{Code: "F_EQ", RetType: config.RetLog, Frequency: config.FrequencyDaily, ReferenceSecurity: "360750"},
	}}
	writer := recordingWriter{}
	scanner := NewLagScanner(catalog, memorySource{"F_EQ": obs}, memoryReference{"360750": ref}, writer, zerolog.Nop())

	results, err := scanner.Scan(context.Background(), LagScanOptions{MinObs: 60, DryRun: true})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Applied)
	assert.Empty(t, writer)
}

func TestLagScanner_RejectsBadRange(t *testing.T) {
	scanner := NewLagScanner(&config.Catalog{}, memorySource{}, memoryReference{}, recordingWriter{}, zerolog.Nop())
	_, err := scanner.Scan(context.Background(), LagScanOptions{LagMin: 2, LagMax: -2, MinObs: 60})
	var cfgErr *domain.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}
