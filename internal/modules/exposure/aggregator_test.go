package exposure

import (
	"errors"
	"math"
	"testing"

	"github.com/aristath/factorrisk/internal/domain"
	"github.com/aristath/factorrisk/internal/modules/betas"
	"github.com/aristath/factorrisk/internal/modules/portfolio"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var portfolioDate = domain.MustParseDate("2024-03-29")

func newTestAggregator(cashBetaZero bool) *Aggregator {
	return NewAggregator(Config{TradingDays: 252, MaxStalenessDays: 7, CashBetaZero: cashBetaZero}, zerolog.Nop())
}

func pos(code string, eval float64) portfolio.Position {
	return portfolio.Position{AsOfDate: portfolioDate, SecurityCode: code, EvalAmount: eval}
}

func b(security, factor, asOf string, value float64) betas.Beta {
	return betas.Beta{
		SecurityCode: security,
		FactorCode:   factor,
		AsOfDate:     domain.MustParseDate(asOf),
		Method:       domain.MethodSingleRaw,
		Beta:         value,
	}
}

func TestAggregate_SixHundredFourHundred(t *testing.T) {
	rows, err := newTestAggregator(false).Aggregate(portfolioDate, domain.MethodSingleRaw, []string{"X"},
		[]portfolio.Position{pos("A", 600), pos("B", 400)},
		[]betas.Beta{b("A", "X", "2024-03-28", 1.2), b("B", "X", "2024-03-28", 0.4)},
	)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	row := rows[0]
	require.NotNil(t, row.BetaWeightedTotal)
	assert.InDelta(t, 0.88, *row.BetaWeightedTotal, 1e-12)
	require.NotNil(t, row.AnnSensitivityTotal)
	assert.InDelta(t, 0.88*math.Sqrt(252)*100, *row.AnnSensitivityTotal, 1e-9)
	assert.InDelta(t, 1396.5, *row.AnnSensitivityTotal, 0.5)
	assert.Equal(t, 100.0, row.CoveredPct)
	assert.Equal(t, 2, row.NPositionsCovered)
	assert.InDelta(t, 0.88, *row.BetaWeightedCovered, 1e-12)
	assert.Equal(t, domain.MustParseDate("2024-03-28"), *row.BetaAsOfDate)
	assert.False(t, row.Stale)
	assert.Nil(t, row.StalenessDays)
}

func TestAggregate_MissingBetaDilutesTotalOnly(t *testing.T) {
	rows, err := newTestAggregator(false).Aggregate(portfolioDate, domain.MethodSingleRaw, []string{"X"},
		[]portfolio.Position{pos("A", 600), pos("B", 400)},
		[]betas.Beta{b("A", "X", "2024-03-28", 1.0)},
	)
	require.NoError(t, err)

	row := rows[0]
	assert.InDelta(t, 0.6, *row.BetaWeightedTotal, 1e-12)
	assert.InDelta(t, 1.0, *row.BetaWeightedCovered, 1e-12)
	assert.Equal(t, 60.0, row.CoveredPct)
	assert.Equal(t, 1, row.NPositionsCovered)
	assert.Equal(t, 2, row.NPositionsTotal)
}

func TestAggregate_NoCoverage(t *testing.T) {
	rows, err := newTestAggregator(false).Aggregate(portfolioDate, domain.MethodSingleRaw, []string{"X", "Y"},
		[]portfolio.Position{pos("A", 600), pos("B", 400)},
		[]betas.Beta{b("A", "X", "2024-03-28", 1.0)},
	)
	require.NoError(t, err)

	y := rows[1]
	assert.Equal(t, "Y", y.FactorCode)
	assert.Equal(t, 0.0, y.CoveredPct)
	assert.Nil(t, y.BetaWeightedCovered, "undefined, not zero")
	assert.Nil(t, y.AnnSensitivityCovered)
	assert.Nil(t, y.BetaAsOfDate)
	assert.Nil(t, y.BetaWeightedTotal, "no beta at all is unknown exposure")
	assert.Nil(t, y.AnnSensitivityTotal)

	x := rows[0]
	require.NotNil(t, x.BetaWeightedTotal)
	assert.InDelta(t, 0.6, *x.BetaWeightedTotal, 1e-12)
}

func TestAggregate_Cash(t *testing.T) {
	positions := []portfolio.Position{pos("A", 600), pos(portfolio.CashCode, 400)}
	betaRows := []betas.Beta{b("A", "X", "2024-03-28", 1.0)}

	rows, err := newTestAggregator(false).Aggregate(portfolioDate, domain.MethodSingleRaw, []string{"X"}, positions, betaRows)
	require.NoError(t, err)
	assert.Equal(t, 60.0, rows[0].CoveredPct, "cash is uncovered by default")

	rows, err = newTestAggregator(true).Aggregate(portfolioDate, domain.MethodSingleRaw, []string{"X"}, positions, betaRows)
	require.NoError(t, err)
	assert.Equal(t, 100.0, rows[0].CoveredPct)
	assert.InDelta(t, 0.6, *rows[0].BetaWeightedCovered, 1e-12)
}

func TestAggregate_CoveredPctRounding(t *testing.T) {
	rows, err := newTestAggregator(false).Aggregate(portfolioDate, domain.MethodSingleRaw, []string{"X"},
		[]portfolio.Position{pos("A", 1), pos("B", 2)},
		[]betas.Beta{b("A", "X", "2024-03-28", 1.0)},
	)
	require.NoError(t, err)
	assert.Equal(t, 33.33, rows[0].CoveredPct)

	rows, err = newTestAggregator(false).Aggregate(portfolioDate, domain.MethodSingleRaw, []string{"X"},
		[]portfolio.Position{pos("A", 2), pos("B", 1)},
		[]betas.Beta{b("A", "X", "2024-03-28", 1.0)},
	)
	require.NoError(t, err)
	assert.Equal(t, 66.67, rows[0].CoveredPct)
}

func TestAggregate_CoveredPctClamped(t *testing.T) {
	// A short position with a beta can push covered eval above the total
	rows, err := newTestAggregator(false).Aggregate(portfolioDate, domain.MethodSingleRaw, []string{"X"},
		[]portfolio.Position{pos("A", 1200), pos("B", -200)},
		[]betas.Beta{b("A", "X", "2024-03-28", 1.0)},
	)
	require.NoError(t, err)
	assert.Equal(t, 100.0, rows[0].CoveredPct)
	assert.GreaterOrEqual(t, rows[0].CoveredPct, 0.0)
}

func TestAggregate_Staleness(t *testing.T) {
	rows, err := newTestAggregator(false).Aggregate(portfolioDate, domain.MethodSingleRaw, []string{"X"},
		[]portfolio.Position{pos("A", 600), pos("B", 400)},
		[]betas.Beta{b("A", "X", "2024-03-01", 1.2), b("B", "X", "2024-03-15", 0.4)},
	)
	require.NoError(t, err)

	row := rows[0]
	assert.Equal(t, domain.MustParseDate("2024-03-15"), *row.BetaAsOfDate, "max as-of among betas used")
	assert.True(t, row.Stale)
	require.NotNil(t, row.StalenessDays)
	assert.Equal(t, 14, *row.StalenessDays)
	assert.InDelta(t, 0.88, *row.BetaWeightedTotal, 1e-12, "stale rows are still computed")
}

func TestAggregate_NonPositiveTotal(t *testing.T) {
	_, err := newTestAggregator(false).Aggregate(portfolioDate, domain.MethodSingleRaw, []string{"X"},
		[]portfolio.Position{pos("A", 100), pos("B", -100)}, nil)

	var insufficient *domain.InsufficientObservationsError
	assert.True(t, errors.As(err, &insufficient))

	_, err = newTestAggregator(false).Aggregate(portfolioDate, domain.MethodSingleRaw, []string{"X"}, nil, nil)
	assert.Error(t, err)
}

func TestAggregate_IgnoresOtherMethodsAndFutureBetas(t *testing.T) {
	other := b("B", "X", "2024-03-28", 5.0)
	other.Method = domain.MethodMultiRaw
	rows, err := newTestAggregator(false).Aggregate(portfolioDate, domain.MethodSingleRaw, []string{"X"},
		[]portfolio.Position{pos("A", 600), pos("B", 400)},
		[]betas.Beta{b("A", "X", "2024-04-02", 1.2), other},
	)
	require.NoError(t, err)
	assert.Equal(t, 0, rows[0].NPositionsCovered)
}
