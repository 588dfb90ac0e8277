package exposure

import (
	"context"
	"testing"

	"github.com/aristath/factorrisk/internal/domain"
	"github.com/aristath/factorrisk/internal/modules/betas"
	"github.com/aristath/factorrisk/internal/modules/portfolio"
	testingutil "github.com/aristath/factorrisk/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepository_ReplaceAndGet(t *testing.T) {
	db, cleanup := testingutil.NewTestDB(t, "analytics")
	defer cleanup()
	repo := NewRepository(db.Conn(), zerolog.Nop())
	ctx := context.Background()

	rows, err := newTestAggregator(false).Aggregate(portfolioDate, domain.MethodSingleRaw, []string{"X", "Y"},
		[]portfolio.Position{pos("A", 600), pos("B", 400)},
		[]betas.Beta{b("A", "X", "2024-03-01", 1.2)},
	)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		tx, err := db.Conn().BeginTx(ctx, nil)
		require.NoError(t, err)
		require.NoError(t, repo.ReplaceTx(ctx, tx, portfolioDate, domain.MethodSingleRaw, rows))
		require.NoError(t, tx.Commit())
	}

	got, err := repo.Get(portfolioDate, domain.MethodSingleRaw)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, rows, got)

	latest, err := repo.LatestDate(domain.MethodSingleRaw)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, portfolioDate, *latest)

	none, err := repo.LatestDate(domain.MethodMultiZScore)
	require.NoError(t, err)
	assert.Nil(t, none)
}
