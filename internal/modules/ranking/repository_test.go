package ranking

import (
	"context"
	"testing"

	"github.com/aristath/factorrisk/internal/domain"
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

	entries := NewRanker(2, zerolog.Nop()).Rank(asOf, domain.MethodSingleRaw, fixture())

	for i := 0; i < 2; i++ {
		tx, err := db.Conn().BeginTx(ctx, nil)
		require.NoError(t, err)
		require.NoError(t, repo.ReplaceTx(ctx, tx, asOf, domain.MethodSingleRaw, entries))
		require.NoError(t, tx.Commit())
	}

	all, err := repo.Get(asOf, domain.MethodSingleRaw, "", "")
	require.NoError(t, err)
	assert.Equal(t, entries, all, "stored order matches ranker order")

	fit, err := repo.Get(asOf, domain.MethodSingleRaw, "F_A", AxisFit)
	require.NoError(t, err)
	require.Len(t, fit, 4)
	assert.Equal(t, "005930", fit[0].SecurityCode)
	assert.Equal(t, SideBottom, fit[2].Side)

	// Rerun without F_B drops its rows
	tx, err := db.Conn().BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, repo.ReplaceTx(ctx, tx, asOf, domain.MethodSingleRaw, entries[:8]))
	require.NoError(t, tx.Commit())

	fb, err := repo.Get(asOf, domain.MethodSingleRaw, "F_B", "")
	require.NoError(t, err)
	assert.Empty(t, fb)
}
