package factors

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseObservationsCSV(t *testing.T) {
	in := "\ufefffactor_code,date,level\nF_GOLD,2024-03-28,105.2\nF_GOLD,2024-03-29,\nF_GOLD,2024-04-01,106.1\n"
	obs, err := ParseObservationsCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, obs, 2)
	assert.Equal(t, d("2024-04-01"), obs[1].Date)
	assert.Equal(t, 106.1, obs[1].Level)

	_, err = ParseObservationsCSV(strings.NewReader("factor_code,date\nF,2024-01-01\n"))
	assert.Error(t, err)
	_, err = ParseObservationsCSV(strings.NewReader("factor_code,date,level\nF,2024-01-01,abc\n"))
	assert.Error(t, err)
}

func TestImporter_Import(t *testing.T) {
	repo := newTestRepository(t)
	imp := NewImporter(syncCatalog(), repo, zerolog.Nop())
	ctx := context.Background()

	summary, err := imp.Import(ctx, strings.NewReader("factor_code,date,level\nF_GOLD,2024-03-28,105.2\nF_GOLD,2024-03-29,105.9\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Rows)
	assert.Equal(t, map[string]int{"F_GOLD": 2}, summary.ByFactor)

	_, err = imp.Import(ctx, strings.NewReader("factor_code,date,level\nF_NOPE,2024-03-28,1\n"))
	assert.Error(t, err)

	obs, err := repo.GetObservations("F_GOLD")
	require.NoError(t, err)
	assert.Len(t, obs, 2)
}
