package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aristath/factorrisk/internal/domain"
	"github.com/aristath/factorrisk/internal/modules/exposure"
	testingutil "github.com/aristath/factorrisk/internal/testing"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleGetExposure(t *testing.T) {
	db, cleanup := testingutil.NewTestDB(t, "analytics")
	defer cleanup()
	repo := exposure.NewRepository(db.Conn(), zerolog.Nop())

	r := chi.NewRouter()
	NewHandler(repo, zerolog.Nop()).RegisterRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/exposure?method=SINGLE_RAW", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	date := domain.MustParseDate("2024-03-29")
	total := 0.5
	ctx := context.Background()
	tx, err := db.Conn().BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, repo.ReplaceTx(ctx, tx, date, domain.MethodSingleRaw, []exposure.Exposure{{
		FactorCode:        "F_X",
		NPositionsTotal:   2,
		TotalEval:         1000,
		BetaWeightedTotal: &total,
	}}))
	require.NoError(t, tx.Commit())

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/exposure?method=SINGLE_RAW", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data     []map[string]interface{} `json:"data"`
		Metadata map[string]interface{}   `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, 0.5, resp.Data[0]["beta_weighted_total"])
	assert.Nil(t, resp.Data[0]["beta_weighted_covered"])
	assert.Equal(t, "2024-03-29", resp.Metadata["portfolio_date"])

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/exposure?date=2024-03-29", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
