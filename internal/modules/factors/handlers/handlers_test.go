package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aristath/factorrisk/internal/config"
	"github.com/aristath/factorrisk/internal/domain"
	"github.com/aristath/factorrisk/internal/modules/factors"
	testingutil "github.com/aristath/factorrisk/internal/testing"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter(t *testing.T) chi.Router {
	t.Helper()
	db, cleanup := testingutil.NewTestDB(t, "market")
	t.Cleanup(cleanup)

	log := zerolog.Nop()
	repo := factors.NewRepository(db.Conn(), log)
	catalog := &config.Catalog{Factors: []config.FactorSpec{
		{Code: "F_EQ", RetType: config.RetLog, Frequency: config.FrequencyDaily, LagPolicy: "1"},
		{Code: "F_FX", RetType: config.RetLog, Frequency: config.FrequencyDaily},
	}}

	start := domain.MustParseDate("2024-01-01")
	var obs []factors.Observation
	for i := 0; i < 30; i++ {
		date := start.AddDate(0, 0, i)
		obs = append(obs,
			factors.Observation{FactorCode: "F_EQ", Date: date, Level: 100 + float64(i%5)},
			factors.Observation{FactorCode: "F_FX", Date: date, Level: 1300 + float64(i%7)},
		)
	}
	ctx := context.Background()
	require.NoError(t, repo.UpsertObservations(ctx, "FILE", obs))

	svc := factors.NewService(catalog, repo, nil, log)
	set, err := svc.Normalize(ctx, 10)
	require.NoError(t, err)
	require.NoError(t, repo.SaveSet(ctx, set))

	r := chi.NewRouter()
	NewHandler(svc, repo, 252, log).RegisterRoutes(r)
	return r
}

func get(r chi.Router, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHandleGetCatalog(t *testing.T) {
	r := setupRouter(t)

	rec := get(r, "/factors/")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data []struct {
			Code         string `json:"code"`
			EffectiveLag string `json:"effective_lag_policy"`
		} `json:"data"`
		Metadata map[string]interface{} `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "F_EQ", resp.Data[0].Code)
	assert.Equal(t, "1", resp.Data[0].EffectiveLag)
	assert.Equal(t, "0", resp.Data[1].EffectiveLag)
	assert.Contains(t, resp.Metadata, "timestamp")
}

func TestHandleGetReturns(t *testing.T) {
	r := setupRouter(t)

	rec := get(r, "/factors/F_FX/returns?from=2024-01-10&to=2024-01-12")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data []struct {
			ObservedDate time.Time `json:"observed_date"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Data, 3)

	assert.Equal(t, http.StatusNotFound, get(r, "/factors/F_NOPE/returns").Code)
	assert.Equal(t, http.StatusBadRequest, get(r, "/factors/F_FX/returns?from=yesterday").Code)
}

func TestHandleGetDiagnostics(t *testing.T) {
	r := setupRouter(t)

	rec := get(r, "/factors/F_EQ/diagnostics?window=5&against=F_FX")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data factors.Diagnostics `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 5, resp.Data.Window)
	assert.NotEmpty(t, resp.Data.Volatility)
	assert.NotEmpty(t, resp.Data.Correlation)

	assert.Equal(t, http.StatusBadRequest, get(r, "/factors/F_EQ/diagnostics?window=1").Code)
	assert.Equal(t, http.StatusBadRequest, get(r, "/factors/F_EQ/diagnostics?against=F_NOPE").Code)
}
