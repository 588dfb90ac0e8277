package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aristath/factorrisk/internal/modules/settings"
	testingutil "github.com/aristath/factorrisk/internal/testing"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(t *testing.T) (*chi.Mux, *settings.Service) {
	t.Helper()
	db, cleanup := testingutil.NewTestDB(t, "config")
	t.Cleanup(cleanup)

	svc := settings.NewService(settings.NewRepository(db.Conn(), zerolog.Nop()), zerolog.Nop())
	r := chi.NewRouter()
	NewHandler(svc, zerolog.Nop()).RegisterRoutes(r)
	return r, svc
}

func TestHandleUpdate(t *testing.T) {
	r, svc := newRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/settings/ranking_top_n", strings.NewReader(`{"value": 3}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"updated":true`)

	v, err := svc.Repository().Get("ranking_top_n")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, "3", *v)
}

func TestHandleUpdate_Rejected(t *testing.T) {
	r, _ := newRouter(t)

	for name, body := range map[string]struct{ key, body string }{
		"unknown key":   {"nope", `{"value": 1}`},
		"invalid value": {"beta_min_obs", `{"value": "sixty"}`},
		"bad body":      {"ranking_top_n", `{`},
	} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/settings/"+body.key, strings.NewReader(body.body)))
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
	}
}

func TestHandleGetAll(t *testing.T) {
	r, svc := newRouter(t)
	require.NoError(t, svc.Set("ecos_api_key", "secret-key-9876"))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/settings/", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data []settings.Setting `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, len(settings.SettingDefaults))

	for _, s := range resp.Data {
		if s.Key == "ecos_api_key" {
			assert.Equal(t, "****9876", s.Value)
			assert.True(t, s.Overridden)
		}
	}
	assert.NotContains(t, rec.Body.String(), "secret-key")
}
