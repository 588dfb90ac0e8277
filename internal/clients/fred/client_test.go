package fred

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aristath/factorrisk/internal/clientdata"
	"github.com/aristath/factorrisk/internal/domain"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixture = `{"observations":[
	{"date":"2024-03-26","value":"4.23"},
	{"date":"2024-03-27","value":"."},
	{"date":"2024-03-28","value":"4.20"}
]}`

func newTestClient(t *testing.T, url string, cache *clientdata.Repository) *Client {
	c := NewClient("test-key", cache, zerolog.Nop())
	c.http.SetBaseURL(url).SetRetryCount(0)
	return c
}

func TestObservations_SkipsMissingValues(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/series/observations", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "DGS10", q.Get("series_id"))
		assert.Equal(t, "test-key", q.Get("api_key"))
		assert.Equal(t, "json", q.Get("file_type"))
		assert.Equal(t, "2024-03-01", q.Get("observation_start"))
		assert.Equal(t, "2024-03-28", q.Get("observation_end"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(fixture))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, nil)
	obs, err := c.Observations(context.Background(), "DGS10",
		domain.MustParseDate("2024-03-01"), domain.MustParseDate("2024-03-28"), time.Hour)
	require.NoError(t, err)

	require.Len(t, obs, 2)
	assert.Equal(t, domain.MustParseDate("2024-03-26"), obs[0].Date)
	assert.Equal(t, 4.20, obs[1].Value)
}

func TestObservations_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error_code":400,"error_message":"Bad Request. The series does not exist."}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, nil)
	_, err := c.Observations(context.Background(), "NOPE", time.Now(), time.Now(), time.Hour)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "series does not exist")
}

func TestObservations_CacheAndStaleFallback(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer db.Close()
	db.SetMaxOpenConns(1)
	_, err = db.Exec(`CREATE TABLE fred_observations (series_key TEXT PRIMARY KEY, data TEXT NOT NULL, expires_at INTEGER NOT NULL)`)
	require.NoError(t, err)
	cache := clientdata.NewRepository(db, zerolog.Nop())

	var hits int32
	var down atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if down.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(fixture))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, cache)
	start, end := domain.MustParseDate("2024-03-01"), domain.MustParseDate("2024-03-28")

	obs, err := c.Observations(context.Background(), "DGS10", start, end, time.Hour)
	require.NoError(t, err)
	require.Len(t, obs, 2)

	obs, err = c.Observations(context.Background(), "DGS10", start, end, time.Hour)
	require.NoError(t, err)
	assert.Len(t, obs, 2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits), "fresh cache hit")

	// Expired entry and a failing upstream: the stale copy is served
	_, err = db.Exec(`UPDATE fred_observations SET expires_at = 0`)
	require.NoError(t, err)
	down.Store(true)

	obs, err = c.Observations(context.Background(), "DGS10", start, end, time.Hour)
	require.NoError(t, err)
	assert.Len(t, obs, 2)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}
