package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTempDB(t *testing.T, name string, profile DatabaseProfile) *DB {
	t.Helper()
	db, err := New(Config{
		Path:    filepath.Join(t.TempDir(), name+".db"),
		Profile: profile,
		Name:    name,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrate_AllDatabases(t *testing.T) {
	tables := map[string][]string{
		NameMarket:    {"factor_observations", "factor_returns", "factor_returns_z", "security_prices", "positions", "portfolio_snapshots"},
		NameAnalytics: {"security_betas", "portfolio_factor_exposure", "risk_decomposition", "factor_covariance", "factor_rankings", "pipeline_runs", "run_report"},
		NameConfig:    {"settings"},
		NameCache:     {"fred_observations", "ecos_observations"},
	}

	for name, want := range tables {
		t.Run(name, func(t *testing.T) {
			db := newTempDB(t, name, ProfileStandard)
			require.NoError(t, db.Migrate())
			// Second migration must be a no-op
			require.NoError(t, db.Migrate())

			for _, table := range want {
				var got string
				err := db.Conn().QueryRow(
					"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
				).Scan(&got)
				require.NoError(t, err, "table %s missing", table)
			}
		})
	}
}

func TestMigrate_UnknownNameIsNoop(t *testing.T) {
	db := newTempDB(t, "scratch", ProfileCache)
	assert.NoError(t, db.Migrate())
}

func TestWithTransaction_RollsBackOnError(t *testing.T) {
	db := newTempDB(t, NameConfig, ProfileStandard)
	require.NoError(t, db.Migrate())

	boom := errors.New("boom")
	err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		_, execErr := tx.Exec("INSERT INTO settings (key, value, updated_at) VALUES ('a', '1', 0)")
		require.NoError(t, execErr)
		return boom
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var n int
	require.NoError(t, db.Conn().QueryRow("SELECT COUNT(*) FROM settings").Scan(&n))
	assert.Equal(t, 0, n)
}

func TestWithTransaction_RecoversPanic(t *testing.T) {
	db := newTempDB(t, NameConfig, ProfileStandard)
	require.NoError(t, db.Migrate())

	err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		_, _ = tx.Exec("INSERT INTO settings (key, value, updated_at) VALUES ('a', '1', 0)")
		panic("mid-commit")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic in transaction")

	var n int
	require.NoError(t, db.Conn().QueryRow("SELECT COUNT(*) FROM settings").Scan(&n))
	assert.Equal(t, 0, n)
}

func TestWithTransaction_Commits(t *testing.T) {
	db := newTempDB(t, NameConfig, ProfileLedger)
	require.NoError(t, db.Migrate())

	err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		_, err := tx.Exec("INSERT INTO settings (key, value, updated_at) VALUES ('a', '1', 0)")
		return err
	})
	require.NoError(t, err)

	var v string
	require.NoError(t, db.Conn().QueryRow("SELECT value FROM settings WHERE key='a'").Scan(&v))
	assert.Equal(t, "1", v)
}

func TestHealthCheckAndCheckpoint(t *testing.T) {
	db := newTempDB(t, NameMarket, ProfileStandard)
	require.NoError(t, db.Migrate())

	assert.NoError(t, db.HealthCheck(context.Background()))
	assert.NoError(t, db.WALCheckpoint(""))
	assert.Error(t, db.WALCheckpoint("SIDEWAYS"))

	stats, err := db.GetStats()
	require.NoError(t, err)
	assert.Greater(t, stats.PageCount, int64(0))
}

func TestBuildConnectionString_Profiles(t *testing.T) {
	assert.Contains(t, buildConnectionString("x.db", ProfileLedger), "synchronous(FULL)")
	assert.Contains(t, buildConnectionString("x.db", ProfileCache), "synchronous(OFF)")
	assert.Contains(t, buildConnectionString("x.db", ProfileStandard), "synchronous(NORMAL)")
}
