// Package testing provides database helpers shared by factorrisk tests.
package testing

import (
	"fmt"
	"os"
	"testing"

	"github.com/aristath/factorrisk/internal/database"
)

// NewTestDB creates a temp-file SQLite database with the named schema applied.
// Returns the database instance and a cleanup function that closes the
// connection and removes the file.
//
// Supported schema names:
//   - "market"    - applies market_schema.sql
//   - "analytics" - applies analytics_schema.sql
//   - "config"    - applies config_schema.sql
//   - "cache"     - applies cache_schema.sql
//   - Unknown names - creates empty database (no schema applied)
func NewTestDB(t *testing.T, name string) (*database.DB, func()) {
	t.Helper()

	// Temp files rather than :memory: so every pooled connection sees the same data
	tmpPath, cleanupFile := CreateTempDBFile(t, "test_"+name)

	db, err := database.New(database.Config{
		Path:    tmpPath,
		Profile: database.ProfileStandard,
		Name:    name,
	})
	if err != nil {
		cleanupFile()
		t.Fatalf("Failed to create test database %s: %v", name, err)
	}

	if err := db.Migrate(); err != nil {
		_ = db.Close()
		cleanupFile()
		t.Fatalf("Failed to migrate test database %s: %v", name, err)
	}

	return db, func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: Failed to close test database %s: %v", name, err)
		}
		cleanupFile()
	}
}

// NewTestDBWithSchema creates a temp-file database and executes schema on it
// instead of the named migration.
func NewTestDBWithSchema(t *testing.T, name string, schema string) (*database.DB, func()) {
	t.Helper()

	tmpPath, cleanupFile := CreateTempDBFile(t, "test_"+name)

	db, err := database.New(database.Config{
		Path:    tmpPath,
		Profile: database.ProfileStandard,
		Name:    name,
	})
	if err != nil {
		cleanupFile()
		t.Fatalf("Failed to create test database %s: %v", name, err)
	}

	if schema != "" {
		if _, err := db.Conn().Exec(schema); err != nil {
			_ = db.Close()
			cleanupFile()
			t.Fatalf("Failed to execute custom schema for test database %s: %v", name, err)
		}
	}

	return db, func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: Failed to close test database %s: %v", name, err)
		}
		cleanupFile()
	}
}

// CreateTempDBFile creates a temporary database file for testing.
// Returns the file path and a cleanup function that removes the file and its WAL companions.
func CreateTempDBFile(t *testing.T, name string) (string, func()) {
	t.Helper()

	tmpFile, err := os.CreateTemp("", fmt.Sprintf("%s_*.db", name))
	if err != nil {
		t.Fatalf("Failed to create temporary database file: %v", err)
	}
	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()

	return tmpPath, func() {
		for _, p := range []string{tmpPath, tmpPath + "-wal", tmpPath + "-shm"} {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				t.Logf("Warning: Failed to remove temporary database file %s: %v", p, err)
			}
		}
	}
}
