// Package settings provides the key/value settings store in config.db.
// Stored settings take precedence over environment variables, which allows
// tuning windows, schedules and per-factor lag policies without a restart.
package settings

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Repository handles settings database operations.
// Settings are stored as strings and converted on read.
type Repository struct {
	db  *sql.DB        // config.db - settings table
	log zerolog.Logger // Structured logger
}

// NewRepository creates a new settings repository.
//
// Parameters:
//   - db: Database connection to config.db
//   - log: Structured logger
//
// Returns:
//   - *Repository: Initialized repository instance
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "settings").Logger(),
	}
}

// Get retrieves a setting value by key.
// Returns nil if the setting doesn't exist (not an error).
//
// Parameters:
//   - key: Setting key (e.g., "zscore_window", "lag_policy.F_RATE_US10Y")
//
// Returns:
//   - *string: Setting value if found, nil if not found
//   - error: Error if query fails
func (r *Repository) Get(key string) (*string, error) {
	var value string
	err := r.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return &value, nil
}

// Set upserts a setting value. The description is optional.
//
// Parameters:
//   - key: Setting key
//   - value: Setting value (stored as string)
//   - description: Optional description of the setting
//
// Returns:
//   - error: Error if database operation fails
func (r *Repository) Set(key string, value string, description *string) error {
	now := time.Now().Unix()

	var err error
	if description != nil {
		_, err = r.db.Exec(`
			INSERT INTO settings (key, value, description, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET
				value = excluded.value,
				description = excluded.description,
				updated_at = excluded.updated_at
		`, key, value, *description, now)
	} else {
		_, err = r.db.Exec(`
			INSERT INTO settings (key, value, updated_at)
			VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET
				value = excluded.value,
				updated_at = excluded.updated_at
		`, key, value, now)
	}
	if err != nil {
		return fmt.Errorf("failed to set setting %s: %w", key, err)
	}
	return nil
}

// GetAll retrieves all stored settings as a map
func (r *Repository) GetAll() (map[string]string, error) {
	rows, err := r.db.Query("SELECT key, value FROM settings")
	if err != nil {
		return nil, fmt.Errorf("failed to get all settings: %w", err)
	}
	defer rows.Close()

	result := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			r.log.Warn().Err(err).Msg("Failed to scan setting row")
			continue
		}
		result[key] = value
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating settings: %w", err)
	}

	return result, nil
}

// GetByPrefix returns stored settings whose key starts with prefix, with the
// prefix stripped from the returned keys.
func (r *Repository) GetByPrefix(prefix string) (map[string]string, error) {
	rows, err := r.db.Query("SELECT key, value FROM settings WHERE key LIKE ? || '%'", prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to get settings with prefix %s: %w", prefix, err)
	}
	defer rows.Close()

	result := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		// LIKE treats _ as a wildcard; re-check the literal prefix
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		result[strings.TrimPrefix(key, prefix)] = value
	}
	return result, rows.Err()
}

// GetInt retrieves a setting value as integer.
// Returns defaultValue if the setting doesn't exist or parsing fails.
// Handles "12.0" strings by parsing via float first.
func (r *Repository) GetInt(key string, defaultValue int) (int, error) {
	value, err := r.Get(key)
	if err != nil {
		return defaultValue, err
	}
	if value == nil {
		return defaultValue, nil
	}

	floatVal, err := strconv.ParseFloat(*value, 64)
	if err != nil {
		r.log.Warn().
			Err(err).
			Str("key", key).
			Str("value", *value).
			Msg("Failed to parse int setting")
		return defaultValue, nil
	}

	return int(floatVal), nil
}

// SetInt sets a setting value as integer
func (r *Repository) SetInt(key string, value int) error {
	return r.Set(key, strconv.Itoa(value), nil)
}

// GetBool retrieves a setting value as boolean.
// Recognizes "true", "1", "yes" and "on" (case-insensitive) as true.
func (r *Repository) GetBool(key string, defaultValue bool) (bool, error) {
	value, err := r.Get(key)
	if err != nil {
		return defaultValue, err
	}
	if value == nil {
		return defaultValue, nil
	}

	switch strings.ToLower(*value) {
	case "true", "1", "yes", "on":
		return true, nil
	}
	return false, nil
}

// Delete deletes a setting. Deleting a missing key is not an error.
func (r *Repository) Delete(key string) error {
	_, err := r.db.Exec("DELETE FROM settings WHERE key = ?", key)
	if err != nil {
		return fmt.Errorf("failed to delete setting %s: %w", key, err)
	}
	return nil
}
