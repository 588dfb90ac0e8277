// Package di provides dependency injection for database connections.
package di

import (
	"fmt"
	"path/filepath"

	"github.com/aristath/factorrisk/internal/config"
	"github.com/aristath/factorrisk/internal/database"
	"github.com/rs/zerolog"
)

// databaseSpecs lists the four databases in open order
var databaseSpecs = []struct {
	name    string
	profile database.DatabaseProfile
}{
	{database.NameMarket, database.ProfileStandard},  // factor levels, prices, positions
	{database.NameAnalytics, database.ProfileLedger}, // run results, kept for audit
	{database.NameConfig, database.ProfileStandard},  // settings
	{database.NameCache, database.ProfileCache},      // API response cache
}

// InitializeDatabases opens all databases and applies schemas
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	for _, spec := range databaseSpecs {
		db, err := database.New(database.Config{
			Path:    filepath.Join(cfg.DataDir, spec.name+".db"),
			Profile: spec.profile,
			Name:    spec.name,
		})
		if err != nil {
			_ = container.Close()
			return nil, fmt.Errorf("failed to initialize %s database: %w", spec.name, err)
		}

		if err := db.Migrate(); err != nil {
			_ = db.Close()
			_ = container.Close()
			return nil, fmt.Errorf("failed to migrate %s database: %w", spec.name, err)
		}

		switch spec.name {
		case database.NameMarket:
			container.MarketDB = db
		case database.NameAnalytics:
			container.AnalyticsDB = db
		case database.NameConfig:
			container.ConfigDB = db
		case database.NameCache:
			container.CacheDB = db
		}

		log.Debug().Str("database", spec.name).Str("profile", string(spec.profile)).Msg("Database ready")
	}

	log.Info().Int("count", len(databaseSpecs)).Msg("Databases initialized")
	return container, nil
}
