// Package di provides dependency injection for repository implementations.
package di

import (
	"fmt"

	"github.com/aristath/factorrisk/internal/clientdata"
	"github.com/aristath/factorrisk/internal/modules/betas"
	"github.com/aristath/factorrisk/internal/modules/exposure"
	"github.com/aristath/factorrisk/internal/modules/factors"
	"github.com/aristath/factorrisk/internal/modules/portfolio"
	"github.com/aristath/factorrisk/internal/modules/ranking"
	"github.com/aristath/factorrisk/internal/modules/risk"
	"github.com/aristath/factorrisk/internal/modules/settings"
	"github.com/aristath/factorrisk/internal/modules/universe"
	"github.com/aristath/factorrisk/internal/pipeline"
	"github.com/rs/zerolog"
)

// InitializeRepositories creates all repositories and stores them in the container
func InitializeRepositories(container *Container, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}
	if container.MarketDB == nil || container.AnalyticsDB == nil || container.ConfigDB == nil || container.CacheDB == nil {
		return fmt.Errorf("databases must be initialized before repositories")
	}

	// cache.db
	container.ClientDataRepo = clientdata.NewRepository(container.CacheDB.Conn(), log)

	// config.db
	container.SettingsRepo = settings.NewRepository(container.ConfigDB.Conn(), log)

	// market.db
	container.FactorRepo = factors.NewRepository(container.MarketDB.Conn(), log)
	container.HistoryDB = universe.NewHistoryDB(container.MarketDB.Conn(), log)
	container.PositionRepo = portfolio.NewPositionRepository(container.MarketDB.Conn(), log)

	// analytics.db
	container.BetaRepo = betas.NewRepository(container.AnalyticsDB.Conn(), log)
	container.ExposureRepo = exposure.NewRepository(container.AnalyticsDB.Conn(), log)
	container.RiskRepo = risk.NewRepository(container.AnalyticsDB.Conn(), log)
	container.RankingRepo = ranking.NewRepository(container.AnalyticsDB.Conn(), log)
	container.RunRepo = pipeline.NewRunRepository(container.AnalyticsDB.Conn(), log)

	log.Info().Msg("Repositories initialized")
	return nil
}
