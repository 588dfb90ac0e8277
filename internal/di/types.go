/**
 * Package di provides dependency injection type definitions.
 *
 * This package defines the Container type which holds all application dependencies.
 * The Container is the single source of truth for all service instances and is
 * passed to the server, the scheduler and the CLI.
 */
package di

import (
	"github.com/aristath/factorrisk/internal/clientdata"
	"github.com/aristath/factorrisk/internal/clients/ecos"
	"github.com/aristath/factorrisk/internal/clients/fred"
	"github.com/aristath/factorrisk/internal/config"
	"github.com/aristath/factorrisk/internal/database"
	"github.com/aristath/factorrisk/internal/modules/betas"
	"github.com/aristath/factorrisk/internal/modules/exposure"
	"github.com/aristath/factorrisk/internal/modules/factors"
	"github.com/aristath/factorrisk/internal/modules/portfolio"
	"github.com/aristath/factorrisk/internal/modules/ranking"
	"github.com/aristath/factorrisk/internal/modules/risk"
	"github.com/aristath/factorrisk/internal/modules/settings"
	"github.com/aristath/factorrisk/internal/modules/universe"
	"github.com/aristath/factorrisk/internal/pipeline"
	"github.com/aristath/factorrisk/internal/reliability"
	"github.com/aristath/factorrisk/internal/reports"
	"github.com/aristath/factorrisk/internal/scheduler"
	"github.com/prometheus/client_golang/prometheus"
)

/**
 * Container holds all dependencies for the application.
 *
 * Architecture:
 * - Databases: market (inputs), analytics (results), config (settings), cache (API responses)
 * - Clients: FRED and ECOS, both behind the cache
 * - Repositories: one per table family
 * - Services: normalization, sync, imports, estimation pipeline, reporting
 */
type Container struct {
	// Databases
	MarketDB    *database.DB
	AnalyticsDB *database.DB
	ConfigDB    *database.DB
	CacheDB     *database.DB

	Catalog *config.Catalog

	// Repositories
	ClientDataRepo *clientdata.Repository
	SettingsRepo   *settings.Repository
	FactorRepo     *factors.Repository
	HistoryDB      *universe.HistoryDB
	PositionRepo   *portfolio.PositionRepository
	BetaRepo       *betas.Repository
	ExposureRepo   *exposure.Repository
	RiskRepo       *risk.Repository
	RankingRepo    *ranking.Repository
	RunRepo        *pipeline.RunRepository

	// Clients (nil when the API key is not configured)
	FREDClient *fred.Client
	ECOSClient *ecos.Client

	// Services
	SettingsService    *settings.Service
	FactorService      *factors.Service
	SyncService        *factors.SyncService
	FactorImporter     *factors.Importer
	LagScanner         *factors.LagScanner
	PriceImportService *universe.PriceImportService
	PortfolioService   *portfolio.PortfolioService
	RankingService     *ranking.Service
	ReportCollector    *reports.Collector
	ReportWriter       *reports.Writer
	ReportPublisher    *reliability.ReportPublisher // nil unless R2 is configured and publishing enabled
	Pipeline           *pipeline.Pipeline

	// Metrics
	Registry *prometheus.Registry
	Metrics  *pipeline.Metrics
}

// Databases returns every open database keyed by name
func (c *Container) Databases() map[string]*database.DB {
	dbs := make(map[string]*database.DB, 4)
	for _, db := range []*database.DB{c.MarketDB, c.AnalyticsDB, c.ConfigDB, c.CacheDB} {
		if db != nil {
			dbs[db.Name()] = db
		}
	}
	return dbs
}

// Close closes every open database
func (c *Container) Close() error {
	var firstErr error
	for _, db := range c.Databases() {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// JobInstances holds the scheduled jobs for registration and manual triggering
type JobInstances struct {
	FactorSync   scheduler.Job
	Pipeline     scheduler.Job
	Maintenance  scheduler.Job
	CacheCleanup scheduler.Job
}
