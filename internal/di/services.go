// Package di provides dependency injection for service implementations.
package di

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/factorrisk/internal/clients/ecos"
	"github.com/aristath/factorrisk/internal/clients/fred"
	"github.com/aristath/factorrisk/internal/config"
	"github.com/aristath/factorrisk/internal/domain"
	"github.com/aristath/factorrisk/internal/modules/factors"
	"github.com/aristath/factorrisk/internal/modules/portfolio"
	"github.com/aristath/factorrisk/internal/modules/ranking"
	"github.com/aristath/factorrisk/internal/modules/settings"
	"github.com/aristath/factorrisk/internal/modules/universe"
	"github.com/aristath/factorrisk/internal/pipeline"
	"github.com/aristath/factorrisk/internal/reliability"
	"github.com/aristath/factorrisk/internal/reports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
)

// InitializeServices creates all services and stores them in the container
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}

	catalog, err := config.LoadCatalog(cfg.FactorCatalogPath)
	if err != nil {
		return fmt.Errorf("failed to load factor catalog: %w", err)
	}
	container.Catalog = catalog

	loc, err := SchedulerLocation(cfg)
	if err != nil {
		return err
	}

	// ==========================================
	// Metrics
	// ==========================================
	container.Registry = prometheus.NewRegistry()
	container.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	container.Metrics = pipeline.NewMetrics(container.Registry)

	// ==========================================
	// Settings
	// ==========================================
	container.SettingsService = settings.NewService(container.SettingsRepo, log)

	// ==========================================
	// External clients
	// ==========================================
	fetchers := map[string]factors.LevelFetcher{}
	if cfg.FREDAPIKey != "" {
		container.FREDClient = fred.NewClient(cfg.FREDAPIKey, container.ClientDataRepo, log)
		fetchers[factors.SourceFRED] = factors.FREDFetcher{Client: container.FREDClient}
	} else {
		log.Warn().Msg("FRED_API_KEY not set, FRED factors will not sync")
	}
	if cfg.ECOSAPIKey != "" {
		container.ECOSClient = ecos.NewClient(cfg.ECOSAPIKey, container.ClientDataRepo, log)
		fetchers[factors.SourceECOS] = factors.ECOSFetcher{Client: container.ECOSClient}
	} else {
		log.Warn().Msg("ECOS_API_KEY not set, ECOS factors will not sync")
	}

	// ==========================================
	// Factors
	// ==========================================
	container.FactorService = factors.NewService(catalog, container.FactorRepo, container.SettingsService, log)
	container.SyncService = factors.NewSyncService(catalog, container.FactorRepo, fetchers, loc, log)
	container.FactorImporter = factors.NewImporter(catalog, container.FactorRepo, log)
	container.LagScanner = factors.NewLagScanner(catalog, container.FactorRepo, container.HistoryDB, container.SettingsService, log)

	// ==========================================
	// Securities and portfolio
	// ==========================================
	container.PriceImportService = universe.NewPriceImportService(container.HistoryDB, universe.NewPriceValidator(log), log)
	container.PortfolioService = portfolio.NewPortfolioService(container.PositionRepo, log)

	// ==========================================
	// Rankings (on demand, API)
	// ==========================================
	container.RankingService = ranking.NewService(
		container.BetaRepo,
		ranking.NewRanker(cfg.Analytics.RankingTopN, log),
		cfg.Analytics.BetaWindowDays,
		cfg.Analytics.BetaLookback,
		log,
	)

	// ==========================================
	// Reports
	// ==========================================
	container.ReportCollector = reports.NewCollector(container.BetaRepo, container.ExposureRepo, container.RiskRepo, container.RankingRepo)
	container.ReportWriter = reports.NewWriter(cfg.ReportDir, log)

	if cfg.Schedules.ReportPublish {
		if !cfg.R2.Enabled() {
			log.Warn().Msg("REPORT_PUBLISH is set but R2 credentials are incomplete, reports stay local")
		} else {
			r2, err := reliability.NewR2Client(context.Background(), cfg.R2.AccountID, cfg.R2.AccessKeyID, cfg.R2.SecretAccessKey, cfg.R2.Bucket, log)
			if err != nil {
				return fmt.Errorf("failed to create R2 client: %w", err)
			}
			container.ReportPublisher = reliability.NewReportPublisher(r2, log)
		}
	}

	// ==========================================
	// Pipeline
	// ==========================================
	container.Pipeline = pipeline.New(pipeline.Deps{
		AnalyticsDB:  container.AnalyticsDB.Conn(),
		Config:       AnalyticsConfigSource(cfg, container.SettingsRepo),
		Normalizer:   container.FactorService,
		FactorRepo:   container.FactorRepo,
		Returns:      container.HistoryDB,
		Portfolio:    container.PortfolioService,
		BetaRepo:     container.BetaRepo,
		ExposureRepo: container.ExposureRepo,
		RiskRepo:     container.RiskRepo,
		RankingRepo:  container.RankingRepo,
		Runs:         container.RunRepo,
		Reporter:     pipeline.NewFileReporter(container.ReportCollector, container.ReportWriter, container.ReportPublisher, log),
		Metrics:      container.Metrics,
	}, log)

	log.Info().
		Int("factors", len(catalog.Factors)).
		Int("fetchers", len(fetchers)).
		Bool("publish", container.ReportPublisher != nil).
		Msg("Services initialized")
	return nil
}

// AnalyticsConfigSource re-reads the settings database on every call, so a
// setting changed through the API applies to the next run without a restart.
func AnalyticsConfigSource(cfg *config.Config, repo config.SettingsGetter) pipeline.ConfigSource {
	return func() (config.AnalyticsConfig, error) {
		snapshot := *cfg
		if err := snapshot.UpdateFromSettings(repo); err != nil {
			return config.AnalyticsConfig{}, err
		}
		return snapshot.Analytics, nil
	}
}

// SchedulerLocation resolves the time zone used for cron schedules and for
// "today" when the daily pipeline picks its as-of date.
func SchedulerLocation(cfg *config.Config) (*time.Location, error) {
	loc, err := time.LoadLocation(cfg.Schedules.SchedulerTZ)
	if err != nil {
		return nil, &domain.ConfigurationError{Field: "SCHEDULER_TZ", Reason: err.Error()}
	}
	return loc, nil
}
