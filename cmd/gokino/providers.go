package main

import (
	"context"
	"fmt"

	"github.com/google/wire"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"

	"github.com/amaumene/gokino/internal/api"
	"github.com/amaumene/gokino/internal/cachesync"
	"github.com/amaumene/gokino/internal/config"
	"github.com/amaumene/gokino/internal/controllers"
	"github.com/amaumene/gokino/internal/localstore"
	"github.com/amaumene/gokino/internal/metrics"
	"github.com/amaumene/gokino/internal/models"
	"github.com/amaumene/gokino/internal/resolver"
	"github.com/amaumene/gokino/internal/scheduler"
	"github.com/amaumene/gokino/internal/scrapers"
	"github.com/amaumene/gokino/internal/services/catalogapi"
	"github.com/amaumene/gokino/internal/services/notify"
	"github.com/amaumene/gokino/internal/telemetry"
	"github.com/amaumene/gokino/internal/utils"
)

// serverApp is the object graph of the catalog server
type serverApp struct {
	DB        *models.Database
	Scrape    *controllers.ScrapeController
	Export    *controllers.ExportController
	Cleanup   *controllers.CleanupController
	Scheduler *scheduler.Scheduler
	Server    *api.Server
}

// clientApp is the object graph of the cache client
type clientApp struct {
	Store     *localstore.Store
	Syncer    *cachesync.Syncer
	Scheduler *scheduler.Scheduler
}

var commonSet = wire.NewSet(
	metrics.New,
	provideTracer,
)

var serverSet = wire.NewSet(
	commonSet,
	provideDatabase,
	provideIgnoreList,
	provideScrapers,
	resolver.NewResolver,
	provideScrapeController,
	providePublisher,
	wire.Bind(new(controllers.ExportNotifier), new(*notify.Publisher)),
	provideExportController,
	provideCleanupController,
	provideServerScheduler,
	api.NewServer,
	wire.Struct(new(serverApp), "*"),
)

var clientSet = wire.NewSet(
	commonSet,
	provideLocalStore,
	provideCatalogClient,
	provideSyncer,
	provideClientScheduler,
	wire.Struct(new(clientApp), "*"),
)

func provideTracer(logger *logrus.Logger) (trace.Tracer, func()) {
	provider := telemetry.NewTracerProvider(logger)
	return telemetry.Tracer(provider), func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			logger.WithError(err).Warn("Failed to shut down tracer provider")
		}
	}
}

func provideDatabase(cfg *config.Config, logger *logrus.Logger) (*models.Database, func(), error) {
	db, err := models.NewDatabase(cfg.DatabaseFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	logger.Info("Database initialized")
	return db, func() {
		if err := db.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close database")
		}
	}, nil
}

func provideIgnoreList(cfg *config.Config, logger *logrus.Logger) *utils.IgnoreList {
	ignore, err := utils.LoadIgnoreList(cfg.IgnoreFile)
	if err != nil {
		logger.WithError(err).Warn("Failed to load ignore list, continuing without it")
		return utils.NewIgnoreList()
	}
	logger.WithField("terms", ignore.Len()).Info("Ignore list loaded")
	return ignore
}

func provideScrapers(cfg *config.Config, logger *logrus.Logger) ([]scrapers.Scraper, error) {
	sources, err := config.LoadSources(cfg.SourcesFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load sources: %w", err)
	}
	if len(sources) == 0 {
		logger.WithField("file", cfg.SourcesFile).Warn("No sources configured")
	}

	fetcher := scrapers.NewFetcher(cfg.HTTPTimeout, cfg.HTTPRetries, logger)
	registry, err := scrapers.FromSources(sources, fetcher, cfg.Location, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to register sources: %w", err)
	}
	logger.WithField("sources", len(registry)).Info("Sources registered")
	return registry, nil
}

func provideScrapeController(
	cfg *config.Config,
	db *models.Database,
	res *resolver.Resolver,
	registry []scrapers.Scraper,
	ignore *utils.IgnoreList,
	m *metrics.Metrics,
	tracer trace.Tracer,
	logger *logrus.Logger,
) *controllers.ScrapeController {
	opts := controllers.ScrapeOptions{
		Concurrency: cfg.ScrapeConcurrency,
		Timeout:     cfg.ScrapeTimeout,
		LockFile:    cfg.LockFile,
	}
	return controllers.NewScrapeController(db, res, registry, ignore, opts, m, tracer, logger)
}

func providePublisher(cfg *config.Config, logger *logrus.Logger) *notify.Publisher {
	return notify.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
}

func provideExportController(cfg *config.Config, db *models.Database, notifier controllers.ExportNotifier, m *metrics.Metrics, tracer trace.Tracer, logger *logrus.Logger) *controllers.ExportController {
	return controllers.NewExportController(db, cfg.DataDir, notifier, m, tracer, logger)
}

func provideCleanupController(cfg *config.Config, db *models.Database, m *metrics.Metrics, logger *logrus.Logger) *controllers.CleanupController {
	return controllers.NewCleanupController(db, cfg.ServerRetention, m, logger)
}

func provideServerScheduler(
	cfg *config.Config,
	scrape *controllers.ScrapeController,
	export *controllers.ExportController,
	cleanup *controllers.CleanupController,
	logger *logrus.Logger,
) *scheduler.Scheduler {
	jobs := scheduler.ServerJobs{
		Scrape:          scrape,
		Export:          export,
		Cleanup:         cleanup,
		ScrapeSchedule:  cfg.ScrapeSchedule,
		CleanupSchedule: cfg.CleanupSchedule,
	}
	return scheduler.NewServerScheduler(jobs, cfg.Location, logger)
}

func provideLocalStore(cfg *config.Config, logger *logrus.Logger) (*localstore.Store, func(), error) {
	store, err := localstore.Open(cfg.CacheFile)
	if err != nil {
		return nil, nil, err
	}
	return store, func() {
		if err := store.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close local store")
		}
	}, nil
}

func provideCatalogClient(cfg *config.Config, logger *logrus.Logger) (*catalogapi.Client, error) {
	return catalogapi.NewClient(cfg.CatalogURL, cfg.SyncTimeout, logger)
}

func provideSyncer(cfg *config.Config, client *catalogapi.Client, store *localstore.Store, m *metrics.Metrics, tracer trace.Tracer, logger *logrus.Logger) *cachesync.Syncer {
	return cachesync.NewSyncer(client, store, cfg.SyncGrace, m, tracer, logger)
}

func provideClientScheduler(cfg *config.Config, syncer *cachesync.Syncer, logger *logrus.Logger) *scheduler.Scheduler {
	return scheduler.NewClientScheduler(syncer, cfg.SyncSchedule, cfg.Location, logger)
}
