package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/gokino/internal/cachesync"
	"github.com/amaumene/gokino/internal/controllers"
)

// Scheduler manages scheduled tasks
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	logger *logrus.Logger

	// Server jobs
	scrapeCtrl      *controllers.ScrapeController
	exportCtrl      *controllers.ExportController
	cleanupCtrl     *controllers.CleanupController
	scrapeSchedule  string
	cleanupSchedule string

	// Client jobs
	syncer       *cachesync.Syncer
	syncSchedule string
}

// ServerJobs are the controllers and schedules of the catalog server
type ServerJobs struct {
	Scrape          *controllers.ScrapeController
	Export          *controllers.ExportController
	Cleanup         *controllers.CleanupController
	ScrapeSchedule  string
	CleanupSchedule string
}

func newScheduler(location *time.Location, logger *logrus.Logger) *Scheduler {
	if location == nil {
		location = time.Local
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		// Overlapping runs of the same job are skipped
		cron: cron.New(
			cron.WithLocation(location),
			cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(logger))),
		),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}
}

// NewServerScheduler creates a scheduler for scrape + export and cleanup
func NewServerScheduler(jobs ServerJobs, location *time.Location, logger *logrus.Logger) *Scheduler {
	s := newScheduler(location, logger)
	s.scrapeCtrl = jobs.Scrape
	s.exportCtrl = jobs.Export
	s.cleanupCtrl = jobs.Cleanup
	s.scrapeSchedule = jobs.ScrapeSchedule
	s.cleanupSchedule = jobs.CleanupSchedule
	return s
}

// NewClientScheduler creates a scheduler polling the catalog
func NewClientScheduler(syncer *cachesync.Syncer, schedule string, location *time.Location, logger *logrus.Logger) *Scheduler {
	s := newScheduler(location, logger)
	s.syncer = syncer
	s.syncSchedule = schedule
	return s
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.logger.Info("Starting scheduler")

	if s.scrapeCtrl != nil {
		// Scrape all sources, then export the catalog
		if _, err := s.cron.AddFunc(s.scrapeSchedule, s.runScrape); err != nil {
			return fmt.Errorf("failed to add scrape job: %w", err)
		}
	}

	if s.cleanupCtrl != nil {
		// Remove long past showtimes
		if _, err := s.cron.AddFunc(s.cleanupSchedule, s.runCleanup); err != nil {
			return fmt.Errorf("failed to add cleanup job: %w", err)
		}
	}

	if s.syncer != nil {
		// Poll the catalog marker
		if _, err := s.cron.AddFunc(s.syncSchedule, s.runSync); err != nil {
			return fmt.Errorf("failed to add sync job: %w", err)
		}
	}

	s.cron.Start()
	s.logger.Info("Scheduler started")

	// Run the initial pass immediately
	go func() {
		if s.scrapeCtrl != nil {
			s.runScrape()
		}
		if s.syncer != nil {
			s.runSync()
		}
	}()

	return nil
}

// Stop stops the scheduler and waits for running jobs
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler")
	s.cancel()
	<-s.cron.Stop().Done()
}

// runScrape executes the scrape + export job
func (s *Scheduler) runScrape() {
	s.logger.Info("Running scheduled scrape")

	results, err := s.scrapeCtrl.RunAll(s.ctx)
	if errors.Is(err, controllers.ErrScrapeInProgress) {
		s.logger.Info("Scrape already running elsewhere, skipping")
		return
	}
	if err != nil {
		s.logger.WithError(err).Error("Scrape job failed")
		return
	}

	failed := 0
	for _, result := range results {
		if result.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		s.logger.WithField("failed", failed).Warn("Some sources failed, exporting the rest")
	}

	if _, err := s.exportCtrl.Export(s.ctx); err != nil {
		s.logger.WithError(err).Error("Export job failed")
	} else {
		s.logger.Info("Scrape job completed successfully")
	}
}

// runCleanup executes the cleanup job
func (s *Scheduler) runCleanup() {
	s.logger.Debug("Running scheduled cleanup")

	if _, err := s.cleanupCtrl.CleanupPast(s.ctx); err != nil {
		s.logger.WithError(err).Error("Cleanup job failed")
	}
}

// runSync executes the cache sync job
func (s *Scheduler) runSync() {
	s.logger.Debug("Running scheduled sync")

	outcome, err := s.syncer.Poll(s.ctx)
	if err != nil {
		// Already logged by the syncer; local data stays as it was
		return
	}
	s.logger.WithField("outcome", outcome).Debug("Sync job completed")
}
