package controllers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/amaumene/gokino/internal/metrics"
	"github.com/amaumene/gokino/internal/models"
	"github.com/amaumene/gokino/internal/resolver"
	"github.com/amaumene/gokino/internal/scrapers"
	"github.com/amaumene/gokino/internal/utils"
)

// ErrScrapeInProgress is returned when another scrape pass holds the lock
var ErrScrapeInProgress = errors.New("scrape already in progress")

// ScrapeOptions tune a scrape pass
type ScrapeOptions struct {
	Concurrency int
	Timeout     time.Duration // Per source run
	LockFile    string        // Empty disables the cross-process lock
}

// SourceResult is the outcome of one source run
type SourceResult struct {
	Cinema   string
	RunID    string
	Status   models.ScrapeRunStatus
	Stats    resolver.Stats
	Duration time.Duration
	Err      error
}

// ScrapeController runs every registered source and commits each run on its own
type ScrapeController struct {
	db       *models.Database
	resolver *resolver.Resolver
	scrapers []scrapers.Scraper
	ignore   *utils.IgnoreList
	opts     ScrapeOptions
	lock     *flock.Flock
	running  atomic.Bool
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	logger   *logrus.Logger
}

// NewScrapeController creates a new scrape controller
func NewScrapeController(
	db *models.Database,
	res *resolver.Resolver,
	registry []scrapers.Scraper,
	ignore *utils.IgnoreList,
	opts ScrapeOptions,
	m *metrics.Metrics,
	tracer trace.Tracer,
	logger *logrus.Logger,
) *ScrapeController {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	c := &ScrapeController{
		db:       db,
		resolver: res,
		scrapers: registry,
		ignore:   ignore,
		opts:     opts,
		metrics:  m,
		tracer:   tracer,
		logger:   logger,
	}
	if opts.LockFile != "" {
		c.lock = flock.New(opts.LockFile)
	}
	return c
}

// Sources returns the number of registered sources
func (c *ScrapeController) Sources() int {
	return len(c.scrapers)
}

// RunAll runs every source with bounded parallelism. A failing source is
// logged and rolled back without affecting the others; source errors are
// reported in the results, never returned.
func (c *ScrapeController) RunAll(ctx context.Context) ([]SourceResult, error) {
	if !c.running.CompareAndSwap(false, true) {
		return nil, ErrScrapeInProgress
	}
	defer c.running.Store(false)

	if c.lock != nil {
		locked, err := c.lock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire scrape lock: %w", err)
		}
		if !locked {
			return nil, ErrScrapeInProgress
		}
		defer func() {
			if err := c.lock.Unlock(); err != nil {
				c.logger.WithError(err).Warn("Failed to release scrape lock")
			}
		}()
	}

	c.logger.WithField("sources", len(c.scrapers)).Info("Starting scrape")
	start := time.Now()

	results := make([]SourceResult, len(c.scrapers))
	sem := make(chan struct{}, c.opts.Concurrency)
	var wg sync.WaitGroup

	for i, scraper := range c.scrapers {
		wg.Add(1)
		go func(i int, scraper scrapers.Scraper) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results[i] = SourceResult{Cinema: scraper.Profile().Cinema.DisplayName, Status: models.ScrapeRunFailed, Err: ctx.Err()}
				return
			}
			defer func() { <-sem }()

			results[i] = c.runOne(ctx, scraper)
		}(i, scraper)
	}
	wg.Wait()

	failed := 0
	for _, result := range results {
		if result.Err != nil {
			failed++
		}
	}
	c.logger.WithFields(logrus.Fields{
		"sources":     len(results),
		"failed":      failed,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Scrape completed")

	return results, nil
}

// runOne runs a single source inside its own unit of work
func (c *ScrapeController) runOne(ctx context.Context, scraper scrapers.Scraper) SourceResult {
	profile := scraper.Profile()
	cinema := profile.Cinema
	result := SourceResult{Cinema: cinema.DisplayName, Status: models.ScrapeRunFailed}
	logger := c.logger.WithField("cinema", cinema.DisplayName)
	start := time.Now()

	ctx, span := c.tracer.Start(ctx, "scrape.source", trace.WithAttributes(attribute.String("cinema", cinema.DisplayName)))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	if err := c.db.EnsureCinema(ctx, &cinema); err != nil {
		result.Err = fmt.Errorf("failed to register cinema: %w", err)
		c.finishSpan(span, result)
		logger.WithError(result.Err).Error("Source run failed")
		c.metrics.ScrapeRuns.WithLabelValues(cinema.DisplayName, string(models.ScrapeRunFailed)).Inc()
		return result
	}

	record := &models.ScrapeRun{
		ID:         uuid.NewString(),
		CinemaID:   cinema.ID,
		CinemaName: cinema.DisplayName,
		Status:     models.ScrapeRunRunning,
		StartedAt:  start.UTC(),
	}
	result.RunID = record.ID
	if err := c.db.CreateScrapeRun(ctx, record); err != nil {
		logger.WithError(err).Warn("Failed to record scrape run")
	}
	logger = logger.WithField("run_id", record.ID)
	logger.Debug("Source run started")

	run := c.resolver.Begin(ctx, &cinema, resolver.Options{
		Markers: profile.SpecialEventMarkers,
		Ignore:  c.ignore.With(profile.Ignore...),
	})

	err := c.scrapeIsolated(ctx, scraper, run)
	if err == nil {
		err = run.Commit(ctx)
	} else {
		run.Rollback()
	}

	result.Stats = run.Stats()
	result.Duration = time.Since(start)
	result.Err = err
	switch {
	case err == nil:
		result.Status = models.ScrapeRunCommitted
	case errors.Is(err, context.DeadlineExceeded):
		result.Status = models.ScrapeRunAbandoned
	}

	c.record(record, result, logger)
	c.finishSpan(span, result)
	return result
}

// scrapeIsolated runs the adapter, turning panics and overruns into errors.
// An adapter that ignores cancellation is abandoned; its run is rolled back
// by the caller, after which its writes fail with ErrRunClosed.
func (c *ScrapeController) scrapeIsolated(ctx context.Context, scraper scrapers.Scraper, run *resolver.Run) error {
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("source panicked: %v", r)
			}
		}()
		done <- scraper.Scrape(ctx, run)
	}()

	select {
	case err := <-done:
		if err == nil && ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	case <-ctx.Done():
		return fmt.Errorf("source did not finish: %w", ctx.Err())
	}
}

// record persists the run outcome and updates metrics and logs
func (c *ScrapeController) record(record *models.ScrapeRun, result SourceResult, logger *logrus.Entry) {
	finished := time.Now().UTC()
	record.Status = result.Status
	record.Accepted = result.Stats.Accepted
	record.Skipped = result.Stats.Skipped
	record.Duplicates = result.Stats.Duplicates
	record.FinishedAt = &finished
	if result.Err != nil {
		record.Error = result.Err.Error()
	}

	// The run context may have expired; the outcome is still recorded
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.db.UpdateScrapeRun(ctx, record); err != nil {
		logger.WithError(err).Warn("Failed to record scrape run outcome")
	}

	cinema := record.CinemaName
	c.metrics.ScrapeRuns.WithLabelValues(cinema, string(result.Status)).Inc()
	c.metrics.ScrapeDuration.WithLabelValues(cinema).Observe(result.Duration.Seconds())
	c.metrics.Showings.WithLabelValues(cinema, "accepted").Add(float64(result.Stats.Accepted))
	c.metrics.Showings.WithLabelValues(cinema, "skipped").Add(float64(result.Stats.Skipped))
	c.metrics.Showings.WithLabelValues(cinema, "duplicate").Add(float64(result.Stats.Duplicates))

	fields := logrus.Fields{
		"accepted":    result.Stats.Accepted,
		"skipped":     result.Stats.Skipped,
		"duplicates":  result.Stats.Duplicates,
		"duration_ms": result.Duration.Milliseconds(),
	}
	if result.Err != nil {
		logger.WithFields(fields).WithError(result.Err).Error("Source run failed, showtimes discarded")
		return
	}
	logger.WithFields(fields).Info("Source run committed")
}

func (c *ScrapeController) finishSpan(span trace.Span, result SourceResult) {
	span.SetAttributes(
		attribute.Int("accepted", result.Stats.Accepted),
		attribute.Int("skipped", result.Stats.Skipped),
		attribute.String("status", string(result.Status)),
	)
	if result.Err != nil {
		span.RecordError(result.Err)
		span.SetStatus(codes.Error, result.Err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}
