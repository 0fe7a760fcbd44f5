package controllers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/amaumene/gokino/internal/catalog"
	"github.com/amaumene/gokino/internal/metrics"
	"github.com/amaumene/gokino/internal/models"
)

// ExportNotifier is told about every new snapshot
type ExportNotifier interface {
	PublishExport(ctx context.Context, event catalog.ExportEvent) error
}

// ExportController writes the catalog snapshot and its version marker
type ExportController struct {
	db       *models.Database
	dataDir  string
	notifier ExportNotifier
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	logger   *logrus.Logger
	mu       sync.Mutex
	now      func() time.Time
}

// NewExportController creates a new export controller writing into dataDir
func NewExportController(db *models.Database, dataDir string, notifier ExportNotifier, m *metrics.Metrics, tracer trace.Tracer, logger *logrus.Logger) *ExportController {
	return &ExportController{
		db:       db,
		dataDir:  dataDir,
		notifier: notifier,
		metrics:  m,
		tracer:   tracer,
		logger:   logger,
		now:      time.Now,
	}
}

// DataDir returns the directory holding the snapshot files
func (c *ExportController) DataDir() string {
	return c.dataDir
}

// CurrentVersion returns the version of the last export, or "" if there is none
func (c *ExportController) CurrentVersion() string {
	data, err := os.ReadFile(filepath.Join(c.dataDir, catalog.MarkerFile))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// Export writes a snapshot of every showtime starting from now on, together
// with the movies and cinemas they reference. The snapshot is written before
// the marker, so a client that sees a new marker always finds its snapshot.
func (c *ExportController) Export(ctx context.Context) (*catalog.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, span := c.tracer.Start(ctx, "catalog.export")
	defer span.End()

	snapshot, err := c.export(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.metrics.Exports.WithLabelValues("failed").Inc()
		return nil, err
	}

	span.SetAttributes(
		attribute.String("version", snapshot.Version),
		attribute.Int("showtimes", len(snapshot.ShowTimes)),
	)
	c.metrics.Exports.WithLabelValues("written").Inc()
	c.metrics.ExportedShowTimes.Set(float64(len(snapshot.ShowTimes)))

	c.logger.WithFields(logrus.Fields{
		"version":   snapshot.Version,
		"cinemas":   len(snapshot.Cinemas),
		"movies":    len(snapshot.Movies),
		"showtimes": len(snapshot.ShowTimes),
	}).Info("Catalog exported")

	// Best effort; the files are already in place
	if err := c.notifier.PublishExport(ctx, snapshot.Event(c.now())); err != nil {
		c.logger.WithError(err).Warn("Failed to publish export event")
	}

	return snapshot, nil
}

func (c *ExportController) export(ctx context.Context) (*catalog.Snapshot, error) {
	now := c.now().UTC()

	showTimes, err := c.db.GetShowTimesFrom(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to get showtimes: %w", err)
	}

	movieIDs := make([]uint, 0)
	cinemaIDs := make([]uint, 0)
	seenMovies := make(map[uint]bool)
	seenCinemas := make(map[uint]bool)
	for _, st := range showTimes {
		if !seenMovies[st.MovieID] {
			seenMovies[st.MovieID] = true
			movieIDs = append(movieIDs, st.MovieID)
		}
		if !seenCinemas[st.CinemaID] {
			seenCinemas[st.CinemaID] = true
			cinemaIDs = append(cinemaIDs, st.CinemaID)
		}
	}

	movies, err := c.db.GetMoviesByIDs(ctx, movieIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to get movies: %w", err)
	}
	cinemas, err := c.db.GetCinemasByIDs(ctx, cinemaIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to get cinemas: %w", err)
	}

	snapshot := catalog.Build(catalog.NextVersion(c.CurrentVersion(), now), cinemas, movies, showTimes)
	if err := snapshot.Validate(); err != nil {
		return nil, fmt.Errorf("inconsistent snapshot: %w", err)
	}

	var buf bytes.Buffer
	if err := catalog.Encode(&buf, snapshot); err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(c.dataDir, catalog.DataFile), buf.Bytes()); err != nil {
		return nil, fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(c.dataDir, catalog.MarkerFile), []byte(snapshot.Version)); err != nil {
		return nil, fmt.Errorf("failed to write version marker: %w", err)
	}

	return snapshot, nil
}

// writeFileAtomic replaces path so readers see either the old or the new content
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.Join(err, fmt.Errorf("rename %s", tmpName))
	}
	return nil
}
