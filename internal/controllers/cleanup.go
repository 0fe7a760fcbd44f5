package controllers

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/gokino/internal/metrics"
	"github.com/amaumene/gokino/internal/models"
)

// CleanupController removes showtimes that are long over
type CleanupController struct {
	db        *models.Database
	retention time.Duration
	metrics   *metrics.Metrics
	logger    *logrus.Logger
	now       func() time.Time
}

// NewCleanupController creates a new cleanup controller
func NewCleanupController(db *models.Database, retention time.Duration, m *metrics.Metrics, logger *logrus.Logger) *CleanupController {
	return &CleanupController{
		db:        db,
		retention: retention,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

// CleanupPast deletes showtimes that started more than the retention window ago.
// Movies and cinemas are kept; they are only dropped from exports.
func (c *CleanupController) CleanupPast(ctx context.Context) (int64, error) {
	cutoff := c.now().Add(-c.retention).UTC()
	c.logger.WithField("cutoff", cutoff).Debug("Starting cleanup of past showtimes")

	removed, err := c.db.DeleteShowTimesBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete past showtimes: %w", err)
	}

	c.metrics.Removed.WithLabelValues("showtime").Add(float64(removed))
	c.logger.WithFields(logrus.Fields{
		"removed": removed,
		"cutoff":  cutoff,
	}).Info("Cleanup of past showtimes completed")
	return removed, nil
}
