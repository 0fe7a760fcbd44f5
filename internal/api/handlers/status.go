package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/gokino/internal/models"
)

// recentRuns is the number of scrape runs listed by the status endpoint
const recentRuns = 20

// VersionReader returns the version of the published snapshot
type VersionReader interface {
	CurrentVersion() string
}

// StatusHandler handles status requests
type StatusHandler struct {
	db       *models.Database
	versions VersionReader
	logger   *logrus.Logger
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(db *models.Database, versions VersionReader, logger *logrus.Logger) *StatusHandler {
	return &StatusHandler{
		db:       db,
		versions: versions,
		logger:   logger,
	}
}

// StatusResponse represents the status response
type StatusResponse struct {
	Version    string         `json:"version"`
	Counts     models.Counts  `json:"counts"`
	ScrapeRuns []ScrapeRunDTO `json:"scrape_runs"`
}

// ScrapeRunDTO is one scrape run in the status response
type ScrapeRunDTO struct {
	ID         string     `json:"id"`
	Cinema     string     `json:"cinema"`
	Status     string     `json:"status"`
	Accepted   int        `json:"accepted"`
	Skipped    int        `json:"skipped"`
	Duplicates int        `json:"duplicates"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Handle handles the status endpoint
func (h *StatusHandler) Handle(c *fiber.Ctx) error {
	ctx := c.UserContext()

	counts, err := h.db.GetCounts(ctx, time.Now())
	if err != nil {
		h.logger.WithError(err).Error("Failed to count catalog entities")
		return fiber.NewError(fiber.StatusInternalServerError, "Internal server error")
	}

	runs, err := h.db.GetRecentScrapeRuns(ctx, recentRuns)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get scrape runs")
		return fiber.NewError(fiber.StatusInternalServerError, "Internal server error")
	}

	response := StatusResponse{
		Version:    h.versions.CurrentVersion(),
		Counts:     counts,
		ScrapeRuns: make([]ScrapeRunDTO, 0, len(runs)),
	}
	for _, run := range runs {
		response.ScrapeRuns = append(response.ScrapeRuns, ScrapeRunDTO{
			ID:         run.ID,
			Cinema:     run.CinemaName,
			Status:     string(run.Status),
			Accepted:   run.Accepted,
			Skipped:    run.Skipped,
			Duplicates: run.Duplicates,
			Error:      run.Error,
			StartedAt:  run.StartedAt,
			FinishedAt: run.FinishedAt,
		})
	}

	return c.JSON(response)
}
