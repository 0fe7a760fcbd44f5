package api

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/gokino/internal/api/handlers"
	"github.com/amaumene/gokino/internal/api/middleware"
	"github.com/amaumene/gokino/internal/config"
	"github.com/amaumene/gokino/internal/controllers"
	"github.com/amaumene/gokino/internal/metrics"
	"github.com/amaumene/gokino/internal/models"
)

// Server represents the HTTP server
type Server struct {
	app     *fiber.App
	addr    string
	db      *models.Database
	export  *controllers.ExportController
	metrics *metrics.Metrics
	logger  *logrus.Logger
}

// NewServer creates a new HTTP server
func NewServer(cfg *config.Config, db *models.Database, export *controllers.ExportController, m *metrics.Metrics, logger *logrus.Logger) *Server {
	s := &Server{
		addr:    ":" + cfg.ServerPort,
		db:      db,
		export:  export,
		metrics: m,
		logger:  logger,
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "gokino",
		ReadTimeout:           15 * time.Second,
		WriteTimeout:          15 * time.Second,
		IdleTimeout:           60 * time.Second,
		DisableStartupMessage: true,
	})
	s.app.Use(middleware.Logging(logger))
	s.setupRoutes()

	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Health check
	healthHandler := handlers.NewHealthHandler(s.logger)
	s.app.Get("/health", healthHandler.Handle)

	// Status endpoint
	statusHandler := handlers.NewStatusHandler(s.db, s.export, s.logger)
	s.app.Get("/status", statusHandler.Handle)

	// Published snapshot
	dataHandler := handlers.NewDataHandler(s.export.DataDir(), s.logger)
	s.app.Get("/data/data.json", dataHandler.Snapshot)
	s.app.Get("/data/data.json.update", dataHandler.Marker)

	// Prometheus
	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{})))
}

// App returns the underlying fiber app
func (s *Server) App() *fiber.App {
	return s.app
}

// Start starts the HTTP server and blocks until ctx is done
func (s *Server) Start(ctx context.Context) error {
	s.logger.WithField("port", s.addr).Info("Starting HTTP server")

	errChan := make(chan error, 1)
	go func() {
		if err := s.app.Listen(s.addr); err != nil {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.app.ShutdownWithContext(shutdownCtx)
}
