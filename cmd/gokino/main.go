package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/amaumene/gokino/internal/config"
	"github.com/amaumene/gokino/internal/utils"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	return newRootCommand().Execute()
}

// cli holds what every command needs once flags are parsed
type cli struct {
	cfg    *config.Config
	logger *logrus.Logger
}

func newRootCommand() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "gokino",
		Short:         "Cinema showtime aggregator and catalog cache",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// 1. Load configuration
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			c.cfg = cfg

			// 2. Setup logger
			c.logger = utils.NewLogger(cfg.LogLevel, cfg.LogFormat)
			c.logger.WithField("config_dir", filepath.Dir(cfg.DatabaseFile)).Debug("Configuration loaded")
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.String("config-dir", "", "configuration directory (default ~/.config/gokino)")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (auto, text, json)")
	viper.BindPFlag("CONFIG_DIR", flags.Lookup("config-dir"))
	viper.BindPFlag("LOG_LEVEL", flags.Lookup("log-level"))
	viper.BindPFlag("LOG_FORMAT", flags.Lookup("log-format"))

	root.AddCommand(
		newServeCommand(c),
		newScrapeCommand(c),
		newExportCommand(c),
		newSyncCommand(c),
		newCacheCommand(c),
	)
	return root
}

func newServeCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Scrape on schedule and serve the catalog over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.serve()
		},
	}
}

func (c *cli) serve() error {
	logger := c.logger
	logger.Info("Starting gokino")

	// 3. Build the server object graph
	app, cleanup, err := initServerApp(c.cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()
	logger.WithField("sources", app.Scrape.Sources()).Info("Controllers initialized")

	// 4. Start scheduler (runs the first scrape immediately)
	if err := app.Scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer app.Scheduler.Stop()

	// 5. Start HTTP server
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverErrChan := make(chan error, 1)
	go func() {
		if err := app.Server.Start(ctx); err != nil {
			serverErrChan <- err
		}
	}()

	// 6. Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("gokino is running")

	select {
	case err := <-serverErrChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		logger.WithField("signal", sig).Info("Received shutdown signal")
		cancel()
		if err := app.Server.Shutdown(context.Background()); err != nil {
			logger.WithError(err).Error("Error during server shutdown")
		}
	}

	logger.Info("gokino stopped")
	return nil
}

// signalContext is cancelled on Ctrl-C or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
