package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// Server
	ServerPort string
	Timezone   string
	Location   *time.Location // Loaded from Timezone, used to read local source times

	// Scraping
	ScrapeSchedule    string
	ScrapeConcurrency int
	ScrapeTimeout     time.Duration // Per source run
	HTTPTimeout       time.Duration // Per source request
	HTTPRetries       int

	// Cleanup
	CleanupSchedule string
	ServerRetention time.Duration // How long past showtimes stay in the catalog

	// Messaging
	AMQPURL      string // Empty disables export notifications
	AMQPExchange string

	// Client
	CatalogURL   string
	SyncSchedule string
	SyncTimeout  time.Duration
	SyncGrace    time.Duration // Showtimes younger than this survive eviction

	// Paths
	DatabaseFile string // $CONFIG_DIR/gokino.db
	SourcesFile  string // $CONFIG_DIR/sources.yaml
	IgnoreFile   string // $CONFIG_DIR/ignore.txt
	DataDir      string // $CONFIG_DIR/data
	CacheFile    string // $CONFIG_DIR/cache.db
	LockFile     string // $CONFIG_DIR/scrape.lock

	// Logging
	LogLevel  string
	LogFormat string // auto, text or json
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	// Setup viper FIRST to load .env file
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Load .env file if it exists (ignore if not found)
	_ = viper.ReadInConfig()

	// Set defaults
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("TIMEZONE", "Europe/Berlin")
	viper.SetDefault("SCRAPE_SCHEDULE", "0 */6 * * *")
	viper.SetDefault("SCRAPE_CONCURRENCY", 4)
	viper.SetDefault("SCRAPE_TIMEOUT_SECONDS", 120)
	viper.SetDefault("HTTP_TIMEOUT_SECONDS", 30)
	viper.SetDefault("HTTP_RETRIES", 3)
	viper.SetDefault("CLEANUP_SCHEDULE", "0 * * * *")
	viper.SetDefault("SERVER_RETENTION_HOURS", 24)
	viper.SetDefault("AMQP_EXCHANGE", "gokino")
	viper.SetDefault("CATALOG_URL", "http://localhost:8080")
	viper.SetDefault("SYNC_SCHEDULE", "@every 15m")
	viper.SetDefault("SYNC_TIMEOUT_SECONDS", 20)
	viper.SetDefault("SYNC_GRACE_MINUTES", 60)
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_FORMAT", "auto")

	// NOW read CONFIG_DIR from viper (which has loaded .env file)
	configDir := viper.GetString("CONFIG_DIR")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config", "gokino")
	} else {
		// Convert relative path to absolute path
		absPath, err := filepath.Abs(configDir)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path for CONFIG_DIR: %w", err)
		}
		configDir = absPath
	}

	dataDir := filepath.Join(configDir, "data")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	config := &Config{
		// Server
		ServerPort: viper.GetString("SERVER_PORT"),
		Timezone:   viper.GetString("TIMEZONE"),

		// Scraping
		ScrapeSchedule:    viper.GetString("SCRAPE_SCHEDULE"),
		ScrapeConcurrency: viper.GetInt("SCRAPE_CONCURRENCY"),
		ScrapeTimeout:     time.Duration(viper.GetInt("SCRAPE_TIMEOUT_SECONDS")) * time.Second,
		HTTPTimeout:       time.Duration(viper.GetInt("HTTP_TIMEOUT_SECONDS")) * time.Second,
		HTTPRetries:       viper.GetInt("HTTP_RETRIES"),

		// Cleanup
		CleanupSchedule: viper.GetString("CLEANUP_SCHEDULE"),
		ServerRetention: time.Duration(viper.GetInt("SERVER_RETENTION_HOURS")) * time.Hour,

		// Messaging
		AMQPURL:      viper.GetString("AMQP_URL"),
		AMQPExchange: viper.GetString("AMQP_EXCHANGE"),

		// Client
		CatalogURL:   viper.GetString("CATALOG_URL"),
		SyncSchedule: viper.GetString("SYNC_SCHEDULE"),
		SyncTimeout:  time.Duration(viper.GetInt("SYNC_TIMEOUT_SECONDS")) * time.Second,
		SyncGrace:    time.Duration(viper.GetInt("SYNC_GRACE_MINUTES")) * time.Minute,

		// Paths
		DatabaseFile: filepath.Join(configDir, "gokino.db"),
		SourcesFile:  filepath.Join(configDir, "sources.yaml"),
		IgnoreFile:   filepath.Join(configDir, "ignore.txt"),
		DataDir:      dataDir,
		CacheFile:    filepath.Join(configDir, "cache.db"),
		LockFile:     filepath.Join(configDir, "scrape.lock"),

		// Logging
		LogLevel:  viper.GetString("LOG_LEVEL"),
		LogFormat: viper.GetString("LOG_FORMAT"),
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// validate checks value ranges and resolves derived settings
func (c *Config) validate() error {
	location, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("TIMEZONE is invalid: %w", err)
	}
	c.Location = location

	if c.ScrapeConcurrency < 1 {
		return fmt.Errorf("SCRAPE_CONCURRENCY must be at least 1")
	}
	if c.ScrapeTimeout <= 0 {
		return fmt.Errorf("SCRAPE_TIMEOUT_SECONDS must be positive")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT_SECONDS must be positive")
	}
	if c.HTTPRetries < 0 {
		return fmt.Errorf("HTTP_RETRIES must not be negative")
	}
	if c.SyncTimeout <= 0 {
		return fmt.Errorf("SYNC_TIMEOUT_SECONDS must be positive")
	}
	if c.SyncGrace < 0 || c.ServerRetention < 0 {
		return fmt.Errorf("retention windows must not be negative")
	}

	switch c.LogFormat {
	case "auto", "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be auto, text or json")
	}

	u, err := url.Parse(c.CatalogURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("CATALOG_URL is invalid: %q", c.CatalogURL)
	}

	return nil
}
