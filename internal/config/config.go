// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for all databases (always absolute)
	LogLevel string
	Port     int
	DevMode  bool

	MarketData MarketDataConfig
	Cache      CacheConfig
	Jobs       JobsConfig
	Archive    ArchiveConfig

	StreamInterval time.Duration

	// AllowedOrigins are the cross-origin callers of the API and the performance stream,
	// e.g. https://app.example.com. Empty allows same-origin requests only.
	AllowedOrigins []string
}

// MarketDataConfig configures the upstream market data API client
type MarketDataConfig struct {
	APIKey             string
	BaseURL            string
	Timeout            time.Duration
	RateLimitPerMinute int
	ListingLimit       int // page size for the listing fallback
	ListingMaxPages    int
	BatchTimeout       time.Duration // default deadline for one gateway call
}

// CacheConfig holds quote and history cache lifetimes
type CacheConfig struct {
	QuoteFreshTTL time.Duration
	QuoteStaleTTL time.Duration
	HistoryTTL    time.Duration
}

// JobsConfig holds cron schedules (6-field, with seconds)
type JobsConfig struct {
	SnapshotSchedule          string
	CacheSweepSchedule        string
	ClientDataCleanupSchedule string
	MaintenanceSchedule       string

	// SnapshotRetentionDays bounds how long snapshots are kept; 0 keeps them forever
	SnapshotRetentionDays int
}

// ArchiveConfig configures the optional S3-compatible snapshot archive.
// The archive is disabled when Bucket is empty.
type ArchiveConfig struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// Enabled reports whether snapshots should be archived
func (a ArchiveConfig) Enabled() bool {
	return a.Bucket != ""
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("CRYPTOFOLIO_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		Port:     getEnvAsInt("PORT", 8080),
		DevMode:  getEnvAsBool("DEV_MODE", false),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		MarketData: MarketDataConfig{
			APIKey:             getEnv("CMC_API_KEY", ""),
			BaseURL:            getEnv("CMC_BASE_URL", "https://pro-api.coinmarketcap.com"),
			Timeout:            getEnvAsDuration("CMC_TIMEOUT", 15*time.Second),
			RateLimitPerMinute: getEnvAsInt("CMC_RATE_LIMIT_PER_MINUTE", 30),
			ListingLimit:       getEnvAsInt("CMC_LISTING_LIMIT", 200),
			ListingMaxPages:    getEnvAsInt("CMC_LISTING_MAX_PAGES", 5),
			BatchTimeout:       getEnvAsDuration("BATCH_TIMEOUT", 10*time.Second),
		},
		Cache: CacheConfig{
			QuoteFreshTTL: getEnvAsDuration("QUOTE_FRESH_TTL", 5*time.Minute),
			QuoteStaleTTL: getEnvAsDuration("QUOTE_STALE_TTL", 15*time.Minute),
			HistoryTTL:    getEnvAsDuration("HISTORY_TTL", 24*time.Hour),
		},
		Jobs: JobsConfig{
			SnapshotSchedule:          getEnv("SNAPSHOT_SCHEDULE", "0 0 * * * *"),
			CacheSweepSchedule:        getEnv("CACHE_SWEEP_SCHEDULE", "0 */5 * * * *"),
			ClientDataCleanupSchedule: getEnv("CLIENT_DATA_CLEANUP_SCHEDULE", "0 30 3 * * *"),
			MaintenanceSchedule:       getEnv("MAINTENANCE_SCHEDULE", "0 0 4 * * *"),
			SnapshotRetentionDays:     getEnvAsInt("SNAPSHOT_RETENTION_DAYS", 90),
		},
		Archive: ArchiveConfig{
			Bucket:    getEnv("ARCHIVE_BUCKET", ""),
			Prefix:    getEnv("ARCHIVE_PREFIX", "snapshots"),
			Region:    getEnv("ARCHIVE_REGION", "auto"),
			Endpoint:  getEnv("ARCHIVE_ENDPOINT", ""),
			AccessKey: getEnv("ARCHIVE_ACCESS_KEY", ""),
			SecretKey: getEnv("ARCHIVE_SECRET_KEY", ""),
		},
		StreamInterval: getEnvAsDuration("STREAM_INTERVAL", 30*time.Second),
		AllowedOrigins: getEnvAsList("ALLOWED_ORIGINS"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present and consistent
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.Cache.QuoteFreshTTL <= 0 {
		return fmt.Errorf("QUOTE_FRESH_TTL must be positive, got %s", c.Cache.QuoteFreshTTL)
	}
	if c.Cache.QuoteStaleTTL < c.Cache.QuoteFreshTTL {
		return fmt.Errorf("QUOTE_STALE_TTL (%s) must not be shorter than QUOTE_FRESH_TTL (%s)",
			c.Cache.QuoteStaleTTL, c.Cache.QuoteFreshTTL)
	}
	if c.Cache.HistoryTTL <= 0 {
		return fmt.Errorf("HISTORY_TTL must be positive, got %s", c.Cache.HistoryTTL)
	}
	if c.MarketData.BatchTimeout <= 0 {
		return fmt.Errorf("BATCH_TIMEOUT must be positive, got %s", c.MarketData.BatchTimeout)
	}
	if c.MarketData.RateLimitPerMinute <= 0 {
		return fmt.Errorf("CMC_RATE_LIMIT_PER_MINUTE must be positive, got %d", c.MarketData.RateLimitPerMinute)
	}
	if c.MarketData.ListingLimit <= 0 || c.MarketData.ListingMaxPages <= 0 {
		return fmt.Errorf("listing limit and max pages must be positive")
	}
	if c.Jobs.SnapshotRetentionDays < 0 {
		return fmt.Errorf("SNAPSHOT_RETENTION_DAYS must not be negative, got %d", c.Jobs.SnapshotRetentionDays)
	}
	if c.StreamInterval <= 0 {
		return fmt.Errorf("STREAM_INTERVAL must be positive, got %s", c.StreamInterval)
	}
	for _, origin := range c.AllowedOrigins {
		if origin == "*" {
			continue
		}
		if u, err := url.Parse(origin); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("ALLOWED_ORIGINS entry %q must be * or scheme://host", origin)
		}
	}

	// Note: CMC_API_KEY is optional, the sandbox endpoint accepts anonymous requests

	return nil
}

// OriginHosts returns the host[:port] of every allowed origin, the form websocket origin
// patterns are matched against
func (c *Config) OriginHosts() []string {
	hosts := make([]string, 0, len(c.AllowedOrigins))
	for _, origin := range c.AllowedOrigins {
		if origin == "*" {
			hosts = append(hosts, "*")
			continue
		}
		if u, err := url.Parse(origin); err == nil && u.Host != "" {
			hosts = append(hosts, u.Host)
		}
	}
	return hosts
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma separated value, dropping empty entries
func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
