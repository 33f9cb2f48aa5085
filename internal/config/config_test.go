package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CRYPTOFOLIO_DATA_DIR", dir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 5*time.Minute, cfg.Cache.QuoteFreshTTL)
	assert.Equal(t, 15*time.Minute, cfg.Cache.QuoteStaleTTL)
	assert.Equal(t, 24*time.Hour, cfg.Cache.HistoryTTL)
	assert.Equal(t, 10*time.Second, cfg.MarketData.BatchTimeout)
	assert.Equal(t, "https://pro-api.coinmarketcap.com", cfg.MarketData.BaseURL)
	assert.False(t, cfg.Archive.Enabled())
	assert.Equal(t, 90, cfg.Jobs.SnapshotRetentionDays)
	assert.Equal(t, "0 0 4 * * *", cfg.Jobs.MaintenanceSchedule)
	assert.Empty(t, cfg.AllowedOrigins)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("CRYPTOFOLIO_DATA_DIR", t.TempDir())
	t.Setenv("PORT", "9100")
	t.Setenv("DEV_MODE", "true")
	t.Setenv("CMC_API_KEY", "secret")
	t.Setenv("QUOTE_FRESH_TTL", "1m")
	t.Setenv("QUOTE_STALE_TTL", "3m")
	t.Setenv("CMC_LISTING_MAX_PAGES", "2")
	t.Setenv("ARCHIVE_BUCKET", "snapshots-bucket")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port)
	assert.True(t, cfg.DevMode)
	assert.Equal(t, "secret", cfg.MarketData.APIKey)
	assert.Equal(t, time.Minute, cfg.Cache.QuoteFreshTTL)
	assert.Equal(t, 3*time.Minute, cfg.Cache.QuoteStaleTTL)
	assert.Equal(t, 2, cfg.MarketData.ListingMaxPages)
	assert.True(t, cfg.Archive.Enabled())
}

func TestLoad_RelativeDataDirIsResolved(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	defer func() { _ = os.Chdir(wd) }()

	t.Setenv("CRYPTOFOLIO_DATA_DIR", "relative-data")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(cfg.DataDir))
}

func TestLoad_InvalidValuesFallBackToDefaults(t *testing.T) {
	t.Setenv("CRYPTOFOLIO_DATA_DIR", t.TempDir())
	t.Setenv("PORT", "not-a-number")
	t.Setenv("QUOTE_FRESH_TTL", "five minutes")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 5*time.Minute, cfg.Cache.QuoteFreshTTL)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Port: 8080,
			MarketData: MarketDataConfig{
				RateLimitPerMinute: 30,
				ListingLimit:       200,
				ListingMaxPages:    5,
				BatchTimeout:       10 * time.Second,
			},
			Cache: CacheConfig{
				QuoteFreshTTL: 5 * time.Minute,
				QuoteStaleTTL: 15 * time.Minute,
				HistoryTTL:    24 * time.Hour,
			},
			StreamInterval: 30 * time.Second,
		}
	}

	testCases := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"bad port", func(c *Config) { c.Port = 0 }, "invalid port"},
		{"zero fresh ttl", func(c *Config) { c.Cache.QuoteFreshTTL = 0 }, "QUOTE_FRESH_TTL"},
		{"stale shorter than fresh", func(c *Config) { c.Cache.QuoteStaleTTL = time.Minute }, "QUOTE_STALE_TTL"},
		{"zero history ttl", func(c *Config) { c.Cache.HistoryTTL = 0 }, "HISTORY_TTL"},
		{"zero batch timeout", func(c *Config) { c.MarketData.BatchTimeout = 0 }, "BATCH_TIMEOUT"},
		{"zero rate limit", func(c *Config) { c.MarketData.RateLimitPerMinute = 0 }, "CMC_RATE_LIMIT_PER_MINUTE"},
		{"zero listing pages", func(c *Config) { c.MarketData.ListingMaxPages = 0 }, "listing"},
		{"negative retention", func(c *Config) { c.Jobs.SnapshotRetentionDays = -1 }, "SNAPSHOT_RETENTION_DAYS"},
		{"zero stream interval", func(c *Config) { c.StreamInterval = 0 }, "STREAM_INTERVAL"},
		{"wildcard origin", func(c *Config) { c.AllowedOrigins = []string{"*"} }, ""},
		{"origin without scheme", func(c *Config) { c.AllowedOrigins = []string{"app.example.com"} }, "ALLOWED_ORIGINS"},
		{"origin not a url", func(c *Config) { c.AllowedOrigins = []string{"not a url"} }, "ALLOWED_ORIGINS"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoad_AllowedOrigins(t *testing.T) {
	t.Setenv("CRYPTOFOLIO_DATA_DIR", t.TempDir())
	t.Setenv("ALLOWED_ORIGINS", "https://app.example.com, http://localhost:3000,,")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://app.example.com", "http://localhost:3000"}, cfg.AllowedOrigins)
	assert.Equal(t, []string{"app.example.com", "localhost:3000"}, cfg.OriginHosts())
}

func TestLoad_InvalidAllowedOrigin(t *testing.T) {
	t.Setenv("CRYPTOFOLIO_DATA_DIR", t.TempDir())
	t.Setenv("ALLOWED_ORIGINS", "app.example.com")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ALLOWED_ORIGINS")
}
