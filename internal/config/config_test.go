package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "https://www.homedepot.com.mx/comprar/es/catalog/search/%s", cfg.Scraper.SearchURL)
	assert.Equal(t, 5*time.Second, cfg.Scraper.FieldTimeout)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, "/usr/bin/chromium", cfg.Browser.ExecutablePath)
	assert.Equal(t, SessionScopeProcess, cfg.Browser.SessionScope)
	assert.Equal(t, "home_depot_products.csv", cfg.Export.CSVFilename)
	assert.False(t, cfg.Archive.Enabled)
	assert.False(t, cfg.Browser.InstallDriver)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "price-watch", cfg.Archive.ConsumerGroup)
	assert.NotEmpty(t, cfg.Archive.ConsumerName)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("SERVER_PORT", "9191")
	t.Setenv("SCRAPER_FIELD_TIMEOUT", "2s")
	t.Setenv("BROWSER_EXECUTABLE_PATH", "")
	t.Setenv("BROWSER_SESSION_SCOPE", "batch")
	t.Setenv("SCRAPER_RATE_LIMIT_MIN", "1s")
	t.Setenv("SCRAPER_RATE_LIMIT_MAX", "3s")
	t.Setenv("SERVER_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("BROWSER_INSTALL_DRIVER", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, 2*time.Second, cfg.Scraper.FieldTimeout)
	assert.Equal(t, "", cfg.Browser.ExecutablePath)
	assert.Equal(t, SessionScopeBatch, cfg.Browser.SessionScope)
	assert.Equal(t, time.Second, cfg.Scraper.RateLimitMin)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.True(t, cfg.Browser.InstallDriver)
}

func TestLoad_IgnoresMalformedValues(t *testing.T) {
	t.Setenv("SERVER_PORT", "not-a-port")
	t.Setenv("SCRAPER_FIELD_TIMEOUT", "five")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Scraper.FieldTimeout)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:  ServerConfig{Port: 8080},
			Scraper: ScraperConfig{SearchURL: "https://example.com/search/%s", FieldTimeout: time.Second},
			Browser: BrowserConfig{SessionScope: SessionScopeProcess},
			Archive: ArchiveConfig{BatchSize: 10},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "invalid server port"},
		{"missing placeholder", func(c *Config) { c.Scraper.SearchURL = "https://example.com/search" }, "placeholder"},
		{"zero field timeout", func(c *Config) { c.Scraper.FieldTimeout = 0 }, "SCRAPER_FIELD_TIMEOUT"},
		{"inverted rate limit", func(c *Config) { c.Scraper.RateLimitMin = 2 * time.Second }, "SCRAPER_RATE_LIMIT_MIN"},
		{"unknown scope", func(c *Config) { c.Browser.SessionScope = "request" }, "BROWSER_SESSION_SCOPE"},
		{"archive without database", func(c *Config) { c.Archive.Enabled = true }, "database host"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
