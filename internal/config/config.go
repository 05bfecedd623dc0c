package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	SessionScopeProcess = "process"
	SessionScopeBatch   = "batch"
)

type Config struct {
	Server   ServerConfig
	Scraper  ScraperConfig
	Browser  BrowserConfig
	Export   ExportConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Archive  ArchiveConfig
	Logging  LoggingConfig
	Metrics  MetricsConfig
}

type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration
	AllowedOrigins  []string
}

type ScraperConfig struct {
	SearchURL    string
	FieldTimeout time.Duration
	RateLimitMin time.Duration
	RateLimitMax time.Duration
}

type BrowserConfig struct {
	Headless          bool
	ExecutablePath    string
	NavigationTimeout time.Duration
	SessionScope      string
	Locale            string
	UserAgent         string
	InstallDriver     bool
}

type ExportConfig struct {
	CSVFilename  string
	XLSXFilename string
	StateFile    string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	MaxConns int32
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type ArchiveConfig struct {
	Enabled       bool
	PollInterval  time.Duration
	BatchSize     int
	TargetStream  string
	ConsumerGroup string
	ConsumerName  string
}

type LoggingConfig struct {
	Level  string
	Format string
}

type MetricsConfig struct {
	Enabled bool
}

// Load reads the configuration from the environment. A .env file in the
// working directory is applied first when present; real environment
// variables win over it.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:            getIntOrDefault("SERVER_PORT", 8080),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 10*time.Minute),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			RequestTimeout:  getDurationOrDefault("SERVER_REQUEST_TIMEOUT", 10*time.Minute),
			AllowedOrigins:  getStringSliceOrDefault("SERVER_ALLOWED_ORIGINS", []string{"http://localhost:*", "https://localhost:*"}),
		},
		Scraper: ScraperConfig{
			SearchURL:    getEnvOrDefault("SCRAPER_SEARCH_URL", "https://www.homedepot.com.mx/comprar/es/catalog/search/%s"),
			FieldTimeout: getDurationOrDefault("SCRAPER_FIELD_TIMEOUT", 5*time.Second),
			RateLimitMin: getDurationOrDefault("SCRAPER_RATE_LIMIT_MIN", 0),
			RateLimitMax: getDurationOrDefault("SCRAPER_RATE_LIMIT_MAX", 0),
		},
		Browser: BrowserConfig{
			Headless:          getBoolOrDefault("BROWSER_HEADLESS", true),
			ExecutablePath:    getEnvOrDefault("BROWSER_EXECUTABLE_PATH", "/usr/bin/chromium"),
			NavigationTimeout: getDurationOrDefault("BROWSER_NAVIGATION_TIMEOUT", 30*time.Second),
			SessionScope:      getEnvOrDefault("BROWSER_SESSION_SCOPE", SessionScopeProcess),
			Locale:            getEnvOrDefault("BROWSER_LOCALE", "es-MX"),
			UserAgent:         getEnvOrDefault("BROWSER_USER_AGENT", ""),
			InstallDriver:     getBoolOrDefault("BROWSER_INSTALL_DRIVER", false),
		},
		Export: ExportConfig{
			CSVFilename:  getEnvOrDefault("EXPORT_CSV_FILENAME", "home_depot_products.csv"),
			XLSXFilename: getEnvOrDefault("EXPORT_XLSX_FILENAME", "home_depot_products.xlsx"),
			StateFile:    getEnvOrDefault("TABLE_STATE_FILE", "products_table.json"),
		},
		Database: DatabaseConfig{
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			Name:     getEnvOrDefault("DB_NAME", "sku_scraper"),
			MaxConns: int32(getIntOrDefault("DB_MAX_CONNS", 10)),
		},
		Redis: RedisConfig{
			Addr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("REDIS_DB", 0),
		},
		Archive: ArchiveConfig{
			Enabled:       getBoolOrDefault("ARCHIVE_ENABLED", false),
			PollInterval:  getDurationOrDefault("ARCHIVE_POLL_INTERVAL", 5*time.Second),
			BatchSize:     getIntOrDefault("ARCHIVE_BATCH_SIZE", 100),
			TargetStream:  getEnvOrDefault("ARCHIVE_TARGET_STREAM", "stream:product_scrapes"),
			ConsumerGroup: getEnvOrDefault("PRICE_WATCH_GROUP", "price-watch"),
			ConsumerName:  getEnvOrDefault("PRICE_WATCH_CONSUMER", hostnameOr("consumer-1")),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
		Metrics: MetricsConfig{
			Enabled: getBoolOrDefault("METRICS_ENABLED", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if !strings.Contains(c.Scraper.SearchURL, "%s") {
		return fmt.Errorf("SCRAPER_SEARCH_URL must contain a %%s placeholder for the SKU")
	}

	if c.Scraper.FieldTimeout <= 0 {
		return fmt.Errorf("SCRAPER_FIELD_TIMEOUT must be positive")
	}

	if c.Scraper.RateLimitMin < 0 || c.Scraper.RateLimitMin > c.Scraper.RateLimitMax {
		return fmt.Errorf("SCRAPER_RATE_LIMIT_MIN cannot be negative or greater than SCRAPER_RATE_LIMIT_MAX")
	}

	if c.Browser.SessionScope != SessionScopeProcess && c.Browser.SessionScope != SessionScopeBatch {
		return fmt.Errorf("BROWSER_SESSION_SCOPE must be %q or %q, got %q",
			SessionScopeProcess, SessionScopeBatch, c.Browser.SessionScope)
	}

	if c.Archive.Enabled {
		if c.Database.Host == "" || c.Database.Name == "" {
			return fmt.Errorf("database host and name are required when ARCHIVE_ENABLED is set")
		}
		if c.Archive.BatchSize < 1 {
			return fmt.Errorf("ARCHIVE_BATCH_SIZE must be at least 1")
		}
	}

	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}

func hostnameOr(fallback string) string {
	if name, err := os.Hostname(); err == nil && name != "" {
		return name
	}
	return fallback
}
