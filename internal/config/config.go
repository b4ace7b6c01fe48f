package config

import (
	"fmt"
	"net/url"
	"strings"

	pkgconfig "github.com/utafrali/templamart/pkg/config"
)

// Storage drivers accepted by STORAGE_DRIVER.
const (
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverRedis  = "redis"
	DriverSQLite = "sqlite"
)

// Config holds all configuration for the shopper service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort           int      `env:"SHOPPER_HTTP_PORT" envDefault:"8080"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// Per-session request rate on the shopper API. 0 disables limiting.
	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"40"`

	// Profiling endpoints, restricted to the allowlisted networks.
	PprofEnabled      bool     `env:"PPROF_ENABLED" envDefault:"false"`
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envDefault:"127.0.0.0/8,::1" envSeparator:","`

	// Slot storage
	StorageDriver     string `env:"STORAGE_DRIVER" envDefault:"file"`
	StorageFileDir    string `env:"STORAGE_FILE_DIR" envDefault:"./data/slots"`
	StorageSQLitePath string `env:"STORAGE_SQLITE_PATH" envDefault:"./data/shopper.db"`
	SlowOpMillis      int    `env:"STORAGE_SLOW_OP_MS" envDefault:"250"`

	// Redis
	RedisAddr string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`

	// Slot TTL in hours for the redis driver. 0 keeps slots until cleared.
	SlotTTLHours int `env:"SLOT_TTL_HOURS" envDefault:"0"`

	// Resident shopper sessions. 0 disables the bound.
	SessionIdleTTLMinutes int `env:"SESSION_IDLE_TTL_MINUTES" envDefault:"30"`
	SessionMax            int `env:"SESSION_MAX" envDefault:"10000"`

	// Catalog backend
	CatalogBaseURL string `env:"CATALOG_BASE_URL" envDefault:"http://localhost:8000"`

	// Kafka. Publishing is disabled when no brokers are set.
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load shopper config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// KafkaEnabled reports whether notices are published to Kafka.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}

	c.StorageDriver = strings.ToLower(strings.TrimSpace(c.StorageDriver))
	switch c.StorageDriver {
	case DriverMemory:
	case DriverFile:
		if strings.TrimSpace(c.StorageFileDir) == "" {
			return fmt.Errorf("STORAGE_FILE_DIR is required for the file driver")
		}
	case DriverRedis:
		if strings.TrimSpace(c.RedisAddr) == "" {
			return fmt.Errorf("REDIS_ADDR is required for the redis driver")
		}
	case DriverSQLite:
		if strings.TrimSpace(c.StorageSQLitePath) == "" {
			return fmt.Errorf("STORAGE_SQLITE_PATH is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q (want memory, file, redis or sqlite)", c.StorageDriver)
	}

	if c.RateLimitRPS < 0 || (c.RateLimitRPS > 0 && c.RateLimitBurst < 1) {
		return fmt.Errorf("invalid rate limit: %v rps, burst %d", c.RateLimitRPS, c.RateLimitBurst)
	}

	if c.SlotTTLHours < 0 {
		return fmt.Errorf("SLOT_TTL_HOURS must not be negative: %d", c.SlotTTLHours)
	}

	if c.SessionIdleTTLMinutes < 0 || c.SessionMax < 0 {
		return fmt.Errorf("session limits must not be negative: idle %d min, max %d", c.SessionIdleTTLMinutes, c.SessionMax)
	}

	u, err := url.Parse(c.CatalogBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid CATALOG_BASE_URL: %q", c.CatalogBaseURL)
	}

	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0 and 1: %v", c.OTELSampleRate)
	}
	return nil
}
