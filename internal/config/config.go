package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `env:",prefix=SERVER_"`

	// Database configuration
	Database DatabaseConfig `env:",prefix=DB_"`

	// Listing cache configuration
	Redis RedisConfig `env:",prefix=REDIS_"`

	// Redemption rate limiting
	Rate RateConfig `env:",prefix=RATE_"`

	// Tracing configuration
	Otel OtelConfig `env:",prefix=OTEL_"`

	// Application configuration
	App AppConfig `env:",prefix=APP_"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port           string   `env:"PORT,default=8080"`
	Host           string   `env:"HOST,default=0.0.0.0"`
	ReadTimeout    int      `env:"READ_TIMEOUT,default=30"`  // seconds
	WriteTimeout   int      `env:"WRITE_TIMEOUT,default=30"` // seconds
	AllowedOrigins []string `env:"ALLOWED_ORIGINS,default=*"`
}

// DatabaseConfig holds database configuration. Driver is "postgres" or "sqlite3".
type DatabaseConfig struct {
	Driver   string `env:"DRIVER,default=postgres"`
	Path     string `env:"PATH,default=./campaign.db"` // sqlite3 only
	Host     string `env:"HOST,default=localhost"`
	Port     string `env:"PORT,default=5432"`
	User     string `env:"USER,default=postgres"`
	Password string `env:"PASSWORD,default=postgres"`
	Name     string `env:"NAME,default=campaign_engine"`
	SSLMode  string `env:"SSL_MODE,default=disable"`
	MaxConns int    `env:"MAX_CONNS,default=25"`
	MinConns int    `env:"MIN_CONNS,default=5"`
	Migrate  bool   `env:"MIGRATE,default=true"`
}

// RedisConfig holds the listing cache configuration. An empty Addr keeps the
// cache in process.
type RedisConfig struct {
	Addr     string        `env:"ADDR"`
	Password string        `env:"PASSWORD"`
	DB       int           `env:"DB,default=0"`
	TTL      time.Duration `env:"TTL,default=30s"`
}

// RateConfig limits how often a single user may request redemption tokens.
type RateConfig struct {
	Enabled bool    `env:"ENABLED,default=true"`
	PerSec  float64 `env:"PER_SEC,default=2"`
	Burst   int     `env:"BURST,default=5"`
}

// OtelConfig enables OTLP/HTTP trace export when Endpoint is set.
type OtelConfig struct {
	Endpoint    string `env:"ENDPOINT"`
	ServiceName string `env:"SERVICE_NAME,default=campaign-engine"`
}

// AppConfig holds application-specific configuration
type AppConfig struct {
	Environment string `env:"ENVIRONMENT,default=development"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`
	Debug       bool   `env:"DEBUG,default=false"`
}

// Load loads configuration from environment variables
func Load(ctx context.Context) (*Config, error) {
	return load(ctx, envconfig.OsLookuper())
}

func load(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values envconfig cannot express as defaults.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres":
	case "sqlite3":
		if c.Database.Path == "" {
			return fmt.Errorf("DB_PATH is required for the sqlite3 driver")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}
	if c.Rate.Enabled && (c.Rate.PerSec <= 0 || c.Rate.Burst <= 0) {
		return fmt.Errorf("rate limit must have positive PER_SEC and BURST")
	}
	if c.Redis.TTL <= 0 {
		return fmt.Errorf("REDIS_TTL must be positive")
	}
	switch c.App.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported APP_LOG_LEVEL %q", c.App.LogLevel)
	}
	return nil
}

// GetDatabaseURL returns the data source name for the configured driver
func (c *DatabaseConfig) GetDatabaseURL() string {
	if c.Driver == "sqlite3" {
		return c.Path + "?_foreign_keys=1&_busy_timeout=5000"
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// GetServerAddr returns the server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// Verbose reports whether debug logging is requested by APP_DEBUG or
// APP_LOG_LEVEL=debug.
func (c *AppConfig) Verbose() bool {
	return c.Debug || c.LogLevel == "debug"
}
