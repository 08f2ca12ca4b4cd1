package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `env:",prefix=SERVER_"`

	// Database configuration
	Database DatabaseConfig `env:",prefix=DB_"`

	// Application configuration
	App AppConfig `env:",prefix=APP_"`

	// Allocation retry configuration
	Allocation AllocationConfig `env:",prefix=ALLOC_"`

	// Award notification configuration
	Notify NotifyConfig `env:",prefix=NATS_"`

	// Public API rate limiting
	RateLimit RateLimitConfig `env:",prefix=RATE_LIMIT_"`

	// Tracing configuration
	Telemetry TelemetryConfig `env:",prefix=OTEL_"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port         string `env:"PORT,default=8080"`
	Host         string `env:"HOST,default=0.0.0.0"`
	ReadTimeout  int    `env:"READ_TIMEOUT,default=30"`  // seconds
	WriteTimeout int    `env:"WRITE_TIMEOUT,default=30"` // seconds
}

// DatabaseConfig holds storage configuration
type DatabaseConfig struct {
	Driver   string `env:"DRIVER,default=postgres"` // postgres or sqlite
	Host     string `env:"HOST,default=localhost"`
	Port     string `env:"PORT,default=5432"`
	User     string `env:"USER,default=postgres"`
	Password string `env:"PASSWORD,default=postgres"`
	Name     string `env:"NAME,default=contest_system"`
	SSLMode  string `env:"SSL_MODE,default=disable"`
	Path     string `env:"PATH,default=contest.db"` // sqlite only
	MaxConns int    `env:"MAX_CONNS,default=25"`
	MinConns int    `env:"MIN_CONNS,default=5"`
}

// AppConfig holds application-specific configuration
type AppConfig struct {
	Environment string `env:"ENVIRONMENT,default=development"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`
	Debug       bool   `env:"DEBUG,default=false"`
	AdminToken  string `env:"ADMIN_TOKEN"`
	CodeSecret  string `env:"CODE_SECRET"`
	SentryDSN   string `env:"SENTRY_DSN"`
}

// AllocationConfig controls retries of transient storage errors inside one allocation
type AllocationConfig struct {
	MaxRetries     uint64        `env:"MAX_RETRIES,default=5"`
	InitialBackoff time.Duration `env:"INITIAL_BACKOFF,default=10ms"`
	MaxBackoff     time.Duration `env:"MAX_BACKOFF,default=500ms"`
}

// NotifyConfig holds NATS configuration for award notifications
type NotifyConfig struct {
	URL           string        `env:"URL"`
	SubjectPrefix string        `env:"SUBJECT_PREFIX,default=contest.awards"`
	Workers       int           `env:"WORKERS,default=8"`
	QueueSize     int           `env:"QUEUE_SIZE,default=1024"`
	ReconnectWait time.Duration `env:"RECONNECT_WAIT,default=2s"`
}

// RateLimitConfig holds per-client limits for the public API
type RateLimitConfig struct {
	RPS   float64 `env:"RPS,default=5"`
	Burst int     `env:"BURST,default=10"`
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Endpoint    string `env:"ENDPOINT"`
	ServiceName string `env:"SERVICE_NAME,default=contest-service"`
}

// Load loads configuration from a .env file (if any) and environment variables
func Load(ctx context.Context) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}
	return LoadWith(ctx, envconfig.OsLookuper())
}

// LoadWith loads configuration from the given lookuper
func LoadWith(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
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

// Validate checks cross-field constraints
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.App.IsProduction() && c.App.CodeSecret == "" {
		return fmt.Errorf("APP_CODE_SECRET is required in production")
	}
	if c.Notify.Workers <= 0 {
		return fmt.Errorf("NATS_WORKERS must be positive")
	}
	return nil
}

// GetDatabaseURL returns the connection string for the configured driver
func (c *DatabaseConfig) GetDatabaseURL() string {
	if c.Driver == "sqlite" {
		return fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", c.Path)
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// GetServerAddr returns the server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// IsDevelopment returns true if running in development environment
func (c *AppConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production environment
func (c *AppConfig) IsProduction() bool {
	return c.Environment == "production"
}
