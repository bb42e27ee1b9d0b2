// Package config loads the engine configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/practica-musical/progression-hub/internal/application/query"
	"github.com/practica-musical/progression-hub/internal/domain/backpack"
	"github.com/practica-musical/progression-hub/internal/domain/xp"
	"github.com/practica-musical/progression-hub/internal/infrastructure/persistence/guarded"
	"github.com/practica-musical/progression-hub/internal/infrastructure/persistence/postgres"
	"github.com/practica-musical/progression-hub/internal/infrastructure/persistence/redis"
	httpserver "github.com/practica-musical/progression-hub/internal/interface/http"
	"github.com/practica-musical/progression-hub/pkg/logger"
)

// Environment represents the application environment.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Config holds all application configuration.
type Config struct {
	App           AppConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	HTTP          HTTPConfig
	Engine        EngineConfig
	Store         StoreConfig
	Aggregation   AggregationConfig
	Observability ObservabilityConfig
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string      `env:"APP_NAME" envDefault:"progression-hub"`
	Environment Environment `env:"APP_ENV" envDefault:"development"`

	// Timezone decides day and week boundaries of the backpack.
	Timezone string `env:"APP_TIMEZONE" envDefault:"UTC"`
}

// DatabaseConfig holds PostgreSQL settings. An empty URL selects the
// in-memory store.
type DatabaseConfig struct {
	URL string `env:"DATABASE_URL"`

	MaxConns        int32         `env:"DB_MAX_CONNS" envDefault:"10"`
	MinConns        int32         `env:"DB_MIN_CONNS" envDefault:"1"`
	MaxConnLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_CONN_MAX_IDLE_TIME" envDefault:"30m"`
}

// RedisConfig holds the summary cache connection.
type RedisConfig struct {
	Disabled bool   `env:"REDIS_DISABLED" envDefault:"false"`
	Host     string `env:"REDIS_HOST" envDefault:"localhost"`
	Port     int    `env:"REDIS_PORT" envDefault:"6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	PoolSize int    `env:"REDIS_POOL_SIZE" envDefault:"10"`

	DialTimeout time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
}

// HTTPConfig holds the REST API listener.
type HTTPConfig struct {
	Host string `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	Port int    `env:"HTTP_PORT" envDefault:"8080"`

	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"15s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`

	MaxBodyBytes   int64    `env:"HTTP_MAX_BODY_BYTES" envDefault:"1048576"`
	AllowedOrigins []string `env:"HTTP_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// ShutdownTimeout bounds the graceful drain of in-flight requests.
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// EngineConfig holds the windows and thresholds of the progression rules.
type EngineConfig struct {
	PracticeWindowDays   int     `env:"PRACTICE_WINDOW_DAYS" envDefault:"30"`
	EvaluationWindowDays int     `env:"EVALUATION_WINDOW_DAYS" envDefault:"30"`
	ManualWindowDays     int     `env:"MANUAL_WINDOW_DAYS" envDefault:"30"`
	ManualCap            float64 `env:"MANUAL_XP_CAP" envDefault:"100"`
	DisplayCap           float64 `env:"DISPLAY_XP_CAP" envDefault:"100"`

	MasteryWindowDays int `env:"MASTERY_WINDOW_DAYS" envDefault:"28"`
	WeeksForDominado  int `env:"WEEKS_FOR_DOMINADO" envDefault:"2"`
	RustyAfterDays    int `env:"RUSTY_AFTER_DAYS" envDefault:"90"`
	ArchivedAfterDays int `env:"ARCHIVED_AFTER_DAYS" envDefault:"180"`
}

// StoreConfig holds the guards around every store call.
type StoreConfig struct {
	CallTimeout      time.Duration `env:"STORE_CALL_TIMEOUT" envDefault:"5s"`
	BreakerThreshold int           `env:"STORE_BREAKER_THRESHOLD" envDefault:"5"`
	BreakerCooldown  time.Duration `env:"STORE_BREAKER_COOLDOWN" envDefault:"15s"`

	// ConflictAttempts bounds retries of a write that lost a version check.
	ConflictAttempts int `env:"STORE_CONFLICT_ATTEMPTS" envDefault:"5"`
}

// AggregationConfig tunes the multi-student summaries.
type AggregationConfig struct {
	Parallelism int           `env:"SUMMARY_PARALLELISM" envDefault:"8"`
	SummaryTTL  time.Duration `env:"SUMMARY_CACHE_TTL" envDefault:"10m"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads a .env file when one exists, then parses the environment.
func Load() (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()
	return Parse()
}

// Parse parses the environment without touching .env files.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	switch c.App.Environment {
	case EnvDevelopment, EnvStaging, EnvProduction:
	default:
		errs = append(errs, fmt.Sprintf("APP_ENV %q is not one of development, staging, production", c.App.Environment))
	}
	if _, err := time.LoadLocation(c.App.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("APP_TIMEZONE %q: %v", c.App.Timezone, err))
	}

	if c.App.Environment == EnvProduction && c.Database.URL == "" {
		errs = append(errs, "DATABASE_URL is required in production")
	}
	if c.Database.MinConns > c.Database.MaxConns {
		errs = append(errs, "DB_MIN_CONNS must not exceed DB_MAX_CONNS")
	}

	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Sprintf("HTTP_PORT %d is out of range", c.HTTP.Port))
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		errs = append(errs, "HTTP_MAX_BODY_BYTES must be positive")
	}

	e := c.Engine
	for name, days := range map[string]int{
		"PRACTICE_WINDOW_DAYS":   e.PracticeWindowDays,
		"EVALUATION_WINDOW_DAYS": e.EvaluationWindowDays,
		"MANUAL_WINDOW_DAYS":     e.ManualWindowDays,
		"MASTERY_WINDOW_DAYS":    e.MasteryWindowDays,
	} {
		if days <= 0 {
			errs = append(errs, name+" must be positive")
		}
	}
	if e.ManualCap <= 0 || e.DisplayCap <= 0 {
		errs = append(errs, "MANUAL_XP_CAP and DISPLAY_XP_CAP must be positive")
	}
	if e.WeeksForDominado < 1 {
		errs = append(errs, "WEEKS_FOR_DOMINADO must be at least 1")
	}
	if e.RustyAfterDays <= 0 || e.ArchivedAfterDays <= e.RustyAfterDays {
		errs = append(errs, "ARCHIVED_AFTER_DAYS must exceed RUSTY_AFTER_DAYS")
	}

	if c.Store.CallTimeout < 0 {
		errs = append(errs, "STORE_CALL_TIMEOUT cannot be negative")
	}
	if c.Store.ConflictAttempts < 1 {
		errs = append(errs, "STORE_CONFLICT_ATTEMPTS must be at least 1")
	}
	if c.Aggregation.Parallelism < 1 {
		errs = append(errs, "SUMMARY_PARALLELISM must be at least 1")
	}

	switch strings.ToLower(c.Observability.LogLevel) {
	case "debug", "info", "warn", "warning", "error", "fatal":
	default:
		errs = append(errs, fmt.Sprintf("LOG_LEVEL %q is unknown", c.Observability.LogLevel))
	}

	if len(errs) > 0 {
		return errors.New("configuration errors:\n  - " + strings.Join(errs, "\n  - "))
	}
	return nil
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.App.Environment == EnvProduction
}

// ══════════════════════════════════════════════════════════════════════════════
// COMPONENT CONFIGS
// ══════════════════════════════════════════════════════════════════════════════

// Windows returns the lookback periods of the windowed views.
func (c *Config) Windows() xp.Windows {
	return xp.Windows{
		PracticeDays:   c.Engine.PracticeWindowDays,
		EvaluationDays: c.Engine.EvaluationWindowDays,
		ManualDays:     c.Engine.ManualWindowDays,
		ManualCap:      c.Engine.ManualCap,
		DisplayCap:     c.Engine.DisplayCap,
	}
}

// Backpack returns the mastery parameters. Scoring points keep their defaults.
func (c *Config) Backpack() backpack.Config {
	cfg := backpack.DefaultConfig()
	cfg.MasteryWindowDays = c.Engine.MasteryWindowDays
	cfg.WeeksForDominado = c.Engine.WeeksForDominado
	cfg.RustyAfterDays = c.Engine.RustyAfterDays
	cfg.ArchivedAfterDays = c.Engine.ArchivedAfterDays
	return cfg
}

// Postgres returns the pool configuration.
func (c *Config) Postgres() postgres.Config {
	cfg := postgres.DefaultConfig()
	cfg.URL = c.Database.URL
	cfg.MaxConns = c.Database.MaxConns
	cfg.MinConns = c.Database.MinConns
	cfg.MaxConnLifetime = c.Database.MaxConnLifetime
	cfg.MaxConnIdleTime = c.Database.MaxConnIdleTime
	return cfg
}

// RedisCache returns the cache connection settings.
func (c *Config) RedisCache() redis.Config {
	cfg := redis.DefaultConfig()
	cfg.Host = c.Redis.Host
	cfg.Port = c.Redis.Port
	cfg.Password = c.Redis.Password
	cfg.DB = c.Redis.DB
	cfg.PoolSize = c.Redis.PoolSize
	cfg.DialTimeout = c.Redis.DialTimeout
	return cfg
}

// Server returns the REST API settings.
func (c *Config) Server() httpserver.Config {
	cfg := httpserver.DefaultConfig()
	cfg.Host = c.HTTP.Host
	cfg.Port = c.HTTP.Port
	cfg.ReadTimeout = c.HTTP.ReadTimeout
	cfg.WriteTimeout = c.HTTP.WriteTimeout
	cfg.IdleTimeout = c.HTTP.IdleTimeout
	cfg.MaxBodyBytes = c.HTTP.MaxBodyBytes
	cfg.AllowedOrigins = c.HTTP.AllowedOrigins
	cfg.EnableCORS = len(c.HTTP.AllowedOrigins) > 0
	return cfg
}

// Guard returns the store guard settings.
func (c *Config) Guard() guarded.Config {
	return guarded.Config{
		CallTimeout:      c.Store.CallTimeout,
		BreakerThreshold: c.Store.BreakerThreshold,
		BreakerCooldown:  c.Store.BreakerCooldown,
	}
}

// Summaries returns the fan-out settings of the aggregation layer.
func (c *Config) Summaries() query.StudentSummariesConfig {
	return query.StudentSummariesConfig{Parallelism: c.Aggregation.Parallelism}
}

// LogLevel returns the parsed log level.
func (c *Config) LogLevel() logger.Level {
	return logger.ParseLevel(c.Observability.LogLevel)
}
