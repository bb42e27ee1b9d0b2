package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/practica-musical/progression-hub/pkg/logger"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.App.Environment)
	assert.Equal(t, 30, cfg.Windows().PracticeDays)
	assert.Equal(t, 100.0, cfg.Windows().ManualCap)
	assert.Equal(t, 28, cfg.Backpack().MasteryWindowDays)
	assert.Equal(t, 180, cfg.Backpack().ArchivedAfterDays)
	assert.Equal(t, 5*time.Second, cfg.Guard().CallTimeout)
	assert.Equal(t, 8, cfg.Summaries().Parallelism)
	assert.Equal(t, "localhost:6379", cfg.RedisCache().Addr())
	assert.Equal(t, logger.LevelInfo, cfg.LogLevel())
	assert.Empty(t, cfg.Postgres().URL)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server().Address())
	assert.Equal(t, []string{"*"}, cfg.Server().AllowedOrigins)
}

func TestParse_Overrides(t *testing.T) {
	t.Setenv("PRACTICE_WINDOW_DAYS", "14")
	t.Setenv("RUSTY_AFTER_DAYS", "60")
	t.Setenv("STORE_CALL_TIMEOUT", "750ms")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DATABASE_URL", "postgres://app@db:5432/progress")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("HTTP_ALLOWED_ORIGINS", "https://app.example,https://admin.example")

	cfg, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, 14, cfg.Windows().PracticeDays)
	assert.Equal(t, 60, cfg.Backpack().RustyAfterDays)
	assert.Equal(t, 750*time.Millisecond, cfg.Guard().CallTimeout)
	assert.Equal(t, "cache:6379", cfg.RedisCache().Addr())
	assert.Equal(t, logger.LevelDebug, cfg.LogLevel())
	assert.Equal(t, "postgres://app@db:5432/progress", cfg.Postgres().URL)
	assert.Equal(t, 9090, cfg.Server().Port)
	assert.Equal(t, []string{"https://app.example", "https://admin.example"}, cfg.Server().AllowedOrigins)
}

func TestValidate_CollectsEveryProblem(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("MANUAL_WINDOW_DAYS", "0")
	t.Setenv("ARCHIVED_AFTER_DAYS", "30")
	t.Setenv("LOG_LEVEL", "loud")

	_, err := Parse()
	require.Error(t, err)
	for _, want := range []string{
		"DATABASE_URL is required in production",
		"MANUAL_WINDOW_DAYS must be positive",
		"ARCHIVED_AFTER_DAYS must exceed RUSTY_AFTER_DAYS",
		`LOG_LEVEL "loud" is unknown`,
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestParse_RejectsMalformedValues(t *testing.T) {
	t.Setenv("SUMMARY_PARALLELISM", "many")
	_, err := Parse()
	assert.ErrorContains(t, err, "parse env")
}
