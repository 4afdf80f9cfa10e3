package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvironmentDefaults(t *testing.T) {
	cfg, err := FromEnvironment()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.App.Environment)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "./data/progression.db", cfg.Database.SQLitePath)
	assert.Equal(t, 5*time.Second, cfg.Database.SQLiteBusyTimeout)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "progression:events", cfg.Redis.EventChannel)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, time.UTC, cfg.App.Location())
	assert.True(t, cfg.IsDevelopment())
	require.NotNil(t, cfg.Features)
	assert.True(t, cfg.Features.Enabled(FeatureMilestoneBonus, "u1"))
}

func TestFromEnvironmentOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("APP_TIMEZONE", "America/Chicago")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://app@db:5432/progression")
	t.Setenv("DB_MAX_CONNS", "20")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("REDIS_URL", "redis://cache:6379/1")
	t.Setenv("HTTP_RATE_LIMIT_RPS", "2.5")
	t.Setenv("FEATURE_PROGRESSION_MILESTONE_BONUS", "false")

	cfg, err := FromEnvironment()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "America/Chicago", cfg.App.Location().String())
	assert.Equal(t, int32(20), cfg.Database.MaxConns)
	assert.True(t, cfg.Redis.Enabled)
	assert.InDelta(t, 2.5, cfg.HTTP.RateLimitRPS, 0.001)
	assert.False(t, cfg.Features.Enabled(FeatureMilestoneBonus, "u1"))
}

func TestValidateAggregatesProblems(t *testing.T) {
	t.Setenv("APP_ENV", "moon")
	t.Setenv("APP_TIMEZONE", "Nowhere/Special")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("LOG_LEVEL", "chatty")

	_, err := FromEnvironment()
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, "APP_ENV")
	assert.Contains(t, msg, "APP_TIMEZONE")
	assert.Contains(t, msg, "DATABASE_URL")
	assert.Contains(t, msg, "LOG_LEVEL")
}

func TestValidateRejectsMemoryStoreInProduction(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("SQLITE_PATH", ":memory:")

	_, err := FromEnvironment()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "in-memory")
}

func TestValidateUnknownDriver(t *testing.T) {
	t.Setenv("DB_DRIVER", "mysql")

	_, err := FromEnvironment()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_DRIVER")
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("HTTP_ADDR=:9999\n"), 0o600))

	// godotenv writes into the process environment; restore it afterwards.
	t.Setenv("HTTP_ADDR", "")
	require.NoError(t, os.Unsetenv("HTTP_ADDR"))

	cfg, err := Load(LoadOptions{EnvFile: path})
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.HTTP.Addr)
}

func TestLoadMissingExplicitEnvFile(t *testing.T) {
	_, err := Load(LoadOptions{EnvFile: filepath.Join(t.TempDir(), "missing.env")})
	assert.Error(t, err)
}
