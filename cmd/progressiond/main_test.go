package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/config"
	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/pkg/logger"
)

func TestParseFlags(t *testing.T) {
	opts, err := parseFlags([]string{"--env-file", "prod.env", "--seed-only"})
	require.NoError(t, err)
	assert.Equal(t, "prod.env", opts.envFile)
	assert.True(t, opts.seedOnly)
	assert.False(t, opts.migrateOnly)

	_, err = parseFlags([]string{"--seed-only", "--migrate-only"})
	assert.Error(t, err)

	_, err = parseFlags([]string{"--bogus"})
	assert.Error(t, err)
}

func TestOpenStoreSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "progression.db")

	store, err := openStore(context.Background(), config.DatabaseConfig{
		Driver:     config.DriverSQLite,
		SQLitePath: path,
	}, logger.Nop())
	require.NoError(t, err)
	defer store.close()

	assert.NoError(t, store.pinger.Ping(context.Background()))
	defs, err := store.repo.ListAchievementDefs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, defs, "seeding is a separate step")
}

func TestOpenStoreUnknownDriver(t *testing.T) {
	_, err := openStore(context.Background(), config.DatabaseConfig{Driver: "mysql"}, logger.Nop())
	assert.Error(t, err)
}
