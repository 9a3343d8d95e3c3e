package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "absent.json"))
	t.Setenv("IMAGE_STORAGE_PATH", filepath.Join(t.TempDir(), "images"))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":5000", cfg.ServerAddress)
	assert.Equal(t, "expenses.db", cfg.DatabasePath)
	assert.False(t, cfg.UsePostgres())
	assert.Equal(t, 30, cfg.Sync.PeriodicSeconds)
	assert.Equal(t, 2000, cfg.Sync.DebounceMillis)
	assert.Equal(t, 3, cfg.Sync.MaxRetryCount)
	assert.Equal(t, 5, cfg.Sync.MaxConsecutiveFailures)
	assert.True(t, filepath.IsAbs(cfg.ImageStorage.BasePath))
	assert.DirExists(t, cfg.ImageStorage.BasePath)
}

func TestLoad_FileThenEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	data, err := json.Marshal(map[string]any{
		"serverAddress": ":9999",
		"databaseUrl":   "postgres://localhost/expenses",
		"sync":          map[string]any{"periodicSeconds": 60},
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))

	t.Setenv("CONFIG_PATH", path)
	t.Setenv("IMAGE_STORAGE_PATH", filepath.Join(dir, "images"))
	t.Setenv("SERVER_ADDRESS", ":8888")
	t.Setenv("SYNC_PERIODIC_SECONDS", "45")
	t.Setenv("API_KEY", "env-key")

	cfg, err := Load()
	require.NoError(t, err)

	// Environment wins over the file, the file over defaults.
	assert.Equal(t, ":8888", cfg.ServerAddress)
	assert.Equal(t, 45, cfg.Sync.PeriodicSeconds)
	assert.Equal(t, "env-key", cfg.Security.APIKey)
	assert.True(t, cfg.UsePostgres())
}

func TestLoad_IgnoresBadNumericEnv(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "absent.json"))
	t.Setenv("IMAGE_STORAGE_PATH", filepath.Join(t.TempDir(), "images"))
	t.Setenv("SYNC_MAX_RETRY_COUNT", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Sync.MaxRetryCount)
}
