package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "nightscout-db", cfg.Mongo.PolarDatabase)
	assert.Equal(t, "polar_data", cfg.Mongo.PolarCollection)
	assert.Equal(t, "nightscout", cfg.Mongo.GlucoseDatabase)
	assert.Equal(t, "entries", cfg.Mongo.GlucoseCollection)
	assert.Equal(t, "Europe/Zurich", cfg.Mongo.TimeZone)
	assert.Equal(t, 2*time.Second, cfg.Monitor.RefreshInterval)
	assert.Equal(t, 15, cfg.Monitor.DefaultWindowMinutes)
	assert.Equal(t, 10, cfg.Monitor.RecentRows)
	assert.Equal(t, "biofeedback.snapshot", cfg.NATS.Subject)
	assert.Empty(t, cfg.NATS.URL)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("POLAR_MONGO_URI", "mongodb://mongo:27017")
	t.Setenv("POLAR_MONITOR_DEFAULT_WINDOW_MINUTES", "30")
	t.Setenv("POLAR_MONITOR_REFRESH_INTERVAL", "1s")
	t.Setenv("POLAR_REDIS_DB", "3")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "mongodb://mongo:27017", cfg.Mongo.URI)
	assert.Equal(t, 30, cfg.Monitor.DefaultWindowMinutes)
	assert.Equal(t, time.Second, cfg.Monitor.RefreshInterval)
	assert.Equal(t, 3, cfg.Redis.DB)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "polar.yaml")
	content := []byte("monitor:\n  default_window_minutes: 45\nlogging:\n  level: debug\n")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 45, cfg.Monitor.DefaultWindowMinutes)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_RejectsWindowOutOfRange(t *testing.T) {
	t.Setenv("POLAR_MONITOR_DEFAULT_WINDOW_MINUTES", "90")

	_, err := Load("")
	assert.ErrorContains(t, err, "default_window_minutes")
}

func TestValidate_TimeZone(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Mongo.TimeZone = "Mars/Olympus_Mons"
	assert.Error(t, cfg.Validate())
}
