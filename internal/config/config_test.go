package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 8080
database:
  type: sqlite
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, "debug", cfg.Server.Mode)
	assert.Equal(t, "30s", cfg.Server.ShutdownTimeout)
	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.Equal(t, "relay.db", cfg.Database.Path)
	assert.Equal(t, "https://graph.facebook.com/v19.0", cfg.Platforms.Instagram.BaseURL)
	assert.Equal(t, "https://api.linkedin.com", cfg.Platforms.LinkedIn.BaseURL)
	assert.Equal(t, "60s", cfg.Platforms.Instagram.Timeout)
}

func TestLoadConfig_EnvSubstitution(t *testing.T) {
	t.Setenv("RELAY_TEST_DB_PASSWORD", "hunter2")
	path := writeConfig(t, `
database:
  password: ${RELAY_TEST_DB_PASSWORD}
platforms:
  x:
    timeout: 10s
    debug: true
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "hunter2", cfg.Database.Password)
	assert.Equal(t, "10s", cfg.Platforms.X.Timeout)
	assert.True(t, cfg.Platforms.X.Debug)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDuration(t *testing.T) {
	assert.Equal(t, 10*time.Second, Duration("10s", time.Minute))
	assert.Equal(t, time.Minute, Duration("", time.Minute))
	assert.Equal(t, time.Minute, Duration("soon", time.Minute))
	assert.Equal(t, time.Minute, Duration("-5s", time.Minute))
}
