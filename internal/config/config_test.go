package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.False(t, cfg.Server.Debug)
	assert.Equal(t, "admin", cfg.Auth.Username)
	assert.Equal(t, 24, cfg.Auth.TokenExpiry)
	assert.Equal(t, "./data/logs", cfg.Store.Dir)
	assert.Equal(t, 10, cfg.Store.MaxSizeMB)
	assert.Equal(t, 20, cfg.Store.MaxBackups)
	assert.Equal(t, 250000, cfg.Query.ScanCap)
	assert.Equal(t, 1000, cfg.Stream.BufferSize)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  host: 127.0.0.1
  port: 9999
  debug: true
store:
  dir: /var/log/hooktrail
  max_size_mb: 5
query:
  scan_cap: 1000
stream:
  buffer_size: 64
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.True(t, cfg.Server.Debug)
	assert.Equal(t, "/var/log/hooktrail", cfg.Store.Dir)
	assert.Equal(t, 5, cfg.Store.MaxSizeMB)
	assert.Equal(t, 1000, cfg.Query.ScanCap)
	assert.Equal(t, 64, cfg.Stream.BufferSize)

	// Unspecified sections keep their defaults.
	assert.Equal(t, "admin", cfg.Auth.Username)
	assert.Equal(t, 20, cfg.Store.MaxBackups)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadEnvExpansion(t *testing.T) {
	t.Setenv("HOOKTRAIL_TEST_HOST", "10.0.0.5")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  host: ${HOOKTRAIL_TEST_HOST}
  port: ${HOOKTRAIL_TEST_PORT:-8443}
auth:
  jwt_secret: ${HOOKTRAIL_TEST_SECRET}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.5", cfg.Server.Host)
	assert.Equal(t, 8443, cfg.Server.Port)
	assert.Empty(t, cfg.Auth.JWTSecret)
}

func TestExpandEnvVarsDefaultIgnoredWhenSet(t *testing.T) {
	t.Setenv("HOOKTRAIL_TEST_DIR", "/data/override")

	out := expandEnvVars("dir: ${HOOKTRAIL_TEST_DIR:-/data/default}")
	assert.Equal(t, "dir: /data/override", out)
}

func TestStoreConfigConversion(t *testing.T) {
	sc := StoreConfig{Dir: "/tmp/logs", MaxSizeMB: 3, MaxBackups: 7, RetentionDays: 14}
	lc := sc.StoreConfig()

	assert.Equal(t, "/tmp/logs", lc.Dir)
	assert.Equal(t, 3, lc.MaxSizeMB)
	assert.Equal(t, 7, lc.MaxBackups)
}

func TestAddress(t *testing.T) {
	sc := ServerConfig{Host: "localhost", Port: 8080}
	assert.Equal(t, "localhost:8080", sc.Address())
}
