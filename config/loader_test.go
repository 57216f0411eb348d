package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, 3, cfg.RetryAttempts)
	assert.True(t, cfg.AutoRecover)
	assert.Equal(t, "file", cfg.Store.Backend)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero batch size", func(c *Config) { c.BatchSize = 0 }},
		{"negative retry attempts", func(c *Config) { c.RetryAttempts = -1 }},
		{"negative retry interval", func(c *Config) { c.RetryInterval = -time.Second }},
		{"zero lock timeout", func(c *Config) { c.LockTimeout = 0 }},
		{"empty cache dir", func(c *Config) { c.CacheDir = "" }},
		{"unknown backend", func(c *Config) { c.Store.Backend = "mongodb" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "batchflow.yaml")
	content := `
batch_size: 25
retry_attempts: 5
retry_interval: 2s
auto_recover: false
cache_dir: /tmp/bf-cache
lock_timeout: 30s
store:
  backend: redis
  redis:
    addr: redis.internal:6379
    key_prefix: "jobs:"
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.BatchSize)
	assert.Equal(t, 5, cfg.RetryAttempts)
	assert.Equal(t, 2*time.Second, cfg.RetryInterval)
	assert.False(t, cfg.AutoRecover)
	assert.Equal(t, "/tmp/bf-cache", cfg.CacheDir)
	assert.Equal(t, 30*time.Second, cfg.LockTimeout)
	assert.Equal(t, "redis", cfg.Store.Backend)
	assert.Equal(t, "redis.internal:6379", cfg.Store.Redis.Addr)
	assert.Equal(t, "jobs:", cfg.Store.Redis.KeyPrefix)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath(filepath.Join(t.TempDir(), "nope.yaml")).Load()
	require.NoError(t, err)
	assert.Equal(t, Default().BatchSize, cfg.BatchSize)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("BATCHFLOW_BATCH_SIZE", "7")
	t.Setenv("BATCHFLOW_AUTO_RECOVER", "false")
	t.Setenv("BATCHFLOW_LOCK_TIMEOUT", "90s")
	t.Setenv("BATCHFLOW_STORE_BACKEND", "memory")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.BatchSize)
	assert.False(t, cfg.AutoRecover)
	assert.Equal(t, 90*time.Second, cfg.LockTimeout)
	assert.Equal(t, "memory", cfg.Store.Backend)
}

func TestInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("batch_size: {{{"), 0o600))

	_, err := NewLoader().WithConfigPath(path).Load()
	assert.Error(t, err)
}

func TestInvalidEnvValueIgnored(t *testing.T) {
	t.Setenv("BATCHFLOW_BATCH_SIZE", "not-a-number")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, Default().BatchSize, cfg.BatchSize)
}
