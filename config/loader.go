package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader loads configuration with the precedence
// defaults -> YAML file -> environment variables.
type Loader struct {
	configPath string
	envPrefix  string
}

// NewLoader creates a loader with the default env prefix "BATCHFLOW".
func NewLoader() *Loader {
	return &Loader{envPrefix: "BATCHFLOW"}
}

// WithConfigPath sets the YAML file to load. A missing file is not an
// error; the loader falls back to defaults plus environment overrides.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix overrides the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// Load builds the final configuration and validates it.
func (l *Loader) Load() (Config, error) {
	cfg := Default()

	if l.configPath != "" {
		data, err := os.ReadFile(l.configPath)
		switch {
		case os.IsNotExist(err):
			// Fall through to defaults.
		case err != nil:
			return Config{}, fmt.Errorf("read config %s: %w", l.configPath, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", l.configPath, err)
			}
		}
	}

	l.applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyEnv overrides individual fields from PREFIX_* variables.
func (l *Loader) applyEnv(cfg *Config) {
	l.envInt("BATCH_SIZE", &cfg.BatchSize)
	l.envInt("RETRY_ATTEMPTS", &cfg.RetryAttempts)
	l.envDuration("RETRY_INTERVAL", &cfg.RetryInterval)
	l.envBool("AUTO_RECOVER", &cfg.AutoRecover)
	l.envString("CACHE_DIR", &cfg.CacheDir)
	l.envDuration("LOCK_TIMEOUT", &cfg.LockTimeout)
	l.envString("STORE_BACKEND", &cfg.Store.Backend)
	l.envString("REDIS_ADDR", &cfg.Store.Redis.Addr)
	l.envString("REDIS_PASSWORD", &cfg.Store.Redis.Password)
	l.envInt("REDIS_DB", &cfg.Store.Redis.DB)
	l.envInt("REDIS_POOL_SIZE", &cfg.Store.Redis.PoolSize)
	l.envString("REDIS_KEY_PREFIX", &cfg.Store.Redis.KeyPrefix)
	l.envString("LOG_LEVEL", &cfg.Log.Level)
	l.envString("LOG_ENCODING", &cfg.Log.Encoding)
}

func (l *Loader) lookup(key string) (string, bool) {
	return os.LookupEnv(l.envPrefix + "_" + key)
}

func (l *Loader) envString(key string, dst *string) {
	if v, ok := l.lookup(key); ok {
		*dst = v
	}
}

func (l *Loader) envInt(key string, dst *int) {
	if v, ok := l.lookup(key); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*dst = n
		}
	}
}

func (l *Loader) envBool(key string, dst *bool) {
	if v, ok := l.lookup(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			*dst = b
		}
	}
}

func (l *Loader) envDuration(key string, dst *time.Duration) {
	if v, ok := l.lookup(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			*dst = d
		}
	}
}
