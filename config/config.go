package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete engine configuration.
type Config struct {
	// BatchSize is the number of items processed and checkpointed as
	// one atomic unit.
	BatchSize int `yaml:"batch_size"`

	// RetryAttempts is the number of attempts per batch before the run
	// aborts.
	RetryAttempts int `yaml:"retry_attempts"`

	// RetryInterval is the pause between attempts of the same batch.
	RetryInterval time.Duration `yaml:"retry_interval"`

	// AutoRecover controls whether an existing checkpoint is honored
	// on the next invocation with the same run identifier.
	AutoRecover bool `yaml:"auto_recover"`

	// CacheDir is the path root for checkpoints and locks.
	CacheDir string `yaml:"cache_dir"`

	// LockTimeout bounds lock acquisition and defines lock staleness.
	LockTimeout time.Duration `yaml:"lock_timeout"`

	// Store selects the checkpoint storage backend.
	Store StoreConfig `yaml:"store"`

	// Log configures the engine logger.
	Log LogConfig `yaml:"log"`
}

// StoreConfig selects and configures the checkpoint storage backend.
type StoreConfig struct {
	// Backend is one of "file", "memory", "redis".
	Backend string `yaml:"backend"`

	// Redis configuration, used when Backend is "redis".
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig contains Redis-specific settings.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	PoolSize  int    `yaml:"pool_size"`
	KeyPrefix string `yaml:"key_prefix"`
}

// LogConfig configures logging output.
type LogConfig struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string `yaml:"level"`
	// Encoding is "json" or "console".
	Encoding string `yaml:"encoding"`
}

// rawConfig mirrors Config for YAML decoding. Pointer fields aliased
// to the target keep defaults for keys absent from the file; the
// durations come in as strings because yaml.v3 has no native
// time.Duration support.
type rawConfig struct {
	BatchSize     *int         `yaml:"batch_size"`
	RetryAttempts *int         `yaml:"retry_attempts"`
	RetryInterval string       `yaml:"retry_interval"`
	AutoRecover   *bool        `yaml:"auto_recover"`
	CacheDir      *string      `yaml:"cache_dir"`
	LockTimeout   string       `yaml:"lock_timeout"`
	Store         *StoreConfig `yaml:"store"`
	Log           *LogConfig   `yaml:"log"`
}

// UnmarshalYAML implements yaml.Unmarshaler, accepting durations in Go
// notation ("1s", "500ms").
func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	raw := rawConfig{
		BatchSize:     &c.BatchSize,
		RetryAttempts: &c.RetryAttempts,
		AutoRecover:   &c.AutoRecover,
		CacheDir:      &c.CacheDir,
		Store:         &c.Store,
		Log:           &c.Log,
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	if raw.RetryInterval != "" {
		d, err := time.ParseDuration(raw.RetryInterval)
		if err != nil {
			return fmt.Errorf("invalid retry_interval: %w", err)
		}
		c.RetryInterval = d
	}
	if raw.LockTimeout != "" {
		d, err := time.ParseDuration(raw.LockTimeout)
		if err != nil {
			return fmt.Errorf("invalid lock_timeout: %w", err)
		}
		c.LockTimeout = d
	}
	return nil
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		BatchSize:     50,
		RetryAttempts: 3,
		RetryInterval: 1 * time.Second,
		AutoRecover:   true,
		CacheDir:      "./.batchflow",
		LockTimeout:   60 * time.Second,
		Store: StoreConfig{
			Backend: "file",
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				PoolSize:  10,
				KeyPrefix: "batchflow:",
			},
		},
		Log: LogConfig{
			Level:    "info",
			Encoding: "console",
		},
	}
}

// Validate checks the configuration for values the engine cannot run
// with.
func (c Config) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.RetryAttempts <= 0 {
		return fmt.Errorf("retry_attempts must be positive, got %d", c.RetryAttempts)
	}
	if c.RetryInterval < 0 {
		return fmt.Errorf("retry_interval must not be negative, got %s", c.RetryInterval)
	}
	if c.LockTimeout <= 0 {
		return fmt.Errorf("lock_timeout must be positive, got %s", c.LockTimeout)
	}
	if c.CacheDir == "" {
		return fmt.Errorf("cache_dir must not be empty")
	}
	switch c.Store.Backend {
	case "file", "memory", "redis":
	default:
		return fmt.Errorf("unsupported store backend: %q", c.Store.Backend)
	}
	return nil
}
