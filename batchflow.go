// Package batchflow is the top-level entry point for checkpointed
// batch execution.
//
// Usage:
//
//	import "github.com/BaSui01/batchflow"
//
//	bf, err := batchflow.New(batchflow.WithBatchSize(20))
//	defer bf.Close()
//
//	out, err := bf.Run(ctx, "nightly-embeddings", engine.Map(embed),
//	    engine.Seq(items))
//
// A run that fails resumes from its last checkpoint when re-invoked
// with the same run identifier. This package wires the checkpoint
// store, the run lock and the runner from one configuration; callers
// needing finer control can assemble engine.Runner themselves.
package batchflow

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/batchflow/checkpoint"
	"github.com/BaSui01/batchflow/config"
	"github.com/BaSui01/batchflow/engine"
	"github.com/BaSui01/batchflow/internal/metrics"
	"github.com/BaSui01/batchflow/lock"
	"github.com/BaSui01/batchflow/retry"
	"github.com/BaSui01/batchflow/session"
	"github.com/BaSui01/batchflow/types"
)

// Engine bundles a configured runner with its store, lock manager and
// session registry.
type Engine struct {
	cfg      config.Config
	logger   *zap.Logger
	store    checkpoint.Store
	locks    lock.Manager
	runner   *engine.Runner
	registry *session.Registry
}

// Option configures the Engine created by [New].
type Option func(*options)

type options struct {
	cfg       *config.Config
	cfgPath   string
	logger    *zap.Logger
	store     checkpoint.Store
	locks     lock.Manager
	observer  engine.Observer
	registry  prometheus.Registerer
	noMetrics bool
}

// WithConfig uses an explicit configuration instead of the defaults.
func WithConfig(cfg config.Config) Option {
	return func(o *options) { o.cfg = &cfg }
}

// WithConfigFile loads configuration from a YAML file, then applies
// BATCHFLOW_* environment overrides.
func WithConfigFile(path string) Option {
	return func(o *options) { o.cfgPath = path }
}

// WithBatchSize overrides the configured batch size.
func WithBatchSize(n int) Option {
	return func(o *options) {
		if o.cfg == nil {
			cfg := config.Default()
			o.cfg = &cfg
		}
		o.cfg.BatchSize = n
	}
}

// WithLogger sets a custom zap logger. Without it a logger is built
// from the log section of the configuration.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithStore injects a pre-built checkpoint store, overriding the
// configured backend.
func WithStore(store checkpoint.Store) Option {
	return func(o *options) { o.store = store }
}

// WithLockManager injects a pre-built lock manager.
func WithLockManager(locks lock.Manager) Option {
	return func(o *options) { o.locks = locks }
}

// WithObserver sets the progress observer. Defaults to a logging
// observer on the engine logger.
func WithObserver(obs engine.Observer) Option {
	return func(o *options) { o.observer = obs }
}

// WithMetricsRegisterer registers the Prometheus instruments with reg
// instead of the default registerer.
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registry = reg }
}

// WithoutMetrics disables Prometheus instrumentation entirely.
func WithoutMetrics() Option {
	return func(o *options) { o.noMetrics = true }
}

// New creates an Engine from the given options.
func New(opts ...Option) (*Engine, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	cfg, err := resolveConfig(&o)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("batchflow: invalid configuration: %w", err)
	}

	logger := o.logger
	if logger == nil {
		logger, err = NewLogger(cfg.Log)
		if err != nil {
			return nil, fmt.Errorf("batchflow: build logger: %w", err)
		}
	}

	store := o.store
	if store == nil {
		store, err = checkpoint.New(storeConfig(cfg))
		if err != nil {
			return nil, fmt.Errorf("batchflow: build store: %w", err)
		}
	}

	locks := o.locks
	if locks == nil {
		locks, err = buildLockManager(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("batchflow: build lock manager: %w", err)
		}
	}

	observer := o.observer
	if observer == nil {
		observer = engine.NewLoggingObserver(logger)
	}

	runnerOpts := []engine.Option{
		engine.WithBatchSize(cfg.BatchSize),
		engine.WithLockTimeout(cfg.LockTimeout),
		engine.WithRetryPolicy(&retry.Policy{
			MaxAttempts: cfg.RetryAttempts,
			Interval:    cfg.RetryInterval,
			Multiplier:  1.0,
		}),
		engine.WithObserver(observer),
		engine.WithLogger(logger),
	}
	if !o.noMetrics {
		runnerOpts = append(runnerOpts,
			engine.WithCollector(metrics.NewCollector("batchflow", o.registry)))
	}

	return &Engine{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		locks:    locks,
		runner:   engine.NewRunner(store, locks, runnerOpts...),
		registry: session.NewRegistry(store, session.WithLogger(logger)),
	}, nil
}

func resolveConfig(o *options) (config.Config, error) {
	if o.cfg != nil {
		return *o.cfg, nil
	}
	loader := config.NewLoader()
	if o.cfgPath != "" {
		loader = loader.WithConfigPath(o.cfgPath)
	}
	return loader.Load()
}

// storeConfig maps the engine configuration onto the checkpoint
// store's own config type.
func storeConfig(cfg config.Config) checkpoint.StoreConfig {
	return checkpoint.StoreConfig{
		Type:        checkpoint.StoreType(cfg.Store.Backend),
		BaseDir:     cfg.CacheDir,
		AutoRecover: cfg.AutoRecover,
		Redis: checkpoint.RedisStoreConfig{
			Addr:      cfg.Store.Redis.Addr,
			Password:  cfg.Store.Redis.Password,
			DB:        cfg.Store.Redis.DB,
			PoolSize:  cfg.Store.Redis.PoolSize,
			KeyPrefix: cfg.Store.Redis.KeyPrefix,
		},
	}
}

// buildLockManager picks the lock backend matching the store backend:
// redis stores get redis leases, everything else uses file locks under
// the cache dir.
func buildLockManager(cfg config.Config, logger *zap.Logger) (lock.Manager, error) {
	if cfg.Store.Backend == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
			PoolSize: cfg.Store.Redis.PoolSize,
		})
		return lock.NewRedisManager(client, cfg.Store.Redis.KeyPrefix,
			lock.WithRedisLockLogger(logger)), nil
	}
	return lock.NewFileManager(cfg.CacheDir, lock.WithFileLockLogger(logger))
}

// NewLogger builds a zap logger from the log configuration.
func NewLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	zcfg := zap.NewProductionConfig()
	if cfg.Encoding == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

// Run executes the adapter over the sequences under the given run
// identifier. An empty runID gets a generated one; pass a stable
// identifier to make the run resumable across invocations.
func (e *Engine) Run(ctx context.Context, runID string, adapter engine.Adapter, seqs ...engine.Sequence) ([]any, error) {
	if runID == "" && adapter != nil {
		runID = types.NewRunID(adapter.Mode())
	}
	return e.runner.Run(ctx, runID, adapter, seqs...)
}

// RunStrings is Run for string-to-string work, with inputs lifted and
// outputs shaped in one call.
func (e *Engine) RunStrings(ctx context.Context, runID string, items []string,
	fn func(ctx context.Context, item string) (string, error)) ([]string, error) {
	lifted := make([]any, len(items))
	for i, it := range items {
		lifted[i] = it
	}
	adapter := engine.Map(func(ctx context.Context, item any) (any, error) {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("expected string item, got %T", item)
		}
		return fn(ctx, s)
	})
	out, err := e.Run(ctx, runID, adapter, engine.Seq(lifted))
	if err != nil {
		return nil, err
	}
	return engine.Strings(out)
}

// ForEach runs a side-effect function over the items; completed items
// are never re-run on resume.
func (e *Engine) ForEach(ctx context.Context, runID string, items []any,
	fn func(ctx context.Context, item any) error) error {
	_, err := e.Run(ctx, runID, engine.ForEach(fn), engine.Seq(items))
	return err
}

// Sessions returns the registry over this engine's persisted runs.
func (e *Engine) Sessions() *session.Registry {
	return e.registry
}

// ClearLock force-removes the lock of an abandoned run.
func (e *Engine) ClearLock(ctx context.Context, runID string) error {
	c, ok := e.locks.(lock.Clearer)
	if !ok {
		return fmt.Errorf("batchflow: lock backend cannot force-clear")
	}
	return c.Clear(ctx, runID)
}

// Config returns the effective configuration.
func (e *Engine) Config() config.Config {
	return e.cfg
}

// Close releases the store and flushes the logger.
func (e *Engine) Close() error {
	_ = e.logger.Sync()
	return e.store.Close()
}
