package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/batchflow/types"
)

// Common errors
var (
	ErrNotFound    = errors.New("checkpoint not found")
	ErrStoreClosed = errors.New("store is closed")
	ErrCorrupted   = errors.New("checkpoint corrupted")
)

// StoreType represents the type of storage backend.
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeFile   StoreType = "file"
	StoreTypeRedis  StoreType = "redis"
)

// Snapshot is the persisted state of a run: its metadata plus the
// ordered results completed so far.
//
// Invariant: Results is always a contiguous prefix of the full output.
// For collecting modes len(Results) == Completed; for side-effect mode
// Results stays empty and Completed advances alone. The resume point is
// always Completed+1 and is independent of batch boundaries.
type Snapshot struct {
	types.RunInfo
	Results []any `json:"results"`
}

// Append records one batch of outputs and advances the completion
// counter by processed items.
func (s *Snapshot) Append(outputs []any, processed int) {
	s.Results = append(s.Results, outputs...)
	s.Completed += processed
}

// Store is the contract the batch runner and the session registry
// depend on for durable run progress.
type Store interface {
	// InitializeOrResume returns the snapshot and 1-based start index
	// for a run. If a checkpoint exists and auto-recovery is enabled
	// it is loaded and startIndex = Completed+1; otherwise a fresh
	// snapshot with startIndex 1 is returned (not yet persisted).
	// A checkpoint that cannot be deserialized yields a *types.Error
	// with code CORRUPTED_CHECKPOINT.
	InitializeOrResume(ctx context.Context, runID string, totalItems int, mode types.RunMode) (*Snapshot, int, error)

	// Persist atomically overwrites the run's checkpoint, stamping
	// UpdatedAt. Safe to call after every batch.
	Persist(ctx context.Context, runID string, snap *Snapshot) error

	// Delete removes the run's checkpoint. Removing an absent
	// checkpoint is not an error.
	Delete(ctx context.Context, runID string) error

	// RecordFailure annotates the snapshot with failure context and
	// persists it, so the next invocation can explain why progress
	// stopped.
	RecordFailure(ctx context.Context, runID string, snap *Snapshot, batchStart int, errMsg string) error

	// Load returns the persisted snapshot, or ErrNotFound.
	Load(ctx context.Context, runID string) (*Snapshot, error)

	// List enumerates metadata of all persisted runs.
	List(ctx context.Context) ([]*types.RunInfo, error)

	// Ping checks if the store is healthy.
	Ping(ctx context.Context) error

	// Close closes the store and releases resources.
	Close() error
}

// Serde defines the serialization used for persisted snapshots.
type Serde interface {
	Serialize(v any) ([]byte, error)
	Deserialize(data []byte, v any) error
}

// JSONSerde implements JSON serialization.
type JSONSerde struct{}

func (JSONSerde) Serialize(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}

func (JSONSerde) Deserialize(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// StoreConfig is the configuration shared by all store backends.
type StoreConfig struct {
	// Type is the storage backend type.
	Type StoreType `json:"type" yaml:"type"`

	// BaseDir is the cache directory for file-based storage; the
	// store writes under <BaseDir>/checkpoints.
	BaseDir string `json:"base_dir" yaml:"base_dir"`

	// AutoRecover controls whether InitializeOrResume honors an
	// existing checkpoint.
	AutoRecover bool `json:"auto_recover" yaml:"auto_recover"`

	// Redis configuration (only used when Type is "redis").
	Redis RedisStoreConfig `json:"redis" yaml:"redis"`
}

// RedisStoreConfig contains Redis-specific configuration.
type RedisStoreConfig struct {
	Addr      string `json:"addr" yaml:"addr"`
	Password  string `json:"password" yaml:"password"`
	DB        int    `json:"db" yaml:"db"`
	PoolSize  int    `json:"pool_size" yaml:"pool_size"`
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix"`
}

// DefaultStoreConfig returns the default store configuration.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Type:        StoreTypeMemory,
		BaseDir:     "./.batchflow",
		AutoRecover: true,
		Redis: RedisStoreConfig{
			Addr:      "localhost:6379",
			PoolSize:  10,
			KeyPrefix: "batchflow:",
		},
	}
}

// New creates a Store for the configured backend.
func New(cfg StoreConfig) (Store, error) {
	switch cfg.Type {
	case StoreTypeMemory:
		return NewMemoryStore(cfg), nil
	case StoreTypeFile:
		return NewFileStore(cfg)
	case StoreTypeRedis:
		return NewRedisStore(cfg)
	default:
		return nil, fmt.Errorf("unsupported checkpoint store type: %s", cfg.Type)
	}
}

// freshSnapshot builds the initial snapshot of a run.
func freshSnapshot(runID string, totalItems int, mode types.RunMode) *Snapshot {
	now := time.Now()
	return &Snapshot{
		RunInfo: types.RunInfo{
			RunID:      runID,
			Mode:       mode,
			TotalItems: totalItems,
			CreatedAt:  now,
			UpdatedAt:  now,
		},
		Results: []any{},
	}
}

// initializeOrResume implements the shared resume decision for all
// backends on top of their Load implementation.
func initializeOrResume(ctx context.Context, load func(context.Context, string) (*Snapshot, error),
	autoRecover bool, runID string, totalItems int, mode types.RunMode) (*Snapshot, int, error) {
	if autoRecover {
		snap, err := load(ctx, runID)
		switch {
		case err == nil:
			// The current invocation's input is authoritative for the
			// total; the completed prefix is what resume preserves.
			snap.TotalItems = totalItems
			return snap, snap.Completed + 1, nil
		case errors.Is(err, ErrNotFound):
			// Fresh start below.
		default:
			return nil, 0, err
		}
	}
	return freshSnapshot(runID, totalItems, mode), 1, nil
}

// corruptedError wraps a deserialization failure in the structured
// error the caller is expected to inspect.
func corruptedError(runID string, cause error) error {
	return types.NewError(types.ErrCorruptedCheckpoint,
		"persisted checkpoint could not be deserialized").
		WithRun(runID).
		WithCause(errors.Join(ErrCorrupted, cause))
}

// sanitizeRunID maps a run identifier to a token safe for use in file
// names and storage keys.
func sanitizeRunID(runID string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, runID)
}
