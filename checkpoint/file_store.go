package checkpoint

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/batchflow/types"
)

// FileStore is a file-based Store: one JSON file per run id under
// <BaseDir>/checkpoints. Suitable for single-node production use.
type FileStore struct {
	baseDir string
	serde   Serde
	config  StoreConfig
	logger  *zap.Logger
	mu      sync.Mutex
	closed  bool
}

// NewFileStore creates a file-based checkpoint store, creating the
// checkpoint directory if needed.
func NewFileStore(config StoreConfig, opts ...FileStoreOption) (*FileStore, error) {
	if config.BaseDir == "" {
		return nil, fmt.Errorf("checkpoint base directory cannot be empty")
	}

	baseDir := filepath.Join(config.BaseDir, "checkpoints")
	if err := os.MkdirAll(baseDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	s := &FileStore{
		baseDir: baseDir,
		serde:   JSONSerde{},
		config:  config,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("component", "checkpoint_file_store"))
	return s, nil
}

// FileStoreOption configures a FileStore.
type FileStoreOption func(*FileStore)

// WithLogger sets the store logger.
func WithLogger(logger *zap.Logger) FileStoreOption {
	return func(s *FileStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// path returns the checkpoint file path for a run id.
func (s *FileStore) path(runID string) string {
	return filepath.Join(s.baseDir, sanitizeRunID(runID)+".json")
}

func (s *FileStore) InitializeOrResume(ctx context.Context, runID string, totalItems int, mode types.RunMode) (*Snapshot, int, error) {
	return initializeOrResume(ctx, s.Load, s.config.AutoRecover, runID, totalItems, mode)
}

func (s *FileStore) Persist(ctx context.Context, runID string, snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	snap.UpdatedAt = time.Now()
	data, err := s.serde.Serialize(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	if err := writeAtomic(s.path(runID), data); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}

	s.logger.Debug("checkpoint persisted",
		zap.String("run_id", runID),
		zap.Int("completed", snap.Completed),
		zap.Int("total", snap.TotalItems),
	)
	return nil
}

func (s *FileStore) Delete(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	if err := os.Remove(s.path(runID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

func (s *FileStore) RecordFailure(ctx context.Context, runID string, snap *Snapshot, batchStart int, errMsg string) error {
	snap.Error = errMsg
	snap.FailedBatch = batchStart

	if err := s.Persist(ctx, runID, snap); err != nil {
		return err
	}

	s.logger.Warn("run failure recorded",
		zap.String("run_id", runID),
		zap.Int("failed_batch", batchStart),
		zap.String("error", errMsg),
	)
	return nil
}

func (s *FileStore) Load(ctx context.Context, runID string) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	data, err := os.ReadFile(s.path(runID))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	var snap Snapshot
	if err := s.serde.Deserialize(data, &snap); err != nil {
		return nil, corruptedError(runID, err)
	}
	return &snap, nil
}

func (s *FileStore) List(ctx context.Context) ([]*types.RunInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint directory: %w", err)
	}

	runs := make([]*types.RunInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.baseDir, entry.Name()))
		if err != nil {
			s.logger.Warn("skipping unreadable checkpoint", zap.String("file", entry.Name()), zap.Error(err))
			continue
		}
		var snap Snapshot
		if err := s.serde.Deserialize(data, &snap); err != nil {
			s.logger.Warn("skipping corrupted checkpoint", zap.String("file", entry.Name()), zap.Error(err))
			continue
		}
		info := snap.RunInfo
		runs = append(runs, &info)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.Before(runs[j].CreatedAt)
	})
	return runs, nil
}

func (s *FileStore) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	_, err := os.Stat(s.baseDir)
	return err
}

func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// writeAtomic writes data with the temp-file-then-rename pattern so a
// crash mid-write never corrupts the previous checkpoint.
func writeAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

var _ Store = (*FileStore)(nil)
