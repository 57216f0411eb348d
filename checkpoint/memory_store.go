package checkpoint

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/BaSui01/batchflow/types"
)

// MemoryStore is an in-memory Store for development and testing.
//
// Snapshots are stored in serialized form so that Load returns the same
// generic JSON values a file-backed resume would, keeping test behavior
// representative of production.
type MemoryStore struct {
	snapshots map[string][]byte
	serde     Serde
	config    StoreConfig
	mu        sync.RWMutex
	closed    bool
}

// NewMemoryStore creates a new in-memory checkpoint store.
func NewMemoryStore(config StoreConfig) *MemoryStore {
	return &MemoryStore{
		snapshots: make(map[string][]byte),
		serde:     JSONSerde{},
		config:    config,
	}
}

func (s *MemoryStore) InitializeOrResume(ctx context.Context, runID string, totalItems int, mode types.RunMode) (*Snapshot, int, error) {
	return initializeOrResume(ctx, s.Load, s.config.AutoRecover, runID, totalItems, mode)
}

func (s *MemoryStore) Persist(ctx context.Context, runID string, snap *Snapshot) error {
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
	s.snapshots[runID] = data
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	delete(s.snapshots, runID)
	return nil
}

func (s *MemoryStore) RecordFailure(ctx context.Context, runID string, snap *Snapshot, batchStart int, errMsg string) error {
	snap.Error = errMsg
	snap.FailedBatch = batchStart
	return s.Persist(ctx, runID, snap)
}

func (s *MemoryStore) Load(ctx context.Context, runID string) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	data, ok := s.snapshots[runID]
	if !ok {
		return nil, ErrNotFound
	}

	var snap Snapshot
	if err := s.serde.Deserialize(data, &snap); err != nil {
		return nil, corruptedError(runID, err)
	}
	return &snap, nil
}

func (s *MemoryStore) List(ctx context.Context) ([]*types.RunInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	runs := make([]*types.RunInfo, 0, len(s.snapshots))
	for _, data := range s.snapshots {
		var snap Snapshot
		if err := s.serde.Deserialize(data, &snap); err != nil {
			continue // unreadable entries are skipped, mirroring the file backend
		}
		info := snap.RunInfo
		runs = append(runs, &info)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.Before(runs[j].CreatedAt)
	})
	return runs, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

var _ Store = (*MemoryStore)(nil)
