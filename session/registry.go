package session

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/batchflow/checkpoint"
	"github.com/BaSui01/batchflow/types"
)

// Registry exposes persisted run state for inspection and cleanup.
// It never mutates a run except through Prune.
type Registry struct {
	store  checkpoint.Store
	logger *zap.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger.With(zap.String("component", "session"))
		}
	}
}

// NewRegistry creates a Registry over the given store.
func NewRegistry(store checkpoint.Store, opts ...Option) *Registry {
	r := &Registry{store: store, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// List returns the metadata of all persisted runs, newest first.
func (r *Registry) List(ctx context.Context) ([]*types.RunInfo, error) {
	runs, err := r.store.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].UpdatedAt.After(runs[j].UpdatedAt)
	})
	return runs, nil
}

// Get returns the full snapshot of one run, results included, or
// checkpoint.ErrNotFound.
func (r *Registry) Get(ctx context.Context, runID string) (*checkpoint.Snapshot, error) {
	return r.store.Load(ctx, runID)
}

// Prune deletes runs nobody will resume: runs with a recorded failure
// or a complete item count, plus any run whose last update is older
// than retention. A healthy partial run inside the retention window is
// left alone. Returns the number of deleted runs.
func (r *Registry) Prune(ctx context.Context, retention time.Duration) (int, error) {
	runs, err := r.store.List(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-retention)
	pruned := 0
	for _, run := range runs {
		terminal := run.Error != "" || run.Finished()
		stale := run.UpdatedAt.Before(cutoff)
		if !terminal && !stale {
			continue
		}
		if err := r.store.Delete(ctx, run.RunID); err != nil {
			r.logger.Warn("prune failed for run",
				zap.String("run_id", run.RunID),
				zap.Error(err))
			continue
		}
		r.logger.Info("pruned run",
			zap.String("run_id", run.RunID),
			zap.Bool("terminal", terminal),
			zap.Bool("stale", stale))
		pruned++
	}
	return pruned, nil
}

// Stats summarizes the persisted runs.
type Stats struct {
	Total  int                   `json:"total"`
	ByMode map[types.RunMode]int `json:"by_mode"`
	Failed int                   `json:"failed"`
	Oldest time.Time             `json:"oldest,omitempty"`
}

// Stats aggregates counts over the persisted runs.
func (r *Registry) Stats(ctx context.Context) (*Stats, error) {
	runs, err := r.store.List(ctx)
	if err != nil {
		return nil, err
	}

	stats := &Stats{ByMode: make(map[types.RunMode]int)}
	for _, run := range runs {
		stats.Total++
		stats.ByMode[run.Mode]++
		if run.Error != "" {
			stats.Failed++
		}
		if stats.Oldest.IsZero() || run.CreatedAt.Before(stats.Oldest) {
			stats.Oldest = run.CreatedAt
		}
	}
	return stats, nil
}
