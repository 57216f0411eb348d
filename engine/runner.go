package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/batchflow/checkpoint"
	"github.com/BaSui01/batchflow/internal/metrics"
	"github.com/BaSui01/batchflow/lock"
	"github.com/BaSui01/batchflow/retry"
	"github.com/BaSui01/batchflow/types"
)

const (
	// DefaultBatchSize is used when no batch size is configured.
	DefaultBatchSize = 50
	// DefaultLockTimeout bounds lock acquisition and stale-lock age.
	DefaultLockTimeout = 60 * time.Second
)

// Runner executes checkpointed runs: validate, resume or initialize,
// lock, then process batches strictly in order with a checkpoint
// write after each one. A completed run deletes its checkpoint; an
// aborted run leaves the last good checkpoint behind for the next
// invocation to resume from.
type Runner struct {
	store       checkpoint.Store
	locks       lock.Manager
	policy      *retry.Policy
	batchSize   int
	lockTimeout time.Duration
	observer    Observer
	collector   *metrics.Collector
	logger      *zap.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithBatchSize sets the number of items per batch.
func WithBatchSize(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithLockTimeout bounds lock acquisition and stale-lock age.
func WithLockTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.lockTimeout = d
		}
	}
}

// WithRetryPolicy sets the per-batch retry policy.
func WithRetryPolicy(p *retry.Policy) Option {
	return func(r *Runner) {
		if p != nil {
			r.policy = p
		}
	}
}

// WithObserver sets the progress observer.
func WithObserver(o Observer) Option {
	return func(r *Runner) {
		if o != nil {
			r.observer = o
		}
	}
}

// WithCollector sets the metrics collector.
func WithCollector(c *metrics.Collector) Option {
	return func(r *Runner) { r.collector = c }
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger.With(zap.String("component", "runner"))
		}
	}
}

// NewRunner creates a Runner over the given store and lock manager.
func NewRunner(store checkpoint.Store, locks lock.Manager, opts ...Option) *Runner {
	r := &Runner{
		store:       store,
		locks:       locks,
		policy:      retry.DefaultPolicy(),
		batchSize:   DefaultBatchSize,
		lockTimeout: DefaultLockTimeout,
		observer:    NopObserver{},
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run drives the adapter over the sequences and returns the ordered
// outputs. A run that previously aborted resumes from its checkpoint
// when auto-recovery is enabled; the returned slice always covers all
// items, resumed prefix included.
func (r *Runner) Run(ctx context.Context, runID string, adapter Adapter, seqs ...Sequence) ([]any, error) {
	if err := validateRun(runID, adapter, seqs); err != nil {
		return nil, err
	}
	total := len(seqs[0].Items)
	mode := adapter.Mode()
	logger := r.logger.With(zap.String("run_id", runID), zap.String("mode", string(mode)))

	snap, start, err := r.store.InitializeOrResume(ctx, runID, total, mode)
	if err != nil {
		return nil, err
	}
	if start > 1 {
		logger.Info("resuming from checkpoint",
			zap.Int("completed", snap.Completed),
			zap.Int("total_items", total))
	}
	// A resumed run gets a clean slate for failure bookkeeping.
	snap.Error = ""
	snap.FailedBatch = 0

	lockStart := time.Now()
	handle, err := r.locks.Acquire(ctx, runID, r.lockTimeout)
	if err != nil {
		return nil, err
	}
	if r.collector != nil {
		r.collector.ObserveLockWait(time.Since(lockStart))
	}
	defer func() {
		if rerr := r.locks.Release(handle); rerr != nil {
			logger.Warn("lock release failed", zap.Error(rerr))
		}
	}()

	if err := r.runBatches(ctx, logger, runID, adapter, seqs, snap, start, total); err != nil {
		if r.collector != nil {
			r.collector.RecordRun(string(mode), "aborted")
		}
		r.observer.OnAbort(runID, err)
		return nil, err
	}

	outputs := snap.Results
	if err := r.store.Delete(ctx, runID); err != nil {
		logger.Warn("checkpoint cleanup failed", zap.Error(err))
	}
	if r.collector != nil {
		r.collector.RecordRun(string(mode), "completed")
	}
	r.observer.OnComplete(runID, total)
	logger.Info("run completed", zap.Int("total_items", total))
	return outputs, nil
}

// runBatches is the Running/Checkpointed loop. The resume point is
// item-based, not batch-based, so a resumed run may start mid-way
// through what was a batch in the previous invocation.
func (r *Runner) runBatches(ctx context.Context, logger *zap.Logger, runID string,
	adapter Adapter, seqs []Sequence, snap *checkpoint.Snapshot, start, total int) error {
	mode := string(adapter.Mode())
	executor := r.newExecutor(runID)

	for batchStart := start; batchStart <= total; {
		batchEnd := batchStart + r.batchSize - 1
		if batchEnd > total {
			batchEnd = total
		}

		r.observer.OnBatchStart(types.Progress{
			RunID:      runID,
			Mode:       adapter.Mode(),
			BatchStart: batchStart,
			BatchEnd:   batchEnd,
			TotalItems: total,
			Percent:    float64(snap.Completed) / float64(total) * 100,
		})

		batch := sliceBatch(seqs, batchStart, batchEnd)
		began := time.Now()
		var result BatchResult
		err := executor.Do(ctx, func() error {
			res, rerr := adapter.Run(ctx, batch)
			if rerr != nil {
				return rerr
			}
			result = res
			return nil
		})
		if err != nil {
			if r.collector != nil {
				r.collector.RecordBatch(mode, "failed", time.Since(began))
			}
			err = batchError(err, runID, batchStart, batchEnd)
			if perr := r.store.RecordFailure(ctx, runID, snap, batchStart, err.Error()); perr != nil {
				logger.Warn("failure annotation not persisted", zap.Error(perr))
			}
			logger.Error("batch failed, aborting run",
				zap.Int("batch_start", batchStart),
				zap.Int("batch_end", batchEnd),
				zap.Error(err))
			return err
		}

		snap.Append(result.Outputs, result.Processed)
		writeStart := time.Now()
		if perr := r.store.Persist(ctx, runID, snap); perr != nil {
			return types.NewError(types.ErrStore, "checkpoint write failed").
				WithRun(runID).
				WithBatch(batchStart, batchEnd).
				WithCause(perr)
		}
		if r.collector != nil {
			r.collector.ObserveCheckpointWrite(time.Since(writeStart))
			r.collector.RecordBatch(mode, "completed", time.Since(began))
			r.collector.RecordItems(mode, result.Processed)
		}
		logger.Debug("batch checkpointed",
			zap.Int("batch_start", batchStart),
			zap.Int("batch_end", batchEnd),
			zap.Int("completed", snap.Completed))

		batchStart += result.Processed
	}
	return nil
}

// newExecutor copies the retry policy so the observer hook of one run
// never leaks into another.
func (r *Runner) newExecutor(runID string) retry.Executor {
	policy := *r.policy
	userHook := policy.OnRetry
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		if r.collector != nil {
			r.collector.RecordRetry()
		}
		r.observer.OnRetry(runID, attempt, err)
		if userHook != nil {
			userHook(attempt, err, delay)
		}
	}
	return retry.NewExecutor(&policy, r.logger)
}

// sliceBatch narrows every sequence to the 1-based inclusive range.
func sliceBatch(seqs []Sequence, start, end int) Batch {
	sliced := make([]Sequence, len(seqs))
	for i, seq := range seqs {
		sliced[i] = Sequence{Name: seq.Name, Items: seq.Items[start-1 : end]}
	}
	return Batch{Start: start, End: end, Sequences: sliced}
}

// batchError guarantees the caller sees a *types.Error annotated with
// the run and the failing range.
func batchError(err error, runID string, start, end int) error {
	var te *types.Error
	if !errors.As(err, &te) {
		te = types.NewError(types.ErrBatchExecution, "batch execution failed").WithCause(err)
	}
	return te.WithRun(runID).WithBatch(start, end)
}

// validateRun rejects bad input before any lock or checkpoint is
// touched.
func validateRun(runID string, adapter Adapter, seqs []Sequence) error {
	if runID == "" {
		return types.NewError(types.ErrValidation, "run identifier is required")
	}
	if adapter == nil {
		return types.NewError(types.ErrValidation, "adapter is required").WithRun(runID)
	}
	if !adapter.Mode().Valid() {
		return types.NewError(types.ErrValidation,
			fmt.Sprintf("unknown run mode %q", adapter.Mode())).WithRun(runID)
	}
	if len(seqs) == 0 {
		return types.NewError(types.ErrValidation, "at least one input sequence is required").WithRun(runID)
	}
	total := len(seqs[0].Items)
	if total == 0 {
		return types.NewError(types.ErrValidation, "input is empty").WithRun(runID)
	}
	for i, seq := range seqs[1:] {
		if len(seq.Items) != total {
			return types.NewError(types.ErrValidation,
				fmt.Sprintf("sequence %d has %d items, want %d", i+1, len(seq.Items), total)).
				WithRun(runID)
		}
	}
	return nil
}
