package engine_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	ptestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/batchflow/checkpoint"
	"github.com/BaSui01/batchflow/engine"
	"github.com/BaSui01/batchflow/internal/metrics"
	"github.com/BaSui01/batchflow/lock"
	"github.com/BaSui01/batchflow/retry"
	"github.com/BaSui01/batchflow/testutil"
	"github.com/BaSui01/batchflow/types"
)

func fastRetry(attempts int) *retry.Policy {
	return &retry.Policy{
		MaxAttempts: attempts,
		Interval:    time.Millisecond,
		Multiplier:  1.0,
	}
}

// testHarness bundles the pieces a runner test needs. The file store
// and file locks live in one temp dir, so "a second invocation" is
// just a second runner over the same dir.
type testHarness struct {
	dir   string
	store checkpoint.Store
	locks lock.Manager
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	dir := t.TempDir()

	cfg := checkpoint.DefaultStoreConfig()
	cfg.Type = checkpoint.StoreTypeFile
	cfg.BaseDir = dir
	store, err := checkpoint.NewFileStore(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	locks, err := lock.NewFileManager(dir)
	require.NoError(t, err)

	return &testHarness{dir: dir, store: store, locks: locks}
}

func (h *testHarness) runner(opts ...engine.Option) *engine.Runner {
	base := []engine.Option{
		engine.WithRetryPolicy(fastRetry(3)),
		engine.WithLockTimeout(2 * time.Second),
	}
	return engine.NewRunner(h.store, h.locks, append(base, opts...)...)
}

func items(n int) []any {
	out := make([]any, n)
	for i := range out {
		out[i] = fmt.Sprintf("item-%d", i+1)
	}
	return out
}

func upperItems(n int) []any {
	out := make([]any, n)
	for i := range out {
		out[i] = fmt.Sprintf("ITEM-%d", i+1)
	}
	return out
}

func TestRunner_CompletesAndCleansUp(t *testing.T) {
	h := newHarness(t)
	obs := &testutil.RecordingObserver{}
	r := h.runner(engine.WithBatchSize(3), engine.WithObserver(obs))

	flaky := testutil.NewFlakyFunc(0)
	out, err := r.Run(testutil.TestContext(t), "run-ok", engine.Map(flaky.Upper),
		engine.Seq(items(7)))
	require.NoError(t, err)
	assert.Equal(t, upperItems(7), out)

	// Cleanup on success: no checkpoint survives a completed run.
	_, err = h.store.Load(testutil.TestContext(t), "run-ok")
	assert.ErrorIs(t, err, checkpoint.ErrNotFound)

	assert.Equal(t, [][2]int{{1, 3}, {4, 6}, {7, 7}}, obs.BatchRanges())
	assert.Equal(t, []string{"run-ok"}, obs.Completes)
	assert.Empty(t, obs.Aborts)
	assert.Empty(t, obs.Retries)

	// The lock must be gone as well.
	handle, err := h.locks.Acquire(testutil.TestContext(t), "run-ok", 100*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, h.locks.Release(handle))
}

// Fifteen items, batch size five, item 8 permanently failing: the
// first invocation checkpoints items 1-5 and aborts on batch 6-10
// after three attempts, leaving the checkpoint behind; a second
// invocation with the failure fixed reprocesses only items 6-15 and
// returns all fifteen results.
func TestRunner_AbortAndResume(t *testing.T) {
	h := newHarness(t)
	ctx := testutil.TestContext(t)

	broken := testutil.NewFlakyFunc(99, "item-8")
	obs := &testutil.RecordingObserver{}
	r := h.runner(engine.WithBatchSize(5), engine.WithObserver(obs))

	_, err := r.Run(ctx, "run-15", engine.Map(broken.Upper), engine.Seq(items(15)))
	require.Error(t, err)

	var te *types.Error
	require.True(t, errors.As(err, &te))
	assert.Equal(t, types.ErrBatchExecution, te.Code)
	assert.Equal(t, "run-15", te.RunID)
	assert.Equal(t, 6, te.BatchStart)
	assert.Equal(t, 10, te.BatchEnd)
	assert.Equal(t, 3, te.Attempts)
	assert.Len(t, obs.Retries, 2, "three attempts mean two re-attempts")
	assert.Len(t, obs.Aborts, 1)

	snap, err := h.store.Load(ctx, "run-15")
	require.NoError(t, err)
	assert.Equal(t, 5, snap.Completed)
	assert.Len(t, snap.Results, 5)
	assert.Equal(t, 6, snap.FailedBatch)
	assert.NotEmpty(t, snap.Error)

	// Second invocation, failure fixed.
	healed := testutil.NewFlakyFunc(0)
	r2 := h.runner(engine.WithBatchSize(5))
	out, err := r2.Run(ctx, "run-15", engine.Map(healed.Upper), engine.Seq(items(15)))
	require.NoError(t, err)
	assert.Equal(t, upperItems(15), out)
	assert.Equal(t, 10, healed.Calls, "the checkpointed prefix must not be reprocessed")

	_, err = h.store.Load(ctx, "run-15")
	assert.ErrorIs(t, err, checkpoint.ErrNotFound)
}

func TestRunner_TransientFailureAbsorbedByRetry(t *testing.T) {
	h := newHarness(t)
	obs := &testutil.RecordingObserver{}
	r := h.runner(engine.WithBatchSize(4), engine.WithObserver(obs))

	flaky := testutil.NewFlakyFunc(1, "item-2")
	out, err := r.Run(testutil.TestContext(t), "run-transient",
		engine.Map(flaky.Upper), engine.Seq(items(6)))
	require.NoError(t, err)
	assert.Equal(t, upperItems(6), out)
	assert.Equal(t, []int{2}, obs.Retries, "one re-attempt absorbs a single transient failure")
	assert.Empty(t, obs.Aborts)
}

func TestRunner_Validation(t *testing.T) {
	h := newHarness(t)
	r := h.runner()
	ctx := testutil.TestContext(t)

	upper := testutil.NewFlakyFunc(0)
	pair := engine.MapPair(func(ctx context.Context, a, b any) (any, error) {
		return nil, nil
	})

	cases := []struct {
		name  string
		runID string
		run   func() error
	}{
		{"empty run id", "", func() error {
			_, err := r.Run(ctx, "", engine.Map(upper.Upper), engine.Seq(items(1)))
			return err
		}},
		{"no sequences", "v-1", func() error {
			_, err := r.Run(ctx, "v-1", engine.Map(upper.Upper))
			return err
		}},
		{"empty input", "v-2", func() error {
			_, err := r.Run(ctx, "v-2", engine.Map(upper.Upper), engine.Seq(nil))
			return err
		}},
		{"mismatched lengths", "v-3", func() error {
			_, err := r.Run(ctx, "v-3", pair,
				engine.Seq(items(3)), engine.Seq(items(2)))
			return err
		}},
		{"nil adapter", "v-4", func() error {
			_, err := r.Run(ctx, "v-4", nil, engine.Seq(items(1)))
			return err
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.run()
			require.Error(t, err)
			assert.True(t, types.IsCode(err, types.ErrValidation))

			// Validation failures must leave no trace: no checkpoint,
			// no lock.
			if tc.runID != "" {
				_, lerr := h.store.Load(ctx, tc.runID)
				assert.ErrorIs(t, lerr, checkpoint.ErrNotFound)
				handle, aerr := h.locks.Acquire(ctx, tc.runID, 50*time.Millisecond)
				require.NoError(t, aerr)
				require.NoError(t, h.locks.Release(handle))
			}
		})
	}
}

func TestRunner_LockTimeout(t *testing.T) {
	h := newHarness(t)
	ctx := testutil.TestContext(t)

	// Another process holds the run.
	handle, err := h.locks.Acquire(ctx, "run-busy", time.Minute)
	require.NoError(t, err)
	defer h.locks.Release(handle)

	r := h.runner(engine.WithLockTimeout(200 * time.Millisecond))
	flaky := testutil.NewFlakyFunc(0)
	_, err = r.Run(ctx, "run-busy", engine.Map(flaky.Upper), engine.Seq(items(3)))
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrLockTimeout))
	assert.ErrorIs(t, err, lock.ErrLockHeld)
	assert.Equal(t, 0, flaky.Calls, "no item may run without the lock")
}

func TestRunner_ForEachResume(t *testing.T) {
	h := newHarness(t)
	ctx := testutil.TestContext(t)

	var mu sync.Mutex
	counts := map[any]int{}
	firstRun := true
	effect := func(ctx context.Context, item any) error {
		mu.Lock()
		defer mu.Unlock()
		if firstRun && item == "item-4" {
			return errors.New("sink unavailable")
		}
		counts[item]++
		return nil
	}

	r := h.runner(engine.WithBatchSize(2))
	_, err := r.Run(ctx, "run-fe", engine.ForEach(effect), engine.Seq(items(6)))
	require.Error(t, err)

	snap, err := h.store.Load(ctx, "run-fe")
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Completed, "side-effect progress must advance without outputs")
	assert.Empty(t, snap.Results)

	firstRun = false
	out, err := r.Run(ctx, "run-fe", engine.ForEach(effect), engine.Seq(items(6)))
	require.NoError(t, err)
	assert.Empty(t, out)

	// The checkpointed prefix runs exactly once across both
	// invocations; the failed batch is at-least-once by contract.
	assert.Equal(t, 1, counts["item-1"])
	assert.Equal(t, 1, counts["item-2"])
	for _, it := range []any{"item-4", "item-5", "item-6"} {
		assert.Equal(t, 1, counts[it])
	}
	assert.GreaterOrEqual(t, counts["item-3"], 1)

	_, err = h.store.Load(ctx, "run-fe")
	assert.ErrorIs(t, err, checkpoint.ErrNotFound)
}

func TestRunner_ParallelBatches(t *testing.T) {
	h := newHarness(t)
	r := h.runner(engine.WithBatchSize(4))

	flaky := testutil.NewFlakyFunc(0)
	adapter := engine.Parallel(engine.Map(flaky.Upper), engine.ParallelConfig{Workers: 4})

	out, err := r.Run(testutil.TestContext(t), "run-par", adapter, engine.Seq(items(10)))
	require.NoError(t, err)
	assert.Equal(t, upperItems(10), out)
}

func TestRunner_Metrics(t *testing.T) {
	h := newHarness(t)
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector("batchflow", reg)
	r := h.runner(engine.WithBatchSize(5), engine.WithCollector(collector))

	flaky := testutil.NewFlakyFunc(0)
	_, err := r.Run(testutil.TestContext(t), "run-metrics",
		engine.Map(flaky.Upper), engine.Seq(items(12)))
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["batchflow_runs_total"])
	assert.True(t, names["batchflow_batches_total"])
	assert.True(t, names["batchflow_items_processed_total"])

	count, err := ptestutil.GatherAndCount(reg,
		"batchflow_runs_total", "batchflow_items_processed_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
