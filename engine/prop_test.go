package engine_test

import (
	"context"
	"fmt"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/batchflow/checkpoint"
	"github.com/BaSui01/batchflow/engine"
	"github.com/BaSui01/batchflow/lock"
	"github.com/BaSui01/batchflow/retry"
	"github.com/BaSui01/batchflow/testutil"
)

var propRunSeq atomic.Int64

func nextRunID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, propRunSeq.Add(1))
}

// propHarness shares one memory store and lock dir across property
// iterations; each iteration uses a unique run id.
type propHarness struct {
	store checkpoint.Store
	locks lock.Manager
}

func newPropHarness(t *testing.T) *propHarness {
	t.Helper()
	store := checkpoint.NewMemoryStore(checkpoint.DefaultStoreConfig())
	t.Cleanup(func() { store.Close() })
	locks, err := lock.NewFileManager(t.TempDir())
	require.NoError(t, err)
	return &propHarness{store: store, locks: locks}
}

func (h *propHarness) runner(batchSize int) *engine.Runner {
	return engine.NewRunner(h.store, h.locks,
		engine.WithBatchSize(batchSize),
		engine.WithRetryPolicy(&retry.Policy{MaxAttempts: 2, Interval: time.Microsecond, Multiplier: 1.0}),
		engine.WithLockTimeout(time.Second))
}

func propParams() *gopter.TestParameters {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 30
	return params
}

// A run that aborts mid-way and is then re-invoked must produce
// exactly what a single uninterrupted run produces.
func TestProp_ResumeEquivalence(t *testing.T) {
	h := newPropHarness(t)
	ctx := context.Background()

	properties := gopter.NewProperties(propParams())
	properties.Property("interrupted+resumed == uninterrupted", prop.ForAll(
		func(total, batchSize, failSeed int) bool {
			failItem := failSeed%total + 1
			runID := nextRunID("resume")
			in := items(total)

			broken := testutil.NewFlakyFunc(99, fmt.Sprintf("item-%d", failItem))
			if _, err := h.runner(batchSize).Run(ctx, runID, engine.Map(broken.Upper), engine.Seq(in)); err == nil {
				return false // the broken item must abort the run
			}

			healed := testutil.NewFlakyFunc(0)
			out, err := h.runner(batchSize).Run(ctx, runID, engine.Map(healed.Upper), engine.Seq(in))
			if err != nil {
				return false
			}
			return reflect.DeepEqual(out, upperItems(total))
		},
		gen.IntRange(1, 30),
		gen.IntRange(1, 10),
		gen.IntRange(0, 29),
	))
	properties.TestingRun(t)
}

// An aborted run's checkpoint holds a contiguous, gap-free prefix:
// exactly the batches before the failing one.
func TestProp_PrefixInvariant(t *testing.T) {
	h := newPropHarness(t)
	ctx := context.Background()

	properties := gopter.NewProperties(propParams())
	properties.Property("checkpoint is the exact pre-failure prefix", prop.ForAll(
		func(total, batchSize, failSeed int) bool {
			failItem := failSeed%total + 1
			runID := nextRunID("prefix")

			broken := testutil.NewFlakyFunc(99, fmt.Sprintf("item-%d", failItem))
			_, err := h.runner(batchSize).Run(ctx, runID, engine.Map(broken.Upper), engine.Seq(items(total)))
			if err == nil {
				return false
			}

			snap, err := h.store.Load(ctx, runID)
			if err != nil {
				return false
			}
			wantCompleted := (failItem - 1) / batchSize * batchSize
			if snap.Completed != wantCompleted || len(snap.Results) != wantCompleted {
				return false
			}
			return reflect.DeepEqual(snap.Results, upperItems(wantCompleted))
		},
		gen.IntRange(1, 30),
		gen.IntRange(1, 10),
		gen.IntRange(0, 29),
	))
	properties.TestingRun(t)
}

// The final output never depends on the batch size.
func TestProp_BatchSizeIndependence(t *testing.T) {
	h := newPropHarness(t)
	ctx := context.Background()

	properties := gopter.NewProperties(propParams())
	properties.Property("outputs identical across batch sizes", prop.ForAll(
		func(total, sizeA, sizeB int) bool {
			in := items(total)

			fa := testutil.NewFlakyFunc(0)
			outA, err := h.runner(sizeA).Run(ctx, nextRunID("bsa"), engine.Map(fa.Upper), engine.Seq(in))
			if err != nil {
				return false
			}
			fb := testutil.NewFlakyFunc(0)
			outB, err := h.runner(sizeB).Run(ctx, nextRunID("bsb"), engine.Map(fb.Upper), engine.Seq(in))
			if err != nil {
				return false
			}
			return reflect.DeepEqual(outA, outB)
		},
		gen.IntRange(1, 30),
		gen.IntRange(1, 12),
		gen.IntRange(1, 12),
	))
	properties.TestingRun(t)
}
