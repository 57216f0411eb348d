package checkpoint

import (
	"context"
	"fmt"
	"testing"

	"pgregory.net/rapid"

	"github.com/BaSui01/batchflow/types"
)

// Persisting any sequence of batch appends and loading it back must
// preserve the contiguous-prefix invariant and the resume point.
func TestSnapshotRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		total := rapid.IntRange(1, 200).Draw(rt, "total")
		batchSize := rapid.IntRange(1, 50).Draw(rt, "batchSize")
		completedBatches := rapid.IntRange(0, (total+batchSize-1)/batchSize).Draw(rt, "completedBatches")

		cfg := DefaultStoreConfig()
		store := NewMemoryStore(cfg)
		defer store.Close()

		ctx := context.Background()
		snap, start, err := store.InitializeOrResume(ctx, "prop-run", total, types.ModeMap)
		if err != nil {
			rt.Fatalf("initialize: %v", err)
		}
		if start != 1 {
			rt.Fatalf("fresh start index = %d, want 1", start)
		}

		// Simulate checkpointing after each completed batch.
		next := 1
		for b := 0; b < completedBatches && next <= total; b++ {
			end := next + batchSize - 1
			if end > total {
				end = total
			}
			outputs := make([]any, 0, end-next+1)
			for i := next; i <= end; i++ {
				outputs = append(outputs, fmt.Sprintf("out-%d", i))
			}
			snap.Append(outputs, len(outputs))
			if err := store.Persist(ctx, "prop-run", snap); err != nil {
				rt.Fatalf("persist: %v", err)
			}
			next = end + 1
		}

		loaded, resumeStart, err := store.InitializeOrResume(ctx, "prop-run", total, types.ModeMap)
		if err != nil {
			rt.Fatalf("resume: %v", err)
		}

		if len(loaded.Results) > loaded.TotalItems {
			rt.Fatalf("results length %d exceeds total %d", len(loaded.Results), loaded.TotalItems)
		}
		if loaded.Completed != len(loaded.Results) {
			rt.Fatalf("completed %d != results length %d", loaded.Completed, len(loaded.Results))
		}
		if resumeStart != loaded.Completed+1 {
			rt.Fatalf("resume start %d != completed+1 (%d)", resumeStart, loaded.Completed+1)
		}
		for i, r := range loaded.Results {
			want := fmt.Sprintf("out-%d", i+1)
			if r != want {
				rt.Fatalf("result[%d] = %v, want %s (prefix must be gap-free and ordered)", i, r, want)
			}
		}
	})
}
