package testutil

import (
	"sync"

	"github.com/BaSui01/batchflow/types"
)

// RecordingObserver captures run lifecycle notifications for
// assertions. Safe for concurrent use.
type RecordingObserver struct {
	mu sync.Mutex

	Batches   []types.Progress
	Retries   []int
	Completes []string
	Aborts    []error
}

func (o *RecordingObserver) OnBatchStart(p types.Progress) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Batches = append(o.Batches, p)
}

func (o *RecordingObserver) OnRetry(runID string, attempt int, cause error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Retries = append(o.Retries, attempt)
}

func (o *RecordingObserver) OnComplete(runID string, totalItems int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Completes = append(o.Completes, runID)
}

func (o *RecordingObserver) OnAbort(runID string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Aborts = append(o.Aborts, err)
}

// BatchRanges returns the observed [start, end] pairs in order.
func (o *RecordingObserver) BatchRanges() [][2]int {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([][2]int, len(o.Batches))
	for i, p := range o.Batches {
		out[i] = [2]int{p.BatchStart, p.BatchEnd}
	}
	return out
}
