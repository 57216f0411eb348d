package engine

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/BaSui01/batchflow/internal/pool"
	"github.com/BaSui01/batchflow/types"
)

// ParallelConfig bounds the fan-out of a Parallel adapter.
type ParallelConfig struct {
	// Workers caps concurrently processed items of one batch. Values
	// below 2 make the wrapper pointless but still correct.
	Workers int

	// RatePerSecond, when positive, throttles item starts across the
	// whole run. Useful when the per-item work calls a rate-limited
	// downstream.
	RatePerSecond float64

	// Burst for the rate limiter; defaults to Workers.
	Burst int
}

// Parallel wraps an adapter so the items of one batch are processed
// concurrently by a bounded worker set. Output order is preserved and
// the all-or-nothing batch contract is kept: one failing item fails
// the whole batch. Batches themselves still run strictly one after
// another.
func Parallel(inner Adapter, cfg ParallelConfig) Adapter {
	p := &parallelAdapter{inner: inner, workers: cfg.Workers}
	if p.workers < 1 {
		p.workers = 1
	}
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = p.workers
		}
		p.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return p
}

type parallelAdapter struct {
	inner   Adapter
	workers int
	limiter *rate.Limiter
}

func (p *parallelAdapter) Mode() types.RunMode { return p.inner.Mode() }

func (p *parallelAdapter) Run(ctx context.Context, batch Batch) (BatchResult, error) {
	n := batch.Len()
	items := make([]any, n)
	for i := range items {
		items[i] = i
	}

	results, err := pool.Map(ctx, items, pool.Options{Limit: p.workers, Limiter: p.limiter},
		func(ctx context.Context, i int, _ any) (any, error) {
			return p.inner.Run(ctx, p.subBatch(batch, i))
		})
	if err != nil {
		return BatchResult{}, err
	}

	out := BatchResult{Outputs: make([]any, 0, n)}
	for _, r := range results {
		br := r.(BatchResult)
		out.Outputs = append(out.Outputs, br.Outputs...)
		out.Processed += br.Processed
	}
	return out, nil
}

// subBatch narrows a batch to the single item at offset i.
func (p *parallelAdapter) subBatch(batch Batch, i int) Batch {
	seqs := make([]Sequence, len(batch.Sequences))
	for s, seq := range batch.Sequences {
		seqs[s] = Sequence{Name: seq.Name, Items: seq.Items[i : i+1]}
	}
	return Batch{Start: batch.Start + i, End: batch.Start + i, Sequences: seqs}
}
