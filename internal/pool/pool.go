// Package pool runs per-item work concurrently with a bounded worker
// count while preserving input order in the outputs.
package pool

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Options bounds a parallel map.
type Options struct {
	// Limit caps concurrently running workers. Values below 1 mean
	// one item at a time.
	Limit int

	// Limiter, when set, throttles item starts. Shared across calls it
	// gives a process-wide ceiling on downstream request rate.
	Limiter *rate.Limiter
}

// Fn processes the item at index i and returns its output.
type Fn func(ctx context.Context, i int, item any) (any, error)

// Map applies fn to every item and returns the outputs in input
// order. The first failure cancels the remaining work and is returned
// after in-flight workers finish; outputs are discarded on error.
func Map(ctx context.Context, items []any, opts Options, fn Fn) ([]any, error) {
	limit := opts.Limit
	if limit < 1 {
		limit = 1
	}

	outputs := make([]any, len(items))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	var waitErr error
	for i, item := range items {
		if opts.Limiter != nil {
			if err := opts.Limiter.Wait(ctx); err != nil {
				waitErr = err
				break
			}
		}
		g.Go(func() error {
			out, err := fn(ctx, i, item)
			if err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
			outputs[i] = out
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if waitErr != nil {
		return nil, waitErr
	}
	return outputs, nil
}
