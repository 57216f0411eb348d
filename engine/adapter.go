package engine

import (
	"context"
	"fmt"

	"github.com/BaSui01/batchflow/types"
)

// Sequence is one named input collection. All sequences of a run must
// have the same length; item i of every sequence belongs to the same
// logical row.
type Sequence struct {
	Name  string
	Items []any
}

// Seq builds an unnamed sequence.
func Seq(items []any) Sequence {
	return Sequence{Items: items}
}

// NamedSeq builds a named sequence for MapNamed adapters.
func NamedSeq(name string, items []any) Sequence {
	return Sequence{Name: name, Items: items}
}

// Batch is one contiguous slice of the run handed to an adapter.
// Start and End are 1-based absolute item indexes, inclusive, and
// every sequence is already sliced to that range.
type Batch struct {
	Start     int
	End       int
	Sequences []Sequence
}

// Len returns the number of items in the batch.
func (b Batch) Len() int { return b.End - b.Start + 1 }

// BatchResult is what an adapter produced for one batch. Outputs are
// in item order; Processed is the number of items finished, which for
// side-effect adapters advances the resume point without outputs.
type BatchResult struct {
	Outputs   []any
	Processed int
}

// Adapter executes the items of one batch. A batch either succeeds
// completely or fails completely; partial output is never returned.
type Adapter interface {
	Mode() types.RunMode
	Run(ctx context.Context, batch Batch) (BatchResult, error)
}

// funcAdapter runs a per-item function over the rows of a batch.
type funcAdapter struct {
	mode    types.RunMode
	collect bool
	fn      func(ctx context.Context, absIndex int, row []any) (any, error)
}

func (a *funcAdapter) Mode() types.RunMode { return a.mode }

func (a *funcAdapter) Run(ctx context.Context, batch Batch) (BatchResult, error) {
	n := batch.Len()
	outputs := make([]any, 0, n)
	row := make([]any, len(batch.Sequences))
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return BatchResult{}, err
		}
		for s, seq := range batch.Sequences {
			row[s] = seq.Items[i]
		}
		out, err := a.fn(ctx, batch.Start+i, row)
		if err != nil {
			return BatchResult{}, fmt.Errorf("item %d: %w", batch.Start+i, err)
		}
		if a.collect {
			outputs = append(outputs, out)
		}
	}
	return BatchResult{Outputs: outputs, Processed: n}, nil
}

// Map adapts a one-argument function over a single sequence.
func Map(fn func(ctx context.Context, item any) (any, error)) Adapter {
	return &funcAdapter{
		mode:    types.ModeMap,
		collect: true,
		fn: func(ctx context.Context, _ int, row []any) (any, error) {
			return fn(ctx, row[0])
		},
	}
}

// MapPair adapts a two-argument function over two aligned sequences.
func MapPair(fn func(ctx context.Context, a, b any) (any, error)) Adapter {
	return &funcAdapter{
		mode:    types.ModePair,
		collect: true,
		fn: func(ctx context.Context, _ int, row []any) (any, error) {
			return fn(ctx, row[0], row[1])
		},
	}
}

// MapIndexed adapts a function that also receives the absolute
// 1-based item index, stable across resumes and batch sizes.
func MapIndexed(fn func(ctx context.Context, index int, item any) (any, error)) Adapter {
	return &funcAdapter{
		mode:    types.ModeIndexed,
		collect: true,
		fn: func(ctx context.Context, absIndex int, row []any) (any, error) {
			return fn(ctx, absIndex, row[0])
		},
	}
}

// MapNamed adapts a function over N named sequences; each call
// receives the row as a name-to-item map.
func MapNamed(fn func(ctx context.Context, row map[string]any) (any, error)) Adapter {
	return &namedAdapter{fn: fn}
}

type namedAdapter struct {
	fn func(ctx context.Context, row map[string]any) (any, error)
}

func (a *namedAdapter) Mode() types.RunMode { return types.ModeNamed }

func (a *namedAdapter) Run(ctx context.Context, batch Batch) (BatchResult, error) {
	n := batch.Len()
	outputs := make([]any, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return BatchResult{}, err
		}
		row := make(map[string]any, len(batch.Sequences))
		for _, seq := range batch.Sequences {
			row[seq.Name] = seq.Items[i]
		}
		out, err := a.fn(ctx, row)
		if err != nil {
			return BatchResult{}, fmt.Errorf("item %d: %w", batch.Start+i, err)
		}
		outputs = append(outputs, out)
	}
	return BatchResult{Outputs: outputs, Processed: n}, nil
}

// ForEach adapts a side-effect function; no outputs are collected but
// completed items still advance the resume point.
func ForEach(fn func(ctx context.Context, item any) error) Adapter {
	return &funcAdapter{
		mode:    types.ModeForEach,
		collect: false,
		fn: func(ctx context.Context, _ int, row []any) (any, error) {
			return nil, fn(ctx, row[0])
		},
	}
}
