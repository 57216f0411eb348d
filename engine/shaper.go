package engine

import (
	"fmt"
	"math"
)

// Output shapers convert the engine's []any results into typed
// slices. Checkpointed results travel through JSON, which turns all
// numbers into float64 on reload; the numeric shapers absorb that so
// resumed and fresh runs shape identically.

// Identity returns the results unchanged.
func Identity(results []any) ([]any, error) {
	return results, nil
}

// Strings shapes results into []string.
func Strings(results []any) ([]string, error) {
	out := make([]string, len(results))
	for i, r := range results {
		s, ok := r.(string)
		if !ok {
			return nil, fmt.Errorf("result %d: expected string, got %T", i, r)
		}
		out[i] = s
	}
	return out, nil
}

// Ints shapes results into []int, accepting the integral float64
// values a checkpoint reload produces.
func Ints(results []any) ([]int, error) {
	out := make([]int, len(results))
	for i, r := range results {
		switch v := r.(type) {
		case int:
			out[i] = v
		case int64:
			out[i] = int(v)
		case float64:
			if v != math.Trunc(v) {
				return nil, fmt.Errorf("result %d: %v is not integral", i, v)
			}
			out[i] = int(v)
		default:
			return nil, fmt.Errorf("result %d: expected int, got %T", i, r)
		}
	}
	return out, nil
}

// Floats shapes results into []float64.
func Floats(results []any) ([]float64, error) {
	out := make([]float64, len(results))
	for i, r := range results {
		switch v := r.(type) {
		case float64:
			out[i] = v
		case float32:
			out[i] = float64(v)
		case int:
			out[i] = float64(v)
		case int64:
			out[i] = float64(v)
		default:
			return nil, fmt.Errorf("result %d: expected number, got %T", i, r)
		}
	}
	return out, nil
}
