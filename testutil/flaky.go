package testutil

import (
	"context"
	"fmt"
	"sync"
)

// FlakyFunc wraps a per-item function so calls for items in the fail
// set error out, each up to `failures` times. With failures exceeding
// the retry budget it simulates a permanently broken item; with a
// lower value it simulates a transient fault that retries absorb.
// Safe for concurrent use.
type FlakyFunc struct {
	mu       sync.Mutex
	failures int
	seen     map[any]int
	failing  map[any]bool

	// Calls counts every invocation, including failed ones.
	Calls int
}

// NewFlakyFunc creates a FlakyFunc where each listed item fails its
// first `failures` calls.
func NewFlakyFunc(failures int, failItems ...any) *FlakyFunc {
	failing := make(map[any]bool, len(failItems))
	for _, it := range failItems {
		failing[it] = true
	}
	return &FlakyFunc{
		failures: failures,
		seen:     make(map[any]int),
		failing:  failing,
	}
}

// Apply runs fn unless the item is scheduled to fail this call.
func (f *FlakyFunc) Apply(item any, fn func(any) (any, error)) (any, error) {
	f.mu.Lock()
	f.Calls++
	fail := false
	if f.failing[item] {
		f.seen[item]++
		fail = f.seen[item] <= f.failures
	}
	f.mu.Unlock()

	if fail {
		return nil, fmt.Errorf("injected failure for item %v", item)
	}
	return fn(item)
}

// Upper is a FlakyFunc-compatible item function usable directly with
// engine adapters: it uppercases string items after the failure
// schedule clears.
func (f *FlakyFunc) Upper(_ context.Context, item any) (any, error) {
	return f.Apply(item, func(it any) (any, error) {
		s, ok := it.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", it)
		}
		return upper(s), nil
	})
}

func upper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - 'a' + 'A'
		}
	}
	return string(b)
}
