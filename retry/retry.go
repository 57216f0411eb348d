package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/batchflow/types"
)

// Policy configures the retry loop. The zero Multiplier and Jitter
// give a fixed interval between attempts, which is the default for
// batch work: the failure is usually a transient downstream hiccup,
// not a congested shared resource.
type Policy struct {
	MaxAttempts int           // total attempts including the first (minimum 1)
	Interval    time.Duration // delay before each re-attempt
	Multiplier  float64       // per-attempt interval growth, 1.0 keeps it fixed
	Jitter      bool          // randomize each delay by ±25%

	// OnRetry is invoked before each re-attempt with the 1-based number
	// of the attempt about to run and the error that triggered it.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultPolicy returns the stock policy: three attempts, one second
// apart.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxAttempts: 3,
		Interval:    time.Second,
		Multiplier:  1.0,
	}
}

// Executor runs functions under a retry policy.
type Executor interface {
	// Do runs fn until it succeeds or attempts are exhausted.
	Do(ctx context.Context, fn func() error) error

	// DoWithResult is Do for functions that produce a value.
	DoWithResult(ctx context.Context, fn func() (any, error)) (any, error)
}

type executor struct {
	policy *Policy
	logger *zap.Logger
}

// NewExecutor creates an Executor. A nil policy uses DefaultPolicy and
// a nil logger is replaced with a no-op one. Out-of-range policy
// fields are clamped rather than rejected.
func NewExecutor(policy *Policy, logger *zap.Logger) Executor {
	if policy == nil {
		policy = DefaultPolicy()
	}
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.Interval < 0 {
		policy.Interval = 0
	}
	if policy.Multiplier < 1.0 {
		policy.Multiplier = 1.0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &executor{policy: policy, logger: logger}
}

func (e *executor) Do(ctx context.Context, fn func() error) error {
	_, err := e.DoWithResult(ctx, func() (any, error) {
		return nil, fn()
	})
	return err
}

func (e *executor) DoWithResult(ctx context.Context, fn func() (any, error)) (any, error) {
	var lastErr error

	for attempt := 1; attempt <= e.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := e.delayFor(attempt)
			e.logger.Debug("retrying",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", e.policy.MaxAttempts),
				zap.Duration("delay", delay),
				zap.Error(lastErr))
			if e.policy.OnRetry != nil {
				e.policy.OnRetry(attempt, lastErr, delay)
			}
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("retry interrupted: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		result, err := fn()
		if err == nil {
			if attempt > 1 {
				e.logger.Info("retry succeeded", zap.Int("attempt", attempt))
			}
			return result, nil
		}
		lastErr = err
	}

	e.logger.Warn("attempts exhausted",
		zap.Int("attempts", e.policy.MaxAttempts),
		zap.Error(lastErr))

	return nil, types.NewError(types.ErrBatchExecution,
		fmt.Sprintf("failed after %d attempts", e.policy.MaxAttempts)).
		WithAttempts(e.policy.MaxAttempts).
		WithCause(lastErr)
}

// delayFor computes the pause before the given re-attempt (attempt is
// 2-based here since the first attempt never waits).
func (e *executor) delayFor(attempt int) time.Duration {
	delay := float64(e.policy.Interval) * math.Pow(e.policy.Multiplier, float64(attempt-2))
	if e.policy.Jitter {
		delay += (rand.Float64()*2 - 1) * delay * 0.25
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// DoTyped is a type-safe wrapper around Executor.DoWithResult that
// spares callers the type assertion.
func DoTyped[T any](e Executor, ctx context.Context, fn func() (T, error)) (T, error) {
	result, err := e.DoWithResult(ctx, func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result.(T), nil
}
