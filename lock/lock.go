package lock

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/BaSui01/batchflow/types"
)

// ErrLockHeld is the sentinel under every acquisition timeout, for
// callers that match with errors.Is instead of error codes.
var ErrLockHeld = errors.New("lock held by another process")

// pollInterval is how often a waiter re-attempts acquisition while the
// lock is held by someone else.
const pollInterval = 100 * time.Millisecond

// Handle represents an acquired lock. It must be passed back to the
// manager that issued it.
type Handle struct {
	runID      string
	acquiredAt time.Time

	// file backend
	path string

	// redis backend
	key   string
	token string
}

// RunID returns the run identifier the lock protects.
func (h *Handle) RunID() string { return h.runID }

// AcquiredAt returns when the lock was acquired.
func (h *Handle) AcquiredAt() time.Time { return h.acquiredAt }

// Manager provides named, time-bounded mutual exclusion.
type Manager interface {
	// Acquire attempts exclusive ownership of runID. On contention it
	// polls, reclaiming locks older than timeout; if the total wait
	// exceeds timeout it fails with a LOCK_TIMEOUT error.
	Acquire(ctx context.Context, runID string, timeout time.Duration) (*Handle, error)

	// Release deletes the lock artifact if it still exists. Idempotent
	// and safe to call after a stale-lock reclaim by another process.
	Release(h *Handle) error
}

// Clearer is implemented by managers that can force-remove a lock
// regardless of ownership.
type Clearer interface {
	Clear(ctx context.Context, runID string) error
}

// timeoutError builds the structured acquisition-timeout error with
// remediation hints.
func timeoutError(runID string, timeout time.Duration) error {
	return types.NewError(types.ErrLockTimeout,
		"could not acquire run lock within "+timeout.String()+
			"; another process appears to be driving this run: use a different run identifier, wait for it to finish, or clear the lock").
		WithRun(runID).
		WithCause(ErrLockHeld)
}

// sanitizeRunID maps a run identifier to a token safe for file names
// and storage keys.
func sanitizeRunID(runID string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, runID)
}
