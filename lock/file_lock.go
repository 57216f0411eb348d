package lock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// FileManager implements Manager with lock files under
// <baseDir>/locks. A lock file holds the owner pid on the first line
// and the acquisition time (RFC 3339) on the second, so operators can
// inspect who holds a run.
type FileManager struct {
	dir    string
	logger *zap.Logger
}

// FileManagerOption configures a FileManager.
type FileManagerOption func(*FileManager)

// WithFileLockLogger sets the logger. Defaults to a no-op logger.
func WithFileLockLogger(logger *zap.Logger) FileManagerOption {
	return func(m *FileManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewFileManager creates a file-backed lock manager rooted at baseDir.
func NewFileManager(baseDir string, opts ...FileManagerOption) (*FileManager, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("lock: base directory is required")
	}
	m := &FileManager{
		dir:    filepath.Join(baseDir, "locks"),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return nil, fmt.Errorf("lock: create lock directory: %w", err)
	}
	return m, nil
}

func (m *FileManager) path(runID string) string {
	return filepath.Join(m.dir, sanitizeRunID(runID)+".lock")
}

// Acquire implements Manager.
func (m *FileManager) Acquire(ctx context.Context, runID string, timeout time.Duration) (*Handle, error) {
	path := m.path(runID)
	deadline := time.Now().Add(timeout)

	for {
		h, err := m.tryAcquire(runID, path)
		if err == nil {
			m.logger.Debug("lock acquired",
				zap.String("run_id", runID),
				zap.String("path", path))
			return h, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("lock: create %s: %w", path, err)
		}

		if time.Now().After(deadline) {
			return nil, timeoutError(runID, timeout)
		}

		if age, ok := m.lockAge(path); ok && age > timeout {
			m.logger.Warn("reclaiming stale lock",
				zap.String("run_id", runID),
				zap.Duration("age", age))
			// Best effort; a concurrent waiter may have removed it first.
			_ = os.Remove(path)
			continue
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func (m *FileManager) tryAcquire(runID, path string) (*Handle, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	_, werr := fmt.Fprintf(f, "%d\n%s\n", os.Getpid(), now.Format(time.RFC3339Nano))
	cerr := f.Close()
	if werr != nil || cerr != nil {
		_ = os.Remove(path)
		if werr != nil {
			return nil, fmt.Errorf("lock: write %s: %w", path, werr)
		}
		return nil, fmt.Errorf("lock: close %s: %w", path, cerr)
	}
	return &Handle{runID: runID, acquiredAt: now, path: path}, nil
}

// lockAge reports how long ago the lock at path was acquired,
// according to its recorded timestamp. Falls back to the file mtime
// when the content is unreadable or malformed.
func (m *FileManager) lockAge(path string) (time.Duration, bool) {
	data, err := os.ReadFile(path)
	if err == nil {
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		if len(lines) >= 2 {
			if ts, perr := time.Parse(time.RFC3339Nano, strings.TrimSpace(lines[1])); perr == nil {
				return time.Since(ts), true
			}
		}
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, false
	}
	return time.Since(info.ModTime()), true
}

// Release implements Manager.
func (m *FileManager) Release(h *Handle) error {
	if h == nil || h.path == "" {
		return nil
	}
	if err := os.Remove(h.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("lock: remove %s: %w", h.path, err)
	}
	m.logger.Debug("lock released", zap.String("run_id", h.runID))
	return nil
}

// Clear force-removes the lock for runID regardless of ownership. It
// backs the operator escape hatch for abandoned runs.
func (m *FileManager) Clear(_ context.Context, runID string) error {
	if err := os.Remove(m.path(runID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("lock: clear %s: %w", runID, err)
	}
	return nil
}

var _ Manager = (*FileManager)(nil)
