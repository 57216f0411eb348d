package lock

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// releaseScript deletes the lock key only while we still own it, so a
// release after lease expiry never removes another holder's lock.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisManager implements Manager as a Redis lease: SET NX with a TTL
// equal to the acquisition timeout. Crashed holders need no reclaim
// pass because the key expires on its own.
type RedisManager struct {
	client    redis.UniversalClient
	keyPrefix string
	logger    *zap.Logger
}

// RedisManagerOption configures a RedisManager.
type RedisManagerOption func(*RedisManager)

// WithRedisLockLogger sets the logger. Defaults to a no-op logger.
func WithRedisLockLogger(logger *zap.Logger) RedisManagerOption {
	return func(m *RedisManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewRedisManager creates a Redis-backed lock manager on an existing
// client. keyPrefix namespaces lock keys, e.g. "batchflow:".
func NewRedisManager(client redis.UniversalClient, keyPrefix string, opts ...RedisManagerOption) *RedisManager {
	m := &RedisManager{
		client:    client,
		keyPrefix: keyPrefix + "lock:",
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *RedisManager) key(runID string) string {
	return m.keyPrefix + sanitizeRunID(runID)
}

// Acquire implements Manager.
func (m *RedisManager) Acquire(ctx context.Context, runID string, timeout time.Duration) (*Handle, error) {
	key := m.key(runID)
	now := time.Now()
	// pid and timestamp for operator inspection, uuid for ownership.
	token := fmt.Sprintf("%d\n%s\n%s", os.Getpid(), now.Format(time.RFC3339Nano), uuid.NewString())
	deadline := now.Add(timeout)

	for {
		ok, err := m.client.SetNX(ctx, key, token, timeout).Result()
		if err != nil {
			return nil, fmt.Errorf("lock: redis setnx %s: %w", key, err)
		}
		if ok {
			m.logger.Debug("lock acquired",
				zap.String("run_id", runID),
				zap.String("key", key))
			return &Handle{runID: runID, acquiredAt: time.Now(), key: key, token: token}, nil
		}

		if time.Now().After(deadline) {
			return nil, timeoutError(runID, timeout)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// Release implements Manager.
func (m *RedisManager) Release(h *Handle) error {
	if h == nil || h.key == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := releaseScript.Run(ctx, m.client, []string{h.key}, h.token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("lock: redis release %s: %w", h.key, err)
	}
	m.logger.Debug("lock released", zap.String("run_id", h.runID))
	return nil
}

// Clear force-removes the lock for runID regardless of ownership.
func (m *RedisManager) Clear(ctx context.Context, runID string) error {
	if err := m.client.Del(ctx, m.key(runID)).Err(); err != nil {
		return fmt.Errorf("lock: clear %s: %w", runID, err)
	}
	return nil
}

var _ Manager = (*RedisManager)(nil)
