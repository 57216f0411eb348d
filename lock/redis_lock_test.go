package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/batchflow/types"
)

func redisTestManager(t *testing.T) (*RedisManager, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisManager(client, "batchflow:"), mr
}

func TestRedisManager_AcquireRelease(t *testing.T) {
	m, mr := redisTestManager(t)

	ctx := context.Background()
	h, err := m.Acquire(ctx, "run-1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "run-1", h.RunID())
	assert.True(t, mr.Exists("batchflow:lock:run-1"))

	require.NoError(t, m.Release(h))
	assert.False(t, mr.Exists("batchflow:lock:run-1"))

	require.NoError(t, m.Release(h))
}

func TestRedisManager_ContentionTimesOut(t *testing.T) {
	m, _ := redisTestManager(t)

	ctx := context.Background()
	h, err := m.Acquire(ctx, "busy", time.Minute)
	require.NoError(t, err)
	defer m.Release(h)

	_, err = m.Acquire(ctx, "busy", 250*time.Millisecond)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrLockTimeout))
}

func TestRedisManager_LeaseExpiry(t *testing.T) {
	m, mr := redisTestManager(t)

	ctx := context.Background()
	h, err := m.Acquire(ctx, "leased", time.Minute)
	require.NoError(t, err)

	// Simulate a crashed holder: the lease simply runs out.
	mr.FastForward(time.Minute + time.Second)

	h2, err := m.Acquire(ctx, "leased", time.Second)
	require.NoError(t, err, "an expired lease must be acquirable")

	// The first holder's late release must not evict the new owner.
	require.NoError(t, m.Release(h))
	assert.True(t, mr.Exists("batchflow:lock:leased"))

	require.NoError(t, m.Release(h2))
	assert.False(t, mr.Exists("batchflow:lock:leased"))
}

func TestRedisManager_Clear(t *testing.T) {
	m, mr := redisTestManager(t)

	ctx := context.Background()
	_, err := m.Acquire(ctx, "stuck", time.Minute)
	require.NoError(t, err)

	require.NoError(t, m.Clear(ctx, "stuck"))
	assert.False(t, mr.Exists("batchflow:lock:stuck"))

	h, err := m.Acquire(ctx, "stuck", time.Second)
	require.NoError(t, err)
	require.NoError(t, m.Release(h))
}
