package checkpoint

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BaSui01/batchflow/types"
)

// RedisStore is a Redis-based Store for deployments that share run
// progress across hosts. Snapshots are stored as serialized values
// under a configurable key prefix.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	serde     Serde
	config    StoreConfig
}

// NewRedisStore creates a Redis-backed checkpoint store and verifies
// the connection.
func NewRedisStore(config StoreConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Redis.Addr,
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
		PoolSize: config.Redis.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	keyPrefix := config.Redis.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "batchflow:"
	}

	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix + "checkpoint:",
		serde:     JSONSerde{},
		config:    config,
	}, nil
}

// NewRedisStoreWithClient wraps an existing client. Used by tests.
func NewRedisStoreWithClient(client *redis.Client, config StoreConfig) *RedisStore {
	keyPrefix := config.Redis.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "batchflow:"
	}
	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix + "checkpoint:",
		serde:     JSONSerde{},
		config:    config,
	}
}

// key returns the Redis key for a run id.
func (s *RedisStore) key(runID string) string {
	return s.keyPrefix + sanitizeRunID(runID)
}

func (s *RedisStore) InitializeOrResume(ctx context.Context, runID string, totalItems int, mode types.RunMode) (*Snapshot, int, error) {
	return initializeOrResume(ctx, s.Load, s.config.AutoRecover, runID, totalItems, mode)
}

func (s *RedisStore) Persist(ctx context.Context, runID string, snap *Snapshot) error {
	snap.UpdatedAt = time.Now()
	data, err := s.serde.Serialize(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	if err := s.client.Set(ctx, s.key(runID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, runID string) error {
	if err := s.client.Del(ctx, s.key(runID)).Err(); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

func (s *RedisStore) RecordFailure(ctx context.Context, runID string, snap *Snapshot, batchStart int, errMsg string) error {
	snap.Error = errMsg
	snap.FailedBatch = batchStart
	return s.Persist(ctx, runID, snap)
}

func (s *RedisStore) Load(ctx context.Context, runID string) (*Snapshot, error) {
	data, err := s.client.Get(ctx, s.key(runID)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	var snap Snapshot
	if err := s.serde.Deserialize(data, &snap); err != nil {
		return nil, corruptedError(runID, err)
	}
	return &snap, nil
}

func (s *RedisStore) List(ctx context.Context) ([]*types.RunInfo, error) {
	var runs []*types.RunInfo

	iter := s.client.Scan(ctx, 0, s.keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			continue
		}
		var snap Snapshot
		if err := s.serde.Deserialize(data, &snap); err != nil {
			continue
		}
		info := snap.RunInfo
		runs = append(runs, &info)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan checkpoints: %w", err)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.Before(runs[j].CreatedAt)
	})
	return runs, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
