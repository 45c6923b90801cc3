// Redis-backed SnapshotStore adapter.
//
// Grounded on the teacher's internal/redis/pubsub.go Get/Set/GetBytes/
// SetBytes helpers (already present there as a small KV capability
// alongside the pub/sub one). Only that KV capability is carried over:
// the teacher's pub/sub cross-instance replication is not, since spec §1
// names "no cross-node replication" as a Non-goal (see DESIGN.md).
package store

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

const snapshotKeyPrefix = "yjscollab:snapshot:"

// RedisStore persists snapshots as raw bytes under a single key per
// document.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to redisURL and returns a ready RedisStore.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("store: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("store: ping redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

// Close closes the underlying Redis client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

// SaveSnapshot overwrites the single stored snapshot for documentID.
func (r *RedisStore) SaveSnapshot(ctx context.Context, documentID string, snapshot []byte) error {
	return r.client.Set(ctx, snapshotKeyPrefix+documentID, snapshot, 0).Err()
}

// LoadSnapshot returns the stored snapshot for documentID, or nil if
// none exists.
func (r *RedisStore) LoadSnapshot(ctx context.Context, documentID string) ([]byte, error) {
	data, err := r.client.Get(ctx, snapshotKeyPrefix+documentID).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: load snapshot: %w", err)
	}
	return data, nil
}
