package kvstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/packfinderz-storefront/pkg/redis"
)

// RedisStore persists snapshots as plain Redis strings without expiry.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client required")
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Get(ctx context.Context, namespace string) ([]byte, error) {
	value, err := s.client.Get(ctx, s.client.SnapshotKey(namespace))
	if errors.Is(err, redis.ErrNil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get snapshot: %w", err)
	}
	return value, nil
}

func (s *RedisStore) Set(ctx context.Context, namespace string, value []byte) error {
	if err := s.client.Set(ctx, s.client.SnapshotKey(namespace), value, 0); err != nil {
		return fmt.Errorf("redis set snapshot: %w", err)
	}
	return nil
}
