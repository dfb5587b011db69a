package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/groupbuy/backend/internal/domain/shared"
	"github.com/redis/go-redis/v9"
)

const defaultIdempotencyPrefix = "groupbuy:idempotency:"

// RedisIdempotencyStore implements IdempotencyStore on Redis so every
// instance sees the same keys
type RedisIdempotencyStore struct {
	client     *redis.Client
	keyPrefix  string
	ownsClient bool
}

// NewRedisIdempotencyStoreWithClient creates a store on a shared client. The
// caller keeps ownership of the client.
func NewRedisIdempotencyStoreWithClient(client *redis.Client, keyPrefix string) *RedisIdempotencyStore {
	if keyPrefix == "" {
		keyPrefix = defaultIdempotencyPrefix
	}
	return &RedisIdempotencyStore{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// MarkProcessed sets the key with SETNX. Returns true if it was newly set.
func (s *RedisIdempotencyStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.keyPrefix+key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("mark idempotency key: %w", err)
	}
	return ok, nil
}

// IsProcessed checks if the key is present
func (s *RedisIdempotencyStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.keyPrefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("check idempotency key: %w", err)
	}
	return n > 0, nil
}

// Forget deletes the key
func (s *RedisIdempotencyStore) Forget(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("forget idempotency key: %w", err)
	}
	return nil
}

// Close closes the client if the store owns it
func (s *RedisIdempotencyStore) Close() error {
	if s.ownsClient {
		return s.client.Close()
	}
	return nil
}

var _ shared.IdempotencyStore = (*RedisIdempotencyStore)(nil)
