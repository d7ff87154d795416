// internal/idempotency/redis_store.go
package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store using SET NX, which makes the insert-or-fetch
// atomic: two concurrent requests with the same key cannot both insert.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) PutIfAbsent(ctx context.Context, scope, key string, payload []byte, ttl time.Duration) ([]byte, bool, error) {
	redisKey := storeKey(scope, key)

	inserted, err := s.client.SetNX(ctx, redisKey, payload, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("idempotency setnx failed: %w", err)
	}
	if inserted {
		return nil, true, nil
	}

	existing, err := s.client.Get(ctx, redisKey).Bytes()
	if err != nil {
		// Key expired between SETNX and GET; treat as a fresh insert window.
		if err == redis.Nil {
			return nil, false, fmt.Errorf("idempotency key vanished: %s", redisKey)
		}
		return nil, false, fmt.Errorf("idempotency get failed: %w", err)
	}
	return existing, false, nil
}

func (s *RedisStore) Put(ctx context.Context, scope, key string, payload []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, storeKey(scope, key), payload, ttl).Err(); err != nil {
		return fmt.Errorf("idempotency set failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, scope, key string) error {
	if err := s.client.Del(ctx, storeKey(scope, key)).Err(); err != nil {
		return fmt.Errorf("idempotency delete failed: %w", err)
	}
	return nil
}

func storeKey(scope, key string) string {
	return fmt.Sprintf("idem:%s:%s", scope, key)
}
