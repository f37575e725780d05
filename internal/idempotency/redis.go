package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oriys/actorforge/internal/domain"
)

const redisKeyPrefix = "actorforge:idempotency:"

// RedisStore is the production Idempotency Store. Each record is a
// single Redis key carrying the JSON-encoded Record and an
// independent TTL, so Cleanup is mostly advisory here; Redis expiry
// does the real work, but Cleanup still reports what it can see via
// SCAN for callers that poll the cleanup count as a health signal.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) (*Record, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get idempotency record %s: %w", key, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get idempotency record: %w", err)
	}

	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("unmarshal idempotency record: %w", err)
	}
	return &r, nil
}

func (s *RedisStore) Set(ctx context.Context, record *Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal idempotency record: %w", err)
	}

	var ttl time.Duration
	if record.ExpiresAt > 0 {
		ttl = time.Until(time.UnixMilli(record.ExpiresAt))
		if ttl <= 0 {
			ttl = time.Millisecond
		}
	}

	if err := s.client.Set(ctx, redisKeyPrefix+record.Key, data, ttl).Err(); err != nil {
		return fmt.Errorf("set idempotency record: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("delete idempotency record: %w", err)
	}
	return nil
}

// Cleanup scans for keys that have already expired by Redis's own TTL
// and reports how many were found gone; Redis removes them lazily on
// its own, so this mostly exists to satisfy the adapter contract and
// surface a metric, not to do the deleting itself.
func (s *RedisStore) Cleanup(ctx context.Context, nowMs int64) (int, error) {
	var cursor uint64
	removed := 0
	for {
		keys, next, err := s.client.Scan(ctx, cursor, redisKeyPrefix+"*", 100).Result()
		if err != nil {
			return removed, fmt.Errorf("scan idempotency keys: %w", err)
		}
		for _, k := range keys {
			ttl, err := s.client.TTL(ctx, k).Result()
			if err == nil && ttl == -2 {
				removed++
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return removed, nil
}
