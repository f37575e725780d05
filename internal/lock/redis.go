package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/oriys/actorforge/internal/domain"
)

const redisLockPrefix = "actorforge:lease:"

// releaseScript deletes key only if it still holds our lease ID,
// so a holder never releases a lease another process has since
// acquired after our own expired.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`)

// renewScript extends key's TTL only if it still holds our lease ID.
var renewScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`)

// RedisAdapter is the production Lock/Coordination Adapter. A single
// Redis key per actor, set with NX+PX, gives cluster-wide mutual
// exclusion; release/renew are compare-and-swap via Lua so a stale
// holder never clobbers a newer lease.
type RedisAdapter struct {
	client *redis.Client
}

// NewRedisAdapter wraps an existing Redis client.
func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func (a *RedisAdapter) Acquire(ctx context.Context, key string, ttl time.Duration) (*domain.Lease, error) {
	leaseID := uuid.NewString()
	redisKey := redisLockPrefix + key

	ok, err := a.client.SetNX(ctx, redisKey, leaseID, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	return &domain.Lease{
		ActorID:   key,
		LeaseID:   leaseID,
		ExpiresAt: time.Now().Add(ttl).UnixMilli(),
	}, nil
}

func (a *RedisAdapter) Release(ctx context.Context, lease *domain.Lease) error {
	redisKey := redisLockPrefix + lease.ActorID
	return releaseScript.Run(ctx, a.client, []string{redisKey}, lease.LeaseID).Err()
}

func (a *RedisAdapter) Renew(ctx context.Context, lease *domain.Lease, ttl time.Duration) (bool, error) {
	redisKey := redisLockPrefix + lease.ActorID
	result, err := renewScript.Run(ctx, a.client, []string{redisKey}, lease.LeaseID, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	if result == 1 {
		lease.ExpiresAt = time.Now().Add(ttl).UnixMilli()
		return true, nil
	}
	return false, nil
}
