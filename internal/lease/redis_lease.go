// Package lease provides the per-campaign run lease backed by Redis.
package lease

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	releaseScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`)

	extendScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		else
			return 0
		end
	`)
)

// RedisLease holds keys with SET NX and a per-process owner token, so a
// process can only extend or release the leases it acquired.
type RedisLease struct {
	client *redis.Client
	owner  string
	ttl    time.Duration
}

func NewRedisLease(client *redis.Client, ttl time.Duration) *RedisLease {
	return &RedisLease{
		client: client,
		owner:  uuid.NewString(),
		ttl:    ttl,
	}
}

func (l *RedisLease) key(k string) string {
	return "lease:" + k
}

// Acquire returns false when another owner holds the key.
func (l *RedisLease) Acquire(ctx context.Context, key string) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key(key), l.owner, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lease %s: %w", key, err)
	}
	if ok {
		return true, nil
	}
	// Re-entrant for this owner, e.g. a restart of a run retired moments ago.
	cur, err := l.client.Get(ctx, l.key(key)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("read lease %s: %w", key, err)
	}
	if cur != l.owner {
		return false, nil
	}
	return l.Extend(ctx, key)
}

// Extend refreshes the TTL. It returns false when the lease is no longer ours.
func (l *RedisLease) Extend(ctx context.Context, key string) (bool, error) {
	n, err := extendScript.Run(ctx, l.client, []string{l.key(key)}, l.owner, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("extend lease %s: %w", key, err)
	}
	return n == 1, nil
}

func (l *RedisLease) Release(ctx context.Context, key string) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key(key)}, l.owner).Err(); err != nil {
		return fmt.Errorf("release lease %s: %w", key, err)
	}
	return nil
}
