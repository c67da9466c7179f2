package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// RedisLocker shares stock locks between processes through Redis.
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
	prefix string
}

// NewRedisLocker connects to addr and checks the connection. ttl bounds how
// long a crashed holder can block others.
func NewRedisLocker(ctx context.Context, addr string, ttl time.Duration) (*RedisLocker, *redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}
	return NewRedisLockerFromClient(rdb, ttl), rdb, nil
}

func NewRedisLockerFromClient(rdb redislock.RedisClient, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{client: redislock.New(rdb), ttl: ttl, prefix: "stocksuite:stock:"}
}

func (r *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	// Wait at most one ttl for a busy key.
	retries := int(r.ttl / (100 * time.Millisecond))
	lock, err := r.client.Obtain(ctx, r.prefix+key, r.ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), retries),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("stock lock %s is busy: %w", key, err)
	}
	if err != nil {
		return nil, err
	}
	return func() {
		_ = lock.Release(context.Background())
	}, nil
}
