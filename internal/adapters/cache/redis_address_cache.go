package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "nearest-store:address:"

// RedisAddressCache shares reverse geocoding results between service instances.
// Expiry is delegated to Redis.
type RedisAddressCache struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewRedisAddressCache(client *redis.Client, ttl time.Duration) *RedisAddressCache {
	return &RedisAddressCache{Client: client, TTL: ttl}
}

func (r *RedisAddressCache) Get(ctx context.Context, key string) (string, bool, error) {
	if r.Client == nil {
		return "", false, errors.New("address cache: redis client is nil")
	}

	v, err := r.Client.Get(ctx, redisKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get address cache key=%q: %w", key, err)
	}
	return v, true, nil
}

func (r *RedisAddressCache) Put(ctx context.Context, key, address string) error {
	if r.Client == nil {
		return errors.New("address cache: redis client is nil")
	}

	if err := r.Client.Set(ctx, redisKeyPrefix+key, address, r.TTL).Err(); err != nil {
		return fmt.Errorf("insert address cache key=%q: %w", key, err)
	}
	return nil
}
