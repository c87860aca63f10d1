package cache

import (
	"context"
	"time"
)

// LayeredCache fronts Redis with a process-local memory layer. Reads
// hit memory first; writes go through to Redis so restarts and other
// replicas stay consistent. Locks always go to Redis, a local lock
// would not exclude other replicas.
type LayeredCache struct {
	local *MemoryCache
	redis *RedisCache
}

func NewLayeredCache(redisCache *RedisCache) *LayeredCache {
	return &LayeredCache{
		local: NewMemoryCache(),
		redis: redisCache,
	}
}

func (lc *LayeredCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if err := lc.redis.Set(ctx, key, value, expiration); err != nil {
		return err
	}
	_ = lc.local.Set(ctx, key, value, expiration)
	return nil
}

func (lc *LayeredCache) Get(ctx context.Context, key string, dest interface{}) error {
	if err := lc.local.Get(ctx, key, dest); err == nil {
		return nil
	}
	return lc.redis.Get(ctx, key, dest)
}

func (lc *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = lc.local.Delete(ctx, keys...)
	return lc.redis.Delete(ctx, keys...)
}

func (lc *LayeredCache) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return lc.redis.TryLock(ctx, key, ttl)
}

func (lc *LayeredCache) Unlock(ctx context.Context, key string) error {
	return lc.redis.Unlock(ctx, key)
}

// Close releases both layers.
func (lc *LayeredCache) Close() error {
	_ = lc.local.Close()
	return lc.redis.Close()
}
