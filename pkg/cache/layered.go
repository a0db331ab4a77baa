package cache

import (
	"context"
	"time"
)

// LayeredCache fronts Redis with a small in-process LRU. Writes go through to
// Redis first; reads that miss L1 are promoted with a capped TTL.
type LayeredCache struct {
	l1    *MemoryCache
	l2    *RedisCache
	l1TTL time.Duration
}

// NewLayeredCache caps L1 at size entries kept for at most l1TTL.
func NewLayeredCache(l2 *RedisCache, size int, l1TTL time.Duration) *LayeredCache {
	if l1TTL <= 0 {
		l1TTL = 5 * time.Minute
	}
	return &LayeredCache{l1: NewMemoryCache(size), l2: l2, l1TTL: l1TTL}
}

func (lc *LayeredCache) Get(ctx context.Context, key string) ([]byte, error) {
	if b, err := lc.l1.Get(ctx, key); err == nil {
		return b, nil
	}
	b, err := lc.l2.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	_ = lc.l1.Set(ctx, key, b, lc.l1TTL)
	return b, nil
}

func (lc *LayeredCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := lc.l2.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	l1 := lc.l1TTL
	if ttl > 0 && ttl < l1 {
		l1 = ttl
	}
	return lc.l1.Set(ctx, key, value, l1)
}

func (lc *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = lc.l1.Delete(ctx, keys...)
	return lc.l2.Delete(ctx, keys...)
}

func (lc *LayeredCache) Ping(ctx context.Context) error {
	return lc.l2.Ping(ctx)
}

func (lc *LayeredCache) Close() error {
	return lc.l2.Close()
}
