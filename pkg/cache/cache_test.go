package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)

	rc := NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: s.Addr()}), "test")
	t.Cleanup(func() { _ = rc.Close() })
	return rc, s
}

func TestMemoryCacheCopiesValues(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(2)

	blob := []byte{0x00, 0xff}
	require.NoError(t, mc.Set(ctx, "a", blob, time.Minute))
	blob[0] = 0x7f

	got, err := mc.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0xff}, got)
	got[1] = 0x01

	again, err := mc.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0xff}, again)

	_, err = mc.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(2)

	require.NoError(t, mc.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, mc.Set(ctx, "b", []byte("2"), 0))
	_, err := mc.Get(ctx, "a") // a is now fresher than b
	require.NoError(t, err)
	require.NoError(t, mc.Set(ctx, "c", []byte("3"), 0))

	assert.Equal(t, 2, mc.Len())
	_, err = mc.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = mc.Get(ctx, "a")
	assert.NoError(t, err)
}

func TestMemoryCacheExpires(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(4)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mc.now = func() time.Time { return now }

	require.NoError(t, mc.Set(ctx, "k", []byte("v"), time.Minute))
	now = now.Add(2 * time.Minute)

	_, err := mc.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Zero(t, mc.Len(), "expired entry dropped on access")
}

func TestRedisCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	rc, s := setupTestRedis(t)

	require.NoError(t, rc.Set(ctx, Key("model-blob", "42"), []byte("blob"), time.Minute))
	assert.True(t, s.Exists("test:model-blob:42"))

	got, err := rc.Get(ctx, "model-blob:42")
	require.NoError(t, err)
	assert.Equal(t, "blob", string(got))
	require.NoError(t, rc.Ping(ctx))

	s.FastForward(2 * time.Minute)
	_, err = rc.Get(ctx, "model-blob:42")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, rc.Set(ctx, "x", []byte("1"), 0))
	require.NoError(t, rc.Delete(ctx, "x"))
	assert.False(t, s.Exists("test:x"))
}

func TestNewRedisCacheFailsFast(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	addr := s.Addr()

	rc, err := NewRedisCache(context.Background(), RedisConfig{Addr: addr, Prefix: "p"})
	require.NoError(t, err)
	require.NoError(t, rc.Close())

	s.Close()
	_, err = NewRedisCache(context.Background(), RedisConfig{Addr: addr})
	assert.Error(t, err)
}

func TestLayeredCachePromotesFromRedis(t *testing.T) {
	ctx := context.Background()
	rc, s := setupTestRedis(t)
	lc := NewLayeredCache(rc, 8, time.Minute)

	require.NoError(t, rc.Set(ctx, "k", []byte("from-redis"), 0))

	got, err := lc.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "from-redis", string(got))

	// served from L1 once redis forgets it
	s.Del("test:k")
	got, err = lc.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "from-redis", string(got))

	require.NoError(t, lc.Delete(ctx, "k"))
	_, err = lc.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestLayeredCacheWritesThrough(t *testing.T) {
	ctx := context.Background()
	rc, s := setupTestRedis(t)
	lc := NewLayeredCache(rc, 8, time.Minute)

	require.NoError(t, lc.Set(ctx, "k", []byte{1, 2, 3}, time.Hour))
	raw, err := s.Get("test:k")
	require.NoError(t, err)
	assert.Equal(t, string([]byte{1, 2, 3}), raw)
	assert.Equal(t, 1, lc.l1.Len())
}
