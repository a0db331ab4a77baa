package cache

import (
	"context"
	"errors"
	"strings"
	"time"
)

var ErrCacheMiss = errors.New("cache: key not found")

// Service stores opaque byte values under string keys. Callers own the
// encoding, so a fitted-model blob round-trips untouched.
type Service interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Ping(ctx context.Context) error
	Close() error
}

var (
	_ Service = (*RedisCache)(nil)
	_ Service = (*MemoryCache)(nil)
	_ Service = (*LayeredCache)(nil)
)

// Key joins parts with ':' the way Redis keyspaces are usually laid out.
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}
