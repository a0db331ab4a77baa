package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

const defaultMemoryTTL = 24 * time.Hour

type memEntry struct {
	key      string
	value    []byte
	expireAt time.Time
}

// MemoryCache is a size-bounded LRU. Expired entries are dropped lazily on access.
type MemoryCache struct {
	mu      sync.Mutex
	maxSize int
	order   *list.List // front is most recently used
	items   map[string]*list.Element
	now     func() time.Time
}

func NewMemoryCache(maxSize int) *MemoryCache {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &MemoryCache{
		maxSize: maxSize,
		order:   list.New(),
		items:   make(map[string]*list.Element),
		now:     time.Now,
	}
}

func (mc *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	el, ok := mc.items[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	e := el.Value.(*memEntry)
	if mc.now().After(e.expireAt) {
		mc.remove(el)
		return nil, ErrCacheMiss
	}
	mc.order.MoveToFront(el)
	return append([]byte(nil), e.value...), nil
}

// Set stores a copy of value. ttl <= 0 keeps it for a day.
func (mc *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = defaultMemoryTTL
	}
	e := &memEntry{key: key, value: append([]byte(nil), value...), expireAt: mc.now().Add(ttl)}

	mc.mu.Lock()
	defer mc.mu.Unlock()

	if el, ok := mc.items[key]; ok {
		el.Value = e
		mc.order.MoveToFront(el)
		return nil
	}
	mc.items[key] = mc.order.PushFront(e)
	for mc.order.Len() > mc.maxSize {
		mc.remove(mc.order.Back())
	}
	return nil
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, k := range keys {
		if el, ok := mc.items[k]; ok {
			mc.remove(el)
		}
	}
	return nil
}

func (mc *MemoryCache) Ping(context.Context) error { return nil }

func (mc *MemoryCache) Close() error { return nil }

// Len reports the number of entries, expired or not.
func (mc *MemoryCache) Len() int {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.order.Len()
}

func (mc *MemoryCache) remove(el *list.Element) {
	mc.order.Remove(el)
	delete(mc.items, el.Value.(*memEntry).key)
}
