package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ModelHub/internal/domain/repository"
	"ModelHub/pkg/cache"
)

const blobKeyPrefix = "model-blob"

// CachedBlobs keeps fitted-model blobs in a cache.Service as raw bytes.
type CachedBlobs struct {
	cache cache.Service
}

var _ repository.BlobCache = (*CachedBlobs)(nil)

func NewCachedBlobs(c cache.Service) *CachedBlobs {
	return &CachedBlobs{cache: c}
}

func (b *CachedBlobs) GetBlob(ctx context.Context, id string) ([]byte, bool, error) {
	blob, err := b.cache.Get(ctx, cache.Key(blobKeyPrefix, id))
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("blob cache get %s: %w", id, err)
	}
	return blob, true, nil
}

func (b *CachedBlobs) SetBlob(ctx context.Context, id string, blob []byte, ttl time.Duration) error {
	if err := b.cache.Set(ctx, cache.Key(blobKeyPrefix, id), blob, ttl); err != nil {
		return fmt.Errorf("blob cache set %s: %w", id, err)
	}
	return nil
}

func (b *CachedBlobs) DeleteBlob(ctx context.Context, id string) error {
	return b.cache.Delete(ctx, cache.Key(blobKeyPrefix, id))
}
