package repository

import (
	"context"
	"time"

	"ModelHub/internal/domain/models"
)

// ModelStore persists trained time-series models. Blobs are opaque to the store.
type ModelStore interface {
	Init(ctx context.Context) error // ensure tables
	Save(ctx context.Context, rec *models.ModelRecord) error
	Get(ctx context.Context, id string) (*models.ModelRecord, error)
	List(ctx context.Context, f models.ModelFilter) ([]*models.ModelRecord, int64, error)
	Delete(ctx context.Context, id string) error
	Health(ctx context.Context) error
	Close() error
}

// RegistryStore persists generic model metadata.
type RegistryStore interface {
	Create(ctx context.Context, e *models.RegistryEntry) error
	Get(ctx context.Context, id string) (*models.RegistryEntry, error)
	List(ctx context.Context, f models.RegistryFilter) ([]*models.RegistryEntry, int64, error)
	Update(ctx context.Context, e *models.RegistryEntry) error
	Delete(ctx context.Context, id string) error
}

// EventPublisher fans run transitions out to external consumers.
type EventPublisher interface {
	PublishRunEvent(ctx context.Context, ev models.RunEvent) error
	Close() error
}

// BlobCache keeps serialized fitted models close to the forecast path.
type BlobCache interface {
	GetBlob(ctx context.Context, id string) ([]byte, bool, error)
	SetBlob(ctx context.Context, id string, blob []byte, ttl time.Duration) error
	DeleteBlob(ctx context.Context, id string) error
}

type Metrics interface {
	RecordRun(family, result string)
	RecordPhase(family, phase string, seconds float64)
	RecordEvaluation(family string, m *models.EvaluationMetrics)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
