package usecase

import (
	"context"
	"time"

	"ModelHub/internal/domain/models"
	drepo "ModelHub/internal/domain/repository"

	"github.com/google/uuid"
)

// RegistryUseCase manages user-registered model metadata.
type RegistryUseCase struct {
	store   drepo.RegistryStore
	metrics drepo.Metrics
	now     func() time.Time
}

func NewRegistryUseCase(store drepo.RegistryStore, metrics drepo.Metrics) *RegistryUseCase {
	return &RegistryUseCase{
		store:   store,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Create registers a new entry in draft status.
func (u *RegistryUseCase) Create(ctx context.Context, req *models.CreateRegistryHTTPRequest) (*models.RegistryEntry, error) {
	start := time.Now()
	now := u.now()
	e := &models.RegistryEntry{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Type:        req.Type,
		Framework:   req.Framework,
		Parameters:  req.Parameters,
		Description: req.Description,
		Status:      "draft",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := u.store.Create(ctx, e); err != nil {
		u.metrics.RecordError("registry_create")
		return nil, err
	}
	u.metrics.RecordLatency("registry_create", time.Since(start).Seconds())
	return e, nil
}

func (u *RegistryUseCase) Get(ctx context.Context, id string) (*models.RegistryEntry, error) {
	return u.store.Get(ctx, id)
}

func (u *RegistryUseCase) List(ctx context.Context, f models.RegistryFilter) ([]*models.RegistryEntry, int64, error) {
	return u.store.List(ctx, f)
}

// Update applies patch to an existing entry and bumps UpdatedAt.
func (u *RegistryUseCase) Update(ctx context.Context, id string, patch models.RegistryPatch) (*models.RegistryEntry, error) {
	e, err := u.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	patch.Apply(e)
	e.UpdatedAt = u.now()
	if err := u.store.Update(ctx, e); err != nil {
		u.metrics.RecordError("registry_update")
		return nil, err
	}
	return e, nil
}

func (u *RegistryUseCase) Delete(ctx context.Context, id string) error {
	return u.store.Delete(ctx, id)
}
