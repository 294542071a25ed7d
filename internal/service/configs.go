package service

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/akulinin/pomosync/internal/errs"
	"github.com/akulinin/pomosync/internal/model"
	"github.com/akulinin/pomosync/internal/repository"
)

// ConfigService defines per-user operations over stored cycle configurations.
type ConfigService interface {
	// List returns all configurations owned by the user.
	List(ctx context.Context, userID uuid.UUID) ([]model.Configuration, error)
	// Create stores a new configuration; the server assigns id and lastModified.
	Create(ctx context.Context, userID uuid.UUID, name string, cycles []model.Cycle) (model.Configuration, error)
	// Update replaces name and cycles; the server assigns lastModified.
	Update(ctx context.Context, userID uuid.UUID, id, name string, cycles []model.Cycle) (model.Configuration, error)
	// Delete removes a configuration.
	Delete(ctx context.Context, userID uuid.UUID, id string) error
}

type ConfigServiceImpl struct {
	repo repository.ConfigRepository
}

// NewConfigService constructs ConfigService.
func NewConfigService(repo repository.ConfigRepository) *ConfigServiceImpl {
	return &ConfigServiceImpl{repo: repo}
}

// List returns all configurations owned by the user.
func (s *ConfigServiceImpl) List(ctx context.Context, userID uuid.UUID) ([]model.Configuration, error) {
	return s.repo.List(ctx, userID)
}

// Create validates the draft, assigns a server identity and a fresh
// lastModified, and stores it.
func (s *ConfigServiceImpl) Create(ctx context.Context, userID uuid.UUID, name string, cycles []model.Cycle) (model.Configuration, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return model.Configuration{}, err
	}
	cfg := model.Configuration{
		ID:           id.String(),
		Name:         name,
		Cycles:       model.CloneCycles(cycles),
		LastModified: time.Now().UTC(),
		Kind:         model.KindServer,
	}
	if err := cfg.Validate(); err != nil {
		return model.Configuration{}, fmt.Errorf("%w: %s", errs.ErrValidation, err)
	}
	if err := s.repo.Create(ctx, userID, &cfg); err != nil {
		return model.Configuration{}, err
	}
	return cfg, nil
}

// Update validates the replacement and stores it with a fresh lastModified.
func (s *ConfigServiceImpl) Update(ctx context.Context, userID uuid.UUID, id, name string, cycles []model.Cycle) (model.Configuration, error) {
	if id == "" {
		return model.Configuration{}, fmt.Errorf("%w: empty configuration id", errs.ErrValidation)
	}
	cfg := model.Configuration{
		ID:           id,
		Name:         name,
		Cycles:       model.CloneCycles(cycles),
		LastModified: time.Now().UTC(),
		Kind:         model.KindServer,
	}
	if err := cfg.Validate(); err != nil {
		return model.Configuration{}, fmt.Errorf("%w: %s", errs.ErrValidation, err)
	}
	if err := s.repo.Update(ctx, userID, &cfg); err != nil {
		return model.Configuration{}, err
	}
	return cfg, nil
}

// Delete removes a configuration owned by the user.
func (s *ConfigServiceImpl) Delete(ctx context.Context, userID uuid.UUID, id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty configuration id", errs.ErrValidation)
	}
	return s.repo.Delete(ctx, userID, id)
}
