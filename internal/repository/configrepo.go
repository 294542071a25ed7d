package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/akulinin/pomosync/internal/model"
)

// ConfigRepository provides per-user access to stored cycle configurations.
type ConfigRepository interface {
	// List returns all configurations owned by the user, oldest first.
	List(ctx context.Context, userID uuid.UUID) ([]model.Configuration, error)
	// Get loads a single configuration owned by the user.
	Get(ctx context.Context, userID uuid.UUID, id string) (*model.Configuration, error)
	// Create inserts a configuration.
	Create(ctx context.Context, userID uuid.UUID, cfg *model.Configuration) error
	// Update replaces name, cycles and lastModified of an existing row.
	Update(ctx context.Context, userID uuid.UUID, cfg *model.Configuration) error
	// Delete removes a configuration owned by the user.
	Delete(ctx context.Context, userID uuid.UUID, id string) error
}
