// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/akulinin/pomosync/internal/model"
)

// UserRepository provides access to account records.
type UserRepository interface {
	// Create inserts a new account.
	Create(ctx context.Context, a *model.Account) error
	// GetByID loads an account by id.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Account, error)
	// GetByUsername loads an account by username.
	GetByUsername(ctx context.Context, username string) (*model.Account, error)
	// SetQuickAccess replaces the quick-access configuration id set.
	SetQuickAccess(ctx context.Context, id uuid.UUID, configIDs []string) error
}
