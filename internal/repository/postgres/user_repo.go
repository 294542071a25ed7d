package postgres

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/akulinin/pomosync/internal/errs"
	"github.com/akulinin/pomosync/internal/model"
)

// UserRepo implements UserRepository using PostgreSQL.
type UserRepo struct{ db *DB }

// NewUserRepo constructs a user repository.
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

// Create inserts a new account row.
func (r *UserRepo) Create(ctx context.Context, a *model.Account) error {
	const q = `
INSERT INTO users (id, username, display_name, email, pwd_hash, salt, quick_access)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.db.Pool.Exec(ctx, q, a.ID, a.Username, a.DisplayName, a.Email, a.PwdHash, a.Salt, a.QuickAccess)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// GetByID selects an account by id.
func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	const q = `
SELECT id, username, display_name, email, pwd_hash, salt, quick_access, created_at
FROM users WHERE id=$1`
	return r.scanAccount(r.db.Pool.QueryRow(ctx, q, id))
}

// GetByUsername selects an account by username.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*model.Account, error) {
	const q = `
SELECT id, username, display_name, email, pwd_hash, salt, quick_access, created_at
FROM users WHERE username=$1`
	return r.scanAccount(r.db.Pool.QueryRow(ctx, q, username))
}

// SetQuickAccess replaces the quick-access id set.
func (r *UserRepo) SetQuickAccess(ctx context.Context, id uuid.UUID, configIDs []string) error {
	const q = `UPDATE users SET quick_access=$2 WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id, configIDs)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (r *UserRepo) scanAccount(rw pgx.Row) (*model.Account, error) {
	var a model.Account
	if err := rw.Scan(&a.ID, &a.Username, &a.DisplayName, &a.Email, &a.PwdHash, &a.Salt, &a.QuickAccess, &a.CreatedAt); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, errs.ErrNotFound
	}
	return &a, nil
}
