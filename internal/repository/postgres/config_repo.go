package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/akulinin/pomosync/internal/errs"
	"github.com/akulinin/pomosync/internal/model"
)

// ConfigRepo implements ConfigRepository using PostgreSQL. Cycle sequences
// are stored as jsonb: they are read and written as a whole, never queried
// per cycle.
type ConfigRepo struct{ db *DB }

// NewConfigRepo constructs a configuration repository.
func NewConfigRepo(db *DB) *ConfigRepo { return &ConfigRepo{db: db} }

// List returns all configurations owned by the user, oldest first.
func (r *ConfigRepo) List(ctx context.Context, userID uuid.UUID) ([]model.Configuration, error) {
	const q = `
SELECT id, name, cycles, last_modified
FROM configurations WHERE user_id=$1
ORDER BY last_modified ASC, id ASC`
	rows, err := r.db.Pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Configuration
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *cfg)
	}
	return out, rows.Err()
}

// Get loads one configuration owned by the user.
func (r *ConfigRepo) Get(ctx context.Context, userID uuid.UUID, id string) (*model.Configuration, error) {
	const q = `
SELECT id, name, cycles, last_modified
FROM configurations WHERE user_id=$1 AND id=$2`
	cfg, err := scanConfig(r.db.Pool.QueryRow(ctx, q, userID, id))
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, errs.ErrNotFound
	}
	return cfg, nil
}

// Create inserts a configuration row.
func (r *ConfigRepo) Create(ctx context.Context, userID uuid.UUID, cfg *model.Configuration) error {
	cycles, err := json.Marshal(cfg.Cycles)
	if err != nil {
		return fmt.Errorf("marshal cycles: %w", err)
	}
	const q = `
INSERT INTO configurations (id, user_id, name, cycles, last_modified)
VALUES ($1, $2, $3, $4, $5)`
	_, err = r.db.Pool.Exec(ctx, q, cfg.ID, userID, cfg.Name, cycles, cfg.LastModified)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// Update replaces name, cycles and lastModified of an existing row.
func (r *ConfigRepo) Update(ctx context.Context, userID uuid.UUID, cfg *model.Configuration) error {
	cycles, err := json.Marshal(cfg.Cycles)
	if err != nil {
		return fmt.Errorf("marshal cycles: %w", err)
	}
	const q = `
UPDATE configurations SET name=$3, cycles=$4, last_modified=$5
WHERE user_id=$1 AND id=$2`
	tag, err := r.db.Pool.Exec(ctx, q, userID, cfg.ID, cfg.Name, cycles, cfg.LastModified)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// Delete removes a configuration owned by the user.
func (r *ConfigRepo) Delete(ctx context.Context, userID uuid.UUID, id string) error {
	const q = `DELETE FROM configurations WHERE user_id=$1 AND id=$2`
	tag, err := r.db.Pool.Exec(ctx, q, userID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func scanConfig(rw pgx.Row) (*model.Configuration, error) {
	var (
		cfg    model.Configuration
		cycles []byte
	)
	if err := rw.Scan(&cfg.ID, &cfg.Name, &cycles, &cfg.LastModified); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(cycles, &cfg.Cycles); err != nil {
		return nil, fmt.Errorf("unmarshal cycles: %w", err)
	}
	cfg.Kind = model.KindServer
	return &cfg, nil
}
