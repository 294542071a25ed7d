// Package cache implements the durable client-side store backing offline
// operation. It keeps two collections in a single SQLite file: configurations
// keyed by id, and the current user under a fixed singleton key.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/akulinin/pomosync/internal/errs"
	"github.com/akulinin/pomosync/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS configurations (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	cycles        TEXT NOT NULL,
	last_modified TEXT NOT NULL,
	local_only    INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS user (
	key     TEXT PRIMARY KEY CHECK (key = 'current'),
	payload TEXT NOT NULL
);`

// Store is a SQLite-backed key/value store. Every call is durable before it
// returns: the connection runs with a single writer and synchronous commits.
type Store struct {
	db *sql.DB
}

// Open creates (or opens) the cache database at path and ensures the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, storage("create cache dir", err)
		}
	}

	dsn := fmt.Sprintf("%s?_busy_timeout=8000&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, storage("open cache", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(30 * time.Second)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, storage("init cache schema", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// storage tags an error as a local storage fault so callers can recognize
// that no further fallback exists.
func storage(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, errs.ErrStorageFault, err)
}

// Configuration returns a single cached configuration by id.
func (s *Store) Configuration(ctx context.Context, id string) (*model.Configuration, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, cycles, last_modified, local_only FROM configurations WHERE id = ?`, id)
	cfg, err := scanConfiguration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, storage("get configuration", err)
	}
	return cfg, nil
}

// Configurations returns every cached configuration. Order is unspecified and
// must not be assumed to match any server ordering.
func (s *Store) Configurations(ctx context.Context) ([]model.Configuration, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, cycles, last_modified, local_only FROM configurations`)
	if err != nil {
		return nil, storage("list configurations", err)
	}
	defer rows.Close()

	var out []model.Configuration
	for rows.Next() {
		cfg, err := scanConfiguration(rows)
		if err != nil {
			return nil, storage("scan configuration", err)
		}
		out = append(out, *cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, storage("list configurations", err)
	}
	return out, nil
}

// PutConfiguration inserts or replaces a configuration by primary key.
func (s *Store) PutConfiguration(ctx context.Context, cfg model.Configuration) error {
	cycles, err := json.Marshal(cfg.Cycles)
	if err != nil {
		return storage("encode cycles", err)
	}
	localOnly := 0
	if cfg.Kind == model.KindLocalOnly {
		localOnly = 1
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO configurations (id, name, cycles, last_modified, local_only)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			cycles = excluded.cycles,
			last_modified = excluded.last_modified,
			local_only = excluded.local_only`,
		cfg.ID, cfg.Name, string(cycles),
		cfg.LastModified.UTC().Format(time.RFC3339Nano), localOnly)
	if err != nil {
		return storage("put configuration", err)
	}
	return nil
}

// DeleteConfiguration removes a configuration. Deleting an absent id is not
// an error.
func (s *Store) DeleteConfiguration(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM configurations WHERE id = ?`, id); err != nil {
		return storage("delete configuration", err)
	}
	return nil
}

// User returns the cached account record, or errs.ErrNotFound when nobody is
// cached (anonymous session).
func (s *Store) User(ctx context.Context) (*model.User, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM user WHERE key = 'current'`).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, storage("get user", err)
	}
	var u model.User
	if err := json.Unmarshal([]byte(payload), &u); err != nil {
		return nil, storage("decode user", err)
	}
	return &u, nil
}

// PutUser stores the account record under the singleton key.
func (s *Store) PutUser(ctx context.Context, u model.User) error {
	payload, err := json.Marshal(u)
	if err != nil {
		return storage("encode user", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO user (key, payload) VALUES ('current', ?)
		 ON CONFLICT(key) DO UPDATE SET payload = excluded.payload`,
		string(payload))
	if err != nil {
		return storage("put user", err)
	}
	return nil
}

// DeleteUser drops the cached account record. Idempotent.
func (s *Store) DeleteUser(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM user WHERE key = 'current'`); err != nil {
		return storage("delete user", err)
	}
	return nil
}

// ClearAll removes every entity of every managed type in one transaction.
// Used exactly once per logout.
func (s *Store) ClearAll(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storage("begin clear", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM configurations`); err != nil {
		return storage("clear configurations", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM user`); err != nil {
		return storage("clear user", err)
	}
	if err := tx.Commit(); err != nil {
		return storage("commit clear", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConfiguration(row scanner) (*model.Configuration, error) {
	var (
		cfg       model.Configuration
		cycles    string
		modified  string
		localOnly int
	)
	if err := row.Scan(&cfg.ID, &cfg.Name, &cycles, &modified, &localOnly); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(cycles), &cfg.Cycles); err != nil {
		return nil, fmt.Errorf("decode cycles: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, modified)
	if err != nil {
		return nil, fmt.Errorf("parse last_modified: %w", err)
	}
	cfg.LastModified = t
	if localOnly != 0 {
		cfg.Kind = model.KindLocalOnly
	} else {
		cfg.Kind = model.KindServer
	}
	return &cfg, nil
}
