// Package syncer reconciles the local cache with the authoritative server
// after connectivity is restored or on demand (e.g. after login).
package syncer

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/akulinin/pomosync/internal/errs"
	"github.com/akulinin/pomosync/internal/model"
)

// API is the slice of the remote access layer the syncer needs.
type API interface {
	Configurations(ctx context.Context) ([]model.Configuration, error)
	CreateConfiguration(ctx context.Context, cfg model.Configuration) (model.Configuration, error)
	UpdateConfiguration(ctx context.Context, id string, cfg model.Configuration) (model.Configuration, error)
	UpdateQuickAccess(ctx context.Context, ids []string) ([]string, error)
}

// Cache is the slice of the local store the syncer needs.
type Cache interface {
	Configurations(ctx context.Context) ([]model.Configuration, error)
	PutConfiguration(ctx context.Context, cfg model.Configuration) error
	DeleteConfiguration(ctx context.Context, id string) error
	User(ctx context.Context) (*model.User, error)
	PutUser(ctx context.Context, u model.User) error
}

// Syncer reconciles divergence between Cache and API contents. It never
// partially commits: any step's failure aborts the run and surfaces the
// error, and the whole sync is retried on the next opportunity.
type Syncer struct {
	api   API
	cache Cache
	log   *zap.Logger
}

// New constructs a syncer. A nil logger disables logging.
func New(api API, cache Cache, log *zap.Logger) *Syncer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Syncer{api: api, cache: cache, log: log}
}

// SyncConfigurations pushes local-only records, resolves update conflicts by
// lastModified (server wins ties), and leaves the cache equal to the final
// server list. It returns that final list.
func (s *Syncer) SyncConfigurations(ctx context.Context) ([]model.Configuration, error) {
	local, err := s.cache.Configurations(ctx)
	if err != nil {
		return nil, fmt.Errorf("sync configurations: %w", err)
	}
	server, err := s.api.Configurations(ctx)
	if err != nil {
		s.log.Error("sync: list server configurations", zap.Error(err))
		return nil, fmt.Errorf("sync configurations: %w", err)
	}

	// Push records the server has never seen. The temporary record is
	// removed only after the server-assigned one is durable locally, so a
	// crash in between leaves at most a duplicate, never a lost record.
	for _, cfg := range local {
		if !cfg.LocalOnly() {
			continue
		}
		created, err := s.api.CreateConfiguration(ctx, cfg)
		if err != nil {
			// Retained untouched for a later retry.
			s.log.Error("sync: push local-only configuration",
				zap.String("id", cfg.ID), zap.Error(err))
			return nil, fmt.Errorf("sync configurations: create %s: %w", cfg.ID, err)
		}
		if err := s.cache.PutConfiguration(ctx, created); err != nil {
			return nil, fmt.Errorf("sync configurations: %w", err)
		}
		if err := s.cache.DeleteConfiguration(ctx, cfg.ID); err != nil {
			return nil, fmt.Errorf("sync configurations: %w", err)
		}
		s.log.Info("sync: pushed local-only configuration",
			zap.String("tempID", cfg.ID), zap.String("serverID", created.ID))
	}

	// Resolve per-record conflicts for previously synced configurations.
	// Strictly newer local copies win; on equal timestamps the server wins,
	// favoring convergence over false positives from clock skew.
	byID := make(map[string]model.Configuration, len(local))
	for _, cfg := range local {
		if !cfg.LocalOnly() {
			byID[cfg.ID] = cfg
		}
	}
	for _, remote := range server {
		if localCfg, ok := byID[remote.ID]; ok && localCfg.LastModified.After(remote.LastModified) {
			if _, err := s.api.UpdateConfiguration(ctx, remote.ID, localCfg); err != nil {
				s.log.Error("sync: push newer local configuration",
					zap.String("id", remote.ID), zap.Error(err))
				return nil, fmt.Errorf("sync configurations: update %s: %w", remote.ID, err)
			}
			continue
		}
		if err := s.cache.PutConfiguration(ctx, remote); err != nil {
			return nil, fmt.Errorf("sync configurations: %w", err)
		}
	}

	// Refetch so the cache ends up equal to the server's final list.
	final, err := s.api.Configurations(ctx)
	if err != nil {
		s.log.Error("sync: refetch final list", zap.Error(err))
		return nil, fmt.Errorf("sync configurations: %w", err)
	}
	keep := make(map[string]struct{}, len(final))
	for _, cfg := range final {
		keep[cfg.ID] = struct{}{}
		if err := s.cache.PutConfiguration(ctx, cfg); err != nil {
			return nil, fmt.Errorf("sync configurations: %w", err)
		}
	}
	cached, err := s.cache.Configurations(ctx)
	if err != nil {
		return nil, fmt.Errorf("sync configurations: %w", err)
	}
	for _, cfg := range cached {
		if _, ok := keep[cfg.ID]; !ok {
			if err := s.cache.DeleteConfiguration(ctx, cfg.ID); err != nil {
				return nil, fmt.Errorf("sync configurations: %w", err)
			}
		}
	}

	s.log.Info("sync: configurations reconciled", zap.Int("count", len(final)))
	return final, nil
}

// SyncQuickAccess pushes the cached user's quick-access set, if any, then
// persists the server's authoritative response back to the cache.
func (s *Syncer) SyncQuickAccess(ctx context.Context) ([]string, error) {
	user, err := s.cache.User(ctx)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, nil // anonymous session, nothing to push
		}
		return nil, fmt.Errorf("sync quick access: %w", err)
	}
	if len(user.QuickAccessConfigurations) == 0 {
		return nil, nil
	}

	accepted, err := s.api.UpdateQuickAccess(ctx, user.QuickAccessConfigurations)
	if err != nil {
		s.log.Error("sync: push quick access", zap.Error(err))
		return nil, fmt.Errorf("sync quick access: %w", err)
	}
	user.QuickAccessConfigurations = accepted
	if err := s.cache.PutUser(ctx, *user); err != nil {
		return nil, fmt.Errorf("sync quick access: %w", err)
	}
	return accepted, nil
}

// SyncAll runs configuration sync then quick-access sync, sequentially. Any
// failure aborts the run; there is no partial-success silent return.
func (s *Syncer) SyncAll(ctx context.Context) error {
	if _, err := s.SyncConfigurations(ctx); err != nil {
		return err
	}
	if _, err := s.SyncQuickAccess(ctx); err != nil {
		return err
	}
	return nil
}
