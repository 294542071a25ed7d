package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/akulinin/pomosync/internal/client/api"
	"github.com/akulinin/pomosync/internal/client/offline"
	"github.com/akulinin/pomosync/internal/errs"
	"github.com/akulinin/pomosync/internal/model"
)

// beginOp marks a mutation in flight and captures the epoch its result will
// be validated against.
func (m *Manager) beginOp() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.syncStatus = model.StatusSyncing
	return m.epoch
}

// fold finalizes an asynchronous operation. A result captured under an older
// epoch is discarded: the session it belonged to is gone. Failures set the
// status to unsynced and retain the message, leaving entities untouched;
// successes apply under the lock, then derive the status from connectivity.
func (m *Manager) fold(epoch uint64, err error, apply func()) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if epoch != m.epoch {
		m.log.Debug("discarding stale operation result")
		return nil
	}
	if err != nil {
		m.st.syncStatus = model.StatusUnsynced
		m.st.lastError = err.Error()
		return err
	}
	if apply != nil {
		apply()
	}
	if m.net.Online() {
		m.st.syncStatus = model.StatusSynced
	} else {
		m.st.syncStatus = model.StatusUnsynced
	}
	m.st.lastError = ""
	return nil
}

// Register creates an account, stores the session and loads configurations.
func (m *Manager) Register(ctx context.Context, req api.RegisterRequest) error {
	if len(req.QuickAccessConfigurations) == 0 {
		req.QuickAccessConfigurations = model.DefaultQuickAccessIDs()
	}
	if dup, ok := model.DuplicateQuickAccessID(req.QuickAccessConfigurations); ok {
		return fmt.Errorf("%w: duplicate quick access id %s", errs.ErrValidation, dup)
	}
	epoch := m.beginOp()
	sess, err := m.api.Register(ctx, req)
	if err != nil {
		return m.fold(epoch, err, nil)
	}
	return m.adoptSession(ctx, epoch, sess)
}

// Login exchanges credentials for a session, caches the user for offline
// identity, and loads configurations.
func (m *Manager) Login(ctx context.Context, username, password string) error {
	epoch := m.beginOp()
	sess, err := m.api.Login(ctx, username, password)
	if err != nil {
		return m.fold(epoch, err, nil)
	}
	return m.adoptSession(ctx, epoch, sess)
}

func (m *Manager) adoptSession(ctx context.Context, epoch uint64, sess api.Session) error {
	m.mu.Lock()
	stale := epoch != m.epoch
	m.mu.Unlock()
	if stale {
		// Logged out while the request was in flight; do not re-establish
		// the credential.
		return nil
	}
	if err := m.tokens.Save(sess.Token); err != nil {
		return m.fold(epoch, err, nil)
	}
	if err := m.cache.PutUser(ctx, sess.User); err != nil {
		return m.fold(epoch, err, nil)
	}
	if err := m.fold(epoch, nil, func() {
		u := sess.User
		m.st.user = &u
	}); err != nil {
		return err
	}
	m.log.Info("session established", zap.String("username", sess.User.Username))
	return m.FetchConfigurations(ctx)
}

// Bootstrap restores a previous session on startup: with a stored token it
// loads the account (server first, cache when offline) and the configuration
// set. An invalid token clears the stored credential and cached identity.
func (m *Manager) Bootstrap(ctx context.Context) error {
	if m.tokens.Token() == "" {
		return nil // anonymous session
	}
	epoch := m.beginOp()
	user, err := offline.Do(ctx, m.run,
		func(ctx context.Context) (*model.User, error) {
			u, err := m.api.Me(ctx)
			if err != nil {
				return nil, err
			}
			if err := m.cache.PutUser(ctx, u); err != nil {
				return nil, err
			}
			return &u, nil
		},
		func(ctx context.Context) (*model.User, error) {
			return m.cache.User(ctx)
		},
	)
	if errors.Is(err, errs.ErrUnauthorized) {
		_ = m.tokens.Clear()
		_ = m.cache.DeleteUser(ctx)
		return m.fold(epoch, err, nil)
	}
	if err != nil {
		return m.fold(epoch, err, nil)
	}
	if err := m.fold(epoch, nil, func() { m.st.user = user }); err != nil {
		return err
	}
	return m.FetchConfigurations(ctx)
}

// Logout tears the session down: in-memory state returns to the defaults,
// the credential and the whole cache are cleared, and any in-flight
// operation's eventual result is discarded rather than applied.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	m.epoch++
	m.stopTickerLocked()
	m.st = initialState()
	m.mu.Unlock()

	if err := m.tokens.Clear(); err != nil {
		return err
	}
	if err := m.cache.ClearAll(ctx); err != nil {
		return err
	}
	m.log.Info("logged out")
	return nil
}

// FetchConfigurations loads the configuration set, server first with a cache
// fallback, and folds it into state.
func (m *Manager) FetchConfigurations(ctx context.Context) error {
	epoch := m.beginOp()
	cfgs, err := offline.Do(ctx, m.run,
		func(ctx context.Context) ([]model.Configuration, error) {
			out, err := m.api.Configurations(ctx)
			if err != nil {
				return nil, err
			}
			for _, cfg := range out {
				if err := m.cache.PutConfiguration(ctx, cfg); err != nil {
					return nil, err
				}
			}
			return out, nil
		},
		func(ctx context.Context) ([]model.Configuration, error) {
			return m.cache.Configurations(ctx)
		},
	)
	return m.fold(epoch, err, func() { m.replaceRemoteConfigsLocked(cfgs) })
}

// SaveConfiguration stores the working cycle sequence under a name. Online,
// the server assigns the identity; offline, the record gets a temporary
// local_ id and is pushed by the next sync. Saving an edited custom fork
// promotes it: the new configuration becomes active and custom is reset.
func (m *Manager) SaveConfiguration(ctx context.Context, name string) (model.Configuration, error) {
	m.mu.Lock()
	draft := model.Configuration{Name: name, Cycles: model.CloneCycles(m.st.cycles)}
	fromCustom := m.st.currentConfigID == model.CustomConfigID
	m.mu.Unlock()

	if err := draft.Validate(); err != nil {
		return model.Configuration{}, fmt.Errorf("%w: %s", errs.ErrValidation, err)
	}

	epoch := m.beginOp()
	saved, err := offline.Do(ctx, m.run,
		func(ctx context.Context) (model.Configuration, error) {
			created, err := m.api.CreateConfiguration(ctx, draft)
			if err != nil {
				return model.Configuration{}, err
			}
			return created, m.cache.PutConfiguration(ctx, created)
		},
		func(ctx context.Context) (model.Configuration, error) {
			local := draft
			local.ID = model.NewLocalID(time.Now())
			local.Kind = model.KindLocalOnly
			local.LastModified = time.Now().UTC()
			return local, m.cache.PutConfiguration(ctx, local)
		},
	)
	foldErr := m.fold(epoch, err, func() {
		m.st.configs = append(m.st.configs, saved)
		if fromCustom {
			m.st.currentConfigID = saved.ID
			m.resetCustomLocked()
		}
	})
	if foldErr != nil {
		return model.Configuration{}, foldErr
	}
	return saved, nil
}

// UpdateConfiguration replaces name and cycles of a stored configuration.
// Offline (or for a still-local-only record) the edit lands in the cache
// with a fresh lastModified, so the next sync pushes it as the newer copy.
func (m *Manager) UpdateConfiguration(ctx context.Context, id, name string, cycles []model.Cycle) error {
	draft := model.Configuration{ID: id, Name: name, Cycles: model.CloneCycles(cycles)}
	if err := draft.Validate(); err != nil {
		return fmt.Errorf("%w: %s", errs.ErrValidation, err)
	}

	m.mu.Lock()
	existing := m.configLocked(id)
	if existing == nil {
		m.mu.Unlock()
		return fmt.Errorf("update configuration: %s: %w", id, errs.ErrNotFound)
	}
	kind := existing.Kind
	m.mu.Unlock()

	switch kind {
	case model.KindDefault:
		return fmt.Errorf("%w: default configurations are immutable", errs.ErrValidation)
	case model.KindCustom:
		return fmt.Errorf("%w: save the custom configuration under a name instead", errs.ErrValidation)
	}

	epoch := m.beginOp()
	var (
		updated model.Configuration
		err     error
	)
	if kind == model.KindLocalOnly {
		// The server has never seen this record; editing it stays local.
		updated = draft
		updated.Kind = model.KindLocalOnly
		updated.LastModified = time.Now().UTC()
		err = m.cache.PutConfiguration(ctx, updated)
	} else {
		updated, err = offline.Do(ctx, m.run,
			func(ctx context.Context) (model.Configuration, error) {
				out, err := m.api.UpdateConfiguration(ctx, id, draft)
				if err != nil {
					return model.Configuration{}, err
				}
				return out, m.cache.PutConfiguration(ctx, out)
			},
			func(ctx context.Context) (model.Configuration, error) {
				local := draft
				local.Kind = model.KindServer
				local.LastModified = time.Now().UTC()
				return local, m.cache.PutConfiguration(ctx, local)
			},
		)
	}
	return m.fold(epoch, err, func() {
		if cfg := m.configLocked(id); cfg != nil {
			*cfg = updated
		}
		if m.st.currentConfigID == id {
			m.st.cycles = model.CloneCycles(updated.Cycles)
			m.st.currentCycleID = updated.Cycles[0].ID
			m.st.timeRemaining = updated.Cycles[0].Duration
			m.st.running = false
			m.stopTickerLocked()
		}
	})
}

// DeleteConfiguration removes a configuration client- and server-side. The
// custom singleton is reset rather than deleted; defaults cannot be removed.
func (m *Manager) DeleteConfiguration(ctx context.Context, id string) error {
	m.mu.Lock()
	existing := m.configLocked(id)
	if existing == nil {
		m.mu.Unlock()
		return fmt.Errorf("delete configuration: %s: %w", id, errs.ErrNotFound)
	}
	kind := existing.Kind
	if kind == model.KindDefault {
		m.mu.Unlock()
		return fmt.Errorf("%w: default configurations cannot be deleted", errs.ErrValidation)
	}
	if kind == model.KindCustom {
		m.resetCustomLocked()
		if m.st.currentConfigID == model.CustomConfigID {
			m.st.cycles = nil
			m.st.currentCycleID = ""
			m.st.timeRemaining = 0
			m.st.running = false
			m.stopTickerLocked()
		}
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	epoch := m.beginOp()
	var err error
	if kind == model.KindLocalOnly {
		// Never reached the server; only the cache holds it.
		err = m.cache.DeleteConfiguration(ctx, id)
	} else {
		_, err = offline.Do(ctx, m.run,
			func(ctx context.Context) (struct{}, error) {
				if err := m.api.DeleteConfiguration(ctx, id); err != nil {
					return struct{}{}, err
				}
				return struct{}{}, m.cache.DeleteConfiguration(ctx, id)
			},
			func(ctx context.Context) (struct{}, error) {
				return struct{}{}, m.cache.DeleteConfiguration(ctx, id)
			},
		)
	}
	return m.fold(epoch, err, func() {
		configs := m.st.configs[:0]
		for _, cfg := range m.st.configs {
			if cfg.ID != id {
				configs = append(configs, cfg)
			}
		}
		m.st.configs = configs
		if m.st.currentConfigID == id {
			m.activateFirstDefaultLocked()
		}
	})
}

// SetQuickAccess replaces the signed-in user's quick-access set. A duplicate
// id is a validation error and leaves state unchanged.
func (m *Manager) SetQuickAccess(ctx context.Context, ids []string) error {
	if dup, ok := model.DuplicateQuickAccessID(ids); ok {
		return fmt.Errorf("%w: duplicate quick access id %s", errs.ErrValidation, dup)
	}
	m.mu.Lock()
	signedIn := m.st.user != nil
	m.mu.Unlock()
	if !signedIn {
		return fmt.Errorf("%w: not signed in", errs.ErrValidation)
	}

	epoch := m.beginOp()
	accepted, err := offline.Do(ctx, m.run,
		func(ctx context.Context) ([]string, error) {
			out, err := m.api.UpdateQuickAccess(ctx, ids)
			if err != nil {
				return nil, err
			}
			return out, m.storeQuickAccess(ctx, out)
		},
		func(ctx context.Context) ([]string, error) {
			return ids, m.storeQuickAccess(ctx, ids)
		},
	)
	return m.fold(epoch, err, func() {
		if m.st.user != nil {
			m.st.user.QuickAccessConfigurations = accepted
		}
	})
}

func (m *Manager) storeQuickAccess(ctx context.Context, ids []string) error {
	user, err := m.cache.User(ctx)
	if err != nil {
		return err
	}
	user.QuickAccessConfigurations = ids
	return m.cache.PutUser(ctx, *user)
}

// SyncNow runs a full reconciliation and folds the resulting cache content
// into state.
func (m *Manager) SyncNow(ctx context.Context) error {
	epoch := m.beginOp()
	if err := m.sync.SyncAll(ctx); err != nil {
		return m.fold(epoch, err, nil)
	}
	cfgs, err := m.cache.Configurations(ctx)
	if err != nil {
		return m.fold(epoch, err, nil)
	}
	user, err := m.cache.User(ctx)
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return m.fold(epoch, err, nil)
	}
	return m.fold(epoch, nil, func() {
		m.replaceRemoteConfigsLocked(cfgs)
		if user != nil {
			m.st.user = user
		}
	})
}

// replaceRemoteConfigsLocked swaps the server-backed part of the
// configuration set, preserving the defaults and the custom singleton. If
// the active configuration disappeared, the first default takes over.
func (m *Manager) replaceRemoteConfigsLocked(remote []model.Configuration) {
	kept := make([]model.Configuration, 0, len(remote)+4)
	for _, cfg := range m.st.configs {
		if cfg.Kind == model.KindDefault || cfg.Kind == model.KindCustom {
			kept = append(kept, cfg)
		}
	}
	kept = append(kept, remote...)
	m.st.configs = kept

	if m.configLocked(m.st.currentConfigID) == nil {
		m.activateFirstDefaultLocked()
	}
}

func (m *Manager) activateFirstDefaultLocked() {
	def := m.st.configs[0] // defaults are always seeded first
	m.st.currentConfigID = def.ID
	m.st.cycles = model.CloneCycles(def.Cycles)
	m.st.currentCycleID = def.Cycles[0].ID
	m.st.timeRemaining = def.Cycles[0].Duration
	m.st.running = false
	m.stopTickerLocked()
}
