package state

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akulinin/pomosync/internal/client/api"
	"github.com/akulinin/pomosync/internal/errs"
	"github.com/akulinin/pomosync/internal/model"
)

func testUser() model.User {
	return model.User{
		ID:                        "u-1",
		Username:                  "maria",
		DisplayName:               "Maria",
		Email:                     "maria@example.com",
		QuickAccessConfigurations: model.DefaultQuickAccessIDs(),
	}
}

func serverConfig(id string) model.Configuration {
	return model.Configuration{
		ID:   id,
		Name: "Remote " + id,
		Kind: model.KindServer,
		Cycles: []model.Cycle{
			{ID: id + "-1", Label: "Focus", Duration: 1200},
			{ID: id + "-2", Label: "Break", Duration: 180},
		},
		LastModified: time.Now().UTC(),
	}
}

func TestLoginEstablishesSession(t *testing.T) {
	e := newEnv(true)
	defer e.m.Close()

	e.api.loginFn = func(username, password string) (api.Session, error) {
		require.Equal(t, "maria", username)
		require.Equal(t, "s3cret", password)
		return api.Session{Token: "tok-1", User: testUser()}, nil
	}
	e.api.configsFn = func() ([]model.Configuration, error) {
		return []model.Configuration{serverConfig("srv-1")}, nil
	}

	require.NoError(t, e.m.Login(context.Background(), "maria", "s3cret"))

	assert.Equal(t, "tok-1", e.tokens.Token())

	cached, err := e.cache.User(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "maria", cached.Username)

	snap := e.m.Snapshot()
	require.NotNil(t, snap.User)
	assert.Equal(t, "maria", snap.User.Username)
	assert.Equal(t, model.StatusSynced, snap.SyncStatus)

	// The fetched configuration joined defaults and custom.
	require.Len(t, snap.Configurations, 5)
	_, ok := e.cache.config("srv-1")
	assert.True(t, ok)
}

func TestLoginFailureRetainsError(t *testing.T) {
	e := newEnv(true)
	defer e.m.Close()

	e.api.loginFn = func(string, string) (api.Session, error) {
		return api.Session{}, errs.ErrUnauthorized
	}

	err := e.m.Login(context.Background(), "maria", "wrong")
	require.ErrorIs(t, err, errs.ErrUnauthorized)

	snap := e.m.Snapshot()
	assert.Nil(t, snap.User)
	assert.Equal(t, model.StatusUnsynced, snap.SyncStatus)
	assert.NotEmpty(t, snap.LastError)
	assert.Empty(t, e.tokens.Token())

	e.m.ClearError()
	assert.Empty(t, e.m.Snapshot().LastError)
}

func TestLogoutDiscardsInFlightLogin(t *testing.T) {
	e := newEnv(true)
	defer e.m.Close()

	release := make(chan struct{})
	e.api.loginFn = func(string, string) (api.Session, error) {
		<-release
		return api.Session{Token: "late-tok", User: testUser()}, nil
	}

	done := make(chan error, 1)
	go func() { done <- e.m.Login(context.Background(), "maria", "s3cret") }()

	// Wait for the login to be in flight, then log out underneath it.
	require.Eventually(t, func() bool {
		return e.m.Snapshot().SyncStatus == model.StatusSyncing
	}, time.Second, time.Millisecond)
	require.NoError(t, e.m.Logout(context.Background()))

	close(release)
	require.NoError(t, <-done)

	// The late result must not re-establish the session.
	snap := e.m.Snapshot()
	assert.Nil(t, snap.User)
	assert.Empty(t, e.tokens.Token())
	_, err := e.cache.User(context.Background())
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestLogoutResetsStateAndCache(t *testing.T) {
	e := newEnv(true)
	defer e.m.Close()

	e.api.loginFn = func(string, string) (api.Session, error) {
		return api.Session{Token: "tok", User: testUser()}, nil
	}
	require.NoError(t, e.m.Login(context.Background(), "maria", "s3cret"))

	e.m.Start()
	require.NoError(t, e.m.UpdateCycle(model.Cycle{ID: "classic-1", Label: "Focus", Duration: 600}))
	require.NoError(t, e.m.Logout(context.Background()))

	snap := e.m.Snapshot()
	assert.Nil(t, snap.User)
	assert.False(t, snap.Running)
	assert.Equal(t, "classic-pomodoro", snap.CurrentConfigID)
	assert.Equal(t, 25*60, snap.TimeRemaining)
	assert.Equal(t, 1, e.cache.cleared)
}

func TestBootstrapWithoutTokenIsAnonymous(t *testing.T) {
	e := newEnv(true)
	defer e.m.Close()

	require.NoError(t, e.m.Bootstrap(context.Background()))
	assert.Nil(t, e.m.Snapshot().User)
}

func TestBootstrapInvalidTokenClearsCredential(t *testing.T) {
	e := newEnv(true)
	defer e.m.Close()

	e.tokens.tok = "expired"
	require.NoError(t, e.cache.PutUser(context.Background(), testUser()))
	e.api.meFn = func() (model.User, error) { return model.User{}, errs.ErrUnauthorized }

	err := e.m.Bootstrap(context.Background())
	require.ErrorIs(t, err, errs.ErrUnauthorized)

	assert.Empty(t, e.tokens.Token())
	_, cerr := e.cache.User(context.Background())
	assert.ErrorIs(t, cerr, errs.ErrNotFound)
}

func TestBootstrapOfflineUsesCachedIdentity(t *testing.T) {
	e := newEnv(false)
	defer e.m.Close()

	e.tokens.tok = "tok"
	require.NoError(t, e.cache.PutUser(context.Background(), testUser()))
	require.NoError(t, e.cache.PutConfiguration(context.Background(), serverConfig("srv-1")))

	require.NoError(t, e.m.Bootstrap(context.Background()))

	snap := e.m.Snapshot()
	require.NotNil(t, snap.User)
	assert.Equal(t, "maria", snap.User.Username)
	assert.Len(t, snap.Configurations, 5)
	assert.Equal(t, model.StatusUnsynced, snap.SyncStatus)
}

func TestFetchConfigurationsFallsBackToCache(t *testing.T) {
	e := newEnv(true)
	defer e.m.Close()

	require.NoError(t, e.cache.PutConfiguration(context.Background(), serverConfig("srv-9")))
	e.api.configsFn = func() ([]model.Configuration, error) {
		return nil, errs.ErrNetworkUnavailable
	}

	require.NoError(t, e.m.FetchConfigurations(context.Background()))

	var found bool
	for _, cfg := range e.m.Snapshot().Configurations {
		if cfg.ID == "srv-9" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestSaveConfigurationOfflineAssignsLocalID(t *testing.T) {
	e := newEnv(false)
	defer e.m.Close()

	saved, err := e.m.SaveConfiguration(context.Background(), "My Plan")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(saved.ID, model.LocalIDPrefix))
	assert.Equal(t, model.KindLocalOnly, saved.Kind)
	assert.Equal(t, "My Plan", saved.Name)
	assert.Len(t, saved.Cycles, 8)

	_, ok := e.cache.config(saved.ID)
	assert.True(t, ok)

	snap := e.m.Snapshot()
	assert.Equal(t, model.StatusUnsynced, snap.SyncStatus)
	// Saving from a named configuration does not move the active pointer.
	assert.Equal(t, "classic-pomodoro", snap.CurrentConfigID)
}

func TestSaveConfigurationFromCustomPromotes(t *testing.T) {
	e := newEnv(true)
	defer e.m.Close()

	e.api.createFn = func(cfg model.Configuration) (model.Configuration, error) {
		cfg.ID = "srv-new"
		cfg.Kind = model.KindServer
		cfg.LastModified = time.Now().UTC()
		return cfg, nil
	}

	require.NoError(t, e.m.UpdateCycle(model.Cycle{ID: "classic-1", Label: "Focus", Duration: 600}))
	require.Equal(t, model.CustomConfigID, e.m.Snapshot().CurrentConfigID)

	saved, err := e.m.SaveConfiguration(context.Background(), "Tuned Pomodoro")
	require.NoError(t, err)
	assert.Equal(t, "srv-new", saved.ID)

	snap := e.m.Snapshot()
	assert.Equal(t, "srv-new", snap.CurrentConfigID)
	for _, cfg := range snap.Configurations {
		if cfg.ID == model.CustomConfigID {
			assert.Empty(t, cfg.Cycles, "custom resets after promotion")
			assert.Empty(t, cfg.OriginalConfigID)
		}
	}
	assert.Equal(t, model.StatusSynced, snap.SyncStatus)
}

func TestSaveConfigurationEmptyNameRejected(t *testing.T) {
	e := newEnv(true)
	defer e.m.Close()

	_, err := e.m.SaveConfiguration(context.Background(), "")
	require.ErrorIs(t, err, errs.ErrValidation)
}

func TestUpdateConfigurationOfflineStaysLocal(t *testing.T) {
	e := newEnv(false)
	defer e.m.Close()

	cfg := serverConfig("srv-1")
	cfg.LastModified = time.Now().Add(-time.Hour).UTC()
	require.NoError(t, e.cache.PutConfiguration(context.Background(), cfg))
	require.NoError(t, e.m.FetchConfigurations(context.Background()))

	cycles := []model.Cycle{{ID: "srv-1-1", Label: "Focus", Duration: 2400}}
	require.NoError(t, e.m.UpdateConfiguration(context.Background(), "srv-1", "Renamed", cycles))

	stored, ok := e.cache.config("srv-1")
	require.True(t, ok)
	assert.Equal(t, "Renamed", stored.Name)
	assert.Equal(t, model.KindServer, stored.Kind)
	// A fresh timestamp makes the next sync push this copy.
	assert.True(t, stored.LastModified.After(cfg.LastModified))
}

func TestUpdateActiveConfigurationReloadsCycles(t *testing.T) {
	e := newEnv(false)
	defer e.m.Close()

	require.NoError(t, e.cache.PutConfiguration(context.Background(), serverConfig("srv-1")))
	require.NoError(t, e.m.FetchConfigurations(context.Background()))
	require.True(t, e.m.SetConfiguration("srv-1"))
	e.m.Start()

	cycles := []model.Cycle{{ID: "fresh-1", Label: "Sprint", Duration: 900}}
	require.NoError(t, e.m.UpdateConfiguration(context.Background(), "srv-1", "Sprints", cycles))

	snap := e.m.Snapshot()
	assert.False(t, snap.Running)
	assert.Equal(t, "fresh-1", snap.CurrentCycleID)
	assert.Equal(t, 900, snap.TimeRemaining)
}

func TestUpdateDefaultConfigurationRejected(t *testing.T) {
	e := newEnv(true)
	defer e.m.Close()

	cycles := []model.Cycle{{ID: "x", Label: "X", Duration: 60}}
	err := e.m.UpdateConfiguration(context.Background(), "classic-pomodoro", "Hack", cycles)
	require.ErrorIs(t, err, errs.ErrValidation)
}

func TestDeleteDefaultConfigurationRejected(t *testing.T) {
	e := newEnv(true)
	defer e.m.Close()

	err := e.m.DeleteConfiguration(context.Background(), "classic-pomodoro")
	require.ErrorIs(t, err, errs.ErrValidation)
	require.Len(t, e.m.Snapshot().Configurations, 4)
}

func TestDeleteCustomResetsInsteadOfRemoving(t *testing.T) {
	e := newEnv(true)
	defer e.m.Close()

	require.NoError(t, e.m.UpdateCycle(model.Cycle{ID: "classic-1", Label: "Focus", Duration: 600}))
	require.NoError(t, e.m.DeleteConfiguration(context.Background(), model.CustomConfigID))

	snap := e.m.Snapshot()
	require.Len(t, snap.Configurations, 4, "custom is reset, never removed")
	assert.Equal(t, model.CustomConfigID, snap.CurrentConfigID)
	assert.Empty(t, snap.Cycles)
	assert.Empty(t, snap.CurrentCycleID)
	assert.Zero(t, snap.TimeRemaining)
	assert.False(t, snap.Running)
}

func TestDeleteActiveServerConfigurationFallsBackToDefault(t *testing.T) {
	e := newEnv(true)
	defer e.m.Close()

	e.api.deleteFn = func(id string) error { return nil }
	require.NoError(t, e.cache.PutConfiguration(context.Background(), serverConfig("srv-1")))
	e.api.configsFn = func() ([]model.Configuration, error) {
		return []model.Configuration{serverConfig("srv-1")}, nil
	}
	require.NoError(t, e.m.FetchConfigurations(context.Background()))
	require.True(t, e.m.SetConfiguration("srv-1"))
	e.m.Start()

	require.NoError(t, e.m.DeleteConfiguration(context.Background(), "srv-1"))

	snap := e.m.Snapshot()
	assert.Equal(t, "classic-pomodoro", snap.CurrentConfigID)
	assert.Equal(t, 25*60, snap.TimeRemaining)
	assert.False(t, snap.Running)
	_, ok := e.cache.config("srv-1")
	assert.False(t, ok)
}

func TestDeleteLocalOnlyConfigurationSkipsServer(t *testing.T) {
	e := newEnv(false)
	defer e.m.Close()

	saved, err := e.m.SaveConfiguration(context.Background(), "Scratch")
	require.NoError(t, err)

	e.net.set(true) // no deleteFn wired: a server call would fail the test
	require.NoError(t, e.m.DeleteConfiguration(context.Background(), saved.ID))
	_, ok := e.cache.config(saved.ID)
	assert.False(t, ok)
}

func TestSetQuickAccessRejectsDuplicates(t *testing.T) {
	e := newEnv(true)
	defer e.m.Close()

	e.api.loginFn = func(string, string) (api.Session, error) {
		return api.Session{Token: "tok", User: testUser()}, nil
	}
	require.NoError(t, e.m.Login(context.Background(), "maria", "s3cret"))

	err := e.m.SetQuickAccess(context.Background(), []string{"a", "b", "a"})
	require.ErrorIs(t, err, errs.ErrValidation)

	snap := e.m.Snapshot()
	assert.Equal(t, model.DefaultQuickAccessIDs(), snap.User.QuickAccessConfigurations)
}

func TestSetQuickAccessRequiresSession(t *testing.T) {
	e := newEnv(true)
	defer e.m.Close()

	err := e.m.SetQuickAccess(context.Background(), []string{"classic-pomodoro"})
	require.ErrorIs(t, err, errs.ErrValidation)
}

func TestSetQuickAccessPersistsAcceptedSet(t *testing.T) {
	e := newEnv(true)
	defer e.m.Close()

	e.api.loginFn = func(string, string) (api.Session, error) {
		return api.Session{Token: "tok", User: testUser()}, nil
	}
	require.NoError(t, e.m.Login(context.Background(), "maria", "s3cret"))

	e.api.quickFn = func(ids []string) ([]string, error) { return ids, nil }
	want := []string{"90-minute-focus", "classic-pomodoro"}
	require.NoError(t, e.m.SetQuickAccess(context.Background(), want))

	assert.Equal(t, want, e.m.Snapshot().User.QuickAccessConfigurations)
	cached, err := e.cache.User(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, cached.QuickAccessConfigurations)
}

func TestReconnectTriggersSync(t *testing.T) {
	e := newEnv(false)
	defer e.m.Close()

	done := make(chan struct{})
	e.sync.done = done

	e.net.set(true)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sync did not run after reconnect")
	}
}

func TestSyncNowRefreshesFromCache(t *testing.T) {
	e := newEnv(true)
	defer e.m.Close()

	require.NoError(t, e.cache.PutConfiguration(context.Background(), serverConfig("srv-2")))
	require.NoError(t, e.cache.PutUser(context.Background(), testUser()))

	require.NoError(t, e.m.SyncNow(context.Background()))

	assert.Equal(t, 1, e.sync.callCount())
	snap := e.m.Snapshot()
	require.NotNil(t, snap.User)
	assert.Len(t, snap.Configurations, 5)
	assert.Equal(t, model.StatusSynced, snap.SyncStatus)
}

func TestSyncNowFailureRetainsStatus(t *testing.T) {
	e := newEnv(true)
	defer e.m.Close()

	e.sync.err = errs.ErrServerFault
	err := e.m.SyncNow(context.Background())
	require.ErrorIs(t, err, errs.ErrServerFault)
	assert.Equal(t, model.StatusUnsynced, e.m.Snapshot().SyncStatus)
}

func TestRegisterDefaultsQuickAccess(t *testing.T) {
	e := newEnv(true)
	defer e.m.Close()

	var got api.RegisterRequest
	e.api.registerFn = func(req api.RegisterRequest) (api.Session, error) {
		got = req
		u := testUser()
		u.QuickAccessConfigurations = req.QuickAccessConfigurations
		return api.Session{Token: "tok", User: u}, nil
	}

	req := api.RegisterRequest{Username: "maria", Password: "s3cret", Email: "maria@example.com"}
	require.NoError(t, e.m.Register(context.Background(), req))

	assert.Equal(t, model.DefaultQuickAccessIDs(), got.QuickAccessConfigurations)
	assert.Equal(t, "tok", e.tokens.Token())
}
