// Package state holds the single source of truth for in-memory timer and
// configuration state. Every mutation passes through a named transition;
// transitions are serialized by the manager's mutex so no transition ever
// observes another's partial effect.
package state

import (
	"context"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/akulinin/pomosync/internal/client/api"
	"github.com/akulinin/pomosync/internal/client/offline"
	"github.com/akulinin/pomosync/internal/model"
)

// RemoteAPI is the slice of the remote access layer the manager needs.
type RemoteAPI interface {
	Register(ctx context.Context, req api.RegisterRequest) (api.Session, error)
	Login(ctx context.Context, username, password string) (api.Session, error)
	Me(ctx context.Context) (model.User, error)
	Configurations(ctx context.Context) ([]model.Configuration, error)
	CreateConfiguration(ctx context.Context, cfg model.Configuration) (model.Configuration, error)
	UpdateConfiguration(ctx context.Context, id string, cfg model.Configuration) (model.Configuration, error)
	DeleteConfiguration(ctx context.Context, id string) error
	UpdateQuickAccess(ctx context.Context, ids []string) ([]string, error)
}

// Cache is the slice of the local store the manager needs.
type Cache interface {
	Configurations(ctx context.Context) ([]model.Configuration, error)
	PutConfiguration(ctx context.Context, cfg model.Configuration) error
	DeleteConfiguration(ctx context.Context, id string) error
	User(ctx context.Context) (*model.User, error)
	PutUser(ctx context.Context, u model.User) error
	DeleteUser(ctx context.Context) error
	ClearAll(ctx context.Context) error
}

// SyncEngine reconciles cache and server content.
type SyncEngine interface {
	SyncAll(ctx context.Context) error
}

// Network is the connectivity signal: a predicate plus transition events.
type Network interface {
	Online() bool
	Subscribe(fn func(online bool))
}

// TokenStore persists the bearer credential across restarts.
type TokenStore interface {
	Token() string
	Save(token string) error
	Clear() error
}

// Options wires the manager's collaborators.
type Options struct {
	API    RemoteAPI
	Cache  Cache
	Sync   SyncEngine
	Net    Network
	Tokens TokenStore
	Log    *zap.Logger

	// TickInterval is the cadence of the owned ticker. Defaults to one
	// second; tests shorten it.
	TickInterval time.Duration
}

// Manager owns the timer state machine, the configuration set and the
// derived custom configuration, and folds asynchronous operation results
// back into state.
type Manager struct {
	mu     sync.Mutex
	log    *zap.Logger
	api    RemoteAPI
	cache  Cache
	sync   SyncEngine
	net    Network
	tokens TokenStore
	run    *offline.Runner

	// epoch invalidates in-flight asynchronous results: a result captured
	// under an older epoch is discarded, never applied. Bumped on logout.
	epoch uint64

	tickEvery time.Duration
	ticker    *tickerHandle

	st sessionState
}

// sessionState is the mutable state guarded by Manager.mu.
type sessionState struct {
	running         bool
	timeRemaining   int
	cycles          []model.Cycle
	currentCycleID  string // "" only when the active configuration has no cycles
	currentConfigID string
	configs         []model.Configuration
	user            *model.User
	syncStatus      model.SyncStatus
	lastError       string
}

// Snapshot is an immutable copy of the observable state.
type Snapshot struct {
	Running         bool
	TimeRemaining   int
	CurrentCycleID  string
	CurrentConfigID string
	Cycles          []model.Cycle
	Configurations  []model.Configuration
	User            *model.User
	Offline         bool
	SyncStatus      model.SyncStatus
	LastError       string
}

// New constructs a manager seeded with the built-in configurations and the
// empty custom singleton, and subscribes to connectivity transitions so a
// full sync runs whenever the client comes back online.
func New(opts Options) *Manager {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	tick := opts.TickInterval
	if tick <= 0 {
		tick = time.Second
	}
	m := &Manager{
		log:       log,
		api:       opts.API,
		cache:     opts.Cache,
		sync:      opts.Sync,
		net:       opts.Net,
		tokens:    opts.Tokens,
		run:       offline.New(opts.Net, log),
		tickEvery: tick,
	}
	m.st = initialState()

	m.net.Subscribe(func(online bool) {
		if !online {
			return
		}
		go func() {
			if err := m.SyncNow(context.Background()); err != nil {
				m.log.Warn("sync on reconnect failed", zap.Error(err))
			}
		}()
	})
	return m
}

func initialState() sessionState {
	configs := model.DefaultConfigurations()
	configs = append(configs, model.Configuration{
		ID:   model.CustomConfigID,
		Name: "Custom",
		Kind: model.KindCustom,
	})
	active := configs[0]
	return sessionState{
		cycles:          model.CloneCycles(active.Cycles),
		currentCycleID:  active.Cycles[0].ID,
		timeRemaining:   active.Cycles[0].Duration,
		currentConfigID: active.ID,
		configs:         configs,
		syncStatus:      model.StatusSynced,
	}
}

// Close tears down the owned ticker. The manager must not be used afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.running = false
	m.stopTickerLocked()
}

// Snapshot returns a copy of the current state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	var user *model.User
	if m.st.user != nil {
		u := *m.st.user
		user = &u
	}
	cfgs := make([]model.Configuration, len(m.st.configs))
	copy(cfgs, m.st.configs)
	return Snapshot{
		Running:         m.st.running,
		TimeRemaining:   m.st.timeRemaining,
		CurrentCycleID:  m.st.currentCycleID,
		CurrentConfigID: m.st.currentConfigID,
		Cycles:          model.CloneCycles(m.st.cycles),
		Configurations:  cfgs,
		User:            user,
		Offline:         !m.net.Online(),
		SyncStatus:      m.st.syncStatus,
		LastError:       m.st.lastError,
	}
}

// ClearError drops the retained error message.
func (m *Manager) ClearError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.lastError = ""
}

// Start begins (or resumes) the countdown. A configuration without cycles
// cannot run.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.st.currentCycleID == "" {
		return
	}
	m.st.running = true
	m.startTickerLocked()
}

// Pause suspends the countdown, keeping the remaining time.
func (m *Manager) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.running = false
	m.stopTickerLocked()
}

// Reset stops the countdown and reloads the active cycle's full duration.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.running = false
	m.stopTickerLocked()
	if cy := m.currentCycleLocked(); cy != nil {
		m.st.timeRemaining = cy.Duration
	} else {
		m.st.timeRemaining = 0
	}
}

// Tick advances the countdown by one logical second. When the remaining time
// reaches exactly zero the pointer moves to the next cycle in the sequence,
// cyclically, and the full duration of that cycle is loaded. No second is
// lost or gained across the boundary.
func (m *Manager) Tick() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.st.running || m.st.timeRemaining <= 0 {
		return
	}
	m.st.timeRemaining--
	if m.st.timeRemaining > 0 {
		return
	}
	idx := m.cycleIndexLocked(m.st.currentCycleID)
	if idx < 0 || len(m.st.cycles) == 0 {
		return
	}
	next := m.st.cycles[(idx+1)%len(m.st.cycles)]
	m.st.currentCycleID = next.ID
	m.st.timeRemaining = next.Duration
}

// SetConfiguration switches the active configuration. The timer never
// auto-resumes across a switch.
func (m *Manager) SetConfiguration(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg := m.configLocked(id)
	if cfg == nil {
		return false
	}
	m.st.currentConfigID = cfg.ID
	m.st.cycles = model.CloneCycles(cfg.Cycles)
	if len(cfg.Cycles) > 0 {
		m.st.currentCycleID = cfg.Cycles[0].ID
		m.st.timeRemaining = cfg.Cycles[0].Duration
	} else {
		m.st.currentCycleID = ""
		m.st.timeRemaining = 0
	}
	m.st.running = false
	m.stopTickerLocked()
	return true
}

// SetCurrentCycle moves the pointer to the given cycle and reloads its
// duration.
func (m *Manager) SetCurrentCycle(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.cycleIndexLocked(id)
	if idx < 0 {
		return false
	}
	m.st.currentCycleID = id
	m.st.timeRemaining = m.st.cycles[idx].Duration
	return true
}

// AddCycle appends a cycle to the active sequence, forking into the custom
// configuration when the active one is a named configuration.
func (m *Manager) AddCycle(c model.Cycle) error {
	if err := c.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.cycles = append(model.CloneCycles(m.st.cycles), c)
	if m.st.currentCycleID == "" {
		m.st.currentCycleID = c.ID
		m.st.timeRemaining = c.Duration
	}
	m.forkIntoCustomLocked()
	return nil
}

// UpdateCycle replaces a cycle in place. A duration change on the current
// cycle preserves the elapsed-time proportion: the new remaining time is
// round(newDuration × (1 − elapsedFraction)), floored at zero, so an edit
// neither resets progress nor goes negative.
func (m *Manager) UpdateCycle(c model.Cycle) error {
	if err := c.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.cycleIndexLocked(c.ID)
	if idx < 0 {
		return nil
	}
	old := m.st.cycles[idx]
	cycles := model.CloneCycles(m.st.cycles)
	cycles[idx] = c
	m.st.cycles = cycles

	if m.st.currentCycleID == c.ID && old.Duration != c.Duration && old.Duration > 0 {
		remaining := float64(c.Duration) * float64(m.st.timeRemaining) / float64(old.Duration)
		m.st.timeRemaining = int(math.Max(0, math.Round(remaining)))
	}
	m.forkIntoCustomLocked()
	return nil
}

// DeleteCycle removes a cycle. Deleting the current cycle moves the pointer
// to the next remaining cycle by original index (or the first remaining cycle
// when the deleted one was last); deleting the last remaining cycle empties
// the timer and stops it.
func (m *Manager) DeleteCycle(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.cycleIndexLocked(id)
	if idx < 0 {
		return
	}
	cycles := make([]model.Cycle, 0, len(m.st.cycles)-1)
	cycles = append(cycles, m.st.cycles[:idx]...)
	cycles = append(cycles, m.st.cycles[idx+1:]...)
	m.st.cycles = cycles

	switch {
	case len(cycles) == 0:
		m.st.currentCycleID = ""
		m.st.timeRemaining = 0
		m.st.running = false
		m.stopTickerLocked()
	case m.st.currentCycleID == id:
		next := idx
		if next >= len(cycles) {
			next = 0
		}
		m.st.currentCycleID = cycles[next].ID
		m.st.timeRemaining = cycles[next].Duration
	case m.cycleIndexLocked(m.st.currentCycleID) < 0:
		m.st.currentCycleID = cycles[0].ID
		m.st.timeRemaining = cycles[0].Duration
	}
	m.forkIntoCustomLocked()
}

// ReorderCycles rearranges the sequence to match ids, which must be a
// permutation of the current cycle ids. The current cycle and its remaining
// time are unaffected.
func (m *Manager) ReorderCycles(ids []string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(ids) != len(m.st.cycles) {
		return false
	}
	byID := make(map[string]model.Cycle, len(m.st.cycles))
	for _, c := range m.st.cycles {
		byID[c.ID] = c
	}
	reordered := make([]model.Cycle, 0, len(ids))
	for _, id := range ids {
		c, ok := byID[id]
		if !ok {
			return false
		}
		reordered = append(reordered, c)
		delete(byID, id)
	}
	m.st.cycles = reordered
	m.forkIntoCustomLocked()
	return true
}

// forkIntoCustomLocked routes any cycle edit into the custom singleton: an
// edit to a named configuration becomes a fork, never a silent mutation of
// the original. When the active configuration is already custom the edit is
// mirrored in place and the fork origin is kept.
func (m *Manager) forkIntoCustomLocked() {
	custom := m.configLocked(model.CustomConfigID)
	if custom == nil {
		return
	}
	if m.st.currentConfigID != model.CustomConfigID {
		custom.OriginalConfigID = m.st.currentConfigID
		m.st.currentConfigID = model.CustomConfigID
	}
	custom.Cycles = model.CloneCycles(m.st.cycles)
	custom.LastModified = time.Now().UTC()
}

// resetCustomLocked clears the custom singleton: cycles emptied, fork origin
// dropped. The custom configuration is reset, never deleted.
func (m *Manager) resetCustomLocked() {
	if custom := m.configLocked(model.CustomConfigID); custom != nil {
		custom.Cycles = nil
		custom.OriginalConfigID = ""
	}
}

func (m *Manager) configLocked(id string) *model.Configuration {
	for i := range m.st.configs {
		if m.st.configs[i].ID == id {
			return &m.st.configs[i]
		}
	}
	return nil
}

func (m *Manager) cycleIndexLocked(id string) int {
	for i := range m.st.cycles {
		if m.st.cycles[i].ID == id {
			return i
		}
	}
	return -1
}

func (m *Manager) currentCycleLocked() *model.Cycle {
	if idx := m.cycleIndexLocked(m.st.currentCycleID); idx >= 0 {
		return &m.st.cycles[idx]
	}
	return nil
}
