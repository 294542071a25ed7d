// Package connectivity tracks whether the server is currently reachable and
// notifies subscribers on transitions, e.g. to trigger a full sync when the
// client comes back online.
package connectivity

import (
	"sync"

	"go.uber.org/zap"
)

// Monitor is the process-wide connectivity signal. The zero value is not
// usable; construct with New.
type Monitor struct {
	mu     sync.Mutex
	online bool
	subs   []func(online bool)
	log    *zap.Logger
}

// New constructs a monitor with the given initial state.
func New(online bool, log *zap.Logger) *Monitor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Monitor{online: online, log: log}
}

// Online reports the current connectivity state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe registers fn to run on every transition. Callbacks run
// synchronously on the goroutine that flips the state, after the state has
// been updated, so they observe the new value through Online.
func (m *Monitor) Subscribe(fn func(online bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, fn)
}

// SetOnline updates the state. Subscribers fire only on an actual change.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	subs := make([]func(bool), len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	m.log.Info("connectivity changed", zap.Bool("online", online))
	for _, fn := range subs {
		fn(online)
	}
}
