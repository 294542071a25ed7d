package state

import "time"

// tickerHandle is the single scheduled-task handle driving the countdown.
// Start and stop are the only legal transitions; a second concurrent ticker
// must never exist.
type tickerHandle struct {
	stop chan struct{}
	done chan struct{}
}

func (m *Manager) startTickerLocked() {
	if m.ticker != nil {
		return // already ticking
	}
	h := &tickerHandle{stop: make(chan struct{}), done: make(chan struct{})}
	m.ticker = h
	interval := m.tickEvery
	go func() {
		defer close(h.done)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-h.stop:
				return
			case <-t.C:
				m.Tick()
			}
		}
	}()
}

func (m *Manager) stopTickerLocked() {
	if m.ticker == nil {
		return
	}
	close(m.ticker.stop)
	m.ticker = nil
}
