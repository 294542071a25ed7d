// Package model defines domain entities shared by the client and the server.
package model

import (
	"fmt"
	"time"
)

// ConfigKind classifies a configuration by its provenance.
type ConfigKind int

const (
	// KindDefault is a built-in configuration. Never persisted remotely.
	KindDefault ConfigKind = iota
	// KindServer is a configuration acknowledged by the server.
	KindServer
	// KindLocalOnly is a configuration created offline, pending sync.
	KindLocalOnly
	// KindCustom is the singleton unsaved fork of an edited cycle set.
	KindCustom
)

// String returns a stable name for logging.
func (k ConfigKind) String() string {
	switch k {
	case KindDefault:
		return "default"
	case KindServer:
		return "server"
	case KindLocalOnly:
		return "local-only"
	case KindCustom:
		return "custom"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// CustomConfigID identifies the singleton custom configuration.
const CustomConfigID = "custom"

// LocalIDPrefix marks ids assigned client-side before the server accepts
// the configuration.
const LocalIDPrefix = "local_"

// NewLocalID builds a temporary id for a configuration created offline.
func NewLocalID(now time.Time) string {
	return fmt.Sprintf("%s%d", LocalIDPrefix, now.UnixMilli())
}

// MaxNoteLen bounds the free-form note attached to a cycle.
const MaxNoteLen = 280

// Cycle is one timed phase (work or break) within a configuration.
type Cycle struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Duration int    `json:"duration"` // seconds, > 0
	Note     string `json:"note,omitempty"`
}

// Validate checks the invariants every stored cycle must satisfy.
func (c Cycle) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("cycle: empty id")
	}
	if c.Duration <= 0 {
		return fmt.Errorf("cycle %s: duration must be positive", c.ID)
	}
	if len(c.Note) > MaxNoteLen {
		return fmt.Errorf("cycle %s: note longer than %d characters", c.ID, MaxNoteLen)
	}
	return nil
}

// Configuration is a named, ordered set of cycles. Cycle order determines
// timer progression and is significant.
type Configuration struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Cycles       []Cycle   `json:"cycles"`
	LastModified time.Time `json:"lastModified"`

	// Kind tags the variant. Not part of the wire format: the server only
	// ever sees KindServer configurations.
	Kind ConfigKind `json:"-"`

	// OriginalConfigID is set only on the custom configuration and points
	// at the configuration the cycles were forked from.
	OriginalConfigID string `json:"originalConfigId,omitempty"`
}

// LocalOnly reports whether the configuration has not been accepted by the
// server yet and must never be assumed present there.
func (c Configuration) LocalOnly() bool { return c.Kind == KindLocalOnly }

// CloneCycles returns a deep copy of the cycle sequence so reducers never
// alias slices across configurations.
func CloneCycles(cycles []Cycle) []Cycle {
	if cycles == nil {
		return nil
	}
	out := make([]Cycle, len(cycles))
	copy(out, cycles)
	return out
}

// Validate checks invariants for a configuration about to be persisted.
func (c Configuration) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("configuration: empty name")
	}
	if len(c.Cycles) == 0 {
		return fmt.Errorf("configuration %q: empty cycles", c.Name)
	}
	for _, cy := range c.Cycles {
		if err := cy.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// User is the account record cached locally for offline identity. The
// password never leaves the server in any form.
type User struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`

	// QuickAccessConfigurations holds the configuration ids shown in the
	// primary selector. Ids must be unique.
	QuickAccessConfigurations []string `json:"quickAccessConfigurations"`
}

// DuplicateQuickAccessID returns the first duplicated id, if any.
func DuplicateQuickAccessID(ids []string) (string, bool) {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			return id, true
		}
		seen[id] = struct{}{}
	}
	return "", false
}

// SyncStatus reflects whether the last attempted mutation reached the server.
type SyncStatus int

const (
	// StatusSynced means the last mutation was acknowledged by the server.
	StatusSynced SyncStatus = iota
	// StatusSyncing means a mutation or reconciliation is in flight.
	StatusSyncing
	// StatusUnsynced means the last mutation stopped at the local cache.
	StatusUnsynced
)

// String returns a stable name for logging and display.
func (s SyncStatus) String() string {
	switch s {
	case StatusSynced:
		return "synced"
	case StatusSyncing:
		return "syncing"
	case StatusUnsynced:
		return "unsynced"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}
