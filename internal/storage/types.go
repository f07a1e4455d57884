package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (single JSON state file)
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled and all state is
// memory-only (reminders will not survive a restart).
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// TrackedReminders is the persisted tracking set: the stable ids of every
// alarm the engine believes is currently armed, and the employee the set
// was scheduled for.
type TrackedReminders struct {
	Employee string  `json:"employee"`
	IDs      []int32 `json:"ids"`
}

// Contains reports whether id is in the set.
func (t TrackedReminders) Contains(id int32) bool {
	for _, v := range t.IDs {
		if v == id {
			return true
		}
	}
	return false
}
