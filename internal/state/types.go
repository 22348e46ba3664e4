// Package state persists per-device last-activity records so that a restart
// of the daemon neither resets nor loses idle timers.
package state

import (
	"fmt"
	"time"

	"github.com/jamesprial/unraid-spindown/internal/diskstats"
)

// Record is the persisted form of one device's idle bookkeeping.
// LastActiveAt is required; Lifecycle and Counters may be absent in records
// written by older versions.
type Record struct {
	LastActiveAt time.Time                 `json:"last_active_at"`
	Lifecycle    string                    `json:"lifecycle,omitempty"`
	Counters     *diskstats.DeviceCounters `json:"counters,omitempty"`
}

// Store loads and saves the full device record mapping.
type Store interface {
	// Load returns the persisted mapping. A missing record yields an empty
	// mapping and no error. A corrupt record yields an empty mapping and a
	// *PersistenceError.
	Load() (map[string]Record, error)
	// Save atomically replaces the persisted mapping.
	Save(records map[string]Record) error
}

// PersistenceError reports a failed load or save of the state record.
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("state %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
