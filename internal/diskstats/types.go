// Package diskstats reads cumulative per-device I/O counters from the kernel.
package diskstats

import (
	"context"
	"fmt"
	"time"
)

// DeviceCounters holds the cumulative counters of one block device as
// reported by /proc/diskstats. All values only grow while the device stays
// enumerated.
type DeviceCounters struct {
	Name            string `json:"-"`
	ReadsCompleted  uint64 `json:"reads_completed"`
	SectorsRead     uint64 `json:"sectors_read"`
	WritesCompleted uint64 `json:"writes_completed"`
	SectorsWritten  uint64 `json:"sectors_written"`
}

// Snapshot is the set of counters captured at one point in time.
type Snapshot struct {
	Timestamp time.Time
	Counters  map[string]DeviceCounters
}

// Names returns the device names present in the snapshot.
func (s *Snapshot) Names() []string {
	names := make([]string, 0, len(s.Counters))
	for name := range s.Counters {
		names = append(names, name)
	}
	return names
}

// Source produces counter snapshots. Implementations must not issue any I/O
// to the devices themselves.
type Source interface {
	Capture(ctx context.Context) (*Snapshot, error)
}

// ReadError is returned when the counter source cannot be read at all.
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read %s: %v", e.Path, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }
