// Package idle implements idle detection and the per-device spindown state
// machine.
package idle

import "github.com/jamesprial/unraid-spindown/internal/diskstats"

// Activity is the classification of one polling interval for one device.
type Activity int

const (
	// ActivityIdle means no counter moved.
	ActivityIdle Activity = iota
	// ActivityActive means at least one counter increased, or the device
	// was seen for the first time.
	ActivityActive
	// ActivityUnknown means a counter went backwards; the device was most
	// likely re-enumerated and the delta is meaningless.
	ActivityUnknown
)

func (a Activity) String() string {
	switch a {
	case ActivityIdle:
		return "idle"
	case ActivityActive:
		return "active"
	case ActivityUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// Classify compares two samples of the same device. A nil prev is a first
// observation and counts as activity, so a device is never spun down before
// it has been seen idling.
func Classify(prev *diskstats.DeviceCounters, curr diskstats.DeviceCounters) Activity {
	if prev == nil {
		return ActivityActive
	}

	pairs := [4][2]uint64{
		{prev.ReadsCompleted, curr.ReadsCompleted},
		{prev.SectorsRead, curr.SectorsRead},
		{prev.WritesCompleted, curr.WritesCompleted},
		{prev.SectorsWritten, curr.SectorsWritten},
	}

	var delta uint64
	for _, p := range pairs {
		if p[1] < p[0] {
			return ActivityUnknown
		}
		delta += p[1] - p[0]
	}
	if delta > 0 {
		return ActivityActive
	}
	return ActivityIdle
}
