package idle

import (
	"context"
	"errors"
	"time"

	"github.com/jamesprial/unraid-spindown/internal/diskstats"
)

// Lifecycle is the power-management state the tracker believes a device is in.
type Lifecycle int

const (
	LifecycleActive Lifecycle = iota
	LifecycleIdle
	LifecycleSleeping
)

func (l Lifecycle) String() string {
	switch l {
	case LifecycleActive:
		return "active"
	case LifecycleIdle:
		return "idle"
	case LifecycleSleeping:
		return "sleeping"
	default:
		return "invalid"
	}
}

// ParseLifecycle is the inverse of Lifecycle.String. Unknown input reports
// false.
func ParseLifecycle(s string) (Lifecycle, bool) {
	switch s {
	case "active":
		return LifecycleActive, true
	case "idle":
		return LifecycleIdle, true
	case "sleeping":
		return LifecycleSleeping, true
	default:
		return LifecycleActive, false
	}
}

var (
	// ErrUnknownDevice is returned for operations on a device the tracker
	// has not observed.
	ErrUnknownDevice = errors.New("device is not tracked")
	// ErrAlreadySleeping is returned by a manual spindown of a device that
	// is already SLEEPING.
	ErrAlreadySleeping = errors.New("device is already sleeping")
)

// DeviceState is the long-lived bookkeeping for one device.
type DeviceState struct {
	Name           string
	LastActiveAt   time.Time
	Lifecycle      Lifecycle
	LastSpindownAt time.Time
	LastError      string

	counters    diskstats.DeviceCounters
	absentTicks int
}

// DeviceStatus is a read-only view of a DeviceState.
type DeviceStatus struct {
	Name           string     `json:"name"`
	Lifecycle      string     `json:"lifecycle"`
	LastActiveAt   time.Time  `json:"last_active_at"`
	IdleFor        string     `json:"idle_for"`
	LastSpindownAt *time.Time `json:"last_spindown_at,omitempty"`
	LastError      string     `json:"last_error,omitempty"`
}

// Result summarises one Advance call.
type Result struct {
	Added    []string
	SpunDown []string
	// AlreadyStandby lists devices whose command was skipped because the
	// drive was already parked.
	AlreadyStandby []string
	Failed         []string
	Woken          []string
	Reset          []string
	Forgotten      []string
	Saved          bool
}

// FailureNotifier is told when a spindown command fails.
type FailureNotifier interface {
	NotifySpindownFailure(ctx context.Context, device string, err error) error
}
