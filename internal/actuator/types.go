// Package actuator issues the OS-level low-power command that parks a disk.
package actuator

import (
	"context"
	"fmt"
	"strings"
)

// Actuator puts a single block device into its low-power state. Calls are
// rare (once per idle episode) and failures must be observable.
type Actuator interface {
	Spindown(ctx context.Context, device string) error
}

// PowerMode is a disk's power state as reported by the drive itself.
type PowerMode int

const (
	PowerUnknown PowerMode = iota
	PowerActive
	PowerStandby
)

func (m PowerMode) String() string {
	switch m {
	case PowerActive:
		return "active"
	case PowerStandby:
		return "standby"
	default:
		return "unknown"
	}
}

// PowerChecker reads a disk's power mode without waking it. Actuators that
// implement it let the tracker skip the command for a disk the firmware has
// already parked.
type PowerChecker interface {
	PowerMode(ctx context.Context, device string) (PowerMode, error)
}

// ActuatorError reports a failed spindown command for one device.
type ActuatorError struct {
	Device string
	Output string
	Err    error
}

func (e *ActuatorError) Error() string {
	out := strings.TrimSpace(e.Output)
	if out == "" {
		return fmt.Sprintf("spindown %s: %v", e.Device, e.Err)
	}
	return fmt.Sprintf("spindown %s: %v: %s", e.Device, e.Err, out)
}

func (e *ActuatorError) Unwrap() error { return e.Err }
