// Package history journals spindown and wake events so operators can see how
// many load/start-stop cycles each disk accumulates.
package history

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Kind classifies a journal event.
type Kind string

const (
	KindSpindown       Kind = "spindown"
	KindSpindownFailed Kind = "spindown_failed"
	KindManualSpindown Kind = "manual_spindown"
	// KindAlreadyStandby is a due spindown skipped because the drive
	// reported standby on its own.
	KindAlreadyStandby Kind = "already_standby"
	KindWake           Kind = "wake"
	KindReset          Kind = "reset"
	KindForgotten      Kind = "forgotten"
)

// Event is one journal entry.
type Event struct {
	ID     uuid.UUID `json:"id"`
	Device string    `json:"device"`
	Kind   Kind      `json:"kind"`
	At     time.Time `json:"at"`
	Detail string    `json:"detail,omitempty"`
}

// Recorder accepts journal events.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

// Journal is a Recorder that can also be queried.
type Journal interface {
	Recorder
	// Recent returns up to limit events, newest first. An empty device
	// matches every device.
	Recent(ctx context.Context, device string, limit int) ([]Event, error)
	// CountSince counts events of kind for device at or after since.
	CountSince(ctx context.Context, device string, kind Kind, since time.Time) (int, error)
}
