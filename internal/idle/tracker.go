package idle

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/jamesprial/unraid-spindown/internal/actuator"
	"github.com/jamesprial/unraid-spindown/internal/diskstats"
	"github.com/jamesprial/unraid-spindown/internal/history"
	"github.com/jamesprial/unraid-spindown/internal/state"
)

// Tracker owns the per-device state map and drives the
// ACTIVE -> IDLE -> SLEEPING state machine. All methods are safe for
// concurrent use; Advance is expected to be called from a single loop.
type Tracker struct {
	mu sync.Mutex

	timeout         time.Duration
	actuatorTimeout time.Duration
	verbose         bool
	now             func() time.Time

	actuator actuator.Actuator
	store    state.Store
	recorder history.Recorder
	notifier FailureNotifier

	devices map[string]*DeviceState

	// restored holds persisted records not yet matched to an observed
	// device. It is dropped once a device could have been forgotten.
	restored    map[string]state.Record
	restoredAge int
}

// TrackerOption configures optional Tracker collaborators.
type TrackerOption func(*Tracker)

// WithRecorder journals every spindown, wake, reset and forget.
func WithRecorder(r history.Recorder) TrackerOption {
	return func(t *Tracker) { t.recorder = r }
}

// WithNotifier reports failed spindown commands.
func WithNotifier(n FailureNotifier) TrackerOption {
	return func(t *Tracker) { t.notifier = n }
}

// WithVerbose enables per-tick debug logging.
func WithVerbose(v bool) TrackerOption {
	return func(t *Tracker) { t.verbose = v }
}

// WithClock sets the clock used outside of Advance (manual spindowns and
// status reads). Advance always uses the snapshot timestamp.
func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) { t.now = now }
}

// NewTracker creates a Tracker. It panics if act or store is nil or a
// duration is not positive.
func NewTracker(timeout, actuatorTimeout time.Duration, act actuator.Actuator, store state.Store, opts ...TrackerOption) *Tracker {
	if act == nil {
		panic("idle: actuator must not be nil")
	}
	if store == nil {
		panic("idle: store must not be nil")
	}
	if timeout <= 0 || actuatorTimeout <= 0 {
		panic("idle: timeouts must be positive")
	}
	t := &Tracker{
		timeout:         timeout,
		actuatorTimeout: actuatorTimeout,
		now:             time.Now,
		actuator:        act,
		store:           store,
		devices:         make(map[string]*DeviceState),
		restored:        make(map[string]state.Record),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Restore loads persisted records. They seed devices on their first
// observation. A load failure is logged and every device starts fresh.
// It returns the number of records loaded.
func (t *Tracker) Restore() int {
	records, err := t.store.Load()
	if err != nil {
		log.Printf("warning: %v, starting with empty state", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.restored = make(map[string]state.Record, len(records))
	for name, rec := range records {
		t.restored[name] = rec
	}
	t.restoredAge = 0
	return len(records)
}

// Advance applies one snapshot. Time is taken from snap.Timestamp. The full
// map is saved when anything other than a no-op happened.
//
// Spindown commands run after the lock is released, so status reads are
// never held up by a slow drive. Devices due this tick already read as
// SLEEPING while their commands run.
func (t *Tracker) Advance(ctx context.Context, snap *diskstats.Snapshot) Result {
	t.mu.Lock()
	tk := t.applyLocked(ctx, snap)
	t.mu.Unlock()

	outcomes := make([]outcome, len(tk.pending))
	for i, sp := range tk.pending {
		outcomes[i] = t.issue(ctx, sp)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for i, sp := range tk.pending {
		t.finishLocked(ctx, sp, outcomes[i], &tk.res)
	}
	if tk.dirty {
		tk.res.Saved = t.saveLocked() == nil
	}
	return tk.res
}

// tick collects the effects of one snapshot while the lock is held.
type tick struct {
	res     Result
	pending []spindown
	dirty   bool
}

// spindown is a command decided under the lock and issued after it.
type spindown struct {
	name string
	at   time.Time
	kind history.Kind
}

// outcome is the result of issuing one spindown.
type outcome struct {
	skipped bool
	err     error
}

func (t *Tracker) applyLocked(ctx context.Context, snap *diskstats.Snapshot) *tick {
	tk := &tick{}
	now := snap.Timestamp

	names := snap.Names()
	sort.Strings(names)

	for _, name := range names {
		curr := snap.Counters[name]
		curr.Name = name

		ds, ok := t.devices[name]
		if !ok {
			t.observeNew(ctx, name, curr, now, tk)
			tk.dirty = true
			continue
		}

		ds.absentTicks = 0
		act := Classify(&ds.counters, curr)
		ds.counters = curr
		if t.step(ctx, ds, act, now, tk) {
			tk.dirty = true
		}
	}

	for _, name := range t.sortedNames() {
		if _, seen := snap.Counters[name]; seen {
			continue
		}
		ds := t.devices[name]
		ds.absentTicks++
		if ds.absentTicks > 1 {
			log.Printf("%s: gone for %d ticks, forgetting", name, ds.absentTicks)
			delete(t.devices, name)
			tk.res.Forgotten = append(tk.res.Forgotten, name)
			t.record(ctx, history.Event{Device: name, Kind: history.KindForgotten, At: now})
			tk.dirty = true
		}
	}

	if t.restored != nil {
		t.restoredAge++
		if t.restoredAge > 1 {
			if len(t.restored) > 0 {
				tk.dirty = true
			}
			t.restored = nil
		}
	}
	return tk
}

func (t *Tracker) observeNew(ctx context.Context, name string, curr diskstats.DeviceCounters, now time.Time, tk *tick) {
	tk.res.Added = append(tk.res.Added, name)

	rec, ok := t.restored[name]
	if ok {
		delete(t.restored, name)
	}
	if !ok {
		t.devices[name] = &DeviceState{
			Name:         name,
			LastActiveAt: now,
			Lifecycle:    LifecycleActive,
			counters:     curr,
		}
		if t.verbose {
			log.Printf("%s: tracking new device", name)
		}
		return
	}

	lc, valid := ParseLifecycle(rec.Lifecycle)
	if !valid && rec.Lifecycle != "" {
		log.Printf("warning: %s: unknown persisted lifecycle %q, assuming active", name, rec.Lifecycle)
	}
	ds := &DeviceState{
		Name:         name,
		LastActiveAt: rec.LastActiveAt,
		Lifecycle:    lc,
		counters:     curr,
	}
	t.devices[name] = ds

	act := ActivityIdle
	if rec.Counters != nil {
		act = Classify(rec.Counters, curr)
	}
	if t.verbose {
		log.Printf("%s: restored %s, last active %s, first sample %s",
			name, lc, rec.LastActiveAt.Format(time.RFC3339), act)
	}
	t.step(ctx, ds, act, now, tk)
}

// step applies one classification to one device and reports whether
// anything worth persisting changed. Every activity counts: the saved
// counters must keep up with LastActiveAt or a restart would read the
// difference as fresh activity.
func (t *Tracker) step(ctx context.Context, ds *DeviceState, act Activity, now time.Time, tk *tick) bool {
	switch act {
	case ActivityUnknown:
		log.Printf("%s: counters went backwards, resetting idle timer", ds.Name)
		ds.Lifecycle = LifecycleActive
		ds.LastActiveAt = now
		tk.res.Reset = append(tk.res.Reset, ds.Name)
		t.record(ctx, history.Event{Device: ds.Name, Kind: history.KindReset, At: now})
		return true

	case ActivityActive:
		prev := ds.Lifecycle
		ds.Lifecycle = LifecycleActive
		ds.LastActiveAt = now
		if prev == LifecycleSleeping {
			asleep := now.Sub(ds.LastSpindownAt)
			if ds.LastSpindownAt.IsZero() {
				log.Printf("%s: woke up", ds.Name)
			} else {
				log.Printf("%s: woke up after %s asleep", ds.Name, asleep.Round(time.Second))
			}
			tk.res.Woken = append(tk.res.Woken, ds.Name)
			t.record(ctx, history.Event{Device: ds.Name, Kind: history.KindWake, At: now})
		} else if prev == LifecycleIdle && t.verbose {
			log.Printf("%s: active again", ds.Name)
		}
		return true

	default:
		if ds.Lifecycle == LifecycleSleeping {
			return false
		}
		idleFor := now.Sub(ds.LastActiveAt)
		if idleFor >= t.timeout {
			log.Printf("%s: idle for %s, spinning down", ds.Name, idleFor.Round(time.Second))
			markSleeping(ds, now)
			tk.pending = append(tk.pending, spindown{name: ds.Name, at: now, kind: history.KindSpindown})
			return true
		}
		if t.verbose {
			log.Printf("%s: idle for %s", ds.Name, idleFor.Round(time.Second))
		}
		if ds.Lifecycle == LifecycleActive {
			ds.Lifecycle = LifecycleIdle
			return true
		}
		return false
	}
}

// markSleeping moves ds to SLEEPING ahead of its command. The device stays
// SLEEPING when the command fails.
func markSleeping(ds *DeviceState, now time.Time) {
	ds.Lifecycle = LifecycleSleeping
	ds.LastSpindownAt = now
}

// issue runs one spindown without holding the lock. A drive that already
// reports standby is left alone. The power query and the command each get
// their own actuator timeout.
func (t *Tracker) issue(ctx context.Context, sp spindown) outcome {
	if checker, ok := t.actuator.(actuator.PowerChecker); ok {
		cctx, cancel := context.WithTimeout(ctx, t.actuatorTimeout)
		mode, err := checker.PowerMode(cctx, sp.name)
		cancel()
		switch {
		case err != nil:
			log.Printf("warning: %s: power mode check failed: %v", sp.name, err)
		case mode == actuator.PowerStandby:
			return outcome{skipped: true}
		}
	}

	actx, cancel := context.WithTimeout(ctx, t.actuatorTimeout)
	err := t.actuator.Spindown(actx, sp.name)
	cancel()
	if err != nil {
		t.notify(ctx, sp.name, err)
	}
	return outcome{err: err}
}

// finishLocked applies an outcome. Device fields are only touched when the
// device is still in the sleep episode the command belonged to.
func (t *Tracker) finishLocked(ctx context.Context, sp spindown, out outcome, res *Result) {
	ds, ok := t.devices[sp.name]
	current := ok && ds.Lifecycle == LifecycleSleeping && ds.LastSpindownAt.Equal(sp.at)

	switch {
	case out.err != nil:
		log.Printf("%s: spindown failed: %v", sp.name, out.err)
		if current {
			ds.LastError = out.err.Error()
		}
		res.Failed = append(res.Failed, sp.name)
		t.record(ctx, history.Event{Device: sp.name, Kind: history.KindSpindownFailed, At: sp.at, Detail: out.err.Error()})

	case out.skipped:
		log.Printf("%s: already in standby, command skipped", sp.name)
		if current {
			ds.LastError = ""
		}
		res.AlreadyStandby = append(res.AlreadyStandby, sp.name)
		t.record(ctx, history.Event{Device: sp.name, Kind: history.KindAlreadyStandby, At: sp.at, Detail: string(sp.kind)})

	default:
		if current {
			ds.LastError = ""
		}
		res.SpunDown = append(res.SpunDown, sp.name)
		t.record(ctx, history.Event{Device: sp.name, Kind: sp.kind, At: sp.at})
	}
}

// Spindown parks one device immediately and marks it SLEEPING. Actuator
// failures are returned and leave the device SLEEPING, as for automatic
// spindowns. A failed save is returned alongside.
func (t *Tracker) Spindown(ctx context.Context, device string) error {
	t.mu.Lock()
	ds, ok := t.devices[device]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("spindown %s: %w", device, ErrUnknownDevice)
	}
	if ds.Lifecycle == LifecycleSleeping {
		t.mu.Unlock()
		return fmt.Errorf("spindown %s: %w", device, ErrAlreadySleeping)
	}
	log.Printf("%s: manual spindown requested", device)
	sp := spindown{name: device, at: t.now(), kind: history.KindManualSpindown}
	markSleeping(ds, sp.at)
	t.mu.Unlock()

	out := t.issue(ctx, sp)

	t.mu.Lock()
	defer t.mu.Unlock()
	var res Result
	t.finishLocked(ctx, sp, out, &res)
	return errors.Join(out.err, t.saveLocked())
}

// Devices returns the status of every tracked device, sorted by name.
func (t *Tracker) Devices() []DeviceStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	out := make([]DeviceStatus, 0, len(t.devices))
	for _, name := range t.sortedNames() {
		ds := t.devices[name]
		st := DeviceStatus{
			Name:         ds.Name,
			Lifecycle:    ds.Lifecycle.String(),
			LastActiveAt: ds.LastActiveAt,
			IdleFor:      now.Sub(ds.LastActiveAt).Round(time.Second).String(),
			LastError:    ds.LastError,
		}
		if !ds.LastSpindownAt.IsZero() {
			at := ds.LastSpindownAt
			st.LastSpindownAt = &at
		}
		out = append(out, st)
	}
	return out
}

// Device returns the status of one device.
func (t *Tracker) Device(name string) (DeviceStatus, error) {
	for _, st := range t.Devices() {
		if st.Name == name {
			return st, nil
		}
	}
	return DeviceStatus{}, fmt.Errorf("device %s: %w", name, ErrUnknownDevice)
}

// Flush saves the current state unconditionally.
func (t *Tracker) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.saveLocked()
}

func (t *Tracker) saveLocked() error {
	records := make(map[string]state.Record, len(t.devices)+len(t.restored))
	for name, rec := range t.restored {
		records[name] = rec
	}
	for name, ds := range t.devices {
		counters := ds.counters
		records[name] = state.Record{
			LastActiveAt: ds.LastActiveAt,
			Lifecycle:    ds.Lifecycle.String(),
			Counters:     &counters,
		}
	}
	if err := t.store.Save(records); err != nil {
		log.Printf("warning: %v, continuing with in-memory state", err)
		return err
	}
	return nil
}

func (t *Tracker) sortedNames() []string {
	names := make([]string, 0, len(t.devices))
	for name := range t.devices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (t *Tracker) record(ctx context.Context, ev history.Event) {
	if t.recorder == nil {
		return
	}
	if err := t.recorder.Record(ctx, ev); err != nil {
		log.Printf("warning: %s: journal %s: %v", ev.Device, ev.Kind, err)
	}
}

func (t *Tracker) notify(ctx context.Context, device string, err error) {
	if t.notifier == nil {
		return
	}
	nctx, cancel := context.WithTimeout(ctx, t.actuatorTimeout)
	defer cancel()
	if nerr := t.notifier.NotifySpindownFailure(nctx, device, err); nerr != nil {
		log.Printf("warning: %s: notify failure: %v", device, nerr)
	}
}
