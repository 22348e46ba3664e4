// Package daemon runs the polling loop that feeds counter snapshots into the
// idle tracker.
package daemon

import (
	"context"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/jamesprial/unraid-spindown/internal/config"
	"github.com/jamesprial/unraid-spindown/internal/diskstats"
	"github.com/jamesprial/unraid-spindown/internal/idle"
	"github.com/jamesprial/unraid-spindown/internal/safety"
)

// Tracker is the part of *idle.Tracker the loop drives.
type Tracker interface {
	Restore() int
	Advance(ctx context.Context, snap *diskstats.Snapshot) idle.Result
	Flush() error
}

// Compile-time interface check.
var _ Tracker = (*idle.Tracker)(nil)

// Daemon owns the tick loop.
type Daemon struct {
	interval time.Duration
	timeout  time.Duration
	verbose  bool

	source  diskstats.Source
	tracker Tracker
	filter  *safety.Filter

	ticks    <-chan time.Time
	excluded map[string]struct{}
}

// Option configures a Daemon.
type Option func(*Daemon)

// WithTicks replaces the interval ticker with ch. Closing ch stops Run.
func WithTicks(ch <-chan time.Time) Option {
	return func(d *Daemon) { d.ticks = ch }
}

// New creates a Daemon. It panics if source or tracker is nil. A nil filter
// manages every device.
func New(cfg *config.Config, source diskstats.Source, tracker Tracker, filter *safety.Filter, opts ...Option) *Daemon {
	if source == nil {
		panic("daemon: source must not be nil")
	}
	if tracker == nil {
		panic("daemon: tracker must not be nil")
	}
	d := &Daemon{
		interval: cfg.Interval(),
		timeout:  cfg.Timeout(),
		verbose:  cfg.Daemon.Verbose,
		source:   source,
		tracker:  tracker,
		filter:   filter,
		excluded: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run restores persisted state, ticks once immediately and then once per
// interval until ctx is cancelled. An in-flight tick always completes. The
// tracker is flushed before Run returns.
func (d *Daemon) Run(ctx context.Context) error {
	n := d.tracker.Restore()
	log.Printf("spindownd started: timeout %s, interval %s, %d persisted devices", d.timeout, d.interval, n)

	ticks := d.ticks
	if ticks == nil {
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()
		ticks = ticker.C
	}

	_ = d.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return d.stop()
		case _, ok := <-ticks:
			if !ok || ctx.Err() != nil {
				return d.stop()
			}
			_ = d.Tick(ctx)
		}
	}
}

func (d *Daemon) stop() error {
	if err := d.tracker.Flush(); err != nil {
		log.Printf("warning: final state flush failed: %v", err)
	}
	log.Println("spindownd stopped")
	return nil
}

// Tick captures one snapshot, drops filtered devices and advances the
// tracker. A capture failure skips the tick and is returned.
func (d *Daemon) Tick(ctx context.Context) error {
	// A tick that started runs to completion, actuator calls included, even
	// when shutdown cancels ctx.
	tctx := context.WithoutCancel(ctx)

	snap, err := d.source.Capture(tctx)
	if err != nil {
		log.Printf("warning: %v, skipping tick", err)
		return err
	}

	filtered := &diskstats.Snapshot{
		Timestamp: snap.Timestamp,
		Counters:  make(map[string]diskstats.DeviceCounters, len(snap.Counters)),
	}
	for name, c := range snap.Counters {
		if !d.filter.IsAllowed(name) {
			d.noteExcluded(name)
			continue
		}
		filtered.Counters[name] = c
	}

	res := d.tracker.Advance(tctx, filtered)
	if d.verbose {
		logResult(res)
	}
	return nil
}

func (d *Daemon) noteExcluded(name string) {
	if _, seen := d.excluded[name]; seen {
		return
	}
	d.excluded[name] = struct{}{}
	if d.verbose {
		log.Printf("%s: not managed (device filter)", name)
	}
}

func logResult(res idle.Result) {
	var parts []string
	add := func(label string, names []string) {
		if len(names) == 0 {
			return
		}
		sorted := append([]string(nil), names...)
		sort.Strings(sorted)
		parts = append(parts, label+"="+strings.Join(sorted, ","))
	}
	add("added", res.Added)
	add("spun_down", res.SpunDown)
	add("already_standby", res.AlreadyStandby)
	add("failed", res.Failed)
	add("woken", res.Woken)
	add("reset", res.Reset)
	add("forgotten", res.Forgotten)
	if len(parts) == 0 {
		return
	}
	log.Printf("tick: %s", strings.Join(parts, " "))
}
