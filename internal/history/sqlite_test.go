package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
)

// openTestStore opens a journal in a temp dir and closes it at cleanup.
func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "db", "history.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func Test_SQLiteStore_RecordAndRecent(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	base := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

	events := []Event{
		{Device: "sdb", Kind: KindSpindown, At: base},
		{Device: "sdb", Kind: KindWake, At: base.Add(time.Hour)},
		{Device: "sdc", Kind: KindSpindownFailed, At: base.Add(2 * time.Hour), Detail: "exit status 2"},
		{Device: "sdb", Kind: KindSpindown, At: base.Add(3 * time.Hour)},
	}
	for _, ev := range events {
		if err := s.Record(ctx, ev); err != nil {
			t.Fatalf("Record(%+v) error: %v", ev, err)
		}
	}

	tests := []struct {
		name      string
		device    string
		limit     int
		wantKinds []Kind
	}{
		{
			name:      "all devices newest first",
			device:    "",
			limit:     10,
			wantKinds: []Kind{KindSpindown, KindSpindownFailed, KindWake, KindSpindown},
		},
		{
			name:      "single device",
			device:    "sdb",
			limit:     10,
			wantKinds: []Kind{KindSpindown, KindWake, KindSpindown},
		},
		{
			name:      "limit applies",
			device:    "sdb",
			limit:     1,
			wantKinds: []Kind{KindSpindown},
		},
		{
			name:      "unknown device",
			device:    "sdz",
			limit:     10,
			wantKinds: []Kind{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Recent(ctx, tt.device, tt.limit)
			if err != nil {
				t.Fatalf("Recent() error: %v", err)
			}
			if got == nil {
				t.Fatal("Recent() returned nil slice")
			}
			if len(got) != len(tt.wantKinds) {
				t.Fatalf("Recent() returned %d events, want %d", len(got), len(tt.wantKinds))
			}
			for i, k := range tt.wantKinds {
				if got[i].Kind != k {
					t.Errorf("event[%d].Kind = %q, want %q", i, got[i].Kind, k)
				}
				if got[i].ID == uuid.Nil {
					t.Errorf("event[%d] has nil ID", i)
				}
			}
		})
	}

	latest, err := s.Recent(ctx, "sdc", 1)
	if err != nil {
		t.Fatalf("Recent(sdc) error: %v", err)
	}
	if len(latest) != 1 || latest[0].Detail != "exit status 2" || !latest[0].At.Equal(base.Add(2*time.Hour)) {
		t.Errorf("Recent(sdc) = %+v, want failed event with detail", latest)
	}
}

func Test_SQLiteStore_CountSince(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		if err := s.Record(ctx, Event{Device: "sdb", Kind: KindSpindown, At: base.Add(time.Duration(i) * 24 * time.Hour)}); err != nil {
			t.Fatalf("Record() error: %v", err)
		}
	}
	if err := s.Record(ctx, Event{Device: "sdb", Kind: KindWake, At: base.Add(time.Hour)}); err != nil {
		t.Fatalf("Record() error: %v", err)
	}

	tests := []struct {
		name  string
		kind  Kind
		since time.Time
		want  int
	}{
		{name: "all spindowns", kind: KindSpindown, since: base, want: 5},
		{name: "since day three inclusive", kind: KindSpindown, since: base.Add(2 * 24 * time.Hour), want: 3},
		{name: "wakes", kind: KindWake, since: base, want: 1},
		{name: "nothing in the future", kind: KindSpindown, since: base.Add(30 * 24 * time.Hour), want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.CountSince(ctx, "sdb", tt.kind, tt.since)
			if err != nil {
				t.Fatalf("CountSince() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("CountSince() = %d, want %d", got, tt.want)
			}
		})
	}
}

func Test_SQLiteStore_Record_Defaults(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	fixed := time.Date(2026, 7, 7, 7, 7, 7, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	if err := s.Record(ctx, Event{Device: "sdb", Kind: KindReset}); err != nil {
		t.Fatalf("Record() error: %v", err)
	}
	got, err := s.Recent(ctx, "sdb", 1)
	if err != nil {
		t.Fatalf("Recent() error: %v", err)
	}
	if len(got) != 1 || !got[0].At.Equal(fixed) || got[0].ID == uuid.Nil {
		t.Errorf("Recent() = %+v, want defaulted time and ID", got)
	}

	if err := s.Record(ctx, Event{Kind: KindWake}); err == nil {
		t.Error("Record() without device = nil error, want error")
	}
	if err := s.Record(ctx, Event{Device: "sdb"}); err == nil {
		t.Error("Record() without kind = nil error, want error")
	}
}

func Test_OpenSQLite_ReopenKeepsEvents(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	s, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("OpenSQLite() error: %v", err)
	}
	if err := s.Record(ctx, Event{Device: "sdb", Kind: KindSpindown}); err != nil {
		t.Fatalf("Record() error: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	s2, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer func() { _ = s2.Close() }()

	got, err := s2.Recent(ctx, "", 10)
	if err != nil {
		t.Fatalf("Recent() error: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("Recent() after reopen returned %d events, want 1", len(got))
	}
}
