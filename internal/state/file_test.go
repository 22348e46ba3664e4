package state

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jamesprial/unraid-spindown/internal/diskstats"
)

// recordsEqual compares two record mappings field by field.
func recordsEqual(t *testing.T, got, want map[string]Record) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("len(records) = %d, want %d (got %+v)", len(got), len(want), got)
	}
	for name, w := range want {
		g, ok := got[name]
		if !ok {
			t.Errorf("record %q missing", name)
			continue
		}
		if !g.LastActiveAt.Equal(w.LastActiveAt) {
			t.Errorf("%s LastActiveAt = %v, want %v", name, g.LastActiveAt, w.LastActiveAt)
		}
		if g.Lifecycle != w.Lifecycle {
			t.Errorf("%s Lifecycle = %q, want %q", name, g.Lifecycle, w.Lifecycle)
		}
		switch {
		case g.Counters == nil && w.Counters == nil:
		case g.Counters == nil || w.Counters == nil:
			t.Errorf("%s Counters = %+v, want %+v", name, g.Counters, w.Counters)
		case *g.Counters != *w.Counters:
			t.Errorf("%s Counters = %+v, want %+v", name, *g.Counters, *w.Counters)
		}
	}
}

func Test_FileStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	store := NewFileStore(path)

	want := map[string]Record{
		"sda": {
			LastActiveAt: time.Date(2026, 5, 4, 3, 2, 1, 123456789, time.UTC),
			Lifecycle:    "sleeping",
			Counters:     &diskstats.DeviceCounters{Name: "sda", ReadsCompleted: 10, SectorsRead: 80, WritesCompleted: 2, SectorsWritten: 16},
		},
		"sdb": {
			LastActiveAt: time.Date(2026, 5, 4, 3, 0, 0, 0, time.UTC),
			Lifecycle:    "idle",
		},
	}

	if err := store.Save(want); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	recordsEqual(t, got, want)
}

func Test_FileStore_Load_Cases(t *testing.T) {
	tests := []struct {
		name      string
		content   *string
		wantErr   bool
		wantNames []string
	}{
		{
			name:      "missing file is empty without error",
			content:   nil,
			wantNames: nil,
		},
		{
			name:    "corrupt file is empty with persistence error",
			content: strPtr(`{"sda": {"last_active_at": "2026-05-04T03:02`),
			wantErr: true,
		},
		{
			name:    "wrong shape is a persistence error",
			content: strPtr(`["sda", "sdb"]`),
			wantErr: true,
		},
		{
			name:      "bare timestamp records are accepted",
			content:   strPtr(`{"sda": {"last_active_at": "2026-05-04T03:02:01Z"}}`),
			wantNames: []string{"sda"},
		},
		{
			name:      "records without timestamp are dropped",
			content:   strPtr(`{"sda": {"lifecycle": "idle"}, "sdb": {"last_active_at": "2026-05-04T03:02:01Z"}}`),
			wantNames: []string{"sdb"},
		},
		{
			name:      "empty object",
			content:   strPtr(`{}`),
			wantNames: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "state.json")
			if tt.content != nil {
				if err := os.WriteFile(path, []byte(*tt.content), 0o600); err != nil {
					t.Fatalf("write state: %v", err)
				}
			}

			got, err := NewFileStore(path).Load()
			if got == nil {
				t.Fatal("Load() returned nil map")
			}
			if tt.wantErr {
				var perr *PersistenceError
				if !errors.As(err, &perr) {
					t.Fatalf("Load() error = %v, want *PersistenceError", err)
				}
				if perr.Op != "load" {
					t.Errorf("PersistenceError.Op = %q, want load", perr.Op)
				}
				if len(got) != 0 {
					t.Errorf("Load() = %v, want empty map on error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() unexpected error: %v", err)
			}
			if len(got) != len(tt.wantNames) {
				t.Fatalf("Load() = %v, want names %v", got, tt.wantNames)
			}
			for _, name := range tt.wantNames {
				if _, ok := got[name]; !ok {
					t.Errorf("record %q missing", name)
				}
			}
		})
	}
}

func Test_FileStore_Save_ReplacesAndLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	store := NewFileStore(path)
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	if err := store.Save(map[string]Record{"sda": {LastActiveAt: ts}, "sdb": {LastActiveAt: ts}}); err != nil {
		t.Fatalf("first Save() error: %v", err)
	}
	if err := store.Save(map[string]Record{"sdc": {LastActiveAt: ts}}); err != nil {
		t.Fatalf("second Save() error: %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Load() = %v, want only sdc", got)
	}
	if _, ok := got["sdc"]; !ok {
		t.Errorf("Load() = %v, want sdc", got)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temp file %q left behind", e.Name())
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("file mode = %o, want 600", perm)
	}
}

func Test_FileStore_Save_UnwritableDirectory(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatalf("write blocker: %v", err)
	}

	store := NewFileStore(filepath.Join(blocker, "state.json"))
	err := store.Save(map[string]Record{"sda": {LastActiveAt: time.Now()}})

	var perr *PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("Save() error = %v, want *PersistenceError", err)
	}
	if perr.Op != "save" {
		t.Errorf("PersistenceError.Op = %q, want save", perr.Op)
	}
}

func Test_NewFileStore_PanicsOnEmptyPath(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("NewFileStore(\"\") did not panic")
		}
	}()
	NewFileStore("")
}

func strPtr(s string) *string { return &s }
