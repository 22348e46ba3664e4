package diskstats

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Compile-time interface check.
var _ Source = (*ProcSource)(nil)

// ProcSource implements Source by reading {procPath}/diskstats on every call.
type ProcSource struct {
	procPath string
	sysPath  string
	now      func() time.Time
}

// ProcOption configures a ProcSource.
type ProcOption func(*ProcSource)

// WithClock overrides the clock used to stamp snapshots.
func WithClock(now func() time.Time) ProcOption {
	return func(s *ProcSource) { s.now = now }
}

// NewProcSource returns a ProcSource reading from the given directories.
//
//   - procPath is the proc filesystem directory (normally /proc).
//   - sysPath  is the sys filesystem directory (normally /sys). Partitions
//     are detected through {sysPath}/class/block/<name>/partition and
//     skipped. An empty sysPath keeps partitions.
func NewProcSource(procPath, sysPath string, opts ...ProcOption) *ProcSource {
	s := &ProcSource{procPath: procPath, sysPath: sysPath, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Capture reads the current counters of every whole block device. A line that
// cannot be parsed only drops that device from the snapshot.
func (s *ProcSource) Capture(ctx context.Context) (*Snapshot, error) {
	path := filepath.Join(s.procPath, "diskstats")
	f, err := os.Open(path)
	if err != nil {
		return nil, &ReadError{Path: path, Err: err}
	}
	defer func() { _ = f.Close() }()

	snap := &Snapshot{
		Timestamp: s.now(),
		Counters:  make(map[string]DeviceCounters),
	}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dc, err := parseLine(scanner.Text())
		if err != nil {
			continue
		}
		if s.isPartition(dc.Name) {
			continue
		}
		snap.Counters[dc.Name] = dc
	}
	if err := scanner.Err(); err != nil {
		return nil, &ReadError{Path: path, Err: err}
	}
	return snap, nil
}

// isPartition reports whether sysfs marks name as a partition.
func (s *ProcSource) isPartition(name string) bool {
	if s.sysPath == "" {
		return false
	}
	_, err := os.Stat(filepath.Join(s.sysPath, "class", "block", name, "partition"))
	return err == nil
}

// parseLine parses one line of /proc/diskstats.
//
// Format: major minor name reads_completed reads_merged sectors_read read_time
// writes_completed writes_merged sectors_written write_time ios_in_progress
// io_time weighted_io_time [discard and flush fields...]
func parseLine(line string) (DeviceCounters, error) {
	fields := strings.Fields(line)
	if len(fields) < 14 {
		return DeviceCounters{}, fmt.Errorf("expected at least 14 fields, got %d", len(fields))
	}

	var vals [4]uint64
	for i, idx := range [4]int{3, 5, 7, 9} {
		v, err := strconv.ParseUint(fields[idx], 10, 64)
		if err != nil {
			return DeviceCounters{}, fmt.Errorf("%s field %d: %w", fields[2], idx, err)
		}
		vals[i] = v
	}

	return DeviceCounters{
		Name:            fields[2],
		ReadsCompleted:  vals[0],
		SectorsRead:     vals[1],
		WritesCompleted: vals[2],
		SectorsWritten:  vals[3],
	}, nil
}
