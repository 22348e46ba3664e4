// Package safety guards the spindown daemon's operator surface: which
// devices may be managed, single-use confirmation of manual spindowns, and
// the JSONL audit trail of every control-surface call.
package safety

import (
	"fmt"
	"path/filepath"
)

// Filter selects the block devices the daemon manages. Patterns use
// filepath.Match glob syntax and match the kernel device name ("sdb", not
// "/dev/sdb").
//
// Rules:
//   - The denylist always wins.
//   - An empty allowlist admits every device that is not denied.
//   - Otherwise a device must match at least one allowlist pattern.
type Filter struct {
	allowlist []string
	denylist  []string
}

// NewFilter builds a Filter. A malformed pattern is rejected up front so a
// typo in the config cannot silently exclude every disk.
func NewFilter(allowlist, denylist []string) (*Filter, error) {
	for _, list := range [][]string{allowlist, denylist} {
		for _, pattern := range list {
			if _, err := filepath.Match(pattern, ""); err != nil {
				return nil, fmt.Errorf("device pattern %q: %w", pattern, err)
			}
		}
	}
	return &Filter{
		allowlist: append([]string(nil), allowlist...),
		denylist:  append([]string(nil), denylist...),
	}, nil
}

// IsAllowed reports whether device is managed. A nil Filter admits every
// device.
func (f *Filter) IsAllowed(device string) bool {
	if f == nil {
		return true
	}
	for _, pattern := range f.denylist {
		if ok, _ := filepath.Match(pattern, device); ok {
			return false
		}
	}
	if len(f.allowlist) == 0 {
		return true
	}
	for _, pattern := range f.allowlist {
		if ok, _ := filepath.Match(pattern, device); ok {
			return true
		}
	}
	return false
}

// Select returns the subset of names admitted by the filter, preserving
// order.
func (f *Filter) Select(names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		if f.IsAllowed(name) {
			out = append(out, name)
		}
	}
	return out
}
