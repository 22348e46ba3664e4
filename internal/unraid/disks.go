package unraid

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DiskSlot is one array or pool slot from emhttp's disks.ini.
type DiskSlot struct {
	// Slot is the Unraid name, e.g. "disk1", "parity" or "cache".
	Slot string `json:"slot"`
	// Device is the kernel name without /dev/, empty for unassigned slots.
	Device   string `json:"device"`
	Status   string `json:"status"`
	SpunDown bool   `json:"spun_down"`
}

// SlotReader maps kernel device names to Unraid slots by reading the emhttp
// state directory (normally /var/local/emhttp).
type SlotReader struct {
	emhttpPath string
}

// NewSlotReader returns a SlotReader for emhttpPath.
func NewSlotReader(emhttpPath string) *SlotReader {
	return &SlotReader{emhttpPath: emhttpPath}
}

// Slots returns the assigned slots keyed by device name.
func (r *SlotReader) Slots(ctx context.Context) (map[string]DiskSlot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := filepath.Join(r.emhttpPath, "disks.ini")
	sections, err := parseSectionedIni(path)
	if err != nil {
		return nil, fmt.Errorf("read disks.ini: %w", err)
	}

	slots := make(map[string]DiskSlot, len(sections))
	for _, s := range sections {
		device := stripQuotes(s.kv["device"])
		if device == "" {
			continue
		}
		name := stripQuotes(s.kv["name"])
		if name == "" {
			name = s.name
		}
		slots[device] = DiskSlot{
			Slot:     name,
			Device:   device,
			Status:   stripQuotes(s.kv["status"]),
			SpunDown: stripQuotes(s.kv["spundown"]) == "1",
		}
	}
	return slots, nil
}

type iniSection struct {
	name string
	kv   map[string]string
}

// parseSectionedIni reads a PHP-style [section] ini file, keeping section
// order.
func parseSectionedIni(path string) ([]iniSection, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var sections []iniSection
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == ';' || line[0] == '#' {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			sections = append(sections, iniSection{name: line[1 : len(line)-1], kv: make(map[string]string)})
			continue
		}
		if len(sections) == 0 {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		sections[len(sections)-1].kv[strings.TrimSpace(key)] = strings.TrimSpace(val)
	}
	return sections, scanner.Err()
}

func stripQuotes(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
