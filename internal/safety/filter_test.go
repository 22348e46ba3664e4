package safety

import (
	"errors"
	"path/filepath"
	"reflect"
	"testing"
)

func Test_Filter_IsAllowed_Cases(t *testing.T) {
	tests := []struct {
		name      string
		allowlist []string
		denylist  []string
		device    string
		want      bool
	}{
		{name: "empty lists admit everything", device: "nvme0n1", want: true},
		{name: "allowlist glob match", allowlist: []string{"sd*"}, device: "sdb", want: true},
		{name: "allowlist glob miss", allowlist: []string{"sd*"}, device: "nvme0n1", want: false},
		{name: "denylist wins over allowlist", allowlist: []string{"sd*"}, denylist: []string{"sda"}, device: "sda", want: false},
		{name: "denylist only", denylist: []string{"md*"}, device: "sdc", want: true},
		{name: "denylist glob", denylist: []string{"md*"}, device: "md1", want: false},
		{name: "character class", allowlist: []string{"sd[b-d]"}, device: "sdc", want: true},
		{name: "character class miss", allowlist: []string{"sd[b-d]"}, device: "sde", want: false},
		{name: "exact name", allowlist: []string{"sdq"}, device: "sdq", want: true},
		{name: "device path never matches name pattern", allowlist: []string{"sd*"}, device: "/dev/sdb", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewFilter(tt.allowlist, tt.denylist)
			if err != nil {
				t.Fatalf("NewFilter() error: %v", err)
			}
			if got := f.IsAllowed(tt.device); got != tt.want {
				t.Errorf("IsAllowed(%q) = %v, want %v", tt.device, got, tt.want)
			}
		})
	}
}

func Test_NewFilter_RejectsMalformedPattern(t *testing.T) {
	for _, lists := range [][2][]string{
		{{"sd["}, nil},
		{nil, {"[z-"}},
	} {
		_, err := NewFilter(lists[0], lists[1])
		if !errors.Is(err, filepath.ErrBadPattern) {
			t.Errorf("NewFilter(%v, %v) error = %v, want ErrBadPattern", lists[0], lists[1], err)
		}
	}
}

func Test_Filter_NilAdmitsEverything(t *testing.T) {
	var f *Filter
	if !f.IsAllowed("sda") {
		t.Error("nil filter rejected sda")
	}
}

func Test_Filter_Select(t *testing.T) {
	f, err := NewFilter([]string{"sd*"}, []string{"sda"})
	if err != nil {
		t.Fatal(err)
	}
	got := f.Select([]string{"sda", "sdb", "nvme0n1", "sdc", "loop0"})
	if want := []string{"sdb", "sdc"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Select() = %v, want %v", got, want)
	}
}

func Test_NewFilter_CopiesInput(t *testing.T) {
	allow := []string{"sd*"}
	f, err := NewFilter(allow, nil)
	if err != nil {
		t.Fatal(err)
	}
	allow[0] = "nvme*"
	if !f.IsAllowed("sdb") {
		t.Error("filter changed after caller mutated its allowlist")
	}
}
