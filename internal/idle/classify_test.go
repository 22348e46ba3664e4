package idle

import (
	"testing"

	"github.com/jamesprial/unraid-spindown/internal/diskstats"
)

func Test_Classify_Cases(t *testing.T) {
	base := diskstats.DeviceCounters{ReadsCompleted: 10, SectorsRead: 80, WritesCompleted: 5, SectorsWritten: 40}

	tests := []struct {
		name string
		prev *diskstats.DeviceCounters
		curr diskstats.DeviceCounters
		want Activity
	}{
		{name: "first observation", prev: nil, curr: base, want: ActivityActive},
		{name: "no change", prev: &base, curr: base, want: ActivityIdle},
		{
			name: "reads increased",
			prev: &base,
			curr: diskstats.DeviceCounters{ReadsCompleted: 11, SectorsRead: 88, WritesCompleted: 5, SectorsWritten: 40},
			want: ActivityActive,
		},
		{
			name: "only sectors written increased",
			prev: &base,
			curr: diskstats.DeviceCounters{ReadsCompleted: 10, SectorsRead: 80, WritesCompleted: 5, SectorsWritten: 41},
			want: ActivityActive,
		},
		{
			name: "one counter decreased",
			prev: &base,
			curr: diskstats.DeviceCounters{ReadsCompleted: 9, SectorsRead: 80, WritesCompleted: 5, SectorsWritten: 40},
			want: ActivityUnknown,
		},
		{
			name: "decrease wins over increase",
			prev: &base,
			curr: diskstats.DeviceCounters{ReadsCompleted: 100, SectorsRead: 800, WritesCompleted: 0, SectorsWritten: 0},
			want: ActivityUnknown,
		},
		{
			name: "all zero after re-enumeration",
			prev: &base,
			curr: diskstats.DeviceCounters{},
			want: ActivityUnknown,
		},
		{
			name: "name is ignored",
			prev: &base,
			curr: diskstats.DeviceCounters{Name: "sdz", ReadsCompleted: 10, SectorsRead: 80, WritesCompleted: 5, SectorsWritten: 40},
			want: ActivityIdle,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.prev, tt.curr); got != tt.want {
				t.Errorf("Classify() = %s, want %s", got, tt.want)
			}
		})
	}
}

func Test_Lifecycle_RoundTrip(t *testing.T) {
	for _, lc := range []Lifecycle{LifecycleActive, LifecycleIdle, LifecycleSleeping} {
		got, ok := ParseLifecycle(lc.String())
		if !ok || got != lc {
			t.Errorf("ParseLifecycle(%q) = %v, %v", lc.String(), got, ok)
		}
	}
	if got, ok := ParseLifecycle("parked"); ok || got != LifecycleActive {
		t.Errorf("ParseLifecycle(parked) = %v, %v, want active, false", got, ok)
	}
}
