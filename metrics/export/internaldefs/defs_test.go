package internaldefs

import (
	"strings"
	"testing"

	"github.com/MrEthical07/authcore"
)

func TestDefsCoverEveryMetric(t *testing.T) {
	seen := map[authcore.MetricID]string{}
	for _, def := range CounterDefs {
		if !strings.HasPrefix(def.Name, "authcore_") || !strings.HasSuffix(def.Name, "_total") {
			t.Fatalf("unexpected counter name %q", def.Name)
		}
		if prev, ok := seen[def.ID]; ok {
			t.Fatalf("metric %d defined twice: %s and %s", def.ID, prev, def.Name)
		}
		seen[def.ID] = def.Name
	}
	for _, def := range HistogramDefs {
		if !strings.HasSuffix(def.Name, "_seconds") {
			t.Fatalf("unexpected histogram name %q", def.Name)
		}
		if prev, ok := seen[def.ID]; ok {
			t.Fatalf("metric %d defined twice: %s and %s", def.ID, prev, def.Name)
		}
		seen[def.ID] = def.Name
	}

	for id := authcore.MetricSignupSuccess; id <= authcore.MetricValidateLatency; id++ {
		if _, ok := seen[id]; !ok {
			t.Fatalf("metric %d has no export definition", id)
		}
	}
	if len(HistogramBounds) != len(HistogramBoundSuffix) {
		t.Fatal("bounds and suffixes differ in length")
	}
}

func TestCumulativeBuckets(t *testing.T) {
	got := CumulativeBuckets(NormalizeBuckets([]uint64{1, 2, 3}))
	want := [8]uint64{1, 3, 6, 6, 6, 6, 6, 6}
	if got != want {
		t.Fatalf("CumulativeBuckets = %v, want %v", got, want)
	}
}
