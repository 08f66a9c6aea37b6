package internaldefs

import (
	"strings"
	"testing"

	"github.com/edgefirst-dev/jwt"
)

func TestDefinitionsAreUniqueAndPrefixed(t *testing.T) {
	names := map[string]bool{AuditDroppedName: true}
	ids := map[jwt.MetricID]bool{}
	for _, def := range CounterDefs {
		if !strings.HasPrefix(def.Name, "jwt_") || !strings.HasSuffix(def.Name, "_total") {
			t.Fatalf("counter %q is not jwt_*_total", def.Name)
		}
		if names[def.Name] || ids[def.ID] {
			t.Fatalf("duplicate counter %q", def.Name)
		}
		names[def.Name], ids[def.ID] = true, true
	}
	for _, def := range HistogramDefs {
		if !strings.HasSuffix(def.Name, "_seconds") || names[def.Name] || ids[def.ID] {
			t.Fatalf("bad histogram %q", def.Name)
		}
		names[def.Name], ids[def.ID] = true, true
	}
	for _, def := range PurposeCounterDefs {
		if !strings.HasPrefix(def.Name, "jwt_purpose_") || !strings.HasSuffix(def.Name, "_total") || names[def.Name] {
			t.Fatalf("bad purpose counter %q", def.Name)
		}
		names[def.Name] = true
	}
}

func TestPurposeCounterDefsReadDistinctFields(t *testing.T) {
	c := jwt.PurposeCounters{Generated: 1, Rotations: 2, Superseded: 3, Races: 4}
	seen := map[uint64]bool{}
	for _, def := range PurposeCounterDefs {
		v := def.Value(c)
		if seen[v] {
			t.Fatalf("%s reads a field already exported", def.Name)
		}
		seen[v] = true
	}
	if len(seen) != 4 {
		t.Fatalf("purpose fields exported: %d", len(seen))
	}
}

func TestPurposesSortedAndAuditHelpers(t *testing.T) {
	s := jwt.MetricsSnapshot{
		Purposes:     map[string]jwt.PurposeCounters{"signing": {}, "encryption": {}},
		AuditDropped: map[string]uint64{"key": 2, "token": 5},
	}
	if got := Purposes(s); len(got) != 2 || got[0] != "encryption" || got[1] != "signing" {
		t.Fatalf("Purposes = %v", got)
	}
	if TotalAuditDropped(s) != 7 {
		t.Fatalf("TotalAuditDropped = %d", TotalAuditDropped(s))
	}
	if got := AuditCategories(); len(got) != 4 || got[0] != "key" || got[3] != "other" {
		t.Fatalf("AuditCategories = %v", got)
	}
}

func TestCounterDefsCoverSnapshot(t *testing.T) {
	m := jwt.NewMetrics(jwt.MetricsConfig{Enabled: true})
	snap := m.Snapshot()
	if len(snap.Counters) != len(CounterDefs) {
		t.Fatalf("snapshot has %d counters, definitions %d", len(snap.Counters), len(CounterDefs))
	}
	for _, def := range CounterDefs {
		if _, ok := snap.Counters[def.ID]; !ok {
			t.Fatalf("%s missing from snapshot", def.Name)
		}
	}
}

func TestBuckets(t *testing.T) {
	if len(HistogramBounds) != 8 || len(HistogramBoundSuffix) != 8 || len(HistogramUpperBounds) != 7 {
		t.Fatal("bucket tables disagree")
	}
	got := CumulativeBuckets(NormalizeBuckets([]uint64{1, 2, 3}))
	want := [8]uint64{1, 3, 6, 6, 6, 6, 6, 6}
	if got != want {
		t.Fatalf("CumulativeBuckets = %v, want %v", got, want)
	}
}
