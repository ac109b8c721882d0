package metric

import "testing"

func TestHopCountDefaults(t *testing.T) {
	m, ok := Lookup(HopCount)
	if !ok {
		t.Fatal("expected hop-count metric to be registered")
	}
	if m.LinkCost() != 1 {
		t.Fatalf("hop-count link cost = %d, want 1", m.LinkCost())
	}
	if m.Max() != MaxHopCount {
		t.Fatalf("hop-count max = %d, want %d", m.Max(), MaxHopCount)
	}
	if got := m.Update(5); got != 6 {
		t.Fatalf("hop-count update(5) = %d, want 6", got)
	}
}

func TestLookupUnknownType(t *testing.T) {
	if _, ok := Lookup(Type(200)); ok {
		t.Fatal("expected unknown metric type to be absent")
	}
}

func TestWithinCeiling(t *testing.T) {
	m, _ := Lookup(HopCount)
	if !WithinCeiling(m, MaxHopCount-1) {
		t.Fatal("expected metric one below max to pass the ceiling check")
	}
	if WithinCeiling(m, MaxHopCount) {
		t.Fatal("expected metric at max to fail the ceiling check")
	}
}

func TestRegisterCustomMetric(t *testing.T) {
	custom := Type(99)
	Register(custom, hopCountMetric{})
	defer delete(registry, custom)

	if _, ok := Lookup(custom); !ok {
		t.Fatal("expected custom metric type to be registered")
	}
}
