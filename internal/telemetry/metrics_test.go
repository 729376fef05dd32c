package telemetry

import "testing"

func TestAll_ReturnsEveryRegisteredCollector(t *testing.T) {
	collectors := All()
	if len(collectors) == 0 {
		t.Fatal("expected at least one collector")
	}
	for i, c := range collectors {
		if c == nil {
			t.Errorf("collector at index %d is nil", i)
		}
	}
}

func TestNewMetricsRegistry_RegistersWithoutPanicking(t *testing.T) {
	reg := NewMetricsRegistry(All()...)
	if reg == nil {
		t.Fatal("expected non-nil registry")
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	if len(families) == 0 {
		t.Error("expected at least one metric family after registration")
	}
}

func TestNewMetricsRegistry_NoExtraCollectorsStillWorks(t *testing.T) {
	reg := NewMetricsRegistry()
	if _, err := reg.Gather(); err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
}
