package resilience

import "testing"

func TestDegradationTransitionsOnThresholds(t *testing.T) {
	d := NewDegradationTracker(3, 1)

	if got := d.Observe(3); got != Healthy {
		t.Fatalf("expected Healthy at count 3, got %v", got)
	}
	if got := d.Observe(2); got != Degraded {
		t.Fatalf("expected Degraded at count 2, got %v", got)
	}
	if got := d.Observe(0); got != Critical {
		t.Fatalf("expected Critical at count 0, got %v", got)
	}
	if got := d.Current(); got != Critical {
		t.Fatalf("expected Current() to reflect last observation, got %v", got)
	}
}

func TestDegradationNoRedundantTransition(t *testing.T) {
	d := NewDegradationTracker(3, 1)
	d.Observe(3)
	if got := d.Observe(5); got != Healthy {
		t.Fatalf("expected to stay Healthy at count 5, got %v", got)
	}
}
