package simulation

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestRandomizedIsDeterministicGivenSeedAndTick(t *testing.T) {
	e1 := NewRandomized(42)
	e2 := NewRandomized(42)

	f1 := e1.NextFrame("grid-a", "ctrl-a", 7)
	f2 := e2.NextFrame("grid-a", "ctrl-a", 7)
	if f1 != f2 {
		t.Fatalf("expected identical frames for the same (seed, tick), got %+v vs %+v", f1, f2)
	}
	if !f1.Synthetic {
		t.Fatalf("expected randomized frames to be marked synthetic")
	}
}

func TestScenarioReplaysInARing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scenario.json")
	values := []float64{1, 2, 3}
	b, _ := json.Marshal(values)
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	e, err := NewScenario(path)
	if err != nil {
		t.Fatalf("NewScenario: %v", err)
	}

	var got []float64
	for i := 0; i < 7; i++ {
		got = append(got, e.NextFrame("grid-a", "ctrl-a", uint64(i)).ValueKW)
	}
	want := []float64{1, 2, 3, 1, 2, 3, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ring replay mismatch at %d: got %v want %v", i, got, want)
		}
	}
}

func TestHybridAddsNoiseAndMarksSynthetic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scenario.json")
	b, _ := json.Marshal([]float64{10})
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	e, err := NewHybrid(path, 1, 0.01)
	if err != nil {
		t.Fatalf("NewHybrid: %v", err)
	}
	f := e.NextFrame("grid-a", "ctrl-a", 0)
	if !f.Synthetic {
		t.Fatalf("expected hybrid frames to be marked synthetic")
	}
}

func TestInjectFaultIsConsumedOnce(t *testing.T) {
	e := NewRandomized(1)
	e.InjectFault("ctrl-a", FaultCorruptValue)
	if got := e.ApplyFaults("ctrl-a"); got != FaultCorruptValue {
		t.Fatalf("expected FaultCorruptValue, got %v", got)
	}
	if got := e.ApplyFaults("ctrl-a"); got != FaultNone {
		t.Fatalf("expected fault to be consumed (FaultNone), got %v", got)
	}
}
