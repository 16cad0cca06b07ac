package controller

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Aurora-energy/R-EMS/internal/bus"
	"github.com/Aurora-energy/R-EMS/internal/config"
	"github.com/Aurora-energy/R-EMS/internal/eventlog"
	"github.com/Aurora-energy/R-EMS/internal/redundancy"
	"github.com/Aurora-energy/R-EMS/internal/simulation"
	"github.com/Aurora-energy/R-EMS/internal/snapshot"
)

// TestRunWithAutoReplayDoesNotAbortTheTickLoop verifies spec.md §4.F step 3:
// a controller configured with auto_replay still reaches its tick loop and
// exits cleanly via the exit_after_ticks test hook.
func TestRunWithAutoReplayDoesNotAbortTheTickLoop(t *testing.T) {
	dir := t.TempDir()
	sup := redundancy.New("grid-a")
	store := snapshot.New(filepath.Join(dir, "snapshots"), 3)
	evlog, err := eventlog.Open(filepath.Join(dir, "events.log"), "grid-a")
	if err != nil {
		t.Fatalf("eventlog.Open: %v", err)
	}
	defer evlog.Close()

	if _, _, err := evlog.Append([]byte(`{"kind":"controller_tick","grid_id":"grid-a","controller_id":"primary"}`)); err != nil {
		t.Fatalf("seed Append: %v", err)
	}

	gate := bus.New("grid-a", sup)
	sim := simulation.NewRandomized(1)

	rt := &Runtime{
		GridID:       "grid-a",
		ControllerID: "primary",
		Cfg: config.ControllerConfig{
			Role:              config.RolePrimary,
			HeartbeatInterval: 0.001,
			WatchdogTimeout:   0.01,
			Metadata:          map[string]string{"exit_after_ticks": "1"},
		},
		SnapshotExt: "json",
		AutoReplay:  true,
		Supervisor:  sup,
		Store:       store,
		EventLog:    evlog,
		Gate:        gate,
		Sim:         sim,
		Logger:      zerolog.Nop(),
	}

	rt.Run(context.Background())

	if rt.tick != 1 {
		t.Fatalf("expected exactly 1 tick, got %d", rt.tick)
	}
}
