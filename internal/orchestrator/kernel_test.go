package orchestrator

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Aurora-energy/R-EMS/internal/bus"
	"github.com/Aurora-energy/R-EMS/internal/config"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func twoControllerConfig(dir string) *config.AppConfig {
	return &config.AppConfig{
		Orchestrator: config.OrchestratorConfig{Mode: config.ModeSimulation},
		Grids: map[string]config.GridConfig{
			"grid-a": {
				ID: "grid-a",
				Snapshot: config.SnapshotConfig{
					Directory:  filepath.Join(dir, "grid-a"),
					RetainLast: 3,
				},
				Controllers: map[string]config.ControllerConfig{
					"primary": {
						Role:              config.RolePrimary,
						HeartbeatInterval: 0.01,
						WatchdogTimeout:   0.03,
						FailoverOrder:     0,
						Metadata:          map[string]string{"exit_after_ticks": "2"},
					},
					"secondary": {
						Role:              config.RoleSecondary,
						HeartbeatInterval: 0.01,
						WatchdogTimeout:   0.03,
						FailoverOrder:     1,
					},
				},
			},
		},
	}
}

// TestStandbyPromotesWhenPrimaryTaskExits verifies spec.md §8 scenario 1:
// killing the active controller's task causes the supervisor to promote the
// standby within one evaluation period.
func TestStandbyPromotesWhenPrimaryTaskExits(t *testing.T) {
	dir := t.TempDir()
	cfg := twoControllerConfig(dir)

	k, err := Start(context.Background(), cfg, testLogger())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer k.Shutdown()

	time.Sleep(20 * time.Millisecond)
	if err := k.KillController("grid-a", "primary"); err != nil {
		t.Fatalf("KillController: %v", err)
	}

	sup, _, _, ok := k.Grid("grid-a")
	if !ok {
		t.Fatalf("expected grid-a to be wired")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sup.Active() == "secondary" {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected secondary to be promoted after primary was killed, active=%q", sup.Active())
}

// TestWireGridEnablesRedisMirrorWhenConfigured verifies SPEC_FULL.md §3.1:
// enabling persistence.redis wires a RedisMirror into the grid's snapshot
// store. go-redis's client construction never dials eagerly, so this
// exercises the wiring without a live Redis server.
func TestWireGridEnablesRedisMirrorWhenConfigured(t *testing.T) {
	dir := t.TempDir()
	cfg := twoControllerConfig(dir)
	cfg.Persistence.Redis.Enabled = true
	cfg.Persistence.Redis.Addr = "127.0.0.1:0"

	k, err := Start(context.Background(), cfg, testLogger())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer k.Shutdown()

	g, ok := k.grids["grid-a"]
	if !ok {
		t.Fatalf("expected grid-a to be wired")
	}
	if g.mirror == nil {
		t.Fatalf("expected a RedisMirror to be wired when persistence.redis.enabled is true")
	}
	if g.store.Mirror == nil {
		t.Fatalf("expected store.Mirror to be set to the wired RedisMirror")
	}
}

// TestGateRejectsStandbyCommit verifies spec.md §8 scenario 2: a standby
// controller can never commit through the grid's gate while it isn't active.
func TestGateRejectsStandbyCommit(t *testing.T) {
	dir := t.TempDir()
	cfg := twoControllerConfig(dir)

	k, err := Start(context.Background(), cfg, testLogger())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer k.Shutdown()

	time.Sleep(20 * time.Millisecond)
	_, gate, _, ok := k.Grid("grid-a")
	if !ok {
		t.Fatalf("expected grid-a to be wired")
	}

	err = gate.Commit("secondary", bus.Command{Kind: bus.SetPoint, TargetKW: 1.0})
	if err == nil {
		t.Fatalf("expected standby commit to be rejected while primary is active")
	}
}

// TestEmergencyStopHaltsAllControllerTasks verifies spec.md §8 scenario 3:
// EmergencyStop records a system-level event and every controller task for
// that grid exits.
func TestEmergencyStopHaltsAllControllerTasks(t *testing.T) {
	dir := t.TempDir()
	cfg := twoControllerConfig(dir)

	k, err := Start(context.Background(), cfg, testLogger())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	_, gate, _, ok := k.Grid("grid-a")
	if !ok {
		t.Fatalf("expected grid-a to be wired")
	}

	if err := k.EmergencyStop("grid-a"); err != nil {
		t.Fatalf("EmergencyStop: %v", err)
	}

	events := gate.Events()
	found := false
	for _, e := range events {
		if e.Command.Kind == bus.EmergencyStop {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an EmergencyStop event on the gate, got %+v", events)
	}

	done := make(chan struct{})
	go func() {
		k.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected all grid tasks to exit within the shutdown timeout")
	}
}
