package bus

import (
	"errors"
	"testing"

	"github.com/Aurora-energy/R-EMS/internal/config"
	"github.com/Aurora-energy/R-EMS/internal/redundancy"
	"github.com/Aurora-energy/R-EMS/internal/remserr"
)

func TestCommitRejectsNonPrimary(t *testing.T) {
	sup := redundancy.New("grid-b")
	sup.Register("ctrl-b-primary", config.ControllerConfig{Role: config.RolePrimary, HeartbeatInterval: 1, WatchdogTimeout: 1})
	sup.Register("ctrl-b-secondary", config.ControllerConfig{Role: config.RoleSecondary, HeartbeatInterval: 1, WatchdogTimeout: 1, FailoverOrder: 1})

	g := New("grid-b", sup)
	err := g.Commit("ctrl-b-secondary", Command{Kind: SetPoint, TargetKW: 10.0})

	var notPrimary *remserr.ControllerNotPrimary
	if !errors.As(err, &notPrimary) {
		t.Fatalf("expected ControllerNotPrimary, got %v", err)
	}
	if notPrimary.Controller != "ctrl-b-secondary" {
		t.Fatalf("expected controller field ctrl-b-secondary, got %q", notPrimary.Controller)
	}
	if len(g.Events()) != 0 {
		t.Fatalf("expected no events recorded on rejection")
	}
}

func TestCommitAcceptsActiveController(t *testing.T) {
	sup := redundancy.New("grid-a")
	sup.Register("primary", config.ControllerConfig{Role: config.RolePrimary, HeartbeatInterval: 1, WatchdogTimeout: 1})

	g := New("grid-a", sup)
	if err := g.Commit("primary", Command{Kind: SetPoint, TargetKW: 5.0}); err != nil {
		t.Fatalf("expected commit to succeed, got %v", err)
	}
	events := g.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].ControllerID != "primary" {
		t.Fatalf("expected event attributed to primary, got %q", events[0].ControllerID)
	}
}

func TestEmergencyStopBypassesActiveCheck(t *testing.T) {
	sup := redundancy.New("grid-a")
	g := New("grid-a", sup) // no controllers registered; nothing is active
	g.EmergencyStop()

	events := g.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].ControllerID != SystemController {
		t.Fatalf("expected SYSTEM controller id, got %q", events[0].ControllerID)
	}
	if events[0].Command.Kind != EmergencyStop {
		t.Fatalf("expected EmergencyStop command kind")
	}
}
