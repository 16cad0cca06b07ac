// Package bus implements component E: the peripheral bus gate. It rejects
// actuator commits from non-primary controllers and keeps the ordered,
// in-memory commit list the simulated actuators consume.
package bus

import (
	"sync"
	"time"

	"github.com/Aurora-energy/R-EMS/internal/redundancy"
	"github.com/Aurora-energy/R-EMS/internal/remserr"
)

// CommandKind distinguishes the two peripheral command shapes in spec.md §3.
type CommandKind int

const (
	SetPoint CommandKind = iota
	EmergencyStop
)

// Command is a peripheral actuator command.
type Command struct {
	Kind     CommandKind
	TargetKW float64
}

// SystemController is the synthetic controller id EmergencyStop events are
// attributed to; it bypasses the active check.
const SystemController = "SYSTEM"

// Event is a committed peripheral bus entry.
type Event struct {
	ControllerID string
	GridID       string
	Tick         *uint64
	Command      Command
	CommittedAt  time.Time
}

// Gate is one grid's peripheral bus: it checks the supervisor's active
// controller before admitting a commit and keeps the ordered list of
// accepted events.
type Gate struct {
	gridID     string
	supervisor *redundancy.Supervisor

	mu     sync.Mutex
	events []Event

	// Breaker is optional commit-admission-control, adapted from
	// control_plane/scheduler/circuit_breaker.go (SPEC_FULL.md §3.3). Commit
	// records every admission and rejection on it; it never changes Commit's
	// return contract and does not throttle callers.
	Breaker *CommitBreaker
}

// New creates a Gate bound to supervisor for gridID.
func New(gridID string, supervisor *redundancy.Supervisor) *Gate {
	return &Gate{gridID: gridID, supervisor: supervisor}
}

// Commit checks supervisor.IsActive(controller); on false it returns
// ControllerNotPrimary and records nothing. On true it appends the event to
// the ordered list.
func (g *Gate) Commit(controller string, cmd Command) error {
	return g.commit(controller, cmd, nil)
}

// CommitWithTick is Commit, additionally recording the controller's tick
// counter at commit time.
func (g *Gate) CommitWithTick(controller string, cmd Command, tick uint64) error {
	return g.commit(controller, cmd, &tick)
}

func (g *Gate) commit(controller string, cmd Command, tick *uint64) error {
	if !g.supervisor.IsActive(controller) {
		if g.Breaker != nil {
			g.Breaker.RecordRejection()
		}
		return &remserr.ControllerNotPrimary{Controller: controller}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.events = append(g.events, Event{
		ControllerID: controller,
		GridID:       g.gridID,
		Tick:         tick,
		Command:      cmd,
		CommittedAt:  time.Now().UTC(),
	})
	if g.Breaker != nil {
		g.Breaker.RecordCommit()
	}
	return nil
}

// EmergencyStop appends an EmergencyStop event under SystemController and
// bypasses the active check entirely.
func (g *Gate) EmergencyStop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.events = append(g.events, Event{
		ControllerID: SystemController,
		GridID:       g.gridID,
		Command:      Command{Kind: EmergencyStop},
		CommittedAt:  time.Now().UTC(),
	})
}

// Events returns a snapshot copy of the committed event list, in commit
// order.
func (g *Gate) Events() []Event {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Event, len(g.events))
	copy(out, g.events)
	return out
}
