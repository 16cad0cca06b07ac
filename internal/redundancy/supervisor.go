// Package redundancy implements component D: the per-grid redundancy
// supervisor. It tracks heartbeats, evaluates watchdog timeouts, and
// performs priority-ordered promotion of the active controller.
//
// Grounded on control_plane/coordination/leader.go's election state machine
// (mutex-guarded state, promote-on-timeout, callback on transition) and on
// original_source/crates/r-ems-redundancy's exact promotion-ordering and
// heartbeat-timing semantics, which spec.md §4.D carries forward unchanged.
package redundancy

import (
	"sync"
	"time"

	"github.com/Aurora-energy/R-EMS/internal/config"
	"github.com/Aurora-energy/R-EMS/internal/metrics"
)

// FailoverReason is why a promotion happened.
type FailoverReason string

const (
	ReasonStartup          FailoverReason = "Startup"
	ReasonManual           FailoverReason = "Manual"
	ReasonHeartbeatTimeout FailoverReason = "HeartbeatTimeout"
	ReasonMissing          FailoverReason = "Missing"
)

// HeartbeatKind classifies a heartbeat observation.
type HeartbeatKind int

const (
	OnTime HeartbeatKind = iota
	Late
	Missing
)

// HeartbeatStatus is the result of recording a heartbeat or evaluating the
// active controller.
type HeartbeatStatus struct {
	Kind  HeartbeatKind
	Delta time.Duration
}

// FailoverEvent records a promotion.
type FailoverEvent struct {
	GridID              string
	ActivatedController string
	TriggeredAt         time.Time
	Reason              FailoverReason
}

type controllerState struct {
	cfg           config.ControllerConfig
	lastHeartbeat *time.Time
	isActive      bool
	failureCount  uint32
	registeredAt  int // monotonically increasing registration index, for stable tie-breaks
}

func (c *controllerState) rolePriority() int {
	p, err := c.cfg.Role.Priority()
	if err != nil {
		return 99
	}
	return p
}

// less implements spec.md §4.D's priority_cmp: (role_priority, failover_order),
// then registration order as the final, stable tie-break.
func less(a, b *controllerState) bool {
	ap, bp := a.rolePriority(), b.rolePriority()
	if ap != bp {
		return ap < bp
	}
	if a.cfg.FailoverOrder != b.cfg.FailoverOrder {
		return a.cfg.FailoverOrder < b.cfg.FailoverOrder
	}
	return a.registeredAt < b.registeredAt
}

// Supervisor is a single grid's redundancy state machine. All state is
// protected by one critical section, per spec.md §5's ordering guarantees.
type Supervisor struct {
	gridID string

	mu          sync.Mutex
	active      string // "" means no active controller
	controllers map[string]*controllerState
	nextReg     int
}

// New creates a Supervisor for gridID with no registered controllers.
func New(gridID string) *Supervisor {
	return &Supervisor{
		gridID:      gridID,
		controllers: make(map[string]*controllerState),
	}
}

// Register inserts a controller if absent, or updates its config in place if
// already registered (spec.md §9: there is no separate "update" operation).
// It elects the controller as active if there currently is none, or preempts
// the current active only if the new controller strictly outranks it.
func (s *Supervisor) Register(id string, cfg config.ControllerConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs, exists := s.controllers[id]
	if !exists {
		cs = &controllerState{cfg: cfg, registeredAt: s.nextReg}
		s.nextReg++
		s.controllers[id] = cs
	} else {
		cs.cfg = cfg
	}

	if s.active == "" {
		s.promoteLocked(id, ReasonStartup)
		return
	}
	if active := s.controllers[s.active]; active != nil && less(cs, active) {
		s.promoteLocked(id, ReasonManual)
	}
}

// Unregister removes a controller from the candidate pool. This is the
// explicit unregister operation spec.md §9 recommends adding so standby
// promotion never cycles back to a permanently dead controller; the
// original implementation relied only on re-registration in place.
func (s *Supervisor) Unregister(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.controllers, id)
	if s.active == id {
		s.active = ""
		metrics.ControllerActive.WithLabelValues(s.gridID, id).Set(0)
	}
}

// Heartbeat records a liveness signal for id and classifies it against that
// controller's own interval: Late when (now - last) > interval + 50ms,
// unclassified (OnTime) otherwise at record time — Missing is only produced
// by Evaluate, which compares against watchdog_timeout rather than interval.
func (s *Supervisor) Heartbeat(id string, now time.Time) HeartbeatStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs, ok := s.controllers[id]
	if !ok {
		return HeartbeatStatus{Kind: Missing}
	}

	var status HeartbeatStatus
	if cs.lastHeartbeat != nil {
		delta := now.Sub(*cs.lastHeartbeat)
		interval := time.Duration(cs.cfg.HeartbeatInterval * float64(time.Second))
		if delta > interval+50*time.Millisecond {
			status = HeartbeatStatus{Kind: Late, Delta: delta}
		} else {
			status = HeartbeatStatus{Kind: OnTime, Delta: delta}
		}
	} else {
		status = HeartbeatStatus{Kind: OnTime}
	}

	t := now
	cs.lastHeartbeat = &t
	return status
}

// IsActive is a pure lookup.
func (s *Supervisor) IsActive(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active == id
}

// Active returns the current active controller id, or "" if none.
func (s *Supervisor) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Evaluate checks the current active controller's watchdog and, if it has
// gone Missing, demotes it and promotes the next-ranked candidate. If there
// is no active controller at all, it attempts a Startup promotion. Returns
// the FailoverEvent produced, or nil if nothing changed.
func (s *Supervisor) Evaluate(now time.Time) *FailoverEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == "" {
		return s.promoteNextLocked(ReasonStartup, "")
	}

	cs, ok := s.controllers[s.active]
	if !ok {
		return s.promoteNextLocked(ReasonStartup, "")
	}

	watchdog := time.Duration(cs.cfg.WatchdogTimeout * float64(time.Second))
	reason := ReasonHeartbeatTimeout
	var delta time.Duration
	if cs.lastHeartbeat != nil {
		delta = now.Sub(*cs.lastHeartbeat)
	} else {
		// Never heartbeated at all: this is a controller going missing, not
		// one that heartbeated on time and then stopped.
		delta = watchdog + 1
		reason = ReasonMissing
	}
	if delta <= watchdog {
		return nil
	}

	cs.failureCount++
	cs.isActive = false
	failed := s.active
	s.active = ""
	metrics.ControllerActive.WithLabelValues(s.gridID, failed).Set(0)

	return s.promoteNextLocked(reason, failed)
}

// promoteNextLocked picks the best-ranked candidate among non-active
// controllers not equal to exclude, and promotes it. Must be called with
// s.mu held.
func (s *Supervisor) promoteNextLocked(reason FailoverReason, exclude string) *FailoverEvent {
	var best string
	var bestState *controllerState
	for id, cs := range s.controllers {
		if id == exclude || cs.isActive {
			continue
		}
		if bestState == nil || less(cs, bestState) {
			best = id
			bestState = cs
		}
	}
	if bestState == nil {
		return nil
	}
	s.promoteLocked(best, reason)
	return &FailoverEvent{
		GridID:              s.gridID,
		ActivatedController: best,
		TriggeredAt:         time.Now().UTC(),
		Reason:              reason,
	}
}

// promoteLocked sets id as the new active controller and clears the
// previous one. Must be called with s.mu held.
func (s *Supervisor) promoteLocked(id string, reason FailoverReason) {
	if s.active != "" {
		if prev := s.controllers[s.active]; prev != nil {
			prev.isActive = false
		}
		metrics.ControllerActive.WithLabelValues(s.gridID, s.active).Set(0)
	}
	s.active = id
	if cs := s.controllers[id]; cs != nil {
		cs.isActive = true
	}
	metrics.ControllerActive.WithLabelValues(s.gridID, id).Set(1)
	metrics.FailoversTotal.WithLabelValues(s.gridID, id, string(reason)).Inc()
}

// FailureCount returns the recorded watchdog-timeout count for id. A
// controller whose watchdog fires repeatedly is counted but never
// auto-excluded from future promotion, per spec.md §4.D's determinism note.
func (s *Supervisor) FailureCount(id string) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cs, ok := s.controllers[id]; ok {
		return cs.failureCount
	}
	return 0
}
