// Package resilience implements component I: the chaos engine, failover
// stress runner, degradation tracker, and self-healing supervisor.
//
// The chaos engine is grounded on original_source/crates/r-ems-resilience's
// chaos.rs (seeded PRNG, ordered action list with jitter, side effects
// delegated to the kernel) and paced using golang.org/x/time/rate, the same
// library control_plane/scheduler/limiter.go uses for its token-bucket
// admission control.
package resilience

import (
	"context"
	"math/rand"
	"time"

	"golang.org/x/time/rate"

	"github.com/Aurora-energy/R-EMS/internal/metrics"
	"github.com/Aurora-energy/R-EMS/internal/simulation"
)

// ActionKind is a declarative fault injection request.
type ActionKind string

const (
	ActionKillController    ActionKind = "kill_controller"
	ActionNetworkPartition  ActionKind = "network_partition"
	ActionDropMessages      ActionKind = "drop_messages"
	ActionCorruptSnapshot   ActionKind = "corrupt_snapshot"
)

// Action is one scheduled chaos action.
type Action struct {
	Kind       ActionKind
	GridID     string
	Controller string
	Delay      time.Duration // delay before this action fires, relative to the previous one
}

// Record is emitted for each executed action.
type Record struct {
	Action    Action
	ExecutedAt time.Time
}

// KernelFaultInjector is the subset of orchestrator.Kernel the chaos engine
// drives; side effects are always delegated to it rather than reimplemented
// here.
type KernelFaultInjector interface {
	KillController(gridID, controllerID string) error
	EmergencyStop(gridID string) error
}

// Chaos executes an ordered list of actions against a kernel, each after its
// configured delay plus a scenario-wide jitter drawn from a seeded PRNG.
type Chaos struct {
	kernel  KernelFaultInjector
	sim     *simulation.Engine
	rng     *rand.Rand
	jitter  time.Duration
	limiter *rate.Limiter
}

// NewChaos creates a Chaos engine seeded deterministically, with actions
// additionally jittered by up to maxJitter and paced by limiter (burst 1,
// so actions never fire faster than the configured rate even if delays are
// small). sim is the running simulation engine its drop_messages/
// corrupt_snapshot actions inject faults against; it may be nil if those
// action kinds are never used.
func NewChaos(kernel KernelFaultInjector, sim *simulation.Engine, seed int64, maxJitter time.Duration) *Chaos {
	return &Chaos{
		kernel:  kernel,
		sim:     sim,
		rng:     rand.New(rand.NewSource(seed)),
		jitter:  maxJitter,
		limiter: rate.NewLimiter(rate.Every(10*time.Millisecond), 1),
	}
}

// Run executes actions in order, returning the record stream. It stops early
// if ctx is cancelled.
func (c *Chaos) Run(ctx context.Context, actions []Action) ([]Record, error) {
	records := make([]Record, 0, len(actions))
	for _, a := range actions {
		wait := a.Delay
		if c.jitter > 0 {
			wait += time.Duration(c.rng.Int63n(int64(c.jitter)))
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return records, ctx.Err()
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return records, err
		}

		if err := c.execute(a); err != nil {
			return records, err
		}
		metrics.ResilienceChaosEventsTotal.WithLabelValues(string(a.Kind)).Inc()
		records = append(records, Record{Action: a, ExecutedAt: time.Now().UTC()})
	}
	return records, nil
}

func (c *Chaos) execute(a Action) error {
	switch a.Kind {
	case ActionKillController:
		return c.kernel.KillController(a.GridID, a.Controller)
	case ActionNetworkPartition:
		// Modeled as killing the affected controller's task: from the
		// supervisor's perspective a partitioned controller is
		// indistinguishable from a dead one until its watchdog fires, which
		// is exactly the behavior spec.md §4.I exercises.
		return c.kernel.KillController(a.GridID, a.Controller)
	case ActionDropMessages:
		if c.sim != nil {
			c.sim.InjectFault(a.Controller, simulation.FaultDropMessage)
		}
		return nil
	case ActionCorruptSnapshot:
		if c.sim != nil {
			c.sim.InjectFault(a.Controller, simulation.FaultCorruptValue)
		}
		return nil
	default:
		return nil
	}
}
