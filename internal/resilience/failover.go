// FailoverStress drives repeated primary-loss cycles against a redundancy
// supervisor to verify promotion occurs under sustained fault injection.
// Grounded on original_source/crates/r-ems-resilience/src/failover.rs.
package resilience

import (
	"fmt"
	"time"

	"github.com/Aurora-energy/R-EMS/internal/metrics"
	"github.com/Aurora-energy/R-EMS/internal/redundancy"
)

// FailoverResult is one stress iteration's outcome.
type FailoverResult struct {
	GridID    string
	Failed    string
	Promoted  string
	Duration  time.Duration
	Reason    redundancy.FailoverReason
}

// FailoverStress runs repeated heartbeat-loss-then-promote cycles.
type FailoverStress struct {
	gridID     string
	supervisor *redundancy.Supervisor
	watchdog   time.Duration
	grace      time.Duration
}

// NewFailoverStress creates a runner for gridID. watchdog should match the
// controllers' configured watchdog_timeout; grace is additional slack added
// before evaluating, per spec.md §8 scenario 6.
func NewFailoverStress(gridID string, sup *redundancy.Supervisor, watchdog, grace time.Duration) *FailoverStress {
	return &FailoverStress{gridID: gridID, supervisor: sup, watchdog: watchdog, grace: grace}
}

// RunIteration heartbeats the current active controller, then sleeps
// watchdog+grace so its heartbeat ages past the watchdog timeout, calls
// Evaluate, and asserts a promotion occurred.
func (f *FailoverStress) RunIteration() (*FailoverResult, error) {
	failed := f.supervisor.Active()
	if failed == "" {
		return nil, fmt.Errorf("failover stress: no active controller at iteration start")
	}
	f.supervisor.Heartbeat(failed, time.Now())

	start := time.Now()
	time.Sleep(f.watchdog + f.grace)

	ev := f.supervisor.Evaluate(time.Now())
	if ev == nil {
		metrics.ResilienceFailoversTotal.WithLabelValues(f.gridID, failed, "").Inc()
		return nil, fmt.Errorf("failover stress: expected a promotion, got none")
	}

	duration := time.Since(start)
	metrics.ResilienceFailoversTotal.WithLabelValues(f.gridID, failed, ev.ActivatedController).Inc()
	metrics.ResilienceFailoverLatencySeconds.WithLabelValues(f.gridID, failed, ev.ActivatedController).Observe(duration.Seconds())

	return &FailoverResult{
		GridID:   f.gridID,
		Failed:   failed,
		Promoted: ev.ActivatedController,
		Duration: duration,
		Reason:   ev.Reason,
	}, nil
}
