// DegradationTracker classifies grid health by active-controller count
// against two thresholds. Grounded on control_plane/resilience/degraded_mode.go's
// RWMutex-guarded boolean-flag tracker, generalized from availability flags
// to the threshold-over-a-count model spec.md §4.I names.
package resilience

import (
	"sync"

	"github.com/Aurora-energy/R-EMS/internal/metrics"
)

// Level is a grid's degradation level.
type Level int

const (
	Healthy Level = iota
	Degraded
	Critical
)

func (l Level) String() string {
	switch l {
	case Healthy:
		return "healthy"
	case Degraded:
		return "degraded"
	default:
		return "critical"
	}
}

// DegradationTracker computes a Level from the current active-controller
// count and emits a transition counter whenever the level changes.
type DegradationTracker struct {
	mu                sync.RWMutex
	degradedThreshold int
	criticalThreshold int
	current           Level
}

// NewDegradationTracker creates a tracker. Healthy is active-count >=
// degradedThreshold > Degraded is active-count >= criticalThreshold >
// Critical, per spec.md §4.I.
func NewDegradationTracker(degradedThreshold, criticalThreshold int) *DegradationTracker {
	return &DegradationTracker{
		degradedThreshold: degradedThreshold,
		criticalThreshold: criticalThreshold,
		current:           Healthy,
	}
}

// Observe recomputes the level from activeCount and emits a transition
// metric if it changed. Returns the new level.
func (d *DegradationTracker) Observe(activeCount int) Level {
	d.mu.Lock()
	defer d.mu.Unlock()

	var next Level
	switch {
	case activeCount >= d.degradedThreshold:
		next = Healthy
	case activeCount >= d.criticalThreshold:
		next = Degraded
	default:
		next = Critical
	}

	if next != d.current {
		d.current = next
		metrics.ResilienceDegradationsTotal.WithLabelValues(next.String()).Inc()
	}
	return next
}

// Current returns the last-observed level without recomputing it.
func (d *DegradationTracker) Current() Level {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.current
}
