// CommitBreaker is adapted from control_plane/scheduler/circuit_breaker.go:
// same closed/half-open/open state machine and cooldown-then-probe recovery,
// repurposed from scheduler admission control to peripheral-bus commit
// admission control. See SPEC_FULL.md §3.3.
package bus

import (
	"sync"
	"time"
)

// BreakerState mirrors the teacher's CircuitState enum.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerHalfOpen
	BreakerOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "open"
	}
}

// CommitBreaker tracks the rejection rate of Gate.Commit calls and opens
// once a grid is consistently rejecting commits (e.g. during a prolonged
// failover). It does not change what Commit returns to the caller — it only
// exposes State() for the resilience harness's degradation tracker to
// consult.
type CommitBreaker struct {
	mu              sync.Mutex
	state           BreakerState
	window          int
	rejections      int
	attempts        int
	rejectThreshold float64
	cooldown        time.Duration
	openedAt        time.Time
}

// NewCommitBreaker creates a breaker that opens once rejectThreshold (0..1)
// of the last window commit attempts were rejections, and probes again
// after cooldown.
func NewCommitBreaker(window int, rejectThreshold float64, cooldown time.Duration) *CommitBreaker {
	return &CommitBreaker{
		window:          window,
		rejectThreshold: rejectThreshold,
		cooldown:        cooldown,
	}
}

// RecordCommit notes a successful admission.
func (b *CommitBreaker) RecordCommit() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(false)
}

// RecordRejection notes a ControllerNotPrimary rejection.
func (b *CommitBreaker) RecordRejection() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(true)
}

func (b *CommitBreaker) record(rejected bool) {
	if b.state == BreakerOpen && time.Since(b.openedAt) > b.cooldown {
		b.state = BreakerHalfOpen
		b.attempts, b.rejections = 0, 0
	}

	b.attempts++
	if rejected {
		b.rejections++
	}
	if b.attempts < b.window {
		return
	}

	rate := float64(b.rejections) / float64(b.attempts)
	if rate >= b.rejectThreshold {
		b.state = BreakerOpen
		b.openedAt = time.Now()
	} else if b.state == BreakerHalfOpen {
		b.state = BreakerClosed
	}
	b.attempts, b.rejections = 0, 0
}

// State returns the current breaker state.
func (b *CommitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
