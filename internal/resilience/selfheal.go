// SelfHealing retries a failed restart closure with exponential backoff and
// bounded jitter, and on final failure picks a reallocation target from a
// candidate list using a seeded PRNG. Grounded on
// control_plane/resilience/reconciliation.go's retry-with-backoff idiom and
// original_source/crates/r-ems-resilience/src/self_healing.rs's exact
// backoff formula and reallocation selection.
package resilience

import (
	"context"
	"math/rand"
	"time"

	"github.com/Aurora-energy/R-EMS/internal/metrics"
)

// RestartFunc attempts to restart a controller; a nil error means success.
type RestartFunc func(ctx context.Context) error

// SelfHealing retries RestartFunc with exponential backoff.
type SelfHealing struct {
	rng         *rand.Rand
	maxAttempts int
	base        time.Duration
	maxJitter   time.Duration
}

// NewSelfHealing creates a supervisor retrying up to maxAttempts times, with
// backoff base*2^(n-1) plus up to maxJitter of additional random delay,
// seeded deterministically for reproducible tests.
func NewSelfHealing(seed int64, maxAttempts int, base, maxJitter time.Duration) *SelfHealing {
	return &SelfHealing{
		rng:         rand.New(rand.NewSource(seed)),
		maxAttempts: maxAttempts,
		base:        base,
		maxJitter:   maxJitter,
	}
}

// Outcome is what Heal reports, also used for metrics labeling.
type Outcome string

const (
	OutcomeRecovered  Outcome = "recovered"
	OutcomeReallocated Outcome = "reallocated"
	OutcomeExhausted   Outcome = "exhausted"
)

// Heal retries restart up to maxAttempts times. If every attempt fails and
// candidates is non-empty, it selects a reallocation target from candidates
// using the seeded PRNG and returns it; otherwise it returns "" with
// OutcomeExhausted.
func (s *SelfHealing) Heal(ctx context.Context, controllerID string, restart RestartFunc, candidates []string) (string, Outcome) {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err := restart(ctx)
		if err == nil {
			metrics.ResilienceSelfHealRestartsTotal.WithLabelValues(controllerID, string(OutcomeRecovered)).Inc()
			return controllerID, OutcomeRecovered
		}

		metrics.ResilienceSelfHealRestartsTotal.WithLabelValues(controllerID, "retry").Inc()

		if attempt == s.maxAttempts {
			break
		}

		backoff := s.base * time.Duration(1<<uint(attempt-1))
		if s.maxJitter > 0 {
			backoff += time.Duration(s.rng.Int63n(int64(s.maxJitter)))
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			metrics.ResilienceSelfHealRestartsTotal.WithLabelValues(controllerID, string(OutcomeExhausted)).Inc()
			return "", OutcomeExhausted
		}
	}

	if len(candidates) == 0 {
		metrics.ResilienceSelfHealRestartsTotal.WithLabelValues(controllerID, string(OutcomeExhausted)).Inc()
		return "", OutcomeExhausted
	}

	target := candidates[s.rng.Intn(len(candidates))]
	metrics.ResilienceSelfHealRestartsTotal.WithLabelValues(controllerID, string(OutcomeReallocated)).Inc()
	return target, OutcomeReallocated
}
