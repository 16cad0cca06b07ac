// Package clock implements component A: a monotonic, rate-limited ticker
// with missed-tick coalescing and jitter reporting.
package clock

import (
	"context"
	"time"
)

// Ticker yields one tick per period on a monotonic clock. It wraps
// time.Ticker, whose runtime already coalesces missed ticks into a single
// immediate delivery (the channel buffers at most one pending tick) and then
// resumes on the original phase — exactly the behavior spec.md §4.A asks
// for, so no hand-rolled catch-up logic is needed on top of it.
type Ticker struct {
	period time.Duration
	t      *time.Ticker
	last   time.Time
}

// New creates a Ticker firing every period, starting now.
func New(period time.Duration) *Ticker {
	return &Ticker{
		period: period,
		t:      time.NewTicker(period),
		last:   time.Now(),
	}
}

// Stop releases the underlying timer resources.
func (tk *Ticker) Stop() {
	tk.t.Stop()
}

// Tick blocks until the next tick or ctx cancellation, returning the tick's
// instant and the unsigned jitter (|observed inter-tick duration - period|).
// ctx.Err() is returned, unwrapped, on cancellation.
func (tk *Ticker) Tick(ctx context.Context) (time.Time, time.Duration, error) {
	select {
	case now := <-tk.t.C:
		observed := now.Sub(tk.last)
		tk.last = now
		jitter := observed - tk.period
		if jitter < 0 {
			jitter = -jitter
		}
		return now, jitter, nil
	case <-ctx.Done():
		return time.Time{}, 0, ctx.Err()
	}
}

// SignedJitter returns the signed deviation (observed - period) for the
// interval ending at now, without consuming a tick. Used to populate the
// r_ems_tick_jitter_us gauge alongside the unsigned histogram that Tick
// reports, mirroring the original implementation's two distinct jitter
// measurements (a per-tick signed gauge and an unsigned histogram).
func (tk *Ticker) SignedJitter(now time.Time, previous time.Time) time.Duration {
	return now.Sub(previous) - tk.period
}

// Period returns the configured tick period.
func (tk *Ticker) Period() time.Duration {
	return tk.period
}
