// Package controller implements component F: the controller runtime. One
// task per controller ticks, heartbeats, computes its role, snapshots, commits
// an actuator command when active, and records events — never aborting its
// loop on a per-tick I/O error, per spec.md §4.F/§7.
package controller

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/Aurora-energy/R-EMS/internal/bus"
	"github.com/Aurora-energy/R-EMS/internal/clock"
	"github.com/Aurora-energy/R-EMS/internal/config"
	"github.com/Aurora-energy/R-EMS/internal/eventlog"
	"github.com/Aurora-energy/R-EMS/internal/metrics"
	"github.com/Aurora-energy/R-EMS/internal/redundancy"
	"github.com/Aurora-energy/R-EMS/internal/remserr"
	"github.com/Aurora-energy/R-EMS/internal/simulation"
	"github.com/Aurora-energy/R-EMS/internal/snapshot"
)

// snapshotPayload is the conventional {telemetry, tick, mode} payload
// spec.md §3 describes controllers writing.
type snapshotPayload struct {
	Telemetry simulation.Frame `json:"telemetry"`
	Tick      uint64           `json:"tick"`
	Mode      string           `json:"mode"`
}

// Runtime is one controller's tick loop.
type Runtime struct {
	GridID       string
	ControllerID string
	Cfg          config.ControllerConfig
	SnapshotExt  string
	// AutoReplay mirrors the grid's snapshot.auto_replay config (spec.md
	// §6): when set, Run replays this controller's own event log entries as
	// a startup debug trace before it begins ticking.
	AutoReplay bool

	Supervisor *redundancy.Supervisor
	Store      *snapshot.Store
	EventLog   *eventlog.Log
	Gate       *bus.Gate
	Sim        *simulation.Engine

	Logger zerolog.Logger

	tick uint64
}

// exitAfterTicks parses the metadata.exit_after_ticks test hook named in
// spec.md §3/§4.F.
func (r *Runtime) exitAfterTicks() (uint64, bool) {
	v, ok := r.Cfg.Metadata["exit_after_ticks"]
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func appendEvent(l *eventlog.Log, kind string, extra map[string]any, gridID, controllerID string) {
	fields := map[string]any{
		"kind":          kind,
		"grid_id":       gridID,
		"controller_id": controllerID,
	}
	for k, v := range extra {
		fields[k] = v
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return
	}
	l.Append(b)
}

// Run registers with the supervisor, restores a snapshot if present, and
// then ticks until ctx is cancelled or the exit_after_ticks test hook fires.
func (r *Runtime) Run(ctx context.Context) {
	r.Supervisor.Register(r.ControllerID, r.Cfg)
	defer r.Supervisor.Unregister(r.ControllerID)
	defer metrics.ControllerActive.WithLabelValues(r.GridID, r.ControllerID).Set(0)

	period := time.Duration(r.Cfg.HeartbeatInterval * float64(time.Second))
	ticker := clock.New(period)
	defer ticker.Stop()
	prevTick := time.Now()

	r.restoreSnapshot()
	if r.AutoReplay {
		r.replayOwnEvents()
	}

	wasActive := false
	limit, hasLimit := r.exitAfterTicks()

	for {
		tickAt, jitter, err := ticker.Tick(ctx)
		if err != nil {
			return // context cancelled: shutdown, not an error per spec.md §7
		}
		signed := ticker.SignedJitter(tickAt, prevTick)
		prevTick = tickAt

		r.tick++
		metrics.TickJitterSeconds.WithLabelValues(r.GridID, r.ControllerID).Observe(jitter.Seconds())
		metrics.TickJitterMicroseconds.WithLabelValues(r.GridID, r.ControllerID).Set(float64(signed.Microseconds()))

		now := time.Now()
		r.Supervisor.Heartbeat(r.ControllerID, now)
		isActive := r.Supervisor.IsActive(r.ControllerID)
		if isActive != wasActive {
			r.Logger.Info().Str("grid", r.GridID).Str("controller", r.ControllerID).Bool("active", isActive).Msg("controller role transition")
			wasActive = isActive
		}

		if isActive {
			r.tickActive()
		} else {
			appendEvent(r.EventLog, "controller_heartbeat", nil, r.GridID, r.ControllerID)
		}

		if hasLimit && r.tick >= limit {
			return
		}
	}
}

func (r *Runtime) tickActive() {
	frame := r.Sim.NextFrame(r.GridID, r.ControllerID, r.tick)

	payload, err := json.Marshal(snapshotPayload{Telemetry: frame, Tick: r.tick, Mode: "active"})
	if err == nil {
		snap := snapshot.ControllerSnapshot{
			GridID:       r.GridID,
			ControllerID: r.ControllerID,
			CapturedAt:   time.Now().UTC(),
			Payload:      payload,
		}
		if _, err := r.Store.Write(context.Background(), snap, r.SnapshotExt); err != nil {
			r.Logger.Warn().Err(err).Str("grid", r.GridID).Str("controller", r.ControllerID).Msg("snapshot write failed")
			appendEvent(r.EventLog, "snapshot_failure", map[string]any{"error": err.Error()}, r.GridID, r.ControllerID)
		} else {
			appendEvent(r.EventLog, "snapshot_saved", nil, r.GridID, r.ControllerID)
		}
	}

	err = r.Gate.CommitWithTick(r.ControllerID, bus.Command{Kind: bus.SetPoint, TargetKW: frame.ValueKW}, r.tick)
	if err != nil {
		// A ControllerNotPrimary race here means promotion happened between
		// the IsActive read and this commit; per spec.md §4.F this is
		// ignored, not logged as an error.
		_ = err
	}

	appendEvent(r.EventLog, "controller_tick", map[string]any{"tick": r.tick}, r.GridID, r.ControllerID)
}

// replayOwnEvents implements spec.md §4.F step 3: when auto_replay is set,
// replay this controller's own event log entries as a debug trace before the
// tick loop starts. It never mutates runtime state — restoreSnapshot already
// did that — it only logs a summary, per spec.md §6's "auto_replay" being a
// diagnostic, not a state-recovery, mechanism.
func (r *Runtime) replayOwnEvents() {
	count := 0
	err := r.EventLog.ReplayForController(r.GridID, r.ControllerID, func(e eventlog.Entry) error {
		count++
		r.Logger.Debug().Str("grid", r.GridID).Str("controller", r.ControllerID).
			Uint64("sequence", e.Sequence).RawJSON("payload", e.Payload).Msg("auto_replay event")
		return nil
	})
	if err != nil {
		r.Logger.Warn().Err(err).Str("grid", r.GridID).Str("controller", r.ControllerID).Msg("auto_replay failed")
		return
	}
	r.Logger.Info().Str("grid", r.GridID).Str("controller", r.ControllerID).Int("events", count).Msg("auto_replay complete")
}

// restoreSnapshot implements the F.2 startup step: load the latest snapshot
// if one exists, restore the tick counter from its payload, and record a
// snapshot_restored event. A HashMismatch means fresh state, per spec.md §7.
func (r *Runtime) restoreSnapshot() {
	env, _, err := r.Store.LoadLatest(r.GridID, r.ControllerID)
	if err != nil {
		var mismatch *remserr.HashMismatch
		if errors.As(err, &mismatch) {
			r.Logger.Warn().Str("grid", r.GridID).Str("controller", r.ControllerID).Msg("snapshot hash mismatch on restore: starting fresh")
			return
		}
		r.Logger.Warn().Err(err).Msg("snapshot restore failed")
		return
	}
	if env == nil {
		return
	}
	var p snapshotPayload
	if err := json.Unmarshal(env.State.Payload, &p); err == nil {
		r.tick = p.Tick
	}
	appendEvent(r.EventLog, "snapshot_restored", map[string]any{"tick": r.tick}, r.GridID, r.ControllerID)
}
