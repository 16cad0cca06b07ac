// Package metrics declares the fixed Prometheus surface from spec.md §6.
// Grounded on control_plane/observability/metrics.go's style: package-level
// vars registered eagerly via promauto against the default registry, rather
// than wrapped in a constructor-built registry struct.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	GridsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "r_ems_grids_total",
		Help: "Number of grids currently managed by the orchestrator kernel.",
	})

	ControllerActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "r_ems_controller_active",
		Help: "1 if this controller is the grid's active controller, else 0.",
	}, []string{"grid", "controller"})

	FailoversTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "r_ems_failovers_total",
		Help: "Count of promotions recorded by the redundancy supervisor.",
	}, []string{"grid", "controller", "reason"})

	SnapshotsSavedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "r_ems_snapshots_saved_total",
		Help: "Count of successful snapshot writes.",
	}, []string{"grid", "controller"})

	SnapshotsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "r_ems_snapshots_failed_total",
		Help: "Count of failed snapshot writes or hash-mismatch loads.",
	}, []string{"grid", "controller"})

	EventLogBytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "r_ems_event_log_bytes_total",
		Help: "Cumulative bytes appended to the event log.",
	}, []string{"grid", "controller"})

	ReplayDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "r_ems_replay_duration_seconds",
		Help: "Duration of a filtered event log replay.",
	}, []string{"grid", "controller"})

	// jitter_us: signed per-tick jitter, separate from the unsigned
	// TickJitterSeconds histogram below (original_source/crates/r-ems-common/src/time.rs
	// exposes both; one is a gauge of the signed deviation, the other an
	// unsigned-duration histogram across all ticks).
	TickJitterMicroseconds = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "r_ems_tick_jitter_us",
		Help: "Signed jitter (observed minus target interval) of the most recent tick, in microseconds.",
	}, []string{"grid", "controller"})

	TickJitterSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "r_ems_tick_jitter_seconds",
		Help:    "Unsigned jitter between observed inter-tick duration and target period.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
	}, []string{"grid", "controller"})

	ResilienceFailoversTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "r_ems_resilience_failovers_total",
		Help: "Count of failover-stress iterations by outcome.",
	}, []string{"grid_id", "failed", "promoted"})

	ResilienceFailoverLatencySeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "r_ems_resilience_failover_latency_seconds",
		Help: "Latency between heartbeat loss and confirmed promotion during failover stress.",
	}, []string{"grid_id", "failed", "promoted"})

	ResilienceChaosEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "r_ems_resilience_chaos_events_total",
		Help: "Count of chaos actions executed, by action kind.",
	}, []string{"action"})

	ResilienceDegradationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "r_ems_resilience_degradations_total",
		Help: "Count of degradation level transitions.",
	}, []string{"level"})

	ResilienceSelfHealRestartsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "r_ems_resilience_self_heal_restarts_total",
		Help: "Count of self-healing restart attempts, by outcome.",
	}, []string{"controller", "outcome"})
)
