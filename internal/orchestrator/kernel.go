// Package orchestrator implements component G: the orchestrator kernel. It
// spawns per-grid supervisor and controller tasks, owns the shutdown
// broadcast, and wires together the snapshot store, event log, redundancy
// supervisor, and peripheral bus gate for every configured grid.
//
// Grounded on control_plane/main.go's wiring style (construct one instance of
// each dependency per unit of work, spawn background tasks, wire callbacks)
// and control_plane/scheduler/scheduler.go's Start/Stop task-lifecycle idiom.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Aurora-energy/R-EMS/internal/bus"
	"github.com/Aurora-energy/R-EMS/internal/config"
	"github.com/Aurora-energy/R-EMS/internal/controller"
	"github.com/Aurora-energy/R-EMS/internal/eventlog"
	"github.com/Aurora-energy/R-EMS/internal/metrics"
	"github.com/Aurora-energy/R-EMS/internal/redundancy"
	"github.com/Aurora-energy/R-EMS/internal/simulation"
	"github.com/Aurora-energy/R-EMS/internal/snapshot"
)

// supervisorEvalPeriod is the default period for the per-grid supervisor
// evaluation task, per spec.md §4.G.
const supervisorEvalPeriod = 100 * time.Millisecond

// grid bundles one grid's wired dependencies and running controller tasks.
type grid struct {
	id         string
	supervisor *redundancy.Supervisor
	store      *snapshot.Store
	log        *eventlog.Log
	gate       *bus.Gate

	// mirror and archiver are the optional domain-stack persistence
	// backends (SPEC_FULL.md §3.1/§3.2), present only when the app-wide
	// persistence config enables them. Closed on Shutdown.
	mirror   *snapshot.RedisMirror
	archiver *eventlog.PostgresArchiver

	mu       sync.Mutex
	cancelFn map[string]context.CancelFunc // controller id -> cancel
}

// Kernel owns every grid's wired components and the goroutines driving them.
type Kernel struct {
	cfg    *config.AppConfig
	logger zerolog.Logger
	sim    *simulation.Engine

	rootCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu     sync.Mutex
	grids  map[string]*grid
}

// Start builds the simulation engine, wires every grid, and spawns all
// tasks. A ConfigurationError from cfg.Validate aborts startup before any
// task is spawned.
func Start(ctx context.Context, cfg *config.AppConfig, logger zerolog.Logger) (*Kernel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sim, err := buildSimulationEngine(cfg)
	if err != nil {
		return nil, err
	}

	kctx, cancel := context.WithCancel(ctx)
	k := &Kernel{
		cfg:     cfg,
		logger:  logger,
		sim:     sim,
		rootCtx: kctx,
		cancel:  cancel,
		grids:   make(map[string]*grid),
	}

	metrics.GridsTotal.Set(float64(len(cfg.Grids)))

	for gridID, gcfg := range cfg.Grids {
		g, err := k.wireGrid(kctx, gridID, gcfg)
		if err != nil {
			cancel()
			return nil, err
		}
		k.grids[gridID] = g
		k.spawnGrid(g, gcfg)
	}

	return k, nil
}

func buildSimulationEngine(cfg *config.AppConfig) (*simulation.Engine, error) {
	sc := cfg.Orchestrator.Simulation
	switch cfg.Orchestrator.Mode {
	case config.ModeSimulation, config.ModeHybrid:
		if len(sc.ScenarioFiles) > 0 {
			if cfg.Orchestrator.Mode == config.ModeHybrid {
				return simulation.NewHybrid(sc.ScenarioFiles[0], sc.RandomSeed, 1.0)
			}
			return simulation.NewScenario(sc.ScenarioFiles[0])
		}
		return simulation.NewRandomized(sc.RandomSeed), nil
	default:
		return simulation.NewRandomized(sc.RandomSeed), nil
	}
}

func (k *Kernel) wireGrid(ctx context.Context, gridID string, gcfg config.GridConfig) (*grid, error) {
	sup := redundancy.New(gridID)
	store := snapshot.New(gcfg.Snapshot.Directory, gcfg.Snapshot.RetainLast)
	logPath := filepath.Join(gcfg.Snapshot.Directory, "events.log")
	evlog, err := eventlog.Open(logPath, gridID)
	if err != nil {
		return nil, fmt.Errorf("grid %s: %w", gridID, err)
	}
	gateway := bus.New(gridID, sup)
	gateway.Breaker = bus.NewCommitBreaker(20, 0.8, 30*time.Second)

	g := &grid{
		id:         gridID,
		supervisor: sup,
		store:      store,
		log:        evlog,
		gate:       gateway,
		cancelFn:   make(map[string]context.CancelFunc),
	}

	redisCfg := k.cfg.Persistence.Redis
	if redisCfg.Enabled {
		mirror := snapshot.NewRedisMirror(redisCfg.Addr, 24*time.Hour, k.logger)
		store.Mirror = mirror
		g.mirror = mirror
	}

	pgCfg := k.cfg.Persistence.Postgres
	if pgCfg.Enabled {
		archiver, err := eventlog.NewPostgresArchiver(ctx, pgCfg.DSN, k.logger)
		if err != nil {
			evlog.Close()
			if g.mirror != nil {
				g.mirror.Close()
			}
			return nil, fmt.Errorf("grid %s: postgres archiver: %w", gridID, err)
		}
		evlog.Archiver = archiver
		g.archiver = archiver
	}

	return g, nil
}

func (k *Kernel) spawnGrid(g *grid, gcfg config.GridConfig) {
	k.wg.Add(1)
	go k.runSupervisorEvaluation(g)

	for ctrlID, ctrlCfg := range gcfg.Controllers {
		k.spawnController(g, ctrlID, ctrlCfg, gcfg.Snapshot)
	}
}

func (k *Kernel) spawnController(g *grid, ctrlID string, ctrlCfg config.ControllerConfig, sc config.SnapshotConfig) {
	ctx, cancel := context.WithCancel(k.rootCtx)

	g.mu.Lock()
	g.cancelFn[ctrlID] = cancel
	g.mu.Unlock()

	ext := "json"
	rt := &controller.Runtime{
		GridID:       g.id,
		ControllerID: ctrlID,
		Cfg:          ctrlCfg,
		SnapshotExt:  ext,
		AutoReplay:   sc.AutoReplay,
		Supervisor:   g.supervisor,
		Store:        g.store,
		EventLog:     g.log,
		Gate:         g.gate,
		Sim:          k.sim,
		Logger:       k.logger,
	}

	k.wg.Add(1)
	go func() {
		defer k.wg.Done()
		rt.Run(ctx)
	}()
}

// runSupervisorEvaluation is the per-grid supervisor-evaluation task,
// spawned once per grid at supervisorEvalPeriod.
func (k *Kernel) runSupervisorEvaluation(g *grid) {
	defer k.wg.Done()
	ticker := time.NewTicker(supervisorEvalPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-k.rootCtx.Done():
			return
		case <-ticker.C:
			ev := g.supervisor.Evaluate(time.Now())
			if ev == nil {
				continue
			}
			payload, err := json.Marshal(map[string]any{
				"kind":                 "failover",
				"grid_id":              ev.GridID,
				"activated_controller": ev.ActivatedController,
				"reason":               string(ev.Reason),
			})
			if err == nil {
				g.log.Append(payload)
			}
		}
	}
}

// KillController forces a single controller task to exit, used by the
// chaos engine.
func (k *Kernel) KillController(gridID, controllerID string) error {
	k.mu.Lock()
	g, ok := k.grids[gridID]
	k.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown grid %q", gridID)
	}

	g.mu.Lock()
	cancel, ok := g.cancelFn[controllerID]
	g.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown controller %q in grid %q", controllerID, gridID)
	}
	cancel()
	return nil
}

// EmergencyStop posts an EmergencyStop on the grid's bus, then shuts the
// grid's controller tasks down.
func (k *Kernel) EmergencyStop(gridID string) error {
	k.mu.Lock()
	g, ok := k.grids[gridID]
	k.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown grid %q", gridID)
	}
	g.gate.EmergencyStop()

	g.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(g.cancelFn))
	for _, c := range g.cancelFn {
		cancels = append(cancels, c)
	}
	g.mu.Unlock()
	for _, c := range cancels {
		c()
	}
	return nil
}

// Grid exposes a grid's wired components for read access by the resilience
// harness (failover stress, degradation tracking) and tests.
func (k *Kernel) Grid(gridID string) (*redundancy.Supervisor, *bus.Gate, *eventlog.Log, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	g, ok := k.grids[gridID]
	if !ok {
		return nil, nil, nil, false
	}
	return g.supervisor, g.gate, g.log, true
}

// Shutdown broadcasts cancellation to every task and waits for them all to
// exit. No task outlives Shutdown's return, per spec.md §4.G's kernel
// invariant.
func (k *Kernel) Shutdown() {
	k.cancel()
	k.wg.Wait()
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, g := range k.grids {
		g.log.Close()
		if g.mirror != nil {
			g.mirror.Close()
		}
		if g.archiver != nil {
			g.archiver.Close()
		}
	}
}
