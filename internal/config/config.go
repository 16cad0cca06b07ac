// Package config loads and validates the TOML configuration surface named in
// spec.md §6, using github.com/BurntSushi/toml (the corpus's TOML library).
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/Aurora-energy/R-EMS/internal/remserr"
)

// Mode is the orchestrator-level run mode.
type Mode string

const (
	ModeProduction Mode = "production"
	ModeSimulation Mode = "simulation"
	ModeHybrid     Mode = "hybrid"
)

// Role is a controller's redundancy role. Lower Priority wins promotion ties.
type Role string

const (
	RolePrimary   Role = "primary"
	RoleSecondary Role = "secondary"
	RoleFollower  Role = "follower"
	RoleObserver  Role = "observer"
)

// Priority returns the numeric role priority from spec.md §3 (lower wins).
func (r Role) Priority() (int, error) {
	switch r {
	case RolePrimary:
		return 0, nil
	case RoleSecondary:
		return 1, nil
	case RoleFollower:
		return 2, nil
	case RoleObserver:
		return 3, nil
	default:
		return 0, fmt.Errorf("unknown role %q", r)
	}
}

// ControllerConfig mirrors spec.md §3's ControllerConfig.
type ControllerConfig struct {
	Role             Role              `toml:"role"`
	HeartbeatInterval float64          `toml:"heartbeat_interval"` // seconds
	WatchdogTimeout   float64          `toml:"watchdog_timeout"`   // seconds
	FailoverOrder     uint32           `toml:"failover_order"`
	Metadata          map[string]string `toml:"metadata"`
}

// SnapshotConfig mirrors spec.md §6's grid-level snapshot block.
type SnapshotConfig struct {
	Directory  string  `toml:"directory"`
	RetainLast int     `toml:"retain_last"`
	AutoReplay bool    `toml:"auto_replay"`
	Interval   float64 `toml:"interval"` // seconds, optional
}

// GridConfig mirrors spec.md §6's grid-level block.
type GridConfig struct {
	ID          string                      `toml:"id"`
	Snapshot    SnapshotConfig              `toml:"snapshot"`
	Controllers map[string]ControllerConfig `toml:"controllers"`
}

// SimulationConfig mirrors spec.md §6's orchestrator-level simulation block.
type SimulationConfig struct {
	ScenarioFiles          []string `toml:"scenario_files"`
	RandomSeed             uint64   `toml:"random_seed"`
	ForceMode              string   `toml:"force_mode"`
	EnableRandomizedInputs bool     `toml:"enable_randomized_inputs"`
	TickInterval           float64  `toml:"tick_interval"`
}

// RedisConfig is a domain-stack extension: an optional hot-cache mirror for
// the snapshot store (SPEC_FULL.md §3.1).
type RedisConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

// PostgresConfig is a domain-stack extension: an optional durable archive
// sink for the event log (SPEC_FULL.md §3.2).
type PostgresConfig struct {
	Enabled bool   `toml:"enabled"`
	DSN     string `toml:"dsn"`
}

// PersistenceConfig groups the two optional backends above.
type PersistenceConfig struct {
	Redis    RedisConfig    `toml:"redis"`
	Postgres PostgresConfig `toml:"postgres"`
}

// OrchestratorConfig is the orchestrator-level block.
type OrchestratorConfig struct {
	Mode        Mode             `toml:"mode"`
	MetricsAddr string           `toml:"metrics_addr"`
	Simulation  SimulationConfig `toml:"simulation"`
}

// AppConfig is the root configuration document.
type AppConfig struct {
	Orchestrator OrchestratorConfig   `toml:"orchestrator"`
	Persistence  PersistenceConfig    `toml:"persistence"`
	Grids        map[string]GridConfig `toml:"grid"`
}

// Load parses path and validates the result, returning a *remserr.ConfigurationError
// (wrapped) on any problem so the caller never starts a kernel on bad config.
func Load(path string) (*AppConfig, error) {
	var cfg AppConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, &remserr.ConfigurationError{Field: "file", Reason: err.Error()}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate enforces spec.md §7's ConfigurationError cases: no grids, a grid
// without a primary-capable controller, or an invalid role string.
func (c *AppConfig) Validate() error {
	if len(c.Grids) == 0 {
		return &remserr.ConfigurationError{Field: "grid", Reason: "at least one grid is required"}
	}
	switch c.Orchestrator.Mode {
	case ModeProduction, ModeSimulation, ModeHybrid, "":
	default:
		return &remserr.ConfigurationError{Field: "orchestrator.mode", Reason: fmt.Sprintf("invalid mode %q", c.Orchestrator.Mode)}
	}
	for gridID, g := range c.Grids {
		if len(g.Controllers) == 0 {
			return &remserr.ConfigurationError{Field: "grid." + gridID + ".controllers", Reason: "grid has no controllers"}
		}
		hasPrimaryCapable := false
		for ctrlID, cc := range g.Controllers {
			if _, err := cc.Role.Priority(); err != nil {
				return &remserr.ConfigurationError{
					Field:  fmt.Sprintf("grid.%s.controllers.%s.role", gridID, ctrlID),
					Reason: err.Error(),
				}
			}
			if cc.Role == RolePrimary || cc.Role == RoleSecondary {
				hasPrimaryCapable = true
			}
			if cc.HeartbeatInterval <= 0 {
				return &remserr.ConfigurationError{
					Field:  fmt.Sprintf("grid.%s.controllers.%s.heartbeat_interval", gridID, ctrlID),
					Reason: "must be positive",
				}
			}
			if cc.WatchdogTimeout <= 0 {
				return &remserr.ConfigurationError{
					Field:  fmt.Sprintf("grid.%s.controllers.%s.watchdog_timeout", gridID, ctrlID),
					Reason: "must be positive",
				}
			}
		}
		if !hasPrimaryCapable {
			return &remserr.ConfigurationError{Field: "grid." + gridID, Reason: "no primary- or secondary-capable controller"}
		}
		if g.Snapshot.RetainLast < 1 {
			return &remserr.ConfigurationError{Field: "grid." + gridID + ".snapshot.retain_last", Reason: "must be at least 1"}
		}
	}
	return nil
}
