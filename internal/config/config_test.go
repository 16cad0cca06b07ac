package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTOML(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "r-ems.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

const validDoc = `
[orchestrator]
mode = "production"

[grid.grid-a]
id = "grid-a"

[grid.grid-a.snapshot]
directory = "/tmp/grid-a"
retain_last = 5

[grid.grid-a.controllers.primary]
role = "primary"
heartbeat_interval = 0.05
watchdog_timeout = 0.2
failover_order = 0

[grid.grid-a.controllers.secondary]
role = "secondary"
heartbeat_interval = 0.05
watchdog_timeout = 0.2
failover_order = 1
`

func TestLoadValidConfig(t *testing.T) {
	path := writeTOML(t, validDoc)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Grids) != 1 {
		t.Fatalf("expected 1 grid, got %d", len(cfg.Grids))
	}
	g := cfg.Grids["grid-a"]
	if len(g.Controllers) != 2 {
		t.Fatalf("expected 2 controllers, got %d", len(g.Controllers))
	}
}

func TestLoadRejectsNoGrids(t *testing.T) {
	path := writeTOML(t, `[orchestrator]
mode = "production"
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected a ConfigurationError for a document with no grids")
	}
}

func TestLoadRejectsGridWithoutPrimaryCapableController(t *testing.T) {
	path := writeTOML(t, `
[grid.grid-a]
id = "grid-a"

[grid.grid-a.snapshot]
directory = "/tmp/grid-a"
retain_last = 1

[grid.grid-a.controllers.follower]
role = "follower"
heartbeat_interval = 0.05
watchdog_timeout = 0.2
failover_order = 0
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected a ConfigurationError: no primary/secondary-capable controller")
	}
}

func TestLoadRejectsInvalidRole(t *testing.T) {
	path := writeTOML(t, `
[grid.grid-a]
id = "grid-a"

[grid.grid-a.snapshot]
directory = "/tmp/grid-a"
retain_last = 1

[grid.grid-a.controllers.primary]
role = "not-a-role"
heartbeat_interval = 0.05
watchdog_timeout = 0.2
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected a ConfigurationError for an invalid role string")
	}
}
