package config

import (
	"fmt"

	"github.com/kilianp07/robofleet/core/factory"
)

// PersistenceConfig selects where fleet snapshots are stored.
type PersistenceConfig struct {
	// Backend is "jsonfile" or "sqlite". Empty disables persistence.
	Backend string `json:"backend"`
	Path    string `json:"path"`
	// Restore loads the stored snapshot before the run starts.
	Restore bool `json:"restore"`
	// SaveEvery also saves every so many simulated seconds. Zero saves on
	// shutdown only.
	SaveEvery float64 `json:"save_every"`
	// Keep bounds the snapshot history of the sqlite backend. Zero keeps
	// everything.
	Keep int `json:"keep"`
}

// Enabled reports whether a backend is configured.
func (c PersistenceConfig) Enabled() bool { return c.Backend != "" }

// SetDefaults picks a path matching the backend.
func (c *PersistenceConfig) SetDefaults() {
	if c.Path != "" {
		return
	}
	switch c.Backend {
	case "jsonfile":
		c.Path = "fleet.json"
	case "sqlite":
		c.Path = "fleet.db"
	}
}

// Validate checks the backend name.
func (c PersistenceConfig) Validate() error {
	switch c.Backend {
	case "", "jsonfile", "sqlite":
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.SaveEvery < 0 || c.Keep < 0 {
		return fmt.Errorf("save_every and keep must not be negative")
	}
	return nil
}

// Module returns the store factory configuration.
func (c PersistenceConfig) Module() factory.ModuleConfig {
	return factory.ModuleConfig{Type: c.Backend, Conf: map[string]any{"path": c.Path, "keep": c.Keep}}
}
