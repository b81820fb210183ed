package config

import (
	"fmt"

	"github.com/kilianp07/robofleet/core/fleet"
	"github.com/kilianp07/robofleet/core/model"
	"github.com/kilianp07/robofleet/core/robot"
	"github.com/kilianp07/robofleet/core/traffic"
)

// SimulationConfig drives the run loop and tunes the orchestrator.
type SimulationConfig struct {
	// Tick is the simulated time step in seconds.
	Tick float64 `json:"tick"`
	// Duration is the simulated run length in seconds. Zero runs until
	// the process is stopped.
	Duration float64 `json:"duration"`
	// Realtime paces ticks on the wall clock instead of running them
	// back to back.
	Realtime bool `json:"realtime"`
	// Spawn lists the vertices robots start on.
	Spawn []model.VertexID `json:"spawn"`

	Robot            robot.Config   `json:"robot"`
	Traffic          traffic.Config `json:"traffic"`
	DeadlockInterval float64        `json:"deadlock_interval"`
	AutoMode         bool           `json:"auto_mode"`
	AutoInterval     float64        `json:"auto_interval"`
	Optimize         bool           `json:"optimize"`
	Seed             int64          `json:"seed"`
	// ReportEvery logs the performance report every so many simulated
	// seconds. Zero disables it.
	ReportEvery float64 `json:"report_every"`
}

// DefaultSimulation returns the simulation defaults.
func DefaultSimulation() SimulationConfig {
	def := fleet.DefaultConfig()
	return SimulationConfig{
		Tick:             0.1,
		Robot:            def.Robot,
		Traffic:          def.Traffic,
		DeadlockInterval: def.DeadlockInterval,
		AutoInterval:     def.AutoInterval,
		Seed:             def.Seed,
	}
}

// SetDefaults fills non-positive tunables.
func (c *SimulationConfig) SetDefaults() {
	def := DefaultSimulation()
	if c.Tick <= 0 {
		c.Tick = def.Tick
	}
	if c.DeadlockInterval <= 0 {
		c.DeadlockInterval = def.DeadlockInterval
	}
	if c.AutoInterval <= 0 {
		c.AutoInterval = def.AutoInterval
	}
	if c.Robot.Speed <= 0 {
		c.Robot.Speed = def.Robot.Speed
	}
	if c.Robot.SnapEpsilon <= 0 {
		c.Robot.SnapEpsilon = def.Robot.SnapEpsilon
	}
	if c.Traffic.TransitTime <= 0 {
		c.Traffic.TransitTime = def.Traffic.TransitTime
	}
}

// Validate checks the ranges of the simulation settings.
func (c SimulationConfig) Validate() error {
	if c.Duration < 0 {
		return fmt.Errorf("duration must not be negative")
	}
	if c.Robot.DrainRate < 0 || c.Robot.ChargeRate < 0 {
		return fmt.Errorf("battery rates must not be negative")
	}
	if c.Robot.LowBattery < 0 || c.Robot.LowBattery > 100 {
		return fmt.Errorf("low_battery must be within [0, 100]")
	}
	seen := make(map[model.VertexID]bool, len(c.Spawn))
	for _, v := range c.Spawn {
		if seen[v] {
			return fmt.Errorf("spawn vertex %d listed twice", v)
		}
		seen[v] = true
	}
	return nil
}

// Fleet returns the orchestrator settings.
func (c SimulationConfig) Fleet() fleet.Config {
	return fleet.Config{
		Robot:            c.Robot,
		Traffic:          c.Traffic,
		DeadlockInterval: c.DeadlockInterval,
		AutoMode:         c.AutoMode,
		AutoInterval:     c.AutoInterval,
		Optimize:         c.Optimize,
		Seed:             c.Seed,
	}
}
