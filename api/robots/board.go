// Package robots exposes the state of the fleet over HTTP. Handlers read a
// Board updated by the run loop so they never touch the fleet manager.
package robots

import (
	"sync/atomic"

	"github.com/kilianp07/robofleet/core/fleet"
	"github.com/kilianp07/robofleet/core/metrics"
)

// State is a point-in-time copy of the fleet.
type State struct {
	SessionID string              `json:"session_id"`
	Robots    []fleet.RobotView   `json:"robots"`
	Tasks     []fleet.Task        `json:"tasks"`
	Metrics   metrics.FleetSample `json:"metrics"`
	Report    []fleet.RobotReport `json:"report"`
	Deadlocks int                 `json:"deadlocks"`
}

// Capture copies the current state of m.
func Capture(m *fleet.Manager) State {
	return State{
		SessionID: m.SessionID(),
		Robots:    m.Robots(),
		Tasks:     m.Tasks(),
		Metrics:   m.Metrics(),
		Report:    m.Report(),
		Deadlocks: m.Deadlocks(),
	}
}

// Board holds the latest published State.
type Board struct {
	state atomic.Pointer[State]
}

// Publish replaces the current state.
func (b *Board) Publish(s State) { b.state.Store(&s) }

// Load returns the current state, or the zero State before the first Publish.
func (b *Board) Load() State {
	if s := b.state.Load(); s != nil {
		return *s
	}
	return State{}
}
