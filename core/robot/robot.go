// Package robot implements the per-robot motion and battery state machine.
//
// A Robot never touches shared traffic state. Update reports what happened
// during a tick and the fleet reacts to it.
package robot

import (
	"fmt"

	"github.com/kilianp07/robofleet/core/model"
)

// Config holds the motion and battery constants.
type Config struct {
	Speed              float64 `json:"speed"`
	DrainRate          float64 `json:"drain_rate"`
	ChargeRate         float64 `json:"charge_rate"`
	SnapEpsilon        float64 `json:"snap_epsilon"`
	WaitThreshold      float64 `json:"wait_threshold"`
	LowBattery         float64 `json:"low_battery"`
	LowBatteryPriority float64 `json:"low_battery_priority"`
}

// DefaultConfig returns the standard robot constants: units per second for
// speed, percent per second for battery rates.
func DefaultConfig() Config {
	return Config{
		Speed:              0.9,
		DrainRate:          0.1,
		ChargeRate:         5,
		SnapEpsilon:        0.05,
		WaitThreshold:      10,
		LowBattery:         20,
		LowBatteryPriority: 5,
	}
}

// Mission tells why a robot is travelling.
type Mission int

const (
	NoMission Mission = iota
	TaskMission
	ChargeMission
	RetreatMission
)

var missionNames = [...]string{
	NoMission:      "none",
	TaskMission:    "task",
	ChargeMission:  "charge",
	RetreatMission: "retreat",
}

func (m Mission) String() string {
	if m < 0 || int(m) >= len(missionNames) {
		return missionNames[NoMission]
	}
	return missionNames[m]
}

// MarshalText implements encoding.TextMarshaler.
func (m Mission) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler. An empty name is
// NoMission.
func (m *Mission) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*m = NoMission
		return nil
	}
	for i, n := range missionNames {
		if n == string(b) {
			*m = Mission(i)
			return nil
		}
	}
	return fmt.Errorf("unknown mission %q", b)
}

// Event is what Update reports.
type Event int

const (
	NoEvent Event = iota
	// Arrived means an intermediate vertex was reached.
	Arrived
	// Completed means the last vertex of the path was reached.
	Completed
	// Charged means the battery is full again.
	Charged
	// Depleted means the battery ran out.
	Depleted
)

func (e Event) String() string {
	return [...]string{"none", "arrived", "completed", "charged", "depleted"}[e]
}

// Locator resolves vertex coordinates.
type Locator interface {
	Position(v model.VertexID) (model.Point, bool)
}

// Robot is a single unit of the fleet.
type Robot struct {
	ID       model.RobotID
	Vertex   model.VertexID
	Previous model.VertexID
	Position model.Point
	Target   model.VertexID
	// Path holds the remaining hops, Path[0] being the next vertex.
	Path          []model.VertexID
	Battery       float64
	Priority      float64
	EmergencyStop bool
	InTransit     bool
	WaitingOn     model.VertexID
	Mission       Mission
	// ResumeTarget is the destination a retreating robot goes back to.
	ResumeTarget model.VertexID

	Distance          float64
	TasksCompleted    int
	WaitTime          float64
	CollisionsAvoided int

	waitTimer float64
	status    Status
	cfg       Config
}

// New returns an idle robot standing on v with a full battery.
func New(id model.RobotID, v model.VertexID, pos model.Point, cfg Config) *Robot {
	return &Robot{
		ID:           id,
		Vertex:       v,
		Previous:     model.NoVertex,
		Position:     pos,
		Target:       model.NoVertex,
		Battery:      100,
		WaitingOn:    model.NoVertex,
		ResumeTarget: model.NoVertex,
		status:       Idle,
		cfg:          cfg,
	}
}

// Status returns the current status.
func (r *Robot) Status() Status { return r.status }

// SetStatus changes the status when the transition is allowed.
func (r *Robot) SetStatus(to Status) error {
	if !r.status.CanTransition(to) {
		return fmt.Errorf("robot %d: %s -> %s: %w", r.ID, r.status, to, ErrInvalidTransition)
	}
	r.status = to
	return nil
}

// Next returns the next hop, if any.
func (r *Robot) Next() (model.VertexID, bool) {
	if len(r.Path) == 0 {
		return model.NoVertex, false
	}
	return r.Path[0], true
}

// Plan returns the vertices the robot will visit, starting with the one it
// stands on.
func (r *Robot) Plan() []model.VertexID {
	return append([]model.VertexID{r.Vertex}, r.Path...)
}

// Assign starts a journey, or replaces the current one. route begins with the
// current vertex.
func (r *Robot) Assign(target model.VertexID, route []model.VertexID, mission Mission) error {
	if err := r.SetStatus(Moving); err != nil {
		return err
	}
	r.Target = target
	r.Path = append([]model.VertexID(nil), route[1:]...)
	r.Mission = mission
	r.WaitingOn = model.NoVertex
	return nil
}

// Depart marks the robot as travelling towards Path[0].
func (r *Robot) Depart() { r.InTransit = true }

// Wait halts the robot until v is free.
func (r *Robot) Wait(v model.VertexID) error {
	if err := r.SetStatus(Waiting); err != nil {
		return err
	}
	r.WaitingOn = v
	return nil
}

// StopWaiting resumes the journey after a wait.
func (r *Robot) StopWaiting() error {
	if err := r.SetStatus(Moving); err != nil {
		return err
	}
	r.WaitingOn = model.NoVertex
	return nil
}

// Halt drops the current journey. A robot caught between two vertices is
// put back on the vertex it left.
func (r *Robot) Halt(loc Locator) {
	if r.InTransit {
		if pos, ok := loc.Position(r.Vertex); ok {
			r.Position = pos
		}
		r.InTransit = false
	}
	r.Path = nil
	r.Target = model.NoVertex
	r.Mission = NoMission
	r.WaitingOn = model.NoVertex
}

// Abort halts the robot and makes it idle.
func (r *Robot) Abort(loc Locator) error {
	if err := r.SetStatus(Idle); err != nil {
		return err
	}
	r.Halt(loc)
	r.ResumeTarget = model.NoVertex
	return nil
}

// StartCharging docks the robot.
func (r *Robot) StartCharging() error {
	if err := r.SetStatus(Charging); err != nil {
		return err
	}
	r.Path = nil
	r.Target = model.NoVertex
	r.Mission = NoMission
	return nil
}

// Stop engages the emergency stop.
func (r *Robot) Stop(loc Locator) error {
	if err := r.SetStatus(EmergencyStopped); err != nil {
		return err
	}
	r.Halt(loc)
	r.ResumeTarget = model.NoVertex
	r.EmergencyStop = true
	return nil
}

// Resume clears the emergency stop. A robot docked on a charger with a non
// full battery goes back to charging.
func (r *Robot) Resume(onCharger bool) error {
	to := Idle
	if onCharger && r.Battery < 100 {
		to = Charging
	}
	if err := r.SetStatus(to); err != nil {
		return err
	}
	r.EmergencyStop = false
	return nil
}

// LowBattery reports whether the battery is at or below the low threshold.
func (r *Robot) LowBattery() bool { return r.Battery <= r.cfg.LowBattery }

// Update advances the robot by dt seconds.
func (r *Robot) Update(dt float64, loc Locator) Event {
	if dt <= 0 || r.status == Dead {
		return NoEvent
	}
	if r.status == Charging {
		r.Battery = min(100, r.Battery+r.cfg.ChargeRate*dt)
		if r.Battery >= 100 {
			r.status = Idle
			return Charged
		}
		return NoEvent
	}

	r.Battery = max(0, r.Battery-r.cfg.DrainRate*dt)
	if r.Battery <= 0 {
		r.Halt(loc)
		r.status = Dead
		return Depleted
	}
	if r.LowBattery() {
		r.Priority = max(r.Priority, r.cfg.LowBatteryPriority)
	}

	switch r.status {
	case Waiting:
		r.WaitTime += dt
		r.waitTimer += dt
		for r.cfg.WaitThreshold > 0 && r.waitTimer >= r.cfg.WaitThreshold {
			r.waitTimer -= r.cfg.WaitThreshold
			r.Priority++
		}
	case Moving:
		if len(r.Path) == 0 {
			r.status = Idle
			return Completed
		}
		if r.InTransit {
			return r.advance(dt, loc)
		}
	}
	return NoEvent
}

func (r *Robot) advance(dt float64, loc Locator) Event {
	next := r.Path[0]
	dest, ok := loc.Position(next)
	if !ok {
		return NoEvent
	}
	dist := r.Position.Dist(dest)
	step := r.cfg.Speed * dt
	if dist-step < r.cfg.SnapEpsilon {
		r.Distance += dist
		r.Position = dest
		r.Previous = r.Vertex
		r.Vertex = next
		r.Path = r.Path[1:]
		r.InTransit = false
		if len(r.Path) == 0 {
			r.status = Idle
			return Completed
		}
		return Arrived
	}
	f := step / dist
	r.Position.X += (dest.X - r.Position.X) * f
	r.Position.Y += (dest.Y - r.Position.Y) * f
	r.Distance += step
	return NoEvent
}

// Restore rebuilds a robot from saved fields, bypassing transition checks.
// waitTimer is the time accumulated towards the next priority increment.
func Restore(id model.RobotID, status Status, waitTimer float64, cfg Config) *Robot {
	r := New(id, model.NoVertex, model.Point{}, cfg)
	r.status = status
	r.waitTimer = max(0, waitTimer)
	return r
}

// WaitTimer returns the time accumulated towards the next priority increment.
func (r *Robot) WaitTimer() float64 { return r.waitTimer }
