package fleet

import (
	"github.com/kilianp07/robofleet/core/events"
	"github.com/kilianp07/robofleet/core/metrics"
	"github.com/kilianp07/robofleet/core/model"
	"github.com/kilianp07/robofleet/core/robot"
)

// Reporter observes the fleet. Implementations must not call back into the
// Manager.
type Reporter interface {
	StatusChanged(ev events.StatusChange)
	TaskFinished(ev events.TaskOutcome)
	DeadlockDetected(ev events.DeadlockEvent)
	Warning(msg string, fields map[string]any)
	Error(err error, fields map[string]any)
}

// NopReporter ignores everything.
type NopReporter struct{}

func (NopReporter) StatusChanged(events.StatusChange)     {}
func (NopReporter) TaskFinished(events.TaskOutcome)       {}
func (NopReporter) DeadlockDetected(events.DeadlockEvent) {}
func (NopReporter) Warning(string, map[string]any)        {}
func (NopReporter) Error(error, map[string]any)           {}

// RobotView is a read-only copy of a robot.
type RobotView struct {
	ID            model.RobotID    `json:"id"`
	Status        robot.Status     `json:"status"`
	Vertex        model.VertexID   `json:"vertex"`
	Position      model.Point      `json:"position"`
	Target        model.VertexID   `json:"target"`
	Path          []model.VertexID `json:"path"`
	Battery       float64          `json:"battery"`
	Priority      float64          `json:"priority"`
	EmergencyStop bool             `json:"emergency_stop"`
	WaitingOn     model.VertexID   `json:"waiting_on"`
	Mission       string           `json:"mission"`
}

func viewOf(r *robot.Robot) RobotView {
	return RobotView{
		ID:            r.ID,
		Status:        r.Status(),
		Vertex:        r.Vertex,
		Position:      r.Position,
		Target:        r.Target,
		Path:          append([]model.VertexID{}, r.Path...),
		Battery:       r.Battery,
		Priority:      r.Priority,
		EmergencyStop: r.EmergencyStop,
		WaitingOn:     r.WaitingOn,
		Mission:       r.Mission.String(),
	}
}

// Robots returns every robot in id order.
func (m *Manager) Robots() []RobotView {
	out := make([]RobotView, 0, len(m.robots))
	for _, id := range m.ids() {
		out = append(out, viewOf(m.robots[id]))
	}
	return out
}

// Robot returns one robot.
func (m *Manager) Robot(id model.RobotID) (RobotView, error) {
	r, err := m.lookup(id)
	if err != nil {
		return RobotView{}, err
	}
	return viewOf(r), nil
}

// Deadlocks returns how many wait-for cycles were detected so far.
func (m *Manager) Deadlocks() int { return m.deadlocks }

// Metrics returns the aggregate state of the fleet.
func (m *Manager) Metrics() metrics.FleetSample {
	s := metrics.FleetSample{
		Time:         m.Now(),
		Robots:       len(m.robots),
		ByStatus:     make(map[string]int),
		QueuedTasks:  len(m.tasks),
		Reservations: len(m.traffic.Reservations()),
	}
	var wait float64
	for _, r := range m.robots {
		s.ByStatus[r.Status().String()]++
		s.TasksCompleted += r.TasksCompleted
		s.Distance += r.Distance
		s.CollisionsAvoided += r.CollisionsAvoided
		wait += r.WaitTime
	}
	if len(m.robots) > 0 {
		s.AverageWait = wait / float64(len(m.robots))
	}
	return s
}

// RobotReport is the performance record of one robot.
type RobotReport struct {
	Robot             model.RobotID `json:"robot"`
	Status            string        `json:"status"`
	TasksCompleted    int           `json:"tasks_completed"`
	Distance          float64       `json:"distance"`
	WaitTime          float64       `json:"wait_time"`
	CollisionsAvoided int           `json:"collisions_avoided"`
	Battery           float64       `json:"battery"`
}

// Report returns the performance record of every robot in id order.
func (m *Manager) Report() []RobotReport {
	out := make([]RobotReport, 0, len(m.robots))
	for _, id := range m.ids() {
		r := m.robots[id]
		out = append(out, RobotReport{
			Robot:             id,
			Status:            r.Status().String(),
			TasksCompleted:    r.TasksCompleted,
			Distance:          r.Distance,
			WaitTime:          r.WaitTime,
			CollisionsAvoided: r.CollisionsAvoided,
			Battery:           r.Battery,
		})
	}
	return out
}
