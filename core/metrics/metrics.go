package metrics

import (
	"github.com/kilianp07/robofleet/core/events"
	"github.com/kilianp07/robofleet/core/model"
)

// FleetSample is the aggregate state of the fleet after a tick.
type FleetSample struct {
	Time              float64
	Robots            int
	ByStatus          map[string]int
	TasksCompleted    int
	Distance          float64
	CollisionsAvoided int
	AverageWait       float64
	QueuedTasks       int
	Reservations      int
}

// MetricsSink records fleet samples for observability purposes.
type MetricsSink interface {
	RecordFleetSample(s FleetSample) error
}

// RobotSample is a snapshot of one robot.
type RobotSample struct {
	Robot    model.RobotID
	Status   string
	Vertex   model.VertexID
	Battery  float64
	Priority float64
	Time     float64
}

// RobotStateRecorder records per-robot snapshots.
type RobotStateRecorder interface {
	RecordRobotStates(samples []RobotSample) error
}

// TaskRecorder records task outcomes.
type TaskRecorder interface {
	RecordTaskOutcome(ev events.TaskOutcome) error
}

// DeadlockRecorder records detected wait-for cycles.
type DeadlockRecorder interface {
	RecordDeadlock(ev events.DeadlockEvent) error
}

// StatusRecorder records robot status transitions.
type StatusRecorder interface {
	RecordStatusChange(ev events.StatusChange) error
}

// NopSink implements MetricsSink with no-op methods.
type NopSink struct{}

func (NopSink) RecordFleetSample(FleetSample) error          { return nil }
func (NopSink) RecordRobotStates([]RobotSample) error        { return nil }
func (NopSink) RecordTaskOutcome(events.TaskOutcome) error   { return nil }
func (NopSink) RecordDeadlock(events.DeadlockEvent) error    { return nil }
func (NopSink) RecordStatusChange(events.StatusChange) error { return nil }
