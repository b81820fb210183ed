package events

import "github.com/kilianp07/robofleet/core/model"

// StatusChange is published when a robot moves from one status to another.
type StatusChange struct {
	Robot   model.RobotID  `json:"robot"`
	From    string         `json:"from"`
	To      string         `json:"to"`
	Vertex  model.VertexID `json:"vertex"`
	Battery float64        `json:"battery"`
	At      float64        `json:"at"`
}

// Task outcomes.
const (
	TaskAssigned  = "assigned"
	TaskCompleted = "completed"
	TaskRejected  = "rejected"
	TaskAborted   = "aborted"
)

// TaskOutcome reports what happened to a task.
type TaskOutcome struct {
	TaskID  string         `json:"task_id,omitempty"`
	Robot   model.RobotID  `json:"robot"`
	Target  model.VertexID `json:"target"`
	Outcome string         `json:"outcome"`
	Reason  string         `json:"reason,omitempty"`
	At      float64        `json:"at"`
}

// DeadlockEvent is emitted for each detected wait-for cycle.
type DeadlockEvent struct {
	Robots   []model.RobotID `json:"robots"`
	Resolved bool            `json:"resolved"`
	At       float64         `json:"at"`
}
