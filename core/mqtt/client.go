// Package mqtt defines the remote telemetry and command contracts of the
// fleet. The infra/mqtt package implements them on top of an MQTT broker.
package mqtt

import (
	"fmt"

	"github.com/kilianp07/robofleet/core/events"
	"github.com/kilianp07/robofleet/core/model"
)

// Telemetry publishes fleet events to remote observers.
type Telemetry interface {
	PublishStatus(ev events.StatusChange) error
	PublishTaskOutcome(ev events.TaskOutcome) error
	PublishDeadlock(ev events.DeadlockEvent) error
	// PublishAck reports the result of a remote command. A nil err means
	// the command was applied.
	PublishAck(commandID string, err error) error
}

// CommandSource delivers remote commands. The channel is closed when the
// source shuts down.
type CommandSource interface {
	Commands() <-chan Command
}

// Command actions.
const (
	ActionAssign      = "assign"
	ActionEnqueue     = "enqueue"
	ActionCharge      = "charge"
	ActionToggleStop  = "toggle_stop"
	ActionStopAll     = "stop_all"
	ActionResumeAll   = "resume_all"
	ActionRandomTasks = "random_tasks"
	ActionOptimize    = "optimize"
)

// Command is a remote request to act on the fleet.
type Command struct {
	ID       string         `json:"command_id"`
	Action   string         `json:"action"`
	Robot    *model.RobotID `json:"robot,omitempty"`
	Target   model.VertexID `json:"target"`
	Priority float64        `json:"priority,omitempty"`
}

// RobotOr returns the addressed robot, or def when none is given.
func (c Command) RobotOr(def model.RobotID) model.RobotID {
	if c.Robot == nil {
		return def
	}
	return *c.Robot
}

// Validate checks that the command carries what its action needs.
func (c Command) Validate() error {
	switch c.Action {
	case ActionAssign, ActionToggleStop, ActionCharge:
		if c.Robot == nil {
			return fmt.Errorf("%w: %s requires a robot", ErrMalformedCommand, c.Action)
		}
	case ActionEnqueue, ActionStopAll, ActionResumeAll, ActionRandomTasks, ActionOptimize:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, c.Action)
	}
	return nil
}
