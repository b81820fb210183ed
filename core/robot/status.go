package robot

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned when a status change is not allowed.
var ErrInvalidTransition = errors.New("invalid status transition")

// Status is the state of a robot.
type Status int

const (
	Idle Status = iota
	Moving
	Waiting
	Charging
	EmergencyStopped
	// Dead is terminal: the battery ran out and the robot stays where it is.
	Dead
)

var statusNames = [...]string{
	Idle:             "idle",
	Moving:           "moving",
	Waiting:          "waiting",
	Charging:         "charging",
	EmergencyStopped: "emergency_stopped",
	Dead:             "dead",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("status(%d)", int(s))
	}
	return statusNames[s]
}

// Statuses returns every status in declaration order.
func Statuses() []Status {
	out := make([]Status, len(statusNames))
	for i := range statusNames {
		out[i] = Status(i)
	}
	return out
}

// ParseStatus converts a status name back to a Status.
func ParseStatus(name string) (Status, error) {
	for i, n := range statusNames {
		if n == name {
			return Status(i), nil
		}
	}
	return 0, fmt.Errorf("unknown status %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	if s < 0 || int(s) >= len(statusNames) {
		return nil, fmt.Errorf("unknown status %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// CanTransition reports whether a robot in status s may move to status to.
// Staying in the same status is always allowed except for Dead, which
// accepts nothing.
func (s Status) CanTransition(to Status) bool {
	if s == to {
		return s != Dead
	}
	switch s {
	case Idle:
		return to == Moving || to == Waiting || to == Charging || to == EmergencyStopped || to == Dead
	case Moving:
		return to == Idle || to == Waiting || to == Charging || to == EmergencyStopped || to == Dead
	case Waiting:
		return to == Moving || to == Idle || to == Charging || to == EmergencyStopped || to == Dead
	case Charging:
		return to == Idle || to == EmergencyStopped
	case EmergencyStopped:
		return to == Idle || to == Charging || to == Dead
	case Dead:
		return false
	default:
		return false
	}
}
