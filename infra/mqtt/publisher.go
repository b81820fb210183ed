package mqtt

import (
	"sync"

	"github.com/kilianp07/robofleet/core/events"
	coremqtt "github.com/kilianp07/robofleet/core/mqtt"
)

// MemoryTelemetry is an in-process Telemetry and CommandSource used in tests
// and when no broker is configured.
type MemoryTelemetry struct {
	mu        sync.Mutex
	Statuses  []events.StatusChange
	Outcomes  []events.TaskOutcome
	Deadlocks []events.DeadlockEvent
	Acks      map[string]error
	// Fail, when set, is returned by every publish call.
	Fail error

	commands chan coremqtt.Command
}

var (
	_ coremqtt.Telemetry     = (*MemoryTelemetry)(nil)
	_ coremqtt.CommandSource = (*MemoryTelemetry)(nil)
)

// NewMemoryTelemetry creates a MemoryTelemetry buffering up to buffer commands.
func NewMemoryTelemetry(buffer int) *MemoryTelemetry {
	return &MemoryTelemetry{
		Acks:     make(map[string]error),
		commands: make(chan coremqtt.Command, buffer),
	}
}

// Send queues a command as if it came from the broker.
func (m *MemoryTelemetry) Send(cmd coremqtt.Command) {
	m.commands <- cmd
}

// Commands implements CommandSource.
func (m *MemoryTelemetry) Commands() <-chan coremqtt.Command { return m.commands }

// PublishStatus records the status change.
func (m *MemoryTelemetry) PublishStatus(ev events.StatusChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	m.Statuses = append(m.Statuses, ev)
	return nil
}

// PublishTaskOutcome records the outcome.
func (m *MemoryTelemetry) PublishTaskOutcome(ev events.TaskOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	m.Outcomes = append(m.Outcomes, ev)
	return nil
}

// PublishDeadlock records the deadlock.
func (m *MemoryTelemetry) PublishDeadlock(ev events.DeadlockEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	m.Deadlocks = append(m.Deadlocks, ev)
	return nil
}

// PublishAck records the command result.
func (m *MemoryTelemetry) PublishAck(commandID string, err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	m.Acks[commandID] = err
	return nil
}

// Ack reports whether the command was acknowledged and with which error.
func (m *MemoryTelemetry) Ack(commandID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	err, ok := m.Acks[commandID]
	return ok, err
}

// Counts returns how many events of each kind were published.
func (m *MemoryTelemetry) Counts() (statuses, outcomes, deadlocks int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Statuses), len(m.Outcomes), len(m.Deadlocks)
}
