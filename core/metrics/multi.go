package metrics

import "github.com/kilianp07/robofleet/core/events"

// MultiSink fans out records to several sinks. Optional recorders are only
// called on sinks implementing them.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink combines sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordFleetSample forwards the sample to all sinks, returning the first error encountered.
func (m *MultiSink) RecordFleetSample(s FleetSample) error {
	for _, sink := range m.Sinks {
		if err := sink.RecordFleetSample(s); err != nil {
			return err
		}
	}
	return nil
}

// RecordRobotStates forwards robot snapshots.
func (m *MultiSink) RecordRobotStates(samples []RobotSample) error {
	for _, sink := range m.Sinks {
		if rec, ok := sink.(RobotStateRecorder); ok {
			if err := rec.RecordRobotStates(samples); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordTaskOutcome forwards task outcomes.
func (m *MultiSink) RecordTaskOutcome(ev events.TaskOutcome) error {
	for _, sink := range m.Sinks {
		if rec, ok := sink.(TaskRecorder); ok {
			if err := rec.RecordTaskOutcome(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordDeadlock forwards deadlock events.
func (m *MultiSink) RecordDeadlock(ev events.DeadlockEvent) error {
	for _, sink := range m.Sinks {
		if rec, ok := sink.(DeadlockRecorder); ok {
			if err := rec.RecordDeadlock(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordStatusChange forwards status transitions.
func (m *MultiSink) RecordStatusChange(ev events.StatusChange) error {
	for _, sink := range m.Sinks {
		if rec, ok := sink.(StatusRecorder); ok {
			if err := rec.RecordStatusChange(ev); err != nil {
				return err
			}
		}
	}
	return nil
}
