package metrics

import (
	"errors"
	"testing"

	"github.com/kilianp07/robofleet/core/events"
)

type recordSink struct {
	count int
	err   error
}

func (r *recordSink) RecordFleetSample(FleetSample) error {
	r.count++
	return r.err
}

func (r *recordSink) RecordTaskOutcome(events.TaskOutcome) error {
	r.count++
	return nil
}

// plainSink implements only the mandatory interface.
type plainSink struct{ count int }

func (p *plainSink) RecordFleetSample(FleetSample) error {
	p.count++
	return nil
}

// TestMultiSink ensures events are forwarded to all sinks.
func TestMultiSink(t *testing.T) {
	s1 := &recordSink{}
	s2 := &recordSink{}
	p := &plainSink{}
	m := NewMultiSink(s1, s2, p)
	if err := m.RecordFleetSample(FleetSample{Robots: 2}); err != nil {
		t.Fatalf("record sample: %v", err)
	}
	if err := m.RecordTaskOutcome(events.TaskOutcome{Outcome: events.TaskCompleted}); err != nil {
		t.Fatalf("record task: %v", err)
	}
	if err := m.RecordDeadlock(events.DeadlockEvent{}); err != nil {
		t.Fatalf("record deadlock: %v", err)
	}
	if s1.count != 2 || s2.count != 2 {
		t.Fatalf("records not forwarded: %d %d", s1.count, s2.count)
	}
	if p.count != 1 {
		t.Fatalf("plain sink should only see samples, got %d", p.count)
	}
}

func TestMultiSinkStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	s1 := &recordSink{err: boom}
	s2 := &recordSink{}
	if err := NewMultiSink(s1, s2).RecordFleetSample(FleetSample{}); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if s2.count != 0 {
		t.Fatalf("second sink should not be called after an error")
	}
}
