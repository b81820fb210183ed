package metrics

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/robofleet/core/events"
	coremetrics "github.com/kilianp07/robofleet/core/metrics"
	"github.com/kilianp07/robofleet/internal/eventbus"
)

func newPromSink(t *testing.T, reg prometheus.Registerer) *PromSink {
	t.Helper()
	sinkIf, err := NewPromSinkWithRegistry(reg)
	if err != nil {
		t.Fatalf("create sink: %v", err)
	}
	sink, ok := sinkIf.(*PromSink)
	if !ok {
		t.Fatalf("expected PromSink")
	}
	return sink
}

func TestPromSink_RecordFleetSample(t *testing.T) {
	sink := newPromSink(t, prometheus.NewRegistry())
	require.NoError(t, sink.RecordFleetSample(coremetrics.FleetSample{
		Robots:         3,
		ByStatus:       map[string]int{"idle": 2, "moving": 1},
		TasksCompleted: 5,
		Distance:       12.5,
		AverageWait:    0.25,
		QueuedTasks:    1,
	}))

	assert.Equal(t, 2.0, testutil.ToFloat64(sink.robots.WithLabelValues("idle")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.robots.WithLabelValues("moving")))
	assert.Equal(t, 0.0, testutil.ToFloat64(sink.robots.WithLabelValues("dead")))
	assert.Equal(t, 5.0, testutil.ToFloat64(sink.tasksCompleted))
	assert.Equal(t, 12.5, testutil.ToFloat64(sink.distance))
	assert.Equal(t, 0.25, testutil.ToFloat64(sink.averageWait))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.queued))
	assert.Equal(t, 6, testutil.CollectAndCount(sink.robots), "one series per status")
}

func TestPromSink_Counters(t *testing.T) {
	sink := newPromSink(t, prometheus.NewRegistry())
	require.NoError(t, sink.RecordTaskOutcome(events.TaskOutcome{Outcome: events.TaskCompleted}))
	require.NoError(t, sink.RecordTaskOutcome(events.TaskOutcome{Outcome: events.TaskCompleted}))
	require.NoError(t, sink.RecordTaskOutcome(events.TaskOutcome{Outcome: events.TaskRejected}))
	require.NoError(t, sink.RecordDeadlock(events.DeadlockEvent{Resolved: true}))
	require.NoError(t, sink.RecordRobotStates([]coremetrics.RobotSample{{Robot: 4, Battery: 42}}))

	expected := `
# HELP fleet_task_outcomes_total Task outcomes by kind
# TYPE fleet_task_outcomes_total counter
fleet_task_outcomes_total{outcome="completed"} 2
fleet_task_outcomes_total{outcome="rejected"} 1
`
	if err := testutil.CollectAndCompare(sink.outcomes, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected metrics: %v", err)
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.deadlocks.WithLabelValues("true")))
	assert.Equal(t, 42.0, testutil.ToFloat64(sink.battery.WithLabelValues("4")))
}

func TestPromSink_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := newPromSink(t, reg)
	second := newPromSink(t, reg)
	require.NoError(t, first.RecordTaskOutcome(events.TaskOutcome{Outcome: events.TaskAborted}))
	assert.Equal(t, 1.0, testutil.ToFloat64(second.outcomes.WithLabelValues(events.TaskAborted)))
}

func TestEventCollector(t *testing.T) {
	sink := newPromSink(t, prometheus.NewRegistry())
	bus := eventbus.New[any](0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := StartEventCollector(ctx, bus, sink)
	require.Eventually(t, func() bool {
		return bus.Publish(events.StatusChange{Robot: 1, From: "idle", To: "moving"}) == 1
	}, time.Second, 10*time.Millisecond)
	bus.Publish(events.TaskOutcome{Outcome: events.TaskCompleted})

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(sink.transitions.WithLabelValues("idle", "moving")) >= 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 0.0, testutil.ToFloat64(sink.outcomes.WithLabelValues(events.TaskCompleted)),
		"outcomes are recorded by the fleet, not the collector")

	bus.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("collector did not stop after bus close")
	}
}

func TestEventCollectorSkipsPlainSinks(t *testing.T) {
	done := StartEventCollector(context.Background(), eventbus.New[any](0), plainSink{})
	select {
	case <-done:
	default:
		t.Fatal("collector should not start without a StatusRecorder")
	}
}

type plainSink struct{}

func (plainSink) RecordFleetSample(coremetrics.FleetSample) error { return nil }

func TestServeRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink := newPromSink(t, reg)
	require.NoError(t, sink.RecordTaskOutcome(events.TaskOutcome{Outcome: events.TaskCompleted}))

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- ServeRegistry(ctx, "127.0.0.1:0", reg) }()
	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
