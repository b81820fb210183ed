package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/robofleet/core/events"
	coremetrics "github.com/kilianp07/robofleet/core/metrics"
	"github.com/kilianp07/robofleet/core/robot"
)

// PromSink exposes fleet samples as Prometheus metrics.
type PromSink struct {
	robots            *prometheus.GaugeVec
	tasksCompleted    prometheus.Gauge
	distance          prometheus.Gauge
	collisionsAvoided prometheus.Gauge
	averageWait       prometheus.Gauge
	queued            prometheus.Gauge
	reservations      prometheus.Gauge
	battery           *prometheus.GaugeVec
	outcomes          *prometheus.CounterVec
	deadlocks         *prometheus.CounterVec
	transitions       *prometheus.CounterVec
}

// NewPromSink registers fleet metrics on the default Prometheus registerer.
// The HTTP endpoint is started separately with StartPromServer.
func NewPromSink() (coremetrics.MetricsSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// register adds c to reg, returning the collector already registered under
// the same descriptor if any.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func gauge(reg prometheus.Registerer, name, help string) (prometheus.Gauge, error) {
	return register(reg, prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help}))
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (coremetrics.MetricsSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{}
	var err error
	if s.robots, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fleet_robots",
		Help: "Number of robots per status",
	}, []string{"status"})); err != nil {
		return nil, err
	}
	gauges := []struct {
		dst        *prometheus.Gauge
		name, help string
	}{
		{&s.tasksCompleted, "fleet_tasks_completed", "Tasks completed by the fleet"},
		{&s.distance, "fleet_distance_travelled", "Distance travelled by the fleet"},
		{&s.collisionsAvoided, "fleet_collisions_avoided", "Moves held back to avoid a collision"},
		{&s.averageWait, "fleet_average_wait_seconds", "Average time spent waiting per robot"},
		{&s.queued, "fleet_queued_tasks", "Tasks waiting for a robot"},
		{&s.reservations, "fleet_reservations", "Reserved (vertex, time) slots"},
	}
	for _, g := range gauges {
		if *g.dst, err = gauge(reg, g.name, g.help); err != nil {
			return nil, err
		}
	}
	if s.battery, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "robot_battery_percent",
		Help: "Battery level of each robot",
	}, []string{"robot"})); err != nil {
		return nil, err
	}
	if s.outcomes, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_task_outcomes_total",
		Help: "Task outcomes by kind",
	}, []string{"outcome"})); err != nil {
		return nil, err
	}
	if s.deadlocks, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_deadlocks_total",
		Help: "Detected wait-for cycles",
	}, []string{"resolved"})); err != nil {
		return nil, err
	}
	if s.transitions, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "robot_status_transitions_total",
		Help: "Robot status changes",
	}, []string{"from", "to"})); err != nil {
		return nil, err
	}
	return s, nil
}

// RecordFleetSample sets the fleet gauges.
func (s *PromSink) RecordFleetSample(fs coremetrics.FleetSample) error {
	for _, st := range robot.Statuses() {
		s.robots.WithLabelValues(st.String()).Set(float64(fs.ByStatus[st.String()]))
	}
	s.tasksCompleted.Set(float64(fs.TasksCompleted))
	s.distance.Set(fs.Distance)
	s.collisionsAvoided.Set(float64(fs.CollisionsAvoided))
	s.averageWait.Set(fs.AverageWait)
	s.queued.Set(float64(fs.QueuedTasks))
	s.reservations.Set(float64(fs.Reservations))
	return nil
}

// RecordRobotStates sets the battery gauge of every robot.
func (s *PromSink) RecordRobotStates(samples []coremetrics.RobotSample) error {
	for _, r := range samples {
		s.battery.WithLabelValues(r.Robot.String()).Set(r.Battery)
	}
	return nil
}

// RecordTaskOutcome counts task outcomes.
func (s *PromSink) RecordTaskOutcome(ev events.TaskOutcome) error {
	s.outcomes.WithLabelValues(ev.Outcome).Inc()
	return nil
}

// RecordDeadlock counts wait-for cycles.
func (s *PromSink) RecordDeadlock(ev events.DeadlockEvent) error {
	s.deadlocks.WithLabelValues(strconv.FormatBool(ev.Resolved)).Inc()
	return nil
}

// RecordStatusChange counts robot status transitions.
func (s *PromSink) RecordStatusChange(ev events.StatusChange) error {
	s.transitions.WithLabelValues(ev.From, ev.To).Inc()
	return nil
}
