// Package fleet coordinates a fleet of robots on a navigation graph. The
// Manager owns the robot registry and the task queue; it plans with
// navgraph, arbitrates through traffic and drives every robot once per tick.
//
// A Manager is not safe for concurrent use. Callers serialise access, see
// app.Service.
package fleet

import (
	"errors"
	"fmt"
	"math/rand"
	"slices"

	"github.com/google/uuid"

	"github.com/kilianp07/robofleet/core/events"
	"github.com/kilianp07/robofleet/core/logger"
	"github.com/kilianp07/robofleet/core/metrics"
	"github.com/kilianp07/robofleet/core/model"
	"github.com/kilianp07/robofleet/core/navgraph"
	"github.com/kilianp07/robofleet/core/robot"
	"github.com/kilianp07/robofleet/core/traffic"
)

var (
	// ErrUnknownRobot is returned when a robot id is not registered.
	ErrUnknownRobot = errors.New("unknown robot")
	// ErrRobotBusy is returned when an operation needs an idle robot.
	ErrRobotBusy = errors.New("robot busy")
	// ErrPersistence wraps snapshot storage failures.
	ErrPersistence = errors.New("persistence error")
	// ErrInvalidSnapshot is returned when a snapshot does not fit the graph.
	ErrInvalidSnapshot = errors.New("invalid snapshot")
)

// Config tunes the orchestrator.
type Config struct {
	Robot   robot.Config   `json:"robot"`
	Traffic traffic.Config `json:"traffic"`
	// DeadlockInterval is the time between two wait-for cycle checks.
	DeadlockInterval float64 `json:"deadlock_interval"`
	// AutoMode hands random targets to idle robots every AutoInterval.
	AutoMode     bool    `json:"auto_mode"`
	AutoInterval float64 `json:"auto_interval"`
	// Optimize matches open tasks with OptimizeAssignment instead of
	// handing each task to its best robot in queue order.
	Optimize bool `json:"optimize"`
	// RecordRobotStates sends one sample per robot and tick to sinks
	// implementing metrics.RobotStateRecorder.
	RecordRobotStates bool  `json:"record_robot_states"`
	Seed              int64 `json:"seed"`
}

// DefaultConfig returns the standard orchestrator settings.
func DefaultConfig() Config {
	return Config{
		Robot:            robot.DefaultConfig(),
		Traffic:          traffic.DefaultConfig(),
		DeadlockInterval: 1,
		AutoInterval:     3,
		Seed:             1,
	}
}

// Manager is the fleet orchestrator.
type Manager struct {
	cfg      Config
	graph    *navgraph.Graph
	traffic  *traffic.Manager
	robots   map[model.RobotID]*robot.Robot
	nextID   model.RobotID
	tasks    []Task
	active   map[model.RobotID]Task
	taskSeq  uint64
	sink     metrics.MetricsSink
	reporter Reporter
	log      logger.Logger
	rng      *rand.Rand
	session  string

	sinceDeadlock float64
	sinceAuto     float64
	deadlocks     int
}

// Option customises a Manager.
type Option func(*Manager)

// WithSink sets the metrics sink.
func WithSink(s metrics.MetricsSink) Option {
	return func(m *Manager) {
		if s != nil {
			m.sink = s
		}
	}
}

// WithReporter sets the observer notified of status changes and problems.
func WithReporter(r Reporter) Option {
	return func(m *Manager) {
		if r != nil {
			m.reporter = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(m *Manager) { m.log = logger.OrNop(l) }
}

// New returns an empty fleet on g.
func New(g *navgraph.Graph, cfg Config, opts ...Option) *Manager {
	def := DefaultConfig()
	if cfg.DeadlockInterval <= 0 {
		cfg.DeadlockInterval = def.DeadlockInterval
	}
	if cfg.AutoInterval <= 0 {
		cfg.AutoInterval = def.AutoInterval
	}
	if cfg.Robot == (robot.Config{}) {
		cfg.Robot = def.Robot
	}
	m := &Manager{
		cfg:      cfg,
		graph:    g,
		robots:   make(map[model.RobotID]*robot.Robot),
		active:   make(map[model.RobotID]Task),
		sink:     metrics.NopSink{},
		reporter: NopReporter{},
		log:      logger.NopLogger{},
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		session:  uuid.NewString(),
	}
	for _, o := range opts {
		o(m)
	}
	m.traffic = traffic.NewManager(cfg.Traffic, m.log)
	return m
}

// Graph returns the navigation graph.
func (m *Manager) Graph() *navgraph.Graph { return m.graph }

// Traffic exposes the traffic manager for read-only inspection.
func (m *Manager) Traffic() *traffic.Manager { return m.traffic }

// SessionID identifies the run that produced the current state.
func (m *Manager) SessionID() string { return m.session }

// Now returns the simulation clock.
func (m *Manager) Now() float64 { return m.traffic.Now() }

// Spawn places a new idle robot on v.
func (m *Manager) Spawn(v model.VertexID) (model.RobotID, error) {
	pos, ok := m.graph.Position(v)
	if !ok {
		return model.NoRobot, fmt.Errorf("spawn on %d: %w", v, navgraph.ErrInvalidVertex)
	}
	id := m.nextID
	if err := m.traffic.Occupy(id, v); err != nil {
		return model.NoRobot, fmt.Errorf("spawn on %d: %w", v, err)
	}
	m.robots[id] = robot.New(id, v, pos, m.cfg.Robot)
	m.nextID++
	m.log.Infof("robot %d spawned on %s", id, m.graph.Name(v))
	m.reporter.StatusChanged(events.StatusChange{Robot: id, To: robot.Idle.String(), Vertex: v, Battery: 100, At: m.Now()})
	return id, nil
}

// ClearAll removes every robot and task, rewinds the id allocator and the
// clock, and starts a new session.
func (m *Manager) ClearAll() {
	m.robots = make(map[model.RobotID]*robot.Robot)
	m.active = make(map[model.RobotID]Task)
	m.tasks = nil
	m.nextID = 0
	m.traffic.Reset()
	m.sinceDeadlock, m.sinceAuto, m.deadlocks = 0, 0, 0
	m.session = uuid.NewString()
	m.log.Infof("fleet cleared, session %s", m.session)
}

func (m *Manager) ids() []model.RobotID {
	ids := make([]model.RobotID, 0, len(m.robots))
	for id := range m.robots {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (m *Manager) lookup(id model.RobotID) (*robot.Robot, error) {
	r, ok := m.robots[id]
	if !ok {
		return nil, fmt.Errorf("robot %d: %w", id, ErrUnknownRobot)
	}
	return r, nil
}

// changed reports a status change of r since before.
func (m *Manager) changed(r *robot.Robot, before robot.Status) {
	if r.Status() == before {
		return
	}
	m.log.Debugw("status change", map[string]any{"robot": int(r.ID), "from": before.String(), "to": r.Status().String()})
	m.reporter.StatusChanged(events.StatusChange{
		Robot:   r.ID,
		From:    before.String(),
		To:      r.Status().String(),
		Vertex:  r.Vertex,
		Battery: r.Battery,
		At:      m.Now(),
	})
}

// fail reports an unexpected error, typically a refused transition.
func (m *Manager) fail(err error, r *robot.Robot) {
	if err == nil {
		return
	}
	m.log.Errorf("robot %d: %v", r.ID, err)
	m.reporter.Error(err, map[string]any{"robot": int(r.ID), "status": r.Status().String()})
}

// grantAll hands freed vertices to the robots that were waiting for them.
func (m *Manager) grantAll(woken []model.RobotID) {
	for _, id := range woken {
		m.grant(id)
	}
}

// grant lets a waiting robot continue once the vertex it waited on is free.
func (m *Manager) grant(id model.RobotID) {
	r, ok := m.robots[id]
	if !ok || r.Status() != robot.Waiting {
		return
	}
	m.traffic.DequeueWait(r.WaitingOn, id)
	if err := r.StopWaiting(); err != nil {
		m.fail(err, r)
		return
	}
	m.depart(r)
	m.changed(r, robot.Waiting)
}

// depart claims the next hop for a moving robot, or makes it wait.
func (m *Manager) depart(r *robot.Robot) {
	if r.Status() != robot.Moving || r.InTransit {
		return
	}
	next, ok := r.Next()
	if !ok {
		return
	}
	if m.traffic.Enter(r.ID, r.Vertex, next) {
		r.Depart()
		return
	}
	if err := r.Wait(next); err != nil {
		m.fail(err, r)
		return
	}
	m.traffic.EnqueueWait(next, r.ID)
	r.CollisionsAvoided++
	m.log.Debugf("robot %d waits for vertex %d", r.ID, next)
}

// EmergencyStopAll stops every robot that is not stopped yet.
func (m *Manager) EmergencyStopAll() {
	for _, id := range m.ids() {
		if r := m.robots[id]; !r.EmergencyStop && r.Status() != robot.Dead {
			m.stop(r)
		}
	}
}

// ResumeAll clears the emergency stop of every stopped robot.
func (m *Manager) ResumeAll() {
	for _, id := range m.ids() {
		if r := m.robots[id]; r.EmergencyStop {
			m.resume(r)
		}
	}
}

// ToggleEmergencyStop stops a running robot or resumes a stopped one.
func (m *Manager) ToggleEmergencyStop(id model.RobotID) error {
	r, err := m.lookup(id)
	if err != nil {
		return err
	}
	if r.EmergencyStop {
		m.resume(r)
		return nil
	}
	if r.Status() == robot.Dead {
		return fmt.Errorf("robot %d: %w", id, robot.ErrInvalidTransition)
	}
	m.stop(r)
	return nil
}

func (m *Manager) stop(r *robot.Robot) {
	before := r.Status()
	if err := r.Stop(m.graph); err != nil {
		m.fail(err, r)
		return
	}
	m.finishTask(r, events.TaskAborted, "emergency stop")
	m.grantAll(m.traffic.Release(r.ID, r.Vertex))
	m.changed(r, before)
}

func (m *Manager) resume(r *robot.Robot) {
	before := r.Status()
	if err := r.Resume(m.graph.IsCharger(r.Vertex)); err != nil {
		m.fail(err, r)
		return
	}
	m.changed(r, before)
}
