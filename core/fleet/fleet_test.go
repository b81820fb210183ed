package fleet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/robofleet/core/events"
	"github.com/kilianp07/robofleet/core/metrics"
	"github.com/kilianp07/robofleet/core/model"
	"github.com/kilianp07/robofleet/core/navgraph"
	"github.com/kilianp07/robofleet/core/robot"
	"github.com/kilianp07/robofleet/core/traffic"
)

// square returns the unit square 0-1-2-3-0 plus an isolated vertex 4.
func square(t *testing.T) *navgraph.Graph {
	t.Helper()
	g, err := navgraph.New([]navgraph.Vertex{
		{Pos: model.Point{X: 0, Y: 0}},
		{Pos: model.Point{X: 1, Y: 0}},
		{Pos: model.Point{X: 1, Y: 1}},
		{Pos: model.Point{X: 0, Y: 1}},
		{Pos: model.Point{X: 5, Y: 5}},
	}, []navgraph.Lane{{From: 0, To: 1}, {From: 1, To: 2}, {From: 2, To: 3}, {From: 3, To: 0}})
	require.NoError(t, err)
	return g
}

// line returns n vertices one unit apart, joined in a row.
func line(t *testing.T, n int, chargers ...int) *navgraph.Graph {
	t.Helper()
	verts := make([]navgraph.Vertex, n)
	var lanes []navgraph.Lane
	for i := range verts {
		verts[i].Pos = model.Point{X: float64(i)}
		if i > 0 {
			lanes = append(lanes, navgraph.Lane{From: model.VertexID(i - 1), To: model.VertexID(i)})
		}
	}
	for _, c := range chargers {
		verts[c].Charger = true
	}
	g, err := navgraph.New(verts, lanes)
	require.NoError(t, err)
	return g
}

type recorder struct {
	changes   []events.StatusChange
	outcomes  []events.TaskOutcome
	deadlocks []events.DeadlockEvent
	warnings  []string
	errs      []error
}

func (r *recorder) StatusChanged(ev events.StatusChange)     { r.changes = append(r.changes, ev) }
func (r *recorder) TaskFinished(ev events.TaskOutcome)       { r.outcomes = append(r.outcomes, ev) }
func (r *recorder) DeadlockDetected(ev events.DeadlockEvent) { r.deadlocks = append(r.deadlocks, ev) }
func (r *recorder) Warning(msg string, _ map[string]any)     { r.warnings = append(r.warnings, msg) }
func (r *recorder) Error(err error, _ map[string]any)        { r.errs = append(r.errs, err) }

func (r *recorder) outcomesOf(kind string) []events.TaskOutcome {
	var out []events.TaskOutcome
	for _, o := range r.outcomes {
		if o.Outcome == kind {
			out = append(out, o)
		}
	}
	return out
}

type sinkRecorder struct {
	samples   []metrics.FleetSample
	robots    [][]metrics.RobotSample
	deadlocks []events.DeadlockEvent
}

func (s *sinkRecorder) RecordFleetSample(f metrics.FleetSample) error {
	s.samples = append(s.samples, f)
	return nil
}

func (s *sinkRecorder) RecordRobotStates(r []metrics.RobotSample) error {
	s.robots = append(s.robots, r)
	return nil
}

func (s *sinkRecorder) RecordDeadlock(ev events.DeadlockEvent) error {
	s.deadlocks = append(s.deadlocks, ev)
	return nil
}

func spawn(t *testing.T, m *Manager, vs ...model.VertexID) []model.RobotID {
	t.Helper()
	ids := make([]model.RobotID, 0, len(vs))
	for _, v := range vs {
		id, err := m.Spawn(v)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}

func status(t *testing.T, m *Manager, id model.RobotID) robot.Status {
	t.Helper()
	v, err := m.Robot(id)
	require.NoError(t, err)
	return v.Status
}

// runUntil ticks until done holds or the tick budget runs out.
func runUntil(m *Manager, dt float64, ticks int, done func() bool) bool {
	for i := 0; i < ticks; i++ {
		if done() {
			return true
		}
		m.Tick(dt)
	}
	return done()
}

func TestSpawn(t *testing.T) {
	m := New(square(t), DefaultConfig())
	ids := spawn(t, m, 0, 2)
	assert.Equal(t, []model.RobotID{0, 1}, ids)

	before := m.Traffic().Occupied()
	_, err := m.Spawn(0)
	assert.ErrorIs(t, err, traffic.ErrVertexOccupied)
	assert.Equal(t, before, m.Traffic().Occupied(), "occupancy unchanged")
	assert.Len(t, m.Robots(), 2)

	_, err = m.Spawn(42)
	assert.ErrorIs(t, err, navgraph.ErrInvalidVertex)

	id, err := m.Spawn(1)
	require.NoError(t, err)
	assert.Equal(t, model.RobotID(2), id, "failed spawns do not consume ids")
}

func TestAssignTaskUnreachable(t *testing.T) {
	m := New(square(t), DefaultConfig())
	id := spawn(t, m, 0)[0]

	err := m.AssignTask(4, id)
	assert.ErrorIs(t, err, navgraph.ErrNoPath)
	assert.Equal(t, robot.Idle, status(t, m, id))
	assert.Empty(t, m.Traffic().Reservations())

	assert.ErrorIs(t, m.AssignTask(99, id), navgraph.ErrInvalidVertex)
	assert.ErrorIs(t, m.AssignTask(1, 7), ErrUnknownRobot)
}

func TestAssignTaskCompletes(t *testing.T) {
	rec := &recorder{}
	m := New(line(t, 4), DefaultConfig(), WithReporter(rec))
	id := spawn(t, m, 0)[0]

	require.NoError(t, m.AssignTask(3, id))
	v, _ := m.Robot(id)
	assert.Equal(t, robot.Moving, v.Status)
	assert.Equal(t, []model.VertexID{1, 2, 3}, v.Path)
	assert.Equal(t, []model.VertexID{1, 2}, m.Traffic().ReservationsOf(id))
	assert.ErrorIs(t, m.AssignTask(1, id), ErrRobotBusy)

	require.True(t, runUntil(m, 0.1, 100, func() bool { return status(t, m, id) == robot.Idle }))
	v, _ = m.Robot(id)
	assert.Equal(t, model.VertexID(3), v.Vertex)
	assert.Equal(t, model.Point{X: 3}, v.Position)
	assert.Equal(t, model.NoVertex, v.Target)
	assert.Empty(t, m.Traffic().Reservations())

	holder, ok := m.Traffic().OccupantOf(3)
	assert.True(t, ok)
	assert.Equal(t, id, holder)
	_, ok = m.Traffic().OccupantOf(0)
	assert.False(t, ok, "vertices left behind are vacated")

	require.Len(t, rec.outcomesOf(events.TaskCompleted), 1)
	assert.Equal(t, model.VertexID(3), rec.outcomesOf(events.TaskCompleted)[0].Target)
	assert.Equal(t, 1, m.Metrics().TasksCompleted)
	assert.InDelta(t, 3.0, m.Metrics().Distance, 1e-9)
}

func TestSquareDeadlock(t *testing.T) {
	sink := &sinkRecorder{}
	rec := &recorder{}
	m := New(square(t), DefaultConfig(), WithSink(sink), WithReporter(rec))
	ids := spawn(t, m, 0, 2)

	require.NoError(t, m.AssignTask(2, ids[0]))
	require.NoError(t, m.AssignTask(0, ids[1]))
	assert.Equal(t, robot.Waiting, status(t, m, ids[0]))
	assert.Equal(t, robot.Waiting, status(t, m, ids[1]))
	assert.Equal(t, []model.RobotID{0, 1}, m.Traffic().DetectDeadlock())

	a, _ := m.Robot(ids[0])
	b, _ := m.Robot(ids[1])
	assert.NotEqual(t, a.Path[0], b.Path[0], "the routes go round opposite sides")

	done := runUntil(m, 0.1, 400, func() bool { return m.Metrics().TasksCompleted == 2 })
	require.True(t, done, "both robots reach their targets")
	a, _ = m.Robot(ids[0])
	b, _ = m.Robot(ids[1])
	assert.Equal(t, model.VertexID(2), a.Vertex)
	assert.Equal(t, model.VertexID(0), b.Vertex)
	assert.Empty(t, m.Traffic().DetectDeadlock())
	assert.GreaterOrEqual(t, m.Deadlocks(), 1)
	require.NotEmpty(t, sink.deadlocks)
	assert.True(t, sink.deadlocks[0].Resolved)
	assert.Equal(t, sink.deadlocks, rec.deadlocks)
}

// bypassGraph returns the corridor 0-1-2 with the detour 0-3-4-2 above it.
func bypassGraph(t *testing.T) *navgraph.Graph {
	t.Helper()
	g, err := navgraph.New([]navgraph.Vertex{
		{Pos: model.Point{X: 0, Y: 0}},
		{Pos: model.Point{X: 1, Y: 0}},
		{Pos: model.Point{X: 2, Y: 0}},
		{Pos: model.Point{X: 0, Y: 1}},
		{Pos: model.Point{X: 2, Y: 1}},
	}, []navgraph.Lane{{From: 0, To: 1}, {From: 1, To: 2}, {From: 0, To: 3}, {From: 3, To: 4}, {From: 4, To: 2}})
	require.NoError(t, err)
	return g
}

// waitingState is a robot on v waiting for the next hop of path.
func waitingState(g *navgraph.Graph, v, target model.VertexID, battery float64, path ...model.VertexID) RobotState {
	pos, _ := g.Position(v)
	return RobotState{
		Position: pos, CurrentVertex: v, TargetVertex: target, Battery: battery,
		State: robot.Waiting, IsWaiting: true, WaitingOn: path[0],
		PreviousVertex: model.NoVertex, ResumeTarget: model.NoVertex, Mission: robot.TaskMission,
	}
}

func TestDeadlockResolvedByDetour(t *testing.T) {
	g := bypassGraph(t)
	rec := &recorder{}
	m := New(g, DefaultConfig(), WithReporter(rec))
	// Robot 0 waits on 0 for vertex 1, held by robot 1 which waits for 0.
	require.NoError(t, m.Restore(Snapshot{
		Robots: map[model.RobotID]RobotState{
			0: waitingState(g, 0, 2, 40, 1, 2),
			1: waitingState(g, 1, 0, 60, 0),
		},
		Paths:  map[model.RobotID][]model.VertexID{0: {1, 2}, 1: {0}},
		NextID: 2,
	}))
	require.Equal(t, []model.RobotID{0, 1}, m.Traffic().DetectDeadlock())

	m.checkDeadlock()
	require.Len(t, rec.deadlocks, 1)
	assert.True(t, rec.deadlocks[0].Resolved)
	a, err := m.Robot(0)
	require.NoError(t, err)
	assert.Equal(t, []model.VertexID{3, 4, 2}, a.Path, "the lower battery robot takes the bypass")
	assert.Equal(t, robot.Moving, a.Status)
	assert.Empty(t, m.Traffic().QueueOf(1))

	done := runUntil(m, 0.1, 400, func() bool {
		return m.robots[0].Vertex == 2 && m.robots[1].Vertex == 0 &&
			status(t, m, 0) == robot.Idle && status(t, m, 1) == robot.Idle
	})
	require.True(t, done, "both robots reach their targets")
	assert.Empty(t, m.Traffic().DetectDeadlock())
}

func TestDeadlockUnresolvedWithoutRoom(t *testing.T) {
	g := line(t, 3)
	rec := &recorder{}
	m := New(g, DefaultConfig(), WithReporter(rec))
	// Robots 0 and 1 want to swap places and robot 2 fills the only spare vertex.
	require.NoError(t, m.Restore(Snapshot{
		Robots: map[model.RobotID]RobotState{
			0: waitingState(g, 0, 1, 50, 1),
			1: waitingState(g, 1, 0, 50, 0),
			2: {Position: model.Point{X: 2}, CurrentVertex: 2, TargetVertex: model.NoVertex, Battery: 50,
				State: robot.Idle, WaitingOn: model.NoVertex, PreviousVertex: model.NoVertex, ResumeTarget: model.NoVertex},
		},
		Paths:  map[model.RobotID][]model.VertexID{0: {1}, 1: {0}},
		NextID: 3,
	}))
	require.Equal(t, []model.RobotID{0, 1}, m.Traffic().DetectDeadlock())

	m.checkDeadlock()
	require.Len(t, rec.deadlocks, 1)
	assert.False(t, rec.deadlocks[0].Resolved)
	assert.Contains(t, rec.warnings, "deadlock unresolved")
	assert.Equal(t, robot.Waiting, status(t, m, 0))
	assert.Equal(t, robot.Waiting, status(t, m, 1))
	assert.Equal(t, []model.RobotID{0, 1}, m.Traffic().DetectDeadlock(), "nothing moved")
}

func TestRouteToChargerWithinOneTick(t *testing.T) {
	m := New(line(t, 4, 3), DefaultConfig())
	id := spawn(t, m, 0)[0]
	m.robots[id].Battery = 19

	m.Tick(0.1)
	v, _ := m.Robot(id)
	assert.Equal(t, robot.Moving, v.Status)
	assert.Equal(t, model.VertexID(3), v.Target)
	assert.Equal(t, "charge", v.Mission)

	minBattery := v.Battery
	charging := runUntil(m, 0.1, 200, func() bool {
		minBattery = min(minBattery, m.robots[id].Battery)
		return status(t, m, id) == robot.Charging
	})
	require.True(t, charging)
	assert.Greater(t, minBattery, 0.0)
	assert.Equal(t, model.VertexID(3), m.robots[id].Vertex)

	require.True(t, runUntil(m, 0.1, 400, func() bool { return status(t, m, id) == robot.Idle }))
	assert.Equal(t, 100.0, m.robots[id].Battery)
}

func TestRouteToChargerDocksInPlace(t *testing.T) {
	m := New(line(t, 3, 0), DefaultConfig())
	id := spawn(t, m, 0)[0]
	m.robots[id].Battery = 50
	require.NoError(t, m.RouteToCharger(id))
	assert.Equal(t, robot.Charging, status(t, m, id))
	require.NoError(t, m.RouteToCharger(id), "already charging")

	m2 := New(square(t), DefaultConfig())
	id = spawn(t, m2, 0)[0]
	assert.ErrorIs(t, m2.RouteToCharger(id), navgraph.ErrNoPath, "no charger at all")
}

func TestEmergencyStop(t *testing.T) {
	rec := &recorder{}
	m := New(line(t, 5), DefaultConfig(), WithReporter(rec))
	ids := spawn(t, m, 0, 4)
	require.NoError(t, m.AssignTask(2, ids[0]))
	m.Tick(0.5)

	m.EmergencyStopAll()
	for _, id := range ids {
		v, _ := m.Robot(id)
		assert.Equal(t, robot.EmergencyStopped, v.Status)
		assert.True(t, v.EmergencyStop)
		assert.Empty(t, v.Path)
	}
	assert.Empty(t, m.Traffic().Reservations())
	assert.Equal(t, model.Point{}, m.robots[ids[0]].Position, "put back on the vertex it left")
	_, ok := m.Traffic().LaneOccupant(0, 1)
	assert.False(t, ok)
	_, ok = m.Traffic().OccupantOf(1)
	assert.False(t, ok, "the vertex ahead is released")
	assert.Len(t, rec.outcomesOf(events.TaskAborted), 1)

	m.Tick(1)
	assert.Equal(t, robot.EmergencyStopped, status(t, m, ids[0]), "stopped robots stay put")

	m.ResumeAll()
	assert.Equal(t, robot.Idle, status(t, m, ids[0]))
	assert.Equal(t, robot.Idle, status(t, m, ids[1]))

	require.NoError(t, m.ToggleEmergencyStop(ids[1]))
	assert.Equal(t, robot.EmergencyStopped, status(t, m, ids[1]))
	m.ResumeAll()
	assert.Equal(t, robot.Idle, status(t, m, ids[0]), "resume leaves running robots alone")
	assert.Equal(t, robot.Idle, status(t, m, ids[1]))
	assert.ErrorIs(t, m.ToggleEmergencyStop(9), ErrUnknownRobot)
}

func TestWaiterGivesUpOnStoppedTarget(t *testing.T) {
	rec := &recorder{}
	m := New(line(t, 3), DefaultConfig(), WithReporter(rec))
	ids := spawn(t, m, 0, 2)

	require.NoError(t, m.AssignTask(2, ids[0]))
	assert.Equal(t, robot.Waiting, status(t, m, ids[0]), "destination held by robot 1")
	assert.Equal(t, []model.RobotID{ids[0]}, m.Traffic().QueueOf(2))

	require.NoError(t, m.ToggleEmergencyStop(ids[1]))
	m.Tick(0.1)
	assert.Equal(t, robot.Idle, status(t, m, ids[0]))
	assert.Empty(t, m.Traffic().QueueOf(2))
	require.Len(t, rec.outcomesOf(events.TaskAborted), 1)
	assert.Equal(t, ids[0], rec.outcomesOf(events.TaskAborted)[0].Robot)
}

func TestWaiterReroutesAroundStoppedRobot(t *testing.T) {
	m := New(square(t), DefaultConfig())
	a := spawn(t, m, 0)[0]
	require.NoError(t, m.AssignTask(2, a))
	next := m.robots[a].Path[0]

	b := spawn(t, m, next)[0]
	m.Tick(0.1)
	assert.Equal(t, robot.Waiting, status(t, m, a))
	assert.Equal(t, next, m.robots[a].WaitingOn)
	assert.Equal(t, 1, m.robots[a].CollisionsAvoided)

	require.NoError(t, m.ToggleEmergencyStop(b))
	m.Tick(0.1)
	v, _ := m.Robot(a)
	assert.Equal(t, robot.Moving, v.Status)
	assert.NotContains(t, v.Path, next)
	assert.Equal(t, model.VertexID(2), v.Target)
}

func TestDepletion(t *testing.T) {
	rec := &recorder{}
	m := New(line(t, 4), DefaultConfig(), WithReporter(rec))
	id := spawn(t, m, 0)[0]
	require.NoError(t, m.AssignTask(3, id))
	m.robots[id].Battery = 0.015

	m.Tick(0.1)
	m.Tick(0.1)
	assert.Equal(t, robot.Dead, status(t, m, id))
	assert.Empty(t, m.Traffic().Reservations())
	holder, ok := m.Traffic().OccupantOf(0)
	require.True(t, ok, "a dead robot is an obstacle")
	assert.Equal(t, id, holder)
	assert.Contains(t, rec.warnings, "battery depleted")
	assert.Len(t, rec.outcomesOf(events.TaskAborted), 1)

	m.Tick(1)
	assert.Equal(t, robot.Dead, status(t, m, id))
	assert.ErrorIs(t, m.ToggleEmergencyStop(id), robot.ErrInvalidTransition)
}

func TestQueuePicksBestRobot(t *testing.T) {
	rec := &recorder{}
	m := New(line(t, 5), DefaultConfig(), WithReporter(rec))
	ids := spawn(t, m, 0, 4)

	_, err := m.EnqueueTask(3, model.NoRobot, 0)
	require.NoError(t, err)
	assert.Len(t, m.Tasks(), 1)

	m.Tick(0.1)
	assert.Empty(t, m.Tasks())
	assert.Equal(t, robot.Idle, status(t, m, ids[0]))
	assert.Equal(t, robot.Moving, status(t, m, ids[1]), "the nearer robot takes the task")
	require.Len(t, rec.outcomesOf(events.TaskAssigned), 1)
}

func TestQueueBoundTasks(t *testing.T) {
	m := New(line(t, 5), DefaultConfig())
	id := spawn(t, m, 0)[0]
	require.NoError(t, m.AssignTask(2, id))

	taskID, err := m.EnqueueTask(4, id, 1)
	require.NoError(t, err)
	assert.NotEmpty(t, taskID)
	m.Tick(0.1)
	require.Len(t, m.Tasks(), 1, "waits for the robot to be idle")
	assert.Equal(t, taskID, m.Tasks()[0].ID)

	require.True(t, runUntil(m, 0.1, 200, func() bool { return m.Metrics().TasksCompleted == 2 }))
	assert.Equal(t, model.VertexID(4), m.robots[id].Vertex)

	_, err = m.EnqueueTask(99, id, 0)
	assert.ErrorIs(t, err, navgraph.ErrInvalidVertex)
	_, err = m.EnqueueTask(1, 5, 0)
	assert.ErrorIs(t, err, ErrUnknownRobot)
}

func TestQueueRejectsUnreachable(t *testing.T) {
	rec := &recorder{}
	m := New(square(t), DefaultConfig(), WithReporter(rec))
	spawn(t, m, 0)
	_, err := m.EnqueueTask(4, model.NoRobot, 0)
	require.NoError(t, err)

	m.Tick(0.1)
	assert.Empty(t, m.Tasks())
	require.Len(t, rec.outcomesOf(events.TaskRejected), 1)
	assert.Equal(t, "unreachable", rec.outcomesOf(events.TaskRejected)[0].Reason)
}

func TestQueueOrder(t *testing.T) {
	m := New(line(t, 5), DefaultConfig())
	spawn(t, m, 0)
	low, _ := m.EnqueueTask(1, model.NoRobot, 0)
	high, _ := m.EnqueueTask(2, model.NoRobot, 3)
	mid, _ := m.EnqueueTask(3, model.NoRobot, 1)

	var got []string
	for _, task := range m.ordered() {
		got = append(got, task.ID)
	}
	assert.Equal(t, []string{high, mid, low}, got)

	var submitted []string
	for _, task := range m.Tasks() {
		submitted = append(submitted, task.ID)
	}
	assert.Equal(t, []string{low, high, mid}, submitted)
}

func TestOptimizeAssignment(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Optimize = true
	m := New(line(t, 7), cfg)
	ids := spawn(t, m, 0, 6)
	_, err := m.EnqueueTask(5, model.NoRobot, 0)
	require.NoError(t, err)
	_, err = m.EnqueueTask(1, model.NoRobot, 0)
	require.NoError(t, err)

	assert.Equal(t, 2, m.OptimizeAssignment())
	assert.Empty(t, m.Tasks())
	assert.Equal(t, model.VertexID(1), m.robots[ids[0]].Target)
	assert.Equal(t, model.VertexID(5), m.robots[ids[1]].Target)
	assert.Zero(t, m.OptimizeAssignment(), "nobody is idle")
}

func TestScore(t *testing.T) {
	r := robot.New(0, 0, model.Point{}, robot.DefaultConfig())
	assert.InDelta(t, 0.4/3+0.3+0.3*2, score(r, 2, 2), 1e-9)
	r.Battery = 50
	assert.InDelta(t, 0.4+0.15, score(r, 0, 0), 1e-9)
}

func TestAutoMode(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AutoMode = true
	cfg.AutoInterval = 1
	g := line(t, 6, 5)
	m := New(g, cfg)
	id := spawn(t, m, 0)[0]

	m.Tick(0.5)
	assert.Equal(t, robot.Idle, status(t, m, id))
	m.Tick(0.5)
	v, _ := m.Robot(id)
	require.Equal(t, robot.Moving, v.Status)
	assert.NotEqual(t, model.VertexID(0), v.Target)
	assert.False(t, g.IsCharger(v.Target))

	m.robots[id].Battery = 10
	assert.Zero(t, m.AssignRandomTasks(), "busy robots are skipped")
}

func TestMetricsAndReport(t *testing.T) {
	sink := &sinkRecorder{}
	cfg := DefaultConfig()
	cfg.RecordRobotStates = true
	m := New(line(t, 3), cfg, WithSink(sink))
	spawn(t, m, 0, 2)
	m.Tick(1)

	require.Len(t, sink.samples, 1)
	s := sink.samples[0]
	assert.Equal(t, 2, s.Robots)
	assert.Equal(t, map[string]int{"idle": 2}, s.ByStatus)
	assert.InDelta(t, 1.0, s.Time, 1e-9)
	require.Len(t, sink.robots, 1)
	assert.Len(t, sink.robots[0], 2)
	assert.InDelta(t, 99.9, sink.robots[0][0].Battery, 1e-9)

	report := m.Report()
	require.Len(t, report, 2)
	assert.Equal(t, model.RobotID(1), report[1].Robot)
	assert.Equal(t, "idle", report[1].Status)
}

func TestClearAll(t *testing.T) {
	m := New(line(t, 4), DefaultConfig())
	ids := spawn(t, m, 0, 3)
	require.NoError(t, m.AssignTask(1, ids[0]))
	_, err := m.EnqueueTask(2, model.NoRobot, 0)
	require.NoError(t, err)
	m.Tick(0.5)
	session := m.SessionID()

	m.ClearAll()
	assert.NotEqual(t, session, m.SessionID(), "a cleared fleet starts a new session")
	assert.Zero(t, m.Now())
	assert.Empty(t, m.Robots())
	assert.Empty(t, m.Tasks())
	assert.Empty(t, m.Traffic().Occupied())
	assert.Empty(t, m.Traffic().Reservations())
	_, err = m.Robot(ids[1])
	assert.ErrorIs(t, err, ErrUnknownRobot)

	id, err := m.Spawn(3)
	require.NoError(t, err)
	assert.Equal(t, model.RobotID(0), id)
}
