package fleet

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/kilianp07/robofleet/core/events"
	"github.com/kilianp07/robofleet/core/metrics"
	"github.com/kilianp07/robofleet/core/model"
	"github.com/kilianp07/robofleet/core/navgraph"
	"github.com/kilianp07/robofleet/core/robot"
	"github.com/kilianp07/robofleet/core/traffic"
)

// Task is a request to send a robot to a vertex.
type Task struct {
	ID     string         `json:"id"`
	Target model.VertexID `json:"target"`
	// Robot is the robot the task is bound to, or NoRobot for any robot.
	Robot    model.RobotID `json:"robot"`
	Priority float64       `json:"priority"`

	seq uint64
}

// Score weights used to match robots with open tasks.
const (
	distanceWeight = 0.4
	batteryWeight  = 0.3
	urgencyWeight  = 0.3
)

// blockedFor returns the vertices robot id must plan around: where every
// other robot stands or is heading to, except target.
func (m *Manager) blockedFor(id model.RobotID, target model.VertexID) model.VertexSet {
	blocked := make(model.VertexSet)
	for oid, o := range m.robots {
		if oid == id {
			continue
		}
		blocked.Add(o.Vertex)
		if next, ok := o.Next(); ok && o.InTransit {
			blocked.Add(next)
		}
	}
	delete(blocked, target)
	return blocked
}

// plannedSequences returns the vertex sequence every robot but except will
// visit.
func (m *Manager) plannedSequences(except model.RobotID) map[model.RobotID][]model.VertexID {
	out := make(map[model.RobotID][]model.VertexID, len(m.robots))
	for id, r := range m.robots {
		if id != except {
			out[id] = r.Plan()
		}
	}
	return out
}

// conflicts reports whether route collides with the plan of another robot.
func (m *Manager) conflicts(id model.RobotID, route []model.VertexID) bool {
	plans := m.plannedSequences(id)
	plans[id] = route
	for _, c := range traffic.PredictCollisions(plans) {
		if c.A == id || c.B == id {
			return true
		}
	}
	return false
}

// assign plans, reserves and starts a journey of r to target. It leaves no
// trace when it fails.
func (m *Manager) assign(r *robot.Robot, target model.VertexID, mission robot.Mission, avoid model.VertexSet) error {
	if !m.graph.HasVertex(target) {
		return fmt.Errorf("target %d: %w", target, navgraph.ErrInvalidVertex)
	}
	blocked := m.blockedFor(r.ID, target)
	for v := range avoid {
		if v != r.Vertex && v != target {
			blocked.Add(v)
		}
	}

	var candidates [][]model.VertexID
	if p := m.graph.ShortestPath(r.Vertex, target, blocked); p != nil {
		candidates = append(candidates, p)
	}
	for _, p := range m.graph.AlternativePaths(r.Vertex, target, blocked) {
		if !slices.ContainsFunc(candidates, func(c []model.VertexID) bool { return slices.Equal(c, p) }) {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return fmt.Errorf("robot %d to %d: %w", r.ID, target, navgraph.ErrNoPath)
	}

	for _, route := range candidates {
		if m.conflicts(r.ID, route) || !m.traffic.ReservePath(r.ID, route) {
			continue
		}
		before := r.Status()
		if before == robot.Waiting {
			m.traffic.DequeueWait(r.WaitingOn, r.ID)
		}
		if err := r.Assign(target, route, mission); err != nil {
			m.traffic.Release(r.ID, r.Vertex)
			return err
		}
		m.log.Debugw("route granted", map[string]any{"robot": int(r.ID), "route": route, "mission": mission.String()})
		m.holdForDestination(r)
		m.changed(r, before)
		return nil
	}
	return fmt.Errorf("robot %d to %d: %w", r.ID, target, traffic.ErrReservationConflict)
}

// holdForDestination keeps r where it is while its destination is held by
// another robot.
func (m *Manager) holdForDestination(r *robot.Robot) {
	holder, ok := m.traffic.OccupantOf(r.Target)
	if !ok || holder == r.ID {
		return
	}
	if err := r.Wait(r.Target); err != nil {
		m.fail(err, r)
		return
	}
	m.traffic.EnqueueWait(r.Target, r.ID)
}

// AssignTask sends an idle robot to target right away.
func (m *Manager) AssignTask(target model.VertexID, id model.RobotID) error {
	r, err := m.lookup(id)
	if err != nil {
		return err
	}
	if r.Status() != robot.Idle {
		return fmt.Errorf("robot %d is %s: %w", id, r.Status(), ErrRobotBusy)
	}
	t := m.newTask(target, id, 0)
	if err := m.assign(r, target, robot.TaskMission, nil); err != nil {
		return err
	}
	m.start(r, t)
	return nil
}

func (m *Manager) newTask(target model.VertexID, id model.RobotID, priority float64) Task {
	m.taskSeq++
	return Task{ID: uuid.NewString(), Target: target, Robot: id, Priority: priority, seq: m.taskSeq}
}

// start records t as the active task of r.
func (m *Manager) start(r *robot.Robot, t Task) {
	m.active[r.ID] = t
	m.outcome(t, r.ID, events.TaskAssigned, "")
}

// finishTask closes the active task of r, if any.
func (m *Manager) finishTask(r *robot.Robot, outcome, reason string) {
	t, ok := m.active[r.ID]
	if !ok {
		return
	}
	delete(m.active, r.ID)
	m.outcome(t, r.ID, outcome, reason)
}

func (m *Manager) outcome(t Task, id model.RobotID, outcome, reason string) {
	ev := events.TaskOutcome{TaskID: t.ID, Robot: id, Target: t.Target, Outcome: outcome, Reason: reason, At: m.Now()}
	m.log.Debugw("task "+outcome, map[string]any{"task": t.ID, "robot": int(id), "target": int(t.Target), "reason": reason})
	m.reporter.TaskFinished(ev)
	if rec, ok := m.sink.(metrics.TaskRecorder); ok {
		if err := rec.RecordTaskOutcome(ev); err != nil {
			m.reporter.Error(err, map[string]any{"task": t.ID})
		}
	}
}

// EnqueueTask queues a task for robot id, or for any robot when id is
// NoRobot, and returns its identifier.
func (m *Manager) EnqueueTask(target model.VertexID, id model.RobotID, priority float64) (string, error) {
	if !m.graph.HasVertex(target) {
		return "", fmt.Errorf("target %d: %w", target, navgraph.ErrInvalidVertex)
	}
	if id != model.NoRobot {
		if _, err := m.lookup(id); err != nil {
			return "", err
		}
	}
	t := m.newTask(target, id, priority)
	m.tasks = append(m.tasks, t)
	return t.ID, nil
}

// Tasks returns the queued tasks in submission order.
func (m *Manager) Tasks() []Task {
	out := slices.Clone(m.tasks)
	slices.SortFunc(out, func(a, b Task) int { return cmp.Compare(a.seq, b.seq) })
	return out
}

// RouteToCharger sends a robot to the nearest reachable charging station, or
// docks it when it already stands on one.
func (m *Manager) RouteToCharger(id model.RobotID) error {
	r, err := m.lookup(id)
	if err != nil {
		return err
	}
	switch r.Status() {
	case robot.Charging:
		return nil
	case robot.Idle, robot.Moving, robot.Waiting:
	default:
		return fmt.Errorf("robot %d is %s: %w", id, r.Status(), ErrRobotBusy)
	}
	if r.InTransit {
		return fmt.Errorf("robot %d in transit: %w", id, ErrRobotBusy)
	}
	if m.graph.IsCharger(r.Vertex) {
		return m.dock(r)
	}

	blocked := m.blockedFor(r.ID, model.NoVertex)
	for {
		station, ok := m.graph.NearestChargingStation(r.Vertex, blocked)
		if !ok {
			return fmt.Errorf("robot %d to a charger: %w", id, navgraph.ErrNoPath)
		}
		err := m.assign(r, station, robot.ChargeMission, nil)
		if err == nil {
			m.finishTask(r, events.TaskAborted, "low battery")
			m.log.Infof("robot %d (%.1f%%) heads to charger %s", id, r.Battery, m.graph.Name(station))
			return nil
		}
		if !errors.Is(err, traffic.ErrReservationConflict) {
			return err
		}
		blocked.Add(station)
	}
}

func (m *Manager) dock(r *robot.Robot) error {
	before := r.Status()
	m.finishTask(r, events.TaskAborted, "low battery")
	if before == robot.Waiting {
		m.traffic.DequeueWait(r.WaitingOn, r.ID)
	}
	if err := r.StartCharging(); err != nil {
		return err
	}
	r.WaitingOn = model.NoVertex
	m.grantAll(m.traffic.Release(r.ID, r.Vertex))
	m.changed(r, before)
	return nil
}

// routeLowBattery sends idle robots with a low battery to charge.
func (m *Manager) routeLowBattery() {
	for _, id := range m.ids() {
		r := m.robots[id]
		if r.Status() != robot.Idle || !r.LowBattery() {
			continue
		}
		if err := m.RouteToCharger(id); err != nil {
			m.log.Debugf("robot %d cannot reach a charger yet: %v", id, err)
		}
	}
}

// available reports whether r may take a new task.
func (m *Manager) available(r *robot.Robot) bool {
	return r.Status() == robot.Idle && !r.LowBattery()
}

// score rates how well r suits a task whose route has the given length.
func score(r *robot.Robot, length, urgency float64) float64 {
	return distanceWeight/(1+length) + batteryWeight*r.Battery/100 + urgencyWeight*urgency
}

// routeLength is the length of the best unobstructed route, or false when
// there is none.
func (m *Manager) routeLength(r *robot.Robot, target model.VertexID) (float64, bool) {
	p := m.graph.ShortestPath(r.Vertex, target, m.blockedFor(r.ID, target))
	if p == nil {
		return 0, false
	}
	return m.graph.PathLength(p), true
}

// drainQueue assigns queued tasks, highest priority first. Tasks whose
// target can never be reached are rejected; the others wait for a free robot.
func (m *Manager) drainQueue() {
	if m.cfg.Optimize {
		m.OptimizeAssignment()
		return
	}
	queue := m.ordered()
	m.tasks = m.tasks[:0]
	for _, t := range queue {
		if !m.dispatch(t) {
			m.tasks = append(m.tasks, t)
		}
	}
}

// ordered returns the queue sorted by bound robot priority, task priority,
// then submission order.
func (m *Manager) ordered() []Task {
	queue := slices.Clone(m.tasks)
	robotPriority := func(t Task) float64 {
		if r, ok := m.robots[t.Robot]; ok {
			return r.Priority
		}
		return 0
	}
	slices.SortStableFunc(queue, func(a, b Task) int {
		if pa, pb := robotPriority(a), robotPriority(b); pa != pb {
			return cmp.Compare(pb, pa)
		}
		if a.Priority != b.Priority {
			return cmp.Compare(b.Priority, a.Priority)
		}
		return cmp.Compare(a.seq, b.seq)
	})
	return queue
}

// dispatch tries to start t and reports whether it left the queue.
func (m *Manager) dispatch(t Task) bool {
	if t.Robot != model.NoRobot {
		r, ok := m.robots[t.Robot]
		if !ok || r.Status() == robot.Dead {
			m.outcome(t, t.Robot, events.TaskRejected, "robot unavailable")
			return true
		}
		if r.Status() != robot.Idle {
			return false
		}
		return m.try(r, t)
	}

	var best *robot.Robot
	bestScore := 0.0
	for _, id := range m.ids() {
		r := m.robots[id]
		if !m.available(r) {
			continue
		}
		length, ok := m.routeLength(r, t.Target)
		if !ok {
			continue
		}
		if s := score(r, length, t.Priority); best == nil || s > bestScore {
			best, bestScore = r, s
		}
	}
	if best == nil {
		if m.unreachable(t.Target) {
			m.outcome(t, model.NoRobot, events.TaskRejected, "unreachable")
			return true
		}
		return false
	}
	return m.try(best, t)
}

// try assigns t to r. A target r can never reach rejects the task.
func (m *Manager) try(r *robot.Robot, t Task) bool {
	err := m.assign(r, t.Target, robot.TaskMission, nil)
	if err == nil {
		m.start(r, t)
		return true
	}
	if errors.Is(err, navgraph.ErrNoPath) && m.graph.ShortestPath(r.Vertex, t.Target, nil) == nil {
		m.outcome(t, r.ID, events.TaskRejected, "unreachable")
		m.reporter.Warning("task target unreachable", map[string]any{"task": t.ID, "robot": int(r.ID), "target": int(t.Target)})
		return true
	}
	if errors.Is(err, navgraph.ErrInvalidVertex) {
		m.outcome(t, r.ID, events.TaskRejected, err.Error())
		return true
	}
	return false
}

// unreachable reports whether no live robot could ever reach target.
func (m *Manager) unreachable(target model.VertexID) bool {
	for _, r := range m.robots {
		if r.Status() != robot.Dead && m.graph.ShortestPath(r.Vertex, target, nil) != nil {
			return false
		}
	}
	return len(m.robots) > 0
}

// OptimizeAssignment greedily matches idle robots with queued tasks: each
// robot, in id order, takes the open task with the best score. It returns the
// number of tasks started.
func (m *Manager) OptimizeAssignment() int {
	queue := m.ordered()
	taken := make(map[string]bool)
	started := 0
	for _, id := range m.ids() {
		r := m.robots[id]
		if !m.available(r) {
			continue
		}
		best := -1
		bestScore := 0.0
		for i, t := range queue {
			if taken[t.ID] || (t.Robot != model.NoRobot && t.Robot != id) {
				continue
			}
			length, ok := m.routeLength(r, t.Target)
			if !ok {
				continue
			}
			if s := score(r, length, t.Priority); best < 0 || s > bestScore {
				best, bestScore = i, s
			}
		}
		if best < 0 {
			continue
		}
		if m.try(r, queue[best]) {
			taken[queue[best].ID] = true
			if _, ok := m.active[id]; ok {
				started++
			}
		}
	}
	m.tasks = m.tasks[:0]
	for _, t := range queue {
		if !taken[t.ID] {
			m.tasks = append(m.tasks, t)
		}
	}
	return started
}

// AssignRandomTasks gives every idle robot a random reachable target that is
// neither a charger nor occupied. It returns the number of tasks started.
func (m *Manager) AssignRandomTasks() int {
	started := 0
	for _, id := range m.ids() {
		r := m.robots[id]
		if !m.available(r) {
			continue
		}
		var targets []model.VertexID
		for _, v := range m.graph.Vertices() {
			if v.ID == r.Vertex || v.Charger {
				continue
			}
			if _, held := m.traffic.OccupantOf(v.ID); held {
				continue
			}
			targets = append(targets, v.ID)
		}
		if len(targets) == 0 {
			continue
		}
		target := targets[m.rng.Intn(len(targets))]
		t := m.newTask(target, id, 0)
		if err := m.assign(r, target, robot.TaskMission, nil); err != nil {
			m.log.Debugf("auto task for robot %d to %d: %v", id, target, err)
			continue
		}
		m.start(r, t)
		started++
	}
	return started
}
