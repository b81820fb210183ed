package fleet

import (
	"github.com/kilianp07/robofleet/core/events"
	"github.com/kilianp07/robofleet/core/metrics"
	"github.com/kilianp07/robofleet/core/model"
	"github.com/kilianp07/robofleet/core/robot"
)

// Tick advances the simulation by dt seconds. Robots are processed in
// ascending id order so that a replay with the same inputs is identical.
func (m *Manager) Tick(dt float64) {
	if dt <= 0 {
		return
	}
	m.traffic.Advance(dt)

	for _, id := range m.ids() {
		m.step(m.robots[id], dt)
	}
	m.pollWaiting()
	m.routeLowBattery()
	m.drainQueue()

	if m.cfg.AutoMode {
		m.sinceAuto += dt
		if m.sinceAuto >= m.cfg.AutoInterval {
			m.sinceAuto = 0
			m.AssignRandomTasks()
		}
	}
	m.sinceDeadlock += dt
	if m.sinceDeadlock >= m.cfg.DeadlockInterval {
		m.sinceDeadlock = 0
		m.checkDeadlock()
	}
	m.record()
}

func (m *Manager) step(r *robot.Robot, dt float64) {
	before := r.Status()
	m.depart(r)
	from := r.Vertex
	ev := r.Update(dt, m.graph)
	if r.Vertex != from {
		if next, ok := m.traffic.Arrive(r.ID, from, r.Vertex); ok {
			m.grant(next)
		}
	}

	switch ev {
	case robot.Arrived:
		m.depart(r)
	case robot.Completed:
		m.complete(r)
	case robot.Charged:
		m.log.Infof("robot %d fully charged", r.ID)
	case robot.Depleted:
		m.finishTask(r, events.TaskAborted, "battery depleted")
		m.grantAll(m.traffic.Release(r.ID, r.Vertex))
		m.log.Warnf("robot %d ran out of battery on %s", r.ID, m.graph.Name(r.Vertex))
		m.reporter.Warning("battery depleted", map[string]any{"robot": int(r.ID), "vertex": int(r.Vertex)})
	}
	m.changed(r, before)
}

// complete handles the end of a journey.
func (m *Manager) complete(r *robot.Robot) {
	mission, resume := r.Mission, r.ResumeTarget
	r.Mission, r.Target, r.ResumeTarget = robot.NoMission, model.NoVertex, model.NoVertex
	m.grantAll(m.traffic.Release(r.ID, r.Vertex))

	switch mission {
	case robot.TaskMission:
		r.TasksCompleted++
		m.finishTask(r, events.TaskCompleted, "")
	case robot.ChargeMission:
		if m.graph.IsCharger(r.Vertex) {
			if err := r.StartCharging(); err != nil {
				m.fail(err, r)
			}
		}
	case robot.RetreatMission:
		if t, ok := m.active[r.ID]; ok {
			delete(m.active, r.ID)
			t.Robot = r.ID
			m.tasks = append(m.tasks, t)
		} else if resume != model.NoVertex {
			m.tasks = append(m.tasks, m.newTask(resume, r.ID, 0))
		}
		m.log.Debugf("robot %d backed off to %s", r.ID, m.graph.Name(r.Vertex))
	}
}

// pollWaiting revisits waiting robots: a freed vertex lets them go on, a
// vertex held by a robot that will never move makes them re-plan or give up.
func (m *Manager) pollWaiting() {
	for _, id := range m.ids() {
		r := m.robots[id]
		if r.Status() != robot.Waiting {
			continue
		}
		holder, held := m.traffic.OccupantOf(r.WaitingOn)
		if !held || holder == id {
			m.grant(id)
			continue
		}
		h, ok := m.robots[holder]
		if !ok || (h.Status() != robot.Dead && h.Status() != robot.EmergencyStopped) {
			continue
		}
		m.bypass(r, r.WaitingOn)
	}
}

// bypass re-plans r around the stuck vertex v, aborting its task when v is
// the destination or no other route exists.
func (m *Manager) bypass(r *robot.Robot, v model.VertexID) {
	before := r.Status()
	target, mission := r.Target, r.Mission
	if v != target && mission != robot.RetreatMission {
		m.traffic.DequeueWait(v, r.ID)
		if err := m.assign(r, target, mission, model.NewVertexSet(v)); err == nil {
			m.log.Infof("robot %d re-planned around stuck vertex %d", r.ID, v)
			return
		}
	}
	m.finishTask(r, events.TaskAborted, "blocked by a stopped robot")
	m.grantAll(m.traffic.Release(r.ID, r.Vertex))
	if err := r.Abort(m.graph); err != nil {
		m.fail(err, r)
	}
	m.changed(r, before)
}

func (m *Manager) checkDeadlock() {
	cycle := m.traffic.DetectDeadlock()
	if len(cycle) == 0 {
		return
	}
	m.deadlocks++
	m.log.Warnf("deadlock between robots %v", cycle)
	resolved := m.traffic.ResolveDeadlock(cycle, deadlockRouter{m})
	ev := events.DeadlockEvent{Robots: cycle, Resolved: resolved, At: m.Now()}
	m.reporter.DeadlockDetected(ev)
	if rec, ok := m.sink.(metrics.DeadlockRecorder); ok {
		if err := rec.RecordDeadlock(ev); err != nil {
			m.reporter.Error(err, map[string]any{"robots": cycle})
		}
	}
	if !resolved {
		m.reporter.Warning("deadlock unresolved", map[string]any{"robots": cycle})
	}
}

// record pushes the aggregate state of the fleet to the metrics sink.
func (m *Manager) record() {
	if err := m.sink.RecordFleetSample(m.Metrics()); err != nil {
		m.reporter.Error(err, map[string]any{"sink": "fleet"})
	}
	if !m.cfg.RecordRobotStates {
		return
	}
	rec, ok := m.sink.(metrics.RobotStateRecorder)
	if !ok {
		return
	}
	samples := make([]metrics.RobotSample, 0, len(m.robots))
	for _, id := range m.ids() {
		r := m.robots[id]
		samples = append(samples, metrics.RobotSample{
			Robot:    id,
			Status:   r.Status().String(),
			Vertex:   r.Vertex,
			Battery:  r.Battery,
			Priority: r.Priority,
			Time:     m.Now(),
		})
	}
	if err := rec.RecordRobotStates(samples); err != nil {
		m.reporter.Error(err, map[string]any{"sink": "robots"})
	}
}
