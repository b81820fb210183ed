package fleet

import (
	"github.com/kilianp07/robofleet/core/model"
	"github.com/kilianp07/robofleet/core/robot"
	"github.com/kilianp07/robofleet/core/traffic"
)

// deadlockRouter lends the routing capability of the fleet to the traffic
// manager for the duration of one ResolveDeadlock call.
type deadlockRouter struct{ m *Manager }

var _ traffic.Router = deadlockRouter{}

func (d deadlockRouter) Candidate(id model.RobotID) (traffic.Candidate, bool) {
	r, ok := d.m.robots[id]
	if !ok {
		return traffic.Candidate{}, false
	}
	return traffic.Candidate{
		Robot:          id,
		Battery:        r.Battery,
		WaitTime:       r.WaitTime,
		TasksCompleted: r.TasksCompleted,
		Priority:       r.Priority,
	}, true
}

// Detour returns the longest route to the robot's target that stays out of
// region and away from the other robots.
func (d deadlockRouter) Detour(id model.RobotID, region model.VertexSet) []model.VertexID {
	r, ok := d.m.robots[id]
	if !ok || r.Target == model.NoVertex || r.InTransit {
		return nil
	}
	blocked := d.m.blockedFor(id, r.Target)
	for v := range region {
		blocked.Add(v)
	}
	delete(blocked, r.Vertex)
	route := d.m.graph.LongestPath(r.Vertex, r.Target, blocked)
	if route == nil || d.m.conflicts(id, route) {
		return nil
	}
	return route
}

func (d deadlockRouter) ApplyDetour(id model.RobotID, route []model.VertexID) {
	r := d.m.robots[id]
	before := r.Status()
	d.m.traffic.DequeueWait(r.WaitingOn, id)
	if err := r.Assign(r.Target, route, r.Mission); err != nil {
		d.m.fail(err, r)
		return
	}
	d.m.log.Infof("robot %d detours via %v", id, route)
	d.m.depart(r)
	d.m.changed(r, before)
}

// Retreat backs the robot off one step, preferably to where it came from,
// and remembers its destination so the journey resumes afterwards.
func (d deadlockRouter) Retreat(id model.RobotID) bool {
	r, ok := d.m.robots[id]
	if !ok || r.InTransit || r.Status() != robot.Waiting {
		return false
	}
	to, ok := d.retreatVertex(r)
	if !ok {
		return false
	}
	before := r.Status()
	resume := r.Target
	if r.Mission == robot.RetreatMission {
		resume = r.ResumeTarget
	}
	d.m.traffic.DequeueWait(r.WaitingOn, id)
	d.m.grantAll(d.m.traffic.Release(id, r.Vertex))
	if err := r.Assign(to, []model.VertexID{r.Vertex, to}, robot.RetreatMission); err != nil {
		d.m.fail(err, r)
		return false
	}
	r.ResumeTarget = resume
	d.m.log.Infof("robot %d retreats to %s", id, d.m.graph.Name(to))
	d.m.depart(r)
	d.m.changed(r, before)
	return true
}

func (d deadlockRouter) retreatVertex(r *robot.Robot) (model.VertexID, bool) {
	free := func(v model.VertexID) bool {
		if _, held := d.m.traffic.OccupantOf(v); held {
			return false
		}
		if _, held := d.m.traffic.LaneOccupant(v, r.Vertex); held {
			return false
		}
		return d.m.traffic.Reservable(r.ID, v)
	}
	if r.Previous != model.NoVertex && d.m.graph.Adjacent(r.Vertex, r.Previous) && free(r.Previous) {
		return r.Previous, true
	}
	for _, n := range d.m.graph.Neighbors(r.Vertex) {
		if free(n) {
			return n, true
		}
	}
	return model.NoVertex, false
}
