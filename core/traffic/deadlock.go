package traffic

import (
	"slices"
	"sort"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/kilianp07/robofleet/core/model"
)

// Candidate carries what deadlock resolution needs to know about a robot.
type Candidate struct {
	Robot          model.RobotID
	Battery        float64
	WaitTime       float64
	TasksCompleted int
	Priority       float64
}

// Router is the routing capability deadlock resolution borrows from the fleet
// for the duration of one call.
type Router interface {
	// Candidate describes robot, false when it is unknown.
	Candidate(robot model.RobotID) (Candidate, bool)
	// Detour returns the longest route from the robot's vertex to its target
	// that avoids region, or nil.
	Detour(robot model.RobotID, region model.VertexSet) []model.VertexID
	// ApplyDetour switches the robot onto a route already reserved for it.
	ApplyDetour(robot model.RobotID, path []model.VertexID)
	// Retreat moves the robot one step back to free the vertex it holds.
	Retreat(robot model.RobotID) bool
}

// waitsFor builds the wait-for relation: a -> b when a is queued for a vertex
// that b holds.
func (m *Manager) waitsFor() *simple.DirectedGraph {
	g := simple.NewDirectedGraph()
	for v, q := range m.queues {
		holder, ok := m.vertices[v]
		if !ok {
			continue
		}
		for _, r := range q {
			if r == holder {
				continue
			}
			g.SetEdge(g.NewEdge(simple.Node(r), simple.Node(holder)))
		}
	}
	return g
}

// DetectDeadlock returns the robots lying on a cycle of the wait-for relation,
// ascending. It does not modify any state.
func (m *Manager) DetectDeadlock() []model.RobotID {
	var out []model.RobotID
	for _, scc := range topo.TarjanSCC(m.waitsFor()) {
		if len(scc) < 2 {
			continue
		}
		for _, n := range scc {
			out = append(out, model.RobotID(n.ID()))
		}
	}
	slices.Sort(out)
	return out
}

// ResolveDeadlock tries to break the cycle formed by robots. Candidates are
// ordered by battery ascending, wait time descending, completed tasks
// descending. The first one that can be given a reservable detour around the
// contested region gets it. Otherwise the lowest priority robot retreats. It
// reports whether anything changed; a failure is retried on the next check.
func (m *Manager) ResolveDeadlock(robots []model.RobotID, router Router) bool {
	if len(robots) == 0 || router == nil {
		return false
	}
	cands := make([]Candidate, 0, len(robots))
	for _, id := range robots {
		if c, ok := router.Candidate(id); ok {
			cands = append(cands, c)
		}
	}
	if len(cands) == 0 {
		return false
	}
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		switch {
		case a.Battery != b.Battery:
			return a.Battery < b.Battery
		case a.WaitTime != b.WaitTime:
			return a.WaitTime > b.WaitTime
		case a.TasksCompleted != b.TasksCompleted:
			return a.TasksCompleted > b.TasksCompleted
		default:
			return a.Robot < b.Robot
		}
	})

	region := m.contestedRegion(robots)
	for _, c := range cands {
		path := router.Detour(c.Robot, region)
		if len(path) < 2 || !m.ReservePath(c.Robot, path) {
			continue
		}
		router.ApplyDetour(c.Robot, path)
		m.log.Infof("deadlock broken: robot %d detours via %v", c.Robot, path)
		return true
	}

	victim := cands[0]
	for _, c := range cands[1:] {
		if c.Priority < victim.Priority {
			victim = c
		}
	}
	if router.Retreat(victim.Robot) {
		m.log.Infof("deadlock broken: robot %d retreats", victim.Robot)
		return true
	}
	m.log.Warnf("deadlock between robots %v unresolved, retrying next cycle", robots)
	return false
}

// contestedRegion is the set of vertices held by, or waited on by, robots.
func (m *Manager) contestedRegion(robots []model.RobotID) model.VertexSet {
	region := model.VertexSet{}
	for v, holder := range m.vertices {
		if slices.Contains(robots, holder) {
			region.Add(v)
		}
	}
	for v, q := range m.queues {
		for _, r := range q {
			if slices.Contains(robots, r) {
				region.Add(v)
			}
		}
	}
	return region
}
