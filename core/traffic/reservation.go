package traffic

import "github.com/kilianp07/robofleet/core/model"

// reservedSteps returns the indices of path that a reservation covers: the
// interior vertices, plus the destination when configured.
func (m *Manager) reservedSteps(path []model.VertexID) (first, last int) {
	last = len(path) - 1
	if m.cfg.ReserveDestination {
		last = len(path)
	}
	return 1, last
}

// Reservable reports whether v could be promised to robot: no other robot
// stands on it and no other robot holds a live reservation for it.
func (m *Manager) Reservable(robot model.RobotID, v model.VertexID) bool {
	if holder, ok := m.vertices[v]; ok && holder != robot {
		return false
	}
	for _, r := range m.reservations[v] {
		if r.Robot != robot && r.Expiry > m.now {
			return false
		}
	}
	return true
}

// CanReserve reports whether ReservePath would succeed without changing any
// state.
func (m *Manager) CanReserve(robot model.RobotID, path []model.VertexID) bool {
	first, last := m.reservedSteps(path)
	for i := first; i < last; i++ {
		if !m.Reservable(robot, path[i]) {
			return false
		}
	}
	return true
}

// ReservePath promises the vertices of path to robot. path[0] is the vertex
// the robot stands on. Step i expires at now + i*TransitTime. Either every
// vertex is reserved or none is; on success the robot's previous reservations
// are replaced.
func (m *Manager) ReservePath(robot model.RobotID, path []model.VertexID) bool {
	if len(path) == 0 || !m.CanReserve(robot, path) {
		m.log.Debugw("reservation refused", map[string]any{"robot": int(robot), "path": path})
		return false
	}
	for v := range m.reservations {
		m.dropReservation(v, robot)
	}
	first, last := m.reservedSteps(path)
	for i := first; i < last; i++ {
		v := path[i]
		m.reservations[v] = append(m.reservations[v], Reservation{
			Vertex: v,
			Robot:  robot,
			Expiry: m.now + float64(i)*m.cfg.TransitTime,
		})
	}
	return true
}
