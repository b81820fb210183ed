// Package traffic arbitrates the shared resources of the navigation graph:
// which robot holds which vertex and lane, which vertices are promised to
// whom and until when, and who is queued behind whom.
//
// The manager is the only writer of that state. It knows robots by id only.
package traffic

import (
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/kilianp07/robofleet/core/logger"
	"github.com/kilianp07/robofleet/core/model"
)

var (
	// ErrVertexOccupied is returned when a vertex is already held.
	ErrVertexOccupied = errors.New("vertex occupied")
	// ErrReservationConflict is returned when a route exists but one of its
	// vertices is promised to another robot.
	ErrReservationConflict = errors.New("reservation conflict")
)

// Config tunes reservations.
type Config struct {
	// TransitTime is the projected time between two consecutive path steps.
	TransitTime float64 `json:"transit_time"`
	// ReserveDestination also reserves the final vertex of a path.
	ReserveDestination bool `json:"reserve_destination"`
}

// DefaultConfig returns the standard reservation settings.
func DefaultConfig() Config {
	return Config{TransitTime: 2.0}
}

// Reservation promises a vertex to a robot until Expiry.
type Reservation struct {
	Vertex model.VertexID `json:"vertex"`
	Robot  model.RobotID  `json:"robot"`
	Expiry float64        `json:"expiry"`
}

type lane struct {
	from, to model.VertexID
}

// Manager holds occupancy, reservations and waiting queues.
type Manager struct {
	cfg Config
	log logger.Logger
	now float64

	vertices     map[model.VertexID]model.RobotID
	lanes        map[lane]model.RobotID
	reservations map[model.VertexID][]Reservation
	queues       map[model.VertexID][]model.RobotID
}

// NewManager returns an empty traffic manager.
func NewManager(cfg Config, log logger.Logger) *Manager {
	if cfg.TransitTime <= 0 {
		cfg.TransitTime = DefaultConfig().TransitTime
	}
	m := &Manager{cfg: cfg, log: logger.OrNop(log)}
	m.Reset()
	return m
}

// Reset drops every claim, reservation and queue and rewinds the clock.
func (m *Manager) Reset() {
	m.now = 0
	m.vertices = make(map[model.VertexID]model.RobotID)
	m.lanes = make(map[lane]model.RobotID)
	m.reservations = make(map[model.VertexID][]Reservation)
	m.queues = make(map[model.VertexID][]model.RobotID)
}

// Now returns the simulation clock in seconds.
func (m *Manager) Now() float64 { return m.now }

// Advance moves the clock forward and forgets expired reservations.
func (m *Manager) Advance(dt float64) {
	if dt <= 0 {
		return
	}
	m.now += dt
	for v, rs := range m.reservations {
		rs = slices.DeleteFunc(rs, func(r Reservation) bool { return r.Expiry <= m.now })
		if len(rs) == 0 {
			delete(m.reservations, v)
			continue
		}
		m.reservations[v] = rs
	}
}

// Occupy registers robot on v, e.g. when it is spawned or restored.
func (m *Manager) Occupy(robot model.RobotID, v model.VertexID) error {
	if holder, ok := m.vertices[v]; ok && holder != robot {
		return fmt.Errorf("vertex %d held by robot %d: %w", v, holder, ErrVertexOccupied)
	}
	m.vertices[v] = robot
	return nil
}

// OccupantOf returns the robot holding v.
func (m *Manager) OccupantOf(v model.VertexID) (model.RobotID, bool) {
	r, ok := m.vertices[v]
	return r, ok
}

// LaneOccupant returns the robot travelling from -> to.
func (m *Manager) LaneOccupant(from, to model.VertexID) (model.RobotID, bool) {
	r, ok := m.lanes[lane{from, to}]
	return r, ok
}

// Occupied returns a copy of the vertex occupancy map.
func (m *Manager) Occupied() map[model.VertexID]model.RobotID {
	out := make(map[model.VertexID]model.RobotID, len(m.vertices))
	for v, r := range m.vertices {
		out[v] = r
	}
	return out
}

// Enter claims the lane from -> to and the vertex to for robot. It is refused
// when to is held by another robot or another robot is coming the other way.
func (m *Manager) Enter(robot model.RobotID, from, to model.VertexID) bool {
	if holder, ok := m.vertices[to]; ok && holder != robot {
		return false
	}
	if holder, ok := m.lanes[lane{to, from}]; ok && holder != robot {
		return false
	}
	m.vertices[to] = robot
	m.lanes[lane{from, to}] = robot
	return true
}

// Arrive completes a traversal started with Enter. The lane and the vertex
// left behind are released, the reservation on to is consumed, and the next
// robot waiting for from, if any, is returned so it can be granted the vertex.
func (m *Manager) Arrive(robot model.RobotID, from, to model.VertexID) (model.RobotID, bool) {
	if holder, ok := m.lanes[lane{from, to}]; ok && holder == robot {
		delete(m.lanes, lane{from, to})
	}
	m.dropReservation(to, robot)
	if holder, ok := m.vertices[from]; !ok || holder != robot {
		return model.NoRobot, false
	}
	return m.Vacate(from)
}

// Vacate frees v and pops the first robot waiting for it.
func (m *Manager) Vacate(v model.VertexID) (model.RobotID, bool) {
	delete(m.vertices, v)
	q := m.queues[v]
	if len(q) == 0 {
		return model.NoRobot, false
	}
	next := q[0]
	m.setQueue(v, q[1:])
	return next, true
}

// Release drops every reservation, lane and vertex claim of robot except the
// vertex keep, which is where the robot physically stands, and removes it
// from all waiting queues. Robots that were waiting for a freed vertex are
// returned in vertex order.
func (m *Manager) Release(robot model.RobotID, keep model.VertexID) []model.RobotID {
	for v := range m.reservations {
		m.dropReservation(v, robot)
	}
	for l, holder := range m.lanes {
		if holder == robot {
			delete(m.lanes, l)
		}
	}
	for v := range m.queues {
		m.DequeueWait(v, robot)
	}
	var freed []model.VertexID
	for v, holder := range m.vertices {
		if holder == robot && v != keep {
			freed = append(freed, v)
		}
	}
	slices.Sort(freed)
	var woken []model.RobotID
	for _, v := range freed {
		if next, ok := m.Vacate(v); ok {
			woken = append(woken, next)
		}
	}
	return woken
}

// Forget removes every trace of robot, including the vertex it stands on.
func (m *Manager) Forget(robot model.RobotID) []model.RobotID {
	return m.Release(robot, model.NoVertex)
}

// EnqueueWait appends robot to the queue of v. A robot is queued at most once
// per vertex.
func (m *Manager) EnqueueWait(v model.VertexID, robot model.RobotID) bool {
	if slices.Contains(m.queues[v], robot) {
		return false
	}
	m.queues[v] = append(m.queues[v], robot)
	return true
}

// DequeueWait removes robot from the queue of v.
func (m *Manager) DequeueWait(v model.VertexID, robot model.RobotID) bool {
	q := m.queues[v]
	i := slices.Index(q, robot)
	if i < 0 {
		return false
	}
	m.setQueue(v, slices.Delete(slices.Clone(q), i, i+1))
	return true
}

// Waiting returns a copy of the waiting queues.
func (m *Manager) Waiting() map[model.VertexID][]model.RobotID {
	out := make(map[model.VertexID][]model.RobotID, len(m.queues))
	for v, q := range m.queues {
		out[v] = slices.Clone(q)
	}
	return out
}

// QueueOf returns the robots waiting for v in FIFO order.
func (m *Manager) QueueOf(v model.VertexID) []model.RobotID {
	return slices.Clone(m.queues[v])
}

func (m *Manager) setQueue(v model.VertexID, q []model.RobotID) {
	if len(q) == 0 {
		delete(m.queues, v)
		return
	}
	m.queues[v] = q
}

// Reservations returns every live reservation ordered by vertex then robot.
func (m *Manager) Reservations() []Reservation {
	var out []Reservation
	for _, rs := range m.reservations {
		out = append(out, rs...)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Vertex != out[j].Vertex {
			return out[i].Vertex < out[j].Vertex
		}
		return out[i].Robot < out[j].Robot
	})
	return out
}

// ReservationsOf returns the vertices promised to robot, ascending.
func (m *Manager) ReservationsOf(robot model.RobotID) []model.VertexID {
	var out []model.VertexID
	for v, rs := range m.reservations {
		if slices.ContainsFunc(rs, func(r Reservation) bool { return r.Robot == robot }) {
			out = append(out, v)
		}
	}
	slices.Sort(out)
	return out
}

func (m *Manager) dropReservation(v model.VertexID, robot model.RobotID) {
	rs := slices.DeleteFunc(slices.Clone(m.reservations[v]), func(r Reservation) bool { return r.Robot == robot })
	if len(rs) == 0 {
		delete(m.reservations, v)
		return
	}
	m.reservations[v] = rs
}
