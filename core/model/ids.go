package model

import (
	"math"
	"strconv"
)

// VertexID identifies a waypoint of the navigation graph. IDs are the index of
// the vertex in the graph document.
type VertexID int

// RobotID identifies a robot of the fleet. IDs are allocated sequentially by
// the fleet manager starting at zero.
type RobotID int

// NoVertex marks an absent vertex reference, e.g. a robot without target.
const NoVertex VertexID = -1

// NoRobot marks an absent robot reference, e.g. a task open to any robot.
const NoRobot RobotID = -1

func (v VertexID) String() string { return strconv.Itoa(int(v)) }

func (r RobotID) String() string { return strconv.Itoa(int(r)) }

// Point is a position in the 2-D plane of the navigation graph.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Dist returns the Euclidean distance between p and q.
func (p Point) Dist(q Point) float64 {
	return math.Hypot(q.X-p.X, q.Y-p.Y)
}

// Manhattan returns the L1 distance between p and q.
func (p Point) Manhattan(q Point) float64 {
	return math.Abs(q.X-p.X) + math.Abs(q.Y-p.Y)
}

// VertexSet is a set of vertices, typically used for blocked regions.
type VertexSet map[VertexID]struct{}

// NewVertexSet returns a set holding ids.
func NewVertexSet(ids ...VertexID) VertexSet {
	s := make(VertexSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports whether v belongs to the set. A nil set is empty.
func (s VertexSet) Has(v VertexID) bool {
	_, ok := s[v]
	return ok
}

// Add inserts v.
func (s VertexSet) Add(v VertexID) { s[v] = struct{}{} }

// Without returns a copy of s with v removed.
func (s VertexSet) Without(v VertexID) VertexSet {
	out := make(VertexSet, len(s))
	for id := range s {
		if id != v {
			out[id] = struct{}{}
		}
	}
	return out
}
