package traffic

import (
	"slices"

	"github.com/kilianp07/robofleet/core/model"
)

// ConflictKind distinguishes predicted collisions.
type ConflictKind int

const (
	// SameStep means both robots stand on Vertex at step Step.
	SameStep ConflictKind = iota
	// Swap means the robots cross the same lane head-on between Step and
	// Step+1. Vertex is where A ends up.
	Swap
)

func (k ConflictKind) String() string {
	if k == Swap {
		return "swap"
	}
	return "same_step"
}

// Collision is a conflict between the planned sequences of A and B, A < B.
type Collision struct {
	A      model.RobotID  `json:"a"`
	B      model.RobotID  `json:"b"`
	Vertex model.VertexID `json:"vertex"`
	Step   int            `json:"step"`
	Kind   ConflictKind   `json:"kind"`
}

// PredictCollisions compares every pair of planned vertex sequences step by
// step, assuming all robots advance one vertex per step in lock-step. Only
// the steps both sequences cover are compared.
func PredictCollisions(paths map[model.RobotID][]model.VertexID) []Collision {
	ids := make([]model.RobotID, 0, len(paths))
	for id := range paths {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var out []Collision
	for i, a := range ids {
		for _, b := range ids[i+1:] {
			out = append(out, pairCollisions(a, b, paths[a], paths[b])...)
		}
	}
	return out
}

func pairCollisions(a, b model.RobotID, pa, pb []model.VertexID) []Collision {
	var out []Collision
	n := min(len(pa), len(pb))
	for s := 0; s < n; s++ {
		if pa[s] == pb[s] {
			out = append(out, Collision{A: a, B: b, Vertex: pa[s], Step: s, Kind: SameStep})
		}
		if s+1 < n && pa[s] == pb[s+1] && pa[s+1] == pb[s] {
			out = append(out, Collision{A: a, B: b, Vertex: pa[s+1], Step: s, Kind: Swap})
		}
	}
	return out
}

// PredictCollisions calls the package level PredictCollisions.
func (m *Manager) PredictCollisions(paths map[model.RobotID][]model.VertexID) []Collision {
	return PredictCollisions(paths)
}
