package navgraph

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/kilianp07/robofleet/core/model"
)

const (
	// MaxDetourHops bounds the length of alternative routes.
	MaxDetourHops = 15
	// PenaltyFactor multiplies lane weights already used by a previous
	// k-alternative route.
	PenaltyFactor = 1.5

	// maxCandidates caps the k-shortest enumeration behind alternative and
	// longest path queries.
	maxCandidates = 16
)

// heuristic is the Manhattan distance scaled by 1/sqrt(2). The scaling keeps
// it below the Euclidean lane weights so A* stays optimal.
func (g *Graph) heuristic(x, y graph.Node) float64 {
	return g.vertices[x.ID()].Pos.Manhattan(g.vertices[y.ID()].Pos) / math.Sqrt2
}

func (g *Graph) endpointsOK(start, end model.VertexID, blocked model.VertexSet) bool {
	return g.HasVertex(start) && g.HasVertex(end) && !blocked.Has(start) && !blocked.Has(end)
}

// ShortestPath returns the cheapest route from start to end that never enters
// a blocked vertex, start and end included. It returns nil when no such route
// exists and [start] when start equals end.
func (g *Graph) ShortestPath(start, end model.VertexID, blocked model.VertexSet) []model.VertexID {
	if !g.endpointsOK(start, end, blocked) {
		return nil
	}
	if start == end {
		return []model.VertexID{start}
	}
	return g.astar(view{WeightedUndirectedGraph: g.g, blocked: blocked}, start, end)
}

func (g *Graph) astar(v view, start, end model.VertexID) []model.VertexID {
	sp, _ := path.AStar(simple.Node(start), simple.Node(end), v, g.heuristic)
	nodes, w := sp.To(int64(end))
	if math.IsInf(w, 1) {
		return nil
	}
	return toIDs(nodes)
}

// AlternativePaths returns loop free routes of at most MaxDetourHops lanes
// whose vertices avoid blocked, cheapest first. The enumeration is a bounded
// k-shortest search rather than an exhaustive walk over simple paths.
func (g *Graph) AlternativePaths(start, end model.VertexID, blocked model.VertexSet) [][]model.VertexID {
	if start == end || !g.endpointsOK(start, end, blocked) {
		return nil
	}
	v := view{WeightedUndirectedGraph: g.g, blocked: blocked}
	found := path.YenKShortestPaths(v, maxCandidates, math.Inf(1), simple.Node(start), simple.Node(end))
	var out [][]model.VertexID
	for _, p := range found {
		if len(p) < 2 || len(p)-1 > MaxDetourHops {
			continue
		}
		out = append(out, toIDs(p))
	}
	return out
}

// AlternativePath returns the cheapest candidate of AlternativePaths.
func (g *Graph) AlternativePath(start, end model.VertexID, blocked model.VertexSet) []model.VertexID {
	candidates := g.AlternativePaths(start, end, blocked)
	if len(candidates) == 0 {
		return nil
	}
	return candidates[0]
}

// LongestPath returns the most expensive candidate of AlternativePaths. It is
// used to send a robot the long way around a contested region.
func (g *Graph) LongestPath(start, end model.VertexID, blocked model.VertexSet) []model.VertexID {
	var (
		best    []model.VertexID
		bestLen = math.Inf(-1)
	)
	for _, p := range g.AlternativePaths(start, end, blocked) {
		if l := g.PathLength(p); l > bestLen {
			best, bestLen = p, l
		}
	}
	return best
}

// KAlternativePaths returns up to k distinct routes. After each search the
// lanes of the route found are made PenaltyFactor times more expensive in a
// scratch copy of the graph, which pushes later searches onto other lanes.
func (g *Graph) KAlternativePaths(start, end model.VertexID, k int) [][]model.VertexID {
	if k <= 0 || !g.endpointsOK(start, end, nil) {
		return nil
	}
	if start == end {
		return [][]model.VertexID{{start}}
	}
	scratch := simple.NewWeightedUndirectedGraph(0, math.Inf(1))
	graph.CopyWeighted(scratch, g.g)
	v := view{WeightedUndirectedGraph: scratch}

	var out [][]model.VertexID
	for i := 0; i < k; i++ {
		p := g.astar(v, start, end)
		if p == nil {
			break
		}
		if !slices.ContainsFunc(out, func(q []model.VertexID) bool { return slices.Equal(p, q) }) {
			out = append(out, p)
		}
		for j := 1; j < len(p); j++ {
			from, to := simple.Node(p[j-1]), simple.Node(p[j])
			w, _ := scratch.Weight(from.ID(), to.ID())
			scratch.SetWeightedEdge(scratch.NewWeightedEdge(from, to, w*PenaltyFactor))
		}
	}
	return out
}

// NearestChargingStation returns the charger with the cheapest route from
// from, ignoring chargers in blocked. Ties keep the charger declared first.
func (g *Graph) NearestChargingStation(from model.VertexID, blocked model.VertexSet) (model.VertexID, bool) {
	best, bestLen := model.NoVertex, math.Inf(1)
	for _, c := range g.chargers {
		if blocked.Has(c) {
			continue
		}
		p := g.ShortestPath(from, c, blocked)
		if p == nil {
			continue
		}
		if l := g.PathLength(p); l < bestLen {
			best, bestLen = c, l
		}
	}
	return best, best != model.NoVertex
}
