// Package navgraph holds the static navigation graph robots travel on and the
// route queries built on top of it.
//
// Vertices are waypoints, lanes are undirected edges weighted by the Euclidean
// distance between their endpoints. The topology never changes once built;
// traffic state lives in package traffic.
package navgraph

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/iterator"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/kilianp07/robofleet/core/model"
)

var (
	// ErrInvalidVertex is returned when an unknown vertex id is referenced.
	ErrInvalidVertex = errors.New("invalid vertex")
	// ErrMalformedGraph is returned when graph data cannot be loaded.
	ErrMalformedGraph = errors.New("malformed graph data")
	// ErrNoPath is used by callers to report that no route satisfies the
	// current constraints. Queries themselves return empty paths.
	ErrNoPath = errors.New("no path found")
)

// Vertex is a waypoint of the graph.
type Vertex struct {
	ID      model.VertexID `json:"id"`
	Pos     model.Point    `json:"pos"`
	Name    string         `json:"name,omitempty"`
	Charger bool           `json:"is_charger,omitempty"`
}

// Lane is a traversable connection between two vertices. Weight is derived
// from the vertex positions.
type Lane struct {
	From       model.VertexID `json:"from"`
	To         model.VertexID `json:"to"`
	Weight     float64        `json:"weight"`
	SpeedLimit float64        `json:"speed_limit,omitempty"`
}

// Graph is the immutable navigation graph.
type Graph struct {
	vertices []Vertex
	lanes    []Lane
	chargers []model.VertexID
	g        *simple.WeightedUndirectedGraph
}

// New builds a graph. Vertex ids are reassigned to their index in vertices.
// Coordinates must be finite. Lanes must reference known vertices and must not
// be self loops; duplicate lanes are ignored.
func New(vertices []Vertex, lanes []Lane) (*Graph, error) {
	if len(vertices) == 0 {
		return nil, fmt.Errorf("%w: no vertices", ErrMalformedGraph)
	}
	g := &Graph{
		vertices: make([]Vertex, len(vertices)),
		g:        simple.NewWeightedUndirectedGraph(0, math.Inf(1)),
	}
	for i, v := range vertices {
		if !finite(v.Pos.X) || !finite(v.Pos.Y) {
			return nil, fmt.Errorf("%w: vertex %d: coordinates (%v, %v) are not finite", ErrMalformedGraph, i, v.Pos.X, v.Pos.Y)
		}
		v.ID = model.VertexID(i)
		g.vertices[i] = v
		g.g.AddNode(simple.Node(i))
		if v.Charger {
			g.chargers = append(g.chargers, v.ID)
		}
	}
	for i, l := range lanes {
		if !g.HasVertex(l.From) || !g.HasVertex(l.To) {
			return nil, fmt.Errorf("%w: lane %d references unknown vertex (%d, %d)", ErrMalformedGraph, i, l.From, l.To)
		}
		if l.From == l.To {
			return nil, fmt.Errorf("%w: lane %d is a self loop on vertex %d", ErrMalformedGraph, i, l.From)
		}
		if g.g.HasEdgeBetween(int64(l.From), int64(l.To)) {
			continue
		}
		l.Weight = g.vertices[l.From].Pos.Dist(g.vertices[l.To].Pos)
		g.lanes = append(g.lanes, l)
		g.g.SetWeightedEdge(simple.WeightedEdge{F: simple.Node(l.From), T: simple.Node(l.To), W: l.Weight})
	}
	return g, nil
}

// HasVertex reports whether id is a vertex of the graph.
func (g *Graph) HasVertex(id model.VertexID) bool {
	return id >= 0 && int(id) < len(g.vertices)
}

// Vertex returns the vertex with the given id.
func (g *Graph) Vertex(id model.VertexID) (Vertex, bool) {
	if !g.HasVertex(id) {
		return Vertex{}, false
	}
	return g.vertices[id], true
}

// Position returns the coordinates of a vertex.
func (g *Graph) Position(id model.VertexID) (model.Point, bool) {
	v, ok := g.Vertex(id)
	return v.Pos, ok
}

// Name returns the human readable name of a vertex, falling back to its id.
func (g *Graph) Name(id model.VertexID) string {
	if v, ok := g.Vertex(id); ok && v.Name != "" {
		return v.Name
	}
	return id.String()
}

// IsCharger reports whether the vertex is a charging station.
func (g *Graph) IsCharger(id model.VertexID) bool {
	v, ok := g.Vertex(id)
	return ok && v.Charger
}

// Chargers returns the charging stations in declaration order.
func (g *Graph) Chargers() []model.VertexID {
	return append([]model.VertexID(nil), g.chargers...)
}

// Neighbors returns the vertices adjacent to id in ascending order.
func (g *Graph) Neighbors(id model.VertexID) []model.VertexID {
	if !g.HasVertex(id) {
		return nil
	}
	return toIDs(sortedNodes(g.g.From(int64(id))))
}

// Adjacent reports whether a lane joins a and b.
func (g *Graph) Adjacent(a, b model.VertexID) bool {
	return g.g.HasEdgeBetween(int64(a), int64(b))
}

// Vertices returns a copy of all vertices ordered by id.
func (g *Graph) Vertices() []Vertex {
	return append([]Vertex(nil), g.vertices...)
}

// Lanes returns a copy of all lanes in load order.
func (g *Graph) Lanes() []Lane {
	return append([]Lane(nil), g.lanes...)
}

// VertexCount returns the number of vertices.
func (g *Graph) VertexCount() int { return len(g.vertices) }

// LaneCount returns the number of lanes.
func (g *Graph) LaneCount() int { return len(g.lanes) }

// Bounds returns the minimum and maximum coordinates over all vertices.
func (g *Graph) Bounds() (lo, hi model.Point) {
	lo = g.vertices[0].Pos
	hi = lo
	for _, v := range g.vertices[1:] {
		lo.X = math.Min(lo.X, v.Pos.X)
		lo.Y = math.Min(lo.Y, v.Pos.Y)
		hi.X = math.Max(hi.X, v.Pos.X)
		hi.Y = math.Max(hi.Y, v.Pos.Y)
	}
	return lo, hi
}

// PathLength returns the summed lane weight of path, or +Inf when two
// consecutive vertices are not adjacent.
func (g *Graph) PathLength(path []model.VertexID) float64 {
	var total float64
	for i := 1; i < len(path); i++ {
		w, ok := g.g.Weight(int64(path[i-1]), int64(path[i]))
		if !ok {
			return math.Inf(1)
		}
		total += w
	}
	return total
}

// view restricts a weighted graph for one query: blocked vertices cannot be
// entered and neighbours are visited in ascending id order so that ties are
// resolved the same way on every run.
type view struct {
	*simple.WeightedUndirectedGraph
	blocked model.VertexSet
}

func (v view) From(id int64) graph.Nodes {
	nodes := graph.NodesOf(v.WeightedUndirectedGraph.From(id))
	kept := nodes[:0]
	for _, n := range nodes {
		if !v.blocked.Has(model.VertexID(n.ID())) {
			kept = append(kept, n)
		}
	}
	if len(kept) == 0 {
		return graph.Empty
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].ID() < kept[j].ID() })
	return iterator.NewOrderedNodes(kept)
}

// Weight is the traversal cost: +Inf for entering a blocked vertex.
func (v view) Weight(xid, yid int64) (float64, bool) {
	if xid != yid && v.blocked.Has(model.VertexID(yid)) {
		return math.Inf(1), true
	}
	return v.WeightedUndirectedGraph.Weight(xid, yid)
}

func sortedNodes(it graph.Nodes) []graph.Node {
	nodes := graph.NodesOf(it)
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID() < nodes[j].ID() })
	return nodes
}

func toIDs(nodes []graph.Node) []model.VertexID {
	if len(nodes) == 0 {
		return nil
	}
	ids := make([]model.VertexID, len(nodes))
	for i, n := range nodes {
		ids[i] = model.VertexID(n.ID())
	}
	return ids
}
