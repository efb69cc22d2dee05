// Package graph builds a unit-level view of the class hierarchy on top of gonum.
package graph

import (
	"fmt"
	"sort"

	"github.com/ritzau/impact-analyzer/pkg/model"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/encoding/dot"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
	"gonum.org/v1/gonum/graph/traverse"
)

// EdgeSource lists recorded dependency edges per unit
type EdgeSource interface {
	Units() []model.UnitKey
	EdgesOf(unit model.UnitKey) []model.Dependency
}

// Owners resolves which unit declares a symbol
type Owners interface {
	OwnerOf(name string) (model.UnitKey, bool)
	Units() []model.UnitKey
}

// UnitNode is a compilation unit in the hierarchy graph
type UnitNode struct {
	id  int64
	Key model.UnitKey
}

// ID implements graph.Node
func (n UnitNode) ID() int64 { return n.id }

// DOTID names the node in DOT output
func (n UnitNode) DOTID() string { return string(n.Key) }

// HierarchyGraph has an edge from the unit declaring a supertype to every unit
// that subclasses it, i.e. edges point in the direction changes propagate.
type HierarchyGraph struct {
	graph *simple.DirectedGraph
	ids   map[model.UnitKey]int64
	nodes []UnitNode // indexed by ID
}

// NewHierarchyGraph creates an empty hierarchy graph
func NewHierarchyGraph() *HierarchyGraph {
	return &HierarchyGraph{
		graph: simple.NewDirectedGraph(),
		ids:   make(map[model.UnitKey]int64),
	}
}

// AddUnit adds a unit to the graph if it is not there yet
func (hg *HierarchyGraph) AddUnit(unit model.UnitKey) UnitNode {
	if id, exists := hg.ids[unit]; exists {
		return hg.nodes[id]
	}
	node := UnitNode{id: int64(len(hg.nodes)), Key: unit}
	hg.ids[unit] = node.id
	hg.nodes = append(hg.nodes, node)
	hg.graph.AddNode(node)
	return node
}

// AddSubclass records that sub subclasses a symbol declared in super.
// A unit subclassing its own symbols adds no edge.
func (hg *HierarchyGraph) AddSubclass(super, sub model.UnitKey) {
	from := hg.AddUnit(super)
	to := hg.AddUnit(sub)
	if from.id == to.id || hg.graph.HasEdgeFromTo(from.id, to.id) {
		return
	}
	hg.graph.SetEdge(hg.graph.NewEdge(from, to))
}

// BuildHierarchy derives the graph from SUBCLASSES edges over every unit that
// declares a symbol or has edges. Edges into symbols no
// unit declares (library supertypes) are skipped.
func BuildHierarchy(edges EdgeSource, owners Owners) *HierarchyGraph {
	hg := NewHierarchyGraph()
	// Units without edges are still part of the hierarchy
	for _, unit := range owners.Units() {
		hg.AddUnit(unit)
	}
	for _, unit := range edges.Units() {
		hg.AddUnit(unit)
		for _, dep := range edges.EdgesOf(unit) {
			if dep.Kind != model.EdgeSubclasses {
				continue
			}
			if owner, ok := owners.OwnerOf(dep.To); ok {
				hg.AddSubclass(owner, unit)
			}
		}
	}
	return hg
}

// Graph returns the underlying directed graph
func (hg *HierarchyGraph) Graph() graph.Directed {
	return hg.graph
}

// Node returns the unit for a graph ID
func (hg *HierarchyGraph) Node(id int64) (UnitNode, bool) {
	if id < 0 || id >= int64(len(hg.nodes)) {
		return UnitNode{}, false
	}
	return hg.nodes[id], true
}

// Len returns the number of units in the graph
func (hg *HierarchyGraph) Len() int {
	return len(hg.nodes)
}

// Subclasses returns every unit reachable from unit along subclass edges, sorted.
// The unit itself is not included.
func (hg *HierarchyGraph) Subclasses(unit model.UnitKey) []model.UnitKey {
	id, ok := hg.ids[unit]
	if !ok {
		return nil
	}
	var out []model.UnitKey
	var bfs traverse.BreadthFirst
	bfs.Walk(hg.graph, hg.nodes[id], func(n graph.Node, _ int) bool {
		if n.ID() != id {
			out = append(out, hg.nodes[n.ID()].Key)
		}
		return false
	})
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Depth returns the number of units on the longest supertype-to-subclass chain.
// It fails when the hierarchy has a cycle.
func (hg *HierarchyGraph) Depth() (int, error) {
	order, err := topo.Sort(hg.graph)
	if err != nil {
		return 0, fmt.Errorf("hierarchy is not acyclic: %w", err)
	}
	depth := make(map[int64]int, len(order))
	longest := 0
	for _, n := range order {
		d := depth[n.ID()] + 1
		if d > longest {
			longest = d
		}
		succ := hg.graph.From(n.ID())
		for succ.Next() {
			if id := succ.Node().ID(); depth[id] < d {
				depth[id] = d
			}
		}
	}
	return longest, nil
}

// DOT renders the graph in Graphviz format
func (hg *HierarchyGraph) DOT(name string) ([]byte, error) {
	return dot.Marshal(hg.graph, name, "", "  ")
}
