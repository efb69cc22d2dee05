package cycles

import (
	"sort"

	"github.com/ritzau/impact-analyzer/pkg/graph"
	"github.com/ritzau/impact-analyzer/pkg/model"
)

// HierarchyCycle is a set of units whose declarations subclass each other in a
// loop. The source language forbids it; the analyzer has to survive it.
type HierarchyCycle struct {
	Units []model.UnitKey `json:"units"`
}

// FindHierarchyCycles returns every cycle in the hierarchy graph, units sorted
// within a cycle and cycles sorted by their first unit.
func FindHierarchyCycles(hg *graph.HierarchyGraph) []HierarchyCycle {
	tarjan := NewTarjanSCC(hg.Graph())
	sccs := tarjan.FindSCCs()

	cycles := make([]HierarchyCycle, 0, len(sccs))
	for _, scc := range sccs {
		units := make([]model.UnitKey, 0, len(scc))
		for _, id := range scc {
			if node, ok := hg.Node(id); ok {
				units = append(units, node.Key)
			}
		}
		sort.Slice(units, func(i, j int) bool { return units[i] < units[j] })
		cycles = append(cycles, HierarchyCycle{Units: units})
	}

	sort.Slice(cycles, func(i, j int) bool { return cycles[i].Units[0] < cycles[j].Units[0] })
	return cycles
}
