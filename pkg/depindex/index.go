// Package depindex maintains the reverse dependency index: for every symbol, the
// units that reference it and how.
package depindex

import (
	"sort"
	"sync"

	"github.com/ritzau/impact-analyzer/pkg/model"
)

// Index maps symbols to their dependent units. The reverse map is maintained
// incrementally by Rebuild; lookups never scan all edges.
type Index struct {
	mu      sync.RWMutex
	byUnit  map[model.UnitKey][]model.Dependency
	reverse map[string]map[model.EdgeKind]map[model.UnitKey]int // symbol -> kind -> unit -> edge count
}

// New creates an empty index
func New() *Index {
	return &Index{
		byUnit:  make(map[model.UnitKey][]model.Dependency),
		reverse: make(map[string]map[model.EdgeKind]map[model.UnitKey]int),
	}
}

// Rebuild atomically replaces all edges recorded for unit. Edges whose From does
// not match unit are attributed to unit anyway: the front-end reports edges per
// compiled unit and the unit is the owner.
func (idx *Index) Rebuild(unit model.UnitKey, edges []model.Dependency) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.rebuildLocked(unit, edges)
}

// RebuildAll replaces the edges of several units under one lock, so readers see
// either none or all of a round's edges.
func (idx *Index) RebuildAll(edges map[model.UnitKey][]model.Dependency) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for unit, deps := range edges {
		idx.rebuildLocked(unit, deps)
	}
}

func (idx *Index) rebuildLocked(unit model.UnitKey, edges []model.Dependency) {
	for _, old := range idx.byUnit[unit] {
		idx.removeLocked(old)
	}

	if len(edges) == 0 {
		delete(idx.byUnit, unit)
		return
	}

	stored := make([]model.Dependency, 0, len(edges))
	for _, e := range edges {
		e.From = unit
		stored = append(stored, e)
		idx.addLocked(e)
	}
	idx.byUnit[unit] = stored
}

func (idx *Index) addLocked(e model.Dependency) {
	kinds, ok := idx.reverse[e.To]
	if !ok {
		kinds = make(map[model.EdgeKind]map[model.UnitKey]int)
		idx.reverse[e.To] = kinds
	}
	units, ok := kinds[e.Kind]
	if !ok {
		units = make(map[model.UnitKey]int)
		kinds[e.Kind] = units
	}
	units[e.From]++
}

func (idx *Index) removeLocked(e model.Dependency) {
	kinds := idx.reverse[e.To]
	units := kinds[e.Kind]
	if units == nil {
		return
	}
	units[e.From]--
	if units[e.From] <= 0 {
		delete(units, e.From)
	}
	if len(units) == 0 {
		delete(kinds, e.Kind)
	}
	if len(kinds) == 0 {
		delete(idx.reverse, e.To)
	}
}

// Remove drops every edge recorded for unit
func (idx *Index) Remove(unit model.UnitKey) {
	idx.Rebuild(unit, nil)
}

// EdgesInto returns every unit with an edge of one of the given kinds targeting
// symbol, sorted. No kinds means all kinds.
func (idx *Index) EdgesInto(symbol string, kinds ...model.EdgeKind) []model.UnitKey {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(kinds) == 0 {
		kinds = model.AllEdgeKinds()
	}

	set := make(map[model.UnitKey]bool)
	byKind := idx.reverse[symbol]
	for _, kind := range kinds {
		for unit := range byKind[kind] {
			set[unit] = true
		}
	}

	out := make([]model.UnitKey, 0, len(set))
	for unit := range set {
		out = append(out, unit)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// EdgesOf returns the adjacency list recorded for unit
func (idx *Index) EdgesOf(unit model.UnitKey) []model.Dependency {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return append([]model.Dependency(nil), idx.byUnit[unit]...)
}

// Units returns every unit with at least one recorded edge, sorted
func (idx *Index) Units() []model.UnitKey {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	units := make([]model.UnitKey, 0, len(idx.byUnit))
	for unit := range idx.byUnit {
		units = append(units, unit)
	}
	sort.Slice(units, func(i, j int) bool { return units[i] < units[j] })
	return units
}

// Clone returns an independent copy of the index
func (idx *Index) Clone() *Index {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	c := New()
	for unit, deps := range idx.byUnit {
		c.rebuildLocked(unit, deps)
	}
	return c
}

// View exports the index as a generic graph for the web API
func (idx *Index) View() *model.Graph {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	g := model.NewGraph()
	for unit, deps := range idx.byUnit {
		g.AddNode(&model.Node{ID: string(unit), Label: string(unit), Type: "unit"})
		for _, d := range deps {
			g.AddEdge(&model.Edge{Source: string(unit), Target: d.To, Kind: d.Kind, Member: d.Member})
		}
	}
	return g
}
