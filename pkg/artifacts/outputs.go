// Package artifacts tracks which output files each compilation unit produced.
package artifacts

import (
	"sort"
	"sync"

	"github.com/ritzau/impact-analyzer/pkg/model"
)

// OutputMap maps a unit to the artifacts its last successful compilation produced
type OutputMap struct {
	mu      sync.RWMutex
	outputs map[model.UnitKey][]string
}

// NewOutputMap creates an empty output map
func NewOutputMap() *OutputMap {
	return &OutputMap{outputs: make(map[model.UnitKey][]string)}
}

// Update replaces the outputs of unit and returns the ones it no longer
// produces. The host deletes those; this package never touches files.
func (m *OutputMap) Update(unit model.UnitKey, outputs []string) (stale []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	produced := make(map[string]bool, len(outputs))
	for _, out := range outputs {
		produced[out] = true
	}
	for _, old := range m.outputs[unit] {
		if !produced[old] {
			stale = append(stale, old)
		}
	}

	if len(outputs) == 0 {
		delete(m.outputs, unit)
	} else {
		kept := append([]string(nil), outputs...)
		sort.Strings(kept)
		m.outputs[unit] = kept
	}
	sort.Strings(stale)
	return stale
}

// Outputs returns the artifacts recorded for unit
func (m *OutputMap) Outputs(unit model.UnitKey) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.outputs[unit]...)
}

// All returns a copy of the whole map
func (m *OutputMap) All() map[model.UnitKey][]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[model.UnitKey][]string, len(m.outputs))
	for unit, outputs := range m.outputs {
		out[unit] = append([]string(nil), outputs...)
	}
	return out
}

// Clone returns an independent copy
func (m *OutputMap) Clone() *OutputMap {
	return &OutputMap{outputs: m.All()}
}

// Load replaces the map contents, e.g. from persisted state
func (m *OutputMap) Load(outputs map[model.UnitKey][]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outputs = make(map[model.UnitKey][]string, len(outputs))
	for unit, outs := range outputs {
		m.outputs[unit] = append([]string(nil), outs...)
	}
}
