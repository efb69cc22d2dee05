package session

import (
	"sort"
	"sync"

	"github.com/ritzau/impact-analyzer/pkg/model"
)

// DirtySet is the set of units scheduled for the next round. Add is idempotent
// and safe to call from the expansion workers concurrently.
type DirtySet struct {
	mu      sync.Mutex
	units   map[model.UnitKey]bool
	exclude map[model.UnitKey]bool
}

// NewDirtySet creates a dirty set that silently drops the excluded units
func NewDirtySet(exclude map[model.UnitKey]bool) *DirtySet {
	return &DirtySet{
		units:   make(map[model.UnitKey]bool),
		exclude: exclude,
	}
}

// Add schedules units. It returns how many were not scheduled before.
func (d *DirtySet) Add(units ...model.UnitKey) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	added := 0
	for _, unit := range units {
		if d.exclude[unit] || d.units[unit] {
			continue
		}
		d.units[unit] = true
		added++
	}
	return added
}

// Len returns the number of scheduled units
func (d *DirtySet) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.units)
}

// Sorted returns the scheduled units in key order
func (d *DirtySet) Sorted() []model.UnitKey {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]model.UnitKey, 0, len(d.units))
	for unit := range d.units {
		out = append(out, unit)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
