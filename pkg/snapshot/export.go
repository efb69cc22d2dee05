package snapshot

import (
	"sort"

	"github.com/ritzau/impact-analyzer/pkg/model"
)

// Clone returns an independent copy of the store. Snapshots are immutable and
// shared; only the indexes are copied.
func (s *Store) Clone() *Store {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c := NewStore()
	c.generation = s.generation
	for name, h := range s.history {
		c.history[name] = append([]Record(nil), h...)
	}
	for unit, names := range s.owned {
		c.owned[unit] = append([]string(nil), names...)
	}
	for id, name := range s.current {
		c.current[id] = name
	}
	for id, h := range s.names {
		c.names[id] = append([]nameAt(nil), h...)
	}
	return c
}

// Compact keeps at most keep entries per symbol (at least 2, so Previous still
// works for the latest recording) and drops symbols that are no longer
// declared. Only call it between sessions: a removal is classified in the
// round that records the tombstone, later rounds never look at it.
func (s *Store) Compact(keep int) {
	if keep < 2 {
		keep = 2
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, h := range s.history {
		if h[len(h)-1].Snapshot == nil {
			delete(s.history, name)
			continue
		}
		if len(h) > keep {
			s.history[name] = append([]Record(nil), h[len(h)-keep:]...)
		}
	}
	for id, h := range s.names {
		if len(h) > keep {
			s.names[id] = append([]nameAt(nil), h[len(h)-keep:]...)
		}
	}
}

// Export returns every record, ordered by name then generation
func (s *Store) Export() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.history))
	for name := range s.history {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []Record
	for _, name := range names {
		out = append(out, s.history[name]...)
	}
	return out
}

// Import rebuilds a store from exported records
func Import(records []Record) *Store {
	s := NewStore()

	sorted := append([]Record(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Name != sorted[j].Name {
			return sorted[i].Name < sorted[j].Name
		}
		return sorted[i].Generation < sorted[j].Generation
	})

	type idEntry struct {
		id model.SymbolID
		at nameAt
	}
	var ids []idEntry
	for _, rec := range sorted {
		s.appendLocked(rec)
		if rec.Generation > s.generation {
			s.generation = rec.Generation
		}
		if rec.Snapshot != nil && rec.Snapshot.Symbol.ID != 0 {
			ids = append(ids, idEntry{id: rec.Snapshot.Symbol.ID, at: nameAt{name: rec.Name, gen: rec.Generation}})
		}
	}

	sort.SliceStable(ids, func(i, j int) bool { return ids[i].at.gen < ids[j].at.gen })
	for _, e := range ids {
		s.trackNameLocked(e.id, e.at.name, e.at.gen)
	}

	for name, h := range s.history {
		latest := h[len(h)-1]
		if latest.Snapshot == nil {
			continue
		}
		s.owned[latest.Unit] = append(s.owned[latest.Unit], name)
		if id := latest.Snapshot.Symbol.ID; id != 0 {
			s.current[id] = name
		}
	}
	for unit := range s.owned {
		sort.Strings(s.owned[unit])
	}
	return s
}

// Restore rebuilds a store from exported records. gen is the generation the
// store had when it was exported; compaction may have dropped its records.
func Restore(records []Record, gen model.Generation) *Store {
	s := Import(records)
	if gen > s.generation {
		s.generation = gen
	}
	return s
}
