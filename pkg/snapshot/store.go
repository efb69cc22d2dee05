package snapshot

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ritzau/impact-analyzer/pkg/model"
)

// Record is one (symbol name, generation) entry of the store. A nil Snapshot is a
// tombstone: the owning unit was recompiled and no longer declares the symbol.
type Record struct {
	Name       string           `json:"name"`
	Generation model.Generation `json:"generation"`
	Unit       model.UnitKey    `json:"unit"`
	Snapshot   *model.Snapshot  `json:"snapshot,omitempty"`
}

type nameAt struct {
	name string
	gen  model.Generation
}

// Store keeps generation-tagged snapshots of every declared symbol.
//
// History per symbol is append-only: recording a unit adds one entry per declared
// (or no longer declared) symbol and never mutates an existing snapshot. Reads are
// safe while other goroutines read; writes take the exclusive lock.
type Store struct {
	mu         sync.RWMutex
	history    map[string][]Record         // name -> entries ordered by generation
	owned      map[model.UnitKey][]string  // unit -> names currently declared
	current    map[model.SymbolID]string   // stable id -> name currently declaring it
	names      map[model.SymbolID][]nameAt // stable id -> names it was declared under
	generation model.Generation            // latest recorded generation
}

// NewStore creates an empty snapshot store
func NewStore() *Store {
	return &Store{
		history: make(map[string][]Record),
		owned:   make(map[model.UnitKey][]string),
		current: make(map[model.SymbolID]string),
		names:   make(map[model.SymbolID][]nameAt),
	}
}

// Generation returns the latest generation recorded in the store
func (s *Store) Generation() model.Generation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// Record replaces all snapshots owned by unit with the given symbols, tagged with gen.
// An empty symbol list is legal: every symbol the unit declared before gets a tombstone.
func (s *Store) Record(unit model.UnitKey, gen model.Generation, symbols []model.Symbol) error {
	return s.RecordRound(gen, map[model.UnitKey][]model.Symbol{unit: symbols})
}

// RecordRound records every unit compiled in one round. Supertype kinds observed by
// the new snapshots are resolved against the round's own symbols first, so a
// subclass compiled together with its supertype sees the supertype's new kind.
func (s *Store) RecordRound(gen model.Generation, units map[model.UnitKey][]model.Symbol) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen < s.generation {
		return fmt.Errorf("generation %d is older than recorded generation %d", gen, s.generation)
	}

	overlay := make(map[string]model.SymbolKind)
	for unit, symbols := range units {
		for i := range symbols {
			if err := symbols[i].Validate(); err != nil {
				return fmt.Errorf("unit %s: %w", unit, err)
			}
			overlay[symbols[i].Name] = symbols[i].Kind
		}
	}
	kindOf := func(name string) (model.SymbolKind, bool) {
		if k, ok := overlay[name]; ok {
			return k, true
		}
		if snap := s.currentLocked(name); snap != nil {
			return snap.Symbol.Kind, true
		}
		return "", false
	}

	// Deterministic order keeps same-generation moves between units stable
	keys := make([]model.UnitKey, 0, len(units))
	for unit := range units {
		keys = append(keys, unit)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	for _, unit := range keys {
		s.recordUnitLocked(unit, gen, units[unit], kindOf)
	}
	s.generation = gen
	return nil
}

func (s *Store) recordUnitLocked(unit model.UnitKey, gen model.Generation, symbols []model.Symbol, kindOf func(string) (model.SymbolKind, bool)) {
	declared := make(map[string]bool, len(symbols))
	for _, sym := range symbols {
		declared[sym.Name] = true
	}

	for _, name := range s.owned[unit] {
		if declared[name] {
			continue
		}
		latest := s.latestLocked(name)
		if latest == nil || latest.Unit != unit || latest.Snapshot == nil {
			// Moved to another unit earlier in this round, or already gone
			continue
		}
		if id := latest.Snapshot.Symbol.ID; id != 0 && s.current[id] == name {
			delete(s.current, id)
		}
		s.appendLocked(Record{Name: name, Generation: gen, Unit: unit})
	}

	names := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		kinds := make(map[string]model.SymbolKind)
		for _, st := range sym.Supertypes {
			if k, ok := kindOf(st.Name); ok {
				kinds[st.Name] = k
			}
		}
		if len(kinds) == 0 {
			kinds = nil
		}
		if latest := s.latestLocked(sym.Name); latest != nil && latest.Snapshot != nil && latest.Unit != unit {
			s.disownLocked(latest.Unit, sym.Name)
		}
		snap := &model.Snapshot{
			Symbol:         sym,
			Unit:           unit,
			Generation:     gen,
			SupertypeKinds: kinds,
			Fingerprint:    model.Fingerprint(sym, kinds),
		}
		s.appendLocked(Record{Name: sym.Name, Generation: gen, Unit: unit, Snapshot: snap})
		if sym.ID != 0 {
			s.current[sym.ID] = sym.Name
			s.trackNameLocked(sym.ID, sym.Name, gen)
		}
		names = append(names, sym.Name)
	}

	sort.Strings(names)
	if len(names) == 0 {
		delete(s.owned, unit)
	} else {
		s.owned[unit] = names
	}
}

// disownLocked drops a name from a unit that was not recompiled but whose
// declaration moved elsewhere.
func (s *Store) disownLocked(unit model.UnitKey, name string) {
	names := s.owned[unit]
	for i, n := range names {
		if n == name {
			names = append(names[:i:i], names[i+1:]...)
			break
		}
	}
	if len(names) == 0 {
		delete(s.owned, unit)
	} else {
		s.owned[unit] = names
	}
}

// appendLocked adds an entry, replacing an entry of the same generation so there is
// at most one record per (name, generation).
func (s *Store) appendLocked(rec Record) {
	h := s.history[rec.Name]
	if n := len(h); n > 0 && h[n-1].Generation == rec.Generation {
		h[n-1] = rec
		return
	}
	s.history[rec.Name] = append(h, rec)
}

func (s *Store) trackNameLocked(id model.SymbolID, name string, gen model.Generation) {
	h := s.names[id]
	if n := len(h); n > 0 && h[n-1].gen == gen {
		h[n-1].name = name
		return
	}
	s.names[id] = append(h, nameAt{name: name, gen: gen})
}

func (s *Store) latestLocked(name string) *Record {
	h := s.history[name]
	if len(h) == 0 {
		return nil
	}
	return &h[len(h)-1]
}

func (s *Store) currentLocked(name string) *model.Snapshot {
	if latest := s.latestLocked(name); latest != nil {
		return latest.Snapshot
	}
	return nil
}

// beforeLocked returns the newest entry older than gen
func (s *Store) beforeLocked(name string, gen model.Generation) *Record {
	h := s.history[name]
	for i := len(h) - 1; i >= 0; i-- {
		if h[i].Generation < gen {
			return &h[i]
		}
	}
	return nil
}

// Current returns the latest snapshot of a symbol, or false if the symbol is not
// declared anywhere right now.
func (s *Store) Current(name string) (*model.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := s.currentLocked(name)
	return snap, snap != nil
}

// Previous returns the snapshot the symbol had before its latest recording, or
// false if the symbol is newly introduced (or was deleted before that).
func (s *Store) Previous(name string) (*model.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	latest := s.latestLocked(name)
	if latest == nil {
		return nil, false
	}
	rec := s.beforeLocked(name, latest.Generation)
	if rec == nil || rec.Snapshot == nil {
		return nil, false
	}
	return rec.Snapshot, true
}

// At returns the snapshot a symbol had in the newest generation strictly before gen
func (s *Store) At(name string, before model.Generation) (*model.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec := s.beforeLocked(name, before)
	if rec == nil || rec.Snapshot == nil {
		return nil, false
	}
	return rec.Snapshot, true
}

// RecordedAt reports whether the symbol has an entry (snapshot or tombstone) at gen
func (s *Store) RecordedAt(name string, gen model.Generation) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	latest := s.latestLocked(name)
	return latest != nil && latest.Generation == gen
}

// NameOf returns the name currently declaring a stable id
func (s *Store) NameOf(id model.SymbolID) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	name, ok := s.current[id]
	return name, ok
}

// NameBefore returns the name a stable id was declared under in the newest
// generation strictly before gen.
func (s *Store) NameBefore(id model.SymbolID, before model.Generation) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h := s.names[id]
	for i := len(h) - 1; i >= 0; i-- {
		if h[i].gen < before {
			return h[i].name, true
		}
	}
	return "", false
}

// SymbolsOf returns the names a unit currently declares, sorted
func (s *Store) SymbolsOf(unit model.UnitKey) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := s.owned[unit]
	out := make([]string, len(names))
	copy(out, names)
	return out
}

// OwnerOf returns the unit currently declaring a symbol
func (s *Store) OwnerOf(name string) (model.UnitKey, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if snap := s.currentLocked(name); snap != nil {
		return snap.Unit, true
	}
	return "", false
}

// Units returns every unit that currently declares at least one symbol, sorted
func (s *Store) Units() []model.UnitKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	units := make([]model.UnitKey, 0, len(s.owned))
	for unit := range s.owned {
		units = append(units, unit)
	}
	sort.Slice(units, func(i, j int) bool { return units[i] < units[j] })
	return units
}
