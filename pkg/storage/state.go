package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/ritzau/impact-analyzer/pkg/artifacts"
	"github.com/ritzau/impact-analyzer/pkg/depindex"
	"github.com/ritzau/impact-analyzer/pkg/model"
	"github.com/ritzau/impact-analyzer/pkg/snapshot"
)

const (
	prefixSnapshot = "snap/"
	prefixEdges    = "edges/"
	prefixOutputs  = "outputs/"
	keyGeneration  = "meta/generation"
	keyClasspath   = "meta/classpath"
)

// State is everything a session starts from and commits back
type State struct {
	Generation model.Generation
	Snapshots  *snapshot.Store
	Index      *depindex.Index
	Outputs    *artifacts.OutputMap
	Classpath  []string
}

// NewState returns the state of a project that was never built
func NewState() *State {
	return &State{
		Snapshots: snapshot.NewStore(),
		Index:     depindex.New(),
		Outputs:   artifacts.NewOutputMap(),
	}
}

func snapshotKey(rec snapshot.Record) []byte {
	return []byte(fmt.Sprintf("%s%s/%020d", prefixSnapshot, rec.Name, rec.Generation))
}

// Save replaces the persisted state in one transaction: either the whole new
// generation is visible afterwards or the old one still is. Sessions that start
// from a committed state use SaveChanges instead.
func (s *Store) Save(st *State) error {
	gen := st.Generation
	if g := st.Snapshots.Generation(); g > gen {
		gen = g
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		for _, prefix := range []string{prefixSnapshot, prefixEdges, prefixOutputs} {
			if err := deletePrefix(txn, prefix); err != nil {
				return err
			}
		}

		for _, rec := range st.Snapshots.Export() {
			if err := setJSON(txn, snapshotKey(rec), rec); err != nil {
				return err
			}
		}
		for _, unit := range st.Index.Units() {
			if err := setJSON(txn, []byte(prefixEdges+string(unit)), st.Index.EdgesOf(unit)); err != nil {
				return err
			}
		}
		for unit, outputs := range st.Outputs.All() {
			if err := setJSON(txn, []byte(prefixOutputs+string(unit)), outputs); err != nil {
				return err
			}
		}
		if err := setJSON(txn, []byte(keyClasspath), st.Classpath); err != nil {
			return err
		}
		return setJSON(txn, []byte(keyGeneration), gen)
	})
	return saveErr(gen, err)
}

// SaveChanges commits next on top of prev, which must be the state the store
// currently holds. Only snapshot records that are new or were compacted away and
// the edge and output lists that differ are written, so a session touching a few
// units stays a small transaction however large the project is.
func (s *Store) SaveChanges(prev, next *State) error {
	gen := next.Generation
	if g := next.Snapshots.Generation(); g > gen {
		gen = g
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		old := make(map[string]bool)
		for _, rec := range prev.Snapshots.Export() {
			old[string(snapshotKey(rec))] = true
		}
		for _, rec := range next.Snapshots.Export() {
			key := snapshotKey(rec)
			if old[string(key)] {
				delete(old, string(key))
				continue
			}
			if err := setJSON(txn, key, rec); err != nil {
				return err
			}
		}
		for key := range old {
			if err := txn.Delete([]byte(key)); err != nil {
				return err
			}
		}

		if err := syncUnits(txn, prefixEdges, edgeLists(prev.Index), edgeLists(next.Index)); err != nil {
			return err
		}
		if err := syncUnits(txn, prefixOutputs, prev.Outputs.All(), next.Outputs.All()); err != nil {
			return err
		}
		if err := setJSON(txn, []byte(keyClasspath), next.Classpath); err != nil {
			return err
		}
		return setJSON(txn, []byte(keyGeneration), gen)
	})
	return saveErr(gen, err)
}

func saveErr(gen model.Generation, err error) error {
	if errors.Is(err, badger.ErrTxnTooBig) {
		return fmt.Errorf("state of generation %d does not fit one transaction: %w", gen, err)
	}
	if err != nil {
		return fmt.Errorf("save generation %d: %w", gen, err)
	}
	return nil
}

func edgeLists(idx *depindex.Index) map[model.UnitKey][]model.Dependency {
	out := make(map[model.UnitKey][]model.Dependency)
	for _, unit := range idx.Units() {
		out[unit] = idx.EdgesOf(unit)
	}
	return out
}

// syncUnits writes the per-unit values of next whose encoding differs from prev
// and deletes the units next no longer has
func syncUnits[V any](txn *badger.Txn, prefix string, prev, next map[model.UnitKey]V) error {
	for unit, v := range next {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s%s: %w", prefix, unit, err)
		}
		if old, ok := prev[unit]; ok {
			if was, err := json.Marshal(old); err == nil && bytes.Equal(was, data) {
				continue
			}
		}
		if err := txn.Set([]byte(prefix+string(unit)), data); err != nil {
			return err
		}
	}
	for unit := range prev {
		if _, ok := next[unit]; ok {
			continue
		}
		if err := txn.Delete([]byte(prefix + string(unit))); err != nil {
			return err
		}
	}
	return nil
}

// Load reads the last saved state. It returns ErrNoState for a fresh database.
func (s *Store) Load() (*State, error) {
	var (
		gen       model.Generation
		records   []snapshot.Record
		classpath []string
	)
	edges := make(map[model.UnitKey][]model.Dependency)
	outputs := make(map[model.UnitKey][]string)

	err := s.db.View(func(txn *badger.Txn) error {
		found, err := getJSON(txn, []byte(keyGeneration), &gen)
		if err != nil {
			return err
		}
		if !found {
			return ErrNoState
		}
		if _, err := getJSON(txn, []byte(keyClasspath), &classpath); err != nil {
			return err
		}

		if err := scanPrefix(txn, prefixSnapshot, func(_ string, val []byte) error {
			var rec snapshot.Record
			if err := json.Unmarshal(val, &rec); err != nil {
				return err
			}
			records = append(records, rec)
			return nil
		}); err != nil {
			return err
		}
		if err := scanPrefix(txn, prefixEdges, func(unit string, val []byte) error {
			var deps []model.Dependency
			if err := json.Unmarshal(val, &deps); err != nil {
				return err
			}
			edges[model.UnitKey(unit)] = deps
			return nil
		}); err != nil {
			return err
		}
		return scanPrefix(txn, prefixOutputs, func(unit string, val []byte) error {
			var outs []string
			if err := json.Unmarshal(val, &outs); err != nil {
				return err
			}
			outputs[model.UnitKey(unit)] = outs
			return nil
		})
	})
	if errors.Is(err, ErrNoState) {
		return nil, ErrNoState
	}
	if err != nil {
		return nil, fmt.Errorf("load analyzer state: %w", err)
	}

	st := &State{
		Generation: gen,
		Snapshots:  snapshot.Restore(records, gen),
		Index:      depindex.New(),
		Outputs:    artifacts.NewOutputMap(),
		Classpath:  classpath,
	}
	st.Index.RebuildAll(edges)
	st.Outputs.Load(outputs)
	return st, nil
}

// Reset drops all persisted state, forcing the next session to be a full build
func (s *Store) Reset() error {
	if err := s.db.DropAll(); err != nil {
		return fmt.Errorf("reset analyzer state: %w", err)
	}
	return nil
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return txn.Set(key, data)
}

func getJSON(txn *badger.Txn, key []byte, v any) (bool, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
	if err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// scanPrefix calls fn with the key suffix and value of every key under prefix
func scanPrefix(txn *badger.Txn, prefix string, fn func(suffix string, val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		suffix := strings.TrimPrefix(string(item.Key()), prefix)
		if err := item.Value(func(val []byte) error {
			return fn(suffix, val)
		}); err != nil {
			return fmt.Errorf("decode %s: %w", item.Key(), err)
		}
	}
	return nil
}

func deletePrefix(txn *badger.Txn, prefix string) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)

	var keys [][]byte
	for it.Rewind(); it.Valid(); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	it.Close()

	for _, key := range keys {
		if err := txn.Delete(key); err != nil {
			return err
		}
	}
	return nil
}
