package storage

import (
	"errors"
	"testing"

	"github.com/dgraph-io/badger/v4"

	"github.com/ritzau/impact-analyzer/pkg/model"
	"github.com/ritzau/impact-analyzer/pkg/snapshot"
)

func openInMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(InMemoryConfig())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleState(t *testing.T) *State {
	t.Helper()
	st := NewState()
	base := model.Symbol{ID: 1, Name: "app.Base", Kind: model.KindClass, Modality: model.ModalityOpen}
	sub := model.Symbol{
		ID: 2, Name: "app.Sub", Kind: model.KindClass, Modality: model.ModalityFinal,
		Supertypes: []model.Supertype{{Name: "app.Base", ID: 1, Relation: model.RelationExtends}},
	}
	if err := st.Snapshots.Record("Base.kt", 1, []model.Symbol{base}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := st.Snapshots.Record("Sub.kt", 2, []model.Symbol{sub}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	st.Index.Rebuild("Sub.kt", []model.Dependency{
		{To: "app.Base", Kind: model.EdgeSubclasses},
		{To: "app.Base", Kind: model.EdgeUsesMember, Member: "greet"},
	})
	st.Outputs.Update("Sub.kt", []string{"app/Sub.class"})
	st.Classpath = []string{"lib/kotlin-stdlib.jar"}
	st.Generation = 2
	return st
}

func TestLoadFreshDatabase(t *testing.T) {
	s := openInMemory(t)

	_, err := s.Load()
	if !errors.Is(err, ErrNoState) {
		t.Fatalf("Load() error = %v, want ErrNoState", err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := openInMemory(t)
	if err := s.Save(sampleState(t)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	st, err := s.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if st.Generation != 2 || st.Snapshots.Generation() != 2 {
		t.Errorf("generation = %d / %d, want 2", st.Generation, st.Snapshots.Generation())
	}
	snap, ok := st.Snapshots.Current("app.Sub")
	if !ok {
		t.Fatal("app.Sub missing after load")
	}
	if snap.SupertypeKinds["app.Base"] != model.KindClass {
		t.Errorf("observed supertype kinds lost: %v", snap.SupertypeKinds)
	}
	if owner, _ := st.Snapshots.OwnerOf("app.Base"); owner != "Base.kt" {
		t.Errorf("OwnerOf(app.Base) = %q", owner)
	}
	if name, ok := st.Snapshots.NameOf(1); !ok || name != "app.Base" {
		t.Errorf("NameOf(1) = %q, %v", name, ok)
	}

	dependents := st.Index.EdgesInto("app.Base", model.EdgeUsesMember)
	if len(dependents) != 1 || dependents[0] != "Sub.kt" {
		t.Errorf("EdgesInto(app.Base, USES_MEMBER) = %v", dependents)
	}
	if edges := st.Index.EdgesOf("Sub.kt"); len(edges) != 2 || edges[1].Member != "greet" {
		t.Errorf("EdgesOf(Sub.kt) = %v", edges)
	}
	if outs := st.Outputs.Outputs("Sub.kt"); len(outs) != 1 || outs[0] != "app/Sub.class" {
		t.Errorf("Outputs(Sub.kt) = %v", outs)
	}
	if len(st.Classpath) != 1 || st.Classpath[0] != "lib/kotlin-stdlib.jar" {
		t.Errorf("Classpath = %v", st.Classpath)
	}
}

func TestSaveReplacesPreviousState(t *testing.T) {
	s := openInMemory(t)
	if err := s.Save(sampleState(t)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	st := sampleState(t)
	if err := st.Snapshots.Record("Sub.kt", 3, nil); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	st.Snapshots.Compact(1)
	st.Index.Remove("Sub.kt")
	st.Outputs.Update("Sub.kt", nil)
	st.Generation = 3
	if err := s.Save(st); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := s.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if _, ok := loaded.Snapshots.Current("app.Sub"); ok {
		t.Error("app.Sub should be gone")
	}
	if units := loaded.Index.Units(); len(units) != 0 {
		t.Errorf("edges of removed unit survived: %v", units)
	}
	if outs := loaded.Outputs.All(); len(outs) != 0 {
		t.Errorf("outputs of removed unit survived: %v", outs)
	}
	if loaded.Snapshots.Generation() != 3 {
		t.Errorf("generation = %d, want 3", loaded.Snapshots.Generation())
	}
}

// keyVersion returns the commit version of key, or 0 when it is absent
func keyVersion(t *testing.T, s *Store, key []byte) uint64 {
	t.Helper()
	var version uint64
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		version = item.Version()
		return nil
	})
	if err != nil {
		t.Fatalf("reading %s: %v", key, err)
	}
	return version
}

func TestSaveChangesWritesOnlyTheDifference(t *testing.T) {
	s := openInMemory(t)
	if err := s.Save(sampleState(t)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	prev, err := s.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	var subAt2, baseAt1 snapshot.Record
	for _, rec := range prev.Snapshots.Export() {
		switch rec.Name {
		case "app.Sub":
			subAt2 = rec
		case "app.Base":
			baseAt1 = rec
		}
	}
	kept := keyVersion(t, s, snapshotKey(subAt2))
	if kept == 0 || keyVersion(t, s, snapshotKey(baseAt1)) == 0 {
		t.Fatal("initial records were not saved")
	}

	next := &State{
		Snapshots: prev.Snapshots.Clone(),
		Index:     prev.Index.Clone(),
		Outputs:   prev.Outputs.Clone(),
		Classpath: prev.Classpath,
	}
	sub := model.Symbol{
		ID: 2, Name: "app.Sub", Kind: model.KindClass, Modality: model.ModalityOpen,
		Supertypes: []model.Supertype{{Name: "app.Base", ID: 1, Relation: model.RelationExtends}},
	}
	if err := next.Snapshots.RecordRound(3, map[model.UnitKey][]model.Symbol{
		"Base.kt": nil,
		"Sub.kt":  {sub},
	}); err != nil {
		t.Fatalf("RecordRound() error = %v", err)
	}
	next.Snapshots.Compact(2)
	next.Index.Rebuild("Sub.kt", []model.Dependency{{To: "app.Base", Kind: model.EdgeSubclasses}})
	next.Outputs.Update("Sub.kt", nil)
	next.Generation = 3

	if err := s.SaveChanges(prev, next); err != nil {
		t.Fatalf("SaveChanges() error = %v", err)
	}

	if got := keyVersion(t, s, snapshotKey(subAt2)); got != kept {
		t.Errorf("unchanged record was rewritten: version %d, want %d", got, kept)
	}
	if got := keyVersion(t, s, snapshotKey(baseAt1)); got != 0 {
		t.Error("compacted record survived")
	}

	loaded, err := s.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if _, ok := loaded.Snapshots.Current("app.Base"); ok {
		t.Error("app.Base should be gone")
	}
	cur, ok := loaded.Snapshots.Current("app.Sub")
	if !ok || cur.Symbol.Modality != model.ModalityOpen {
		t.Errorf("Current(app.Sub) = %+v, want the generation 3 snapshot", cur)
	}
	if n := len(loaded.Snapshots.Export()); n != 2 {
		t.Errorf("loaded %d records, want both generations of app.Sub", n)
	}
	if deps := loaded.Index.EdgesOf("Sub.kt"); len(deps) != 1 {
		t.Errorf("EdgesOf(Sub.kt) = %v, want only the subclass edge", deps)
	}
	if outs := loaded.Outputs.All(); len(outs) != 0 {
		t.Errorf("outputs of Sub.kt survived: %v", outs)
	}
	if loaded.Snapshots.Generation() != 3 {
		t.Errorf("generation = %d, want 3", loaded.Snapshots.Generation())
	}
}

func TestGenerationSurvivesCompaction(t *testing.T) {
	s := openInMemory(t)
	st := sampleState(t)
	// A round that recorded nothing still advanced the generation
	st.Generation = 7
	if err := s.Save(st); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := s.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Snapshots.Generation() != 7 {
		t.Errorf("generation = %d, want 7", loaded.Snapshots.Generation())
	}
}

func TestReset(t *testing.T) {
	s := openInMemory(t)
	if err := s.Save(sampleState(t)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := s.Reset(); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if _, err := s.Load(); !errors.Is(err, ErrNoState) {
		t.Errorf("Load() after Reset error = %v, want ErrNoState", err)
	}
}

func TestOpenPersistentDirectory(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig(dir)
	cfg.GCInterval = 0

	s, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := s.Save(sampleState(t)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := Open(cfg)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer reopened.Close()
	st, err := reopened.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if _, ok := st.Snapshots.Current("app.Base"); !ok {
		t.Error("app.Base missing after reopen")
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(Config{}); err == nil {
		t.Error("expected an error without a path")
	}
}
