package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ritzau/impact-analyzer/pkg/artifacts"
	"github.com/ritzau/impact-analyzer/pkg/depindex"
	"github.com/ritzau/impact-analyzer/pkg/model"
	"github.com/ritzau/impact-analyzer/pkg/snapshot"
)

// world is a fake front-end: it compiles a unit to whatever facts the test put there
type world struct {
	mu        sync.Mutex
	units     map[model.UnitKey]model.UnitFacts
	calls     [][]model.UnitKey
	failAt    int // 1-based Compile call that fails, 0 for never
	onCompile func(unit model.UnitKey, facts model.UnitFacts) model.UnitFacts
}

func newWorld() *world {
	return &world{units: make(map[model.UnitKey]model.UnitFacts)}
}

func (w *world) Compile(_ context.Context, units []model.UnitKey) (map[model.UnitKey]model.UnitFacts, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.calls = append(w.calls, append([]model.UnitKey(nil), units...))
	if w.failAt == len(w.calls) {
		return nil, errors.New("unresolved reference")
	}

	out := make(map[model.UnitKey]model.UnitFacts, len(units))
	for _, unit := range units {
		facts, ok := w.units[unit]
		if !ok {
			continue
		}
		if w.onCompile != nil {
			facts = w.onCompile(unit, facts)
			w.units[unit] = facts
		}
		out[unit] = facts
	}
	return out, nil
}

// declare puts a single-symbol unit into the world
func (w *world) declare(unit model.UnitKey, sym model.Symbol, deps ...model.Dependency) {
	w.units[unit] = model.UnitFacts{Symbols: []model.Symbol{sym}, Dependencies: deps}
}

// edit rewrites the first symbol of a unit
func (w *world) edit(unit model.UnitKey, change func(sym *model.Symbol)) {
	facts := w.units[unit]
	syms := append([]model.Symbol(nil), facts.Symbols...)
	change(&syms[0])
	facts.Symbols = syms
	w.units[unit] = facts
}

func (w *world) allUnits() []model.UnitKey {
	out := make([]model.UnitKey, 0, len(w.units))
	for unit := range w.units {
		out = append(out, unit)
	}
	return out
}

func class(id model.SymbolID, name string, supers ...string) model.Symbol {
	sym := model.Symbol{
		ID:       id,
		Name:     name,
		Kind:     model.KindClass,
		Modality: model.ModalityOpen,
		PrimaryConstructor: &model.Constructor{
			Visibility: model.VisibilityPublic,
		},
	}
	for _, s := range supers {
		sym.Supertypes = append(sym.Supertypes, model.Supertype{Name: s, Relation: model.RelationExtends})
	}
	return sym
}

func dep(kind model.EdgeKind, to string) model.Dependency {
	return model.Dependency{To: to, Kind: kind}
}

// state is one project's persisted analyzer state
type state struct {
	store   *snapshot.Store
	index   *depindex.Index
	outputs *artifacts.OutputMap
}

func newState() *state {
	return &state{store: snapshot.NewStore(), index: depindex.New(), outputs: artifacts.NewOutputMap()}
}

func (s *state) run(t *testing.T, w *world, opts Options, dirty ...model.UnitKey) (*Plan, error) {
	t.Helper()
	return NewDriver(s.store, s.index, s.outputs, w, opts).Run(context.Background(), dirty)
}

// fullBuild compiles every unit of the world once, as a first build would
func fullBuild(t *testing.T, w *world) *state {
	t.Helper()
	s := newState()
	if _, err := s.run(t, w, Options{}, w.allUnits()...); err != nil {
		t.Fatalf("full build failed: %v", err)
	}
	w.calls = nil
	return s
}

func assertUnits(t *testing.T, what string, got []model.UnitKey, want ...model.UnitKey) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s = %v, want %v", what, got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("%s = %v, want %v", what, got, want)
		}
	}
}
