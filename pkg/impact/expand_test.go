package impact

import (
	"testing"

	"github.com/ritzau/impact-analyzer/pkg/model"
)

type edge struct {
	unit model.UnitKey
	kind model.EdgeKind
}

// mockIndex maps a symbol to the edges pointing at it
type mockIndex map[string][]edge

func (m mockIndex) EdgesInto(symbol string, kinds ...model.EdgeKind) []model.UnitKey {
	var out []model.UnitKey
	for _, e := range m[symbol] {
		for _, k := range kinds {
			if e.kind == k {
				out = append(out, e.unit)
				break
			}
		}
	}
	return out
}

type mockOwners map[model.UnitKey][]string

func (m mockOwners) SymbolsOf(unit model.UnitKey) []string { return m[unit] }

// Base <- Mid <- Leaf, Main calls Base's constructor and Refs references Base
func hierarchy() (mockIndex, mockOwners) {
	idx := mockIndex{
		"app.Base": {
			{"Mid.kt", model.EdgeSubclasses},
			{"Main.kt", model.EdgeCallsConstructor},
			{"Refs.kt", model.EdgeReferencesType},
			{"Members.kt", model.EdgeUsesMember},
		},
		"app.Mid":  {{"Leaf.kt", model.EdgeSubclasses}},
		"app.Next": {{"Late.kt", model.EdgeReferencesType}},
	}
	owners := mockOwners{
		"Base.kt": {"app.Base"},
		"Mid.kt":  {"app.Mid"},
		"Leaf.kt": {"app.Leaf"},
	}
	return idx, owners
}

func TestEveryChangeKindHasARule(t *testing.T) {
	for _, kind := range model.AllChangeKinds() {
		rule, err := RuleFor(kind)
		if err != nil {
			t.Errorf("RuleFor(%s) error = %v", kind, err)
			continue
		}
		if len(rule.Direct) == 0 {
			t.Errorf("RuleFor(%s) has no direct edge kinds", kind)
		}
	}
	if _, err := RuleFor("MEMBER_REMOVED"); err == nil {
		t.Error("expected an error for an unknown change kind")
	}
}

func TestAffected(t *testing.T) {
	idx, owners := hierarchy()
	e := NewExpander(idx, owners)

	tests := []struct {
		name string
		rec  model.ChangeRecord
		want []model.UnitKey
	}{
		{"modality is direct only", model.ChangeRecord{Symbol: "app.Base", Kind: model.ChangeModalityChanged}, []model.UnitKey{"Mid.kt"}},
		{"supertype removed reaches every subclass", model.ChangeRecord{Symbol: "app.Base", Kind: model.ChangeSupertypeRemoved}, []model.UnitKey{"Leaf.kt", "Mid.kt"}},
		{"kind change adds type references", model.ChangeRecord{Symbol: "app.Base", Kind: model.ChangeSupertypeKindChanged}, []model.UnitKey{"Leaf.kt", "Mid.kt", "Refs.kt"}},
		{"constructor change", model.ChangeRecord{Symbol: "app.Base", Kind: model.ChangeConstructorSignatureChanged}, []model.UnitKey{"Main.kt"}},
		{"removal hits every edge kind", model.ChangeRecord{Symbol: "app.Base", Kind: model.ChangeSymbolRemoved}, []model.UnitKey{"Main.kt", "Members.kt", "Mid.kt", "Refs.kt"}},
		{"rename covers both names", model.ChangeRecord{Symbol: "app.Mid", Kind: model.ChangeSymbolRenamed, Detail: "app.Next"}, []model.UnitKey{"Late.kt", "Leaf.kt"}},
		{"no dependents", model.ChangeRecord{Symbol: "app.Leaf", Kind: model.ChangeSymbolAdded}, []model.UnitKey{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Affected(tt.rec)
			if err != nil {
				t.Fatalf("Affected() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Affected() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Affected()[%d] = %s, want %s", i, got[i], tt.want[i])
				}
			}
		})
	}

	if _, err := e.Affected(model.ChangeRecord{Symbol: "app.Base", Kind: "UNKNOWN"}); err == nil {
		t.Error("expected an error for an unknown change kind")
	}
}

func TestSubclassClosureTerminatesOnCycles(t *testing.T) {
	idx := mockIndex{
		"app.A": {{"B.kt", model.EdgeSubclasses}},
		"app.B": {{"A.kt", model.EdgeSubclasses}},
	}
	owners := mockOwners{"A.kt": {"app.A"}, "B.kt": {"app.B"}}

	got := NewExpander(idx, owners).SubclassClosure("app.A")
	if len(got) != 2 || got[0] != "A.kt" || got[1] != "B.kt" {
		t.Errorf("SubclassClosure = %v, want [A.kt B.kt]", got)
	}
}
