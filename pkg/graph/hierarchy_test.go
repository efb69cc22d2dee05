package graph

import (
	"strings"
	"testing"

	"github.com/ritzau/impact-analyzer/pkg/model"
)

type fakeEdges map[model.UnitKey][]model.Dependency

func (f fakeEdges) Units() []model.UnitKey {
	var out []model.UnitKey
	for unit := range f {
		out = append(out, unit)
	}
	return out
}

func (f fakeEdges) EdgesOf(unit model.UnitKey) []model.Dependency { return f[unit] }

type fakeOwners map[string]model.UnitKey

func (f fakeOwners) OwnerOf(name string) (model.UnitKey, bool) {
	unit, ok := f[name]
	return unit, ok
}

func (f fakeOwners) Units() []model.UnitKey {
	seen := make(map[model.UnitKey]bool)
	var out []model.UnitKey
	for _, unit := range f {
		if !seen[unit] {
			seen[unit] = true
			out = append(out, unit)
		}
	}
	return out
}

func TestBuildHierarchy(t *testing.T) {
	edges := fakeEdges{
		"Mid.kt": {
			{To: "app.Base", Kind: model.EdgeSubclasses},
			{To: "lib.Closeable", Kind: model.EdgeSubclasses},
		},
		"Leaf.kt": {
			{To: "app.Mid", Kind: model.EdgeSubclasses},
			{To: "app.Base", Kind: model.EdgeUsesMember, Member: "greet"},
		},
		// Nested subclass in the same unit
		"Base.kt": {{To: "app.Base", Kind: model.EdgeSubclasses}},
	}
	owners := fakeOwners{
		"app.Base":   "Base.kt",
		"app.Mid":    "Mid.kt",
		"app.Leaf":   "Leaf.kt",
		"app.Orphan": "Orphan.kt",
	}

	hg := BuildHierarchy(edges, owners)

	if hg.Len() != 4 {
		t.Errorf("Expected 4 units, got %d", hg.Len())
	}

	subs := hg.Subclasses("Base.kt")
	if len(subs) != 2 || subs[0] != "Leaf.kt" || subs[1] != "Mid.kt" {
		t.Errorf("Subclasses(Base.kt) = %v, want [Leaf.kt Mid.kt]", subs)
	}
	if subs := hg.Subclasses("Orphan.kt"); len(subs) != 0 {
		t.Errorf("Subclasses(Orphan.kt) = %v, want none", subs)
	}
	if subs := hg.Subclasses("Missing.kt"); subs != nil {
		t.Errorf("Subclasses of an unknown unit = %v", subs)
	}

	depth, err := hg.Depth()
	if err != nil {
		t.Fatalf("Depth() error = %v", err)
	}
	if depth != 3 {
		t.Errorf("Depth() = %d, want 3", depth)
	}
}

func TestAddSubclassIgnoresDuplicates(t *testing.T) {
	hg := NewHierarchyGraph()
	hg.AddSubclass("Base.kt", "Sub.kt")
	hg.AddSubclass("Base.kt", "Sub.kt")
	hg.AddSubclass("Sub.kt", "Sub.kt")

	if n := hg.Graph().From(0).Len(); n != 1 {
		t.Errorf("Expected 1 edge out of Base.kt, got %d", n)
	}
	if n := hg.Graph().From(1).Len(); n != 0 {
		t.Errorf("Expected no edge out of Sub.kt, got %d", n)
	}
	if n := hg.AddUnit("Base.kt"); n.Key != "Base.kt" || n.ID() != 0 {
		t.Errorf("AddUnit returned %+v for an existing unit", n)
	}
	if _, ok := hg.Node(7); ok {
		t.Error("Node(7) should not exist")
	}
}

func TestDepthFailsOnCycle(t *testing.T) {
	hg := NewHierarchyGraph()
	hg.AddSubclass("A.kt", "B.kt")
	hg.AddSubclass("B.kt", "A.kt")

	if _, err := hg.Depth(); err == nil {
		t.Error("Expected an error for a cyclic hierarchy")
	}
}

func TestDOT(t *testing.T) {
	hg := NewHierarchyGraph()
	hg.AddSubclass("Base.kt", "Sub.kt")

	out, err := hg.DOT("hierarchy")
	if err != nil {
		t.Fatalf("DOT() error = %v", err)
	}
	dot := string(out)
	if !strings.Contains(dot, "digraph hierarchy") {
		t.Errorf("DOT output missing graph header:\n%s", dot)
	}
	if !strings.Contains(dot, `"Base.kt" -> "Sub.kt"`) {
		t.Errorf("DOT output missing edge:\n%s", dot)
	}
}
