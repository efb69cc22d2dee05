package cycles

import (
	"testing"

	"github.com/ritzau/impact-analyzer/pkg/graph"
)

func TestFindHierarchyCycles_NoCycles(t *testing.T) {
	hg := graph.NewHierarchyGraph()

	// Base <- Mid <- Leaf
	hg.AddSubclass("Base.kt", "Mid.kt")
	hg.AddSubclass("Mid.kt", "Leaf.kt")

	if cycles := FindHierarchyCycles(hg); len(cycles) != 0 {
		t.Errorf("Expected no cycles, but found %d", len(cycles))
	}
}

func TestFindHierarchyCycles_SimpleCycle(t *testing.T) {
	hg := graph.NewHierarchyGraph()
	hg.AddSubclass("B.kt", "A.kt")
	hg.AddSubclass("A.kt", "B.kt")

	cycles := FindHierarchyCycles(hg)
	if len(cycles) != 1 {
		t.Fatalf("Expected 1 cycle, but found %d", len(cycles))
	}
	units := cycles[0].Units
	if len(units) != 2 || units[0] != "A.kt" || units[1] != "B.kt" {
		t.Errorf("Expected sorted cycle [A.kt B.kt], got %v", units)
	}
}

func TestFindHierarchyCycles_MultipleCycles(t *testing.T) {
	hg := graph.NewHierarchyGraph()

	// X -> Y -> Z -> X, and separately C <-> D hanging off Z
	hg.AddSubclass("X.kt", "Y.kt")
	hg.AddSubclass("Y.kt", "Z.kt")
	hg.AddSubclass("Z.kt", "X.kt")
	hg.AddSubclass("Z.kt", "C.kt")
	hg.AddSubclass("C.kt", "D.kt")
	hg.AddSubclass("D.kt", "C.kt")
	hg.AddUnit("Lonely.kt")

	cycles := FindHierarchyCycles(hg)
	if len(cycles) != 2 {
		t.Fatalf("Expected 2 cycles, but found %d", len(cycles))
	}
	if cycles[0].Units[0] != "C.kt" || len(cycles[0].Units) != 2 {
		t.Errorf("First cycle = %v, want [C.kt D.kt]", cycles[0].Units)
	}
	if cycles[1].Units[0] != "X.kt" || len(cycles[1].Units) != 3 {
		t.Errorf("Second cycle = %v, want [X.kt Y.kt Z.kt]", cycles[1].Units)
	}
}

func TestTarjanSCCIsReproducible(t *testing.T) {
	hg := graph.NewHierarchyGraph()
	hg.AddSubclass("A.kt", "B.kt")
	hg.AddSubclass("B.kt", "A.kt")

	first := NewTarjanSCC(hg.Graph()).FindSCCs()
	for i := 0; i < 10; i++ {
		again := NewTarjanSCC(hg.Graph()).FindSCCs()
		if len(again) != 1 || len(again[0]) != len(first[0]) || again[0][0] != first[0][0] {
			t.Fatalf("Run %d gave %v, first run gave %v", i, again, first)
		}
	}
}
