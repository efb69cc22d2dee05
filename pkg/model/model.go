package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// UnitKey identifies a compilation unit by a stable path-like key (e.g. "src/app/Base.kt")
type UnitKey string

// SymbolID is a stable identity assigned by the front-end when a declaration is first
// seen and carried across renames. Zero means the front-end supplied no identity.
type SymbolID int64

// Generation counts rounds. It only ever increases, also across build sessions.
type Generation uint64

// SymbolKind distinguishes classes from interfaces
type SymbolKind string

const (
	KindClass     SymbolKind = "class"
	KindInterface SymbolKind = "interface"
)

// Modality tells whether a class may be subclassed
type Modality string

const (
	ModalityOpen  Modality = "open"
	ModalityFinal Modality = "final"
)

// Visibility of a constructor
type Visibility string

const (
	VisibilityPublic   Visibility = "public"
	VisibilityInternal Visibility = "internal"
	VisibilityPrivate  Visibility = "private"
)

// Rank orders visibilities from most (0) to least permissive.
// Unknown values rank as public so they never look like a narrowing.
func (v Visibility) Rank() int {
	switch v {
	case VisibilityInternal:
		return 1
	case VisibilityPrivate:
		return 2
	default:
		return 0
	}
}

// NarrowerThan reports whether v is strictly less permissive than other
func (v Visibility) NarrowerThan(other Visibility) bool {
	return v.Rank() > other.Rank()
}

// Variance of a type parameter. The empty string means invariant.
type Variance string

const (
	VarianceInvariant Variance = ""
	VarianceIn        Variance = "in"
	VarianceOut       Variance = "out"
)

// Relation describes how a symbol inherits from a supertype
type Relation string

const (
	RelationExtends    Relation = "extends"
	RelationImplements Relation = "implements"
)

// Supertype is a reference from a symbol to one of its declared supertypes
type Supertype struct {
	Name     string   `json:"name"`
	ID       SymbolID `json:"id,omitempty"`
	Relation Relation `json:"relation"`
}

// Identity returns the key used to compare supertype lists: the stable id when
// the front-end supplied one, the qualified name otherwise.
func (s Supertype) Identity() string {
	if s.ID != 0 {
		return fmt.Sprintf("#%d", s.ID)
	}
	return s.Name
}

// TypeParameter is one slot of a symbol's type parameter list
type TypeParameter struct {
	Name     string   `json:"name"`
	Variance Variance `json:"variance,omitempty"`
}

// Parameter is a constructor value parameter
type Parameter struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Constructor is a primary or secondary constructor
type Constructor struct {
	Parameters []Parameter `json:"parameters"`
	Visibility Visibility  `json:"visibility"`
}

// Signature renders the ordered parameter list, e.g. "(a:Int,b:String)"
func (c Constructor) Signature() string {
	sig := "("
	for i, p := range c.Parameters {
		if i > 0 {
			sig += ","
		}
		sig += p.Name + ":" + p.Type
	}
	return sig + ")"
}

// Symbol is a declared class or interface as reported by the front-end
type Symbol struct {
	ID                    SymbolID        `json:"id,omitempty"`
	Name                  string          `json:"name"` // qualified name
	Kind                  SymbolKind      `json:"kind"`
	Modality              Modality        `json:"modality"`
	Supertypes            []Supertype     `json:"supertypes,omitempty"`
	TypeParameters        []TypeParameter `json:"typeParameters,omitempty"`
	PrimaryConstructor    *Constructor    `json:"primaryConstructor,omitempty"`
	SecondaryConstructors []Constructor   `json:"secondaryConstructors,omitempty"`
}

// Validate checks the closed enumerations of a symbol
func (s *Symbol) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("symbol without a name")
	}
	switch s.Kind {
	case KindClass, KindInterface:
	default:
		return fmt.Errorf("symbol %s: unknown kind %q", s.Name, s.Kind)
	}
	switch s.Modality {
	case ModalityOpen, ModalityFinal:
	default:
		return fmt.Errorf("symbol %s: unknown modality %q", s.Name, s.Modality)
	}
	for _, st := range s.Supertypes {
		if st.Relation != RelationExtends && st.Relation != RelationImplements {
			return fmt.Errorf("symbol %s: supertype %s has unknown relation %q", s.Name, st.Name, st.Relation)
		}
	}
	return nil
}

// Snapshot is the immutable, generation-tagged record of a symbol's structural facts
type Snapshot struct {
	Symbol     Symbol     `json:"symbol"`
	Unit       UnitKey    `json:"unit"`
	Generation Generation `json:"generation"`

	// SupertypeKinds holds the kind each supertype had when this snapshot was
	// recorded, keyed by supertype name. Unknown supertypes (e.g. from libraries)
	// are absent.
	SupertypeKinds map[string]SymbolKind `json:"supertypeKinds,omitempty"`

	Fingerprint string `json:"fingerprint"`
}

// Fingerprint hashes the structural content of a snapshot. Unit and generation are
// excluded so an unchanged recompilation produces the same value.
func Fingerprint(sym Symbol, supertypeKinds map[string]SymbolKind) string {
	// encoding/json sorts map keys, so the encoding is canonical
	data, err := json.Marshal(struct {
		Symbol Symbol                `json:"s"`
		Kinds  map[string]SymbolKind `json:"k"`
	}{sym, supertypeKinds})
	if err != nil {
		// Symbol holds only strings, ints and slices of them
		panic(fmt.Sprintf("fingerprint %s: %v", sym.Name, err))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// EdgeKind is the relation a dependent unit has to a symbol
type EdgeKind string

const (
	EdgeSubclasses       EdgeKind = "SUBCLASSES"
	EdgeUsesMember       EdgeKind = "USES_MEMBER"
	EdgeReferencesType   EdgeKind = "REFERENCES_TYPE"
	EdgeCallsConstructor EdgeKind = "CALLS_CONSTRUCTOR"
)

// AllEdgeKinds lists every edge kind
func AllEdgeKinds() []EdgeKind {
	return []EdgeKind{EdgeSubclasses, EdgeUsesMember, EdgeReferencesType, EdgeCallsConstructor}
}

// Dependency is a directed edge from a dependent unit to a symbol it depends on
type Dependency struct {
	From   UnitKey  `json:"from"`
	To     string   `json:"to"` // qualified symbol name
	Kind   EdgeKind `json:"kind"`
	Member string   `json:"member,omitempty"` // only for USES_MEMBER
}

// UnitFacts is what the front-end reports for one compiled unit
type UnitFacts struct {
	Symbols      []Symbol     `json:"symbols"`
	Dependencies []Dependency `json:"dependencies"`
	Outputs      []string     `json:"outputs,omitempty"`
}
