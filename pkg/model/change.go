package model

import "fmt"

// ChangeKind is the closed set of structural changes the classifier can report.
// Adding a kind means extending AllChangeKinds and the impact rule table; the
// impact tests fail for any kind without a rule.
type ChangeKind string

const (
	ChangeSymbolRenamed                 ChangeKind = "SYMBOL_RENAMED"
	ChangeSymbolAdded                   ChangeKind = "SYMBOL_ADDED"
	ChangeSymbolRemoved                 ChangeKind = "SYMBOL_REMOVED"
	ChangeSupertypeAdded                ChangeKind = "SUPERTYPE_ADDED"
	ChangeSupertypeRemoved              ChangeKind = "SUPERTYPE_REMOVED"
	ChangeSupertypeKindChanged          ChangeKind = "SUPERTYPE_KIND_CHANGED"
	ChangeModalityChanged               ChangeKind = "MODALITY_CHANGED"
	ChangeTypeParameterAdded            ChangeKind = "TYPE_PARAMETER_ADDED"
	ChangeTypeParameterRemoved          ChangeKind = "TYPE_PARAMETER_REMOVED"
	ChangeConstructorVisibilityNarrowed ChangeKind = "CONSTRUCTOR_VISIBILITY_NARROWED"
	ChangeConstructorSignatureChanged   ChangeKind = "CONSTRUCTOR_SIGNATURE_CHANGED"
	ChangeConstructorAdded              ChangeKind = "CONSTRUCTOR_ADDED"
)

// AllChangeKinds lists every change kind in classifier priority order
func AllChangeKinds() []ChangeKind {
	return []ChangeKind{
		ChangeSymbolRenamed,
		ChangeSymbolAdded,
		ChangeSymbolRemoved,
		ChangeSupertypeAdded,
		ChangeSupertypeRemoved,
		ChangeSupertypeKindChanged,
		ChangeModalityChanged,
		ChangeTypeParameterAdded,
		ChangeTypeParameterRemoved,
		ChangeConstructorVisibilityNarrowed,
		ChangeConstructorSignatureChanged,
		ChangeConstructorAdded,
	}
}

// ChangeRecord is one classified difference for a symbol.
// Detail carries the payload: the new name for a rename, the supertype that
// entered or left the list, "open->final", and so on.
type ChangeRecord struct {
	Symbol string     `json:"symbol"`
	Kind   ChangeKind `json:"kind"`
	Detail string     `json:"detail,omitempty"`
}

func (r ChangeRecord) String() string {
	if r.Detail == "" {
		return fmt.Sprintf("%s(%s)", r.Kind, r.Symbol)
	}
	return fmt.Sprintf("%s(%s: %s)", r.Kind, r.Symbol, r.Detail)
}
