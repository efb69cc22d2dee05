// Package impact maps classified changes to the units that must be recompiled.
package impact

import (
	"fmt"

	"github.com/ritzau/impact-analyzer/pkg/model"
)

// Rule is the dependent scope pulled from the index for one change kind.
//
// Direct edges of the Direct kinds into the changed symbol are always included.
// When Transitive is set, SUBCLASSES edges are followed outward from the changed
// symbol through every subclass until no new unit is reached. A subclass several
// levels down may not use what changed; it is scheduled anyway because telling
// would need member resolution, which is the front-end's business.
type Rule struct {
	Direct     []model.EdgeKind
	Transitive bool
}

var allKinds = model.AllEdgeKinds()

// RuleFor returns the scope of a change kind. Every kind in model.AllChangeKinds
// has a rule; an unknown kind is an error so that a new kind cannot silently
// propagate nowhere.
func RuleFor(kind model.ChangeKind) (Rule, error) {
	switch kind {
	case model.ChangeSymbolRenamed, model.ChangeSymbolRemoved, model.ChangeSymbolAdded:
		return Rule{Direct: allKinds}, nil
	case model.ChangeSupertypeAdded, model.ChangeSupertypeRemoved:
		return Rule{Direct: []model.EdgeKind{model.EdgeSubclasses}, Transitive: true}, nil
	case model.ChangeSupertypeKindChanged:
		return Rule{Direct: []model.EdgeKind{model.EdgeSubclasses, model.EdgeReferencesType}, Transitive: true}, nil
	case model.ChangeModalityChanged:
		return Rule{Direct: []model.EdgeKind{model.EdgeSubclasses}}, nil
	case model.ChangeTypeParameterAdded, model.ChangeTypeParameterRemoved:
		return Rule{Direct: []model.EdgeKind{model.EdgeSubclasses, model.EdgeReferencesType}, Transitive: true}, nil
	case model.ChangeConstructorVisibilityNarrowed:
		return Rule{Direct: []model.EdgeKind{model.EdgeCallsConstructor}}, nil
	case model.ChangeConstructorSignatureChanged, model.ChangeConstructorAdded:
		return Rule{Direct: []model.EdgeKind{model.EdgeCallsConstructor}}, nil
	}
	return Rule{}, fmt.Errorf("no impact rule for change kind %q", kind)
}
