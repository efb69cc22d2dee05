package impact

import (
	"sort"

	"github.com/ritzau/impact-analyzer/pkg/model"
)

// Index is the reverse lookup the expander reads
type Index interface {
	EdgesInto(symbol string, kinds ...model.EdgeKind) []model.UnitKey
}

// Owners tells which symbols a unit declares
type Owners interface {
	SymbolsOf(unit model.UnitKey) []string
}

// Expander turns change records into dependent units
type Expander struct {
	index  Index
	owners Owners
}

// NewExpander creates an expander over a dependency index and symbol ownership
func NewExpander(index Index, owners Owners) *Expander {
	return &Expander{index: index, owners: owners}
}

// Affected returns the units a change record schedules, sorted
func (e *Expander) Affected(rec model.ChangeRecord) ([]model.UnitKey, error) {
	rule, err := RuleFor(rec.Kind)
	if err != nil {
		return nil, err
	}

	set := make(map[model.UnitKey]bool)
	for _, unit := range e.index.EdgesInto(rec.Symbol, rule.Direct...) {
		set[unit] = true
	}
	if rec.Kind == model.ChangeSymbolRenamed && rec.Detail != "" {
		// Units that already refer to the new name resolve differently now
		for _, unit := range e.index.EdgesInto(rec.Detail, rule.Direct...) {
			set[unit] = true
		}
	}
	if rule.Transitive {
		for _, unit := range e.SubclassClosure(rec.Symbol) {
			set[unit] = true
		}
	}

	return sortedUnits(set), nil
}

// SubclassClosure follows SUBCLASSES edges outward from symbol: every unit that
// subclasses it, every unit that subclasses a symbol declared in one of those,
// and so on. Cycles in the hierarchy terminate because units are visited once.
func (e *Expander) SubclassClosure(symbol string) []model.UnitKey {
	visited := make(map[model.UnitKey]bool)
	seenSymbols := map[string]bool{symbol: true}
	queue := []string{symbol}

	for len(queue) > 0 {
		sym := queue[0]
		queue = queue[1:]

		for _, unit := range e.index.EdgesInto(sym, model.EdgeSubclasses) {
			if visited[unit] {
				continue
			}
			visited[unit] = true
			for _, declared := range e.owners.SymbolsOf(unit) {
				if !seenSymbols[declared] {
					seenSymbols[declared] = true
					queue = append(queue, declared)
				}
			}
		}
	}

	return sortedUnits(visited)
}

func sortedUnits(set map[model.UnitKey]bool) []model.UnitKey {
	out := make([]model.UnitKey, 0, len(set))
	for unit := range set {
		out = append(out, unit)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
