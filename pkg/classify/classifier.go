// Package classify diffs a symbol's previous snapshot against the one just
// recorded and reports typed change records.
package classify

import (
	"fmt"
	"sort"

	"github.com/ritzau/impact-analyzer/pkg/logging"
	"github.com/ritzau/impact-analyzer/pkg/model"
)

// Source is the read side of the snapshot store the classifier needs
type Source interface {
	Current(name string) (*model.Snapshot, bool)
	At(name string, before model.Generation) (*model.Snapshot, bool)
	RecordedAt(name string, gen model.Generation) bool
	NameOf(id model.SymbolID) (string, bool)
	NameBefore(id model.SymbolID, before model.Generation) (string, bool)
}

// Classifier is stateless apart from the store it reads; Diff may be called from
// several goroutines once a round has been recorded.
type Classifier struct {
	store Source
}

// New creates a classifier over a snapshot store
func New(store Source) *Classifier {
	return &Classifier{store: store}
}

// Diff compares the snapshot of name recorded at gen with the one the symbol had
// before gen. Records come out in priority order; an unchanged symbol yields none.
func (c *Classifier) Diff(name string, gen model.Generation) []model.ChangeRecord {
	if !c.store.RecordedAt(name, gen) {
		return nil
	}

	cur, declared := c.store.Current(name)
	if !declared {
		return c.diffRemoved(name, gen)
	}

	var records []model.ChangeRecord
	prev, existed := c.store.At(name, gen)

	if id := cur.Symbol.ID; id != 0 {
		if oldName, ok := c.store.NameBefore(id, gen); ok && oldName != name {
			if oldSnap, ok := c.store.At(oldName, gen); ok {
				records = append(records, model.ChangeRecord{
					Symbol: oldName,
					Kind:   model.ChangeSymbolRenamed,
					Detail: name,
				})
				prev, existed = oldSnap, true
			}
		} else if existed && prev.Symbol.ID != 0 && prev.Symbol.ID != id {
			logging.Debug("name now denotes another declaration", "symbol", name, "oldID", prev.Symbol.ID, "newID", id)
			return []model.ChangeRecord{{
				Symbol: name,
				Kind:   model.ChangeSymbolRemoved,
				Detail: fmt.Sprintf("redeclared as #%d", id),
			}}
		}
	}

	if !existed {
		if cur.Symbol.ID == 0 {
			// No stable identity: a rename looks like delete+add, which over-propagates
			logging.Trace("identity ambiguity, treating as added", "symbol", name)
		}
		return []model.ChangeRecord{{Symbol: name, Kind: model.ChangeSymbolAdded}}
	}

	if len(records) == 0 && prev.Fingerprint == cur.Fingerprint {
		return nil
	}

	records = append(records, structural(name, prev, cur)...)
	for _, r := range records {
		logging.Debug("classified change", "change", r.String(), "generation", gen)
	}
	return records
}

func (c *Classifier) diffRemoved(name string, gen model.Generation) []model.ChangeRecord {
	prev, ok := c.store.At(name, gen)
	if !ok {
		return nil
	}
	if id := prev.Symbol.ID; id != 0 {
		if newName, ok := c.store.NameOf(id); ok && newName != name {
			// Reported as a rename by the diff of newName
			return nil
		}
	}
	return []model.ChangeRecord{{Symbol: name, Kind: model.ChangeSymbolRemoved}}
}

// structural compares two snapshots of the same declaration
func structural(name string, prev, cur *model.Snapshot) []model.ChangeRecord {
	var records []model.ChangeRecord
	add := func(kind model.ChangeKind, detail string) {
		records = append(records, model.ChangeRecord{Symbol: name, Kind: kind, Detail: detail})
	}

	// Supertype list, by identity
	before := make(map[string]model.Supertype)
	for _, st := range prev.Symbol.Supertypes {
		before[st.Identity()] = st
	}
	after := make(map[string]model.Supertype)
	for _, st := range cur.Symbol.Supertypes {
		after[st.Identity()] = st
	}
	for _, st := range cur.Symbol.Supertypes {
		if _, ok := before[st.Identity()]; !ok {
			add(model.ChangeSupertypeAdded, st.Name)
		}
	}
	for _, st := range prev.Symbol.Supertypes {
		if _, ok := after[st.Identity()]; !ok {
			add(model.ChangeSupertypeRemoved, st.Name)
		}
	}

	// The symbol itself is a supertype to its subclasses
	if prev.Symbol.Kind != cur.Symbol.Kind {
		add(model.ChangeSupertypeKindChanged, fmt.Sprintf("%s->%s", prev.Symbol.Kind, cur.Symbol.Kind))
	}
	for _, st := range cur.Symbol.Supertypes {
		if _, kept := before[st.Identity()]; !kept {
			continue
		}
		oldKind, ok1 := prev.SupertypeKinds[st.Name]
		newKind, ok2 := cur.SupertypeKinds[st.Name]
		if ok1 && ok2 && oldKind != newKind {
			add(model.ChangeSupertypeKindChanged, fmt.Sprintf("%s: %s->%s", st.Name, oldKind, newKind))
		}
	}

	if prev.Symbol.Modality != cur.Symbol.Modality {
		add(model.ChangeModalityChanged, fmt.Sprintf("%s->%s", prev.Symbol.Modality, cur.Symbol.Modality))
	}

	// Only arity matters; renaming a slot or changing its variance does not
	oldArity, newArity := len(prev.Symbol.TypeParameters), len(cur.Symbol.TypeParameters)
	switch {
	case newArity > oldArity:
		add(model.ChangeTypeParameterAdded, fmt.Sprintf("%d->%d", oldArity, newArity))
	case newArity < oldArity:
		add(model.ChangeTypeParameterRemoved, fmt.Sprintf("%d->%d", oldArity, newArity))
	}

	oldPrimary, newPrimary := prev.Symbol.PrimaryConstructor, cur.Symbol.PrimaryConstructor
	if oldPrimary != nil && newPrimary != nil && newPrimary.Visibility.NarrowerThan(oldPrimary.Visibility) {
		add(model.ChangeConstructorVisibilityNarrowed, fmt.Sprintf("%s->%s", oldPrimary.Visibility, newPrimary.Visibility))
	}

	switch {
	case (oldPrimary == nil) != (newPrimary == nil):
		add(model.ChangeConstructorSignatureChanged, "primary")
	case oldPrimary != nil && oldPrimary.Signature() != newPrimary.Signature():
		add(model.ChangeConstructorSignatureChanged, fmt.Sprintf("primary %s->%s", oldPrimary.Signature(), newPrimary.Signature()))
	}

	added, removed := diffSecondaries(prev.Symbol.SecondaryConstructors, cur.Symbol.SecondaryConstructors)
	if len(removed) > 0 {
		add(model.ChangeConstructorSignatureChanged, "secondary "+removed[0])
	} else {
		for _, sig := range added {
			add(model.ChangeConstructorAdded, sig)
		}
	}

	return records
}

// diffSecondaries compares secondary constructors as multisets of
// visibility+signature keys.
func diffSecondaries(prev, cur []model.Constructor) (added, removed []string) {
	key := func(c model.Constructor) string {
		return string(c.Visibility) + " " + c.Signature()
	}
	counts := make(map[string]int)
	for _, c := range prev {
		counts[key(c)]++
	}
	for _, c := range cur {
		counts[key(c)]--
	}
	for k, n := range counts {
		for ; n > 0; n-- {
			removed = append(removed, k)
		}
		for ; n < 0; n++ {
			added = append(added, k)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}
