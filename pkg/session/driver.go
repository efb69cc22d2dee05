// Package session runs one incremental build session: compile the dirty
// units, record their snapshots and edges, classify what changed, expand the
// changes into dependents and repeat until nothing new is scheduled.
package session

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ritzau/impact-analyzer/pkg/artifacts"
	"github.com/ritzau/impact-analyzer/pkg/classify"
	"github.com/ritzau/impact-analyzer/pkg/cycles"
	"github.com/ritzau/impact-analyzer/pkg/depindex"
	"github.com/ritzau/impact-analyzer/pkg/graph"
	"github.com/ritzau/impact-analyzer/pkg/impact"
	"github.com/ritzau/impact-analyzer/pkg/logging"
	"github.com/ritzau/impact-analyzer/pkg/model"
	"github.com/ritzau/impact-analyzer/pkg/snapshot"
)

// DefaultMaxRounds bounds a session when Options.MaxRounds is not set
const DefaultMaxRounds = 100

// Compiler is the external front-end. Any error is fatal to the round; the
// driver does not look inside it.
type Compiler interface {
	Compile(ctx context.Context, units []model.UnitKey) (map[model.UnitKey]model.UnitFacts, error)
}

// State of the round driver
type State int

const (
	StateCollecting State = iota
	StateCompiling
	StateClassifying
	StateExpanding
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCollecting:
		return "COLLECTING"
	case StateCompiling:
		return "COMPILING"
	case StateClassifying:
		return "CLASSIFYING"
	case StateExpanding:
		return "EXPANDING"
	case StateDone:
		return "DONE"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Observer is notified as the session progresses. Calls come from the driver
// goroutine, one at a time.
type Observer interface {
	StateChanged(sessionID string, round int, state State)
	RoundCompleted(sessionID string, report RoundReport)
}

// Options tunes a driver
type Options struct {
	// MaxRounds is the round cap; 0 means DefaultMaxRounds
	MaxRounds int
	// Workers bounds classification and expansion parallelism; 0 means GOMAXPROCS
	Workers int
	// SessionID correlates logs and events; generated when empty
	SessionID string
	Observer  Observer
}

// RoundReport describes one compile, classify, expand cycle
type RoundReport struct {
	Round      int                  `json:"round"`
	Generation model.Generation     `json:"generation"`
	Compiled   []model.UnitKey      `json:"compiled"`
	Changes    []model.ChangeRecord `json:"changes,omitempty"`
	Scheduled  []model.UnitKey      `json:"scheduled,omitempty"`
	Duration   time.Duration        `json:"duration"`
}

// Plan is the outcome of a successful session
type Plan struct {
	SessionID  string           `json:"sessionId"`
	Generation model.Generation `json:"generation"`
	// Compiled is every unit compiled in any round
	Compiled []model.UnitKey `json:"compiled"`
	Rounds   []RoundReport   `json:"rounds"`
	// StaleOutputs were produced before by a recompiled unit but not this time
	StaleOutputs []string `json:"staleOutputs,omitempty"`
	// RemovedUnits compiled to nothing: no symbols and no outputs
	RemovedUnits []model.UnitKey `json:"removedUnits,omitempty"`
}

// Driver owns the snapshot store, dependency index and output map for the
// duration of one session. Failed sessions leave them partially updated, so
// callers that need all-or-nothing semantics hand in clones and keep them only
// when Run succeeds.
type Driver struct {
	store      *snapshot.Store
	index      *depindex.Index
	outputs    *artifacts.OutputMap
	compiler   Compiler
	classifier *classify.Classifier
	expander   *impact.Expander
	opts       Options
	sessionID  string
}

// NewDriver creates a driver. A nil outputs map is replaced by an empty one.
func NewDriver(store *snapshot.Store, index *depindex.Index, outputs *artifacts.OutputMap, compiler Compiler, opts Options) *Driver {
	if opts.MaxRounds <= 0 {
		opts.MaxRounds = DefaultMaxRounds
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if outputs == nil {
		outputs = artifacts.NewOutputMap()
	}
	sessionID := opts.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	return &Driver{
		store:      store,
		index:      index,
		outputs:    outputs,
		compiler:   compiler,
		classifier: classify.New(store),
		expander:   impact.NewExpander(index, store),
		opts:       opts,
		sessionID:  sessionID,
	}
}

// SessionID returns the id attached to this driver's logs and events
func (d *Driver) SessionID() string {
	return d.sessionID
}

// Run drives rounds from the initial dirty set until no new unit is scheduled.
// Every failure is an *AnalysisFailure.
func (d *Driver) Run(ctx context.Context, initial []model.UnitKey) (*Plan, error) {
	ctx = logging.WithSessionID(ctx, d.sessionID)
	plan := &Plan{SessionID: d.sessionID, Generation: d.store.Generation()}

	d.enter(ctx, 0, StateCollecting, "dirty", len(initial))
	seed := NewDirtySet(nil)
	seed.Add(initial...)
	dirty := seed.Sorted()
	if len(dirty) == 0 {
		d.enter(ctx, 0, StateDone)
		return plan, nil
	}

	compiled := make(map[model.UnitKey]bool)
	stale := make(map[string]bool)
	removed := make(map[model.UnitKey]bool)

	for round := 1; ; round++ {
		if err := ctx.Err(); err != nil {
			return nil, d.fail(ctx, round, ReasonCanceled, err, nil)
		}
		start := time.Now()
		gen := d.store.Generation() + 1

		d.enter(ctx, round, StateCompiling, "generation", gen, "dirty", len(dirty), "units", unitStrings(dirty))
		facts, err := d.compiler.Compile(ctx, dirty)
		if err != nil {
			return nil, d.fail(ctx, round, ReasonFrontendFailure, err, nil)
		}

		names, err := d.commitRound(ctx, gen, dirty, facts, stale, removed)
		if err != nil {
			return nil, d.fail(ctx, round, ReasonFrontendFailure, err, nil)
		}
		thisRound := make(map[model.UnitKey]bool, len(dirty))
		for _, unit := range dirty {
			thisRound[unit] = true
			compiled[unit] = true
		}

		d.enter(ctx, round, StateClassifying, "generation", gen, "symbols", len(names))
		records := d.classifyAll(names, gen)

		d.enter(ctx, round, StateExpanding, "generation", gen, "records", len(records))
		next := NewDirtySet(thisRound)
		if err := d.expandAll(records, next); err != nil {
			return nil, d.fail(ctx, round, ReasonInternal, err, nil)
		}

		report := RoundReport{
			Round:      round,
			Generation: gen,
			Compiled:   dirty,
			Changes:    records,
			Scheduled:  next.Sorted(),
			Duration:   time.Since(start),
		}
		plan.Rounds = append(plan.Rounds, report)
		plan.Generation = gen
		d.opts.Observer.RoundCompleted(d.sessionID, report)

		if found := d.cyclicChanges(records); len(found) > 0 {
			err := fmt.Errorf("%w: changes propagate around %d subclass cycles", ErrNonConvergence, len(found))
			return nil, d.fail(ctx, round, ReasonNonConvergence, err, found)
		}
		if next.Len() == 0 {
			break
		}
		if round >= d.opts.MaxRounds {
			hierarchy := graph.BuildHierarchy(d.index, d.store)
			found := cycles.FindHierarchyCycles(hierarchy)
			err := fmt.Errorf("%w: %d units still dirty after %d rounds", ErrNonConvergence, next.Len(), round)
			return nil, d.fail(ctx, round, ReasonNonConvergence, err, found)
		}
		dirty = report.Scheduled
	}

	plan.Compiled = sortedKeys(compiled)
	for out := range stale {
		plan.StaleOutputs = append(plan.StaleOutputs, out)
	}
	sort.Strings(plan.StaleOutputs)
	plan.RemovedUnits = sortedKeys(removed)

	d.enter(ctx, len(plan.Rounds), StateDone, "generation", plan.Generation, "compiled", len(plan.Compiled))
	return plan, nil
}

// commitRound records one round's facts and returns every symbol name the
// compiled units declared before or after, sorted.
func (d *Driver) commitRound(ctx context.Context, gen model.Generation, dirty []model.UnitKey, facts map[model.UnitKey]model.UnitFacts, stale map[string]bool, removed map[model.UnitKey]bool) ([]string, error) {
	wanted := make(map[model.UnitKey]bool, len(dirty))
	for _, unit := range dirty {
		wanted[unit] = true
	}
	for unit := range facts {
		if !wanted[unit] {
			logging.WarnContext(ctx, "ignoring facts for unit that was not requested", "unit", unit)
		}
	}

	nameSet := make(map[string]bool)
	symbols := make(map[model.UnitKey][]model.Symbol, len(dirty))
	edges := make(map[model.UnitKey][]model.Dependency, len(dirty))
	for _, unit := range dirty {
		for _, name := range d.store.SymbolsOf(unit) {
			nameSet[name] = true
		}
		// A unit missing from the result compiled to nothing
		f := facts[unit]
		symbols[unit] = f.Symbols
		edges[unit] = f.Dependencies
		for _, sym := range f.Symbols {
			nameSet[sym.Name] = true
		}
	}

	if err := d.store.RecordRound(gen, symbols); err != nil {
		return nil, fmt.Errorf("recording generation %d: %w", gen, err)
	}
	d.index.RebuildAll(edges)

	for _, unit := range dirty {
		f := facts[unit]
		for _, out := range d.outputs.Update(unit, f.Outputs) {
			stale[out] = true
		}
		if len(f.Symbols) == 0 && len(f.Outputs) == 0 {
			removed[unit] = true
		} else {
			delete(removed, unit)
		}
	}

	names := make([]string, 0, len(nameSet))
	for name := range nameSet {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// cyclicChanges returns the hierarchy cycles through the unit of a change that
// propagates to transitive subclasses. The closure stops at units it already
// visited, so such a change would otherwise converge on an unsound plan.
func (d *Driver) cyclicChanges(records []model.ChangeRecord) []cycles.HierarchyCycle {
	origins := make(map[model.UnitKey]bool)
	for _, rec := range records {
		rule, err := impact.RuleFor(rec.Kind)
		if err != nil || !rule.Transitive {
			continue
		}
		if unit, ok := d.store.OwnerOf(rec.Symbol); ok {
			origins[unit] = true
		}
	}
	if len(origins) == 0 {
		return nil
	}

	var hit []cycles.HierarchyCycle
	for _, c := range cycles.FindHierarchyCycles(graph.BuildHierarchy(d.index, d.store)) {
		for _, unit := range c.Units {
			if origins[unit] {
				hit = append(hit, c)
				break
			}
		}
	}
	return hit
}

// classifyAll diffs every name in parallel. Records keep the name order so a
// round report is deterministic.
func (d *Driver) classifyAll(names []string, gen model.Generation) []model.ChangeRecord {
	results := make([][]model.ChangeRecord, len(names))

	var g errgroup.Group
	g.SetLimit(d.opts.Workers)
	for i, name := range names {
		g.Go(func() error {
			results[i] = d.classifier.Diff(name, gen)
			return nil
		})
	}
	_ = g.Wait()

	var records []model.ChangeRecord
	for _, r := range results {
		records = append(records, r...)
	}
	return records
}

// expandAll applies the impact rules to every record, merging dependents into next
func (d *Driver) expandAll(records []model.ChangeRecord, next *DirtySet) error {
	var g errgroup.Group
	g.SetLimit(d.opts.Workers)
	for _, rec := range records {
		g.Go(func() error {
			units, err := d.expander.Affected(rec)
			if err != nil {
				return fmt.Errorf("expanding %s: %w", rec, err)
			}
			if added := next.Add(units...); added > 0 {
				logging.Trace("scheduled dependents", "change", rec.String(), "added", added)
			}
			return nil
		})
	}
	return g.Wait()
}

func (d *Driver) enter(ctx context.Context, round int, state State, args ...any) {
	logging.InfoContext(ctx, state.String(), append([]any{"round", round}, args...)...)
	d.opts.Observer.StateChanged(d.sessionID, round, state)
}

func (d *Driver) fail(ctx context.Context, round int, reason Reason, err error, found []cycles.HierarchyCycle) error {
	failure := &AnalysisFailure{Round: round, Reason: reason, Err: err, Cycles: found}
	d.enter(ctx, round, StateFailed, "reason", reason, "error", err)
	for _, c := range found {
		logging.WarnContext(ctx, "hierarchy cycle", "units", unitStrings(c.Units))
	}
	return failure
}

func sortedKeys(set map[model.UnitKey]bool) []model.UnitKey {
	out := make([]model.UnitKey, 0, len(set))
	for unit := range set {
		out = append(out, unit)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func unitStrings(units []model.UnitKey) []string {
	out := make([]string, len(units))
	for i, u := range units {
		out[i] = string(u)
	}
	return out
}

type nopObserver struct{}

func (nopObserver) StateChanged(string, int, State)    {}
func (nopObserver) RoundCompleted(string, RoundReport) {}

// Observers fans notifications out to several observers in order
func Observers(observers ...Observer) Observer {
	return multiObserver(observers)
}

type multiObserver []Observer

func (m multiObserver) StateChanged(sessionID string, round int, state State) {
	for _, o := range m {
		if o != nil {
			o.StateChanged(sessionID, round, state)
		}
	}
}

func (m multiObserver) RoundCompleted(sessionID string, report RoundReport) {
	for _, o := range m {
		if o != nil {
			o.RoundCompleted(sessionID, report)
		}
	}
}
