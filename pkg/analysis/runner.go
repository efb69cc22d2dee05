// Package analysis is the host side of an incremental build: it loads the
// persisted analyzer state, decides what the first round compiles, runs the
// session and commits the result.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ritzau/impact-analyzer/pkg/artifacts"
	"github.com/ritzau/impact-analyzer/pkg/finder"
	"github.com/ritzau/impact-analyzer/pkg/logging"
	"github.com/ritzau/impact-analyzer/pkg/metrics"
	"github.com/ritzau/impact-analyzer/pkg/model"
	"github.com/ritzau/impact-analyzer/pkg/pubsub"
	"github.com/ritzau/impact-analyzer/pkg/session"
	"github.com/ritzau/impact-analyzer/pkg/storage"
)

// StateStore persists analyzer state between sessions
type StateStore interface {
	Load() (*storage.State, error)
	Save(st *storage.State) error
	SaveChanges(prev, next *storage.State) error
}

// Options configures a runner
type Options struct {
	Workspace  string
	Extensions []string
	Classpath  []string
	MaxRounds  int
	Workers    int

	// KeepGenerations bounds the snapshot history kept per symbol
	KeepGenerations int
}

// Request describes one analysis run
type Request struct {
	// Changed are the units the host saw change on disk
	Changed []model.UnitKey
	// Full discards the persisted state and compiles every source
	Full   bool
	Reason string // e.g. "initial analysis", "3 files changed"
}

// Runner serializes sessions of one project
type Runner struct {
	opts     Options
	store    StateStore
	compiler session.Compiler
	metrics  *metrics.SessionMetrics
	status   *pubsub.SessionObserver

	mu sync.Mutex // one session at a time

	resultMu  sync.RWMutex
	committed *storage.State
	lastPlan  *session.Plan
	lastErr   error
	lastRun   time.Time
}

// NewRunner creates a runner. metrics and status may be nil.
func NewRunner(opts Options, store StateStore, compiler session.Compiler, m *metrics.SessionMetrics, status *pubsub.SessionObserver) *Runner {
	if opts.KeepGenerations <= 0 {
		opts.KeepGenerations = 4
	}
	return &Runner{
		opts:     opts,
		store:    store,
		compiler: compiler,
		metrics:  m,
		status:   status,
	}
}

// Run executes one session. The persisted state only changes when the whole
// session succeeds.
func (r *Runner) Run(ctx context.Context, req Request) (*session.Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	plan, err := r.run(ctx, req)

	r.resultMu.Lock()
	r.lastRun = time.Now()
	r.lastErr = err
	if err == nil {
		r.lastPlan = plan
	}
	r.resultMu.Unlock()

	if err != nil {
		if failure, ok := session.AsFailure(err); ok && r.metrics != nil {
			r.metrics.RecordFailure(failure.Reason)
		}
		return nil, err
	}
	return plan, nil
}

func (r *Runner) run(ctx context.Context, req Request) (*session.Plan, error) {
	logging.InfoContext(ctx, "starting analysis", "reason", req.Reason, "changed", len(req.Changed), "full", req.Full)

	st, fresh, err := r.loadState(req.Full)
	if err != nil {
		return nil, err
	}

	if !fresh {
		if diff := artifacts.CompareClasspath(st.Classpath, r.opts.Classpath); diff.Changed() {
			logging.WarnContext(ctx, "classpath changed, full rebuild required",
				"added", len(diff.Added), "removed", len(diff.Removed))
			err := &session.AnalysisFailure{
				Round:  0,
				Reason: session.ReasonClasspathChanged,
				Err:    fmt.Errorf("classpath changed: %d added, %d removed", len(diff.Added), len(diff.Removed)),
			}
			r.publish(pubsub.SessionStatus{State: session.StateFailed.String(), Message: err.Error()})
			return nil, err
		}
	}

	dirty := req.Changed
	if fresh {
		dirty, err = finder.FindSourceFiles(r.opts.Workspace, r.opts.Extensions)
		if err != nil {
			return nil, fmt.Errorf("discovering sources: %w", err)
		}
		logging.InfoContext(ctx, "full build", "sources", len(dirty))
	}

	var observers []session.Observer
	if r.metrics != nil {
		observers = append(observers, r.metrics)
	}
	if r.status != nil {
		observers = append(observers, r.status)
	}

	// The driver works on copies; a failed session never touches st
	next := &storage.State{
		Snapshots: st.Snapshots.Clone(),
		Index:     st.Index.Clone(),
		Outputs:   st.Outputs.Clone(),
		Classpath: append([]string(nil), r.opts.Classpath...),
	}
	driver := session.NewDriver(next.Snapshots, next.Index, next.Outputs, r.compiler, session.Options{
		MaxRounds: r.opts.MaxRounds,
		Workers:   r.opts.Workers,
		Observer:  session.Observers(observers...),
	})

	plan, err := driver.Run(ctx, dirty)
	if err != nil {
		return nil, err
	}

	next.Generation = plan.Generation
	next.Snapshots.Compact(r.opts.KeepGenerations)
	save := func() error { return r.store.SaveChanges(st, next) }
	if fresh {
		save = func() error { return r.store.Save(next) }
	}
	if err := save(); err != nil {
		return nil, fmt.Errorf("committing generation %d: %w", plan.Generation, err)
	}
	r.resultMu.Lock()
	r.committed = next
	r.resultMu.Unlock()

	logging.InfoContext(ctx, "analysis complete",
		"rounds", len(plan.Rounds), "compiled", len(plan.Compiled), "generation", plan.Generation)
	r.publish(pubsub.SessionStatus{
		SessionID:  plan.SessionID,
		State:      "idle",
		Message:    fmt.Sprintf("%d units compiled in %d rounds", len(plan.Compiled), len(plan.Rounds)),
		Round:      len(plan.Rounds),
		Generation: uint64(plan.Generation),
	})
	return plan, nil
}

// loadState returns the committed state, or a fresh one when there is none or
// a full rebuild was requested
func (r *Runner) loadState(full bool) (*storage.State, bool, error) {
	if full {
		return storage.NewState(), true, nil
	}
	if st, ok := r.Committed(); ok {
		return st, false, nil
	}

	st, err := r.store.Load()
	if errors.Is(err, storage.ErrNoState) {
		return storage.NewState(), true, nil
	}
	if err != nil {
		return nil, false, err
	}
	r.resultMu.Lock()
	r.committed = st
	r.resultMu.Unlock()
	return st, false, nil
}

func (r *Runner) publish(status pubsub.SessionStatus) {
	if r.status != nil {
		r.status.PublishStatus(status)
	}
}

// Result is the outcome of the most recent runs
type Result struct {
	// Plan is the last successful plan, possibly older than Err
	Plan *session.Plan
	// Err is the error of the last run, nil if it succeeded
	Err error
	At  time.Time
}

// LastResult returns the outcome of the most recent runs
func (r *Runner) LastResult() Result {
	r.resultMu.RLock()
	defer r.resultMu.RUnlock()
	return Result{Plan: r.lastPlan, Err: r.lastErr, At: r.lastRun}
}

// Committed returns the state the last successful session committed, or the
// one the last session started from. Callers must treat it as read-only.
func (r *Runner) Committed() (*storage.State, bool) {
	r.resultMu.RLock()
	defer r.resultMu.RUnlock()
	return r.committed, r.committed != nil
}
