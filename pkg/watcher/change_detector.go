package watcher

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/ritzau/impact-analyzer/pkg/analysis"
	"github.com/ritzau/impact-analyzer/pkg/finder"
	"github.com/ritzau/impact-analyzer/pkg/logging"
	"github.com/ritzau/impact-analyzer/pkg/model"
	"github.com/ritzau/impact-analyzer/pkg/session"
)

// ChangeAnalysis describes what changed and how the next run must start
type ChangeAnalysis struct {
	NeedFullAnalysis bool
	Units            []model.UnitKey
	ChangedFiles     []string
}

// AnalyzeChanges maps a batch of events to the units that start the next
// session. Paths outside the workspace are dropped.
func AnalyzeChanges(events []ChangeEvent, workspace string) *ChangeAnalysis {
	changes := &ChangeAnalysis{}
	units := make(map[model.UnitKey]bool)

	for _, event := range events {
		changes.ChangedFiles = append(changes.ChangedFiles, event.Paths...)

		switch event.Type {
		case ChangeTypeBuildFile:
			// Build script changes may move sources or the classpath around
			changes.NeedFullAnalysis = true

		case ChangeTypeSource, ChangeTypeRemoved:
			// A removed source is still compiled: the front-end reports
			// nothing for it and its symbols are tombstoned
			for _, path := range event.Paths {
				unit, err := finder.UnitKeyFor(workspace, path)
				if err != nil {
					logging.Debug("ignoring change outside workspace", "path", path, "error", err)
					continue
				}
				units[unit] = true
			}
		}
	}

	for u := range units {
		changes.Units = append(changes.Units, u)
	}
	sort.Slice(changes.Units, func(i, j int) bool { return changes.Units[i] < changes.Units[j] })
	return changes
}

// Request turns the analysis into a runner request
func (a *ChangeAnalysis) Request() analysis.Request {
	if a.NeedFullAnalysis {
		return analysis.Request{Full: true, Reason: "build files changed"}
	}
	return analysis.Request{
		Changed: a.Units,
		Reason:  fmt.Sprintf("%d files changed", len(a.Units)),
	}
}

// Runner runs one analysis session
type Runner interface {
	Run(ctx context.Context, req analysis.Request) (*session.Plan, error)
}

// PlanHandler receives the outcome of every session run by Watch
type PlanHandler func(plan *session.Plan, err error)

// Watch runs a session for every debounced batch until events closes or ctx
// is done. A session that fails asking for a full rebuild is retried once as
// a full build.
func Watch(ctx context.Context, events <-chan ChangeEvent, workspace string, runner Runner, handle PlanHandler) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			batch := []ChangeEvent{event}
			// Drain what the debouncer flushed together
		drain:
			for {
				select {
				case more, ok := <-events:
					if !ok {
						break drain
					}
					batch = append(batch, more)
				default:
					break drain
				}
			}

			changes := AnalyzeChanges(batch, workspace)
			if !changes.NeedFullAnalysis && len(changes.Units) == 0 {
				continue
			}
			plan, err := RunWithFallback(ctx, runner, changes.Request())
			if handle != nil {
				handle(plan, err)
			}
		}
	}
}

// RunWithFallback runs req and, when the session fails in a way only a full
// rebuild can resolve, runs a full build
func RunWithFallback(ctx context.Context, runner Runner, req analysis.Request) (*session.Plan, error) {
	plan, err := runner.Run(ctx, req)
	if err == nil || req.Full {
		return plan, err
	}

	failure, ok := session.AsFailure(err)
	if !ok || !failure.NeedsFullRebuild() {
		return nil, err
	}
	logging.WarnContext(ctx, "falling back to a full rebuild", "reason", string(failure.Reason))
	plan, fullErr := runner.Run(ctx, analysis.Request{Full: true, Reason: string(failure.Reason)})
	if fullErr != nil {
		return nil, errors.Join(err, fullErr)
	}
	return plan, nil
}
