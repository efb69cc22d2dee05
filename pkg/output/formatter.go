// Package output renders recompilation plans and session failures for the
// console, as colored text, JSON or YAML.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/ritzau/impact-analyzer/pkg/session"
)

// Report is the printable outcome of one session
type Report struct {
	Status       string          `json:"status" yaml:"status"` // "done" or "failed"
	SessionID    string          `json:"sessionId,omitempty" yaml:"sessionId,omitempty"`
	Generation   uint64          `json:"generation" yaml:"generation"`
	Compiled     []string        `json:"compiled" yaml:"compiled"`
	Rounds       []RoundSummary  `json:"rounds,omitempty" yaml:"rounds,omitempty"`
	StaleOutputs []string        `json:"staleOutputs,omitempty" yaml:"staleOutputs,omitempty"`
	RemovedUnits []string        `json:"removedUnits,omitempty" yaml:"removedUnits,omitempty"`
	Failure      *FailureSummary `json:"failure,omitempty" yaml:"failure,omitempty"`
}

// RoundSummary is one round of a report
type RoundSummary struct {
	Round      int      `json:"round" yaml:"round"`
	Compiled   []string `json:"compiled" yaml:"compiled"`
	Changes    []string `json:"changes,omitempty" yaml:"changes,omitempty"`
	Scheduled  []string `json:"scheduled,omitempty" yaml:"scheduled,omitempty"`
	DurationMS int64    `json:"durationMs" yaml:"durationMs"`
}

// FailureSummary describes why a session produced no plan
type FailureSummary struct {
	Round       int        `json:"round" yaml:"round"`
	Reason      string     `json:"reason" yaml:"reason"`
	Message     string     `json:"message" yaml:"message"`
	FullRebuild bool       `json:"fullRebuild" yaml:"fullRebuild"`
	Cycles      [][]string `json:"cycles,omitempty" yaml:"cycles,omitempty"`
}

// NewReport builds a report from the result of a session. err takes
// precedence over plan.
func NewReport(plan *session.Plan, err error) *Report {
	if err != nil {
		r := &Report{Status: "failed", Compiled: []string{}}
		f := &FailureSummary{Reason: string(session.ReasonInternal), Message: err.Error()}
		if failure, ok := session.AsFailure(err); ok {
			f.Round = failure.Round
			f.Reason = string(failure.Reason)
			f.FullRebuild = failure.NeedsFullRebuild()
			for _, c := range failure.Cycles {
				f.Cycles = append(f.Cycles, strs(c.Units))
			}
		}
		r.Failure = f
		return r
	}

	r := &Report{
		Status:       "done",
		SessionID:    plan.SessionID,
		Generation:   uint64(plan.Generation),
		Compiled:     strs(plan.Compiled),
		StaleOutputs: plan.StaleOutputs,
		RemovedUnits: strs(plan.RemovedUnits),
	}
	for _, rr := range plan.Rounds {
		summary := RoundSummary{
			Round:      rr.Round,
			Compiled:   strs(rr.Compiled),
			Scheduled:  strs(rr.Scheduled),
			DurationMS: rr.Duration.Milliseconds(),
		}
		for _, c := range rr.Changes {
			summary.Changes = append(summary.Changes, c.String())
		}
		r.Rounds = append(r.Rounds, summary)
	}
	return r
}

// Write renders the report in one of the formats "text", "json" or "yaml"
func Write(w io.Writer, format string, r *Report) error {
	switch format {
	case "", "text":
		PrintReport(w, r)
		return nil
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown output format %q", format)
}

// PrintReport prints a colored, human readable report
func PrintReport(w io.Writer, r *Report) {
	bold := color.New(color.Bold)
	red := color.New(color.FgRed)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)

	bold.Fprintln(w, "Impact Analysis - Recompilation Plan")
	bold.Fprintln(w, "====================================")

	if r.Failure != nil {
		red.Fprintf(w, "FAILED in round %d: %s\n", r.Failure.Round, r.Failure.Reason)
		fmt.Fprintf(w, "  %s\n", r.Failure.Message)
		for _, c := range r.Failure.Cycles {
			yellow.Fprintf(w, "  Hierarchy cycle: %s\n", strings.Join(append(c, c[0]), " -> "))
		}
		if r.Failure.FullRebuild {
			yellow.Fprintln(w, "A full rebuild is required.")
		}
		return
	}

	fmt.Fprintf(w, "Session: %s\n", r.SessionID)
	fmt.Fprintf(w, "Generation: %d\n", r.Generation)
	fmt.Fprintln(w)

	for _, round := range r.Rounds {
		cyan.Fprintf(w, "Round %d (%dms)\n", round.Round, round.DurationMS)
		for _, u := range round.Compiled {
			fmt.Fprintf(w, "  compiled  %s\n", u)
		}
		for _, c := range round.Changes {
			yellow.Fprintf(w, "  change    %s\n", c)
		}
		for _, u := range round.Scheduled {
			fmt.Fprintf(w, "  scheduled %s\n", u)
		}
	}
	if len(r.Rounds) > 0 {
		fmt.Fprintln(w)
	}

	if len(r.StaleOutputs) > 0 {
		red.Fprintln(w, "STALE OUTPUTS:")
		for _, o := range r.StaleOutputs {
			fmt.Fprintf(w, "  %s\n", o)
		}
	}
	if len(r.RemovedUnits) > 0 {
		red.Fprintln(w, "REMOVED UNITS:")
		for _, u := range r.RemovedUnits {
			fmt.Fprintf(w, "  %s\n", u)
		}
	}

	green.Fprintf(w, "Summary: %d units compiled in %d rounds\n", len(r.Compiled), len(r.Rounds))
}

func strs[T ~string](in []T) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, string(s))
	}
	return out
}
