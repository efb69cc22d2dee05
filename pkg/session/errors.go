package session

import (
	"errors"
	"fmt"

	"github.com/ritzau/impact-analyzer/pkg/cycles"
)

// Reason classifies why a session failed
type Reason string

const (
	// ReasonFrontendFailure: the front-end failed to compile a round. Nothing of
	// that round is committed.
	ReasonFrontendFailure Reason = "frontend_failure"
	// ReasonNonConvergence: the round cap was hit. The host should fall back to
	// a full rebuild instead of trusting the partial plan.
	ReasonNonConvergence Reason = "non_convergence"
	// ReasonClasspathChanged: library inputs changed, incremental analysis does
	// not apply. Raised before the first round.
	ReasonClasspathChanged Reason = "classpath_changed"
	// ReasonCanceled: the context was canceled between rounds.
	ReasonCanceled Reason = "canceled"
	// ReasonInternal: a change record had no impact rule
	ReasonInternal Reason = "internal"
)

// ErrNonConvergence is wrapped by failures with ReasonNonConvergence
var ErrNonConvergence = errors.New("non-converging impact analysis")

// AnalysisFailure is returned by Run for every fatal outcome. Persisted state
// must stay at its last committed generation when a session ends this way.
type AnalysisFailure struct {
	Round  int
	Reason Reason
	Err    error

	// Cycles lists induced hierarchy cycles found when the session did not converge
	Cycles []cycles.HierarchyCycle
}

func (f *AnalysisFailure) Error() string {
	return fmt.Sprintf("impact analysis failed in round %d (%s): %v", f.Round, f.Reason, f.Err)
}

func (f *AnalysisFailure) Unwrap() error {
	return f.Err
}

// NeedsFullRebuild tells the host whether the only safe fallback is rebuilding everything
func (f *AnalysisFailure) NeedsFullRebuild() bool {
	return f.Reason == ReasonNonConvergence || f.Reason == ReasonClasspathChanged
}

// AsFailure extracts an AnalysisFailure from an error chain
func AsFailure(err error) (*AnalysisFailure, bool) {
	var f *AnalysisFailure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}
