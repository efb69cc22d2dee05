package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ritzau/impact-analyzer/pkg/model"
	"github.com/ritzau/impact-analyzer/pkg/session"
)

func TestSessionMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RoundCompleted("s1", session.RoundReport{
		Round:      1,
		Generation: 4,
		Compiled:   []model.UnitKey{"a.kt", "b.kt"},
		Changes: []model.ChangeRecord{
			{Symbol: "A", Kind: model.ChangeModalityChanged},
			{Symbol: "B", Kind: model.ChangeModalityChanged},
			{Symbol: "B", Kind: model.ChangeConstructorAdded},
		},
		Duration: 20 * time.Millisecond,
	})
	m.RoundCompleted("s1", session.RoundReport{Round: 2, Generation: 5, Compiled: []model.UnitKey{"c.kt"}})
	m.StateChanged("s1", 2, session.StateDone)

	if v := testutil.ToFloat64(m.RoundsTotal); v != 2 {
		t.Errorf("RoundsTotal = %f, want 2", v)
	}
	if v := testutil.ToFloat64(m.UnitsCompiledTotal); v != 3 {
		t.Errorf("UnitsCompiledTotal = %f, want 3", v)
	}
	if v := testutil.ToFloat64(m.ChangeRecordsTotal.WithLabelValues(string(model.ChangeModalityChanged))); v != 2 {
		t.Errorf("ChangeRecordsTotal[MODALITY_CHANGED] = %f, want 2", v)
	}
	if v := testutil.ToFloat64(m.Generation); v != 5 {
		t.Errorf("Generation = %f, want 5", v)
	}
	if v := testutil.ToFloat64(m.SessionsTotal.WithLabelValues("done")); v != 1 {
		t.Errorf("SessionsTotal[done] = %f, want 1", v)
	}
	if n := testutil.CollectAndCount(m.RoundsPerSession); n != 1 {
		t.Errorf("RoundsPerSession collected %d metrics, want 1", n)
	}
}

func TestRecordFailure(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RoundCompleted("s2", session.RoundReport{Round: 1})
	m.StateChanged("s2", 1, session.StateFailed)
	m.RecordFailure(session.ReasonNonConvergence)

	if v := testutil.ToFloat64(m.SessionsTotal.WithLabelValues(string(session.ReasonNonConvergence))); v != 1 {
		t.Errorf("SessionsTotal[non_convergence] = %f, want 1", v)
	}
	if v := testutil.ToFloat64(m.SessionsTotal.WithLabelValues("done")); v != 0 {
		t.Errorf("SessionsTotal[done] = %f, want 0", v)
	}
	if len(m.rounds) != 0 {
		t.Errorf("per-session round counts leaked: %v", m.rounds)
	}
}
