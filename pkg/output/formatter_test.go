package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/ritzau/impact-analyzer/pkg/cycles"
	"github.com/ritzau/impact-analyzer/pkg/model"
	"github.com/ritzau/impact-analyzer/pkg/session"
)

func init() {
	color.NoColor = true
}

func samplePlan() *session.Plan {
	return &session.Plan{
		SessionID:  "abc",
		Generation: 5,
		Compiled:   []model.UnitKey{"Base.kt", "Sub.kt"},
		Rounds: []session.RoundReport{
			{
				Round:     1,
				Compiled:  []model.UnitKey{"Base.kt"},
				Changes:   []model.ChangeRecord{{Symbol: "app.Base", Kind: model.ChangeModalityChanged, Detail: "open->final"}},
				Scheduled: []model.UnitKey{"Sub.kt"},
				Duration:  12 * time.Millisecond,
			},
			{Round: 2, Compiled: []model.UnitKey{"Sub.kt"}},
		},
		StaleOutputs: []string{"app/Old.class"},
	}
}

func TestPrintReport(t *testing.T) {
	var buf bytes.Buffer
	PrintReport(&buf, NewReport(samplePlan(), nil))
	out := buf.String()

	for _, want := range []string{
		"Round 1 (12ms)",
		"change    MODALITY_CHANGED(app.Base: open->final)",
		"scheduled Sub.kt",
		"STALE OUTPUTS:",
		"app/Old.class",
		"Summary: 2 units compiled in 2 rounds",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintFailure(t *testing.T) {
	err := &session.AnalysisFailure{
		Round:  100,
		Reason: session.ReasonNonConvergence,
		Err:    session.ErrNonConvergence,
		Cycles: []cycles.HierarchyCycle{{Units: []model.UnitKey{"A.kt", "B.kt"}}},
	}

	var buf bytes.Buffer
	PrintReport(&buf, NewReport(nil, err))
	out := buf.String()

	if !strings.Contains(out, "FAILED in round 100: non_convergence") {
		t.Errorf("missing failure line:\n%s", out)
	}
	if !strings.Contains(out, "A.kt -> B.kt -> A.kt") {
		t.Errorf("missing cycle:\n%s", out)
	}
	if !strings.Contains(out, "full rebuild is required") {
		t.Errorf("missing rebuild hint:\n%s", out)
	}
}

func TestNewReportPlainError(t *testing.T) {
	r := NewReport(nil, errors.New("disk full"))
	if r.Status != "failed" || r.Failure.Reason != string(session.ReasonInternal) || r.Failure.FullRebuild {
		t.Errorf("unexpected report: %+v", r.Failure)
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, "json", NewReport(samplePlan(), nil)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	var decoded Report
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded.Generation != 5 || len(decoded.Rounds) != 2 || decoded.Rounds[0].Changes[0] != "MODALITY_CHANGED(app.Base: open->final)" {
		t.Errorf("unexpected report: %+v", decoded)
	}
}

func TestWriteYAML(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, "yaml", NewReport(samplePlan(), nil)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if !strings.Contains(buf.String(), "staleOutputs:") {
		t.Errorf("expected camelCase keys:\n%s", buf.String())
	}

	var decoded Report
	if err := yaml.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid YAML: %v", err)
	}
	if decoded.Status != "done" || len(decoded.Compiled) != 2 {
		t.Errorf("unexpected report: %+v", decoded)
	}
}

func TestWriteUnknownFormat(t *testing.T) {
	if err := Write(&bytes.Buffer{}, "xml", &Report{}); err == nil {
		t.Error("expected an error")
	}
}
