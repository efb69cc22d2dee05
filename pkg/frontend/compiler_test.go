package frontend

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/ritzau/impact-analyzer/pkg/model"
)

const sampleResponse = `{
  "units": {
    "src/Base.kt": {
      "symbols": [
        {"id": 1, "name": "app.Base", "kind": "class", "modality": "open",
         "primaryConstructor": {"parameters": [{"name": "x", "type": "Int"}], "visibility": "public"}}
      ],
      "outputs": ["app/Base.class"]
    },
    "src/Sub.kt": {
      "symbols": [
        {"id": 2, "name": "app.Sub", "kind": "class", "modality": "final",
         "supertypes": [{"name": "app.Base", "id": 1, "relation": "extends"}]}
      ],
      "dependencies": [
        {"from": "src/Sub.kt", "to": "app.Base", "kind": "SUBCLASSES"},
        {"from": "src/Sub.kt", "to": "app.Base", "kind": "CALLS_CONSTRUCTOR"}
      ]
    }
  },
  "diagnostics": [{"unit": "src/Sub.kt", "severity": "warning", "message": "unused variable"}]
}`

func TestCompile(t *testing.T) {
	mock := &MockExecutor{MockOutput: []byte(sampleResponse)}
	c := NewCompiler(mock, "/work", "facts-dump --json", []string{"lib/a.jar"})

	facts, err := c.Compile(context.Background(), []model.UnitKey{"src/Base.kt", "src/Sub.kt"})
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	if len(facts) != 2 {
		t.Fatalf("expected facts for 2 units, got %d", len(facts))
	}
	base := facts["src/Base.kt"]
	if len(base.Symbols) != 1 || base.Symbols[0].PrimaryConstructor.Signature() != "(x:Int)" {
		t.Errorf("unexpected Base facts: %+v", base)
	}
	if len(base.Outputs) != 1 || base.Outputs[0] != "app/Base.class" {
		t.Errorf("Base outputs = %v", base.Outputs)
	}
	sub := facts["src/Sub.kt"]
	if len(sub.Dependencies) != 2 || sub.Dependencies[1].Kind != model.EdgeCallsConstructor {
		t.Errorf("unexpected Sub dependencies: %+v", sub.Dependencies)
	}

	var req Request
	if err := json.Unmarshal(mock.LastInput, &req); err != nil {
		t.Fatalf("request is not JSON: %v", err)
	}
	if req.Workspace != "/work" || len(req.Units) != 2 || len(req.Classpath) != 1 {
		t.Errorf("unexpected request: %+v", req)
	}
}

func TestCompileErrorDiagnostics(t *testing.T) {
	mock := &MockExecutor{MockOutput: []byte(`{
		"units": {},
		"diagnostics": [{"unit": "src/Sub.kt", "severity": "error", "message": "unresolved reference: Base"}]
	}`)}
	c := NewCompiler(mock, "/work", "facts-dump", nil)

	_, err := c.Compile(context.Background(), []model.UnitKey{"src/Sub.kt"})
	if !errors.Is(err, ErrCompile) {
		t.Fatalf("Compile() error = %v, want ErrCompile", err)
	}
}

func TestCompileExecutorFailure(t *testing.T) {
	mock := &MockExecutor{MockError: errors.New("exit status 2")}
	c := NewCompiler(mock, "/work", "facts-dump", nil)

	_, err := c.Compile(context.Background(), []model.UnitKey{"src/Sub.kt"})
	if err == nil {
		t.Fatal("expected an error")
	}
	if errors.Is(err, ErrCompile) {
		t.Error("a crashed front-end is not a compile error")
	}
}

func TestParseResponseRejectsInvalidFacts(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `units:`},
		{"unknown kind", `{"units": {"a.kt": {"symbols": [{"name": "A", "kind": "object", "modality": "final"}]}}}`},
		{"unknown edge", `{"units": {"a.kt": {"dependencies": [{"to": "B", "kind": "IMPORTS"}]}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseResponse([]byte(tt.data)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestParseResponseEmpty(t *testing.T) {
	facts, err := ParseResponse([]byte(`{}`))
	if err != nil {
		t.Fatalf("ParseResponse() error = %v", err)
	}
	if facts == nil || len(facts) != 0 {
		t.Errorf("expected an empty map, got %v", facts)
	}
}

func TestDefaultExecutorWithoutCommand(t *testing.T) {
	if _, err := NewExecutor().Run(context.Background(), ".", nil, nil); err == nil {
		t.Error("expected an error without a command")
	}
}
