// Package frontend talks to the external compiler front-end. The analyzer hands
// it a list of units as JSON on stdin and reads back the structural facts of
// every unit it compiled.
package frontend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ritzau/impact-analyzer/pkg/logging"
	"github.com/ritzau/impact-analyzer/pkg/model"
)

// ErrCompile is wrapped by every error caused by the compiled sources rather
// than by running the front-end
var ErrCompile = errors.New("compilation failed")

// Request is what the front-end reads from stdin
type Request struct {
	Workspace string          `json:"workspace"`
	Units     []model.UnitKey `json:"units"`
	Classpath []string        `json:"classpath,omitempty"`
}

// Diagnostic is a message the front-end reports for a unit
type Diagnostic struct {
	Unit     model.UnitKey `json:"unit"`
	Severity string        `json:"severity"` // "error" or "warning"
	Message  string        `json:"message"`
}

// Response is what the front-end writes to stdout. A unit absent from Units
// compiled to nothing (its source was deleted).
type Response struct {
	Units       map[model.UnitKey]model.UnitFacts `json:"units"`
	Diagnostics []Diagnostic                      `json:"diagnostics,omitempty"`
}

// Compiler runs the front-end command for each round
type Compiler struct {
	executor  Executor
	workspace string
	command   []string
	classpath []string
}

// NewCompiler creates a compiler for the given command line, e.g. "kotlinc-facts --json"
func NewCompiler(executor Executor, workspace, commandLine string, classpath []string) *Compiler {
	return &Compiler{
		executor:  executor,
		workspace: workspace,
		command:   strings.Fields(commandLine),
		classpath: classpath,
	}
}

// Compile compiles units and returns their facts
func (c *Compiler) Compile(ctx context.Context, units []model.UnitKey) (map[model.UnitKey]model.UnitFacts, error) {
	input, err := json.Marshal(Request{Workspace: c.workspace, Units: units, Classpath: c.classpath})
	if err != nil {
		return nil, fmt.Errorf("encode front-end request: %w", err)
	}

	logging.DebugContext(ctx, "invoking front-end", "command", strings.Join(c.command, " "), "units", len(units))
	output, err := c.executor.Run(ctx, c.workspace, c.command, input)
	if err != nil {
		return nil, err
	}

	return ParseResponse(output)
}

// ParseResponse decodes and checks a front-end response. Error diagnostics
// turn into an ErrCompile error; warnings are logged.
func ParseResponse(data []byte) (map[model.UnitKey]model.UnitFacts, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode front-end response: %w", err)
	}

	var errs []string
	for _, d := range resp.Diagnostics {
		if d.Severity == "error" {
			errs = append(errs, fmt.Sprintf("%s: %s", d.Unit, d.Message))
		} else {
			logging.Warn("front-end diagnostic", "unit", d.Unit, "message", d.Message)
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrCompile, strings.Join(errs, "; "))
	}

	for unit, facts := range resp.Units {
		for i := range facts.Symbols {
			if err := facts.Symbols[i].Validate(); err != nil {
				return nil, fmt.Errorf("unit %s: %w", unit, err)
			}
		}
		for _, dep := range facts.Dependencies {
			if !validEdgeKind(dep.Kind) {
				return nil, fmt.Errorf("unit %s: unknown edge kind %q to %s", unit, dep.Kind, dep.To)
			}
		}
	}

	if resp.Units == nil {
		resp.Units = make(map[model.UnitKey]model.UnitFacts)
	}
	return resp.Units, nil
}

func validEdgeKind(kind model.EdgeKind) bool {
	for _, k := range model.AllEdgeKinds() {
		if k == kind {
			return true
		}
	}
	return false
}
