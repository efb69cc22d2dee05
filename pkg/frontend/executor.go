package frontend

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// Executor runs the front-end command
type Executor interface {
	Run(ctx context.Context, workspacePath string, command []string, input []byte) ([]byte, error)
}

// DefaultExecutor runs the front-end as a child process, writing the request
// to its stdin and reading the response from its stdout
type DefaultExecutor struct{}

// NewExecutor creates a new default front-end executor
func NewExecutor() Executor {
	return &DefaultExecutor{}
}

// Run executes the command in the workspace. It respects the provided context
// for cancellation.
func (e *DefaultExecutor) Run(ctx context.Context, workspacePath string, command []string, input []byte) ([]byte, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("no front-end command configured")
	}
	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	cmd.Dir = workspacePath
	cmd.Stdin = bytes.NewReader(input)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("front-end %s failed: %w\nOutput: %s", command[0], err, stderr.String())
	}

	return output, nil
}
