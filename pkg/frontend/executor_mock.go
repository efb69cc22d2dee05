package frontend

import (
	"context"
)

// MockExecutor is a mock implementation of Executor for testing
type MockExecutor struct {
	MockOutput []byte
	MockError  error

	// LastInput is the request the last Run call received
	LastInput []byte
}

func (m *MockExecutor) Run(ctx context.Context, workspacePath string, command []string, input []byte) ([]byte, error) {
	m.LastInput = input
	return m.MockOutput, m.MockError
}
