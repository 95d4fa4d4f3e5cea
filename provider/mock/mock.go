// Package mock provides a scripted provider for tests and offline runs.
package mock

import (
	"context"
	"sync"

	"github.com/K-Arthur/script-generator/provider"
)

const defaultResponse = "Introduction\n\nThis is a placeholder script from the mock provider."

// Step is one scripted outcome: a response, or an error when Err is set.
type Step struct {
	Content string
	Err     error
}

// MockProvider implements provider.Provider for testing.
// It replays scripted steps in order, cycling when it runs out.
type MockProvider struct {
	name string

	mu    sync.Mutex
	steps []Step
	idx   int
	calls [][]provider.Message
}

// New creates a MockProvider that cycles through the given responses.
func New(responses ...string) *MockProvider {
	steps := make([]Step, len(responses))
	for i, r := range responses {
		steps[i] = Step{Content: r}
	}
	return NewScripted(steps...)
}

// NewScripted creates a MockProvider that replays steps, including failures.
func NewScripted(steps ...Step) *MockProvider {
	return &MockProvider{name: "mock", steps: steps}
}

// WithName sets the name reported by Name.
func (m *MockProvider) WithName(name string) *MockProvider {
	m.name = name
	return m
}

// Name returns the provider identifier.
func (m *MockProvider) Name() string { return m.name }

// Chat returns the next scripted step. It honors context cancellation.
func (m *MockProvider) Chat(ctx context.Context, messages []provider.Message) (*provider.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, append([]provider.Message(nil), messages...))

	if len(m.steps) == 0 {
		return &provider.Response{Content: defaultResponse, Model: "mock"}, nil
	}
	step := m.steps[m.idx%len(m.steps)]
	m.idx++
	if step.Err != nil {
		return nil, step.Err
	}
	return &provider.Response{
		Content: step.Content,
		Model:   "mock",
		Usage:   provider.Usage{OutputTokens: len(step.Content)},
	}, nil
}

// Calls returns the number of Chat calls made so far.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Messages returns the messages passed to the i-th Chat call.
func (m *MockProvider) Messages(i int) []provider.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i < 0 || i >= len(m.calls) {
		return nil
	}
	return m.calls[i]
}
