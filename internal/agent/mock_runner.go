package agent

import (
	"context"
	"sync"

	"github.com/sweetebin/agent-hippocrates/internal/llm"
)

// MockRunner is a scriptable Runner for tests. Each scripted step is
// returned for one Run call in order; an unscripted call echoes a
// canned assistant reply from the invoked agent.
type MockRunner struct {
	mu    sync.Mutex
	steps []mockStep

	// Calls records the agent name and message window of every Run.
	Calls []MockCall
}

// MockCall captures one Run invocation.
type MockCall struct {
	Agent    string
	Messages []llm.ChatMessage
}

type mockStep struct {
	messages  []llm.ChatMessage
	nextAgent string
	err       error
}

// Ensure MockRunner implements Runner.
var _ Runner = (*MockRunner)(nil)

// NewMockRunner creates an empty mock runner.
func NewMockRunner() *MockRunner {
	return &MockRunner{}
}

// EnqueueReply scripts a plain assistant reply with no agent change.
func (m *MockRunner) EnqueueReply(content string) {
	m.enqueue(mockStep{messages: []llm.ChatMessage{{Role: "assistant", Content: content}}})
}

// EnqueueHandoff scripts a reply that ends with control at nextAgent.
func (m *MockRunner) EnqueueHandoff(content, nextAgent string) {
	m.enqueue(mockStep{
		messages:  []llm.ChatMessage{{Role: "assistant", Content: content}},
		nextAgent: nextAgent,
	})
}

// EnqueueMessages scripts an arbitrary produced message list.
func (m *MockRunner) EnqueueMessages(messages []llm.ChatMessage) {
	m.enqueue(mockStep{messages: messages})
}

// EnqueueError scripts a failing model call.
func (m *MockRunner) EnqueueError(err error) {
	m.enqueue(mockStep{err: err})
}

func (m *MockRunner) enqueue(s mockStep) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, s)
}

// Run returns the next scripted step.
func (m *MockRunner) Run(ctx context.Context, ag *Agent, roster *Roster, messages []llm.ChatMessage) (*RunResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, MockCall{Agent: ag.Name, Messages: messages})

	if len(m.steps) == 0 {
		return &RunResult{
			Messages: []llm.ChatMessage{{Role: "assistant", Content: "[MOCK] reply from " + ag.Name}},
			Agent:    ag,
		}, nil
	}

	step := m.steps[0]
	m.steps = m.steps[1:]
	if step.err != nil {
		return nil, step.err
	}

	next := ag
	if step.nextAgent != "" {
		if a, ok := roster.Lookup(step.nextAgent); ok {
			next = a
		}
	}
	return &RunResult{Messages: step.messages, Agent: next}, nil
}
