package llm

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockClient is a mock implementation of ChatClient for tests and for
// running the service without a model backend. Responses can be
// scripted with Enqueue; without a script the client echoes the last
// user message.
type MockClient struct {
	mu     sync.Mutex
	queue  []*ChatCompletionResponse
	errs   []error
	// Requests records every request received, in order.
	Requests []*ChatCompletionRequest
}

// NewMockClient creates a new mock chat client.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// Ensure MockClient implements ChatClient.
var _ ChatClient = (*MockClient)(nil)

// Enqueue scripts the next response.
func (m *MockClient) Enqueue(resp *ChatCompletionResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, resp)
	m.errs = append(m.errs, nil)
}

// EnqueueError scripts the next call to fail.
func (m *MockClient) EnqueueError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, nil)
	m.errs = append(m.errs, err)
}

// EnqueueText scripts a plain assistant text response.
func (m *MockClient) EnqueueText(content string) {
	m.Enqueue(TextResponse(content))
}

// EnqueueToolCall scripts an assistant response invoking one tool.
func (m *MockClient) EnqueueToolCall(name, arguments string) {
	m.Enqueue(&ChatCompletionResponse{
		ID:      fmt.Sprintf("mock-chatcmpl-%d", time.Now().UnixNano()),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Choices: []Choice{{
			Message: &ChatMessage{
				Role: "assistant",
				ToolCalls: []ToolCall{{
					ID:       fmt.Sprintf("call_%d", time.Now().UnixNano()),
					Type:     "function",
					Function: ToolCallFunction{Name: name, Arguments: arguments},
				}},
			},
			FinishReason: "tool_calls",
		}},
	})
}

// TextResponse builds a plain assistant completion.
func TextResponse(content string) *ChatCompletionResponse {
	return &ChatCompletionResponse{
		ID:      fmt.Sprintf("mock-chatcmpl-%d", time.Now().UnixNano()),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Choices: []Choice{{
			Message:      &ChatMessage{Role: "assistant", Content: content},
			FinishReason: "stop",
		}},
	}
}

// CreateChatCompletion returns the next scripted response, or an echo
// of the last user message when nothing is scripted.
func (m *MockClient) CreateChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Requests = append(m.Requests, req)

	if len(m.queue) > 0 {
		resp, err := m.queue[0], m.errs[0]
		m.queue = m.queue[1:]
		m.errs = m.errs[1:]
		if err != nil {
			return nil, err
		}
		return resp, nil
	}

	var lastUser string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			lastUser = req.Messages[i].Content
			break
		}
	}
	if lastUser == "" {
		lastUser = "your message"
	}
	return TextResponse(fmt.Sprintf("[MOCK] Received: %q", truncate(lastUser, 100))), nil
}

// truncate truncates a string to the given length.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
