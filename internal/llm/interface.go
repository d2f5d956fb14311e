package llm

import "context"

// ChatClient defines the interface for chat completion calls.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error)
}

// Ensure Client implements ChatClient.
var _ ChatClient = (*Client)(nil)
