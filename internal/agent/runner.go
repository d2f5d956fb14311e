package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/sweetebin/agent-hippocrates/internal/llm"
	"github.com/sweetebin/agent-hippocrates/internal/policy"
)

// RunResult is the outcome of one opaque model call: the messages the
// model produced (assistant and tool rows, in order) and the agent
// active after the call.
type RunResult struct {
	Messages []llm.ChatMessage
	Agent    *Agent
}

// Runner drives one model call for an agent over an assembled message
// window.
type Runner interface {
	Run(ctx context.Context, ag *Agent, roster *Roster, messages []llm.ChatMessage) (*RunResult, error)
}

// ToolLoopRunner implements Runner against a chat completions client.
// It loops while the model keeps calling tools, executing each call
// through the agent's bound capability set. A transfer capability is
// validated against the handoff policy before the active agent
// switches; the loop then continues with the new agent so the target
// produces the reply within the same turn.
type ToolLoopRunner struct {
	client   llm.ChatClient
	policy   *policy.Engine
	maxTurns int
}

// Ensure ToolLoopRunner implements Runner.
var _ Runner = (*ToolLoopRunner)(nil)

// NewToolLoopRunner creates a runner with the given turn bound.
func NewToolLoopRunner(client llm.ChatClient, policyEngine *policy.Engine, maxTurns int) *ToolLoopRunner {
	if maxTurns <= 0 {
		maxTurns = 5
	}
	return &ToolLoopRunner{client: client, policy: policyEngine, maxTurns: maxTurns}
}

// Run executes the tool loop.
func (r *ToolLoopRunner) Run(ctx context.Context, ag *Agent, roster *Roster, messages []llm.ChatMessage) (*RunResult, error) {
	active := ag
	history := make([]llm.ChatMessage, len(messages))
	copy(history, messages)

	var produced []llm.ChatMessage

	for turn := 0; turn < r.maxTurns; turn++ {
		req := &llm.ChatCompletionRequest{
			Model:    active.Model,
			Messages: withInstructions(active, history),
			Tools:    active.toolSpecs(),
		}

		resp, err := r.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("model call failed: %w", err)
		}
		if resp.Choices[0].Message == nil {
			return nil, fmt.Errorf("model returned a choice without a message")
		}

		msg := *resp.Choices[0].Message
		history = append(history, msg)
		produced = append(produced, msg)

		if len(msg.ToolCalls) == 0 {
			break
		}

		for _, tc := range msg.ToolCalls {
			result, next := r.executeToolCall(ctx, active, roster, tc)
			if next != nil {
				active = next
			}
			toolMsg := llm.ChatMessage{
				Role:       "tool",
				Content:    string(result),
				ToolCallID: tc.ID,
				Name:       tc.Function.Name,
			}
			history = append(history, toolMsg)
			produced = append(produced, toolMsg)
		}
	}

	return &RunResult{Messages: produced, Agent: active}, nil
}

// executeToolCall runs one tool call against the agent's capability
// set. The returned agent is non-nil only when an allowed transfer
// changes the active agent.
func (r *ToolLoopRunner) executeToolCall(ctx context.Context, active *Agent, roster *Roster, tc llm.ToolCall) (json.RawMessage, *Agent) {
	td := active.findTool(tc.Function.Name)
	if td == nil {
		log.Printf("WARN: agent %s called unknown tool %s", active.Name, tc.Function.Name)
		return errorResult(fmt.Sprintf("unknown tool: %s", tc.Function.Name)), nil
	}

	if td.TransferTo != "" {
		return r.applyTransfer(ctx, active, roster, td.TransferTo)
	}

	out, err := td.Execute(ctx, json.RawMessage(tc.Function.Arguments))
	if err != nil {
		log.Printf("ERROR: tool %s failed: %v", tc.Function.Name, err)
		return errorResult(err.Error()), nil
	}
	return out, nil
}

// applyTransfer validates a proposed transfer against the handoff
// policy. Unknown targets are rejected rather than trusted; a transfer
// to the already-active agent is reported back as a no-op.
func (r *ToolLoopRunner) applyTransfer(ctx context.Context, active *Agent, roster *Roster, target string) (json.RawMessage, *Agent) {
	decision, err := r.policy.Evaluate(ctx, active.Name, target, roster.ActiveNames())
	if err != nil {
		log.Printf("ERROR: handoff policy evaluation failed: %v", err)
		return errorResult("transfer rejected: policy evaluation failed"), nil
	}
	if decision != policy.DecisionAllow {
		log.Printf("WARN: transfer from %s to unknown agent %s rejected", active.Name, target)
		return errorResult(fmt.Sprintf("transfer rejected: unknown agent %s", target)), nil
	}

	if target == active.Name {
		result, _ := json.Marshal(map[string]interface{}{"transferred": false, "agent": target})
		return result, nil
	}

	next, ok := roster.Lookup(target)
	if !ok {
		// Policy input comes from roster names, so this should not happen.
		return errorResult(fmt.Sprintf("transfer rejected: unknown agent %s", target)), nil
	}
	result, _ := json.Marshal(map[string]interface{}{"transferred": true, "agent": target})
	return result, next
}

// withInstructions prepends the agent's instruction text as the leading
// system message. Agent definitions stay immutable; the prompt is
// composed fresh each call.
func withInstructions(ag *Agent, messages []llm.ChatMessage) []llm.ChatMessage {
	out := make([]llm.ChatMessage, 0, len(messages)+1)
	out = append(out, llm.ChatMessage{Role: "system", Content: ag.Instructions})
	out = append(out, messages...)
	return out
}

func errorResult(msg string) json.RawMessage {
	result, _ := json.Marshal(map[string]string{"error": msg})
	return result
}
