// Package policy evaluates handoff decisions through OPA. The model
// proposes transfers via tool calls; the roster is a closed set, so the
// policy validates every proposed target before control moves.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

// Decisions returned by the handoff policy.
const (
	DecisionAllow  = "allow"
	DecisionReject = "reject"
)

// Engine is the OPA handoff policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.handoff.decision"),
		rego.Module("handoff.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Evaluate checks a proposed transfer. Input keys: from, to, agents
// (the known roster names). Returns the decision string.
func (e *Engine) Evaluate(ctx context.Context, from, to string, agents []string) (string, error) {
	input := map[string]interface{}{
		"from":   from,
		"to":     to,
		"agents": agents,
	}

	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return DecisionReject, nil
	}

	if s, ok := results[0].Expressions[0].Value.(string); ok {
		return s, nil
	}
	return DecisionReject, nil
}

// DefaultPolicy allows a transfer only when the target is a known
// roster agent. Transfer to self evaluates to allow; the orchestrator
// treats it as a no-op.
const DefaultPolicy = `
package handoff

import rego.v1

default decision := "reject"

decision := "allow" if {
	input.to in input.agents
}
`
