// Package agent defines the agent roster, the capability (tool)
// bindings of each agent, and the runner that drives model calls.
package agent

import (
	"context"
	"encoding/json"

	"github.com/sweetebin/agent-hippocrates/internal/llm"
)

// Canonical agent names. The roster is a closed set; transfers are
// validated against it.
const (
	NameMedicalAssistant = "Medical Assistant"
	NameDoctor           = "Doctor"
	NameImageInterpreter = "Image Interpreter"
)

// ExecutorFunc defines a server-side capability executor.
type ExecutorFunc func(ctx context.Context, args json.RawMessage) (json.RawMessage, error)

// ToolDef binds a tool specification to its executor. A non-empty
// TransferTo marks the tool as a transfer capability targeting the
// named agent; the runner validates and applies the transfer itself.
type ToolDef struct {
	Spec       llm.Tool
	Execute    ExecutorFunc
	TransferTo string
}

// Agent is one named agent: instruction text, model identifier and the
// closed capability set the model is permitted to invoke. The
// definition is immutable; per-turn context is assembled at call time.
type Agent struct {
	Name         string
	Instructions string
	Model        string
	Tools        []ToolDef
}

// toolSpecs returns the tool definitions to advertise to the model.
func (a *Agent) toolSpecs() []llm.Tool {
	if len(a.Tools) == 0 {
		return nil
	}
	specs := make([]llm.Tool, 0, len(a.Tools))
	for _, t := range a.Tools {
		specs = append(specs, t.Spec)
	}
	return specs
}

// findTool looks up a bound capability by name.
func (a *Agent) findTool(name string) *ToolDef {
	for i := range a.Tools {
		if a.Tools[i].Spec.Function.Name == name {
			return &a.Tools[i]
		}
	}
	return nil
}

// Roster is the set of agents bound to one user context. The image
// interpreter only converts images to text and never becomes the
// active agent, so it is excluded from the transferable names.
type Roster struct {
	Intake      *Agent
	Specialist  *Agent
	Interpreter *Agent

	byName map[string]*Agent
}

// Lookup returns the agent with the given name.
func (r *Roster) Lookup(name string) (*Agent, bool) {
	a, ok := r.byName[name]
	return a, ok
}

// Default returns the initial active agent.
func (r *Roster) Default() *Agent {
	return r.Intake
}

// ActiveNames returns the names an agent may transfer control to.
func (r *Roster) ActiveNames() []string {
	return []string{r.Intake.Name, r.Specialist.Name}
}

// Resolve returns the agent recorded as a session's current agent,
// falling back to the default for empty or unknown names.
func (r *Roster) Resolve(name string) *Agent {
	if a, ok := r.byName[name]; ok && a != r.Interpreter {
		return a
	}
	return r.Default()
}
