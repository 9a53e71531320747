package engine

import (
	"context"
	"fmt"

	"github.com/oklog/ulid/v2"

	"github.com/opencode-ai/agentcore/internal/agent"
	"github.com/opencode-ai/agentcore/internal/eventstore"
	"github.com/opencode-ai/agentcore/internal/toolloop"
)

// SubagentRunner implements toolhost.SubagentWorker: it creates an isolated
// child session, scopes the tool set to the named agent's own permissions
// rather than inheriting the parent's, and runs a fresh tool-use loop to
// completion.
//
// Per spec's open question on sub-agent isolation, a sub-agent never
// inherits the parent's Approve callback: any tool its own permissions mark
// "ask" is auto-denied rather than surfaced to a human, so a spawned agent
// cannot use approval prompts as an escalation path out of its own scope.
type SubagentRunner struct {
	engine   *Engine
	registry *agent.Registry
}

func NewSubagentRunner(e *Engine, registry *agent.Registry) *SubagentRunner {
	return &SubagentRunner{engine: e, registry: registry}
}

// RunSubtask satisfies toolhost.SubagentWorker.
func (r *SubagentRunner) RunSubtask(ctx context.Context, agentName, prompt string) (string, error) {
	a, err := r.registry.Get(agentName)
	if err != nil {
		return "", fmt.Errorf("unknown subagent %q: %w", agentName, err)
	}
	if !a.IsSubagent() {
		return "", fmt.Errorf("agent %q is not usable as a subagent", agentName)
	}

	childID := ulid.Make().String()
	now := r.engine.nowMillis()
	if _, err := r.engine.store.AppendEvent(ctx, childID, eventstore.KindSessionStateChanged, now, eventstore.SessionStateChangedData{
		From: eventstore.StatusIdle, To: eventstore.StatusIdle,
	}); err != nil {
		return "", fmt.Errorf("create subagent session: %w", err)
	}

	loop := r.engine.newScopedLoop(a)
	result, err := loop.Run(ctx, childID, a.Prompt, prompt)
	if err != nil {
		return "", err
	}
	if result.FinishReason == toolloop.FinishLLMError {
		return "", fmt.Errorf("subagent %q terminated with an llm error", agentName)
	}
	return result.Text, nil
}
