package toolhost

import (
	"context"

	"github.com/opencode-ai/agentcore/internal/policy"
)

// SubagentWorker runs a nested tool-loop in an isolated context on behalf
// of spawn_task and returns a textual summary. The tool-use loop (C8)
// supplies the concrete implementation so toolhost never imports the loop.
type SubagentWorker interface {
	RunSubtask(ctx context.Context, agentName, prompt string) (summary string, err error)
}

// QuestionAsker surfaces a question to the operator and blocks for a reply.
type QuestionAsker interface {
	Ask(ctx context.Context, question string) (answer string, err error)
}

// MCPDescriptor is a cached summary of one external tool, as registered by
// an MCP server manifest.
type MCPDescriptor struct {
	Name        string `json:"name"`
	Server      string `json:"server"`
	Description string `json:"description"`
}

// MCPCatalog exposes the cached descriptors mcp_search queries against.
type MCPCatalog interface {
	Search(query string) []MCPDescriptor
}

// spawnTaskHandler implements spawn_task.
type spawnTaskHandler struct {
	worker SubagentWorker
}

func (h *spawnTaskHandler) Name() string { return "spawn_task" }

func (h *spawnTaskHandler) Propose(ctx context.Context, call Call, pe *policy.Engine) (bool, string, error) {
	return true, "", nil
}

func (h *spawnTaskHandler) Execute(ctx context.Context, call Call, toolCtx *Context) (*Result, error) {
	var in struct {
		Agent  string `json:"agent"`
		Prompt string `json:"prompt"`
	}
	if err := marshalArgs(call.Args, &in); err != nil {
		return nil, err
	}
	if h.worker == nil {
		return &Result{Success: false, Output: "no subagent worker configured"}, nil
	}
	summary, err := h.worker.RunSubtask(ctx, in.Agent, in.Prompt)
	if err != nil {
		return &Result{Success: false, Output: err.Error()}, nil
	}
	return &Result{Success: true, Output: summary}, nil
}

// userQuestionHandler implements user_question.
type userQuestionHandler struct {
	asker QuestionAsker
}

func (h *userQuestionHandler) Name() string { return "user_question" }

func (h *userQuestionHandler) Propose(ctx context.Context, call Call, pe *policy.Engine) (bool, string, error) {
	return true, "", nil
}

func (h *userQuestionHandler) Execute(ctx context.Context, call Call, toolCtx *Context) (*Result, error) {
	var in struct {
		Question string `json:"question"`
	}
	if err := marshalArgs(call.Args, &in); err != nil {
		return nil, err
	}
	if h.asker == nil {
		return &Result{Success: false, Output: "no question asker configured"}, nil
	}
	answer, err := h.asker.Ask(ctx, in.Question)
	if err != nil {
		return &Result{Success: false, Output: err.Error()}, nil
	}
	return &Result{Success: true, Output: answer}, nil
}

// extendedThinkingHandler implements extended_thinking. It performs no
// side effect itself: its Output signals the tool-use loop to swap in the
// reasoning model for the next turn only.
type extendedThinkingHandler struct{}

func (extendedThinkingHandler) Name() string { return "extended_thinking" }

func (extendedThinkingHandler) Propose(ctx context.Context, call Call, pe *policy.Engine) (bool, string, error) {
	return true, "", nil
}

func (extendedThinkingHandler) Execute(ctx context.Context, call Call, toolCtx *Context) (*Result, error) {
	var in struct {
		Reason string `json:"reason"`
	}
	_ = marshalArgs(call.Args, &in)
	return &Result{Success: true, Output: map[string]any{"swapToReasoningModel": true, "reason": in.Reason}}, nil
}

// mcpSearchHandler implements mcp_search.
type mcpSearchHandler struct {
	catalog MCPCatalog
}

func (h *mcpSearchHandler) Name() string { return "mcp_search" }

func (h *mcpSearchHandler) Propose(ctx context.Context, call Call, pe *policy.Engine) (bool, string, error) {
	return true, "", nil
}

func (h *mcpSearchHandler) Execute(ctx context.Context, call Call, toolCtx *Context) (*Result, error) {
	var in struct {
		Query string `json:"query"`
	}
	if err := marshalArgs(call.Args, &in); err != nil {
		return nil, err
	}
	if h.catalog == nil {
		return &Result{Success: true, Output: []MCPDescriptor{}}, nil
	}
	return &Result{Success: true, Output: h.catalog.Search(in.Query)}, nil
}
