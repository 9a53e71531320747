// Package toolloop implements the tool-use loop (C8): the per-turn cycle of
// calling the LLM, arbitrating any emitted tool calls through the policy
// engine and tool host, and feeding results back until the turn reaches a
// terminal condition.
package toolloop

import (
	"context"

	"github.com/cloudwego/eino/schema"

	"github.com/opencode-ai/agentcore/internal/toolhost"
)

// Mode selects which model a turn runs against. extended_thinking swaps the
// loop into ModeReasoning for exactly one turn.
type Mode string

const (
	ModeNormal    Mode = "normal"
	ModeReasoning Mode = "reasoning"
)

// Finish reasons a Run can terminate with.
const (
	FinishStop          = "stop"
	FinishMaxTurns      = "max_turns_reached"
	FinishEmptyResponse = "empty_response"
	FinishLLMError      = "llm_error"
)

// Retriever supplies top-k context snippets for a user prompt, injected as a
// system-note message between the system prompt and the user turn.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]string, error)
}

// PrivacyDecision is the verdict a PrivacyRouter returns for one tool result.
type PrivacyDecision string

const (
	PrivacyPass   PrivacyDecision = "pass"
	PrivacyRedact PrivacyDecision = "redact"
	PrivacyBlock  PrivacyDecision = "block"
)

// PrivacyRouter scans a tool's output before it is appended to the
// transcript as a tool message for the next turn.
type PrivacyRouter interface {
	Scan(ctx context.Context, toolName string, output string) (PrivacyDecision, string)
}

// ApprovalFunc resolves whether a proposed, approval-required call may
// execute. Implementations may block (stdin prompt, IDE callback).
type ApprovalFunc func(ctx context.Context, call toolhost.Call, invocationID string) (bool, error)

// HookResult is what a before/after tool-call hook returns: either a block
// verdict with a reason, or additional context to prefix onto the
// transcript before the next LLM call.
type HookResult struct {
	Block             bool
	BlockReason       string
	AdditionalContext []string
}

// BeforeToolHook runs before a tool call is proposed; a block verdict
// short-circuits propose/execute entirely.
type BeforeToolHook func(ctx context.Context, call toolhost.Call) (HookResult, error)

// AfterToolHook runs once a tool call has executed, with its result.
type AfterToolHook func(ctx context.Context, call toolhost.Call, result *toolhost.Result) (HookResult, error)

// CheckpointFunc is invoked with the predicted file list before a
// file-mutating tool executes, so the caller can snapshot the workspace.
type CheckpointFunc func(ctx context.Context, predictedFiles []string) error

// Config configures one tool-use loop run.
type Config struct {
	Provider       string
	Model          string
	ReasoningModel string // used for a single turn after extended_thinking
	MaxTokens      int
	Temperature    float64
	ContextWindow  int
	MaxTurns       int // default 50
	ReadOnly       bool
	ThinkingBudget int

	Tools         []*schema.ToolInfo // full active tool set
	ReadOnlyTools []*schema.ToolInfo // subset used when ReadOnly is set

	Retriever     Retriever
	PrivacyRouter PrivacyRouter
	// SubagentWorker is accepted here to keep the loop's configuration shape
	// complete, but spawn_task resolves its worker through the Host it was
	// registered on, not through this field.
	SubagentWorker  toolhost.SubagentWorker
	SkillRunner     SkillRunner
	InitialMessages []*schema.Message

	Approve    ApprovalFunc
	Checkpoint CheckpointFunc

	BeforeTool BeforeToolHook
	AfterTool  AfterToolHook
}

// SkillRunner runs a named, pre-packaged skill procedure on behalf of the
// loop; a thin seam kept distinct from spawn_task's free-form sub-agent.
type SkillRunner interface {
	RunSkill(ctx context.Context, name string, args map[string]any) (string, error)
}

func (c Config) maxTurns() int {
	if c.MaxTurns <= 0 {
		return 50
	}
	return c.MaxTurns
}

// turnState is the loop's per-turn bookkeeping (spec §4.8).
type turnState struct {
	turnCount          int
	failureStreak      int
	emptyResponseCount int
	toolChoiceRetried  bool
	budgetWarned       bool
	currentMode        Mode
}

// ToolCallRecord summarizes one executed tool call for the final result.
type ToolCallRecord struct {
	Name         string
	InvocationID string
	ArgsSummary  string
	Success      bool
	DurationMS   int64
}

// Result is what Run returns once the loop reaches a terminal condition.
type Result struct {
	Text         string
	ToolCalls    []ToolCallRecord
	FinishReason string
	InputTokens  int
	OutputTokens int
	TurnCount    int
	Messages     []*schema.Message
}

// filesFromEdit extracts the predicted file list for a checkpoint call from
// a proposed edit-family tool's arguments.
func filesFromEdit(args map[string]any) []string {
	for _, key := range []string{"filePath", "path", "file"} {
		if v, ok := args[key].(string); ok && v != "" {
			return []string{v}
		}
	}
	return nil
}
