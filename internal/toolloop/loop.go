package toolloop

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"github.com/opencode-ai/agentcore/internal/apperror"
	"github.com/opencode-ai/agentcore/internal/eventstore"
	"github.com/opencode-ai/agentcore/internal/llm"
	"github.com/opencode-ai/agentcore/internal/policy"
	"github.com/opencode-ai/agentcore/internal/toolhost"
)

// ChatCompleter is the subset of llm.Client the loop drives turns through;
// kept as an interface so tests can stub it without a real provider registry.
type ChatCompleter interface {
	CompleteWithCache(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, *llm.OffPeakDecision, error)
}

// Loop runs the per-turn tool-use cycle for a single session.
type Loop struct {
	cfg      Config
	llm      ChatCompleter
	host     *toolhost.Host
	policy   *policy.Engine
	checker  *policy.Checker
	doomLoop *policy.DoomLoopDetector
	store    *eventstore.Store
	log      zerolog.Logger
}

func New(cfg Config, llmClient ChatCompleter, host *toolhost.Host, policyEngine *policy.Engine, checker *policy.Checker, doomLoop *policy.DoomLoopDetector, store *eventstore.Store, log zerolog.Logger) *Loop {
	return &Loop{
		cfg:      cfg,
		llm:      llmClient,
		host:     host,
		policy:   policyEngine,
		checker:  checker,
		doomLoop: doomLoop,
		store:    store,
		log:      log.With().Str("component", "toolloop").Logger(),
	}
}

// Run drives turns until a terminal condition is reached (spec §4.8).
func (l *Loop) Run(ctx context.Context, sessionID, systemPrompt, userPrompt string) (*Result, error) {
	messages := append([]*schema.Message(nil), l.cfg.InitialMessages...)
	if systemPrompt != "" {
		messages = append([]*schema.Message{{Role: schema.System, Content: systemPrompt}}, messages...)
	}

	if l.cfg.Retriever != nil {
		hits, err := l.cfg.Retriever.Retrieve(ctx, userPrompt, 5)
		if err != nil {
			l.log.Warn().Err(err).Msg("retriever failed, continuing without context injection")
		} else if len(hits) > 0 {
			note := "Relevant context:\n"
			for _, h := range hits {
				note += "- " + h + "\n"
			}
			messages = append(messages, &schema.Message{Role: schema.System, Content: note})
		}
	}

	messages = append(messages, &schema.Message{Role: schema.User, Content: userPrompt})
	l.appendEvent(ctx, sessionID, eventstore.KindTurnAdded, eventstore.TurnAddedData{Role: "user", Content: userPrompt})

	st := &turnState{currentMode: ModeNormal}
	result := &Result{}

	for {
		st.turnCount++
		if st.turnCount > l.cfg.maxTurns() {
			result.FinishReason = FinishMaxTurns
			result.TurnCount = st.turnCount - 1
			result.Messages = messages
			return result, nil
		}

		model := l.cfg.Model
		maxTokens := l.cfg.MaxTokens
		if st.currentMode == ModeReasoning {
			if l.cfg.ReasoningModel != "" {
				model = l.cfg.ReasoningModel
			}
			if l.cfg.ThinkingBudget > 0 && (maxTokens == 0 || l.cfg.ThinkingBudget < maxTokens) {
				maxTokens = l.cfg.ThinkingBudget
			}
		}

		tools := l.cfg.Tools
		if l.cfg.ReadOnly {
			tools = l.cfg.ReadOnlyTools
		}

		req := llm.ChatRequest{
			Provider:    l.cfg.Provider,
			Model:       model,
			Messages:    messages,
			Tools:       tools,
			MaxTokens:   maxTokens,
			Temperature: l.cfg.Temperature,
		}

		resp, offDecision, err := l.llm.CompleteWithCache(ctx, req)
		if err != nil {
			if apperror.Retryable(apperror.KindLlmCallFailed) {
				l.log.Warn().Err(err).Msg("llm call failed after retries, terminating loop")
			}
			result.FinishReason = FinishLLMError
			result.TurnCount = st.turnCount
			result.Messages = messages
			return result, nil
		}

		if offDecision != nil && offDecision.Deferred {
			l.appendEvent(ctx, sessionID, eventstore.KindOffPeakScheduled, eventstore.OffPeakScheduledData{
				Reason: offDecision.Reason, NextWindowAt: offDecision.NextWindowAt,
			})
		}
		if resp.CacheHit {
			l.appendEvent(ctx, sessionID, eventstore.KindPromptCacheHit, eventstore.PromptCacheHitData{CacheKey: resp.CacheKey})
		}

		result.InputTokens += resp.Usage.InputTokens
		result.OutputTokens += resp.Usage.OutputTokens
		l.appendEvent(ctx, sessionID, eventstore.KindUsageUpdated, eventstore.UsageUpdatedData{
			InputTokens: resp.Usage.InputTokens, OutputTokens: resp.Usage.OutputTokens,
		})

		msg := resp.Message
		empty := msg == nil || (msg.Content == "" && len(msg.ToolCalls) == 0)
		if empty {
			st.emptyResponseCount++
			if st.emptyResponseCount >= 2 {
				result.FinishReason = FinishEmptyResponse
				result.TurnCount = st.turnCount
				result.Messages = messages
				return result, nil
			}
			// Retry once by resubmitting the same request. eino's ToolInfo
			// carries no per-call tool_choice field, so no tool_choice=required
			// is sent and the retry does not force a tool call.
			st.toolChoiceRetried = true
			st.turnCount--
			continue
		}
		st.currentMode = ModeNormal // extended_thinking only lasts one turn

		messages = append(messages, msg)

		if len(msg.ToolCalls) == 0 {
			l.appendEvent(ctx, sessionID, eventstore.KindTurnAdded, eventstore.TurnAddedData{Role: "assistant", Content: msg.Content})
			result.Text = msg.Content
			result.FinishReason = FinishStop
			result.TurnCount = st.turnCount
			result.Messages = messages
			return result, nil
		}

		for _, tc := range msg.ToolCalls {
			record, toolMsg, additionalContext, switchToReasoning, err := l.handleToolCall(ctx, sessionID, st, tc)
			if err != nil {
				result.FinishReason = FinishLLMError
				result.TurnCount = st.turnCount
				result.Messages = messages
				return result, nil
			}
			for _, note := range additionalContext {
				messages = append(messages, &schema.Message{Role: schema.System, Content: note})
			}
			result.ToolCalls = append(result.ToolCalls, record)
			messages = append(messages, toolMsg)
			if switchToReasoning {
				st.currentMode = ModeReasoning
			}
			if record.Success {
				st.failureStreak = 0
			} else {
				st.failureStreak++
			}
		}
	}
}

// handleToolCall runs one tool call through propose -> approval ->
// checkpoint -> execute -> privacy scan, appending the result as a tool
// message for the next turn.
func (l *Loop) handleToolCall(ctx context.Context, sessionID string, st *turnState, tc schema.ToolCall) (ToolCallRecord, *schema.Message, []string, bool, error) {
	var args map[string]any
	_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)

	call := toolhost.Call{Name: tc.Function.Name, Args: args}
	var prefixContext []string

	if l.cfg.BeforeTool != nil {
		hr, err := l.cfg.BeforeTool(ctx, call)
		if err != nil {
			l.log.Warn().Err(err).Msg("before-tool hook failed, proceeding")
		} else {
			prefixContext = append(prefixContext, hr.AdditionalContext...)
			if hr.Block {
				record := ToolCallRecord{Name: call.Name, ArgsSummary: summarizeArgs(args), Success: false}
				msg := &schema.Message{Role: schema.Tool, ToolCallID: tc.ID, Content: "denied: " + hr.BlockReason}
				return record, msg, prefixContext, false, nil
			}
		}
	}

	prop, err := l.host.Propose(ctx, call, l.policy)
	if err != nil {
		return ToolCallRecord{}, nil, prefixContext, false, err
	}
	l.appendEvent(ctx, sessionID, eventstore.KindToolProposed, eventstore.ToolProposedData{Proposal: toProposalData(prop)})

	if l.doomLoop != nil && l.doomLoop.Check(sessionID, call.Name, args) {
		prop.Approved = false
		prop.DenyReason = "doom loop detected: identical call repeated"
		l.appendEvent(ctx, sessionID, eventstore.KindDoomLoopDetected, eventstore.DoomLoopDetectedData{ToolName: call.Name, Count: 3})
	}

	if prop.Approved && l.policy.RequiresApproval(call) {
		approved, approveErr := l.approve(ctx, call, prop.InvocationID)
		if approveErr != nil || !approved {
			prop.Approved = false
			if prop.DenyReason == "" {
				prop.DenyReason = "approval denied"
			}
		}
	}

	if !prop.Approved {
		l.appendEvent(ctx, sessionID, eventstore.KindToolDenied, eventstore.ToolDeniedData{InvocationID: prop.InvocationID, Reason: prop.DenyReason})
		record := ToolCallRecord{Name: call.Name, InvocationID: prop.InvocationID, ArgsSummary: summarizeArgs(args), Success: false}
		msg := &schema.Message{Role: schema.Tool, ToolCallID: tc.ID, Content: "denied: " + prop.DenyReason}
		return record, msg, prefixContext, false, nil
	}
	l.appendEvent(ctx, sessionID, eventstore.KindToolApproved, eventstore.ToolApprovedData{InvocationID: prop.InvocationID})

	if l.cfg.Checkpoint != nil && isMutatingTool(call.Name) {
		if err := l.cfg.Checkpoint(ctx, filesFromEdit(args)); err != nil {
			l.log.Warn().Err(err).Msg("checkpoint failed, proceeding without one")
		}
	}

	toolCtx := &toolhost.Context{SessionID: sessionID}
	toolResult, err := l.host.Execute(ctx, prop, toolCtx)
	if err != nil {
		toolResult = &toolhost.Result{InvocationID: prop.InvocationID, Success: false, Output: err.Error()}
	}
	l.appendEvent(ctx, sessionID, eventstore.KindToolResult, eventstore.ToolResultData{Result: eventstore.Result{
		InvocationID: toolResult.InvocationID, Success: toolResult.Success, Output: toolResult.Output, DurationMS: toolResult.DurationMS,
	}})

	outputText := stringifyOutput(toolResult.Output)
	switchToReasoning := false
	if call.Name == "extended_thinking" {
		if m, ok := toolResult.Output.(map[string]any); ok {
			if swap, _ := m["swapToReasoningModel"].(bool); swap {
				switchToReasoning = true
			}
		}
	}

	if l.cfg.AfterTool != nil {
		hr, hookErr := l.cfg.AfterTool(ctx, call, toolResult)
		if hookErr != nil {
			l.log.Warn().Err(hookErr).Msg("after-tool hook failed, proceeding")
		} else {
			prefixContext = append(prefixContext, hr.AdditionalContext...)
			if hr.Block {
				outputText = "blocked: " + hr.BlockReason
				toolResult.Success = false
			}
		}
	}

	if l.cfg.PrivacyRouter != nil {
		decision, redacted := l.cfg.PrivacyRouter.Scan(ctx, call.Name, outputText)
		switch decision {
		case PrivacyBlock:
			outputText = "blocked by privacy policy"
			toolResult.Success = false
		case PrivacyRedact:
			outputText = redacted
		}
	}

	record := ToolCallRecord{
		Name: call.Name, InvocationID: prop.InvocationID, ArgsSummary: summarizeArgs(args),
		Success: toolResult.Success, DurationMS: toolResult.DurationMS,
	}
	msg := &schema.Message{Role: schema.Tool, ToolCallID: tc.ID, Content: outputText}
	return record, msg, prefixContext, switchToReasoning, nil
}

func (l *Loop) approve(ctx context.Context, call toolhost.Call, invocationID string) (bool, error) {
	if l.cfg.Approve != nil {
		return l.cfg.Approve(ctx, call, invocationID)
	}
	if l.checker == nil {
		return true, nil
	}
	err := l.checker.Ask(ctx, policy.ApprovalRequest{ToolName: call.Name, CallID: invocationID})
	if err != nil {
		return false, nil
	}
	return true, nil
}

func (l *Loop) appendEvent(ctx context.Context, sessionID string, kind eventstore.Kind, data any) {
	if l.store == nil {
		return
	}
	if _, err := l.store.AppendEvent(ctx, sessionID, kind, time.Now().UnixMilli(), data); err != nil {
		l.log.Warn().Err(err).Str("kind", string(kind)).Msg("failed to append event")
	}
}

func toProposalData(p toolhost.Proposal) eventstore.Proposal {
	return eventstore.Proposal{
		ToolCall:     eventstore.ToolCall{Name: p.Name, Args: p.Args, RequiresApproval: p.RequiresApproval},
		InvocationID: p.InvocationID,
		Approved:     p.Approved,
	}
}

func isMutatingTool(name string) bool {
	switch name {
	case "fs.write", "fs.edit", "patch.apply":
		return true
	default:
		return false
	}
}

func stringifyOutput(output any) string {
	switch v := output.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		buf, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(buf)
	}
}
