// Package engine implements the agent engine (C9): it creates and loads
// sessions, enforces the session state machine, wires hooks and @server:uri
// resolution around the tool-use loop, and drives either a one-shot chat or
// the full planner -> loop -> verification sequence.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/opencode-ai/agentcore/internal/agent"
	"github.com/opencode-ai/agentcore/internal/eventstore"
	"github.com/opencode-ai/agentcore/internal/planner"
	"github.com/opencode-ai/agentcore/internal/policy"
	"github.com/opencode-ai/agentcore/internal/router"
	"github.com/opencode-ai/agentcore/internal/toolhost"
	"github.com/opencode-ai/agentcore/internal/toolloop"
)

// subagentMaxTurns caps a sub-agent's own tool-use loop independently of
// the parent session's MaxTurns.
const subagentMaxTurns = 20

// Config configures one Engine instance. Collaborators left nil fall back
// to a conservative default (no hooks, no resource resolution, one worker
// thread per session).
type Config struct {
	WorkspaceRoot string

	Provider       string
	Model          string
	ReasoningModel string
	MaxTokens      int
	Temperature    float64
	ContextWindow  int
	MaxTurns       int

	Tools         []*schema.ToolInfo
	ReadOnlyTools []*schema.ToolInfo

	Hooks       *HookRuntime
	Resources   *ResourceResolver
	Telemetry   TelemetrySink
	Approve     toolloop.ApprovalFunc
	Checkpoint  toolloop.CheckpointFunc
	Retriever   toolloop.Retriever
	Privacy     toolloop.PrivacyRouter
	SkillRunner toolloop.SkillRunner
	Subagents   *SubagentRunner
	Router      *router.Router
}

// TelemetrySink receives fire-and-forget observability events; failures to
// record telemetry are never fatal to the engine (spec §7).
type TelemetrySink interface {
	Record(ctx context.Context, kind string, fields map[string]any)
}

// Engine ties the event store, policy engine, tool host and tool-use loop
// together into one orchestrator per workspace.
type Engine struct {
	cfg    Config
	store  *eventstore.Store
	policy *policy.Engine
	host   *toolhost.Host
	llm    toolloop.ChatCompleter
	plan   *planner.Planner
	router *router.Router
	log    zerolog.Logger
}

func New(cfg Config, store *eventstore.Store, policyEngine *policy.Engine, host *toolhost.Host, llmClient toolloop.ChatCompleter, plan *planner.Planner, log zerolog.Logger) *Engine {
	return &Engine{
		cfg:    cfg,
		store:  store,
		policy: policyEngine,
		host:   host,
		llm:    llmClient,
		plan:   plan,
		router: cfg.Router,
		log:    log.With().Str("component", "engine").Logger(),
	}
}

// CreateSession opens a new session in the Idle state and records its
// baseline. Creation appends one SessionStateChanged event (Idle to Idle)
// so the session exists in the store before any other event is recorded;
// a non-empty baselineCommit is also recorded as a checkpoint.
func (e *Engine) CreateSession(ctx context.Context, baselineCommit string) (string, error) {
	sessionID := ulid.Make().String()
	now := time.Now().UnixMilli()
	_, err := e.store.AppendEvent(ctx, sessionID, eventstore.KindSessionStateChanged, now, eventstore.SessionStateChangedData{
		From: eventstore.StatusIdle, To: eventstore.StatusIdle,
	})
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	if baselineCommit != "" {
		if _, err := e.store.RecordCheckpoint(ctx, sessionID, baselineCommit, nil, now); err != nil {
			return "", fmt.Errorf("record baseline checkpoint: %w", err)
		}
	}
	return sessionID, nil
}

// LoadSession returns the current projection for an existing session.
func (e *Engine) LoadSession(ctx context.Context, sessionID string) (*eventstore.Projection, error) {
	return e.store.LoadSession(ctx, sessionID)
}

// transition moves the session to state `to`, rejecting anything the state
// machine does not declare.
func (e *Engine) transition(ctx context.Context, sessionID string, from, to eventstore.SessionStatus) error {
	return e.store.TransitionSession(ctx, sessionID, from, to, time.Now().UnixMilli())
}

// RunChat drives a one-shot tool-use loop for sessionID: no plan, no
// verification pass, just the loop to its terminal condition. Used for
// trivial chat and read-only exploration prompts.
func (e *Engine) RunChat(ctx context.Context, sessionID, systemPrompt, userPrompt string, readOnly bool) (*toolloop.Result, error) {
	if err := e.transition(ctx, sessionID, eventstore.StatusIdle, eventstore.StatusRunning); err != nil {
		return nil, err
	}

	resolvedPrompt := userPrompt
	if e.cfg.Resources != nil {
		resolvedPrompt = e.cfg.Resources.Resolve(ctx, sessionID, userPrompt)
	}

	model := e.cfg.Model
	if proj, err := e.store.LoadSession(ctx, sessionID); err == nil {
		model = e.routeModel(ctx, sessionID, router.UnitExecutor, sessionSignals(proj))
	}

	loop := e.newLoop(ctx, sessionID, readOnly, model)
	result, err := loop.Run(ctx, sessionID, systemPrompt, resolvedPrompt)
	if err != nil {
		_ = e.transition(ctx, sessionID, eventstore.StatusRunning, eventstore.StatusFailed)
		return nil, err
	}

	to := eventstore.StatusCompleted
	if result.FinishReason == toolloop.FinishLLMError {
		to = eventstore.StatusFailed
	}
	if err := e.transition(ctx, sessionID, eventstore.StatusRunning, to); err != nil {
		e.log.Warn().Err(err).Msg("failed to record terminal session state")
	}

	e.telemetry(ctx, "chat.finished", map[string]any{"sessionID": sessionID, "finishReason": result.FinishReason, "turns": result.TurnCount})
	e.maybeTitle(ctx, sessionID, userPrompt)
	return result, nil
}

// RunTask drives the full planner -> loop -> verification sequence: a plan
// is generated and recorded as a PlanCreated event, the loop runs once on
// the user prompt (the plan's steps are not fed to the loop one by one), and
// on completion the plan's verification commands run through the tool host.
// A failed verification command triggers at most one plan revision and retry.
func (e *Engine) RunTask(ctx context.Context, sessionID, systemPrompt, userPrompt string) (*toolloop.Result, error) {
	if e.plan == nil {
		return e.RunChat(ctx, sessionID, systemPrompt, userPrompt, false)
	}

	if err := e.transition(ctx, sessionID, eventstore.StatusIdle, eventstore.StatusPlanning); err != nil {
		return nil, err
	}

	resolvedPrompt := userPrompt
	if e.cfg.Resources != nil {
		resolvedPrompt = e.cfg.Resources.Resolve(ctx, sessionID, userPrompt)
	}

	p, err := e.plan.Generate(ctx, resolvedPrompt, nil)
	if err != nil {
		_ = e.transition(ctx, sessionID, eventstore.StatusPlanning, eventstore.StatusFailed)
		return nil, fmt.Errorf("generate plan: %w", err)
	}
	if p != nil {
		e.appendEvent(ctx, sessionID, eventstore.KindPlanCreated, eventstore.PlanCreatedData{Plan: toEventPlan(p)})
	}

	if err := e.transition(ctx, sessionID, eventstore.StatusPlanning, eventstore.StatusRunning); err != nil {
		return nil, err
	}

	model := e.cfg.Model
	if proj, err := e.store.LoadSession(ctx, sessionID); err == nil {
		signals := sessionSignals(proj)
		if p != nil && len(p.Steps) > 8 {
			signals.Complexity = 1
		}
		model = e.routeModel(ctx, sessionID, router.UnitPlanner, signals)
	}

	loop := e.newLoop(ctx, sessionID, false, model)
	result, err := loop.Run(ctx, sessionID, systemPrompt, resolvedPrompt)
	if err != nil {
		_ = e.transition(ctx, sessionID, eventstore.StatusRunning, eventstore.StatusFailed)
		return nil, err
	}

	if p != nil && !e.runVerification(ctx, sessionID, p) {
		p, result = e.reviseAndRetry(ctx, sessionID, systemPrompt, resolvedPrompt, p, result)
	}

	to := eventstore.StatusCompleted
	if result.FinishReason == toolloop.FinishLLMError {
		to = eventstore.StatusFailed
	}
	if err := e.transition(ctx, sessionID, eventstore.StatusRunning, to); err != nil {
		e.log.Warn().Err(err).Msg("failed to record terminal session state")
	}

	e.telemetry(ctx, "task.finished", map[string]any{"sessionID": sessionID, "finishReason": result.FinishReason, "turns": result.TurnCount})
	e.maybeTitle(ctx, sessionID, userPrompt)
	return result, nil
}

// runVerification executes a plan's verification commands via bash.run and
// records the outcome; it never itself fails RunTask, matching spec §7's
// rule that tool-loop inner errors are relayed rather than propagated. It
// reports whether every command succeeded.
func (e *Engine) runVerification(ctx context.Context, sessionID string, p *planner.Plan) bool {
	allPassed := true
	for _, cmd := range p.Verification {
		call := toolhost.Call{Name: "bash.run", Args: map[string]any{"command": cmd}}
		prop, err := e.host.Propose(ctx, call, e.policy)
		if err != nil {
			e.log.Warn().Err(err).Str("cmd", cmd).Msg("verification command could not be proposed")
			allPassed = false
			continue
		}
		prop.Approved = true // verification commands run with engine-level authority, not user approval
		result, err := e.host.Execute(ctx, prop, &toolhost.Context{SessionID: sessionID})
		if err != nil {
			result = &toolhost.Result{Success: false, Output: err.Error()}
		}
		if !result.Success {
			allPassed = false
		}
		e.appendEvent(ctx, sessionID, eventstore.KindToolResult, eventstore.ToolResultData{Result: eventstore.Result{
			InvocationID: prop.InvocationID, Success: result.Success, Output: result.Output, DurationMS: result.DurationMS,
		}})
	}
	return allPassed
}

// reviseAndRetry asks the planner for a revised plan after a failed
// verification pass, reruns the loop once against an escalated model, and
// re-verifies. It never retries more than once: a second failure is
// reported as-is rather than compounding revisions.
func (e *Engine) reviseAndRetry(ctx context.Context, sessionID, systemPrompt, resolvedPrompt string, prev *planner.Plan, prevResult *toolloop.Result) (*planner.Plan, *toolloop.Result) {
	proj, err := e.store.LoadSession(ctx, sessionID)
	if err != nil {
		e.log.Warn().Err(err).Msg("failed to load session for plan revision")
		return prev, prevResult
	}
	signals := sessionSignals(proj)
	failureStreak := 1

	revised, err := e.plan.Revise(ctx, prev, failureStreak, "verification command failed")
	if err != nil {
		e.log.Warn().Err(err).Msg("plan revision failed, keeping original result")
		return prev, prevResult
	}
	e.appendEvent(ctx, sessionID, eventstore.KindPlanRevised, eventstore.PlanRevisedData{Plan: toEventPlan(revised)})

	model := e.routeRevisionModel(ctx, sessionID, signals, failureStreak)
	loop := e.newLoop(ctx, sessionID, false, model)
	result, err := loop.Run(ctx, sessionID, systemPrompt, resolvedPrompt)
	if err != nil {
		e.log.Warn().Err(err).Msg("revised plan retry failed, keeping original result")
		return revised, prevResult
	}

	e.runVerification(ctx, sessionID, revised)
	return revised, result
}

func (e *Engine) newLoop(ctx context.Context, sessionID string, readOnly bool, model string) *toolloop.Loop {
	var beforeHook toolloop.BeforeToolHook
	var afterHook toolloop.AfterToolHook
	if e.cfg.Hooks != nil {
		beforeHook = e.cfg.Hooks.Before
		afterHook = e.cfg.Hooks.After
	}

	var subagentWorker toolhost.SubagentWorker
	if e.cfg.Subagents != nil {
		subagentWorker = e.cfg.Subagents
	}

	cfg := toolloop.Config{
		Provider:        e.cfg.Provider,
		Model:           model,
		ReasoningModel:  e.cfg.ReasoningModel,
		MaxTokens:       e.cfg.MaxTokens,
		Temperature:     e.cfg.Temperature,
		ContextWindow:   e.cfg.ContextWindow,
		MaxTurns:        e.cfg.MaxTurns,
		ReadOnly:        readOnly,
		Tools:           e.cfg.Tools,
		ReadOnlyTools:   e.cfg.ReadOnlyTools,
		Retriever:       e.cfg.Retriever,
		PrivacyRouter:   e.cfg.Privacy,
		SubagentWorker:  subagentWorker,
		SkillRunner:     e.cfg.SkillRunner,
		Approve:         e.cfg.Approve,
		Checkpoint:      e.cfg.Checkpoint,
		BeforeTool:      beforeHook,
		AfterTool:       afterHook,
		InitialMessages: e.priorMessages(ctx, sessionID),
	}
	return toolloop.New(cfg, e.llm, e.host, e.policy, policy.NewChecker(nil), policy.NewDoomLoopDetector(), e.store, e.log)
}

func (e *Engine) appendEvent(ctx context.Context, sessionID string, kind eventstore.Kind, data any) {
	if _, err := e.store.AppendEvent(ctx, sessionID, kind, time.Now().UnixMilli(), data); err != nil {
		e.log.Warn().Err(err).Str("kind", string(kind)).Msg("failed to append event")
	}
}

func (e *Engine) telemetry(ctx context.Context, kind string, fields map[string]any) {
	if e.cfg.Telemetry == nil {
		return
	}
	go e.cfg.Telemetry.Record(ctx, kind, fields)
}

func (e *Engine) nowMillis() int64 { return time.Now().UnixMilli() }

// newScopedLoop builds a tool-use loop for a sub-agent invocation: the tool
// set is narrowed to the agent's own enabled tools, approval is never
// delegated to a human (a denied-by-default checker), and no hooks or
// resource resolution run (those are engine-level concerns for the
// top-level session, not every nested sub-agent call).
func (e *Engine) newScopedLoop(a *agent.Agent) *toolloop.Loop {
	scoped := make([]*schema.ToolInfo, 0, len(e.cfg.Tools))
	for _, t := range e.cfg.Tools {
		if a.ToolEnabled(t.Name) {
			scoped = append(scoped, t)
		}
	}

	cfg := toolloop.Config{
		Provider:    e.cfg.Provider,
		Model:       e.cfg.Model,
		MaxTokens:   e.cfg.MaxTokens,
		Temperature: a.Temperature,
		MaxTurns:    subagentMaxTurns,
		Tools:       scoped,
	}
	return toolloop.New(cfg, e.llm, e.host, e.policy, policy.NewChecker(nil), policy.NewDoomLoopDetector(), e.store, e.log)
}

func toEventPlan(p *planner.Plan) eventstore.Plan {
	steps := make([]eventstore.PlanStep, 0, len(p.Steps))
	for _, s := range p.Steps {
		steps = append(steps, eventstore.PlanStep{
			StepID: s.StepID, Title: s.Title, Intent: s.Intent, Tools: s.Tools, Files: s.Files, Done: s.Done,
		})
	}
	return eventstore.Plan{
		PlanID: p.PlanID, Version: p.Version, Goal: p.Goal, Assumptions: p.Assumptions,
		Steps: steps, Verification: p.Verification, RiskNotes: p.RiskNotes,
	}
}
