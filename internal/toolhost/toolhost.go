// Package toolhost implements the tool host (C3): the two-phase
// propose/execute contract every tool family goes through, plus the
// built-in fs/git/bash/web/index/meta tool families.
package toolhost

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/opencode-ai/agentcore/internal/policy"
)

// Call is the structured request for a tool invocation, mirroring
// eventstore.ToolCall.
type Call struct {
	Name             string         `json:"name"`
	Args             map[string]any `json:"args"`
	RequiresApproval bool           `json:"requiresApproval"`
}

func (c Call) ToolName() string    { return c.Name }
func (c Call) NeedsApproval() bool { return c.RequiresApproval }

var _ policy.ToolCall = Call{}

// Proposal is the output of propose(): a Call with an assigned invocation
// id and the policy engine's approval verdict.
type Proposal struct {
	Call
	InvocationID string `json:"invocationID"`
	Approved     bool   `json:"approved"`
	DenyReason   string `json:"denyReason,omitempty"`
}

// Result is the output of execute(): structured per tool family.
type Result struct {
	InvocationID string `json:"invocationID"`
	Success      bool   `json:"success"`
	Output       any    `json:"output"`
	DurationMS   int64  `json:"durationMS"`
	TimedOut     bool   `json:"timedOut,omitempty"`
}

// ShellOutput is Result.Output's shape for bash.run.
type ShellOutput struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	Status   int    `json:"status"`
	TimedOut bool   `json:"timedOut"`
}

// SearchOutput is Result.Output's shape for search-like tools
// (fs.grep, web.search, index.query).
type SearchOutput struct {
	Results []SearchHit `json:"results"`
}

type SearchHit struct {
	Path    string `json:"path,omitempty"`
	Line    int    `json:"line,omitempty"`
	Snippet string `json:"snippet"`
	URL     string `json:"url,omitempty"`
}

// Context carries the per-invocation execution environment into a Handler.
type Context struct {
	SessionID string
	WorkDir   string
	AbortCh   <-chan struct{}
}

func (c *Context) Aborted() bool {
	select {
	case <-c.AbortCh:
		return true
	default:
		return false
	}
}

// Handler implements one tool family's propose+execute pair. Propose must
// never perform a side effect; it only validates and may reject via the
// policy engine.
type Handler interface {
	Name() string
	Propose(ctx context.Context, call Call, policyEngine *policy.Engine) (approved bool, denyReason string, err error)
	Execute(ctx context.Context, call Call, toolCtx *Context) (*Result, error)
}

// Host routes calls to registered Handlers and assigns deterministic,
// monotonically-increasing invocation ids.
type Host struct {
	handlers map[string]Handler
	counter  uint64
}

// NewHost creates an empty Host; register Handlers with Register.
func NewHost() *Host {
	return &Host{handlers: make(map[string]Handler)}
}

func (h *Host) Register(handler Handler) {
	h.handlers[handler.Name()] = handler
}

func (h *Host) Lookup(name string) (Handler, bool) {
	handler, ok := h.handlers[name]
	return handler, ok
}

// nextInvocationID assigns a deterministic id: the host's call counter is
// packed into the ulid's entropy bits with a fixed timestamp, so replaying
// the same call sequence through a fresh Host produces the same ids
// rather than the random, time-seeded ones ulid.Make would give.
func (h *Host) nextInvocationID() string {
	h.counter++
	var entropy [10]byte
	binary.BigEndian.PutUint64(entropy[2:], h.counter)
	id := ulid.ULID{}
	id.SetTime(0)
	id.SetEntropy(entropy[:])
	return id.String()
}

// Propose runs the two-phase contract's first phase: assign an invocation
// id, consult the policy engine, and set Approved accordingly. It never
// calls Handler.Execute.
func (h *Host) Propose(ctx context.Context, call Call, policyEngine *policy.Engine) (Proposal, error) {
	prop := Proposal{
		Call:         call,
		InvocationID: h.nextInvocationID(),
	}

	handler, ok := h.handlers[call.Name]
	if !ok {
		prop.Approved = false
		prop.DenyReason = "unknown tool: " + call.Name
		return prop, nil
	}

	approved, reason, err := handler.Propose(ctx, call, policyEngine)
	if err != nil {
		return Proposal{}, err
	}
	prop.Approved = approved
	prop.DenyReason = reason
	return prop, nil
}

// Execute runs the two-phase contract's second phase. Callers must only
// invoke this after the proposal's Approved flag has been confirmed (or
// flipped to true) by the approval flow.
func (h *Host) Execute(ctx context.Context, prop Proposal, toolCtx *Context) (*Result, error) {
	handler, ok := h.handlers[prop.Name]
	if !ok {
		return &Result{InvocationID: prop.InvocationID, Success: false, Output: "unknown tool: " + prop.Name}, nil
	}

	start := time.Now()
	result, err := handler.Execute(ctx, prop.Call, toolCtx)
	if err != nil {
		return nil, err
	}
	result.InvocationID = prop.InvocationID
	result.DurationMS = time.Since(start).Milliseconds()
	return result, nil
}

// marshalArgs is a small helper handlers use to decode Call.Args into a
// typed input struct.
func marshalArgs(args map[string]any, out any) error {
	buf, err := json.Marshal(args)
	if err != nil {
		return err
	}
	return json.Unmarshal(buf, out)
}
