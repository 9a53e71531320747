package policy

import (
	"context"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/opencode-ai/agentcore/internal/apperror"
)

// ApprovalRequest describes a pending approval prompt for a single proposed
// tool call.
type ApprovalRequest struct {
	ID        string
	SessionID string
	ToolName  string
	CallID    string
	Title     string
	Pattern   []string // bash wildcard patterns this call matches, if any
}

// ApprovalResponse is the resolution of an ApprovalRequest.
type ApprovalResponse struct {
	RequestID string
	Action    string // "once" | "always" | "reject"
}

// OnApprovalRequired is invoked whenever Checker.Ask blocks on a new
// request, so a caller (CLI prompt, server SSE stream) can surface it.
type OnApprovalRequired func(ApprovalRequest)

// Checker drives the approval flow: asking, remembering "always" decisions
// per session, and unblocking pending asks when a response arrives.
type Checker struct {
	mu       sync.RWMutex
	approved map[string]map[string]bool // sessionID -> toolName -> approved
	patterns map[string]map[string]bool // sessionID -> pattern -> approved
	pending  map[string]chan ApprovalResponse

	onRequired OnApprovalRequired
}

// NewChecker creates an empty Checker. onRequired may be nil.
func NewChecker(onRequired OnApprovalRequired) *Checker {
	return &Checker{
		approved:   make(map[string]map[string]bool),
		patterns:   make(map[string]map[string]bool),
		pending:    make(map[string]chan ApprovalResponse),
		onRequired: onRequired,
	}
}

// Ask blocks until the request is resolved, the context is cancelled, or a
// prior "always" decision already covers it.
func (c *Checker) Ask(ctx context.Context, req ApprovalRequest) error {
	if c.alreadyApproved(req) {
		return nil
	}

	if req.ID == "" {
		req.ID = ulid.Make().String()
	}

	respCh := make(chan ApprovalResponse, 1)
	c.mu.Lock()
	c.pending[req.ID] = respCh
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
	}()

	if c.onRequired != nil {
		c.onRequired(req)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case resp := <-respCh:
		switch resp.Action {
		case "once":
			return nil
		case "always":
			c.remember(req.SessionID, req.ToolName, req.Pattern)
			return nil
		default:
			return apperror.New(apperror.KindApprovalDenied, "approval denied for "+req.ToolName)
		}
	}
}

func (c *Checker) alreadyApproved(req ApprovalRequest) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if tools, ok := c.approved[req.SessionID]; ok && tools[req.ToolName] {
		return true
	}
	if len(req.Pattern) == 0 {
		return false
	}
	patterns, ok := c.patterns[req.SessionID]
	if !ok {
		return false
	}
	for _, p := range req.Pattern {
		if !patterns[p] {
			return false
		}
	}
	return true
}

func (c *Checker) remember(sessionID, toolName string, patterns []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.approved[sessionID] == nil {
		c.approved[sessionID] = make(map[string]bool)
	}
	c.approved[sessionID][toolName] = true

	if len(patterns) == 0 {
		return
	}
	if c.patterns[sessionID] == nil {
		c.patterns[sessionID] = make(map[string]bool)
	}
	for _, p := range patterns {
		c.patterns[sessionID][p] = true
	}
}

// Respond resolves a pending request. Unknown request ids are ignored
// (the asker may have already given up via context cancellation).
func (c *Checker) Respond(requestID string, action string) {
	c.mu.RLock()
	ch, ok := c.pending[requestID]
	c.mu.RUnlock()
	if ok {
		ch <- ApprovalResponse{RequestID: requestID, Action: action}
	}
}

// ClearSession drops every remembered decision for a session.
func (c *Checker) ClearSession(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.approved, sessionID)
	delete(c.patterns, sessionID)
}
