package toolhost

import (
	"context"

	"github.com/opencode-ai/agentcore/internal/eventstore"
	"github.com/opencode-ai/agentcore/internal/policy"
)

// TodoStore persists a session's working task list. The engine (C9)
// supplies the concrete implementation so toolhost stays independent of
// the event store's append/projection machinery.
type TodoStore interface {
	Get(ctx context.Context, sessionID string) ([]eventstore.TodoItem, error)
	Set(ctx context.Context, sessionID string, items []eventstore.TodoItem) error
}

// taskReadHandler implements task.read: returns the session's current
// todo list without side effects.
type taskReadHandler struct {
	store TodoStore
}

func (h *taskReadHandler) Name() string { return "task.read" }

func (h *taskReadHandler) Propose(ctx context.Context, call Call, pe *policy.Engine) (bool, string, error) {
	return true, "", nil
}

func (h *taskReadHandler) Execute(ctx context.Context, call Call, toolCtx *Context) (*Result, error) {
	if h.store == nil {
		return &Result{Success: true, Output: []eventstore.TodoItem{}}, nil
	}
	items, err := h.store.Get(ctx, toolCtx.SessionID)
	if err != nil {
		return &Result{Success: false, Output: err.Error()}, nil
	}
	return &Result{Success: true, Output: items}, nil
}

// taskWriteHandler implements task.write: replaces the session's todo
// list wholesale, mirroring the teacher's UpdateTodos semantics.
type taskWriteHandler struct {
	store TodoStore
}

func (h *taskWriteHandler) Name() string { return "task.write" }

func (h *taskWriteHandler) Propose(ctx context.Context, call Call, pe *policy.Engine) (bool, string, error) {
	return true, "", nil
}

func (h *taskWriteHandler) Execute(ctx context.Context, call Call, toolCtx *Context) (*Result, error) {
	var in struct {
		Items []eventstore.TodoItem `json:"items"`
	}
	if err := marshalArgs(call.Args, &in); err != nil {
		return nil, err
	}
	if h.store == nil {
		return &Result{Success: false, Output: "no todo store configured"}, nil
	}
	if err := h.store.Set(ctx, toolCtx.SessionID, in.Items); err != nil {
		return &Result{Success: false, Output: err.Error()}, nil
	}
	return &Result{Success: true, Output: in.Items}, nil
}
