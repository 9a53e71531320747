package toolhost

import (
	"context"

	"github.com/opencode-ai/agentcore/internal/patchstore"
	"github.com/opencode-ai/agentcore/internal/policy"
)

type patchStageHandler struct {
	store *patchstore.Store
	nowFn func() int64
}

func (h *patchStageHandler) Name() string { return "patch.stage" }

func (h *patchStageHandler) Propose(ctx context.Context, call Call, pe *policy.Engine) (bool, string, error) {
	return true, "", nil // staging performs no side effect
}

func (h *patchStageHandler) Execute(ctx context.Context, call Call, toolCtx *Context) (*Result, error) {
	var in struct {
		Diff            string   `json:"diff"`
		DeclaredTargets []string `json:"declaredTargetFiles"`
	}
	if err := marshalArgs(call.Args, &in); err != nil {
		return nil, err
	}
	staged, err := h.store.Stage(in.Diff, in.DeclaredTargets, h.nowFn())
	if err != nil {
		return &Result{Success: false, Output: err.Error()}, nil
	}
	return &Result{Success: true, Output: staged}, nil
}

type patchApplyHandler struct {
	store *patchstore.Store
}

func (h *patchApplyHandler) Name() string { return "patch.apply" }

func (h *patchApplyHandler) Propose(ctx context.Context, call Call, pe *policy.Engine) (bool, string, error) {
	return false, "", nil // patch.apply mutates files, always requires approval
}

func (h *patchApplyHandler) Execute(ctx context.Context, call Call, toolCtx *Context) (*Result, error) {
	var in struct {
		PatchID string `json:"patchID"`
	}
	if err := marshalArgs(call.Args, &in); err != nil {
		return nil, err
	}
	applied, conflicts, err := h.store.Apply(toolCtx.WorkDir, in.PatchID)
	if err != nil {
		return &Result{Success: false, Output: err.Error()}, nil
	}
	if !applied {
		return &Result{Success: false, Output: map[string]any{"conflicts": conflicts}}, nil
	}
	return &Result{Success: true, Output: "patch applied"}, nil
}
