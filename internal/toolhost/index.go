package toolhost

import (
	"context"

	"github.com/opencode-ai/agentcore/internal/policy"
)

// Retriever is the pluggable backend behind index.query and the tool-use
// loop's per-turn retrieval step (spec §4.8 step 1). A workspace without a
// configured index (no embedding store, no ctags db) gets a NullRetriever.
type Retriever interface {
	Query(ctx context.Context, query string, topK int) ([]SearchHit, error)
}

// NullRetriever always returns no results, for workspaces without an index
// configured.
type NullRetriever struct{}

func (NullRetriever) Query(ctx context.Context, query string, topK int) ([]SearchHit, error) {
	return nil, nil
}

// indexQueryHandler implements index.query by delegating to a Retriever.
type indexQueryHandler struct {
	retriever Retriever
}

func newIndexQueryHandler(r Retriever) *indexQueryHandler {
	if r == nil {
		r = NullRetriever{}
	}
	return &indexQueryHandler{retriever: r}
}

func (h *indexQueryHandler) Name() string { return "index.query" }

func (h *indexQueryHandler) Propose(ctx context.Context, call Call, pe *policy.Engine) (bool, string, error) {
	return true, "", nil
}

func (h *indexQueryHandler) Execute(ctx context.Context, call Call, toolCtx *Context) (*Result, error) {
	var in struct {
		Query string `json:"query"`
		TopK  int    `json:"topK"`
	}
	if err := marshalArgs(call.Args, &in); err != nil {
		return nil, err
	}
	if in.TopK <= 0 {
		in.TopK = 5
	}
	hits, err := h.retriever.Query(ctx, in.Query, in.TopK)
	if err != nil {
		return &Result{Success: false, Output: err.Error()}, nil
	}
	return &Result{Success: true, Output: SearchOutput{Results: hits}}, nil
}
