package toolhost

import (
	"github.com/opencode-ai/agentcore/internal/patchstore"
)

// Deps bundles the pluggable collaborators a default Host is wired with.
// Any field may be left zero; handlers fall back to a no-op or error
// response rather than panicking.
type Deps struct {
	Retriever Retriever
	Worker    SubagentWorker
	Asker     QuestionAsker
	Catalog   MCPCatalog
	Patches   *patchstore.Store
	Todos     TodoStore
	NowFn     func() int64
}

// NewDefaultHost registers every built-in tool family (fs.*, git.*,
// bash.run, web.*, index.query, patch.*, and the meta-tools) onto a fresh
// Host. External MCP tools are registered separately via
// RegisterMCPTools (mcp.go) once their manifest is loaded.
func NewDefaultHost(deps Deps) *Host {
	if deps.NowFn == nil {
		deps.NowFn = func() int64 { return 0 }
	}
	if deps.Patches == nil {
		deps.Patches = patchstore.New()
	}

	h := NewHost()

	h.Register(fsReadHandler{})
	h.Register(fsWriteHandler{})
	h.Register(fsEditHandler{})
	h.Register(fsListHandler{})
	h.Register(fsGlobHandler{})
	h.Register(fsGrepHandler{})

	for _, g := range gitHandlers {
		h.Register(g)
	}

	h.Register(newBashHandler())
	h.Register(newWebFetchHandler())
	h.Register(newWebSearchHandler())
	h.Register(newIndexQueryHandler(deps.Retriever))

	h.Register(&patchStageHandler{store: deps.Patches, nowFn: deps.NowFn})
	h.Register(&patchApplyHandler{store: deps.Patches})

	h.Register(&spawnTaskHandler{worker: deps.Worker})
	h.Register(&userQuestionHandler{asker: deps.Asker})
	h.Register(extendedThinkingHandler{})
	h.Register(&mcpSearchHandler{catalog: deps.Catalog})

	h.Register(&taskReadHandler{store: deps.Todos})
	h.Register(&taskWriteHandler{store: deps.Todos})

	return h
}

// SetSubagentWorker rewires spawn_task's worker after construction, for
// callers whose SubagentWorker implementation is itself built from the
// Host it must be registered onto (the engine's sub-agent runner needs a
// fully constructed engine, which needs a host).
func SetSubagentWorker(h *Host, worker SubagentWorker) {
	h.Register(&spawnTaskHandler{worker: worker})
}
