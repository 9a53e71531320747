package toolhost

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/opencode-ai/agentcore/internal/mcp"
	"github.com/opencode-ai/agentcore/internal/policy"
)

// mcpToolHandler adapts a single tool on a connected MCP server into a
// Handler, named per the mcp__<server>__<tool> convention. Propose defers to
// the same approval policy as any other tool family; MCP tools declare no
// read/write distinction of their own, so they require approval unless the
// server is explicitly listed as read-only by the caller.
type mcpToolHandler struct {
	client   *mcp.Client
	server   string
	tool     string
	name     string
	schema   json.RawMessage
	readOnly bool
}

func mcpHandlerName(server, tool string) string {
	return fmt.Sprintf("mcp__%s__%s", server, tool)
}

func (h *mcpToolHandler) Name() string { return h.name }

func (h *mcpToolHandler) Propose(ctx context.Context, call Call, pe *policy.Engine) (bool, string, error) {
	if h.readOnly {
		return true, "", nil
	}
	return false, "", nil
}

func (h *mcpToolHandler) Execute(ctx context.Context, call Call, toolCtx *Context) (*Result, error) {
	raw, err := json.Marshal(call.Args)
	if err != nil {
		return nil, fmt.Errorf("marshal mcp args: %w", err)
	}
	output, err := h.client.CallTool(ctx, h.server, h.tool, raw)
	if err != nil {
		return &Result{Success: false, Output: err.Error()}, nil
	}
	return &Result{Success: true, Output: output}, nil
}

// RegisterMCPTools discovers every tool on every connected server of client
// and registers one Handler per tool onto host, named mcp__<server>__<tool>
// as spec'd for the tool host's external-tool namespace. readOnlyServers
// marks servers whose tools never mutate state (e.g. a read-only search
// index server) and so can be proposed without approval.
func RegisterMCPTools(host *Host, client *mcp.Client, readOnlyServers map[string]bool) {
	if client == nil {
		return
	}
	for server, tools := range client.ToolsByServer() {
		for _, t := range tools {
			host.Register(&mcpToolHandler{
				client:   client,
				server:   server,
				tool:     t.Name,
				name:     mcpHandlerName(server, t.Name),
				schema:   t.InputSchema,
				readOnly: readOnlyServers[server],
			})
		}
	}
}

// MCPCatalogFromClient adapts a connected mcp.Client into the MCPCatalog
// interface meta.go's mcp_search handler consumes, letting the index be
// searched by substring over name and description.
type MCPCatalogFromClient struct {
	Client *mcp.Client
}

func (c *MCPCatalogFromClient) Search(query string) []MCPDescriptor {
	var out []MCPDescriptor
	q := strings.ToLower(strings.TrimSpace(query))
	for server, tools := range c.Client.ToolsByServer() {
		for _, t := range tools {
			if q == "" || strings.Contains(strings.ToLower(t.Name), q) || strings.Contains(strings.ToLower(t.Description), q) {
				out = append(out, MCPDescriptor{
					Name:        mcpHandlerName(server, t.Name),
					Server:      server,
					Description: t.Description,
				})
			}
		}
	}
	return out
}
