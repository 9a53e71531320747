package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/opencode-ai/agentcore/internal/mcp"
)

// MCPResourceReader adapts internal/mcp.Client to the engine's
// ResourceReader seam, concatenating every returned content block's text.
type MCPResourceReader struct {
	client *mcp.Client
}

func NewMCPResourceReader(client *mcp.Client) *MCPResourceReader {
	return &MCPResourceReader{client: client}
}

func (a *MCPResourceReader) ReadResource(ctx context.Context, uri string) (*ResourceContent, error) {
	resp, err := a.client.ReadResource(ctx, uri)
	if err != nil {
		return nil, err
	}
	if len(resp.Contents) == 0 {
		return nil, fmt.Errorf("resource %s returned no content", uri)
	}

	var texts []string
	for _, c := range resp.Contents {
		if c.Text != "" {
			texts = append(texts, c.Text)
		}
	}
	return &ResourceContent{Text: strings.Join(texts, "\n")}, nil
}
