package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// ResourceReader fetches one MCP resource's text content given its
// mcp://server/uri form (see mcpURI).
type ResourceReader interface {
	ReadResource(ctx context.Context, uri string) (*ResourceContent, error)
}

// ResourceContent is the minimal shape the resolver needs back from a read.
type ResourceContent struct {
	Text string
}

// ResourceResolver substitutes @server:uri tokens in a user prompt with the
// referenced resource's content, wrapped so the model can tell injected
// context apart from the user's own words.
type ResourceResolver struct {
	reader ResourceReader
	sink   TelemetrySink
	log    zerolog.Logger
}

func NewResourceResolver(reader ResourceReader, sink TelemetrySink, log zerolog.Logger) *ResourceResolver {
	return &ResourceResolver{reader: reader, sink: sink, log: log.With().Str("component", "resources").Logger()}
}

// Resolve scans prompt for @server:uri tokens and inlines each one it can
// read, emitting a success/failure telemetry event per reference. Tokens
// that fail to resolve are left untouched in the prompt.
func (r *ResourceResolver) Resolve(ctx context.Context, sessionID, prompt string) string {
	if r.reader == nil {
		return prompt
	}

	fields := strings.Fields(prompt)
	var out strings.Builder
	for i, tok := range fields {
		if i > 0 {
			out.WriteByte(' ')
		}
		ref, ok := resourceToken(tok)
		if !ok {
			out.WriteString(tok)
			continue
		}

		content, err := r.reader.ReadResource(ctx, mcpURI(ref))
		if err != nil {
			r.record(ctx, sessionID, ref, false, err.Error())
			out.WriteString(tok)
			continue
		}
		r.record(ctx, sessionID, ref, true, "")
		out.WriteString(fmt.Sprintf("[resource: %s]\n%s\n[/resource]", ref, strings.TrimSpace(content.Text)))
	}
	return out.String()
}

// resourceToken reports whether tok is an @server:uri reference: it must
// start with '@', contain a ':' after the '@', and that colon-prefixed
// remainder must not itself start with '/' (which would make it look like
// an absolute-path-flavored token rather than a server:uri pair).
func resourceToken(tok string) (string, bool) {
	if len(tok) <= 2 || tok[0] != '@' {
		return "", false
	}
	rest := tok[1:]
	if !strings.Contains(rest, ":") || strings.HasPrefix(rest, "/") {
		return "", false
	}
	return rest, true
}

// mcpURI translates a server:uri reference into the mcp://server/uri form
// internal/mcp.Client.ReadResource expects.
func mcpURI(ref string) string {
	parts := strings.SplitN(ref, ":", 2)
	return fmt.Sprintf("mcp://%s/%s", parts[0], parts[1])
}

func (r *ResourceResolver) record(ctx context.Context, sessionID, ref string, success bool, errMsg string) {
	if r.sink == nil {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	fields := map[string]any{"sessionID": sessionID, "reference": ref, "status": status}
	if errMsg != "" {
		fields["error"] = errMsg
	}
	r.sink.Record(ctx, "mcp.resource_resolve", fields)
}
