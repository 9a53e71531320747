package engine

import (
	"context"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/opencode-ai/agentcore/internal/eventstore"
	"github.com/opencode-ai/agentcore/internal/llm"
)

const titleSystemPrompt = `You are a title generator. You output ONLY a thread title. Nothing else.

Generate a brief title that would help the user find this conversation later.

Rules:
- A single line, <=50 characters
- No explanations
- Use -ing verbs for actions (Debugging, Implementing, Analyzing)
- Keep exact: technical terms, numbers, filenames
- Remove: the, this, my, a, an`

const maxTitleLength = 100

// maybeTitle generates and records a session title from the first user
// message, once, when the caller has not already chosen one. Title
// generation failures are swallowed: a missing title is never fatal.
func (e *Engine) maybeTitle(ctx context.Context, sessionID, userContent string) {
	proj, err := e.store.LoadSession(ctx, sessionID)
	if err != nil {
		return
	}
	for _, env := range proj.Transcript {
		if env.Kind == eventstore.KindSessionTitled {
			return
		}
	}

	req := llm.ChatRequest{
		Provider:  e.cfg.Provider,
		Model:     e.cfg.Model,
		MaxTokens: 50,
		NonUrgent: true, // best-effort bookkeeping, safe to defer off-peak
		Messages: []*schema.Message{
			{Role: schema.System, Content: titleSystemPrompt},
			{Role: schema.User, Content: "Generate a title for this conversation:\n\n" + userContent},
		},
	}

	resp, offDecision, err := e.llm.CompleteWithCache(ctx, req)
	if err != nil || resp.Message == nil {
		return
	}
	if offDecision != nil && offDecision.Deferred {
		e.appendEvent(ctx, sessionID, eventstore.KindOffPeakScheduled, eventstore.OffPeakScheduledData{
			Reason: offDecision.Reason, NextWindowAt: offDecision.NextWindowAt,
		})
	}
	if resp.CacheHit {
		e.appendEvent(ctx, sessionID, eventstore.KindPromptCacheHit, eventstore.PromptCacheHitData{CacheKey: resp.CacheKey})
	}

	title := firstNonEmptyLine(resp.Message.Content)
	if title == "" {
		return
	}
	if len(title) > maxTitleLength {
		title = title[:maxTitleLength-3] + "..."
	}

	e.appendEvent(ctx, sessionID, eventstore.KindSessionTitled, eventstore.SessionTitledData{Title: title})
}

func firstNonEmptyLine(s string) string {
	for _, line := range strings.Split(strings.TrimSpace(s), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			return line
		}
	}
	return ""
}
