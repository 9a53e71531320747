package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/opencode-ai/agentcore/internal/eventstore"
	"github.com/opencode-ai/agentcore/internal/llm"
	"github.com/opencode-ai/agentcore/internal/storage"
)

// These constants mirror the teacher's session compaction defaults:
// summarize everything but the most recent messages once a session's
// transcript grows past a threshold count, rather than a true token count
// (the event store does not track per-message token usage).
const (
	minMessagesToKeep = 4
	summaryMaxTokens  = 2000
	compactionTrigger = 40 // turn count past which a session is compacted
)

// priorMessages rebuilds a session's chat history as schema.Message values
// for use as a new loop run's InitialMessages, compacting the oldest
// messages into one summary turn if the transcript has grown long.
func (e *Engine) priorMessages(ctx context.Context, sessionID string) []*schema.Message {
	proj, err := e.store.LoadSession(ctx, sessionID)
	if err != nil {
		if err != storage.ErrNotFound {
			e.log.Warn().Err(err).Msg("failed to load session for history replay")
		}
		return nil
	}

	turns := proj.ChatMessages
	if len(turns) <= compactionTrigger {
		return turnsToMessages(turns)
	}

	toCompact := turns[:len(turns)-minMessagesToKeep]
	kept := turns[len(turns)-minMessagesToKeep:]

	summary, err := e.summarize(ctx, sessionID, toCompact)
	if err != nil {
		e.log.Warn().Err(err).Msg("compaction summary failed, continuing with full history")
		return turnsToMessages(turns)
	}

	e.appendEvent(ctx, sessionID, eventstore.KindContextCompacted, eventstore.ContextCompactedData{
		DroppedMessages: len(toCompact),
		Summary:         summary,
	})

	messages := []*schema.Message{{Role: schema.System, Content: "Summary of earlier conversation:\n" + summary}}
	return append(messages, turnsToMessages(kept)...)
}

func (e *Engine) summarize(ctx context.Context, sessionID string, turns []eventstore.TurnAddedData) (string, error) {
	var transcript strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&transcript, "%s: %s\n", t.Role, t.Content)
	}

	req := llm.ChatRequest{
		Provider:  e.cfg.Provider,
		Model:     e.cfg.Model,
		MaxTokens: summaryMaxTokens,
		Messages: []*schema.Message{
			{Role: schema.System, Content: "You are a conversation summarizer. Create a concise summary of the conversation that preserves key context for continuing the discussion."},
			{Role: schema.User, Content: transcript.String()},
		},
	}

	resp, offDecision, err := e.llm.CompleteWithCache(ctx, req)
	if err != nil {
		return "", err
	}
	if offDecision != nil && offDecision.Deferred {
		e.appendEvent(ctx, sessionID, eventstore.KindOffPeakScheduled, eventstore.OffPeakScheduledData{
			Reason: offDecision.Reason, NextWindowAt: offDecision.NextWindowAt,
		})
	}
	if resp.CacheHit {
		e.appendEvent(ctx, sessionID, eventstore.KindPromptCacheHit, eventstore.PromptCacheHitData{CacheKey: resp.CacheKey})
	}
	if resp.Message == nil {
		return "", fmt.Errorf("compaction call returned no message")
	}
	return resp.Message.Content, nil
}

func turnsToMessages(turns []eventstore.TurnAddedData) []*schema.Message {
	out := make([]*schema.Message, 0, len(turns))
	for _, t := range turns {
		role := schema.User
		if t.Role == "assistant" {
			role = schema.Assistant
		}
		out = append(out, &schema.Message{Role: role, Content: t.Content})
	}
	return out
}
