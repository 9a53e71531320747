package llm

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"github.com/opencode-ai/agentcore/internal/apperror"
	"github.com/opencode-ai/agentcore/internal/provider"
)

// Client is the C5 façade over the provider registry: it dispatches
// chat-completion calls, retries transient failures with backoff, and
// composes the cache and off-peak gate around the remote call.
type Client struct {
	registry *provider.Registry
	cache    *Cache
	offpeak  *OffPeakScheduler
	log      zerolog.Logger
	retry    func() backoff.BackOff
}

// NewClient wires a Client against a provider registry. cache and offpeak
// may be nil, in which case complete_with_cache degrades to a plain call.
func NewClient(registry *provider.Registry, cache *Cache, offpeak *OffPeakScheduler, log zerolog.Logger) *Client {
	return &Client{
		registry: registry,
		cache:    cache,
		offpeak:  offpeak,
		log:      log.With().Str("component", "llm").Logger(),
		retry: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.MaxElapsedTime = 30 * time.Second
			return backoff.WithMaxRetries(b, 3)
		},
	}
}

// CompleteChat performs a single unary chat completion: the full response
// message is assembled from the provider's stream before returning.
func (c *Client) CompleteChat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	return c.CompleteChatStreaming(ctx, req, nil)
}

// CompleteChatStreaming performs a chat completion, invoking onToken for
// every text delta as it arrives when onToken is non-nil.
func (c *Client) CompleteChatStreaming(ctx context.Context, req ChatRequest, onToken func(string)) (*ChatResponse, error) {
	start := time.Now()

	p, err := c.registry.Get(req.Provider)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindLlmCallFailed, "unknown provider "+req.Provider, err)
	}

	var resp *ChatResponse
	op := func() error {
		stream, err := p.CreateCompletion(ctx, &provider.CompletionRequest{
			Model:       req.Model,
			Messages:    req.Messages,
			Tools:       req.Tools,
			MaxTokens:   req.MaxTokens,
			Temperature: req.Temperature,
		})
		if err != nil {
			return err
		}
		defer stream.Close()

		msg, usage, err := drainStream(stream, onToken)
		if err != nil {
			return err
		}
		resp = &ChatResponse{Message: msg, Usage: usage}
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(c.retry(), ctx)); err != nil {
		return nil, apperror.Wrap(apperror.KindLlmCallFailed, "completion call failed", err)
	}

	resp.DurationMS = time.Since(start).Milliseconds()
	return resp, nil
}

// Complete is complete_chat's single-prompt convenience form: prompt is
// wrapped as the sole user message.
func (c *Client) Complete(ctx context.Context, req ChatRequest, prompt string) (*ChatResponse, error) {
	req.Messages = []*schema.Message{{Role: schema.User, Content: prompt}}
	return c.CompleteChat(ctx, req)
}

// CompleteStreaming is Complete's streaming form.
func (c *Client) CompleteStreaming(ctx context.Context, req ChatRequest, prompt string, onToken func(string)) (*ChatResponse, error) {
	req.Messages = []*schema.Message{{Role: schema.User, Content: prompt}}
	return c.CompleteChatStreaming(ctx, req, onToken)
}

// CompleteWithCache is the entrypoint every real turn drives the LLM
// through: the four-step cache-aware wrapper (off-peak gate, cache probe,
// remote call, cache write).
func (c *Client) CompleteWithCache(ctx context.Context, req ChatRequest) (*ChatResponse, *OffPeakDecision, error) {
	return c.completeWithCache(ctx, req, nil, nil)
}

// completeWithCache is CompleteWithCache's injectable form: onToken supports
// streaming callers and sleepFn lets tests avoid a real sleep.
func (c *Client) completeWithCache(ctx context.Context, req ChatRequest, onToken func(string), sleepFn func(time.Duration)) (*ChatResponse, *OffPeakDecision, error) {
	var offDecision *OffPeakDecision
	if c.offpeak != nil {
		d := c.offpeak.Evaluate(time.Now(), req.NonUrgent)
		offDecision = &d
		if d.Deferred && d.WaitSeconds > 0 {
			c.log.Info().Int("waitSeconds", d.WaitSeconds).Str("reason", d.Reason).Msg("deferring llm call for off-peak window")
			if sleepFn == nil {
				sleepFn = time.Sleep
			}
			sleepFn(time.Duration(d.WaitSeconds) * time.Second)
		}
	}

	prompt := canonicalPrompt(req.Messages)
	key := CacheKey(req.Provider, req.Model, prompt)

	if c.cache != nil {
		if cached, ok := c.cache.Get(ctx, key); ok {
			cached.CacheHit = true
			cached.CacheKey = key
			return cached, offDecision, nil
		}
	}

	resp, err := c.CompleteChatStreaming(ctx, req, onToken)
	if err != nil {
		return nil, offDecision, err
	}
	resp.CacheKey = key

	if c.cache != nil {
		if err := c.cache.Put(ctx, key, resp); err != nil {
			c.log.Warn().Err(err).Msg("failed to write prompt cache entry")
		}
	}

	return resp, offDecision, nil
}

func drainStream(stream *provider.CompletionStream, onToken func(string)) (*schema.Message, Usage, error) {
	var content string
	var toolCalls []schema.ToolCall
	var usage Usage
	role := schema.Assistant

	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, usage, err
		}
		if chunk == nil {
			continue
		}
		if chunk.Content != "" {
			content += chunk.Content
			if onToken != nil {
				onToken(chunk.Content)
			}
		}
		if len(chunk.ToolCalls) > 0 {
			toolCalls = append(toolCalls, chunk.ToolCalls...)
		}
		if chunk.ResponseMeta != nil && chunk.ResponseMeta.Usage != nil {
			usage.InputTokens = chunk.ResponseMeta.Usage.PromptTokens
			usage.OutputTokens = chunk.ResponseMeta.Usage.CompletionTokens
		}
	}

	return &schema.Message{Role: role, Content: content, ToolCalls: toolCalls}, usage, nil
}

// canonicalPrompt renders a message slice deterministically for the
// prompt-cache key, concatenating role and content so that two requests
// whose messages have identical roles and content share a cache key.
func canonicalPrompt(messages []*schema.Message) string {
	var out string
	for _, m := range messages {
		out += fmt.Sprintf("%s:%s\n", m.Role, m.Content)
	}
	return out
}
