// Package llm implements the LLM client, prompt cache and off-peak
// scheduler (C5): chat-completion calls over the provider registry, a
// content-addressed response cache, and a deferral gate for non-urgent
// calls outside a configured time-of-day window.
package llm

import (
	"github.com/cloudwego/eino/schema"
)

// ChatRequest is the provider-agnostic shape every complete_* operation
// takes. Provider/Model select the concrete backend via the registry;
// NonUrgent marks a call eligible for off-peak deferral.
type ChatRequest struct {
	Provider    string
	Model       string
	Messages    []*schema.Message
	Tools       []*schema.ToolInfo
	MaxTokens   int
	Temperature float64
	NonUrgent   bool
}

// Usage is per-call token accounting, folded by callers into the
// session's running UsageUpdated/CostUpdated projection.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// ChatResponse is the result of any complete_* operation.
type ChatResponse struct {
	Message    *schema.Message
	Usage      Usage
	CacheHit   bool
	CacheKey   string
	DurationMS int64
}

// OffPeakDecision reports whether a call was deferred and, if so, the
// telemetry a caller should fold into an OffPeakScheduled event.
type OffPeakDecision struct {
	Deferred     bool
	WaitSeconds  int
	Reason       string
	NextWindowAt int64
}
