package planner

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/schema"
	"github.com/oklog/ulid/v2"

	"github.com/opencode-ai/agentcore/internal/llm"
)

// Completer is the subset of llm.Client the planner calls through; kept
// as an interface so tests can stub it without a real provider registry.
type Completer interface {
	Complete(ctx context.Context, req llm.ChatRequest, prompt string) (*llm.ChatResponse, error)
}

// VerificationDefaulter supplies the workspace's language-idiomatic
// format-check and test commands when the LLM's plan omits verification
// steps entirely.
type VerificationDefaulter interface {
	DefaultVerification() []string
}

// Planner generates and revises Plans.
type Planner struct {
	llm     Completer
	verify  VerificationDefaulter
	request llm.ChatRequest // provider/model/temperature template for plan calls
}

func New(completer Completer, verify VerificationDefaulter, reqTemplate llm.ChatRequest) *Planner {
	return &Planner{llm: completer, verify: verify, request: reqTemplate}
}

const planPromptTemplate = `You are generating a structured work plan. Respond with a single JSON object
with fields {goal, assumptions, steps:[{title, intent, tools, files}], verification, risk_notes}.
Do not include any text outside the JSON object.

Task:
%s`

// Generate asks the LLM for a plan and normalizes it. A nil Plan (no
// error) means the LLM response contained no extractable JSON object.
func (p *Planner) Generate(ctx context.Context, prompt string, messages []*schema.Message) (*Plan, error) {
	full := fmt.Sprintf(planPromptTemplate, prompt)

	resp, err := p.llm.Complete(ctx, p.request, full)
	if err != nil {
		return nil, err
	}
	if resp.Message == nil {
		return nil, nil
	}

	raw, ok := extractJSONObject(resp.Message.Content)
	if !ok {
		return nil, nil
	}

	var rp rawPlan
	if err := json.Unmarshal([]byte(raw), &rp); err != nil {
		return nil, fmt.Errorf("parse plan JSON: %w", err)
	}

	return p.build(rp, 1), nil
}

// Revise asks the LLM for a revised plan anchored on prev, incrementing
// version and describing the failure that triggered the revision.
func (p *Planner) Revise(ctx context.Context, prev *Plan, failureStreak int, failureDetail string) (*Plan, error) {
	prevJSON, err := json.Marshal(prev)
	if err != nil {
		return nil, err
	}

	full := fmt.Sprintf(
		"The previous plan failed %d time(s). Failure detail: %s\n\nPrevious plan:\n%s\n\n"+planPromptTemplate,
		failureStreak, failureDetail, string(prevJSON), "revise the plan above to address the failure",
	)

	resp, err := p.llm.Complete(ctx, p.request, full)
	if err != nil {
		return nil, err
	}
	if resp.Message == nil {
		return nil, nil
	}

	raw, ok := extractJSONObject(resp.Message.Content)
	if !ok {
		return nil, nil
	}

	var rp rawPlan
	if err := json.Unmarshal([]byte(raw), &rp); err != nil {
		return nil, fmt.Errorf("parse revised plan JSON: %w", err)
	}

	revised := p.build(rp, prev.Version+1)
	revised.PlanID = prev.PlanID
	return revised, nil
}

// build normalizes a rawPlan into a Plan: intent inference, tool
// defaulting, alias normalization, step dropping, step cap, and
// verification fallback.
func (p *Planner) build(rp rawPlan, version int) *Plan {
	plan := &Plan{
		PlanID:       ulid.Make().String(),
		Version:      version,
		Goal:         rp.Goal,
		Assumptions:  rp.Assumptions,
		Verification: rp.Verification,
		RiskNotes:    rp.RiskNotes,
	}

	for _, rs := range rp.Steps {
		if len(plan.Steps) >= maxSteps {
			break
		}
		if rs.Title == "" {
			continue
		}

		tools := make([]string, 0, len(rs.Tools))
		for _, t := range rs.Tools {
			tools = append(tools, normalizeToolName(t))
		}
		tools = dedupe(tools)

		intent := rs.Intent
		if intent == "" {
			intent = inferIntent(rs.Title, tools)
		}
		if len(tools) == 0 {
			tools = defaultToolsForIntent(intent)
		}
		if len(tools) == 0 {
			continue
		}

		plan.Steps = append(plan.Steps, Step{
			StepID: ulid.Make().String(),
			Title:  rs.Title,
			Intent: intent,
			Tools:  tools,
			Files:  dedupe(rs.Files),
		})
	}

	if len(plan.Verification) == 0 && p.verify != nil {
		plan.Verification = p.verify.DefaultVerification()
	}

	return plan
}
