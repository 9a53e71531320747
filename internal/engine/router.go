package engine

import (
	"context"

	"github.com/oklog/ulid/v2"

	"github.com/opencode-ai/agentcore/internal/eventstore"
	"github.com/opencode-ai/agentcore/internal/router"
)

// routeModel asks the router for a model decision given a session's current
// signals and records it as a RouterDecision event; the zero Signals value
// is a reasonable default for a session with no prior turns.
func (e *Engine) routeModel(ctx context.Context, sessionID string, unit router.Unit, s router.Signals) string {
	if e.router == nil {
		return e.cfg.Model
	}
	d := e.router.Select(unit, s)
	e.appendEvent(ctx, sessionID, eventstore.KindRouterDecision, eventstore.RouterDecisionData{
		DecisionID:    ulid.Make().String(),
		SelectedModel: d.SelectedModel,
		Score:         d.Score,
		Confidence:    d.Confidence,
		ReasonCodes:   d.ReasonCodes,
		Escalated:     d.Escalated,
	})
	return d.SelectedModel
}

// routeRevisionModel is routeModel plus the failure-streak escalation rule
// used for a plan revision after a failed verification pass.
func (e *Engine) routeRevisionModel(ctx context.Context, sessionID string, s router.Signals, failureStreak int) string {
	if e.router == nil {
		return e.cfg.Model
	}
	d := e.router.SelectForRevision(router.UnitPlanner, s, failureStreak)
	e.appendEvent(ctx, sessionID, eventstore.KindRouterDecision, eventstore.RouterDecisionData{
		DecisionID:    ulid.Make().String(),
		SelectedModel: d.SelectedModel,
		Score:         d.Score,
		Confidence:    d.Confidence,
		ReasonCodes:   d.ReasonCodes,
		Escalated:     d.Escalated,
	})
	if d.Escalated {
		e.appendEvent(ctx, sessionID, eventstore.KindRouterEscalation, eventstore.RouterEscalationData{
			Unit: string(router.UnitPlanner), Retries: failureStreak,
		})
	}
	return d.SelectedModel
}

// sessionSignals derives router signals from what the event store already
// knows about a session: how many tool calls have failed in a row is the
// only live per-turn signal available before the loop itself runs, so the
// remaining signals are left at their zero value (no observed evidence of
// extra complexity) rather than guessed.
func sessionSignals(proj *eventstore.Projection) router.Signals {
	streak := 0
scan:
	for i := len(proj.Transcript) - 1; i >= 0; i-- {
		switch d := proj.Transcript[i].Data.(type) {
		case eventstore.ToolResultData:
			if d.Result.Success {
				break scan
			}
			streak++
		case eventstore.ToolDeniedData:
			streak++
		}
	}
	var f float64
	if streak > 0 {
		f = 1
	}
	return router.Signals{FailureStreak: f}
}
