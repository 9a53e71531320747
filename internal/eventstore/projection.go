package eventstore

import "fmt"

// RebuildFromEvents folds a strictly-increasing event stream into a
// Projection. It is pure and repeatable: given the same events in the same
// order it always produces the same result, which is what makes replay a
// valid basis for fork and for crash recovery.
func RebuildFromEvents(sessionID string, events []Envelope) *Projection {
	proj := &Projection{
		Session:    Session{ID: sessionID},
		StepStatus: make(map[string]bool),
	}

	for _, env := range events {
		proj.Transcript = append(proj.Transcript, env)
		proj.Session.UpdatedAt = env.Timestamp
		if proj.Session.CreatedAt == 0 {
			proj.Session.CreatedAt = env.Timestamp
		}

		switch env.Kind {
		case KindTurnAdded:
			if d, ok := env.Data.(TurnAddedData); ok {
				proj.ChatMessages = append(proj.ChatMessages, d)
			}
		case KindPlanCreated:
			if d, ok := env.Data.(PlanCreatedData); ok {
				plan := d.Plan
				proj.Plan = &plan
				proj.Session.ActivePlanID = plan.PlanID
				for _, step := range plan.Steps {
					proj.StepStatus[step.StepID] = step.Done
				}
			}
		case KindPlanRevised:
			if d, ok := env.Data.(PlanRevisedData); ok {
				plan := d.Plan
				proj.Plan = &plan
				proj.Session.ActivePlanID = plan.PlanID
				for _, step := range plan.Steps {
					proj.StepStatus[step.StepID] = step.Done
				}
			}
		case KindSessionStateChanged:
			if d, ok := env.Data.(SessionStateChangedData); ok {
				proj.Session.Status = d.To
			}
		case KindUsageUpdated:
			if d, ok := env.Data.(UsageUpdatedData); ok {
				proj.Usage.InputTokens += d.InputTokens
				proj.Usage.OutputTokens += d.OutputTokens
			}
		case KindCostUpdated:
			if d, ok := env.Data.(CostUpdatedData); ok {
				proj.CostUSD += d.DeltaUSD
			}
		case KindTodoListUpdated:
			if d, ok := env.Data.(TodoListUpdatedData); ok {
				proj.Todos = d.Items
			}
		case KindCheckpointCreated, KindToolProposed, KindToolApproved,
			KindToolDenied, KindToolResult, KindPromptCacheHit,
			KindRouterDecision, KindRouterEscalation, KindOffPeakScheduled,
			KindSessionTitled, KindContextCompacted, KindDoomLoopDetected:
			// Carried in Transcript only; no dedicated projection field.
		}
	}

	return proj
}

// ValidateReplay checks the structural invariants of §8: gap-free strictly
// increasing sequence numbers, and every ToolResult preceded by a
// ToolApproved event for the same invocation id. With strict=true the first
// violation is returned as an error; with strict=false violations are
// skipped and the function returns nil, without reporting them.
func ValidateReplay(events []Envelope, strict bool) error {
	var lastSeq uint64
	approved := make(map[string]bool)

	for i, env := range events {
		if i == 0 {
			if env.SeqNo != 1 {
				err := fmt.Errorf("replay validation failed: first event has seq %d, want 1", env.SeqNo)
				if strict {
					return err
				}
				continue
			}
		} else if env.SeqNo != lastSeq+1 {
			err := fmt.Errorf("replay validation failed: sequence gap at %d -> %d", lastSeq, env.SeqNo)
			if strict {
				return err
			}
		}
		lastSeq = env.SeqNo

		switch env.Kind {
		case KindToolApproved:
			if d, ok := env.Data.(ToolApprovedData); ok {
				approved[d.InvocationID] = true
			}
		case KindToolResult:
			if d, ok := env.Data.(ToolResultData); ok {
				if !approved[d.Result.InvocationID] {
					err := fmt.Errorf("replay validation failed: tool result %s has no prior approved proposal", d.Result.InvocationID)
					if strict {
						return err
					}
				}
			}
		}
	}

	return nil
}
