// Package eventstore implements the append-only, replayable event log that
// backs session state (C1). Every mutation to a session flows through
// AppendEvent; nothing else is allowed to write session state directly.
package eventstore

import (
	"encoding/json"
	"fmt"
)

// SessionStatus is a node in the session state machine (spec §3).
type SessionStatus string

const (
	StatusIdle             SessionStatus = "idle"
	StatusPlanning         SessionStatus = "planning"
	StatusRunning          SessionStatus = "running"
	StatusAwaitingApproval SessionStatus = "awaiting_approval"
	StatusPaused           SessionStatus = "paused"
	StatusCompleted        SessionStatus = "completed"
	StatusFailed           SessionStatus = "failed"
	StatusCancelled        SessionStatus = "cancelled"
)

// validTransitions is the declared session state graph. A transition not
// listed here is rejected with SessionStateInvalidTransition.
var validTransitions = map[SessionStatus]map[SessionStatus]bool{
	StatusIdle:             {StatusPlanning: true, StatusRunning: true, StatusCancelled: true},
	StatusPlanning:         {StatusRunning: true, StatusFailed: true, StatusCancelled: true, StatusPaused: true},
	StatusRunning:          {StatusAwaitingApproval: true, StatusPaused: true, StatusCompleted: true, StatusFailed: true, StatusCancelled: true, StatusPlanning: true},
	StatusAwaitingApproval: {StatusRunning: true, StatusCancelled: true, StatusFailed: true},
	StatusPaused:           {StatusRunning: true, StatusCancelled: true},
	StatusCompleted:        {},
	StatusFailed:           {},
	StatusCancelled:        {},
}

// CanTransition reports whether the session state machine permits from->to.
func CanTransition(from, to SessionStatus) bool {
	if from == to {
		return true
	}
	next, ok := validTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// Session is the durable projection of a workspace-bound unit of work.
type Session struct {
	ID             string        `json:"id"`
	WorkspaceRoot  string        `json:"workspaceRoot"`
	Status         SessionStatus `json:"status"`
	BaselineCommit string        `json:"baselineCommit,omitempty"`
	ActivePlanID   string        `json:"activePlanID,omitempty"`
	ParentID       string        `json:"parentID,omitempty"`
	CreatedAt      int64         `json:"createdAt"`
	UpdatedAt      int64         `json:"updatedAt"`
}

// Kind is the closed set of event variants (spec §3).
type Kind string

const (
	KindTurnAdded           Kind = "TurnAdded"
	KindToolProposed        Kind = "ToolProposed"
	KindToolApproved        Kind = "ToolApproved"
	KindToolDenied          Kind = "ToolDenied"
	KindToolResult          Kind = "ToolResult"
	KindPlanCreated         Kind = "PlanCreated"
	KindPlanRevised         Kind = "PlanRevised"
	KindCheckpointCreated   Kind = "CheckpointCreated"
	KindSessionStateChanged Kind = "SessionStateChanged"
	KindUsageUpdated        Kind = "UsageUpdated"
	KindCostUpdated         Kind = "CostUpdated"
	KindPromptCacheHit      Kind = "PromptCacheHit"
	KindRouterDecision      Kind = "RouterDecision"
	KindRouterEscalation    Kind = "RouterEscalation"
	KindOffPeakScheduled    Kind = "OffPeakScheduled"

	// Supplemented kinds (original_source features not in the closed
	// example list but needed to express them as events rather than
	// side-channel state): title generation, context compaction, and
	// doom-loop detection all mutate session-visible state and must be
	// replayable like everything else.
	KindSessionTitled          Kind = "SessionTitled"
	KindContextCompacted       Kind = "ContextCompacted"
	KindDoomLoopDetected       Kind = "DoomLoopDetected"
	KindTodoListUpdated        Kind = "TodoListUpdated"
	KindWorkspaceBranchChanged Kind = "WorkspaceBranchChanged"
)

// Envelope is the immutable, persisted event record.
type Envelope struct {
	SessionID string `json:"sessionID"`
	SeqNo     uint64 `json:"seqNo"`
	Timestamp int64  `json:"timestamp"`
	Kind      Kind   `json:"kind"`
	Data      any    `json:"data"`
}

func (e Envelope) String() string {
	return fmt.Sprintf("%s#%d %s", e.SessionID, e.SeqNo, e.Kind)
}

// Data payloads for the event kinds above. Fields mirror spec §3 exactly;
// envelope.Data holds one of these depending on Kind.
type TurnAddedData struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ToolProposedData struct {
	Proposal Proposal `json:"proposal"`
}

type ToolApprovedData struct {
	InvocationID string `json:"invocationID"`
}

type ToolDeniedData struct {
	InvocationID string `json:"invocationID"`
	Reason       string `json:"reason"`
}

type ToolResultData struct {
	Result Result `json:"result"`
}

type PlanCreatedData struct {
	Plan Plan `json:"plan"`
}

type PlanRevisedData struct {
	Plan Plan `json:"plan"`
}

type CheckpointCreatedData struct {
	CheckpointID string   `json:"checkpointID"`
	Commit       string   `json:"commit"`
	Files        []string `json:"files"`
}

type SessionStateChangedData struct {
	From SessionStatus `json:"from"`
	To   SessionStatus `json:"to"`
}

type UsageUpdatedData struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

type CostUpdatedData struct {
	DeltaUSD float64 `json:"deltaUSD"`
	TotalUSD float64 `json:"totalUSD"`
}

type PromptCacheHitData struct {
	CacheKey string `json:"cacheKey"`
}

type RouterDecisionData struct {
	DecisionID    string   `json:"decisionID"`
	SelectedModel string   `json:"selectedModel"`
	Score         float64  `json:"score"`
	Confidence    float64  `json:"confidence"`
	ReasonCodes   []string `json:"reasonCodes"`
	Escalated     bool     `json:"escalated"`
}

type RouterEscalationData struct {
	Unit    string `json:"unit"`
	Retries int    `json:"retries"`
}

type OffPeakScheduledData struct {
	Reason       string `json:"reason"`
	NextWindowAt int64  `json:"nextWindowAt"`
}

type SessionTitledData struct {
	Title string `json:"title"`
}

type ContextCompactedData struct {
	DroppedMessages int    `json:"droppedMessages"`
	Summary         string `json:"summary"`
}

type DoomLoopDetectedData struct {
	ToolName string `json:"toolName"`
	Count    int    `json:"count"`
}

type TodoListUpdatedData struct {
	Items []TodoItem `json:"items"`
}

type WorkspaceBranchChangedData struct {
	Branch string `json:"branch"`
}

type TodoItem struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Status string `json:"status"` // pending | in_progress | completed
}

// Plan is the durable representation of a planner output (C7).
type Plan struct {
	PlanID       string     `json:"planID"`
	Version      int        `json:"version"`
	Goal         string     `json:"goal"`
	Assumptions  []string   `json:"assumptions"`
	Steps        []PlanStep `json:"steps"`
	Verification []string   `json:"verification"`
	RiskNotes    []string   `json:"riskNotes"`
}

type PlanStep struct {
	StepID string   `json:"stepID"`
	Title  string   `json:"title"`
	Intent string   `json:"intent"` // search|edit|git|verify|docs|recover|task
	Tools  []string `json:"tools"`
	Files  []string `json:"files"`
	Done   bool     `json:"done"`
}

// ToolCall, Proposal and Result are the three stages of C3's two-phase
// invocation contract, persisted verbatim into events.
type ToolCall struct {
	Name             string         `json:"name"`
	Args             map[string]any `json:"args"`
	RequiresApproval bool           `json:"requiresApproval"`
}

type Proposal struct {
	ToolCall
	InvocationID string `json:"invocationID"`
	Approved     bool   `json:"approved"`
}

type Result struct {
	InvocationID string `json:"invocationID"`
	Success      bool   `json:"success"`
	Output       any    `json:"output"`
	DurationMS   int64  `json:"durationMS"`
}

// decodeData converts the generic map produced by a JSON round-trip back
// into the typed payload struct for kind, so projection code can use plain
// type switches instead of re-parsing maps everywhere.
func decodeData(kind Kind, raw any) (any, error) {
	target := newDataValue(kind)
	if target == nil {
		return raw, nil
	}
	buf, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(buf, target); err != nil {
		return nil, err
	}
	return derefData(target), nil
}

func newDataValue(kind Kind) any {
	switch kind {
	case KindTurnAdded:
		return &TurnAddedData{}
	case KindToolProposed:
		return &ToolProposedData{}
	case KindToolApproved:
		return &ToolApprovedData{}
	case KindToolDenied:
		return &ToolDeniedData{}
	case KindToolResult:
		return &ToolResultData{}
	case KindPlanCreated:
		return &PlanCreatedData{}
	case KindPlanRevised:
		return &PlanRevisedData{}
	case KindCheckpointCreated:
		return &CheckpointCreatedData{}
	case KindSessionStateChanged:
		return &SessionStateChangedData{}
	case KindUsageUpdated:
		return &UsageUpdatedData{}
	case KindCostUpdated:
		return &CostUpdatedData{}
	case KindPromptCacheHit:
		return &PromptCacheHitData{}
	case KindRouterDecision:
		return &RouterDecisionData{}
	case KindRouterEscalation:
		return &RouterEscalationData{}
	case KindOffPeakScheduled:
		return &OffPeakScheduledData{}
	case KindSessionTitled:
		return &SessionTitledData{}
	case KindContextCompacted:
		return &ContextCompactedData{}
	case KindDoomLoopDetected:
		return &DoomLoopDetectedData{}
	case KindTodoListUpdated:
		return &TodoListUpdatedData{}
	default:
		return nil
	}
}

func derefData(target any) any {
	switch v := target.(type) {
	case *TurnAddedData:
		return *v
	case *ToolProposedData:
		return *v
	case *ToolApprovedData:
		return *v
	case *ToolDeniedData:
		return *v
	case *ToolResultData:
		return *v
	case *PlanCreatedData:
		return *v
	case *PlanRevisedData:
		return *v
	case *CheckpointCreatedData:
		return *v
	case *SessionStateChangedData:
		return *v
	case *UsageUpdatedData:
		return *v
	case *CostUpdatedData:
		return *v
	case *PromptCacheHitData:
		return *v
	case *RouterDecisionData:
		return *v
	case *RouterEscalationData:
		return *v
	case *OffPeakScheduledData:
		return *v
	case *SessionTitledData:
		return *v
	case *ContextCompactedData:
		return *v
	case *DoomLoopDetectedData:
		return *v
	case *TodoListUpdatedData:
		return *v
	default:
		return target
	}
}

// Projection is the pure, repeatable rebuild of a session's events into the
// shapes the rest of the system reads.
type Projection struct {
	Session      Session
	ChatMessages []TurnAddedData
	Transcript   []Envelope
	StepStatus   map[string]bool // stepID -> done
	Plan         *Plan
	Usage        UsageUpdatedData
	CostUSD      float64
	Todos        []TodoItem
}
