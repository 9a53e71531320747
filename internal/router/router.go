// Package router implements the model router (C6): a weighted score over
// per-call signals selects between a base and a max-think model, and a
// capped escalation rule governs retries after an invalid output.
package router

// Unit identifies which part of the system is asking for a model
// decision, since the planner-repo-breadth bias rule only fires for
// Planner calls.
type Unit string

const (
	UnitPlanner  Unit = "planner"
	UnitExecutor Unit = "executor"
)

// Signals are the six [0,1] inputs to the router's score function.
type Signals struct {
	Complexity    float64 // c
	RepoBreadth   float64 // b
	FailureStreak float64 // f
	VerifyFailure float64 // v
	LowConfidence float64 // l
	Ambiguity     float64 // a
}

// Weights weights each signal in the score sum.
type Weights struct {
	Complexity    float64
	RepoBreadth   float64
	FailureStreak float64
	VerifyFailure float64
	LowConfidence float64
	Ambiguity     float64
}

// DefaultWeights gives every signal equal weight, a neutral starting
// point a deployment is expected to tune via configuration.
func DefaultWeights() Weights {
	return Weights{
		Complexity: 1, RepoBreadth: 1, FailureStreak: 1,
		VerifyFailure: 1, LowConfidence: 1, Ambiguity: 1,
	}
}

// Reason codes the decision lists in ReasonCodes, one per rule that fired.
const (
	ReasonThresholdHigh             = "threshold_high"
	ReasonPlannerRepoBreadthBias     = "planner_repo_breadth_bias"
	ReasonFailureStreak             = "failure_streak"
	ReasonRevisionFailureEscalation = "revision_failure_escalation"
)

// Config holds the router's tunable thresholds.
type Config struct {
	Weights                Weights
	ThresholdHigh          float64
	MaxEscalationsPerUnit  int // default 1
	BaseModel              string
	MaxThinkModel          string
}

// DefaultConfig returns the spec's defaults: threshold 0.6 (with the six
// default weights of 1, scores range over [0,6], so any one signal at 0.6
// or more crosses it) and one escalation per unit.
func DefaultConfig() Config {
	return Config{
		Weights:               DefaultWeights(),
		ThresholdHigh:         0.6,
		MaxEscalationsPerUnit: 1,
	}
}

// Decision is the router's output for one LLM call, mirroring
// eventstore.RouterDecisionData (DecisionID is left to the caller, who
// owns id generation for the event it emits).
type Decision struct {
	SelectedModel string
	Score         float64
	Confidence    float64
	ReasonCodes   []string
	Escalated     bool
}

// Router scores signals and selects a model.
type Router struct {
	cfg Config
}

func New(cfg Config) *Router {
	return &Router{cfg: cfg}
}

func score(w Weights, s Signals) float64 {
	return w.Complexity*s.Complexity +
		w.RepoBreadth*s.RepoBreadth +
		w.FailureStreak*s.FailureStreak +
		w.VerifyFailure*s.VerifyFailure +
		w.LowConfidence*s.LowConfidence +
		w.Ambiguity*s.Ambiguity
}

// Select computes the weighted score and picks base vs. max-think.
func (r *Router) Select(unit Unit, s Signals) Decision {
	sc := score(r.cfg.Weights, s)

	var reasons []string
	selectMaxThink := false
	escalated := false

	if sc >= r.cfg.ThresholdHigh {
		selectMaxThink = true
		escalated = true
		reasons = append(reasons, ReasonThresholdHigh)
	}
	if unit == UnitPlanner && s.RepoBreadth > 0.5 {
		selectMaxThink = true
		reasons = append(reasons, ReasonPlannerRepoBreadthBias)
	}
	if s.FailureStreak > 0 {
		reasons = append(reasons, ReasonFailureStreak)
	}

	model := r.cfg.BaseModel
	if selectMaxThink {
		model = r.cfg.MaxThinkModel
	}

	return Decision{
		SelectedModel: model,
		Score:         sc,
		Confidence:    1 - s.LowConfidence,
		ReasonCodes:   reasons,
		Escalated:     escalated,
	}
}

// ShouldEscalateRetry reports whether a retry after an invalid output
// should escalate to a stronger model: only while retries is below the
// per-unit cap and the previous output was in fact invalid.
func (r *Router) ShouldEscalateRetry(unit Unit, invalid bool, retries int) bool {
	limit := r.cfg.MaxEscalationsPerUnit
	if limit <= 0 {
		limit = 1
	}
	return invalid && retries < limit
}

// SelectForRevision is Select plus the revision-escalation rule: a
// failure streak ≥ 1 may escalate the revision call to the max-think
// model even when the base score alone would not cross threshold_high.
func (r *Router) SelectForRevision(unit Unit, s Signals, failureStreak int) Decision {
	d := r.Select(unit, s)
	if failureStreak >= 1 && d.SelectedModel != r.cfg.MaxThinkModel {
		d.SelectedModel = r.cfg.MaxThinkModel
		d.Escalated = true
		d.ReasonCodes = append(d.ReasonCodes, ReasonRevisionFailureEscalation)
	}
	return d
}
