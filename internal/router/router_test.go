package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.BaseModel = "claude-3-5-haiku-20241022"
	cfg.MaxThinkModel = "claude-opus-4-20250514"
	cfg.Weights = Weights{1, 1, 1, 1, 1, 1}
	cfg.ThresholdHigh = 3.0
	return cfg
}

func TestSelect_BelowThreshold_PicksBase(t *testing.T) {
	r := New(testConfig())
	d := r.Select(UnitExecutor, Signals{Complexity: 0.1})
	assert.Equal(t, "claude-3-5-haiku-20241022", d.SelectedModel)
	assert.NotContains(t, d.ReasonCodes, ReasonThresholdHigh)
}

func TestSelect_AboveThreshold_PicksMaxThink(t *testing.T) {
	r := New(testConfig())
	d := r.Select(UnitExecutor, Signals{Complexity: 1, RepoBreadth: 1, FailureStreak: 1, VerifyFailure: 1})
	assert.Equal(t, "claude-opus-4-20250514", d.SelectedModel)
	assert.Contains(t, d.ReasonCodes, ReasonThresholdHigh)
	assert.True(t, d.Escalated)
}

func TestSelect_AllSignalsSaturated_EscalatesAndPicksMaxThink(t *testing.T) {
	r := New(testConfig())
	d := r.Select(UnitExecutor, Signals{
		Complexity: 1, RepoBreadth: 1, FailureStreak: 1,
		VerifyFailure: 1, LowConfidence: 1, Ambiguity: 1,
	})
	assert.Equal(t, "claude-opus-4-20250514", d.SelectedModel)
	assert.True(t, d.Escalated)
}

func TestSelect_AllSignalsZero_NotEscalated(t *testing.T) {
	r := New(testConfig())
	d := r.Select(UnitExecutor, Signals{})
	assert.Equal(t, "claude-3-5-haiku-20241022", d.SelectedModel)
	assert.False(t, d.Escalated)
}

func TestSelect_PlannerBiasAlone_DoesNotEscalate(t *testing.T) {
	r := New(testConfig())
	d := r.Select(UnitPlanner, Signals{RepoBreadth: 0.9})
	assert.Equal(t, "claude-opus-4-20250514", d.SelectedModel)
	assert.False(t, d.Escalated, "planner repo-breadth bias selects max-think without crossing threshold_high")
}

func TestSelect_PlannerRepoBreadthBias(t *testing.T) {
	r := New(testConfig())
	d := r.Select(UnitPlanner, Signals{RepoBreadth: 0.9})
	assert.Equal(t, "claude-opus-4-20250514", d.SelectedModel)
	assert.Contains(t, d.ReasonCodes, ReasonPlannerRepoBreadthBias)
}

func TestSelect_ExecutorRepoBreadthDoesNotBias(t *testing.T) {
	r := New(testConfig())
	d := r.Select(UnitExecutor, Signals{RepoBreadth: 0.9})
	assert.Equal(t, "claude-3-5-haiku-20241022", d.SelectedModel)
	assert.NotContains(t, d.ReasonCodes, ReasonPlannerRepoBreadthBias)
}

func TestShouldEscalateRetry_RespectsCap(t *testing.T) {
	cfg := testConfig()
	cfg.MaxEscalationsPerUnit = 1
	r := New(cfg)

	assert.True(t, r.ShouldEscalateRetry(UnitExecutor, true, 0))
	assert.False(t, r.ShouldEscalateRetry(UnitExecutor, true, 1))
	assert.False(t, r.ShouldEscalateRetry(UnitExecutor, false, 0))
}

func TestSelectForRevision_EscalatesOnFailureStreak(t *testing.T) {
	r := New(testConfig())
	d := r.SelectForRevision(UnitExecutor, Signals{}, 1)
	assert.Equal(t, "claude-opus-4-20250514", d.SelectedModel)
	assert.True(t, d.Escalated)
	assert.Contains(t, d.ReasonCodes, ReasonRevisionFailureEscalation)
}
