// Package planner implements the planner (C7): generates and revises a
// structured Plan from an LLM response, applying intent inference, tool
// defaulting, and colloquial tool-name normalization.
package planner

// Plan mirrors spec.md's §3 data model.
type Plan struct {
	PlanID       string   `json:"planID"`
	Version      int      `json:"version"`
	Goal         string   `json:"goal"`
	Assumptions  []string `json:"assumptions"`
	Steps        []Step   `json:"steps"`
	Verification []string `json:"verification"`
	RiskNotes    []string `json:"riskNotes"`
}

// Step mirrors spec.md's PlanStep.
type Step struct {
	StepID string   `json:"stepID"`
	Title  string   `json:"title"`
	Intent string   `json:"intent"`
	Tools  []string `json:"tools"`
	Files  []string `json:"files"`
	Done   bool     `json:"done"`
}

// Intents is the closed set a Step's Intent is drawn from.
const (
	IntentSearch = "search"
	IntentEdit   = "edit"
	IntentGit    = "git"
	IntentVerify = "verify"
	IntentDocs   = "docs"
	IntentRecover = "recover"
	IntentTask   = "task"
)

// maxSteps caps a generated plan at 16 steps per spec.md §4.7.
const maxSteps = 16

// rawPlan is the JSON shape requested of the LLM, matching the field
// names spec.md §4.7 asks the prompt to request.
type rawPlan struct {
	Goal        string   `json:"goal"`
	Assumptions []string `json:"assumptions"`
	Steps       []rawStep `json:"steps"`
	Verification []string `json:"verification"`
	RiskNotes    []string  `json:"risk_notes"`
}

type rawStep struct {
	Title  string   `json:"title"`
	Intent string   `json:"intent"`
	Tools  []string `json:"tools"`
	Files  []string `json:"files"`
}
