package planner

import (
	"context"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/agentcore/internal/llm"
)

type fakeCompleter struct {
	content string
}

func (f *fakeCompleter) Complete(ctx context.Context, req llm.ChatRequest, prompt string) (*llm.ChatResponse, error) {
	return &llm.ChatResponse{Message: &schema.Message{Content: f.content}}, nil
}

type fakeVerifier struct{ cmds []string }

func (f fakeVerifier) DefaultVerification() []string { return f.cmds }

func TestExtractJSONObject_FencedBlock(t *testing.T) {
	text := "here is the plan:\n```json\n{\"goal\":\"x\"}\n```\nthanks"
	got, ok := extractJSONObject(text)
	require.True(t, ok)
	assert.Equal(t, `{"goal":"x"}`, got)
}

func TestExtractJSONObject_WidestSpan(t *testing.T) {
	text := `blah {"goal":"x","steps":[{"title":"a"}]} trailing`
	got, ok := extractJSONObject(text)
	require.True(t, ok)
	assert.Equal(t, `{"goal":"x","steps":[{"title":"a"}]}`, got)
}

func TestNormalizeToolName_Aliases(t *testing.T) {
	assert.Equal(t, "bash.run", normalizeToolName("bash"))
	assert.Equal(t, "fs.grep", normalizeToolName("grep"))
	assert.Equal(t, "fs.read", normalizeToolName("read"))
}

func TestNormalizeToolName_FuzzyCorrection(t *testing.T) {
	assert.Equal(t, "fs.read", normalizeToolName("fs.raed"))
}

func TestInferIntent_FromKeywords(t *testing.T) {
	assert.Equal(t, IntentVerify, inferIntent("Verify the fix", nil))
	assert.Equal(t, IntentGit, inferIntent("Commit changes", nil))
	assert.Equal(t, IntentSearch, inferIntent("Find usages", nil))
	assert.Equal(t, IntentTask, inferIntent("Do something", nil))
}

func TestGenerate_ParsesAndNormalizesPlan(t *testing.T) {
	content := "```json\n" +
		`{"goal":"fix bug","steps":[{"title":"search code","tools":["grep"]},{"title":"","tools":["bash"]}],"verification":[]}` +
		"\n```"
	p := New(&fakeCompleter{content: content}, fakeVerifier{cmds: []string{"go test ./..."}}, llm.ChatRequest{})

	plan, err := p.Generate(context.Background(), "fix the bug", nil)
	require.NoError(t, err)
	require.NotNil(t, plan)

	assert.Equal(t, 1, plan.Version)
	require.Len(t, plan.Steps, 1, "the empty-title step must be dropped")
	assert.Equal(t, []string{"fs.grep"}, plan.Steps[0].Tools)
	assert.Equal(t, []string{"go test ./..."}, plan.Verification)
}

func TestGenerate_NoJSONReturnsNilPlan(t *testing.T) {
	p := New(&fakeCompleter{content: "sorry, I can't help with that"}, nil, llm.ChatRequest{})
	plan, err := p.Generate(context.Background(), "x", nil)
	require.NoError(t, err)
	assert.Nil(t, plan)
}

func TestBuild_CapsAtSixteenSteps(t *testing.T) {
	var steps []rawStep
	for i := 0; i < 20; i++ {
		steps = append(steps, rawStep{Title: "step", Tools: []string{"bash.run"}})
	}
	p := New(&fakeCompleter{}, nil, llm.ChatRequest{})
	plan := p.build(rawPlan{Goal: "g", Steps: steps}, 1)
	assert.Len(t, plan.Steps, maxSteps)
}

func TestRevise_IncrementsVersionAndKeepsPlanID(t *testing.T) {
	content := "```json\n" + `{"goal":"fix bug retry","steps":[{"title":"retry","tools":["bash.run"]}]}` + "\n```"
	p := New(&fakeCompleter{content: content}, nil, llm.ChatRequest{})

	prev := &Plan{PlanID: "plan-1", Version: 1, Goal: "fix bug"}
	revised, err := p.Revise(context.Background(), prev, 2, "tests failed")
	require.NoError(t, err)
	require.NotNil(t, revised)

	assert.Equal(t, "plan-1", revised.PlanID)
	assert.Equal(t, 2, revised.Version)
}
