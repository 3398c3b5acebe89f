package eval

import (
	"bytes"
	"context"
	"errors"
	"forager/app/service/tools"
	"forager/app/util/llmtest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

func TestRunPassesWhenExpectedToolCalled(t *testing.T) {
	model := llmtest.NewScriptedModel(
		llmtest.ToolCalls(llmtest.ToolCall("1", tools.NameSearchKnowledgeBase, `{"query":"type hints"}`)),
		llmtest.Text("People like them."),
	)

	results := NewService(model, 3, 10).Run(context.Background(), Cases[:1])

	require.Len(t, results, 1)
	assert.True(t, results[0].Passed)
	assert.Equal(t, []string{tools.NameSearchKnowledgeBase}, results[0].ActualTools)
	assert.Equal(t, "People like them.", results[0].Response)

	// the canned response reached the model
	calls := model.Calls()
	require.Len(t, calls, 2)
	last := calls[1].Messages[len(calls[1].Messages)-1]
	response, ok := last.Parts[0].(llms.ToolCallResponse)
	require.True(t, ok)
	assert.Equal(t, CannedResponses[tools.NameSearchKnowledgeBase], response.Content)
}

func TestRunFailsOnWrongTool(t *testing.T) {
	model := llmtest.NewScriptedModel(
		llmtest.ToolCalls(llmtest.ToolCall("1", tools.NameSearchKnowledgeBase, `{"query":"trending"}`)),
		llmtest.Text("Nothing."),
	)

	results := NewService(model, 3, 10).Run(context.Background(), Cases[1:2])

	require.Len(t, results, 1)
	assert.False(t, results[0].Passed)
	assert.Contains(t, results[0].Reason, "Missing expected tools: [fetch_subreddit_posts]")
	assert.False(t, AllPassed(results))
}

func TestRunReportsModelError(t *testing.T) {
	model := llmtest.NewScriptedModel(llmtest.Failure(errors.New("no key")))

	results := NewService(model, 3, 10).Run(context.Background(), Cases[2:3])

	require.Len(t, results, 1)
	assert.False(t, results[0].Passed)
	assert.Contains(t, results[0].Reason, "Error:")
	assert.Contains(t, results[0].Reason, "no key")
}

func TestReport(t *testing.T) {
	var buf bytes.Buffer
	Report(&buf, []Result{
		{Case: Cases[0], Passed: true, Reason: "ok"},
		{Case: Cases[1], Reason: "bad"},
	})

	out := buf.String()
	assert.Contains(t, out, "AGENT EVALUATION RESULTS")
	assert.Contains(t, out, "PASS  Knowledge base search")
	assert.Contains(t, out, "FAIL  Live subreddit browse")
	assert.Contains(t, out, "Results: 1/2 passed")
}
