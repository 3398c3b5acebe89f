package summarizer

import (
	"context"
	"errors"
	"forager/app/config"
	"forager/app/thread"
	"forager/app/util/llmtest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

var testCfg = config.Summary{
	Temperature:     0,
	TopP:            0.5,
	ThreadMaxTokens: 1000,
	FinalMaxTokens:  300,
}

func TestSummarize(t *testing.T) {
	model := llmtest.NewScriptedModel(llmtest.Text("  Gophers like generics.\n"))
	svc := NewWithModel(model, testCfg)

	summary, err := svc.Summarize(context.Background(), "thread text")
	require.NoError(t, err)
	assert.Equal(t, "Gophers like generics.", summary)

	calls := model.Calls()
	require.Len(t, calls, 1)

	call := calls[0]
	require.Len(t, call.Messages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, call.Messages[0].Role)
	assert.Equal(t, llms.TextContent{Text: threadPrompt}, call.Messages[0].Parts[0])
	assert.Equal(t, llms.ChatMessageTypeHuman, call.Messages[1].Role)
	assert.Equal(t, llms.TextContent{Text: "thread text"}, call.Messages[1].Parts[0])

	assert.Equal(t, 1000, call.Options.MaxTokens)
	assert.InDelta(t, 0.5, call.Options.TopP, 1e-9)
	assert.Zero(t, call.Options.Temperature)
	assert.Empty(t, call.Options.Tools)
}

func TestSummarizeCollection(t *testing.T) {
	model := llmtest.NewScriptedModel(llmtest.Text("Short paragraph."))
	svc := NewWithModel(model, testCfg)

	first := &thread.Thread{}
	first.SetSummary("one")
	second := &thread.Thread{}
	second.SetSummary("two")

	summary, err := svc.SummarizeCollection(context.Background(), &thread.Collection{Threads: []*thread.Thread{first, second}})
	require.NoError(t, err)
	assert.Equal(t, "Short paragraph.", summary)

	call := model.Calls()[0]
	assert.Equal(t, llms.TextContent{Text: finalPrompt}, call.Messages[0].Parts[0])
	assert.Equal(t, llms.TextContent{Text: "Thread Summary 1:\none\nThread Summary 2:\ntwo"}, call.Messages[1].Parts[0])
	assert.Equal(t, 300, call.Options.MaxTokens)
}

func TestSummarizeError(t *testing.T) {
	boom := errors.New("boom")
	svc := NewWithModel(llmtest.NewScriptedModel(llmtest.Failure(boom)), testCfg)

	_, err := svc.Summarize(context.Background(), "text")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestSummarizeNoChoices(t *testing.T) {
	svc := NewWithModel(llmtest.NewScriptedModel(llmtest.Step{Response: &llms.ContentResponse{}}), testCfg)

	_, err := svc.Summarize(context.Background(), "text")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestSummarizeNilChoice(t *testing.T) {
	svc := NewWithModel(llmtest.NewScriptedModel(llmtest.Step{
		Response: &llms.ContentResponse{Choices: []*llms.ContentChoice{nil}},
	}), testCfg)

	_, err := svc.Summarize(context.Background(), "text")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}
