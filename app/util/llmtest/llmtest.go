// Package llmtest provides deterministic stand-ins for the model and embedding
// services used in tests.
package llmtest

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"unicode"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
)

var ErrScriptExhausted = errors.New("scripted model has no more responses")

// Call records one GenerateContent invocation.
type Call struct {
	Messages []llms.MessageContent
	Options  llms.CallOptions
}

// Step is one scripted model reply. Err takes precedence over Response.
type Step struct {
	Response *llms.ContentResponse
	Err      error
}

var _ llms.Model = (*ScriptedModel)(nil)

// ScriptedModel replays Steps in order. When the script runs out it repeats
// Repeat if set, otherwise it fails with ErrScriptExhausted.
type ScriptedModel struct {
	mu     sync.Mutex
	Steps  []Step
	Repeat *Step
	calls  []Call
}

func NewScriptedModel(steps ...Step) *ScriptedModel {
	return &ScriptedModel{Steps: steps}
}

func (m *ScriptedModel) GenerateContent(
	_ context.Context,
	messages []llms.MessageContent,
	options ...llms.CallOption,
) (*llms.ContentResponse, error) {
	var opts llms.CallOptions
	for _, opt := range options {
		opt(&opts)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, Call{
		Messages: append([]llms.MessageContent(nil), messages...),
		Options:  opts,
	})

	var step Step
	switch {
	case len(m.Steps) > 0:
		step = m.Steps[0]
		m.Steps = m.Steps[1:]
	case m.Repeat != nil:
		step = *m.Repeat
	default:
		return nil, ErrScriptExhausted
	}

	if step.Err != nil {
		return nil, step.Err
	}

	return step.Response, nil
}

func (m *ScriptedModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func (m *ScriptedModel) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]Call(nil), m.calls...)
}

// Text is a final reply without tool calls.
func Text(content string) Step {
	return Step{Response: &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: content, StopReason: "stop"}},
	}}
}

// ToolCalls is a reply requesting the given calls.
func ToolCalls(calls ...llms.ToolCall) Step {
	return Step{Response: &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{ToolCalls: calls, StopReason: "tool_calls"}},
	}}
}

func Failure(err error) Step {
	return Step{Err: err}
}

func ToolCall(id, name, arguments string) llms.ToolCall {
	return llms.ToolCall{
		ID:   id,
		Type: "function",
		FunctionCall: &llms.FunctionCall{
			Name:      name,
			Arguments: arguments,
		},
	}
}

const embeddingSize = 1024

var _ embeddings.Embedder = (*HashEmbedder)(nil)

// HashEmbedder maps text to a normalized bag-of-words vector, so texts sharing
// words land close to each other.
type HashEmbedder struct {
	mu    sync.Mutex
	Err   error
	calls int
}

func (e *HashEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.calls++
	if e.Err != nil {
		return nil, e.Err
	}

	result := make([][]float32, 0, len(texts))
	for _, text := range texts {
		result = append(result, Embed(text))
	}

	return result, nil
}

func (e *HashEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}

	return vectors[0], nil
}

func (e *HashEmbedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.calls
}

func Embed(text string) []float32 {
	vector := make([]float32, embeddingSize)
	// bias keeps empty text away from the zero vector
	vector[0] = 0.1

	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, word := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(word))
		vector[1+int(h.Sum32()%(embeddingSize-1))]++
	}

	var norm float64
	for _, v := range vector {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)

	for i := range vector {
		vector[i] = float32(float64(vector[i]) / norm)
	}

	return vector
}
