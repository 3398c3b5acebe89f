package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"forager/app/client/llm"
	"forager/app/config"
	"forager/app/service/conversation"
	"forager/app/service/ingest"
	"forager/app/service/knowledge"
	"forager/app/service/tools"
	"forager/app/util/metrics"
	"log/slog"
	"strings"
	"time"

	_ "embed"

	"github.com/google/uuid"
	"github.com/samber/do"
	"github.com/tmc/langchaingo/llms"
)

//go:embed system_prompt.txt
var SystemPrompt string

const (
	wrapUpInstruction = "Please provide your final answer based on the information gathered so far."
	previewLength     = 200
)

var ErrNoChoices = errors.New("model returned no choices")

// Dispatcher is the tool surface the loop needs.
type Dispatcher interface {
	Definitions() []llms.Tool
	Dispatch(ctx context.Context, name, arguments string) string
}

type Counter interface {
	Count(ctx context.Context) (int, error)
}

type Seeder interface {
	Seed(ctx context.Context, subreddit string, limit int) (ingest.Result, error)
}

var (
	_ Dispatcher = (*tools.Registry)(nil)
	_ Counter    = (*knowledge.Store)(nil)
	_ Seeder     = (*ingest.Service)(nil)
)

type Options struct {
	MaxToolRounds int
	MaxHistory    int
	CacheSize     int
	SystemPrompt  string
}

type Service struct {
	model         llms.Model
	tools         Dispatcher
	counter       Counter
	seeder        Seeder
	conversations *conversation.Store

	maxRounds  int
	maxHistory int
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)

	return NewService(
		do.MustInvoke[llms.Model](di),
		do.MustInvoke[*tools.Registry](di),
		do.MustInvoke[*knowledge.Store](di),
		do.MustInvoke[*ingest.Service](di),
		Options{
			MaxToolRounds: cfg.Agent.MaxToolRounds,
			MaxHistory:    cfg.Agent.MaxHistory,
			CacheSize:     cfg.Agent.ConversationCacheSize,
		},
	), nil
}

func NewService(model llms.Model, dispatcher Dispatcher, counter Counter, seeder Seeder, opts Options) *Service {
	if opts.MaxToolRounds <= 0 {
		opts.MaxToolRounds = 10
	}
	if opts.MaxHistory <= 0 {
		opts.MaxHistory = 50
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = strings.TrimSpace(SystemPrompt)
	}

	return &Service{
		model:         model,
		tools:         dispatcher,
		counter:       counter,
		seeder:        seeder,
		conversations: conversation.NewStore(opts.SystemPrompt, opts.CacheSize),
		maxRounds:     opts.MaxToolRounds,
		maxHistory:    opts.MaxHistory,
	}
}

// Chat runs one user turn to completion and returns the final reply. Model
// errors propagate, leaving the history with the user turn and every round
// that completed before the failure. The history is trimmed on every exit.
func (s *Service) Chat(ctx context.Context, conversationID, text string) (string, error) {
	start := time.Now()
	defer func() {
		metrics.ChatDuration.Observe(time.Since(start).Seconds())
	}()

	logger := slog.With("conversation", conversationID, "request", uuid.NewString())

	c, release := s.conversations.Acquire(conversationID)
	defer release()

	history := c.History
	defer history.Trim(s.maxHistory)

	history.Append(llms.TextParts(llms.ChatMessageTypeHuman, text))

	definitions := s.tools.Definitions()

	for round := 1; round <= s.maxRounds; round++ {
		choice, err := s.generate(ctx, history.Turns(), metrics.KindTools,
			llms.WithTools(definitions),
			llms.WithToolChoice("auto"),
		)
		if err != nil {
			return "", fmt.Errorf("round %d: %w", round, err)
		}

		if len(choice.ToolCalls) == 0 {
			history.Append(llms.TextParts(llms.ChatMessageTypeAI, choice.Content))

			logger.Info("Produced answer", "rounds", round, "length", len(choice.Content))

			return choice.Content, nil
		}

		history.Append(s.runTools(ctx, logger, round, choice)...)
	}

	logger.Warn("Tool round limit reached, asking for final answer", "rounds", s.maxRounds)

	wrapUp := llms.TextParts(llms.ChatMessageTypeHuman, wrapUpInstruction)
	choice, err := s.generate(ctx, append(history.Turns(), wrapUp), metrics.KindFinal)
	if err != nil {
		return "", fmt.Errorf("final answer: %w", err)
	}

	history.Append(wrapUp, llms.TextParts(llms.ChatMessageTypeAI, choice.Content))

	return choice.Content, nil
}

func (s *Service) generate(
	ctx context.Context,
	turns []llms.MessageContent,
	kind string,
	options ...llms.CallOption,
) (*llms.ContentChoice, error) {
	metrics.ModelCalls.WithLabelValues(kind).Inc()

	resp, err := s.model.GenerateContent(ctx, turns, options...)
	if err != nil {
		return nil, fmt.Errorf("model.GenerateContent: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return nil, ErrNoChoices
	}

	choice := resp.Choices[0]
	prompt, completion, _ := llm.TokenUsage(choice)
	slog.Debug("Model call finished",
		"kind", kind,
		"tool_calls", len(choice.ToolCalls),
		"prompt_tokens", prompt,
		"completion_tokens", completion,
	)

	return choice, nil
}

// runTools answers every call of one round in request order. The returned
// turns are the assistant request followed by one tool turn per call.
func (s *Service) runTools(ctx context.Context, logger *slog.Logger, round int, choice *llms.ContentChoice) []llms.MessageContent {
	request := llms.MessageContent{Role: llms.ChatMessageTypeAI}
	if choice.Content != "" {
		request.Parts = append(request.Parts, llms.TextContent{Text: choice.Content})
	}

	responses := make([]llms.MessageContent, 0, len(choice.ToolCalls))
	for _, call := range choice.ToolCalls {
		name, arguments := callTarget(call)
		call.FunctionCall = &llms.FunctionCall{Name: name, Arguments: arguments}
		request.Parts = append(request.Parts, call)

		result := s.tools.Dispatch(ctx, name, arguments)

		logger.Info("Tool called",
			"round", round,
			"tool", name,
			"arguments", arguments,
			"result_length", len(result),
			"preview", tools.Truncate(result, previewLength),
		)

		responses = append(responses, llms.MessageContent{
			Role: llms.ChatMessageTypeTool,
			Parts: []llms.ContentPart{llms.ToolCallResponse{
				ToolCallID: call.ID,
				Name:       name,
				Content:    result,
			}},
		})
	}

	return append([]llms.MessageContent{request}, responses...)
}

// callTarget extracts the tool name and arguments, replacing anything that is
// not a JSON object with empty arguments.
func callTarget(call llms.ToolCall) (name, arguments string) {
	if call.FunctionCall == nil {
		return "", "{}"
	}

	var object map[string]any
	if err := json.Unmarshal([]byte(call.FunctionCall.Arguments), &object); err != nil || object == nil {
		return call.FunctionCall.Name, "{}"
	}

	return call.FunctionCall.Name, call.FunctionCall.Arguments
}

// ClearHistory forgets a conversation. Unknown ids are ignored.
func (s *Service) ClearHistory(conversationID string) {
	s.conversations.Clear(conversationID)
}

// HistoryLen reports the stored turn count, zero for unknown ids.
func (s *Service) HistoryLen(conversationID string) int {
	n, _ := s.conversations.Peek(conversationID)
	return n
}

// History returns a copy of the stored turns.
func (s *Service) History(conversationID string) []llms.MessageContent {
	turns, _ := s.conversations.Snapshot(conversationID)
	return turns
}

func (s *Service) DocumentCount(ctx context.Context) (int, error) {
	count, err := s.counter.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}

	return count, nil
}

// Seed ingests a subreddit without going through the model.
func (s *Service) Seed(ctx context.Context, subreddit string, limit int) (string, error) {
	subreddit = tools.NormalizeSubreddit(subreddit)

	result, err := s.seeder.Seed(ctx, subreddit, limit)
	if err != nil {
		return "", fmt.Errorf("seeding r/%s: %w", subreddit, err)
	}

	return tools.FormatSeedResult(subreddit, result), nil
}
