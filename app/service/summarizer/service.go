package summarizer

import (
	"context"
	"errors"
	"fmt"
	"forager/app/config"
	"forager/app/thread"
	"strings"

	"github.com/samber/do"
	"github.com/tmc/langchaingo/llms"
)

const (
	threadPrompt = "Summarise the provided discussion from a Reddit thread. " +
		"Identify the key themes, notable opinions, and any consensus or disagreements. " +
		"Don't start every summary with a phrase such as 'The discussion revolves around...'. " +
		"Be concise but capture all distinct points."

	finalPrompt = "Summarise the provided summaries in a single, SHORT paragraph. " +
		"The topics of some summaries may be similar to each other, " +
		"so focus on distinct points and avoid repetition."
)

var ErrEmptyResponse = errors.New("model returned no choices")

type Service struct {
	model llms.Model
	cfg   config.Summary
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)

	return NewWithModel(do.MustInvoke[llms.Model](di), cfg.Summary), nil
}

func NewWithModel(model llms.Model, cfg config.Summary) *Service {
	return &Service{
		model: model,
		cfg:   cfg,
	}
}

// Summarize condenses one thread text with a single model call.
func (s *Service) Summarize(ctx context.Context, text string) (string, error) {
	summary, err := s.complete(ctx, threadPrompt, text, s.cfg.ThreadMaxTokens)
	if err != nil {
		return "", fmt.Errorf("summarize thread: %w", err)
	}

	return summary, nil
}

// SummarizeCollection condenses the per-thread summaries into one paragraph.
func (s *Service) SummarizeCollection(ctx context.Context, collection *thread.Collection) (string, error) {
	summary, err := s.complete(ctx, finalPrompt, collection.JoinedSummaries(), s.cfg.FinalMaxTokens)
	if err != nil {
		return "", fmt.Errorf("summarize collection: %w", err)
	}

	return summary, nil
}

func (s *Service) complete(ctx context.Context, instruction, text string, maxTokens int) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, instruction),
		llms.TextParts(llms.ChatMessageTypeHuman, text),
	}

	resp, err := s.model.GenerateContent(ctx, messages,
		llms.WithTemperature(s.cfg.Temperature),
		llms.WithTopP(s.cfg.TopP),
		llms.WithMaxTokens(maxTokens),
	)
	if err != nil {
		return "", err
	}

	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return "", ErrEmptyResponse
	}

	return strings.TrimSpace(resp.Choices[0].Content), nil
}
