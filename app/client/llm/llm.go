package llm

import (
	"forager/app/config"
	"net/http"
	"time"

	"github.com/samber/do"
	"github.com/samber/oops"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

func NewModel(di *do.Injector) (llms.Model, error) {
	cfg := do.MustInvoke[*config.Config](di)

	model, err := openai.New(clientOptions(cfg.OpenAI, openai.WithModel(cfg.OpenAI.Model))...)
	if err != nil {
		return nil, oops.In("llm").Errorf("failed to create chat model: %w", err)
	}

	return model, nil
}

func NewEmbedder(di *do.Injector) (embeddings.Embedder, error) {
	cfg := do.MustInvoke[*config.Config](di)

	client, err := openai.New(clientOptions(cfg.OpenAI, openai.WithEmbeddingModel(cfg.OpenAI.EmbeddingModel))...)
	if err != nil {
		return nil, oops.In("llm").Errorf("failed to create embedding client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(client)
	if err != nil {
		return nil, oops.In("llm").Errorf("failed to create embedder: %w", err)
	}

	return embedder, nil
}

func clientOptions(cfg config.OpenAI, extra ...openai.Option) []openai.Option {
	opts := []openai.Option{
		openai.WithToken(cfg.Token),
		openai.WithHTTPClient(&http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		}),
		openai.WithCallback(LogCallbackHandler{}),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	return append(opts, extra...)
}

// TokenUsage extracts the provider reported token counts from a choice.
func TokenUsage(choice *llms.ContentChoice) (prompt, completion, total int) {
	if choice == nil || choice.GenerationInfo == nil {
		return 0, 0, 0
	}

	read := func(key string) int {
		switch v := choice.GenerationInfo[key].(type) {
		case int:
			return v
		case int64:
			return int(v)
		case float64:
			return int(v)
		default:
			return 0
		}
	}

	return read("PromptTokens"), read("CompletionTokens"), read("TotalTokens")
}
