package app

import (
	"context"
	"fmt"

	"ragfinance/internal/adapter/gemini"
	"ragfinance/internal/adapter/openai"
	"ragfinance/internal/config"
	"ragfinance/internal/domain"
)

type Provider interface {
	domain.Embedder
	domain.Generator
}

func NewProvider(ctx context.Context, cfg *config.Config) (Provider, error) {
	switch cfg.LLMProvider {
	case config.ProviderGemini:
		c, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.EmbeddingModel, cfg.ChatModel)
		if err != nil {
			return nil, err
		}
		return c, nil
	case config.ProviderOpenAI:
		c, err := openai.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.EmbeddingModel, cfg.ChatModel)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("%w: LLM_PROVIDER=%q", config.ErrInvalidValue, cfg.LLMProvider)
	}
}
