package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/termscon/backend/pkg/config"
	"github.com/termscon/backend/pkg/logger"
)

// NewBackend builds the configured chat backend. A missing API key is not
// an error: it returns nil and the analyzer runs in fallback mode.
func NewBackend(ctx context.Context, cfg config.LLMConfig) (Backend, error) {
	if cfg.APIKey == "" {
		logger.Warn("No LLM API key configured, every clause will use heuristic analysis")
		return nil, nil
	}
	timeout := time.Duration(cfg.TimeoutSec) * time.Second

	switch cfg.Provider {
	case "openai":
		return NewOpenAIClient(OpenAIConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     timeout,
		}), nil
	case "gemini":
		g, err := NewGeminiClient(ctx, GeminiConfig{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     timeout,
		})
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// NewEmbedder builds the configured embedding backend, or nil when
// embeddings are disabled or no key is available.
func NewEmbedder(ctx context.Context, cfg config.EmbeddingConfig, baseURL string) (BatchEmbedder, error) {
	if cfg.Provider == "none" || cfg.APIKey == "" {
		logger.Warn("No embedding backend configured, clauses will be analyzed without legal context")
		return nil, nil
	}
	timeout := time.Duration(cfg.TimeoutSec) * time.Second

	switch cfg.Provider {
	case "openai":
		return NewOpenAIClient(OpenAIConfig{
			APIKey:         cfg.APIKey,
			BaseURL:        baseURL,
			EmbeddingModel: cfg.Model,
			EmbedTimeout:   timeout,
		}), nil
	case "gemini":
		g, err := NewGeminiClient(ctx, GeminiConfig{
			APIKey:         cfg.APIKey,
			EmbeddingModel: cfg.Model,
			EmbedTimeout:   timeout,
		})
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}
