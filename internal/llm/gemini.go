package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/termscon/backend/pkg/circuitbreaker"
	"github.com/termscon/backend/pkg/logger"
	"github.com/termscon/backend/pkg/retry"
)

type GeminiConfig struct {
	APIKey         string
	Model          string
	EmbeddingModel string
	Temperature    float32
	MaxTokens      int
	Timeout        time.Duration
	EmbedTimeout   time.Duration
}

type GeminiClient struct {
	client      *genai.Client
	cfg         GeminiConfig
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
	log         *zap.Logger
}

func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.EmbedTimeout <= 0 {
		cfg.EmbedTimeout = 10 * time.Second
	}

	log := logger.Named("gemini")
	log.Info("Gemini client initialized",
		zap.String("model", cfg.Model),
		zap.String("embedding_model", cfg.EmbeddingModel),
	)

	return &GeminiClient{
		client: client,
		cfg:    cfg,
		cb: circuitbreaker.NewCircuitBreaker("gemini", circuitbreaker.Config{
			MaxRequests:      2,
			Interval:         time.Minute,
			Timeout:          30 * time.Second,
			FailureThreshold: 5,
			SuccessThreshold: 2,
			IsFailure:        countsAgainstBreaker,
			Logger:           log,
		}),
		retryConfig: retry.Config{
			MaxAttempts:  3,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     5 * time.Second,
			Multiplier:   2.0,
			Retryable:    isRetryable,
			Logger:       log,
		},
		log: log,
	}, nil
}

func (g *GeminiClient) Name() string {
	return "gemini:" + g.cfg.Model
}

func (g *GeminiClient) Close() error {
	return g.client.Close()
}

func (g *GeminiClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	temperature := req.Temperature
	if temperature == 0 {
		temperature = g.cfg.Temperature
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = g.cfg.MaxTokens
	}

	model := g.client.GenerativeModel(g.cfg.Model)
	model.SetTemperature(temperature)
	model.SetMaxOutputTokens(int32(maxTokens))
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.SystemPrompt)}}
	if req.JSONMode {
		model.ResponseMIMEType = "application/json"
	}

	var result *CompletionResponse
	err := g.cb.Execute(ctx, func(ctx context.Context) error {
		resp, err := model.GenerateContent(ctx, genai.Text(req.UserPrompt))
		if err != nil {
			return classifyGemini(err)
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			return ErrEmptyReply
		}

		var parts []string
		for _, part := range resp.Candidates[0].Content.Parts {
			if text, ok := part.(genai.Text); ok {
				parts = append(parts, string(text))
			}
		}
		content := joinParts(parts)
		if content == "" {
			return ErrEmptyReply
		}

		result = &CompletionResponse{Content: content}
		if u := resp.UsageMetadata; u != nil {
			result.Usage = Usage{
				PromptTokens:     int(u.PromptTokenCount),
				CompletionTokens: int(u.CandidatesTokenCount),
				TotalTokens:      int(u.TotalTokenCount),
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (g *GeminiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	em := g.client.EmbeddingModel(g.cfg.EmbeddingModel)

	var values []float32
	err := g.cb.Execute(ctx, func(ctx context.Context) error {
		reqCtx, cancel := context.WithTimeout(ctx, g.cfg.EmbedTimeout)
		defer cancel()

		res, err := em.EmbedContent(reqCtx, genai.Text(text))
		if err != nil {
			return classifyGemini(err)
		}
		if res.Embedding == nil || len(res.Embedding.Values) == 0 {
			return ErrEmptyReply
		}
		values = res.Embedding.Values
		return nil
	})
	if err != nil {
		return nil, err
	}
	return values, nil
}

func (g *GeminiClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	em := g.client.EmbeddingModel(g.cfg.EmbeddingModel)

	out := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += embedBatchSize {
		end := min(i+embedBatchSize, len(texts))

		batch := em.NewBatch()
		for _, t := range texts[i:end] {
			batch.AddContent(genai.Text(t))
		}

		err := g.cb.Execute(ctx, func(ctx context.Context) error {
			return retry.Do(ctx, g.retryConfig, func(ctx context.Context) error {
				res, err := em.BatchEmbedContents(ctx, batch)
				if err != nil {
					return classifyGemini(err)
				}
				if len(res.Embeddings) != end-i {
					return fmt.Errorf("%w: got %d embeddings for %d inputs", ErrTransport, len(res.Embeddings), end-i)
				}
				for _, e := range res.Embeddings {
					out = append(out, e.Values)
				}
				return nil
			})
		})
		if err != nil {
			return nil, err
		}
	}

	g.log.Debug("Embeddings generated", zap.Int("count", len(out)))
	return out, nil
}

func classifyGemini(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.Code, err)
	}
	return classifyGeneric(err)
}
