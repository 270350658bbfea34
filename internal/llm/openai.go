package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/termscon/backend/pkg/circuitbreaker"
	"github.com/termscon/backend/pkg/logger"
	"github.com/termscon/backend/pkg/retry"
)

const embedBatchSize = 100

type OpenAIConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	EmbeddingModel string
	Temperature    float32
	MaxTokens      int
	Timeout        time.Duration
	EmbedTimeout   time.Duration
}

type OpenAIClient struct {
	client         *openai.Client
	model          string
	embeddingModel string
	temperature    float32
	maxTokens      int
	timeout        time.Duration
	embedTimeout   time.Duration
	cb             *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
	log            *zap.Logger
}

func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.EmbedTimeout <= 0 {
		cfg.EmbedTimeout = 10 * time.Second
	}

	log := logger.Named("openai")

	cb := circuitbreaker.NewCircuitBreaker("openai", circuitbreaker.Config{
		MaxRequests:      2,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		IsFailure:        countsAgainstBreaker,
		Logger:           log,
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Retryable:      isRetryable,
		Logger:         log,
	}

	log.Info("OpenAI client initialized",
		zap.String("model", cfg.Model),
		zap.String("embedding_model", cfg.EmbeddingModel),
	)

	return &OpenAIClient{
		client:         openai.NewClientWithConfig(clientCfg),
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
		temperature:    cfg.Temperature,
		maxTokens:      cfg.MaxTokens,
		timeout:        cfg.Timeout,
		embedTimeout:   cfg.EmbedTimeout,
		cb:             cb,
		retryConfig:    retryConfig,
		log:            log,
	}
}

func (c *OpenAIClient) Name() string {
	return "openai:" + c.model
}

// Complete issues a single chat request. It is not retried: a failed
// clause falls back to the heuristic path instead.
func (c *OpenAIClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.temperature
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	chatReq := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: req.UserPrompt},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
	if req.JSONMode {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	var result *CompletionResponse
	err := c.cb.Execute(ctx, func(ctx context.Context) error {
		resp, err := c.client.CreateChatCompletion(ctx, chatReq)
		if err != nil {
			return classifyOpenAI(err)
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
			return ErrEmptyReply
		}

		c.log.Debug("LLM completion generated",
			zap.Int("prompt_tokens", resp.Usage.PromptTokens),
			zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		)

		result = &CompletionResponse{
			Content: resp.Choices[0].Message.Content,
			Usage: Usage{
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
				TotalTokens:      resp.Usage.TotalTokens,
			},
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Embed goes through the breaker only; a failed clause embedding falls back
// to unsupported analysis rather than stalling the request on backoff.
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	var out [][]float32
	err := c.cb.Execute(ctx, func(ctx context.Context) error {
		var err error
		out, err = c.embedOnce(ctx, []string{text})
		return err
	})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (c *OpenAIClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	embeddings := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += embedBatchSize {
		end := min(i+embedBatchSize, len(texts))
		batch := texts[i:end]

		err := c.cb.Execute(ctx, func(ctx context.Context) error {
			return retry.Do(ctx, c.retryConfig, func(ctx context.Context) error {
				out, err := c.embedOnce(ctx, batch)
				if err != nil {
					return err
				}
				embeddings = append(embeddings, out...)
				return nil
			})
		})
		if err != nil {
			return nil, err
		}
	}

	c.log.Debug("Embeddings generated", zap.Int("count", len(embeddings)))
	return embeddings, nil
}

func (c *OpenAIClient) embedOnce(ctx context.Context, batch []string) ([][]float32, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.embedTimeout)
	defer cancel()

	resp, err := c.client.CreateEmbeddings(reqCtx, openai.EmbeddingRequest{
		Input: batch,
		Model: openai.EmbeddingModel(c.embeddingModel),
	})
	if err != nil {
		return nil, classifyOpenAI(err)
	}
	if len(resp.Data) != len(batch) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs", ErrTransport, len(resp.Data), len(batch))
	}

	out := make([][]float32, 0, len(batch))
	for _, data := range resp.Data {
		out = append(out, data.Embedding)
	}
	return out, nil
}

func classifyOpenAI(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classifyStatus(reqErr.HTTPStatusCode, err)
	}
	return classifyGeneric(err)
}
