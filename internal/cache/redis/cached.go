package redis

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/termscon/backend/internal/llm"
	"github.com/termscon/backend/internal/metrics"
	"github.com/termscon/backend/pkg/logger"
	"github.com/termscon/backend/pkg/utils"
)

type EmbeddingStore interface {
	GetEmbedding(ctx context.Context, textHash string) ([]float32, bool, error)
	SetEmbedding(ctx context.Context, textHash string, embedding []float32, ttl time.Duration) error
}

// CachedEmbedder consults the store before calling the wrapped embedder.
// Cache errors are logged and otherwise ignored.
type CachedEmbedder struct {
	inner llm.Embedder
	store EmbeddingStore
	model string
	ttl   time.Duration
}

func NewCachedEmbedder(inner llm.Embedder, store EmbeddingStore, model string, ttl time.Duration) *CachedEmbedder {
	return &CachedEmbedder{inner: inner, store: store, model: model, ttl: ttl}
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := utils.HashString(c.model, text)

	if v, ok, err := c.store.GetEmbedding(ctx, key); err != nil {
		logger.Warn("Embedding cache read failed", zap.Error(err))
	} else if ok {
		metrics.CacheHits.WithLabelValues("embedding").Inc()
		return v, nil
	}
	metrics.CacheMisses.WithLabelValues("embedding").Inc()

	v, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if err := c.store.SetEmbedding(ctx, key, v, c.ttl); err != nil {
		logger.Warn("Embedding cache write failed", zap.Error(err))
	}
	return v, nil
}
