// Package retrieval selects the legal passages that accompany a clause.
package retrieval

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/termscon/backend/internal/domain"
	"github.com/termscon/backend/internal/llm"
	"github.com/termscon/backend/internal/metrics"
	"github.com/termscon/backend/pkg/config"
	"github.com/termscon/backend/pkg/logger"
	"github.com/termscon/backend/pkg/utils"
)

const truncationMarker = "…"

// Index is the read side of corpus.Index.
type Index interface {
	Query(corpus domain.CorpusID, embedding []float32, k int) []domain.ScoredPassage
}

type Config struct {
	CivilTopK       int
	CriminalTopK    int
	MinSimilarity   float64
	MaxPassageRunes int
	EmbedTimeout    time.Duration
}

func DefaultConfig() Config {
	return Config{
		CivilTopK:       2,
		CriminalTopK:    1,
		MinSimilarity:   0.4,
		MaxPassageRunes: 100,
		EmbedTimeout:    10 * time.Second,
	}
}

func ConfigFrom(r config.RetrievalConfig, e config.EmbeddingConfig) Config {
	return Config{
		CivilTopK:       r.CivilTopK,
		CriminalTopK:    r.CriminalTopK,
		MinSimilarity:   r.MinSimilarity,
		MaxPassageRunes: r.MaxPassageRunes,
		EmbedTimeout:    time.Duration(e.TimeoutSec) * time.Second,
	}
}

// ContextSelector embeds a clause once and picks the nearest passages of
// each corpus above the relevance floor.
type ContextSelector struct {
	embedder llm.Embedder
	index    Index
	cfg      Config
	log      *zap.Logger
}

// NewContextSelector accepts a nil embedder; every clause then gets an
// empty context.
func NewContextSelector(embedder llm.Embedder, index Index, cfg Config) *ContextSelector {
	return &ContextSelector{
		embedder: embedder,
		index:    index,
		cfg:      cfg,
		log:      logger.Named("retrieval"),
	}
}

// Select never fails: an embedding error yields an empty context.
func (s *ContextSelector) Select(ctx context.Context, clauseText string) domain.LegalContext {
	empty := domain.LegalContext{Civil: []domain.ScoredPassage{}, Criminal: []domain.ScoredPassage{}}
	if s.embedder == nil || s.index == nil {
		return empty
	}

	embedCtx := ctx
	if s.cfg.EmbedTimeout > 0 {
		var cancel context.CancelFunc
		embedCtx, cancel = context.WithTimeout(ctx, s.cfg.EmbedTimeout)
		defer cancel()
	}

	embedding, err := s.embedder.Embed(embedCtx, clauseText)
	if err != nil {
		if ctx.Err() == nil {
			metrics.EmbeddingFailures.Inc()
			s.log.Warn("Clause embedding failed, continuing without legal context",
				zap.String("reason", llm.Reason(err)),
				zap.Error(err),
			)
		}
		return empty
	}

	lctx := domain.LegalContext{
		Civil:    s.pick(domain.CorpusCivil, embedding, s.cfg.CivilTopK),
		Criminal: s.pick(domain.CorpusCriminal, embedding, s.cfg.CriminalTopK),
	}
	metrics.ContextPassages.WithLabelValues(string(domain.CorpusCivil)).Observe(float64(len(lctx.Civil)))
	metrics.ContextPassages.WithLabelValues(string(domain.CorpusCriminal)).Observe(float64(len(lctx.Criminal)))
	return lctx
}

func (s *ContextSelector) pick(corpus domain.CorpusID, embedding []float32, k int) []domain.ScoredPassage {
	out := []domain.ScoredPassage{}
	for _, sp := range s.index.Query(corpus, embedding, k) {
		if sp.Similarity < s.cfg.MinSimilarity {
			continue
		}
		sp.Passage.Text = utils.TruncateRunes(sp.Passage.Text, s.cfg.MaxPassageRunes, truncationMarker)
		sp.Passage.Embedding = nil
		out = append(out, sp)
	}
	return out
}
