package corpus

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/termscon/backend/internal/domain"
	"github.com/termscon/backend/pkg/logger"
)

// Source yields every stored passage of both corpora.
type Source interface {
	Name() string
	Passages(ctx context.Context) ([]domain.LegalPassage, error)
}

// Sink is a writable corpus store used by the import tool.
type Sink interface {
	Name() string
	Upsert(ctx context.Context, passages []domain.LegalPassage) error
}

// Load reads src and builds an Index. Any failure is fatal to the caller:
// a partially loaded index is never returned.
func Load(ctx context.Context, src Source, dim int) (*Index, error) {
	start := time.Now()

	passages, err := src.Passages(ctx)
	if err != nil {
		return nil, fmt.Errorf("load corpus from %s: %w", src.Name(), err)
	}

	ix, err := NewIndex(dim, passages)
	if err != nil {
		return nil, fmt.Errorf("load corpus from %s: %w", src.Name(), err)
	}

	counts := ix.Counts()
	logger.Info("Legal corpus loaded",
		zap.String("source", src.Name()),
		zap.Int("civil", counts[domain.CorpusCivil]),
		zap.Int("criminal", counts[domain.CorpusCriminal]),
		zap.Int("dimension", dim),
		zap.Duration("elapsed", time.Since(start)),
	)

	return ix, nil
}
