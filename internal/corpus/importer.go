package corpus

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/termscon/backend/internal/domain"
	"github.com/termscon/backend/pkg/logger"
)

// BatchEmbedder embeds many texts in one call, in order.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Prepare turns import records into validated passages. Records without
// an embedding are embedded with embedder; a nil embedder makes them an
// error. Later duplicates of a (corpus, citation) pair replace earlier ones.
func Prepare(ctx context.Context, records []Record, embedder BatchEmbedder, dim int) ([]domain.LegalPassage, error) {
	passages := make([]domain.LegalPassage, len(records))
	var missing []int
	for i, rec := range records {
		passages[i] = rec.Passage()
		if len(rec.Embedding) == 0 {
			missing = append(missing, i)
		}
	}

	if len(missing) > 0 {
		if embedder == nil {
			return nil, fmt.Errorf("%d records have no embedding and no embedder is configured", len(missing))
		}
		texts := make([]string, len(missing))
		for j, i := range missing {
			texts[j] = passages[i].Text
		}
		logger.Info("Embedding corpus passages", zap.Int("count", len(texts)))

		vectors, err := embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("failed to embed passages: %w", err)
		}
		if len(vectors) != len(texts) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(texts))
		}
		for j, i := range missing {
			passages[i].Embedding = vectors[j]
		}
	}

	out := make([]domain.LegalPassage, 0, len(passages))
	pos := make(map[string]int, len(passages))
	for i, p := range passages {
		p, err := ValidatePassage(dim, p)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i+1, err)
		}
		key := string(p.Corpus) + "\x00" + p.Citation
		if j, ok := pos[key]; ok {
			out[j] = p
			continue
		}
		pos[key] = len(out)
		out = append(out, p)
	}
	return out, nil
}

// UpsertBatches writes passages to sink in chunks of size.
func UpsertBatches(ctx context.Context, sink Sink, passages []domain.LegalPassage, size int) error {
	if size <= 0 {
		size = 500
	}
	for start := 0; start < len(passages); start += size {
		end := min(start+size, len(passages))
		if err := sink.Upsert(ctx, passages[start:end]); err != nil {
			return fmt.Errorf("upsert %d-%d into %s: %w", start, end, sink.Name(), err)
		}
		logger.Debug("Upserted corpus batch", zap.String("sink", sink.Name()), zap.Int("end", end))
	}
	return nil
}
