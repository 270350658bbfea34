package corpus

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/termscon/backend/internal/domain"
)

type stubEmbedder struct {
	calls [][]string
}

func (s *stubEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	s.calls = append(s.calls, texts)
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, float32(i)}
	}
	return out, nil
}

func TestPrepareEmbedsMissing(t *testing.T) {
	records := []Record{
		{Corpus: "civil", Citation: "§ 1", Text: "a", Embedding: []float32{0, 1}},
		{Corpus: "Criminal", Citation: " § 2 ", Text: "b"},
		{Corpus: "civil", Citation: "§ 3", Text: "c"},
	}
	emb := &stubEmbedder{}

	out, err := Prepare(context.Background(), records, emb, 2)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, [][]string{{"b", "c"}}, emb.calls)
	assert.Equal(t, domain.CorpusCriminal, out[1].Corpus)
	assert.Equal(t, "§ 2", out[1].Citation)
	assert.Equal(t, []float32{1, 1}, out[2].Embedding)
}

func TestPrepareErrors(t *testing.T) {
	_, err := Prepare(context.Background(), []Record{{Corpus: "civil", Citation: "x", Text: "y"}}, nil, 2)
	assert.Error(t, err)

	_, err = Prepare(context.Background(), []Record{{Corpus: "civil", Citation: "x", Text: "y", Embedding: []float32{1}}}, nil, 2)
	assert.True(t, errors.Is(err, ErrDimensionMismatch))

	_, err = Prepare(context.Background(), []Record{{Corpus: "tax", Citation: "x", Text: "y", Embedding: []float32{1, 0}}}, nil, 2)
	assert.True(t, errors.Is(err, ErrInvalidPassage))
}

func TestPrepareLastDuplicateWins(t *testing.T) {
	records := []Record{
		{Corpus: "civil", Citation: "§ 1", Text: "old", Embedding: []float32{1, 0}},
		{Corpus: "civil", Citation: "§ 1", Text: "new", Embedding: []float32{0, 1}},
	}
	out, err := Prepare(context.Background(), records, nil, 2)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "new", out[0].Text)
}

type countingSink struct{ batches []int }

func (c *countingSink) Name() string { return "counting" }

func (c *countingSink) Upsert(_ context.Context, passages []domain.LegalPassage) error {
	c.batches = append(c.batches, len(passages))
	return nil
}

func TestUpsertBatches(t *testing.T) {
	passages := make([]domain.LegalPassage, 7)
	sink := &countingSink{}
	require.NoError(t, UpsertBatches(context.Background(), sink, passages, 3))
	assert.Equal(t, []int{3, 3, 1}, sink.batches)
}
