package corpus

import (
	"bytes"
	"context"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/termscon/backend/internal/domain"
)

func passage(corpus domain.CorpusID, citation string, emb ...float32) domain.LegalPassage {
	return domain.LegalPassage{Corpus: corpus, Citation: citation, Text: "Text of " + citation, Embedding: emb}
}

func testPassages() []domain.LegalPassage {
	return []domain.LegalPassage{
		passage(domain.CorpusCivil, "§ 1753", 1, 0, 0),
		passage(domain.CorpusCivil, "§ 1799", 0.8, 0.6, 0),
		passage(domain.CorpusCivil, "§ 2000", 0, 1, 0),
		passage(domain.CorpusCriminal, "§ 209", 0, 0, 1),
		passage(domain.CorpusCriminal, "§ 230", -1, 0, 0),
	}
}

func TestNewIndexValidation(t *testing.T) {
	_, err := NewIndex(3, testPassages()[:3])
	assert.ErrorIs(t, err, ErrEmptyCorpus)

	bad := append(testPassages(), passage(domain.CorpusCivil, "§ 1", 1, 2))
	_, err = NewIndex(3, bad)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	dup := append(testPassages(), passage(domain.CorpusCivil, "§ 1753", 0, 0, 1))
	_, err = NewIndex(3, dup)
	assert.ErrorIs(t, err, ErrInvalidPassage)

	zero := append(testPassages(), passage(domain.CorpusCivil, "§ 3", 0, 0, 0))
	_, err = NewIndex(3, zero)
	assert.ErrorIs(t, err, ErrInvalidPassage)

	unknown := append(testPassages(), passage("tax", "§ 4", 1, 0, 0))
	_, err = NewIndex(3, unknown)
	assert.ErrorIs(t, err, ErrInvalidPassage)

	_, err = NewIndex(0, testPassages())
	assert.Error(t, err)
}

func TestQueryOrdering(t *testing.T) {
	ix, err := NewIndex(3, testPassages())
	require.NoError(t, err)

	got := ix.Query(domain.CorpusCivil, []float32{1, 0, 0}, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "§ 1753", got[0].Passage.Citation)
	assert.InDelta(t, 1.0, got[0].Similarity, 1e-6)
	assert.Equal(t, "§ 1799", got[1].Passage.Citation)
	assert.InDelta(t, 0.8, got[1].Similarity, 1e-6)

	all := ix.Query(domain.CorpusCivil, []float32{1, 0, 0}, 10)
	assert.Len(t, all, 3)
}

func TestQueryClampsNegativeSimilarity(t *testing.T) {
	ix, err := NewIndex(3, testPassages())
	require.NoError(t, err)

	got := ix.Query(domain.CorpusCriminal, []float32{1, 0, 0}, 2)
	require.Len(t, got, 2)
	for _, sp := range got {
		assert.GreaterOrEqual(t, sp.Similarity, 0.0)
		assert.LessOrEqual(t, sp.Similarity, 1.0)
	}
}

func TestQueryTieBreaksByCitation(t *testing.T) {
	ix, err := NewIndex(2, []domain.LegalPassage{
		passage(domain.CorpusCivil, "§ 20", 1, 0),
		passage(domain.CorpusCivil, "§ 10", 1, 0),
		passage(domain.CorpusCriminal, "§ 5", 0, 1),
	})
	require.NoError(t, err)

	got := ix.Query(domain.CorpusCivil, []float32{2, 0}, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "§ 10", got[0].Passage.Citation)
	assert.Equal(t, "§ 20", got[1].Passage.Citation)
}

func TestQueryDegenerateInput(t *testing.T) {
	ix, err := NewIndex(3, testPassages())
	require.NoError(t, err)

	assert.Empty(t, ix.Query(domain.CorpusCivil, nil, 2))
	assert.Empty(t, ix.Query(domain.CorpusCivil, []float32{1, 0}, 2))
	assert.Empty(t, ix.Query(domain.CorpusCivil, []float32{0, 0, 0}, 2))
	assert.Empty(t, ix.Query(domain.CorpusCivil, []float32{1, 0, 0}, 0))
	assert.NotNil(t, ix.Query(domain.CorpusCivil, nil, 2))
}

func TestIndexCopiesEmbeddings(t *testing.T) {
	ps := testPassages()
	ix, err := NewIndex(3, ps)
	require.NoError(t, err)

	ps[0].Embedding[0] = 0
	got := ix.Query(domain.CorpusCivil, []float32{1, 0, 0}, 1)
	require.Len(t, got, 1)
	assert.Equal(t, "§ 1753", got[0].Passage.Citation)
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.db")

	w, err := CreateSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, w.Upsert(context.Background(), testPassages()))
	require.NoError(t, w.Close())

	r, err := OpenSQLiteStore(path)
	require.NoError(t, err)
	defer r.Close()

	ix, err := Load(context.Background(), r, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, ix.Counts()[domain.CorpusCivil])
	assert.Equal(t, 2, ix.Counts()[domain.CorpusCriminal])
}

func TestOpenSQLiteStoreMissingFile(t *testing.T) {
	_, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "missing.db"))
	assert.Error(t, err)
}

func TestEmbeddingBlobCodec(t *testing.T) {
	in := []float32{0.25, -1.5, 3}
	out, err := DecodeEmbedding(EncodeEmbedding(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = DecodeEmbedding([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestVectorLiteral(t *testing.T) {
	assert.Equal(t, "[0.5,-1,2.25]", formatVector([]float32{0.5, -1, 2.25}))

	v, err := parseVector("[0.5, -1,2.25]")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, -1, 2.25}, v)

	_, err = parseVector("0.5,1")
	assert.Error(t, err)
}

func TestSnapshotLocalFile(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeJSONL(&buf, testPassages()))

	path := filepath.Join(t.TempDir(), "corpus.jsonl")
	require.NoError(t, PutURI(context.Background(), path, S3Options{}, &buf))

	ix, err := Load(context.Background(), NewSnapshotSource(path, S3Options{}), 3)
	require.NoError(t, err)
	assert.Equal(t, 2, ix.Counts()[domain.CorpusCriminal])
}

func TestDecodeJSONL(t *testing.T) {
	in := `{"corpus":"Civil","citation":" § 1 ","text":"a"}

{"corpus":"criminal","citation":"§ 2","text":"b","embedding":[1,2]}
`
	recs, err := DecodeJSONL(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, domain.CorpusCivil, recs[0].Passage().Corpus)
	assert.Equal(t, "§ 1", recs[0].Passage().Citation)
	assert.Equal(t, []float32{1, 2}, recs[1].Embedding)

	_, err = DecodeJSONL(strings.NewReader("{broken"))
	assert.Error(t, err)
}

func TestParseS3URI(t *testing.T) {
	b, k, ok := parseS3URI("s3://bucket/path/corpus.jsonl")
	assert.True(t, ok)
	assert.Equal(t, "bucket", b)
	assert.Equal(t, "path/corpus.jsonl", k)

	_, _, ok = parseS3URI("./corpus.jsonl")
	assert.False(t, ok)
	_, _, ok = parseS3URI("s3://bucket")
	assert.False(t, ok)
}

func TestMilvusDeleteExprs(t *testing.T) {
	exprs := deleteExprs([]domain.LegalPassage{
		{Corpus: domain.CorpusCriminal, Citation: "§ 209"},
		{Corpus: domain.CorpusCivil, Citation: "§ 1752"},
		{Corpus: domain.CorpusCivil, Citation: `čl. "6"`},
	})
	assert.Equal(t, []string{
		`corpus == "civil" && citation in ["§ 1752", "čl. \"6\""]`,
		`corpus == "criminal" && citation in ["§ 209"]`,
	}, exprs)
}

func TestValidatePassage(t *testing.T) {
	p, err := ValidatePassage(3, domain.LegalPassage{Corpus: " Civil ", Citation: " § 1 ", Text: "t", Embedding: []float32{1, 0, 0}})
	require.NoError(t, err)
	assert.Equal(t, domain.CorpusCivil, p.Corpus)
	assert.Equal(t, "§ 1", p.Citation)

	cases := map[string]struct {
		p    domain.LegalPassage
		want error
	}{
		"unknown corpus":  {domain.LegalPassage{Corpus: "tax", Citation: "x", Text: "t", Embedding: []float32{1, 0, 0}}, ErrInvalidPassage},
		"empty citation":  {domain.LegalPassage{Corpus: "civil", Citation: "  ", Text: "t", Embedding: []float32{1, 0, 0}}, ErrInvalidPassage},
		"empty text":      {domain.LegalPassage{Corpus: "civil", Citation: "x", Text: " ", Embedding: []float32{1, 0, 0}}, ErrInvalidPassage},
		"wrong dimension": {domain.LegalPassage{Corpus: "civil", Citation: "x", Text: "t", Embedding: []float32{1, 0}}, ErrDimensionMismatch},
		"zero vector":     {domain.LegalPassage{Corpus: "civil", Citation: "x", Text: "t", Embedding: []float32{0, 0, 0}}, ErrInvalidPassage},
		"nan":             {domain.LegalPassage{Corpus: "criminal", Citation: "x", Text: "t", Embedding: []float32{float32(math.NaN()), 1, 0}}, ErrInvalidPassage},
		"inf":             {domain.LegalPassage{Corpus: "criminal", Citation: "x", Text: "t", Embedding: []float32{float32(math.Inf(1)), 1, 0}}, ErrInvalidPassage},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ValidatePassage(3, tc.p)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}
