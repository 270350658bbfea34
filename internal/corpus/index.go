// Package corpus loads the embedded legal corpora and answers
// nearest-neighbour queries over them.
package corpus

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/termscon/backend/internal/domain"
)

var (
	ErrEmptyCorpus       = errors.New("corpus has no passages")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrInvalidPassage    = errors.New("invalid passage")
)

type entry struct {
	passage domain.LegalPassage
	norm    float64
}

// Index holds every passage of both corpora in memory. It is immutable
// after NewIndex returns and safe for concurrent queries without locking.
type Index struct {
	dim     int
	corpora map[domain.CorpusID][]entry
}

// NewIndex validates the passages and builds the index. Every corpus in
// domain.Corpora must contain at least one passage.
func NewIndex(dim int, passages []domain.LegalPassage) (*Index, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive, got %d", ErrDimensionMismatch, dim)
	}

	ix := &Index{dim: dim, corpora: make(map[domain.CorpusID][]entry, len(domain.Corpora))}
	seen := make(map[string]bool, len(passages))

	for i, p := range passages {
		p, norm, err := validatePassage(dim, p)
		if err != nil {
			return nil, fmt.Errorf("passage %d: %w", i, err)
		}
		key := string(p.Corpus) + "\x00" + p.Citation
		if seen[key] {
			return nil, fmt.Errorf("%w: duplicate citation %s in %s", ErrInvalidPassage, p.Citation, p.Corpus)
		}
		seen[key] = true

		emb := make([]float32, dim)
		copy(emb, p.Embedding)
		p.Embedding = emb
		ix.corpora[p.Corpus] = append(ix.corpora[p.Corpus], entry{passage: p, norm: norm})
	}

	for _, id := range domain.Corpora {
		if len(ix.corpora[id]) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrEmptyCorpus, id)
		}
	}

	return ix, nil
}

// ValidatePassage checks a single passage and returns it with the corpus
// ID normalized and the citation trimmed.
func ValidatePassage(dim int, p domain.LegalPassage) (domain.LegalPassage, error) {
	p, _, err := validatePassage(dim, p)
	return p, err
}

func validatePassage(dim int, p domain.LegalPassage) (domain.LegalPassage, float64, error) {
	id, err := domain.ParseCorpusID(string(p.Corpus))
	if err != nil {
		return p, 0, fmt.Errorf("%w: %v", ErrInvalidPassage, err)
	}
	p.Corpus = id
	p.Citation = strings.TrimSpace(p.Citation)
	if p.Citation == "" || strings.TrimSpace(p.Text) == "" {
		return p, 0, fmt.Errorf("%w: empty citation or text in %s", ErrInvalidPassage, p.Corpus)
	}
	if len(p.Embedding) != dim {
		return p, 0, fmt.Errorf("%w: %s %s has %d values, want %d", ErrDimensionMismatch, p.Corpus, p.Citation, len(p.Embedding), dim)
	}
	norm := vectorNorm(p.Embedding)
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return p, 0, fmt.Errorf("%w: %s %s has a zero or non-finite embedding", ErrInvalidPassage, p.Corpus, p.Citation)
	}
	return p, norm, nil
}

func (ix *Index) Dimension() int {
	return ix.dim
}

// Counts returns the number of passages per corpus.
func (ix *Index) Counts() map[domain.CorpusID]int {
	out := make(map[domain.CorpusID]int, len(ix.corpora))
	for id, entries := range ix.corpora {
		out[id] = len(entries)
	}
	return out
}

// Query returns at most k passages of the corpus ordered by descending
// cosine similarity, ties broken by ascending citation. A missing or
// malformed query embedding yields an empty result.
func (ix *Index) Query(corpus domain.CorpusID, embedding []float32, k int) []domain.ScoredPassage {
	entries := ix.corpora[corpus]
	if k <= 0 || len(entries) == 0 || len(embedding) != ix.dim {
		return []domain.ScoredPassage{}
	}

	qnorm := vectorNorm(embedding)
	if qnorm == 0 || math.IsNaN(qnorm) || math.IsInf(qnorm, 0) {
		return []domain.ScoredPassage{}
	}

	scored := make([]domain.ScoredPassage, len(entries))
	for i, e := range entries {
		scored[i] = domain.ScoredPassage{
			Passage:    e.passage,
			Similarity: cosine(embedding, qnorm, e.passage.Embedding, e.norm),
		}
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Similarity != scored[j].Similarity {
			return scored[i].Similarity > scored[j].Similarity
		}
		return scored[i].Passage.Citation < scored[j].Passage.Citation
	})

	if len(scored) > k {
		scored = scored[:k]
	}
	return scored
}

// cosine is clamped to [0,1]; opposed vectors count as unrelated.
func cosine(a []float32, anorm float64, b []float32, bnorm float64) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	sim := dot / (anorm * bnorm)
	switch {
	case math.IsNaN(sim) || sim < 0:
		return 0
	case sim > 1:
		return 1
	}
	return sim
}

func vectorNorm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
