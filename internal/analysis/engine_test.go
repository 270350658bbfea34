package analysis

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/termscon/backend/internal/analyzer"
	"github.com/termscon/backend/internal/domain"
	"github.com/termscon/backend/internal/llm"
	"github.com/termscon/backend/internal/prompt"
	"github.com/termscon/backend/internal/segment"
)

const document = `These terms govern every use of the service.
1. The provider may change these terms at any time without prior notice.
2. The company is not liable for any damages arising from use of the service.
3. Orders are delivered by courier within five working days.
4. We may suspend accounts at our sole discretion.`

type emptySelector struct{}

func (emptySelector) Select(context.Context, string) domain.LegalContext {
	return domain.LegalContext{}
}

type slowBackend struct {
	delay time.Duration
	calls atomic.Int32
}

func (b *slowBackend) Name() string { return "slow" }

func (b *slowBackend) Complete(ctx context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
	b.calls.Add(1)
	select {
	case <-time.After(b.delay):
		return &llm.CompletionResponse{Content: `{"risk_level":"low","summary":"ok","conflicts":[],"explanation":"fine","relevant_laws":[]}`}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type recorder struct {
	mu      sync.Mutex
	reports []*Report
	err     error
}

func (r *recorder) RecordAnalysis(_ context.Context, report *Report, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, report)
	return r.err
}

func newEngine(backend llm.Backend, opts Options) *Engine {
	a := analyzer.New(backend, prompt.NewBuilder("", 0), nil, analyzer.Options{Timeout: 5 * time.Second})
	return NewEngine(segment.New(segment.DefaultOptions()), emptySelector{}, a, opts)
}

func TestAnalyzeEmptyDocument(t *testing.T) {
	report, err := newEngine(nil, Options{}).Analyze(context.Background(), "")
	require.NoError(t, err)

	assert.Empty(t, report.Results)
	assert.NotNil(t, report.Results)
	assert.Equal(t, 0, report.Summary.TotalClauses)
	assert.Equal(t, domain.RiskLow, report.Summary.OverallRisk)
	assert.Len(t, report.Summary.CountsByRisk, 4)
}

func TestAnalyzeFallbackOnly(t *testing.T) {
	report, err := newEngine(nil, Options{Workers: 2}).Analyze(context.Background(), document)
	require.NoError(t, err)

	require.Len(t, report.Results, 5)
	for i, r := range report.Results {
		assert.Equal(t, i, r.ClauseIndex)
		assert.Equal(t, domain.SourceHeuristic, r.Source)
	}
	assert.Equal(t, 5, report.Summary.TotalClauses)
	assert.Equal(t, domain.RiskCritical, report.Summary.OverallRisk)
	assert.Equal(t, domain.RiskHigh, report.Results[1].RiskLevel)
	assert.NotEmpty(t, report.Results[1].Conflicts)
}

func TestAnalyzePreservesClauseOrder(t *testing.T) {
	backend := &slowBackend{delay: 5 * time.Millisecond}
	report, err := newEngine(backend, Options{Workers: 4}).Analyze(context.Background(), document)
	require.NoError(t, err)

	require.Len(t, report.Results, 5)
	clauses := segment.New(segment.DefaultOptions()).Segment(document)
	for i, r := range report.Results {
		assert.Equal(t, clauses[i].Index, r.ClauseIndex)
		assert.Equal(t, clauses[i].Text, r.ClauseText)
		assert.Equal(t, domain.SourceModel, r.Source)
	}
	assert.Equal(t, int32(5), backend.calls.Load())
}

func TestAnalyzeProgressCallback(t *testing.T) {
	var seen []int
	report, err := newEngine(nil, Options{Workers: 3}).Analyze(context.Background(), document,
		WithProgress(func(r domain.RiskResult) { seen = append(seen, r.ClauseIndex) }),
		WithFilename("terms.txt"),
	)
	require.NoError(t, err)

	assert.ElementsMatch(t, []int{0, 1, 2, 3, 4}, seen)
	assert.Equal(t, "terms.txt", report.Filename)
}

func TestAnalyzeCancellation(t *testing.T) {
	backend := &slowBackend{delay: 5 * time.Second}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	rec := &recorder{}
	report, err := newEngine(backend, Options{Workers: 2, Recorder: rec}).Analyze(ctx, document)
	require.Error(t, err)
	assert.Nil(t, report)
	assert.True(t, errors.Is(err, ErrCancelled))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Empty(t, rec.reports)
}

func TestAnalyzeAlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := newEngine(nil, Options{}).Analyze(ctx, document)
	assert.Nil(t, report)
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestRecorderFailureDoesNotFailAnalysis(t *testing.T) {
	rec := &recorder{err: errors.New("disk full")}
	report, err := newEngine(nil, Options{Recorder: rec}).Analyze(context.Background(), "One single clause that is long enough.")
	require.NoError(t, err)
	require.Len(t, rec.reports, 1)
	assert.Equal(t, report.ID, rec.reports[0].ID)
}

func TestAnalyzeNonBlankInputYieldsClause(t *testing.T) {
	report, err := newEngine(nil, Options{}).Analyze(context.Background(), "  short  ")
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, "short", strings.TrimSpace(report.Results[0].ClauseText))
}
