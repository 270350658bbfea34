package analyzer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/termscon/backend/internal/domain"
	"github.com/termscon/backend/internal/llm"
	"github.com/termscon/backend/internal/prompt"
	"github.com/termscon/backend/pkg/circuitbreaker"
)

type fakeBackend struct {
	mu      sync.Mutex
	content string
	err     error
	calls   int
	last    llm.CompletionRequest
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &llm.CompletionResponse{Content: f.content}, nil
}

type memCache struct {
	mu   sync.Mutex
	data map[string]string
}

func (m *memCache) GetCompletion(_ context.Context, k string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[k]
	return v, ok, nil
}

func (m *memCache) SetCompletion(_ context.Context, k, v string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[k] = v
	return nil
}

const validReply = `{"risk_level":"high","summary":"Unilateral changes.","conflicts":["§ 1752"],"explanation":"The provider can change terms.","relevant_laws":["§ 1752 OZ"]}`

var modificationClause = domain.Clause{Index: 3, Text: "The provider may change these terms at any time without prior notice."}

func newAnalyzer(backend llm.Backend, cache ResponseCache) *RiskAnalyzer {
	return New(backend, prompt.NewBuilder("", 0), nil, Options{MaxOutputTokens: 400, Timeout: time.Second, Cache: cache})
}

func TestAnalyzeModelSuccess(t *testing.T) {
	backend := &fakeBackend{content: "```json\n" + validReply + "\n```"}
	a := newAnalyzer(backend, nil)

	result, outcome := a.AnalyzeWithOutcome(context.Background(), modificationClause, domain.LegalContext{})
	assert.Equal(t, OutcomeModel, outcome.Kind)
	assert.Equal(t, domain.SourceModel, result.Source)
	assert.Equal(t, domain.RiskHigh, result.RiskLevel)
	assert.Equal(t, 3, result.ClauseIndex)
	assert.Equal(t, modificationClause.Text, result.ClauseText)
	assert.Equal(t, []string{"§ 1752 OZ"}, result.RelevantLaws)
	assert.Equal(t, 400, backend.last.MaxTokens)
	assert.True(t, backend.last.JSONMode)
	assert.Contains(t, backend.last.UserPrompt, modificationClause.Text)
}

func TestAnalyzeUnconfiguredBackend(t *testing.T) {
	a := newAnalyzer(nil, nil)
	assert.False(t, a.Configured())

	result, outcome := a.AnalyzeWithOutcome(context.Background(), modificationClause, domain.LegalContext{})
	assert.Equal(t, OutcomeFallback, outcome.Kind)
	assert.Equal(t, "unconfigured", outcome.Reason)
	assert.Equal(t, domain.SourceHeuristic, result.Source)
	assert.GreaterOrEqual(t, result.RiskLevel, domain.RiskHigh)
	assert.NotEmpty(t, result.Conflicts)
}

func TestAnalyzeBackendErrors(t *testing.T) {
	cases := map[string]error{
		"circuit_open": circuitbreaker.ErrCircuitOpen,
		"transport":    fmt.Errorf("%w: connection refused", llm.ErrTransport),
		"rate_limited": fmt.Errorf("%w: 429", llm.ErrRateLimited),
	}
	for want, err := range cases {
		backend := &fakeBackend{err: err}
		result, outcome := newAnalyzer(backend, nil).AnalyzeWithOutcome(context.Background(), modificationClause, domain.LegalContext{})
		assert.Equal(t, OutcomeFallback, outcome.Kind)
		assert.Equal(t, want, outcome.Reason)
		assert.Equal(t, domain.SourceHeuristic, result.Source)
		assert.Equal(t, 1, backend.calls, "no retry for %s", want)
	}
}

func TestAnalyzeMalformedResponses(t *testing.T) {
	replies := []string{
		"I cannot help with that.",
		`{"risk_level":"severe","summary":"x","conflicts":[],"explanation":"y","relevant_laws":[]}`,
		`{"risk_level":"low","summary":"x","conflicts":[],"explanation":"y"}`,
		`{"risk_level":"low","summary":"","conflicts":[],"explanation":"y","relevant_laws":[]}`,
		`{"risk_level":"high","summary":"   ","conflicts":[],"explanation":"y","relevant_laws":[]}`,
		`{"risk_level":"high","summary":"x","conflicts":[],"explanation":"  ","relevant_laws":[]}`,
		`{"risk_level":"low","summary":"x","conflicts":[],"explanation":"y","relevant_laws":[],"score":3}`,
		`{"risk_level":"low","summary":"x"`,
	}
	for _, reply := range replies {
		backend := &fakeBackend{content: reply}
		result, outcome := newAnalyzer(backend, nil).AnalyzeWithOutcome(context.Background(), modificationClause, domain.LegalContext{})
		assert.Equal(t, OutcomeFallback, outcome.Kind, reply)
		assert.Equal(t, ReasonMalformed, outcome.Reason, reply)
		assert.Equal(t, domain.SourceHeuristic, result.Source, reply)
		assert.Equal(t, 1, backend.calls)
	}
}

func TestAnalyzeCapsModelFields(t *testing.T) {
	reply := fmt.Sprintf(`{"risk_level":"Critical","summary":%q,"conflicts":["a","b","c","d"],"explanation":%q,"relevant_laws":["1","","2","3","4"]}`,
		strings.Repeat("s", 500), strings.Repeat("e", 500))
	result := newAnalyzer(&fakeBackend{content: reply}, nil).Analyze(context.Background(), modificationClause, domain.LegalContext{})

	assert.Equal(t, domain.RiskCritical, result.RiskLevel)
	assert.LessOrEqual(t, utf8.RuneCountInString(result.Summary), 200)
	assert.LessOrEqual(t, utf8.RuneCountInString(result.Explanation), 300)
	assert.Equal(t, []string{"a", "b", "c"}, result.Conflicts)
	assert.Equal(t, []string{"1", "2", "3"}, result.RelevantLaws)
}

func TestAnalyzeCachesOnlyValidReplies(t *testing.T) {
	cache := &memCache{data: map[string]string{}}

	bad := &fakeBackend{content: "not json"}
	newAnalyzer(bad, cache).Analyze(context.Background(), modificationClause, domain.LegalContext{})
	assert.Empty(t, cache.data)

	good := &fakeBackend{content: validReply}
	a := newAnalyzer(good, cache)
	a.Analyze(context.Background(), modificationClause, domain.LegalContext{})
	a.Analyze(context.Background(), modificationClause, domain.LegalContext{})
	assert.Len(t, cache.data, 1)
	assert.Equal(t, 1, good.calls)
}

func TestFirstJSONObject(t *testing.T) {
	obj, ok := firstJSONObject(`Here you go: {"a":"}{","b":{"c":1}} trailing {"d":2}`)
	require.True(t, ok)
	assert.Equal(t, `{"a":"}{","b":{"c":1}}`, obj)

	_, ok = firstJSONObject("no braces")
	assert.False(t, ok)

	_, ok = firstJSONObject(`{"unterminated": 1`)
	assert.False(t, ok)
}

func TestParseResponseErrorsWrapSentinel(t *testing.T) {
	_, err := parseResponse("nothing", modificationClause)
	assert.True(t, errors.Is(err, ErrMalformedResponse))
}
