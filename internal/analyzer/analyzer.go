// Package analyzer assesses the legal risk of a single clause, using a
// language model when one is available and trigger phrases otherwise.
package analyzer

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/termscon/backend/internal/domain"
	"github.com/termscon/backend/internal/llm"
	"github.com/termscon/backend/internal/metrics"
	"github.com/termscon/backend/internal/prompt"
	"github.com/termscon/backend/pkg/logger"
	"github.com/termscon/backend/pkg/utils"
)

type OutcomeKind int

const (
	OutcomeModel OutcomeKind = iota
	OutcomeFallback
)

func (k OutcomeKind) String() string {
	if k == OutcomeModel {
		return "model"
	}
	return "fallback"
}

// Outcome records how a result was produced. Reason is empty for model
// results and names the failure class for fallbacks.
type Outcome struct {
	Kind   OutcomeKind
	Reason string
}

const ReasonMalformed = "malformed"

// ResponseCache stores raw model replies keyed by prompt hash.
type ResponseCache interface {
	GetCompletion(ctx context.Context, promptHash string) (string, bool, error)
	SetCompletion(ctx context.Context, promptHash, content string, ttl time.Duration) error
}

type Options struct {
	MaxOutputTokens int
	Timeout         time.Duration
	Cache           ResponseCache
	CacheTTL        time.Duration
}

type RiskAnalyzer struct {
	backend   llm.Backend
	prompts   *prompt.Builder
	heuristic *Heuristic
	opts      Options
	log       *zap.Logger
}

// New accepts a nil backend; every clause then takes the heuristic path.
func New(backend llm.Backend, prompts *prompt.Builder, heuristic *Heuristic, opts Options) *RiskAnalyzer {
	if opts.MaxOutputTokens <= 0 {
		opts.MaxOutputTokens = 400
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if heuristic == nil {
		heuristic = NewHeuristic(DefaultFamilies())
	}
	return &RiskAnalyzer{
		backend:   backend,
		prompts:   prompts,
		heuristic: heuristic,
		opts:      opts,
		log:       logger.Named("analyzer"),
	}
}

func (a *RiskAnalyzer) Configured() bool {
	return a.backend != nil
}

// Analyze always yields a result for the clause.
func (a *RiskAnalyzer) Analyze(ctx context.Context, clause domain.Clause, lctx domain.LegalContext) domain.RiskResult {
	result, _ := a.AnalyzeWithOutcome(ctx, clause, lctx)
	return result
}

func (a *RiskAnalyzer) AnalyzeWithOutcome(ctx context.Context, clause domain.Clause, lctx domain.LegalContext) (domain.RiskResult, Outcome) {
	result, outcome := a.analyze(ctx, clause, lctx)
	metrics.ClauseAnalyses.WithLabelValues(string(result.Source), outcomeLabel(outcome)).Inc()
	return result, outcome
}

func (a *RiskAnalyzer) analyze(ctx context.Context, clause domain.Clause, lctx domain.LegalContext) (domain.RiskResult, Outcome) {
	if a.backend == nil {
		return a.fallback(clause, lctx, llm.Reason(llm.ErrUnconfigured))
	}

	userPrompt := a.prompts.Build(clause.Text, lctx)
	cacheKey := utils.HashString(a.backend.Name(), a.prompts.SystemPrompt(), userPrompt)

	if raw, ok := a.cached(ctx, cacheKey); ok {
		if result, err := parseResponse(raw, clause); err == nil {
			return result, Outcome{Kind: OutcomeModel}
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	defer cancel()

	resp, err := a.backend.Complete(callCtx, llm.CompletionRequest{
		SystemPrompt: a.prompts.SystemPrompt(),
		UserPrompt:   userPrompt,
		MaxTokens:    a.opts.MaxOutputTokens,
		JSONMode:     true,
	})
	if err != nil {
		reason := llm.Reason(err)
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			reason = "timeout"
		}
		a.log.Warn("Model call failed, using heuristic analysis",
			zap.Int("clause_index", clause.Index),
			zap.String("outcome", reason),
			zap.Error(err),
		)
		return a.fallback(clause, lctx, reason)
	}

	metrics.LLMTokensUsed.WithLabelValues(a.backend.Name(), "prompt").Add(float64(resp.Usage.PromptTokens))
	metrics.LLMTokensUsed.WithLabelValues(a.backend.Name(), "completion").Add(float64(resp.Usage.CompletionTokens))

	result, err := parseResponse(resp.Content, clause)
	if err != nil {
		a.log.Warn("Malformed model response, using heuristic analysis",
			zap.Int("clause_index", clause.Index),
			zap.String("outcome", ReasonMalformed),
			zap.Error(err),
		)
		return a.fallback(clause, lctx, ReasonMalformed)
	}

	a.store(ctx, cacheKey, resp.Content)
	return result, Outcome{Kind: OutcomeModel}
}

func (a *RiskAnalyzer) fallback(clause domain.Clause, lctx domain.LegalContext, reason string) (domain.RiskResult, Outcome) {
	return a.heuristic.Assess(clause, lctx), Outcome{Kind: OutcomeFallback, Reason: reason}
}

func (a *RiskAnalyzer) cached(ctx context.Context, key string) (string, bool) {
	if a.opts.Cache == nil {
		return "", false
	}
	raw, ok, err := a.opts.Cache.GetCompletion(ctx, key)
	if err != nil {
		a.log.Warn("Response cache read failed", zap.Error(err))
		return "", false
	}
	if ok {
		metrics.CacheHits.WithLabelValues("completion").Inc()
	} else {
		metrics.CacheMisses.WithLabelValues("completion").Inc()
	}
	return raw, ok
}

func (a *RiskAnalyzer) store(ctx context.Context, key, raw string) {
	if a.opts.Cache == nil {
		return
	}
	if err := a.opts.Cache.SetCompletion(ctx, key, raw, a.opts.CacheTTL); err != nil {
		a.log.Warn("Response cache write failed", zap.Error(err))
	}
}

func outcomeLabel(o Outcome) string {
	if o.Kind == OutcomeModel {
		return "ok"
	}
	return o.Reason
}
