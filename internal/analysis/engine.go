// Package analysis runs the whole-document pipeline: segmentation, per
// clause retrieval and risk analysis on a bounded worker pool, and the
// document summary.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/termscon/backend/internal/analyzer"
	"github.com/termscon/backend/internal/domain"
	"github.com/termscon/backend/internal/metrics"
	"github.com/termscon/backend/pkg/logger"
)

var ErrCancelled = errors.New("analysis cancelled")

type Segmenter interface {
	Segment(text string) []domain.Clause
}

type ContextSelector interface {
	Select(ctx context.Context, clauseText string) domain.LegalContext
}

type RiskAnalyzer interface {
	AnalyzeWithOutcome(ctx context.Context, clause domain.Clause, lctx domain.LegalContext) (domain.RiskResult, analyzer.Outcome)
}

// Recorder persists completed reports.
type Recorder interface {
	RecordAnalysis(ctx context.Context, report *Report, text string) error
}

// CitationGraph receives the clause-to-law links of completed reports.
type CitationGraph interface {
	ExportCitations(ctx context.Context, report *Report) error
}

type Report struct {
	ID        uuid.UUID              `json:"id"`
	Filename  string                 `json:"filename,omitempty"`
	Summary   domain.DocumentSummary `json:"summary"`
	Results   []domain.RiskResult    `json:"results"`
	Duration  time.Duration          `json:"-"`
	CreatedAt time.Time              `json:"created_at"`
}

type Options struct {
	Workers  int
	Recorder Recorder
	Graph    CitationGraph
}

type Engine struct {
	segmenter Segmenter
	selector  ContextSelector
	analyzer  RiskAnalyzer
	opts      Options
	log       *zap.Logger
}

func NewEngine(segmenter Segmenter, selector ContextSelector, riskAnalyzer RiskAnalyzer, opts Options) *Engine {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	return &Engine{
		segmenter: segmenter,
		selector:  selector,
		analyzer:  riskAnalyzer,
		opts:      opts,
		log:       logger.Named("analysis"),
	}
}

type runConfig struct {
	filename string
	progress func(domain.RiskResult)
}

type RunOption func(*runConfig)

// WithProgress registers a callback invoked once per resolved clause, in
// completion order. Calls are serialized.
func WithProgress(fn func(domain.RiskResult)) RunOption {
	return func(c *runConfig) { c.progress = fn }
}

func WithFilename(name string) RunOption {
	return func(c *runConfig) { c.filename = name }
}

// Analyze returns one result per clause in clause order plus the summary.
// If ctx ends before every clause resolves it returns ErrCancelled and no
// results.
func (e *Engine) Analyze(ctx context.Context, text string, opts ...RunOption) (*Report, error) {
	var rc runConfig
	for _, opt := range opts {
		opt(&rc)
	}

	start := time.Now()
	report := &Report{ID: uuid.New(), Filename: rc.filename, CreatedAt: start.UTC()}

	clauses := e.segmenter.Segment(text)
	e.log.Info("Analyzing document",
		zap.String("analysis_id", report.ID.String()),
		zap.Int("clauses", len(clauses)),
		zap.Int("workers", e.opts.Workers),
	)

	results, err := e.analyzeClauses(ctx, clauses, rc.progress)
	if err != nil {
		metrics.DocumentsAnalyzed.WithLabelValues("cancelled").Inc()
		e.log.Info("Analysis cancelled", zap.String("analysis_id", report.ID.String()), zap.Error(err))
		return nil, err
	}

	report.Results = results
	report.Summary = domain.Summarize(results)
	report.Duration = time.Since(start)

	metrics.DocumentDuration.Observe(report.Duration.Seconds())
	metrics.DocumentsAnalyzed.WithLabelValues(report.Summary.OverallRisk.String()).Inc()
	e.log.Info("Analysis completed",
		zap.String("analysis_id", report.ID.String()),
		zap.Int("clauses", report.Summary.TotalClauses),
		zap.String("overall_risk", report.Summary.OverallRisk.String()),
		zap.Duration("duration", report.Duration),
	)

	e.sink(context.WithoutCancel(ctx), report, text)
	return report, nil
}

func (e *Engine) analyzeClauses(ctx context.Context, clauses []domain.Clause, progress func(domain.RiskResult)) ([]domain.RiskResult, error) {
	results := make([]domain.RiskResult, len(clauses))
	if len(clauses) == 0 {
		return results, nil
	}

	var progressMu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)

	var abandoned error
	for i, clause := range clauses {
		if abandoned = gctx.Err(); abandoned != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			clauseStart := time.Now()
			lctx := e.selector.Select(gctx, clause.Text)
			result, outcome := e.analyzer.AnalyzeWithOutcome(gctx, clause, lctx)
			if err := gctx.Err(); err != nil {
				return err
			}

			results[i] = result
			metrics.ClauseDuration.WithLabelValues(string(result.Source)).Observe(time.Since(clauseStart).Seconds())
			e.log.Debug("Clause analyzed",
				zap.Int("clause_index", clause.Index),
				zap.String("risk_level", result.RiskLevel.String()),
				zap.String("outcome", outcome.Kind.String()),
				zap.String("reason", outcome.Reason),
				zap.Duration("duration", time.Since(clauseStart)),
			)

			if progress != nil {
				progressMu.Lock()
				progress(result)
				progressMu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	if abandoned != nil {
		return nil, fmt.Errorf("%w: %w", ErrCancelled, abandoned)
	}
	return results, nil
}

// sink hands the report to the optional recorder and citation graph.
// Their failures never affect the returned report.
func (e *Engine) sink(ctx context.Context, report *Report, text string) {
	if e.opts.Recorder != nil {
		if err := e.opts.Recorder.RecordAnalysis(ctx, report, text); err != nil {
			e.log.Error("Failed to record analysis", zap.String("analysis_id", report.ID.String()), zap.Error(err))
		}
	}
	if e.opts.Graph != nil {
		if err := e.opts.Graph.ExportCitations(ctx, report); err != nil {
			metrics.CitationGraphWrites.WithLabelValues("error").Inc()
			e.log.Warn("Failed to export citation graph", zap.String("analysis_id", report.ID.String()), zap.Error(err))
		} else {
			metrics.CitationGraphWrites.WithLabelValues("ok").Inc()
		}
	}
}
