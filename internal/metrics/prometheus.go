package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ClauseAnalyses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "termscon_clause_analyses_total",
			Help: "Clauses analyzed, by result source and outcome reason",
		},
		[]string{"source", "outcome"},
	)

	ClauseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "termscon_clause_analysis_duration_seconds",
			Help:    "Per-clause retrieval and analysis duration in seconds",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"source"},
	)

	DocumentDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "termscon_document_analysis_duration_seconds",
			Help:    "Whole-document analysis duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
		},
	)

	DocumentsAnalyzed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "termscon_documents_analyzed_total",
			Help: "Documents analyzed, by overall risk or cancellation",
		},
		[]string{"status"},
	)

	ContextPassages = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "termscon_context_passages",
			Help:    "Passages selected per clause after the relevance floor",
			Buckets: []float64{0, 1, 2, 3, 5},
		},
		[]string{"corpus"},
	)

	EmbeddingFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "termscon_embedding_failures_total",
			Help: "Clause embeddings that failed and produced an empty context",
		},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "termscon_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "termscon_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "termscon_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	CorpusPassages = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "termscon_corpus_passages",
			Help: "Passages loaded per legal corpus",
		},
		[]string{"corpus"},
	)

	CitationGraphWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "termscon_citation_graph_writes_total",
			Help: "Citation graph exports, by status",
		},
		[]string{"status"},
	)
)

func Init() {
	prometheus.MustRegister(ClauseAnalyses)
	prometheus.MustRegister(ClauseDuration)
	prometheus.MustRegister(DocumentDuration)
	prometheus.MustRegister(DocumentsAnalyzed)
	prometheus.MustRegister(ContextPassages)
	prometheus.MustRegister(EmbeddingFailures)
	prometheus.MustRegister(LLMTokensUsed)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(CorpusPassages)
	prometheus.MustRegister(CitationGraphWrites)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
