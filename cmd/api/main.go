package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/termscon/backend/internal/analysis"
	"github.com/termscon/backend/internal/analyzer"
	"github.com/termscon/backend/internal/api/handlers"
	"github.com/termscon/backend/internal/cache/redis"
	"github.com/termscon/backend/internal/corpus"
	"github.com/termscon/backend/internal/domain"
	"github.com/termscon/backend/internal/kg/neo4j"
	"github.com/termscon/backend/internal/llm"
	"github.com/termscon/backend/internal/metrics"
	"github.com/termscon/backend/internal/middleware/ratelimit"
	"github.com/termscon/backend/internal/middleware/security"
	"github.com/termscon/backend/internal/middleware/validation"
	"github.com/termscon/backend/internal/prompt"
	"github.com/termscon/backend/internal/retrieval"
	"github.com/termscon/backend/internal/segment"
	"github.com/termscon/backend/internal/storage/sqlite"
	"github.com/termscon/backend/pkg/config"
	appLogger "github.com/termscon/backend/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting termscon API server")

	if cfg.Metrics.Enabled {
		metrics.Init()
	}

	ctx := context.Background()

	source, closeSource, err := corpus.OpenSource(ctx, cfg.Corpus, cfg.Embedding.Dimension)
	if err != nil {
		appLogger.Fatal("Failed to open legal corpus", zap.String("source", cfg.Corpus.Source), zap.Error(err))
	}
	index, err := corpus.Load(ctx, source, cfg.Embedding.Dimension)
	closeSource()
	if err != nil {
		appLogger.Fatal("Failed to load legal corpus", zap.Error(err))
	}
	counts := index.Counts()
	for _, id := range domain.Corpora {
		metrics.CorpusPassages.WithLabelValues(string(id)).Set(float64(counts[id]))
	}

	backend, err := llm.NewBackend(ctx, cfg.LLM)
	if err != nil {
		appLogger.Fatal("Failed to create LLM backend", zap.Error(err))
	}

	embedBaseURL := ""
	if cfg.Embedding.Provider == cfg.LLM.Provider {
		embedBaseURL = cfg.LLM.BaseURL
	}
	batchEmbedder, err := llm.NewEmbedder(ctx, cfg.Embedding, embedBaseURL)
	if err != nil {
		appLogger.Fatal("Failed to create embedder", zap.Error(err))
	}

	var embedder llm.Embedder
	if batchEmbedder != nil {
		embedder = batchEmbedder
	}

	analyzerOpts := analyzer.Options{
		MaxOutputTokens: cfg.Prompt.MaxOutputTokens,
		Timeout:         time.Duration(cfg.LLM.TimeoutSec) * time.Second,
	}

	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			appLogger.Warn("Redis unavailable, caching disabled", zap.Error(err))
		} else {
			defer redisClient.Close()
			ttl := time.Duration(cfg.Redis.TTLHours) * time.Hour
			if embedder != nil {
				embedder = redis.NewCachedEmbedder(embedder, redisClient, cfg.Embedding.Model, ttl)
			}
			analyzerOpts.Cache = redisClient
			analyzerOpts.CacheTTL = ttl
		}
	}

	families, err := analyzer.FamiliesFromConfig(cfg.Heuristics)
	if err != nil {
		appLogger.Fatal("Invalid heuristic configuration", zap.Error(err))
	}

	selector := retrieval.NewContextSelector(embedder, index, retrieval.ConfigFrom(cfg.Retrieval, cfg.Embedding))
	prompts := prompt.NewBuilder(cfg.Prompt.Framework, cfg.Prompt.MaxPromptRunes)
	riskAnalyzer := analyzer.New(backend, prompts, analyzer.NewHeuristic(families), analyzerOpts)
	segmenter := segment.New(segment.Options{MinLength: cfg.Analysis.MinClauseLength})

	historyClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer historyClient.Close()

	if err := historyClient.InitSchema(); err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	engineOpts := analysis.Options{
		Workers:  cfg.Analysis.Workers,
		Recorder: historyClient,
	}

	if cfg.Neo4j.Enabled {
		neo4jClient, err := neo4j.NewClient(cfg.Neo4j.URI, cfg.Neo4j.Username, cfg.Neo4j.Password, cfg.Neo4j.Database)
		if err != nil {
			appLogger.Warn("Neo4j unavailable, citation graph export disabled", zap.Error(err))
		} else {
			defer neo4jClient.Close(context.Background())
			engineOpts.Graph = neo4jClient
		}
	}

	engine := analysis.NewEngine(segmenter, selector, riskAnalyzer, engineOpts)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	allowOrigins := "*"
	if len(cfg.Server.AllowedOrigins) > 0 {
		allowOrigins = strings.Join(cfg.Server.AllowedOrigins, ", ")
	}

	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerMinute: cfg.Server.RequestsPerMinute,
		Logger:            appLogger.Named("ratelimit"),
	})
	defer limiter.Stop()

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: allowOrigins,
		AllowHeaders: "Origin, Content-Type, Accept",
		AllowMethods: "GET, POST, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		IsDevelopment:  cfg.Server.Development,
	}))

	if cfg.Metrics.Enabled {
		app.Get("/metrics", metrics.MetricsHandler())
	}

	analysisHandler := handlers.NewAnalysisHandler(engine, int64(cfg.Server.BodyLimit))
	historyHandler := handlers.NewHistoryHandler(historyClient)
	healthHandler := handlers.NewHealthHandler(handlers.Dependencies{
		CorpusSource:        source.Name(),
		CorpusCounts:        counts,
		Dimension:           index.Dimension(),
		ModelConfigured:     riskAnalyzer.Configured(),
		EmbeddingConfigured: embedder != nil,
		History:             historyClient,
	})
	wsHandler := handlers.NewWebSocketHandler(engine)

	api := app.Group("/api/v1")

	api.Get("/health", healthHandler.Health)
	api.Get("/ready", healthHandler.Ready)

	api.Post("/analyze",
		limiter.Middleware(),
		validation.Middleware(validation.Config{
			MaxBodyBytes: cfg.Server.BodyLimit,
			Logger:       appLogger.Named("validation"),
		}),
		analysisHandler.Analyze,
	)
	api.Get("/analyses", historyHandler.List)
	api.Get("/analyses/:id", historyHandler.Get)

	api.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	api.Get("/ws", limiter.Middleware(), websocket.New(wsHandler.HandleConnection))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting",
		zap.String("address", addr),
		zap.Bool("model_configured", riskAnalyzer.Configured()),
		zap.Bool("embedding_configured", embedder != nil),
	)

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
		appLogger.Error("Server shutdown failed", zap.Error(err))
	}
	appLogger.Info("Server stopped")
}
