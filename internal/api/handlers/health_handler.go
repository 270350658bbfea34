package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/termscon/backend/internal/domain"
	"github.com/termscon/backend/pkg/logger"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies describes what the service was started with.
type Dependencies struct {
	CorpusSource        string
	CorpusCounts        map[domain.CorpusID]int
	Dimension           int
	ModelConfigured     bool
	EmbeddingConfigured bool
	History             Pinger
}

type HealthHandler struct {
	deps Dependencies
}

func NewHealthHandler(deps Dependencies) *HealthHandler {
	return &HealthHandler{deps: deps}
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// Ready reports the corpus and upstream configuration. It fails only when
// the history store is unreachable; a missing model or embedder degrades
// analysis to the heuristic path but keeps the service usable.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	status := "ready"
	code := fiber.StatusOK
	if h.deps.History != nil {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := h.deps.History.Ping(ctx); err != nil {
			logger.Warn("History store unreachable", zap.Error(err))
			status = "unavailable"
			code = fiber.StatusServiceUnavailable
		}
	}

	counts := make(map[string]int, len(domain.Corpora))
	for _, id := range domain.Corpora {
		counts[string(id)] = h.deps.CorpusCounts[id]
	}

	return c.Status(code).JSON(fiber.Map{
		"status": status,
		"corpus": fiber.Map{
			"source":    h.deps.CorpusSource,
			"passages":  counts,
			"dimension": h.deps.Dimension,
		},
		"model_configured":     h.deps.ModelConfigured,
		"embedding_configured": h.deps.EmbeddingConfigured,
	})
}
