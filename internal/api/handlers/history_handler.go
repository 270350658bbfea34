package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/termscon/backend/internal/storage/models"
	"github.com/termscon/backend/internal/storage/sqlite"
	"github.com/termscon/backend/pkg/logger"
)

const historyLimit = 20

type HistoryStore interface {
	ListAnalyses(ctx context.Context, limit int) ([]models.AnalysisSession, error)
	GetAnalysis(ctx context.Context, id string) (*models.AnalysisDetail, error)
}

type HistoryHandler struct {
	store HistoryStore
}

func NewHistoryHandler(store HistoryStore) *HistoryHandler {
	return &HistoryHandler{store: store}
}

func (h *HistoryHandler) List(c *fiber.Ctx) error {
	sessions, err := h.store.ListAnalyses(c.UserContext(), historyLimit)
	if err != nil {
		logger.Error("Failed to list analyses", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to retrieve analyses",
		})
	}

	return c.JSON(fiber.Map{
		"analyses": sessions,
		"count":    len(sessions),
	})
}

func (h *HistoryHandler) Get(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid analysis id",
		})
	}

	detail, err := h.store.GetAnalysis(c.UserContext(), id)
	if err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Analysis not found",
			})
		}
		logger.Error("Failed to load analysis", zap.String("analysis_id", id), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to retrieve analysis",
		})
	}

	return c.JSON(detail)
}
