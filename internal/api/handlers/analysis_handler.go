package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/termscon/backend/internal/analysis"
	"github.com/termscon/backend/internal/domain"
	"github.com/termscon/backend/internal/extract"
	"github.com/termscon/backend/internal/middleware/validation"
	"github.com/termscon/backend/pkg/logger"
)

// DocumentAnalyzer runs the whole-document pipeline.
type DocumentAnalyzer interface {
	Analyze(ctx context.Context, text string, opts ...analysis.RunOption) (*analysis.Report, error)
}

type AnalysisHandler struct {
	engine        DocumentAnalyzer
	maxUploadSize int64
}

func NewAnalysisHandler(engine DocumentAnalyzer, maxUploadSize int64) *AnalysisHandler {
	if maxUploadSize <= 0 {
		maxUploadSize = 5 * 1024 * 1024
	}
	return &AnalysisHandler{engine: engine, maxUploadSize: maxUploadSize}
}

type AnalyzeRequest struct {
	Text     string `json:"text" validate:"required"`
	Filename string `json:"filename" validate:"max=255"`
}

type AnalyzeResponse struct {
	ID         string                 `json:"id"`
	Filename   string                 `json:"filename,omitempty"`
	Summary    domain.DocumentSummary `json:"summary"`
	Results    []domain.RiskResult    `json:"results"`
	DurationMS int64                  `json:"duration_ms"`
}

func responseFrom(report *analysis.Report) AnalyzeResponse {
	return AnalyzeResponse{
		ID:         report.ID.String(),
		Filename:   report.Filename,
		Summary:    report.Summary,
		Results:    report.Results,
		DurationMS: report.Duration.Milliseconds(),
	}
}

// Analyze accepts either a JSON body {text, filename} or a multipart
// upload in the "file" field.
func (h *AnalysisHandler) Analyze(c *fiber.Ctx) error {
	var req AnalyzeRequest
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		text, filename, err := h.readUpload(c)
		if err != nil {
			return err
		}
		req = AnalyzeRequest{Text: text, Filename: filename}
	} else if err := validation.ParseJSON(c, &req); err != nil {
		return err
	}

	text := validation.SanitizeText(req.Text)
	if strings.TrimSpace(text) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Document text is empty",
		})
	}

	report, err := h.engine.Analyze(c.UserContext(), text, analysis.WithFilename(req.Filename))
	if err != nil {
		if errors.Is(err, analysis.ErrCancelled) {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "Analysis was cancelled",
			})
		}
		logger.Error("Failed to analyze document", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to analyze document",
		})
	}

	return c.JSON(responseFrom(report))
}

func (h *AnalysisHandler) readUpload(c *fiber.Ctx) (string, string, error) {
	header, err := c.FormFile("file")
	if err != nil {
		return "", "", fiber.NewError(fiber.StatusBadRequest, "Missing file upload")
	}
	if header.Size > h.maxUploadSize {
		return "", "", fiber.NewError(fiber.StatusRequestEntityTooLarge, "File exceeds maximum size")
	}

	f, err := header.Open()
	if err != nil {
		return "", "", fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, h.maxUploadSize))
	if err != nil {
		return "", "", fmt.Errorf("failed to read upload: %w", err)
	}

	text, err := extract.Text(header.Filename, data)
	if err != nil {
		if errors.Is(err, extract.ErrUnsupportedFormat) {
			return "", "", fiber.NewError(fiber.StatusBadRequest, "Unsupported file type. Upload a .txt or .html file")
		}
		logger.Warn("Failed to extract upload text", zap.String("filename", header.Filename), zap.Error(err))
		return "", "", fiber.NewError(fiber.StatusBadRequest, "Could not read the uploaded file")
	}
	return text, header.Filename, nil
}
