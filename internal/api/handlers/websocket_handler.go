package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/termscon/backend/internal/analysis"
	"github.com/termscon/backend/internal/domain"
	"github.com/termscon/backend/internal/middleware/validation"
	"github.com/termscon/backend/pkg/logger"
)

// WebSocketHandler streams clause results as they resolve. Clients send
// {"type":"analyze","text":...} and receive one "clause" message per
// clause in completion order followed by "complete".
type WebSocketHandler struct {
	engine DocumentAnalyzer
}

func NewWebSocketHandler(engine DocumentAnalyzer) *WebSocketHandler {
	return &WebSocketHandler{engine: engine}
}

type wsRequest struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	Filename string `json:"filename"`
}

type wsMessage struct {
	Type       string                  `json:"type"`
	Result     *domain.RiskResult      `json:"result,omitempty"`
	ID         string                  `json:"id,omitempty"`
	Summary    *domain.DocumentSummary `json:"summary,omitempty"`
	Results    []domain.RiskResult     `json:"results,omitempty"`
	DurationMS int64                   `json:"duration_ms,omitempty"`
	Error      string                  `json:"error,omitempty"`
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var req wsRequest
		if err := c.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("Failed to read WebSocket message", zap.Error(err))
			}
			return
		}

		if req.Type != "analyze" {
			h.send(c, wsMessage{Type: "error", Error: "Unknown message type"})
			continue
		}

		text := validation.SanitizeText(req.Text)
		if strings.TrimSpace(text) == "" {
			h.send(c, wsMessage{Type: "error", Error: "Document text is empty"})
			continue
		}

		if err := h.stream(c, text, req.Filename); err != nil {
			logger.Warn("Failed to stream analysis", zap.Error(err))
			return
		}
	}
}

// stream cancels the analysis once the client stops accepting messages.
func (h *WebSocketHandler) stream(c *websocket.Conn, text, filename string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var writeErr error
	progress := func(r domain.RiskResult) {
		if writeErr != nil {
			return
		}
		if writeErr = c.WriteJSON(clauseMessage(r)); writeErr != nil {
			cancel()
		}
	}

	report, err := h.engine.Analyze(ctx, text,
		analysis.WithFilename(filename),
		analysis.WithProgress(progress),
	)
	if writeErr != nil {
		return writeErr
	}
	if err != nil {
		if errors.Is(err, analysis.ErrCancelled) {
			return h.send(c, wsMessage{Type: "error", Error: "Analysis was cancelled"})
		}
		return h.send(c, wsMessage{Type: "error", Error: "Failed to analyze document"})
	}

	return h.send(c, completeMessage(report))
}

func (h *WebSocketHandler) send(c *websocket.Conn, msg wsMessage) error {
	return c.WriteJSON(msg)
}

func clauseMessage(r domain.RiskResult) wsMessage {
	return wsMessage{Type: "clause", Result: &r}
}

func completeMessage(report *analysis.Report) wsMessage {
	resp := responseFrom(report)
	return wsMessage{
		Type:       "complete",
		ID:         resp.ID,
		Summary:    &resp.Summary,
		Results:    resp.Results,
		DurationMS: resp.DurationMS,
	}
}
