package handlers

import (
	"context"
	"strings"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/sitechat/backend/internal/query"
	"github.com/sitechat/backend/pkg/logger"
)

// WebSocketHandler serves the chat widget's persistent connection. Answers
// are sent word by word so the widget can render a typing effect, then a
// final complete frame with the full response shape.
type WebSocketHandler struct {
	engine ChatService
}

func NewWebSocketHandler(engine ChatService) *WebSocketHandler {
	return &WebSocketHandler{engine: engine}
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg struct {
			Type    string `json:"type"`
			Slug    string `json:"slug"`
			Message string `json:"message"`
		}

		if err := c.ReadJSON(&msg); err != nil {
			logger.Debug("WebSocket read ended", zap.Error(err))
			break
		}

		if msg.Type != "chat" {
			continue
		}

		if msg.Slug == "" || msg.Message == "" {
			h.sendError(c, "slug and message are required")
			continue
		}

		if err := h.streamAnswer(c, msg.Slug, msg.Message); err != nil {
			logger.Error("Failed to stream answer", zap.Error(err))
			h.sendError(c, "Failed to process message")
		}
	}
}

func (h *WebSocketHandler) streamAnswer(c *websocket.Conn, slug, message string) error {
	response, err := h.engine.Answer(context.Background(), query.Request{
		Slug:    slug,
		Message: message,
	})
	if err != nil {
		return err
	}

	words := strings.Fields(response.Text)
	for i, word := range words {
		chunk := word
		if i < len(words)-1 {
			chunk += " "
		}
		if err := c.WriteJSON(map[string]interface{}{
			"type":    "chunk",
			"content": chunk,
		}); err != nil {
			return err
		}
	}

	return c.WriteJSON(map[string]interface{}{
		"type":            "complete",
		"text":            response.Text,
		"welcome_message": response.WelcomeMessage,
		"from_kb":         response.FromKB,
	})
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	c.WriteJSON(map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	})
}
