package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/sitechat/backend/internal/query"
	"github.com/sitechat/backend/internal/storage/models"
	"github.com/sitechat/backend/internal/tenant"
	"github.com/sitechat/backend/pkg/logger"
)

type ChatService interface {
	Answer(ctx context.Context, req query.Request) (*query.Response, error)
	History(ctx context.Context, slug string, limit int) ([]models.ChatRecord, error)
}

type ChatHandler struct {
	engine ChatService
}

func NewChatHandler(engine ChatService) *ChatHandler {
	return &ChatHandler{engine: engine}
}

func (h *ChatHandler) HandleChat(c *fiber.Ctx) error {
	var req struct {
		Slug    string `json:"slug"`
		Message string `json:"message"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Slug == "" || req.Message == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "slug and message are required",
		})
	}

	response, err := h.engine.Answer(c.Context(), query.Request{
		Slug:    req.Slug,
		Message: req.Message,
		Debug:   c.Query("debug") == "1",
	})
	if err != nil {
		if errors.Is(err, tenant.ErrTenantNotFound) {
			logger.Warn("Chat for unknown tenant", zap.String("slug", req.Slug))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Unknown tenant",
			})
		}
		logger.Error("Failed to process chat message", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process message",
		})
	}

	return c.JSON(response)
}

func (h *ChatHandler) HandleHistory(c *fiber.Ctx) error {
	slug := c.Query("slug")
	if slug == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "slug is required",
		})
	}

	records, err := h.engine.History(c.Context(), slug, c.QueryInt("limit", 20))
	if err != nil {
		if errors.Is(err, tenant.ErrTenantNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Unknown tenant",
			})
		}
		logger.Error("Failed to load chat history", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load history",
		})
	}

	history := make([]fiber.Map, 0, len(records))
	for _, r := range records {
		history = append(history, fiber.Map{
			"message":    r.Message,
			"response":   r.Response,
			"from_kb":    r.FromKB,
			"created_at": r.CreatedAt.Unix(),
		})
	}

	return c.JSON(fiber.Map{"history": history})
}
