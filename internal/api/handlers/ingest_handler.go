package handlers

import (
	"context"
	"crypto/subtle"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/sitechat/backend/internal/ingestion"
	"github.com/sitechat/backend/internal/tenant"
	"github.com/sitechat/backend/pkg/logger"
)

type IngestService interface {
	IngestSite(ctx context.Context, slug, seedURL string) (*ingestion.Result, error)
}

type IngestHandler struct {
	processor     IngestService
	adminPassword string
}

func NewIngestHandler(processor IngestService, adminPassword string) *IngestHandler {
	return &IngestHandler{
		processor:     processor,
		adminPassword: adminPassword,
	}
}

func (h *IngestHandler) HandleIngest(c *fiber.Ctx) error {
	var req struct {
		Password string `json:"password"`
		Slug     string `json:"slug"`
		URL      string `json:"url"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if h.adminPassword == "" ||
		subtle.ConstantTimeCompare([]byte(req.Password), []byte(h.adminPassword)) != 1 {
		logger.Warn("Unauthorized ingestion attempt", zap.String("ip", c.IP()))
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Unauthorized",
		})
	}

	if req.Slug == "" || req.URL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "slug and url are required",
		})
	}

	result, err := h.processor.IngestSite(c.Context(), req.Slug, req.URL)
	if err != nil {
		switch {
		case errors.Is(err, tenant.ErrTenantNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Unknown tenant",
			})
		case errors.Is(err, ingestion.ErrIngestInProgress):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "Ingestion already running for this tenant",
			})
		default:
			logger.Error("Ingestion failed", zap.String("slug", req.Slug), zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Ingestion failed",
			})
		}
	}

	return c.JSON(fiber.Map{
		"ok": true,
		"tenant": fiber.Map{
			"id":   result.Tenant.ID,
			"name": result.Tenant.Name,
			"slug": result.Tenant.Slug,
		},
		"pages_processed": result.PagesProcessed,
		"items":           result.Items,
	})
}
