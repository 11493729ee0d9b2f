package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/faq-agent/backend/internal/cache/redis"
	"github.com/faq-agent/backend/internal/ingestion"
	"github.com/faq-agent/backend/internal/metrics"
	"github.com/faq-agent/backend/pkg/logger"
)

type FAQHandler struct {
	processor *ingestion.Processor
	cache     *redis.Client
}

func NewFAQHandler(processor *ingestion.Processor, cache *redis.Client) *FAQHandler {
	return &FAQHandler{
		processor: processor,
		cache:     cache,
	}
}

// HandleIngest accepts one FAQ help page and runs the full ingestion path.
// Cached answers are invalidated afterwards since they may cite stale text.
func (h *FAQHandler) HandleIngest(c *fiber.Ctx) error {
	var req struct {
		URL      string `json:"url"`
		Category string `json:"category"`
		Content  string `json:"content"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.URL == "" || req.Content == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "url and content are required",
		})
	}

	if err := h.processor.ProcessFAQ(c.Context(), req.URL, req.Category, req.Content); err != nil {
		logger.Error("Failed to ingest FAQ document",
			zap.String("url", req.URL),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to ingest document",
		})
	}

	metrics.DocumentsProcessed.Inc()

	if h.cache != nil {
		if err := h.cache.InvalidateAnswerCache(context.Background()); err != nil {
			logger.Warn("Failed to invalidate answer cache", zap.Error(err))
		}
	}

	return c.JSON(fiber.Map{
		"status": "ingested",
		"url":    req.URL,
	})
}
