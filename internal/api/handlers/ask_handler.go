package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/faq-agent/backend/internal/query"
	"github.com/faq-agent/backend/pkg/logger"
)

type AskHandler struct {
	engine *query.Engine
}

func NewAskHandler(engine *query.Engine) *AskHandler {
	return &AskHandler{
		engine: engine,
	}
}

func (h *AskHandler) HandleAsk(c *fiber.Ctx) error {
	var req struct {
		Question    string `json:"question"`
		UserContext string `json:"user_context"`
		UserID      string `json:"user_id"`
		TopK        int    `json:"top_k"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Question == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Question is required",
		})
	}

	response, err := h.engine.Ask(c.Context(), query.AskRequest{
		Question:    req.Question,
		UserContext: req.UserContext,
		UserID:      req.UserID,
		TopK:        req.TopK,
	})
	if err != nil {
		logger.Error("Failed to process question", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process question",
		})
	}

	return c.JSON(fiber.Map{
		"id":         response.ID,
		"question":   response.Result.Question,
		"answer":     response.Result.Answer,
		"intent":     response.Result.Intent,
		"escalated":  response.Result.Escalated,
		"warnings":   response.Result.Warnings,
		"retrieved":  response.Result.Retrieved,
		"states":     response.Result.States,
		"latency_ms": response.LatencyMS,
		"cached":     response.Cached,
	})
}

func (h *AskHandler) GetHistory(c *fiber.Ctx) error {
	userID := c.Query("user_id")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "user_id is required",
		})
	}

	limit, _ := strconv.Atoi(c.Query("limit", "20"))

	records, err := h.engine.History(userID, limit)
	if err != nil {
		logger.Error("Failed to get query history", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get history",
		})
	}

	return c.JSON(fiber.Map{
		"history": records,
	})
}

func (h *AskHandler) HandleFeedback(c *fiber.Ctx) error {
	var req struct {
		QueryID       string `json:"query_id"`
		Helpful       bool   `json:"helpful"`
		IssueCategory string `json:"issue_category"`
		Comment       string `json:"comment"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.QueryID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "query_id is required",
		})
	}

	if err := h.engine.Feedback(req.QueryID, req.Helpful, req.IssueCategory, req.Comment); err != nil {
		logger.Error("Failed to store feedback", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to store feedback",
		})
	}

	return c.JSON(fiber.Map{
		"status": "ok",
	})
}
