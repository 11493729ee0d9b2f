package handlers

import (
	"context"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/faq-agent/backend/internal/query"
	"github.com/faq-agent/backend/pkg/logger"
)

type WebSocketHandler struct {
	engine *query.Engine
}

func NewWebSocketHandler(engine *query.Engine) *WebSocketHandler {
	return &WebSocketHandler{
		engine: engine,
	}
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg struct {
			Type        string `json:"type"`
			Question    string `json:"question"`
			UserContext string `json:"user_context"`
			UserID      string `json:"user_id"`
		}

		err := c.ReadJSON(&msg)
		if err != nil {
			logger.Error("Failed to read WebSocket message", zap.Error(err))
			break
		}

		if msg.Type != "ask" || msg.Question == "" {
			continue
		}

		err = h.streamResponse(c, msg.Question, msg.UserContext, msg.UserID)
		if err != nil {
			logger.Error("Failed to stream response", zap.Error(err))
			h.sendError(c, "Failed to process question")
		}
	}
}

// streamResponse answers over the socket: a status frame, the answer text in
// word-sized chunks, then a completion frame with citations and metadata.
func (h *WebSocketHandler) streamResponse(c *websocket.Conn, question, userContext, userID string) error {
	ctx := context.Background()

	h.sendChunk(c, "status", "질문을 처리하고 있습니다...")

	response, err := h.engine.Ask(ctx, query.AskRequest{
		Question:    question,
		UserContext: userContext,
		UserID:      userID,
	})
	if err != nil {
		return err
	}

	words := splitIntoWords(response.Result.Answer.Text)
	for i, word := range words {
		chunk := word
		if i < len(words)-1 {
			chunk += " "
		}

		if err := h.sendChunk(c, "chunk", chunk); err != nil {
			return err
		}
	}

	return h.sendComplete(c, response)
}

func (h *WebSocketHandler) sendChunk(c *websocket.Conn, msgType, content string) error {
	msg := map[string]interface{}{
		"type":    msgType,
		"content": content,
	}

	return c.WriteJSON(msg)
}

func (h *WebSocketHandler) sendComplete(c *websocket.Conn, response *query.AskResponse) error {
	msg := map[string]interface{}{
		"type":       "complete",
		"message_id": response.ID,
		"citations":  response.Result.Answer.Citations,
		"followups":  response.Result.Answer.Followups,
		"confidence": response.Result.Answer.Confidence,
		"escalated":  response.Result.Escalated,
		"warnings":   response.Result.Warnings,
		"latency_ms": response.LatencyMS,
	}

	return c.WriteJSON(msg)
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	msg := map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	}

	c.WriteJSON(msg)
}

func splitIntoWords(text string) []string {
	words := []string{}
	currentWord := ""

	for _, char := range text {
		if char == ' ' || char == '\n' {
			if currentWord != "" {
				words = append(words, currentWord)
				currentWord = ""
			}
			if char == '\n' {
				words = append(words, "\n")
			}
		} else {
			currentWord += string(char)
		}
	}

	if currentWord != "" {
		words = append(words, currentWord)
	}

	return words
}
