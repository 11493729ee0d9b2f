package query

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/faq-agent/backend/internal/agent"
	"github.com/faq-agent/backend/internal/cache/redis"
	"github.com/faq-agent/backend/internal/metrics"
	"github.com/faq-agent/backend/internal/storage/models"
	"github.com/faq-agent/backend/internal/storage/sqlite"
	"github.com/faq-agent/backend/pkg/logger"
	"github.com/faq-agent/backend/pkg/utils"
)

const answerCacheTTL = time.Hour

// Engine wraps the agent pipeline with the serving concerns: answer caching,
// history persistence, and metrics.
type Engine struct {
	controller *agent.Controller
	db         *sqlite.Client
	cache      *redis.Client
}

type AskRequest struct {
	Question    string
	UserContext string
	UserID      string
	TopK        int
}

type AskResponse struct {
	ID        string          `json:"id"`
	Result    *agent.Response `json:"result"`
	LatencyMS int             `json:"latency_ms"`
	Cached    bool            `json:"cached"`
}

func NewEngine(controller *agent.Controller, db *sqlite.Client, cache *redis.Client) *Engine {
	return &Engine{
		controller: controller,
		db:         db,
		cache:      cache,
	}
}

func (e *Engine) Ask(ctx context.Context, req AskRequest) (*AskResponse, error) {
	startTime := time.Now()

	cacheKey := utils.HashString(fmt.Sprintf("ask:%s\x00%s\x00%d", req.Question, req.UserContext, req.TopK))

	if e.cache != nil {
		var cached agent.Response
		if hit, err := e.cache.GetAnswer(ctx, cacheKey, &cached); err == nil && hit {
			metrics.CacheHits.WithLabelValues("answer").Inc()
			return &AskResponse{
				ID:        cached.SessionID,
				Result:    &cached,
				LatencyMS: int(time.Since(startTime).Milliseconds()),
				Cached:    true,
			}, nil
		}
		metrics.CacheMisses.WithLabelValues("answer").Inc()
	}

	result, err := e.controller.Handle(ctx, agent.Request{
		Question:    req.Question,
		UserContext: req.UserContext,
		TopK:        req.TopK,
	})
	if err != nil {
		metrics.QueryTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to process question: %w", err)
	}

	latency := int(time.Since(startTime).Milliseconds())

	e.observe(result, latency)
	e.persist(result, req.UserID, latency)

	if e.cache != nil && !result.Escalated {
		if err := e.cache.SetAnswer(ctx, cacheKey, result, answerCacheTTL); err != nil {
			logger.Warn("Failed to cache answer", zap.Error(err))
		}
	}

	return &AskResponse{
		ID:        result.SessionID,
		Result:    result,
		LatencyMS: latency,
	}, nil
}

func (e *Engine) observe(result *agent.Response, latencyMS int) {
	metrics.QueryDuration.WithLabelValues(result.Intent).Observe(float64(latencyMS) / 1000)
	metrics.ConfidenceScore.Observe(result.Answer.Confidence)
	metrics.RetrievalResultsCount.Observe(float64(len(result.Retrieved)))

	if result.Escalated {
		metrics.QueryTotal.WithLabelValues("escalated").Inc()
		metrics.EscalationsTotal.Inc()
	} else {
		metrics.QueryTotal.WithLabelValues("answered").Inc()
	}
}

// persist is best-effort: an audit write failure never fails the answer.
func (e *Engine) persist(result *agent.Response, userID string, latencyMS int) {
	if e.db == nil {
		return
	}

	record := &models.QueryRecord{
		ID:             result.SessionID,
		UserID:         userID,
		QuestionMasked: result.Question,
		AnswerText:     result.Answer.Text,
		Intent:         result.Intent,
		Confidence:     result.Answer.Confidence,
		RetrievedCount: len(result.Retrieved),
		Fallback:       result.Answer.Fallback,
		Escalated:      result.Escalated,
		LatencyMS:      latencyMS,
		CreatedAt:      time.Now(),
	}

	if err := e.db.InsertQueryRecord(record); err != nil {
		logger.Warn("Failed to persist query record", zap.Error(err))
		return
	}

	for _, citation := range result.Answer.Citations {
		err := e.db.InsertQueryCitation(&models.QueryCitation{
			QueryID: result.SessionID,
			ChunkID: citation.ChunkID,
			FaqID:   citation.FaqID,
			Title:   citation.Title,
			URL:     citation.URL,
		})
		if err != nil {
			logger.Warn("Failed to persist citation", zap.Error(err))
		}
	}
}

func (e *Engine) History(userID string, limit int) ([]models.QueryRecord, error) {
	if e.db == nil {
		return nil, fmt.Errorf("history storage not configured")
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return e.db.GetQueryHistory(userID, limit)
}

func (e *Engine) Feedback(queryID string, helpful bool, issueCategory, comment string) error {
	if e.db == nil {
		return fmt.Errorf("feedback storage not configured")
	}

	err := e.db.StoreFeedback(&models.Feedback{
		QueryID:       queryID,
		Helpful:       helpful,
		IssueCategory: issueCategory,
		Comment:       comment,
	})
	if err != nil {
		return err
	}

	helpfulLabel := "no"
	score := 0.0
	if helpful {
		helpfulLabel = "yes"
		score = 1.0
	}
	metrics.UserSatisfaction.WithLabelValues(helpfulLabel).Set(score)

	return nil
}
