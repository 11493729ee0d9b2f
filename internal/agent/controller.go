package agent

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/faq-agent/backend/internal/generation"
	"github.com/faq-agent/backend/internal/pii"
	"github.com/faq-agent/backend/internal/retrieval"
	"github.com/faq-agent/backend/pkg/logger"
)

// Retriever is the slice of the retrieval package the controller needs.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int, category string) ([]retrieval.Result, error)
}

// Generator produces grounded answers and the deterministic fallback.
type Generator interface {
	Generate(ctx context.Context, question string, chunks []retrieval.Result) (*generation.Answer, error)
	Fallback() *generation.Answer
}

type Request struct {
	Question    string `json:"question"`
	UserContext string `json:"user_context,omitempty"`
	TopK        int    `json:"top_k,omitempty"`
}

type Response struct {
	SessionID string              `json:"session_id"`
	// Question is the masked form actually used by the pipeline; the raw
	// input is never echoed or stored.
	Question  string              `json:"question"`
	Answer    *generation.Answer  `json:"answer"`
	Intent    string              `json:"intent"`
	Escalated bool                `json:"escalated"`
	Warnings  []string            `json:"warnings,omitempty"`
	Retrieved []retrieval.Result  `json:"retrieved"`
	States    []string            `json:"states"`
}

type Controller struct {
	piiEngine         *pii.Engine
	retriever         Retriever
	generator         Generator
	maxRounds         int
	topK              int
	escalationEnabled bool
}

type Config struct {
	// MaxRounds bounds retrieval rounds per question: the initial search
	// plus at most one reformulated retry.
	MaxRounds int
	TopK      int
	// EscalationEnabled routes unanswerable questions to a human queue
	// instead of ending at the fallback text alone.
	EscalationEnabled bool
}

func NewController(piiEngine *pii.Engine, retriever Retriever, generator Generator, cfg Config) *Controller {
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = 2
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}

	return &Controller{
		piiEngine:         piiEngine,
		retriever:         retriever,
		generator:         generator,
		maxRounds:         cfg.MaxRounds,
		topK:              cfg.TopK,
		escalationEnabled: cfg.EscalationEnabled,
	}
}

// Handle runs one question through the pipeline: mask, classify, retrieve,
// generate, validate, and mask the answer on the way out. A round that ends
// ungrounded triggers one reformulated re-retrieval while rounds remain; when
// every round comes up empty the session escalates straight from retrieval.
// Backend failures end in the escalated state with the fallback answer; they
// never surface a half-built response.
func (c *Controller) Handle(ctx context.Context, req Request) (*Response, error) {
	sess := newSession(uuid.New().String())

	question, warnings := c.piiEngine.Sanitize(req.Question)
	userContext, ctxWarnings := c.piiEngine.Sanitize(req.UserContext)
	warnings = append(warnings, ctxWarnings...)

	intent := ClassifyIntent(question)
	query := RewriteQuery(question)

	logger.Info("Question accepted",
		zap.String("session_id", sess.id),
		zap.String("intent", string(intent)),
		zap.Int("pii_warnings", len(warnings)),
	)

	topK := req.TopK
	if topK <= 0 || topK > c.topK {
		topK = c.topK
	}

	category := SearchCategory(intent)

	var (
		answer *generation.Answer
		chunks []retrieval.Result
	)

	for round := 1; round <= c.maxRounds; round++ {
		if err := sess.transition(StateRetrieving); err != nil {
			return nil, err
		}

		var err error
		chunks, err = c.retriever.Retrieve(ctx, query, topK, category)
		if err != nil {
			return c.escalate(sess, question, intent, warnings, nil, err)
		}

		if len(chunks) == 0 {
			logger.Debug("Retrieval round empty",
				zap.String("session_id", sess.id),
				zap.Int("round", round),
			)

			if round < c.maxRounds {
				query = ReformulateQuery(query, userContext, intent)
				category = ""
				continue
			}

			// Every round came up empty: there is nothing to generate
			// from, so hand off directly instead of walking the
			// generation states with an empty context.
			if c.escalationEnabled {
				logger.Warn("No FAQ content found, escalating",
					zap.String("session_id", sess.id),
					zap.String("intent", string(intent)),
				)
				return c.handOff(sess, question, intent, warnings, nil)
			}
		}

		if err := sess.transition(StateGenerating); err != nil {
			return nil, err
		}

		answer, err = c.generator.Generate(ctx, question, chunks)
		if err != nil {
			return c.escalate(sess, question, intent, warnings, chunks, err)
		}

		if err := sess.transition(StateValidating); err != nil {
			return nil, err
		}

		// A fallback answer before the final round means this round's
		// chunks could not ground an answer: search once more with the
		// reformulated query before giving up.
		if answer.Fallback && round < c.maxRounds {
			logger.Debug("Answer ungrounded, re-retrieving",
				zap.String("session_id", sess.id),
				zap.Int("round", round),
			)
			query = ReformulateQuery(query, userContext, intent)
			category = ""
			continue
		}

		break
	}

	c.maskOutbound(answer)

	escalated := false
	if answer.Fallback && c.escalationEnabled {
		escalated = true
		if err := sess.transition(StateEscalated); err != nil {
			return nil, err
		}
	} else {
		if err := sess.transition(StateDone); err != nil {
			return nil, err
		}
	}

	logger.Info("Question answered",
		zap.String("session_id", sess.id),
		zap.Bool("fallback", answer.Fallback),
		zap.Bool("escalated", escalated),
		zap.Float64("confidence", answer.Confidence),
	)

	return &Response{
		SessionID: sess.id,
		Question:  question,
		Answer:    answer,
		Intent:    string(intent),
		Escalated: escalated,
		Warnings:  warnings,
		Retrieved: chunks,
		States:    sess.trace,
	}, nil
}

func (c *Controller) escalate(sess *session, question string, intent Intent, warnings []string, chunks []retrieval.Result, cause error) (*Response, error) {
	if !errors.Is(cause, retrieval.ErrUnavailable) && !errors.Is(cause, generation.ErrUnavailable) {
		return nil, cause
	}

	logger.Warn("Session escalated",
		zap.String("session_id", sess.id),
		zap.Error(cause),
	)

	return c.handOff(sess, question, intent, warnings, chunks)
}

// handOff ends the session in the escalated state with the deterministic
// fallback answer.
func (c *Controller) handOff(sess *session, question string, intent Intent, warnings []string, chunks []retrieval.Result) (*Response, error) {
	if err := sess.transition(StateEscalated); err != nil {
		return nil, err
	}

	return &Response{
		SessionID: sess.id,
		Question:  question,
		Answer:    c.generator.Fallback(),
		Intent:    string(intent),
		Escalated: true,
		Warnings:  warnings,
		Retrieved: chunks,
		States:    sess.trace,
	}, nil
}

// maskOutbound scans generated text so an answer can never echo PII back,
// whatever the model produced.
func (c *Controller) maskOutbound(answer *generation.Answer) {
	answer.Text = c.piiEngine.Mask(answer.Text, c.piiEngine.Scan(answer.Text))
	for i, step := range answer.Steps {
		answer.Steps[i] = c.piiEngine.Mask(step, c.piiEngine.Scan(step))
	}
}
