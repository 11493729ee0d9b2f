package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/faq-agent/backend/internal/llm"
	"github.com/faq-agent/backend/internal/metrics"
	"github.com/faq-agent/backend/internal/retrieval"
	"github.com/faq-agent/backend/pkg/logger"
)

var (
	// ErrUnavailable reports that the model could not be reached at all.
	ErrUnavailable = errors.New("generation unavailable")

	// ErrGroundingViolation reports an answer that cites chunks outside the
	// supplied context, or cites nothing at all.
	ErrGroundingViolation = errors.New("answer is not grounded in supplied chunks")
)

const (
	maxSteps     = 7
	maxFollowups = 2
)

// Citation points a sentence of the answer back to a retrieved chunk.
type Citation struct {
	ChunkID string `json:"chunk_id"`
	FaqID   string `json:"faq_id"`
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Answer is the final generated response. Confidence is derived from the
// similarity scores of the cited chunks, never from the model's own claim.
type Answer struct {
	Text       string     `json:"answer"`
	Steps      []string   `json:"steps,omitempty"`
	Citations  []Citation `json:"citations"`
	Followups  []string   `json:"followups,omitempty"`
	Confidence float64    `json:"confidence"`
	Fallback   bool       `json:"fallback"`
}

type Generator struct {
	completer   llm.Completer
	maxAttempts int
	contact     string
}

type Config struct {
	// MaxAttempts is the total generation budget including the one strict
	// retry after a grounding violation.
	MaxAttempts int
	// Contact is the service desk number quoted in fallback answers.
	Contact string
}

func NewGenerator(completer llm.Completer, cfg Config) *Generator {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 2
	}
	if cfg.Contact == "" {
		cfg.Contact = "1588-0000"
	}

	return &Generator{
		completer:   completer,
		maxAttempts: cfg.MaxAttempts,
		contact:     cfg.Contact,
	}
}

// Generate produces a citation-grounded answer from the retrieved chunks.
// With no chunks it returns the fallback without calling the model. A
// grounding violation gets one strict retry; if that also fails the fallback
// is returned rather than an ungrounded answer.
func (g *Generator) Generate(ctx context.Context, question string, chunks []retrieval.Result) (*Answer, error) {
	if len(chunks) == 0 {
		logger.Info("No chunks supplied, returning fallback without model call")
		return g.fallbackAnswer(), nil
	}

	systemPrompt := answerSystemPrompt
	userPrompt := buildUserPrompt(question, chunks)

	var lastErr error
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		resp, err := g.completer.Complete(ctx, llm.CompletionRequest{
			SystemPrompt: systemPrompt,
			UserPrompt:   userPrompt,
			Temperature:  0.2,
			MaxTokens:    1024,
		})
		if err != nil {
			if errors.Is(err, llm.ErrUnavailable) {
				return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
			return nil, fmt.Errorf("failed to generate answer: %w", err)
		}

		answer, err := g.buildAnswer(resp.Content, chunks)
		if err == nil {
			logger.Debug("Answer generated",
				zap.Int("attempt", attempt),
				zap.Int("citations", len(answer.Citations)),
				zap.Float64("confidence", answer.Confidence),
			)
			return answer, nil
		}

		lastErr = err
		metrics.GroundingRetriesTotal.Inc()
		logger.Warn("Generated answer rejected",
			zap.Int("attempt", attempt),
			zap.Error(err),
		)

		// Tighten the instructions for the single retry.
		systemPrompt = answerSystemPrompt + strictRetrySuffix
	}

	logger.Warn("Generation attempts exhausted, returning fallback", zap.Error(lastErr))
	return g.fallbackAnswer(), nil
}

// buildAnswer parses the model output and verifies that every citation
// marker refers to a supplied chunk.
func (g *Generator) buildAnswer(content string, chunks []retrieval.Result) (*Answer, error) {
	parsed, err := parseModelAnswer(content)
	if err != nil {
		return nil, err
	}

	byChunkID := make(map[string]retrieval.Result, len(chunks))
	for _, c := range chunks {
		byChunkID[c.ChunkID] = c
	}

	markers := extractMarkers(append([]string{parsed.Answer}, parsed.Steps...)...)
	if len(markers) == 0 {
		return nil, fmt.Errorf("%w: no citation markers", ErrGroundingViolation)
	}

	citations := make([]Citation, 0, len(markers))
	cited := make([]retrieval.Result, 0, len(markers))
	for _, id := range markers {
		chunk, ok := byChunkID[id]
		if !ok {
			return nil, fmt.Errorf("%w: unknown chunk %s", ErrGroundingViolation, id)
		}
		citations = append(citations, Citation{
			ChunkID: chunk.ChunkID,
			FaqID:   chunk.FaqID,
			Title:   chunk.Title,
			URL:     chunk.URL,
			Snippet: chunk.Snippet,
		})
		cited = append(cited, chunk)
	}

	steps := parsed.Steps
	if len(steps) > maxSteps {
		steps = steps[:maxSteps]
	}
	for i := range steps {
		steps[i] = stripMarkers(steps[i])
	}

	followups := parsed.Followups
	if len(followups) > maxFollowups {
		followups = followups[:maxFollowups]
	}

	return &Answer{
		Text:       stripMarkers(parsed.Answer),
		Steps:      steps,
		Citations:  citations,
		Followups:  followups,
		Confidence: confidenceFrom(cited),
	}, nil
}

// Fallback returns the deterministic no-answer response. Callers use it when
// the pipeline fails upstream of generation.
func (g *Generator) Fallback() *Answer {
	return g.fallbackAnswer()
}

func (g *Generator) fallbackAnswer() *Answer {
	return &Answer{
		Text: fmt.Sprintf(
			"관련 FAQ를 찾지 못했습니다. 고객센터(%s)로 문의하시거나 인터넷뱅킹 도움말을 참고하세요.",
			g.contact,
		),
		Citations:  []Citation{},
		Confidence: 0,
		Fallback:   true,
	}
}

// confidenceFrom scores an answer by its evidence: the mean similarity of
// the cited chunks plus a small bonus for citing more than one source.
func confidenceFrom(cited []retrieval.Result) float64 {
	if len(cited) == 0 {
		return 0
	}

	var sum float64
	for _, c := range cited {
		sum += float64(c.Score)
	}
	mean := sum / float64(len(cited))

	n := len(cited)
	if n > 3 {
		n = 3
	}

	confidence := 0.3 + 0.4*mean + 0.1*float64(n)
	if confidence > 1.0 {
		confidence = 1.0
	}
	return confidence
}

const answerSystemPrompt = `당신은 인터넷뱅킹 FAQ 상담 도우미입니다.

규칙:
1. 제공된 FAQ 문서 내용만 사용하여 답변하세요. 문서에 없는 내용은 절대 답하지 마세요.
2. 답변의 모든 사실 문장 끝에 근거 문서의 출처 표시 [C:chunk_id]를 붙이세요.
3. 절차가 필요한 질문이면 steps 배열에 단계를 나열하세요 (최대 7단계).
4. 후속 질문 제안은 최대 2개입니다.
5. 반드시 아래 JSON 형식으로만 응답하세요:
{"answer": "...", "steps": ["..."], "followups": ["..."]}`

const strictRetrySuffix = `

경고: 이전 답변이 근거 검증에 실패했습니다. 제공된 문서의 chunk_id만 [C:chunk_id] 형식으로 인용하고, 문서에 없는 내용은 답변에서 제외하세요.`

func buildUserPrompt(question string, chunks []retrieval.Result) string {
	var b strings.Builder

	b.WriteString("FAQ 문서:\n")
	for _, c := range chunks {
		fmt.Fprintf(&b, "[C:%s] (%s) %s\n%s\n\n", c.ChunkID, c.Category, c.Title, c.Text)
	}

	fmt.Fprintf(&b, "질문: %s", question)

	return b.String()
}
