package pii

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/faq-agent/backend/internal/metrics"
	"github.com/faq-agent/backend/pkg/logger"
)

// Kind identifies the category of a detected PII value.
type Kind string

const (
	KindAccountNumber Kind = "account_number"
	KindResidentID    Kind = "resident_id"
	KindCardNumber    Kind = "card_number"
	KindPhone         Kind = "phone"
	KindEmail         Kind = "email"
	KindPassword      Kind = "password"
	KindSecurityCard  Kind = "security_card"
	KindOTP           Kind = "otp"
)

// Layer records which detection strategy produced a span.
type Layer string

const (
	LayerPattern   Layer = "pattern"
	LayerHeuristic Layer = "heuristic"
)

// Span is a half-open byte range [Start, End) inside the scanned text.
type Span struct {
	Start int
	End   int
	Kind  Kind
	Layer Layer
}

type detector interface {
	Detect(text string) []Span
}

// Engine combines independent detection strategies by span union. Detection is
// a pure function over text; nothing is stored.
type Engine struct {
	detectors []detector
}

func NewEngine() *Engine {
	return &Engine{
		detectors: []detector{
			newPatternDetector(),
			newHeuristicDetector(),
		},
	}
}

// Scan runs every detector and returns the merged, position-ordered span set.
// Scan never fails; a detector fault yields an empty set and Mask fails closed.
func (e *Engine) Scan(text string) []Span {
	if text == "" {
		return nil
	}

	var spans []Span
	for _, d := range e.detectors {
		spans = append(spans, d.Detect(text)...)
	}

	return mergeSpans(spans)
}

// Mask replaces each span with a kind-tagged placeholder. Masking already-masked
// text returns it unchanged. On any internal fault the entire input is replaced
// rather than passed through.
func (e *Engine) Mask(text string, spans []Span) (masked string) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("PII masking fault, failing closed", zap.Any("panic", r))
			masked = fullMask
		}
	}()

	if len(spans) == 0 {
		return text
	}

	spans = mergeSpans(spans)

	var b strings.Builder
	last := 0
	for _, s := range spans {
		if s.Start < 0 || s.End > len(text) || s.Start > s.End || s.Start < last {
			logger.Error("PII span out of range, failing closed",
				zap.Int("start", s.Start),
				zap.Int("end", s.End),
				zap.Int("len", len(text)),
			)
			return fullMask
		}
		b.WriteString(text[last:s.Start])
		b.WriteString(placeholder(s.Kind))
		last = s.End
	}
	b.WriteString(text[last:])

	return b.String()
}

// Sanitize scans and masks in one pass and returns per-kind guidance messages
// for every kind that was detected.
func (e *Engine) Sanitize(text string) (string, []string) {
	spans := e.Scan(text)
	if len(spans) == 0 {
		return text, nil
	}

	seen := make(map[Kind]bool)
	var warnings []string
	for _, s := range spans {
		metrics.PIIDetectionsTotal.WithLabelValues(string(s.Kind)).Inc()
		if !seen[s.Kind] {
			seen[s.Kind] = true
			warnings = append(warnings, warningMessage(s.Kind))
		}
	}

	logger.Info("PII detected in input",
		zap.Int("spans", len(spans)),
		zap.Int("kinds", len(seen)),
	)

	return e.Mask(text, spans), warnings
}

const fullMask = "[REDACTED]"

func placeholder(k Kind) string {
	return "[" + strings.ToUpper(string(k)) + "]"
}

func warningMessage(k Kind) string {
	switch k {
	case KindPassword:
		return "비밀번호는 입력하지 마세요. 비밀번호 찾기 기능을 사용하세요."
	case KindSecurityCard:
		return "보안카드 전체 번호는 입력하지 마세요. 화면에 표시된 좌표에 해당하는 번호만 입력하세요."
	case KindOTP:
		return "OTP 전체 번호는 입력하지 마세요. OTP 앱에서 생성된 번호만 입력하세요."
	case KindAccountNumber:
		return "계좌번호 전체는 입력하지 마세요. 필요한 경우 마지막 4자리만 확인하세요."
	case KindCardNumber:
		return "카드번호 전체는 입력하지 마세요."
	case KindResidentID:
		return "주민등록번호는 입력하지 마세요."
	case KindPhone:
		return "전화번호 전체는 입력하지 마세요."
	case KindEmail:
		return "이메일 주소는 입력하지 마세요."
	default:
		return "민감한 정보는 입력하지 마세요."
	}
}

// mergeSpans sorts by position and collapses overlaps. On overlap the
// pattern-layer span wins; among same-layer spans the longer one wins.
func mergeSpans(spans []Span) []Span {
	if len(spans) <= 1 {
		return spans
	}

	sorted := make([]Span, len(spans))
	copy(sorted, spans)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End > sorted[j].End
	})

	merged := []Span{sorted[0]}
	for _, s := range sorted[1:] {
		prev := &merged[len(merged)-1]
		if s.Start >= prev.End {
			merged = append(merged, s)
			continue
		}
		// Overlap: union the range; the pattern layer decides the kind, then
		// the wider span.
		if preferOver(s, *prev) {
			prev.Kind = s.Kind
			prev.Layer = s.Layer
		}
		if s.End > prev.End {
			prev.End = s.End
		}
	}

	return merged
}

func preferOver(a, b Span) bool {
	if a.Layer != b.Layer {
		return a.Layer == LayerPattern
	}
	return (a.End - a.Start) > (b.End - b.Start)
}
