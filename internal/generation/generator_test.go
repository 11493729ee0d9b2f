package generation

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/faq-agent/backend/internal/llm"
	"github.com/faq-agent/backend/internal/retrieval"
)

type scriptedCompleter struct {
	outputs []string
	err     error
	calls   int
	prompts []llm.CompletionRequest
}

func (s *scriptedCompleter) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	s.prompts = append(s.prompts, req)
	if s.err != nil {
		return nil, s.err
	}
	out := s.outputs[s.calls]
	s.calls++
	return &llm.CompletionResponse{Content: out}, nil
}

func testChunks() []retrieval.Result {
	return []retrieval.Result{
		{ChunkID: "chunk-1", FaqID: "faq-1", Title: "이체 한도 변경", Score: 0.8, Snippet: "한도 변경 안내"},
		{ChunkID: "chunk-2", FaqID: "faq-2", Title: "OTP 오류", Score: 0.6, Snippet: "OTP 안내"},
	}
}

func TestGenerateSkipsModelOnEmptyChunks(t *testing.T) {
	completer := &scriptedCompleter{}
	gen := NewGenerator(completer, Config{Contact: "1588-0000"})

	answer, err := gen.Generate(context.Background(), "이체가 안돼요", nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if completer.calls != 0 {
		t.Errorf("model called %d times on empty chunks, want 0", completer.calls)
	}
	if !answer.Fallback {
		t.Error("answer.Fallback = false, want true")
	}
	if !strings.Contains(answer.Text, "1588-0000") {
		t.Errorf("fallback missing contact: %q", answer.Text)
	}
	if answer.Confidence != 0 {
		t.Errorf("fallback confidence = %f, want 0", answer.Confidence)
	}
}

func TestGenerateGroundedAnswer(t *testing.T) {
	completer := &scriptedCompleter{outputs: []string{
		`{"answer": "이체 한도는 인터넷뱅킹에서 변경할 수 있습니다. [C:chunk-1]", "steps": ["뱅킹관리 메뉴 접속 [C:chunk-1]", "한도 변경 신청"], "followups": ["OTP 한도는 어떻게 되나요?"]}`,
	}}
	gen := NewGenerator(completer, Config{})

	answer, err := gen.Generate(context.Background(), "이체 한도 변경 방법", testChunks())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if answer.Fallback {
		t.Fatal("grounded answer marked as fallback")
	}
	if len(answer.Citations) != 1 || answer.Citations[0].ChunkID != "chunk-1" {
		t.Errorf("citations = %+v, want chunk-1", answer.Citations)
	}
	if strings.Contains(answer.Text, "[C:") {
		t.Errorf("display text still has markers: %q", answer.Text)
	}
	if strings.Contains(answer.Steps[0], "[C:") {
		t.Errorf("step still has markers: %q", answer.Steps[0])
	}

	// one citation with score 0.8: 0.3 + 0.4*0.8 + 0.1*1
	want := 0.72
	if math.Abs(answer.Confidence-want) > 1e-9 {
		t.Errorf("confidence = %f, want %f", answer.Confidence, want)
	}
}

func TestGenerateRetriesOnGroundingViolation(t *testing.T) {
	completer := &scriptedCompleter{outputs: []string{
		`{"answer": "없는 문서를 인용합니다. [C:chunk-99]"}`,
		`{"answer": "이체 한도 안내입니다. [C:chunk-1]"}`,
	}}
	gen := NewGenerator(completer, Config{MaxAttempts: 2})

	answer, err := gen.Generate(context.Background(), "이체 한도", testChunks())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if completer.calls != 2 {
		t.Errorf("model calls = %d, want 2", completer.calls)
	}
	if answer.Fallback {
		t.Error("retry answer marked as fallback")
	}
	if !strings.Contains(completer.prompts[1].SystemPrompt, "근거 검증에 실패") {
		t.Error("retry prompt missing strict instructions")
	}
}

func TestGenerateFallsBackAfterRepeatedViolations(t *testing.T) {
	completer := &scriptedCompleter{outputs: []string{
		`{"answer": "근거 없음. [C:bad-1]"}`,
		`{"answer": "여전히 근거 없음. [C:bad-2]"}`,
	}}
	gen := NewGenerator(completer, Config{MaxAttempts: 2})

	answer, err := gen.Generate(context.Background(), "이체 한도", testChunks())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if completer.calls != 2 {
		t.Errorf("model calls = %d, want 2", completer.calls)
	}
	if !answer.Fallback {
		t.Error("expected fallback after exhausted attempts")
	}
	if len(answer.Citations) != 0 {
		t.Errorf("fallback has citations: %+v", answer.Citations)
	}
}

func TestGenerateRejectsUncitedAnswer(t *testing.T) {
	completer := &scriptedCompleter{outputs: []string{
		`{"answer": "출처 표시가 전혀 없는 답변입니다."}`,
		`{"answer": "이번에는 인용합니다. [C:chunk-2]"}`,
	}}
	gen := NewGenerator(completer, Config{MaxAttempts: 2})

	answer, err := gen.Generate(context.Background(), "OTP 오류", testChunks())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if answer.Fallback {
		t.Error("expected grounded answer on second attempt")
	}
	if answer.Citations[0].ChunkID != "chunk-2" {
		t.Errorf("citation = %s, want chunk-2", answer.Citations[0].ChunkID)
	}
}

func TestGenerateUnavailable(t *testing.T) {
	completer := &scriptedCompleter{err: llm.ErrUnavailable}
	gen := NewGenerator(completer, Config{})

	_, err := gen.Generate(context.Background(), "이체", testChunks())
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}

func TestConfidenceCapsAtOne(t *testing.T) {
	cited := []retrieval.Result{
		{ChunkID: "a", Score: 1.0},
		{ChunkID: "b", Score: 1.0},
		{ChunkID: "c", Score: 1.0},
		{ChunkID: "d", Score: 1.0},
	}
	if got := confidenceFrom(cited); got != 1.0 {
		t.Errorf("confidence = %f, want 1.0", got)
	}
	if got := confidenceFrom(nil); got != 0 {
		t.Errorf("confidence with no citations = %f, want 0", got)
	}
}
