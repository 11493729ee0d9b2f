package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/faq-agent/backend/internal/generation"
	"github.com/faq-agent/backend/internal/pii"
	"github.com/faq-agent/backend/internal/retrieval"
)

type stubRetriever struct {
	rounds  [][]retrieval.Result
	err     error
	queries []string
	calls   int
}

func (s *stubRetriever) Retrieve(ctx context.Context, query string, k int, category string) ([]retrieval.Result, error) {
	s.queries = append(s.queries, query)
	if s.err != nil {
		return nil, s.err
	}
	var out []retrieval.Result
	if s.calls < len(s.rounds) {
		out = s.rounds[s.calls]
	}
	s.calls++
	return out, nil
}

type stubGenerator struct {
	answer *generation.Answer
	// answers, when set, is consumed one per call, overriding answer.
	answers []*generation.Answer
	err     error
	calls   int
}

func (s *stubGenerator) Generate(ctx context.Context, question string, chunks []retrieval.Result) (*generation.Answer, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if len(s.answers) > 0 {
		next := s.answers[0]
		s.answers = s.answers[1:]
		return next, nil
	}
	if len(chunks) == 0 {
		return s.Fallback(), nil
	}
	return s.answer, nil
}

func (s *stubGenerator) Fallback() *generation.Answer {
	return &generation.Answer{
		Text:      "관련 FAQ를 찾지 못했습니다. 고객센터(1588-0000)로 문의하세요.",
		Citations: []generation.Citation{},
		Fallback:  true,
	}
}

func chunksFor(faqID string) []retrieval.Result {
	return []retrieval.Result{{ChunkID: faqID + "_0", FaqID: faqID, Title: "이체 안내", Score: 0.8}}
}

func groundedAnswer() *generation.Answer {
	return &generation.Answer{
		Text:       "이체 한도는 뱅킹관리 메뉴에서 변경할 수 있습니다.",
		Citations:  []generation.Citation{{ChunkID: "faq-1_0", FaqID: "faq-1"}},
		Confidence: 0.72,
	}
}

func newTestController(r Retriever, g Generator) *Controller {
	return NewController(pii.NewEngine(), r, g, Config{
		MaxRounds:         2,
		TopK:              5,
		EscalationEnabled: true,
	})
}

func TestHandleAnswersGroundedQuestion(t *testing.T) {
	retriever := &stubRetriever{rounds: [][]retrieval.Result{chunksFor("faq-1")}}
	generator := &stubGenerator{answer: groundedAnswer()}

	resp, err := newTestController(retriever, generator).Handle(context.Background(), Request{
		Question: "이체가 안돼요",
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp.Escalated {
		t.Error("grounded answer escalated")
	}
	if resp.Intent != string(IntentTransfer) {
		t.Errorf("intent = %s, want %s", resp.Intent, IntentTransfer)
	}

	wantStates := []string{"started", "retrieving", "generating", "validating", "done"}
	if strings.Join(resp.States, ",") != strings.Join(wantStates, ",") {
		t.Errorf("states = %v, want %v", resp.States, wantStates)
	}
}

func TestHandleReformulatesOnEmptyFirstRound(t *testing.T) {
	retriever := &stubRetriever{rounds: [][]retrieval.Result{nil, chunksFor("faq-2")}}
	generator := &stubGenerator{answer: groundedAnswer()}

	resp, err := newTestController(retriever, generator).Handle(context.Background(), Request{
		Question:    "로그인이 안돼요",
		UserContext: "모바일 앱에서 지문 인증 사용 중",
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if retriever.calls != 2 {
		t.Fatalf("retrieval rounds = %d, want 2", retriever.calls)
	}
	if !strings.Contains(retriever.queries[1], "지문 인증") {
		t.Errorf("second round query missing user context: %q", retriever.queries[1])
	}
	if resp.Escalated {
		t.Error("answered session escalated")
	}

	wantStates := []string{"started", "retrieving", "retrieving", "generating", "validating", "done"}
	if strings.Join(resp.States, ",") != strings.Join(wantStates, ",") {
		t.Errorf("states = %v, want %v", resp.States, wantStates)
	}
}

func TestHandleEscalatesWhenNothingFound(t *testing.T) {
	retriever := &stubRetriever{rounds: [][]retrieval.Result{nil, nil}}
	generator := &stubGenerator{}

	resp, err := newTestController(retriever, generator).Handle(context.Background(), Request{
		Question: "대출 금리가 궁금해요",
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if retriever.calls != 2 {
		t.Errorf("retrieval rounds = %d, want 2", retriever.calls)
	}
	if !resp.Escalated {
		t.Error("empty retrieval did not escalate")
	}
	if !resp.Answer.Fallback {
		t.Error("escalated response missing fallback answer")
	}
	if generator.calls != 0 {
		t.Errorf("generator called %d times with nothing retrieved, want 0", generator.calls)
	}

	wantStates := []string{"started", "retrieving", "retrieving", "escalated"}
	if strings.Join(resp.States, ",") != strings.Join(wantStates, ",") {
		t.Errorf("states = %v, want %v", resp.States, wantStates)
	}
}

func TestHandleReRetrievesWhenAnswerUngrounded(t *testing.T) {
	retriever := &stubRetriever{rounds: [][]retrieval.Result{
		chunksFor("faq-1"),
		chunksFor("faq-2"),
	}}
	generator := &stubGenerator{answers: []*generation.Answer{
		{Text: "관련 FAQ를 찾지 못했습니다.", Fallback: true},
		groundedAnswer(),
	}}

	resp, err := newTestController(retriever, generator).Handle(context.Background(), Request{
		Question:    "로그인이 안돼요",
		UserContext: "모바일 앱에서 지문 인증 사용 중",
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if retriever.calls != 2 {
		t.Fatalf("retrieval rounds = %d, want 2", retriever.calls)
	}
	if generator.calls != 2 {
		t.Fatalf("generation attempts = %d, want 2", generator.calls)
	}
	if !strings.Contains(retriever.queries[1], "지문 인증") {
		t.Errorf("second round query missing user context: %q", retriever.queries[1])
	}
	if resp.Escalated {
		t.Error("second round grounded the answer yet session escalated")
	}
	if resp.Answer.Fallback {
		t.Error("response carries the fallback instead of the second-round answer")
	}

	wantStates := []string{"started", "retrieving", "generating", "validating", "retrieving", "generating", "validating", "done"}
	if strings.Join(resp.States, ",") != strings.Join(wantStates, ",") {
		t.Errorf("states = %v, want %v", resp.States, wantStates)
	}
}

func TestHandleEscalatesWhenBothRoundsUngrounded(t *testing.T) {
	retriever := &stubRetriever{rounds: [][]retrieval.Result{
		chunksFor("faq-1"),
		chunksFor("faq-2"),
	}}
	fallback := (&stubGenerator{}).Fallback()
	generator := &stubGenerator{answers: []*generation.Answer{fallback, fallback}}

	resp, err := newTestController(retriever, generator).Handle(context.Background(), Request{
		Question: "대출 금리가 궁금해요",
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if retriever.calls != 2 {
		t.Errorf("retrieval rounds = %d, want 2", retriever.calls)
	}
	if !resp.Escalated {
		t.Error("ungrounded answer after both rounds did not escalate")
	}

	wantStates := []string{"started", "retrieving", "generating", "validating", "retrieving", "generating", "validating", "escalated"}
	if strings.Join(resp.States, ",") != strings.Join(wantStates, ",") {
		t.Errorf("states = %v, want %v", resp.States, wantStates)
	}
}

func TestHandleEscalatesOnRetrievalOutage(t *testing.T) {
	retriever := &stubRetriever{err: retrieval.ErrUnavailable}
	generator := &stubGenerator{}

	resp, err := newTestController(retriever, generator).Handle(context.Background(), Request{
		Question: "이체 수수료는 얼마인가요",
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !resp.Escalated {
		t.Error("retrieval outage did not escalate")
	}
	if generator.calls != 0 {
		t.Errorf("generator called %d times during outage, want 0", generator.calls)
	}
}

func TestHandleReturnsErrorOnCancellation(t *testing.T) {
	retriever := &stubRetriever{err: context.Canceled}
	generator := &stubGenerator{}

	resp, err := newTestController(retriever, generator).Handle(context.Background(), Request{
		Question: "이체가 안돼요",
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if resp != nil {
		t.Errorf("cancelled request produced a response: %+v", resp)
	}
}

func TestHandleEscalatesOnGenerationOutage(t *testing.T) {
	retriever := &stubRetriever{rounds: [][]retrieval.Result{chunksFor("faq-1")}}
	generator := &stubGenerator{err: generation.ErrUnavailable}

	resp, err := newTestController(retriever, generator).Handle(context.Background(), Request{
		Question: "이체가 안돼요",
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !resp.Escalated {
		t.Error("generation outage did not escalate")
	}
	if !resp.Answer.Fallback {
		t.Error("escalated response missing fallback answer")
	}
}

func TestHandleMasksInboundPII(t *testing.T) {
	retriever := &stubRetriever{rounds: [][]retrieval.Result{chunksFor("faq-1")}}
	generator := &stubGenerator{answer: groundedAnswer()}

	resp, err := newTestController(retriever, generator).Handle(context.Background(), Request{
		Question: "제 계좌번호는 123-456-789012인데 이체가 안돼요",
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(resp.Warnings) == 0 {
		t.Error("PII in question produced no warnings")
	}
	if strings.Contains(retriever.queries[0], "123-456-789012") {
		t.Errorf("raw account number reached retrieval: %q", retriever.queries[0])
	}
	if !strings.Contains(retriever.queries[0], "[ACCOUNT_NUMBER]") {
		t.Errorf("masked query missing placeholder: %q", retriever.queries[0])
	}
}

func TestHandleMasksOutboundPII(t *testing.T) {
	retriever := &stubRetriever{rounds: [][]retrieval.Result{chunksFor("faq-1")}}
	generator := &stubGenerator{answer: &generation.Answer{
		Text:       "고객님 계좌번호는 123-456-789012입니다.",
		Citations:  []generation.Citation{{ChunkID: "faq-1_0"}},
		Confidence: 0.7,
	}}

	resp, err := newTestController(retriever, generator).Handle(context.Background(), Request{
		Question: "이체가 안돼요",
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if strings.Contains(resp.Answer.Text, "123-456-789012") {
		t.Errorf("answer leaked account number: %q", resp.Answer.Text)
	}
}

func TestTransitionTable(t *testing.T) {
	legal := []struct{ from, to State }{
		{StateStarted, StateRetrieving},
		{StateRetrieving, StateRetrieving},
		{StateRetrieving, StateGenerating},
		{StateRetrieving, StateEscalated},
		{StateGenerating, StateValidating},
		{StateGenerating, StateEscalated},
		{StateValidating, StateRetrieving},
		{StateValidating, StateGenerating},
		{StateValidating, StateDone},
		{StateValidating, StateEscalated},
	}
	for _, tr := range legal {
		if !canTransition(tr.from, tr.to) {
			t.Errorf("transition %s -> %s should be legal", tr.from, tr.to)
		}
	}

	illegal := []struct{ from, to State }{
		{StateStarted, StateGenerating},
		{StateStarted, StateDone},
		{StateGenerating, StateRetrieving},
		{StateDone, StateRetrieving},
		{StateEscalated, StateDone},
	}
	for _, tr := range illegal {
		if canTransition(tr.from, tr.to) {
			t.Errorf("transition %s -> %s should be illegal", tr.from, tr.to)
		}
	}
}

func TestSessionRejectsIllegalTransition(t *testing.T) {
	sess := newSession("test")
	if err := sess.transition(StateDone); err == nil {
		t.Error("started -> done accepted")
	}
	if err := sess.transition(StateRetrieving); err != nil {
		t.Errorf("started -> retrieving rejected: %v", err)
	}
	if sess.terminal() {
		t.Error("retrieving reported as terminal")
	}
}
