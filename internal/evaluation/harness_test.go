package evaluation

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/faq-agent/backend/internal/agent"
	"github.com/faq-agent/backend/internal/generation"
	"github.com/faq-agent/backend/internal/retrieval"
)

// scriptedRunner answers purely from the question text, so every run over
// the same dataset is identical.
type scriptedRunner struct{}

func (s *scriptedRunner) Handle(ctx context.Context, req agent.Request) (*agent.Response, error) {
	switch req.Question {
	case "fail":
		return nil, errors.New("backend down")
	case "escalate":
		return &agent.Response{
			Answer:    &generation.Answer{Text: "관련 FAQ를 찾지 못했습니다.", Fallback: true},
			Escalated: true,
		}, nil
	default:
		return &agent.Response{
			Answer: &generation.Answer{
				Text:       "이체 한도 변경은 뱅킹관리 메뉴에서 신청할 수 있습니다.",
				Citations:  []generation.Citation{{ChunkID: "faq-1_0", FaqID: "faq-1"}},
				Confidence: 0.72,
			},
			Retrieved: []retrieval.Result{
				{FaqID: "faq-1", ChunkID: "faq-1_0", Text: "이체 한도 변경은 뱅킹관리 메뉴에서 신청할 수 있습니다."},
				{FaqID: "faq-2", ChunkID: "faq-2_0", Text: "OTP 오류 안내"},
			},
		}, nil
	}
}

func testRecords(n int) []Record {
	records := make([]Record, n)
	for i := range records {
		records[i] = Record{
			ID:         fmt.Sprintf("rec-%d", i),
			Question:   "이체 한도 변경",
			GoldFaqIDs: []string{"faq-1"},
		}
	}
	return records
}

func TestRunIsDeterministic(t *testing.T) {
	harness := NewHarness(&scriptedRunner{}, Config{K: 5, Workers: 4})
	records := testRecords(10)

	first, err := harness.Run(context.Background(), records)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	second, err := harness.Run(context.Background(), records)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Errorf("reports differ between runs:\n first: %+v\nsecond: %+v", first, second)
	}
	if first.Recall.Mean != 1.0 {
		t.Errorf("mean recall = %f, want 1.0", first.Recall.Mean)
	}
	if first.HallucinationRate != 0 {
		t.Errorf("hallucination rate = %f, want 0", first.HallucinationRate)
	}
}

func TestRunAggregatesOutcomes(t *testing.T) {
	harness := NewHarness(&scriptedRunner{}, Config{K: 5, Workers: 2})

	records := []Record{
		{ID: "a", Question: "이체 한도 변경", GoldFaqIDs: []string{"faq-1"}},
		{ID: "b", Question: "escalate", GoldFaqIDs: []string{"faq-9"}},
		{ID: "c", Question: "fail", GoldFaqIDs: []string{"faq-9"}},
	}

	report, err := harness.Run(context.Background(), records)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.Total != 3 || report.Answered != 1 || report.Escalated != 1 || report.Failed != 1 {
		t.Errorf("counts = total %d answered %d escalated %d failed %d",
			report.Total, report.Answered, report.Escalated, report.Failed)
	}
	if report.Items[0].ID != "a" || report.Items[2].ID != "c" {
		t.Errorf("items out of record order: %+v", report.Items)
	}
	if report.Items[2].Error == "" {
		t.Error("failed record missing error")
	}
}

func TestRunEmptyDataset(t *testing.T) {
	harness := NewHarness(&scriptedRunner{}, Config{})
	if _, err := harness.Run(context.Background(), nil); err == nil {
		t.Error("empty dataset accepted")
	}
}

// fixedRunner returns the same response for every record.
type fixedRunner struct {
	resp *agent.Response
}

func (f *fixedRunner) Handle(ctx context.Context, req agent.Request) (*agent.Response, error) {
	return f.resp, nil
}

func TestFaithfulnessScoredAgainstCitedChunksOnly(t *testing.T) {
	// The answer's content lives in faq-2_0, but the answer cites faq-1_0.
	// Support from a retrieved-but-uncited chunk must not count.
	runner := &fixedRunner{resp: &agent.Response{
		Answer: &generation.Answer{
			Text:      "OTP 오류는 기기 시간 동기화로 해결할 수 있습니다.",
			Citations: []generation.Citation{{ChunkID: "faq-1_0", FaqID: "faq-1"}},
		},
		Retrieved: []retrieval.Result{
			{FaqID: "faq-1", ChunkID: "faq-1_0", Text: "이체 한도 변경은 뱅킹관리 메뉴에서 신청할 수 있습니다."},
			{FaqID: "faq-2", ChunkID: "faq-2_0", Text: "OTP 오류는 기기 시간 동기화로 해결할 수 있습니다."},
		},
	}}

	harness := NewHarness(runner, Config{K: 5, Workers: 1})
	report, err := harness.Run(context.Background(), []Record{
		{ID: "miscited", Question: "OTP 오류", GoldFaqIDs: []string{"faq-2"}},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	item := report.Items[0]
	if item.Faithfulness != 0 {
		t.Errorf("faithfulness = %f, want 0: uncited chunk text counted as evidence", item.Faithfulness)
	}
	if !item.Hallucinated {
		t.Error("answer supported only by an uncited chunk not flagged as hallucinated")
	}
}

func TestRecallRespectsGoldSet(t *testing.T) {
	harness := NewHarness(&scriptedRunner{}, Config{K: 5, Workers: 1})

	records := []Record{
		{ID: "hit", Question: "이체 한도 변경", GoldFaqIDs: []string{"faq-2"}},
		{ID: "miss", Question: "이체 한도 변경", GoldFaqIDs: []string{"faq-9"}},
	}

	report, err := harness.Run(context.Background(), records)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Items[0].Recall != 1 {
		t.Errorf("recall for gold faq-2 = %f, want 1", report.Items[0].Recall)
	}
	if report.Items[1].Recall != 0 {
		t.Errorf("recall for gold faq-9 = %f, want 0", report.Items[1].Recall)
	}
}
