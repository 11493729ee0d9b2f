package evaluation

import (
	"math"
	"testing"
)

func TestRecallAtK(t *testing.T) {
	retrieved := []string{"f3", "f1", "f7"}

	tests := []struct {
		name string
		gold []string
		k    int
		want float64
	}{
		{"gold at rank 2", []string{"f1"}, 3, 1},
		{"gold beyond k", []string{"f7"}, 2, 0},
		{"any gold counts", []string{"f9", "f3"}, 3, 1},
		{"no gold retrieved", []string{"f9"}, 3, 0},
		{"empty gold", nil, 3, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RecallAtK(retrieved, tt.gold, tt.k); got != tt.want {
				t.Errorf("RecallAtK = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestRecallAtKMonotonicInK(t *testing.T) {
	retrieved := []string{"f1", "f2", "f3", "f4", "f5"}
	gold := []string{"f4"}

	prev := 0.0
	for k := 1; k <= 5; k++ {
		got := RecallAtK(retrieved, gold, k)
		if got < prev {
			t.Errorf("recall dropped from %f to %f at k=%d", prev, got, k)
		}
		prev = got
	}
	if prev != 1 {
		t.Errorf("recall at k=5 = %f, want 1", prev)
	}
}

func TestLexicalOverlap(t *testing.T) {
	full := lexicalOverlap("이체 한도 변경", "이체 한도 변경 방법 안내")
	if full != 1.0 {
		t.Errorf("full overlap = %f, want 1.0", full)
	}

	none := lexicalOverlap("대출 금리 문의", "이체 한도 변경 방법")
	if none != 0 {
		t.Errorf("no overlap = %f, want 0", none)
	}

	half := lexicalOverlap("이체 금리", "이체 한도")
	if math.Abs(half-0.5) > 1e-9 {
		t.Errorf("half overlap = %f, want 0.5", half)
	}
}

func TestTokenizeStripsPunctuation(t *testing.T) {
	tokens := tokenize("한도는 1억원입니다. (영업일 기준)")
	want := []string{"한도는", "1억원입니다", "영업일", "기준"}
	if len(tokens) != len(want) {
		t.Fatalf("tokens = %v, want %v", tokens, want)
	}
	for i := range want {
		if tokens[i] != want[i] {
			t.Errorf("tokens[%d] = %q, want %q", i, tokens[i], want[i])
		}
	}
}

func TestFaithfulnessSupportedAnswer(t *testing.T) {
	evidence := []string{
		"이체 한도 변경은 인터넷뱅킹 뱅킹관리 메뉴에서 신청할 수 있습니다. OTP 인증이 필요합니다.",
	}
	answer := "이체 한도 변경은 뱅킹관리 메뉴에서 신청할 수 있습니다."

	if got := Faithfulness(answer, evidence); got != 1.0 {
		t.Errorf("Faithfulness = %f, want 1.0", got)
	}
}

func TestFaithfulnessUnsupportedAnswer(t *testing.T) {
	evidence := []string{"이체 한도 변경은 뱅킹관리 메뉴에서 신청합니다."}
	answer := "대출 금리는 연 3.5%이며 영업점 방문이 필요합니다."

	if got := Faithfulness(answer, evidence); got != 0 {
		t.Errorf("Faithfulness = %f, want 0", got)
	}
}

func TestFaithfulnessEmptyAnswer(t *testing.T) {
	if got := Faithfulness("", []string{"근거"}); got != 0 {
		t.Errorf("Faithfulness of empty answer = %f, want 0", got)
	}
}

func TestHallucinated(t *testing.T) {
	evidence := []string{"이체 한도 변경은 뱅킹관리 메뉴에서 신청할 수 있습니다."}

	if Hallucinated("이체 한도 변경은 뱅킹관리 메뉴에서 신청할 수 있습니다.", evidence, 1) {
		t.Error("supported cited answer flagged as hallucinated")
	}
	if !Hallucinated("대출 금리는 연 3.5%입니다.", evidence, 1) {
		t.Error("unsupported claim not flagged")
	}
	if !Hallucinated("이체 한도 변경은 뱅킹관리 메뉴에서 신청할 수 있습니다.", evidence, 0) {
		t.Error("uncited answer not flagged")
	}
}

func TestSummarize(t *testing.T) {
	stats := Summarize([]float64{0, 0.25, 0.5, 0.75, 1})
	if stats.Mean != 0.5 {
		t.Errorf("mean = %f, want 0.5", stats.Mean)
	}
	if stats.Q1 != 0.25 || stats.Median != 0.5 || stats.Q3 != 0.75 {
		t.Errorf("quartiles = %f %f %f, want 0.25 0.5 0.75", stats.Q1, stats.Median, stats.Q3)
	}

	single := Summarize([]float64{0.8})
	if single.Mean != 0.8 || single.Q1 != 0.8 || single.Median != 0.8 || single.Q3 != 0.8 {
		t.Errorf("single-value stats = %+v, want all 0.8", single)
	}

	empty := Summarize(nil)
	if empty.Mean != 0 {
		t.Errorf("empty stats = %+v, want zeros", empty)
	}
}
