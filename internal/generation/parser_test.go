package generation

import (
	"reflect"
	"testing"
)

func TestParseModelAnswer(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
		wantErr bool
	}{
		{
			name:    "plain json",
			content: `{"answer": "한도 변경은 뱅킹관리에서 합니다. [C:c1]"}`,
			want:    "한도 변경은 뱅킹관리에서 합니다. [C:c1]",
		},
		{
			name:    "fenced json",
			content: "```json\n{\"answer\": \"답변입니다. [C:c1]\"}\n```",
			want:    "답변입니다. [C:c1]",
		},
		{
			name:    "json with surrounding prose",
			content: "다음은 답변입니다:\n{\"answer\": \"본문 [C:c1]\"}\n감사합니다",
			want:    "본문 [C:c1]",
		},
		{
			name:    "no json",
			content: "그냥 텍스트 답변",
			wantErr: true,
		},
		{
			name:    "empty answer field",
			content: `{"answer": "  "}`,
			wantErr: true,
		},
		{
			name:    "malformed json",
			content: `{"answer": "unterminated`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := parseModelAnswer(tt.content)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", parsed)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseModelAnswer: %v", err)
			}
			if parsed.Answer != tt.want {
				t.Errorf("answer = %q, want %q", parsed.Answer, tt.want)
			}
		})
	}
}

func TestExtractMarkers(t *testing.T) {
	ids := extractMarkers(
		"첫 문장 [C:c1] 둘째 문장 [C:c2]",
		"단계에서 재인용 [C:c1] 그리고 [C:c3]",
	)
	want := []string{"c1", "c2", "c3"}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("markers = %v, want %v", ids, want)
	}

	if got := extractMarkers("마커 없는 문장"); got != nil {
		t.Errorf("markers = %v, want nil", got)
	}
}

func TestStripMarkers(t *testing.T) {
	got := stripMarkers("한도는 1억원입니다. [C:faq-12_0] 영업점 문의 가능. [C:c2]")
	if got != "한도는 1억원입니다. 영업점 문의 가능." {
		t.Errorf("stripMarkers = %q", got)
	}
}
