package pii

import (
	"strings"
	"testing"
)

func TestScanDetectsLabeledValues(t *testing.T) {
	engine := NewEngine()

	tests := []struct {
		name string
		text string
		kind Kind
	}{
		{"account with particle", "제 계좌번호는 123-456-789012입니다", KindAccountNumber},
		{"bare account", "123-456-789012로 이체했는데 안 들어왔어요", KindAccountNumber},
		{"resident id", "주민등록번호: 900101-1234567", KindResidentID},
		{"card number", "1234-5678-9012-3456 카드로 결제했어요", KindCardNumber},
		{"mobile phone", "010-1234-5678로 연락주세요", KindPhone},
		{"email", "user@example.com으로 보내주세요", KindEmail},
		{"password", "비밀번호: mypass1234 입력이 안돼요", KindPassword},
		{"security card", "보안카드 번호: 1234 5678 9012 3456", KindSecurityCard},
		{"otp", "OTP: 123456 입력했는데 오류가 나요", KindOTP},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spans := engine.Scan(tt.text)
			if len(spans) == 0 {
				t.Fatalf("expected at least one span in %q", tt.text)
			}
			found := false
			for _, s := range spans {
				if s.Kind == tt.kind {
					found = true
				}
			}
			if !found {
				t.Errorf("expected kind %s, got %+v", tt.kind, spans)
			}
		})
	}
}

func TestScanCleanText(t *testing.T) {
	engine := NewEngine()

	clean := []string{
		"",
		"인터넷뱅킹 로그인이 안돼요",
		"이체 한도를 늘리고 싶어요",
		"고객센터 번호가 1588-0000 맞나요",
	}
	for _, text := range clean {
		if spans := engine.Scan(text); len(spans) != 0 {
			t.Errorf("Scan(%q) = %+v, want no spans", text, spans)
		}
	}
}

func TestMaskReplacesValueKeepsLabel(t *testing.T) {
	engine := NewEngine()

	text := "제 계좌번호는 123-456-789012입니다"
	masked := engine.Mask(text, engine.Scan(text))

	if !strings.Contains(masked, "[ACCOUNT_NUMBER]") {
		t.Errorf("masked text missing placeholder: %q", masked)
	}
	if !strings.Contains(masked, "계좌번호") {
		t.Errorf("masked text lost surrounding label: %q", masked)
	}
	if strings.ContainsAny(masked, "0123456789") {
		t.Errorf("masked text still contains digits: %q", masked)
	}
}

func TestMaskIdempotent(t *testing.T) {
	engine := NewEngine()

	texts := []string{
		"제 계좌번호는 123-456-789012입니다",
		"주민등록번호: 900101-1234567, 전화 010-1234-5678",
		"비밀번호: abcd1234 그리고 OTP: 654321",
	}
	for _, text := range texts {
		once := engine.Mask(text, engine.Scan(text))
		twice := engine.Mask(once, engine.Scan(once))
		if once != twice {
			t.Errorf("masking not idempotent:\n once: %q\ntwice: %q", once, twice)
		}
	}
}

func TestMaskFailsClosedOnBadSpan(t *testing.T) {
	engine := NewEngine()

	text := "계좌번호 123-456-789012"
	bad := []Span{{Start: 5, End: len(text) + 10, Kind: KindAccountNumber, Layer: LayerPattern}}

	if got := engine.Mask(text, bad); got != fullMask {
		t.Errorf("Mask with out-of-range span = %q, want %q", got, fullMask)
	}

	negative := []Span{{Start: -3, End: 4, Kind: KindPhone, Layer: LayerPattern}}
	if got := engine.Mask(text, negative); got != fullMask {
		t.Errorf("Mask with negative span = %q, want %q", got, fullMask)
	}
}

func TestHeuristicLayerClassifiesByContext(t *testing.T) {
	engine := NewEngine()

	text := "카드 분실했어요 1234567890123456"
	spans := engine.Scan(text)
	if len(spans) != 1 {
		t.Fatalf("expected one span, got %+v", spans)
	}
	if spans[0].Kind != KindCardNumber {
		t.Errorf("kind = %s, want %s", spans[0].Kind, KindCardNumber)
	}
	if spans[0].Layer != LayerHeuristic {
		t.Errorf("layer = %s, want %s", spans[0].Layer, LayerHeuristic)
	}
}

func TestMergeSpansPatternWinsOverlap(t *testing.T) {
	spans := []Span{
		{Start: 0, End: 13, Kind: KindAccountNumber, Layer: LayerHeuristic},
		{Start: 0, End: 13, Kind: KindPhone, Layer: LayerPattern},
		{Start: 20, End: 30, Kind: KindEmail, Layer: LayerPattern},
	}

	merged := mergeSpans(spans)
	if len(merged) != 2 {
		t.Fatalf("merged = %+v, want 2 spans", merged)
	}
	if merged[0].Kind != KindPhone || merged[0].Layer != LayerPattern {
		t.Errorf("overlap winner = %+v, want pattern phone", merged[0])
	}
	if merged[0].Start != 0 || merged[0].End != 13 {
		t.Errorf("overlap range = [%d,%d), want [0,13)", merged[0].Start, merged[0].End)
	}
}

func TestSanitizeReturnsGuidance(t *testing.T) {
	engine := NewEngine()

	masked, warnings := engine.Sanitize("비밀번호: secret99 계좌번호는 123-456-789012입니다")
	if strings.Contains(masked, "secret99") {
		t.Errorf("sanitized text leaks password: %q", masked)
	}
	if len(warnings) != 2 {
		t.Errorf("warnings = %v, want one per kind", warnings)
	}

	same, none := engine.Sanitize("로그인 오류 코드가 떠요")
	if same != "로그인 오류 코드가 떠요" || none != nil {
		t.Errorf("clean text changed: %q %v", same, none)
	}
}
