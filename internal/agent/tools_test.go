package agent

import "testing"

func TestClassifyIntent(t *testing.T) {
	tests := []struct {
		question string
		want     Intent
	}{
		{"로그인이 안돼요", IntentLogin},
		{"이체가 안되는데 어떻게 하나요", IntentTransfer},
		{"이체 한도를 늘리고 싶어요", IntentLimit},
		{"공동인증서 갱신 방법 알려주세요", IntentCertificate},
		{"오류코드 E-1234가 떠요", IntentErrorCode},
		{"타행 이체 수수료가 얼마인가요", IntentFee},
		{"보안카드를 분실했어요", IntentSecurity},
		{"출금계좌 추가하고 싶어요", IntentAccountReg},
		{"영업시간이 어떻게 되나요", IntentGeneral},
	}

	for _, tt := range tests {
		if got := ClassifyIntent(tt.question); got != tt.want {
			t.Errorf("ClassifyIntent(%q) = %s, want %s", tt.question, got, tt.want)
		}
	}
}

func TestSearchCategory(t *testing.T) {
	if got := SearchCategory(IntentGeneral); got != "" {
		t.Errorf("general category = %q, want empty", got)
	}
	if got := SearchCategory(IntentTransfer); got != "이체" {
		t.Errorf("transfer category = %q, want 이체", got)
	}
}

func TestRewriteQuery(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  로그인이   안돼요  ", "로그인이 안돼요"},
		{"이체가 안돼요 ㅠㅠ", "이체가 안돼요"},
		{"한도 변경!!", "한도 변경"},
	}
	for _, tt := range tests {
		if got := RewriteQuery(tt.in); got != tt.want {
			t.Errorf("RewriteQuery(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestReformulateQuery(t *testing.T) {
	got := ReformulateQuery("로그인이 안돼요", "모바일 앱 사용", IntentLogin)
	want := "로그인이 안돼요 모바일 앱 사용 로그인"
	if got != want {
		t.Errorf("ReformulateQuery = %q, want %q", got, want)
	}

	got = ReformulateQuery("질문", "", IntentGeneral)
	if got != "질문" {
		t.Errorf("ReformulateQuery without context = %q, want unchanged", got)
	}
}
