package agent

import (
	"strings"
)

// Intent buckets a question into one FAQ category. Categories mirror the
// FAQ taxonomy used at ingestion, so a confident classification doubles as a
// vector search filter.
type Intent string

const (
	IntentLogin       Intent = "로그인"
	IntentTransfer    Intent = "이체"
	IntentCertificate Intent = "인증서"
	IntentErrorCode   Intent = "오류코드"
	IntentSecurity    Intent = "보안"
	IntentFee         Intent = "수수료"
	IntentLimit       Intent = "한도"
	IntentAccountReg  Intent = "계좌등록"
	IntentGeneral     Intent = "기타"
)

// intentKeywords is checked in order; the first category with a keyword hit
// wins. More specific categories come before broader ones so "이체 한도"
// classifies as 한도, not 이체.
var intentKeywords = []struct {
	intent   Intent
	keywords []string
}{
	{IntentErrorCode, []string{"오류코드", "오류 코드", "에러코드", "에러 코드", "E-", "ERR"}},
	{IntentLimit, []string{"한도", "1일", "1회", "이체한도"}},
	{IntentFee, []string{"수수료", "면제", "요금"}},
	{IntentCertificate, []string{"인증서", "공동인증", "공인인증", "금융인증", "갱신", "재발급"}},
	{IntentSecurity, []string{"보안카드", "보안매체", "해킹", "피싱", "스미싱", "명의도용"}},
	{IntentAccountReg, []string{"계좌등록", "계좌 등록", "출금계좌", "입금계좌 지정"}},
	{IntentLogin, []string{"로그인", "아이디", "비밀번호", "접속이 안", "로그아웃"}},
	{IntentTransfer, []string{"이체", "송금", "자동이체", "예약이체", "입금"}},
}

// ClassifyIntent is deterministic keyword matching. Anything unmatched falls
// through to 기타 and searches without a category filter.
func ClassifyIntent(question string) Intent {
	for _, entry := range intentKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(question, kw) {
				return entry.intent
			}
		}
	}
	return IntentGeneral
}

// SearchCategory maps an intent to the category filter used at retrieval.
// The general bucket searches everything.
func SearchCategory(intent Intent) string {
	if intent == IntentGeneral {
		return ""
	}
	return string(intent)
}

// RewriteQuery normalizes a question for embedding: collapse whitespace and
// drop colloquial endings that carry no retrieval signal.
func RewriteQuery(question string) string {
	rewritten := strings.Join(strings.Fields(question), " ")

	for _, filler := range []string{"ㅠㅠ", "ㅜㅜ", "ㅠ", "ㅜ", "!!", "??", "..."} {
		rewritten = strings.ReplaceAll(rewritten, filler, "")
	}

	return strings.TrimSpace(rewritten)
}

// ReformulateQuery builds the second-round retrieval query by folding the
// caller-supplied context into the question. Used once per session, after an
// empty first round.
func ReformulateQuery(question, userContext string, intent Intent) string {
	parts := []string{question}
	if userContext != "" {
		parts = append(parts, userContext)
	}
	if intent != IntentGeneral {
		parts = append(parts, string(intent))
	}
	return strings.Join(parts, " ")
}
