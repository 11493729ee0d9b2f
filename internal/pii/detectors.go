package pii

import (
	"regexp"
	"strings"
)

// patternRule is a deterministic matcher for structured values. group selects
// the submatch holding the sensitive value so labels stay readable after
// masking ("계좌번호는 [ACCOUNT_NUMBER]입니다").
type patternRule struct {
	kind  Kind
	re    *regexp.Regexp
	group int
}

type patternDetector struct {
	rules []patternRule
}

// Rule order matters: earlier rules win kind ties on identical spans.
func newPatternDetector() *patternDetector {
	return &patternDetector{rules: []patternRule{
		{KindPassword, regexp.MustCompile(`(?i)(?:비밀번호|패스워드|password)\s*[:=]\s*(\S{4,})`), 1},
		{KindSecurityCard, regexp.MustCompile(`보안카드\s*(?:전체번호|전체|번호)?\s*[:=]?\s*([\d][\d\s\-]{10,}[\d])`), 1},
		{KindOTP, regexp.MustCompile(`(?:OTP|일회용\s*비밀번호)\s*(?:전체번호|전체|번호)?\s*[:=]?\s*(\d{6,})`), 1},
		{KindResidentID, regexp.MustCompile(`(?:주민등록번호|주민번호)\s*[:=]?\s*(\d{6}\s*-?\s*\d{7})`), 1},
		{KindResidentID, regexp.MustCompile(`\d{6}\s*-\s*\d{7}`), 0},
		{KindCardNumber, regexp.MustCompile(`(?:카드번호|신용카드)\s*(?:전체번호|전체|번호)?\s*[:=]?\s*([\d][\d\s\-]{11,}[\d])`), 1},
		{KindCardNumber, regexp.MustCompile(`\d{4}[\- ]\d{4}[\- ]\d{4}[\- ]\d{4}`), 0},
		{KindPhone, regexp.MustCompile(`01[016789][\-\s]?\d{3,4}[\-\s]?\d{4}`), 0},
		{KindPhone, regexp.MustCompile(`0\d{1,2}-\d{3,4}-\d{4}`), 0},
		{KindEmail, regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`), 0},
		{KindAccountNumber, regexp.MustCompile(`계좌(?:번호)?\s*(?:전체|번호)?\s*[:=]?(?:은|는|이|가)?\s*([\d][\d\s\-]{8,}[\d])`), 1},
		{KindAccountNumber, regexp.MustCompile(`\d{3}-\d{2,6}-\d{4,6}`), 0},
	}}
}

func (d *patternDetector) Detect(text string) []Span {
	var spans []Span
	for _, rule := range d.rules {
		for _, m := range rule.re.FindAllStringSubmatchIndex(text, -1) {
			start, end := m[2*rule.group], m[2*rule.group+1]
			if start < 0 || end <= start {
				continue
			}
			spans = append(spans, Span{Start: start, End: end, Kind: rule.kind, Layer: LayerPattern})
		}
	}
	return spans
}

// heuristicDetector is the lower-confidence pass for free-text leakage:
// unlabeled digit runs whose length is plausible for an identifier, classified
// by nearby context words.
type heuristicDetector struct {
	run *regexp.Regexp
}

func newHeuristicDetector() *heuristicDetector {
	return &heuristicDetector{
		run: regexp.MustCompile(`[0-9][0-9 ]{8,18}[0-9]`),
	}
}

func (d *heuristicDetector) Detect(text string) []Span {
	var spans []Span
	for _, m := range d.run.FindAllStringIndex(text, -1) {
		start, end := m[0], m[1]
		digits := 0
		for _, r := range text[start:end] {
			if r >= '0' && r <= '9' {
				digits++
			}
		}
		if digits < 10 || digits > 16 {
			continue
		}

		kind := classifyRun(text, start, digits)
		spans = append(spans, Span{Start: start, End: end, Kind: kind, Layer: LayerHeuristic})
	}
	return spans
}

// classifyRun inspects the text leading up to the run for a hint of what the
// number is. A bare 13-digit run defaults to a resident ID.
func classifyRun(text string, start, digits int) Kind {
	windowStart := start - 24
	if windowStart < 0 {
		windowStart = 0
	}
	window := text[windowStart:start]

	switch {
	case strings.Contains(window, "주민"):
		return KindResidentID
	case strings.Contains(window, "카드"):
		return KindCardNumber
	case strings.Contains(window, "계좌"):
		return KindAccountNumber
	case strings.Contains(window, "전화") || strings.Contains(window, "연락처") || strings.Contains(window, "핸드폰"):
		return KindPhone
	case digits == 13:
		return KindResidentID
	case digits >= 15:
		return KindCardNumber
	default:
		return KindAccountNumber
	}
}
