package evaluation

import (
	"sort"
	"strings"

	prose "github.com/jdkato/prose/v2"

	"github.com/faq-agent/backend/pkg/logger"
)

// supportThreshold is the minimum lexical overlap between a claim and the
// retrieved evidence for the claim to count as supported.
const supportThreshold = 0.3

// RecallAtK is 1 when any gold FAQ document appears among the retrieved ones,
// else 0. k bounds how many retrieved documents count.
func RecallAtK(retrievedFaqIDs, goldFaqIDs []string, k int) float64 {
	if len(goldFaqIDs) == 0 {
		return 0
	}
	if k > len(retrievedFaqIDs) {
		k = len(retrievedFaqIDs)
	}

	gold := make(map[string]bool, len(goldFaqIDs))
	for _, id := range goldFaqIDs {
		gold[id] = true
	}

	for _, id := range retrievedFaqIDs[:k] {
		if gold[id] {
			return 1
		}
	}
	return 0
}

// SplitClaims segments an answer into sentence-level claims.
func SplitClaims(text string) []string {
	doc, err := prose.NewDocument(text,
		prose.WithTagging(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		logger.Warn("Sentence segmentation failed, treating answer as one claim")
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return nil
		}
		return []string{trimmed}
	}

	var claims []string
	for _, sent := range doc.Sentences() {
		claim := strings.TrimSpace(sent.Text)
		if claim != "" {
			claims = append(claims, claim)
		}
	}
	return claims
}

// Faithfulness is the fraction of an answer's claims that the evidence
// lexically supports. An answer with no claims scores 0.
func Faithfulness(answer string, evidence []string) float64 {
	claims := SplitClaims(answer)
	if len(claims) == 0 {
		return 0
	}

	supported := 0
	for _, claim := range claims {
		if claimSupported(claim, evidence) {
			supported++
		}
	}
	return float64(supported) / float64(len(claims))
}

// Hallucinated flags an answer that cites nothing or contains any claim the
// evidence does not support.
func Hallucinated(answer string, evidence []string, citationCount int) bool {
	if citationCount == 0 {
		return true
	}
	for _, claim := range SplitClaims(answer) {
		if !claimSupported(claim, evidence) {
			return true
		}
	}
	return false
}

func claimSupported(claim string, evidence []string) bool {
	for _, ev := range evidence {
		if lexicalOverlap(claim, ev) >= supportThreshold {
			return true
		}
	}
	return false
}

// lexicalOverlap is the fraction of a claim's tokens present in the evidence.
func lexicalOverlap(claim, evidence string) float64 {
	claimTokens := tokenize(claim)
	if len(claimTokens) == 0 {
		return 0
	}

	evidenceSet := make(map[string]bool)
	for _, tok := range tokenize(evidence) {
		evidenceSet[tok] = true
	}

	matched := 0
	for _, tok := range claimTokens {
		if evidenceSet[tok] {
			matched++
		}
	}
	return float64(matched) / float64(len(claimTokens))
}

func tokenize(text string) []string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '.', ',', '!', '?', ':', ';', '(', ')', '[', ']', '"', '\'':
			return ' '
		}
		return r
	}, strings.ToLower(text))

	return strings.Fields(cleaned)
}

// Stats summarizes a metric across the dataset.
type Stats struct {
	Mean   float64 `json:"mean"`
	Q1     float64 `json:"q1"`
	Median float64 `json:"median"`
	Q3     float64 `json:"q3"`
}

// Summarize computes mean and quartiles. Quartiles use linear interpolation
// between ranks so small datasets still get sensible values.
func Summarize(values []float64) Stats {
	if len(values) == 0 {
		return Stats{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}

	return Stats{
		Mean:   sum / float64(len(sorted)),
		Q1:     quantile(sorted, 0.25),
		Median: quantile(sorted, 0.5),
		Q3:     quantile(sorted, 0.75),
	}
}

func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}

	pos := q * float64(len(sorted)-1)
	lower := int(pos)
	upper := lower + 1
	if upper >= len(sorted) {
		return sorted[lower]
	}

	frac := pos - float64(lower)
	return sorted[lower]*(1-frac) + sorted[upper]*frac
}
