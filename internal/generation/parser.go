package generation

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var citationMarker = regexp.MustCompile(`\[C:([A-Za-z0-9_\-]+)\]`)

type modelAnswer struct {
	Answer    string   `json:"answer"`
	Steps     []string `json:"steps"`
	Followups []string `json:"followups"`
}

// parseModelAnswer extracts the JSON object from raw model output, tolerating
// markdown code fences and stray prose around the object.
func parseModelAnswer(content string) (*modelAnswer, error) {
	trimmed := stripCodeFences(content)

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in model output")
	}

	var parsed modelAnswer
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse model output: %w", err)
	}

	if strings.TrimSpace(parsed.Answer) == "" {
		return nil, fmt.Errorf("model output has empty answer")
	}

	return &parsed, nil
}

func stripCodeFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

// extractMarkers returns the chunk IDs cited across the given texts, in
// first-appearance order, without duplicates.
func extractMarkers(texts ...string) []string {
	seen := make(map[string]bool)
	var ids []string

	for _, text := range texts {
		for _, m := range citationMarker.FindAllStringSubmatch(text, -1) {
			id := m[1]
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}

	return ids
}

// stripMarkers removes citation markers from display text.
func stripMarkers(text string) string {
	cleaned := citationMarker.ReplaceAllString(text, "")
	cleaned = strings.ReplaceAll(cleaned, "  ", " ")
	return strings.TrimSpace(cleaned)
}
