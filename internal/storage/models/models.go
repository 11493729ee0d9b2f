package models

import "time"

// FAQDocument is one FAQ entry from the internet banking help center.
type FAQDocument struct {
	ID         string
	URL        string
	Title      string
	Category   string
	Question   string
	RawContent string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// FAQChunk is one embedded slice of an FAQ document. ChunkIndex preserves
// original order within the document.
type FAQChunk struct {
	ID         string
	FaqID      string
	ChunkIndex int
	Text       string
	CreatedAt  time.Time
}

// QueryRecord is one answered question, kept for audit and analytics. The
// question text is stored after PII masking.
type QueryRecord struct {
	ID             string
	UserID         string
	QuestionMasked string
	AnswerText     string
	Intent         string
	Confidence     float64
	RetrievedCount int
	Fallback       bool
	Escalated      bool
	LatencyMS      int
	CreatedAt      time.Time
}

// QueryCitation links a recorded answer back to the chunks it cited.
type QueryCitation struct {
	ID      int
	QueryID string
	ChunkID string
	FaqID   string
	Title   string
	URL     string
}

type Feedback struct {
	ID            int
	QueryID       string
	Helpful       bool
	IssueCategory string
	Comment       string
	CreatedAt     time.Time
}

// EvalRun is one persisted evaluation harness run.
type EvalRun struct {
	ID                string
	DatasetPath       string
	K                 int
	Total             int
	Answered          int
	Escalated         int
	MeanRecall        float64
	MeanFaithfulness  float64
	HallucinationRate float64
	CreatedAt         time.Time
}
