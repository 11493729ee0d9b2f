package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/faq-agent/backend/internal/agent"
	"github.com/faq-agent/backend/pkg/logger"
)

// AgentRunner is the pipeline surface the harness drives. Wrapping the model
// with a recorded completer makes runs repeatable.
type AgentRunner interface {
	Handle(ctx context.Context, req agent.Request) (*agent.Response, error)
}

// Record is one labeled dataset item.
type Record struct {
	ID          string   `json:"id"`
	Question    string   `json:"question"`
	UserContext string   `json:"user_context,omitempty"`
	GoldFaqIDs  []string `json:"gold_faq_ids"`
}

// ItemResult is the per-record outcome.
type ItemResult struct {
	ID           string  `json:"id"`
	Recall       float64 `json:"recall"`
	Faithfulness float64 `json:"faithfulness"`
	Hallucinated bool    `json:"hallucinated"`
	Escalated    bool    `json:"escalated"`
	Confidence   float64 `json:"confidence"`
	Error        string  `json:"error,omitempty"`
}

// Report aggregates a full run.
type Report struct {
	Total             int          `json:"total"`
	Answered          int          `json:"answered"`
	Escalated         int          `json:"escalated"`
	Failed            int          `json:"failed"`
	K                 int          `json:"k"`
	Recall            Stats        `json:"recall_at_k"`
	Faithfulness      Stats        `json:"faithfulness"`
	HallucinationRate float64      `json:"hallucination_rate"`
	Items             []ItemResult `json:"items"`
}

type Harness struct {
	runner  AgentRunner
	k       int
	workers int
}

type Config struct {
	K       int
	Workers int
}

func NewHarness(runner AgentRunner, cfg Config) *Harness {
	if cfg.K <= 0 {
		cfg.K = 5
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}

	return &Harness{
		runner:  runner,
		k:       cfg.K,
		workers: cfg.Workers,
	}
}

// Run evaluates every record with a worker pool, then aggregates in record
// order on a single goroutine. Per-item metrics are independent, so the
// report does not depend on scheduling.
func (h *Harness) Run(ctx context.Context, records []Record) (*Report, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("dataset is empty")
	}

	logger.Info("Evaluation run started",
		zap.Int("records", len(records)),
		zap.Int("k", h.k),
		zap.Int("workers", h.workers),
	)

	items := make([]ItemResult, len(records))
	indexes := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < h.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				items[i] = h.evaluateRecord(ctx, records[i])
			}
		}()
	}

	for i := range records {
		indexes <- i
	}
	close(indexes)
	wg.Wait()

	report := aggregate(items, h.k)

	logger.Info("Evaluation run completed",
		zap.Int("total", report.Total),
		zap.Int("escalated", report.Escalated),
		zap.Float64("mean_recall", report.Recall.Mean),
		zap.Float64("hallucination_rate", report.HallucinationRate),
	)

	return report, nil
}

func (h *Harness) evaluateRecord(ctx context.Context, record Record) ItemResult {
	item := ItemResult{ID: record.ID}

	resp, err := h.runner.Handle(ctx, agent.Request{
		Question:    record.Question,
		UserContext: record.UserContext,
		TopK:        h.k,
	})
	if err != nil {
		logger.Error("Record evaluation failed",
			zap.String("id", record.ID),
			zap.Error(err),
		)
		item.Error = err.Error()
		return item
	}

	retrievedFaqIDs := make([]string, 0, len(resp.Retrieved))
	for _, r := range resp.Retrieved {
		retrievedFaqIDs = append(retrievedFaqIDs, r.FaqID)
	}

	item.Recall = RecallAtK(retrievedFaqIDs, record.GoldFaqIDs, h.k)
	item.Escalated = resp.Escalated
	item.Confidence = resp.Answer.Confidence

	// Fallback answers claim nothing, so faithfulness and hallucination
	// only apply to generated ones. Evidence is the text of the chunks the
	// answer actually cites: support from a retrieved-but-uncited chunk does
	// not make a claim faithful.
	if !resp.Answer.Fallback {
		evidence := citedEvidence(resp)
		item.Faithfulness = Faithfulness(resp.Answer.Text, evidence)
		item.Hallucinated = Hallucinated(resp.Answer.Text, evidence, len(resp.Answer.Citations))
	}

	return item
}

// citedEvidence collects the full text of every retrieved chunk the answer
// cites.
func citedEvidence(resp *agent.Response) []string {
	cited := make(map[string]bool, len(resp.Answer.Citations))
	for _, c := range resp.Answer.Citations {
		cited[c.ChunkID] = true
	}

	evidence := make([]string, 0, len(cited))
	for _, r := range resp.Retrieved {
		if cited[r.ChunkID] {
			evidence = append(evidence, r.Text)
		}
	}
	return evidence
}

func aggregate(items []ItemResult, k int) *Report {
	report := &Report{
		Total: len(items),
		K:     k,
		Items: items,
	}

	var recalls, faithfulnesses []float64
	hallucinated := 0

	for _, item := range items {
		if item.Error != "" {
			report.Failed++
			continue
		}

		recalls = append(recalls, item.Recall)

		if item.Escalated {
			report.Escalated++
			continue
		}

		report.Answered++
		faithfulnesses = append(faithfulnesses, item.Faithfulness)
		if item.Hallucinated {
			hallucinated++
		}
	}

	report.Recall = Summarize(recalls)
	report.Faithfulness = Summarize(faithfulnesses)
	if report.Answered > 0 {
		report.HallucinationRate = float64(hallucinated) / float64(report.Answered)
	}

	return report
}

// LoadRecords reads a JSON dataset file: either a bare array or an object
// with a "records" field.
func LoadRecords(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err == nil {
		return records, nil
	}

	var wrapped struct {
		Records []Record `json:"records"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to parse dataset: %w", err)
	}

	return wrapped.Records, nil
}

// Render formats a report for terminal output.
func Render(report *Report) string {
	return fmt.Sprintf(`
Evaluation Report
=================

Records: %d (answered %d, escalated %d, failed %d)
Recall@%d:     mean %.3f  q1 %.3f  median %.3f  q3 %.3f
Faithfulness: mean %.3f  q1 %.3f  median %.3f  q3 %.3f
Hallucination rate: %.3f
`,
		report.Total, report.Answered, report.Escalated, report.Failed,
		report.K, report.Recall.Mean, report.Recall.Q1, report.Recall.Median, report.Recall.Q3,
		report.Faithfulness.Mean, report.Faithfulness.Q1, report.Faithfulness.Median, report.Faithfulness.Q3,
		report.HallucinationRate,
	)
}
