package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/faq-agent/backend/internal/storage/models"
	"github.com/faq-agent/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS faq_documents (
		id TEXT PRIMARY KEY,
		url TEXT UNIQUE NOT NULL,
		title TEXT NOT NULL,
		category TEXT,
		question TEXT,
		raw_content TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_faq_category ON faq_documents(category);
	CREATE INDEX IF NOT EXISTS idx_faq_updated ON faq_documents(updated_at);

	CREATE TABLE IF NOT EXISTS faq_chunks (
		id TEXT PRIMARY KEY,
		faq_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		text TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (faq_id) REFERENCES faq_documents(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_faq ON faq_chunks(faq_id);

	CREATE TABLE IF NOT EXISTS query_history (
		id TEXT PRIMARY KEY,
		user_id TEXT,
		question_masked TEXT NOT NULL,
		answer_text TEXT,
		intent TEXT,
		confidence REAL,
		retrieved_count INTEGER,
		fallback INTEGER DEFAULT 0,
		escalated INTEGER DEFAULT 0,
		latency_ms INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_query_user ON query_history(user_id);
	CREATE INDEX IF NOT EXISTS idx_query_created ON query_history(created_at);
	CREATE INDEX IF NOT EXISTS idx_query_escalated ON query_history(escalated);

	CREATE TABLE IF NOT EXISTS query_citations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		query_id TEXT NOT NULL,
		chunk_id TEXT NOT NULL,
		faq_id TEXT NOT NULL,
		title TEXT,
		url TEXT,
		FOREIGN KEY (query_id) REFERENCES query_history(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_citations_query ON query_citations(query_id);

	CREATE TABLE IF NOT EXISTS feedback (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		query_id TEXT NOT NULL,
		helpful INTEGER NOT NULL,
		issue_category TEXT,
		comment TEXT,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (query_id) REFERENCES query_history(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_feedback_query ON feedback(query_id);

	CREATE TABLE IF NOT EXISTS eval_runs (
		id TEXT PRIMARY KEY,
		dataset_path TEXT NOT NULL,
		k INTEGER NOT NULL,
		total INTEGER NOT NULL,
		answered INTEGER NOT NULL,
		escalated INTEGER NOT NULL,
		mean_recall REAL,
		mean_faithfulness REAL,
		hallucination_rate REAL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_eval_created ON eval_runs(created_at);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) InsertFAQ(doc *models.FAQDocument) error {
	query := `
		INSERT INTO faq_documents (id, url, title, category, question, raw_content, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			category = excluded.category,
			question = excluded.question,
			raw_content = excluded.raw_content,
			updated_at = excluded.updated_at
	`

	_, err := c.db.Exec(
		query,
		doc.ID,
		doc.URL,
		doc.Title,
		doc.Category,
		doc.Question,
		doc.RawContent,
		doc.CreatedAt.Unix(),
		doc.UpdatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert faq document: %w", err)
	}

	logger.Debug("FAQ document inserted", zap.String("faq_id", doc.ID), zap.String("url", doc.URL))
	return nil
}

func (c *Client) GetFAQ(id string) (*models.FAQDocument, error) {
	query := `SELECT id, url, title, category, question, raw_content, created_at, updated_at FROM faq_documents WHERE id = ?`

	var doc models.FAQDocument
	var createdAt, updatedAt int64

	err := c.db.QueryRow(query, id).Scan(
		&doc.ID,
		&doc.URL,
		&doc.Title,
		&doc.Category,
		&doc.Question,
		&doc.RawContent,
		&createdAt,
		&updatedAt,
	)

	if err != nil {
		return nil, fmt.Errorf("failed to get faq document: %w", err)
	}

	doc.CreatedAt = time.Unix(createdAt, 0)
	doc.UpdatedAt = time.Unix(updatedAt, 0)

	return &doc, nil
}

// ReplaceChunks swaps a document's chunks atomically so re-ingestion cannot
// leave a mix of old and new slices.
func (c *Client) ReplaceChunks(faqID string, chunks []models.FAQChunk) error {
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM faq_chunks WHERE faq_id = ?`, faqID); err != nil {
		return fmt.Errorf("failed to delete old chunks: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO faq_chunks (id, faq_id, chunk_index, text, created_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for _, chunk := range chunks {
		if _, err := stmt.Exec(chunk.ID, chunk.FaqID, chunk.ChunkIndex, chunk.Text, chunk.CreatedAt.Unix()); err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", chunk.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunks: %w", err)
	}

	return nil
}

func (c *Client) GetChunk(id string) (*models.FAQChunk, error) {
	query := `SELECT id, faq_id, chunk_index, text, created_at FROM faq_chunks WHERE id = ?`

	var chunk models.FAQChunk
	var createdAt int64

	err := c.db.QueryRow(query, id).Scan(&chunk.ID, &chunk.FaqID, &chunk.ChunkIndex, &chunk.Text, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get chunk: %w", err)
	}

	chunk.CreatedAt = time.Unix(createdAt, 0)
	return &chunk, nil
}

// ListChunks returns every stored chunk, for rebuilding the lexical index.
func (c *Client) ListChunks() ([]models.FAQChunk, error) {
	query := `SELECT id, faq_id, chunk_index, text, created_at FROM faq_chunks ORDER BY faq_id, chunk_index`

	rows, err := c.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer rows.Close()

	var chunks []models.FAQChunk
	for rows.Next() {
		var chunk models.FAQChunk
		var createdAt int64

		if err := rows.Scan(&chunk.ID, &chunk.FaqID, &chunk.ChunkIndex, &chunk.Text, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}

		chunk.CreatedAt = time.Unix(createdAt, 0)
		chunks = append(chunks, chunk)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chunks: %w", err)
	}

	return chunks, nil
}

func (c *Client) InsertQueryRecord(record *models.QueryRecord) error {
	query := `
		INSERT INTO query_history (id, user_id, question_masked, answer_text, intent, confidence,
			retrieved_count, fallback, escalated, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.Exec(
		query,
		record.ID,
		record.UserID,
		record.QuestionMasked,
		record.AnswerText,
		record.Intent,
		record.Confidence,
		record.RetrievedCount,
		boolToInt(record.Fallback),
		boolToInt(record.Escalated),
		record.LatencyMS,
		record.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert query record: %w", err)
	}

	logger.Info("Query recorded",
		zap.String("query_id", record.ID),
		zap.String("intent", record.Intent),
		zap.Float64("confidence", record.Confidence),
	)

	return nil
}

func (c *Client) InsertQueryCitation(citation *models.QueryCitation) error {
	query := `INSERT INTO query_citations (query_id, chunk_id, faq_id, title, url) VALUES (?, ?, ?, ?, ?)`

	_, err := c.db.Exec(
		query,
		citation.QueryID,
		citation.ChunkID,
		citation.FaqID,
		citation.Title,
		citation.URL,
	)

	if err != nil {
		return fmt.Errorf("failed to insert query citation: %w", err)
	}

	return nil
}

func (c *Client) GetQueryHistory(userID string, limit int) ([]models.QueryRecord, error) {
	query := `
		SELECT id, question_masked, answer_text, intent, confidence, escalated, created_at
		FROM query_history
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := c.db.Query(query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get query history: %w", err)
	}
	defer rows.Close()

	var records []models.QueryRecord
	for rows.Next() {
		var r models.QueryRecord
		var escalated int
		var createdAt int64

		err := rows.Scan(&r.ID, &r.QuestionMasked, &r.AnswerText, &r.Intent, &r.Confidence, &escalated, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		r.Escalated = escalated == 1
		r.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, r)
	}

	return records, nil
}

func (c *Client) StoreFeedback(feedback *models.Feedback) error {
	query := `INSERT INTO feedback (query_id, helpful, issue_category, comment, created_at) VALUES (?, ?, ?, ?, ?)`

	_, err := c.db.Exec(
		query,
		feedback.QueryID,
		boolToInt(feedback.Helpful),
		feedback.IssueCategory,
		feedback.Comment,
		time.Now().Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to store feedback: %w", err)
	}

	logger.Info("Feedback stored",
		zap.String("query_id", feedback.QueryID),
		zap.Bool("helpful", feedback.Helpful),
	)

	return nil
}

func (c *Client) InsertEvalRun(run *models.EvalRun) error {
	query := `
		INSERT INTO eval_runs (id, dataset_path, k, total, answered, escalated,
			mean_recall, mean_faithfulness, hallucination_rate, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.Exec(
		query,
		run.ID,
		run.DatasetPath,
		run.K,
		run.Total,
		run.Answered,
		run.Escalated,
		run.MeanRecall,
		run.MeanFaithfulness,
		run.HallucinationRate,
		run.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert eval run: %w", err)
	}

	logger.Info("Evaluation run recorded",
		zap.String("run_id", run.ID),
		zap.Float64("mean_recall", run.MeanRecall),
	)

	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
