package ingestion

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/faq-agent/backend/internal/llm"
	"github.com/faq-agent/backend/internal/retrieval"
	"github.com/faq-agent/backend/internal/storage/models"
	"github.com/faq-agent/backend/internal/storage/sqlite"
	"github.com/faq-agent/backend/internal/vector/milvus"
	"github.com/faq-agent/backend/pkg/logger"
	"github.com/faq-agent/backend/pkg/utils"
)

var whitespace = regexp.MustCompile(`\s+`)

// LexicalIndex is rebuilt after ingestion so lexical retrieval scores track
// the stored corpus. Nil disables the refresh.
type LexicalIndex interface {
	Replace(docs []retrieval.ChunkDoc)
}

type Processor struct {
	db           *sqlite.Client
	vectorDB     *milvus.Client
	embedder     llm.Embedder
	lexical      LexicalIndex
	chunkSize    int
	chunkOverlap int
}

func NewProcessor(db *sqlite.Client, vectorDB *milvus.Client, embedder llm.Embedder, lexical LexicalIndex) *Processor {
	return &Processor{
		db:           db,
		vectorDB:     vectorDB,
		embedder:     embedder,
		lexical:      lexical,
		chunkSize:    1000,
		chunkOverlap: 100,
	}
}

// ProcessFAQ ingests one FAQ help page: clean the HTML, chunk, embed, and
// store. Re-ingesting a URL replaces the previous chunks everywhere.
func (p *Processor) ProcessFAQ(ctx context.Context, url, category, htmlContent string) error {
	logger.Info("Processing FAQ document", zap.String("url", url), zap.String("category", category))

	cleanedText := p.cleanHTML(htmlContent)
	if cleanedText == "" {
		return fmt.Errorf("no content extracted from HTML")
	}

	title := p.extractTitle(htmlContent)
	question := p.extractQuestion(htmlContent, title)

	now := time.Now()
	faqID := utils.HashString(url)
	doc := &models.FAQDocument{
		ID:         faqID,
		URL:        url,
		Title:      title,
		Category:   category,
		Question:   question,
		RawContent: cleanedText,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := p.db.InsertFAQ(doc); err != nil {
		return fmt.Errorf("failed to insert faq document: %w", err)
	}

	chunks := p.chunkText(cleanedText)
	logger.Info("FAQ document chunked", zap.String("faq_id", faqID), zap.Int("chunks", len(chunks)))

	embeddings, err := p.embedder.GenerateBatchEmbeddings(ctx, chunks)
	if err != nil {
		return fmt.Errorf("failed to generate embeddings: %w", err)
	}

	if len(embeddings) != len(chunks) {
		return fmt.Errorf("embedding count mismatch: got %d, expected %d", len(embeddings), len(chunks))
	}

	vectorChunks := make([]milvus.FAQChunk, 0, len(chunks))
	dbChunks := make([]models.FAQChunk, 0, len(chunks))
	for i, chunkText := range chunks {
		chunkID := fmt.Sprintf("%s_%d", faqID, i)

		retrieval.Normalize(embeddings[i])
		vectorChunks = append(vectorChunks, milvus.FAQChunk{
			ChunkID:   chunkID,
			Embedding: embeddings[i],
			FaqID:     faqID,
			Title:     title,
			Text:      chunkText,
			Category:  category,
			URL:       url,
			UpdatedAt: now,
		})

		dbChunks = append(dbChunks, models.FAQChunk{
			ID:         chunkID,
			FaqID:      faqID,
			ChunkIndex: i,
			Text:       chunkText,
			CreatedAt:  now,
		})
	}

	if err := p.db.ReplaceChunks(faqID, dbChunks); err != nil {
		return fmt.Errorf("failed to store chunks: %w", err)
	}

	if err := p.vectorDB.DeleteByFaqID(ctx, faqID); err != nil {
		logger.Warn("Failed to delete stale vectors", zap.String("faq_id", faqID), zap.Error(err))
	}

	if len(vectorChunks) > 0 {
		if err := p.vectorDB.Insert(ctx, vectorChunks); err != nil {
			return fmt.Errorf("failed to insert into vector DB: %w", err)
		}
	}

	p.refreshLexical()

	logger.Info("FAQ document processed",
		zap.String("faq_id", faqID),
		zap.Int("chunks", len(vectorChunks)),
	)

	return nil
}

// refreshLexical rebuilds the lexical index from sqlite. Failures are logged,
// not fatal: vector retrieval still works with a stale lexical leg.
func (p *Processor) refreshLexical() {
	if p.lexical == nil {
		return
	}

	stored, err := p.db.ListChunks()
	if err != nil {
		logger.Warn("Failed to reload chunks for lexical index", zap.Error(err))
		return
	}

	docs := make([]retrieval.ChunkDoc, 0, len(stored))
	for _, chunk := range stored {
		docs = append(docs, retrieval.ChunkDoc{ChunkID: chunk.ID, Text: chunk.Text})
	}
	p.lexical.Replace(docs)
}

func (p *Processor) cleanHTML(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	doc.Find("script, style, nav, footer, header, aside").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	text := doc.Find("body").Text()

	text = whitespace.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)

	return text
}

func (p *Processor) extractTitle(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "제목 없음"
	}

	title := doc.Find("title").First().Text()
	if title == "" {
		title = doc.Find("h1").First().Text()
	}

	if title == "" {
		title = "제목 없음"
	}

	return strings.TrimSpace(title)
}

// extractQuestion pulls the FAQ's question line when the page marks one up,
// falling back to the title.
func (p *Processor) extractQuestion(html, title string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return title
	}

	for _, selector := range []string{".faq-question", ".question", "h2"} {
		if q := strings.TrimSpace(doc.Find(selector).First().Text()); q != "" {
			return q
		}
	}

	return title
}

// chunkText splits on word boundaries with a tail overlap so answers spanning
// a boundary stay retrievable.
func (p *Processor) chunkText(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var chunks []string
	var currentChunk strings.Builder
	currentSize := 0

	for _, word := range words {
		wordLen := len(word) + 1

		if currentSize+wordLen > p.chunkSize && currentChunk.Len() > 0 {
			chunks = append(chunks, strings.TrimSpace(currentChunk.String()))

			overlapWords := strings.Fields(currentChunk.String())
			overlapStart := len(overlapWords) - p.chunkOverlap/10
			if overlapStart < 0 {
				overlapStart = 0
			}
			currentChunk.Reset()
			currentChunk.WriteString(strings.Join(overlapWords[overlapStart:], " ") + " ")
			currentSize = currentChunk.Len()
		}

		currentChunk.WriteString(word + " ")
		currentSize += wordLen
	}

	if currentChunk.Len() > 0 {
		chunks = append(chunks, strings.TrimSpace(currentChunk.String()))
	}

	return chunks
}
