package milvus

import (
	"context"
	"fmt"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/faq-agent/backend/internal/retrieval"
	"github.com/faq-agent/backend/pkg/logger"
)

type Client struct {
	client         client.Client
	collectionName string
	vectorDim      int
}

// FAQChunk is one embedded slice of an FAQ document as stored in the
// collection. Embeddings are L2-normalized before insert so the IP metric
// yields cosine similarity.
type FAQChunk struct {
	ChunkID   string
	Embedding []float32
	FaqID     string
	Title     string
	Text      string
	Category  string
	URL       string
	UpdatedAt time.Time
}

func NewClient(endpoint, collectionName string, vectorDim int) (*Client, error) {
	c, err := client.NewGrpcClient(
		context.Background(),
		endpoint,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	logger.Info("Milvus client initialized",
		zap.String("endpoint", endpoint),
		zap.String("collection", collectionName),
	)

	return &Client{
		client:         c,
		collectionName: collectionName,
		vectorDim:      vectorDim,
	}, nil
}

func (m *Client) Close() error {
	return m.client.Close()
}

func (m *Client) CreateCollection(ctx context.Context) error {
	has, err := m.client.HasCollection(ctx, m.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if has {
		logger.Info("Collection already exists", zap.String("collection", m.collectionName))
		return nil
	}

	schema := &entity.Schema{
		CollectionName: m.collectionName,
		Description:    "Internet banking FAQ chunk embeddings",
		Fields: []*entity.Field{
			{
				Name:       "chunk_id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "embedding",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": fmt.Sprintf("%d", m.vectorDim),
				},
			},
			{
				Name:     "faq_id",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "title",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "512",
				},
			},
			{
				Name:     "text",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "4096",
				},
			},
			{
				Name:     "category",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "url",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "512",
				},
			},
			{
				Name:     "updated_at",
				DataType: entity.FieldTypeInt64,
			},
		},
	}

	err = m.client.CreateCollection(ctx, schema, entity.DefaultShardNumber)
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, _ := entity.NewIndexIvfFlat(entity.IP, 1024)
	err = m.client.CreateIndex(ctx, m.collectionName, "embedding", idx, false)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	err = m.client.LoadCollection(ctx, m.collectionName, false)
	if err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	logger.Info("Collection created and loaded", zap.String("collection", m.collectionName))

	return nil
}

func (m *Client) Insert(ctx context.Context, chunks []FAQChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	chunkIDs := make([]string, len(chunks))
	embeddings := make([][]float32, len(chunks))
	faqIDs := make([]string, len(chunks))
	titles := make([]string, len(chunks))
	texts := make([]string, len(chunks))
	categories := make([]string, len(chunks))
	urls := make([]string, len(chunks))
	updatedAts := make([]int64, len(chunks))

	for i, chunk := range chunks {
		chunkIDs[i] = chunk.ChunkID
		embeddings[i] = chunk.Embedding
		faqIDs[i] = chunk.FaqID
		titles[i] = chunk.Title
		texts[i] = chunk.Text
		categories[i] = chunk.Category
		urls[i] = chunk.URL
		updatedAts[i] = chunk.UpdatedAt.Unix()
	}

	_, err := m.client.Insert(
		ctx,
		m.collectionName,
		"",
		entity.NewColumnVarChar("chunk_id", chunkIDs),
		entity.NewColumnFloatVector("embedding", m.vectorDim, embeddings),
		entity.NewColumnVarChar("faq_id", faqIDs),
		entity.NewColumnVarChar("title", titles),
		entity.NewColumnVarChar("text", texts),
		entity.NewColumnVarChar("category", categories),
		entity.NewColumnVarChar("url", urls),
		entity.NewColumnInt64("updated_at", updatedAts),
	)

	if err != nil {
		return fmt.Errorf("failed to insert chunks: %w", err)
	}

	err = m.client.Flush(ctx, m.collectionName, false)
	if err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	logger.Info("Chunks inserted into vector DB", zap.Int("count", len(chunks)))

	return nil
}

// DeleteByFaqID removes every chunk of a document so re-ingestion never
// leaves stale slices behind.
func (m *Client) DeleteByFaqID(ctx context.Context, faqID string) error {
	expr := fmt.Sprintf(`faq_id == "%s"`, faqID)
	if err := m.client.Delete(ctx, m.collectionName, "", expr); err != nil {
		return fmt.Errorf("failed to delete chunks for faq %s: %w", faqID, err)
	}

	logger.Info("Chunks deleted", zap.String("faq_id", faqID))
	return nil
}

// Search returns the nearest chunks by inner product. Scores are cosine
// similarities since stored embeddings are normalized.
func (m *Client) Search(ctx context.Context, queryEmbedding []float32, topK int, category string) ([]retrieval.Hit, error) {
	expr := ""
	if category != "" {
		expr = fmt.Sprintf(`category == "%s"`, category)
	}

	sp, _ := entity.NewIndexIvfFlatSearchParam(16)

	searchResult, err := m.client.Search(
		ctx,
		m.collectionName,
		[]string{},
		expr,
		[]string{"chunk_id", "faq_id", "title", "text", "category", "url", "updated_at"},
		[]entity.Vector{entity.FloatVector(queryEmbedding)},
		"embedding",
		entity.IP,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	hits := make([]retrieval.Hit, 0)
	for _, sr := range searchResult {
		for i := 0; i < sr.ResultCount; i++ {
			chunkIDCol := sr.Fields.GetColumn("chunk_id")
			faqIDCol := sr.Fields.GetColumn("faq_id")
			titleCol := sr.Fields.GetColumn("title")
			textCol := sr.Fields.GetColumn("text")
			categoryCol := sr.Fields.GetColumn("category")
			urlCol := sr.Fields.GetColumn("url")
			updatedAtCol := sr.Fields.GetColumn("updated_at")

			chunkID, _ := chunkIDCol.Get(i)
			faqID, _ := faqIDCol.Get(i)
			title, _ := titleCol.Get(i)
			text, _ := textCol.Get(i)
			cat, _ := categoryCol.Get(i)
			url, _ := urlCol.Get(i)
			updatedAt, _ := updatedAtCol.Get(i)

			hits = append(hits, retrieval.Hit{
				ChunkID:   chunkID.(string),
				FaqID:     faqID.(string),
				Title:     title.(string),
				Text:      text.(string),
				Category:  cat.(string),
				URL:       url.(string),
				UpdatedAt: updatedAt.(int64),
				Score:     sr.Scores[i],
			})
		}
	}

	logger.Info("Vector search completed",
		zap.Int("topK", topK),
		zap.Int("results", len(hits)),
		zap.String("filter", expr),
	)

	return hits, nil
}
