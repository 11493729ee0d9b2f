package retrieval

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/faq-agent/backend/internal/llm"
	"github.com/faq-agent/backend/pkg/logger"
	"github.com/faq-agent/backend/pkg/utils"
)

// ErrUnavailable reports that the retrieval backend (embedder or vector
// index) could not be reached. It is distinct from an empty result: finding
// nothing is a valid outcome, not a failure.
var ErrUnavailable = errors.New("retrieval unavailable")

// wrapUnavailable maps backend failures to ErrUnavailable so callers escalate.
// A caller cancellation is not a backend failure and passes through unchanged.
func wrapUnavailable(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// Fusion weights for the two retrieval legs, vector similarity and BM25.
const (
	vectorWeight  = 0.7
	lexicalWeight = 0.3
)

// Hit is a raw nearest-neighbor match from the vector index.
type Hit struct {
	ChunkID   string
	FaqID     string
	Title     string
	Text      string
	Category  string
	URL       string
	UpdatedAt int64
	Score     float32
}

// VectorIndex is the search surface of the vector store.
type VectorIndex interface {
	Search(ctx context.Context, embedding []float32, topK int, category string) ([]Hit, error)
}

// EmbeddingCache stores query embeddings keyed by text hash.
type EmbeddingCache interface {
	GetEmbedding(ctx context.Context, textHash string) ([]float32, bool, error)
	SetEmbedding(ctx context.Context, textHash string, embedding []float32, ttl time.Duration) error
}

// Result is one retrieved chunk after filtering, dedup, and ranking.
type Result struct {
	ChunkID   string  `json:"chunk_id"`
	FaqID     string  `json:"faq_id"`
	Title     string  `json:"title"`
	Text      string  `json:"text"`
	Category  string  `json:"category"`
	URL       string  `json:"url"`
	Snippet   string  `json:"snippet"`
	UpdatedAt int64   `json:"updated_at"`
	Score     float32 `json:"score"`
	Rank      int     `json:"rank"`
}

type Retriever struct {
	embedder      llm.Embedder
	index         VectorIndex
	cache         EmbeddingCache
	lexical       LexicalScorer
	minSimilarity float32
	maxK          int
	timeout       time.Duration
}

type Config struct {
	MinSimilarity float32
	MaxK          int
	Timeout       time.Duration
	// Lexical, when set, re-ranks hits that pass the similarity floor by
	// fusing BM25 scores with the vector similarity. Nil means vector-only.
	Lexical LexicalScorer
}

func NewRetriever(embedder llm.Embedder, index VectorIndex, cache EmbeddingCache, cfg Config) *Retriever {
	if cfg.MaxK <= 0 {
		cfg.MaxK = 10
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &Retriever{
		embedder:      embedder,
		index:         index,
		cache:         cache,
		lexical:       cfg.Lexical,
		minSimilarity: cfg.MinSimilarity,
		maxK:          cfg.MaxK,
		timeout:       cfg.Timeout,
	}
}

// Retrieve embeds the query, searches the index, drops hits below the
// similarity floor, fuses in BM25 scores when a lexical index is configured,
// and keeps at most one chunk per FAQ document (the highest-scoring one).
// Results are score-descending with stable ties and 1-based ranks. An empty
// slice with a nil error means nothing relevant exists.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int, category string) ([]Result, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if k <= 0 {
		k = r.maxK
	}
	if k > r.maxK {
		k = r.maxK
	}

	embedding, err := r.embedQuery(ctx, query)
	if err != nil {
		return nil, wrapUnavailable(err)
	}

	// Over-fetch so the similarity floor and per-FAQ dedup still leave k
	// candidates when several chunks share a document.
	hits, err := r.index.Search(ctx, embedding, k*3, category)
	if err != nil {
		return nil, wrapUnavailable(err)
	}

	// The floor applies to vector similarity alone: a lexical match must not
	// resurrect a semantically irrelevant chunk.
	passing := floorFilter(hits, r.minSimilarity)
	r.fuseLexical(query, passing)

	results := rankHits(passing, k)

	logger.Debug("Retrieval completed",
		zap.Int("k", k),
		zap.Int("raw_hits", len(hits)),
		zap.Int("results", len(results)),
	)

	return results, nil
}

func (r *Retriever) embedQuery(ctx context.Context, query string) ([]float32, error) {
	key := utils.HashString(query)

	if r.cache != nil {
		if cached, ok, err := r.cache.GetEmbedding(ctx, key); err == nil && ok {
			return cached, nil
		}
	}

	embedding, err := r.embedder.GenerateEmbedding(ctx, query)
	if err != nil {
		return nil, err
	}
	Normalize(embedding)

	if r.cache != nil {
		if err := r.cache.SetEmbedding(ctx, key, embedding, 24*time.Hour); err != nil {
			logger.Warn("Failed to cache query embedding", zap.Error(err))
		}
	}

	return embedding, nil
}

func floorFilter(hits []Hit, minSimilarity float32) []Hit {
	passing := make([]Hit, 0, len(hits))
	for _, h := range hits {
		if h.Score >= minSimilarity {
			passing = append(passing, h)
		}
	}
	return passing
}

// fuseLexical rewrites each hit's score as a weighted blend of its vector
// similarity and its BM25 score against the query.
func (r *Retriever) fuseLexical(query string, hits []Hit) {
	if r.lexical == nil || len(hits) == 0 {
		return
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ChunkID
	}

	scores := r.lexical.Scores(query, ids)
	for i := range hits {
		hits[i].Score = float32(vectorWeight*float64(hits[i].Score) + lexicalWeight*scores[hits[i].ChunkID])
	}
}

// rankHits keeps the best chunk per FAQ document and returns the top k in
// stable score order.
func rankHits(passing []Hit, k int) []Result {
	sort.SliceStable(passing, func(i, j int) bool {
		return passing[i].Score > passing[j].Score
	})

	seen := make(map[string]bool, len(passing))
	results := make([]Result, 0, k)
	for _, h := range passing {
		if seen[h.FaqID] {
			continue
		}
		seen[h.FaqID] = true

		results = append(results, Result{
			ChunkID:   h.ChunkID,
			FaqID:     h.FaqID,
			Title:     h.Title,
			Text:      h.Text,
			Category:  h.Category,
			URL:       h.URL,
			Snippet:   snippet(h.Text, 200),
			UpdatedAt: h.UpdatedAt,
			Score:     h.Score,
			Rank:      len(results) + 1,
		})

		if len(results) == k {
			break
		}
	}

	return results
}

func snippet(text string, maxRunes int) string {
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text
	}
	return string(runes[:maxRunes]) + "..."
}

// Normalize scales a vector to unit length in place so inner-product search
// scores are cosine similarities.
func Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
}
