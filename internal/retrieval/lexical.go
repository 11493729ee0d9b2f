package retrieval

import (
	"math"
	"regexp"
	"strings"
	"sync"
)

// LexicalScorer scores chunks against a query by term overlap. Scores are
// normalized to [0, 1] over the requested chunk set.
type LexicalScorer interface {
	Scores(query string, chunkIDs []string) map[string]float64
}

// ChunkDoc is one chunk's text as indexed for lexical search.
type ChunkDoc struct {
	ChunkID string
	Text    string
}

// Okapi BM25 parameters.
const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

// wordPattern keeps alphanumeric and Hangul runs; everything else separates
// tokens.
var wordPattern = regexp.MustCompile(`[0-9a-z가-힣]+`)

func lexTokenize(text string) []string {
	return wordPattern.FindAllString(strings.ToLower(text), -1)
}

// BM25Index is an in-memory Okapi BM25 index over FAQ chunk text. It is built
// from sqlite at startup and swapped wholesale after ingestion, so reads far
// outnumber writes.
type BM25Index struct {
	mu        sync.RWMutex
	docs      map[string][]string
	docLens   map[string]int
	termFreqs map[string]map[string]int
	docFreq   map[string]int
	avgDocLen float64
}

func NewBM25Index(docs []ChunkDoc) *BM25Index {
	idx := &BM25Index{}
	idx.Replace(docs)
	return idx
}

// Replace rebuilds the index from scratch. Ingestion calls this after FAQ
// content changes so lexical scores track the stored corpus.
func (idx *BM25Index) Replace(docs []ChunkDoc) {
	tokens := make(map[string][]string, len(docs))
	docLens := make(map[string]int, len(docs))
	termFreqs := make(map[string]map[string]int, len(docs))
	docFreq := make(map[string]int)
	totalLen := 0

	for _, doc := range docs {
		toks := lexTokenize(doc.Text)
		tokens[doc.ChunkID] = toks
		docLens[doc.ChunkID] = len(toks)
		totalLen += len(toks)

		freqs := make(map[string]int, len(toks))
		for _, tok := range toks {
			freqs[tok]++
		}
		termFreqs[doc.ChunkID] = freqs

		for term := range freqs {
			docFreq[term]++
		}
	}

	avg := 0.0
	if len(docs) > 0 {
		avg = float64(totalLen) / float64(len(docs))
	}

	idx.mu.Lock()
	idx.docs = tokens
	idx.docLens = docLens
	idx.termFreqs = termFreqs
	idx.docFreq = docFreq
	idx.avgDocLen = avg
	idx.mu.Unlock()
}

// Scores computes BM25 for each requested chunk and normalizes by the best
// score among them, so the top lexical match gets 1 and misses get 0.
func (idx *BM25Index) Scores(query string, chunkIDs []string) map[string]float64 {
	queryTerms := lexTokenize(query)
	scores := make(map[string]float64, len(chunkIDs))

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	n := float64(len(idx.docs))
	best := 0.0

	for _, id := range chunkIDs {
		freqs, ok := idx.termFreqs[id]
		if !ok {
			scores[id] = 0
			continue
		}

		docLen := float64(idx.docLens[id])
		score := 0.0
		for _, term := range queryTerms {
			tf := float64(freqs[term])
			if tf == 0 {
				continue
			}

			df := float64(idx.docFreq[term])
			idf := math.Log(1 + (n-df+0.5)/(df+0.5))
			norm := bm25K1 * (1 - bm25B + bm25B*docLen/idx.avgDocLen)
			score += idf * tf * (bm25K1 + 1) / (tf + norm)
		}

		scores[id] = score
		if score > best {
			best = score
		}
	}

	if best > 0 {
		for id := range scores {
			scores[id] /= best
		}
	}

	return scores
}
