package retrieval

import (
	"context"
	"fmt"
	"sort"

	"github.com/pdfchat/pdfchat/internal/config"
	"github.com/pdfchat/pdfchat/internal/document"
	"github.com/pdfchat/pdfchat/internal/embedding"
	"github.com/pdfchat/pdfchat/internal/index"
)

// Engine retrieves the chunks most relevant to a query, by cosine
// similarity over the vector index, optionally blended with keyword hits.
type Engine struct {
	embedder *embedding.Service
	index    *index.Index
	opts     Options
}

// Options configures retrieval behavior
type Options struct {
	TopK          int     // Number of results to return
	MinScore      float32 // Results below this combined score are dropped
	Hybrid        bool    // Blend keyword hits into vector results
	VectorWeight  float32 // Weight for vector similarity (0-1)
	KeywordWeight float32 // Weight for keyword hits (0-1)
}

// OptionsFromConfig builds retrieval options from the search config section
func OptionsFromConfig(cfg config.SearchConfig) Options {
	return Options{
		TopK:          cfg.TopK,
		MinScore:      cfg.MinScore,
		Hybrid:        cfg.Hybrid,
		VectorWeight:  cfg.VectorWeight,
		KeywordWeight: cfg.KeywordWeight,
	}
}

// NewEngine creates a retrieval engine over an open index
func NewEngine(embedder *embedding.Service, ix *index.Index, opts Options) *Engine {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	return &Engine{embedder: embedder, index: ix, opts: opts}
}

// Retrieve returns up to TopK chunks relevant to query, best first.
// An empty index yields an empty result, not an error.
func (e *Engine) Retrieve(ctx context.Context, query string) ([]document.ScoredChunk, error) {
	if query == "" {
		return nil, fmt.Errorf("query is empty")
	}

	queryVector, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	// Over-fetch when blending so keyword hits outside the vector top-K
	// still get a chance to surface.
	fetchK := e.opts.TopK
	if e.opts.Hybrid {
		fetchK *= 2
	}

	vectorResults, err := e.index.Search(queryVector, fetchK)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	var results []document.ScoredChunk
	if e.opts.Hybrid {
		keywordResults, err := e.index.SearchKeyword(query, fetchK)
		if err != nil {
			return nil, fmt.Errorf("keyword search failed: %w", err)
		}
		results = merge(vectorResults, keywordResults, e.opts.VectorWeight, e.opts.KeywordWeight)
	} else {
		results = vectorResults
	}

	if e.opts.MinScore > 0 {
		filtered := results[:0]
		for _, r := range results {
			if r.Score >= e.opts.MinScore {
				filtered = append(filtered, r)
			}
		}
		results = filtered
	}

	if len(results) > e.opts.TopK {
		results = results[:e.opts.TopK]
	}
	return results, nil
}

// merge combines vector and keyword results into a single weighted ranking.
// Keyword scores are rank-normalized into [0,1] before weighting; bleve's
// raw scores are not comparable to cosine similarities.
func merge(vectorResults, keywordResults []document.ScoredChunk, vectorWeight, keywordWeight float32) []document.ScoredChunk {
	totalWeight := vectorWeight + keywordWeight
	if totalWeight == 0 {
		// Default to vector-only if both weights are 0
		vectorWeight = 1.0
		totalWeight = 1.0
	}
	vectorWeight /= totalWeight
	keywordWeight /= totalWeight

	type combined struct {
		chunk        document.Chunk
		vectorScore  float32
		keywordScore float32
		order        int
	}

	combinedScores := make(map[string]*combined)
	for i, r := range vectorResults {
		combinedScores[r.ID] = &combined{chunk: r.Chunk, vectorScore: r.Score, order: i}
	}
	for i, r := range keywordResults {
		score := float32(1.0 - float64(i)/float64(len(keywordResults)))
		if existing, ok := combinedScores[r.ID]; ok {
			existing.keywordScore = score
		} else {
			combinedScores[r.ID] = &combined{chunk: r.Chunk, keywordScore: score, order: len(vectorResults) + i}
		}
	}

	merged := make([]document.ScoredChunk, 0, len(combinedScores))
	orders := make(map[string]int, len(combinedScores))
	for _, c := range combinedScores {
		merged = append(merged, document.ScoredChunk{
			Chunk: c.chunk,
			Score: vectorWeight*c.vectorScore + keywordWeight*c.keywordScore,
		})
		orders[c.chunk.ID] = c.order
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		return orders[merged[i].ID] < orders[merged[j].ID]
	})
	return merged
}
