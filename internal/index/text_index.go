package index

import (
	"fmt"
	"os"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/pdfchat/pdfchat/internal/document"
)

// TextIndex is a bleve keyword index over chunk contents
type TextIndex struct {
	index bleve.Index
}

// chunkDoc is the shape indexed into bleve for each chunk
type chunkDoc struct {
	Content    string `json:"content"`
	SourcePath string `json:"source_path"`
}

// ChunkHit is a keyword search hit
type ChunkHit struct {
	ID    string
	Score float32
}

// CreateTextIndex creates a fresh keyword index at dir, replacing any
// existing one.
func CreateTextIndex(dir string) (*TextIndex, error) {
	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("reset text index dir: %w", err)
	}
	idx, err := bleve.New(dir, buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create bleve index: %w", err)
	}
	return &TextIndex{index: idx}, nil
}

// OpenTextIndex opens an existing keyword index
func OpenTextIndex(dir string) (*TextIndex, error) {
	idx, err := bleve.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("open bleve index: %w", err)
	}
	return &TextIndex{index: idx}, nil
}

// IndexChunk adds or replaces a chunk in the keyword index
func (t *TextIndex) IndexChunk(chunk document.Chunk) error {
	return t.index.Index(chunk.ID, chunkDoc{
		Content:    chunk.Text,
		SourcePath: chunk.SourcePath,
	})
}

// DeleteChunk removes a chunk from the keyword index
func (t *TextIndex) DeleteChunk(id string) error {
	return t.index.Delete(id)
}

// Search returns up to topK chunks matching the query terms
func (t *TextIndex) Search(query string, topK int) ([]ChunkHit, error) {
	if topK <= 0 {
		topK = 10
	}

	contentQuery := bleve.NewMatchQuery(query)
	contentQuery.SetField("content")

	req := bleve.NewSearchRequestOptions(contentQuery, topK, 0, false)
	res, err := t.index.Search(req)
	if err != nil {
		return nil, err
	}

	hits := make([]ChunkHit, 0, len(res.Hits))
	for _, hit := range res.Hits {
		hits = append(hits, ChunkHit{ID: hit.ID, Score: float32(hit.Score)})
	}
	return hits, nil
}

// Close closes the keyword index
func (t *TextIndex) Close() error {
	return t.index.Close()
}

func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = "en"
	indexMapping.DefaultField = "content"

	docMapping := bleve.NewDocumentMapping()

	contentField := bleve.NewTextFieldMapping()
	contentField.Store = false
	contentField.Index = true
	docMapping.AddFieldMappingsAt("content", contentField)

	pathField := bleve.NewTextFieldMapping()
	pathField.Store = true
	pathField.Index = true
	pathField.Analyzer = "keyword"
	docMapping.AddFieldMappingsAt("source_path", pathField)

	indexMapping.DefaultMapping = docMapping
	return indexMapping
}
