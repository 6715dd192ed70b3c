package index

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/pdfchat/pdfchat/internal/document"
	"github.com/pdfchat/pdfchat/internal/embedding"
)

// Meta describes the parameters an index was built with
type Meta struct {
	Dimension    int
	Model        string
	ChunkSize    int
	ChunkOverlap int
	CreatedAt    time.Time
}

// Index is a persistent vector index over document chunks.
// Vectors are stored unit-length, so dot product equals cosine similarity.
// A bleve keyword index lives beside the sqlite file for hybrid retrieval.
type Index struct {
	mu   sync.Mutex
	db   *sql.DB
	text *TextIndex
	path string
	meta Meta
}

// Create builds a fresh, empty index at dir, replacing any existing one
func Create(dir string, meta Meta) (*Index, error) {
	if meta.Dimension <= 0 {
		return nil, fmt.Errorf("index dimension must be positive, got %d", meta.Dimension)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	dbPath := filepath.Join(dir, dbFileName)
	for _, stale := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		if err := os.Remove(stale); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to remove existing index: %w", err)
		}
	}

	db, err := openDB(dbPath)
	if err != nil {
		return nil, err
	}

	meta.CreatedAt = time.Now().UTC()
	if err := writeMeta(db, meta); err != nil {
		db.Close()
		return nil, err
	}

	text, err := CreateTextIndex(filepath.Join(dir, bleveDirName))
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Index{db: db, text: text, path: dir, meta: meta}, nil
}

// Open opens an existing index at dir. A missing index yields
// IndexNotFoundError with reason "never built"; an unreadable or
// incomplete one yields reason "corrupt".
func Open(dir string) (*Index, error) {
	dbPath := filepath.Join(dir, dbFileName)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, &IndexNotFoundError{Path: dir, Reason: "never built"}
	}

	db, err := openDB(dbPath)
	if err != nil {
		return nil, &IndexNotFoundError{Path: dir, Reason: "corrupt"}
	}

	meta, err := readMeta(db)
	if err != nil {
		db.Close()
		return nil, &IndexNotFoundError{Path: dir, Reason: "corrupt"}
	}

	text, err := OpenTextIndex(filepath.Join(dir, bleveDirName))
	if err != nil {
		db.Close()
		return nil, &IndexNotFoundError{Path: dir, Reason: "corrupt"}
	}

	return &Index{db: db, text: text, path: dir, meta: meta}, nil
}

// Close closes the index
func (ix *Index) Close() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	textErr := ix.text.Close()
	if err := ix.db.Close(); err != nil {
		return err
	}
	return textErr
}

// Meta returns the parameters the index was built with
func (ix *Index) Meta() Meta {
	return ix.meta
}

// Path returns the index directory
func (ix *Index) Path() string {
	return ix.path
}

// ValidateDimension checks a configured embedder dimension against the
// dimension recorded when the index was built.
func (ix *Index) ValidateDimension(dim int) error {
	if dim != ix.meta.Dimension {
		return &DimensionMismatchError{Want: ix.meta.Dimension, Got: dim}
	}
	return nil
}

// Add inserts chunks and their vectors in a single transaction.
// Concurrent calls are serialized; either all chunks land or none do.
func (ix *Index) Add(chunks []document.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks and vectors length mismatch: %d vs %d", len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return nil
	}
	for i, vec := range vectors {
		if len(vec) != ix.meta.Dimension {
			return fmt.Errorf("chunk %s: %w", chunks[i].ID, &DimensionMismatchError{Want: ix.meta.Dimension, Got: len(vec)})
		}
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	tx, err := ix.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	chunkStmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO chunks (id, source_path, chunk_index, content, span_start, span_end, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare chunk statement: %w", err)
	}
	defer chunkStmt.Close()

	vecStmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO embeddings (chunk_id, vector, dimension, created_at)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare vector statement: %w", err)
	}
	defer vecStmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)

	for i, chunk := range chunks {
		if _, err := chunkStmt.Exec(chunk.ID, chunk.SourcePath, chunk.ChunkIndex, chunk.Text, chunk.SpanStart, chunk.SpanEnd, now); err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", chunk.ID, err)
		}
		if _, err := vecStmt.Exec(chunk.ID, vectorToBlob(vectors[i]), len(vectors[i]), now); err != nil {
			return fmt.Errorf("failed to insert vector %s: %w", chunk.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	// Keyword index is updated after the durable commit. A crash between
	// the two leaves keyword results slightly stale, never wrong.
	for _, chunk := range chunks {
		if err := ix.text.IndexChunk(chunk); err != nil {
			return fmt.Errorf("failed to index chunk text %s: %w", chunk.ID, err)
		}
	}

	return nil
}

// Search returns the topK most similar chunks by cosine similarity,
// descending. Equal scores keep insertion order. An empty index returns
// an empty result.
func (ix *Index) Search(queryVector []float32, topK int) ([]document.ScoredChunk, error) {
	if len(queryVector) != ix.meta.Dimension {
		return nil, &DimensionMismatchError{Want: ix.meta.Dimension, Got: len(queryVector)}
	}
	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive, got %d", topK)
	}

	// Brute-force scan over all vectors. rowid order makes the
	// equal-score tie-break deterministic.
	rows, err := ix.db.Query(`
		SELECT c.id, c.source_path, c.chunk_index, c.content, c.span_start, c.span_end, e.vector
		FROM chunks c
		JOIN embeddings e ON e.chunk_id = c.id
		ORDER BY c.rowid
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query vectors: %w", err)
	}
	defer rows.Close()

	var results []document.ScoredChunk

	for rows.Next() {
		var chunk document.Chunk
		var blob []byte

		if err := rows.Scan(&chunk.ID, &chunk.SourcePath, &chunk.ChunkIndex, &chunk.Text, &chunk.SpanStart, &chunk.SpanEnd, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		vector, err := blobToVector(blob)
		if err != nil || len(vector) != len(queryVector) {
			continue // Skip malformed vectors
		}

		// Stored vectors are unit length, so dot product is cosine
		results = append(results, document.ScoredChunk{
			Chunk: chunk,
			Score: embedding.Dot(queryVector, vector),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	sortByScore(results)

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// SearchKeyword returns the topK chunks matching query terms via the
// bleve keyword index.
func (ix *Index) SearchKeyword(query string, topK int) ([]document.ScoredChunk, error) {
	hits, err := ix.text.Search(query, topK)
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}

	results := make([]document.ScoredChunk, 0, len(hits))
	for _, hit := range hits {
		chunk, err := ix.GetChunk(hit.ID)
		if err != nil {
			continue // Chunk deleted since the keyword index was written
		}
		results = append(results, document.ScoredChunk{Chunk: chunk, Score: hit.Score})
	}
	return results, nil
}

// GetChunk retrieves a single chunk by ID
func (ix *Index) GetChunk(id string) (document.Chunk, error) {
	var chunk document.Chunk
	err := ix.db.QueryRow(`
		SELECT id, source_path, chunk_index, content, span_start, span_end
		FROM chunks WHERE id = ?
	`, id).Scan(&chunk.ID, &chunk.SourcePath, &chunk.ChunkIndex, &chunk.Text, &chunk.SpanStart, &chunk.SpanEnd)
	if err != nil {
		if err == sql.ErrNoRows {
			return document.Chunk{}, fmt.Errorf("chunk not found: %s", id)
		}
		return document.Chunk{}, fmt.Errorf("failed to get chunk: %w", err)
	}
	return chunk, nil
}

// Size returns the number of indexed chunks
func (ix *Index) Size() (int, error) {
	var count int
	if err := ix.db.QueryRow("SELECT COUNT(*) FROM chunks").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return count, nil
}

// HasSource checks whether any chunks from sourcePath are indexed
func (ix *Index) HasSource(sourcePath string) (bool, error) {
	var count int
	if err := ix.db.QueryRow("SELECT COUNT(*) FROM chunks WHERE source_path = ?", sourcePath).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check source: %w", err)
	}
	return count > 0, nil
}

// RemoveSource deletes all chunks and vectors belonging to sourcePath
func (ix *Index) RemoveSource(sourcePath string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	rows, err := ix.db.Query("SELECT id FROM chunks WHERE source_path = ?", sourcePath)
	if err != nil {
		return fmt.Errorf("failed to list source chunks: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan chunk id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating chunk ids: %w", err)
	}

	if _, err := ix.db.Exec("DELETE FROM chunks WHERE source_path = ?", sourcePath); err != nil {
		return fmt.Errorf("failed to delete source chunks: %w", err)
	}

	for _, id := range ids {
		if err := ix.text.DeleteChunk(id); err != nil {
			return fmt.Errorf("failed to delete chunk text %s: %w", id, err)
		}
	}
	return nil
}

// Stats describes the current contents of an index
type Stats struct {
	ChunkCount  int
	SourceCount int
	SizeBytes   int64
	Dimension   int
	Model       string
	CreatedAt   time.Time
}

// Stats returns index statistics
func (ix *Index) Stats() (*Stats, error) {
	stats := &Stats{
		Dimension: ix.meta.Dimension,
		Model:     ix.meta.Model,
		CreatedAt: ix.meta.CreatedAt,
	}

	if err := ix.db.QueryRow("SELECT COUNT(*) FROM chunks").Scan(&stats.ChunkCount); err != nil {
		return nil, fmt.Errorf("failed to get chunk count: %w", err)
	}
	if err := ix.db.QueryRow("SELECT COUNT(DISTINCT source_path) FROM chunks").Scan(&stats.SourceCount); err != nil {
		return nil, fmt.Errorf("failed to get source count: %w", err)
	}
	if info, err := os.Stat(filepath.Join(ix.path, dbFileName)); err == nil {
		stats.SizeBytes = info.Size()
	}
	return stats, nil
}

// writeMeta persists index metadata
func writeMeta(db *sql.DB, meta Meta) error {
	pairs := map[string]string{
		"dimension":     strconv.Itoa(meta.Dimension),
		"model":         meta.Model,
		"chunk_size":    strconv.Itoa(meta.ChunkSize),
		"chunk_overlap": strconv.Itoa(meta.ChunkOverlap),
		"created_at":    meta.CreatedAt.Format(time.RFC3339),
	}
	for key, value := range pairs {
		if _, err := db.Exec("INSERT OR REPLACE INTO index_meta (key, value) VALUES (?, ?)", key, value); err != nil {
			return fmt.Errorf("failed to write meta %s: %w", key, err)
		}
	}
	return nil
}

// readMeta loads index metadata
func readMeta(db *sql.DB) (Meta, error) {
	var meta Meta

	rows, err := db.Query("SELECT key, value FROM index_meta")
	if err != nil {
		return meta, fmt.Errorf("failed to read meta: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return meta, fmt.Errorf("failed to scan meta row: %w", err)
		}
		values[key] = value
	}
	if err := rows.Err(); err != nil {
		return meta, fmt.Errorf("error iterating meta rows: %w", err)
	}

	meta.Dimension, err = strconv.Atoi(values["dimension"])
	if err != nil || meta.Dimension <= 0 {
		return meta, fmt.Errorf("invalid or missing index dimension: %q", values["dimension"])
	}
	meta.Model = values["model"]
	meta.ChunkSize, _ = strconv.Atoi(values["chunk_size"])
	meta.ChunkOverlap, _ = strconv.Atoi(values["chunk_overlap"])
	if t, err := time.Parse(time.RFC3339, values["created_at"]); err == nil {
		meta.CreatedAt = t
	}
	return meta, nil
}

// vectorToBlob converts a float32 slice to a little-endian binary blob
func vectorToBlob(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:i*4+4], math.Float32bits(v))
	}
	return blob
}

// blobToVector converts a binary blob back to a float32 slice
func blobToVector(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("blob size %d is not a multiple of 4", len(blob))
	}
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4 : i*4+4]))
	}
	return vector, nil
}

// sortByScore sorts results by score descending using insertion sort,
// which is stable: equal scores keep their scan order.
func sortByScore(results []document.ScoredChunk) {
	for i := 1; i < len(results); i++ {
		key := results[i]
		j := i - 1
		for j >= 0 && results[j].Score < key.Score {
			results[j+1] = results[j]
			j--
		}
		results[j+1] = key
	}
}
