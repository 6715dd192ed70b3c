package document

// Document represents a single source file whose text has been extracted.
type Document struct {
	// Path is the absolute path on disk
	Path string

	// RelPath is the path relative to the configured documents directory,
	// used as the stable chunk identity across rebuilds
	RelPath string

	// Text is the extracted plain text
	Text string
}

// Chunk is a bounded segment of document text, the unit of embedding and retrieval.
// Identity is (SourcePath, ChunkIndex); re-splitting the same document with the
// same parameters reproduces identical chunks.
type Chunk struct {
	ID         string // "<source-path>:<chunk-index>"
	SourcePath string
	ChunkIndex int
	Text       string

	// Rune offsets of the chunk within the source text
	SpanStart int
	SpanEnd   int
}

// ScoredChunk is a retrieval result: a chunk with its similarity score.
// The chunk is embedded so results expose ID, SourcePath and Text directly.
type ScoredChunk struct {
	Chunk
	Score float32
}
