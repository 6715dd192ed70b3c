package splitter

import (
	"fmt"
	"strconv"

	"github.com/pdfchat/pdfchat/internal/document"
)

// Splitter cuts document text into fixed-size overlapping chunks.
// Splitting is by rune count, not by semantic boundary, and is a pure
// function of (text, size, overlap) so rebuilding an index reproduces
// identical chunk boundaries.
type Splitter struct {
	size    int
	overlap int
}

// New creates a splitter. overlap must be smaller than size.
func New(size, overlap int) (*Splitter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got: %d", size)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("chunk overlap must not be negative, got: %d", overlap)
	}
	if overlap >= size {
		return nil, fmt.Errorf("chunk overlap (%d) must be smaller than chunk size (%d)", overlap, size)
	}
	return &Splitter{size: size, overlap: overlap}, nil
}

// Split cuts text into chunks attributed to sourcePath.
// Empty or whitespace-free empty input yields no chunks.
func (s *Splitter) Split(text, sourcePath string) []document.Chunk {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	step := s.size - s.overlap
	var chunks []document.Chunk

	for start := 0; start < len(runes); start += step {
		end := start + s.size
		if end > len(runes) {
			end = len(runes)
		}

		idx := len(chunks)
		chunks = append(chunks, document.Chunk{
			ID:         sourcePath + ":" + strconv.Itoa(idx),
			SourcePath: sourcePath,
			ChunkIndex: idx,
			Text:       string(runes[start:end]),
			SpanStart:  start,
			SpanEnd:    end,
		})

		if end == len(runes) {
			break
		}
	}

	return chunks
}

// Size returns the configured chunk size in runes
func (s *Splitter) Size() int {
	return s.size
}

// Overlap returns the configured overlap in runes
func (s *Splitter) Overlap() int {
	return s.overlap
}
