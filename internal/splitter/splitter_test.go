package splitter

import (
	"strings"
	"testing"
)

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
		wantErr bool
	}{
		{"valid", 100, 20, false},
		{"zero overlap", 100, 0, false},
		{"overlap equals size", 100, 100, true},
		{"overlap exceeds size", 100, 150, true},
		{"zero size", 0, 0, true},
		{"negative overlap", 100, -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.size, tt.overlap)
			if (err != nil) != tt.wantErr {
				t.Errorf("New(%d, %d) error = %v, wantErr %v", tt.size, tt.overlap, err, tt.wantErr)
			}
		})
	}
}

func TestSplit_Empty(t *testing.T) {
	s, err := New(100, 20)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if chunks := s.Split("", "doc.txt"); chunks != nil {
		t.Errorf("Split(empty) = %d chunks, want 0", len(chunks))
	}
}

func TestSplit_ShortDocument(t *testing.T) {
	s, err := New(100, 20)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	text := "a short paragraph well under the chunk size"
	chunks := s.Split(text, "doc.txt")

	if len(chunks) != 1 {
		t.Fatalf("Split() = %d chunks, want 1", len(chunks))
	}
	if chunks[0].Text != text {
		t.Errorf("chunk text = %q, want %q", chunks[0].Text, text)
	}
	if chunks[0].ID != "doc.txt:0" {
		t.Errorf("chunk ID = %q, want %q", chunks[0].ID, "doc.txt:0")
	}
	if chunks[0].SpanStart != 0 || chunks[0].SpanEnd != len([]rune(text)) {
		t.Errorf("span = [%d,%d), want [0,%d)", chunks[0].SpanStart, chunks[0].SpanEnd, len([]rune(text)))
	}
}

func TestSplit_OverlapBoundaries(t *testing.T) {
	s, err := New(10, 3)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	text := strings.Repeat("abcdefghij", 3) // 30 runes
	chunks := s.Split(text, "doc.txt")

	// step = 7: chunks start at 0, 7, 14, 21; the chunk at 21 reaches the end
	wantStarts := []int{0, 7, 14, 21}
	if len(chunks) != len(wantStarts) {
		t.Fatalf("Split() = %d chunks, want %d", len(chunks), len(wantStarts))
	}

	for i, chunk := range chunks {
		if chunk.SpanStart != wantStarts[i] {
			t.Errorf("chunk %d SpanStart = %d, want %d", i, chunk.SpanStart, wantStarts[i])
		}
		if chunk.ChunkIndex != i {
			t.Errorf("chunk %d ChunkIndex = %d, want %d", i, chunk.ChunkIndex, i)
		}
		if i > 0 {
			// Overlapping region must match between adjacent chunks
			prev := []rune(chunks[i-1].Text)
			cur := []rune(chunk.Text)
			overlapLen := chunks[i-1].SpanEnd - chunk.SpanStart
			if overlapLen > 0 {
				tail := string(prev[len(prev)-overlapLen:])
				head := string(cur[:overlapLen])
				if tail != head {
					t.Errorf("chunk %d overlap mismatch: tail %q, head %q", i, tail, head)
				}
			}
		}
	}

	last := chunks[len(chunks)-1]
	if last.SpanEnd != 30 {
		t.Errorf("last chunk SpanEnd = %d, want 30", last.SpanEnd)
	}
}

func TestSplit_Deterministic(t *testing.T) {
	s, err := New(50, 10)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	text := strings.Repeat("the quick brown fox jumps over the lazy dog. ", 8)

	first := s.Split(text, "doc.txt")
	second := s.Split(text, "doc.txt")

	if len(first) != len(second) {
		t.Fatalf("chunk counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("chunk %d differs between runs: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestSplit_Unicode(t *testing.T) {
	s, err := New(4, 1)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	// Multi-byte runes must not be cut mid-character
	text := "日本語のテキストです"
	chunks := s.Split(text, "doc.txt")

	var rebuilt []rune
	for i, chunk := range chunks {
		runes := []rune(chunk.Text)
		if len(runes) > 4 {
			t.Errorf("chunk %d has %d runes, want <= 4", i, len(runes))
		}
		if i == 0 {
			rebuilt = append(rebuilt, runes...)
		} else {
			rebuilt = append(rebuilt, runes[1:]...) // skip the overlap rune
		}
	}

	if string(rebuilt) != text {
		t.Errorf("rebuilt text = %q, want %q", string(rebuilt), text)
	}
}
