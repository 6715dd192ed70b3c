package index

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"testing"

	"github.com/pdfchat/pdfchat/internal/document"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	ix, err := Create(t.TempDir(), Meta{Dimension: 4, Model: "test-model", ChunkSize: 1024, ChunkOverlap: 200})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	t.Cleanup(func() { ix.Close() })
	return ix
}

// unit returns a unit vector of dimension 4 pointing along axis
func unit(axis int) []float32 {
	v := make([]float32, 4)
	v[axis] = 1
	return v
}

// lean returns a unit vector between axes a and b, weighted toward a
func lean(a, b int, wa float64) []float32 {
	wb := math.Sqrt(1 - wa*wa)
	v := make([]float32, 4)
	v[a] = float32(wa)
	v[b] = float32(wb)
	return v
}

func chunkFixture(source string, idx int, text string) document.Chunk {
	return document.Chunk{
		ID:         fmt.Sprintf("%s:%d", source, idx),
		SourcePath: source,
		ChunkIndex: idx,
		Text:       text,
		SpanStart:  idx * 100,
		SpanEnd:    idx*100 + len(text),
	}
}

func TestAddAndSearch(t *testing.T) {
	ix := newTestIndex(t)

	chunks := []document.Chunk{
		chunkFixture("a.pdf", 0, "about cats"),
		chunkFixture("a.pdf", 1, "about dogs"),
		chunkFixture("b.pdf", 0, "about birds"),
	}
	vectors := [][]float32{unit(0), unit(1), lean(0, 1, 0.9)}

	if err := ix.Add(chunks, vectors); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	results, err := ix.Search(unit(0), 2)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Search() returned %d results, want 2", len(results))
	}
	if results[0].ID != "a.pdf:0" {
		t.Errorf("top result = %s, want a.pdf:0", results[0].ID)
	}
	if results[1].ID != "b.pdf:0" {
		t.Errorf("second result = %s, want b.pdf:0", results[1].ID)
	}
	if results[0].Score < results[1].Score {
		t.Errorf("scores not descending: %v then %v", results[0].Score, results[1].Score)
	}
	if results[0].Text != "about cats" {
		t.Errorf("top result text = %q, want %q", results[0].Text, "about cats")
	}
}

func TestSearchTopKExceedsSize(t *testing.T) {
	ix := newTestIndex(t)

	chunks := []document.Chunk{chunkFixture("a.pdf", 0, "only chunk")}
	if err := ix.Add(chunks, [][]float32{unit(0)}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	results, err := ix.Search(unit(0), 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 1 {
		t.Errorf("Search() returned %d results, want 1", len(results))
	}
}

func TestSearchEmptyIndex(t *testing.T) {
	ix := newTestIndex(t)

	results, err := ix.Search(unit(0), 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Search() on empty index returned %d results, want 0", len(results))
	}
}

func TestSearchTieBreakInsertionOrder(t *testing.T) {
	ix := newTestIndex(t)

	chunks := []document.Chunk{
		chunkFixture("a.pdf", 0, "first inserted"),
		chunkFixture("b.pdf", 0, "second inserted"),
		chunkFixture("c.pdf", 0, "third inserted"),
	}
	// Identical vectors: all score equally against any query
	vectors := [][]float32{unit(2), unit(2), unit(2)}
	if err := ix.Add(chunks, vectors); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	for run := 0; run < 3; run++ {
		results, err := ix.Search(unit(2), 3)
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		want := []string{"a.pdf:0", "b.pdf:0", "c.pdf:0"}
		for i, w := range want {
			if results[i].ID != w {
				t.Fatalf("run %d: results[%d].ID = %s, want %s", run, i, results[i].ID, w)
			}
		}
	}
}

func TestAddDimensionMismatch(t *testing.T) {
	ix := newTestIndex(t)

	chunks := []document.Chunk{chunkFixture("a.pdf", 0, "chunk")}
	err := ix.Add(chunks, [][]float32{{1, 0}})
	if err == nil {
		t.Fatal("Add() error = nil, want dimension mismatch")
	}
	if !IsDimensionMismatch(err) {
		t.Errorf("IsDimensionMismatch(%v) = false, want true", err)
	}

	// Nothing committed
	size, err := ix.Size()
	if err != nil {
		t.Fatalf("Size() error = %v", err)
	}
	if size != 0 {
		t.Errorf("Size() after failed Add = %d, want 0", size)
	}
}

func TestSearchDimensionMismatch(t *testing.T) {
	ix := newTestIndex(t)

	_, err := ix.Search([]float32{1, 0}, 5)
	if err == nil {
		t.Fatal("Search() error = nil, want dimension mismatch")
	}
	if !IsDimensionMismatch(err) {
		t.Errorf("IsDimensionMismatch(%v) = false, want true", err)
	}
}

func TestOpenNeverBuilt(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "no-such-index")

	_, err := Open(dir)
	if err == nil {
		t.Fatal("Open() error = nil, want IndexNotFoundError")
	}
	if !IsIndexNotFound(err) {
		t.Fatalf("IsIndexNotFound(%v) = false, want true", err)
	}
	var notFound *IndexNotFoundError
	if !errors.As(err, &notFound) || notFound.Reason != "never built" {
		t.Errorf("Open() reason = %v, want never built", err)
	}
}

func TestOpenRoundTrip(t *testing.T) {
	dir := t.TempDir()

	ix, err := Create(dir, Meta{Dimension: 4, Model: "test-model", ChunkSize: 512, ChunkOverlap: 64})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	chunks := []document.Chunk{chunkFixture("a.pdf", 0, "persisted chunk")}
	if err := ix.Add(chunks, [][]float32{unit(1)}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := ix.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer reopened.Close()

	meta := reopened.Meta()
	if meta.Dimension != 4 || meta.Model != "test-model" || meta.ChunkSize != 512 {
		t.Errorf("Meta() = %+v, want dimension 4, model test-model, chunk size 512", meta)
	}

	results, err := reopened.Search(unit(1), 1)
	if err != nil {
		t.Fatalf("Search() after reopen error = %v", err)
	}
	if len(results) != 1 || results[0].Text != "persisted chunk" {
		t.Errorf("Search() after reopen = %+v, want the persisted chunk", results)
	}

	if err := reopened.ValidateDimension(4); err != nil {
		t.Errorf("ValidateDimension(4) error = %v", err)
	}
	if err := reopened.ValidateDimension(768); !IsDimensionMismatch(err) {
		t.Errorf("ValidateDimension(768) error = %v, want dimension mismatch", err)
	}
}

func TestRemoveSource(t *testing.T) {
	ix := newTestIndex(t)

	chunks := []document.Chunk{
		chunkFixture("keep.pdf", 0, "kept chunk"),
		chunkFixture("drop.pdf", 0, "dropped chunk"),
		chunkFixture("drop.pdf", 1, "also dropped"),
	}
	vectors := [][]float32{unit(0), unit(1), unit(2)}
	if err := ix.Add(chunks, vectors); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	if err := ix.RemoveSource("drop.pdf"); err != nil {
		t.Fatalf("RemoveSource() error = %v", err)
	}

	size, err := ix.Size()
	if err != nil {
		t.Fatalf("Size() error = %v", err)
	}
	if size != 1 {
		t.Errorf("Size() after RemoveSource = %d, want 1", size)
	}

	has, err := ix.HasSource("drop.pdf")
	if err != nil {
		t.Fatalf("HasSource() error = %v", err)
	}
	if has {
		t.Error("HasSource(drop.pdf) = true after RemoveSource, want false")
	}

	results, err := ix.Search(unit(1), 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	for _, r := range results {
		if r.SourcePath == "drop.pdf" {
			t.Errorf("Search() returned removed chunk %s", r.ID)
		}
	}
}

func TestSearchKeyword(t *testing.T) {
	ix := newTestIndex(t)

	chunks := []document.Chunk{
		chunkFixture("a.pdf", 0, "the quick brown fox jumps over the lazy dog"),
		chunkFixture("b.pdf", 0, "an entirely unrelated paragraph about databases"),
	}
	if err := ix.Add(chunks, [][]float32{unit(0), unit(1)}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	results, err := ix.SearchKeyword("fox", 5)
	if err != nil {
		t.Fatalf("SearchKeyword() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("SearchKeyword() returned %d results, want 1", len(results))
	}
	if results[0].ID != "a.pdf:0" {
		t.Errorf("SearchKeyword() top result = %s, want a.pdf:0", results[0].ID)
	}
}

func TestStats(t *testing.T) {
	ix := newTestIndex(t)

	chunks := []document.Chunk{
		chunkFixture("a.pdf", 0, "one"),
		chunkFixture("a.pdf", 1, "two"),
		chunkFixture("b.pdf", 0, "three"),
	}
	if err := ix.Add(chunks, [][]float32{unit(0), unit(1), unit(2)}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	stats, err := ix.Stats()
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.ChunkCount != 3 {
		t.Errorf("Stats().ChunkCount = %d, want 3", stats.ChunkCount)
	}
	if stats.SourceCount != 2 {
		t.Errorf("Stats().SourceCount = %d, want 2", stats.SourceCount)
	}
	if stats.Dimension != 4 {
		t.Errorf("Stats().Dimension = %d, want 4", stats.Dimension)
	}
}
