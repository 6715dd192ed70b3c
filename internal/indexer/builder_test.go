package indexer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pdfchat/pdfchat/internal/config"
	"github.com/pdfchat/pdfchat/internal/embedding"
	"github.com/pdfchat/pdfchat/internal/index"
)

// fakeEmbedClient returns deterministic unit vectors without a model server
type fakeEmbedClient struct {
	dims  int
	calls int
}

func (c *fakeEmbedClient) embedOne(text string) []float32 {
	v := make([]float32, c.dims)
	v[len(text)%c.dims] = 1
	return v
}

func (c *fakeEmbedClient) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls++
	return c.embedOne(text), nil
}

func (c *fakeEmbedClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = c.embedOne(t)
	}
	return out, nil
}

func (c *fakeEmbedClient) Dimensions() int {
	return c.dims
}

func writeDoc(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func testConfig(t *testing.T, docsDir string) *config.Config {
	t.Helper()
	return &config.Config{
		Documents: config.DocumentsConfig{
			Dir:        docsDir,
			Extensions: []string{".txt", ".md"},
		},
		Chunking:  config.ChunkingConfig{Size: 64, Overlap: 8},
		Embedding: config.EmbeddingConfig{Provider: "ollama", Dimensions: 4, BatchSize: 10},
		Index:     config.IndexConfig{Dir: filepath.Join(t.TempDir(), "index")},
	}
}

func newTestBuilder(t *testing.T, cfg *config.Config) (*Builder, *fakeEmbedClient) {
	t.Helper()
	client := &fakeEmbedClient{dims: 4}
	embedder := embedding.NewServiceWithClient(&cfg.Embedding, client)
	builder, err := NewBuilder(cfg, embedder)
	if err != nil {
		t.Fatalf("NewBuilder() error = %v", err)
	}
	return builder, client
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "a.txt", "alpha")
	writeDoc(t, dir, "notes/b.md", "beta")
	writeDoc(t, dir, "ignored.log", "not a document")
	writeDoc(t, dir, "drafts/c.txt", "excluded by glob")

	docs, err := Discover(config.DocumentsConfig{
		Dir:        dir,
		Extensions: []string{".txt", "md"}, // leading dot optional
		Exclude:    []string{"drafts/**"},
	})
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}

	got := make([]string, len(docs))
	for i, d := range docs {
		got[i] = d.RelPath
	}
	want := []string{"a.txt", "notes/b.md"}
	if len(got) != len(want) {
		t.Fatalf("Discover() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Discover()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestDiscoverExcludesDirectory(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "keep.txt", "kept")
	writeDoc(t, dir, "archive/old.txt", "skipped")

	docs, err := Discover(config.DocumentsConfig{
		Dir:        dir,
		Extensions: []string{".txt"},
		Exclude:    []string{"archive"},
	})
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(docs) != 1 || docs[0].RelPath != "keep.txt" {
		t.Errorf("Discover() = %+v, want only keep.txt", docs)
	}
}

func TestBuild(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "a.txt", "first document body")
	writeDoc(t, dir, "b.md", "second document body that is long enough to produce more than one chunk when split with a small window size for testing")

	cfg := testConfig(t, dir)
	builder, _ := newTestBuilder(t, cfg)

	report, err := builder.Build(context.Background(), false)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if report.DocumentsFound != 2 {
		t.Errorf("DocumentsFound = %d, want 2", report.DocumentsFound)
	}
	if report.DocumentsIndexed != 2 {
		t.Errorf("DocumentsIndexed = %d, want 2", report.DocumentsIndexed)
	}
	if report.ChunksCreated < 3 {
		t.Errorf("ChunksCreated = %d, want at least 3", report.ChunksCreated)
	}
	if len(report.Errors) != 0 {
		t.Errorf("Errors = %v, want none", report.Errors)
	}

	// The index persists what the report claims
	ix, err := index.Open(cfg.Index.Dir)
	if err != nil {
		t.Fatalf("index.Open() after build error = %v", err)
	}
	defer ix.Close()
	size, err := ix.Size()
	if err != nil {
		t.Fatalf("Size() error = %v", err)
	}
	if size != report.ChunksCreated {
		t.Errorf("index size = %d, want %d", size, report.ChunksCreated)
	}
}

func TestBuildIncrementalSkipsIndexed(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "a.txt", "first document body")

	cfg := testConfig(t, dir)
	builder, _ := newTestBuilder(t, cfg)

	if _, err := builder.Build(context.Background(), false); err != nil {
		t.Fatalf("first Build() error = %v", err)
	}

	report, err := builder.Build(context.Background(), false)
	if err != nil {
		t.Fatalf("second Build() error = %v", err)
	}
	if report.ChunksCreated != 0 {
		t.Errorf("second Build() ChunksCreated = %d, want 0", report.ChunksCreated)
	}
	if report.DocumentsSkipped != 1 {
		t.Errorf("second Build() DocumentsSkipped = %d, want 1", report.DocumentsSkipped)
	}

	// A new document is picked up without touching the old one
	writeDoc(t, dir, "b.txt", "second document body")
	report, err = builder.Build(context.Background(), false)
	if err != nil {
		t.Fatalf("third Build() error = %v", err)
	}
	if report.DocumentsIndexed != 1 || report.DocumentsSkipped != 1 {
		t.Errorf("third Build() indexed = %d, skipped = %d; want 1, 1", report.DocumentsIndexed, report.DocumentsSkipped)
	}
}

func TestBuildForceRebuilds(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "a.txt", "first document body")

	cfg := testConfig(t, dir)
	builder, _ := newTestBuilder(t, cfg)

	first, err := builder.Build(context.Background(), false)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	forced, err := builder.Build(context.Background(), true)
	if err != nil {
		t.Fatalf("Build(force) error = %v", err)
	}
	if forced.DocumentsIndexed != 1 || forced.DocumentsSkipped != 0 {
		t.Errorf("Build(force) indexed = %d, skipped = %d; want 1, 0", forced.DocumentsIndexed, forced.DocumentsSkipped)
	}
	if forced.ChunksCreated != first.ChunksCreated {
		t.Errorf("Build(force) ChunksCreated = %d, want %d", forced.ChunksCreated, first.ChunksCreated)
	}
}

func TestBuildNoDocuments(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	builder, _ := newTestBuilder(t, cfg)

	if _, err := builder.Build(context.Background(), false); err == nil {
		t.Error("Build() with empty corpus error = nil, want error")
	}
}

func TestBuildRecordsPerDocumentErrors(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "good.txt", "a perfectly fine document")
	writeDoc(t, dir, "bad.xyz", "no extractor handles this extension")

	cfg := testConfig(t, dir)
	cfg.Documents.Extensions = []string{".txt", ".xyz"}
	builder, _ := newTestBuilder(t, cfg)

	report, err := builder.Build(context.Background(), false)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if report.DocumentsIndexed != 1 {
		t.Errorf("DocumentsIndexed = %d, want 1", report.DocumentsIndexed)
	}
	if report.DocumentsFailed != 1 || len(report.Errors) != 1 {
		t.Fatalf("DocumentsFailed = %d, Errors = %v; want one recorded failure", report.DocumentsFailed, report.Errors)
	}
	if report.Errors[0].Path != "bad.xyz" {
		t.Errorf("Errors[0].Path = %s, want bad.xyz", report.Errors[0].Path)
	}
}

func TestBuildDimensionMismatch(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "a.txt", "document body")

	cfg := testConfig(t, dir)
	builder, _ := newTestBuilder(t, cfg)
	if _, err := builder.Build(context.Background(), false); err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	// Same index dir, different embedding dimension
	cfg.Embedding.Dimensions = 8
	client := &fakeEmbedClient{dims: 8}
	mismatched, err := NewBuilder(cfg, embedding.NewServiceWithClient(&cfg.Embedding, client))
	if err != nil {
		t.Fatalf("NewBuilder() error = %v", err)
	}

	_, err = mismatched.Build(context.Background(), false)
	if !index.IsDimensionMismatch(err) {
		t.Errorf("Build() with changed dimensions error = %v, want dimension mismatch", err)
	}

	// force rebuild resolves it
	if _, err := mismatched.Build(context.Background(), true); err != nil {
		t.Errorf("Build(force) after dimension change error = %v", err)
	}
}

func TestBuildCancelled(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "a.txt", "document body")

	cfg := testConfig(t, dir)
	builder, _ := newTestBuilder(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := builder.Build(ctx, false); err == nil {
		t.Error("Build() with cancelled context error = nil, want error")
	}
}
