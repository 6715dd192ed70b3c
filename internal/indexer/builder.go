package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/pdfchat/pdfchat/internal/config"
	"github.com/pdfchat/pdfchat/internal/document"
	"github.com/pdfchat/pdfchat/internal/embedding"
	"github.com/pdfchat/pdfchat/internal/extract"
	"github.com/pdfchat/pdfchat/internal/index"
	"github.com/pdfchat/pdfchat/internal/splitter"
)

// Builder runs the complete indexing pipeline: discover documents,
// extract text, split into chunks, embed, and write to the index.
type Builder struct {
	cfg      *config.Config
	embedder *embedding.Service
	registry *extract.Registry
	split    *splitter.Splitter
	progress ProgressReporter
	logger   *BuildLogger
}

// DocumentError records a per-document failure that did not stop the build
type DocumentError struct {
	Path string
	Err  error
}

// BuildReport summarizes a completed index build
type BuildReport struct {
	DocumentsFound   int
	DocumentsIndexed int
	DocumentsSkipped int
	DocumentsFailed  int
	ChunksCreated    int
	Duration         time.Duration
	Errors           []DocumentError
}

// NewBuilder creates an index builder
func NewBuilder(cfg *config.Config, embedder *embedding.Service) (*Builder, error) {
	split, err := splitter.New(cfg.Chunking.Size, cfg.Chunking.Overlap)
	if err != nil {
		return nil, fmt.Errorf("invalid chunking config: %w", err)
	}

	timeout := time.Duration(cfg.Documents.ExtractTimeoutSecs) * time.Second

	return &Builder{
		cfg:      cfg,
		embedder: embedder,
		registry: extract.NewRegistry(timeout),
		split:    split,
	}, nil
}

// SetProgress attaches a progress reporter. nil disables progress.
func (b *Builder) SetProgress(p ProgressReporter) {
	b.progress = p
}

// SetLogger attaches a build logger. nil disables the build log.
func (b *Builder) SetLogger(l *BuildLogger) {
	b.logger = l
}

// embeddedDoc is one document's pipeline output
type embeddedDoc struct {
	doc     document.Document
	chunks  []document.Chunk
	vectors [][]float32
	docErr  error // per-document failure, recorded and skipped
	fatal   error // aborts the whole build
}

// Build runs the pipeline. When force is false, documents already present
// in the index are skipped; when true, the index is rebuilt from scratch.
// Re-running an unchanged corpus is a no-op that still succeeds.
func (b *Builder) Build(ctx context.Context, force bool) (*BuildReport, error) {
	startTime := time.Now()
	report := &BuildReport{}

	docs, err := Discover(b.cfg.Documents)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("no documents found in %s", b.cfg.Documents.Dir)
	}
	report.DocumentsFound = len(docs)
	b.logger.Info("discovered documents", map[string]interface{}{
		"dir":   b.cfg.Documents.Dir,
		"count": len(docs),
	})

	ix, err := b.openIndex(force)
	if err != nil {
		return nil, err
	}
	defer ix.Close()

	// Incremental mode: drop documents whose chunks are already indexed
	var pending []document.Document
	for _, doc := range docs {
		if !force {
			has, err := ix.HasSource(doc.RelPath)
			if err != nil {
				return nil, err
			}
			if has {
				report.DocumentsSkipped++
				continue
			}
		}
		pending = append(pending, doc)
	}

	if b.progress != nil {
		b.progress.Start(len(pending))
		defer b.progress.Finish()
	}

	// Pipeline: one document embeds while the previous one commits
	results := make(chan embeddedDoc, 1)
	go func() {
		defer close(results)
		for _, doc := range pending {
			if ctx.Err() != nil {
				results <- embeddedDoc{doc: doc, fatal: ctx.Err()}
				return
			}
			results <- b.process(ctx, doc)
		}
	}()

	var fatal error
	for result := range results {
		if result.fatal != nil {
			fatal = result.fatal
			continue // Drain so the producer goroutine exits
		}
		if b.progress != nil {
			b.progress.Increment()
		}
		if result.docErr != nil {
			report.DocumentsFailed++
			report.Errors = append(report.Errors, DocumentError{Path: result.doc.RelPath, Err: result.docErr})
			b.logger.Warn("document failed", map[string]interface{}{
				"path":  result.doc.RelPath,
				"error": result.docErr,
			})
			continue
		}
		if len(result.chunks) == 0 {
			report.DocumentsSkipped++
			b.logger.Warn("document produced no text", map[string]interface{}{
				"path": result.doc.RelPath,
			})
			continue
		}

		if err := ix.Add(result.chunks, result.vectors); err != nil {
			fatal = fmt.Errorf("failed to store %s: %w", result.doc.RelPath, err)
			continue
		}
		report.DocumentsIndexed++
		report.ChunksCreated += len(result.chunks)
	}
	if fatal != nil {
		return nil, fatal
	}

	report.Duration = time.Since(startTime)
	b.logger.Info("build completed", map[string]interface{}{
		"indexed":  report.DocumentsIndexed,
		"skipped":  report.DocumentsSkipped,
		"failed":   report.DocumentsFailed,
		"chunks":   report.ChunksCreated,
		"duration": report.Duration,
	})
	return report, nil
}

// process extracts, splits, and embeds a single document
func (b *Builder) process(ctx context.Context, doc document.Document) embeddedDoc {
	text, err := b.registry.Extract(ctx, doc.Path)
	if err != nil {
		return embeddedDoc{doc: doc, docErr: fmt.Errorf("extraction failed: %w", err)}
	}

	chunks := b.split.Split(text, doc.RelPath)
	if len(chunks) == 0 {
		return embeddedDoc{doc: doc}
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	vectors, err := b.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		// An unreachable embedding service fails every document; stop
		// instead of recording the same error once per file.
		if embedding.IsRetryable(err) || ctx.Err() != nil {
			return embeddedDoc{doc: doc, fatal: fmt.Errorf("embedding failed: %w", err)}
		}
		return embeddedDoc{doc: doc, docErr: fmt.Errorf("embedding failed: %w", err)}
	}

	return embeddedDoc{doc: doc, chunks: chunks, vectors: vectors}
}

// openIndex opens the configured index for writing, creating it when it
// does not exist yet. force always starts from an empty index.
func (b *Builder) openIndex(force bool) (*index.Index, error) {
	meta := index.Meta{
		Dimension:    b.cfg.Embedding.Dimensions,
		Model:        b.embedModel(),
		ChunkSize:    b.cfg.Chunking.Size,
		ChunkOverlap: b.cfg.Chunking.Overlap,
	}

	if force {
		return index.Create(b.cfg.Index.Dir, meta)
	}

	ix, err := index.Open(b.cfg.Index.Dir)
	if index.IsIndexNotFound(err) {
		return index.Create(b.cfg.Index.Dir, meta)
	}
	if err != nil {
		return nil, err
	}

	if err := ix.ValidateDimension(b.cfg.Embedding.Dimensions); err != nil {
		ix.Close()
		return nil, fmt.Errorf("%w (rebuild with -force to change embedding models)", err)
	}
	return ix, nil
}

func (b *Builder) embedModel() string {
	if b.cfg.Embedding.Provider == "openai" {
		return b.cfg.Embedding.OpenAIModel
	}
	return b.cfg.Embedding.Model
}
