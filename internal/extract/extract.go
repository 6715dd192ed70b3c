package extract

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Extractor turns a document file into plain text.
// Extraction failures are per-file: the index builder records them and
// continues with the remaining documents.
type Extractor interface {
	Extract(ctx context.Context, path string) (string, error)
	Supports(ext string) bool
}

// Registry dispatches extraction by file extension.
type Registry struct {
	extractors []Extractor
}

// NewRegistry creates a registry with the default extractors:
// plain text for .txt/.md/.markdown and pdftotext for .pdf.
func NewRegistry(timeout time.Duration) *Registry {
	return &Registry{
		extractors: []Extractor{
			&TextExtractor{},
			&PDFExtractor{Timeout: timeout},
		},
	}
}

// Extract extracts text from path using the first extractor that supports
// its extension.
func (r *Registry) Extract(ctx context.Context, path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range r.extractors {
		if e.Supports(ext) {
			return e.Extract(ctx, path)
		}
	}
	return "", fmt.Errorf("no extractor for file type: %s", ext)
}

// Supports reports whether any registered extractor handles ext.
func (r *Registry) Supports(ext string) bool {
	ext = strings.ToLower(ext)
	for _, e := range r.extractors {
		if e.Supports(ext) {
			return true
		}
	}
	return false
}

// TextExtractor reads plain-text formats directly.
type TextExtractor struct{}

func (e *TextExtractor) Supports(ext string) bool {
	switch ext {
	case ".txt", ".md", ".markdown":
		return true
	default:
		return false
	}
}

func (e *TextExtractor) Extract(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	return string(data), nil
}

// PDFExtractor shells out to pdftotext(1). The binary must be on PATH;
// each invocation is bounded by Timeout.
type PDFExtractor struct {
	Timeout time.Duration
}

func (e *PDFExtractor) Supports(ext string) bool {
	return ext == ".pdf"
}

func (e *PDFExtractor) Extract(ctx context.Context, path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("failed to stat file: %w", err)
	}

	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	// "-" writes the extracted text to stdout
	cmd := exec.CommandContext(ctx, "pdftotext", "-layout", path, "-")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("pdftotext timed out after %v: %s", e.Timeout, path)
		}
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return "", fmt.Errorf("pdftotext failed: %s: %w", msg, err)
		}
		return "", fmt.Errorf("pdftotext failed: %w", err)
	}

	return stdout.String(), nil
}
