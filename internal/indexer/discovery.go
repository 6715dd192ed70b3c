package indexer

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/pdfchat/pdfchat/internal/config"
	"github.com/pdfchat/pdfchat/internal/document"
)

// Discover walks the configured documents directory recursively and
// returns the files whose extension is configured, minus excludes.
// Results are sorted by the walk order, which is deterministic.
func Discover(cfg config.DocumentsConfig) ([]document.Document, error) {
	extensions := make(map[string]bool, len(cfg.Extensions))
	for _, ext := range cfg.Extensions {
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		extensions[strings.ToLower(ext)] = true
	}

	var docs []document.Document
	err := filepath.WalkDir(cfg.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		relPath, relErr := filepath.Rel(cfg.Dir, path)
		if relErr != nil {
			return relErr
		}
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			if path != cfg.Dir && excluded(cfg.Exclude, relPath) {
				return filepath.SkipDir
			}
			return nil
		}

		if !extensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		if excluded(cfg.Exclude, relPath) {
			return nil
		}

		docs = append(docs, document.Document{Path: path, RelPath: relPath})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", cfg.Dir, err)
	}

	return docs, nil
}

// excluded matches relPath against the exclude globs, both against the
// full relative path and the basename.
func excluded(patterns []string, relPath string) bool {
	for _, pattern := range patterns {
		if matched, _ := doublestar.Match(pattern, relPath); matched {
			return true
		}
		if matched, _ := doublestar.Match(pattern, filepath.Base(relPath)); matched {
			return true
		}
	}
	return false
}
