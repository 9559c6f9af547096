// Package loader converts source files into documents for ingestion.
//
// Format-specific parsing stays behind the Loader interface; the pipeline
// only needs raw text plus provenance. The built-in implementation handles
// plain-text files and directories of them.
package loader

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/kailas-cloud/docqa/internal/domain"
)

// Loader yields documents from a source path.
type Loader interface {
	Load(path string) ([]domain.Document, error)
}

// textExtensions are the file extensions the text loader picks up when
// walking a directory.
var textExtensions = map[string]bool{
	".txt": true,
	".md":  true,
}

// Text loads plain-text files. A directory source is walked recursively and
// every text file under it becomes one document, in deterministic path order.
type Text struct{}

// NewText creates a plain-text loader.
func NewText() *Text {
	return &Text{}
}

// Load implements Loader. Unreadable sources wrap domain.ErrIngestion.
func (l *Text) Load(path string) ([]domain.Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: stat %s: %w", domain.ErrIngestion, path, err)
	}

	if !info.IsDir() {
		doc, err := l.loadFile(path)
		if err != nil {
			return nil, err
		}
		return []domain.Document{doc}, nil
	}

	var files []string
	walkErr := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if textExtensions[strings.ToLower(filepath.Ext(p))] {
			files = append(files, p)
		}
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("%w: walk %s: %w", domain.ErrIngestion, path, walkErr)
	}

	sort.Strings(files)

	docs := make([]domain.Document, 0, len(files))
	for _, f := range files {
		doc, err := l.loadFile(f)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (l *Text) loadFile(path string) (domain.Document, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return domain.Document{}, fmt.Errorf("%w: read %s: %w", domain.ErrIngestion, path, err)
	}
	if !utf8.Valid(data) {
		return domain.Document{}, fmt.Errorf("%w: %s is not valid UTF-8", domain.ErrIngestion, path)
	}
	return domain.Document{Source: path, Text: string(data)}, nil
}
