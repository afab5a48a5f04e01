// Package snapshot writes and reads the JSON article database artifact.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"ArticlesDB/internal/domain"
	"ArticlesDB/internal/ports"
)

// FileWriter writes the article collection as one indented JSON array.
type FileWriter struct {
	path string
}

var _ ports.SnapshotWriter = (*FileWriter)(nil)

// NewFileWriter targets path; parent directories are created on write.
func NewFileWriter(path string) *FileWriter {
	return &FileWriter{path: path}
}

// Name identifies the sink inside the registry.
func (w *FileWriter) Name() string {
	return "json"
}

// Path reports the artifact location.
func (w *FileWriter) Path() string {
	return w.path
}

// Write replaces the artifact atomically: a temp file in the same directory is
// renamed over the target only after it is fully written.
func (w *FileWriter) Write(ctx context.Context, articles []domain.Article) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if articles == nil {
		articles = []domain.Article{}
	}

	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(w.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(articles); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod snapshot: %w", err)
	}
	if err := os.Rename(tmpName, w.path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	committed = true
	return nil
}

// Read loads a snapshot written by FileWriter.
func Read(path string) ([]domain.Article, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var articles []domain.Article
	if err := json.Unmarshal(raw, &articles); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	return articles, nil
}
