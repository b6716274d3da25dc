// Package loader provides the knowledge base persistence adapter.
// Clean Architecture: Adapter implementing ports.KnowledgeCache.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/0xcro3dile/policyrag-go/internal/domain/ports"
)

// DefaultFileName is the name of the cache file inside the cache directory.
const DefaultFileName = "knowledge_base.txt"

// FileCache stores the knowledge base as a single UTF-8 text file.
type FileCache struct {
	dir  string
	path string
}

// NewFileCache creates a cache at dir/name. An empty name uses DefaultFileName.
func NewFileCache(dir, name string) *FileCache {
	if name == "" {
		name = DefaultFileName
	}
	return &FileCache{dir: dir, path: filepath.Join(dir, name)}
}

// Read returns the cached text verbatim.
func (c *FileCache) Read(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := os.ReadFile(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", ports.ErrNotCached
	}
	if err != nil {
		return "", fmt.Errorf("reading cache %s: %w", c.path, err)
	}
	return string(data), nil
}

// Write replaces the cache file, creating the directory when missing.
// The text goes to a temporary file first so readers never see a partial cache.
func (c *FileCache) Write(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(c.dir, ".kb-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp cache: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(text); err != nil {
		tmp.Close()
		return fmt.Errorf("writing cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing cache: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		return fmt.Errorf("replacing cache: %w", err)
	}
	return nil
}

// Remove deletes the cache file.
func (c *FileCache) Remove(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(c.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing cache: %w", err)
	}
	return nil
}

// Path returns the cache file location.
func (c *FileCache) Path() string {
	return c.path
}

// Dir returns the directory holding the cache file.
func (c *FileCache) Dir() string {
	return c.dir
}
