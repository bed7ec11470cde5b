package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gofrs/flock"

	"github.com/BatmanBruc/pdf-batch-bot/types"
)

// FileBackend keeps the whole catalog in one JSON document keyed by slug.
// Every mutation rewrites the file atomically while holding an exclusive
// flock on <path>.lock, so processes sharing the file serialize too.
type FileBackend struct {
	path string
}

func NewFileBackend(path string) (*FileBackend, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("catalog path is empty")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create catalog dir: %w", err)
		}
	}
	return &FileBackend{path: path}, nil
}

func (b *FileBackend) Path() string {
	return b.path
}

type document map[string]types.CatalogEntry

func (b *FileBackend) withLock(fn func() error) error {
	fl := flock.New(b.path + ".lock")
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("lock catalog: %w", err)
	}
	defer func() { _ = fl.Unlock() }()

	return fn()
}

func (b *FileBackend) load() (document, error) {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, os.ErrNotExist) {
		return document{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	doc := document{}
	if len(strings.TrimSpace(string(data))) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", b.path, err)
	}
	for slug, e := range doc {
		e.Slug = slug
		doc[slug] = e
	}
	return doc, nil
}

// save writes temp, fsyncs, then renames over the catalog.
func (b *FileBackend) save(doc document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}

	tmpPath := b.path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp catalog: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp catalog: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("fsync temp catalog: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp catalog: %w", err)
	}
	if err := os.Rename(tmpPath, b.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace catalog: %w", err)
	}
	return nil
}

func (b *FileBackend) read(fn func(document) error) error {
	return b.withLock(func() error {
		doc, err := b.load()
		if err != nil {
			return err
		}
		return fn(doc)
	})
}

// mutate runs fn on the current document and persists it when fn succeeds.
func (b *FileBackend) mutate(fn func(document) error) error {
	return b.withLock(func() error {
		doc, err := b.load()
		if err != nil {
			return err
		}
		if err := fn(doc); err != nil {
			return err
		}
		return b.save(doc)
	})
}

func (b *FileBackend) Insert(_ context.Context, e types.CatalogEntry) error {
	return b.mutate(func(doc document) error {
		if _, exists := doc[e.Slug]; exists {
			return types.ErrSlugTaken
		}
		doc[e.Slug] = e
		return nil
	})
}

func (b *FileBackend) Get(_ context.Context, slug string) (types.CatalogEntry, error) {
	var out types.CatalogEntry
	err := b.read(func(doc document) error {
		e, ok := doc[slug]
		if !ok {
			return fmt.Errorf("%w: %s", types.ErrNotFound, slug)
		}
		out = e
		return nil
	})
	return out, err
}

func (b *FileBackend) Find(_ context.Context, query string, limit int) ([]types.CatalogEntry, error) {
	q := strings.ToLower(query)
	var out []types.CatalogEntry
	err := b.read(func(doc document) error {
		out = filter(doc, func(e types.CatalogEntry) bool {
			return strings.Contains(strings.ToLower(e.Slug), q) || strings.Contains(strings.ToLower(e.Title), q)
		}, limit)
		return nil
	})
	return out, err
}

func (b *FileBackend) Recent(_ context.Context, uploaderID int64, limit int) ([]types.CatalogEntry, error) {
	var out []types.CatalogEntry
	err := b.read(func(doc document) error {
		out = filter(doc, func(e types.CatalogEntry) bool {
			return uploaderID == 0 || e.UploaderID == uploaderID
		}, limit)
		return nil
	})
	return out, err
}

func (b *FileBackend) UpdateTitle(_ context.Context, slug, title string) error {
	return b.mutate(func(doc document) error {
		e, ok := doc[slug]
		if !ok {
			return fmt.Errorf("%w: %s", types.ErrNotFound, slug)
		}
		e.Title = title
		doc[slug] = e
		return nil
	})
}

func (b *FileBackend) Delete(_ context.Context, slug string) error {
	return b.mutate(func(doc document) error {
		if _, ok := doc[slug]; !ok {
			return fmt.Errorf("%w: %s", types.ErrNotFound, slug)
		}
		delete(doc, slug)
		return nil
	})
}

// filter returns matching entries newest first, slug breaking ties.
func filter(doc document, keep func(types.CatalogEntry) bool, limit int) []types.CatalogEntry {
	out := make([]types.CatalogEntry, 0)
	for _, e := range doc {
		if keep(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].Slug < out[j].Slug
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
