// Package jsonl stores each collection as a newline-delimited JSON file,
// <dir>/<name>.jsonl. Mutations rewrite the file atomically.
package jsonl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/reoring/leanvirtuals/internal/docpath"
	"github.com/reoring/leanvirtuals/internal/docquery"
	"github.com/reoring/leanvirtuals/query"
	"github.com/reoring/leanvirtuals/source"
)

// Collection is a file-backed query.Collection. One process should own a
// file at a time; the mutex only serializes callers within the process.
type Collection struct {
	mu   sync.RWMutex
	path string
}

var _ query.Collection = (*Collection)(nil)

// Open returns the collection name under dir, creating dir when missing.
// The file itself appears on first insert.
func Open(dir, name string) (*Collection, error) {
	if name == "" || filepath.Base(name) != name {
		return nil, fmt.Errorf("jsonl: invalid collection name %q", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("jsonl: %w", err)
	}
	return &Collection{path: filepath.Join(dir, name+".jsonl")}, nil
}

// Path returns the backing file.
func (c *Collection) Path() string { return c.path }

func (c *Collection) load(ctx context.Context) ([]map[string]any, error) {
	f, err := os.Open(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("jsonl: %w", err)
	}
	defer f.Close()
	var docs []map[string]any
	r := source.NewDocumentReader(bufio.NewReader(f))
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		d, err := r.Next()
		if errors.Is(err, io.EOF) {
			return docs, nil
		}
		if err != nil {
			return nil, fmt.Errorf("jsonl: %s: %w", c.path, err)
		}
		docs = append(docs, d)
	}
}

// save writes docs to a temporary file and renames it over the original.
func (c *Collection) save(docs []map[string]any) error {
	tmp, err := os.CreateTemp(filepath.Dir(c.path), filepath.Base(c.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("jsonl: %w", err)
	}
	defer os.Remove(tmp.Name())
	w := bufio.NewWriter(tmp)
	for _, d := range docs {
		if err := source.Encode(w, d, false); err != nil {
			tmp.Close()
			return fmt.Errorf("jsonl: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("jsonl: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("jsonl: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		return fmt.Errorf("jsonl: %w", err)
	}
	return nil
}

func (c *Collection) Insert(ctx context.Context, docs ...map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, err := os.OpenFile(c.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("jsonl: %w", err)
	}
	w := bufio.NewWriter(f)
	for _, d := range docs {
		if err := ctx.Err(); err != nil {
			f.Close()
			return err
		}
		if d == nil {
			continue
		}
		docquery.EnsureID(d)
		if err := source.Encode(w, d, false); err != nil {
			f.Close()
			return fmt.Errorf("jsonl: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("jsonl: %w", err)
	}
	return f.Close()
}

func (c *Collection) Find(ctx context.Context, filter query.Filter, opt query.FindOptions) ([]map[string]any, error) {
	c.mu.RLock()
	docs, err := c.load(ctx)
	c.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(docs))
	for _, d := range docs {
		if docquery.Match(d, filter) {
			out = append(out, d)
		}
	}
	docquery.Sort(out, opt.Sort)
	return docquery.Limit(out, opt.Limit), nil
}

func (c *Collection) FindIn(ctx context.Context, path string, values []any) ([]map[string]any, error) {
	c.mu.RLock()
	docs, err := c.load(ctx)
	c.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(docs))
	for _, d := range docs {
		if docquery.MatchIn(d, path, values) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (c *Collection) FindOne(ctx context.Context, filter query.Filter) (map[string]any, error) {
	docs, err := c.Find(ctx, filter, query.FindOptions{Limit: 1})
	if err != nil || len(docs) == 0 {
		return nil, err
	}
	return docs[0], nil
}

// mutate runs fn on the first match and persists the result. fn returns the
// replacement (nil deletes) and the document to report.
func (c *Collection) mutate(ctx context.Context, filter query.Filter, fn func(map[string]any) (map[string]any, map[string]any, error)) (map[string]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	docs, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	for i, d := range docs {
		if !docquery.Match(d, filter) {
			continue
		}
		next, report, err := fn(d)
		if err != nil {
			return nil, err
		}
		if next == nil {
			docs = append(docs[:i], docs[i+1:]...)
		} else {
			docs[i] = next
		}
		if err := c.save(docs); err != nil {
			return nil, err
		}
		return docpath.CloneDoc(report), nil
	}
	return nil, nil
}

func (c *Collection) FindOneAndUpdate(ctx context.Context, filter query.Filter, set map[string]any) (map[string]any, error) {
	return c.mutate(ctx, filter, func(d map[string]any) (map[string]any, map[string]any, error) {
		if err := docquery.Set(d, set); err != nil {
			return nil, nil, fmt.Errorf("jsonl: update: %w", err)
		}
		return d, d, nil
	})
}

func (c *Collection) FindOneAndReplace(ctx context.Context, filter query.Filter, doc map[string]any) (map[string]any, error) {
	return c.mutate(ctx, filter, func(d map[string]any) (map[string]any, map[string]any, error) {
		next := docpath.CloneDoc(doc)
		if next == nil {
			next = map[string]any{}
		}
		next[query.IDField] = d[query.IDField]
		return next, next, nil
	})
}

func (c *Collection) FindOneAndDelete(ctx context.Context, filter query.Filter) (map[string]any, error) {
	return c.mutate(ctx, filter, func(d map[string]any) (map[string]any, map[string]any, error) {
		return nil, d, nil
	})
}

// Stream decodes the file incrementally when no sort is requested; sorted
// streams load the matches first.
func (c *Collection) Stream(ctx context.Context, filter query.Filter, opt query.FindOptions) (query.Iterator, error) {
	if len(opt.Sort) > 0 {
		docs, err := c.Find(ctx, filter, opt)
		if err != nil {
			return nil, err
		}
		return query.NewSliceIterator(docs), nil
	}
	c.mu.RLock()
	f, err := os.Open(c.path)
	c.mu.RUnlock()
	if errors.Is(err, fs.ErrNotExist) {
		return query.NewSliceIterator(nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("jsonl: %w", err)
	}
	return &fileIterator{f: f, r: source.NewDocumentReader(bufio.NewReader(f)), filter: filter, limit: opt.Limit}, nil
}

type fileIterator struct {
	f      *os.File
	r      *source.DocumentReader
	filter query.Filter
	limit  int
	n      int
}

func (it *fileIterator) Next(ctx context.Context) (map[string]any, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if it.limit > 0 && it.n >= it.limit {
			return nil, io.EOF
		}
		d, err := it.r.Next()
		if err != nil {
			return nil, err
		}
		if docquery.Match(d, it.filter) {
			it.n++
			return d, nil
		}
	}
}

func (it *fileIterator) Close() error { return it.f.Close() }
