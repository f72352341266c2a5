// Package memory is an in-process query.Collection. Documents keep their
// insertion order.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/reoring/leanvirtuals/internal/docpath"
	"github.com/reoring/leanvirtuals/internal/docquery"
	"github.com/reoring/leanvirtuals/query"
)

// Collection stores documents in memory. It is safe for concurrent use.
type Collection struct {
	mu   sync.RWMutex
	docs []map[string]any
}

var _ query.Collection = (*Collection)(nil)

// New returns a collection seeded with copies of docs.
func New(docs ...map[string]any) *Collection {
	c := &Collection{}
	_ = c.Insert(context.Background(), docs...)
	return c
}

// Len returns the number of stored documents.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.docs)
}

func (c *Collection) Insert(ctx context.Context, docs ...map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range docs {
		if d == nil {
			continue
		}
		docquery.EnsureID(d)
		c.docs = append(c.docs, docpath.CloneDoc(d))
	}
	return nil
}

func (c *Collection) Find(ctx context.Context, filter query.Filter, opt query.FindOptions) ([]map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	out := make([]map[string]any, 0)
	for _, d := range c.docs {
		if docquery.Match(d, filter) {
			out = append(out, docpath.CloneDoc(d))
		}
	}
	c.mu.RUnlock()
	docquery.Sort(out, opt.Sort)
	return docquery.Limit(out, opt.Limit), nil
}

func (c *Collection) FindIn(ctx context.Context, path string, values []any) ([]map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]map[string]any, 0)
	for _, d := range c.docs {
		if docquery.MatchIn(d, path, values) {
			out = append(out, docpath.CloneDoc(d))
		}
	}
	return out, nil
}

func (c *Collection) FindOne(ctx context.Context, filter query.Filter) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i := c.index(filter); i >= 0 {
		return docpath.CloneDoc(c.docs[i]), nil
	}
	return nil, nil
}

func (c *Collection) FindOneAndUpdate(ctx context.Context, filter query.Filter, set map[string]any) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.index(filter)
	if i < 0 {
		return nil, nil
	}
	next := docpath.CloneDoc(c.docs[i])
	if err := docquery.Set(next, set); err != nil {
		return nil, fmt.Errorf("update: %w", err)
	}
	c.docs[i] = next
	return docpath.CloneDoc(next), nil
}

func (c *Collection) FindOneAndReplace(ctx context.Context, filter query.Filter, doc map[string]any) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.index(filter)
	if i < 0 {
		return nil, nil
	}
	next := docpath.CloneDoc(doc)
	if next == nil {
		next = map[string]any{}
	}
	next[query.IDField] = c.docs[i][query.IDField]
	c.docs[i] = next
	return docpath.CloneDoc(next), nil
}

func (c *Collection) FindOneAndDelete(ctx context.Context, filter query.Filter) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.index(filter)
	if i < 0 {
		return nil, nil
	}
	doc := c.docs[i]
	c.docs = append(c.docs[:i], c.docs[i+1:]...)
	return doc, nil
}

// Stream iterates over a snapshot taken when it is called.
func (c *Collection) Stream(ctx context.Context, filter query.Filter, opt query.FindOptions) (query.Iterator, error) {
	docs, err := c.Find(ctx, filter, opt)
	if err != nil {
		return nil, err
	}
	return query.NewSliceIterator(docs), nil
}

func (c *Collection) index(filter query.Filter) int {
	for i, d := range c.docs {
		if docquery.Match(d, filter) {
			return i
		}
	}
	return -1
}
