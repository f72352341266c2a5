package query

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// Cursor streams query results, running the cursor hooks on each document as
// it arrives.
type Cursor struct {
	m    *Model
	q    *Query
	it   Iterator
	done bool
}

// Cursor opens a stream over the matching documents. Close it when done.
func (m *Model) Cursor(ctx context.Context, filter Filter, opts ...Option) (*Cursor, error) {
	q := m.newQuery(OpCursor, filter, nil, opts)
	ctx, span := m.startSpan(ctx, q)
	defer span.End()

	start := time.Now()
	it, err := m.coll.Stream(ctx, filter, q.findOptions())
	if err := m.finish(ctx, span, q, start, nil, err); err != nil {
		return nil, err
	}
	return &Cursor{m: m, q: q, it: it}, nil
}

// Next returns the next transformed document, or io.EOF after the last one.
func (c *Cursor) Next(ctx context.Context) (map[string]any, error) {
	if c.done {
		return nil, io.EOF
	}
	doc, err := c.it.Next(ctx)
	if errors.Is(err, io.EOF) {
		c.done = true
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("%s: cursor: %w", c.m.name, err)
	}
	if err := c.m.populate(ctx, c.q, []map[string]any{doc}); err != nil {
		return nil, fmt.Errorf("%s: cursor: %w", c.m.name, err)
	}
	res, err := c.m.hooks.Run(ctx, c.q, doc)
	if err != nil {
		return nil, fmt.Errorf("%s: cursor: %w", c.m.name, err)
	}
	return fromDoc(c.q.Op, res)
}

// All drains the cursor.
func (c *Cursor) All(ctx context.Context) ([]map[string]any, error) {
	var out []map[string]any
	for {
		doc, err := c.Next(ctx)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, doc)
	}
}

// Close releases the underlying iterator.
func (c *Cursor) Close() error {
	c.done = true
	return c.it.Close()
}
