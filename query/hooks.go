package query

import (
	"context"
	"fmt"
	"sync"
)

// Transform post-processes a query result. It returns the result to pass on,
// usually res itself mutated in place; an error aborts the query.
//
// res is a document (map[string]any, nil when nothing matched) for
// single-document operations and cursors, and a []any of documents for find.
type Transform func(ctx context.Context, q *Query, res any) (any, error)

type namedTransform struct {
	name string
	fn   Transform
}

// Hooks holds the ordered post-transforms of a model.
type Hooks struct {
	mu   sync.RWMutex
	post map[Op][]namedTransform
}

// NewHooks returns an empty registry.
func NewHooks() *Hooks {
	return &Hooks{post: map[Op][]namedTransform{}}
}

// Post appends fn to the transforms of op.
func (h *Hooks) Post(op Op, name string, fn Transform) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.post[op] = append(h.post[op], namedTransform{name: name, fn: fn})
}

// Prepend runs fn before every transform already registered for op.
func (h *Hooks) Prepend(op Op, name string, fn Transform) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.post[op] = append([]namedTransform{{name: name, fn: fn}}, h.post[op]...)
}

// Names lists the transforms registered for op in execution order.
func (h *Hooks) Names(op Op) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.post[op]))
	for _, t := range h.post[op] {
		out = append(out, t.name)
	}
	return out
}

// Run applies the transforms of q.Op in order.
func (h *Hooks) Run(ctx context.Context, q *Query, res any) (any, error) {
	h.mu.RLock()
	chain := h.post[q.Op]
	h.mu.RUnlock()
	for _, t := range chain {
		out, err := t.fn(ctx, q, res)
		if err != nil {
			return nil, fmt.Errorf("%s hook %q: %w", q.Op, t.name, err)
		}
		res = out
	}
	return res, nil
}
