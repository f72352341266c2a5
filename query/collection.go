package query

import (
	"context"
	"io"
)

// Collection is the document store a Model reads from. Every read returns
// fresh copies: mutating a result never changes stored documents. Single
// document reads return nil, nil when nothing matches.
type Collection interface {
	Find(ctx context.Context, filter Filter, opt FindOptions) ([]map[string]any, error)
	FindOne(ctx context.Context, filter Filter) (map[string]any, error)
	// FindIn returns the documents whose value at the dotted path equals one
	// of values, in stored order. A path reaching an array matches when any
	// element does.
	FindIn(ctx context.Context, path string, values []any) ([]map[string]any, error)
	// FindOneAndUpdate sets each dotted path of set on the first match and
	// returns the updated document.
	FindOneAndUpdate(ctx context.Context, filter Filter, set map[string]any) (map[string]any, error)
	// FindOneAndReplace replaces the first match, keeping its _id, and returns
	// the new document.
	FindOneAndReplace(ctx context.Context, filter Filter, doc map[string]any) (map[string]any, error)
	FindOneAndDelete(ctx context.Context, filter Filter) (map[string]any, error)
	Stream(ctx context.Context, filter Filter, opt FindOptions) (Iterator, error)
	// Insert stores docs, assigning a string _id to those without one.
	Insert(ctx context.Context, docs ...map[string]any) error
}

// Iterator yields documents one at a time. Next returns io.EOF when done.
type Iterator interface {
	Next(ctx context.Context) (map[string]any, error)
	Close() error
}

// IDField is the primary key every store maintains.
const IDField = "_id"

// SliceIterator yields the documents of a slice.
type SliceIterator struct {
	docs []map[string]any
	pos  int
}

// NewSliceIterator wraps docs without copying them.
func NewSliceIterator(docs []map[string]any) *SliceIterator {
	return &SliceIterator{docs: docs}
}

func (it *SliceIterator) Next(ctx context.Context) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if it.pos >= len(it.docs) {
		return nil, io.EOF
	}
	d := it.docs[it.pos]
	it.pos++
	return d, nil
}

func (it *SliceIterator) Close() error {
	it.pos = len(it.docs)
	return nil
}
