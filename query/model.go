package query

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	lv "github.com/reoring/leanvirtuals"
)

const tracerName = "github.com/reoring/leanvirtuals/query"

// Model runs queries against one collection and post-processes the results
// with the hooks registered by its plugins.
type Model struct {
	name   string
	schema lv.Schema
	coll   Collection
	hooks  *Hooks
	logger *slog.Logger
	tracer trace.Tracer
}

// ModelOption configures a Model.
type ModelOption func(*Model)

// WithLogger sets the logger used for query debug output.
func WithLogger(l *slog.Logger) ModelOption {
	return func(m *Model) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithTracerProvider traces queries with tp instead of the global provider.
func WithTracerProvider(tp trace.TracerProvider) ModelOption {
	return func(m *Model) {
		if tp != nil {
			m.tracer = tp.Tracer(tracerName)
		}
	}
}

// NewModel binds schema to coll under name.
func NewModel(name string, schema lv.Schema, coll Collection, opts ...ModelOption) *Model {
	m := &Model{
		name:   name,
		schema: schema,
		coll:   coll,
		hooks:  NewHooks(),
		tracer: otel.Tracer(tracerName),
	}
	for _, o := range opts {
		o(m)
	}
	if m.logger == nil {
		m.logger = slog.Default().With("component", "query", "collection", name)
	}
	return m
}

// Name returns the collection name.
func (m *Model) Name() string { return m.name }

// Schema returns the schema the model was built with.
func (m *Model) Schema() lv.Schema { return m.schema }

// Collection returns the backing store.
func (m *Model) Collection() Collection { return m.coll }

// Hooks exposes the hook registry for custom transforms.
func (m *Model) Hooks() *Hooks { return m.hooks }

// Use applies a plugin to the model's schema and hooks.
func (m *Model) Use(p Plugin) *Model {
	p(m.schema, m.hooks)
	return m
}

// Create inserts docs into the collection.
func (m *Model) Create(ctx context.Context, docs ...map[string]any) error {
	if err := m.coll.Insert(ctx, docs...); err != nil {
		return fmt.Errorf("%s: create: %w", m.name, err)
	}
	return nil
}

// Find returns every matching document.
func (m *Model) Find(ctx context.Context, filter Filter, opts ...Option) ([]map[string]any, error) {
	q := m.newQuery(OpFind, filter, nil, opts)
	res, err := m.exec(ctx, q, func(ctx context.Context) (any, error) {
		docs, err := m.coll.Find(ctx, filter, q.findOptions())
		if err != nil {
			return nil, err
		}
		if err := m.populate(ctx, q, docs); err != nil {
			return nil, err
		}
		return toArray(docs), nil
	})
	if err != nil {
		return nil, err
	}
	return fromArray(q.Op, res)
}

// FindOne returns the first matching document, or nil.
func (m *Model) FindOne(ctx context.Context, filter Filter, opts ...Option) (map[string]any, error) {
	q := m.newQuery(OpFindOne, filter, nil, opts)
	return m.single(ctx, q, func(ctx context.Context) (map[string]any, error) {
		return m.coll.FindOne(ctx, filter)
	})
}

// FindOneAndUpdate sets the dotted paths of set on the first match and returns
// the updated document, or nil when nothing matched.
func (m *Model) FindOneAndUpdate(ctx context.Context, filter Filter, set map[string]any, opts ...Option) (map[string]any, error) {
	q := m.newQuery(OpFindOneAndUpdate, filter, set, opts)
	return m.single(ctx, q, func(ctx context.Context) (map[string]any, error) {
		return m.coll.FindOneAndUpdate(ctx, filter, set)
	})
}

// FindOneAndReplace replaces the first match and returns the new document.
func (m *Model) FindOneAndReplace(ctx context.Context, filter Filter, doc map[string]any, opts ...Option) (map[string]any, error) {
	q := m.newQuery(OpFindOneAndReplace, filter, doc, opts)
	return m.single(ctx, q, func(ctx context.Context) (map[string]any, error) {
		return m.coll.FindOneAndReplace(ctx, filter, doc)
	})
}

// FindOneAndDelete removes the first match and returns it.
func (m *Model) FindOneAndDelete(ctx context.Context, filter Filter, opts ...Option) (map[string]any, error) {
	q := m.newQuery(OpFindOneAndDelete, filter, nil, opts)
	return m.single(ctx, q, func(ctx context.Context) (map[string]any, error) {
		return m.coll.FindOneAndDelete(ctx, filter)
	})
}

func (m *Model) newQuery(op Op, filter Filter, update map[string]any, opts []Option) *Query {
	q := &Query{Op: op, Collection: m.name, Filter: filter, Update: update}
	for _, o := range opts {
		o(q)
	}
	return q
}

func (m *Model) single(ctx context.Context, q *Query, fetch func(context.Context) (map[string]any, error)) (map[string]any, error) {
	res, err := m.exec(ctx, q, func(ctx context.Context) (any, error) {
		doc, err := fetch(ctx)
		if err != nil || doc == nil {
			return nil, err
		}
		if err := m.populate(ctx, q, []map[string]any{doc}); err != nil {
			return nil, err
		}
		return doc, nil
	})
	if err != nil {
		return nil, err
	}
	return fromDoc(q.Op, res)
}

// exec fetches, runs the hooks of q.Op and records the query in a span.
func (m *Model) exec(ctx context.Context, q *Query, fetch func(context.Context) (any, error)) (any, error) {
	ctx, span := m.startSpan(ctx, q)
	defer span.End()

	start := time.Now()
	res, err := fetch(ctx)
	if err == nil {
		res, err = m.hooks.Run(ctx, q, res)
	}
	if err := m.finish(ctx, span, q, start, res, err); err != nil {
		return nil, err
	}
	return res, nil
}

func (m *Model) startSpan(ctx context.Context, q *Query) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, "leanvirtuals."+string(q.Op),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.collection", m.name),
			attribute.Bool("leanvirtuals.lean", q.IsLean()),
		))
}

func (m *Model) finish(ctx context.Context, span trace.Span, q *Query, start time.Time, res any, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		m.logger.DebugContext(ctx, "query failed", "op", q.Op, "error", err, "duration", time.Since(start))
		return fmt.Errorf("%s: %s: %w", m.name, q.Op, err)
	}
	n := resultCount(res)
	span.SetAttributes(attribute.Int("leanvirtuals.results", n))
	m.logger.DebugContext(ctx, "query",
		"op", q.Op,
		"lean", q.IsLean(),
		"virtuals", selectionText(q),
		"results", n,
		"duration", time.Since(start),
	)
	return nil
}

func selectionText(q *Query) string {
	if !q.IsLean() {
		return "-"
	}
	return q.Lean.Virtuals.String()
}

func resultCount(res any) int {
	switch r := res.(type) {
	case nil:
		return 0
	case []any:
		return len(r)
	case map[string]any:
		if r == nil {
			return 0
		}
		return 1
	default:
		return 1
	}
}

func toArray(docs []map[string]any) []any {
	out := make([]any, len(docs))
	for i, d := range docs {
		out[i] = d
	}
	return out
}

func fromArray(op Op, res any) ([]map[string]any, error) {
	if res == nil {
		return nil, nil
	}
	arr, ok := res.([]any)
	if !ok {
		return nil, fmt.Errorf("%s: hooks returned %T, want []any", op, res)
	}
	out := make([]map[string]any, 0, len(arr))
	for i, el := range arr {
		d, ok := el.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s: hooks returned %T at index %d, want a document", op, el, i)
		}
		out = append(out, d)
	}
	return out, nil
}

func fromDoc(op Op, res any) (map[string]any, error) {
	if res == nil {
		return nil, nil
	}
	d, ok := res.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s: hooks returned %T, want a document", op, res)
	}
	return d, nil
}
