// Package postgres stores collections as JSONB rows in PostgreSQL.
//
// All collections share one table:
//
//	(collection text, id text, seq bigserial, doc jsonb, primary key (collection, id))
//
// Filters translate to JSONB containment (doc @> filter), so a filter on an
// array field matches only the whole array, unlike the in-memory store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/reoring/leanvirtuals/internal/docpath"
	"github.com/reoring/leanvirtuals/internal/docquery"
	"github.com/reoring/leanvirtuals/query"
	"github.com/reoring/leanvirtuals/source"
)

// DefaultTable is used when no table name is configured.
const DefaultTable = "lean_documents"

// Connect opens a pool for dsn with conservative settings.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	cfg.MaxConns = 5
	cfg.MinConns = 1
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// Collection is a query.Collection over one collection name of the table.
type Collection struct {
	pool  *pgxpool.Pool
	table string // sanitized identifier
	name  string
}

var _ query.Collection = (*Collection)(nil)

// New binds the collection name to table (DefaultTable when empty).
func New(pool *pgxpool.Pool, table, name string) (*Collection, error) {
	if pool == nil {
		return nil, errors.New("postgres: nil pool")
	}
	if name == "" {
		return nil, errors.New("postgres: empty collection name")
	}
	if table == "" {
		table = DefaultTable
	}
	return &Collection{pool: pool, table: pgx.Identifier{table}.Sanitize(), name: name}, nil
}

// EnsureSchema creates the table and its containment index when missing.
func (c *Collection) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	collection text NOT NULL,
	id text NOT NULL,
	seq bigserial NOT NULL,
	doc jsonb NOT NULL,
	PRIMARY KEY (collection, id)
)`, c.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING gin (doc jsonb_path_ops)`,
			pgx.Identifier{strings.Trim(c.table, `"`) + "_doc_idx"}.Sanitize(), c.table),
	}
	for _, s := range stmts {
		if _, err := c.pool.Exec(ctx, s); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}

func filterJSON(filter query.Filter) (string, error) {
	b, err := source.Marshal(docpath.Expand(filter))
	if err != nil {
		return "", fmt.Errorf("failed to encode filter: %w", err)
	}
	return string(b), nil
}

func decodeDoc(raw []byte) (map[string]any, error) {
	d, err := source.DecodeDocument(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return d, nil
}

func (c *Collection) Insert(ctx context.Context, docs ...map[string]any) error {
	batch := &pgx.Batch{}
	sql := fmt.Sprintf(`INSERT INTO %s (collection, id, doc) VALUES ($1, $2, $3::jsonb)`, c.table)
	for _, d := range docs {
		if d == nil {
			continue
		}
		id := docquery.EnsureID(d)
		b, err := source.Marshal(d)
		if err != nil {
			return fmt.Errorf("failed to encode document %s: %w", id, err)
		}
		batch.Queue(sql, c.name, id, string(b))
	}
	if batch.Len() == 0 {
		return nil
	}
	if err := c.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert documents: %w", err)
	}
	return nil
}

// selectSQL builds the read statement; args start with collection and filter.
func (c *Collection) selectSQL(opt query.FindOptions, args []any) (string, []any) {
	var b strings.Builder
	fmt.Fprintf(&b, `SELECT doc FROM %s WHERE collection = $1 AND doc @> $2::jsonb ORDER BY `, c.table)
	for _, s := range opt.Sort {
		args = append(args, docpath.Split(s.Path))
		dir := "ASC NULLS FIRST"
		if s.Desc {
			dir = "DESC NULLS LAST"
		}
		fmt.Fprintf(&b, "doc #> $%d %s, ", len(args), dir)
	}
	b.WriteString("seq")
	if opt.Limit > 0 {
		args = append(args, opt.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	return b.String(), args
}

func (c *Collection) Find(ctx context.Context, filter query.Filter, opt query.FindOptions) ([]map[string]any, error) {
	it, err := c.Stream(ctx, filter, opt)
	if err != nil {
		return nil, err
	}
	defer it.Close()
	out := []map[string]any{}
	for {
		d, err := it.Next(ctx)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
}

// FindIn matches by containment against one single-path filter per value, so
// it shares the gin index with Find.
func (c *Collection) FindIn(ctx context.Context, path string, values []any) ([]map[string]any, error) {
	out := []map[string]any{}
	if len(values) == 0 {
		return out, nil
	}
	filters := make([]string, len(values))
	for i, v := range values {
		f, err := filterJSON(query.Filter{path: v})
		if err != nil {
			return nil, err
		}
		filters[i] = f
	}
	rows, err := c.pool.Query(ctx,
		fmt.Sprintf(`SELECT doc FROM %s WHERE collection = $1 AND doc @> ANY($2::jsonb[]) ORDER BY seq`, c.table),
		c.name, filters,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	it := &rowIterator{rows: rows}
	defer it.Close()
	for {
		d, err := it.Next(ctx)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
}

func (c *Collection) FindOne(ctx context.Context, filter query.Filter) (map[string]any, error) {
	docs, err := c.Find(ctx, filter, query.FindOptions{Limit: 1})
	if err != nil || len(docs) == 0 {
		return nil, err
	}
	return docs[0], nil
}

// lockFirst selects the first match for update inside tx.
func (c *Collection) lockFirst(ctx context.Context, tx pgx.Tx, filter query.Filter) (string, map[string]any, error) {
	f, err := filterJSON(filter)
	if err != nil {
		return "", nil, err
	}
	var (
		id  string
		raw []byte
	)
	err = tx.QueryRow(ctx,
		fmt.Sprintf(`SELECT id, doc FROM %s WHERE collection = $1 AND doc @> $2::jsonb ORDER BY seq LIMIT 1 FOR UPDATE`, c.table),
		c.name, f,
	).Scan(&id, &raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil, nil
	}
	if err != nil {
		return "", nil, fmt.Errorf("failed to select document: %w", err)
	}
	d, err := decodeDoc(raw)
	return id, d, err
}

func (c *Collection) rewrite(ctx context.Context, filter query.Filter, fn func(map[string]any) (map[string]any, error)) (map[string]any, error) {
	var out map[string]any
	err := pgx.BeginFunc(ctx, c.pool, func(tx pgx.Tx) error {
		id, doc, err := c.lockFirst(ctx, tx, filter)
		if err != nil || doc == nil {
			return err
		}
		next, err := fn(doc)
		if err != nil {
			return err
		}
		b, err := source.Marshal(next)
		if err != nil {
			return fmt.Errorf("failed to encode document %s: %w", id, err)
		}
		if _, err := tx.Exec(ctx,
			fmt.Sprintf(`UPDATE %s SET doc = $3::jsonb WHERE collection = $1 AND id = $2`, c.table),
			c.name, id, string(b),
		); err != nil {
			return fmt.Errorf("failed to update document %s: %w", id, err)
		}
		out = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Collection) FindOneAndUpdate(ctx context.Context, filter query.Filter, set map[string]any) (map[string]any, error) {
	return c.rewrite(ctx, filter, func(d map[string]any) (map[string]any, error) {
		if err := docquery.Set(d, set); err != nil {
			return nil, err
		}
		return d, nil
	})
}

func (c *Collection) FindOneAndReplace(ctx context.Context, filter query.Filter, doc map[string]any) (map[string]any, error) {
	return c.rewrite(ctx, filter, func(d map[string]any) (map[string]any, error) {
		next := docpath.CloneDoc(doc)
		if next == nil {
			next = map[string]any{}
		}
		next[query.IDField] = d[query.IDField]
		return next, nil
	})
}

func (c *Collection) FindOneAndDelete(ctx context.Context, filter query.Filter) (map[string]any, error) {
	f, err := filterJSON(filter)
	if err != nil {
		return nil, err
	}
	var raw []byte
	err = c.pool.QueryRow(ctx, fmt.Sprintf(`DELETE FROM %[1]s WHERE collection = $1 AND id = (
	SELECT id FROM %[1]s WHERE collection = $1 AND doc @> $2::jsonb ORDER BY seq LIMIT 1 FOR UPDATE
) RETURNING doc`, c.table), c.name, f).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to delete document: %w", err)
	}
	return decodeDoc(raw)
}

func (c *Collection) Stream(ctx context.Context, filter query.Filter, opt query.FindOptions) (query.Iterator, error) {
	f, err := filterJSON(filter)
	if err != nil {
		return nil, err
	}
	sql, args := c.selectSQL(opt, []any{c.name, f})
	rows, err := c.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	return &rowIterator{rows: rows}, nil
}

type rowIterator struct {
	rows pgx.Rows
}

func (it *rowIterator) Next(ctx context.Context) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !it.rows.Next() {
		if err := it.rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to read documents: %w", err)
		}
		return nil, io.EOF
	}
	var raw []byte
	if err := it.rows.Scan(&raw); err != nil {
		return nil, fmt.Errorf("failed to scan document: %w", err)
	}
	return decodeDoc(raw)
}

func (it *rowIterator) Close() error {
	it.rows.Close()
	return it.rows.Err()
}
