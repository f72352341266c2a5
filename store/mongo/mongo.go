// Package mongo adapts a MongoDB collection to query.Collection. Documents
// come back as lean trees: BSON documents become map[string]any, arrays
// []any, and ObjectIDs their hex string.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/reoring/leanvirtuals/internal/docquery"
	"github.com/reoring/leanvirtuals/query"
)

// Connect opens a client for uri and verifies it with a ping.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo: ping: %w", err)
	}
	return client, nil
}

// Collection wraps a driver collection.
type Collection struct {
	coll *mongo.Collection
}

var _ query.Collection = (*Collection)(nil)

// New wraps coll.
func New(coll *mongo.Collection) *Collection { return &Collection{coll: coll} }

// Open returns the collection name of database db.
func Open(client *mongo.Client, db, name string) *Collection {
	return New(client.Database(db).Collection(name))
}

// toFilter converts a dotted-path filter. A hex string _id also matches the
// equivalent ObjectID.
func toFilter(filter query.Filter) bson.M {
	out := bson.M{}
	for k, v := range filter {
		if k == query.IDField {
			if s, ok := v.(string); ok {
				if oid, err := bson.ObjectIDFromHex(s); err == nil {
					out[k] = bson.M{"$in": bson.A{s, oid}}
					continue
				}
			}
		}
		out[k] = v
	}
	return out
}

func findOptions(opt query.FindOptions) *options.FindOptionsBuilder {
	fo := options.Find()
	if len(opt.Sort) > 0 {
		sort := make(bson.D, 0, len(opt.Sort))
		for _, s := range opt.Sort {
			dir := 1
			if s.Desc {
				dir = -1
			}
			sort = append(sort, bson.E{Key: s.Path, Value: dir})
		}
		fo.SetSort(sort)
	}
	if opt.Limit > 0 {
		fo.SetLimit(int64(opt.Limit))
	}
	return fo
}

func (c *Collection) Insert(ctx context.Context, docs ...map[string]any) error {
	batch := make([]any, 0, len(docs))
	for _, d := range docs {
		if d == nil {
			continue
		}
		docquery.EnsureID(d)
		batch = append(batch, d)
	}
	if len(batch) == 0 {
		return nil
	}
	if _, err := c.coll.InsertMany(ctx, batch); err != nil {
		return fmt.Errorf("mongo: insert: %w", err)
	}
	return nil
}

func (c *Collection) Find(ctx context.Context, filter query.Filter, opt query.FindOptions) ([]map[string]any, error) {
	cur, err := c.coll.Find(ctx, toFilter(filter), findOptions(opt))
	if err != nil {
		return nil, fmt.Errorf("mongo: find: %w", err)
	}
	var raw []bson.M
	if err := cur.All(ctx, &raw); err != nil {
		return nil, fmt.Errorf("mongo: find results: %w", err)
	}
	out := make([]map[string]any, 0, len(raw))
	for _, m := range raw {
		out = append(out, Normalize(m).(map[string]any))
	}
	return out, nil
}

func (c *Collection) FindIn(ctx context.Context, path string, values []any) ([]map[string]any, error) {
	in := bson.A{}
	for _, v := range values {
		in = append(in, v)
		if s, ok := v.(string); ok && path == query.IDField {
			if oid, err := bson.ObjectIDFromHex(s); err == nil {
				in = append(in, oid)
			}
		}
	}
	cur, err := c.coll.Find(ctx, bson.M{path: bson.M{"$in": in}})
	if err != nil {
		return nil, fmt.Errorf("mongo: find: %w", err)
	}
	var raw []bson.M
	if err := cur.All(ctx, &raw); err != nil {
		return nil, fmt.Errorf("mongo: find results: %w", err)
	}
	out := make([]map[string]any, 0, len(raw))
	for _, m := range raw {
		out = append(out, Normalize(m).(map[string]any))
	}
	return out, nil
}

func single(res *mongo.SingleResult, op string) (map[string]any, error) {
	var m bson.M
	if err := res.Decode(&m); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("mongo: %s: %w", op, err)
	}
	return Normalize(m).(map[string]any), nil
}

func (c *Collection) FindOne(ctx context.Context, filter query.Filter) (map[string]any, error) {
	return single(c.coll.FindOne(ctx, toFilter(filter)), "findOne")
}

func (c *Collection) FindOneAndUpdate(ctx context.Context, filter query.Filter, set map[string]any) (map[string]any, error) {
	if _, ok := set[query.IDField]; ok {
		return nil, fmt.Errorf("mongo: cannot update %s", query.IDField)
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	return single(c.coll.FindOneAndUpdate(ctx, toFilter(filter), bson.M{"$set": set}, opts), "findOneAndUpdate")
}

func (c *Collection) FindOneAndReplace(ctx context.Context, filter query.Filter, doc map[string]any) (map[string]any, error) {
	repl := make(map[string]any, len(doc))
	for k, v := range doc {
		if k != query.IDField {
			repl[k] = v
		}
	}
	opts := options.FindOneAndReplace().SetReturnDocument(options.After)
	return single(c.coll.FindOneAndReplace(ctx, toFilter(filter), repl, opts), "findOneAndReplace")
}

func (c *Collection) FindOneAndDelete(ctx context.Context, filter query.Filter) (map[string]any, error) {
	return single(c.coll.FindOneAndDelete(ctx, toFilter(filter)), "findOneAndDelete")
}

func (c *Collection) Stream(ctx context.Context, filter query.Filter, opt query.FindOptions) (query.Iterator, error) {
	cur, err := c.coll.Find(ctx, toFilter(filter), findOptions(opt))
	if err != nil {
		return nil, fmt.Errorf("mongo: find: %w", err)
	}
	return &cursorIterator{cur: cur}, nil
}

type cursorIterator struct {
	cur *mongo.Cursor
}

func (it *cursorIterator) Next(ctx context.Context) (map[string]any, error) {
	if !it.cur.Next(ctx) {
		if err := it.cur.Err(); err != nil {
			return nil, fmt.Errorf("mongo: cursor: %w", err)
		}
		return nil, io.EOF
	}
	var m bson.M
	if err := it.cur.Decode(&m); err != nil {
		return nil, fmt.Errorf("mongo: decode: %w", err)
	}
	return Normalize(m).(map[string]any), nil
}

func (it *cursorIterator) Close() error { return it.cur.Close(context.Background()) }

// Normalize converts decoded BSON values into a lean tree.
func Normalize(v any) any {
	switch t := v.(type) {
	case bson.M:
		return normalizeMap(t)
	case map[string]any:
		return normalizeMap(t)
	case bson.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = Normalize(e.Value)
		}
		return out
	case bson.A:
		return normalizeSlice(t)
	case []any:
		return normalizeSlice(t)
	case bson.ObjectID:
		return t.Hex()
	case bson.DateTime:
		return t.Time().UTC().Format(time.RFC3339Nano)
	case bson.Decimal128:
		return t.String()
	case int32:
		return int64(t)
	default:
		return v
	}
}

func normalizeMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = Normalize(v)
	}
	return out
}

func normalizeSlice(a []any) []any {
	out := make([]any, len(a))
	for i, v := range a {
		out[i] = Normalize(v)
	}
	return out
}
