package mongo_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/reoring/leanvirtuals/query"
	lvmongo "github.com/reoring/leanvirtuals/store/mongo"
)

func TestNormalize(t *testing.T) {
	oid := bson.NewObjectID()
	at := time.Date(2024, 5, 4, 12, 0, 0, 0, time.UTC)
	in := bson.M{
		"_id":   oid,
		"n":     int32(7),
		"when":  bson.NewDateTimeFromTime(at),
		"inner": bson.D{{Key: "a", Value: bson.A{bson.D{{Key: "b", Value: "c"}}, nil}}},
	}

	got := lvmongo.Normalize(in)

	assert.Equal(t, map[string]any{
		"_id":   oid.Hex(),
		"n":     int64(7),
		"when":  "2024-05-04T12:00:00Z",
		"inner": map[string]any{"a": []any{map[string]any{"b": "c"}, nil}},
	}, got)
}

func TestCollection(t *testing.T) {
	uri := os.Getenv("LEANVIRTUALS_MONGO_URI")
	if uri == "" {
		t.Skip("LEANVIRTUALS_MONGO_URI not set")
	}
	ctx := context.Background()
	client, err := lvmongo.Connect(ctx, uri)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	name := fmt.Sprintf("t_%d", time.Now().UnixNano())
	c := lvmongo.Open(client, "leanvirtuals_test", name)
	t.Cleanup(func() { _ = client.Database("leanvirtuals_test").Collection(name).Drop(context.Background()) })

	require.NoError(t, c.Insert(ctx,
		map[string]any{"_id": "1", "name": "Luke", "rank": 2, "tags": []any{"jedi"}},
		map[string]any{"_id": "2", "name": "Leia", "rank": 1},
	))

	docs, err := c.Find(ctx, nil, query.FindOptions{Sort: []query.SortField{{Path: "rank"}}, Limit: 5})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "Leia", docs[0]["name"])
	assert.Equal(t, []any{"jedi"}, docs[1]["tags"])

	in, err := c.FindIn(ctx, "tags", []any{"sith", "jedi"})
	require.NoError(t, err)
	require.Len(t, in, 1)
	assert.Equal(t, "Luke", in[0]["name"])

	up, err := c.FindOneAndUpdate(ctx, query.Filter{"_id": "1"}, map[string]any{"meta.title": "Jedi"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"title": "Jedi"}, up["meta"])

	rep, err := c.FindOneAndReplace(ctx, query.Filter{"_id": "2"}, map[string]any{"name": "Organa"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"_id": "2", "name": "Organa"}, rep)

	del, err := c.FindOneAndDelete(ctx, query.Filter{"_id": "1"})
	require.NoError(t, err)
	assert.Equal(t, "Luke", del["name"])

	none, err := c.FindOne(ctx, query.Filter{"_id": "1"})
	require.NoError(t, err)
	assert.Nil(t, none)
}
