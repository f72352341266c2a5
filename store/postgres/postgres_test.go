package postgres_test

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reoring/leanvirtuals/query"
	"github.com/reoring/leanvirtuals/store/postgres"
)

// openCollection connects to LEANVIRTUALS_PG_DSN and returns a collection
// with a unique name, skipping the test when no database is configured.
func openCollection(t *testing.T) *postgres.Collection {
	t.Helper()
	dsn := os.Getenv("LEANVIRTUALS_PG_DSN")
	if dsn == "" {
		t.Skip("LEANVIRTUALS_PG_DSN not set")
	}
	ctx := context.Background()
	pool, err := postgres.Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	name := fmt.Sprintf("t_%d", time.Now().UnixNano())
	c, err := postgres.New(pool, "lean_documents_test", name)
	require.NoError(t, err)
	require.NoError(t, c.EnsureSchema(ctx))
	return c
}

func TestNew_Validation(t *testing.T) {
	_, err := postgres.New(nil, "", "x")
	assert.Error(t, err)
}

func TestCollection(t *testing.T) {
	ctx := context.Background()
	c := openCollection(t)

	require.NoError(t, c.Insert(ctx,
		map[string]any{"_id": "1", "name": "Luke", "rank": 2, "home": map[string]any{"planet": "Tatooine"}},
		map[string]any{"_id": "2", "name": "Leia", "rank": 1},
	))

	docs, err := c.Find(ctx, nil, query.FindOptions{Sort: []query.SortField{{Path: "rank"}}})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "Leia", docs[0]["name"])
	assert.Equal(t, json.Number("1"), docs[0]["rank"])

	one, err := c.FindOne(ctx, query.Filter{"home.planet": "Tatooine"})
	require.NoError(t, err)
	assert.Equal(t, "Luke", one["name"])

	in, err := c.FindIn(ctx, "_id", []any{"2", "1", "9"})
	require.NoError(t, err)
	require.Len(t, in, 2)
	assert.Equal(t, "Luke", in[0]["name"])

	up, err := c.FindOneAndUpdate(ctx, query.Filter{"_id": "1"}, map[string]any{"title": "Jedi"})
	require.NoError(t, err)
	assert.Equal(t, "Jedi", up["title"])

	rep, err := c.FindOneAndReplace(ctx, query.Filter{"_id": "2"}, map[string]any{"name": "Organa"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"_id": "2", "name": "Organa"}, rep)

	del, err := c.FindOneAndDelete(ctx, query.Filter{"_id": "1"})
	require.NoError(t, err)
	assert.Equal(t, "Jedi", del["title"])

	none, err := c.FindOne(ctx, query.Filter{"_id": "1"})
	require.NoError(t, err)
	assert.Nil(t, none)
}
