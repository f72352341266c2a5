package memory_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reoring/leanvirtuals/query"
	"github.com/reoring/leanvirtuals/store/memory"
)

func seed() *memory.Collection {
	return memory.New(
		map[string]any{"_id": "1", "name": "Luke", "side": "light", "rank": 2},
		map[string]any{"_id": "2", "name": "Vader", "side": "dark", "rank": 1},
		map[string]any{"_id": "3", "name": "Leia", "side": "light", "rank": 3},
	)
}

func TestFind(t *testing.T) {
	ctx := context.Background()
	c := seed()

	docs, err := c.Find(ctx, query.Filter{"side": "light"}, query.FindOptions{
		Sort:  []query.SortField{{Path: "rank", Desc: true}},
		Limit: 1,
	})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Leia", docs[0]["name"])

	docs[0]["name"] = "mutated"
	again, err := c.FindOne(ctx, query.Filter{"_id": "3"})
	require.NoError(t, err)
	assert.Equal(t, "Leia", again["name"])
}

func TestFindIn(t *testing.T) {
	ctx := context.Background()
	c := seed()

	docs, err := c.FindIn(ctx, "_id", []any{"3", "1", "9"})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "Luke", docs[0]["name"])
	assert.Equal(t, "Leia", docs[1]["name"])

	docs[0]["name"] = "mutated"
	again, err := c.FindIn(ctx, "rank", []any{2})
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, "Luke", again[0]["name"])

	none, err := c.FindIn(ctx, "_id", nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestFindOne_NoMatch(t *testing.T) {
	doc, err := seed().FindOne(context.Background(), query.Filter{"name": "Yoda"})
	assert.NoError(t, err)
	assert.Nil(t, doc)
}

func TestMutations(t *testing.T) {
	ctx := context.Background()
	c := seed()

	updated, err := c.FindOneAndUpdate(ctx, query.Filter{"name": "Luke"}, map[string]any{"side": "grey", "meta.x": 1})
	require.NoError(t, err)
	assert.Equal(t, "grey", updated["side"])
	assert.Equal(t, map[string]any{"x": 1}, updated["meta"])

	replaced, err := c.FindOneAndReplace(ctx, query.Filter{"_id": "2"}, map[string]any{"name": "Anakin"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"_id": "2", "name": "Anakin"}, replaced)

	deleted, err := c.FindOneAndDelete(ctx, query.Filter{"_id": "3"})
	require.NoError(t, err)
	assert.Equal(t, "Leia", deleted["name"])
	assert.Equal(t, 2, c.Len())

	none, err := c.FindOneAndDelete(ctx, query.Filter{"_id": "3"})
	assert.NoError(t, err)
	assert.Nil(t, none)
}

func TestInsertAssignsID(t *testing.T) {
	c := memory.New()
	doc := map[string]any{"name": "Rey"}
	require.NoError(t, c.Insert(context.Background(), doc))

	got, err := c.FindOne(context.Background(), query.Filter{"name": "Rey"})
	require.NoError(t, err)
	assert.NotEmpty(t, got["_id"])
	assert.Equal(t, doc["_id"], got["_id"])
}

func TestStream(t *testing.T) {
	ctx := context.Background()
	it, err := seed().Stream(ctx, nil, query.FindOptions{Sort: []query.SortField{{Path: "rank"}}})
	require.NoError(t, err)
	defer it.Close()

	var names []string
	for {
		d, err := it.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		names = append(names, d["name"].(string))
	}
	assert.Equal(t, []string{"Vader", "Luke", "Leia"}, names)
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := seed().Find(ctx, nil, query.FindOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	c := memory.New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Insert(ctx, map[string]any{"n": 1})
			_, _ = c.Find(ctx, query.Filter{"n": 1}, query.FindOptions{})
		}()
	}
	wg.Wait()
	assert.Equal(t, 8, c.Len())
}
