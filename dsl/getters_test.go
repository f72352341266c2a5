package dsl_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lv "github.com/reoring/leanvirtuals"
	g "github.com/reoring/leanvirtuals/dsl"
)

func run(t *testing.T, getter lv.Getter, value any, doc map[string]any) any {
	t.Helper()
	out, err := getter(context.Background(), value, doc)
	require.NoError(t, err)
	return out
}

func TestGetters(t *testing.T) {
	doc := map[string]any{
		"name":  "Luke",
		"last":  "Skywalker",
		"tags":  []any{"a", "b"},
		"items": []any{map[string]any{"n": json.Number("1.5")}, map[string]any{"n": 2}, map[string]any{}},
	}

	assert.Equal(t, "Luke", run(t, g.Path("name"), nil, doc))
	assert.Nil(t, run(t, g.Path("nope"), nil, doc))
	assert.Equal(t, "LUKE", run(t, g.Upper(), "Luke", doc))
	assert.Equal(t, "luke", run(t, g.Lower(), "Luke", doc))
	assert.Equal(t, 7, run(t, g.Upper(), 7, doc))
	assert.Equal(t, "Luke Skywalker", run(t, g.Concat(" ", "name", "missing", "last"), nil, doc))
	assert.Equal(t, 2, run(t, g.Count("tags"), nil, doc))
	assert.Equal(t, 0, run(t, g.Count("nope"), nil, doc))
	assert.Equal(t, 3.5, run(t, g.Sum("items.n"), nil, doc))
	assert.Equal(t, "x", run(t, g.Const("x"), nil, doc))
}

func TestSum_RejectsNonNumbers(t *testing.T) {
	_, err := g.Sum("v")(context.Background(), nil, map[string]any{"v": []any{true}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sum v")
}

func TestParentPath_OutsideAttach(t *testing.T) {
	assert.Nil(t, run(t, g.ParentPath("name"), nil, map[string]any{"name": "x"}))
}

func TestParentPath_InsideAttach(t *testing.T) {
	child := g.Object().Virtual("house", g.ParentPath("meta.house")).MustBuild()
	s := g.Object().Child("kid", child).MustBuild()
	doc := map[string]any{"meta": map[string]any{"house": "Stark"}, "kid": map[string]any{}}

	_, err := lv.Attach(context.Background(), s, doc, lv.All())
	require.NoError(t, err)

	assert.Equal(t, "Stark", doc["kid"].(map[string]any)["house"])
}
