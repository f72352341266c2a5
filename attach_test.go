package leanvirtuals_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lv "github.com/reoring/leanvirtuals"
	g "github.com/reoring/leanvirtuals/dsl"
)

func lowerName(_ context.Context, _ any, doc map[string]any) (any, error) {
	return strings.ToLower(fmt.Sprint(doc["name"])), nil
}

func upperName(_ context.Context, _ any, doc map[string]any) (any, error) {
	return strings.ToUpper(fmt.Sprint(doc["name"])), nil
}

func attach(t *testing.T, s lv.Schema, res any, sel lv.Selection) any {
	t.Helper()
	out, err := lv.Attach(context.Background(), s, res, sel)
	require.NoError(t, err)
	return out
}

func TestAttach_TopLevel(t *testing.T) {
	s := g.Object().Virtual("lowercase", lowerName).MustBuild()
	doc := map[string]any{"name": "Val"}

	out := attach(t, s, doc, lv.All())

	if diff := cmp.Diff(map[string]any{"name": "Val", "lowercase": "val"}, out); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestAttach_OnlySelected(t *testing.T) {
	s := g.Object().
		Virtual("lowercase", lowerName).
		Virtual("uppercase", upperName).
		MustBuild()
	doc := map[string]any{"name": "Val"}

	attach(t, s, doc, lv.Only("uppercase"))

	assert.Equal(t, "VAL", doc["uppercase"])
	assert.NotContains(t, doc, "lowercase")
}

func TestAttach_NestedVirtualPath(t *testing.T) {
	s := g.Object().
		Virtual("nested.upperCaseTest", g.Path("nested.test"), g.Upper()).
		MustBuild()
	doc := map[string]any{"nested": map[string]any{"test": "Foo"}}

	attach(t, s, doc, lv.Only("nested.upperCaseTest"))

	want := map[string]any{"nested": map[string]any{"test": "Foo", "upperCaseTest": "FOO"}}
	if diff := cmp.Diff(want, doc); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestAttach_NestedVirtualCreatesIntermediate(t *testing.T) {
	s := g.Object().Virtual("meta.answer", g.Const(42)).MustBuild()
	doc := map[string]any{}

	attach(t, s, doc, lv.All())

	assert.Equal(t, map[string]any{"meta": map[string]any{"answer": 42}}, doc)
}

func TestAttach_NestedVirtualSkipsNonObjectIntermediate(t *testing.T) {
	s := g.Object().Virtual("meta.answer", g.Const(42)).MustBuild()
	doc := map[string]any{"meta": "plain"}

	attach(t, s, doc, lv.All())

	assert.Equal(t, map[string]any{"meta": "plain"}, doc)
}

func TestAttach_ChildReadsParent(t *testing.T) {
	child := g.Object().
		Virtual("fullName", g.Concat(" ", "firstName", "$parent.lastName")).
		MustBuild()
	s := g.Object().Child("child", child).Child("children", child).MustBuild()
	doc := map[string]any{
		"firstName": "Anakin",
		"lastName":  "Skywalker",
		"child":     map[string]any{"firstName": "Luke"},
		"children":  []any{map[string]any{"firstName": "Luke"}, nil, 42},
	}

	attach(t, s, doc, lv.All())

	assert.Equal(t, "Luke Skywalker", doc["child"].(map[string]any)["fullName"])
	children := doc["children"].([]any)
	assert.Equal(t, "Luke Skywalker", children[0].(map[string]any)["fullName"])
	assert.Nil(t, children[1])
	assert.Equal(t, 42, children[2])
}

func TestAttach_ArrayOfDocumentsKeepsOwners(t *testing.T) {
	child := g.Object().
		Virtual("fullName", g.Concat(" ", "firstName", "$parent.lastName")).
		MustBuild()
	s := g.Object().Child("child", child).MustBuild()
	docs := []any{
		map[string]any{"lastName": "Solo", "child": map[string]any{"firstName": "Han"}},
		map[string]any{"lastName": "Skywalker", "child": map[string]any{"firstName": "Luke"}},
	}

	attach(t, s, docs, lv.All())

	assert.Equal(t, "Han Solo", docs[0].(map[string]any)["child"].(map[string]any)["fullName"])
	assert.Equal(t, "Luke Skywalker", docs[1].(map[string]any)["child"].(map[string]any)["fullName"])
}

func TestAttach_EmptyReferenceMany(t *testing.T) {
	s := g.Object().
		Virtual("children", g.Path("populated.children")).Ref(false).
		Virtual("owner", g.Path("populated.owner")).Ref(true).
		MustBuild()
	doc := map[string]any{"name": "Darth Vader"}

	attach(t, s, doc, lv.All())

	assert.Equal(t, []any{}, doc["children"])
	require.Contains(t, doc, "owner")
	assert.Nil(t, doc["owner"])
}

func TestAttach_EmptyReferenceTypedNil(t *testing.T) {
	nilSlice := func(context.Context, any, map[string]any) (any, error) {
		var out []any
		return out, nil
	}
	nilDocs := func(context.Context, any, map[string]any) (any, error) {
		var out []map[string]any
		return out, nil
	}
	s := g.Object().
		Virtual("items", nilSlice).Ref(false).
		Virtual("docs", nilDocs).Ref(false).
		Virtual("first", nilSlice).Ref(true).
		MustBuild()
	doc := map[string]any{}

	attach(t, s, doc, lv.All())

	assert.Equal(t, []any{}, doc["items"])
	assert.Equal(t, []any{}, doc["docs"])
	require.Contains(t, doc, "first")
	assert.Nil(t, doc["first"])
}

func TestAttach_VirtualWithoutGettersKeepsStoredValue(t *testing.T) {
	s := g.Object().Virtual("populated").Ref(false).Virtual("plain").MustBuild()
	doc := map[string]any{"populated": []any{map[string]any{"name": "x"}}}

	attach(t, s, doc, lv.All())

	assert.Equal(t, []any{map[string]any{"name": "x"}}, doc["populated"])
	require.Contains(t, doc, "plain")
	assert.Nil(t, doc["plain"])
}

func TestAttach_ParentSumsChildVirtuals(t *testing.T) {
	double := func(_ context.Context, _ any, doc map[string]any) (any, error) {
		return doc["number"].(int) * 2, nil
	}
	bar := g.Object().Virtual("doubleNumber", double).MustBuild()
	foo := g.Object().
		Virtual("barDoubleTotal", g.Sum("bars.doubleNumber")).
		Child("bars", bar).
		MustBuild()
	doc := map[string]any{"bars": []any{map[string]any{"number": 1}, map[string]any{"number": 2}}}

	attach(t, foo, doc, lv.All())

	assert.Equal(t, float64(6), doc["barDoubleTotal"])
}

func TestAttach_RecursiveSchema(t *testing.T) {
	var comment lv.Schema
	comment = g.Object().
		Virtual("answer", g.Const(42)).
		Child("comments", g.Lazy(func() lv.Schema { return comment })).
		MustBuild()
	post := g.Object().Child("comments", comment).MustBuild()
	doc := map[string]any{
		"title": "Test",
		"comments": []any{map[string]any{
			"content":  "It works!",
			"comments": []any{map[string]any{"content": "reply"}},
		}},
	}

	attach(t, post, doc, lv.All())

	top := doc["comments"].([]any)[0].(map[string]any)
	assert.Equal(t, 42, top["answer"])
	assert.Equal(t, 42, top["comments"].([]any)[0].(map[string]any)["answer"])
	assert.NotContains(t, doc, "answer")
}

func TestAttach_DoublyNestedArrays(t *testing.T) {
	sub := g.Object().Virtual("lowercase", g.Path("name"), g.Lower()).MustBuild()
	arr := g.Object().Child("subArray", sub).MustBuild()
	s := g.Object().Child("array", arr).MustBuild()
	doc := map[string]any{
		"title": "test",
		"array": []any{map[string]any{
			"subArray": []any{map[string]any{"name": "TEST"}},
		}},
	}

	attach(t, s, doc, lv.All())

	got := doc["array"].([]any)[0].(map[string]any)["subArray"].([]any)[0].(map[string]any)
	assert.Equal(t, "TEST", got["name"])
	assert.Equal(t, "test", got["lowercase"])
}

func TestAttach_NestedArraysInsideArrays(t *testing.T) {
	sub := g.Object().Virtual("lowercase", g.Path("name"), g.Lower()).MustBuild()
	s := g.Object().Child("grid", sub).MustBuild()
	doc := map[string]any{
		"grid": []any{
			[]any{map[string]any{"name": "A"}},
			[]any{},
			[]any{map[string]any{"name": "B"}, nil},
		},
	}

	attach(t, s, doc, lv.All())

	grid := doc["grid"].([]any)
	assert.Equal(t, "a", grid[0].([]any)[0].(map[string]any)["lowercase"])
	assert.Equal(t, "b", grid[2].([]any)[0].(map[string]any)["lowercase"])
	assert.Nil(t, grid[2].([]any)[1])
}

func TestAttach_DottedChildPath(t *testing.T) {
	item := g.Object().Virtual("label", g.Path("sku"), g.Upper()).MustBuild()
	s := g.Object().Child("order.items", item).MustBuild()
	doc := map[string]any{"order": map[string]any{"items": []any{map[string]any{"sku": "ab"}}}}

	attach(t, s, doc, lv.Only("order.items.label"))

	got := doc["order"].(map[string]any)["items"].([]any)[0].(map[string]any)
	assert.Equal(t, "AB", got["label"])
}

func TestAttach_SkipsUnknownVirtuals(t *testing.T) {
	s := g.Object().Virtual("test", g.Const(42)).MustBuild()
	doc := map[string]any{"title": "test"}

	attach(t, s, doc, lv.Only("test", "doesntexist", "missing.child"))

	assert.Equal(t, map[string]any{"title": "test", "test": 42}, doc)
}

func TestAttach_SelectionInChildAndRoot(t *testing.T) {
	childs := g.Object().
		Virtual("uppercaseOther", g.Path("other"), g.Upper()).
		Virtual("lowercaseOther", g.Path("other"), g.Lower()).
		MustBuild()
	s := g.Object().
		Virtual("lowercaseName", lowerName).
		Virtual("uppercaseName", upperName).
		Child("childs", childs).
		MustBuild()

	t.Run("root only", func(t *testing.T) {
		doc := map[string]any{"name": "Val", "childs": []any{map[string]any{"other": "val"}}}
		attach(t, s, doc, lv.Only("lowercaseName"))
		assert.Equal(t, "val", doc["lowercaseName"])
		assert.NotContains(t, doc, "uppercaseName")
		assert.Equal(t, map[string]any{"other": "val"}, doc["childs"].([]any)[0])
	})

	t.Run("child only", func(t *testing.T) {
		doc := map[string]any{"name": "Val", "childs": []any{map[string]any{"other": "val"}}}
		attach(t, s, doc, lv.Only("childs.uppercaseOther"))
		assert.NotContains(t, doc, "lowercaseName")
		assert.Equal(t, map[string]any{"other": "val", "uppercaseOther": "VAL"}, doc["childs"].([]any)[0])
	})

	t.Run("root and child", func(t *testing.T) {
		doc := map[string]any{"name": "Val", "childs": []any{map[string]any{"other": "val"}}}
		attach(t, s, doc, lv.Only("lowercaseName", "childs.uppercaseOther"))
		assert.Equal(t, "val", doc["lowercaseName"])
		assert.Equal(t, "VAL", doc["childs"].([]any)[0].(map[string]any)["uppercaseOther"])
	})
}

func TestAttach_DottedRootVirtualWithLiveChild(t *testing.T) {
	child := g.Object().Virtual("full", g.Path("name"), g.Upper()).MustBuild()
	s := g.Object().
		Virtual("nested.up", upperName).
		Virtual("plain", upperName).
		Child("child", child).
		MustBuild()
	doc := map[string]any{
		"name":   "Anakin",
		"nested": map[string]any{},
		"child":  map[string]any{"name": "Luke"},
	}

	attach(t, s, doc, lv.Only("child.full", "nested.up"))

	assert.Equal(t, map[string]any{"up": "ANAKIN"}, doc["nested"])
	assert.Equal(t, map[string]any{"name": "Luke", "full": "LUKE"}, doc["child"])
	assert.NotContains(t, doc, "plain")
}

func TestAttach_NestedObjectVirtual(t *testing.T) {
	test2 := func(_ context.Context, _ any, doc map[string]any) (any, error) {
		return doc["nested"].(map[string]any)["test"], nil
	}
	childs := g.Object().Virtual("uppercaseOther", g.Path("other"), g.Upper()).MustBuild()

	cases := map[string]lv.Schema{
		"without child schemas": g.Object().Virtual("nested.test2", test2).MustBuild(),
		"with child schemas":    g.Object().Virtual("nested.test2", test2).Child("childs", childs).MustBuild(),
	}
	for name, s := range cases {
		t.Run(name, func(t *testing.T) {
			doc := map[string]any{
				"childs": []any{map[string]any{"other": "Val"}},
				"nested": map[string]any{"test": map[string]any{"a": "Val"}},
			}
			attach(t, s, doc, lv.Only("nested.test2"))
			nested := doc["nested"].(map[string]any)
			assert.Equal(t, "Val", nested["test"].(map[string]any)["a"])
			assert.Equal(t, "Val", nested["test2"].(map[string]any)["a"])
			assert.NotContains(t, doc["childs"].([]any)[0], "uppercaseOther")
		})
	}
}

func TestAttach_ExplicitSelectionMatchesAll(t *testing.T) {
	surname := g.Object().Virtual("uppercaseSurname", g.Path("name"), g.Upper()).MustBuild()
	allegiance := g.Object().Virtual("uppercaseAllegiance", g.Path("name"), g.Upper()).MustBuild()
	child := g.Object().
		Virtual("uppercaseName", g.Path("name"), g.Upper()).
		Child("surname", surname).
		MustBuild()
	parent := g.Object().
		Virtual("uppercaseRole", g.Path("role"), g.Upper()).
		Child("surname", surname).
		Child("allegiance", allegiance).
		Child("child", child).
		MustBuild()
	fresh := func() map[string]any {
		return map[string]any{
			"role":       "Father",
			"surname":    map[string]any{"name": "Vader"},
			"allegiance": map[string]any{"name": "Empire"},
			"child":      map[string]any{"name": "Luke", "surname": map[string]any{"name": "Skywalker"}},
		}
	}

	all := attach(t, parent, fresh(), lv.All())
	each := attach(t, parent, fresh(), lv.Only(
		"uppercaseRole",
		"surname.uppercaseSurname",
		"allegiance.uppercaseAllegiance",
		"child.uppercaseName",
		"child.surname.uppercaseSurname",
	))

	if diff := cmp.Diff(all, each); diff != "" {
		t.Fatalf("explicit selection differs from all (-all +each):\n%s", diff)
	}
	assert.Equal(t, "SKYWALKER", each.(map[string]any)["child"].(map[string]any)["surname"].(map[string]any)["uppercaseSurname"])
}

func TestAttach_Discriminators(t *testing.T) {
	base := g.Object().Virtual("nameUpper", g.Path("name"), g.Upper()).MustBuild()
	special := g.Object().Extend(base).Virtual("badge", g.Concat("-", "kind", "name")).MustBuild()
	s := g.Object().Extend(base).
		Discriminator("kind").
		OneOf(g.Variant("special", special)).
		MustBuild()
	docs := []any{
		map[string]any{"kind": "special", "name": "a"},
		map[string]any{"kind": "plain", "name": "b"},
		map[string]any{"name": "c"},
	}

	attach(t, s, docs, lv.All())

	assert.Equal(t, map[string]any{"kind": "special", "name": "a", "nameUpper": "A", "badge": "special-a"}, docs[0])
	assert.Equal(t, map[string]any{"kind": "plain", "name": "b", "nameUpper": "B"}, docs[1])
	assert.Equal(t, map[string]any{"name": "c", "nameUpper": "C"}, docs[2])
}

func TestAttach_DiscriminatorLooseEquality(t *testing.T) {
	v2 := g.Object().Virtual("version", g.Const("two")).MustBuild()
	s := g.Object().Discriminator("v").OneOf(g.Variant(2, v2)).MustBuild()
	doc := map[string]any{"v": "2"}

	attach(t, s, doc, lv.All())

	assert.Equal(t, "two", doc["version"])
}

func TestAttach_NoneAndUnsetAreNoOps(t *testing.T) {
	s := g.Object().Virtual("lowercase", lowerName).MustBuild()
	for _, sel := range []lv.Selection{lv.None(), {}, lv.Only()} {
		doc := map[string]any{"name": "Val"}
		attach(t, s, doc, sel)
		assert.Equal(t, map[string]any{"name": "Val"}, doc, sel.String())
	}
}

func TestAttach_PassesThroughNonDocuments(t *testing.T) {
	s := g.Object().Virtual("x", g.Const(1)).MustBuild()
	for _, res := range []any{nil, 42, "str", true} {
		out := attach(t, s, res, lv.All())
		assert.Equal(t, res, out)
	}
	var nilDoc map[string]any
	out := attach(t, s, nilDoc, lv.All())
	assert.Nil(t, out)
}

func TestAttach_ArrayHoles(t *testing.T) {
	child := g.Object().Virtual("x", g.Const(1)).MustBuild()
	s := g.Object().Child("refs", child).MustBuild()
	id := "64b7f0c2a1b2c3d4e5f60718"
	doc := map[string]any{"refs": []any{map[string]any{"name": "p"}, nil, id}}

	attach(t, s, doc, lv.All())

	want := []any{map[string]any{"name": "p", "x": 1}, nil, id}
	assert.Equal(t, want, doc["refs"])
}

func TestAttach_GetterErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	child := g.Object().Virtual("bad", func(context.Context, any, map[string]any) (any, error) {
		return nil, boom
	}).MustBuild()
	s := g.Object().Child("child", child).Virtual("after", g.Const(1)).MustBuild()
	doc := map[string]any{"child": map[string]any{}}

	_, err := lv.Attach(context.Background(), s, doc, lv.All())

	require.ErrorIs(t, err, boom)
	assert.NotContains(t, doc, "after")
}

func TestAttach_SharedDocumentProcessedOnce(t *testing.T) {
	calls := 0
	counting := func(context.Context, any, map[string]any) (any, error) {
		calls++
		return calls, nil
	}
	s := g.Object().Virtual("n", counting).MustBuild()
	shared := map[string]any{}

	attach(t, s, []any{shared, shared}, lv.All())

	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, shared["n"])
}

func TestAttach_SharedDocumentUnderTwoSchemas(t *testing.T) {
	a := g.Object().Virtual("fromA", g.Const("a")).MustBuild()
	b := g.Object().Virtual("fromB", g.Const("b")).MustBuild()
	s := g.Object().Child("x", a).Child("y", b).MustBuild()
	shared := map[string]any{"name": "Obi-Wan"}
	doc := map[string]any{"x": shared, "y": shared}

	attach(t, s, doc, lv.All())

	assert.Equal(t, "a", shared["fromA"])
	assert.Equal(t, "b", shared["fromB"])
}

func TestAttach_Trace(t *testing.T) {
	child := g.Object().Virtual("label", g.Const("c")).MustBuild()
	s := g.Object().Virtual("top", g.Const("t")).Child("items", child).MustBuild()
	doc := map[string]any{"items": []any{map[string]any{}, map[string]any{}}}

	var got []lv.Applied
	_, err := lv.Attach(context.Background(), s, []any{doc}, lv.All(), lv.WithTrace(func(a lv.Applied) {
		got = append(got, a)
	}))
	require.NoError(t, err)

	want := []lv.Applied{
		{Pointer: "/0/items/0/label", Virtual: "label", Value: "c"},
		{Pointer: "/0/items/1/label", Virtual: "label", Value: "c"},
		{Pointer: "/0/top", Virtual: "top", Value: "t"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("trace mismatch (-want +got):\n%s", diff)
	}
}

func TestAttach_ConcurrentCalls(t *testing.T) {
	child := g.Object().
		Virtual("fullName", g.Concat(" ", "firstName", "$parent.lastName")).
		MustBuild()
	s := g.Object().Child("child", child).MustBuild()

	errs := make(chan error, 16)
	for i := 0; i < cap(errs); i++ {
		go func(i int) {
			last := fmt.Sprintf("L%d", i)
			doc := map[string]any{"lastName": last, "child": map[string]any{"firstName": "F"}}
			if _, err := lv.Attach(context.Background(), s, doc, lv.All()); err != nil {
				errs <- err
				return
			}
			if got := doc["child"].(map[string]any)["fullName"]; got != "F "+last {
				errs <- fmt.Errorf("got %v", got)
				return
			}
			errs <- nil
		}(i)
	}
	for i := 0; i < cap(errs); i++ {
		require.NoError(t, <-errs)
	}
}
