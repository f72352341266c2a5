// Package docquery evaluates filters, sorts and updates over lean documents
// for stores that have no query engine of their own.
package docquery

import (
	"cmp"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/reoring/leanvirtuals/internal/docpath"
	"github.com/reoring/leanvirtuals/query"
)

// Match reports whether doc satisfies every path of filter. A path that
// reaches an array matches when any element equals the wanted value.
func Match(doc map[string]any, filter query.Filter) bool {
	for path, want := range filter {
		got, ok := docpath.Get(doc, docpath.Split(path))
		if !ok {
			if want == nil {
				continue
			}
			return false
		}
		if !matchValue(got, want) {
			return false
		}
	}
	return true
}

// MatchIn reports whether the value at path equals one of values.
func MatchIn(doc map[string]any, path string, values []any) bool {
	got, ok := docpath.Get(doc, docpath.Split(path))
	if !ok {
		return false
	}
	for _, want := range values {
		if matchValue(got, want) {
			return true
		}
	}
	return false
}

func matchValue(got, want any) bool {
	if arr, ok := got.([]any); ok {
		if _, wantArr := want.([]any); !wantArr {
			for _, el := range arr {
				if matchValue(el, want) {
					return true
				}
			}
			return false
		}
	}
	switch got.(type) {
	case map[string]any, []any:
		return fmt.Sprint(got) == fmt.Sprint(want)
	}
	return docpath.Equal(got, want)
}

// Sort orders docs in place by fields, keeping the stored order for ties.
// Missing values sort first.
func Sort(docs []map[string]any, fields []query.SortField) {
	if len(fields) == 0 {
		return
	}
	slices.SortStableFunc(docs, func(a, b map[string]any) int {
		for _, f := range fields {
			segs := docpath.Split(f.Path)
			av, _ := docpath.Get(a, segs)
			bv, _ := docpath.Get(b, segs)
			c := compare(av, bv)
			if f.Desc {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	})
}

func compare(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	af, aok := number(a)
	bf, bok := number(b)
	if aok && bok {
		return cmp.Compare(af, bf)
	}
	return cmp.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func number(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case int32:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// Limit truncates docs to n when n > 0.
func Limit(docs []map[string]any, n int) []map[string]any {
	if n > 0 && len(docs) > n {
		return docs[:n]
	}
	return docs
}

// Set writes every dotted path of set into doc. The _id field is immutable.
func Set(doc map[string]any, set map[string]any) error {
	for path, v := range set {
		if path == query.IDField {
			return fmt.Errorf("cannot update %s", query.IDField)
		}
		if !docpath.Set(doc, docpath.Split(path), docpath.Clone(v)) {
			return fmt.Errorf("cannot set %q: intermediate is not an object", path)
		}
	}
	return nil
}

// EnsureID assigns a random _id when doc has none and returns the id text.
func EnsureID(doc map[string]any) string {
	if id, ok := doc[query.IDField]; ok && id != nil {
		return fmt.Sprint(id)
	}
	id := uuid.NewString()
	doc[query.IDField] = id
	return id
}
