// Package docpath implements dotted-path access over lean document trees
// (map[string]any / []any), the shape produced by JSON, BSON and JSONB decoders.
package docpath

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Split splits a dotted path into segments. The empty path yields nil.
func Split(p string) []string {
	if p == "" {
		return nil
	}
	return strings.Split(p, ".")
}

// Get resolves segs inside v. Intermediate arrays are mapped element-wise, so
// Get({"a":[{"b":1},{"b":2}]}, ["a","b"]) returns []any{1, 2}. The boolean is
// false when the first segment is missing on an object root.
func Get(v any, segs []string) (any, bool) {
	if len(segs) == 0 {
		return v, true
	}
	switch n := v.(type) {
	case map[string]any:
		next, ok := n[segs[0]]
		if !ok {
			return nil, false
		}
		return Get(next, segs[1:])
	case []any:
		out := make([]any, 0, len(n))
		for _, el := range n {
			r, ok := Get(el, segs)
			if !ok {
				continue
			}
			out = append(out, r)
		}
		return out, true
	default:
		return nil, false
	}
}

// Set assigns val at segs inside doc, creating intermediate objects as needed.
// It returns false when an intermediate exists but is not an object.
func Set(doc map[string]any, segs []string, val any) bool {
	if len(segs) == 0 {
		return false
	}
	cur := doc
	for _, s := range segs[:len(segs)-1] {
		next, ok := cur[s]
		if !ok {
			m := map[string]any{}
			cur[s] = m
			cur = m
			continue
		}
		m, ok := next.(map[string]any)
		if !ok {
			return false
		}
		cur = m
	}
	cur[segs[len(segs)-1]] = val
	return true
}

// EmptyDeep reports whether v is an array containing no non-array values at
// any depth ([], [[]], [[], [[]]] ...). Non-arrays are never empty.
func EmptyDeep(v any) bool {
	arr, ok := v.([]any)
	if !ok {
		return false
	}
	for _, el := range arr {
		if !EmptyDeep(el) {
			return false
		}
	}
	return true
}

// Equal compares two scalars loosely: numbers compare by textual form so a
// json.Number("1") equals int 1 and float64(1); strings compare exactly.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	// "1" matches 1: discriminator values are often stored as text.
	return scalarText(a) == scalarText(b)
}

func scalarText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

// Clone deep-copies maps and slices of a lean tree. Scalars are shared.
func Clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = Clone(vv)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = Clone(t[i])
		}
		return out
	default:
		return v
	}
}

// CloneDoc is Clone specialised for documents.
func CloneDoc(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return Clone(m).(map[string]any)
}

// Expand turns a dotted-key map into a nested one:
// {"a.b": 1, "c": 2} -> {"a": {"b": 1}, "c": 2}.
func Expand(flat map[string]any) map[string]any {
	out := map[string]any{}
	for k, v := range flat {
		Set(out, Split(k), v)
	}
	return out
}
