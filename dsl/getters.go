package dsl

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	lv "github.com/reoring/leanvirtuals"
	"github.com/reoring/leanvirtuals/internal/docpath"
)

// ParentPrefix marks a path resolved against the enclosing document.
const ParentPrefix = "$parent."

// lookup resolves path against doc, or against its parent when path starts
// with ParentPrefix. Missing values resolve to nil.
func lookup(ctx context.Context, doc map[string]any, path string) (any, error) {
	if rest, ok := strings.CutPrefix(path, ParentPrefix); ok {
		p, err := lv.Parent(ctx, doc)
		if err != nil || p == nil {
			return nil, err
		}
		doc, path = p, rest
	}
	v, _ := docpath.Get(doc, docpath.Split(path))
	return v, nil
}

// Path reads the stored value at path (see ParentPrefix).
func Path(path string) lv.Getter {
	return func(ctx context.Context, _ any, doc map[string]any) (any, error) {
		return lookup(ctx, doc, path)
	}
}

// ParentPath reads path from the enclosing document.
func ParentPath(path string) lv.Getter { return Path(ParentPrefix + path) }

// Const always yields v.
func Const(v any) lv.Getter {
	return func(context.Context, any, map[string]any) (any, error) { return v, nil }
}

// Upper upper-cases the incoming string value. Non-strings pass through.
func Upper() lv.Getter { return mapString(strings.ToUpper) }

// Lower lower-cases the incoming string value. Non-strings pass through.
func Lower() lv.Getter { return mapString(strings.ToLower) }

func mapString(fn func(string) string) lv.Getter {
	return func(_ context.Context, value any, _ map[string]any) (any, error) {
		if s, ok := value.(string); ok {
			return fn(s), nil
		}
		return value, nil
	}
}

// Concat joins the values found at paths with sep, skipping missing ones.
func Concat(sep string, paths ...string) lv.Getter {
	return func(ctx context.Context, _ any, doc map[string]any) (any, error) {
		parts := make([]string, 0, len(paths))
		for _, p := range paths {
			v, err := lookup(ctx, doc, p)
			if err != nil {
				return nil, err
			}
			if v == nil {
				continue
			}
			parts = append(parts, fmt.Sprint(v))
		}
		return strings.Join(parts, sep), nil
	}
}

// Count yields the length of the array at path, 0 when absent.
func Count(path string) lv.Getter {
	return func(ctx context.Context, _ any, doc map[string]any) (any, error) {
		v, err := lookup(ctx, doc, path)
		if err != nil {
			return nil, err
		}
		arr, _ := v.([]any)
		return len(arr), nil
	}
}

// Sum adds the numbers found at path. Intermediate arrays are flattened, so
// Sum("children.answer") totals a virtual of every child.
func Sum(path string) lv.Getter {
	return func(ctx context.Context, _ any, doc map[string]any) (any, error) {
		v, err := lookup(ctx, doc, path)
		if err != nil {
			return nil, err
		}
		total, err := sum(v)
		if err != nil {
			return nil, fmt.Errorf("sum %s: %w", path, err)
		}
		return total, nil
	}
}

func sum(v any) (float64, error) {
	switch t := v.(type) {
	case nil:
		return 0, nil
	case []any:
		var total float64
		for _, el := range t {
			n, err := sum(el)
			if err != nil {
				return 0, err
			}
			total += n
		}
		return total, nil
	case json.Number:
		return t.Float64()
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int32:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case string:
		return strconv.ParseFloat(t, 64)
	default:
		return 0, fmt.Errorf("not a number: %T", v)
	}
}
