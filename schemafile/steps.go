package schemafile

import (
	"fmt"
	"strings"

	lv "github.com/reoring/leanvirtuals"
	g "github.com/reoring/leanvirtuals/dsl"
)

var pointerEscaper = strings.NewReplacer("~", "~0", "/", "~1")

func escape(seg string) string { return pointerEscaper.Replace(seg) }

// steps compiles a getter chain: a single step mapping or a list of them.
// Each step mapping has exactly one key naming the getter.
func (c *compiler) steps(p string, v any) []lv.Getter {
	switch t := v.(type) {
	case map[string]any:
		if gt := c.step(p, t); gt != nil {
			return []lv.Getter{gt}
		}
		return nil
	case []any:
		out := make([]lv.Getter, 0, len(t))
		for i, item := range t {
			ip := fmt.Sprintf("%s/%d", p, i)
			m, ok := item.(map[string]any)
			if !ok {
				c.add(ip, lv.CodeInvalidType, "getter step must be a mapping")
				continue
			}
			if gt := c.step(ip, m); gt != nil {
				out = append(out, gt)
			}
		}
		return out
	default:
		c.add(p, lv.CodeInvalidType, "get must be a step or a list of steps")
		return nil
	}
}

func (c *compiler) step(p string, m map[string]any) lv.Getter {
	if len(m) != 1 {
		c.add(p, lv.CodeInvalidType, fmt.Sprintf("getter step needs exactly one key, got %d", len(m)))
		return nil
	}
	for k, v := range m {
		kp := p + "/" + escape(k)
		switch k {
		case "path":
			if s, ok := c.str(kp, v); ok {
				return g.Path(s)
			}
		case "parent":
			if s, ok := c.str(kp, v); ok {
				return g.ParentPath(s)
			}
		case "count":
			if s, ok := c.str(kp, v); ok {
				return g.Count(s)
			}
		case "sum":
			if s, ok := c.str(kp, v); ok {
				return g.Sum(s)
			}
		case "upper":
			if c.flag(kp, v) {
				return g.Upper()
			}
		case "lower":
			if c.flag(kp, v) {
				return g.Lower()
			}
		case "const":
			return g.Const(v)
		case "concat":
			return c.concat(kp, v)
		default:
			c.add(kp, lv.CodeUnknownGetter, fmt.Sprintf("unknown getter %q", k))
		}
	}
	return nil
}

func (c *compiler) str(p string, v any) (string, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		c.add(p, lv.CodeInvalidType, "expected a non-empty path")
		return "", false
	}
	return s, true
}

func (c *compiler) flag(p string, v any) bool {
	b, ok := v.(bool)
	if !ok || !b {
		c.add(p, lv.CodeInvalidType, "expected true")
		return false
	}
	return true
}

func (c *compiler) concat(p string, v any) lv.Getter {
	m, ok := v.(map[string]any)
	if !ok {
		c.add(p, lv.CodeInvalidType, "concat must be a mapping with fields and sep")
		return nil
	}
	var (
		sep    string
		fields []string
	)
	for k, vv := range m {
		switch k {
		case "sep":
			s, ok := vv.(string)
			if !ok {
				c.add(p+"/sep", lv.CodeInvalidType, "sep must be a string")
				return nil
			}
			sep = s
		case "fields":
			list, ok := vv.([]any)
			if !ok {
				c.add(p+"/fields", lv.CodeInvalidType, "fields must be a list of paths")
				return nil
			}
			for i, f := range list {
				s, ok := c.str(fmt.Sprintf("%s/fields/%d", p, i), f)
				if !ok {
					return nil
				}
				fields = append(fields, s)
			}
		default:
			c.add(p+"/"+escape(k), lv.CodeUnknownKey, "expected fields or sep")
			return nil
		}
	}
	if len(fields) == 0 {
		c.add(p+"/fields", lv.CodeRequired, "concat needs at least one field")
		return nil
	}
	return g.Concat(sep, fields...)
}
