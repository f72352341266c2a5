package leanvirtuals

import (
	"fmt"
	"strings"
)

type selectionKind int

const (
	selectUnset selectionKind = iota
	selectNone
	selectAll
	selectPaths
)

// Selection states which virtuals a lean query wants attached. The zero value
// is "unset": callers fall back to Options.EnabledByDefault.
type Selection struct {
	kind  selectionKind
	paths []string
}

// All selects every virtual declared on every schema reached.
func All() Selection { return Selection{kind: selectAll} }

// None disables virtual attachment.
func None() Selection { return Selection{kind: selectNone} }

// Only restricts attachment to the listed dotted paths. Paths naming a child
// schema are written "child.virtual". Only() with no paths attaches nothing
// but still counts as an explicit selection.
func Only(paths ...string) Selection {
	return Selection{kind: selectPaths, paths: append([]string(nil), paths...)}
}

// SelectionFrom interprets an option value the way query options carry it:
// true/false, nil, []string, []any of strings, or a comma-separated string.
// Unsupported values yield an error.
func SelectionFrom(v any) (Selection, error) {
	switch t := v.(type) {
	case nil:
		return Selection{}, nil
	case Selection:
		return t, nil
	case bool:
		if t {
			return All(), nil
		}
		return None(), nil
	case []string:
		return Only(t...), nil
	case []any:
		paths := make([]string, 0, len(t))
		for i, e := range t {
			s, ok := e.(string)
			if !ok {
				return Selection{}, Issues{Issue{Path: fmt.Sprintf("/%d", i), Code: CodeInvalidType, Message: "virtual path must be a string"}}
			}
			paths = append(paths, s)
		}
		return Only(paths...), nil
	case string:
		switch strings.TrimSpace(t) {
		case "", "false":
			return None(), nil
		case "true", "*":
			return All(), nil
		}
		parts := strings.Split(t, ",")
		paths := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				paths = append(paths, p)
			}
		}
		return Only(paths...), nil
	default:
		return Selection{}, Issues{Issue{Path: "/", Code: CodeInvalidType, Message: fmt.Sprintf("unsupported virtuals option %T", v)}}
	}
}

// IsSet reports whether the selection was chosen explicitly.
func (s Selection) IsSet() bool { return s.kind != selectUnset }

// Enabled reports whether attachment should run at all.
func (s Selection) Enabled() bool { return s.kind == selectAll || s.kind == selectPaths }

// IsAll reports whether every virtual is selected.
func (s Selection) IsAll() bool { return s.kind == selectAll }

// Paths returns the explicit paths (nil unless built with Only).
func (s Selection) Paths() []string { return append([]string(nil), s.paths...) }

// Or returns s when set, otherwise fallback.
func (s Selection) Or(fallback Selection) Selection {
	if s.IsSet() {
		return s
	}
	return fallback
}

func (s Selection) String() string {
	switch s.kind {
	case selectNone:
		return "none"
	case selectAll:
		return "all"
	case selectPaths:
		return "[" + strings.Join(s.paths, ",") + "]"
	default:
		return "unset"
	}
}

// segments splits every path once. nil means "all".
func (s Selection) segments() [][]string {
	if s.kind != selectPaths {
		return nil
	}
	out := make([][]string, 0, len(s.paths))
	for _, p := range s.paths {
		out = append(out, strings.Split(p, "."))
	}
	return out
}

// Options configures the lean-virtuals plugin.
type Options struct {
	// EnabledByDefault attaches every virtual to lean queries that did not
	// choose a selection.
	EnabledByDefault bool
}

// Effective resolves the selection a lean query should use.
func (o Options) Effective(sel Selection) Selection {
	if o.EnabledByDefault {
		return sel.Or(All())
	}
	return sel.Or(None())
}
