package leanvirtuals

import (
	"context"
	"slices"
	"strings"

	"github.com/reoring/leanvirtuals/internal/docpath"
)

// Attach computes the virtuals selected by sel and writes them into res, which
// must be a lean result: nil, a document (map[string]any), or an array of
// documents ([]any, possibly nested). res is mutated in place and returned.
//
// Sub-documents are processed before the document owning them, but a getter
// can call Parent to read its enclosing document with that document's own
// virtuals already attached. An unset or None selection leaves res untouched.
// The first getter error aborts the walk and is returned as is.
func Attach(ctx context.Context, s Schema, res any, sel Selection, opts ...AttachOption) (any, error) {
	if s == nil || res == nil || !sel.Enabled() {
		return res, nil
	}
	var cfg attachConfig
	for _, o := range opts {
		o(&cfg)
	}
	p := newPass()
	w := &walker{
		ctx:   context.WithValue(ctx, passKey{}, p),
		pass:  p,
		trace: cfg.trace,
	}
	if err := w.attach(s, res, sel.segments(), nil, pointer{}); err != nil {
		return res, err
	}
	return res, nil
}

type walker struct {
	ctx   context.Context
	pass  *pass
	trace func(Applied)
}

// attach dispatches on the node shape. sel == nil selects every virtual;
// a non-nil empty sel selects none.
func (w *walker) attach(s Schema, node any, sel [][]string, parent map[string]any, at pointer) error {
	switch n := node.(type) {
	case map[string]any:
		if n == nil {
			return nil
		}
		return w.attachDoc(s, n, sel, parent, at)
	case []any:
		// Elements share the array's owner as parent; holes and raw ids stay as they are.
		for i, el := range n {
			switch el.(type) {
			case map[string]any, []any:
				if err := w.attach(s, el, sel, parent, at.index(i)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

type childTask struct {
	schema Schema
	segs   []string
	sel    [][]string
}

func (w *walker) attachDoc(s Schema, doc map[string]any, sel [][]string, parent map[string]any, at pointer) error {
	if !w.pass.enter(doc, s) {
		return nil
	}
	s = ResolveDiscriminator(s, doc)

	var applyHere []string
	var forChildren [][]string
	if sel != nil {
		applyHere = make([]string, 0, len(sel))
		for _, p := range sel {
			if len(p) == 1 {
				applyHere = append(applyHere, p[0])
			} else {
				forChildren = append(forChildren, p)
			}
		}
	}

	routed := make([]bool, len(forChildren))
	var tasks []childTask
	for _, c := range s.Children() {
		if c.Schema == nil || c.Path == "" {
			continue
		}
		segs := docpath.Split(c.Path)
		v, ok := docpath.Get(doc, segs)
		if !ok || v == nil || docpath.EmptyDeep(v) {
			continue
		}
		var sub [][]string
		if sel != nil {
			sub = [][]string{}
			for i, p := range forChildren {
				if len(p) > len(segs) && slices.Equal(p[:len(segs)], segs) {
					sub = append(sub, p[len(segs):])
					routed[i] = true
				}
			}
			if len(sub) == 0 {
				continue
			}
		}
		tasks = append(tasks, childTask{schema: c.Schema, segs: segs, sel: sub})
	}

	var toApply []string
	if sel == nil {
		toApply = s.VirtualNames()
	} else {
		toApply = applyHere
		// Paths that reached no live sub-document name virtuals declared on
		// this schema under a dotted name, e.g. "nested.upper".
		for i, p := range forChildren {
			if !routed[i] {
				toApply = append(toApply, strings.Join(p, "."))
			}
		}
	}

	t := w.pass.register(doc, parent, func() error { return w.applyOwn(s, doc, toApply, at) })
	for _, task := range tasks {
		if err := w.descend(task.schema, doc, task.segs, task.sel, doc, at); err != nil {
			return err
		}
	}
	return t.force()
}

// descend follows segs from cur, fanning out over intermediate arrays, and
// attaches the child schema to whatever it reaches.
func (w *walker) descend(s Schema, cur any, segs []string, sel [][]string, parent map[string]any, at pointer) error {
	if len(segs) == 0 {
		return w.attach(s, cur, sel, parent, at)
	}
	switch n := cur.(type) {
	case map[string]any:
		next, ok := n[segs[0]]
		if !ok || next == nil {
			return nil
		}
		return w.descend(s, next, segs[1:], sel, parent, at.field(segs[0]))
	case []any:
		for i, el := range n {
			if err := w.descend(s, el, segs, sel, parent, at.index(i)); err != nil {
				return err
			}
		}
	}
	return nil
}

// applyOwn writes the named virtuals of s into doc. Names unknown to s are
// skipped, as are names whose intermediate path holds a non-object.
func (w *walker) applyOwn(s Schema, doc map[string]any, names []string, at pointer) error {
	for _, name := range names {
		v, ok := s.Virtual(name)
		if !ok {
			continue
		}
		segs := docpath.Split(name)
		if len(segs) == 0 {
			continue
		}
		cur, ok := ensureObjects(doc, segs[:len(segs)-1])
		if !ok {
			continue
		}
		last := segs[len(segs)-1]
		val, err := v.Apply(w.ctx, cur[last], doc)
		if err != nil {
			return err
		}
		cur[last] = val
		if w.trace != nil {
			w.trace(Applied{Pointer: at.fields(segs).String(), Virtual: name, Value: val})
		}
	}
	return nil
}

func ensureObjects(doc map[string]any, segs []string) (map[string]any, bool) {
	cur := doc
	for _, seg := range segs {
		next, exists := cur[seg]
		if !exists {
			m := map[string]any{}
			cur[seg] = m
			cur = m
			continue
		}
		m, ok := next.(map[string]any)
		if !ok {
			return nil, false
		}
		cur = m
	}
	return cur, true
}
