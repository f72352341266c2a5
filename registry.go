package leanvirtuals

import (
	"context"
	"reflect"
	"unsafe"
)

type passKey struct{}

// pass holds the state of one Attach call. Nothing in it outlives the call
// unless a getter retains the context it was given.
type pass struct {
	parents map[unsafe.Pointer]map[string]any
	thunks  map[unsafe.Pointer][]*thunk
	visited map[visit]struct{}
}

// visit is a document reached under a schema. The same map reached under
// another schema is visited again.
type visit struct {
	doc    unsafe.Pointer
	schema Schema
}

func newPass() *pass {
	return &pass{
		parents: make(map[unsafe.Pointer]map[string]any),
		thunks:  make(map[unsafe.Pointer][]*thunk),
		visited: make(map[visit]struct{}),
	}
}

// identity keys a document by its map header, not its contents.
func identity(m map[string]any) unsafe.Pointer { return reflect.ValueOf(m).UnsafePointer() }

type thunkState int

const (
	thunkPending thunkState = iota
	thunkRunning
	thunkDone
)

// thunk applies a document's own virtuals exactly once, whichever of the
// walker or a Parent lookup gets there first.
type thunk struct {
	run   func() error
	state thunkState
	err   error
}

func (t *thunk) force() error {
	if t.state != thunkPending {
		// A running thunk reached again through its own getters is left alone.
		return t.err
	}
	t.state = thunkRunning
	t.err = t.run()
	t.state = thunkDone
	t.run = nil
	return t.err
}

// enter marks doc as reached under s and reports whether it was the first
// time. Schemas that cannot be map keys collapse into one entry.
func (p *pass) enter(doc map[string]any, s Schema) bool {
	if s != nil && !reflect.TypeOf(s).Comparable() {
		s = nil
	}
	k := visit{doc: identity(doc), schema: s}
	if _, ok := p.visited[k]; ok {
		return false
	}
	p.visited[k] = struct{}{}
	return true
}

// register records an apply thunk for doc and, for the first registration
// with a non-nil parent, its parent link.
func (p *pass) register(doc, parent map[string]any, run func() error) *thunk {
	k := identity(doc)
	t := &thunk{run: run}
	p.thunks[k] = append(p.thunks[k], t)
	if _, ok := p.parents[k]; !ok && parent != nil {
		p.parents[k] = parent
	}
	return t
}

func (p *pass) parentOf(doc map[string]any) (map[string]any, error) {
	parent, ok := p.parents[identity(doc)]
	if !ok {
		return nil, nil
	}
	for _, t := range p.thunks[identity(parent)] {
		if err := t.force(); err != nil {
			return nil, err
		}
	}
	return parent, nil
}

// Parent returns the document enclosing doc in the result currently being
// processed, with the parent's own virtuals already attached. It returns
// nil, nil for top-level documents and when ctx does not come from a getter
// invoked by Attach. An error means one of the parent's getters failed; the
// same error aborts the Attach call.
func Parent(ctx context.Context, doc map[string]any) (map[string]any, error) {
	if doc == nil {
		return nil, nil
	}
	p, ok := ctx.Value(passKey{}).(*pass)
	if !ok {
		return nil, nil
	}
	return p.parentOf(doc)
}
