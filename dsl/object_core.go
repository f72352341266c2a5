package dsl

import (
	"sync"

	lv "github.com/reoring/leanvirtuals"
)

type objectSchema struct {
	virtuals map[string]*lv.Virtual
	names    []string
	children []lv.Child
	variants []lv.Discriminator
}

// Ensure objectSchema implements lv.Schema
var _ lv.Schema = (*objectSchema)(nil)

func (o *objectSchema) Virtual(name string) (*lv.Virtual, bool) {
	v, ok := o.virtuals[name]
	return v, ok
}

func (o *objectSchema) VirtualNames() []string {
	return append([]string(nil), o.names...)
}

func (o *objectSchema) Children() []lv.Child {
	return append([]lv.Child(nil), o.children...)
}

func (o *objectSchema) Discriminators() []lv.Discriminator {
	return append([]lv.Discriminator(nil), o.variants...)
}

// lazySchema defers schema construction until first use so a schema can
// contain itself (comments of comments).
type lazySchema struct {
	once sync.Once
	fn   func() lv.Schema
	s    lv.Schema
}

// Lazy wraps a schema that is not built yet:
//
//	var comment lv.Schema
//	comment = g.Object().
//	    Virtual("answer", g.Const(42)).
//	    Child("comments", g.Lazy(func() lv.Schema { return comment })).
//	    MustBuild()
func Lazy(fn func() lv.Schema) lv.Schema {
	return &lazySchema{fn: fn}
}

func (l *lazySchema) get() lv.Schema {
	l.once.Do(func() {
		if l.fn != nil {
			l.s = l.fn()
		}
		if l.s == nil {
			l.s = &objectSchema{}
		}
	})
	return l.s
}

func (l *lazySchema) Virtual(name string) (*lv.Virtual, bool) {
	return l.get().Virtual(name)
}

func (l *lazySchema) VirtualNames() []string {
	return l.get().VirtualNames()
}

func (l *lazySchema) Children() []lv.Child {
	return l.get().Children()
}

func (l *lazySchema) Discriminators() []lv.Discriminator {
	return l.get().Discriminators()
}
