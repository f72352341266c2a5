package dsl

import (
	"fmt"

	lv "github.com/reoring/leanvirtuals"
)

// ObjectBuilder accumulates the declarations of one schema.
type ObjectBuilder struct {
	virtuals      map[string]*lv.Virtual
	order         []string
	own           map[string]struct{}
	children      []lv.Child
	discriminator string
	variants      []lv.Discriminator
	issues        lv.Issues
}

// VirtualStep refines the virtual just declared and forwards the rest of the
// builder API.
type VirtualStep struct {
	b *ObjectBuilder
	v *lv.Virtual
}

// Object creates a new schema builder with no virtuals.
func Object() *ObjectBuilder {
	return &ObjectBuilder{
		virtuals: map[string]*lv.Virtual{},
		own:      map[string]struct{}{},
	}
}

// Extend copies the virtuals and children of base into the builder. Use it to
// declare discriminator variants, which must carry the base virtuals too.
// Virtuals declared afterwards override inherited ones of the same name.
func (b *ObjectBuilder) Extend(base lv.Schema) *ObjectBuilder {
	if base == nil {
		return b
	}
	for _, name := range base.VirtualNames() {
		v, ok := base.Virtual(name)
		if !ok {
			continue
		}
		if _, exists := b.virtuals[name]; !exists {
			b.order = append(b.order, name)
		}
		b.virtuals[name] = v
	}
	b.children = append(b.children, base.Children()...)
	return b
}

// Virtual declares a virtual at the dotted name. Getters run in order; a
// virtual without getters keeps whatever is stored at its path.
func (b *ObjectBuilder) Virtual(name string, getters ...lv.Getter) *VirtualStep {
	path := "/virtuals/" + name
	if name == "" {
		b.issues = lv.AppendIssues(b.issues, lv.Issue{Path: "/virtuals", Code: lv.CodeRequired, Message: "virtual name is empty"})
	}
	if _, dup := b.own[name]; dup {
		b.issues = lv.AppendIssues(b.issues, lv.Issue{Path: path, Code: lv.CodeDuplicateKey, Message: fmt.Sprintf("virtual %q declared twice", name)})
	}
	b.own[name] = struct{}{}
	v := &lv.Virtual{Name: name}
	for _, g := range getters {
		if g != nil {
			v.Getters = append(v.Getters, g)
		}
	}
	if _, exists := b.virtuals[name]; !exists {
		b.order = append(b.order, name)
	}
	b.virtuals[name] = v
	return &VirtualStep{b: b, v: v}
}

// Ref declares a reference virtual. A nil result becomes nil when justOne and
// an empty array otherwise.
func (b *ObjectBuilder) Ref(name string, justOne bool, getters ...lv.Getter) *VirtualStep {
	return b.Virtual(name, getters...).Ref(justOne)
}

// Get appends a getter to the current virtual.
func (s *VirtualStep) Get(g lv.Getter) *VirtualStep {
	if g != nil {
		s.v.Getters = append(s.v.Getters, g)
	}
	return s
}

// Ref marks the current virtual as a reference virtual.
func (s *VirtualStep) Ref(justOne bool) *VirtualStep {
	s.v.Ref = &lv.Ref{JustOne: justOne}
	return s
}

// Virtual declares the next virtual.
func (s *VirtualStep) Virtual(name string, getters ...lv.Getter) *VirtualStep {
	return s.b.Virtual(name, getters...)
}

func (s *VirtualStep) Child(path string, sch lv.Schema) *ObjectBuilder {
	return s.b.Child(path, sch)
}

func (s *VirtualStep) Discriminator(key string) *ObjectBuilder {
	return s.b.Discriminator(key)
}

func (s *VirtualStep) OneOf(vars ...UnionVariant) *ObjectBuilder {
	return s.b.OneOf(vars...)
}

func (s *VirtualStep) Build() (lv.Schema, error) { return s.b.Build() }

func (s *VirtualStep) MustBuild() lv.Schema { return s.b.MustBuild() }

// Child declares an embedded sub-schema stored at path. The stored value may be
// one document or an array of documents; dotted paths reach into plain nested
// objects and through arrays.
func (b *ObjectBuilder) Child(path string, sch lv.Schema) *ObjectBuilder {
	if path == "" || sch == nil {
		b.issues = lv.AppendIssues(b.issues, lv.Issue{Path: "/children", Code: lv.CodeRequired, Message: "child needs a path and a schema"})
		return b
	}
	b.children = append(b.children, lv.Child{Path: path, Schema: sch})
	return b
}

// Discriminator sets the stored field whose value selects a variant.
func (b *ObjectBuilder) Discriminator(key string) *ObjectBuilder {
	b.discriminator = key
	return b
}

// UnionVariant pairs a discriminator value with the variant schema.
type UnionVariant struct {
	value  any
	schema lv.Schema
}

// Variant constructs a UnionVariant.
func Variant(value any, s lv.Schema) UnionVariant {
	return UnionVariant{value: value, schema: s}
}

// OneOf registers discriminator variants, tried in the order given. Call
// Discriminator first.
func (b *ObjectBuilder) OneOf(vars ...UnionVariant) *ObjectBuilder {
	for _, v := range vars {
		if v.schema == nil {
			b.issues = lv.AppendIssues(b.issues, lv.Issue{Path: fmt.Sprintf("/discriminators/%v", v.value), Code: lv.CodeRequired, Message: "variant schema is nil"})
			continue
		}
		b.variants = append(b.variants, lv.Discriminator{Value: v.value, Schema: v.schema})
	}
	return b
}

// Build validates the builder and returns an immutable Schema.
func (b *ObjectBuilder) Build() (lv.Schema, error) {
	iss := b.issues
	if len(b.variants) > 0 && b.discriminator == "" {
		iss = lv.AppendIssues(iss, lv.Issue{Path: "/discriminatorKey", Code: lv.CodeRequired, Message: "variants declared without a discriminator key"})
	}
	if len(iss) > 0 {
		return nil, iss
	}
	out := &objectSchema{
		virtuals: make(map[string]*lv.Virtual, len(b.virtuals)),
		names:    append([]string(nil), b.order...),
		children: append([]lv.Child(nil), b.children...),
	}
	for k, v := range b.virtuals {
		out.virtuals[k] = v
	}
	for _, d := range b.variants {
		d.Key = b.discriminator
		out.variants = append(out.variants, d)
	}
	return out, nil
}

// MustBuild is like Build but panics on error.
func (b *ObjectBuilder) MustBuild() lv.Schema {
	s, err := b.Build()
	if err != nil {
		panic(err)
	}
	return s
}
