package leanvirtuals

import (
	"context"
	"reflect"
)

// Schema is the read-only view of a document schema consumed by Attach. It
// describes the virtuals declared directly on the schema, the embedded
// sub-schemas reachable from it, and the discriminator variants selectable by
// a stored key/value pair.
//
// Implementations must not change while an Attach call is running; the dsl
// package builds immutable ones.
type Schema interface {
	// Virtual returns the virtual declared under the dotted name.
	Virtual(name string) (*Virtual, bool)
	// VirtualNames lists the declared virtual names in declaration order.
	VirtualNames() []string
	// Children lists embedded sub-schemas keyed by their (possibly dotted)
	// field path.
	Children() []Child
	// Discriminators lists the variants in resolution order.
	Discriminators() []Discriminator
}

// Child binds a field path to the schema of the sub-document(s) stored there.
// The stored value may be a single object or an array (possibly nested) of
// objects.
type Child struct {
	Path   string
	Schema Schema
}

// Discriminator selects Schema for documents whose Key field equals Value.
// Variant schemas carry the base virtuals as well as their own.
type Discriminator struct {
	Key    string
	Value  any
	Schema Schema
}

// Getter computes a virtual value. value is whatever is currently stored at
// the virtual's path (nil when absent) or the previous getter's result; doc is
// the document owning the virtual. Use Parent(ctx, doc) to reach the
// enclosing document.
type Getter func(ctx context.Context, value any, doc map[string]any) (any, error)

// Ref marks a reference ("populate") virtual. When the getters produce nil or
// a nil slice, JustOne virtuals are set to nil and the others to an empty
// array.
type Ref struct {
	JustOne bool
}

// Virtual describes one computed field.
type Virtual struct {
	// Name is the dotted path the value is written to, e.g. "nested.upper".
	Name string
	// Getters run in order; with no getters the stored value is kept.
	Getters []Getter
	// Ref is non-nil for reference virtuals.
	Ref *Ref
}

// Apply runs the getter chain over value.
func (v *Virtual) Apply(ctx context.Context, value any, doc map[string]any) (any, error) {
	out := value
	for _, g := range v.Getters {
		r, err := g(ctx, out, doc)
		if err != nil {
			return nil, err
		}
		out = r
	}
	if v.Ref != nil && missing(out) {
		if v.Ref.JustOne {
			return nil, nil
		}
		return []any{}, nil
	}
	return out, nil
}

// missing reports nil and typed nil slices such as a []any never appended to.
func missing(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Slice && rv.IsNil()
}
