// Package schemafile loads schema definitions from YAML (or JSON) files.
//
// A file declares named schemas; children, discriminator variants and
// extends refer to other schemas by name, so recursive schemas need no
// special syntax:
//
//	root: post
//	schemas:
//	  comment:
//	    virtuals:
//	      answer: {get: {const: 42}}
//	      shout:  {get: [{path: content}, {upper: true}]}
//	    children:
//	      comments: comment
//	  post:
//	    virtuals:
//	      commentCount: {get: {count: comments}}
//	      author: {ref: {justOne: true}}
//	    children:
//	      comments: comment
//	    discriminatorKey: kind
//	    discriminators:
//	      - {value: pinned, schema: pinnedPost}
//	  pinnedPost:
//	    extends: post
//	    virtuals:
//	      badge: {get: {concat: {sep: "-", fields: [kind, title]}}}
//
// Getter steps: path, parent, upper, lower, const, concat, count, sum.
// Several YAML documents in one file are merged.
package schemafile

import (
	"fmt"
	"os"
	"slices"
	"sort"

	lv "github.com/reoring/leanvirtuals"
	g "github.com/reoring/leanvirtuals/dsl"
)

// File is a compiled set of named schemas.
type File struct {
	root    string
	schemas map[string]lv.Schema
}

// Load reads and compiles path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("schemafile: %w", err)
	}
	return Parse(data)
}

// Parse compiles YAML or JSON schema definitions. All problems found are
// reported together as lv.Issues.
func Parse(data []byte) (*File, error) {
	docs, err := decodeDocuments(data)
	if err != nil {
		return nil, err
	}
	c := &compiler{defs: map[string]map[string]any{}, defPath: map[string]string{}}
	for i, d := range docs {
		c.collect(i, d)
	}
	if len(c.defs) == 0 && len(c.issues) == 0 {
		c.add("/", lv.CodeRequired, "no schemas declared")
	}
	f := &File{root: c.root, schemas: map[string]lv.Schema{}}
	c.out = f.schemas
	for _, name := range c.names() {
		c.build(name)
	}
	if c.root != "" {
		if _, ok := c.defs[c.root]; !ok {
			c.add("/root", lv.CodeUnknownSchema, fmt.Sprintf("schema %q is not declared", c.root))
		}
	}
	if len(c.issues) > 0 {
		return nil, c.issues
	}
	return f, nil
}

// Names lists the declared schemas in sorted order.
func (f *File) Names() []string {
	out := make([]string, 0, len(f.schemas))
	for n := range f.schemas {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Schema returns the schema declared under name.
func (f *File) Schema(name string) (lv.Schema, bool) {
	s, ok := f.schemas[name]
	return s, ok
}

// Root returns the schema named by the file's root key, or the only schema
// when there is exactly one.
func (f *File) Root() (lv.Schema, error) {
	if f.root != "" {
		return f.schemas[f.root], nil
	}
	if len(f.schemas) == 1 {
		for _, s := range f.schemas {
			return s, nil
		}
	}
	return nil, fmt.Errorf("schemafile: no root schema; declare root or pick one of %v", f.Names())
}

// Lookup is Schema with an error for unknown names, or Root when name is empty.
func (f *File) Lookup(name string) (lv.Schema, error) {
	if name == "" {
		return f.Root()
	}
	s, ok := f.schemas[name]
	if !ok {
		return nil, fmt.Errorf("schemafile: unknown schema %q (have %v)", name, f.Names())
	}
	return s, nil
}

type buildState int

const (
	unbuilt buildState = iota
	building
	built
)

type compiler struct {
	root    string
	defs    map[string]map[string]any
	defPath map[string]string
	state   map[string]buildState
	out     map[string]lv.Schema
	issues  lv.Issues
}

func (c *compiler) add(path, code, msg string) {
	c.issues = lv.AppendIssues(c.issues, lv.Issue{Path: path, Code: code, Message: msg})
}

func (c *compiler) names() []string {
	out := make([]string, 0, len(c.defs))
	for n := range c.defs {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}

func (c *compiler) collect(i int, doc map[string]any) {
	base := ""
	if i > 0 {
		base = fmt.Sprintf("/%d", i)
	}
	for _, k := range sortedKeys(doc) {
		v := doc[k]
		switch k {
		case "root":
			s, ok := v.(string)
			if !ok {
				c.add(base+"/root", lv.CodeInvalidType, "root must be a schema name")
				continue
			}
			c.root = s
		case "schemas":
			m, ok := v.(map[string]any)
			if !ok {
				c.add(base+"/schemas", lv.CodeInvalidType, "schemas must be a mapping")
				continue
			}
			for _, name := range sortedKeys(m) {
				def := m[name]
				p := base + "/schemas/" + escape(name)
				if _, dup := c.defs[name]; dup {
					c.add(p, lv.CodeDuplicateKey, fmt.Sprintf("schema %q declared twice", name))
					continue
				}
				dm, ok := def.(map[string]any)
				if def == nil {
					dm, ok = map[string]any{}, true
				}
				if !ok {
					c.add(p, lv.CodeInvalidType, "schema must be a mapping")
					continue
				}
				c.defs[name] = dm
				c.defPath[name] = p
			}
		default:
			c.add(base+"/"+escape(k), lv.CodeUnknownKey, "expected root or schemas")
		}
	}
}

// schemaRef returns a lazy handle on a named schema, reporting unknown names.
func (c *compiler) schemaRef(path, name string) lv.Schema {
	if _, ok := c.defs[name]; !ok {
		c.add(path, lv.CodeUnknownSchema, fmt.Sprintf("schema %q is not declared", name))
		return nil
	}
	return g.Lazy(func() lv.Schema { return c.out[name] })
}

func (c *compiler) build(name string) lv.Schema {
	if c.state == nil {
		c.state = map[string]buildState{}
	}
	switch c.state[name] {
	case built:
		return c.out[name]
	case building:
		c.add(c.defPath[name]+"/extends", lv.CodeInvalidType, fmt.Sprintf("schema %q extends itself", name))
		return nil
	}
	c.state[name] = building
	defer func() { c.state[name] = built }()

	def, p := c.defs[name], c.defPath[name]
	b := g.Object()
	if ext, ok := def["extends"]; ok {
		baseName, ok := ext.(string)
		switch {
		case !ok:
			c.add(p+"/extends", lv.CodeInvalidType, "extends must be a schema name")
		case c.defs[baseName] == nil:
			c.add(p+"/extends", lv.CodeUnknownSchema, fmt.Sprintf("schema %q is not declared", baseName))
		default:
			if base := c.build(baseName); base != nil {
				b.Extend(base)
			}
		}
	}
	for _, k := range sortedKeys(def) {
		switch k {
		case "extends", "discriminatorKey":
		case "virtuals":
			c.virtuals(b, p+"/virtuals", def[k])
		case "children":
			c.children(b, p+"/children", def[k])
		case "discriminators":
			c.discriminators(b, p, def)
		default:
			c.add(p+"/"+escape(k), lv.CodeUnknownKey, "expected extends, virtuals, children, discriminatorKey or discriminators")
		}
	}
	s, err := b.Build()
	if err != nil {
		if iss, ok := lv.AsIssues(err); ok {
			for _, it := range iss {
				it.Path = p + it.Path
				c.issues = lv.AppendIssues(c.issues, it)
			}
		}
		return nil
	}
	c.out[name] = s
	return s
}

// virtuals accepts a mapping (declared in name order) or a list of
// {name, get, ref} entries (declared in list order).
func (c *compiler) virtuals(b *g.ObjectBuilder, p string, v any) {
	switch t := v.(type) {
	case map[string]any:
		for _, name := range sortedKeys(t) {
			c.virtual(b, p+"/"+escape(name), name, t[name])
		}
	case []any:
		for i, item := range t {
			ip := fmt.Sprintf("%s/%d", p, i)
			m, ok := item.(map[string]any)
			if !ok {
				c.add(ip, lv.CodeInvalidType, "virtual must be a mapping")
				continue
			}
			name, ok := m["name"].(string)
			if !ok || name == "" {
				c.add(ip+"/name", lv.CodeRequired, "virtual needs a name")
				continue
			}
			rest := make(map[string]any, len(m))
			for k, vv := range m {
				if k != "name" {
					rest[k] = vv
				}
			}
			c.virtual(b, ip, name, rest)
		}
	default:
		c.add(p, lv.CodeInvalidType, "virtuals must be a mapping or a list")
	}
}

func (c *compiler) virtual(b *g.ObjectBuilder, p, name string, v any) {
	if v == nil {
		b.Virtual(name)
		return
	}
	m, ok := v.(map[string]any)
	if !ok {
		c.add(p, lv.CodeInvalidType, "virtual must be a mapping")
		return
	}
	var (
		getters []lv.Getter
		ref     *lv.Ref
	)
	for _, k := range sortedKeys(m) {
		switch k {
		case "get":
			getters = c.steps(p+"/get", m[k])
		case "ref":
			ref = c.refOption(p+"/ref", m[k])
		default:
			c.add(p+"/"+escape(k), lv.CodeUnknownKey, "expected get or ref")
		}
	}
	step := b.Virtual(name, getters...)
	if ref != nil {
		step.Ref(ref.JustOne)
	}
}

func (c *compiler) refOption(p string, v any) *lv.Ref {
	switch t := v.(type) {
	case nil:
		return &lv.Ref{}
	case bool:
		if !t {
			return nil
		}
		return &lv.Ref{}
	case map[string]any:
		r := &lv.Ref{}
		for k, vv := range t {
			if k != "justOne" {
				c.add(p+"/"+escape(k), lv.CodeUnknownKey, "expected justOne")
				continue
			}
			jo, ok := vv.(bool)
			if !ok {
				c.add(p+"/justOne", lv.CodeInvalidType, "justOne must be a boolean")
				continue
			}
			r.JustOne = jo
		}
		return r
	default:
		c.add(p, lv.CodeInvalidType, "ref must be a boolean or a mapping")
		return nil
	}
}

func (c *compiler) children(b *g.ObjectBuilder, p string, v any) {
	m, ok := v.(map[string]any)
	if !ok {
		c.add(p, lv.CodeInvalidType, "children must map field paths to schema names")
		return
	}
	for _, path := range sortedKeys(m) {
		cp := p + "/" + escape(path)
		name, ok := m[path].(string)
		if !ok {
			c.add(cp, lv.CodeInvalidType, "child must name a schema")
			continue
		}
		if s := c.schemaRef(cp, name); s != nil {
			b.Child(path, s)
		}
	}
}

func (c *compiler) discriminators(b *g.ObjectBuilder, p string, def map[string]any) {
	key, _ := def["discriminatorKey"].(string)
	if key == "" {
		c.add(p+"/discriminatorKey", lv.CodeRequired, "discriminators need a discriminatorKey")
		return
	}
	list, ok := def["discriminators"].([]any)
	if !ok {
		c.add(p+"/discriminators", lv.CodeInvalidType, "discriminators must be a list")
		return
	}
	var vars []g.UnionVariant
	for i, item := range list {
		ip := fmt.Sprintf("%s/discriminators/%d", p, i)
		m, ok := item.(map[string]any)
		if !ok {
			c.add(ip, lv.CodeInvalidType, "variant must be a mapping with value and schema")
			continue
		}
		value, hasValue := m["value"]
		if !hasValue {
			c.add(ip+"/value", lv.CodeRequired, "variant needs a value")
			continue
		}
		name, ok := m["schema"].(string)
		if !ok {
			c.add(ip+"/schema", lv.CodeRequired, "variant needs a schema name")
			continue
		}
		if s := c.schemaRef(ip+"/schema", name); s != nil {
			vars = append(vars, g.Variant(value, s))
		}
	}
	b.Discriminator(key).OneOf(vars...)
}

func sortedKeys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
