package leanvirtuals

import (
	"strconv"
	"strings"
)

// Applied reports one virtual written by Attach.
type Applied struct {
	// Pointer locates the written value relative to the result root
	// (RFC 6901), e.g. /children/0/fullName.
	Pointer string
	Virtual string
	Value   any
}

// AttachOption tunes a single Attach call.
type AttachOption func(*attachConfig)

type attachConfig struct {
	trace func(Applied)
}

// WithTrace calls fn for every virtual written, in application order.
func WithTrace(fn func(Applied)) AttachOption {
	return func(c *attachConfig) { c.trace = fn }
}

// pointer builds JSON Pointers incrementally; values are never mutated after
// construction so siblings can share prefixes.
type pointer struct {
	parts []string
}

func (p pointer) field(name string) pointer {
	esc := strings.ReplaceAll(strings.ReplaceAll(name, "~", "~0"), "/", "~1")
	return pointer{parts: append(p.parts[:len(p.parts):len(p.parts)], esc)}
}

func (p pointer) fields(names []string) pointer {
	for _, n := range names {
		p = p.field(n)
	}
	return p
}

func (p pointer) index(i int) pointer {
	return pointer{parts: append(p.parts[:len(p.parts):len(p.parts)], strconv.Itoa(i))}
}

func (p pointer) String() string {
	if len(p.parts) == 0 {
		return "/"
	}
	return "/" + strings.Join(p.parts, "/")
}
