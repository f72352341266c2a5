package leanvirtuals

import "github.com/reoring/leanvirtuals/internal/docpath"

// ResolveDiscriminator returns the variant of s selected by doc, or s itself
// when s declares no variants or none matches. Variants are tried in
// declaration order; the first whose key/value pair matches the stored field
// wins. Values compare loosely so "2" selects a variant declared with 2.
func ResolveDiscriminator(s Schema, doc map[string]any) Schema {
	if s == nil || doc == nil {
		return s
	}
	for _, d := range s.Discriminators() {
		if d.Schema == nil || d.Key == "" {
			continue
		}
		stored, ok := doc[d.Key]
		if !ok {
			continue
		}
		if docpath.Equal(stored, d.Value) {
			return d.Schema
		}
	}
	return s
}
