// Package dsl builds read-only schema descriptors for leanvirtuals.
//
// # Overview
//
//   - Builder API: Object().Virtual(...).Child(...).MustBuild() declares virtuals,
//     embedded sub-schemas and discriminator variants.
//   - Getters: Path, ParentPath, Concat, Upper, Lower, Const, Count and Sum cover
//     the common cases; any func matching leanvirtuals.Getter works too.
//   - Recursion: Lazy(func() Schema) lets a schema embed itself.
//
// # Example
//
//	import (
//	    lv "github.com/reoring/leanvirtuals"
//	    g "github.com/reoring/leanvirtuals/dsl"
//	)
//
//	child := g.Object().
//	    Virtual("fullName", g.Concat(" ", "name", "$parent.lastName")).
//	    MustBuild()
//	person := g.Object().
//	    Virtual("nameUpper", g.Path("name"), g.Upper()).
//	    Virtual("owner", g.Path("ownerDoc")).Ref(true).
//	    Child("children", child).
//	    MustBuild()
//	out, err := lv.Attach(ctx, person, docs, lv.All())
//
// # Discriminators
//
//	base := g.Object().Virtual("kind", g.Path("type")).MustBuild()
//	shape := g.Object().Extend(base).
//	    Discriminator("type").
//	    OneOf(
//	        g.Variant("circle", g.Object().Extend(base).Virtual("area", areaOfCircle).MustBuild()),
//	        g.Variant("square", g.Object().Extend(base).Virtual("area", areaOfSquare).MustBuild()),
//	    ).
//	    MustBuild()
//
// # Errors
//
// Build reports declaration problems as leanvirtuals.Issues (empty names,
// duplicate virtuals, variants without a discriminator key).
package dsl
