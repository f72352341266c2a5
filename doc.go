// Package leanvirtuals attaches computed ("virtual") fields to lean query
// results: plain map[string]any / []any trees returned by a document store
// without model hydration.
//
// It provides:
//
//   - A read-only Schema contract describing virtuals, embedded sub-schemas and
//     discriminator variants (build one with the dsl package or load one with
//     schemafile)
//   - Selection of the virtuals to apply (All, None, Only("a", "child.b"))
//   - Attach, which walks a result tree bottom-up and writes each selected
//     virtual at its dotted path, inside arrays, sub-documents, discriminator
//     variants and recursive schemas
//   - Parent, giving getters access to the enclosing document with its own
//     virtuals already attached
//
// Design policy:
//   - Keep only public APIs in the root package; put helpers under internal/.
//   - Place the builder DSL under dsl/, query hooks under query/, document
//     stores under store/, and the CLI under cmd/leanvirtuals.
//   - Attach never fails on its own: unknown virtuals, absent paths and empty
//     arrays are no-ops. Getter errors are returned unchanged.
//
// Typical usage:
//
//	person := dsl.Object().
//	    Virtual("fullName", func(ctx context.Context, _ any, doc map[string]any) (any, error) {
//	        p, err := leanvirtuals.Parent(ctx, doc)
//	        if err != nil || p == nil {
//	            return doc["firstName"], err
//	        }
//	        return fmt.Sprintf("%v %v", doc["firstName"], p["lastName"]), nil
//	    }).
//	    MustBuild()
//	res, err := leanvirtuals.Attach(ctx, person, docs, leanvirtuals.All())
package leanvirtuals
