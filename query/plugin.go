package query

import (
	"context"

	lv "github.com/reoring/leanvirtuals"
)

// Plugin registers hooks for a schema.
type Plugin func(s lv.Schema, h *Hooks)

// LeanVirtualsHook is the name the lean-virtuals transform registers under.
const LeanVirtualsHook = "leanVirtuals"

// LeanVirtuals attaches the schema's virtuals to the results of lean queries.
// The transform is prepended on every operation so that later hooks observe
// the virtuals. Non-lean queries are left alone.
func LeanVirtuals(opts ...lv.Options) Plugin {
	var o lv.Options
	if len(opts) > 0 {
		o = opts[0]
	}
	return func(s lv.Schema, h *Hooks) {
		attach := func(ctx context.Context, q *Query, res any) (any, error) {
			if !q.IsLean() {
				return res, nil
			}
			return lv.Attach(ctx, s, res, o.Effective(q.Lean.Virtuals))
		}
		for _, op := range Ops {
			h.Prepend(op, LeanVirtualsHook, attach)
		}
	}
}
