package query

import (
	"context"
	"fmt"
	"time"

	"github.com/graph-gophers/dataloader"

	"github.com/reoring/leanvirtuals/internal/docpath"
)

// refKey keeps the stored local value so the foreign lookup compares like
// with like.
type refKey struct{ v any }

func (k refKey) String() string { return fmt.Sprint(k.v) }
func (k refKey) Raw() any       { return k.v }

// newRefLoader batches the lookups of one populate spec into a single FindIn
// call. A loader lives for a single query so cached results never go stale.
// The batch dispatches as soon as capacity keys are queued.
func newRefLoader(p PopulateSpec, capacity int) *dataloader.Loader {
	batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		results := make([]*dataloader.Result, len(keys))
		values := make([]any, len(keys))
		for i, k := range keys {
			values[i] = k.Raw()
		}
		docs, err := p.From.FindIn(ctx, p.ForeignField, values)
		if err != nil {
			for i := range results {
				results[i] = &dataloader.Result{Error: err}
			}
			return results
		}
		byKey := bucket(docs, p.ForeignField)
		for i, k := range keys {
			results[i] = &dataloader.Result{Data: byKey[k.String()]}
		}
		return results
	}
	return dataloader.NewBatchedLoader(batchFn,
		dataloader.WithBatchCapacity(capacity),
		dataloader.WithWait(16*time.Millisecond),
		dataloader.WithClearCacheOnBatch(),
	)
}

// bucket groups docs by each value found at the foreign path. A document
// whose foreign value is an array lands under every distinct element.
func bucket(docs []map[string]any, path string) map[string][]map[string]any {
	out := map[string][]map[string]any{}
	for _, d := range docs {
		v, ok := docpath.Get(d, docpath.Split(path))
		if !ok {
			continue
		}
		seen := map[string]bool{}
		for _, fv := range flatten(v) {
			k := refKey{v: fv}.String()
			if seen[k] {
				continue
			}
			seen[k] = true
			out[k] = append(out[k], d)
		}
	}
	return out
}

// populate resolves q.Populate on docs. Every key of a spec is queued before
// any is awaited, so one spec costs one FindIn no matter how many documents
// share or repeat keys. Documents without a match keep the path unset;
// reference virtuals then default it.
func (m *Model) populate(ctx context.Context, q *Query, docs []map[string]any) error {
	for _, p := range q.Populate {
		if p.From == nil || p.Path == "" {
			continue
		}
		keys := make([][]refKey, len(docs))
		unique := map[string]bool{}
		for i, d := range docs {
			v, ok := docpath.Get(d, docpath.Split(p.LocalField))
			if !ok {
				continue
			}
			for _, key := range flatten(v) {
				k := refKey{v: key}
				keys[i] = append(keys[i], k)
				unique[k.String()] = true
			}
		}
		if len(unique) == 0 {
			continue
		}
		loader := newRefLoader(p, len(unique))
		thunks := make([][]dataloader.Thunk, len(docs))
		for i, ks := range keys {
			for _, k := range ks {
				thunks[i] = append(thunks[i], loader.Load(ctx, k))
			}
		}
		for i, ts := range thunks {
			var found []any
			for _, th := range ts {
				data, err := th()
				if err != nil {
					return fmt.Errorf("populate %s: %w", p.Path, err)
				}
				for _, d := range data.([]map[string]any) {
					found = append(found, d)
				}
			}
			if len(found) == 0 {
				continue
			}
			var val any = found
			if p.JustOne {
				val = found[0]
			}
			docpath.Set(docs[i], docpath.Split(p.Path), val)
		}
	}
	return nil
}

func flatten(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		var out []any
		for _, el := range t {
			out = append(out, flatten(el)...)
		}
		return out
	default:
		return []any{v}
	}
}
