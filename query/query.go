package query

import (
	lv "github.com/reoring/leanvirtuals"
)

// Op names a query operation hooks can attach to.
type Op string

const (
	OpFind              Op = "find"
	OpFindOne           Op = "findOne"
	OpFindOneAndUpdate  Op = "findOneAndUpdate"
	OpFindOneAndReplace Op = "findOneAndReplace"
	OpFindOneAndDelete  Op = "findOneAndDelete"
	OpCursor            Op = "cursor"
)

// Ops lists every operation in a stable order.
var Ops = []Op{OpFind, OpFindOne, OpFindOneAndUpdate, OpFindOneAndReplace, OpFindOneAndDelete, OpCursor}

// Filter matches documents whose value at each dotted path equals the given
// value. A path reaching an array matches when any element is equal.
type Filter map[string]any

// SortField orders results by a dotted path.
type SortField struct {
	Path string
	Desc bool
}

// FindOptions shapes multi-document reads.
type FindOptions struct {
	Sort  []SortField
	Limit int
}

// LeanOptions marks a query as lean. Virtuals is the requested selection; the
// zero Selection defers to the plugin's EnabledByDefault.
type LeanOptions struct {
	Virtuals lv.Selection
}

// PopulateSpec fills Path on every result with the documents of From whose
// ForeignField equals the result's LocalField.
type PopulateSpec struct {
	Path         string
	From         Collection
	LocalField   string
	ForeignField string
	JustOne      bool
}

// Query describes one operation as seen by hooks.
type Query struct {
	Op         Op
	Collection string
	Filter     Filter
	Update     map[string]any
	Sort       []SortField
	Limit      int
	Lean       *LeanOptions
	Populate   []PopulateSpec
}

// IsLean reports whether results stay plain maps.
func (q *Query) IsLean() bool { return q != nil && q.Lean != nil }

func (q *Query) findOptions() FindOptions {
	return FindOptions{Sort: q.Sort, Limit: q.Limit}
}

// Option adjusts a Query before it runs.
type Option func(*Query)

// Lean makes the query lean and requests sel. Pass lv.Selection{} to leave
// the choice to the plugin options.
func Lean(sel lv.Selection) Option {
	return func(q *Query) { q.Lean = &LeanOptions{Virtuals: sel} }
}

// SortBy appends a sort key.
func SortBy(path string, desc bool) Option {
	return func(q *Query) { q.Sort = append(q.Sort, SortField{Path: path, Desc: desc}) }
}

// Limit caps the number of documents returned. n <= 0 means no limit.
func Limit(n int) Option {
	return func(q *Query) { q.Limit = n }
}

// Populate resolves a reference before hooks run, so a reference virtual
// declared at path sees the referenced documents.
func Populate(path string, from Collection, localField, foreignField string, justOne bool) Option {
	return func(q *Query) {
		q.Populate = append(q.Populate, PopulateSpec{
			Path:         path,
			From:         from,
			LocalField:   localField,
			ForeignField: foreignField,
			JustOne:      justOne,
		})
	}
}
