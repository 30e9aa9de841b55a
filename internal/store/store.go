package store

import (
	"context"
	"errors"
)

// ErrUnknownTable is returned by adapters asked to touch a table they do not manage.
var ErrUnknownTable = errors.New("unknown table")

// Row is a single record keyed by column name. Values are int64, float64,
// string, bool, time.Time or nil.
type Row map[string]any

// Clone returns a shallow copy of r.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Op is a comparison operator understood by every adapter.
type Op string

// Supported operators.
const (
	OpEq           Op = "eq"
	OpNeq          Op = "neq"
	OpEqualFold    Op = "equal_fold"
	OpContainsFold Op = "contains_fold"
)

// Cond compares one field against a value.
type Cond struct {
	Field string
	Op    Op
	Value any
}

// Eq matches rows whose field equals v.
func Eq(field string, v any) Cond { return Cond{Field: field, Op: OpEq, Value: v} }

// Neq matches rows whose field differs from v.
func Neq(field string, v any) Cond { return Cond{Field: field, Op: OpNeq, Value: v} }

// EqualFold matches rows whose string field equals v ignoring case.
func EqualFold(field string, v string) Cond {
	return Cond{Field: field, Op: OpEqualFold, Value: v}
}

// ContainsFold matches rows whose string field contains v ignoring case.
func ContainsFold(field string, v string) Cond {
	return Cond{Field: field, Op: OpContainsFold, Value: v}
}

// Filter selects rows matching every condition in All and, when Any is
// non-empty, at least one condition in Any.
type Filter struct {
	All []Cond
	Any []Cond
}

// Where builds a conjunctive filter.
func Where(conds ...Cond) Filter {
	return Filter{All: conds}
}

// Or adds a disjunctive group to f.
func (f Filter) Or(conds ...Cond) Filter {
	f.Any = append(append([]Cond(nil), f.Any...), conds...)
	return f
}

// FindOptions controls ordering and paging of Find.
type FindOptions struct {
	OrderBy string
	Desc    bool
	Limit   int
}

// Store is the CRUD surface of the external document store. Every method is
// a single round trip; no transactions are assumed.
type Store interface {
	Find(ctx context.Context, table string, filter Filter, opts FindOptions) ([]Row, error)
	// Insert writes row, assigning "id" when absent, and returns the stored row.
	Insert(ctx context.Context, table string, row Row) (Row, error)
	// Update applies set to every matching row and returns the updated rows.
	Update(ctx context.Context, table string, filter Filter, set Row) ([]Row, error)
	Delete(ctx context.Context, table string, filter Filter) error
	Count(ctx context.Context, table string, filter Filter) (int64, error)
}

// Pinger is implemented by stores that can report connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}
