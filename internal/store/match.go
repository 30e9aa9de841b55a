package store

import (
	"strings"
	"time"
)

// Matches evaluates filter against row in process. Adapters without a query
// language of their own use it.
func Matches(row Row, filter Filter) bool {
	for _, c := range filter.All {
		if !matchCond(row, c) {
			return false
		}
	}
	if len(filter.Any) == 0 {
		return true
	}
	for _, c := range filter.Any {
		if matchCond(row, c) {
			return true
		}
	}
	return false
}

func matchCond(row Row, c Cond) bool {
	v := row[c.Field]
	switch c.Op {
	case OpEq:
		return Equal(v, c.Value)
	case OpNeq:
		return !Equal(v, c.Value)
	case OpEqualFold:
		s, ok := v.(string)
		want, wok := c.Value.(string)
		return ok && wok && strings.EqualFold(s, want)
	case OpContainsFold:
		s, ok := v.(string)
		want, wok := c.Value.(string)
		return ok && wok && strings.Contains(strings.ToLower(s), strings.ToLower(want))
	default:
		return false
	}
}

// Equal compares two column values, treating all integer widths alike.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if ai, ok := toInt64(a); ok {
		bi, ok := toInt64(b)
		return ok && ai == bi
	}
	if at, ok := a.(time.Time); ok {
		bt, ok := b.(time.Time)
		return ok && at.Equal(bt)
	}
	return a == b
}

// Less orders two column values; mismatched or nil values sort first.
func Less(a, b any) bool {
	if ai, ok := toInt64(a); ok {
		if bi, ok := toInt64(b); ok {
			return ai < bi
		}
	}
	switch av := a.(type) {
	case float64:
		if bv, ok := b.(float64); ok {
			return av < bv
		}
	case string:
		if bv, ok := b.(string); ok {
			return av < bv
		}
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Before(bv)
		}
	}
	return a == nil && b != nil
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	default:
		return 0, false
	}
}
