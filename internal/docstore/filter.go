package docstore

import (
	"reflect"
	"strconv"
)

// FilterOp is the comparison a Filter performs.
type FilterOp int

const (
	FilterEq FilterOp = iota
	FilterGte
	FilterLte
)

// Filter restricts Find results. A path that crosses an array matches when any
// element matches, the way document databases evaluate dotted paths.
type Filter struct {
	Path  Path
	Op    FilterOp
	Value any
}

// Eq matches documents whose value at path equals v.
func Eq(path Path, v any) Filter { return Filter{Path: path, Op: FilterEq, Value: v} }

// Gte matches documents whose numeric value at path is at least v.
func Gte(path Path, v float64) Filter { return Filter{Path: path, Op: FilterGte, Value: v} }

// Lte matches documents whose numeric value at path is at most v.
func Lte(path Path, v float64) Filter { return Filter{Path: path, Op: FilterLte, Value: v} }

// Matches evaluates every filter against body. Filter values must be
// normalized (see NormalizeFilters).
func Matches(body map[string]any, filters ...Filter) bool {
	for _, f := range filters {
		if !matchAt(body, f.Path, f) {
			return false
		}
	}
	return true
}

// NormalizeFilters converts filter values into JSON-normal form.
func NormalizeFilters(filters []Filter) ([]Filter, error) {
	out := make([]Filter, len(filters))
	for i, f := range filters {
		v, err := Normalize(f.Value)
		if err != nil {
			return nil, err
		}
		f.Value = v
		out[i] = f
	}
	return out, nil
}

func matchAt(v any, rest Path, f Filter) bool {
	if arr, ok := v.([]any); ok {
		if len(rest) > 0 {
			if idx, err := strconv.Atoi(rest[0]); err == nil {
				if idx < 0 || idx >= len(arr) {
					return false
				}
				return matchAt(arr[idx], rest[1:], f)
			}
		}
		for _, el := range arr {
			if matchAt(el, rest, f) {
				return true
			}
		}
		if len(rest) > 0 {
			return false
		}
		return compare(arr, f)
	}
	if len(rest) == 0 {
		return compare(v, f)
	}
	m, ok := v.(map[string]any)
	if !ok {
		return false
	}
	next, ok := m[rest[0]]
	if !ok {
		return false
	}
	return matchAt(next, rest[1:], f)
}

func compare(v any, f Filter) bool {
	switch f.Op {
	case FilterEq:
		return reflect.DeepEqual(v, f.Value)
	case FilterGte, FilterLte:
		got, ok := v.(float64)
		if !ok {
			return false
		}
		want, ok := f.Value.(float64)
		if !ok {
			return false
		}
		if f.Op == FilterGte {
			return got >= want
		}
		return got <= want
	default:
		return false
	}
}
