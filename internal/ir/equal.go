package ir

import (
	"reflect"
	"time"
)

// DeepEqual reports whether a and b are structurally equal.
//
// Maps compare by key set and values regardless of insertion order, slices
// element by element, numbers by value across Go numeric types, and times
// with time.Time.Equal. Anything else falls back to reflect.DeepEqual.
func DeepEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	if isInteger(a) && isInteger(b) {
		x, _ := ToInt64(a)
		y, _ := ToInt64(b)
		return x == y
	}
	if x, ok := ToFloat(a); ok {
		y, ok := ToFloat(b)
		return ok && x == y
	}

	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			w, ok := bv[k]
			if !ok || !DeepEqual(v, w) {
				return false
			}
		}
		return true
	}

	if as, ok := AsSlice(a); ok {
		bs, ok := AsSlice(b)
		if !ok || len(as) != len(bs) {
			return false
		}
		for i := range as {
			if !DeepEqual(as[i], bs[i]) {
				return false
			}
		}
		return true
	}

	return reflect.DeepEqual(a, b)
}

// ContainsEqual reports whether list holds an element deeply equal to v.
func ContainsEqual(list []any, v any) bool {
	for _, e := range list {
		if DeepEqual(e, v) {
			return true
		}
	}
	return false
}
