package ir

import (
	"cmp"
	"strings"
	"time"
)

// Compare orders a and b. The second result is false when the two values
// have no common ordering (different kinds, maps, slices, nil).
func Compare(a, b any) (int, bool) {
	if isInteger(a) && isInteger(b) {
		x, _ := ToInt64(a)
		y, _ := ToInt64(b)
		return cmp.Compare(x, y), true
	}
	if x, ok := ToFloat(a); ok {
		if y, ok := ToFloat(b); ok {
			return cmp.Compare(x, y), true
		}
		return 0, false
	}

	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv), true
		}
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv), true
		}
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case av == bv:
				return 0, true
			case !av:
				return -1, true
			default:
				return 1, true
			}
		}
	}
	return 0, false
}
