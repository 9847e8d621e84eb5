package querymem

import (
	"fmt"

	"github.com/roach88/entitymap/internal/ir"
	"github.com/roach88/entitymap/internal/queryir"
)

// Mutator applies an update to a document in place and reports whether
// anything changed.
type Mutator func(doc ir.Document) (bool, error)

// mutate applies one action to a key of doc.
type mutate func(doc ir.Document, key string) (bool, error)

// CompileUpdate builds the mutator for update.
//
// A field only counts as changed when its value actually changes: setting
// an identical value, incrementing by zero or pulling an element that is
// not there are no-ops.
func CompileUpdate(update queryir.Update) (Mutator, error) {
	if err := queryir.ValidateUpdate(update); err != nil {
		return nil, err
	}
	return compileUpdate(update)
}

func compileUpdate(update queryir.Update) (Mutator, error) {
	type keyed struct {
		key string
		m   mutate
	}
	steps := make([]keyed, 0, len(update))
	for _, key := range ir.SortedKeys(update) {
		m, err := compileAction(queryir.ActionOf(update[key]))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		steps = append(steps, keyed{key: key, m: m})
	}

	return func(doc ir.Document) (bool, error) {
		changed := false
		for _, s := range steps {
			c, err := s.m(doc, s.key)
			if err != nil {
				return false, fmt.Errorf("%s: %w", s.key, err)
			}
			changed = changed || c
		}
		return changed, nil
	}, nil
}

func compileAction(a queryir.Action) (mutate, error) {
	switch a.Kind() {
	case queryir.ActSet:
		value := a.Value()
		return func(doc ir.Document, key string) (bool, error) {
			if old, ok := doc[key]; ok && ir.DeepEqual(old, value) {
				return false, nil
			}
			doc[key] = ir.Clone(value)
			return true, nil
		}, nil

	case queryir.ActClear, queryir.ActClearArray, queryir.ActClearObject, queryir.ActClearObjectArray:
		array := a.Kind() == queryir.ActClearArray || a.Kind() == queryir.ActClearObjectArray
		return func(doc ir.Document, key string) (bool, error) {
			if doc[key] == nil {
				return false, nil
			}
			if arr, ok := ir.AsSlice(doc[key]); array && ok && len(arr) == 0 {
				return false, nil
			}
			delete(doc, key)
			return true, nil
		}, nil

	case queryir.ActIncrement:
		by := a.Value()
		return func(doc ir.Document, key string) (bool, error) {
			if f, _ := ir.ToFloat(by); f == 0 {
				return false, nil
			}
			old := doc[key]
			if old == nil {
				old = int64(0)
			}
			sum, err := add(old, by)
			if err != nil {
				return false, err
			}
			doc[key] = sum
			return true, nil
		}, nil

	case queryir.ActPush:
		return push([]any{a.Value()}), nil
	case queryir.ActPushEach:
		return push(a.List()), nil
	case queryir.ActPull:
		return pull([]any{a.Value()}), nil
	case queryir.ActPullEach:
		return pull(a.List()), nil

	case queryir.ActNestedUpdate:
		nested, err := compileUpdate(a.Update())
		if err != nil {
			return nil, err
		}
		return func(doc ir.Document, key string) (bool, error) {
			switch v := doc[key].(type) {
			case nil:
				// a missing object is created and counts as changed
				obj := map[string]any{}
				if _, err := nested(obj); err != nil {
					return false, err
				}
				doc[key] = obj
				return true, nil
			case map[string]any:
				return nested(v)
			default:
				return false, queryir.NewInvalidUsageError(a.Kind().String(), "expected an object, got %T", v)
			}
		}, nil

	case queryir.ActNestedArrayUpdate:
		nested, err := compileUpdate(a.Update())
		if err != nil {
			return nil, err
		}
		return func(doc ir.Document, key string) (bool, error) {
			if doc[key] == nil {
				doc[key] = []any{}
				return true, nil
			}
			arr, ok := ir.AsSlice(doc[key])
			if !ok {
				return false, queryir.NewInvalidUsageError(a.Kind().String(), "expected an array, got %T", doc[key])
			}
			changed := false
			for i, e := range arr {
				obj, ok := e.(map[string]any)
				if !ok {
					return false, queryir.NewInvalidUsageError(a.Kind().String(), "element %d is not an object", i)
				}
				c, err := nested(obj)
				if err != nil {
					return false, fmt.Errorf("[%d]: %w", i, err)
				}
				changed = changed || c
			}
			return changed, nil
		}, nil
	}
	return nil, queryir.NewMalformedActionError(a.Kind().String())
}

func add(a, b any) (any, error) {
	x, ok := ir.ToInt64(a)
	y, ok2 := ir.ToInt64(b)
	if ok && ok2 && isIntegral(a) && isIntegral(b) {
		return x + y, nil
	}
	fa, ok := ir.ToFloat(a)
	if !ok {
		return nil, queryir.NewInvalidUsageError("Increment", "cannot increment a %T", a)
	}
	fb, _ := ir.ToFloat(b)
	return fa + fb, nil
}

func isIntegral(v any) bool {
	switch v.(type) {
	case float32, float64:
		return false
	}
	return true
}

func push(elements []any) mutate {
	return func(doc ir.Document, key string) (bool, error) {
		if len(elements) == 0 {
			return false, nil
		}
		var arr []any
		if doc[key] != nil {
			var ok bool
			if arr, ok = ir.AsSlice(doc[key]); !ok {
				return false, queryir.NewInvalidUsageError("Push", "expected an array, got %T", doc[key])
			}
		}
		out := make([]any, 0, len(arr)+len(elements))
		out = append(out, arr...)
		for _, e := range elements {
			out = append(out, ir.Clone(e))
		}
		doc[key] = out
		return true, nil
	}
}

func pull(elements []any) mutate {
	return func(doc ir.Document, key string) (bool, error) {
		if doc[key] == nil {
			return false, nil
		}
		arr, ok := ir.AsSlice(doc[key])
		if !ok {
			return false, queryir.NewInvalidUsageError("Pull", "expected an array, got %T", doc[key])
		}
		out := make([]any, 0, len(arr))
		for _, e := range arr {
			if !ir.ContainsEqual(elements, e) {
				out = append(out, e)
			}
		}
		if len(out) == len(arr) {
			return false, nil
		}
		doc[key] = out
		return true, nil
	}
}

// UpdateInPlace applies update to every document and returns how many
// changed.
func UpdateInPlace(docs []ir.Document, update queryir.Update) (int, error) {
	m, err := CompileUpdate(update)
	if err != nil {
		return 0, err
	}
	changed := 0
	for _, d := range docs {
		c, err := m(d)
		if err != nil {
			return changed, err
		}
		if c {
			changed++
		}
	}
	return changed, nil
}
