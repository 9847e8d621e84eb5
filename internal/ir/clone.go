package ir

import (
	"reflect"
	"slices"
)

// Clone returns a deep copy of v. Maps and slices are copied recursively;
// scalars and opaque values are returned as is.
func Clone(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case map[string]any:
		return map[string]any(CloneDocument(t))
	case []any:
		if t == nil {
			return t
		}
		out := make([]any, len(t))
		for i := range t {
			out[i] = Clone(t[i])
		}
		return out
	case []byte:
		return slices.Clone(t)
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice && !rv.IsNil() {
		cp := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		reflect.Copy(cp, rv)
		return cp.Interface()
	}
	return v
}

// CloneDocument returns a deep copy of d.
func CloneDocument(d Document) Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = Clone(v)
	}
	return out
}
