// Package mapper translates criteria, updates, search options and plain
// objects between object space and entity space using a compiled mapping.
//
// The walk is driven by the mapping's key table for the direction: keys the
// mapping does not declare are dropped, which is how detached projections
// work. Conditions and actions keep their tag; only their payload is
// rewritten.
package mapper

import (
	"fmt"

	"github.com/roach88/entitymap/internal/ir"
	"github.com/roach88/entitymap/internal/mapping"
	"github.com/roach88/entitymap/internal/queryir"
)

// Mapper maps one entity type. It is safe for concurrent use.
type Mapper struct {
	compiled *mapping.Compiled
}

// New returns a Mapper over compiled.
func New(compiled *mapping.Compiled) *Mapper {
	return &Mapper{compiled: compiled}
}

// Compiled returns the mapping the Mapper was built with.
func (m *Mapper) Compiled() *mapping.Compiled {
	return m.compiled
}

// MapSearchCriteria maps object criteria into entity criteria. Nil criteria
// map to an empty tree, meaning "match everything".
func (m *Mapper) MapSearchCriteria(criteria queryir.Criteria) (queryir.Criteria, error) {
	return mapTree(criteria, m.compiled, mapping.Forward, nil)
}

// MapUpdate maps an object update into an entity update.
func (m *Mapper) MapUpdate(update queryir.Update) (queryir.Update, error) {
	return mapTree(update, m.compiled, mapping.Forward, nil)
}

// MapDetachedObjectToEntity maps a new object into its entity.
func (m *Mapper) MapDetachedObjectToEntity(object ir.Document) (ir.Document, error) {
	return mapTree(object, m.compiled, mapping.Forward, nil)
}

// MapEntityToAttachedObject maps a stored entity back into an object.
func (m *Mapper) MapEntityToAttachedObject(entity ir.Document) (ir.Document, error) {
	return mapTree(entity, m.compiled, mapping.Reverse, nil)
}

// MapSearchOptions maps sort keys into entity keys, keeping their order.
// Sort keys the mapping does not declare are dropped.
func (m *Mapper) MapSearchOptions(opts queryir.SearchOptions) queryir.SearchOptions {
	out := queryir.SearchOptions{Skip: opts.Skip, Limit: opts.Limit}
	for _, field := range opts.SortBy {
		target, ok := m.compiled.EntityKey(field.Key)
		if !ok {
			continue
		}
		out.SortBy = append(out.SortBy, queryir.SortField{Key: target, Direction: field.Direction})
	}
	return out
}

func mapTree(input map[string]any, compiled *mapping.Compiled, dir mapping.Direction, path []string) (map[string]any, error) {
	out := make(map[string]any, len(input))
	for _, key := range compiled.Keys(dir) {
		value, present := input[key]
		if !present {
			continue
		}
		target, _ := compiled.Target(dir, key)
		keyPath := append(path[:len(path):len(path)], key)

		mapped, err := mapValue(key, value, compiled, dir, keyPath)
		if err != nil {
			return nil, err
		}
		out[target] = mapped
	}
	return out, nil
}

// mapValue rewrites one value, re-wrapping conditions and actions with their
// original tag.
func mapValue(key string, value any, compiled *mapping.Compiled, dir mapping.Direction, path []string) (any, error) {
	if c, ok := queryir.AsCondition(value); ok {
		if c.Kind().IsExistence() {
			return c, nil
		}
		payload, err := transformPayload(key, c.Value(), compiled, dir, path)
		if err != nil {
			return nil, err
		}
		return c.WithValue(payload), nil
	}

	if a, ok := queryir.AsAction(value); ok {
		if a.Kind().IsClear() {
			return a, nil
		}
		payload, err := transformPayload(key, a.Value(), compiled, dir, path)
		if err != nil {
			return nil, err
		}
		return a.WithValue(payload), nil
	}

	return transformPayload(key, value, compiled, dir, path)
}

func transformPayload(key string, value any, compiled *mapping.Compiled, dir mapping.Direction, path []string) (any, error) {
	if nested := compiled.Nested(dir, key); nested != nil {
		return mapNested(value, nested, dir, path)
	}

	if elemFn := compiled.ElementTransform(dir, key); elemFn != nil {
		if value == nil {
			return nil, nil
		}
		return applyEach(value, elemFn, path)
	}

	fn := compiled.Transform(dir, key)
	if fn == nil {
		return value, nil
	}
	return applyEach(value, fn, path)
}

// mapNested maps a nested object, or every element of an object array.
// A nil payload is a null object and is kept as is.
func mapNested(value any, nested *mapping.Compiled, dir mapping.Direction, path []string) (any, error) {
	if value == nil {
		return nil, nil
	}
	if obj, ok := value.(map[string]any); ok {
		return mapTree(obj, nested, dir, path)
	}
	list, ok := ir.AsSlice(value)
	if !ok {
		return nil, &mapping.TransformError{Path: path, Err: errNotAnObject(value)}
	}

	out := make([]any, len(list))
	for i, elem := range list {
		if elem == nil {
			continue
		}
		obj, ok := elem.(map[string]any)
		if !ok {
			return nil, &mapping.TransformError{Path: path, Err: errNotAnObject(elem)}
		}
		mapped, err := mapTree(obj, nested, dir, path)
		if err != nil {
			return nil, err
		}
		out[i] = mapped
	}
	return out, nil
}

// applyEach applies fn to value, or to each element when value is an array.
func applyEach(value any, fn mapping.Transform, path []string) (any, error) {
	list, ok := ir.AsSlice(value)
	if !ok {
		res, err := fn(value)
		if err != nil {
			return nil, &mapping.TransformError{Path: path, Err: err}
		}
		return res, nil
	}

	out := make([]any, len(list))
	for i, elem := range list {
		res, err := fn(elem)
		if err != nil {
			return nil, &mapping.TransformError{Path: path, Err: err}
		}
		out[i] = res
	}
	return out, nil
}

func errNotAnObject(v any) error {
	return fmt.Errorf("expected an object, got %T", v)
}
