// Package querymem compiles entity-space criteria and updates into Go
// closures evaluated against in-memory documents.
//
// Compile and CompileUpdate validate and build the closure tree once; the
// returned functions can be applied to any number of documents.
package querymem

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"

	"github.com/roach88/entitymap/internal/ir"
	"github.com/roach88/entitymap/internal/queryir"
)

// Every condition and action kind must be handled below.
func _() {
	var x [1]struct{}
	_ = x[queryir.NumConditionKinds-30]
	_ = x[queryir.NumActionKinds-12]
}

// Predicate reports whether a document matches.
type Predicate func(doc ir.Document) bool

// match tests the value stored under a key; present is false when the key
// is absent.
type match func(v any, present bool) bool

// Compile builds the predicate for criteria. Every key must match.
func Compile(criteria queryir.Criteria) (Predicate, error) {
	if err := queryir.ValidateCriteria(criteria); err != nil {
		return nil, err
	}
	return compileCriteria(criteria)
}

func compileCriteria(criteria queryir.Criteria) (Predicate, error) {
	type keyed struct {
		key string
		m   match
	}
	tests := make([]keyed, 0, len(criteria))
	for _, key := range ir.SortedKeys(criteria) {
		m, err := compileCondition(queryir.ConditionOf(criteria[key]))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		tests = append(tests, keyed{key: key, m: m})
	}

	return func(doc ir.Document) bool {
		for _, t := range tests {
			v, present := doc[t.key]
			if !t.m(v, present) {
				return false
			}
		}
		return true
	}, nil
}

func compileCondition(c queryir.Condition) (match, error) {
	want := c.Value()

	switch c.Kind() {
	case queryir.CondEquals:
		if want == nil {
			return isNull, nil
		}
		return func(v any, present bool) bool { return present && ir.DeepEqual(v, want) }, nil
	case queryir.CondDoesNotEqual:
		if want == nil {
			return not(isNull), nil
		}
		return func(v any, present bool) bool { return !present || !ir.DeepEqual(v, want) }, nil

	case queryir.CondExists:
		return not(isNull), nil
	case queryir.CondDoesNotExist:
		return isNull, nil
	case queryir.CondArrayExists, queryir.CondObjectArrayExists:
		return nonEmptyArray, nil
	case queryir.CondArrayDoesNotExist, queryir.CondObjectArrayDoesNotExist:
		return not(nonEmptyArray), nil
	case queryir.CondObjectExists:
		return isObject, nil
	case queryir.CondObjectDoesNotExist:
		return not(isObject), nil

	case queryir.CondStartsWith:
		return stringMatch(want.(string), strings.HasPrefix), nil
	case queryir.CondDoesNotStartWith:
		return not(stringMatch(want.(string), strings.HasPrefix)), nil
	case queryir.CondEndsWith:
		return stringMatch(want.(string), strings.HasSuffix), nil
	case queryir.CondDoesNotEndWith:
		return not(stringMatch(want.(string), strings.HasSuffix)), nil
	case queryir.CondContains:
		return stringMatch(want.(string), strings.Contains), nil
	case queryir.CondDoesNotContain:
		return not(stringMatch(want.(string), strings.Contains)), nil

	case queryir.CondIsGreaterThan:
		return compare(want, func(n int) bool { return n > 0 }), nil
	case queryir.CondIsGreaterThanOrEqual:
		return compare(want, func(n int) bool { return n >= 0 }), nil
	case queryir.CondIsLesserThan:
		return compare(want, func(n int) bool { return n < 0 }), nil
	case queryir.CondIsLesserThanOrEqual:
		return compare(want, func(n int) bool { return n <= 0 }), nil

	case queryir.CondIsOneOfTheValues:
		list := c.List()
		return func(v any, present bool) bool { return present && ir.ContainsEqual(list, v) }, nil
	case queryir.CondIsNoneOfTheValues:
		list := c.List()
		return func(v any, present bool) bool { return !present || v == nil || !ir.ContainsEqual(list, v) }, nil

	case queryir.CondHasElement:
		return hasAny([]any{want}), nil
	case queryir.CondDoesNotHaveElement:
		return not(hasAny([]any{want})), nil
	case queryir.CondHasAnyOfTheElements:
		return hasAny(c.List()), nil
	case queryir.CondHasNoneOfTheElements:
		return not(hasAny(c.List())), nil
	case queryir.CondHasAllElements:
		list := c.List()
		return func(v any, _ bool) bool {
			arr, ok := ir.AsSlice(v)
			if !ok {
				return false
			}
			for _, e := range list {
				if !ir.ContainsEqual(arr, e) {
					return false
				}
			}
			return true
		}, nil

	case queryir.CondNestedCriteria:
		nested, err := compileCriteria(c.Criteria())
		if err != nil {
			return nil, err
		}
		return func(v any, _ bool) bool {
			obj, ok := v.(map[string]any)
			return ok && nested(obj)
		}, nil
	case queryir.CondHasElementThatMatches, queryir.CondHasNoElementThatMatches:
		nested, err := compileCriteria(c.Criteria())
		if err != nil {
			return nil, err
		}
		some := func(v any, _ bool) bool {
			arr, ok := ir.AsSlice(v)
			if !ok {
				return false
			}
			for _, e := range arr {
				if obj, ok := e.(map[string]any); ok && nested(obj) {
					return true
				}
			}
			return false
		}
		if c.Kind() == queryir.CondHasNoElementThatMatches {
			return not(some), nil
		}
		return some, nil
	}
	return nil, queryir.NewMalformedConditionError(c.Kind().String())
}

func not(m match) match {
	return func(v any, present bool) bool { return !m(v, present) }
}

func isNull(v any, present bool) bool {
	return !present || v == nil
}

func isObject(v any, _ bool) bool {
	_, ok := v.(map[string]any)
	return ok
}

func nonEmptyArray(v any, _ bool) bool {
	arr, ok := ir.AsSlice(v)
	return ok && len(arr) > 0
}

// stringMatch folds case on both sides before calling test.
func stringMatch(pattern string, test func(s, pattern string) bool) match {
	folded := cases.Fold().String(pattern)
	return func(v any, _ bool) bool {
		s, ok := v.(string)
		return ok && test(cases.Fold().String(s), folded)
	}
}

func compare(want any, accept func(int) bool) match {
	return func(v any, present bool) bool {
		if !present {
			return false
		}
		n, ok := ir.Compare(v, want)
		return ok && accept(n)
	}
}

func hasAny(list []any) match {
	return func(v any, _ bool) bool {
		arr, ok := ir.AsSlice(v)
		if !ok {
			return false
		}
		for _, e := range list {
			if ir.ContainsEqual(arr, e) {
				return true
			}
		}
		return false
	}
}

// Filter returns the documents matching p, in order.
func Filter(docs []ir.Document, p Predicate) []ir.Document {
	var out []ir.Document
	for _, d := range docs {
		if p(d) {
			out = append(out, d)
		}
	}
	return out
}
