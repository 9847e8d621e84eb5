package queryir

import (
	"fmt"

	"github.com/roach88/entitymap/internal/ir"
)

// Criteria is a search request tree. Values are raw values (meaning Equals)
// or Conditions. Absent keys are ignored; nil values mean null.
type Criteria = map[string]any

// Update is an update request tree. Values are raw values (meaning Set) or
// Actions.
type Update = map[string]any

// SortDirection orders a sort key.
type SortDirection string

const (
	Asc  SortDirection = "asc"
	Desc SortDirection = "desc"
)

// SortField is one entry of a sort specification.
type SortField struct {
	Key       string
	Direction SortDirection
}

// SearchOptions page and order a search.
//
// Zero Skip and Limit mean "not set". Null values sort first on the first
// sort key only.
type SearchOptions struct {
	Skip   int
	Limit  int
	SortBy []SortField
}

// ConditionOf returns the condition expressed by a criteria value: v itself
// when it is a Condition, otherwise Equals(v).
func ConditionOf(v any) Condition {
	if c, ok := AsCondition(v); ok {
		return c
	}
	return Equals(v)
}

// ActionOf returns the action expressed by an update value: v itself when
// it is an Action, otherwise Set(v).
func ActionOf(v any) Action {
	if a, ok := AsAction(v); ok {
		return a
	}
	return Set(v)
}

// ValidateCriteria validates every condition of c, recursing into nested
// conditions. Raw values are validated as Equals.
func ValidateCriteria(c Criteria) error {
	for _, key := range ir.SortedKeys(c) {
		if err := ConditionOf(c[key]).Validate(); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	return nil
}

// ValidateUpdate validates every action of u, recursing into nested actions.
func ValidateUpdate(u Update) error {
	for _, key := range ir.SortedKeys(u) {
		if err := ActionOf(u[key]).Validate(); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	return nil
}
