package queryir

import (
	"github.com/roach88/entitymap/internal/ir"
)

// Validate checks that c is well-formed.
//
// Rules:
//   - The kind must be defined
//   - Equals and DoesNotEqual must not wrap an empty array
//   - String conditions need a string payload
//   - List conditions need an array payload
//   - Nested conditions need a criteria payload, validated recursively
//   - Comparisons need a non-nil payload
func (c Condition) Validate() error {
	tag := c.kind.String()

	switch c.kind {
	case CondEquals:
		if ir.IsEmptySlice(c.value) {
			return NewInvalidUsageError(tag,
				"Equals([]) is not supported; to check if an array does not exist, use ArrayDoesNotExist() or DoesNotExist()")
		}
	case CondDoesNotEqual:
		if ir.IsEmptySlice(c.value) {
			return NewInvalidUsageError(tag,
				"DoesNotEqual([]) is not supported; to check if an array exists, use ArrayExists() or Exists()")
		}

	case CondExists, CondArrayExists, CondObjectExists, CondObjectArrayExists,
		CondDoesNotExist, CondArrayDoesNotExist, CondObjectDoesNotExist, CondObjectArrayDoesNotExist:

	case CondStartsWith, CondDoesNotStartWith, CondEndsWith, CondDoesNotEndWith,
		CondContains, CondDoesNotContain:
		if _, ok := c.value.(string); !ok {
			return NewInvalidUsageError(tag, "%s requires a string, got %T", tag, c.value)
		}

	case CondIsGreaterThan, CondIsGreaterThanOrEqual, CondIsLesserThan, CondIsLesserThanOrEqual:
		if c.value == nil {
			return NewInvalidUsageError(tag, "%s requires a value, got null", tag)
		}

	case CondIsOneOfTheValues, CondIsNoneOfTheValues,
		CondHasAnyOfTheElements, CondHasNoneOfTheElements, CondHasAllElements:
		if _, ok := ir.AsSlice(c.value); !ok {
			return NewInvalidUsageError(tag, "%s requires an array, got %T", tag, c.value)
		}

	case CondHasElement, CondDoesNotHaveElement:

	case CondNestedCriteria, CondHasElementThatMatches, CondHasNoElementThatMatches:
		m, ok := c.value.(map[string]any)
		if !ok {
			return NewInvalidUsageError(tag, "%s requires nested criteria, got %T", tag, c.value)
		}
		return ValidateCriteria(m)

	default:
		return NewMalformedConditionError(tag)
	}
	return nil
}

// Validate checks that a is well-formed.
func (a Action) Validate() error {
	tag := a.kind.String()

	switch a.kind {
	case ActSet, ActPush, ActPull:
	case ActClear, ActClearArray, ActClearObject, ActClearObjectArray:

	case ActIncrement:
		if !ir.IsNumber(a.value) {
			return NewInvalidUsageError(tag, "Increment requires a number, got %T", a.value)
		}

	case ActPushEach, ActPullEach:
		if _, ok := ir.AsSlice(a.value); !ok {
			return NewInvalidUsageError(tag, "%s requires an array, got %T", tag, a.value)
		}

	case ActNestedUpdate, ActNestedArrayUpdate:
		m, ok := a.value.(map[string]any)
		if !ok {
			return NewInvalidUsageError(tag, "%s requires a nested update, got %T", tag, a.value)
		}
		return ValidateUpdate(m)

	default:
		return NewMalformedActionError(tag)
	}
	return nil
}
