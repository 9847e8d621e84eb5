package queryir

import (
	"fmt"
	"strconv"

	"github.com/roach88/entitymap/internal/ir"
)

// ConditionKind tags a Condition.
type ConditionKind uint8

const (
	CondEquals ConditionKind = iota + 1
	CondDoesNotEqual

	CondExists
	CondArrayExists
	CondObjectExists
	CondObjectArrayExists
	CondDoesNotExist
	CondArrayDoesNotExist
	CondObjectDoesNotExist
	CondObjectArrayDoesNotExist

	CondStartsWith
	CondDoesNotStartWith
	CondEndsWith
	CondDoesNotEndWith
	CondContains
	CondDoesNotContain

	CondIsGreaterThan
	CondIsGreaterThanOrEqual
	CondIsLesserThan
	CondIsLesserThanOrEqual

	CondIsOneOfTheValues
	CondIsNoneOfTheValues

	CondHasElement
	CondDoesNotHaveElement
	CondHasAnyOfTheElements
	CondHasNoneOfTheElements
	CondHasAllElements

	CondNestedCriteria
	CondHasElementThatMatches
	CondHasNoElementThatMatches

	conditionKindEnd
)

// NumConditionKinds is the number of defined condition kinds.
const NumConditionKinds = int(conditionKindEnd) - 1

var conditionNames = [...]string{
	CondEquals:                  "Equals",
	CondDoesNotEqual:            "DoesNotEqual",
	CondExists:                  "Exists",
	CondArrayExists:             "ArrayExists",
	CondObjectExists:            "ObjectExists",
	CondObjectArrayExists:       "ObjectArrayExists",
	CondDoesNotExist:            "DoesNotExist",
	CondArrayDoesNotExist:       "ArrayDoesNotExist",
	CondObjectDoesNotExist:      "ObjectDoesNotExist",
	CondObjectArrayDoesNotExist: "ObjectArrayDoesNotExist",
	CondStartsWith:              "StartsWith",
	CondDoesNotStartWith:        "DoesNotStartWith",
	CondEndsWith:                "EndsWith",
	CondDoesNotEndWith:          "DoesNotEndWith",
	CondContains:                "Contains",
	CondDoesNotContain:          "DoesNotContain",
	CondIsGreaterThan:           "IsGreaterThan",
	CondIsGreaterThanOrEqual:    "IsGreaterThanOrEqual",
	CondIsLesserThan:            "IsLesserThan",
	CondIsLesserThanOrEqual:     "IsLesserThanOrEqual",
	CondIsOneOfTheValues:        "IsOneOfTheValues",
	CondIsNoneOfTheValues:       "IsNoneOfTheValues",
	CondHasElement:              "HasElement",
	CondDoesNotHaveElement:      "DoesNotHaveElement",
	CondHasAnyOfTheElements:     "HasAnyOfTheElements",
	CondHasNoneOfTheElements:    "HasNoneOfTheElements",
	CondHasAllElements:          "HasAllElements",
	CondNestedCriteria:          "NestedCriteria",
	CondHasElementThatMatches:   "HasElementThatMatches",
	CondHasNoElementThatMatches: "HasNoElementThatMatches",
}

// String returns the tag name, e.g. "IsGreaterThan".
func (k ConditionKind) String() string {
	if k.Valid() {
		return conditionNames[k]
	}
	return "ConditionKind(" + strconv.Itoa(int(k)) + ")"
}

// Valid reports whether k is a defined kind.
func (k ConditionKind) Valid() bool {
	return k > 0 && k < conditionKindEnd
}

// IsExistence reports whether k is one of the existence-only kinds, which
// carry no payload.
func (k ConditionKind) IsExistence() bool {
	return k >= CondExists && k <= CondObjectArrayDoesNotExist
}

// IsNested reports whether k wraps a Criteria sub-tree.
func (k ConditionKind) IsNested() bool {
	return k == CondNestedCriteria || k == CondHasElementThatMatches || k == CondHasNoElementThatMatches
}

// ConditionKindByName looks up a kind by its tag name.
func ConditionKindByName(name string) (ConditionKind, bool) {
	for k := CondEquals; k < conditionKindEnd; k++ {
		if conditionNames[k] == name {
			return k, true
		}
	}
	return 0, false
}

// Condition describes how a single field is compared in a search.
//
// The zero value is malformed. Use the constructors in this package.
type Condition struct {
	kind  ConditionKind
	value any
}

// Kind returns the condition's tag.
func (c Condition) Kind() ConditionKind { return c.kind }

// Value returns the payload. Existence-only conditions return nil.
func (c Condition) Value() any { return c.value }

// WithValue returns a condition of the same kind carrying v.
func (c Condition) WithValue(v any) Condition {
	return Condition{kind: c.kind, value: v}
}

// Criteria returns the sub-tree of a nested condition.
func (c Condition) Criteria() Criteria {
	m, _ := c.value.(map[string]any)
	return m
}

// List returns the payload of a list-valued condition as []any.
func (c Condition) List() []any {
	return toList(c.value)
}

func (c Condition) String() string {
	if c.kind.IsExistence() {
		return c.kind.String() + "()"
	}
	return fmt.Sprintf("%s(%v)", c.kind, c.value)
}

// AsCondition extracts a Condition from a tree value. Both value and
// non-nil pointer forms are accepted.
func AsCondition(v any) (Condition, bool) {
	switch c := v.(type) {
	case Condition:
		return c, true
	case *Condition:
		if c != nil {
			return *c, true
		}
	}
	return Condition{}, false
}

// NewCondition builds a condition from a kind and payload and validates it.
// It is the entry point for decoders; application code uses the typed
// constructors below.
func NewCondition(kind ConditionKind, value any) (Condition, error) {
	if kind.IsExistence() {
		value = nil
	}
	c := Condition{kind: kind, value: value}
	if err := c.Validate(); err != nil {
		return Condition{}, err
	}
	return c, nil
}

// Equals checks if the property equals value.
// Equals must not wrap an empty array; use ArrayDoesNotExist instead.
func Equals(value any) Condition { return Condition{kind: CondEquals, value: value} }

// DoesNotEqual checks if the property does not equal value, assuming the
// parent object exists.
func DoesNotEqual(value any) Condition { return Condition{kind: CondDoesNotEqual, value: value} }

// Exists checks if the property is present and not null.
func Exists() Condition { return Condition{kind: CondExists} }

// ArrayExists checks if the array is present and not empty.
func ArrayExists() Condition { return Condition{kind: CondArrayExists} }

// ObjectExists checks if the nested object is present.
func ObjectExists() Condition { return Condition{kind: CondObjectExists} }

// ObjectArrayExists checks if the object array is present and not empty.
func ObjectArrayExists() Condition { return Condition{kind: CondObjectArrayExists} }

// DoesNotExist checks if the property is absent or null.
func DoesNotExist() Condition { return Condition{kind: CondDoesNotExist} }

// ArrayDoesNotExist checks if the array is absent, null or empty.
func ArrayDoesNotExist() Condition { return Condition{kind: CondArrayDoesNotExist} }

// ObjectDoesNotExist checks if the nested object is absent or null.
func ObjectDoesNotExist() Condition { return Condition{kind: CondObjectDoesNotExist} }

// ObjectArrayDoesNotExist checks if the object array is absent, null or empty.
func ObjectArrayDoesNotExist() Condition { return Condition{kind: CondObjectArrayDoesNotExist} }

// StartsWith checks case-insensitively if the string starts with prefix.
func StartsWith(prefix string) Condition { return Condition{kind: CondStartsWith, value: prefix} }

// DoesNotStartWith is the negation of StartsWith.
func DoesNotStartWith(prefix string) Condition {
	return Condition{kind: CondDoesNotStartWith, value: prefix}
}

// EndsWith checks case-insensitively if the string ends with suffix.
func EndsWith(suffix string) Condition { return Condition{kind: CondEndsWith, value: suffix} }

// DoesNotEndWith is the negation of EndsWith.
func DoesNotEndWith(suffix string) Condition {
	return Condition{kind: CondDoesNotEndWith, value: suffix}
}

// Contains checks case-insensitively if the string contains substring.
func Contains(substring string) Condition { return Condition{kind: CondContains, value: substring} }

// DoesNotContain is the negation of Contains.
func DoesNotContain(substring string) Condition {
	return Condition{kind: CondDoesNotContain, value: substring}
}

// IsGreaterThan checks if a number, string or time is greater than value.
func IsGreaterThan(value any) Condition { return Condition{kind: CondIsGreaterThan, value: value} }

// IsGreaterThanOrEqual checks if a number, string or time is >= value.
func IsGreaterThanOrEqual(value any) Condition {
	return Condition{kind: CondIsGreaterThanOrEqual, value: value}
}

// IsLesserThan checks if a number, string or time is lower than value.
func IsLesserThan(value any) Condition { return Condition{kind: CondIsLesserThan, value: value} }

// IsLesserThanOrEqual checks if a number, string or time is <= value.
func IsLesserThanOrEqual(value any) Condition {
	return Condition{kind: CondIsLesserThanOrEqual, value: value}
}

// IsOneOfTheValues checks if the property is one of values.
func IsOneOfTheValues(values ...any) Condition {
	return Condition{kind: CondIsOneOfTheValues, value: toList(values)}
}

// IsNoneOfTheValues checks if the property is none of values.
func IsNoneOfTheValues(values ...any) Condition {
	return Condition{kind: CondIsNoneOfTheValues, value: toList(values)}
}

// HasElement checks if the array contains element.
func HasElement(element any) Condition { return Condition{kind: CondHasElement, value: element} }

// DoesNotHaveElement checks if the array does not contain element. Missing
// and null arrays match.
func DoesNotHaveElement(element any) Condition {
	return Condition{kind: CondDoesNotHaveElement, value: element}
}

// HasAnyOfTheElements checks if the array shares at least one element with
// elements.
func HasAnyOfTheElements(elements ...any) Condition {
	return Condition{kind: CondHasAnyOfTheElements, value: toList(elements)}
}

// HasNoneOfTheElements checks if the array shares no element with elements.
// Missing and null arrays match.
func HasNoneOfTheElements(elements ...any) Condition {
	return Condition{kind: CondHasNoneOfTheElements, value: toList(elements)}
}

// HasAllElements checks if the array contains every one of elements.
func HasAllElements(elements ...any) Condition {
	return Condition{kind: CondHasAllElements, value: toList(elements)}
}

// NestedCriteria checks if the nested object matches criteria.
func NestedCriteria(criteria Criteria) Condition {
	return Condition{kind: CondNestedCriteria, value: nonNilTree(criteria)}
}

// HasElementThatMatches checks if the object array has an element matching
// criteria.
func HasElementThatMatches(criteria Criteria) Condition {
	return Condition{kind: CondHasElementThatMatches, value: nonNilTree(criteria)}
}

// HasNoElementThatMatches checks if no element of the object array matches
// criteria.
func HasNoElementThatMatches(criteria Criteria) Condition {
	return Condition{kind: CondHasNoElementThatMatches, value: nonNilTree(criteria)}
}

func toList(v any) []any {
	if v == nil {
		return []any{}
	}
	if l, ok := ir.AsSlice(v); ok {
		if l == nil {
			return []any{}
		}
		return l
	}
	return nil
}

func nonNilTree(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
