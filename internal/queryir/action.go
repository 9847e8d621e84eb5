package queryir

import (
	"fmt"
	"strconv"
)

// ActionKind tags an Action.
type ActionKind uint8

const (
	ActSet ActionKind = iota + 1
	ActClear
	ActClearArray
	ActClearObject
	ActClearObjectArray
	ActIncrement
	ActPush
	ActPushEach
	ActPull
	ActPullEach
	ActNestedUpdate
	ActNestedArrayUpdate

	actionKindEnd
)

// NumActionKinds is the number of defined action kinds.
const NumActionKinds = int(actionKindEnd) - 1

var actionNames = [...]string{
	ActSet:               "Set",
	ActClear:             "Clear",
	ActClearArray:        "ClearArray",
	ActClearObject:       "ClearObject",
	ActClearObjectArray:  "ClearObjectArray",
	ActIncrement:         "Increment",
	ActPush:              "Push",
	ActPushEach:          "PushEach",
	ActPull:              "Pull",
	ActPullEach:          "PullEach",
	ActNestedUpdate:      "NestedUpdate",
	ActNestedArrayUpdate: "NestedArrayUpdate",
}

func (k ActionKind) String() string {
	if k.Valid() {
		return actionNames[k]
	}
	return "ActionKind(" + strconv.Itoa(int(k)) + ")"
}

// Valid reports whether k is a defined kind.
func (k ActionKind) Valid() bool {
	return k > 0 && k < actionKindEnd
}

// IsClear reports whether k is one of the Clear family, which carries no
// payload.
func (k ActionKind) IsClear() bool {
	return k >= ActClear && k <= ActClearObjectArray
}

// IsNested reports whether k wraps an Update sub-tree.
func (k ActionKind) IsNested() bool {
	return k == ActNestedUpdate || k == ActNestedArrayUpdate
}

// ActionKindByName looks up a kind by its tag name.
func ActionKindByName(name string) (ActionKind, bool) {
	for k := ActSet; k < actionKindEnd; k++ {
		if actionNames[k] == name {
			return k, true
		}
	}
	return 0, false
}

// Action describes how a single field is mutated by an update.
//
// The zero value is malformed.
type Action struct {
	kind  ActionKind
	value any
}

// Kind returns the action's tag.
func (a Action) Kind() ActionKind { return a.kind }

// Value returns the payload. Clear actions return nil.
func (a Action) Value() any { return a.value }

// WithValue returns an action of the same kind carrying v.
func (a Action) WithValue(v any) Action {
	return Action{kind: a.kind, value: v}
}

// Update returns the sub-tree of a nested action.
func (a Action) Update() Update {
	m, _ := a.value.(map[string]any)
	return m
}

// List returns the payload of PushEach and PullEach as []any.
func (a Action) List() []any {
	return toList(a.value)
}

func (a Action) String() string {
	if a.kind.IsClear() {
		return a.kind.String() + "()"
	}
	return fmt.Sprintf("%s(%v)", a.kind, a.value)
}

// AsAction extracts an Action from a tree value. Both value and non-nil
// pointer forms are accepted.
func AsAction(v any) (Action, bool) {
	switch a := v.(type) {
	case Action:
		return a, true
	case *Action:
		if a != nil {
			return *a, true
		}
	}
	return Action{}, false
}

// NewAction builds an action from a kind and payload and validates it.
func NewAction(kind ActionKind, value any) (Action, error) {
	if kind.IsClear() {
		value = nil
	}
	a := Action{kind: kind, value: value}
	if err := a.Validate(); err != nil {
		return Action{}, err
	}
	return a, nil
}

// Set assigns value to the property.
func Set(value any) Action { return Action{kind: ActSet, value: value} }

// Clear sets the property to null.
func Clear() Action { return Action{kind: ActClear} }

// ClearArray empties the array.
func ClearArray() Action { return Action{kind: ActClearArray} }

// ClearObject removes the nested object.
func ClearObject() Action { return Action{kind: ActClearObject} }

// ClearObjectArray removes every element of the object array.
func ClearObjectArray() Action { return Action{kind: ActClearObjectArray} }

// Increment adds n to a numeric property. A missing property counts as 0.
func Increment(n any) Action { return Action{kind: ActIncrement, value: n} }

// Push appends element to the array.
func Push(element any) Action { return Action{kind: ActPush, value: element} }

// PushEach appends every element to the array.
func PushEach(elements ...any) Action {
	return Action{kind: ActPushEach, value: toList(elements)}
}

// Pull removes every occurrence of element from the array.
func Pull(element any) Action { return Action{kind: ActPull, value: element} }

// PullEach removes every occurrence of each element from the array.
func PullEach(elements ...any) Action {
	return Action{kind: ActPullEach, value: toList(elements)}
}

// NestedUpdate applies update to the nested object.
func NestedUpdate(update Update) Action {
	return Action{kind: ActNestedUpdate, value: nonNilTree(update)}
}

// NestedArrayUpdate applies update to every element of the object array.
func NestedArrayUpdate(update Update) Action {
	return Action{kind: ActNestedArrayUpdate, value: nonNilTree(update)}
}
