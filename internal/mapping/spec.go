package mapping

// Transform converts a single value between object space and entity space.
// Transforms receive nil for null values and should pass it through.
type Transform func(any) (any, error)

// FieldKind identifies how an object key maps to its entity key.
type FieldKind uint8

const (
	// FieldKey renames the key without transforming the value.
	FieldKey FieldKind = iota + 1

	// FieldProperty renames the key and transforms the value.
	FieldProperty

	// FieldArray renames the key and transforms every element of the array.
	FieldArray

	// FieldNestedObject maps a nested object with a child spec.
	FieldNestedObject

	// FieldObjectArray maps every element of an array of objects with a
	// child spec.
	FieldObjectArray
)

var fieldKindNames = map[FieldKind]string{
	FieldKey:          "key",
	FieldProperty:     "property",
	FieldArray:        "array",
	FieldNestedObject: "object",
	FieldObjectArray:  "objectArray",
}

func (k FieldKind) String() string {
	if name, ok := fieldKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// IsNested reports whether fields of this kind carry a child mapping.
func (k FieldKind) IsNested() bool {
	return k == FieldNestedObject || k == FieldObjectArray
}

// Field declares the mapping of one object key.
type Field struct {
	Kind    FieldKind
	Target  string
	Forward Transform
	Reverse Transform
	Child   Spec
}

// Spec maps object keys to their field declarations. Keys missing from a
// Spec are dropped by the mapper.
type Spec map[string]Field

// Key maps a key to target with no transform.
func Key(target string) Field {
	return Field{Kind: FieldKey, Target: target}
}

// Property maps a key to target, transforming its value with fwd on the way
// to entity space and rev on the way back.
func Property(target string, fwd, rev Transform) Field {
	return Field{Kind: FieldProperty, Target: target, Forward: fwd, Reverse: rev}
}

// Array maps an array key to target, transforming each element.
func Array(target string, fwdElem, revElem Transform) Field {
	return Field{Kind: FieldArray, Target: target, Forward: fwdElem, Reverse: revElem}
}

// NestedObject maps a nested object key to target using child.
func NestedObject(target string, child Spec) Field {
	return Field{Kind: FieldNestedObject, Target: target, Child: child}
}

// ObjectArray maps an array of objects to target using child for every
// element.
func ObjectArray(target string, child Spec) Field {
	return Field{Kind: FieldObjectArray, Target: target, Child: child}
}
