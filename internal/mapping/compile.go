package mapping

import (
	"slices"

	"go.uber.org/multierr"

	"github.com/roach88/entitymap/internal/ir"
)

// Compile builds the bidirectional mapping for spec, recursing into nested
// objects and object arrays.
//
// Compile is pure. Every malformed field is reported: the returned error
// aggregates one *SpecError per problem.
func Compile(spec Spec) (*Compiled, error) {
	if spec == nil {
		return nil, &SpecError{Path: "(root)", Message: "spec is nil"}
	}
	return compileSpec(spec, "")
}

func compileSpec(spec Spec, parent string) (*Compiled, error) {
	c := &Compiled{
		forward: newTable(len(spec)),
		reverse: newTable(len(spec)),
	}

	var errs error
	for _, key := range ir.SortedKeys(spec) {
		field := spec[key]
		path := joinPath(parent, key)

		if err := checkField(field, path); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if owner, dup := c.reverse.target[field.Target]; dup {
			errs = multierr.Append(errs, &SpecError{
				Path:    path,
				Message: "target " + field.Target + " is already mapped by " + joinPath(parent, owner),
			})
			continue
		}

		c.forward.target[key] = field.Target
		c.reverse.target[field.Target] = key
		c.forward.kinds[key] = field.Kind
		c.reverse.kinds[field.Target] = field.Kind
		c.entityKeys = append(c.entityKeys, field.Target)

		switch field.Kind {
		case FieldKey:
		case FieldProperty:
			c.forward.fn[key] = field.Forward
			c.reverse.fn[field.Target] = field.Reverse
		case FieldArray:
			c.forward.elemFn[key] = field.Forward
			c.reverse.elemFn[field.Target] = field.Reverse
		case FieldNestedObject, FieldObjectArray:
			child, err := compileSpec(field.Child, path)
			if err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			c.forward.nested[key] = child
			c.reverse.nested[field.Target] = child
			c.nestedEntityKeys = append(c.nestedEntityKeys, field.Target)
		}
	}
	if errs != nil {
		return nil, errs
	}

	c.forward.ordered = ir.SortedKeys(c.forward.target)
	c.reverse.ordered = ir.SortedKeys(c.reverse.target)
	slices.Sort(c.entityKeys)
	slices.Sort(c.nestedEntityKeys)
	return c, nil
}

func checkField(f Field, path string) error {
	if f.Target == "" {
		return &SpecError{Path: path, Message: "target key is empty"}
	}

	switch f.Kind {
	case FieldKey:
	case FieldProperty:
		if f.Forward == nil || f.Reverse == nil {
			return &SpecError{Path: path, Message: "property requires forward and reverse transforms"}
		}
	case FieldArray:
		if f.Forward == nil || f.Reverse == nil {
			return &SpecError{Path: path, Message: "array requires forward and reverse element transforms"}
		}
	case FieldNestedObject, FieldObjectArray:
		if f.Child == nil {
			return &SpecError{Path: path, Message: f.Kind.String() + " requires a child spec"}
		}
	default:
		return &SpecError{Path: path, Message: "unknown field kind"}
	}
	return nil
}

func newTable(n int) table {
	return table{
		target: make(map[string]string, n),
		fn:     make(map[string]Transform),
		elemFn: make(map[string]Transform),
		nested: make(map[string]*Compiled),
		kinds:  make(map[string]FieldKind, n),
	}
}
