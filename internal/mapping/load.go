package mapping

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/roach88/entitymap/internal/ir"
)

// Definition is a mapping spec loaded from a file.
//
// File format (YAML shown, CUE uses the same structure):
//
//	name: animal
//	fields:
//	  id: {kind: property, target: id, transform: atoi}
//	  name: name
//	  tags: {kind: array, target: labels, transform: upper}
//	  owner:
//	    kind: object
//	    target: owner
//	    fields:
//	      name: full_name
//
// A field is either a target string or an object with kind, target,
// transform and fields. The kind defaults to "property" when a transform is
// named and to "key" otherwise.
type Definition struct {
	Name string
	Spec Spec
}

// LoadError reports a problem in a mapping file.
type LoadError struct {
	Path    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Path, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

type fileSpec struct {
	Name   string               `yaml:"name"`
	Fields map[string]fieldFile `yaml:"fields"`
}

type fieldFile struct {
	Kind      string               `yaml:"kind"`
	Target    string               `yaml:"target"`
	Transform string               `yaml:"transform"`
	Fields    map[string]fieldFile `yaml:"fields"`
	pos       token.Pos
}

var fieldFileKeys = []string{"kind", "target", "transform", "fields"}

// UnmarshalYAML accepts either a target string or a field object. Unknown
// keys are rejected.
func (f *fieldFile) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		f.Target = node.Value
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: field must be a string or an object", node.Line)
	}
	for i := 0; i < len(node.Content); i += 2 {
		key := node.Content[i].Value
		if !slices.Contains(fieldFileKeys, key) {
			return fmt.Errorf("line %d: field %s not found in mapping field", node.Content[i].Line, key)
		}
	}

	type plain fieldFile
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*f = fieldFile(p)
	return nil
}

// LoadFile reads a mapping file, choosing the format by extension: .yaml,
// .yml and .json are read as YAML, .cue as CUE.
func LoadFile(path string, reg *Registry) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mapping file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return LoadYAML(data, reg)
	case ".cue":
		return LoadCUE(data, path, reg)
	}
	return nil, fmt.Errorf("unsupported mapping file extension %q", filepath.Ext(path))
}

// LoadYAML parses a YAML mapping definition.
func LoadYAML(data []byte, reg *Registry) (*Definition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var fs fileSpec
	if err := dec.Decode(&fs); err != nil {
		return nil, fmt.Errorf("parse mapping yaml: %w", err)
	}
	return fs.definition(reg)
}

// LoadCUE parses a CUE mapping definition. filename is only used in
// error positions.
func LoadCUE(data []byte, filename string, reg *Registry) (*Definition, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	var fs fileSpec
	nameVal := v.LookupPath(cue.ParsePath("name"))
	if nameVal.Exists() {
		name, err := nameVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		fs.Name = name
	}

	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if !fieldsVal.Exists() {
		return nil, &LoadError{Path: "fields", Message: "fields is required", Pos: v.Pos()}
	}
	fields, err := fieldsFromCUE(fieldsVal, "")
	if err != nil {
		return nil, err
	}
	fs.Fields = fields
	return fs.definition(reg)
}

func fieldsFromCUE(v cue.Value, parent string) (map[string]fieldFile, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	out := make(map[string]fieldFile)
	for iter.Next() {
		key := iter.Label()
		f, err := fieldFromCUE(iter.Value(), joinPath(parent, key))
		if err != nil {
			return nil, err
		}
		out[key] = f
	}
	return out, nil
}

func fieldFromCUE(v cue.Value, path string) (fieldFile, error) {
	f := fieldFile{pos: v.Pos()}
	if target, err := v.String(); err == nil {
		f.Target = target
		return f, nil
	}

	iter, err := v.Fields()
	if err != nil {
		return f, &LoadError{Path: path, Message: "field must be a string or a struct", Pos: v.Pos()}
	}
	for iter.Next() {
		label := iter.Label()
		val := iter.Value()

		if label == "fields" {
			children, err := fieldsFromCUE(val, path)
			if err != nil {
				return f, err
			}
			f.Fields = children
			continue
		}

		s, err := val.String()
		if err != nil {
			return f, &LoadError{Path: joinPath(path, label), Message: "expected a string", Pos: val.Pos()}
		}
		switch label {
		case "kind":
			f.Kind = s
		case "target":
			f.Target = s
		case "transform":
			f.Transform = s
		default:
			return f, &LoadError{Path: joinPath(path, label), Message: "unknown mapping field", Pos: val.Pos()}
		}
	}
	return f, nil
}

func (fs fileSpec) definition(reg *Registry) (*Definition, error) {
	if reg == nil {
		reg = NewRegistry()
	}
	if len(fs.Fields) == 0 {
		return nil, &LoadError{Path: "fields", Message: "at least one field is required"}
	}
	spec, err := buildSpec(fs.Fields, "", reg)
	if err != nil {
		return nil, err
	}
	return &Definition{Name: fs.Name, Spec: spec}, nil
}

func buildSpec(fields map[string]fieldFile, parent string, reg *Registry) (Spec, error) {
	spec := make(Spec, len(fields))
	var errs error

	for _, key := range ir.SortedKeys(fields) {
		f := fields[key]
		path := joinPath(parent, key)

		kind := f.Kind
		if kind == "" {
			kind = "key"
			if f.Transform != "" {
				kind = "property"
			}
		}

		var pair TransformPair
		if f.Transform != "" {
			p, ok := reg.Lookup(f.Transform)
			if !ok {
				errs = multierr.Append(errs, &LoadError{
					Path:    path,
					Message: fmt.Sprintf("unknown transform %q (registered: %s)", f.Transform, strings.Join(reg.Names(), ", ")),
					Pos:     f.pos,
				})
				continue
			}
			pair = p
		}

		switch kind {
		case FieldKey.String():
			spec[key] = Key(f.Target)
		case FieldProperty.String():
			spec[key] = Property(f.Target, pair.Forward, pair.Reverse)
		case FieldArray.String():
			if pair.Forward == nil {
				pair = TransformPair{Forward: Identity, Reverse: Identity}
			}
			spec[key] = Array(f.Target, pair.Forward, pair.Reverse)
		case FieldNestedObject.String(), FieldObjectArray.String():
			child, err := buildSpec(f.Fields, path, reg)
			if err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			if kind == FieldNestedObject.String() {
				spec[key] = NestedObject(f.Target, child)
			} else {
				spec[key] = ObjectArray(f.Target, child)
			}
		default:
			errs = multierr.Append(errs, &LoadError{Path: path, Message: fmt.Sprintf("unknown kind %q", kind), Pos: f.pos})
		}
	}
	if errs != nil {
		return nil, errs
	}
	return spec, nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		return &LoadError{Path: "cue", Message: first.Error(), Pos: positions[0]}
	}
	return err
}
