package mapping

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func identity(v any) (any, error) { return v, nil }

func TestCompileTables(t *testing.T) {
	compiled, err := Compile(Spec{
		"id":   Property("_id", identity, identity),
		"name": Key("full_name"),
		"tags": Array("labels", identity, identity),
		"owner": NestedObject("owner_rel", Spec{
			"name": Key("owner_name"),
		}),
		"toys": ObjectArray("toy_rel", Spec{
			"label": Key("title"),
		}),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "name", "owner", "tags", "toys"}, compiled.Keys(Forward))
	assert.Equal(t, []string{"_id", "full_name", "labels", "owner_rel", "toy_rel"}, compiled.Keys(Reverse))
	assert.Equal(t, []string{"_id", "full_name", "labels", "owner_rel", "toy_rel"}, compiled.EntityKeys())
	assert.Equal(t, []string{"owner_rel", "toy_rel"}, compiled.NestedEntityKeys())

	target, ok := compiled.EntityKey("name")
	assert.True(t, ok)
	assert.Equal(t, "full_name", target)

	source, ok := compiled.ObjectKey("labels")
	assert.True(t, ok)
	assert.Equal(t, "tags", source)

	assert.NotNil(t, compiled.Transform(Forward, "id"))
	assert.NotNil(t, compiled.Transform(Reverse, "_id"))
	assert.Nil(t, compiled.Transform(Forward, "name"))
	assert.NotNil(t, compiled.ElementTransform(Reverse, "labels"))

	owner := compiled.Nested(Forward, "owner")
	require.NotNil(t, owner)
	assert.Same(t, owner, compiled.Nested(Reverse, "owner_rel"))
	assert.Equal(t, []string{"owner_name"}, owner.EntityKeys())

	assert.Equal(t, FieldObjectArray, compiled.Kind(Reverse, "toy_rel"))
	assert.Equal(t, FieldKind(0), compiled.Kind(Forward, "missing"))
}

func TestCompileAggregatesErrors(t *testing.T) {
	_, err := Compile(Spec{
		"a":     Key("x"),
		"b":     Key("x"),
		"c":     Key(""),
		"d":     Property("d", identity, nil),
		"e":     NestedObject("e", nil),
		"f":     {Target: "f"},
		"child": ObjectArray("child", Spec{"bad": Array("bad", nil, nil)}),
	})
	require.Error(t, err)

	errs := multierr.Errors(err)
	require.Len(t, errs, 6)

	var paths []string
	for _, e := range errs {
		var se *SpecError
		require.ErrorAs(t, e, &se)
		paths = append(paths, se.Path)
	}
	assert.Equal(t, []string{"b", "c", "child.bad", "d", "e", "f"}, paths)
	assert.Contains(t, errs[0].Error(), "already mapped by a")
}

func TestCompileNil(t *testing.T) {
	_, err := Compile(nil)
	assert.Error(t, err)
}

func TestRegistryBuiltins(t *testing.T) {
	reg := NewRegistry()
	assert.Equal(t, []string{"atoi", "identity", "negate", "unix", "upper"}, reg.Names())

	tests := []struct {
		name     string
		forward  any
		expected any
	}{
		{"negate", 5, int64(-5)},
		{"negate", 2.5, -2.5},
		{"upper", "rex", "REX"},
		{"atoi", "42", int64(42)},
		{"unix", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), int64(1704067200)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pair, ok := reg.Lookup(tt.name)
			require.True(t, ok)

			got, err := pair.Forward(tt.forward)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)

			null, err := pair.Forward(nil)
			require.NoError(t, err)
			assert.Nil(t, null)
		})
	}

	back, err := Itoa(int64(42))
	require.NoError(t, err)
	assert.Equal(t, "42", back)

	_, err = Atoi("forty-two")
	assert.Error(t, err)
}

func TestRegistryRegister(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("same", TransformPair{Forward: identity, Reverse: identity}))
	assert.Error(t, reg.Register("same", TransformPair{Forward: identity, Reverse: identity}))
	assert.Error(t, reg.Register("half", TransformPair{Forward: identity}))

	_, ok := reg.Lookup("same")
	assert.True(t, ok)
}
