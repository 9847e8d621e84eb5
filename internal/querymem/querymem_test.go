package querymem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/entitymap/internal/ir"
	"github.com/roach88/entitymap/internal/queryir"
	"github.com/roach88/entitymap/internal/testutil"
)

func TestScenarioHasElementMatchesFirstOnly(t *testing.T) {
	docs := []ir.Document{
		{"tags": []any{"x", "y"}},
		{"tags": []any{"y"}},
	}
	p, err := Compile(queryir.Criteria{"tags": queryir.HasElement("x")})
	require.NoError(t, err)

	assert.Equal(t, []ir.Document{docs[0]}, Filter(docs, p))
}

func TestCompileConditions(t *testing.T) {
	doc := ir.Document{
		"name":  "Rex",
		"age":   int64(3),
		"null":  nil,
		"tags":  []any{"a", "b"},
		"empty": []any{},
		"owner": map[string]any{"name": "Jo"},
		"toys": []any{
			map[string]any{"label": "ball", "price": 5},
			map[string]any{"label": "bone", "price": 2},
		},
	}

	tests := []struct {
		name      string
		key       string
		condition any
		want      bool
	}{
		{"raw equals", "name", "Rex", true},
		{"equals across number types", "age", 3, true},
		{"equals null matches null", "null", nil, true},
		{"equals null matches missing", "missing", nil, true},
		{"equals null on value", "name", nil, false},
		{"equals array", "tags", []any{"a", "b"}, true},
		{"does not equal missing", "missing", queryir.DoesNotEqual("x"), true},
		{"does not equal same", "name", queryir.DoesNotEqual("Rex"), false},
		{"does not equal null", "name", queryir.DoesNotEqual(nil), true},
		{"exists", "name", queryir.Exists(), true},
		{"exists on null", "null", queryir.Exists(), false},
		{"does not exist", "missing", queryir.DoesNotExist(), true},
		{"array exists", "tags", queryir.ArrayExists(), true},
		{"array exists on empty", "empty", queryir.ArrayExists(), false},
		{"array does not exist on empty", "empty", queryir.ArrayDoesNotExist(), true},
		{"array does not exist on missing", "missing", queryir.ArrayDoesNotExist(), true},
		{"object exists", "owner", queryir.ObjectExists(), true},
		{"object does not exist", "missing", queryir.ObjectDoesNotExist(), true},
		{"object array exists", "toys", queryir.ObjectArrayExists(), true},
		{"object array does not exist", "toys", queryir.ObjectArrayDoesNotExist(), false},
		{"starts with folds case", "name", queryir.StartsWith("rE"), true},
		{"ends with", "name", queryir.EndsWith("EX"), true},
		{"contains", "name", queryir.Contains("e"), true},
		{"contains on missing", "missing", queryir.Contains("e"), false},
		{"does not contain on missing", "missing", queryir.DoesNotContain("e"), true},
		{"does not start with", "name", queryir.DoesNotStartWith("r"), false},
		{"does not end with", "name", queryir.DoesNotEndWith("y"), true},
		{"greater", "age", queryir.IsGreaterThan(2), true},
		{"greater or equal", "age", queryir.IsGreaterThanOrEqual(3.0), true},
		{"lesser", "age", queryir.IsLesserThan(3), false},
		{"lesser or equal", "age", queryir.IsLesserThanOrEqual(3), true},
		{"comparison on missing", "missing", queryir.IsLesserThan(3), false},
		{"comparison across kinds", "name", queryir.IsGreaterThan(3), false},
		{"one of", "name", queryir.IsOneOfTheValues("Max", "Rex"), true},
		{"one of empty", "name", queryir.IsOneOfTheValues(), false},
		{"none of", "name", queryir.IsNoneOfTheValues("Max"), true},
		{"none of on missing", "missing", queryir.IsNoneOfTheValues("Max"), true},
		{"does not have element", "tags", queryir.DoesNotHaveElement("c"), true},
		{"does not have element on missing", "missing", queryir.DoesNotHaveElement("c"), true},
		{"has any", "tags", queryir.HasAnyOfTheElements("c", "b"), true},
		{"has none", "tags", queryir.HasNoneOfTheElements("c", "b"), false},
		{"has none on missing", "missing", queryir.HasNoneOfTheElements("c"), true},
		{"has all", "tags", queryir.HasAllElements("a", "b"), true},
		{"has all partial", "tags", queryir.HasAllElements("a", "c"), false},
		{"has all on missing", "missing", queryir.HasAllElements(), false},
		{"nested", "owner", queryir.NestedCriteria(queryir.Criteria{"name": queryir.StartsWith("j")}), true},
		{"nested on missing", "missing", queryir.NestedCriteria(queryir.Criteria{"name": "Jo"}), false},
		{"element matches", "toys", queryir.HasElementThatMatches(queryir.Criteria{
			"label": "bone", "price": queryir.IsLesserThan(3),
		}), true},
		{"element matches needs one element", "toys", queryir.HasElementThatMatches(queryir.Criteria{
			"label": "bone", "price": 5,
		}), false},
		{"no element matches", "toys", queryir.HasNoElementThatMatches(queryir.Criteria{"price": queryir.IsGreaterThan(9)}), true},
		{"no element matches fails", "toys", queryir.HasNoElementThatMatches(queryir.Criteria{"label": "ball"}), false},
		{"no element matches on missing", "missing", queryir.HasNoElementThatMatches(queryir.Criteria{"label": "ball"}), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Compile(queryir.Criteria{tt.key: tt.condition})
			require.NoError(t, err)
			assert.Equal(t, tt.want, p(doc))
		})
	}
}

func TestCompileRejectsInvalid(t *testing.T) {
	_, err := Compile(queryir.Criteria{"tags": queryir.Equals([]any{})})
	assert.True(t, queryir.IsInvalidUsage(err))

	_, err = Compile(queryir.Criteria{"tags": queryir.Condition{}})
	assert.True(t, queryir.IsMalformed(err))
}

func TestCompileUpdate(t *testing.T) {
	tests := []struct {
		name    string
		doc     ir.Document
		update  queryir.Update
		changed bool
		want    ir.Document
	}{
		{"set", ir.Document{"name": "Rex"}, queryir.Update{"name": "Max"}, true, ir.Document{"name": "Max"}},
		{"set identical is a no-op", ir.Document{"name": "Rex"}, queryir.Update{"name": queryir.Set("Rex")}, false,
			ir.Document{"name": "Rex"}},
		{"set identical array is a no-op", ir.Document{"tags": []any{"a"}}, queryir.Update{"tags": []any{"a"}}, false,
			ir.Document{"tags": []any{"a"}}},
		{"set null on missing", ir.Document{}, queryir.Update{"name": nil}, true, ir.Document{"name": nil}},
		{"clear", ir.Document{"name": "Rex"}, queryir.Update{"name": queryir.Clear()}, true, ir.Document{}},
		{"clear missing", ir.Document{}, queryir.Update{"name": queryir.Clear()}, false, ir.Document{}},
		{"clear null", ir.Document{"name": nil}, queryir.Update{"name": queryir.Clear()}, false,
			ir.Document{"name": nil}},
		{"clear array", ir.Document{"tags": []any{"a"}}, queryir.Update{"tags": queryir.ClearArray()}, true,
			ir.Document{}},
		{"clear empty array", ir.Document{"tags": []any{}}, queryir.Update{"tags": queryir.ClearArray()}, false,
			ir.Document{"tags": []any{}}},
		{"clear empty object array", ir.Document{"toys": []any{}}, queryir.Update{"toys": queryir.ClearObjectArray()}, false,
			ir.Document{"toys": []any{}}},
		{"clear object", ir.Document{"owner": map[string]any{"name": "Jo"}},
			queryir.Update{"owner": queryir.ClearObject()}, true, ir.Document{}},
		{"increment", ir.Document{"age": int64(3)}, queryir.Update{"age": queryir.Increment(2)}, true,
			ir.Document{"age": int64(5)}},
		{"increment missing", ir.Document{}, queryir.Update{"age": queryir.Increment(2)}, true,
			ir.Document{"age": int64(2)}},
		{"increment float", ir.Document{"age": 1.5}, queryir.Update{"age": queryir.Increment(1)}, true,
			ir.Document{"age": 2.5}},
		{"increment by zero", ir.Document{"age": int64(3)}, queryir.Update{"age": queryir.Increment(0)}, false,
			ir.Document{"age": int64(3)}},
		{"push", ir.Document{"tags": []any{"a"}}, queryir.Update{"tags": queryir.Push("b")}, true,
			ir.Document{"tags": []any{"a", "b"}}},
		{"push on missing", ir.Document{}, queryir.Update{"tags": queryir.PushEach("a", "b")}, true,
			ir.Document{"tags": []any{"a", "b"}}},
		{"push nothing", ir.Document{}, queryir.Update{"tags": queryir.PushEach()}, false, ir.Document{}},
		{"pull", ir.Document{"tags": []any{"a", "b", "a"}}, queryir.Update{"tags": queryir.Pull("a")}, true,
			ir.Document{"tags": []any{"b"}}},
		{"pull absent element", ir.Document{"tags": []any{"a"}}, queryir.Update{"tags": queryir.Pull("z")}, false,
			ir.Document{"tags": []any{"a"}}},
		{"pull each", ir.Document{"tags": []any{1, 2, 3}}, queryir.Update{"tags": queryir.PullEach(1, 3)}, true,
			ir.Document{"tags": []any{2}}},
		{"pull on missing", ir.Document{}, queryir.Update{"tags": queryir.PullEach(1)}, false, ir.Document{}},
		{"nested update", ir.Document{"owner": map[string]any{"name": "Jo"}},
			queryir.Update{"owner": queryir.NestedUpdate(queryir.Update{"name": "Sam"})}, true,
			ir.Document{"owner": map[string]any{"name": "Sam"}}},
		{"nested update on missing creates the object", ir.Document{},
			queryir.Update{"owner": queryir.NestedUpdate(queryir.Update{"name": "Sam"})}, true,
			ir.Document{"owner": map[string]any{"name": "Sam"}}},
		{"nested update on null creates the object", ir.Document{"owner": nil},
			queryir.Update{"owner": queryir.NestedUpdate(queryir.Update{"age": queryir.Increment(1)})}, true,
			ir.Document{"owner": map[string]any{"age": int64(1)}}},
		{"nested array update on missing", ir.Document{},
			queryir.Update{"toys": queryir.NestedArrayUpdate(queryir.Update{"price": 1})}, true,
			ir.Document{"toys": []any{}}},
		{"nested array update", ir.Document{"toys": []any{
			map[string]any{"price": 1},
			map[string]any{"price": 2},
		}}, queryir.Update{"toys": queryir.NestedArrayUpdate(queryir.Update{"price": queryir.Increment(1)})}, true,
			ir.Document{"toys": []any{
				map[string]any{"price": int64(2)},
				map[string]any{"price": int64(3)},
			}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := CompileUpdate(tt.update)
			require.NoError(t, err)

			changed, err := m(tt.doc)
			require.NoError(t, err)
			assert.Equal(t, tt.changed, changed)
			assert.True(t, ir.DeepEqual(tt.want, tt.doc), "got %v", tt.doc)
		})
	}
}

func TestCompileUpdateErrors(t *testing.T) {
	m, err := CompileUpdate(queryir.Update{"name": queryir.Increment(1)})
	require.NoError(t, err)
	_, err = m(ir.Document{"name": "Rex"})
	assert.True(t, queryir.IsInvalidUsage(err))

	m, err = CompileUpdate(queryir.Update{"name": queryir.Push("x")})
	require.NoError(t, err)
	_, err = m(ir.Document{"name": "Rex"})
	assert.True(t, queryir.IsInvalidUsage(err))

	_, err = CompileUpdate(queryir.Update{"age": queryir.Increment("one")})
	assert.True(t, queryir.IsInvalidUsage(err))
}

func TestSetStoresACopy(t *testing.T) {
	value := []any{"a"}
	doc := ir.Document{}
	_, err := UpdateInPlace([]ir.Document{doc}, queryir.Update{"tags": value})
	require.NoError(t, err)

	value[0] = "changed"
	assert.Equal(t, []any{"a"}, doc["tags"])
}

func TestUpdateInPlaceCountsChangedDocuments(t *testing.T) {
	docs := []ir.Document{
		{"name": "Rex"},
		{"name": "Max"},
		{"name": "Rex"},
	}
	n, err := UpdateInPlace(docs, queryir.Update{"name": "Rex"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSort(t *testing.T) {
	docs := []ir.Document{
		{"id": 1, "age": 3, "name": "b"},
		{"id": 2, "name": "a"},
		{"id": 3, "age": 1, "name": "c"},
		{"id": 4, "age": 3, "name": "a"},
	}

	Sort(docs, []queryir.SortField{{Key: "age", Direction: queryir.Asc}, {Key: "name", Direction: queryir.Asc}})
	assert.Equal(t, []any{2, 3, 4, 1}, ids(docs))

	Sort(docs, []queryir.SortField{{Key: "age", Direction: queryir.Desc}})
	assert.Equal(t, []any{4, 1, 3, 2}, ids(docs), "stable within equal ages, missing last")
}

func TestPage(t *testing.T) {
	docs := testutil.Animals()
	assert.Len(t, Page(docs, 0, 0), 3)
	assert.Len(t, Page(docs, 1, 1), 1)
	assert.Equal(t, "a-2", Page(docs, 1, 1)[0]["id"])
	assert.Nil(t, Page(docs, 3, 0))
}

func TestGenerateIDs(t *testing.T) {
	gen := testutil.NewSequentialIDs("g")
	doc := ir.Document{
		"name":  "Rex",
		"owner": map[string]any{"name": "Jo"},
		"toys": []any{
			map[string]any{"label": "ball"},
			map[string]any{"id": "kept", "label": "bone"},
		},
		"tags": []any{"a"},
	}

	GenerateIDs(doc, gen.Next)

	assert.Equal(t, "g-1", doc["id"])
	assert.Equal(t, "g-2", doc["owner"].(map[string]any)["id"])
	toys := doc["toys"].([]any)
	assert.Equal(t, "g-3", toys[0].(map[string]any)["id"])
	assert.Equal(t, "kept", toys[1].(map[string]any)["id"])
	assert.Equal(t, int64(3), gen.Issued())
}

func ids(docs []ir.Document) []any {
	out := make([]any, len(docs))
	for i, d := range docs {
		out[i] = d["id"]
	}
	return out
}
