package querysql

import (
	"testing"

	"github.com/lib/pq"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/entitymap/internal/mapping"
	"github.com/roach88/entitymap/internal/queryir"
)

func animalTable() *Table {
	return &Table{
		Name: "animals",
		Columns: []Column{
			{Name: "id", Type: TypeText},
			{Name: "name", Type: TypeText},
			{Name: "age", Type: TypeInteger},
			{Name: "tags", Type: TypeTextArray},
		},
		Relations: []Relation{
			{Key: "owner", ForeignKey: ParentColumn, Table: &Table{
				Name:    "animals_owner",
				Columns: []Column{{Name: "id", Type: TypeText}, {Name: "name", Type: TypeText}},
			}},
			{Key: "toys", Many: true, ForeignKey: ParentColumn, Table: &Table{
				Name:    "animals_toys",
				Columns: []Column{{Name: "id", Type: TypeText}, {Name: "label", Type: TypeText}},
			}},
		},
	}
}

func animalMapping(t *testing.T) *mapping.Compiled {
	t.Helper()
	compiled, err := mapping.Compile(mapping.Spec{
		"id":    mapping.Key("id"),
		"name":  mapping.Key("name"),
		"owner": mapping.NestedObject("owner", mapping.Spec{"name": mapping.Key("name")}),
		"toys":  mapping.ObjectArray("toys", mapping.Spec{"label": mapping.Key("label")}),
	})
	require.NoError(t, err)
	return compiled
}

func goldenFixture(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestScenarioNestedCriteriaJoin(t *testing.T) {
	parents := &Table{
		Name:    "parents",
		Columns: []Column{{Name: "id", Type: TypeText}},
		Relations: []Relation{{Key: "child", ForeignKey: ParentColumn, Table: &Table{
			Name:    "parents_child",
			Columns: []Column{{Name: "id", Type: TypeText}, {Name: "name", Type: TypeText}},
		}}},
	}

	q := NewSelect(SQLite, parents, "parent")
	plan, err := FormatSelect(q, "parent", queryir.Criteria{
		"child": queryir.NestedCriteria(queryir.Criteria{"name": "x"}),
	}, nil, nil, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"parent.child"}, plan.Paths)

	sql, args, err := q.SQL()
	require.NoError(t, err)
	assert.Equal(t, `SELECT "parent"."id" FROM "parents" AS "parent" `+
		`LEFT JOIN "parents_child" AS "parent_child" ON "parent_child"."_parent_id" = "parent"."id" `+
		`WHERE ("parent_child"."id" is not null) AND ("parent_child"."name" = ?) `+
		`ORDER BY "parent"."id" ASC`, sql)
	assert.Equal(t, []any{"x"}, args)
}

func TestFormatSelectGolden(t *testing.T) {
	q := NewSelect(Postgres, animalTable(), "animal")
	plan, err := FormatSelect(q, "animal", queryir.Criteria{
		"owner": queryir.NestedCriteria(queryir.Criteria{"name": queryir.StartsWith("Jo")}),
		"age":   queryir.IsGreaterThan(3),
	}, &queryir.SearchOptions{
		Skip:   5,
		Limit:  10,
		SortBy: []queryir.SortField{{Key: "age", Direction: queryir.Desc}},
	}, nil, false)
	require.NoError(t, err)
	assert.True(t, plan.Fanout())

	sql, args, err := q.SQL()
	require.NoError(t, err)
	assert.Equal(t, []any{3, "Jo%"}, args)

	skip, take := q.PostFetch()
	assert.Equal(t, 5, skip)
	assert.Equal(t, 10, take)

	goldenFixture(t).Assert(t, "select_postgres", []byte(sql+"\n"))
}

func TestConditionSQL(t *testing.T) {
	tests := []struct {
		name      string
		condition queryir.Condition
		expr      string
		params    map[string]any
	}{
		{"equals null", queryir.Equals(nil), `"a"."k" is null`, nil},
		{"equals", queryir.Equals("x"), `"a"."k" = :a_k`, map[string]any{"a_k": "x"}},
		{"does not equal null", queryir.DoesNotEqual(nil), `"a"."k" is not null`, nil},
		{"does not equal", queryir.DoesNotEqual(3), `"a"."k" is null or "a"."k" != :a_k`, map[string]any{"a_k": 3}},
		{"exists", queryir.Exists(), `"a"."k" is not null`, nil},
		{"array exists", queryir.ArrayExists(), `"a"."k" is not null and "a"."k" != '{}'`, nil},
		{"array does not exist", queryir.ArrayDoesNotExist(), `"a"."k" is null or "a"."k" = '{}'`, nil},
		{"starts with", queryir.StartsWith("Jo"), `"a"."k" ILIKE :a_k ESCAPE '\'`, map[string]any{"a_k": "Jo%"}},
		{"does not contain escapes wildcards", queryir.DoesNotContain("50%"),
			`"a"."k" is null or "a"."k" NOT ILIKE :a_k ESCAPE '\'`, map[string]any{"a_k": `%50\%%`}},
		{"ends with", queryir.EndsWith("_x"), `"a"."k" ILIKE :a_k ESCAPE '\'`, map[string]any{"a_k": `%\_x`}},
		{"lesser or equal", queryir.IsLesserThanOrEqual(4), `"a"."k" <= :a_k`, map[string]any{"a_k": 4}},
		{"empty one of", queryir.IsOneOfTheValues(), `1 = 0`, nil},
		{"empty none of", queryir.IsNoneOfTheValues(), `1 = 1`, nil},
		{"one of", queryir.IsOneOfTheValues(1, 2), `"a"."k" in (:a_k)`, map[string]any{"a_k": []any{1, 2}}},
		{"none of", queryir.IsNoneOfTheValues(1, 2), `"a"."k" is null or "a"."k" not in (:a_k)`,
			map[string]any{"a_k": []any{1, 2}}},
		{"has element", queryir.HasElement("x"), `"a"."k" @> :a_k`, map[string]any{"a_k": pq.Array([]any{"x"})}},
		{"does not have element", queryir.DoesNotHaveElement("x"), `"a"."k" is null or not ("a"."k" @> :a_k)`,
			map[string]any{"a_k": pq.Array([]any{"x"})}},
		{"has any", queryir.HasAnyOfTheElements("x", "y"), `"a"."k" && :a_k`,
			map[string]any{"a_k": pq.Array([]any{"x", "y"})}},
		{"has none", queryir.HasNoneOfTheElements("x"), `"a"."k" is null or not ("a"."k" && :a_k)`,
			map[string]any{"a_k": pq.Array([]any{"x"})}},
		{"has all", queryir.HasAllElements("x", "y"), `"a"."k" @> :a_k`,
			map[string]any{"a_k": pq.Array([]any{"x", "y"})}},
		{"equals array", queryir.Equals([]any{"x"}), `"a"."k" = :a_k`, map[string]any{"a_k": pq.Array([]any{"x"})}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr, params, err := conditionSQL(Postgres, newNamer(), "a.k", tt.condition)
			require.NoError(t, err)
			assert.Equal(t, tt.expr, expr)
			assert.Equal(t, tt.params, params)
		})
	}
}

func TestConditionSQLSQLiteArrays(t *testing.T) {
	expr, params, err := conditionSQL(SQLite, newNamer(), "a.tags", queryir.HasAnyOfTheElements("x", 2))
	require.NoError(t, err)
	assert.Equal(t, `EXISTS (SELECT 1 FROM json_each("a"."tags") AS c, json_each(:a_tags) AS q WHERE c.value = q.value)`, expr)
	assert.Equal(t, map[string]any{"a_tags": `["x",2]`}, params)

	expr, _, err = conditionSQL(SQLite, newNamer(), "a.tags", queryir.ArrayExists())
	require.NoError(t, err)
	assert.Equal(t, `"a"."tags" is not null and "a"."tags" != '[]'`, expr)

	expr, _, err = conditionSQL(SQLite, newNamer(), "a.name", queryir.Contains("ex"))
	require.NoError(t, err)
	assert.Equal(t, `"a"."name" LIKE :a_name ESCAPE '\'`, expr)
}

func TestConditionSQLRejectsObjectValues(t *testing.T) {
	_, _, err := conditionSQL(Postgres, newNamer(), "a.owner", queryir.Equals(map[string]any{"name": "Jo"}))
	assert.True(t, queryir.IsUnsupported(err))

	_, _, err = conditionSQL(Postgres, newNamer(), "a.toys", queryir.HasElement(map[string]any{"label": "ball"}))
	assert.True(t, queryir.IsUnsupported(err))
}

func TestFormatSelectHasNoElementThatMatches(t *testing.T) {
	q := NewSelect(Postgres, animalTable(), "animal")
	plan, err := FormatSelect(q, "animal", queryir.Criteria{
		"toys": queryir.HasNoElementThatMatches(queryir.Criteria{"label": "ball"}),
	}, nil, nil, false)
	require.NoError(t, err)
	assert.False(t, plan.Fanout())
	assert.Empty(t, q.Joined())

	sql, args, err := q.SQL()
	require.NoError(t, err)
	assert.Equal(t, `SELECT "animal"."id" FROM "animals" AS "animal" `+
		`WHERE NOT EXISTS (SELECT 1 FROM "animals_toys" AS "animal_toys" `+
		`WHERE ("animal_toys"."_parent_id" = "animal"."id") AND ("animal_toys"."label" = $1)) `+
		`ORDER BY "animal"."id" ASC`, sql)
	assert.Equal(t, []any{"ball"}, args)
}

func TestFormatSelectHasNoElementThatMatchesWithSibling(t *testing.T) {
	q := NewSelect(SQLite, animalTable(), "animal")
	_, err := FormatSelect(q, "animal", queryir.Criteria{
		"name": "Rex",
		"toys": queryir.HasNoElementThatMatches(queryir.Criteria{"label": "rope"}),
	}, nil, nil, false)
	require.NoError(t, err)

	sql, args, err := q.SQL()
	require.NoError(t, err)
	assert.Contains(t, sql, `WHERE ("animal"."name" = ?) AND (NOT EXISTS (SELECT 1 FROM "animals_toys" AS "animal_toys" `)
	assert.NotContains(t, sql, " OR ")
	assert.Equal(t, []any{"Rex", "rope"}, args)
}

func TestFormatSelectExistsUnknownRelation(t *testing.T) {
	q := NewSelect(SQLite, animalTable(), "animal")
	_, err := FormatSelect(q, "animal", queryir.Criteria{
		"bones": queryir.HasNoElementThatMatches(queryir.Criteria{"size": 3}),
	}, nil, nil, false)
	require.NoError(t, err)

	_, _, err = q.SQL()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `has no relation "bones"`)
}

func TestFormatSelectObjectExistence(t *testing.T) {
	q := NewSelect(SQLite, animalTable(), "animal")
	plan, err := FormatSelect(q, "animal", queryir.Criteria{
		"owner": queryir.ObjectDoesNotExist(),
		"toys":  queryir.ObjectArrayExists(),
	}, nil, nil, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"animal.owner", "animal.toys"}, plan.Paths)
	assert.Equal(t, []string{"animal_owner", "animal_toys"}, q.Joined())

	sql, _, err := q.SQL()
	require.NoError(t, err)
	assert.Contains(t, sql, `WHERE ("animal_owner"."id" is null) AND ("animal_toys"."id" is not null)`)
}

func TestFormatSelectObjectExistenceInOppositeMode(t *testing.T) {
	q := NewSelect(SQLite, animalTable(), "animal")
	f := &selectFormatter{q: q, names: newNamer(), plan: &JoinPlan{}}
	require.NoError(t, f.condition("animal.owner", queryir.ObjectExists(), true))

	sql, _, err := q.SQL()
	require.NoError(t, err)
	assert.Contains(t, sql, `WHERE "animal_owner"."id" is null`)
}

func TestFormatSelectLoadRelations(t *testing.T) {
	q := NewSelect(SQLite, animalTable(), "animal")
	plan, err := FormatSelect(q, "animal", queryir.Criteria{
		"owner": queryir.NestedCriteria(queryir.Criteria{"name": "Jo"}),
	}, &queryir.SearchOptions{Limit: 3}, animalMapping(t), true)
	require.NoError(t, err)

	assert.Equal(t, []string{"animal.owner"}, plan.Paths)
	assert.Equal(t, []string{"animal.toys"}, plan.Loaded)
	assert.Equal(t, []string{"animal_owner", "animal_toys"}, q.Joined())

	_, take := q.PostFetch()
	assert.Equal(t, 3, take)
}

func TestFormatSelectPaging(t *testing.T) {
	tests := []struct {
		name    string
		dialect Dialect
		options queryir.SearchOptions
		suffix  string
	}{
		{"limit and offset", Postgres, queryir.SearchOptions{Skip: 2, Limit: 5}, ` ORDER BY "animal"."id" ASC LIMIT 5 OFFSET 2`},
		{"sqlite offset only", SQLite, queryir.SearchOptions{Skip: 2}, ` ORDER BY "animal"."id" ASC LIMIT -1 OFFSET 2`},
		{"sort nulls first", SQLite, queryir.SearchOptions{SortBy: []queryir.SortField{
			{Key: "age", Direction: queryir.Asc},
			{Key: "name", Direction: queryir.Desc},
		}}, ` ORDER BY "animal"."age" ASC NULLS FIRST, "animal"."name" DESC, "animal"."id" ASC`},
		{"sort by id", SQLite, queryir.SearchOptions{SortBy: []queryir.SortField{
			{Key: "id", Direction: queryir.Desc},
		}}, ` ORDER BY "animal"."id" DESC NULLS LAST`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := NewSelect(tt.dialect, animalTable(), "animal")
			plan, err := FormatSelect(q, "animal", nil, &tt.options, nil, false)
			require.NoError(t, err)
			assert.False(t, plan.Fanout())

			sql, _, err := q.SQL()
			require.NoError(t, err)
			assert.Equal(t, `SELECT "animal"."id" FROM "animals" AS "animal"`+tt.suffix, sql)
		})
	}
}

func TestSelectExpandsListParameters(t *testing.T) {
	q := NewSelect(SQLite, animalTable(), "animal")
	_, err := FormatSelect(q, "animal", queryir.Criteria{"age": queryir.IsOneOfTheValues(1, 2, 3)}, nil, nil, false)
	require.NoError(t, err)

	sql, args, err := q.SQL()
	require.NoError(t, err)
	assert.Contains(t, sql, `WHERE "animal"."age" in (?, ?, ?)`)
	assert.Equal(t, []any{1, 2, 3}, args)

	sql, args, err = q.CountSQL()
	require.NoError(t, err)
	assert.Equal(t, `SELECT COUNT(DISTINCT "animal"."id") FROM "animals" AS "animal" WHERE "animal"."age" in (?, ?, ?)`, sql)
	assert.Len(t, args, 3)
}

func TestSelectUnknownRelation(t *testing.T) {
	q := NewSelect(SQLite, animalTable(), "animal")
	_, err := FormatSelect(q, "animal", queryir.Criteria{
		"ghost": queryir.NestedCriteria(queryir.Criteria{"name": "x"}),
	}, nil, nil, false)
	require.NoError(t, err)

	_, _, err = q.SQL()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `has no relation "ghost"`)
}

func TestFormatSelectValidates(t *testing.T) {
	q := NewSelect(SQLite, animalTable(), "animal")
	_, err := FormatSelect(q, "animal", queryir.Criteria{"tags": queryir.Equals([]any{})}, nil, nil, false)
	assert.True(t, queryir.IsInvalidUsage(err))
}

func TestIsSimpleUpdate(t *testing.T) {
	tests := []struct {
		name     string
		criteria queryir.Criteria
		update   queryir.Update
		want     bool
	}{
		{"set and increment", queryir.Criteria{"name": "Rex"},
			queryir.Update{"name": queryir.Set("Max"), "age": queryir.Increment(1), "nick": "M"}, true},
		{"object existence", queryir.Criteria{"owner": queryir.ObjectExists()},
			queryir.Update{"age": queryir.Increment(1)}, false},
		{"nested criteria", queryir.Criteria{"owner": queryir.NestedCriteria(queryir.Criteria{"name": "Jo"})},
			queryir.Update{"age": queryir.Increment(1)}, false},
		{"array of objects", queryir.Criteria{"toys": []any{map[string]any{"label": "ball"}}},
			queryir.Update{"age": queryir.Increment(1)}, false},
		{"push", nil, queryir.Update{"tags": queryir.Push("x")}, false},
		{"clear", nil, queryir.Update{"name": queryir.Clear()}, false},
		{"raw nested map", nil, queryir.Update{"owner": map[string]any{"name": "Jo"}}, false},
		{"nested update", nil, queryir.Update{"owner": queryir.NestedUpdate(queryir.Update{"name": "Jo"})}, false},
		{"scalar array", queryir.Criteria{"tags": queryir.HasAllElements("x")},
			queryir.Update{"tags": []any{"x", "y"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsSimpleUpdate(tt.criteria, tt.update))
		})
	}
}

func TestScenarioPullEachInjectsArrayExists(t *testing.T) {
	q := NewUpdate(SQLite, animalTable())
	guarded, err := FormatSimpleUpdate(q, queryir.Criteria{}, queryir.Update{"scores": queryir.PullEach(1, 2)})
	require.NoError(t, err)
	assert.Equal(t, queryir.Criteria{"scores": queryir.ArrayExists()}, guarded)

	sql, args, err := q.SQL()
	require.NoError(t, err)
	assert.Equal(t, `UPDATE "animals" SET "scores" = (SELECT json_group_array(value) FROM json_each("scores") `+
		`WHERE value NOT IN (SELECT value FROM json_each(?))) `+
		`WHERE "scores" is not null and "scores" != '[]'`, sql)
	assert.Equal(t, []any{"[1,2]"}, args)
}

func TestFormatSimpleUpdateGolden(t *testing.T) {
	q := NewUpdate(Postgres, animalTable())
	criteria := queryir.Criteria{"name": queryir.StartsWith("R")}
	guarded, err := FormatSimpleUpdate(q, criteria, queryir.Update{
		"age":  queryir.Increment(1),
		"name": queryir.Set("Rex"),
		"tags": queryir.PullEach("a"),
	})
	require.NoError(t, err)
	assert.Len(t, criteria, 1, "input criteria must not change")
	assert.Len(t, guarded, 2)

	sql, args, err := q.SQL()
	require.NoError(t, err)
	assert.Equal(t, []any{1, "Rex", pq.Array([]any{"a"}), "R%"}, args)

	goldenFixture(t).Assert(t, "update_postgres", []byte(sql+"\n"))
}

func TestFormatSimpleUpdateKeepsExistingCondition(t *testing.T) {
	q := NewUpdate(SQLite, animalTable())
	guarded, err := FormatSimpleUpdate(q,
		queryir.Criteria{"tags": queryir.DoesNotHaveElement("z")},
		queryir.Update{"tags": queryir.PullEach("a")})
	require.NoError(t, err)
	assert.Equal(t, queryir.DoesNotHaveElement("z"), guarded["tags"])

	sql, _, err := q.SQL()
	require.NoError(t, err)
	assert.Contains(t, sql, `AND ("tags" is not null)`)
}

func TestFormatSimpleUpdateActions(t *testing.T) {
	tests := []struct {
		name   string
		action queryir.Action
		set    string
	}{
		{"set null", queryir.Set(nil), `"k" = NULL`},
		{"clear", queryir.Clear(), `"k" = NULL`},
		{"clear array", queryir.ClearArray(), `"k" = '{}'`},
		{"increment", queryir.Increment(2), `"k" = coalesce("k", 0) + $1`},
		{"push", queryir.Push("x"), `"k" = array_append("k", $1)`},
		{"push each", queryir.PushEach("x", "y"), `"k" = coalesce("k", '{}') || $1`},
		{"pull", queryir.Pull("x"), `"k" = array_remove("k", $1)`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := NewUpdate(Postgres, animalTable())
			_, err := FormatSimpleUpdate(q, nil, queryir.Update{"k": tt.action})
			require.NoError(t, err)

			sql, _, err := q.SQL()
			require.NoError(t, err)
			assert.Equal(t, `UPDATE "animals" SET `+tt.set, sql)
		})
	}
}

func TestFormatSimpleUpdateRejectsNested(t *testing.T) {
	tests := []queryir.Action{
		queryir.NestedUpdate(queryir.Update{"name": "Jo"}),
		queryir.NestedArrayUpdate(queryir.Update{"label": "x"}),
		queryir.ClearObject(),
		queryir.Set(map[string]any{"name": "Jo"}),
	}

	for _, action := range tests {
		t.Run(action.Kind().String(), func(t *testing.T) {
			q := NewUpdate(Postgres, animalTable())
			_, err := FormatSimpleUpdate(q, nil, queryir.Update{"owner": action})
			assert.True(t, queryir.IsUnsupported(err))
		})
	}
}

func TestUpdateWithoutColumns(t *testing.T) {
	_, _, err := NewUpdate(SQLite, animalTable()).SQL()
	assert.Error(t, err)
}

func TestDeriveTable(t *testing.T) {
	table, err := DeriveTable("animals", animalMapping(t))
	require.NoError(t, err)

	assert.Equal(t, "animals", table.Name)
	assert.Equal(t, []Column{{Name: "id", Type: TypeAny}, {Name: "name", Type: TypeAny}}, table.Columns)
	require.Len(t, table.Relations, 2)

	owner, ok := table.Relation("owner")
	require.True(t, ok)
	assert.False(t, owner.Many)
	assert.Equal(t, "animals_owner", owner.Table.Name)
	assert.Equal(t, []Column{{Name: "id", Type: TypeAny}, {Name: "name", Type: TypeAny}}, owner.Table.Columns)

	toys, ok := table.Relation("toys")
	require.True(t, ok)
	assert.True(t, toys.Many)
	assert.Equal(t, ParentColumn, toys.ForeignKey)

	var names []string
	table.Walk(func(t *Table) { names = append(names, t.Name) })
	assert.Equal(t, []string{"animals", "animals_owner", "animals_toys"}, names)
}

func TestDialectByName(t *testing.T) {
	d, err := DialectByName("SQLite")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", d.Name())

	d, err = DialectByName("postgres")
	require.NoError(t, err)
	assert.Equal(t, "postgres", d.Name())

	_, err = DialectByName("oracle")
	assert.Error(t, err)
}

func TestSQLiteDecodeValue(t *testing.T) {
	v, err := SQLite.DecodeValue(TypeTextArray, `["a",2,1.5]`)
	require.NoError(t, err)
	assert.Equal(t, []any{"a", int64(2), 1.5}, v)

	v, err = SQLite.DecodeValue(TypeBoolean, int64(1))
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = SQLite.DecodeValue(TypeAny, []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "x", v)
}

func TestPostgresDecodeValue(t *testing.T) {
	v, err := Postgres.DecodeValue(TypeTextArray, []byte(`{a,b}`))
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, v)

	v, err = Postgres.DecodeValue(TypeIntegerArray, []byte(`{1,2}`))
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), int64(2)}, v)
}

func TestSelectWhereGrouping(t *testing.T) {
	q := NewSelect(SQLite, animalTable(), "animal")
	q.AndWhere(`"animal"."age" > :min`, map[string]any{"min": 2})
	q.OrWhere(`"animal"."name" = :name`, map[string]any{"name": "Rex"})

	sql, args, err := q.SQL()
	require.NoError(t, err)
	assert.Contains(t, sql, `WHERE ("animal"."age" > ?) OR ("animal"."name" = ?)`)
	assert.Equal(t, []any{2, "Rex"}, args)
}
