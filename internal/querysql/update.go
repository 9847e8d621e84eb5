package querysql

import (
	"fmt"
	"maps"

	"github.com/roach88/entitymap/internal/ir"
	"github.com/roach88/entitymap/internal/queryir"
)

// IsSimpleUpdate reports whether update can run as a single UPDATE of the
// root table. Anything touching a relation, or any action other than Set
// and Increment, needs the load, mutate and save path instead.
func IsSimpleUpdate(criteria queryir.Criteria, update queryir.Update) bool {
	for _, v := range criteria {
		c := queryir.ConditionOf(v)
		switch c.Kind() {
		case queryir.CondObjectExists, queryir.CondObjectDoesNotExist,
			queryir.CondObjectArrayExists, queryir.CondObjectArrayDoesNotExist:
			return false
		}
		if isObjectValue(c.Value()) {
			return false
		}
	}

	for _, v := range update {
		a := queryir.ActionOf(v)
		switch a.Kind() {
		case queryir.ActSet, queryir.ActIncrement:
		default:
			return false
		}
		if isObjectValue(a.Value()) {
			return false
		}
	}
	return true
}

// isObjectValue reports whether v is an object or an array whose first
// element is an object.
func isObjectValue(v any) bool {
	if _, ok := v.(map[string]any); ok {
		return true
	}
	if list, ok := ir.AsSlice(v); ok && len(list) > 0 {
		_, ok := list[0].(map[string]any)
		return ok
	}
	return false
}

// FormatSimpleUpdate writes update as one SET clause and criteria as the
// WHERE clause of q. Columns are unqualified.
//
// PullEach leaves an empty array behind for rows where the column was NULL,
// so a PullEach column gets an ArrayExists guard. The criteria actually
// compiled are returned.
func FormatSimpleUpdate(q UpdateQuery, criteria queryir.Criteria, update queryir.Update) (queryir.Criteria, error) {
	if err := queryir.ValidateCriteria(criteria); err != nil {
		return nil, err
	}
	if err := queryir.ValidateUpdate(update); err != nil {
		return nil, err
	}

	d := q.Dialect()
	names := newNamer()
	guarded := make(queryir.Criteria, len(criteria))
	maps.Copy(guarded, criteria)
	var extraGuards []string

	sets := make(map[string]any, len(update))
	for _, key := range ir.SortedKeys(update) {
		a := queryir.ActionOf(update[key])
		expr, err := actionSQL(d, names, key, a)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		sets[key] = expr

		if a.Kind() != queryir.ActPullEach {
			continue
		}
		existing, ok := guarded[key]
		switch {
		case !ok:
			guarded[key] = queryir.ArrayExists()
		case queryir.ConditionOf(existing).Kind() != queryir.CondArrayExists:
			extraGuards = append(extraGuards, QuotePath(d, key)+" is not null")
		}
	}
	q.Set(sets)

	for _, key := range ir.SortedKeys(guarded) {
		c := queryir.ConditionOf(guarded[key])
		if err := addCondition(q, names, key, c, false); err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
	}
	for _, expr := range extraGuards {
		q.AndWhere(expr, nil)
	}
	return guarded, nil
}

func actionSQL(d Dialect, names *namer, key string, a queryir.Action) (Expr, error) {
	col := d.Quote(key)
	param := func(value any) (string, map[string]any) {
		p := names.name("set_" + key)
		return ":" + p, map[string]any{p: value}
	}
	arrayParam := func(list []any) (string, map[string]any, error) {
		value, err := d.ArrayValue(list)
		if err != nil {
			return "", nil, queryir.NewUnsupportedError(a.Kind().String(), "%s: %v", key, err)
		}
		p, params := param(value)
		return p, params, nil
	}

	switch a.Kind() {
	case queryir.ActSet:
		v := a.Value()
		if v == nil {
			return Expr{SQL: "NULL"}, nil
		}
		if _, ok := v.(map[string]any); ok {
			return Expr{}, queryir.NewUnsupportedError(a.Kind().String(), "%s: cannot set an object on a column", key)
		}
		if list, ok := ir.AsSlice(v); ok {
			p, params, err := arrayParam(list)
			return Expr{SQL: p, Params: params}, err
		}
		p, params := param(v)
		return Expr{SQL: p, Params: params}, nil

	case queryir.ActClear:
		return Expr{SQL: "NULL"}, nil
	case queryir.ActClearArray:
		return Expr{SQL: d.EmptyArray()}, nil
	case queryir.ActClearObject, queryir.ActClearObjectArray:
		return Expr{}, queryir.NewUnsupportedError(a.Kind().String(), "%s: relations cannot be cleared by a column update", key)

	case queryir.ActIncrement:
		p, params := param(a.Value())
		return Expr{SQL: fmt.Sprintf("coalesce(%s, 0) + %s", col, p), Params: params}, nil

	case queryir.ActPush:
		p, params := param(a.Value())
		return Expr{SQL: d.ArrayAppend(col, p), Params: params}, nil
	case queryir.ActPushEach:
		p, params, err := arrayParam(a.List())
		return Expr{SQL: d.ArrayConcat(col, p), Params: params}, err
	case queryir.ActPull:
		p, params := param(a.Value())
		return Expr{SQL: d.ArrayRemove(col, p), Params: params}, nil
	case queryir.ActPullEach:
		p, params, err := arrayParam(a.List())
		return Expr{SQL: d.ArrayRemoveAll(col, p), Params: params}, err

	case queryir.ActNestedUpdate, queryir.ActNestedArrayUpdate:
		return Expr{}, queryir.NewUnsupportedError(a.Kind().String(),
			"%s: nested updates cannot run as a single UPDATE", key)
	}
	return Expr{}, queryir.NewMalformedActionError(a.Kind().String())
}
