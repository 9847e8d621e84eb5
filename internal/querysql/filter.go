// Package querysql compiles entity-space criteria and updates into SQL
// through a query-builder handle.
//
// The compiler only talks to the Builder interfaces. Select and Update are
// the concrete builders; they render parameterized SQL for a Dialect
// (Postgres or SQLite) and never interpolate values.
package querysql

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/entitymap/internal/ir"
	"github.com/roach88/entitymap/internal/mapping"
	"github.com/roach88/entitymap/internal/queryir"
)

// Every condition and action kind must be handled below.
func _() {
	var x [1]struct{}
	_ = x[queryir.NumConditionKinds-30]
	_ = x[queryir.NumActionKinds-12]
}

// JoinPlan lists the relation paths a select joins, in join order and
// without duplicates.
type JoinPlan struct {
	// Paths are joined to evaluate conditions.
	Paths []string

	// Loaded are joined only to load relations.
	Loaded []string
}

// Has reports whether path is already joined.
func (p *JoinPlan) Has(path string) bool {
	return slices.Contains(p.Paths, path) || slices.Contains(p.Loaded, path)
}

// Fanout reports whether joins can repeat root rows, which makes native
// OFFSET/LIMIT unsafe.
func (p *JoinPlan) Fanout() bool {
	return len(p.Paths)+len(p.Loaded) > 0
}

// FormatSelect writes criteria and options into q. alias is the root alias;
// compiled is the mapping of the root entity; loadRelations joins its
// nested entity keys.
//
// Relation conditions left-join the relation under the alias "<query key>"
// with dots replaced by underscores. HasNoElementThatMatches is compiled as
// one "NOT EXISTS" subquery over the relation rows, so it composes with its
// sibling keys like any other clause.
func FormatSelect(q SelectQuery, alias string, criteria queryir.Criteria, options *queryir.SearchOptions,
	compiled *mapping.Compiled, loadRelations bool) (*JoinPlan, error) {
	if err := queryir.ValidateCriteria(criteria); err != nil {
		return nil, err
	}

	f := &selectFormatter{q: q, names: newNamer(), plan: &JoinPlan{}}
	if err := f.criteria(alias, criteria, false); err != nil {
		return nil, err
	}

	if loadRelations {
		f.loadRelations(alias, compiled)
	}

	if options != nil {
		for i, s := range options.SortBy {
			nulls := NullsDefault
			if i == 0 {
				nulls = NullsFirst
				if s.Direction == queryir.Desc {
					nulls = NullsLast
				}
			}
			q.OrderBy(alias+"."+s.Key, s.Direction, nulls)
		}

		if f.plan.Fanout() {
			q.Skip(options.Skip)
			q.Take(options.Limit)
		} else {
			q.Offset(options.Skip)
			q.Limit(options.Limit)
		}
	}
	return f.plan, nil
}

type selectFormatter struct {
	q     SelectQuery
	names *namer
	plan  *JoinPlan
}

func (f *selectFormatter) criteria(entity string, criteria queryir.Criteria, opposite bool) error {
	for _, key := range ir.SortedKeys(criteria) {
		queryKey := entity + "." + key
		c := queryir.ConditionOf(criteria[key])

		if err := f.condition(queryKey, c, opposite); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	return nil
}

func (f *selectFormatter) condition(queryKey string, c queryir.Condition, opposite bool) error {
	joinAlias := strings.ReplaceAll(queryKey, ".", "_")
	idCol := QuotePath(f.q.Dialect(), joinAlias+"."+IDColumn)

	switch c.Kind() {
	case queryir.CondObjectExists, queryir.CondObjectArrayExists,
		queryir.CondObjectDoesNotExist, queryir.CondObjectArrayDoesNotExist:
		f.join(queryKey, joinAlias)
		exists := c.Kind() == queryir.CondObjectExists || c.Kind() == queryir.CondObjectArrayExists
		if exists != opposite {
			f.q.AndWhere(idCol+" is not null", nil)
		} else {
			f.q.AndWhere(idCol+" is null", nil)
		}
		return nil

	case queryir.CondNestedCriteria, queryir.CondHasElementThatMatches:
		f.join(queryKey, joinAlias)
		f.q.AndWhere(idCol+" is not null", nil)
		return f.criteria(joinAlias, c.Criteria(), false)

	case queryir.CondHasNoElementThatMatches:
		q, done := f.q.Exists(queryKey, joinAlias, !opposite)
		sub := &selectFormatter{q: q, names: f.names, plan: &JoinPlan{}}
		if err := sub.criteria(joinAlias, c.Criteria(), false); err != nil {
			return err
		}
		done()
		return nil
	}

	return addCondition(f.q, f.names, queryKey, c, opposite)
}

func (f *selectFormatter) join(path, alias string) {
	if f.plan.Has(path) {
		return
	}
	f.q.LeftJoinAndSelect(path, alias)
	f.plan.Paths = append(f.plan.Paths, path)
}

// loadRelations joins every nested entity key not joined yet, recursively.
func (f *selectFormatter) loadRelations(entity string, compiled *mapping.Compiled) {
	if compiled == nil {
		return
	}
	for _, key := range compiled.NestedEntityKeys() {
		path := entity + "." + key
		alias := strings.ReplaceAll(path, ".", "_")
		if !f.plan.Has(path) {
			f.q.LeftJoinAndSelect(path, alias)
			f.plan.Loaded = append(f.plan.Loaded, path)
		}
		f.loadRelations(alias, compiled.Nested(mapping.Reverse, key))
	}
}
