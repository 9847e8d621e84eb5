package querysql

import (
	"strconv"
	"strings"

	"github.com/roach88/entitymap/internal/ir"
	"github.com/roach88/entitymap/internal/queryir"
)

// namer hands out parameter names unique within one statement.
type namer struct {
	used map[string]bool
}

func newNamer() *namer {
	return &namer{used: make(map[string]bool)}
}

func (n *namer) name(key string) string {
	base := paramBase(key)
	name := base
	for i := 2; n.used[name]; i++ {
		name = base + "_" + strconv.Itoa(i)
	}
	n.used[name] = true
	return name
}

// addCondition writes the clause for one value condition on queryKey. In
// opposite mode the condition is replaced by its opposite first.
func addCondition(q Builder, names *namer, queryKey string, c queryir.Condition, opposite bool) error {
	if opposite {
		var err error
		if c, err = queryir.Opposite(c); err != nil {
			return err
		}
	}

	expr, params, err := conditionSQL(q.Dialect(), names, queryKey, c)
	if err != nil {
		return err
	}
	q.AndWhere(expr, params)
	return nil
}

func conditionSQL(d Dialect, names *namer, queryKey string, c queryir.Condition) (string, map[string]any, error) {
	col := QuotePath(d, queryKey)
	v := c.Value()
	kind := c.Kind()

	param := func(value any) (string, map[string]any) {
		p := names.name(queryKey)
		return ":" + p, map[string]any{p: value}
	}
	arrayParam := func(list []any) (string, map[string]any, error) {
		value, err := d.ArrayValue(list)
		if err != nil {
			return "", nil, queryir.NewUnsupportedError(kind.String(), "%s: %v", queryKey, err)
		}
		p, params := param(value)
		return p, params, nil
	}
	scalar := func() (string, map[string]any, error) {
		if _, ok := v.(map[string]any); ok {
			return "", nil, queryir.NewUnsupportedError(kind.String(),
				"%s: an object value cannot be compared with a column", queryKey)
		}
		if list, ok := ir.AsSlice(v); ok {
			return arrayParam(list)
		}
		p, params := param(v)
		return p, params, nil
	}
	like := func(pattern string, negated bool) (string, map[string]any, error) {
		p, params := param(pattern)
		expr := col + " " + d.Like(negated) + " " + p + ` ESCAPE '\'`
		if negated {
			expr = col + " is null or " + expr
		}
		return expr, params, nil
	}

	switch kind {
	case queryir.CondEquals:
		if v == nil {
			return col + " is null", nil, nil
		}
		p, params, err := scalar()
		if err != nil {
			return "", nil, err
		}
		return col + " = " + p, params, nil

	case queryir.CondDoesNotEqual:
		if v == nil {
			return col + " is not null", nil, nil
		}
		p, params, err := scalar()
		if err != nil {
			return "", nil, err
		}
		return col + " is null or " + col + " != " + p, params, nil

	case queryir.CondExists:
		return col + " is not null", nil, nil
	case queryir.CondArrayExists:
		return col + " is not null and " + col + " != " + d.EmptyArray(), nil, nil
	case queryir.CondDoesNotExist:
		return col + " is null", nil, nil
	case queryir.CondArrayDoesNotExist:
		return col + " is null or " + col + " = " + d.EmptyArray(), nil, nil

	case queryir.CondStartsWith:
		return like(escapeLike(v.(string))+"%", false)
	case queryir.CondDoesNotStartWith:
		return like(escapeLike(v.(string))+"%", true)
	case queryir.CondEndsWith:
		return like("%"+escapeLike(v.(string)), false)
	case queryir.CondDoesNotEndWith:
		return like("%"+escapeLike(v.(string)), true)
	case queryir.CondContains:
		return like("%"+escapeLike(v.(string))+"%", false)
	case queryir.CondDoesNotContain:
		return like("%"+escapeLike(v.(string))+"%", true)

	case queryir.CondIsGreaterThan, queryir.CondIsGreaterThanOrEqual,
		queryir.CondIsLesserThan, queryir.CondIsLesserThanOrEqual:
		p, params, err := scalar()
		if err != nil {
			return "", nil, err
		}
		return col + " " + comparators[kind] + " " + p, params, nil

	case queryir.CondIsOneOfTheValues:
		list := c.List()
		if len(list) == 0 {
			return "1 = 0", nil, nil
		}
		p, params := param(list)
		return col + " in (" + p + ")", params, nil
	case queryir.CondIsNoneOfTheValues:
		list := c.List()
		if len(list) == 0 {
			return "1 = 1", nil, nil
		}
		p, params := param(list)
		return col + " is null or " + col + " not in (" + p + ")", params, nil

	case queryir.CondHasElement, queryir.CondDoesNotHaveElement:
		p, params, err := arrayParam([]any{v})
		if err != nil {
			return "", nil, err
		}
		if kind == queryir.CondDoesNotHaveElement {
			return col + " is null or not (" + d.ContainsAll(col, p) + ")", params, nil
		}
		return d.ContainsAll(col, p), params, nil
	case queryir.CondHasAnyOfTheElements:
		p, params, err := arrayParam(c.List())
		if err != nil {
			return "", nil, err
		}
		return d.Overlaps(col, p), params, nil
	case queryir.CondHasNoneOfTheElements:
		p, params, err := arrayParam(c.List())
		if err != nil {
			return "", nil, err
		}
		return col + " is null or not (" + d.Overlaps(col, p) + ")", params, nil
	case queryir.CondHasAllElements:
		p, params, err := arrayParam(c.List())
		if err != nil {
			return "", nil, err
		}
		return d.ContainsAll(col, p), params, nil

	case queryir.CondObjectExists, queryir.CondObjectDoesNotExist,
		queryir.CondObjectArrayExists, queryir.CondObjectArrayDoesNotExist,
		queryir.CondNestedCriteria, queryir.CondHasElementThatMatches, queryir.CondHasNoElementThatMatches:
		return "", nil, queryir.NewUnsupportedError(kind.String(),
			"%s: relation conditions need a joined select", queryKey)
	}
	return "", nil, queryir.NewMalformedConditionError(kind.String())
}

var comparators = map[queryir.ConditionKind]string{
	queryir.CondIsGreaterThan:        ">",
	queryir.CondIsGreaterThanOrEqual: ">=",
	queryir.CondIsLesserThan:         "<",
	queryir.CondIsLesserThanOrEqual:  "<=",
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
