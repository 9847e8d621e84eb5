// Package querydoc compiles entity-space criteria and updates into MongoDB
// filter and update documents.
//
// Output is deterministic: keys are emitted in sorted order and update verbs
// in a fixed order, so compiled documents can be compared and logged.
package querydoc

import (
	"fmt"
	"regexp"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/roach88/entitymap/internal/ir"
	"github.com/roach88/entitymap/internal/queryir"
)

// Every condition and action kind must be handled below.
func _() {
	var x [1]struct{}
	_ = x[queryir.NumConditionKinds-30]
	_ = x[queryir.NumActionKinds-12]
}

// Filter compiles criteria into a filter document.
//
// NestedCriteria emits an existence guard on the parent key before the
// dotted child conditions, so a missing parent never matches silently.
func Filter(criteria queryir.Criteria) (bson.D, error) {
	out := bson.D{}
	for _, key := range ir.SortedKeys(criteria) {
		c := queryir.ConditionOf(criteria[key])
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}

		switch c.Kind() {
		case queryir.CondNestedCriteria:
			nested, err := Filter(c.Criteria())
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			out = append(out, bson.E{Key: key, Value: op("$ne", nil)})
			for _, e := range nested {
				out = append(out, bson.E{Key: key + "." + e.Key, Value: e.Value})
			}

		case queryir.CondHasElementThatMatches, queryir.CondHasNoElementThatMatches:
			nested, err := Filter(c.Criteria())
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			var expr any = bson.D{{Key: "$elemMatch", Value: nested}}
			if c.Kind() == queryir.CondHasNoElementThatMatches {
				expr = bson.D{{Key: "$not", Value: expr}}
			}
			out = append(out, bson.E{Key: key, Value: expr})

		default:
			expr, err := conditionExpr(c)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			out = append(out, bson.E{Key: key, Value: expr})
		}
	}
	return out, nil
}

func conditionExpr(c queryir.Condition) (any, error) {
	v := c.Value()

	switch c.Kind() {
	case queryir.CondEquals:
		return v, nil
	case queryir.CondDoesNotEqual:
		return op("$ne", v), nil

	// null and missing values both count as not existing
	case queryir.CondExists, queryir.CondObjectExists:
		return op("$ne", nil), nil
	case queryir.CondArrayExists, queryir.CondObjectArrayExists:
		return nonEmptyArray(), nil
	case queryir.CondDoesNotExist, queryir.CondObjectDoesNotExist:
		return nil, nil
	case queryir.CondArrayDoesNotExist, queryir.CondObjectArrayDoesNotExist:
		return op("$not", nonEmptyArray()), nil

	case queryir.CondStartsWith:
		return regex("^" + regexp.QuoteMeta(v.(string))), nil
	case queryir.CondDoesNotStartWith:
		return op("$not", regex("^"+regexp.QuoteMeta(v.(string)))), nil
	case queryir.CondEndsWith:
		return regex(regexp.QuoteMeta(v.(string)) + "$"), nil
	case queryir.CondDoesNotEndWith:
		return op("$not", regex(regexp.QuoteMeta(v.(string))+"$")), nil
	case queryir.CondContains:
		return regex(regexp.QuoteMeta(v.(string))), nil
	case queryir.CondDoesNotContain:
		return op("$not", regex(regexp.QuoteMeta(v.(string)))), nil

	case queryir.CondIsGreaterThan:
		return op("$gt", v), nil
	case queryir.CondIsGreaterThanOrEqual:
		return op("$gte", v), nil
	case queryir.CondIsLesserThan:
		return op("$lt", v), nil
	case queryir.CondIsLesserThanOrEqual:
		return op("$lte", v), nil

	case queryir.CondIsOneOfTheValues, queryir.CondHasAnyOfTheElements:
		return op("$in", array(c.List())), nil
	case queryir.CondIsNoneOfTheValues:
		return op("$nin", array(c.List())), nil

	case queryir.CondHasElement:
		return v, nil
	case queryir.CondDoesNotHaveElement:
		return op("$nin", bson.A{v}), nil
	case queryir.CondHasNoneOfTheElements:
		return op("$nin", array(c.List())), nil
	case queryir.CondHasAllElements:
		return op("$all", array(c.List())), nil

	case queryir.CondNestedCriteria, queryir.CondHasElementThatMatches, queryir.CondHasNoElementThatMatches:
		// handled by Filter
	}
	return nil, queryir.NewMalformedConditionError(c.Kind().String())
}

// Sort converts sort fields into a sort document.
func Sort(sortBy []queryir.SortField) bson.D {
	if len(sortBy) == 0 {
		return nil
	}
	out := make(bson.D, 0, len(sortBy))
	for _, f := range sortBy {
		dir := 1
		if f.Direction == queryir.Desc {
			dir = -1
		}
		out = append(out, bson.E{Key: f.Key, Value: dir})
	}
	return out
}

func op(name string, v any) bson.D {
	return bson.D{{Key: name, Value: v}}
}

func nonEmptyArray() bson.D {
	return bson.D{{Key: "$type", Value: "array"}, {Key: "$ne", Value: bson.A{}}}
}

func regex(pattern string) primitive.Regex {
	return primitive.Regex{Pattern: pattern, Options: "i"}
}

func array(list []any) bson.A {
	out := make(bson.A, len(list))
	copy(out, list)
	return out
}
