package querydoc

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/roach88/entitymap/internal/ir"
	"github.com/roach88/entitymap/internal/queryir"
)

// verbs is the order update operators are emitted in.
var verbs = []string{"$set", "$unset", "$inc", "$push", "$pull", "$pullAll"}

// Update compiles an update into an update document. Actions are grouped by
// operator, so every Increment across all fields lands in one $inc.
//
// NestedUpdate prefixes child keys with "key." and NestedArrayUpdate with
// "key.$[]." so the child actions apply to every array element.
func Update(update queryir.Update) (bson.D, error) {
	groups := make(map[string]bson.D, len(verbs))
	if err := collectUpdate(update, "", groups); err != nil {
		return nil, err
	}

	out := bson.D{}
	for _, verb := range verbs {
		if fields, ok := groups[verb]; ok {
			out = append(out, bson.E{Key: verb, Value: fields})
		}
	}
	return out, nil
}

func collectUpdate(update queryir.Update, prefix string, groups map[string]bson.D) error {
	for _, key := range ir.SortedKeys(update) {
		a := queryir.ActionOf(update[key])
		path := prefix + key

		if err := a.Validate(); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}

		var verb string
		var value any
		switch a.Kind() {
		case queryir.ActSet:
			verb, value = "$set", a.Value()
		case queryir.ActClear, queryir.ActClearArray, queryir.ActClearObject, queryir.ActClearObjectArray:
			verb, value = "$unset", ""
		case queryir.ActIncrement:
			verb, value = "$inc", a.Value()
		case queryir.ActPush:
			verb, value = "$push", a.Value()
		case queryir.ActPushEach:
			verb, value = "$push", bson.D{{Key: "$each", Value: array(a.List())}}
		case queryir.ActPull:
			verb, value = "$pull", a.Value()
		case queryir.ActPullEach:
			verb, value = "$pullAll", array(a.List())
		case queryir.ActNestedUpdate:
			if err := collectUpdate(a.Update(), path+".", groups); err != nil {
				return err
			}
			continue
		case queryir.ActNestedArrayUpdate:
			if err := collectUpdate(a.Update(), path+".$[].", groups); err != nil {
				return err
			}
			continue
		default:
			return fmt.Errorf("%s: %w", path, queryir.NewMalformedActionError(a.Kind().String()))
		}
		groups[verb] = append(groups[verb], bson.E{Key: path, Value: value})
	}
	return nil
}
