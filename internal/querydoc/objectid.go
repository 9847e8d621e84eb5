package querydoc

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/roach88/entitymap/internal/mapping"
)

// ObjectIDTransformName is the registry name of the ObjectID transform.
const ObjectIDTransformName = "objectid"

// ObjectIDTransforms maps hex string ids to ObjectIDs and back. Typical use
// maps the object key "id" to the entity key "_id":
//
//	"id": mapping.Property("_id", pair.Forward, pair.Reverse)
func ObjectIDTransforms() mapping.TransformPair {
	return mapping.TransformPair{Forward: toObjectID, Reverse: fromObjectID}
}

// RegisterTransforms adds the document-store transforms to reg.
func RegisterTransforms(reg *mapping.Registry) error {
	return reg.Register(ObjectIDTransformName, ObjectIDTransforms())
}

func toObjectID(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case primitive.ObjectID:
		return t, nil
	case string:
		id, err := primitive.ObjectIDFromHex(t)
		if err != nil {
			return nil, fmt.Errorf("objectid: %w", err)
		}
		return id, nil
	}
	return nil, fmt.Errorf("objectid: expected a hex string, got %T", v)
}

func fromObjectID(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case primitive.ObjectID:
		return t.Hex(), nil
	case string:
		return t, nil
	}
	return nil, fmt.Errorf("objectid: expected an ObjectID, got %T", v)
}
