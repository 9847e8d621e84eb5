// Package queryir defines the persistence-agnostic request algebra used by
// every entitymap backend.
//
// A search request is a Criteria tree: a map from field name to either a raw
// value (shorthand for Equals) or a Condition. An update request is an Update
// tree: a map from field name to either a raw value (shorthand for Set) or an
// Action. Nested conditions (NestedCriteria, HasElementThatMatches,
// HasNoElementThatMatches) and nested actions (NestedUpdate,
// NestedArrayUpdate) carry a sub-tree of the same shape.
//
// ARCHITECTURE:
//
//	[application] → [Criteria / Update] → [mapper] → [entity-space tree]
//	                                                    → [querydoc]  (bson)
//	                                                    → [querysql]  (SQL + join plan)
//	                                                    → [querymem]  (closures)
//
// CLOSED ALGEBRA:
//
// Condition and Action are value types carrying a kind tag and a payload.
// The set of kinds is closed: only the constructors in this package create
// valid values. Backend compilers switch over every kind and pin the switch
// to NumConditionKinds / NumActionKinds, so adding a kind fails to build
// until every compiler handles it:
//
//	func _() {
//		var x [1]struct{}
//		_ = x[queryir.NumConditionKinds-30]
//	}
//
// A zero Condition or Action (kind 0) is malformed and rejected by every
// compiler with an error naming the tag.
//
// UNDEFINED VS NULL:
//
// An absent key is "undefined" and is ignored everywhere. A key present with
// a nil value is null, a meaningful value that compiles to IS NULL, $eq null,
// and so on.
//
// PAYLOAD REWRITES:
//
// Conditions and actions are never mutated. Code that rewrites a payload
// (the mapper, transforms) builds a new variant of the same kind with
// WithValue.
package queryir
