package querymem

import (
	"slices"

	"github.com/roach88/entitymap/internal/ir"
	"github.com/roach88/entitymap/internal/queryir"
)

// Sort orders docs in place by sortBy. The sort is stable. Missing and null
// values sort lowest: first in ascending order, last in descending order.
// Values without a common ordering compare equal.
func Sort(docs []ir.Document, sortBy []queryir.SortField) {
	if len(sortBy) == 0 {
		return
	}
	slices.SortStableFunc(docs, func(a, b ir.Document) int {
		for _, f := range sortBy {
			n := compareField(a[f.Key], b[f.Key])
			if f.Direction == queryir.Desc {
				n = -n
			}
			if n != 0 {
				return n
			}
		}
		return 0
	})
}

func compareField(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	n, ok := ir.Compare(a, b)
	if !ok {
		return 0
	}
	return n
}

// Page applies skip and limit to docs. A zero limit means no limit.
func Page(docs []ir.Document, skip, limit int) []ir.Document {
	if skip >= len(docs) {
		return nil
	}
	docs = docs[skip:]
	if limit > 0 && limit < len(docs) {
		docs = docs[:limit]
	}
	return docs
}

// IDGenerator returns a new document id.
type IDGenerator func() string

// GenerateIDs assigns an id to doc and to every nested object and object
// array element that lacks one.
func GenerateIDs(doc ir.Document, gen IDGenerator) {
	if doc == nil {
		return
	}
	if doc["id"] == nil {
		doc["id"] = gen()
	}
	for _, key := range ir.SortedKeys(doc) {
		switch v := doc[key].(type) {
		case map[string]any:
			GenerateIDs(v, gen)
		case []any:
			for _, e := range v {
				if obj, ok := e.(map[string]any); ok {
					GenerateIDs(obj, gen)
				}
			}
		}
	}
}
