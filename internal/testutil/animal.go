package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/entitymap/internal/ir"
	"github.com/roach88/entitymap/internal/mapping"
	"github.com/roach88/entitymap/internal/querysql"
)

// AnimalSpec is the shared fixture mapping. Object keys differ from entity
// keys where that exercises the mapper ("name" is stored as "animal_name").
//
//	animal: id, name, age, tags[], owner{id, name}, toys[{id, label, price}]
func AnimalSpec() mapping.Spec {
	return mapping.Spec{
		"id":   mapping.Key("id"),
		"name": mapping.Key("animal_name"),
		"age":  mapping.Key("age"),
		"tags": mapping.Array("tags", mapping.Identity, mapping.Identity),
		"owner": mapping.NestedObject("owner", mapping.Spec{
			"id":   mapping.Key("id"),
			"name": mapping.Key("owner_name"),
		}),
		"toys": mapping.ObjectArray("toys", mapping.Spec{
			"id":    mapping.Key("id"),
			"label": mapping.Key("label"),
			"price": mapping.Key("price"),
		}),
	}
}

// AnimalMapping compiles AnimalSpec.
func AnimalMapping(t testing.TB) *mapping.Compiled {
	t.Helper()
	compiled, err := mapping.Compile(AnimalSpec())
	require.NoError(t, err)
	return compiled
}

// AnimalTable is the typed relational layout of AnimalSpec's entity space.
func AnimalTable() *querysql.Table {
	return &querysql.Table{
		Name: "animals",
		Columns: []querysql.Column{
			{Name: "id", Type: querysql.TypeText},
			{Name: "age", Type: querysql.TypeInteger},
			{Name: "animal_name", Type: querysql.TypeText},
			{Name: "tags", Type: querysql.TypeTextArray},
		},
		Relations: []querysql.Relation{
			{Key: "owner", ForeignKey: querysql.ParentColumn, Table: &querysql.Table{
				Name: "animals_owner",
				Columns: []querysql.Column{
					{Name: "id", Type: querysql.TypeText},
					{Name: "owner_name", Type: querysql.TypeText},
				},
			}},
			{Key: "toys", Many: true, ForeignKey: querysql.ParentColumn, Table: &querysql.Table{
				Name: "animals_toys",
				Columns: []querysql.Column{
					{Name: "id", Type: querysql.TypeText},
					{Name: "label", Type: querysql.TypeText},
					{Name: "price", Type: querysql.TypeInteger},
				},
			}},
		},
	}
}

// Animals returns fresh copies of the three fixture objects, in id order:
// Rex (owner and two toys), Max (no owner, one toy) and bella (owner, no
// toys, no tags).
func Animals() []ir.Document {
	return []ir.Document{
		{
			"id":    "a-1",
			"name":  "Rex",
			"age":   int64(3),
			"tags":  []any{"good", "loud"},
			"owner": map[string]any{"id": "o-1", "name": "Jo"},
			"toys": []any{
				map[string]any{"id": "t-1", "label": "ball", "price": int64(5)},
				map[string]any{"id": "t-2", "label": "bone", "price": int64(2)},
			},
		},
		{
			"id":   "a-2",
			"name": "Max",
			"age":  int64(7),
			"tags": []any{"calm"},
			"toys": []any{
				map[string]any{"id": "t-3", "label": "rope", "price": int64(3)},
			},
		},
		{
			"id":    "a-3",
			"name":  "bella",
			"age":   int64(1),
			"owner": map[string]any{"id": "o-2", "name": "Sam"},
		},
	}
}
