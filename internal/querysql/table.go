package querysql

import (
	"fmt"

	"github.com/roach88/entitymap/internal/mapping"
)

// ColumnType is the storage type of a column.
type ColumnType uint8

const (
	// TypeAny stores values as given. On SQLite the column has no declared
	// type, so numbers and strings keep their own comparison semantics.
	TypeAny ColumnType = iota
	TypeText
	TypeInteger
	TypeReal
	TypeBoolean
	TypeTimestamp
	TypeTextArray
	TypeIntegerArray
	TypeRealArray
)

// IsArray reports whether t is an array column type.
func (t ColumnType) IsArray() bool {
	return t == TypeTextArray || t == TypeIntegerArray || t == TypeRealArray
}

const (
	// IDColumn is the primary key of every table.
	IDColumn = "id"

	// ParentColumn is the foreign key from a child row to its parent id.
	ParentColumn = "_parent_id"

	// PositionColumn keeps the order of object array elements.
	PositionColumn = "_position"
)

// Column is a stored entity key.
type Column struct {
	Name string
	Type ColumnType
}

// Relation links a nested entity key to the child table holding it.
type Relation struct {
	Key        string
	Table      *Table
	Many       bool
	ForeignKey string
}

// Table describes how an entity is laid out: scalar and array keys are
// columns, nested objects and object arrays are child tables.
type Table struct {
	Name      string
	Columns   []Column
	Relations []Relation
}

// Column returns the column called name.
func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Relation returns the relation stored under key.
func (t *Table) Relation(key string) (*Relation, bool) {
	for i := range t.Relations {
		if t.Relations[i].Key == key {
			return &t.Relations[i], true
		}
	}
	return nil, false
}

// Walk calls fn for t and every table below it, parents first.
func (t *Table) Walk(fn func(*Table)) {
	fn(t)
	for _, r := range t.Relations {
		r.Table.Walk(fn)
	}
}

// DeriveTable builds default table metadata from a compiled mapping.
//
// Every entity key becomes a TypeAny column, array keys become text arrays,
// and nested keys become child tables named "<parent>_<key>". An id column
// is added when the mapping does not declare one.
func DeriveTable(name string, compiled *mapping.Compiled) (*Table, error) {
	if compiled == nil {
		return nil, fmt.Errorf("derive table %s: nil mapping", name)
	}
	t := &Table{Name: name}

	for _, key := range compiled.EntityKeys() {
		kind := compiled.Kind(mapping.Reverse, key)
		switch kind {
		case mapping.FieldNestedObject, mapping.FieldObjectArray:
			child, err := DeriveTable(name+"_"+key, compiled.Nested(mapping.Reverse, key))
			if err != nil {
				return nil, err
			}
			t.Relations = append(t.Relations, Relation{
				Key:        key,
				Table:      child,
				Many:       kind == mapping.FieldObjectArray,
				ForeignKey: ParentColumn,
			})
		case mapping.FieldArray:
			t.Columns = append(t.Columns, Column{Name: key, Type: TypeTextArray})
		default:
			t.Columns = append(t.Columns, Column{Name: key, Type: TypeAny})
		}
	}

	if _, ok := t.Column(IDColumn); !ok {
		t.Columns = append([]Column{{Name: IDColumn, Type: TypeAny}}, t.Columns...)
	}
	return t, nil
}
