package querysql

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/roach88/entitymap/internal/ir"
)

// Dialect renders the parts of a statement that differ between databases:
// identifier quoting, bind variables, case-insensitive matching and array
// columns.
//
// Array expressions take an already quoted column and a named parameter
// reference such as ":animal_tags".
type Dialect interface {
	Name() string

	// BindType is the sqlx bind type used to rebind "?" placeholders.
	BindType() int

	Quote(ident string) string

	// Like returns the case-insensitive LIKE operator.
	Like(negated bool) string

	// EmptyArray is the literal of an empty array column value.
	EmptyArray() string

	// ArrayValue converts a list into a parameter for an array column.
	ArrayValue(list []any) (any, error)

	ContainsAll(col, param string) string
	Overlaps(col, param string) string
	ArrayAppend(col, param string) string
	ArrayConcat(col, param string) string
	ArrayRemove(col, param string) string
	ArrayRemoveAll(col, param string) string

	// ColumnType returns the DDL type of t.
	ColumnType(t ColumnType) string

	// DecodeValue converts a scanned value of a column of type t back into
	// a document value.
	DecodeValue(t ColumnType, raw any) (any, error)

	// EncodeValue converts a document value into a parameter for a column
	// of type t.
	EncodeValue(t ColumnType, v any) (any, error)
}

// QuotePath quotes a dotted path, e.g. animal.name becomes "animal"."name".
func QuotePath(d Dialect, path string) string {
	parts := strings.Split(path, ".")
	for i, p := range parts {
		parts[i] = d.Quote(p)
	}
	return strings.Join(parts, ".")
}

func quoteIdent(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// Postgres targets PostgreSQL through lib/pq. Array columns are native
// arrays.
var Postgres Dialect = postgres{}

// SQLite targets SQLite through go-sqlite3. Array columns hold JSON text.
var SQLite Dialect = sqlite{}

// DialectByName returns the dialect called name ("postgres" or "sqlite").
func DialectByName(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "postgres", "postgresql", "sql":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	}
	return nil, fmt.Errorf("unknown SQL dialect %q", name)
}

type postgres struct{}

func (postgres) Name() string              { return "postgres" }
func (postgres) BindType() int             { return sqlx.DOLLAR }
func (postgres) Quote(ident string) string { return quoteIdent(ident) }
func (postgres) EmptyArray() string        { return "'{}'" }

func (postgres) Like(negated bool) string {
	if negated {
		return "NOT ILIKE"
	}
	return "ILIKE"
}

func (postgres) ArrayValue(list []any) (any, error) {
	for _, v := range list {
		if _, ok := v.(map[string]any); ok {
			return nil, fmt.Errorf("array columns cannot hold objects")
		}
	}
	return pq.Array(list), nil
}

func (postgres) ContainsAll(col, param string) string {
	return fmt.Sprintf("%s @> %s", col, param)
}

func (postgres) Overlaps(col, param string) string {
	return fmt.Sprintf("%s && %s", col, param)
}

func (postgres) ArrayAppend(col, param string) string {
	return fmt.Sprintf("array_append(%s, %s)", col, param)
}

func (postgres) ArrayConcat(col, param string) string {
	return fmt.Sprintf("coalesce(%s, '{}') || %s", col, param)
}

func (postgres) ArrayRemove(col, param string) string {
	return fmt.Sprintf("array_remove(%s, %s)", col, param)
}

func (postgres) ArrayRemoveAll(col, param string) string {
	return fmt.Sprintf("array(SELECT e FROM unnest(%s) AS e WHERE NOT (e = ANY(%s)))", col, param)
}

func (postgres) ColumnType(t ColumnType) string {
	switch t {
	case TypeInteger:
		return "bigint"
	case TypeReal:
		return "double precision"
	case TypeBoolean:
		return "boolean"
	case TypeTimestamp:
		return "timestamptz"
	case TypeTextArray:
		return "text[]"
	case TypeIntegerArray:
		return "bigint[]"
	case TypeRealArray:
		return "double precision[]"
	}
	return "text"
}

func (postgres) DecodeValue(t ColumnType, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	switch t {
	case TypeTextArray:
		var a pq.StringArray
		if err := a.Scan(raw); err != nil {
			return nil, err
		}
		return stringsToList(a), nil
	case TypeIntegerArray:
		var a pq.Int64Array
		if err := a.Scan(raw); err != nil {
			return nil, err
		}
		out := make([]any, len(a))
		for i, v := range a {
			out[i] = v
		}
		return out, nil
	case TypeRealArray:
		var a pq.Float64Array
		if err := a.Scan(raw); err != nil {
			return nil, err
		}
		out := make([]any, len(a))
		for i, v := range a {
			out[i] = v
		}
		return out, nil
	}
	if b, ok := raw.([]byte); ok {
		return string(b), nil
	}
	return raw, nil
}

func (d postgres) EncodeValue(t ColumnType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if t.IsArray() {
		list, ok := ir.AsSlice(v)
		if !ok {
			return nil, fmt.Errorf("expected an array, got %T", v)
		}
		return d.ArrayValue(list)
	}
	return v, nil
}

type sqlite struct{}

func (sqlite) Name() string              { return "sqlite" }
func (sqlite) BindType() int             { return sqlx.QUESTION }
func (sqlite) Quote(ident string) string { return quoteIdent(ident) }
func (sqlite) EmptyArray() string        { return "'[]'" }

// Like uses LIKE, which SQLite already matches case-insensitively for ASCII.
func (sqlite) Like(negated bool) string {
	if negated {
		return "NOT LIKE"
	}
	return "LIKE"
}

func (sqlite) ArrayValue(list []any) (any, error) {
	for _, v := range list {
		if _, ok := v.(map[string]any); ok {
			return nil, fmt.Errorf("array columns cannot hold objects")
		}
	}
	data, err := ir.MarshalCanonical(list)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (sqlite) ContainsAll(col, param string) string {
	return fmt.Sprintf("%s is not null and NOT EXISTS (SELECT 1 FROM json_each(%s) AS q WHERE q.value NOT IN (SELECT value FROM json_each(%s)))",
		col, param, col)
}

func (sqlite) Overlaps(col, param string) string {
	return fmt.Sprintf("EXISTS (SELECT 1 FROM json_each(%s) AS c, json_each(%s) AS q WHERE c.value = q.value)", col, param)
}

func (sqlite) ArrayAppend(col, param string) string {
	return fmt.Sprintf("json_insert(coalesce(%s, '[]'), '$[#]', %s)", col, param)
}

func (sqlite) ArrayConcat(col, param string) string {
	return fmt.Sprintf("(SELECT json_group_array(value) FROM (SELECT 0 AS s, key AS k, value FROM json_each(coalesce(%s, '[]')) "+
		"UNION ALL SELECT 1, key, value FROM json_each(%s) ORDER BY s, k))", col, param)
}

func (sqlite) ArrayRemove(col, param string) string {
	return fmt.Sprintf("CASE WHEN %s IS NULL THEN NULL ELSE (SELECT json_group_array(value) FROM json_each(%s) WHERE value IS NOT %s) END",
		col, col, param)
}

func (sqlite) ArrayRemoveAll(col, param string) string {
	return fmt.Sprintf("(SELECT json_group_array(value) FROM json_each(%s) WHERE value NOT IN (SELECT value FROM json_each(%s)))",
		col, param)
}

func (sqlite) ColumnType(t ColumnType) string {
	switch t {
	case TypeAny:
		return ""
	case TypeInteger:
		return "INTEGER"
	case TypeReal:
		return "REAL"
	case TypeBoolean:
		return "BOOLEAN"
	case TypeTimestamp:
		return "TIMESTAMP"
	}
	return "TEXT"
}

func (sqlite) DecodeValue(t ColumnType, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	if b, ok := raw.([]byte); ok {
		raw = string(b)
	}

	switch t {
	case TypeTextArray, TypeIntegerArray, TypeRealArray:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected JSON text for array column, got %T", raw)
		}
		return decodeJSONArray(s)
	case TypeBoolean:
		if n, ok := raw.(int64); ok {
			return n != 0, nil
		}
	case TypeTimestamp:
		if s, ok := raw.(string); ok {
			return time.Parse(time.RFC3339Nano, s)
		}
	}
	return raw, nil
}

func (d sqlite) EncodeValue(t ColumnType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if t.IsArray() {
		list, ok := ir.AsSlice(v)
		if !ok {
			return nil, fmt.Errorf("expected an array, got %T", v)
		}
		return d.ArrayValue(list)
	}
	if tm, ok := v.(time.Time); ok {
		return tm.UTC().Format(time.RFC3339Nano), nil
	}
	return v, nil
}

// decodeJSONArray parses JSON text, keeping integers as int64.
func decodeJSONArray(s string) ([]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var list []any
	if err := dec.Decode(&list); err != nil {
		return nil, fmt.Errorf("decode array column: %w", err)
	}
	for i, v := range list {
		n, ok := v.(json.Number)
		if !ok {
			continue
		}
		if iv, err := n.Int64(); err == nil {
			list[i] = iv
		} else if fv, err := n.Float64(); err == nil {
			list[i] = fv
		}
	}
	if list == nil {
		list = []any{}
	}
	return list, nil
}

func stringsToList(a []string) []any {
	out := make([]any, len(a))
	for i, v := range a {
		out[i] = v
	}
	return out
}
