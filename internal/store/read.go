package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/roach88/entitymap/internal/ir"
	"github.com/roach88/entitymap/internal/querysql"
)

// Find runs the id query and loads the matching documents in result order.
func (s *Store) Find(ctx context.Context, table *querysql.Table, q *querysql.Select) ([]ir.Document, error) {
	ids, err := s.FindIDs(ctx, q)
	if err != nil {
		return nil, err
	}
	return s.Load(ctx, table, ids)
}

// FindIDs runs the id query and returns the distinct root ids in result
// order, with the query's post-fetch skip/take applied.
func (s *Store) FindIDs(ctx context.Context, q *querysql.Select) ([]any, error) {
	query, args, err := q.SQL()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	s.logger.DebugContext(ctx, "query", "sql", query, "args", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ids: %w", err)
	}
	defer rows.Close()

	var ids []any
	seen := make(map[any]bool)
	for rows.Next() {
		var id any
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		id = normalizeID(id)
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ids: %w", err)
	}

	skip, take := q.PostFetch()
	if skip > 0 {
		if skip >= len(ids) {
			return nil, nil
		}
		ids = ids[skip:]
	}
	if take > 0 && take < len(ids) {
		ids = ids[:take]
	}
	return ids, nil
}

// Count returns the number of distinct root rows the query matches.
// Paging on the query is ignored.
func (s *Store) Count(ctx context.Context, q *querysql.Select) (int, error) {
	query, args, err := q.CountSQL()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}
	s.logger.DebugContext(ctx, "count", "sql", query, "args", len(args))

	var n int
	if err := s.db.GetContext(ctx, &n, query, args...); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

// Load reads full documents by id, relations included. The result follows
// the order of ids; ids with no row are skipped.
func (s *Store) Load(ctx context.Context, table *querysql.Table, ids []any) ([]ir.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.loadRows(ctx, table, querysql.IDColumn, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[any]ir.Document, len(rows))
	for _, r := range rows {
		byID[r.id] = r.doc
	}
	docs := make([]ir.Document, 0, len(ids))
	for _, id := range ids {
		if doc, ok := byID[normalizeID(id)]; ok {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

type loadedRow struct {
	id     any
	parent any
	doc    ir.Document
}

// loadRows selects the rows of t whose key column is in keys, then attaches
// their relations. Rows come back in (key, _position, id) order.
func (s *Store) loadRows(ctx context.Context, t *querysql.Table, key string, keys []any) ([]loadedRow, error) {
	cols := make([]string, 0, len(t.Columns)+1)
	for _, c := range t.Columns {
		cols = append(cols, s.dialect.Quote(c.Name))
	}
	order := s.dialect.Quote(querysql.IDColumn)
	if key == querysql.ParentColumn {
		cols = append(cols, s.dialect.Quote(querysql.ParentColumn))
		order = fmt.Sprintf("%s, %s, %s", s.dialect.Quote(querysql.ParentColumn), s.dialect.Quote(querysql.PositionColumn), order)
	}

	query, args, err := sqlx.In(fmt.Sprintf("SELECT %s FROM %s WHERE %s IN (?) ORDER BY %s",
		strings.Join(cols, ", "), s.dialect.Quote(t.Name), s.dialect.Quote(key), order), keys)
	if err != nil {
		return nil, fmt.Errorf("build load query for %s: %w", t.Name, err)
	}
	query = sqlx.Rebind(s.dialect.BindType(), query)
	s.logger.DebugContext(ctx, "load", "table", t.Name, "keys", len(keys))

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", t.Name, err)
	}
	defer rows.Close()

	var out []loadedRow
	for rows.Next() {
		raw := make(map[string]any)
		if err := rows.MapScan(raw); err != nil {
			return nil, fmt.Errorf("scan %s: %w", t.Name, err)
		}
		row, err := s.decodeRow(t, raw)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", t.Name, err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", t.Name, err)
	}
	if len(out) == 0 {
		return out, nil
	}

	ids := make([]any, 0, len(out))
	index := make(map[any][]int)
	for i, r := range out {
		if r.id == nil {
			continue
		}
		if _, ok := index[r.id]; !ok {
			ids = append(ids, r.id)
		}
		index[r.id] = append(index[r.id], i)
	}
	if len(ids) == 0 {
		return out, nil
	}

	for _, rel := range t.Relations {
		children, err := s.loadRows(ctx, rel.Table, querysql.ParentColumn, ids)
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			for _, i := range index[child.parent] {
				attach(out[i].doc, rel, child.doc)
			}
		}
	}
	return out, nil
}

func (s *Store) decodeRow(t *querysql.Table, raw map[string]any) (loadedRow, error) {
	var row loadedRow
	row.doc = make(ir.Document, len(t.Columns))
	for _, c := range t.Columns {
		v, err := s.dialect.DecodeValue(c.Type, raw[c.Name])
		if err != nil {
			return row, fmt.Errorf("column %s: %w", c.Name, err)
		}
		if v == nil {
			continue
		}
		row.doc[c.Name] = v
	}
	row.id = normalizeID(raw[querysql.IDColumn])
	if p, ok := raw[querysql.ParentColumn]; ok {
		row.parent = normalizeID(p)
	}
	return row, nil
}

// attach adds a child document to its parent. A row shared by two parents
// with the same id is copied so the documents stay independent.
func attach(parent ir.Document, rel querysql.Relation, child ir.Document) {
	if !rel.Many {
		parent[rel.Key] = map[string]any(ir.CloneDocument(child))
		return
	}
	list, _ := parent[rel.Key].([]any)
	parent[rel.Key] = append(list, map[string]any(ir.CloneDocument(child)))
}

// normalizeID makes driver-returned ids usable as map keys.
func normalizeID(id any) any {
	if b, ok := id.([]byte); ok {
		return string(b)
	}
	return id
}
