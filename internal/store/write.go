package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/roach88/entitymap/internal/ir"
	"github.com/roach88/entitymap/internal/querysql"
)

// Save upserts entity-space documents and replaces their relation rows, all
// in one transaction. Every document needs an id.
func (s *Store) Save(ctx context.Context, table *querysql.Table, docs []ir.Document) error {
	if len(docs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, doc := range docs {
		id := doc[querysql.IDColumn]
		if id == nil {
			return fmt.Errorf("save %s: document has no %s", table.Name, querysql.IDColumn)
		}
		if err := s.upsertRoot(ctx, tx, table, doc); err != nil {
			return err
		}
		if err := s.replaceChildren(ctx, tx, table, []any{id}); err != nil {
			return err
		}
		if err := s.insertRelations(ctx, tx, table, doc); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Delete removes the rows with the given ids and everything below them.
// It returns the number of root rows removed.
func (s *Store) Delete(ctx context.Context, table *querysql.Table, ids []any) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.replaceChildren(ctx, tx, table, ids); err != nil {
		return 0, err
	}
	n, err := s.deleteIn(ctx, tx, table, querysql.IDColumn, ids)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return int(n), nil
}

// Exec runs an UPDATE statement and returns the number of rows affected.
func (s *Store) Exec(ctx context.Context, u *querysql.Update) (int, error) {
	query, args, err := u.SQL()
	if err != nil {
		return 0, fmt.Errorf("build update: %w", err)
	}
	n, err := s.execResult(ctx, s.db, query, args...)
	if err != nil {
		return 0, fmt.Errorf("update: %w", err)
	}
	return int(n), nil
}

func (s *Store) upsertRoot(ctx context.Context, tx *sqlx.Tx, t *querysql.Table, doc ir.Document) error {
	cols, args, err := s.rowValues(t, doc)
	if err != nil {
		return err
	}

	quoted := make([]string, len(cols))
	var updates []string
	for i, c := range cols {
		quoted[i] = s.dialect.Quote(c)
		if c != querysql.IDColumn {
			updates = append(updates, fmt.Sprintf("%s = excluded.%s", quoted[i], quoted[i]))
		}
	}
	conflict := "DO NOTHING"
	if len(updates) > 0 {
		conflict = "DO UPDATE SET " + strings.Join(updates, ", ")
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) %s",
		s.dialect.Quote(t.Name), strings.Join(quoted, ", "), placeholders(len(cols)),
		s.dialect.Quote(querysql.IDColumn), conflict)
	if err := s.exec(ctx, tx, sqlx.Rebind(s.dialect.BindType(), query), args...); err != nil {
		return fmt.Errorf("save %s: %w", t.Name, err)
	}
	return nil
}

func (s *Store) insertChild(ctx context.Context, tx *sqlx.Tx, t *querysql.Table, doc ir.Document, parent any, pos int) error {
	cols, args, err := s.rowValues(t, doc)
	if err != nil {
		return err
	}
	cols = append(cols, querysql.ParentColumn, querysql.PositionColumn)
	args = append(args, parent, pos)

	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = s.dialect.Quote(c)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		s.dialect.Quote(t.Name), strings.Join(quoted, ", "), placeholders(len(cols)))
	if err := s.exec(ctx, tx, sqlx.Rebind(s.dialect.BindType(), query), args...); err != nil {
		return fmt.Errorf("save %s: %w", t.Name, err)
	}
	return s.insertRelations(ctx, tx, t, doc)
}

// insertRelations writes the child rows of one saved row.
func (s *Store) insertRelations(ctx context.Context, tx *sqlx.Tx, t *querysql.Table, doc ir.Document) error {
	for _, rel := range t.Relations {
		v, ok := doc[rel.Key]
		if !ok || v == nil {
			continue
		}
		if !rel.Many {
			child, ok := ir.AsMap(v)
			if !ok {
				return fmt.Errorf("save %s: %s is %T, expected an object", t.Name, rel.Key, v)
			}
			if err := s.insertChild(ctx, tx, rel.Table, child, doc[querysql.IDColumn], 0); err != nil {
				return err
			}
			continue
		}
		list, ok := ir.AsSlice(v)
		if !ok {
			return fmt.Errorf("save %s: %s is %T, expected an array", t.Name, rel.Key, v)
		}
		for i, el := range list {
			child, ok := ir.AsMap(el)
			if !ok {
				return fmt.Errorf("save %s: %s[%d] is %T, expected an object", t.Name, rel.Key, i, el)
			}
			if err := s.insertChild(ctx, tx, rel.Table, child, doc[querysql.IDColumn], i); err != nil {
				return err
			}
		}
	}
	return nil
}

// replaceChildren deletes every row below the given parent ids, deepest
// tables first.
func (s *Store) replaceChildren(ctx context.Context, tx *sqlx.Tx, t *querysql.Table, parents []any) error {
	for _, rel := range t.Relations {
		if len(rel.Table.Relations) > 0 {
			ids, err := s.childIDs(ctx, tx, rel.Table, parents)
			if err != nil {
				return err
			}
			if len(ids) > 0 {
				if err := s.replaceChildren(ctx, tx, rel.Table, ids); err != nil {
					return err
				}
			}
		}
		if _, err := s.deleteIn(ctx, tx, rel.Table, querysql.ParentColumn, parents); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) childIDs(ctx context.Context, tx *sqlx.Tx, t *querysql.Table, parents []any) ([]any, error) {
	query, args, err := sqlx.In(fmt.Sprintf("SELECT %s FROM %s WHERE %s IN (?)",
		s.dialect.Quote(querysql.IDColumn), s.dialect.Quote(t.Name), s.dialect.Quote(querysql.ParentColumn)), parents)
	if err != nil {
		return nil, err
	}
	var ids []any
	if err := tx.SelectContext(ctx, &ids, sqlx.Rebind(s.dialect.BindType(), query), args...); err != nil {
		return nil, fmt.Errorf("select %s ids: %w", t.Name, err)
	}
	out := ids[:0]
	for _, id := range ids {
		if id != nil {
			out = append(out, normalizeID(id))
		}
	}
	return out, nil
}

func (s *Store) deleteIn(ctx context.Context, tx *sqlx.Tx, t *querysql.Table, column string, keys []any) (int64, error) {
	query, args, err := sqlx.In(fmt.Sprintf("DELETE FROM %s WHERE %s IN (?)",
		s.dialect.Quote(t.Name), s.dialect.Quote(column)), keys)
	if err != nil {
		return 0, err
	}
	n, err := s.execResult(ctx, tx, sqlx.Rebind(s.dialect.BindType(), query), args...)
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", t.Name, err)
	}
	return n, nil
}

// rowValues encodes the column values of doc in table column order. Keys
// that are neither a column nor a relation are rejected.
func (s *Store) rowValues(t *querysql.Table, doc ir.Document) ([]string, []any, error) {
	for _, key := range ir.SortedKeys(doc) {
		if _, ok := t.Column(key); ok {
			continue
		}
		if _, ok := t.Relation(key); ok {
			continue
		}
		return nil, nil, fmt.Errorf("save %s: no column for key %q", t.Name, key)
	}

	cols := make([]string, 0, len(t.Columns))
	args := make([]any, 0, len(t.Columns))
	for _, c := range t.Columns {
		v, err := s.dialect.EncodeValue(c.Type, doc[c.Name])
		if err != nil {
			return nil, nil, fmt.Errorf("save %s: column %s: %w", t.Name, c.Name, err)
		}
		cols = append(cols, c.Name)
		args = append(args, v)
	}
	return cols, args, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
