package querysql

import (
	"fmt"
	"maps"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/roach88/entitymap/internal/ir"
	"github.com/roach88/entitymap/internal/queryir"
)

// Builder is the query-builder handle the compiler writes conditions into.
// Expressions reference parameters by name (":name"); params carries their
// values.
type Builder interface {
	AndWhere(expr string, params map[string]any)
	OrWhere(expr string, params map[string]any)
	Dialect() Dialect
}

// SelectQuery is a Builder for SELECT statements.
type SelectQuery interface {
	Builder
	LeftJoinAndSelect(path, alias string)

	// Exists opens a subquery over the relation at path, aliased as alias
	// and correlated to its parent row. Conditions written into sub are
	// AND-ed inside it; done adds "EXISTS (...)" to the query, or
	// "NOT EXISTS (...)" when negate is set.
	Exists(path, alias string, negate bool) (sub SelectQuery, done func())

	OrderBy(column string, dir queryir.SortDirection, nulls Nulls)

	// Offset and Limit page natively in SQL.
	Offset(n int)
	Limit(n int)

	// Skip and Take page after the rows are fetched and deduplicated.
	Skip(n int)
	Take(n int)
}

// UpdateQuery is a Builder for UPDATE statements.
type UpdateQuery interface {
	Builder
	Set(values map[string]any)
}

// Expr is a raw SQL value for UpdateQuery.Set, with the parameters it
// references.
type Expr struct {
	SQL    string
	Params map[string]any
}

// Nulls places NULL values in an ORDER BY term.
type Nulls string

const (
	NullsDefault Nulls = ""
	NullsFirst   Nulls = "NULLS FIRST"
	NullsLast    Nulls = "NULLS LAST"
)

type whereClause struct {
	or   bool
	expr string
}

// whereList collects conditions in call order. Each clause is wrapped in
// parentheses when there is more than one, so "(a) AND (b) OR (c)" reads as
// (a AND b) OR c.
type whereList struct {
	clauses []whereClause
	params  map[string]any
}

func (w *whereList) add(or bool, expr string, params map[string]any) {
	w.clauses = append(w.clauses, whereClause{or: or, expr: expr})
	if w.params == nil {
		w.params = make(map[string]any)
	}
	maps.Copy(w.params, params)
}

func (w *whereList) render() string {
	if len(w.clauses) == 0 {
		return ""
	}
	if len(w.clauses) == 1 {
		return w.clauses[0].expr
	}
	var b strings.Builder
	for i, c := range w.clauses {
		if i > 0 {
			if c.or {
				b.WriteString(" OR ")
			} else {
				b.WriteString(" AND ")
			}
		}
		b.WriteString("(" + c.expr + ")")
	}
	return b.String()
}

type selectJoin struct {
	alias  string
	parent string
	rel    *Relation
}

type orderTerm struct {
	column string
	dir    queryir.SortDirection
	nulls  Nulls
}

// Select is a SelectQuery that renders the id query of a two-phase read:
// it selects the root ids matching the conditions, in order and paged.
type Select struct {
	dialect Dialect
	table   *Table
	alias   string
	tables  map[string]*Table
	joins   []selectJoin
	where   whereList
	orders  []orderTerm

	offset, limit, skip, take int

	err error
}

var _ SelectQuery = (*Select)(nil)

// NewSelect starts a SELECT over table, aliased as alias.
func NewSelect(d Dialect, table *Table, alias string) *Select {
	return &Select{
		dialect: d,
		table:   table,
		alias:   alias,
		tables:  map[string]*Table{alias: table},
	}
}

func (s *Select) Dialect() Dialect { return s.dialect }

func (s *Select) AndWhere(expr string, params map[string]any) { s.where.add(false, expr, params) }
func (s *Select) OrWhere(expr string, params map[string]any)  { s.where.add(true, expr, params) }

// relation resolves path ("parentAlias.key") against the aliases known to s.
func (s *Select) relation(path string) (string, *Relation, error) {
	i := strings.LastIndex(path, ".")
	if i < 0 {
		return "", nil, fmt.Errorf("join path %q has no parent alias", path)
	}
	parent, key := path[:i], path[i+1:]
	pt, ok := s.tables[parent]
	if !ok {
		return "", nil, fmt.Errorf("join %s: unknown alias %q", path, parent)
	}
	rel, ok := pt.Relation(key)
	if !ok {
		return "", nil, fmt.Errorf("join %s: table %s has no relation %q", path, pt.Name, key)
	}
	return parent, rel, nil
}

// LeftJoinAndSelect joins the relation at path ("parentAlias.key") as alias.
func (s *Select) LeftJoinAndSelect(path, alias string) {
	parent, rel, err := s.relation(path)
	if err != nil {
		s.fail(err)
		return
	}
	if _, dup := s.tables[alias]; dup {
		return
	}
	s.tables[alias] = rel.Table
	s.joins = append(s.joins, selectJoin{alias: alias, parent: parent, rel: rel})
}

func (s *Select) Exists(path, alias string, negate bool) (SelectQuery, func()) {
	sub := &Select{dialect: s.dialect, alias: alias, tables: map[string]*Table{}}
	parent, rel, err := s.relation(path)
	if err != nil {
		s.fail(err)
		return sub, func() {}
	}
	sub.table = rel.Table
	sub.tables[alias] = rel.Table
	sub.AndWhere(QuotePath(s.dialect, alias+"."+rel.ForeignKey)+" = "+QuotePath(s.dialect, parent+"."+IDColumn), nil)

	return sub, func() {
		if sub.err != nil {
			s.fail(sub.err)
			return
		}
		var b strings.Builder
		if negate {
			b.WriteString("NOT ")
		}
		b.WriteString("EXISTS (SELECT 1")
		sub.writeFrom(&b)
		b.WriteString(")")
		s.AndWhere(b.String(), sub.where.params)
	}
}

func (s *Select) OrderBy(column string, dir queryir.SortDirection, nulls Nulls) {
	s.orders = append(s.orders, orderTerm{column: column, dir: dir, nulls: nulls})
}

func (s *Select) Offset(n int) { s.offset = n }
func (s *Select) Limit(n int)  { s.limit = n }
func (s *Select) Skip(n int)   { s.skip = n }
func (s *Select) Take(n int)   { s.take = n }

// PostFetch returns the paging to apply to deduplicated ids.
func (s *Select) PostFetch() (skip, take int) {
	return s.skip, s.take
}

// Joined returns the aliases joined so far, in join order.
func (s *Select) Joined() []string {
	out := make([]string, len(s.joins))
	for i, j := range s.joins {
		out[i] = j.alias
	}
	return out
}

func (s *Select) fail(err error) {
	if s.err == nil {
		s.err = err
	}
}

// SQL renders the id query. Rows may repeat an id when joins fan out.
//
// Every query ends with the root id in ORDER BY so results are
// deterministic.
func (s *Select) SQL() (string, []any, error) {
	if s.err != nil {
		return "", nil, s.err
	}
	idCol := QuotePath(s.dialect, s.alias+"."+IDColumn)

	var b strings.Builder
	b.WriteString("SELECT " + idCol)
	s.writeFrom(&b)

	terms := make([]string, 0, len(s.orders)+1)
	hasID := false
	for _, o := range s.orders {
		term := QuotePath(s.dialect, o.column) + " " + strings.ToUpper(string(o.dir))
		if o.nulls != NullsDefault {
			term += " " + string(o.nulls)
		}
		terms = append(terms, term)
		hasID = hasID || o.column == s.alias+"."+IDColumn
	}
	if !hasID {
		terms = append(terms, idCol+" ASC")
	}
	b.WriteString(" ORDER BY " + strings.Join(terms, ", "))

	if s.limit > 0 {
		b.WriteString(" LIMIT " + strconv.Itoa(s.limit))
	} else if s.offset > 0 && s.dialect == SQLite {
		b.WriteString(" LIMIT -1")
	}
	if s.offset > 0 {
		b.WriteString(" OFFSET " + strconv.Itoa(s.offset))
	}
	return bind(s.dialect, b.String(), s.where.params)
}

// CountSQL renders a query counting the distinct matching root ids.
func (s *Select) CountSQL() (string, []any, error) {
	if s.err != nil {
		return "", nil, s.err
	}
	var b strings.Builder
	b.WriteString("SELECT COUNT(DISTINCT " + QuotePath(s.dialect, s.alias+"."+IDColumn) + ")")
	s.writeFrom(&b)
	return bind(s.dialect, b.String(), s.where.params)
}

func (s *Select) writeFrom(b *strings.Builder) {
	b.WriteString(" FROM " + s.dialect.Quote(s.table.Name) + " AS " + s.dialect.Quote(s.alias))
	for _, j := range s.joins {
		fmt.Fprintf(b, " LEFT JOIN %s AS %s ON %s = %s",
			s.dialect.Quote(j.rel.Table.Name),
			s.dialect.Quote(j.alias),
			QuotePath(s.dialect, j.alias+"."+j.rel.ForeignKey),
			QuotePath(s.dialect, j.parent+"."+IDColumn))
	}
	if where := s.where.render(); where != "" {
		b.WriteString(" WHERE " + where)
	}
}

// Update is an UpdateQuery over a single table. Columns are unqualified.
type Update struct {
	dialect Dialect
	table   *Table
	where   whereList
	sets    map[string]any
}

var _ UpdateQuery = (*Update)(nil)

// NewUpdate starts an UPDATE of table.
func NewUpdate(d Dialect, table *Table) *Update {
	return &Update{dialect: d, table: table, sets: make(map[string]any)}
}

func (u *Update) Dialect() Dialect { return u.dialect }

func (u *Update) AndWhere(expr string, params map[string]any) { u.where.add(false, expr, params) }
func (u *Update) OrWhere(expr string, params map[string]any)  { u.where.add(true, expr, params) }

// Set assigns columns. Values are bound as parameters unless they are Expr.
func (u *Update) Set(values map[string]any) {
	maps.Copy(u.sets, values)
}

// SQL renders the UPDATE statement with SET columns in sorted order.
func (u *Update) SQL() (string, []any, error) {
	if len(u.sets) == 0 {
		return "", nil, fmt.Errorf("update of %s sets no columns", u.table.Name)
	}
	params := make(map[string]any, len(u.where.params)+len(u.sets))
	maps.Copy(params, u.where.params)

	assignments := make([]string, 0, len(u.sets))
	for _, col := range ir.SortedKeys(u.sets) {
		switch v := u.sets[col].(type) {
		case Expr:
			maps.Copy(params, v.Params)
			assignments = append(assignments, u.dialect.Quote(col)+" = "+v.SQL)
		default:
			name := uniqueParam(params, "set_"+paramBase(col))
			params[name] = v
			assignments = append(assignments, u.dialect.Quote(col)+" = :"+name)
		}
	}

	q := "UPDATE " + u.dialect.Quote(u.table.Name) + " SET " + strings.Join(assignments, ", ")
	if where := u.where.render(); where != "" {
		q += " WHERE " + where
	}
	return bind(u.dialect, q, params)
}

// bind compiles named parameters into positional binds for d. List
// parameters (IN clauses) are expanded by sqlx.In.
func bind(d Dialect, query string, params map[string]any) (string, []any, error) {
	if params == nil {
		params = map[string]any{}
	}
	q, args, err := sqlx.Named(query, params)
	if err != nil {
		return "", nil, fmt.Errorf("bind parameters: %w", err)
	}
	q, args, err = sqlx.In(q, args...)
	if err != nil {
		return "", nil, fmt.Errorf("expand list parameters: %w", err)
	}
	return sqlx.Rebind(d.BindType(), q), args, nil
}

// paramBase turns a query key into a parameter name.
func paramBase(key string) string {
	return strings.ReplaceAll(key, ".", "_")
}

func uniqueParam(params map[string]any, base string) string {
	name := base
	for i := 2; ; i++ {
		if _, taken := params[name]; !taken {
			return name
		}
		name = base + "_" + strconv.Itoa(i)
	}
}
