package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/entitymap/internal/querysql"
)

// Store runs entity queries against a relational database.
type Store struct {
	db      *sqlx.DB
	dialect querysql.Dialect
	logger  *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for statement tracing at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Open creates or opens a SQLite database at the given path.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// This function is idempotent - safe to call multiple times.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	return New(db, querysql.SQLite, opts...), nil
}

// OpenPostgres connects to a PostgreSQL database.
func OpenPostgres(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return New(db, querysql.Postgres, opts...), nil
}

// New wraps an open connection. The dialect must match the driver.
func New(db *sqlx.DB, d querysql.Dialect, opts ...Option) *Store {
	s := &Store{db: db, dialect: d, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying connection for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Dialect returns the SQL dialect queries for this store must be built with.
func (s *Store) Dialect() querysql.Dialect {
	return s.dialect
}

// CreateTables creates the root table and every child table if they don't
// exist. Child tables get the parent reference and position columns plus an
// index on the parent reference.
func (s *Store) CreateTables(ctx context.Context, table *querysql.Table) error {
	return s.createTable(ctx, table, nil)
}

func (s *Store) createTable(ctx context.Context, t *querysql.Table, parent *querysql.Table) error {
	var defs []string
	for _, c := range t.Columns {
		def := s.dialect.Quote(c.Name)
		if typ := s.dialect.ColumnType(c.Type); typ != "" {
			def += " " + typ
		}
		if parent == nil && c.Name == querysql.IDColumn {
			def += " PRIMARY KEY"
		}
		defs = append(defs, def)
	}
	if parent != nil {
		parentID, _ := parent.Column(querysql.IDColumn)
		def := s.dialect.Quote(querysql.ParentColumn)
		if typ := s.dialect.ColumnType(parentID.Type); typ != "" {
			def += " " + typ
		}
		defs = append(defs, def+" NOT NULL", s.dialect.Quote(querysql.PositionColumn)+" "+s.dialect.ColumnType(querysql.TypeInteger))
	}

	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", s.dialect.Quote(t.Name), strings.Join(defs, ", "))
	if err := s.exec(ctx, s.db, stmt); err != nil {
		return fmt.Errorf("create table %s: %w", t.Name, err)
	}
	if parent != nil {
		index := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
			s.dialect.Quote(t.Name+"_parent_idx"), s.dialect.Quote(t.Name), s.dialect.Quote(querysql.ParentColumn))
		if err := s.exec(ctx, s.db, index); err != nil {
			return fmt.Errorf("create index on %s: %w", t.Name, err)
		}
	}

	for _, r := range t.Relations {
		if err := s.createTable(ctx, r.Table, t); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) exec(ctx context.Context, e sqlx.ExecerContext, query string, args ...any) error {
	_, err := s.execResult(ctx, e, query, args...)
	return err
}

func (s *Store) execResult(ctx context.Context, e sqlx.ExecerContext, query string, args ...any) (int64, error) {
	s.logger.DebugContext(ctx, "exec", "sql", query, "args", len(args))
	res, err := e.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sqlx.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.Get(&value, fmt.Sprintf("PRAGMA %s", name)); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
