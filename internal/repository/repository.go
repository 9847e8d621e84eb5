// Package repository implements persistence-agnostic domain repositories.
//
// Each implementation accepts the same criteria, update and search-option
// trees in object space and answers the same way:
//   - Memory keeps deep copies of objects in process
//   - Relational maps to entity space and runs through store and querysql
//   - Document maps to entity space and runs against a MongoDB collection
package repository

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/uber-go/tally/v4"

	"github.com/roach88/entitymap/internal/ir"
	"github.com/roach88/entitymap/internal/queryir"
	"github.com/roach88/entitymap/internal/querymem"
)

// Repository reads and writes domain objects. All criteria are ANDed.
type Repository interface {
	// FindOne returns the first matching object, or nil when none matches.
	FindOne(ctx context.Context, criteria queryir.Criteria) (ir.Document, error)

	// FindOneOrFail returns the only matching object. Zero or several
	// matches give a *SingleEntityNotFoundError.
	FindOneOrFail(ctx context.Context, criteria queryir.Criteria) (ir.Document, error)

	FindAll(ctx context.Context, criteria queryir.Criteria, opts *queryir.SearchOptions) ([]ir.Document, error)
	CountAll(ctx context.Context, criteria queryir.Criteria) (int, error)

	// Create stores a detached object and returns it attached, ids included.
	Create(ctx context.Context, object ir.Document) (ir.Document, error)
	CreateMany(ctx context.Context, objects []ir.Document) ([]ir.Document, error)

	// FindOneAndUpdate updates the first matching object and returns its new
	// state, or nil when none matches.
	FindOneAndUpdate(ctx context.Context, criteria queryir.Criteria, update queryir.Update) (ir.Document, error)

	// FindAllAndUpdate returns the number of objects changed.
	FindAllAndUpdate(ctx context.Context, criteria queryir.Criteria, update queryir.Update) (int, error)

	// FindOneAndDelete returns the deleted object, or nil when none matches.
	FindOneAndDelete(ctx context.Context, criteria queryir.Criteria) (ir.Document, error)

	// FindAllAndDelete returns the number of objects deleted.
	FindAllAndDelete(ctx context.Context, criteria queryir.Criteria) (int, error)
}

// RepositoryOption configures a repository.
type RepositoryOption func(*options)

type options struct {
	logger *slog.Logger
	scope  tally.Scope
	ids    querymem.IDGenerator
	entity string
}

func newOptions(entity string, opts []RepositoryOption) options {
	o := options{
		logger: slog.Default(),
		scope:  tally.NoopScope,
		ids:    NewUUID,
		entity: entity,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the logger. Compiled queries, join plans and the chosen
// update strategy are logged at debug level.
//
// Default: slog.Default()
func WithLogger(logger *slog.Logger) RepositoryOption {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithScope sets the metrics scope.
//
// Default: tally.NoopScope
func WithScope(scope tally.Scope) RepositoryOption {
	return func(o *options) {
		if scope != nil {
			o.scope = scope
		}
	}
}

// WithIDGenerator sets the generator for ids assigned on create and update.
// The document repository leaves root ids to the database.
//
// Default: NewUUID
func WithIDGenerator(gen querymem.IDGenerator) RepositoryOption {
	return func(o *options) {
		if gen != nil {
			o.ids = gen
		}
	}
}

// WithEntityName sets the name reported in SingleEntityNotFoundError.
func WithEntityName(name string) RepositoryOption {
	return func(o *options) {
		if name != "" {
			o.entity = name
		}
	}
}

// NewUUID returns a time-sortable UUIDv7 string.
//
// Panics if UUID generation fails (should never happen in practice).
func NewUUID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// cloneAll deep-copies docs.
func cloneAll(docs []ir.Document) []ir.Document {
	if docs == nil {
		return nil
	}
	out := make([]ir.Document, len(docs))
	for i, d := range docs {
		out[i] = ir.CloneDocument(d)
	}
	return out
}
