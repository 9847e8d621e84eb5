package repository

import (
	"context"
	"fmt"

	"github.com/roach88/entitymap/internal/ir"
	"github.com/roach88/entitymap/internal/mapper"
	"github.com/roach88/entitymap/internal/mapping"
	"github.com/roach88/entitymap/internal/queryir"
	"github.com/roach88/entitymap/internal/querymem"
	"github.com/roach88/entitymap/internal/querysql"
	"github.com/roach88/entitymap/internal/store"
)

// Relational is a repository over SQL tables.
//
// Reads compile the mapped criteria into an id query, then load whole
// documents by id. FindAllAndUpdate issues a single UPDATE when the request
// is simple enough for querysql.FormatSimpleUpdate, and otherwise loads the
// matches, updates them in memory and saves them back.
type Relational struct {
	store   *store.Store
	table   *querysql.Table
	mapper  *mapper.Mapper
	opts    options
	metrics *metrics
}

var _ Repository = (*Relational)(nil)

// NewRelational creates a repository for table. The compiled mapping is
// owned by the repository; entity keys must match the table's columns and
// relations.
func NewRelational(s *store.Store, table *querysql.Table, compiled *mapping.Compiled, opts ...RepositoryOption) *Relational {
	o := newOptions(table.Name, opts)
	return &Relational{
		store:   s,
		table:   table,
		mapper:  mapper.New(compiled),
		opts:    o,
		metrics: newMetrics(o.scope, o.entity),
	}
}

// selectQuery maps criteria and options and compiles them into an id query.
func (r *Relational) selectQuery(ctx context.Context, criteria queryir.Criteria, opts *queryir.SearchOptions) (*querysql.Select, error) {
	mapped, err := r.mapper.MapSearchCriteria(criteria)
	if err != nil {
		return nil, fmt.Errorf("map criteria: %w", err)
	}
	var mappedOpts *queryir.SearchOptions
	if opts != nil {
		o := r.mapper.MapSearchOptions(*opts)
		mappedOpts = &o
	}

	alias := r.table.Name
	q := querysql.NewSelect(r.store.Dialect(), r.table, alias)
	plan, err := querysql.FormatSelect(q, alias, mapped, mappedOpts, r.mapper.Compiled(), false)
	if err != nil {
		return nil, fmt.Errorf("compile criteria: %w", err)
	}
	r.opts.logger.DebugContext(ctx, "compiled select", "entity", r.opts.entity, "joins", plan.Paths)
	return q, nil
}

// findEntities returns matching entities, relations loaded.
func (r *Relational) findEntities(ctx context.Context, criteria queryir.Criteria, opts *queryir.SearchOptions) ([]ir.Document, error) {
	q, err := r.selectQuery(ctx, criteria, opts)
	if err != nil {
		return nil, err
	}
	return r.store.Find(ctx, r.table, q)
}

func (r *Relational) findIDs(ctx context.Context, criteria queryir.Criteria, opts *queryir.SearchOptions) ([]any, error) {
	q, err := r.selectQuery(ctx, criteria, opts)
	if err != nil {
		return nil, err
	}
	return r.store.FindIDs(ctx, q)
}

func (r *Relational) toObjects(entities []ir.Document) ([]ir.Document, error) {
	out := make([]ir.Document, len(entities))
	for i, e := range entities {
		obj, err := r.mapper.MapEntityToAttachedObject(e)
		if err != nil {
			return nil, fmt.Errorf("map entity: %w", err)
		}
		out[i] = obj
	}
	return out, nil
}

func (r *Relational) FindOne(ctx context.Context, criteria queryir.Criteria) (ir.Document, error) {
	r.metrics.find.Inc(1)
	entities, err := r.findEntities(ctx, criteria, &queryir.SearchOptions{Limit: 1})
	if err != nil || len(entities) == 0 {
		return nil, err
	}
	return r.mapper.MapEntityToAttachedObject(entities[0])
}

func (r *Relational) FindOneOrFail(ctx context.Context, criteria queryir.Criteria) (ir.Document, error) {
	found, err := r.FindAll(ctx, criteria, nil)
	if err != nil {
		return nil, err
	}
	if len(found) != 1 {
		r.metrics.notFound.Inc(1)
		return nil, &SingleEntityNotFoundError{Entity: r.opts.entity, Count: len(found), Criteria: criteria}
	}
	return found[0], nil
}

func (r *Relational) FindAll(ctx context.Context, criteria queryir.Criteria, opts *queryir.SearchOptions) ([]ir.Document, error) {
	r.metrics.find.Inc(1)
	entities, err := r.findEntities(ctx, criteria, opts)
	if err != nil {
		return nil, err
	}
	return r.toObjects(entities)
}

func (r *Relational) CountAll(ctx context.Context, criteria queryir.Criteria) (int, error) {
	r.metrics.count.Inc(1)
	q, err := r.selectQuery(ctx, criteria, nil)
	if err != nil {
		return 0, err
	}
	return r.store.Count(ctx, q)
}

func (r *Relational) Create(ctx context.Context, object ir.Document) (ir.Document, error) {
	created, err := r.CreateMany(ctx, []ir.Document{object})
	if err != nil {
		return nil, err
	}
	return created[0], nil
}

// CreateMany saves all objects in one transaction and returns them as read
// back from the database.
func (r *Relational) CreateMany(ctx context.Context, objects []ir.Document) ([]ir.Document, error) {
	if len(objects) == 0 {
		return []ir.Document{}, nil
	}
	entities := make([]ir.Document, len(objects))
	ids := make([]any, len(objects))
	for i, obj := range objects {
		entity, err := r.mapper.MapDetachedObjectToEntity(obj)
		if err != nil {
			return nil, fmt.Errorf("map object: %w", err)
		}
		querymem.GenerateIDs(entity, r.opts.ids)
		entities[i] = entity
		ids[i] = entity[querysql.IDColumn]
	}

	if err := r.store.Save(ctx, r.table, entities); err != nil {
		return nil, err
	}
	saved, err := r.store.Load(ctx, r.table, ids)
	if err != nil {
		return nil, err
	}

	r.metrics.create.Inc(int64(len(saved)))
	r.opts.logger.DebugContext(ctx, "created entities", "entity", r.opts.entity, "count", len(saved))
	return r.toObjects(saved)
}

// FindOneAndUpdate always loads, updates in memory and saves.
func (r *Relational) FindOneAndUpdate(ctx context.Context, criteria queryir.Criteria, update queryir.Update) (ir.Document, error) {
	r.metrics.update.Inc(1)
	mutate, err := r.compileUpdate(update)
	if err != nil {
		return nil, err
	}
	entities, err := r.findEntities(ctx, criteria, &queryir.SearchOptions{Limit: 1})
	if err != nil || len(entities) == 0 {
		return nil, err
	}

	entity := entities[0]
	if _, err := mutate(entity); err != nil {
		return nil, fmt.Errorf("update: %w", err)
	}
	querymem.GenerateIDs(entity, r.opts.ids)
	if err := r.store.Save(ctx, r.table, []ir.Document{entity}); err != nil {
		return nil, err
	}

	saved, err := r.store.Load(ctx, r.table, []any{entity[querysql.IDColumn]})
	if err != nil || len(saved) == 0 {
		return nil, err
	}
	return r.mapper.MapEntityToAttachedObject(saved[0])
}

// FindAllAndUpdate uses a single UPDATE statement when it can. The fast path
// reports rows matched by the database; the fallback reports documents whose
// content changed.
func (r *Relational) FindAllAndUpdate(ctx context.Context, criteria queryir.Criteria, update queryir.Update) (int, error) {
	r.metrics.update.Inc(1)
	mappedCriteria, err := r.mapper.MapSearchCriteria(criteria)
	if err != nil {
		return 0, fmt.Errorf("map criteria: %w", err)
	}
	mappedUpdate, err := r.mapper.MapUpdate(update)
	if err != nil {
		return 0, fmt.Errorf("map update: %w", err)
	}

	if querysql.IsSimpleUpdate(mappedCriteria, mappedUpdate) {
		u := querysql.NewUpdate(r.store.Dialect(), r.table)
		if _, err := querysql.FormatSimpleUpdate(u, mappedCriteria, mappedUpdate); err != nil {
			return 0, fmt.Errorf("compile update: %w", err)
		}
		n, err := r.store.Exec(ctx, u)
		if err != nil {
			return 0, err
		}
		r.metrics.updateFastPath.Inc(1)
		r.opts.logger.DebugContext(ctx, "updated entities", "entity", r.opts.entity, "strategy", "fast_path", "affected", n)
		return n, nil
	}

	mutate, err := querymem.CompileUpdate(mappedUpdate)
	if err != nil {
		return 0, fmt.Errorf("compile update: %w", err)
	}
	entities, err := r.findEntities(ctx, criteria, nil)
	if err != nil {
		return 0, err
	}
	var changed []ir.Document
	for _, entity := range entities {
		ok, err := mutate(entity)
		if err != nil {
			return 0, fmt.Errorf("update: %w", err)
		}
		if ok {
			querymem.GenerateIDs(entity, r.opts.ids)
			changed = append(changed, entity)
		}
	}
	if err := r.store.Save(ctx, r.table, changed); err != nil {
		return 0, err
	}

	r.metrics.updateFallback.Inc(1)
	r.opts.logger.DebugContext(ctx, "updated entities", "entity", r.opts.entity, "strategy", "fallback",
		"matched", len(entities), "changed", len(changed))
	return len(changed), nil
}

func (r *Relational) FindOneAndDelete(ctx context.Context, criteria queryir.Criteria) (ir.Document, error) {
	entities, err := r.findEntities(ctx, criteria, &queryir.SearchOptions{Limit: 1})
	if err != nil || len(entities) == 0 {
		return nil, err
	}
	if _, err := r.store.Delete(ctx, r.table, []any{entities[0][querysql.IDColumn]}); err != nil {
		return nil, err
	}
	r.metrics.delete.Inc(1)
	return r.mapper.MapEntityToAttachedObject(entities[0])
}

func (r *Relational) FindAllAndDelete(ctx context.Context, criteria queryir.Criteria) (int, error) {
	ids, err := r.findIDs(ctx, criteria, nil)
	if err != nil {
		return 0, err
	}
	n, err := r.store.Delete(ctx, r.table, ids)
	if err != nil {
		return 0, err
	}
	r.metrics.delete.Inc(int64(n))
	return n, nil
}

func (r *Relational) compileUpdate(update queryir.Update) (querymem.Mutator, error) {
	mapped, err := r.mapper.MapUpdate(update)
	if err != nil {
		return nil, fmt.Errorf("map update: %w", err)
	}
	mutate, err := querymem.CompileUpdate(mapped)
	if err != nil {
		return nil, fmt.Errorf("compile update: %w", err)
	}
	return mutate, nil
}
