package repository

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/entitymap/internal/ir"
	"github.com/roach88/entitymap/internal/queryir"
	"github.com/roach88/entitymap/internal/querymem"
)

// Memory is an in-process repository over a slice of objects.
//
// Thread-safety: every compound find, mutate and write-back sequence runs
// under one lock. Stored objects are deep copies, so callers never alias
// them.
type Memory struct {
	mu      sync.RWMutex
	objects []ir.Document
	opts    options
	metrics *metrics
}

var _ Repository = (*Memory)(nil)

// NewMemory creates a repository holding copies of the initial objects.
func NewMemory(initial []ir.Document, opts ...RepositoryOption) *Memory {
	o := newOptions("memory", opts)
	return &Memory{
		objects: cloneAll(initial),
		opts:    o,
		metrics: newMetrics(o.scope, o.entity),
	}
}

func (m *Memory) FindOne(ctx context.Context, criteria queryir.Criteria) (ir.Document, error) {
	m.metrics.find.Inc(1)
	p, err := querymem.Compile(criteria)
	if err != nil {
		return nil, fmt.Errorf("compile criteria: %w", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, obj := range m.objects {
		if p(obj) {
			return ir.CloneDocument(obj), nil
		}
	}
	return nil, nil
}

func (m *Memory) FindOneOrFail(ctx context.Context, criteria queryir.Criteria) (ir.Document, error) {
	found, err := m.FindAll(ctx, criteria, nil)
	if err != nil {
		return nil, err
	}
	if len(found) != 1 {
		m.metrics.notFound.Inc(1)
		return nil, &SingleEntityNotFoundError{Entity: m.opts.entity, Count: len(found), Criteria: criteria}
	}
	return found[0], nil
}

// FindAll returns matches in insertion order unless opts sorts them.
func (m *Memory) FindAll(ctx context.Context, criteria queryir.Criteria, opts *queryir.SearchOptions) ([]ir.Document, error) {
	m.metrics.find.Inc(1)
	p, err := querymem.Compile(criteria)
	if err != nil {
		return nil, fmt.Errorf("compile criteria: %w", err)
	}

	m.mu.RLock()
	found := cloneAll(querymem.Filter(m.objects, p))
	m.mu.RUnlock()

	if opts != nil {
		querymem.Sort(found, opts.SortBy)
		found = querymem.Page(found, opts.Skip, opts.Limit)
	}
	return found, nil
}

func (m *Memory) CountAll(ctx context.Context, criteria queryir.Criteria) (int, error) {
	m.metrics.count.Inc(1)
	p, err := querymem.Compile(criteria)
	if err != nil {
		return 0, fmt.Errorf("compile criteria: %w", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(querymem.Filter(m.objects, p)), nil
}

func (m *Memory) Create(ctx context.Context, object ir.Document) (ir.Document, error) {
	created, err := m.CreateMany(ctx, []ir.Document{object})
	if err != nil {
		return nil, err
	}
	return created[0], nil
}

// CreateMany assigns ids to every object and nested object that lacks one.
func (m *Memory) CreateMany(ctx context.Context, objects []ir.Document) ([]ir.Document, error) {
	attached := make([]ir.Document, len(objects))
	for i, obj := range objects {
		if obj == nil {
			return nil, fmt.Errorf("create: object %d is nil", i)
		}
		attached[i] = ir.CloneDocument(obj)
		querymem.GenerateIDs(attached[i], m.opts.ids)
	}

	m.mu.Lock()
	m.objects = append(m.objects, cloneAll(attached)...)
	m.mu.Unlock()

	m.metrics.create.Inc(int64(len(attached)))
	m.opts.logger.DebugContext(ctx, "created objects", "entity", m.opts.entity, "count", len(attached))
	return attached, nil
}

func (m *Memory) FindOneAndUpdate(ctx context.Context, criteria queryir.Criteria, update queryir.Update) (ir.Document, error) {
	m.metrics.update.Inc(1)
	p, mutate, err := compileMemoryUpdate(criteria, update)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i, obj := range m.objects {
		if !p(obj) {
			continue
		}
		updated := ir.CloneDocument(obj)
		if _, err := mutate(updated); err != nil {
			return nil, fmt.Errorf("update: %w", err)
		}
		querymem.GenerateIDs(updated, m.opts.ids)
		m.objects[i] = updated
		return ir.CloneDocument(updated), nil
	}
	return nil, nil
}

// FindAllAndUpdate applies the update to copies of every match and writes
// them back only if all succeed.
func (m *Memory) FindAllAndUpdate(ctx context.Context, criteria queryir.Criteria, update queryir.Update) (int, error) {
	m.metrics.update.Inc(1)
	p, mutate, err := compileMemoryUpdate(criteria, update)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var indexes []int
	var copies []ir.Document
	changed := 0
	for i, obj := range m.objects {
		if !p(obj) {
			continue
		}
		updated := ir.CloneDocument(obj)
		ok, err := mutate(updated)
		if err != nil {
			return 0, fmt.Errorf("update: %w", err)
		}
		if ok {
			changed++
		}
		querymem.GenerateIDs(updated, m.opts.ids)
		indexes = append(indexes, i)
		copies = append(copies, updated)
	}
	for j, i := range indexes {
		m.objects[i] = copies[j]
	}

	m.opts.logger.DebugContext(ctx, "updated objects", "entity", m.opts.entity, "matched", len(indexes), "changed", changed)
	return changed, nil
}

func (m *Memory) FindOneAndDelete(ctx context.Context, criteria queryir.Criteria) (ir.Document, error) {
	p, err := querymem.Compile(criteria)
	if err != nil {
		return nil, fmt.Errorf("compile criteria: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i, obj := range m.objects {
		if p(obj) {
			m.objects = slices.Delete(m.objects, i, i+1)
			m.metrics.delete.Inc(1)
			return obj, nil
		}
	}
	return nil, nil
}

func (m *Memory) FindAllAndDelete(ctx context.Context, criteria queryir.Criteria) (int, error) {
	p, err := querymem.Compile(criteria)
	if err != nil {
		return 0, fmt.Errorf("compile criteria: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.objects[:0]
	deleted := 0
	for _, obj := range m.objects {
		if p(obj) {
			deleted++
			continue
		}
		kept = append(kept, obj)
	}
	clear(m.objects[len(kept):])
	m.objects = kept

	m.metrics.delete.Inc(int64(deleted))
	return deleted, nil
}

func compileMemoryUpdate(criteria queryir.Criteria, update queryir.Update) (querymem.Predicate, querymem.Mutator, error) {
	p, err := querymem.Compile(criteria)
	if err != nil {
		return nil, nil, fmt.Errorf("compile criteria: %w", err)
	}
	mutate, err := querymem.CompileUpdate(update)
	if err != nil {
		return nil, nil, fmt.Errorf("compile update: %w", err)
	}
	return p, mutate, nil
}
