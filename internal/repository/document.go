package repository

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/roach88/entitymap/internal/ir"
	"github.com/roach88/entitymap/internal/mapper"
	"github.com/roach88/entitymap/internal/mapping"
	"github.com/roach88/entitymap/internal/queryir"
	"github.com/roach88/entitymap/internal/querydoc"
)

// Collection is the subset of *mongo.Collection the document repository
// uses.
type Collection interface {
	Name() string
	FindOne(ctx context.Context, filter any, opts ...*options.FindOneOptions) *mongo.SingleResult
	Find(ctx context.Context, filter any, opts ...*options.FindOptions) (*mongo.Cursor, error)
	CountDocuments(ctx context.Context, filter any, opts ...*options.CountOptions) (int64, error)
	InsertOne(ctx context.Context, document any, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	InsertMany(ctx context.Context, documents []any, opts ...*options.InsertManyOptions) (*mongo.InsertManyResult, error)
	FindOneAndUpdate(ctx context.Context, filter any, update any, opts ...*options.FindOneAndUpdateOptions) *mongo.SingleResult
	UpdateMany(ctx context.Context, filter any, update any, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	FindOneAndDelete(ctx context.Context, filter any, opts ...*options.FindOneAndDeleteOptions) *mongo.SingleResult
	DeleteMany(ctx context.Context, filter any, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
}

var _ Collection = (*mongo.Collection)(nil)

// documentIDKey is the entity key MongoDB keeps the primary key under.
const documentIDKey = "_id"

// Document is a repository over a MongoDB collection.
type Document struct {
	coll    Collection
	mapper  *mapper.Mapper
	opts    options
	metrics *metrics
}

var _ Repository = (*Document)(nil)

// NewDocument creates a repository for coll. Map the object id to "_id"
// with querydoc.ObjectIDTransforms to use database-assigned ids.
func NewDocument(coll Collection, compiled *mapping.Compiled, opts ...RepositoryOption) *Document {
	o := newOptions(coll.Name(), opts)
	return &Document{
		coll:    coll,
		mapper:  mapper.New(compiled),
		opts:    o,
		metrics: newMetrics(o.scope, o.entity),
	}
}

func (d *Document) filter(ctx context.Context, criteria queryir.Criteria) (bson.D, error) {
	mapped, err := d.mapper.MapSearchCriteria(criteria)
	if err != nil {
		return nil, fmt.Errorf("map criteria: %w", err)
	}
	filter, err := querydoc.Filter(mapped)
	if err != nil {
		return nil, fmt.Errorf("compile criteria: %w", err)
	}
	d.opts.logger.DebugContext(ctx, "compiled filter", "entity", d.opts.entity, "filter", filter)
	return filter, nil
}

func (d *Document) update(ctx context.Context, update queryir.Update) (bson.D, error) {
	mapped, err := d.mapper.MapUpdate(update)
	if err != nil {
		return nil, fmt.Errorf("map update: %w", err)
	}
	doc, err := querydoc.Update(mapped)
	if err != nil {
		return nil, fmt.Errorf("compile update: %w", err)
	}
	d.opts.logger.DebugContext(ctx, "compiled update", "entity", d.opts.entity, "update", doc)
	return doc, nil
}

// decodeOne maps a single result to an object. A missing document gives
// nil without error.
func (d *Document) decodeOne(res *mongo.SingleResult) (ir.Document, error) {
	var raw bson.M
	if err := res.Decode(&raw); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return d.mapper.MapEntityToAttachedObject(fromBSON(raw).(map[string]any))
}

func (d *Document) FindOne(ctx context.Context, criteria queryir.Criteria) (ir.Document, error) {
	d.metrics.find.Inc(1)
	filter, err := d.filter(ctx, criteria)
	if err != nil {
		return nil, err
	}
	obj, err := d.decodeOne(d.coll.FindOne(ctx, filter))
	if err != nil {
		return nil, fmt.Errorf("find one in %s: %w", d.opts.entity, err)
	}
	return obj, nil
}

func (d *Document) FindOneOrFail(ctx context.Context, criteria queryir.Criteria) (ir.Document, error) {
	found, err := d.FindAll(ctx, criteria, nil)
	if err != nil {
		return nil, err
	}
	if len(found) != 1 {
		d.metrics.notFound.Inc(1)
		return nil, &SingleEntityNotFoundError{Entity: d.opts.entity, Count: len(found), Criteria: criteria}
	}
	return found[0], nil
}

func (d *Document) FindAll(ctx context.Context, criteria queryir.Criteria, opts *queryir.SearchOptions) ([]ir.Document, error) {
	d.metrics.find.Inc(1)
	filter, err := d.filter(ctx, criteria)
	if err != nil {
		return nil, err
	}

	findOpts := options.Find()
	if opts != nil {
		mapped := d.mapper.MapSearchOptions(*opts)
		if len(mapped.SortBy) > 0 {
			findOpts.SetSort(querydoc.Sort(mapped.SortBy))
		}
		if mapped.Skip > 0 {
			findOpts.SetSkip(int64(mapped.Skip))
		}
		if mapped.Limit > 0 {
			findOpts.SetLimit(int64(mapped.Limit))
		}
	}

	cur, err := d.coll.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("find in %s: %w", d.opts.entity, err)
	}
	var raws []bson.M
	if err := cur.All(ctx, &raws); err != nil {
		return nil, fmt.Errorf("read %s: %w", d.opts.entity, err)
	}

	out := make([]ir.Document, 0, len(raws))
	for _, raw := range raws {
		obj, err := d.mapper.MapEntityToAttachedObject(fromBSON(raw).(map[string]any))
		if err != nil {
			return nil, fmt.Errorf("map entity: %w", err)
		}
		out = append(out, obj)
	}
	return out, nil
}

func (d *Document) CountAll(ctx context.Context, criteria queryir.Criteria) (int, error) {
	d.metrics.count.Inc(1)
	filter, err := d.filter(ctx, criteria)
	if err != nil {
		return 0, err
	}
	n, err := d.coll.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", d.opts.entity, err)
	}
	return int(n), nil
}

func (d *Document) Create(ctx context.Context, object ir.Document) (ir.Document, error) {
	entity, err := d.mapper.MapDetachedObjectToEntity(object)
	if err != nil {
		return nil, fmt.Errorf("map object: %w", err)
	}
	res, err := d.coll.InsertOne(ctx, entity)
	if err != nil {
		return nil, fmt.Errorf("insert into %s: %w", d.opts.entity, err)
	}
	if _, ok := entity[documentIDKey]; !ok {
		entity[documentIDKey] = res.InsertedID
	}
	d.metrics.create.Inc(1)
	return d.mapper.MapEntityToAttachedObject(entity)
}

func (d *Document) CreateMany(ctx context.Context, objects []ir.Document) ([]ir.Document, error) {
	if len(objects) == 0 {
		return []ir.Document{}, nil
	}
	entities := make([]ir.Document, len(objects))
	docs := make([]any, len(objects))
	for i, obj := range objects {
		entity, err := d.mapper.MapDetachedObjectToEntity(obj)
		if err != nil {
			return nil, fmt.Errorf("map object: %w", err)
		}
		entities[i] = entity
		docs[i] = entity
	}

	res, err := d.coll.InsertMany(ctx, docs)
	if err != nil {
		return nil, fmt.Errorf("insert into %s: %w", d.opts.entity, err)
	}
	out := make([]ir.Document, len(entities))
	for i, entity := range entities {
		if _, ok := entity[documentIDKey]; !ok && i < len(res.InsertedIDs) {
			entity[documentIDKey] = res.InsertedIDs[i]
		}
		obj, err := d.mapper.MapEntityToAttachedObject(entity)
		if err != nil {
			return nil, fmt.Errorf("map entity: %w", err)
		}
		out[i] = obj
	}
	d.metrics.create.Inc(int64(len(out)))
	return out, nil
}

// FindOneAndUpdate returns the document as it is after the update.
func (d *Document) FindOneAndUpdate(ctx context.Context, criteria queryir.Criteria, update queryir.Update) (ir.Document, error) {
	d.metrics.update.Inc(1)
	filter, err := d.filter(ctx, criteria)
	if err != nil {
		return nil, err
	}
	doc, err := d.update(ctx, update)
	if err != nil {
		return nil, err
	}

	res := d.coll.FindOneAndUpdate(ctx, filter, doc, options.FindOneAndUpdate().SetReturnDocument(options.After))
	obj, err := d.decodeOne(res)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", d.opts.entity, err)
	}
	return obj, nil
}

// FindAllAndUpdate reports the modified count, so identical values do not
// count as changes.
func (d *Document) FindAllAndUpdate(ctx context.Context, criteria queryir.Criteria, update queryir.Update) (int, error) {
	d.metrics.update.Inc(1)
	filter, err := d.filter(ctx, criteria)
	if err != nil {
		return 0, err
	}
	doc, err := d.update(ctx, update)
	if err != nil {
		return 0, err
	}

	res, err := d.coll.UpdateMany(ctx, filter, doc)
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", d.opts.entity, err)
	}
	return int(res.ModifiedCount), nil
}

func (d *Document) FindOneAndDelete(ctx context.Context, criteria queryir.Criteria) (ir.Document, error) {
	filter, err := d.filter(ctx, criteria)
	if err != nil {
		return nil, err
	}
	obj, err := d.decodeOne(d.coll.FindOneAndDelete(ctx, filter))
	if err != nil {
		return nil, fmt.Errorf("delete from %s: %w", d.opts.entity, err)
	}
	if obj != nil {
		d.metrics.delete.Inc(1)
	}
	return obj, nil
}

func (d *Document) FindAllAndDelete(ctx context.Context, criteria queryir.Criteria) (int, error) {
	filter, err := d.filter(ctx, criteria)
	if err != nil {
		return 0, err
	}
	res, err := d.coll.DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", d.opts.entity, err)
	}
	d.metrics.delete.Inc(res.DeletedCount)
	return int(res.DeletedCount), nil
}

// fromBSON converts decoded BSON into plain documents: embedded documents
// become map[string]any, arrays []any and 32-bit integers int64.
func fromBSON(v any) any {
	switch t := v.(type) {
	case primitive.M:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = fromBSON(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = fromBSON(e)
		}
		return out
	case primitive.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = fromBSON(e.Value)
		}
		return out
	case primitive.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = fromBSON(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = fromBSON(e)
		}
		return out
	case int32:
		return int64(t)
	case primitive.DateTime:
		return t.Time().UTC()
	}
	return v
}
