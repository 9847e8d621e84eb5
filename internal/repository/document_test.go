package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/roach88/entitymap/internal/ir"
	"github.com/roach88/entitymap/internal/mapping"
	"github.com/roach88/entitymap/internal/queryir"
	"github.com/roach88/entitymap/internal/querydoc"
	"github.com/roach88/entitymap/internal/testutil"
)

type mockCollection struct {
	mock.Mock
}

func (m *mockCollection) Name() string { return "animals" }

func (m *mockCollection) FindOne(ctx context.Context, filter any, opts ...*options.FindOneOptions) *mongo.SingleResult {
	args := m.Called(ctx, filter)
	return args.Get(0).(*mongo.SingleResult)
}

func (m *mockCollection) Find(ctx context.Context, filter any, opts ...*options.FindOptions) (*mongo.Cursor, error) {
	args := m.Called(ctx, filter, opts)
	return args.Get(0).(*mongo.Cursor), args.Error(1)
}

func (m *mockCollection) CountDocuments(ctx context.Context, filter any, opts ...*options.CountOptions) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockCollection) InsertOne(ctx context.Context, document any, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error) {
	args := m.Called(ctx, document)
	return args.Get(0).(*mongo.InsertOneResult), args.Error(1)
}

func (m *mockCollection) InsertMany(ctx context.Context, documents []any, opts ...*options.InsertManyOptions) (*mongo.InsertManyResult, error) {
	args := m.Called(ctx, documents)
	return args.Get(0).(*mongo.InsertManyResult), args.Error(1)
}

func (m *mockCollection) FindOneAndUpdate(ctx context.Context, filter any, update any, opts ...*options.FindOneAndUpdateOptions) *mongo.SingleResult {
	args := m.Called(ctx, filter, update)
	return args.Get(0).(*mongo.SingleResult)
}

func (m *mockCollection) UpdateMany(ctx context.Context, filter any, update any, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	args := m.Called(ctx, filter, update)
	return args.Get(0).(*mongo.UpdateResult), args.Error(1)
}

func (m *mockCollection) FindOneAndDelete(ctx context.Context, filter any, opts ...*options.FindOneAndDeleteOptions) *mongo.SingleResult {
	args := m.Called(ctx, filter)
	return args.Get(0).(*mongo.SingleResult)
}

func (m *mockCollection) DeleteMany(ctx context.Context, filter any, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(*mongo.DeleteResult), args.Error(1)
}

var rexID = primitive.NewObjectID()

// documentMapping is the animal mapping with ids stored as ObjectIDs in "_id".
func documentMapping(t *testing.T) *mapping.Compiled {
	t.Helper()
	spec := testutil.AnimalSpec()
	pair := querydoc.ObjectIDTransforms()
	spec["id"] = mapping.Property("_id", pair.Forward, pair.Reverse)
	compiled, err := mapping.Compile(spec)
	require.NoError(t, err)
	return compiled
}

func newDocument(t *testing.T) (*Document, *mockCollection) {
	t.Helper()
	coll := &mockCollection{}
	t.Cleanup(func() { coll.AssertExpectations(t) })
	return NewDocument(coll, documentMapping(t), WithLogger(quiet)), coll
}

func filterOf(t *testing.T, criteria queryir.Criteria) bson.D {
	t.Helper()
	filter, err := querydoc.Filter(criteria)
	require.NoError(t, err)
	return filter
}

// rexEntity is Rex as stored: int32 numbers, ObjectID key, entity keys.
func rexEntity() bson.M {
	return bson.M{
		"_id":         rexID,
		"animal_name": "Rex",
		"age":         int32(3),
		"tags":        bson.A{"good", "loud"},
		"owner":       bson.M{"id": "o-1", "owner_name": "Jo"},
		"toys":        bson.A{bson.M{"id": "t-1", "label": "ball", "price": int32(5)}},
	}
}

func rexObject() ir.Document {
	return ir.Document{
		"id":    rexID.Hex(),
		"name":  "Rex",
		"age":   int64(3),
		"tags":  []any{"good", "loud"},
		"owner": map[string]any{"id": "o-1", "name": "Jo"},
		"toys":  []any{map[string]any{"id": "t-1", "label": "ball", "price": int64(5)}},
	}
}

func TestDocument_FindOne(t *testing.T) {
	repo, coll := newDocument(t)
	coll.On("FindOne", mock.Anything, filterOf(t, queryir.Criteria{"animal_name": queryir.StartsWith("R")})).
		Return(mongo.NewSingleResultFromDocument(rexEntity(), nil, bson.DefaultRegistry))

	found, err := repo.FindOne(context.Background(), queryir.Criteria{"name": queryir.StartsWith("R")})
	require.NoError(t, err)
	assert.Equal(t, rexObject(), found)
}

func TestDocument_FindAllPassesMappedOptions(t *testing.T) {
	repo, coll := newDocument(t)
	cur, err := mongo.NewCursorFromDocuments([]any{rexEntity()}, nil, bson.DefaultRegistry)
	require.NoError(t, err)
	coll.On("Find", mock.Anything, filterOf(t, queryir.Criteria{"_id": rexID}), mock.Anything).Return(cur, nil)

	found, err := repo.FindAll(context.Background(), queryir.Criteria{"id": rexID.Hex()}, &queryir.SearchOptions{
		Skip: 1, Limit: 2,
		SortBy: []queryir.SortField{{Key: "name", Direction: queryir.Desc}, {Key: "unknown", Direction: queryir.Asc}},
	})
	require.NoError(t, err)
	assert.Equal(t, []ir.Document{rexObject()}, found)

	opts := coll.Calls[0].Arguments.Get(2).([]*options.FindOptions)
	require.Len(t, opts, 1)
	assert.Equal(t, bson.D{{Key: "animal_name", Value: -1}}, opts[0].Sort)
	assert.Equal(t, int64(1), *opts[0].Skip)
	assert.Equal(t, int64(2), *opts[0].Limit)
}

func TestDocument_FindOneOrFail(t *testing.T) {
	repo, coll := newDocument(t)
	empty, err := mongo.NewCursorFromDocuments(nil, nil, bson.DefaultRegistry)
	require.NoError(t, err)
	coll.On("Find", mock.Anything, filterOf(t, queryir.Criteria{"animal_name": "Nobody"}), mock.Anything).Return(empty, nil)

	_, err = repo.FindOneOrFail(context.Background(), queryir.Criteria{"name": "Nobody"})
	require.Error(t, err)
	assert.True(t, IsSingleEntityNotFound(err))
	assert.Contains(t, err.Error(), `found 0 entities of type animals by the following criteria: {"name":"Nobody"}`)
}

func TestDocument_CountAll(t *testing.T) {
	repo, coll := newDocument(t)
	coll.On("CountDocuments", mock.Anything, filterOf(t, queryir.Criteria{"tags": queryir.ArrayExists()})).Return(int64(2), nil)

	n, err := repo.CountAll(context.Background(), queryir.Criteria{"tags": queryir.ArrayExists()})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestDocument_CreateUsesInsertedID(t *testing.T) {
	repo, coll := newDocument(t)
	coll.On("InsertOne", mock.Anything, ir.Document{"animal_name": "Kit"}).
		Return(&mongo.InsertOneResult{InsertedID: rexID}, nil)

	created, err := repo.Create(context.Background(), ir.Document{"name": "Kit"})
	require.NoError(t, err)
	assert.Equal(t, ir.Document{"id": rexID.Hex(), "name": "Kit"}, created)
}

func TestDocument_CreateMany(t *testing.T) {
	repo, coll := newDocument(t)
	other := primitive.NewObjectID()
	coll.On("InsertMany", mock.Anything, []any{ir.Document{"animal_name": "Kit"}, ir.Document{"_id": other, "animal_name": "Tom"}}).
		Return(&mongo.InsertManyResult{InsertedIDs: []any{rexID, other}}, nil)

	created, err := repo.CreateMany(context.Background(), []ir.Document{{"name": "Kit"}, {"id": other.Hex(), "name": "Tom"}})
	require.NoError(t, err)
	assert.Equal(t, []any{rexID.Hex(), other.Hex()}, ids(created))
}

func TestDocument_FindOneAndUpdate(t *testing.T) {
	repo, coll := newDocument(t)
	update, err := querydoc.Update(queryir.Update{"age": queryir.Increment(1), "owner": queryir.NestedUpdate(queryir.Update{"owner_name": "Pat"})})
	require.NoError(t, err)

	after := rexEntity()
	after["age"] = int32(4)
	coll.On("FindOneAndUpdate", mock.Anything, filterOf(t, queryir.Criteria{"_id": rexID}), update).
		Return(mongo.NewSingleResultFromDocument(after, nil, bson.DefaultRegistry))

	updated, err := repo.FindOneAndUpdate(context.Background(), queryir.Criteria{"id": rexID.Hex()}, queryir.Update{
		"age":   queryir.Increment(1),
		"owner": queryir.NestedUpdate(queryir.Update{"name": "Pat"}),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4), updated["age"])
}

func TestDocument_FindAllAndUpdate(t *testing.T) {
	repo, coll := newDocument(t)
	update, err := querydoc.Update(queryir.Update{"tags": queryir.Pull("loud")})
	require.NoError(t, err)
	coll.On("UpdateMany", mock.Anything, bson.D{}, update).Return(&mongo.UpdateResult{MatchedCount: 3, ModifiedCount: 1}, nil)

	n, err := repo.FindAllAndUpdate(context.Background(), queryir.Criteria{}, queryir.Update{"tags": queryir.Pull("loud")})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDocument_Delete(t *testing.T) {
	repo, coll := newDocument(t)
	coll.On("FindOneAndDelete", mock.Anything, filterOf(t, queryir.Criteria{"animal_name": "Rex"})).
		Return(mongo.NewSingleResultFromDocument(rexEntity(), nil, bson.DefaultRegistry))
	coll.On("DeleteMany", mock.Anything, filterOf(t, queryir.Criteria{"age": queryir.IsGreaterThan(2)})).
		Return(&mongo.DeleteResult{DeletedCount: 2}, nil)

	deleted, err := repo.FindOneAndDelete(context.Background(), queryir.Criteria{"name": "Rex"})
	require.NoError(t, err)
	assert.Equal(t, rexObject(), deleted)

	n, err := repo.FindAllAndDelete(context.Background(), queryir.Criteria{"age": queryir.IsGreaterThan(2)})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestDocument_InvalidCriteriaNeverReachesCollection(t *testing.T) {
	repo, _ := newDocument(t)

	_, err := repo.FindOne(context.Background(), queryir.Criteria{"id": "not-hex"})
	require.Error(t, err)
	var te *mapping.TransformError
	assert.ErrorAs(t, err, &te)
}

func TestFromBSON(t *testing.T) {
	in := bson.M{
		"n":   int32(1),
		"doc": bson.D{{Key: "a", Value: bson.A{int32(2), bson.M{"b": "c"}}}},
	}
	assert.Equal(t, map[string]any{
		"n":   int64(1),
		"doc": map[string]any{"a": []any{int64(2), map[string]any{"b": "c"}}},
	}, fromBSON(in))
}
