package mongodb

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DatabaseInterface is the slice of *mongo.Database the source reader needs.
type DatabaseInterface interface {
	Collection(name string) CollectionInterface
	ListCollectionNames(ctx context.Context, filter interface{}) ([]string, error)
}

// CollectionInterface is the slice of *mongo.Collection the source reader needs.
type CollectionInterface interface {
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (CursorInterface, error)
	FindOne(ctx context.Context, filter interface{}) SingleResultInterface
}

type SingleResultInterface interface {
	Decode(v interface{}) error
}

type CursorInterface interface {
	Next(ctx context.Context) bool
	Decode(val interface{}) error
	Close(ctx context.Context) error
	Err() error
}

// MongoDatabaseAdapter makes *mongo.Database satisfy DatabaseInterface.
type MongoDatabaseAdapter struct {
	db *mongo.Database
}

func NewMongoDatabaseAdapter(db *mongo.Database) *MongoDatabaseAdapter {
	return &MongoDatabaseAdapter{db: db}
}

func (m *MongoDatabaseAdapter) Collection(name string) CollectionInterface {
	return &MongoCollectionAdapter{col: m.db.Collection(name)}
}

func (m *MongoDatabaseAdapter) ListCollectionNames(ctx context.Context, filter interface{}) ([]string, error) {
	return m.db.ListCollectionNames(ctx, filter)
}

type MongoCollectionAdapter struct {
	col *mongo.Collection
}

func (m *MongoCollectionAdapter) Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (CursorInterface, error) {
	cur, err := m.col.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	return &MongoCursorAdapter{cur: cur}, nil
}

func (m *MongoCollectionAdapter) FindOne(ctx context.Context, filter interface{}) SingleResultInterface {
	return m.col.FindOne(ctx, filter)
}

type MongoCursorAdapter struct {
	cur *mongo.Cursor
}

func (m *MongoCursorAdapter) Next(ctx context.Context) bool   { return m.cur.Next(ctx) }
func (m *MongoCursorAdapter) Decode(val interface{}) error    { return m.cur.Decode(val) }
func (m *MongoCursorAdapter) Close(ctx context.Context) error { return m.cur.Close(ctx) }
func (m *MongoCursorAdapter) Err() error                      { return m.cur.Err() }
