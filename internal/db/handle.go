package db

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/arwahdevops/mongosync/internal/schema"
	"github.com/arwahdevops/mongosync/internal/sync"
)

// MongoHandle is the DatabaseHandle backed by a live MongoDB database.
type MongoHandle struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ sync.DatabaseHandle = (*MongoHandle)(nil)

func NewMongoHandle(conn *Connector) *MongoHandle {
	return &MongoHandle{client: conn.Client, db: conn.DB}
}

func (h *MongoHandle) ListDatabaseNames(ctx context.Context) ([]string, error) {
	names, err := h.client.ListDatabaseNames(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("listDatabases: %w", err)
	}
	return names, nil
}

func (h *MongoHandle) ListCollectionNames(ctx context.Context) ([]string, error) {
	names, err := h.db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("listCollections: %w", err)
	}
	return names, nil
}

func (h *MongoHandle) CreateCollection(ctx context.Context, name string) error {
	if err := h.db.CreateCollection(ctx, name); err != nil {
		return fmt.Errorf("create: %w", err)
	}
	return nil
}

func (h *MongoHandle) DropCollection(ctx context.Context, name string) error {
	if err := h.db.Collection(name).Drop(ctx); err != nil {
		return fmt.Errorf("drop: %w", err)
	}
	return nil
}

// ListIndexes returns name and key of every index. The driver turns
// NamespaceNotFound into an empty cursor, so a missing collection has no indexes.
func (h *MongoHandle) ListIndexes(ctx context.Context, collection string) ([]sync.IndexInfo, error) {
	cursor, err := h.db.Collection(collection).Indexes().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listIndexes: %w", err)
	}
	defer cursor.Close(ctx)

	var indexes []sync.IndexInfo
	for cursor.Next(ctx) {
		var doc struct {
			Name string `bson:"name"`
			Key  bson.D `bson:"key"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode index spec: %w", err)
		}
		indexes = append(indexes, sync.IndexInfo{Name: doc.Name, Key: doc.Key})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("listIndexes cursor: %w", err)
	}
	return indexes, nil
}

func (h *MongoHandle) CreateIndex(ctx context.Context, collection string, key bson.D, opts schema.IndexOptions) error {
	model := mongo.IndexModel{
		Keys:    key,
		Options: IndexOptionsBuilder(opts),
	}
	if _, err := h.db.Collection(collection).Indexes().CreateOne(ctx, model); err != nil {
		return fmt.Errorf("createIndexes: %w", err)
	}
	return nil
}

func (h *MongoHandle) DropIndex(ctx context.Context, collection, indexName string) error {
	if err := h.db.Collection(collection).Indexes().DropOne(ctx, indexName); err != nil {
		return fmt.Errorf("dropIndexes: %w", err)
	}
	return nil
}

// IndexOptionsBuilder maps typed index options onto the driver's builder.
// background is accepted in schemas but ignored: servers since 4.2 always
// build indexes with an optimized process.
func IndexOptionsBuilder(opts schema.IndexOptions) *options.IndexOptionsBuilder {
	b := options.Index()
	if opts.Name != "" {
		b.SetName(opts.Name)
	}
	if opts.Unique != nil {
		b.SetUnique(*opts.Unique)
	}
	if opts.Sparse != nil {
		b.SetSparse(*opts.Sparse)
	}
	if opts.Hidden != nil {
		b.SetHidden(*opts.Hidden)
	}
	if opts.ExpireAfterSeconds != nil {
		b.SetExpireAfterSeconds(*opts.ExpireAfterSeconds)
	}
	if opts.PartialFilterExpression != nil {
		b.SetPartialFilterExpression(opts.PartialFilterExpression)
	}
	if opts.Weights != nil {
		b.SetWeights(opts.Weights)
	}
	if opts.DefaultLanguage != "" {
		b.SetDefaultLanguage(opts.DefaultLanguage)
	}
	if opts.LanguageOverride != "" {
		b.SetLanguageOverride(opts.LanguageOverride)
	}
	return b
}
