package sync

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/arwahdevops/mongosync/internal/schema"
)

// IndexInfo is one live index as reported by the database.
type IndexInfo struct {
	Name string
	Key  bson.D
}

// DatabaseHandle is the set of database operations the reconciler needs.
// Every call reports failure through its error value; the reconciler decides
// whether a failure is fatal.
type DatabaseHandle interface {
	ListDatabaseNames(ctx context.Context) ([]string, error)
	ListCollectionNames(ctx context.Context) ([]string, error)
	CreateCollection(ctx context.Context, name string) error
	DropCollection(ctx context.Context, name string) error
	ListIndexes(ctx context.Context, collection string) ([]IndexInfo, error)
	// CreateIndex creates one index. opts.Name is always set to the canonical name.
	CreateIndex(ctx context.Context, collection string, key bson.D, opts schema.IndexOptions) error
	DropIndex(ctx context.Context, collection, indexName string) error
}

// ReconcilerInterface defines the main reconciliation runner.
type ReconcilerInterface interface {
	Reconcile(ctx context.Context, desired *schema.Schema) *Result
}
