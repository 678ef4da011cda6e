package sync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/arwahdevops/mongosync/internal/schema"
)

// fakeHandle is an in-memory DatabaseHandle. It records every call in order
// and fails any call whose "method:target" key is present in failures.
type fakeHandle struct {
	databases   []string
	collections map[string][]IndexInfo
	calls       []string
	failures    map[string]error
	created     map[string]schema.IndexOptions
}

var _ DatabaseHandle = (*fakeHandle)(nil)

func newFakeHandle(databases ...string) *fakeHandle {
	return &fakeHandle{
		databases:   databases,
		collections: make(map[string][]IndexInfo),
		failures:    make(map[string]error),
		created:     make(map[string]schema.IndexOptions),
	}
}

// withCollection seeds a live collection that has _id_ plus the given indexes.
func (f *fakeHandle) withCollection(name string, indexes ...IndexInfo) *fakeHandle {
	f.collections[name] = append([]IndexInfo{{Name: schema.PrimaryIndexName, Key: bson.D{{Key: "_id", Value: int32(1)}}}}, indexes...)
	return f
}

func (f *fakeHandle) failOn(key string) *fakeHandle {
	f.failures[key] = errors.New("simulated failure on " + key)
	return f
}

func (f *fakeHandle) record(key string) error {
	f.calls = append(f.calls, key)
	return f.failures[key]
}

// mutations returns the recorded calls that change state.
func (f *fakeHandle) mutations() []string {
	var out []string
	for _, c := range f.calls {
		switch {
		case strings.HasPrefix(c, "CreateCollection:"), strings.HasPrefix(c, "DropCollection:"),
			strings.HasPrefix(c, "CreateIndex:"), strings.HasPrefix(c, "DropIndex:"):
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeHandle) resetCalls() {
	f.calls = nil
}

func (f *fakeHandle) indexNames(collection string) []string {
	var names []string
	for _, idx := range f.collections[collection] {
		names = append(names, idx.Name)
	}
	sort.Strings(names)
	return names
}

func (f *fakeHandle) collectionNames() []string {
	names := make([]string, 0, len(f.collections))
	for n := range f.collections {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (f *fakeHandle) ListDatabaseNames(ctx context.Context) ([]string, error) {
	if err := f.record("ListDatabaseNames:"); err != nil {
		return nil, err
	}
	return append([]string(nil), f.databases...), nil
}

func (f *fakeHandle) ListCollectionNames(ctx context.Context) ([]string, error) {
	if err := f.record("ListCollectionNames:"); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(f.collections))
	for n := range f.collections {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (f *fakeHandle) CreateCollection(ctx context.Context, name string) error {
	if err := f.record("CreateCollection:" + name); err != nil {
		return err
	}
	if _, ok := f.collections[name]; ok {
		return fmt.Errorf("collection %s already exists", name)
	}
	f.collections[name] = []IndexInfo{{Name: schema.PrimaryIndexName, Key: bson.D{{Key: "_id", Value: int32(1)}}}}
	return nil
}

func (f *fakeHandle) DropCollection(ctx context.Context, name string) error {
	if err := f.record("DropCollection:" + name); err != nil {
		return err
	}
	delete(f.collections, name)
	return nil
}

func (f *fakeHandle) ListIndexes(ctx context.Context, collection string) ([]IndexInfo, error) {
	if err := f.record("ListIndexes:" + collection); err != nil {
		return nil, err
	}
	// A missing namespace lists as empty, like MongoHandle.ListIndexes.
	return append([]IndexInfo(nil), f.collections[collection]...), nil
}

func (f *fakeHandle) CreateIndex(ctx context.Context, collection string, key bson.D, opts schema.IndexOptions) error {
	if err := f.record("CreateIndex:" + collection + "." + opts.Name); err != nil {
		return err
	}
	// createIndexes creates the collection implicitly.
	if _, ok := f.collections[collection]; !ok {
		f.collections[collection] = []IndexInfo{{Name: schema.PrimaryIndexName, Key: bson.D{{Key: "_id", Value: int32(1)}}}}
	}
	f.collections[collection] = append(f.collections[collection], IndexInfo{Name: opts.Name, Key: key})
	f.created[collection+"."+opts.Name] = opts
	return nil
}

func (f *fakeHandle) DropIndex(ctx context.Context, collection, indexName string) error {
	if err := f.record("DropIndex:" + collection + "." + indexName); err != nil {
		return err
	}
	if indexName == schema.PrimaryIndexName {
		return errors.New("cannot drop _id index")
	}
	kept := f.collections[collection][:0]
	for _, idx := range f.collections[collection] {
		if idx.Name != indexName {
			kept = append(kept, idx)
		}
	}
	f.collections[collection] = kept
	return nil
}
