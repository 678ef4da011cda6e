package schema

import (
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/arwahdevops/mongosync/internal/utils"
)

// PrimaryIndexName is the name MongoDB gives the default _id index.
// It is never created, dropped or compared by the reconciler.
const PrimaryIndexName = "_id_"

// Schema is the desired state of one database: collection name -> CollectionSpec.
// Collections keep the order in which they were declared.
type Schema struct {
	Collections []CollectionSpec
	index       map[string]int
}

// CollectionSpec describes one desired collection.
type CollectionSpec struct {
	Name    string
	Indexes []IndexSpec
	// ManageIndexes is false when the description has no "indexes" entry at all (or it is null).
	// In that case existing indexes are left alone; an explicit empty list
	// means "no secondary indexes" and drops everything except _id_.
	ManageIndexes bool
}

// IndexSpec is one desired index.
type IndexSpec struct {
	Key     bson.D
	Name    string
	Options IndexOptions
}

// IndexOptions is the typed options bag accepted for createIndex.
type IndexOptions struct {
	Name                    string
	Unique                  *bool
	Sparse                  *bool
	Hidden                  *bool
	Background              *bool
	ExpireAfterSeconds      *int32
	PartialFilterExpression bson.D
	Weights                 bson.D
	DefaultLanguage         string
	LanguageOverride        string
}

// CanonicalName is the name used to compare a desired index against live ones:
// the explicit name, then options.name, then the key fields joined with "_".
func (i IndexSpec) CanonicalName() string {
	if i.Name != "" {
		return i.Name
	}
	if i.Options.Name != "" {
		return i.Options.Name
	}
	return utils.JoinKeyFields(i.Key)
}

// Has reports whether the collection is part of the desired schema.
func (s *Schema) Has(name string) bool {
	if s == nil {
		return false
	}
	_, ok := s.index[name]
	return ok
}

// Collection returns the spec for name.
func (s *Schema) Collection(name string) (CollectionSpec, bool) {
	if s == nil {
		return CollectionSpec{}, false
	}
	i, ok := s.index[name]
	if !ok {
		return CollectionSpec{}, false
	}
	return s.Collections[i], true
}

// Names returns collection names in declaration order.
func (s *Schema) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.Collections))
	for _, c := range s.Collections {
		names = append(names, c.Name)
	}
	return names
}

// New builds a Schema from already validated collection specs.
// Later duplicates replace earlier ones.
func New(collections ...CollectionSpec) *Schema {
	s := &Schema{index: make(map[string]int, len(collections))}
	for _, c := range collections {
		if i, ok := s.index[c.Name]; ok {
			s.Collections[i] = c
			continue
		}
		s.index[c.Name] = len(s.Collections)
		s.Collections = append(s.Collections, c)
	}
	return s
}

// IndexNames returns the canonical names of all desired indexes.
func (c CollectionSpec) IndexNames() []string {
	names := make([]string, 0, len(c.Indexes))
	for _, idx := range c.Indexes {
		names = append(names, idx.CanonicalName())
	}
	return names
}
