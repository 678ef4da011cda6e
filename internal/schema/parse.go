package schema

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/tailscale/hujson"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Format selects the text encoding of a schema description.
type Format string

const (
	FormatJSON Format = "json" // JSON, with // comments and trailing commas allowed
	FormatYAML Format = "yaml"
)

// FormatFromPath picks the format from a file extension. Unknown extensions are read as JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// LoadFile reads and parses the schema description at path.
func LoadFile(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Source: path, Msg: "cannot read file", Err: err}
	}
	s, err := Parse(data, FormatFromPath(path))
	if err != nil {
		if pe, ok := err.(*ParseError); ok {
			pe.Source = path
			return nil, pe
		}
		return nil, &ParseError{Source: path, Err: err}
	}
	return s, nil
}

// Parse decodes a schema description of the form
//
//	{ "<collection>": { "indexes": [ { "key": {...}, "name": "...", "options": {...} } ] } }
//
// Any shape mismatch is reported as a *ParseError.
func Parse(data []byte, format Format) (*Schema, error) {
	var (
		root bson.D
		err  error
	)
	switch format {
	case FormatYAML:
		root, err = yamlToDocument(data)
	case FormatJSON, "":
		root, err = jsonToDocument(data)
	default:
		return nil, &ParseError{Source: "<inline>", Msg: fmt.Sprintf("unsupported format %q", format)}
	}
	if err != nil {
		return nil, err
	}
	return FromDocument(root)
}

func jsonToDocument(data []byte) (bson.D, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return nil, &ParseError{Msg: "invalid JSON", Err: err}
	}
	trimmed := bytes.TrimSpace(standardized)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, errNoCollections("null")
	}
	var root bson.D
	if err := bson.UnmarshalExtJSON(standardized, false, &root); err != nil {
		return nil, &ParseError{Msg: "invalid JSON document", Err: err}
	}
	return root, nil
}

// FromDocument validates an already decoded description and builds the Schema.
func FromDocument(root bson.D) (*Schema, error) {
	s := &Schema{index: make(map[string]int, len(root))}
	for _, e := range root {
		name := strings.TrimSpace(e.Key)
		if name == "" {
			return nil, newParseError("", "collection name cannot be empty")
		}
		if _, dup := s.index[name]; dup {
			return nil, newParseError(name, "collection declared more than once")
		}
		spec, err := parseCollection(name, e.Value)
		if err != nil {
			return nil, err
		}
		s.index[name] = len(s.Collections)
		s.Collections = append(s.Collections, spec)
	}
	return s, nil
}

func parseCollection(name string, v interface{}) (CollectionSpec, error) {
	spec := CollectionSpec{Name: name}
	doc, ok := asDocument(v)
	if !ok {
		return spec, newParseError(name, "collection spec must be an object, got %s", typeName(v))
	}

	seen := make(map[string]string)
	for _, field := range doc {
		switch field.Key {
		case "indexes":
			if field.Value == nil {
				continue
			}
			spec.ManageIndexes = true
			list, ok := field.Value.(bson.A)
			if !ok {
				return spec, newParseError(name+".indexes", "must be a list, got %s", typeName(field.Value))
			}
			for i, raw := range list {
				path := fmt.Sprintf("%s.indexes[%d]", name, i)
				idx, err := parseIndex(path, raw)
				if err != nil {
					return spec, err
				}
				canonical := idx.CanonicalName()
				if canonical == PrimaryIndexName {
					return spec, newParseError(path, "index name %q is reserved", PrimaryIndexName)
				}
				if prev, dup := seen[canonical]; dup {
					return spec, newParseError(path, "index name %q already used by %s", canonical, prev)
				}
				seen[canonical] = path
				spec.Indexes = append(spec.Indexes, idx)
			}
		default:
			return spec, newParseError(name+"."+field.Key, "unknown field")
		}
	}
	return spec, nil
}

func parseIndex(path string, v interface{}) (IndexSpec, error) {
	var idx IndexSpec
	doc, ok := asDocument(v)
	if !ok {
		return idx, newParseError(path, "index spec must be an object, got %s", typeName(v))
	}

	for _, field := range doc {
		fpath := path + "." + field.Key
		switch field.Key {
		case "key":
			keys, err := parseKeyPattern(fpath, field.Value)
			if err != nil {
				return idx, err
			}
			idx.Key = keys
		case "name":
			s, ok := field.Value.(string)
			if !ok || strings.TrimSpace(s) == "" {
				return idx, newParseError(fpath, "must be a non-empty string")
			}
			idx.Name = s
		case "options":
			if field.Value == nil {
				continue
			}
			opts, err := parseOptions(fpath, field.Value)
			if err != nil {
				return idx, err
			}
			idx.Options = opts
		default:
			return idx, newParseError(fpath, "unknown field")
		}
	}

	if len(idx.Key) == 0 {
		return idx, newParseError(path+".key", "index key pattern is required")
	}
	if idx.Name != "" && idx.Options.Name != "" && idx.Name != idx.Options.Name {
		return idx, newParseError(path, "name %q conflicts with options.name %q", idx.Name, idx.Options.Name)
	}
	return idx, nil
}

var indexTypes = map[string]bool{
	"text":     true,
	"2d":       true,
	"2dsphere": true,
	"hashed":   true,
}

func parseKeyPattern(path string, v interface{}) (bson.D, error) {
	doc, ok := asDocument(v)
	if !ok {
		return nil, newParseError(path, "key pattern must be an object, got %s", typeName(v))
	}
	if len(doc) == 0 {
		return nil, newParseError(path, "key pattern cannot be empty")
	}
	keys := make(bson.D, 0, len(doc))
	for _, e := range doc {
		if strings.TrimSpace(e.Key) == "" {
			return nil, newParseError(path, "key pattern field name cannot be empty")
		}
		switch d := e.Value.(type) {
		case string:
			if !indexTypes[d] {
				return nil, newParseError(path+"."+e.Key, "unsupported index type %q", d)
			}
			keys = append(keys, bson.E{Key: e.Key, Value: d})
		default:
			n, ok := asFloat(d)
			if !ok || n == 0 || math.IsNaN(n) {
				return nil, newParseError(path+"."+e.Key, "direction must be a non-zero number or an index type, got %v", e.Value)
			}
			if n == math.Trunc(n) && math.Abs(n) <= math.MaxInt32 {
				keys = append(keys, bson.E{Key: e.Key, Value: int32(n)})
			} else {
				keys = append(keys, bson.E{Key: e.Key, Value: n})
			}
		}
	}
	return keys, nil
}

func parseOptions(path string, v interface{}) (IndexOptions, error) {
	var opts IndexOptions
	doc, ok := asDocument(v)
	if !ok {
		return opts, newParseError(path, "options must be an object, got %s", typeName(v))
	}

	for _, e := range doc {
		fpath := path + "." + e.Key
		var err error
		switch e.Key {
		case "name":
			opts.Name, err = asString(fpath, e.Value)
		case "unique":
			opts.Unique, err = asBool(fpath, e.Value)
		case "sparse":
			opts.Sparse, err = asBool(fpath, e.Value)
		case "hidden":
			opts.Hidden, err = asBool(fpath, e.Value)
		case "background":
			opts.Background, err = asBool(fpath, e.Value)
		case "expireAfterSeconds":
			n, ok := asFloat(e.Value)
			if !ok || n < 0 || n != math.Trunc(n) || n > math.MaxInt32 {
				return opts, newParseError(fpath, "must be a non-negative integer")
			}
			secs := int32(n)
			opts.ExpireAfterSeconds = &secs
		case "partialFilterExpression":
			d, ok := asDocument(e.Value)
			if !ok {
				return opts, newParseError(fpath, "must be an object")
			}
			opts.PartialFilterExpression = d
		case "weights":
			d, ok := asDocument(e.Value)
			if !ok {
				return opts, newParseError(fpath, "must be an object")
			}
			opts.Weights = d
		case "default_language":
			opts.DefaultLanguage, err = asString(fpath, e.Value)
		case "language_override":
			opts.LanguageOverride, err = asString(fpath, e.Value)
		default:
			return opts, newParseError(fpath, "unsupported index option")
		}
		if err != nil {
			return opts, err
		}
	}
	return opts, nil
}

func asDocument(v interface{}) (bson.D, bool) {
	switch d := v.(type) {
	case bson.D:
		return d, true
	case bson.M:
		// unordered; only reachable when callers hand-build documents
		out := make(bson.D, 0, len(d))
		for k, val := range d {
			out = append(out, bson.E{Key: k, Value: val})
		}
		return out, true
	default:
		return nil, false
	}
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func asBool(path string, v interface{}) (*bool, error) {
	b, ok := v.(bool)
	if !ok {
		return nil, newParseError(path, "must be a boolean, got %s", typeName(v))
	}
	return &b, nil
}

func asString(path string, v interface{}) (string, error) {
	s, ok := v.(string)
	if !ok || s == "" {
		return "", newParseError(path, "must be a non-empty string")
	}
	return s, nil
}

func typeName(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case bson.A:
		return "list"
	case bson.D, bson.M:
		return "object"
	default:
		if _, ok := asFloat(v); ok {
			return "number"
		}
		return fmt.Sprintf("%T", v)
	}
}
