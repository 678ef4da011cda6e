package schema

import (
	"fmt"
	"math"

	"go.mongodb.org/mongo-driver/v2/bson"
	"gopkg.in/yaml.v3"
)

// yamlToDocument converts a YAML description into an ordered BSON document so
// that YAML and JSON inputs go through the same validation.
func yamlToDocument(data []byte) (bson.D, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, &ParseError{Msg: "invalid YAML", Err: err}
	}
	root := &node
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	if root.Kind == 0 || root.Kind == yaml.DocumentNode {
		// empty or comment-only input
		return nil, errNoCollections("an empty document")
	}
	v, err := yamlValue(root)
	if err != nil {
		return nil, err
	}
	doc, ok := v.(bson.D)
	if !ok {
		return nil, errNoCollections(typeName(v))
	}
	return doc, nil
}

func yamlValue(n *yaml.Node) (interface{}, error) {
	switch n.Kind {
	case yaml.AliasNode:
		return yamlValue(n.Alias)
	case yaml.MappingNode:
		doc := make(bson.D, 0, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			k, v := n.Content[i], n.Content[i+1]
			if k.Kind != yaml.ScalarNode {
				return nil, newParseError(fmt.Sprintf("line %d", k.Line), "mapping keys must be scalars")
			}
			val, err := yamlValue(v)
			if err != nil {
				return nil, err
			}
			doc = append(doc, bson.E{Key: k.Value, Value: val})
		}
		return doc, nil
	case yaml.SequenceNode:
		arr := make(bson.A, 0, len(n.Content))
		for _, c := range n.Content {
			val, err := yamlValue(c)
			if err != nil {
				return nil, err
			}
			arr = append(arr, val)
		}
		return arr, nil
	case yaml.ScalarNode:
		return yamlScalar(n)
	default:
		return nil, newParseError(fmt.Sprintf("line %d", n.Line), "unsupported YAML node")
	}
}

func yamlScalar(n *yaml.Node) (interface{}, error) {
	switch n.ShortTag() {
	case "!!null":
		return nil, nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return nil, &ParseError{Path: fmt.Sprintf("line %d", n.Line), Err: err}
		}
		return b, nil
	case "!!int":
		var i int64
		if err := n.Decode(&i); err != nil {
			return nil, &ParseError{Path: fmt.Sprintf("line %d", n.Line), Err: err}
		}
		if i >= math.MinInt32 && i <= math.MaxInt32 {
			return int32(i), nil
		}
		return i, nil
	case "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return nil, &ParseError{Path: fmt.Sprintf("line %d", n.Line), Err: err}
		}
		return f, nil
	default:
		return n.Value, nil
	}
}
