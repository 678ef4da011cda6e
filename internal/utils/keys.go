package utils

import (
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// JoinKeyFields joins the field names of an index key pattern with "_",
// keeping the order in which the fields were declared.
// {a:1, b:-1} -> "a_b".
func JoinKeyFields(keys bson.D) string {
	fields := make([]string, 0, len(keys))
	for _, e := range keys {
		fields = append(fields, e.Key)
	}
	return strings.Join(fields, "_")
}

// FormatKeyPattern renders a key pattern the way the mongo shell prints it,
// e.g. "{ cloudCustomerId: 1, createdAt: -1 }". Only used for log output.
func FormatKeyPattern(keys bson.D) string {
	if len(keys) == 0 {
		return "{}"
	}
	parts := make([]string, 0, len(keys))
	for _, e := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", e.Key, formatDirection(e.Value)))
	}
	return "{ " + strings.Join(parts, ", ") + " }"
}

func formatDirection(v interface{}) string {
	switch d := v.(type) {
	case string:
		return fmt.Sprintf("%q", d)
	case float64:
		// JSON numbers sometimes arrive as doubles (1.0)
		if d == float64(int64(d)) {
			return fmt.Sprintf("%d", int64(d))
		}
		return fmt.Sprintf("%g", d)
	default:
		return fmt.Sprintf("%v", d)
	}
}

// SameKeyPattern reports whether two key patterns have the same fields in the
// same order with equivalent directions. Numeric directions compare by value,
// so int32(1), int64(1) and 1.0 are equal.
func SameKeyPattern(a, b bson.D) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Key != b[i].Key {
			return false
		}
		if formatDirection(normalizeNumber(a[i].Value)) != formatDirection(normalizeNumber(b[i].Value)) {
			return false
		}
	}
	return true
}

// StoredKeyPattern returns keys the way the server reports them back. Text
// fields are stored as the single pair {_fts: "text", _ftsx: 1} at the
// position of the first text field; other fields are unchanged.
func StoredKeyPattern(keys bson.D) bson.D {
	out := make(bson.D, 0, len(keys)+1)
	textSeen := false
	for _, e := range keys {
		if dir, ok := e.Value.(string); ok && dir == "text" {
			if !textSeen {
				out = append(out, bson.E{Key: "_fts", Value: "text"}, bson.E{Key: "_ftsx", Value: int32(1)})
				textSeen = true
			}
			continue
		}
		out = append(out, e)
	}
	return out
}

func normalizeNumber(v interface{}) interface{} {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	default:
		return v
	}
}
