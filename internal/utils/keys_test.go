package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestJoinKeyFields(t *testing.T) {
	testCases := []struct {
		name     string
		keys     bson.D
		expected string
	}{
		{"Single Field", bson.D{{Key: "cloudCustomerId", Value: 1}}, "cloudCustomerId"},
		{"Two Fields", bson.D{{Key: "a", Value: 1}, {Key: "b", Value: 1}}, "a_b"},
		{"Declaration Order Kept", bson.D{{Key: "b", Value: 1}, {Key: "a", Value: -1}}, "b_a"},
		{"Text Index Field", bson.D{{Key: "_ftsx", Value: 1}}, "_ftsx"},
		{"Empty", bson.D{}, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, JoinKeyFields(tc.keys))
		})
	}
}

func TestFormatKeyPattern(t *testing.T) {
	testCases := []struct {
		name     string
		keys     bson.D
		expected string
	}{
		{"Empty", nil, "{}"},
		{"Ascending", bson.D{{Key: "executionId", Value: int32(1)}}, "{ executionId: 1 }"},
		{"Compound", bson.D{{Key: "a", Value: int32(1)}, {Key: "b", Value: int32(-1)}}, "{ a: 1, b: -1 }"},
		{"Double Direction", bson.D{{Key: "a", Value: 1.0}}, "{ a: 1 }"},
		{"Text", bson.D{{Key: "body", Value: "text"}}, `{ body: "text" }`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, FormatKeyPattern(tc.keys))
		})
	}
}

func TestSameKeyPattern(t *testing.T) {
	a := bson.D{{Key: "a", Value: int32(1)}, {Key: "b", Value: int32(-1)}}

	assert.True(t, SameKeyPattern(a, bson.D{{Key: "a", Value: int64(1)}, {Key: "b", Value: -1.0}}))
	assert.False(t, SameKeyPattern(a, bson.D{{Key: "b", Value: int32(-1)}, {Key: "a", Value: int32(1)}}), "field order matters")
	assert.False(t, SameKeyPattern(a, bson.D{{Key: "a", Value: int32(1)}}))
	assert.False(t, SameKeyPattern(a, bson.D{{Key: "a", Value: int32(1)}, {Key: "b", Value: int32(1)}}))
	assert.True(t, SameKeyPattern(bson.D{{Key: "t", Value: "text"}}, bson.D{{Key: "t", Value: "text"}}))
}

func TestStoredKeyPattern(t *testing.T) {
	testCases := []struct {
		name     string
		keys     bson.D
		expected bson.D
	}{
		{"Plain Unchanged", bson.D{{Key: "a", Value: int32(1)}}, bson.D{{Key: "a", Value: int32(1)}}},
		{"Single Text", bson.D{{Key: "body", Value: "text"}}, bson.D{{Key: "_fts", Value: "text"}, {Key: "_ftsx", Value: int32(1)}}},
		{"Multiple Text Collapsed", bson.D{{Key: "title", Value: "text"}, {Key: "body", Value: "text"}}, bson.D{{Key: "_fts", Value: "text"}, {Key: "_ftsx", Value: int32(1)}}},
		{
			"Compound With Prefix",
			bson.D{{Key: "tenant", Value: int32(1)}, {Key: "body", Value: "text"}, {Key: "ts", Value: int32(-1)}},
			bson.D{{Key: "tenant", Value: int32(1)}, {Key: "_fts", Value: "text"}, {Key: "_ftsx", Value: int32(1)}, {Key: "ts", Value: int32(-1)}},
		},
		{"Hashed Unchanged", bson.D{{Key: "h", Value: "hashed"}}, bson.D{{Key: "h", Value: "hashed"}}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, StoredKeyPattern(tc.keys))
		})
	}
}
