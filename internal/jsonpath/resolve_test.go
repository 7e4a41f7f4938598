package jsonpath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindReferencesRewritesDoubleDollarShorthand(t *testing.T) {
	doc := map[string]any{"x": "$$fetcher.body.url"}
	refs := FindReferences(doc)
	require.Len(t, refs, 1)
	assert.Equal(t, "$.rigging.fetcher.output.body.url", refs[0].Path)
	assert.Equal(t, PathTypeValue, refs[0].Type)
}

func TestFindReferencesLeavesSingleDollarStringsAlone(t *testing.T) {
	doc := map[string]any{"x": "$5 off", "y": "$notashorthand"}
	refs := FindReferences(doc)
	assert.Empty(t, refs)
}

func TestFindReferencesKeepsLiteralDotPathsAsIs(t *testing.T) {
	doc := map[string]any{"x": "$.rigging.fetcher.output.url"}
	refs := FindReferences(doc)
	require.Len(t, refs, 1)
	assert.Equal(t, "$.rigging.fetcher.output.url", refs[0].Path)
}

func TestFindReferencesTypesBareArrayElementsAsArray(t *testing.T) {
	doc := map[string]any{"items": []any{"$$fetcher.value"}}
	refs := FindReferences(doc)
	require.Len(t, refs, 1)
	assert.Equal(t, PathTypeArray, refs[0].Type)
	assert.Equal(t, "$.items[0]", refs[0].PathTo)
}

func TestFindReferencesTypesObjectFieldsAsValueEvenInsideArray(t *testing.T) {
	doc := map[string]any{"items": []any{map[string]any{"url": "$$fetcher.value"}}}
	refs := FindReferences(doc)
	require.Len(t, refs, 1)
	assert.Equal(t, PathTypeValue, refs[0].Type)
	assert.Equal(t, "$.items[0].url", refs[0].PathTo)
}

func TestEvaluateArrayTypeReturnsEveryMatchWhileValueTypeTakesFirst(t *testing.T) {
	working := map[string]any{
		"rigging": map[string]any{
			"a": map[string]any{"output": map[string]any{"items": []any{1, 2, 3}}},
		},
	}
	arr, err := Evaluate("$.rigging.a.output.items[*]", working, PathTypeArray)
	require.NoError(t, err)
	assert.Equal(t, []any{1, 2, 3}, arr)

	first, err := Evaluate("$.rigging.a.output.items[*]", working, PathTypeValue)
	require.NoError(t, err)
	assert.Equal(t, 1, first)
}
