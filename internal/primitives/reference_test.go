package primitives

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRegistryReference(t *testing.T) {
	result, err := Parse("acme.renderer.1.2.3")
	require.NoError(t, err)
	assert.Equal(t, ReferenceRegistry, result.Reference.Kind)
	assert.Equal(t, "acme", result.Reference.Publisher.String())
	assert.Equal(t, "renderer", result.Reference.Name.String())
	assert.Equal(t, "1.2.3", result.Reference.Version.String())
}

func TestParseLocalReference(t *testing.T) {
	result, err := Parse("file:components/clock")
	require.NoError(t, err)
	assert.Equal(t, ReferenceLocal, result.Reference.Kind)
	assert.Equal(t, "components/clock", result.Reference.Path)
	assert.Empty(t, result.Warnings)

	result, err = Parse("file:/abs/components/clock")
	require.NoError(t, err)
	assert.Equal(t, "/abs/components/clock", result.Reference.Path)
}

func TestParseLocalReferenceNormalizesAuthority(t *testing.T) {
	result, err := Parse("file://host/abs/path")
	require.NoError(t, err)
	assert.Equal(t, ReferenceLocal, result.Reference.Kind)
	assert.Equal(t, "/host/abs/path", result.Reference.Path)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0].Message, "normalizing")
}

func TestParseURLReference(t *testing.T) {
	result, err := Parse("https://example.com/component.tar")
	require.NoError(t, err)
	assert.Equal(t, ReferenceURL, result.Reference.Kind)
	assert.Equal(t, "https://example.com/component.tar", result.Reference.URL)
}

func TestParseSpecialReferences(t *testing.T) {
	result, err := Parse("pass")
	require.NoError(t, err)
	assert.Equal(t, ReferenceSpecial, result.Reference.Kind)
	assert.Equal(t, SpecialPass, result.Reference.Special)

	result, err = Parse("sink")
	require.NoError(t, err)
	assert.Equal(t, SpecialSink, result.Reference.Special)
}

func TestParseRejectsUnknownShape(t *testing.T) {
	_, err := Parse("not a reference at all")
	require.Error(t, err)
}

func TestReferenceRoundTrip(t *testing.T) {
	cases := []string{
		"acme.renderer.1.2.3",
		"file:components/clock",
		"file:/abs/components/clock",
		"https://example.com/component.tar",
		"pass",
		"sink",
	}
	for _, s := range cases {
		result, err := Parse(s)
		require.NoError(t, err, s)
		assert.Equal(t, s, result.Reference.String(), "round trip for %q", s)
	}
}
