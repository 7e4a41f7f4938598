package fonts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveFindsRegisteredFont(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Roboto.ttf"), []byte("fake-ttf-data"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignore.txt"), []byte("not a font"), 0o644))

	reg := New(dir)

	match, ok, err := reg.Resolve("roboto")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("fake-ttf-data"), match.Data)
}

func TestResolveIsCaseInsensitive(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "RobotoMono.otf"), []byte("mono-data"), 0o644))

	reg := New(dir)

	_, ok, err := reg.Resolve("ROBOTOMONO")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestResolveMissingFamilyReturnsFalse(t *testing.T) {
	reg := New(t.TempDir())

	_, ok, err := reg.Resolve("nonexistent")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolveEmptyDirIsNotAnError(t *testing.T) {
	reg := New("")

	_, ok, err := reg.Resolve("anything")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProcessReturnsSharedInstance(t *testing.T) {
	a := Process("")
	b := Process("")
	assert.Same(t, a, b)
}
