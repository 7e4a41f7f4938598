package hostapi

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slipwayhq/slipway/internal/cache"
	"github.com/slipwayhq/slipway/internal/loader"
	"github.com/slipwayhq/slipway/internal/primitives"
	"github.com/slipwayhq/slipway/internal/rigging"
)

type stubCache struct {
	entries map[string]*cache.CompiledComponent
}

func (c stubCache) Get(ref primitives.SlipwayReference) (*cache.CompiledComponent, bool) {
	entry, ok := c.entries[ref.String()]
	return entry, ok
}

func TestCacheCalloutFilesReadsThroughCallout(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "slipway_component.json"), []byte(`{"publisher":"acme","name":"widget","version":"1.0.0","input":{},"output":{}}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "extra.txt"), []byte("extra data"), 0o644))

	ld := loader.New(loader.Config{BaseDir: dir})
	ref := primitives.SlipwayReference{Kind: primitives.ReferenceLocal, Path: "."}
	loaded, err := ld.Load(context.Background(), ref)
	require.NoError(t, err)

	files := CacheCalloutFiles{
		Cache: stubCache{entries: map[string]*cache.CompiledComponent{
			ref.String(): {Files: loaded.Files},
		}},
		Callouts: map[string]rigging.Callout{
			"b": {Component: ref},
		},
	}

	text, ok, err := files.TryGetText("b", "extra.txt")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "extra data", text)
}

func TestCacheCalloutFilesUndeclaredHandle(t *testing.T) {
	files := CacheCalloutFiles{Cache: stubCache{}, Callouts: map[string]rigging.Callout{}}

	_, _, err := files.TryGetText("missing", "a.txt")
	require.Error(t, err)
}

func TestCacheCalloutFilesUnprimedReference(t *testing.T) {
	ref := primitives.SlipwayReference{Kind: primitives.ReferenceLocal, Path: "somewhere"}
	files := CacheCalloutFiles{
		Cache:    stubCache{entries: map[string]*cache.CompiledComponent{}},
		Callouts: map[string]rigging.Callout{"b": {Component: ref}},
	}

	_, _, err := files.TryGetBin("b", "a.bin")
	require.Error(t, err)
}
