package cachedb

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexPutGetRoundTrip(t *testing.T) {
	idx, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer idx.Close()

	fetchedAt := time.Now().Truncate(time.Second).UTC()
	require.NoError(t, idx.Put(Entry{
		Reference: "acme.widget.1.0.0",
		URL:       "https://registry.example.com/acme/widget/1.0.0.tar",
		CachePath: "/cache/widget-abc123.tar",
		SHA256:    "deadbeef",
		FetchedAt: fetchedAt,
	}))

	entry, ok, err := idx.Get("acme.widget.1.0.0")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "deadbeef", entry.SHA256)
	assert.Equal(t, fetchedAt, entry.FetchedAt)
}

func TestIndexGetMissing(t *testing.T) {
	idx, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer idx.Close()

	_, ok, err := idx.Get("nothing.here.1.0.0")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIndexPutUpsert(t *testing.T) {
	idx, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer idx.Close()

	now := time.Now().Truncate(time.Second).UTC()
	require.NoError(t, idx.Put(Entry{Reference: "a.b.1.0.0", URL: "u1", CachePath: "p1", SHA256: "s1", FetchedAt: now}))
	require.NoError(t, idx.Put(Entry{Reference: "a.b.1.0.0", URL: "u2", CachePath: "p2", SHA256: "s2", FetchedAt: now}))

	entries, err := idx.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "u2", entries[0].URL)
}
