// Package cachedb is the Loader's on-disk download cache index: a
// small sqlite table recording (reference, url, cache_path, sha256,
// fetched_at) so repeated loads of the same Url/registry-over-HTTPS
// reference can skip the network round trip. This is bookkeeping for
// the Loader only — not execution-state persistence, which remains
// explicitly out of scope.
package cachedb

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is one recorded download.
type Entry struct {
	Reference string
	URL       string
	CachePath string
	SHA256    string
	FetchedAt time.Time
}

// Index is the download cache index. A single *sql.DB connection is
// kept: SQLite serializes writers regardless, so more than one open
// connection just adds contention.
type Index struct {
	db *sql.DB
}

// Open opens (creating if necessary) the cache index database at
// dbPath and ensures its schema exists.
func Open(dbPath string) (*Index, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening cache index: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging cache index: %w", err)
	}

	idx := &Index{db: db}
	if err := idx.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

func (idx *Index) migrate() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS download_cache (
		reference  TEXT NOT NULL,
		url        TEXT NOT NULL,
		cache_path TEXT NOT NULL,
		sha256     TEXT NOT NULL,
		fetched_at INTEGER NOT NULL,
		PRIMARY KEY (reference)
	)`
	_, err := idx.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("creating download_cache table: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (idx *Index) Close() error { return idx.db.Close() }

// Put records (or replaces) the cache entry for reference.
func (idx *Index) Put(e Entry) error {
	_, err := idx.db.Exec(
		`INSERT INTO download_cache (reference, url, cache_path, sha256, fetched_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(reference) DO UPDATE SET
		   url = excluded.url,
		   cache_path = excluded.cache_path,
		   sha256 = excluded.sha256,
		   fetched_at = excluded.fetched_at`,
		e.Reference, e.URL, e.CachePath, e.SHA256, e.FetchedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("recording cache entry for %q: %w", e.Reference, err)
	}
	return nil
}

// Get looks up the cache entry for reference, returning ok=false if
// none has been recorded.
func (idx *Index) Get(reference string) (entry Entry, ok bool, err error) {
	row := idx.db.QueryRow(
		`SELECT reference, url, cache_path, sha256, fetched_at FROM download_cache WHERE reference = ?`,
		reference,
	)
	var fetchedAtUnix int64
	err = row.Scan(&entry.Reference, &entry.URL, &entry.CachePath, &entry.SHA256, &fetchedAtUnix)
	if err == sql.ErrNoRows {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("looking up cache entry for %q: %w", reference, err)
	}
	entry.FetchedAt = time.Unix(fetchedAtUnix, 0).UTC()
	return entry, true, nil
}

// List returns every recorded cache entry, for cache-introspection
// tooling.
func (idx *Index) List() ([]Entry, error) {
	rows, err := idx.db.Query(`SELECT reference, url, cache_path, sha256, fetched_at FROM download_cache ORDER BY fetched_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing cache entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var fetchedAtUnix int64
		if err := rows.Scan(&e.Reference, &e.URL, &e.CachePath, &e.SHA256, &fetchedAtUnix); err != nil {
			return nil, fmt.Errorf("scanning cache entry: %w", err)
		}
		e.FetchedAt = time.Unix(fetchedAtUnix, 0).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
