// Package loader resolves a SlipwayReference to its on-disk component
// files: registry lookups go through a configured registry URL
// template and the download cache; url references download and
// cache directly; local references read a directory (or extract a
// .tar archive) in place; special references synthesize an empty-schema
// manifest with no backing files.
package loader

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/slipwayhq/slipway/internal/cachedb"
	"github.com/slipwayhq/slipway/internal/primitives"
)

// manifestFilename is the file a local/registry/url component
// directory is expected to carry at its root.
const manifestFilename = "slipway_component.json"

// ErrNotFound is returned (wrapped) when a url/registry reference
// resolves to an HTTP 404.
var ErrNotFound = errors.New("component not found")

// FileLoadError wraps any other non-200 HTTP response or filesystem
// failure encountered while loading a reference.
type FileLoadError struct {
	Reference string
	Reason    string
}

func (e *FileLoadError) Error() string {
	return fmt.Sprintf("failed to load component %q: %s", e.Reference, e.Reason)
}

// ComponentFiles exposes read access to one component's artifact
// directory, with every access checked for path escape (rejecting any
// "../" that would leave the directory) before touching the
// filesystem.
type ComponentFiles struct {
	root string
	noop bool
}

func newComponentFiles(root string) *ComponentFiles { return &ComponentFiles{root: root} }

// newNoopFiles builds the "no-op file handle" a Special reference
// gets: every lookup reports not-found without touching disk.
func newNoopFiles() *ComponentFiles { return &ComponentFiles{noop: true} }

func (f *ComponentFiles) resolve(relPath string) (string, error) {
	if filepath.IsAbs(relPath) {
		return "", fmt.Errorf("path %q must be relative", relPath)
	}
	full := filepath.Join(f.root, relPath)
	if !strings.HasPrefix(full, filepath.Clean(f.root)+string(os.PathSeparator)) && full != filepath.Clean(f.root) {
		return "", fmt.Errorf("path %q escapes the component's files", relPath)
	}
	return full, nil
}

// TryGetBin reads relPath as raw bytes, returning ok=false (not an
// error) if the file does not exist.
func (f *ComponentFiles) TryGetBin(relPath string) (data []byte, ok bool, err error) {
	if f.noop {
		return nil, false, nil
	}
	full, err := f.resolve(relPath)
	if err != nil {
		return nil, false, err
	}
	data, err = os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

// TryGetText reads relPath as a UTF-8 string.
func (f *ComponentFiles) TryGetText(relPath string) (text string, ok bool, err error) {
	data, ok, err := f.TryGetBin(relPath)
	if err != nil || !ok {
		return "", ok, err
	}
	return string(data), true, nil
}

// TryGetJSON reads relPath and unmarshals it into v.
func (f *ComponentFiles) TryGetJSON(relPath string, v any) (ok bool, err error) {
	data, ok, err := f.TryGetBin(relPath)
	if err != nil || !ok {
		return ok, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return true, &FileLoadError{Reference: relPath, Reason: err.Error()}
	}
	return true, nil
}

// Root returns the absolute directory backing this set of component
// files, used by the WASM/JS runners to mount or read module bytes
// directly.
func (f *ComponentFiles) Root() string { return f.root }

// LoadedComponent is what a successful Load produces: the reference
// that was resolved, the raw manifest text (for the rigging package to
// parse), and the files backing it.
type LoadedComponent struct {
	Reference      primitives.SlipwayReference
	DefinitionText string
	Files          *ComponentFiles
}

// Loader resolves references to their backing files and manifest text.
type Loader interface {
	Load(ctx context.Context, ref primitives.SlipwayReference) (*LoadedComponent, error)
	// LoadAll resolves every reference, preserving input order. Each
	// slot holds either a LoadedComponent or the error encountered
	// loading that one reference — one bad reference never aborts the
	// rest of the batch.
	LoadAll(ctx context.Context, refs []primitives.SlipwayReference) []LoadResult
}

// LoadResult is one slot of a LoadAll batch.
type LoadResult struct {
	Component *LoadedComponent
	Err       error
}

// Config configures how references resolve to files.
type Config struct {
	// RegistryURLTemplates are formatted with publisher/name/version to
	// produce candidate download URLs for a registry reference, tried
	// in order until one resolves, e.g.
	// "https://registry.example.com/{publisher}/{name}/{version}.tar".
	// A template may itself be a "file:" path.
	RegistryURLTemplates []string
	// CacheDir holds downloaded and extracted component tarballs.
	CacheDir string
	// BaseDir anchors relative "file:" references.
	BaseDir string
	// HTTPClient is used for registry and url downloads; defaults to a
	// client with a 30s timeout if nil.
	HTTPClient *http.Client
	// CacheIndex records successful downloads so repeated loads of the
	// same reference can be verified against a known sha256 without a
	// network round trip. Optional: nil disables indexing.
	CacheIndex *cachedb.Index
}

type multiLoader struct {
	cfg      Config
	inFlight singleflight.Group
}

// New constructs the composite Loader used by the engine, dispatching
// by reference kind.
func New(cfg Config) Loader {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &multiLoader{cfg: cfg}
}

// LoadAll loads every reference concurrently, one goroutine per slot;
// each slot is written only by its own goroutine, so no locking is
// needed. A slow or failing download never blocks the rest of the
// batch. Every goroutine returns nil, so the errgroup's own error is
// always nil: per-reference failures go in their own LoadResult.Err,
// not into a batch-wide abort.
func (l *multiLoader) LoadAll(ctx context.Context, refs []primitives.SlipwayReference) []LoadResult {
	results := make([]LoadResult, len(refs))
	var g errgroup.Group
	for i, ref := range refs {
		i, ref := i, ref
		g.Go(func() error {
			component, err := l.Load(ctx, ref)
			results[i] = LoadResult{Component: component, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (l *multiLoader) Load(ctx context.Context, ref primitives.SlipwayReference) (*LoadedComponent, error) {
	var files *ComponentFiles
	var err error

	switch ref.Kind {
	case primitives.ReferenceRegistry:
		files, err = l.loadRegistry(ctx, ref)
	case primitives.ReferenceURL:
		files, err = l.loadURL(ctx, ref.URL)
	case primitives.ReferenceLocal:
		files, err = l.loadLocal(ref)
	case primitives.ReferenceSpecial:
		return &LoadedComponent{
			Reference:      ref,
			DefinitionText: synthesizedSpecialManifest(ref),
			Files:          newNoopFiles(),
		}, nil
	default:
		return nil, fmt.Errorf("unrecognized reference kind %d", ref.Kind)
	}
	if err != nil {
		return nil, err
	}

	text, ok, err := files.TryGetText(manifestFilename)
	if err != nil {
		return nil, &FileLoadError{Reference: ref.String(), Reason: err.Error()}
	}
	if !ok {
		return nil, &FileLoadError{Reference: ref.String(), Reason: fmt.Sprintf("missing %s", manifestFilename)}
	}

	return &LoadedComponent{Reference: ref, DefinitionText: text, Files: files}, nil
}

// synthesizedSpecialManifest builds the empty-schema manifest for a
// Pass/Sink special reference: synthesized with an empty-schema
// manifest and a no-op file handle rather than resolved from disk.
func synthesizedSpecialManifest(ref primitives.SlipwayReference) string {
	return fmt.Sprintf(
		`{"publisher":"slipway","name":%q,"version":"0.0.0","input":{},"output":{}}`,
		ref.Special.String(),
	)
}

func (l *multiLoader) loadRegistry(ctx context.Context, ref primitives.SlipwayReference) (*ComponentFiles, error) {
	if len(l.cfg.RegistryURLTemplates) == 0 {
		return nil, &FileLoadError{Reference: ref.String(), Reason: "no registry URL templates configured"}
	}

	replacer := strings.NewReplacer(
		"{publisher}", ref.Publisher.String(),
		"{name}", ref.Name.String(),
		"{version}", ref.Version.String(),
	)

	var lastErr error
	for _, tmpl := range l.cfg.RegistryURLTemplates {
		url := replacer.Replace(tmpl)
		if strings.HasPrefix(url, "file:") {
			parsed, err := primitives.Parse(url)
			if err != nil {
				lastErr = err
				continue
			}
			files, err := l.loadLocal(parsed.Reference)
			if err != nil {
				lastErr = err
				continue
			}
			return files, nil
		}
		files, err := l.loadURL(ctx, url)
		if err != nil {
			lastErr = err
			continue
		}
		return files, nil
	}
	return nil, &FileLoadError{Reference: ref.String(), Reason: fmt.Sprintf("no registry template resolved: %v", lastErr)}
}

// loadURL downloads and extracts rawURL, or serves an already-cached
// extraction. Two distinct SlipwayReferences (a registry reference and
// a url reference, say) can resolve to the same concrete rawURL; the
// whole body runs inside inFlight.Do keyed by rawURL so concurrent
// LoadAll goroutines that land on the same download target serialize
// instead of racing on the same archivePath/extractDir.
func (l *multiLoader) loadURL(ctx context.Context, rawURL string) (*ComponentFiles, error) {
	v, err, _ := l.inFlight.Do(rawURL, func() (any, error) {
		return l.loadURLOnce(ctx, rawURL)
	})
	if err != nil {
		return nil, err
	}
	return v.(*ComponentFiles), nil
}

func (l *multiLoader) loadURLOnce(ctx context.Context, rawURL string) (*ComponentFiles, error) {
	filename, err := filenameFromURL(rawURL)
	if err != nil {
		return nil, err
	}
	archivePath := filepath.Join(l.cfg.CacheDir, filename)
	extractDir := filepath.Join(l.cfg.CacheDir, strings.TrimSuffix(filename, componentFileExtension))

	if _, err := os.Stat(extractDir); err == nil {
		if l.cacheEntryIsValid(rawURL, archivePath) {
			return newComponentFiles(extractDir), nil
		}
		// The index has no record of this reference, or the archive's
		// sha256 no longer matches what was recorded at download time
		// (truncated disk, tampered cache directory): don't trust the
		// extracted directory, re-download and re-extract instead of
		// silently serving stale or corrupted files.
		if err := os.RemoveAll(extractDir); err != nil {
			return nil, &FileLoadError{Reference: rawURL, Reason: err.Error()}
		}
	}

	if err := os.MkdirAll(l.cfg.CacheDir, 0o755); err != nil {
		return nil, &FileLoadError{Reference: rawURL, Reason: err.Error()}
	}
	sum, err := l.download(ctx, rawURL, archivePath)
	if err != nil {
		return nil, err
	}
	if err := extractTar(archivePath, extractDir); err != nil {
		return nil, &FileLoadError{Reference: rawURL, Reason: fmt.Sprintf("extracting: %s", err)}
	}
	if l.cfg.CacheIndex != nil {
		if err := l.cfg.CacheIndex.Put(cachedb.Entry{
			Reference: rawURL,
			URL:       rawURL,
			CachePath: archivePath,
			SHA256:    sum,
			FetchedAt: time.Now(),
		}); err != nil {
			return nil, &FileLoadError{Reference: rawURL, Reason: err.Error()}
		}
	}
	return newComponentFiles(extractDir), nil
}

// cacheEntryIsValid reports whether the already-extracted archive at
// archivePath still matches what cachedb recorded for rawURL at
// download time, re-hashing the local archive rather than the network
// so a hit costs no round trip. With no CacheIndex configured, an
// extracted directory's mere presence is trusted, matching the
// previous Stat-only behavior.
func (l *multiLoader) cacheEntryIsValid(rawURL, archivePath string) bool {
	if l.cfg.CacheIndex == nil {
		return true
	}
	entry, ok, err := l.cfg.CacheIndex.Get(rawURL)
	if err != nil || !ok {
		return false
	}
	f, err := os.Open(archivePath)
	if err != nil {
		return false
	}
	defer f.Close()
	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return false
	}
	return hex.EncodeToString(hasher.Sum(nil)) == entry.SHA256
}

func (l *multiLoader) download(ctx context.Context, rawURL, destPath string) (sha256Hex string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", &FileLoadError{Reference: rawURL, Reason: err.Error()}
	}
	resp, err := l.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", &FileLoadError{Reference: rawURL, Reason: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", fmt.Errorf("%w: %s", ErrNotFound, rawURL)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &FileLoadError{Reference: rawURL, Reason: fmt.Sprintf("unexpected status %s", resp.Status)}
	}

	out, err := os.Create(destPath)
	if err != nil {
		return "", &FileLoadError{Reference: rawURL, Reason: err.Error()}
	}
	defer out.Close()

	hasher := sha256.New()
	if _, err := io.Copy(io.MultiWriter(out, hasher), resp.Body); err != nil {
		return "", &FileLoadError{Reference: rawURL, Reason: err.Error()}
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

func (l *multiLoader) loadLocal(ref primitives.SlipwayReference) (*ComponentFiles, error) {
	path := ref.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(l.cfg.BaseDir, path)
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, ref.String())
		}
		return nil, &FileLoadError{Reference: ref.String(), Reason: err.Error()}
	}

	if info.IsDir() {
		return newComponentFiles(path), nil
	}

	// A single file is assumed to be a .tar archive, extracted once
	// into a sibling directory keyed by its own path so re-runs reuse
	// the extraction.
	extractDir := path + ".extracted"
	if _, err := os.Stat(extractDir); err == nil {
		return newComponentFiles(extractDir), nil
	}
	if err := extractTar(path, extractDir); err != nil {
		return nil, &FileLoadError{Reference: ref.String(), Reason: fmt.Sprintf("extracting: %s", err)}
	}
	return newComponentFiles(extractDir), nil
}

// extractTar extracts archivePath into a temporary sibling of destDir
// and renames it into place only once every entry has been written, so
// a crash or I/O error partway through extraction never leaves destDir
// populated: the next Load sees no directory at all and retries from
// the archive, instead of mistaking a half-written extraction for a
// complete, cached one. If destDir already exists by the time the
// rename would happen (a concurrent LoadAll extracting the same
// reference finished first), the fresh extraction is simply discarded.
func extractTar(archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	var reader io.Reader = f
	if strings.HasSuffix(archivePath, ".gz") || strings.HasSuffix(archivePath, ".tgz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("opening gzip stream: %w", err)
		}
		defer gz.Close()
		reader = gz
	}

	if err := os.MkdirAll(filepath.Dir(destDir), 0o755); err != nil {
		return err
	}
	tmpDir, err := os.MkdirTemp(filepath.Dir(destDir), filepath.Base(destDir)+".extracting-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmpDir)

	if err := extractTarEntries(reader, tmpDir); err != nil {
		return err
	}

	if err := os.Rename(tmpDir, destDir); err != nil {
		if _, statErr := os.Stat(destDir); statErr == nil {
			return nil
		}
		return fmt.Errorf("finalizing extraction: %w", err)
	}
	return nil
}

func extractTarEntries(reader io.Reader, destDir string) error {
	tr := tar.NewReader(reader)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		target, err := safeJoin(destDir, header.Name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(header.Mode))
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			out.Close()
		}
	}
	return nil
}

// safeJoin rejects tar entries that would extract outside destDir via
// ".." path segments (a tar-slip guard).
func safeJoin(destDir, name string) (string, error) {
	target := filepath.Join(destDir, name)
	if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", fmt.Errorf("tar entry %q escapes the extraction directory", name)
	}
	return target, nil
}
