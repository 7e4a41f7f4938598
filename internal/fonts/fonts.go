// Package fonts implements the process-wide font registry: a single
// lazily-initialized registry, guarded by a mutex, that
// internal/hostapi.Host.ResolveFont consults for every resolve_font
// call. No font-shaping or font-discovery library was available to
// build this against, so it is a small stdlib directory scan: see
// DESIGN.md for the justification.
package fonts

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/slipwayhq/slipway/internal/hostapi"
)

// Registry resolves a font family name to embedded font data, scanning
// a directory of font files once and caching the result.
type Registry struct {
	mu       sync.Mutex
	fontDir  string
	loaded   bool
	byFamily map[string][]byte
}

var (
	process     *Registry
	processOnce sync.Once
)

// Process returns the single process-wide registry, initialized lazily
// and guarded by a mutex. fontDir is only honored on the first call;
// later calls reuse whatever directory the first call supplied.
func Process(fontDir string) *Registry {
	processOnce.Do(func() {
		process = New(fontDir)
	})
	return process
}

// New constructs a standalone registry rooted at fontDir. Most callers
// should use Process instead; New exists for tests that need an
// isolated instance.
func New(fontDir string) *Registry {
	return &Registry{fontDir: fontDir}
}

// Resolve implements hostapi.FontResolver: case-insensitive exact
// match against the file's base name (without extension), e.g.
// "Roboto.ttf" resolves family "roboto" and "Roboto".
func (r *Registry) Resolve(family string) (hostapi.FontMatch, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.loaded {
		if err := r.load(); err != nil {
			return hostapi.FontMatch{}, false, err
		}
		r.loaded = true
	}

	data, ok := r.byFamily[strings.ToLower(family)]
	if !ok {
		return hostapi.FontMatch{}, false, nil
	}
	return hostapi.FontMatch{Family: family, Data: data}, true, nil
}

func (r *Registry) load() error {
	r.byFamily = map[string][]byte{}
	if r.fontDir == "" {
		return nil
	}

	info, err := os.Stat(r.fontDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("statting font directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("font path %q is not a directory", r.fontDir)
	}

	entries, err := os.ReadDir(r.fontDir)
	if err != nil {
		return fmt.Errorf("reading font directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".ttf" && ext != ".otf" {
			continue
		}
		path := filepath.Join(r.fontDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading font file %q: %w", path, err)
		}
		family := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		r.byFamily[strings.ToLower(family)] = data
	}
	return nil
}
