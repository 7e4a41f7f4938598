// Package cache implements the Component Cache: a map keyed by
// SlipwayReference holding each component's parsed definition
// and backing files, primed by a breadth-first closure over every
// reference reachable from a rig's rigging and callouts.
package cache

import (
	"context"
	"fmt"

	"github.com/slipwayhq/slipway/internal/loader"
	"github.com/slipwayhq/slipway/internal/primitives"
	"github.com/slipwayhq/slipway/internal/rigging"
	"github.com/slipwayhq/slipway/internal/schema"
)

// CompiledComponent is one cache entry: the parsed manifest, its
// compiled input/output schemas, and the files backing it.
type CompiledComponent struct {
	Component *rigging.Component
	Input     *schema.Schema
	Output    *schema.Schema
	Files     *loader.ComponentFiles
}

// ComponentCache looks up a previously-primed component by reference.
type ComponentCache interface {
	Get(ref primitives.SlipwayReference) (*CompiledComponent, bool)
}

// BasicComponentCache is the cache produced by Primed: one loader's
// worth of components, keyed by reference equality.
type BasicComponentCache struct {
	entries map[string]*CompiledComponent
}

func (c *BasicComponentCache) Get(ref primitives.SlipwayReference) (*CompiledComponent, bool) {
	entry, ok := c.entries[ref.String()]
	return entry, ok
}

// fileResolverAdapter adapts loader.ComponentFiles to schema.FileResolver,
// so external $ref JSON Schema resolution can lazily read a component's
// own auxiliary files.
type fileResolverAdapter struct {
	files *loader.ComponentFiles
}

func (a fileResolverAdapter) TryGetJSON(path string) (any, error) {
	var v any
	ok, err := a.files.TryGetJSON(path, &v)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("file %q not found", path)
	}
	return v, nil
}

// referencesIn collects every component reference directly named by a
// rig: one per rigging entry's component, plus one per callout's
// component.
func referencesIn(rig *rigging.Rig) []primitives.SlipwayReference {
	var refs []primitives.SlipwayReference
	for _, entry := range rig.Rigging {
		refs = append(refs, entry.Component)
		for _, callout := range entry.Callouts {
			refs = append(refs, callout.Component)
		}
	}
	return refs
}

// Primed builds a BasicComponentCache by breadth-first closure over
// rig: seed with rig's own references, load+compile them, collect
// further references from any fragment's own rigging and callouts,
// and repeat until no new references appear.
func Primed(ctx context.Context, rig *rigging.Rig, ld loader.Loader) (*BasicComponentCache, error) {
	cache := &BasicComponentCache{entries: make(map[string]*CompiledComponent)}

	pending := referencesIn(rig)
	seen := make(map[string]bool)

	for len(pending) > 0 {
		var toLoad []primitives.SlipwayReference
		for _, ref := range pending {
			key := ref.String()
			if seen[key] {
				continue
			}
			seen[key] = true
			toLoad = append(toLoad, ref)
		}
		pending = nil
		if len(toLoad) == 0 {
			break
		}

		results := ld.LoadAll(ctx, toLoad)
		var next []primitives.SlipwayReference
		for i, result := range results {
			if result.Err != nil {
				return nil, fmt.Errorf("loading component %s: %w", toLoad[i].String(), result.Err)
			}

			compiled, err := compile(result.Component)
			if err != nil {
				return nil, fmt.Errorf("compiling component %s: %w", toLoad[i].String(), err)
			}
			cache.entries[toLoad[i].String()] = compiled

			if compiled.Component.IsFragment() {
				next = append(next, referencesIn(compiled.Component.Rigging)...)
			}
			for _, calloutRef := range compiled.Component.Callouts {
				next = append(next, calloutRef)
			}
		}
		pending = next
	}

	return cache, nil
}

func compile(loaded *loader.LoadedComponent) (*CompiledComponent, error) {
	component, err := rigging.ParseComponent([]byte(loaded.DefinitionText))
	if err != nil {
		return nil, err
	}

	resolver := fileResolverAdapter{files: loaded.Files}
	inputSchema, err := schema.Parse(component.Name.String()+".input", component.Input, resolver)
	if err != nil {
		return nil, err
	}
	outputSchema, err := schema.Parse(component.Name.String()+".output", component.Output, resolver)
	if err != nil {
		return nil, err
	}

	return &CompiledComponent{
		Component: component,
		Input:     inputSchema,
		Output:    outputSchema,
		Files:     loaded.Files,
	}, nil
}

// MultiComponentCache composes several caches as one, read-only: the
// first cache to hold a reference wins. Add/Clear are not provided —
// composition is fixed at construction time.
type MultiComponentCache struct {
	caches []ComponentCache
}

// NewMultiComponentCache composes caches in priority order.
func NewMultiComponentCache(caches ...ComponentCache) *MultiComponentCache {
	return &MultiComponentCache{caches: caches}
}

func (m *MultiComponentCache) Get(ref primitives.SlipwayReference) (*CompiledComponent, bool) {
	for _, c := range m.caches {
		if entry, ok := c.Get(ref); ok {
			return entry, true
		}
	}
	return nil, false
}
