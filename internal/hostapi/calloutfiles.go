package hostapi

import (
	"fmt"

	"github.com/slipwayhq/slipway/internal/cache"
	"github.com/slipwayhq/slipway/internal/rigging"
)

// CacheCalloutFiles implements CalloutFiles by resolving a callout
// handle through the component's own callout map, then reading from
// that reference's primed cache entry — the same files a run_component
// call to that handle would execute against.
type CacheCalloutFiles struct {
	Cache    cache.ComponentCache
	Callouts map[string]rigging.Callout
}

func (f CacheCalloutFiles) lookup(handle string) (*cache.CompiledComponent, error) {
	callout, ok := f.Callouts[handle]
	if !ok {
		return nil, fmt.Errorf("callout %q: not declared on this component", handle)
	}
	compiled, ok := f.Cache.Get(callout.Component)
	if !ok {
		return nil, fmt.Errorf("callout %q: %s not primed in cache", handle, callout.Component.String())
	}
	return compiled, nil
}

func (f CacheCalloutFiles) TryGetText(handle, path string) (string, bool, error) {
	compiled, err := f.lookup(handle)
	if err != nil {
		return "", false, err
	}
	return compiled.Files.TryGetText(path)
}

func (f CacheCalloutFiles) TryGetBin(handle, path string) ([]byte, bool, error) {
	compiled, err := f.lookup(handle)
	if err != nil {
		return nil, false, err
	}
	return compiled.Files.TryGetBin(path)
}
