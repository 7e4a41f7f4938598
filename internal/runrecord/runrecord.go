// Package runrecord implements the Run Record: an optional in-memory
// capture of every run_component call's resolved
// identity, permissions, input, and callout map, plus
// run_record_as_rig(), which turns that capture into a standalone Rig
// that reproduces the observed execution without replaying dependency
// resolution.
package runrecord

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/slipwayhq/slipway/internal/permission"
	"github.com/slipwayhq/slipway/internal/primitives"
	"github.com/slipwayhq/slipway/internal/rigging"
)

// Entry is one recorded run_component call.
type Entry struct {
	UniqueHandle             string
	Reference                primitives.SlipwayReference
	ResolvedPermissionsChain []rigging.PermissionsChainLink
	Input                    any
	Callouts                 map[string]rigging.Callout
}

// Recorder accumulates Entry values across a run. Safe for concurrent
// use, since the Rig Runner may execute a concurrency group's
// components in parallel.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

// Record captures one run_component call. handle is the trail-local
// handle (not yet made unique); chain is the call chain in effect
// after pushing that component's own permission links, so
// ResolvedPermissionsChain reflects exactly the links pushed for this
// component's invocation.
func (r *Recorder) Record(handle string, ref primitives.SlipwayReference, chain *permission.CallChain, input any, callouts map[string]rigging.Callout) {
	// chain.Links() is tail-to-head (most recent first); this
	// component's own push is exactly the contiguous run of links at
	// the tail sharing ComponentHandle == handle, since nothing else
	// is pushed between a component's links and its run_component call.
	links := chain.Links()
	var resolved []rigging.PermissionsChainLink
	for _, l := range links {
		if l.ComponentHandle != handle || l.Inherit {
			break
		}
		resolved = append(resolved, rigging.PermissionsChainLink{Allow: l.Permissions.Allow, Deny: l.Permissions.Deny})
	}
	// Reverse to chronological (push) order.
	for i, j := 0, len(resolved)-1; i < j; i, j = i+1, j-1 {
		resolved[i], resolved[j] = resolved[j], resolved[i]
	}

	uniqueHandle := uniqueHandleFor(chain, handle)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Entry{
		UniqueHandle:             uniqueHandle,
		Reference:                ref,
		ResolvedPermissionsChain: resolved,
		Input:                    input,
		Callouts:                 callouts,
	})
}

// uniqueHandleFor joins every handle on the chain (root to tail) with
// "_then_", disambiguating the same nominal handle appearing at
// different nesting depths (e.g. the same fragment invoked via two
// callouts).
func uniqueHandleFor(chain *permission.CallChain, handle string) string {
	links := chain.Links()
	var handles []string
	for i := len(links) - 1; i >= 0; i-- {
		if links[i].ComponentHandle != "" {
			handles = append(handles, links[i].ComponentHandle)
		}
	}
	if len(handles) == 0 || handles[len(handles)-1] != handle {
		handles = append(handles, handle)
	}
	return strings.Join(handles, "_then_")
}

// Entries returns every entry recorded so far, in recording order.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}

// AsRig emits a standalone Rig where every recorded call appears as a
// component keyed by its unique handle, with its concrete resolved
// permissions chain attached.
func (r *Recorder) AsRig() (*rigging.Rig, error) {
	entries := r.Entries()
	rigging_ := make(map[primitives.ComponentHandle]rigging.ComponentRigging, len(entries))

	for _, entry := range entries {
		handle, err := primitives.NewComponentHandle(entry.UniqueHandle)
		if err != nil {
			return nil, fmt.Errorf("run record entry %q: %w", entry.UniqueHandle, err)
		}

		inputJSON, err := json.Marshal(entry.Input)
		if err != nil {
			return nil, fmt.Errorf("run record entry %q: marshaling input: %w", entry.UniqueHandle, err)
		}

		rigging_[handle] = rigging.ComponentRigging{
			Component:        entry.Reference,
			Input:            inputJSON,
			PermissionsChain: entry.ResolvedPermissionsChain,
			Callouts:         entry.Callouts,
		}
	}

	return &rigging.Rig{Rigging: rigging_}, nil
}
