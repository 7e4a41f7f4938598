// Package rigrun implements the Rig Runner: the outer ready-loop that
// drives a RigExecutionState to completion by
// dispatching every ready component through the runner chain and
// folding its result back in via Step(SetOutput{...}).
package rigrun

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/slipwayhq/slipway/internal/cache"
	"github.com/slipwayhq/slipway/internal/event"
	"github.com/slipwayhq/slipway/internal/execstate"
	"github.com/slipwayhq/slipway/internal/hostapi"
	"github.com/slipwayhq/slipway/internal/permission"
	"github.com/slipwayhq/slipway/internal/primitives"
	"github.com/slipwayhq/slipway/internal/rigging"
	"github.com/slipwayhq/slipway/internal/runner"
	"github.com/slipwayhq/slipway/internal/runrecord"
)

// Config bundles everything the Rig Runner needs to run a rig to
// completion once: the primed cache, the ordered runner chain, and an
// event sink. Cache and Runners are read-only and safe to share across
// concurrent Run calls.
type Config struct {
	Cache   cache.ComponentCache
	Runners []runner.ComponentRunner
	Emitter event.Emitter
	Record  *runrecord.Recorder // optional; nil disables recording
	Fonts   hostapi.FontResolver
	Logger  hostapi.Logger // optional; nil disables log_* forwarding
	// MaxConcurrentComponents caps how many ready components a single
	// group dispatches at once. Zero (the default) leaves the group
	// uncapped.
	MaxConcurrentComponents int
	// DefaultFetchTimeout bounds a host.fetch call that omits its own
	// timeout. Zero leaves such calls with no deadline.
	DefaultFetchTimeout time.Duration
}

// RigRunner drives rigs to completion against one Config.
type RigRunner struct {
	cfg Config
}

func New(cfg Config) *RigRunner {
	if cfg.Emitter == nil {
		cfg.Emitter = event.NoopEmitter{}
	}
	return &RigRunner{cfg: cfg}
}

// AsFragmentRunRig adapts Run into a runner.RunRigFunc, so a
// runner.FragmentRunner can recurse into this same RigRunner (and its
// cache/runner chain/recorder) to execute an inner rig under the
// current call chain.
func (r *RigRunner) AsFragmentRunRig() runner.RunRigFunc {
	return func(ctx context.Context, rig *rigging.Rig, chain *permission.CallChain) (map[string]any, error) {
		state, err := r.Run(ctx, "<fragment>", rig, nil, chain)
		if err != nil {
			return nil, err
		}
		outputs := make(map[string]any, len(state.ComponentStates))
		for handle, cs := range state.ComponentStates {
			if value, ok := cs.Output(); ok {
				outputs[handle] = value
			}
		}
		return outputs, nil
	}
}

// Run executes rig to completion under chain, returning the final
// state. rigID labels emitted events; it has no semantic meaning.
func (r *RigRunner) Run(ctx context.Context, rigID string, rig *rigging.Rig, rigAdditionalContext any, chain *permission.CallChain) (*execstate.RigExecutionState, error) {
	if err := verifyRigLevelReferences(rig, chain); err != nil {
		return nil, err
	}

	state, err := execstate.New(rig, rigAdditionalContext, r.cfg.Cache)
	if err != nil {
		return nil, err
	}

	r.cfg.Emitter.Emit(event.Event{Timestamp: now(), RigID: rigID, State: event.StateRigStarted})

	for {
		ready := readySet(state)
		r.cfg.Emitter.Emit(event.Event{
			Timestamp:  now(),
			RigID:      rigID,
			State:      event.StateStateChanged,
			IsComplete: len(ready) == 0,
		})
		if len(ready) == 0 {
			break
		}

		results, err := r.runGroup(ctx, rigID, rig, state, ready, chain)
		if err != nil {
			r.cfg.Emitter.Emit(event.Event{Timestamp: now(), RigID: rigID, State: event.StateRigFailed, Message: err.Error()})
			return nil, err
		}

		instructions := make([]execstate.Instruction, len(ready))
		for i, h := range ready {
			res := results[h]
			instructions[i] = execstate.SetOutput(h, res.Output, res.Metadata)
		}
		state, err = state.StepAll(instructions)
		if err != nil {
			r.cfg.Emitter.Emit(event.Event{Timestamp: now(), RigID: rigID, State: event.StateRigFailed, Message: err.Error()})
			return nil, err
		}
	}

	r.cfg.Emitter.Emit(event.Event{Timestamp: now(), RigID: rigID, State: event.StateRigCompleted})
	return state, nil
}

// runGroup runs every ready handle concurrently — handles in the same
// group are independent of each other by construction — returning
// once every handle in the group has a result or one fails.
func (r *RigRunner) runGroup(ctx context.Context, rigID string, rig *rigging.Rig, state *execstate.RigExecutionState, ready []string, chain *permission.CallChain) (map[string]runner.RunResult, error) {
	results := make(map[string]runner.RunResult, len(ready))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	if r.cfg.MaxConcurrentComponents > 0 {
		g.SetLimit(r.cfg.MaxConcurrentComponents)
	}

	for _, h := range ready {
		h := h
		g.Go(func() error {
			r.cfg.Emitter.Emit(event.Event{Timestamp: now(), RigID: rigID, ComponentHandle: h, State: event.StateComponentStart})
			start := time.Now()

			result, err := r.runOne(gctx, rig, state, h, chain)

			r.cfg.Emitter.Emit(event.Event{
				Timestamp:       now(),
				RigID:           rigID,
				ComponentHandle: h,
				State:           event.StateComponentEnd,
				DurationMs:      time.Since(start).Milliseconds(),
			})
			if err != nil {
				return err
			}
			mu.Lock()
			results[h] = result
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (r *RigRunner) runOne(ctx context.Context, rig *rigging.Rig, state *execstate.RigExecutionState, handle string, chain *permission.CallChain) (runner.RunResult, error) {
	entry, ref, ok := ruleFor(rig, handle)
	if !ok {
		return runner.RunResult{}, fmt.Errorf("component %q: not found in rig", handle)
	}

	compiled, ok := r.cfg.Cache.Get(ref)
	if !ok {
		return runner.RunResult{}, fmt.Errorf("component %q: %s not primed in cache", handle, ref.String())
	}

	childChain := pushComponentLinks(chain, handle, entry)
	callouts := mergeCallouts(compiled.Component.Callouts, entry.Callouts)

	cs := state.ComponentStates[handle]
	data := runner.ComponentExecutionData{
		Handle:    handle,
		Component: compiled.Component,
		Input:     cs.ExecutionInput.Value,
		Files:     compiled.Files,
		Chain:     childChain,
		Callouts:  callouts,
		Host:      r.buildHost(childChain, callouts, childChain.Trail()),
	}

	if r.cfg.Record != nil {
		r.cfg.Record.Record(handle, ref, childChain, cs.ExecutionInput.Value, callouts)
	}

	result, err := runner.Dispatch(ctx, data, r.cfg.Runners)
	if err != nil {
		return runner.RunResult{}, err
	}

	if compiled.Output != nil {
		if failures, verr := compiled.Output.Validate(result.Output); verr != nil {
			return runner.RunResult{}, fmt.Errorf("component %q: output schema validator aborted: %w", handle, verr)
		} else if len(failures) > 0 {
			return runner.RunResult{}, fmt.Errorf("component %q: output failed schema validation: %s", handle, failures[0].Message)
		}
	}

	return result, nil
}

// mergeCallouts builds the effective callout map for one run_component
// call: the component manifest's own declared callouts (bare
// references, no allow/deny of their own) form the base layer, and the
// rig's own ComponentRigging.Callouts overrides by key on top of it —
// the rig author can restrict or repoint a callout the manifest
// declares, but an entry the rig doesn't mention still resolves from
// the manifest.
func mergeCallouts(manifest map[string]primitives.SlipwayReference, override map[string]rigging.Callout) map[string]rigging.Callout {
	merged := make(map[string]rigging.Callout, len(manifest)+len(override))
	for name, ref := range manifest {
		merged[name] = rigging.Callout{Component: ref}
	}
	for name, callout := range override {
		merged[name] = callout
	}
	return merged
}

// ruleFor looks up handle in rig.Rigging as a direct keyed map access:
// every handle passed in here (from ValidExecutionOrder or a rig-level
// reference check) already round-tripped through a ComponentHandle
// when the rig was parsed, so re-parsing it here always succeeds.
func ruleFor(rig *rigging.Rig, handle string) (rigging.ComponentRigging, primitives.SlipwayReference, bool) {
	h, err := primitives.NewComponentHandle(handle)
	if err != nil {
		return rigging.ComponentRigging{}, primitives.SlipwayReference{}, false
	}
	entry, ok := rig.Rigging[h]
	if !ok {
		return rigging.ComponentRigging{}, primitives.SlipwayReference{}, false
	}
	return entry, entry.Component, true
}

// pushComponentLinks pushes one chain link per element of entry's
// permissions_chain (or a single link synthesized from allow/deny if
// no chain was given), every link tagged with handle.
func pushComponentLinks(chain *permission.CallChain, handle string, entry rigging.ComponentRigging) *permission.CallChain {
	links := entry.PermissionsChain
	if len(links) == 0 {
		links = []rigging.PermissionsChainLink{{Allow: entry.Allow, Deny: entry.Deny}}
	}
	for _, l := range links {
		chain = chain.Push(permission.Link{
			ComponentHandle: handle,
			Permissions:     permission.Permissions{Allow: l.Allow, Deny: l.Deny},
		})
	}
	return chain
}

// readySet returns every handle with a known execution input whose
// output is not yet known. Handles are returned in ValidExecutionOrder's
// order, which is deterministic, for deterministic event emission;
// execution order within the returned set is still unobservable.
func readySet(state *execstate.RigExecutionState) []string {
	var ready []string
	for _, h := range state.ValidExecutionOrder {
		cs := state.ComponentStates[h]
		if cs.ExecutionInput == nil {
			continue
		}
		if _, ok := cs.Output(); ok {
			continue
		}
		ready = append(ready, h)
	}
	return ready
}

// verifyRigLevelReferences checks every top-level component reference
// against chain before the first iteration, surfacing a
// PermissionDeniedError up front rather than partway through a run.
func verifyRigLevelReferences(rig *rigging.Rig, chain *permission.CallChain) error {
	for handle, entry := range rig.Rigging {
		if entry.Component.Kind == primitives.ReferenceSpecial {
			// Pass/Sink are host builtins with no external resource
			// access of their own; nothing to gate.
			continue
		}
		req := accessRequestFor(entry.Component)
		if err := permission.EnsurePermissions(chain, fmt.Sprintf("access component reference %s", entry.Component.String()), permission.CheckComponentAccess(req)); err != nil {
			return fmt.Errorf("component %q: %w", handle.String(), err)
		}
	}
	return nil
}

func accessRequestFor(ref primitives.SlipwayReference) permission.ComponentAccessRequest {
	switch ref.Kind {
	case primitives.ReferenceRegistry:
		return permission.ComponentAccessRequest{IsRegistry: true, Publisher: ref.Publisher.String(), Name: ref.Name.String(), Version: ref.Version}
	case primitives.ReferenceLocal:
		return permission.ComponentAccessRequest{IsLocal: true, Path: ref.Path}
	case primitives.ReferenceURL:
		return permission.ComponentAccessRequest{IsHTTP: true, URL: ref.URL}
	default:
		return permission.ComponentAccessRequest{}
	}
}

// buildHost constructs the Host API surface a running component's
// sandboxed code sees: callout files resolve through callouts against
// the same cache this runner primes from, and run_* callouts recurse
// into dispatchCallout under chain.
func (r *RigRunner) buildHost(chain *permission.CallChain, callouts map[string]rigging.Callout, handleTrail string) *hostapi.Host {
	files := hostapi.CacheCalloutFiles{Cache: r.cfg.Cache, Callouts: callouts}
	dispatch := r.dispatchCallout(callouts)
	var logger hostapi.Logger
	if r.cfg.Logger != nil {
		logger = r.cfg.Logger
	}
	return hostapi.New(chain, r.cfg.Fonts, files, dispatch, logger, handleTrail, r.cfg.DefaultFetchTimeout)
}

// dispatchCallout returns a CalloutDispatcher closing over the calling
// component's own callout map: look up handle in callouts, push one
// chain link tagged with handle and the callout's own allow/deny,
// dispatch through the same runner chain, validate the result's
// schema, and return its JSON encoding.
func (r *RigRunner) dispatchCallout(callouts map[string]rigging.Callout) hostapi.CalloutDispatcher {
	return func(ctx context.Context, chain *permission.CallChain, handle string, inputJSON []byte) ([]byte, error) {
		callout, ok := callouts[handle]
		if !ok {
			return nil, fmt.Errorf("callout %q: not declared", handle)
		}

		compiled, ok := r.cfg.Cache.Get(callout.Component)
		if !ok {
			return nil, fmt.Errorf("callout %q: %s not primed in cache", handle, callout.Component.String())
		}

		childChain := chain.Push(permission.Link{
			ComponentHandle: handle,
			Permissions:     permission.Permissions{Allow: callout.Allow, Deny: callout.Deny},
		})

		var input any
		if len(inputJSON) > 0 {
			if err := json.Unmarshal(inputJSON, &input); err != nil {
				return nil, fmt.Errorf("callout %q: decoding input: %w", handle, err)
			}
		}
		if compiled.Input != nil {
			if failures, verr := compiled.Input.Validate(input); verr != nil {
				return nil, fmt.Errorf("callout %q: input schema validator aborted: %w", handle, verr)
			} else if len(failures) > 0 {
				return nil, fmt.Errorf("callout %q: input failed schema validation: %s", handle, failures[0].Message)
			}
		}

		innerCallouts := mergeCallouts(compiled.Component.Callouts, nil)

		if r.cfg.Record != nil {
			r.cfg.Record.Record(handle, callout.Component, childChain, input, innerCallouts)
		}

		data := runner.ComponentExecutionData{
			Handle:    handle,
			Component: compiled.Component,
			Input:     input,
			Files:     compiled.Files,
			Chain:     childChain,
			Callouts:  innerCallouts,
			Host:      r.buildHost(childChain, innerCallouts, childChain.Trail()),
		}

		result, err := runner.Dispatch(ctx, data, r.cfg.Runners)
		if err != nil {
			return nil, err
		}

		if compiled.Output != nil {
			if failures, verr := compiled.Output.Validate(result.Output); verr != nil {
				return nil, fmt.Errorf("callout %q: output schema validator aborted: %w", handle, verr)
			} else if len(failures) > 0 {
				return nil, fmt.Errorf("callout %q: output failed schema validation: %s", handle, failures[0].Message)
			}
		}

		return json.Marshal(result.Output)
	}
}

// now is a seam so tests could inject a fixed clock; production always
// uses the wall clock.
func now() time.Time { return time.Now() }
