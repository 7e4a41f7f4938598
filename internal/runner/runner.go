// Package runner implements Runner Dispatch: the ComponentRunner
// chain-of-responsibility contract, the dispatch loop
// that walks a runner list until one claims a component, and the two
// runners required to exist in every default configuration — Special
// and Fragment.
package runner

import (
	"context"
	"fmt"

	"github.com/slipwayhq/slipway/internal/hostapi"
	"github.com/slipwayhq/slipway/internal/loader"
	"github.com/slipwayhq/slipway/internal/permission"
	"github.com/slipwayhq/slipway/internal/rigging"
)

// ComponentExecutionData is everything a ComponentRunner needs to
// actually run a component: the evaluated input, the
// component's own definition and cache handle, its file handle, the
// call chain in effect, and its callout map.
type ComponentExecutionData struct {
	Handle    string
	Component *rigging.Component
	Input     any
	Files     *loader.ComponentFiles
	Chain     *permission.CallChain
	Callouts  map[string]rigging.Callout
	// Host exposes the Host API (fetch/load/env/resolve_font/run/log)
	// to sandboxed code that can bind it. Runners that cannot bridge a
	// given guest ABI to it (e.g. the WASM runner; see DESIGN.md) simply
	// ignore it.
	Host *hostapi.Host
}

// RunResult is a successful component execution: the output value plus
// arbitrary runner-supplied metadata (e.g. timing, token counts).
type RunResult struct {
	Output   any
	Metadata any
}

// TryRunResult is a ComponentRunner's verdict: either it declined to
// handle the component (Ran == false), or it ran it and produced
// Result.
type TryRunResult struct {
	Ran    bool
	Result RunResult
}

// CannotRun is the zero-value "I don't handle this" result, named for
// readability at call sites.
func CannotRun() TryRunResult { return TryRunResult{} }

// Ran wraps a successful RunResult as a claimed TryRunResult.
func Ran(result RunResult) TryRunResult { return TryRunResult{Ran: true, Result: result} }

// ComponentRunner is a polymorphic capability over one way of
// executing a component.
type ComponentRunner interface {
	Identifier() string
	Run(ctx context.Context, data ComponentExecutionData) (TryRunResult, error)
}

// NotFoundError reports that no configured runner claimed a component.
type NotFoundError struct {
	Handle string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("component %q: no runner claimed it", e.Handle)
}

// FailedError wraps a runner's own failure with the handle and the
// claiming runner's identifier.
type FailedError struct {
	Handle   string
	RunnerID string
	Err      error
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("component %q: runner %q failed: %v", e.Handle, e.RunnerID, e.Err)
}

func (e *FailedError) Unwrap() error { return e.Err }

// Dispatch iterates runners in order and returns the first Ran
// result.
func Dispatch(ctx context.Context, data ComponentExecutionData, runners []ComponentRunner) (RunResult, error) {
	for _, r := range runners {
		try, err := r.Run(ctx, data)
		if err != nil {
			return RunResult{}, &FailedError{Handle: data.Handle, RunnerID: r.Identifier(), Err: err}
		}
		if try.Ran {
			return try.Result, nil
		}
	}
	return RunResult{}, &NotFoundError{Handle: data.Handle}
}
