package runner

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/slipwayhq/slipway/internal/permission"
	"github.com/slipwayhq/slipway/internal/primitives"
	"github.com/slipwayhq/slipway/internal/rigging"
)

// RunRigFunc runs rig to completion under chain and returns the final
// output of every component in it, keyed by handle. It is injected
// from internal/rigrun to avoid a cycle (rigrun already depends on
// this package for Dispatch).
type RunRigFunc func(ctx context.Context, rig *rigging.Rig, chain *permission.CallChain) (map[string]any, error)

// FragmentRunner handles components whose manifest embeds its own
// sub-rig.
type FragmentRunner struct {
	RunRig RunRigFunc
}

func (r FragmentRunner) Identifier() string { return "fragment" }

func (r FragmentRunner) Run(ctx context.Context, data ComponentExecutionData) (TryRunResult, error) {
	if !data.Component.IsFragment() {
		return CannotRun(), nil
	}

	inputHandle, err := primitives.NewComponentHandle("input")
	if err != nil {
		return TryRunResult{}, fmt.Errorf("fragment %q: %w", data.Handle, err)
	}
	inputJSON, err := json.Marshal(data.Input)
	if err != nil {
		return TryRunResult{}, fmt.Errorf("fragment %q: marshaling input: %w", data.Handle, err)
	}

	if _, collides := data.Component.Rigging.Rigging[inputHandle]; collides {
		return TryRunResult{}, fmt.Errorf("fragment %q: rigging declares its own %q handle, which the fragment runner reserves for the caller's input", data.Handle, inputHandle.String())
	}

	innerRigging := make(map[primitives.ComponentHandle]rigging.ComponentRigging, len(data.Component.Rigging.Rigging)+1)
	for handle, entry := range data.Component.Rigging.Rigging {
		innerRigging[handle] = entry
	}
	innerRigging[inputHandle] = rigging.ComponentRigging{
		Component: primitives.SlipwayReference{Kind: primitives.ReferenceSpecial, Special: primitives.SpecialPass},
		Input:     inputJSON,
	}

	innerRig := &rigging.Rig{
		Description: data.Component.Rigging.Description,
		Constants:   data.Component.Rigging.Constants,
		Rigging:     innerRigging,
	}

	outputs, err := r.RunRig(ctx, innerRig, data.Chain)
	if err != nil {
		return TryRunResult{}, fmt.Errorf("fragment %q: %w", data.Handle, err)
	}

	if value, ok := outputs["output"]; ok {
		return Ran(RunResult{Output: value}), nil
	}
	if value, ok := outputs["render"]; ok {
		return Ran(RunResult{Output: value}), nil
	}
	return TryRunResult{}, fmt.Errorf("fragment %q: inner rig has no \"output\" or \"render\" component", data.Handle)
}
