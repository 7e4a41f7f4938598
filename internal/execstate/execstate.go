// Package execstate implements the Execution State Machine:
// RigExecutionState, the per-component input/output overrides and
// execution results, and the Instruction/step contract that produces
// a new immutable state from the old one plus a mutation.
//
// step always re-derives execution inputs after applying the
// instruction, and SetOutput requires an execution_input to already
// exist — setting an output for a component whose input hasn't even
// been evaluated yet almost always means the caller meant to override
// the output of something else.
package execstate

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/slipwayhq/slipway/internal/cache"
	"github.com/slipwayhq/slipway/internal/jsonpath"
	"github.com/slipwayhq/slipway/internal/rigging"
	"github.com/slipwayhq/slipway/internal/schedule"
)

// InputOverride replaces a component's evaluated input entirely.
type InputOverride struct {
	Value any
}

// OutputOverride replaces a component's output without output-schema
// validation.
type OutputOverride struct {
	Value any
}

// ExecutionInput is a component's fully-resolved input: every "$..."
// reference has been evaluated against the working document. Hash
// identifies this exact input, so a later SetOutput can record which
// input it was computed from.
type ExecutionInput struct {
	Value any
	Hash  string
}

// ExecutionOutput is the recorded result of actually running a
// component against its ExecutionInput.
type ExecutionOutput struct {
	Value         any
	InputHashUsed string
	Metadata      any
}

// ComponentState is one component's mutable-by-replacement execution
// state within a RigExecutionState.
type ComponentState struct {
	Handle         string
	Rigging        rigging.ComponentRigging
	InputOverride  *InputOverride
	OutputOverride *OutputOverride
	ExecutionInput *ExecutionInput
	ExecutionOutput *ExecutionOutput
}

// Output returns the component's effective output for downstream
// evaluation: the output override if set, else the execution output's
// value, else (nil, false) if neither is available yet.
func (c *ComponentState) Output() (any, bool) {
	if c.OutputOverride != nil {
		return c.OutputOverride.Value, true
	}
	if c.ExecutionOutput != nil {
		return c.ExecutionOutput.Value, true
	}
	return nil, false
}

// RigExecutionState is the whole rig's execution state: every
// component's state plus the current schedule computed from their
// live dependencies. Every exported mutation method returns a new
// state; the receiver is never mutated in place, so past states
// remain valid for replay/inspection.
type RigExecutionState struct {
	Rig             *rigging.Rig
	RigAdditionalContext any
	ComponentStates map[string]*ComponentState
	ValidExecutionOrder []string
	ComponentGroups     [][]string

	// cache resolves a component's compiled input schema for
	// SetInputOverride validation; nil disables that validation (e.g.
	// a caller that never issues overrides).
	cache cache.ComponentCache
}

// New builds the initial RigExecutionState for rig: one ComponentState
// per rigging entry, with inputs evaluated as far as currently
// possible (i.e. every component with no dependencies gets its input
// evaluated immediately). componentCache, if non-nil, is consulted by
// Step to validate a later SetInputOverride against the target
// component's input schema; pass nil if the caller never issues
// input overrides.
func New(rig *rigging.Rig, rigAdditionalContext any, componentCache cache.ComponentCache) (*RigExecutionState, error) {
	states := make(map[string]*ComponentState, len(rig.Rigging))
	for handle, entry := range rig.Rigging {
		states[handle.String()] = &ComponentState{Handle: handle.String(), Rigging: entry}
	}
	state := &RigExecutionState{Rig: rig, RigAdditionalContext: rigAdditionalContext, ComponentStates: states, cache: componentCache}
	return state.evaluateComponentInputs()
}

func (s *RigExecutionState) clone() *RigExecutionState {
	states := make(map[string]*ComponentState, len(s.ComponentStates))
	for handle, cs := range s.ComponentStates {
		copied := *cs
		states[handle] = &copied
	}
	return &RigExecutionState{
		Rig:                  s.Rig,
		RigAdditionalContext: s.RigAdditionalContext,
		ComponentStates:      states,
		ValidExecutionOrder:  append([]string(nil), s.ValidExecutionOrder...),
		ComponentGroups:      append([][]string(nil), s.ComponentGroups...),
		cache:                s.cache,
	}
}

// Instruction is the tagged union of every mutation step() accepts.
type Instruction struct {
	Op       string // "set_input_override" | "clear_input_override" | "set_output_override" | "clear_output_override" | "set_output"
	Handle   string
	Value    any
	Metadata any
}

func SetInputOverride(handle string, value any) Instruction {
	return Instruction{Op: "set_input_override", Handle: handle, Value: value}
}
func ClearInputOverride(handle string) Instruction {
	return Instruction{Op: "clear_input_override", Handle: handle}
}
func SetOutputOverride(handle string, value any) Instruction {
	return Instruction{Op: "set_output_override", Handle: handle, Value: value}
}
func ClearOutputOverride(handle string) Instruction {
	return Instruction{Op: "clear_output_override", Handle: handle}
}
func SetOutput(handle string, value, metadata any) Instruction {
	return Instruction{Op: "set_output", Handle: handle, Value: value, Metadata: metadata}
}

// StepError reports a step() failure naming the offending handle.
type StepError struct {
	Handle string
	Reason string
}

func (e *StepError) Error() string {
	return fmt.Sprintf("component %q: %s", e.Handle, e.Reason)
}

// Step applies instruction to s and returns the new state: every
// mutation is followed by evaluate_component_inputs, which re-derives
// every component's execution input, dependencies, and the schedule.
func (s *RigExecutionState) Step(instruction Instruction) (*RigExecutionState, error) {
	return s.StepAll([]Instruction{instruction})
}

// StepAll applies every instruction to one clone of s before
// re-deriving execution inputs a single time, rather than Step's
// clone-and-reschedule per instruction. A group of components
// finishing concurrently folds its whole batch of SetOutput results
// in through one StepAll call: rescheduling is O(components), so doing
// it once per group instead of once per result avoids O(group size)
// redundant reschedules.
func (s *RigExecutionState) StepAll(instructions []Instruction) (*RigExecutionState, error) {
	next := s.clone()

	for _, instruction := range instructions {
		cs, ok := next.ComponentStates[instruction.Handle]
		if !ok {
			return nil, &StepError{Handle: instruction.Handle, Reason: "does not exist in component states"}
		}

		switch instruction.Op {
		case "set_input_override":
			if err := next.validateInputOverride(cs, instruction.Value); err != nil {
				return nil, &StepError{Handle: instruction.Handle, Reason: err.Error()}
			}
			cs.InputOverride = &InputOverride{Value: instruction.Value}
		case "clear_input_override":
			cs.InputOverride = nil
		case "set_output_override":
			cs.OutputOverride = &OutputOverride{Value: instruction.Value}
		case "clear_output_override":
			cs.OutputOverride = nil
		case "set_output":
			if cs.ExecutionInput == nil {
				return nil, &StepError{
					Handle: instruction.Handle,
					Reason: "cannot be executed, did you intend to override the output?",
				}
			}
			if next.cache != nil {
				if compiled, ok := next.cache.Get(cs.Rigging.Component); ok && compiled.Output != nil {
					failures, err := compiled.Output.Validate(instruction.Value)
					if err != nil {
						return nil, &StepError{Handle: instruction.Handle, Reason: fmt.Sprintf("output schema validator aborted: %s", err)}
					}
					if len(failures) > 0 {
						return nil, &StepError{Handle: instruction.Handle, Reason: fmt.Sprintf("output failed schema validation: %s", failures[0].Message)}
					}
				}
			}
			cs.ExecutionOutput = &ExecutionOutput{
				Value:         instruction.Value,
				InputHashUsed: cs.ExecutionInput.Hash,
				Metadata:      instruction.Metadata,
			}
			cs.OutputOverride = nil
		default:
			return nil, &StepError{Handle: instruction.Handle, Reason: fmt.Sprintf("unknown instruction %q", instruction.Op)}
		}
	}

	return next.evaluateComponentInputs()
}

// validateInputOverride checks value against cs's component's compiled
// input schema, if a cache was supplied to New and that component is
// primed in it. Both are true for every real run; a nil cache (or a
// reference the cache has no entry for, e.g. a fragment's synthetic
// handle) skips validation rather than failing closed, since New's
// caller may legitimately not have a cache to offer.
func (s *RigExecutionState) validateInputOverride(cs *ComponentState, value any) error {
	if s.cache == nil {
		return nil
	}
	compiled, ok := s.cache.Get(cs.Rigging.Component)
	if !ok || compiled.Input == nil {
		return nil
	}
	failures, err := compiled.Input.Validate(value)
	if err != nil {
		return fmt.Errorf("input override schema validator aborted: %w", err)
	}
	if len(failures) > 0 {
		return fmt.Errorf("input override failed schema validation: %s", failures[0].Message)
	}
	return nil
}

// unevaluatedInputDoc returns the document reference evaluation starts
// from for cs: the input_override's value if set, else the rigging
// input. Either way the result is a fresh decode, never the override's
// own stored value — SetAtPathTo mutates its argument in place, and an
// override's *InputOverride is shared by every clone taken since it
// was set, so evaluating it in place would corrupt earlier states.
func unevaluatedInputDoc(cs *ComponentState) (any, error) {
	var doc any
	if cs.InputOverride != nil {
		data, err := json.Marshal(cs.InputOverride.Value)
		if err != nil {
			return nil, fmt.Errorf("invalid input override: %w", err)
		}
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("invalid input override: %w", err)
		}
		return doc, nil
	}
	if len(cs.Rigging.Input) > 0 {
		if err := json.Unmarshal(cs.Rigging.Input, &doc); err != nil {
			return nil, fmt.Errorf("invalid input document: %w", err)
		}
	}
	return doc, nil
}

// evaluateComponentInputs re-derives, for every component: its
// dependency set (from its own unevaluated input's reference paths —
// an input_override's references count here exactly like the rigging
// input's do, since the override only replaces which document gets
// evaluated, not whether it does), the schedule (sorted/grouped) over
// those dependencies, and — walking in schedule order — its
// ExecutionInput once every dependency's output is known. Runs after
// every mutation to keep derived state consistent with the raw
// inputs/outputs it was built from. Mutates s in place rather than
// cloning again: both callers (New, building a state nothing else yet
// holds a reference to, and Step, which already cloned before calling
// this) already own a private copy.
func (s *RigExecutionState) evaluateComponentInputs() (*RigExecutionState, error) {
	next := s

	deps := make(map[string][]string, len(next.ComponentStates))
	rawInputs := make(map[string]any, len(next.ComponentStates))
	for handle, cs := range next.ComponentStates {
		doc, err := unevaluatedInputDoc(cs)
		if err != nil {
			return nil, fmt.Errorf("component %q: %w", handle, err)
		}
		rawInputs[handle] = doc
		refs := jsonpath.FindReferences(doc)
		deps[handle] = jsonpath.Dependencies(refs)
	}

	result, err := schedule.Schedule(deps)
	if err != nil {
		return nil, err
	}
	next.ValidExecutionOrder = result.Sorted
	next.ComponentGroups = result.Grouped

	working := next.buildWorkingDocument()

	for _, handle := range result.Sorted {
		cs := next.ComponentStates[handle]

		ready := true
		for _, dep := range deps[handle] {
			if _, ok := next.ComponentStates[dep].Output(); !ok {
				ready = false
				break
			}
		}
		if depOutput, ok := next.ComponentStates[handle].Output(); ok {
			writeWorkingOutput(working, handle, depOutput)
		}
		if !ready {
			cs.ExecutionInput = nil
			continue
		}

		doc := rawInputs[handle]
		refs := jsonpath.FindReferences(doc)
		for _, ref := range refs {
			value, err := jsonpath.Evaluate(ref.Path, working, ref.Type)
			if err != nil {
				return nil, fmt.Errorf("component %q: %w", handle, err)
			}
			if err := jsonpath.SetAtPathTo(doc, ref.PathTo, value); err != nil {
				return nil, fmt.Errorf("component %q: %w", handle, err)
			}
		}

		cs.ExecutionInput = &ExecutionInput{Value: doc, Hash: hashJSON(doc)}
		writeWorkingInput(working, handle, doc)
	}

	// Outputs may have become known since the schedule loop started
	// (e.g. an output override present from the outset); make sure the
	// working document reflects every known output before returning,
	// so callers inspecting it see a consistent picture.
	for handle, cs := range next.ComponentStates {
		if out, ok := cs.Output(); ok {
			writeWorkingOutput(working, handle, out)
		}
	}

	return next, nil
}

// buildWorkingDocument is the rig's JSON representation extended with
// rig.context = rigAdditionalContext, the document JSONPath references
// are evaluated against.
func (s *RigExecutionState) buildWorkingDocument() map[string]any {
	rigging := make(map[string]any, len(s.ComponentStates))
	for handle := range s.ComponentStates {
		rigging[handle] = map[string]any{}
	}
	return map[string]any{
		"rigging": rigging,
		"rig": map[string]any{
			"context": s.RigAdditionalContext,
		},
	}
}

func writeWorkingOutput(working map[string]any, handle string, value any) {
	rigging := working["rigging"].(map[string]any)
	entry, _ := rigging[handle].(map[string]any)
	if entry == nil {
		entry = map[string]any{}
	}
	entry["output"] = value
	rigging[handle] = entry
}

func writeWorkingInput(working map[string]any, handle string, value any) {
	rigging := working["rigging"].(map[string]any)
	entry, _ := rigging[handle].(map[string]any)
	if entry == nil {
		entry = map[string]any{}
	}
	entry["input"] = value
	rigging[handle] = entry
}

func hashJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
