package execstate

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/slipwayhq/slipway/internal/cache"
	"github.com/slipwayhq/slipway/internal/loader"
	"github.com/slipwayhq/slipway/internal/rigging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustRig(t *testing.T, doc string) *rigging.Rig {
	t.Helper()
	rig, err := rigging.ParseRig([]byte(doc))
	require.NoError(t, err)
	return rig
}

func TestNewLeafComponentGetsExecutionInputImmediately(t *testing.T) {
	rig := mustRig(t, `{"rigging": {"a": {"component": "pass", "input": {"x": 1}}}}`)
	state, err := New(rig, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, state.ComponentStates["a"].ExecutionInput)
}

func TestDependentComponentWaitsForOutput(t *testing.T) {
	rig := mustRig(t, `{
		"rigging": {
			"a": {"component": "pass", "input": {"x": 1}},
			"b": {"component": "pass", "input": {"y": "$$a.value"}}
		}
	}`)
	state, err := New(rig, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, state.ComponentStates["b"].ExecutionInput, "b depends on a's output, not yet known")

	state, err = state.Step(SetOutput("a", map[string]any{"value": 42}, nil))
	require.NoError(t, err)
	require.NotNil(t, state.ComponentStates["b"].ExecutionInput)
}

func TestStepAllAppliesWholeBatchBeforeRescheduling(t *testing.T) {
	rig := mustRig(t, `{
		"rigging": {
			"a": {"component": "pass", "input": {"x": 1}},
			"b": {"component": "pass", "input": {"y": 2}},
			"c": {"component": "pass", "input": {"z": "$$a.value"}}
		}
	}`)
	state, err := New(rig, nil, nil)
	require.NoError(t, err)

	state, err = state.StepAll([]Instruction{
		SetOutput("a", map[string]any{"value": 1}, nil),
		SetOutput("b", map[string]any{"value": 2}, nil),
	})
	require.NoError(t, err)

	aOut, ok := state.ComponentStates["a"].Output()
	require.True(t, ok)
	assert.Equal(t, map[string]any{"value": 1}, aOut)
	bOut, ok := state.ComponentStates["b"].Output()
	require.True(t, ok)
	assert.Equal(t, map[string]any{"value": 2}, bOut)
	require.NotNil(t, state.ComponentStates["c"].ExecutionInput, "c's dependency on a is satisfied by the same batch")
}

func TestSetOutputWithoutExecutionInputFails(t *testing.T) {
	rig := mustRig(t, `{
		"rigging": {
			"a": {"component": "pass", "input": {"x": 1}},
			"b": {"component": "pass", "input": {"y": "$$a.value"}}
		}
	}`)
	state, err := New(rig, nil, nil)
	require.NoError(t, err)

	_, err = state.Step(SetOutput("b", map[string]any{}, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did you intend to override the output")
}

func TestOutputOverrideSkipsSchemaButStillPropagates(t *testing.T) {
	rig := mustRig(t, `{
		"rigging": {
			"a": {"component": "pass", "input": {"x": 1}},
			"b": {"component": "pass", "input": {"y": "$$a.value"}}
		}
	}`)
	state, err := New(rig, nil, nil)
	require.NoError(t, err)

	state, err = state.Step(SetOutputOverride("a", map[string]any{"value": "overridden"}))
	require.NoError(t, err)
	require.NotNil(t, state.ComponentStates["b"].ExecutionInput)
}

func TestPreviousStateUnaffectedByStep(t *testing.T) {
	rig := mustRig(t, `{"rigging": {"a": {"component": "pass", "input": {"x": 1}}}}`)
	state, err := New(rig, nil, nil)
	require.NoError(t, err)

	next, err := state.Step(SetInputOverride("a", map[string]any{"x": 2}))
	require.NoError(t, err)

	assert.Nil(t, state.ComponentStates["a"].InputOverride, "stepping must not mutate the original state")
	assert.NotNil(t, next.ComponentStates["a"].InputOverride)
}

func TestSetInputOverrideRejectsValueFailingInputSchema(t *testing.T) {
	dir := t.TempDir()
	componentDir := filepath.Join(dir, "validated")
	require.NoError(t, os.MkdirAll(componentDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(componentDir, "slipway_component.json"), []byte(`{
		"publisher": "acme",
		"name": "validated",
		"version": "1.0.0",
		"input": {
			"$schema": "https://json-schema.org/draft/2020-12/schema",
			"type": "object",
			"required": ["x"],
			"properties": {"x": {"type": "number"}}
		},
		"output": {}
	}`), 0o644))

	rig := mustRig(t, `{"rigging": {"a": {"component": "file:validated", "input": {"x": 1}}}}`)

	ld := loader.New(loader.Config{BaseDir: dir})
	primed, err := cache.Primed(context.Background(), rig, ld)
	require.NoError(t, err)

	state, err := New(rig, nil, primed)
	require.NoError(t, err)

	_, err = state.Step(SetInputOverride("a", map[string]any{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema validation")

	next, err := state.Step(SetInputOverride("a", map[string]any{"x": 2}))
	require.NoError(t, err)
	require.NotNil(t, next.ComponentStates["a"].InputOverride)
}

func TestSetInputOverrideValueIsReEvaluatedAndWaitsOnDependencies(t *testing.T) {
	rig := mustRig(t, `{
		"rigging": {
			"a": {"component": "pass", "input": {"x": 1}},
			"b": {"component": "pass", "input": {"y": 0}}
		}
	}`)
	state, err := New(rig, nil, nil)
	require.NoError(t, err)

	state, err = state.Step(SetInputOverride("b", map[string]any{"y": "$$a.value"}))
	require.NoError(t, err)
	assert.Nil(t, state.ComponentStates["b"].ExecutionInput, "override references a's output, not yet known")

	state, err = state.Step(SetOutput("a", map[string]any{"value": 42}, nil))
	require.NoError(t, err)
	require.NotNil(t, state.ComponentStates["b"].ExecutionInput)
	assert.Equal(t, map[string]any{"y": 42}, state.ComponentStates["b"].ExecutionInput.Value)

	// a's own state is untouched by evaluating the override built on top of it.
	out, ok := state.ComponentStates["a"].Output()
	require.True(t, ok)
	assert.Equal(t, map[string]any{"value": 42}, out)
}
