package runner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWASMRunnerDeclinesWithoutFiles(t *testing.T) {
	result, err := WASMRunner{}.Run(context.Background(), ComponentExecutionData{})
	require.NoError(t, err)
	assert.False(t, result.Ran)
}

func TestWASMRunnerDeclinesWithoutModuleFile(t *testing.T) {
	files := componentFiles(t, map[string]string{
		"slipway_component.json": `{"publisher":"acme","name":"widget","version":"1.0.0","input":{},"output":{}}`,
	})

	result, err := WASMRunner{}.Run(context.Background(), ComponentExecutionData{Files: files})
	require.NoError(t, err)
	assert.False(t, result.Ran)
}

// Running an actual compiled .wasm module end to end needs a real
// module fixture built with a Wasm toolchain, which this environment
// does not have; DESIGN.md records this as a known test gap rather
// than faking a fixture.
