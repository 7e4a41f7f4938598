package runner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slipwayhq/slipway/internal/primitives"
	"github.com/slipwayhq/slipway/internal/rigging"
)

func specialComponent(t *testing.T, name string) *rigging.Component {
	t.Helper()
	publisher, err := primitives.NewPublisher("slipway")
	require.NoError(t, err)
	n, err := primitives.NewName(name)
	require.NoError(t, err)
	return &rigging.Component{Publisher: publisher, Name: n}
}

func TestSpecialRunnerPassReturnsInput(t *testing.T) {
	data := ComponentExecutionData{Component: specialComponent(t, "pass"), Input: map[string]any{"a": 1.0}}

	result, err := SpecialRunner{}.Run(context.Background(), data)
	require.NoError(t, err)
	require.True(t, result.Ran)
	assert.Equal(t, map[string]any{"a": 1.0}, result.Result.Output)
}

func TestSpecialRunnerSinkDiscardsInput(t *testing.T) {
	data := ComponentExecutionData{Component: specialComponent(t, "sink"), Input: map[string]any{"a": 1.0}}

	result, err := SpecialRunner{}.Run(context.Background(), data)
	require.NoError(t, err)
	require.True(t, result.Ran)
	assert.Equal(t, map[string]any{}, result.Result.Output)
}

func TestSpecialRunnerDeclinesUnknownPublisher(t *testing.T) {
	publisher, err := primitives.NewPublisher("acme")
	require.NoError(t, err)
	name, err := primitives.NewName("widget")
	require.NoError(t, err)
	data := ComponentExecutionData{Component: &rigging.Component{Publisher: publisher, Name: name}}

	result, err := SpecialRunner{}.Run(context.Background(), data)
	require.NoError(t, err)
	assert.False(t, result.Ran)
}

func TestSpecialRunnerDeclinesUnknownName(t *testing.T) {
	data := ComponentExecutionData{Component: specialComponent(t, "unknown")}

	result, err := SpecialRunner{}.Run(context.Background(), data)
	require.NoError(t, err)
	assert.False(t, result.Ran)
}
