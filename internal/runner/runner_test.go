package runner

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	id     string
	result TryRunResult
	err    error
}

func (f fakeRunner) Identifier() string { return f.id }
func (f fakeRunner) Run(context.Context, ComponentExecutionData) (TryRunResult, error) {
	return f.result, f.err
}

func TestDispatchReturnsFirstClaimingRunner(t *testing.T) {
	runners := []ComponentRunner{
		fakeRunner{id: "a", result: CannotRun()},
		fakeRunner{id: "b", result: Ran(RunResult{Output: "claimed"})},
		fakeRunner{id: "c", result: Ran(RunResult{Output: "should not reach"})},
	}

	result, err := Dispatch(context.Background(), ComponentExecutionData{Handle: "x"}, runners)
	require.NoError(t, err)
	assert.Equal(t, "claimed", result.Output)
}

func TestDispatchReturnsNotFoundWhenNoneClaim(t *testing.T) {
	runners := []ComponentRunner{fakeRunner{id: "a", result: CannotRun()}}

	_, err := Dispatch(context.Background(), ComponentExecutionData{Handle: "x"}, runners)
	require.Error(t, err)
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "x", notFound.Handle)
}

func TestDispatchWrapsRunnerFailure(t *testing.T) {
	boom := errors.New("boom")
	runners := []ComponentRunner{fakeRunner{id: "a", err: boom}}

	_, err := Dispatch(context.Background(), ComponentExecutionData{Handle: "x"}, runners)
	require.Error(t, err)
	var failed *FailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, "a", failed.RunnerID)
	assert.ErrorIs(t, err, boom)
}
