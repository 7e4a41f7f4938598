package runner

import "context"

// SpecialRunner handles the two built-in no-op components: Pass
// returns its input as output unchanged, Sink discards its input and
// returns an empty object.
type SpecialRunner struct{}

func (SpecialRunner) Identifier() string { return "special" }

func (SpecialRunner) Run(_ context.Context, data ComponentExecutionData) (TryRunResult, error) {
	if data.Component.Publisher.String() != "slipway" {
		return CannotRun(), nil
	}
	switch data.Component.Name.String() {
	case "pass":
		return Ran(RunResult{Output: data.Input}), nil
	case "sink":
		return Ran(RunResult{Output: map[string]any{}}), nil
	default:
		return CannotRun(), nil
	}
}
