package runner

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dop251/goja"
)

// jsDefinitionFile names the manifest listing a JavaScript component's
// script files: one JSON file naming an ordered "scripts" list, each
// run in turn against a shared VM.
const jsDefinitionFile = "slipway_js_runner.json"

type jsDefinition struct {
	Scripts []string `json:"scripts"`
}

// JSRunner executes components backed by goja, a pure-Go ECMAScript
// VM. Each script in the definition's "scripts" list runs in order
// against one VM; the last script's completion value becomes the
// component's output.
type JSRunner struct{}

func (JSRunner) Identifier() string { return "javascript" }

func (JSRunner) Run(ctx context.Context, data ComponentExecutionData) (TryRunResult, error) {
	if data.Files == nil {
		return CannotRun(), nil
	}

	var def jsDefinition
	ok, err := data.Files.TryGetJSON(jsDefinitionFile, &def)
	if err != nil {
		return TryRunResult{}, fmt.Errorf("reading %s: %w", jsDefinitionFile, err)
	}
	if !ok || len(def.Scripts) == 0 {
		return CannotRun(), nil
	}

	vm := goja.New()
	if err := prepareJSEnvironment(vm); err != nil {
		return TryRunResult{}, err
	}
	if err := vm.Set("input", data.Input); err != nil {
		return TryRunResult{}, fmt.Errorf("setting input global: %w", err)
	}
	if err := bindHostAPI(ctx, vm, data.Host); err != nil {
		return TryRunResult{}, err
	}

	// A script with no host.* calls (a pure CPU-bound loop, say) never
	// otherwise observes ctx; vm.Interrupt makes the next bytecode
	// instruction the VM executes raise instead, so cancellation still
	// bounds a script that never touches the Host API.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()

	var last goja.Value
	for _, scriptFile := range def.Scripts {
		content, ok, err := data.Files.TryGetText(scriptFile)
		if err != nil {
			return TryRunResult{}, fmt.Errorf("reading script %q: %w", scriptFile, err)
		}
		if !ok {
			return TryRunResult{}, fmt.Errorf("script %q referenced by %s not found", scriptFile, jsDefinitionFile)
		}
		last, err = vm.RunString(content)
		if err != nil {
			return TryRunResult{}, fmt.Errorf("running script %q: %w", scriptFile, err)
		}
	}

	output, err := jsValueToJSON(last)
	if err != nil {
		return TryRunResult{}, fmt.Errorf("converting output: %w", err)
	}
	return Ran(RunResult{Output: output}), nil
}

// prepareJSEnvironment installs a console stub and disables timers, so
// scripts cannot observe wall-clock scheduling or register real
// callbacks.
func prepareJSEnvironment(vm *goja.Runtime) error {
	_, err := vm.RunString(`
		var console = { trace: function(){}, debug: function(){}, log: function(){}, warn: function(){}, error: function(){} };
		var setTimeout = function(){};
		var clearTimeout = function(){};
	`)
	return err
}

func jsValueToJSON(v goja.Value) (any, error) {
	if v == nil {
		return nil, nil
	}
	exported := v.Export()
	data, err := json.Marshal(exported)
	if err != nil {
		return nil, err
	}
	var result any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	return result, nil
}
