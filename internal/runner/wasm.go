package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// wasmComponentFile is the conventional filename for a WASM
// component's compiled module.
const wasmComponentFile = "slipway_component.wasm"

// WASMRunner executes components compiled to WebAssembly using wazero,
// a pure-Go runtime. Deny-by-default per the WASI sandbox pattern:
// only stdin/stdout/stderr are wired, no filesystem, no network, no
// environment, no clock or random source — the module receives its
// input as JSON on stdin and must write its JSON output to stdout.
type WASMRunner struct {
	MemoryLimitPages uint32 // 0 means wazero's default
}

func (WASMRunner) Identifier() string { return "wasm" }

func (r WASMRunner) Run(ctx context.Context, data ComponentExecutionData) (TryRunResult, error) {
	if data.Files == nil {
		return CannotRun(), nil
	}
	wasmBytes, ok, err := data.Files.TryGetBin(wasmComponentFile)
	if err != nil {
		return TryRunResult{}, fmt.Errorf("reading %s: %w", wasmComponentFile, err)
	}
	if !ok {
		return CannotRun(), nil
	}

	inputJSON, err := json.Marshal(data.Input)
	if err != nil {
		return TryRunResult{}, fmt.Errorf("marshaling input: %w", err)
	}

	runtimeCfg := wazero.NewRuntimeConfig()
	if r.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(r.MemoryLimitPages)
	}
	rt := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)
	defer rt.Close(ctx)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		return TryRunResult{}, fmt.Errorf("instantiating WASI: %w", err)
	}

	var stdout, stderr bytes.Buffer
	modCfg := wazero.NewModuleConfig().
		WithName(data.Handle).
		WithStdin(bytes.NewReader(inputJSON)).
		WithStdout(&stdout).
		WithStderr(&stderr).
		WithStartFunctions("_start")

	compiled, err := rt.CompileModule(ctx, wasmBytes)
	if err != nil {
		return TryRunResult{}, fmt.Errorf("compiling %s: %w", wasmComponentFile, err)
	}
	defer compiled.Close(ctx)

	mod, err := rt.InstantiateModule(ctx, compiled, modCfg)
	if err != nil {
		if ctx.Err() != nil {
			return TryRunResult{}, fmt.Errorf("execution timed out: %w", ctx.Err())
		}
		return TryRunResult{}, fmt.Errorf("instantiating module: %w (stderr: %s)", err, stderr.String())
	}
	defer mod.Close(ctx)

	var output any
	if err := json.Unmarshal(stdout.Bytes(), &output); err != nil {
		return TryRunResult{}, fmt.Errorf("module produced invalid JSON output: %w (stderr: %s)", err, stderr.String())
	}

	return Ran(RunResult{Output: output}), nil
}
