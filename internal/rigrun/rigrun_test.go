package rigrun

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slipwayhq/slipway/internal/cache"
	"github.com/slipwayhq/slipway/internal/loader"
	"github.com/slipwayhq/slipway/internal/permission"
	"github.com/slipwayhq/slipway/internal/rigging"
	"github.com/slipwayhq/slipway/internal/runner"
)

func writeComponent(t *testing.T, baseDir, name string, files map[string]string) {
	t.Helper()
	dir := filepath.Join(baseDir, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for filename, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, filename), []byte(content), 0o644))
	}
}

func allowAllChain() *permission.CallChain {
	return permission.Root().Push(permission.Link{
		Permissions: permission.Permissions{Allow: []permission.Permission{permission.All()}},
	})
}

func defaultRunners() []runner.ComponentRunner {
	return []runner.ComponentRunner{runner.SpecialRunner{}, runner.JSRunner{}}
}

func TestRunExecutesPassThroughComponent(t *testing.T) {
	dir := t.TempDir()
	rig, err := rigging.ParseRig([]byte(`{
		"rigging": {
			"a": {"component": "pass", "input": {"greeting": "$.rig.context.greeting"}}
		}
	}`))
	require.NoError(t, err)

	ld := loader.New(loader.Config{BaseDir: dir})
	c, err := cache.Primed(context.Background(), rig, ld)
	require.NoError(t, err)

	r := New(Config{Cache: c, Runners: defaultRunners()})
	state, err := r.Run(context.Background(), "test", rig, map[string]any{"greeting": "hi"}, allowAllChain())
	require.NoError(t, err)

	out, ok := state.ComponentStates["a"].Output()
	require.True(t, ok)
	assert.Equal(t, map[string]any{"greeting": "hi"}, out)
}

func TestRunSurfacesPermissionDeniedForDisallowedReference(t *testing.T) {
	dir := t.TempDir()
	writeComponent(t, dir, "fetcher", map[string]string{
		"slipway_component.json": `{"publisher":"acme","name":"fetcher","version":"1.0.0","input":{},"output":{}}`,
	})

	rig, err := rigging.ParseRig([]byte(`{"rigging": {"a": {"component": "file:fetcher"}}}`))
	require.NoError(t, err)

	ld := loader.New(loader.Config{BaseDir: dir})
	c, err := cache.Primed(context.Background(), rig, ld)
	require.NoError(t, err)

	r := New(Config{Cache: c, Runners: defaultRunners()})

	denyChain := permission.Root().Push(permission.Link{
		Permissions: permission.Permissions{Deny: []permission.Permission{permission.All()}},
	})
	_, err = r.Run(context.Background(), "test", rig, nil, denyChain)
	require.Error(t, err)
}

func TestRunDispatchesCalloutThroughHostAPI(t *testing.T) {
	dir := t.TempDir()
	writeComponent(t, dir, "caller", map[string]string{
		"slipway_component.json": `{"publisher":"acme","name":"caller","version":"1.0.0","input":{},"output":{}}`,
		"slipway_js_runner.json": `{"scripts":["main.js"]}`,
		"main.js":                `({result: JSON.parse(host.run("inner", "{\"value\":5}")).value})`,
	})

	rig, err := rigging.ParseRig([]byte(`{
		"rigging": {
			"a": {
				"component": "file:caller",
				"callouts": {"inner": {"component": "pass"}}
			}
		}
	}`))
	require.NoError(t, err)

	ld := loader.New(loader.Config{BaseDir: dir})
	c, err := cache.Primed(context.Background(), rig, ld)
	require.NoError(t, err)

	r := New(Config{Cache: c, Runners: defaultRunners()})
	state, err := r.Run(context.Background(), "test", rig, nil, allowAllChain())
	require.NoError(t, err)

	out, ok := state.ComponentStates["a"].Output()
	require.True(t, ok)
	assert.Equal(t, map[string]any{"result": 5.0}, out)
}

func TestRunDispatchesCalloutDeclaredOnlyByManifest(t *testing.T) {
	dir := t.TempDir()
	writeComponent(t, dir, "caller", map[string]string{
		"slipway_component.json": `{"publisher":"acme","name":"caller","version":"1.0.0","input":{},"output":{},"callouts":{"inner":"pass"}}`,
		"slipway_js_runner.json": `{"scripts":["main.js"]}`,
		"main.js":                `({result: JSON.parse(host.run("inner", "{\"value\":5}")).value})`,
	})

	rig, err := rigging.ParseRig([]byte(`{"rigging": {"a": {"component": "file:caller"}}}`))
	require.NoError(t, err)

	ld := loader.New(loader.Config{BaseDir: dir})
	c, err := cache.Primed(context.Background(), rig, ld)
	require.NoError(t, err)

	r := New(Config{Cache: c, Runners: defaultRunners()})
	state, err := r.Run(context.Background(), "test", rig, nil, allowAllChain())
	require.NoError(t, err)

	out, ok := state.ComponentStates["a"].Output()
	require.True(t, ok)
	assert.Equal(t, map[string]any{"result": 5.0}, out)
}

func TestRunRigLevelCalloutOverridesManifestCallout(t *testing.T) {
	dir := t.TempDir()
	writeComponent(t, dir, "caller", map[string]string{
		"slipway_component.json": `{"publisher":"acme","name":"caller","version":"1.0.0","input":{},"output":{},"callouts":{"inner":"pass"}}`,
		"slipway_js_runner.json": `{"scripts":["main.js"]}`,
		"main.js":                `({result: JSON.parse(host.run("inner", "{\"value\":5}")).value})`,
	})

	rig, err := rigging.ParseRig([]byte(`{
		"rigging": {
			"a": {
				"component": "file:caller",
				"callouts": {"inner": {"component": "sink"}}
			}
		}
	}`))
	require.NoError(t, err)

	ld := loader.New(loader.Config{BaseDir: dir})
	c, err := cache.Primed(context.Background(), rig, ld)
	require.NoError(t, err)

	r := New(Config{Cache: c, Runners: defaultRunners()})
	state, err := r.Run(context.Background(), "test", rig, nil, allowAllChain())
	require.NoError(t, err)

	out, ok := state.ComponentStates["a"].Output()
	require.True(t, ok)
	// The rig-level override redirects "inner" to the discarding sink,
	// so the manifest's own "pass" declaration for the same key never
	// runs: the passed-through value never comes back.
	assert.Equal(t, map[string]any{"result": nil}, out)
}

func TestRunRejectsUndeclaredCallout(t *testing.T) {
	dir := t.TempDir()
	writeComponent(t, dir, "caller", map[string]string{
		"slipway_component.json": `{"publisher":"acme","name":"caller","version":"1.0.0","input":{},"output":{}}`,
		"slipway_js_runner.json": `{"scripts":["main.js"]}`,
		"main.js":                `host.run("missing", "{}")`,
	})

	rig, err := rigging.ParseRig([]byte(`{"rigging": {"a": {"component": "file:caller"}}}`))
	require.NoError(t, err)

	ld := loader.New(loader.Config{BaseDir: dir})
	c, err := cache.Primed(context.Background(), rig, ld)
	require.NoError(t, err)

	r := New(Config{Cache: c, Runners: defaultRunners()})
	_, err = r.Run(context.Background(), "test", rig, nil, allowAllChain())
	require.Error(t, err)
}
