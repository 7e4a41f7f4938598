package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slipwayhq/slipway/internal/config"
	"github.com/slipwayhq/slipway/internal/permission"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.CacheDir = t.TempDir()
	cfg.TraceDir = t.TempDir()
	cfg.FontDir = t.TempDir()
	cfg.BaseDir = t.TempDir()
	return cfg
}

func TestNewAndCloseReleasesResources(t *testing.T) {
	e, err := New(testConfig(t), nil)
	require.NoError(t, err)
	require.NoError(t, e.Close())
}

func TestValidateParsesAndPrimesCache(t *testing.T) {
	e, err := New(testConfig(t), nil)
	require.NoError(t, err)
	defer e.Close()

	rig, c, err := e.Validate(context.Background(), []byte(`{
		"rigging": {"a": {"component": "pass", "input": {}}}
	}`))
	require.NoError(t, err)
	assert.Len(t, rig.Rigging, 1)
	assert.NotNil(t, c)
}

func TestValidateRejectsMalformedRig(t *testing.T) {
	e, err := New(testConfig(t), nil)
	require.NoError(t, err)
	defer e.Close()

	_, _, err = e.Validate(context.Background(), []byte(`not json`))
	require.Error(t, err)
}

func TestRunExecutesPassThroughRig(t *testing.T) {
	e, err := New(testConfig(t), nil)
	require.NoError(t, err)
	defer e.Close()

	state, err := e.Run(context.Background(), []byte(`{
		"rigging": {"a": {"component": "pass", "input": {"greeting": "$.rig.context.greeting"}}}
	}`), map[string]any{"greeting": "hi"}, []permission.Permission{permission.All()}, nil)
	require.NoError(t, err)

	out, ok := state.ComponentStates["a"].Output()
	require.True(t, ok)
	assert.Equal(t, map[string]any{"greeting": "hi"}, out)
}

func TestRunDeniesWithoutPermissions(t *testing.T) {
	cfg := testConfig(t)
	dir := filepath.Join(cfg.BaseDir, "thing")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "slipway_component.json"),
		[]byte(`{"publisher":"acme","name":"thing","version":"1.0.0","input":{},"output":{}}`), 0o644))

	e, err := New(cfg, nil)
	require.NoError(t, err)
	defer e.Close()

	_, err = e.Run(context.Background(), []byte(`{
		"rigging": {"a": {"component": "file:thing"}}
	}`), nil, nil, nil)
	require.Error(t, err)
	var denied *permission.PermissionDeniedError
	assert.ErrorAs(t, err, &denied)
}
