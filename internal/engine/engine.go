// Package engine assembles every layer of the Slipway Rig Execution
// Engine — configuration, the component loader and cache, the runner
// chain, audit logging, event emission, and the Rig Runner — into one
// entry point a CLI (or any other host process) can call.
package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/slipwayhq/slipway/internal/audit"
	"github.com/slipwayhq/slipway/internal/cache"
	"github.com/slipwayhq/slipway/internal/cachedb"
	"github.com/slipwayhq/slipway/internal/config"
	"github.com/slipwayhq/slipway/internal/event"
	"github.com/slipwayhq/slipway/internal/execstate"
	"github.com/slipwayhq/slipway/internal/fonts"
	"github.com/slipwayhq/slipway/internal/hostapi"
	"github.com/slipwayhq/slipway/internal/loader"
	"github.com/slipwayhq/slipway/internal/permission"
	"github.com/slipwayhq/slipway/internal/rigging"
	"github.com/slipwayhq/slipway/internal/rigrun"
	"github.com/slipwayhq/slipway/internal/runner"
	"github.com/slipwayhq/slipway/internal/runrecord"
)

// Engine bundles the long-lived parts of a running configuration: the
// loader, cache index, and font registry all outlive any single rig
// run.
type Engine struct {
	cfg      config.Config
	loader   loader.Loader
	cacheIdx *cachedb.Index
	fonts    *fonts.Registry
	logger   *audit.TraceLogger
	emitter  event.Emitter
}

// New wires an Engine from an already-loaded configuration. Callers
// that want file-backed config should go through config.NewLoader()
// first; New itself never touches a config file.
func New(cfg config.Config, emitter event.Emitter) (*Engine, error) {
	if emitter == nil {
		emitter = event.NoopEmitter{}
	}

	var cacheIdx *cachedb.Index
	if cfg.CacheDir != "" {
		if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
		idx, err := cachedb.Open(filepath.Join(cfg.CacheDir, "index.db"))
		if err != nil {
			return nil, fmt.Errorf("opening download cache index: %w", err)
		}
		cacheIdx = idx
	}

	var auditLogger *audit.TraceLogger
	if cfg.TraceDir != "" {
		l, err := audit.NewTraceLogger(cfg.TraceDir)
		if err != nil {
			if cacheIdx != nil {
				_ = cacheIdx.Close()
			}
			return nil, fmt.Errorf("opening audit trace logger: %w", err)
		}
		auditLogger = l
	}

	ld := loader.New(loader.Config{
		RegistryURLTemplates: cfg.RegistryURLTemplates,
		CacheDir:             cfg.CacheDir,
		BaseDir:              cfg.BaseDir,
		CacheIndex:           cacheIdx,
	})

	e := &Engine{
		cfg:      cfg,
		loader:   ld,
		cacheIdx: cacheIdx,
		fonts:    fonts.New(cfg.FontDir),
		logger:   auditLogger,
		emitter:  emitter,
	}
	return e, nil
}

// Close releases the engine's long-lived resources (cache index,
// audit trace file). Safe to call on a zero-value-free Engine built
// only via New.
func (e *Engine) Close() error {
	var firstErr error
	if e.logger != nil {
		if err := e.logger.Close(); err != nil {
			firstErr = err
		}
	}
	if e.cacheIdx != nil {
		if err := e.cacheIdx.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Validate parses rigDoc and primes the cache against it, surfacing
// every parse/load/schema error without executing anything — the
// engine half of `slipway validate`.
func (e *Engine) Validate(ctx context.Context, rigDoc []byte) (*rigging.Rig, cache.ComponentCache, error) {
	rig, err := rigging.ParseRig(rigDoc)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing rig: %w", err)
	}

	e.emitter.Emit(event.Event{State: event.StateCachePriming, Message: "priming component cache"})
	primed, err := cache.Primed(ctx, rig, e.loader)
	if err != nil {
		return nil, nil, fmt.Errorf("priming cache: %w", err)
	}

	if _, err := execstate.New(rig, nil, primed); err != nil {
		return nil, nil, fmt.Errorf("validating rig topology: %w", err)
	}

	return rig, primed, nil
}

// Run parses rigDoc, primes the cache, and executes the rig to
// completion under a root call chain built from allow/deny, the
// engine half of `slipway run`.
func (e *Engine) Run(ctx context.Context, rigDoc []byte, rigAdditionalContext any, allow, deny []permission.Permission) (*execstate.RigExecutionState, error) {
	rig, primed, err := e.Validate(ctx, rigDoc)
	if err != nil {
		return nil, err
	}

	record := runrecord.NewRecorder()

	var logger hostapi.Logger
	if e.logger != nil {
		logger = audit.HostAPIAdapter{Logger: e.logger}
	}

	// rr is wired into its own runner chain's FragmentRunner below; the
	// closure captures rr by reference, so it sees the real value by
	// the time a fragment component actually runs.
	var rr *rigrun.RigRunner
	runRig := func(ctx context.Context, rig *rigging.Rig, chain *permission.CallChain) (map[string]any, error) {
		return rr.AsFragmentRunRig()(ctx, rig, chain)
	}

	rr = rigrun.New(rigrun.Config{
		Cache:                   primed,
		Runners:                 defaultRunners(runRig),
		Emitter:                 e.emitter,
		Record:                  record,
		Fonts:                   e.fonts,
		Logger:                  logger,
		MaxConcurrentComponents: e.cfg.MaxConcurrentComponents,
		DefaultFetchTimeout:     e.cfg.DefaultFetchTimeout.AsDuration(),
	})

	chain := permission.Root().Push(permission.Link{
		Permissions: permission.Permissions{Allow: allow, Deny: deny},
	})

	runID := uuid.NewString()
	return rr.Run(ctx, runID, rig, rigAdditionalContext, chain)
}

// defaultRunners builds the Runner Dispatch chain: special built-ins
// first, then fragments (recursing back into the owning
// RigRunner via runRig), then the two opaque-component runners.
func defaultRunners(runRig runner.RunRigFunc) []runner.ComponentRunner {
	return []runner.ComponentRunner{
		runner.SpecialRunner{},
		runner.FragmentRunner{RunRig: runRig},
		runner.WASMRunner{},
		runner.JSRunner{},
	}
}
