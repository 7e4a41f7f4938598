// Package hostapi implements the Host API: the capability-gated
// operations sandboxed component code may invoke on
// the host — fetch, file reads, env lookups, font resolution, and
// synchronous callouts into other components — with every operation
// checked against the call chain's permissions before it runs.
package hostapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/slipwayhq/slipway/internal/permission"
)

// FetchKind selects how a fetch response body is returned to the
// caller: decoded text, or raw bytes.
type FetchKind int

const (
	FetchText FetchKind = iota
	FetchBin
)

// RequestError is returned to sandboxed code (never panicked) for
// network failures and timeouts.
type RequestError struct {
	Message  string
	HasResp  bool
	Status   int
}

func (e *RequestError) Error() string { return e.Message }

// FetchResult is fetch's successful return shape.
type FetchResult struct {
	Status  int
	Headers map[string][]string
	Body    []byte
	Text    string
}

// FontMatch is resolve_font's successful return shape.
type FontMatch struct {
	Family string
	Data   []byte
}

// FontResolver looks up font data for a family name. A single
// process-wide implementation is expected to be shared across Hosts.
type FontResolver interface {
	Resolve(family string) (FontMatch, bool, error)
}

// CalloutFiles reads files belonging to a callout target, by handle.
type CalloutFiles interface {
	TryGetText(handle, path string) (string, bool, error)
	TryGetBin(handle, path string) (data []byte, ok bool, err error)
}

// CalloutDispatcher runs a synchronous callout to another component.
// It is injected rather than imported directly, since the concrete
// implementation lives in
// internal/rigrun and internal/runner, which both depend on this
// package — importing them here would be a cycle.
type CalloutDispatcher func(ctx context.Context, chain *permission.CallChain, handle string, inputJSON []byte) (outputJSON []byte, err error)

// Logger forwards trace/debug/info/warn/error calls from sandboxed
// code, and records every other Host API operation, to the host's
// observability pipeline.
type Logger interface {
	Log(level, handle, message string)
	LogCall(handle, operation, detail string)
}

// Host is the per-component-invocation Host API surface: bound to one
// call chain link, so every gated operation checks against exactly the
// chain in effect for that invocation.
type Host struct {
	Chain          *permission.CallChain
	HTTPClient     *http.Client
	Fonts          FontResolver
	Files          CalloutFiles
	Dispatch       CalloutDispatcher
	Log            Logger
	HandleTrail    string // for log_* attribution
	DefaultTimeout time.Duration
}

// New constructs a Host bound to chain, defaulting HTTPClient to a
// client with no built-in timeout (fetch's own timeout parameter, or
// defaultTimeout when the call omits one, governs instead).
func New(chain *permission.CallChain, fonts FontResolver, files CalloutFiles, dispatch CalloutDispatcher, logger Logger, handleTrail string, defaultTimeout time.Duration) *Host {
	return &Host{
		Chain:          chain,
		HTTPClient:     &http.Client{},
		Fonts:          fonts,
		Files:          files,
		Dispatch:       dispatch,
		Log:            logger,
		HandleTrail:    handleTrail,
		DefaultTimeout: defaultTimeout,
	}
}

// Fetch performs an HTTP(S) or file: fetch. A timeout of zero falls
// back to h.DefaultTimeout; that is itself zero means no deadline.
func (h *Host) Fetch(ctx context.Context, url, method string, headers map[string]string, body []byte, timeout time.Duration, kind FetchKind) (*FetchResult, error) {
	if err := permission.EnsurePermissions(h.Chain, fmt.Sprintf("fetch url %s", url), permission.CheckFetchURL(url)); err != nil {
		return nil, err
	}
	h.logCall("fetch", method+" "+url)

	if strings.HasPrefix(url, "file:") {
		return h.fetchFile(url, kind)
	}

	if timeout <= 0 {
		timeout = h.DefaultTimeout
	}

	reqCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var bodyReader io.Reader
	if len(body) > 0 {
		bodyReader = strings.NewReader(string(body))
	}
	req, err := http.NewRequestWithContext(reqCtx, method, url, bodyReader)
	if err != nil {
		return nil, &RequestError{Message: err.Error()}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := h.HTTPClient.Do(req)
	if err != nil {
		return nil, &RequestError{Message: err.Error()}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RequestError{Message: err.Error(), HasResp: true, Status: resp.StatusCode}
	}

	result := &FetchResult{Status: resp.StatusCode, Headers: resp.Header, Body: data}
	if kind == FetchText {
		result.Text = string(data)
	}
	return result, nil
}

func (h *Host) fetchFile(url string, kind FetchKind) (*FetchResult, error) {
	path := strings.TrimPrefix(url, "file:")
	if err := permission.EnsurePermissions(h.Chain, fmt.Sprintf("read file %s", path), permission.CheckReadFile(path)); err != nil {
		return nil, err
	}
	h.logCall("read_file", path)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &RequestError{Message: err.Error()}
	}
	result := &FetchResult{Status: 200, Body: data}
	if kind == FetchText {
		result.Text = string(data)
	}
	return result, nil
}

// LoadText reads path from the component identified by handle in the
// current callout map.
func (h *Host) LoadText(handle, path string) (string, bool, error) {
	if err := permission.EnsurePermissions(h.Chain, fmt.Sprintf("read file %s from %s", path, handle), permission.CheckReadFile(path)); err != nil {
		return "", false, err
	}
	h.logCall("load_text", handle+" "+path)
	return h.Files.TryGetText(handle, path)
}

// LoadBin reads path as raw bytes from the component identified by
// handle.
func (h *Host) LoadBin(handle, path string) ([]byte, bool, error) {
	if err := permission.EnsurePermissions(h.Chain, fmt.Sprintf("read file %s from %s", path, handle), permission.CheckReadFile(path)); err != nil {
		return nil, false, err
	}
	h.logCall("load_bin", handle+" "+path)
	return h.Files.TryGetBin(handle, path)
}

// Env reads an environment variable, gated by CheckReadEnv. The
// variable's value never reaches the trace log, only its name.
func (h *Host) Env(name string) (string, bool, error) {
	if err := permission.EnsurePermissions(h.Chain, fmt.Sprintf("read env %s", name), permission.CheckReadEnv(name)); err != nil {
		return "", false, err
	}
	h.logCall("env", name)
	value, ok := os.LookupEnv(name)
	return value, ok, nil
}

// ResolveFont parses a comma-separated font stack and returns the
// first family that resolves.
func (h *Host) ResolveFont(stack string) (*FontMatch, error) {
	families := strings.Split(stack, ",")
	for _, family := range families {
		family = strings.TrimSpace(family)
		if family == "" {
			continue
		}
		if err := permission.EnsurePermissions(h.Chain, fmt.Sprintf("resolve font %s", family), permission.CheckResolveFont(family)); err != nil {
			continue
		}
		match, ok, err := h.Fonts.Resolve(family)
		if err != nil {
			return nil, err
		}
		if ok {
			return &match, nil
		}
	}
	return nil, nil
}

// Run performs a synchronous callout to another component. The
// permission-chain push/validate/dispatch/validate/pop sequence
// happens inside Dispatch, which owns the schema and runner-dispatch
// machinery this package must not import.
func (h *Host) Run(ctx context.Context, handle string, inputJSON []byte) ([]byte, error) {
	if h.Dispatch == nil {
		return nil, fmt.Errorf("callout dispatch is not configured")
	}
	h.logCall("run", handle)
	return h.Dispatch(ctx, h.Chain, handle, inputJSON)
}

// LogTrace, LogDebug, LogInfo, LogWarn, LogError forward to the
// configured Logger.
func (h *Host) LogTrace(message string) { h.log("trace", message) }
func (h *Host) LogDebug(message string) { h.log("debug", message) }
func (h *Host) LogInfo(message string)  { h.log("info", message) }
func (h *Host) LogWarn(message string)  { h.log("warn", message) }
func (h *Host) LogError(message string) { h.log("error", message) }

func (h *Host) log(level, message string) {
	if h.Log == nil {
		return
	}
	h.Log.Log(level, h.HandleTrail, message)
}

// logCall records a non-log_* Host API operation (fetch, load_text,
// load_bin, env, read_file, run) against h.HandleTrail.
func (h *Host) logCall(operation, detail string) {
	if h.Log == nil {
		return
	}
	h.Log.LogCall(h.HandleTrail, operation, detail)
}
