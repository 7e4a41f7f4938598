package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/dop251/goja"

	"github.com/slipwayhq/slipway/internal/hostapi"
)

// bindHostAPI exposes host (when configured) to a goja VM as a global
// "host" object with one method per Host API operation, letting
// JavaScript components fetch, read files, read env vars, resolve
// fonts, call out to other components, and log, all gated by the same
// permission checks Go callers go through. A nil host (e.g. in tests
// that don't need it) leaves "host" undefined.
func bindHostAPI(ctx context.Context, vm *goja.Runtime, host *hostapi.Host) error {
	if host == nil {
		return nil
	}

	obj := vm.NewObject()

	set := func(name string, fn any) error {
		return obj.Set(name, fn)
	}

	if err := set("fetch", func(url, method string, headers map[string]string, body string, timeoutMs int64, binary bool) (map[string]any, error) {
		kind := hostapi.FetchText
		if binary {
			kind = hostapi.FetchBin
		}
		result, err := host.Fetch(ctx, url, method, headers, []byte(body), time.Duration(timeoutMs)*time.Millisecond, kind)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"status":  result.Status,
			"headers": result.Headers,
			"body":    result.Body,
			"text":    result.Text,
		}, nil
	}); err != nil {
		return fmt.Errorf("binding host.fetch: %w", err)
	}

	if err := set("loadText", func(handle, path string) (map[string]any, error) {
		text, ok, err := host.LoadText(handle, path)
		if err != nil {
			return nil, err
		}
		return map[string]any{"ok": ok, "text": text}, nil
	}); err != nil {
		return fmt.Errorf("binding host.loadText: %w", err)
	}

	if err := set("loadBin", func(handle, path string) (map[string]any, error) {
		data, ok, err := host.LoadBin(handle, path)
		if err != nil {
			return nil, err
		}
		return map[string]any{"ok": ok, "data": data}, nil
	}); err != nil {
		return fmt.Errorf("binding host.loadBin: %w", err)
	}

	if err := set("env", func(name string) (map[string]any, error) {
		value, ok, err := host.Env(name)
		if err != nil {
			return nil, err
		}
		return map[string]any{"ok": ok, "value": value}, nil
	}); err != nil {
		return fmt.Errorf("binding host.env: %w", err)
	}

	if err := set("resolveFont", func(stack string) (map[string]any, error) {
		match, err := host.ResolveFont(stack)
		if err != nil {
			return nil, err
		}
		if match == nil {
			return nil, nil
		}
		return map[string]any{"family": match.Family, "data": match.Data}, nil
	}); err != nil {
		return fmt.Errorf("binding host.resolveFont: %w", err)
	}

	if err := set("run", func(handle string, inputJSON string) (string, error) {
		out, err := host.Run(ctx, handle, []byte(inputJSON))
		if err != nil {
			return "", err
		}
		return string(out), nil
	}); err != nil {
		return fmt.Errorf("binding host.run: %w", err)
	}

	if err := set("logTrace", func(message string) { host.LogTrace(message) }); err != nil {
		return err
	}
	if err := set("logDebug", func(message string) { host.LogDebug(message) }); err != nil {
		return err
	}
	if err := set("logInfo", func(message string) { host.LogInfo(message) }); err != nil {
		return err
	}
	if err := set("logWarn", func(message string) { host.LogWarn(message) }); err != nil {
		return err
	}
	if err := set("logError", func(message string) { host.LogError(message) }); err != nil {
		return err
	}

	return vm.Set("host", obj)
}
