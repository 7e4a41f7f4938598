// Package config parses the engine's own YAML configuration document:
// registry URL templates, cache/base directories, default timeouts,
// and max concurrent components. Rig and Component bodies stay strict
// wire-format JSON; this is the one place the engine itself reaches
// for YAML, parsed in a strict, helpful-error style.
package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidationError reports a problem found while loading or validating
// an engine configuration file, with enough location context for a
// human to fix it without re-reading the whole document.
type ValidationError struct {
	File       string
	Line       int
	Column     int
	Field      string
	Reason     string
	Suggestion string
}

func (e *ValidationError) Error() string {
	var sb strings.Builder
	if e.File != "" {
		sb.WriteString(e.File)
		if e.Line > 0 {
			sb.WriteString(fmt.Sprintf(":%d", e.Line))
			if e.Column > 0 {
				sb.WriteString(fmt.Sprintf(":%d", e.Column))
			}
		}
		sb.WriteString(": ")
	}
	if e.Field != "" {
		sb.WriteString(e.Field)
		sb.WriteString(": ")
	}
	sb.WriteString(e.Reason)
	if e.Suggestion != "" {
		sb.WriteString("\n  Hint: ")
		sb.WriteString(e.Suggestion)
	}
	return sb.String()
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) WithFile(file string) *ValidationError {
	e.File = file
	return e
}

func (e *ValidationError) WithSuggestion(suggestion string) *ValidationError {
	e.Suggestion = suggestion
	return e
}

// Duration wraps time.Duration to accept YAML duration strings
// ("30s", "2m") the way encoding/json already does for stdlib types
// with a custom UnmarshalJSON; yaml.v3 has no such built-in support.
type Duration time.Duration

func (d Duration) AsDuration() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("decoding duration: %w", err)
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Config is the engine's own configuration, independent of any single
// rig or component.
type Config struct {
	// RegistryURLTemplates are formatted with publisher/name/version to
	// resolve a Registry reference to a download URL, tried in order.
	RegistryURLTemplates []string `yaml:"registry_url_templates"`
	// CacheDir holds downloaded and extracted component tarballs, and
	// the sqlite download-cache index.
	CacheDir string `yaml:"cache_dir"`
	// BaseDir anchors relative Local references.
	BaseDir string `yaml:"base_dir"`
	// DefaultFetchTimeout bounds a host API fetch call with no
	// explicit timeout of its own.
	DefaultFetchTimeout Duration `yaml:"default_fetch_timeout"`
	// MaxConcurrentComponents caps how many ready components the Rig
	// Runner executes at once within a concurrency group; zero means
	// unbounded (limited only by the group's own size).
	MaxConcurrentComponents int `yaml:"max_concurrent_components"`
	// TraceDir holds the audit trace log files; empty disables audit
	// logging.
	TraceDir string `yaml:"trace_dir"`
	// FontDir holds .ttf/.otf files the Host API's resolve_font can
	// match against; a missing or empty directory simply yields no
	// matches rather than an error.
	FontDir string `yaml:"font_dir"`
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	return Config{
		CacheDir:                ".slipway/cache",
		BaseDir:                 ".",
		DefaultFetchTimeout:     Duration(30 * time.Second),
		MaxConcurrentComponents: 0,
		TraceDir:                ".slipway/traces",
		FontDir:                 ".slipway/fonts",
	}
}

// Loader reads and validates engine configuration files.
type Loader interface {
	Load(path string) (*Config, error)
}

type yamlLoader struct{}

func NewLoader() Loader { return &yamlLoader{} }

func (l *yamlLoader) Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &ValidationError{
				File:       path,
				Reason:     "configuration file not found",
				Suggestion: "Run 'slipway validate' with --config pointing at an existing file, or omit --config to use defaults",
			}
		}
		return nil, fmt.Errorf("opening configuration file: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("reading configuration file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, parseYAMLError(path, err)
	}

	if errs := Validate(&cfg); len(errs) > 0 {
		return nil, errs[0].WithFile(path)
	}

	return &cfg, nil
}

func parseYAMLError(file string, err error) error {
	errMsg := err.Error()
	if strings.Contains(errMsg, "line") {
		return &ValidationError{
			File:       file,
			Reason:     fmt.Sprintf("YAML syntax error: %s", errMsg),
			Suggestion: "Check for incorrect indentation, missing colons, or invalid characters",
		}
	}
	return &ValidationError{
		File:       file,
		Reason:     fmt.Sprintf("failed to parse YAML: %s", errMsg),
		Suggestion: "Ensure the file is valid YAML with correct indentation",
	}
}

// Validate checks field-level invariants that yaml.Unmarshal alone
// can't enforce.
func Validate(cfg *Config) []*ValidationError {
	var errs []*ValidationError
	if cfg.MaxConcurrentComponents < 0 {
		errs = append(errs, &ValidationError{
			Field:      "max_concurrent_components",
			Reason:     "must not be negative",
			Suggestion: "Remove the field to use the default (unbounded), or set a positive integer",
		})
	}
	if cfg.DefaultFetchTimeout.AsDuration() < 0 {
		errs = append(errs, &ValidationError{
			Field:      "default_fetch_timeout",
			Reason:     "must not be negative",
			Suggestion: "Use a duration like \"30s\" or remove the field to use the default",
		})
	}
	if cfg.CacheDir == "" {
		errs = append(errs, NewValidationError("cache_dir", "must not be empty"))
	}
	return errs
}
