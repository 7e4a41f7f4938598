// Package audit implements credential-scrubbing trace logging for
// Host API calls: every fetch, file read, env lookup, and
// callout a component makes, appended to a per-run trace file with
// anything that looks like a secret redacted before it ever touches
// disk. Calls are attributed by handle-trail rather than pipeline/step
// IDs, matching the Host API's own call-chain addressing.
package audit

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Logger records Host API calls for later inspection.
type Logger interface {
	LogHostCall(trail, operation, detail string) error
	Close() error
}

// TraceLogger appends scrubbed lines to a per-run trace file under
// traceDir.
type TraceLogger struct {
	traceDir  string
	credRegex *regexp.Regexp
	file      *os.File
}

var credentialPatterns = []string{
	`API[_-]?KEY`,
	`TOKEN`,
	`SECRET`,
	`PASSWORD`,
	`CREDENTIAL`,
	`AUTH`,
	`PRIVATE[_-]?KEY`,
	`ACCESS[_-]?KEY`,
}

// NewTraceLogger creates (or appends to) a trace file under traceDir,
// named for the moment the run started.
func NewTraceLogger(traceDir string) (*TraceLogger, error) {
	// [\w-]* right after the keyword absorbs the rest of a compound
	// identifier — "_KEY" in STRIPE_SECRET_KEY, "ization" in
	// Authorization — before a separator is required, rather than
	// either (a) requiring a word boundary immediately after the bare
	// keyword, which rejects STRIPE_SECRET_KEY outright since "_" right
	// after SECRET is itself a word character, or (b) letting an
	// optional separator match zero characters, which let the keyword's
	// own trailing letters ("orization") stand in for the separator AND
	// value, completing the match early and leaving the real value
	// after the header's ": " untouched. Requiring at least one
	// separator character (the trailing "+") forces the match to run
	// past the whole identifier before it can close. No boundary is
	// required before the keyword: real secret names are routinely
	// prefixed with a word character ("GITHUB_TOKEN", "AWS_SECRET_ACCESS_KEY").
	// The optional bearer/basic scheme prefix absorbs the auth-scheme
	// word before the token it introduces, since that token is
	// separated from it by whitespace rather than the [\s:=]+
	// separator. The value class includes "/" too: AWS secret keys and
	// plain base64 routinely contain it, and stopping at the first
	// slash left everything after it (often most of the credential)
	// unredacted.
	pattern := `(?i)(?:` + strings.Join(credentialPatterns, `|`) + `)[\w-]*[\s:=]+(?:(?:bearer|basic)\s+)?[\w\-./+=]+`
	credRegex, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(traceDir, 0o755); err != nil {
		return nil, err
	}

	timestamp := time.Now().Format("20060102-150405")
	tracePath := filepath.Join(traceDir, "trace-"+timestamp+".log")
	file, err := os.OpenFile(tracePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	return &TraceLogger{traceDir: traceDir, credRegex: credRegex, file: file}, nil
}

func (l *TraceLogger) scrub(text string) string {
	return l.credRegex.ReplaceAllString(text, "[REDACTED]")
}

// LogHostCall records one Host API invocation: trail is the acting
// handle trail ("a -> b -> c", or "rig"), operation names the call
// (fetch, read_file, load_text, load_bin, env, run, log_*), detail is
// call-specific (URL, path, env var name, callout handle).
func (l *TraceLogger) LogHostCall(trail, operation, detail string) error {
	timestamp := time.Now().Format(time.RFC3339Nano)
	line := timestamp + " [HOST] trail=" + trail + " op=" + operation + " detail=" + l.scrub(detail) + "\n"
	_, err := l.file.WriteString(line)
	return err
}

func (l *TraceLogger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}
