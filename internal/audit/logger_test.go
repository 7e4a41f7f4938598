package audit

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestLogger(t *testing.T) (*TraceLogger, string) {
	t.Helper()
	dir := t.TempDir()
	logger, err := NewTraceLogger(dir)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	t.Cleanup(func() { logger.Close() })
	return logger, dir
}

func TestCredentialScrubbing(t *testing.T) {
	logger, _ := newTestLogger(t)

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "API_KEY", input: "API_KEY=sk-1234567890abcdef", expected: "[REDACTED]"},
		{name: "token", input: "token:ghp_1234567890abcdef", expected: "[REDACTED]"},
		{name: "SECRET", input: "SECRET=mysecret123", expected: "[REDACTED]"},
		{name: "PASSWORD", input: "password=passw0rd", expected: "[REDACTED]"},
		{name: "CREDENTIAL", input: "CREDENTIAL=cred123", expected: "[REDACTED]"},
		{name: "AUTH", input: "AUTH=bearer_token", expected: "[REDACTED]"},
		{name: "PRIVATE_KEY", input: "PRIVATE_KEY=pk_1234567890", expected: "[REDACTED]"},
		{name: "ACCESS_KEY", input: "ACCESS_KEY=ak_1234567890", expected: "[REDACTED]"},
		{name: "case insensitive", input: "api_key=sk-test", expected: "[REDACTED]"},
		{name: "no credential", input: "normal_string", expected: "normal_string"},
		{name: "mixed case", input: "Api-Key=value123", expected: "[REDACTED]"},
		{name: "with hyphen", input: "ACCESS-KEY=key123", expected: "[REDACTED]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := logger.scrub(tt.input)
			if result != tt.expected {
				t.Errorf("scrub(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestCredentialScrubbingInContext(t *testing.T) {
	logger, _ := newTestLogger(t)

	tests := []struct {
		name  string
		input string
		check func(*testing.T, string)
	}{
		{
			name:  "credential in url",
			input: "https://api.example.com?Authorization=Bearer+token123",
			check: func(t *testing.T, result string) {
				if strings.Contains(result, "token123") {
					t.Errorf("credential not scrubbed: %s", result)
				}
				if !strings.Contains(result, "[REDACTED]") {
					t.Errorf("no [REDACTED] marker found")
				}
			},
		},
		{
			name:  "multiple credentials",
			input: "API_KEY=key1 TOKEN=token2",
			check: func(t *testing.T, result string) {
				if strings.Contains(result, "key1") || strings.Contains(result, "token2") {
					t.Errorf("credentials not scrubbed: %s", result)
				}
			},
		},
		{
			name:  "path with no credential pattern",
			input: "/home/user/secret/project",
			check: func(t *testing.T, result string) {
				if !strings.Contains(result, "secret") {
					t.Errorf("word 'secret' should NOT be scrubbed in paths: %s", result)
				}
			},
		},
		{
			name:  "authorization header with bearer scheme",
			input: "Authorization: Bearer sk-abcdefghijklmnop",
			check: func(t *testing.T, result string) {
				if strings.Contains(result, "sk-abcdefghijklmnop") {
					t.Errorf("bearer token not scrubbed: %s", result)
				}
				if !strings.Contains(result, "[REDACTED]") {
					t.Errorf("no [REDACTED] marker found")
				}
			},
		},
		{
			name:  "underscore-prefixed env-var style credential names",
			input: "GITHUB_TOKEN=ghp_abcdef123456 AWS_SECRET_ACCESS_KEY=wJalrXUtnFEMI OPENAI_API_KEY=sk-abcdef123456",
			check: func(t *testing.T, result string) {
				for _, leaked := range []string{"ghp_abcdef123456", "wJalrXUtnFEMI", "sk-abcdef123456"} {
					if strings.Contains(result, leaked) {
						t.Errorf("credential leaked for a word-character-prefixed keyword: %s", result)
					}
				}
			},
		},
		{
			name:  "credential value containing a slash",
			input: "AWS_SECRET_ACCESS_KEY=wJalrXUtnFEMI/K7MDENG/bPxRfiCYEXAMPLEKEY",
			check: func(t *testing.T, result string) {
				if strings.Contains(result, "K7MDENG") || strings.Contains(result, "bPxRfiCYEXAMPLEKEY") {
					t.Errorf("credential leaked past a slash in its value: %s", result)
				}
			},
		},
		{
			name:  "keyword immediately followed by another word character before its own separator",
			input: "STRIPE_SECRET_KEY=sk_live_abcdefghijklmno CLIENT_SECRET=shhh123",
			check: func(t *testing.T, result string) {
				for _, leaked := range []string{"sk_live_abcdefghijklmno", "shhh123"} {
					if strings.Contains(result, leaked) {
						t.Errorf("credential leaked for a keyword directly followed by a word character: %s", result)
					}
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, logger.scrub(tt.input))
		})
	}
}

func TestLogFileCreation(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewTraceLogger(dir)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		t.Error("trace directory not created")
	}

	files, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to read trace directory: %v", err)
	}
	if len(files) == 0 {
		t.Fatal("no trace file created")
	}

	traceFile := files[0]
	if !strings.HasPrefix(traceFile.Name(), "trace-") || !strings.HasSuffix(traceFile.Name(), ".log") {
		t.Errorf("unexpected trace file name: %s", traceFile.Name())
	}

	if err := logger.LogHostCall("a -> b", "fetch", "https://example.com"); err != nil {
		t.Errorf("LogHostCall failed: %v", err)
	}
	if err := logger.LogHostCall("a -> b", "load_text", "TOKEN=abc123"); err != nil {
		t.Errorf("LogHostCall failed: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(dir, traceFile.Name()))
	if err != nil {
		t.Fatalf("failed to read trace file: %v", err)
	}

	contentStr := string(content)
	if !strings.Contains(contentStr, "[HOST]") {
		t.Error("trace file missing [HOST] marker")
	}
	if !strings.Contains(contentStr, "trail=a -> b") {
		t.Error("trace file missing trail")
	}
	if !strings.Contains(contentStr, "op=fetch") {
		t.Error("trace file missing operation")
	}
	if strings.Contains(contentStr, "abc123") {
		t.Error("credential leaked into trace file")
	}

	logger.Close()

	if _, err := os.Stat(filepath.Join(dir, traceFile.Name())); os.IsNotExist(err) {
		t.Error("trace file was deleted")
	}
}

func TestClose(t *testing.T) {
	logger, _ := newTestLogger(t)

	if err := logger.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}

	if err := logger.LogHostCall("rig", "fetch", "https://example.com"); err == nil {
		t.Error("LogHostCall should fail after Close")
	}
}

func TestHostAPIAdapterForwardsToLogger(t *testing.T) {
	logger, dir := newTestLogger(t)
	adapter := HostAPIAdapter{Logger: logger}

	adapter.Log("info", "a -> b", "hello")
	adapter.Log("error", "", "SECRET=xyz")
	logger.Close()

	files, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to read trace directory: %v", err)
	}
	content, err := os.ReadFile(filepath.Join(dir, files[0].Name()))
	if err != nil {
		t.Fatalf("failed to read trace file: %v", err)
	}

	contentStr := string(content)
	if !strings.Contains(contentStr, "trail=a -> b") {
		t.Error("trace file missing forwarded trail")
	}
	if !strings.Contains(contentStr, "op=log_info") {
		t.Error("trace file missing log_info operation")
	}
	if !strings.Contains(contentStr, "trail=rig") {
		t.Error("empty handle should default to \"rig\" trail")
	}
	if strings.Contains(contentStr, "xyz") {
		t.Error("credential leaked through adapter")
	}
}

func TestHostAPIAdapterNilLoggerIsNoop(t *testing.T) {
	adapter := HostAPIAdapter{}
	adapter.Log("info", "a", "hello")
	adapter.LogCall("a", "fetch", "https://example.com")
}

func TestHostAPIAdapterLogCallForwardsWithoutLogPrefix(t *testing.T) {
	logger, dir := newTestLogger(t)
	adapter := HostAPIAdapter{Logger: logger}

	adapter.LogCall("a -> b", "fetch", "https://example.com")
	adapter.LogCall("", "env", "HOME")
	logger.Close()

	files, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to read trace directory: %v", err)
	}
	content, err := os.ReadFile(filepath.Join(dir, files[0].Name()))
	if err != nil {
		t.Fatalf("failed to read trace file: %v", err)
	}

	contentStr := string(content)
	if !strings.Contains(contentStr, "op=fetch") {
		t.Error("trace file missing fetch operation")
	}
	if strings.Contains(contentStr, "op=log_") {
		t.Error("LogCall must not be prefixed with log_, that's reserved for sandboxed code's own log_* calls")
	}
	if !strings.Contains(contentStr, "trail=rig") {
		t.Error("empty handle should default to \"rig\" trail")
	}
	if !strings.Contains(contentStr, "detail=HOME") {
		t.Error("trace file missing env detail")
	}
}
