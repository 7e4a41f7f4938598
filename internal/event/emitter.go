// Package event implements the NDJSON event stream a rig run emits:
// one line per lifecycle transition (rig start/completion, per-group
// state changes, component start/end, permission denials, cache
// priming progress), so a host process can observe execution without
// polling RigExecutionState directly. A human-readable rendering can
// be toggled alongside the NDJSON stream for interactive use.
package event

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Event is one emitted lifecycle transition.
type Event struct {
	Timestamp       time.Time `json:"timestamp"`
	RigID           string    `json:"rig_id,omitempty"`
	ComponentHandle string    `json:"component_handle,omitempty"`
	State           string    `json:"state"`
	Message         string    `json:"message,omitempty"`
	DurationMs      int64     `json:"duration_ms,omitempty"`
	IsComplete      bool      `json:"is_complete,omitempty"`
}

// Event states for the rig/component lifecycle: the ready-loop's
// progress and the cache's priming phase.
const (
	StateRigStarted       = "rig_started"
	StateRigCompleted     = "rig_completed"
	StateRigFailed        = "rig_failed"
	StateStateChanged     = "state_changed"
	StateComponentStart   = "component_start"
	StateComponentEnd     = "component_end"
	StatePermissionDenied = "permission_denied"
	StateCachePriming     = "cache_priming"
	StateReferenceWarning = "reference_warning"
)

// Emitter receives lifecycle events. Tests and callers that don't care
// about observability can pass a NoopEmitter.
type Emitter interface {
	Emit(event Event)
}

// NoopEmitter discards every event.
type NoopEmitter struct{}

func (NoopEmitter) Emit(Event) {}

// NDJSONEmitter writes one JSON object per line to stdout, optionally
// also rendering a dim human-readable line for interactive use.
type NDJSONEmitter struct {
	encoder       *json.Encoder
	humanReadable bool
	suppressJSON  bool
	mu            sync.Mutex
}

// NewNDJSONEmitter emits only NDJSON to stdout.
func NewNDJSONEmitter() *NDJSONEmitter {
	return &NDJSONEmitter{encoder: json.NewEncoder(os.Stdout)}
}

// NewNDJSONEmitterWithHumanReadable additionally prints a dim
// human-readable line per event, interleaved with the NDJSON stream.
func NewNDJSONEmitterWithHumanReadable() *NDJSONEmitter {
	return &NDJSONEmitter{encoder: json.NewEncoder(os.Stdout), humanReadable: true}
}

// NewProgressOnlyEmitter renders only the human-readable line,
// suppressing the machine-readable NDJSON output.
func NewProgressOnlyEmitter() *NDJSONEmitter {
	return &NDJSONEmitter{encoder: json.NewEncoder(os.Stdout), humanReadable: true, suppressJSON: true}
}

var stateColors = map[string]string{
	StateRigStarted:       "\033[36m",
	StateRigCompleted:     "\033[32m",
	StateRigFailed:        "\033[31m",
	StateStateChanged:     "\033[90m",
	StateComponentStart:   "\033[33m",
	StateComponentEnd:     "\033[32m",
	StatePermissionDenied: "\033[31m",
	StateCachePriming:     "\033[36m",
	StateReferenceWarning: "\033[33m",
}

func (e *NDJSONEmitter) Emit(event Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.humanReadable {
		color := stateColors[event.State]
		if color == "" {
			color = "\033[0m"
		}
		dim, reset := "\033[90m", "\033[0m"
		ts := event.Timestamp.Format("15:04:05")

		fmt.Printf("%s[%s]%s %s%-18s%s", dim, ts, reset, color, event.State, reset)
		if event.ComponentHandle != "" {
			fmt.Printf(" %-20s", event.ComponentHandle)
		}
		if event.DurationMs > 0 {
			fmt.Printf(" %5.1fs", float64(event.DurationMs)/1000.0)
		}
		if event.Message != "" {
			fmt.Printf(" %s", event.Message)
		}
		fmt.Println()
	}

	if !e.suppressJSON {
		_ = e.encoder.Encode(event)
	}
}
