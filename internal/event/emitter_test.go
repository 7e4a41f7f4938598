package event

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureStdout(t *testing.T, f func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	f()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	_, err = buf.ReadFrom(r)
	require.NoError(t, err)
	return buf.String()
}

func TestNDJSONEmitterEncodesEvent(t *testing.T) {
	output := captureStdout(t, func() {
		emitter := NewNDJSONEmitter()
		emitter.Emit(Event{
			Timestamp:       time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
			RigID:           "rig-1",
			ComponentHandle: "a",
			State:           StateComponentStart,
			Message:         "starting",
		})
	})

	var decoded Event
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(output)), &decoded))
	assert.Equal(t, "rig-1", decoded.RigID)
	assert.Equal(t, "a", decoded.ComponentHandle)
	assert.Equal(t, StateComponentStart, decoded.State)
}

func TestNDJSONEmitterHumanReadableAlsoPrintsJSON(t *testing.T) {
	output := captureStdout(t, func() {
		emitter := NewNDJSONEmitterWithHumanReadable()
		emitter.Emit(Event{Timestamp: time.Now(), State: StateRigStarted})
	})
	assert.Contains(t, output, StateRigStarted)
	assert.Contains(t, output, `"state":"rig_started"`)
}

func TestProgressOnlyEmitterSuppressesJSON(t *testing.T) {
	emitter := NewProgressOnlyEmitter()
	output := captureStdout(t, func() {
		emitter.Emit(Event{Timestamp: time.Now(), State: StateComponentEnd, ComponentHandle: "b"})
	})
	assert.Contains(t, output, StateComponentEnd)
	assert.NotContains(t, output, `"state"`)
}

func TestNoopEmitterDiscards(t *testing.T) {
	output := captureStdout(t, func() {
		NoopEmitter{}.Emit(Event{State: StateRigFailed})
	})
	assert.Empty(t, output)
}
