package rigging

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/slipwayhq/slipway/internal/primitives"
)

// ValidationError reports a structural problem found while parsing a
// Rig or Component manifest: an unknown field, a duplicate rigging
// key, or a malformed reference. Field names the JSON path at fault.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// rigWireForm mirrors Rig but leaves Rigging as raw JSON so ParseRig
// can hand-walk it for duplicate-key detection before individually
// unmarshaling each ComponentRigging with unknown-field rejection.
type rigWireForm struct {
	Description *string         `json:"description,omitempty"`
	Constants   json.RawMessage `json:"constants,omitempty"`
	Rigging     json.RawMessage `json:"rigging"`
}

// ParseRig parses a Rig document from data, rejecting unknown
// top-level fields, unknown fields on every nested ComponentRigging
// and Callout, and duplicate keys within the rigging map — all three
// of which encoding/json's default map decoding silently allows or
// silently overwrites.
func ParseRig(data []byte) (*Rig, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var wire rigWireForm
	if err := dec.Decode(&wire); err != nil {
		return nil, &ValidationError{Reason: fmt.Sprintf("invalid rig document: %s", err)}
	}

	rigging, err := decodeRiggingMap(wire.Rigging)
	if err != nil {
		return nil, err
	}

	return &Rig{
		Description: wire.Description,
		Constants:   wire.Constants,
		Rigging:     rigging,
	}, nil
}

// decodeRiggingMap walks raw's object tokens itself rather than
// unmarshaling straight into map[ComponentHandle]ComponentRigging, so
// that a repeated key is reported as an error instead of the later
// occurrence silently winning.
func decodeRiggingMap(raw json.RawMessage) (map[primitives.ComponentHandle]ComponentRigging, error) {
	if len(raw) == 0 {
		return nil, &ValidationError{Field: "rigging", Reason: "is required"}
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, &ValidationError{Field: "rigging", Reason: fmt.Sprintf("invalid: %s", err)}
	}
	delim, ok := tok.(json.Delim)
	if !ok || delim != '{' {
		return nil, &ValidationError{Field: "rigging", Reason: "must be an object mapping handles to components"}
	}

	seen := make(map[string]bool)
	result := make(map[primitives.ComponentHandle]ComponentRigging)

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, &ValidationError{Field: "rigging", Reason: fmt.Sprintf("invalid key: %s", err)}
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, &ValidationError{Field: "rigging", Reason: "keys must be strings"}
		}
		if seen[key] {
			return nil, &ValidationError{
				Field:  fmt.Sprintf("rigging.%s", key),
				Reason: "found duplicate key",
			}
		}
		seen[key] = true

		handle, err := primitives.NewComponentHandle(key)
		if err != nil {
			return nil, &ValidationError{Field: fmt.Sprintf("rigging.%s", key), Reason: err.Error()}
		}

		var valueRaw json.RawMessage
		if err := dec.Decode(&valueRaw); err != nil {
			return nil, &ValidationError{Field: fmt.Sprintf("rigging.%s", key), Reason: fmt.Sprintf("invalid value: %s", err)}
		}

		rigging, err := parseComponentRigging(valueRaw)
		if err != nil {
			return nil, &ValidationError{Field: fmt.Sprintf("rigging.%s", key), Reason: err.Error()}
		}
		result[handle] = *rigging
	}

	// Consume the closing '}'.
	if _, err := dec.Token(); err != nil {
		return nil, &ValidationError{Field: "rigging", Reason: fmt.Sprintf("invalid: %s", err)}
	}

	return result, nil
}

func parseComponentRigging(data json.RawMessage) (*ComponentRigging, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var rigging ComponentRigging
	if err := dec.Decode(&rigging); err != nil {
		return nil, fmt.Errorf("invalid component rigging: %w", err)
	}
	return &rigging, nil
}

// ParseComponent parses a Component manifest document, rejecting
// unknown top-level fields. Its nested Rigging (if present, meaning
// this component is a fragment) is parsed with the same duplicate-key
// and unknown-field strictness as ParseRig.
func ParseComponent(data []byte) (*Component, error) {
	var envelope struct {
		Publisher   primitives.Publisher                     `json:"publisher"`
		Name        primitives.Name                          `json:"name"`
		Version     string                                   `json:"version"`
		Description *string                                  `json:"description,omitempty"`
		Input       json.RawMessage                          `json:"input"`
		Output      json.RawMessage                          `json:"output"`
		Constants   json.RawMessage                           `json:"constants,omitempty"`
		Rigging     json.RawMessage                          `json:"rigging,omitempty"`
		Callouts    map[string]primitives.SlipwayReference    `json:"callouts,omitempty"`
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&envelope); err != nil {
		return nil, &ValidationError{Reason: fmt.Sprintf("invalid component document: %s", err)}
	}

	component := &Component{
		Publisher:   envelope.Publisher,
		Name:        envelope.Name,
		Version:     envelope.Version,
		Description: envelope.Description,
		Input:       envelope.Input,
		Output:      envelope.Output,
		Constants:   envelope.Constants,
		Callouts:    envelope.Callouts,
	}

	if len(envelope.Rigging) > 0 {
		rig, err := ParseRig(envelope.Rigging)
		if err != nil {
			return nil, err
		}
		component.Rigging = rig
	}

	return component, nil
}
