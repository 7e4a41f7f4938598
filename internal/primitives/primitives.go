// Package primitives implements Slipway's validated identifier types:
// ComponentHandle, Publisher, Name, and Description. Each is a thin
// string wrapper enforcing a regex and length bounds at construction
// time, so that once a value exists downstream code never has to
// re-validate it.
package primitives

import (
	"encoding/json"
	"fmt"
	"regexp"
)

const (
	maxPublisherLength = 64
	maxNameLength       = 64
	maxDescriptionLength = 256
	maxHandleLength      = 256
)

var (
	wordRegex = regexp.MustCompile(`^\w+$`)
)

// InvalidPrimitiveError is returned when a string fails validation for
// one of the primitive types below. The Type field names the primitive
// ("Publisher", "Name", "ComponentHandle", ...) so callers can match on
// it without parsing the message.
type InvalidPrimitiveError struct {
	Type    string
	Reason  string
}

func (e *InvalidPrimitiveError) Error() string {
	return fmt.Sprintf("%s %s", e.Type, e.Reason)
}

func validateWord(typeName, value string, minLen, maxLen int, pattern *regexp.Regexp) error {
	if len(value) < minLen {
		return &InvalidPrimitiveError{Type: typeName, Reason: "is shorter than the minimum length"}
	}
	if len(value) > maxLen {
		return &InvalidPrimitiveError{Type: typeName, Reason: "is longer than the maximum length"}
	}
	if pattern != nil && !pattern.MatchString(value) {
		return &InvalidPrimitiveError{Type: typeName, Reason: "does not match the required format"}
	}
	return nil
}

// ComponentHandle is a validated identifier naming a component
// instance within a rigging map. Unique within that map.
type ComponentHandle struct{ value string }

func NewComponentHandle(s string) (ComponentHandle, error) {
	if err := validateWord("ComponentHandle", s, 1, maxHandleLength, wordRegex); err != nil {
		return ComponentHandle{}, err
	}
	return ComponentHandle{value: s}, nil
}

func (h ComponentHandle) String() string { return h.value }

// MarshalText and UnmarshalText (rather than the JSON equivalents) are
// what encoding/json actually consults when a ComponentHandle is used
// as a map key, e.g. Rig.Rigging.
func (h ComponentHandle) MarshalText() ([]byte, error) {
	return []byte(h.value), nil
}

func (h *ComponentHandle) UnmarshalText(data []byte) error {
	parsed, err := NewComponentHandle(string(data))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// Publisher identifies the organization or individual that published a
// registry component.
type Publisher struct{ value string }

func NewPublisher(s string) (Publisher, error) {
	if err := validateWord("Publisher", s, 1, maxPublisherLength, wordRegex); err != nil {
		return Publisher{}, err
	}
	return Publisher{value: s}, nil
}

func (p Publisher) String() string { return p.value }

func (p Publisher) MarshalJSON() ([]byte, error) { return json.Marshal(p.value) }

func (p *Publisher) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := NewPublisher(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Name identifies a component within a publisher's namespace.
type Name struct{ value string }

func NewName(s string) (Name, error) {
	if err := validateWord("Name", s, 1, maxNameLength, wordRegex); err != nil {
		return Name{}, err
	}
	return Name{value: s}, nil
}

func (n Name) String() string { return n.value }

func (n Name) MarshalJSON() ([]byte, error) { return json.Marshal(n.value) }

func (n *Name) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := NewName(s)
	if err != nil {
		return err
	}
	*n = parsed
	return nil
}

// Description is free text bounded only by length; empty is allowed.
type Description struct{ value string }

func NewDescription(s string) (Description, error) {
	if err := validateWord("Description", s, 0, maxDescriptionLength, nil); err != nil {
		return Description{}, err
	}
	return Description{value: s}, nil
}

func (d Description) String() string { return d.value }

func (d Description) MarshalJSON() ([]byte, error) { return json.Marshal(d.value) }

func (d *Description) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := NewDescription(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
