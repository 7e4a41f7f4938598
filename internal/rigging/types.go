// Package rigging implements the Rig & Component Parser: strict JSON
// parsing of Rig and Component manifest documents, with
// unknown fields rejected at every level and duplicate rigging keys
// reported rather than silently overwritten.
package rigging

import (
	"encoding/json"

	"github.com/slipwayhq/slipway/internal/permission"
	"github.com/slipwayhq/slipway/internal/primitives"
)

// Rig is the top-level composition document: a map of handles to
// component instantiations.
type Rig struct {
	Description *string                                          `json:"description,omitempty"`
	Constants   json.RawMessage                                  `json:"constants,omitempty"`
	Rigging     map[primitives.ComponentHandle]ComponentRigging `json:"rigging"`
}

// PermissionsChainLink is one element of a ComponentRigging's
// permissions_chain: an ordered list used when replaying recorded
// runs, expanding to one chain link per element.
type PermissionsChainLink struct {
	Allow []permission.Permission `json:"allow,omitempty"`
	Deny  []permission.Permission `json:"deny,omitempty"`
}

// ComponentRigging instantiates one component within a Rig (or within
// another component's own sub-rig).
type ComponentRigging struct {
	Component        primitives.SlipwayReference       `json:"component"`
	Input            json.RawMessage                   `json:"input,omitempty"`
	Allow            []permission.Permission            `json:"allow,omitempty"`
	Deny             []permission.Permission            `json:"deny,omitempty"`
	PermissionsChain []PermissionsChainLink             `json:"permissions_chain,omitempty"`
	Callouts         map[string]Callout                 `json:"callouts,omitempty"`
}

// Callout rebinds a handle used inside a component's own sub-rig to a
// concrete reference, with its own allow/deny.
type Callout struct {
	Component primitives.SlipwayReference `json:"component"`
	Allow     []permission.Permission      `json:"allow,omitempty"`
	Deny      []permission.Permission      `json:"deny,omitempty"`
}

// Component is a parsed component manifest: publisher/name/version
// identity, input/output schemas (left as raw JSON here; internal/schema
// compiles them), and optionally its own sub-rig and callout map.
type Component struct {
	Publisher   primitives.Publisher        `json:"publisher"`
	Name        primitives.Name             `json:"name"`
	Version     string                      `json:"version"`
	Description *string                     `json:"description,omitempty"`
	Input       json.RawMessage             `json:"input"`
	Output      json.RawMessage             `json:"output"`
	Constants   json.RawMessage             `json:"constants,omitempty"`
	Rigging     *Rig                        `json:"rigging,omitempty"`
	Callouts    map[string]primitives.SlipwayReference `json:"callouts,omitempty"`
}

// IsFragment reports whether this component manifest embeds its own
// sub-rig, which the Fragment runner dispatches against.
func (c *Component) IsFragment() bool { return c.Rigging != nil }
