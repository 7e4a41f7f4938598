package permission

import (
	"fmt"
	"strings"
)

// Link is one entry in a CallChain: either a concrete Permissions set
// or Inherit, meaning "use whatever the caller resolved to for this
// operation". Inherit==true selects the Inherit variant; otherwise
// Permissions holds the concrete allow/deny pair.
type Link struct {
	ComponentHandle string // empty at the rig-root link
	Inherit         bool
	Permissions     Permissions
	previous        *Link
}

// CallChain is a singly-linked, tail-extending list of permission
// Links representing the nested context of an ongoing execution: the
// rig root, then one link per component invocation, then one per
// nested callout.
type CallChain struct {
	tail *Link
}

// Root returns the empty call chain (no links yet).
func Root() *CallChain { return &CallChain{} }

// Push returns a new chain with link appended as the new tail. The
// original chain is untouched — chain links are cheaply shared between
// concurrent callers, only ever appended to via a new tail pointer.
func (c *CallChain) Push(link Link) *CallChain {
	link.previous = c.tail
	return &CallChain{tail: &link}
}

// Links returns every link in the chain, tail-to-head (most recent
// first). Used by internal/runrecord to capture the concrete resolved
// permissions chain in effect for a recorded run_component call.
func (c *CallChain) Links() []Link {
	var links []Link
	for l := c.tail; l != nil; l = l.previous {
		links = append(links, Link{ComponentHandle: l.ComponentHandle, Inherit: l.Inherit, Permissions: l.Permissions})
	}
	return links
}

// Trail renders the handle trail used in user-visible error messages,
// e.g. "a -> b -> c", or the literal "rig" at the root.
func (c *CallChain) Trail() string {
	var handles []string
	for l := c.tail; l != nil; l = l.previous {
		if l.ComponentHandle != "" {
			handles = append([]string{l.ComponentHandle}, handles...)
		}
	}
	if len(handles) == 0 {
		return "rig"
	}
	return strings.Join(handles, " -> ")
}

// PermissionDeniedError is returned by EnsurePermissions and always
// identifies the acting handle trail plus the attempted operation.
type PermissionDeniedError struct {
	Trail     string
	Operation string
}

func (e *PermissionDeniedError) Error() string {
	if e.Trail == "rig" {
		return fmt.Sprintf("Rig does not have permission to %s", e.Operation)
	}
	return fmt.Sprintf("Component '%s' does not have permission to %s", e.Trail, e.Operation)
}

// Check is the operation-specific predicate ensure_permissions applies
// to each non-Inherit link's Deny and Allow lists.
type Check func(Permission) bool

// EnsurePermissions walks chain tail-to-head. At every non-Inherit
// link, check must pass against Allow and must NOT match Deny (deny is
// checked first). Inherit links are skipped entirely. If every link
// was Inherit (including the empty chain), the implicit final
// extension to an empty Permissions set is checked too — so an
// all-Inherit chain denies by default rather than silently granting
// full rights.
func EnsurePermissions(chain *CallChain, operation string, check Check) error {
	checkedAny := false
	for l := chain.tail; l != nil; l = l.previous {
		if l.Inherit {
			continue
		}
		checkedAny = true
		if !checkPermissions(l.Permissions, check) {
			return &PermissionDeniedError{Trail: chain.Trail(), Operation: operation}
		}
	}
	if !checkedAny {
		if !checkPermissions(Empty(), check) {
			return &PermissionDeniedError{Trail: chain.Trail(), Operation: operation}
		}
	}
	return nil
}

func checkPermissions(p Permissions, check Check) bool {
	for _, deny := range p.Deny {
		if check(deny) {
			return false
		}
	}
	for _, allow := range p.Allow {
		if check(allow) {
			return true
		}
	}
	return false
}
