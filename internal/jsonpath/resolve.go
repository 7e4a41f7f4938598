// Package jsonpath implements the JSONPath Resolver: the "$$<handle>"
// shorthand rewrite, dependency extraction from rewritten
// paths, and evaluation of path strings against the rig's working JSON
// document as execution proceeds.
package jsonpath

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PaesslerAG/jsonpath"
)

// PathType selects whether a compiled path's result is taken whole (an
// array) or reduced to its first element. It is derived from where the
// reference string itself was found: a bare array element resolves to
// every match, anything else (an object field, even one nested inside
// an array) resolves to just the first.
type PathType int

const (
	PathTypeValue PathType = iota // first matching value
	PathTypeArray                 // all matching values, as an array
)

// FoundReference is one "$$..." shorthand or literal "$." path found
// while walking an input document, together with the JSON-pointer-ish
// location ("path_to") where its resolved value must be written back.
type FoundReference struct {
	Path   string // the compiled JSONPath expression, e.g. "$.rigging.fetcher.output.url"
	PathTo string // "$"-notation location within the walked document
	Type   PathType
}

// handleShorthand matches the "$$<handle><rest>" shorthand for "the
// output of <handle>, then follow <rest>"; a single leading "$" marks
// an already-expanded literal JSONPath instead (see the "$." branch in
// walk below), so the shorthand itself requires two.
var handleShorthand = regexp.MustCompile(`^\$\$(\w+)(.*)$`)

// FindReferences walks doc (already unmarshaled into generic
// map[string]any/[]any/scalar shape) looking for string leaves that
// are either "$$<handle><rest>" shorthand or already-expanded "$."
// paths.
func FindReferences(doc any) []FoundReference {
	var found []FoundReference
	walk(doc, "$", &found)
	return found
}

func walk(node any, pathTo string, found *[]FoundReference) {
	switch v := node.(type) {
	case map[string]any:
		for key, child := range v {
			walk(child, pathTo+"."+key, found)
		}
	case []any:
		for i, child := range v {
			walk(child, fmt.Sprintf("%s[%d]", pathTo, i), found)
		}
	case string:
		pathType := PathTypeValue
		if strings.HasSuffix(pathTo, "]") {
			// The string itself sits directly as an array element (not
			// as an object field's value), so its reference resolves to
			// every match rather than just the first.
			pathType = PathTypeArray
		}
		if m := handleShorthand.FindStringSubmatch(v); m != nil {
			handle, rest := m[1], m[2]
			*found = append(*found, FoundReference{
				Path:   fmt.Sprintf("$.rigging.%s.output%s", handle, rest),
				PathTo: pathTo,
				Type:   pathType,
			})
		} else if strings.HasPrefix(v, "$.") {
			*found = append(*found, FoundReference{Path: v, PathTo: pathTo, Type: pathType})
		}
	}
}

// dependencyPattern matches a rewritten reference path naming a
// component's input or output: the boundary after "output"/"input"
// must be "." or "[" or end-of-string, so "output_not" does not match.
var dependencyPattern = regexp.MustCompile(`^\$\.rigging\.(\w+)\.(output|input)([.\[]|$)`)

// ExtractDependency returns the handle a found reference path depends
// on, if any. Both "...input..." and "...output..." paths name the
// same dependency: a reference to a component's own already-evaluated
// input can itself embed further references, so it is treated as a
// dependency on that component just like referencing its output is.
func ExtractDependency(path string) (handle string, ok bool) {
	m := dependencyPattern.FindStringSubmatch(path)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Dependencies returns the deduplicated set of handles depended on by
// every FoundReference in refs.
func Dependencies(refs []FoundReference) []string {
	seen := make(map[string]bool)
	var deps []string
	for _, r := range refs {
		if handle, ok := ExtractDependency(r.Path); ok && !seen[handle] {
			seen[handle] = true
			deps = append(deps, handle)
		}
	}
	return deps
}

// Evaluate compiles path and runs it against doc, returning the result
// shaped per pathType: the first matching value, or the full array of
// matches. A path matching nothing evaluates to nil (null), not an
// error.
func Evaluate(path string, doc any, pathType PathType) (any, error) {
	result, err := jsonpath.Get(path, doc)
	if err != nil {
		// PaesslerAG/jsonpath returns an error for a path with no
		// matches; treated here as null, not a failure.
		if strings.Contains(err.Error(), "unknown key") || strings.Contains(err.Error(), "no value") {
			return nil, nil
		}
		return nil, fmt.Errorf("evaluating path %q: %w", path, err)
	}

	if pathType == PathTypeArray {
		return result, nil
	}

	if arr, ok := result.([]any); ok {
		if len(arr) == 0 {
			return nil, nil
		}
		return arr[0], nil
	}
	return result, nil
}

// SetAtPathTo writes value into doc at the "$"-notation location
// pathTo (as produced by FindReferences), preserving sibling fields of
// the containing object/array. doc must be a map[string]any/[]any tree
// (the walked document), and pathTo must be one this package itself
// produced.
func SetAtPathTo(doc any, pathTo string, value any) error {
	segments, err := parsePathTo(pathTo)
	if err != nil {
		return err
	}
	return setAtSegments(doc, segments, value)
}

type pathSegment struct {
	key   string
	index int
	isKey bool
}

func parsePathTo(pathTo string) ([]pathSegment, error) {
	if !strings.HasPrefix(pathTo, "$") {
		return nil, fmt.Errorf("path %q must start with $", pathTo)
	}
	rest := pathTo[1:]
	var segments []pathSegment

	for len(rest) > 0 {
		switch rest[0] {
		case '.':
			rest = rest[1:]
			end := strings.IndexAny(rest, ".[")
			if end == -1 {
				end = len(rest)
			}
			segments = append(segments, pathSegment{key: rest[:end], isKey: true})
			rest = rest[end:]
		case '[':
			end := strings.Index(rest, "]")
			if end == -1 {
				return nil, fmt.Errorf("unterminated [ in path %q", pathTo)
			}
			var idx int
			if _, err := fmt.Sscanf(rest[1:end], "%d", &idx); err != nil {
				return nil, fmt.Errorf("invalid array index in path %q: %w", pathTo, err)
			}
			segments = append(segments, pathSegment{index: idx, isKey: false})
			rest = rest[end+1:]
		default:
			return nil, fmt.Errorf("unexpected character in path %q", pathTo)
		}
	}
	return segments, nil
}

func setAtSegments(doc any, segments []pathSegment, value any) error {
	if len(segments) == 0 {
		return fmt.Errorf("cannot set the document root")
	}
	node := doc
	for i, seg := range segments[:len(segments)-1] {
		next, err := step(node, seg)
		if err != nil {
			return fmt.Errorf("segment %d: %w", i, err)
		}
		node = next
	}
	last := segments[len(segments)-1]
	if last.isKey {
		m, ok := node.(map[string]any)
		if !ok {
			return fmt.Errorf("cannot set key %q on non-object", last.key)
		}
		m[last.key] = value
		return nil
	}
	a, ok := node.([]any)
	if !ok {
		return fmt.Errorf("cannot set index %d on non-array", last.index)
	}
	if last.index < 0 || last.index >= len(a) {
		return fmt.Errorf("index %d out of range", last.index)
	}
	a[last.index] = value
	return nil
}

func step(node any, seg pathSegment) (any, error) {
	if seg.isKey {
		m, ok := node.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("key %q on non-object", seg.key)
		}
		return m[seg.key], nil
	}
	a, ok := node.([]any)
	if !ok {
		return nil, fmt.Errorf("index %d on non-array", seg.index)
	}
	if seg.index < 0 || seg.index >= len(a) {
		return nil, fmt.Errorf("index %d out of range", seg.index)
	}
	return a[seg.index], nil
}
