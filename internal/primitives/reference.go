package primitives

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// SpecialKind names one of the built-in no-op components.
type SpecialKind int

const (
	SpecialPass SpecialKind = iota
	SpecialSink
)

func (k SpecialKind) String() string {
	switch k {
	case SpecialPass:
		return "pass"
	case SpecialSink:
		return "sink"
	default:
		return "unknown"
	}
}

// ReferenceKind discriminates the SlipwayReference variants.
type ReferenceKind int

const (
	ReferenceRegistry ReferenceKind = iota
	ReferenceURL
	ReferenceLocal
	ReferenceSpecial
)

// SlipwayReference is a tagged pointer to a component artifact: a
// registry entry, a direct URL download, a local directory/TAR, or one
// of the built-in specials. Exactly the fields relevant to Kind are
// populated.
type SlipwayReference struct {
	Kind ReferenceKind

	// Registry
	Publisher Publisher
	Name      Name
	Version   *semver.Version

	// URL
	URL string

	// Local
	Path string

	// Special
	Special SpecialKind
}

// Equal reports whether two references name the same component
// artifact. Used as the cache key equality for the component cache.
func (r SlipwayReference) Equal(other SlipwayReference) bool {
	return r.String() == other.String()
}

// String renders the canonical textual form of a reference, such that
// Parse(r.String()) == r for every variant.
func (r SlipwayReference) String() string {
	switch r.Kind {
	case ReferenceRegistry:
		return fmt.Sprintf("%s.%s.%s", r.Publisher.String(), r.Name.String(), r.Version.String())
	case ReferenceURL:
		return r.URL
	case ReferenceLocal:
		return "file:" + r.Path
	case ReferenceSpecial:
		return r.Special.String()
	default:
		return ""
	}
}

// ReferenceWarning is emitted (non-fatally) when Parse normalizes a
// reference string, e.g. the file://host/... authority-form rewrite.
type ReferenceWarning struct {
	Message string
}

// ParseResult carries a parsed reference plus any non-fatal warnings
// produced along the way.
type ParseResult struct {
	Reference SlipwayReference
	Warnings  []ReferenceWarning
}

// Parse parses a reference string, trying each shape in order:
// file:, http(s)://, the special literals, then registry dotted-id.
func Parse(s string) (ParseResult, error) {
	switch {
	case strings.HasPrefix(s, "file:"):
		return parseLocal(s)
	case strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://"):
		return ParseResult{Reference: SlipwayReference{Kind: ReferenceURL, URL: s}}, nil
	case s == "pass":
		return ParseResult{Reference: SlipwayReference{Kind: ReferenceSpecial, Special: SpecialPass}}, nil
	case s == "sink":
		return ParseResult{Reference: SlipwayReference{Kind: ReferenceSpecial, Special: SpecialSink}}, nil
	}

	if ref, ok, err := tryParseRegistry(s); ok || err != nil {
		if err != nil {
			return ParseResult{}, err
		}
		return ParseResult{Reference: ref}, nil
	}

	return ParseResult{}, fmt.Errorf("reference %q does not match any known shape (registry publisher.name.x.y.z, file:, http(s)://, pass, sink)", s)
}

// tryParseRegistry attempts "publisher.name.X.Y.Z". Returns ok=false,
// err=nil if s simply doesn't have the registry shape (so the caller
// can try other shapes), and err!=nil if it has the shape but a
// component fails validation.
func tryParseRegistry(s string) (SlipwayReference, bool, error) {
	parts := strings.SplitN(s, ".", 3)
	if len(parts) != 3 {
		return SlipwayReference{}, false, nil
	}
	publisherStr, nameStr, versionStr := parts[0], parts[1], parts[2]

	version, err := semver.NewVersion(versionStr)
	if err != nil {
		// Doesn't look like a registry reference after all.
		return SlipwayReference{}, false, nil
	}

	publisher, err := NewPublisher(publisherStr)
	if err != nil {
		return SlipwayReference{}, true, fmt.Errorf("invalid registry reference %q: %w", s, err)
	}
	name, err := NewName(nameStr)
	if err != nil {
		return SlipwayReference{}, true, fmt.Errorf("invalid registry reference %q: %w", s, err)
	}

	return SlipwayReference{
		Kind:      ReferenceRegistry,
		Publisher: publisher,
		Name:      name,
		Version:   version,
	}, true, nil
}

// parseLocal handles the "file:" prefix shapes: "file:relative/path",
// "file:/absolute/path", and "file://host/path" which is normalized to
// "file:///host/path" with a warning.
func parseLocal(s string) (ParseResult, error) {
	rest := strings.TrimPrefix(s, "file:")

	if strings.HasPrefix(rest, "//") && !strings.HasPrefix(rest, "///") {
		// file://host/path -> file:///host/path
		normalized := "file:///" + strings.TrimPrefix(rest, "//")
		warning := ReferenceWarning{
			Message: fmt.Sprintf("reference %q uses a host-qualified file:// authority, normalizing to %q", s, normalized),
		}
		path := strings.TrimPrefix(normalized, "file://")
		return ParseResult{
			Reference: SlipwayReference{Kind: ReferenceLocal, Path: path},
			Warnings:  []ReferenceWarning{warning},
		}, nil
	}

	return ParseResult{Reference: SlipwayReference{Kind: ReferenceLocal, Path: rest}}, nil
}

// wireRegistryObjectForm is the object form a "component" field may
// take in Rig/Component JSON: {publisher, name, version}, as an
// alternative to the dotted reference string.
type wireRegistryObjectForm struct {
	Publisher string `json:"publisher"`
	Name      string `json:"name"`
	Version   string `json:"version"`
}

// MarshalJSON always emits the canonical string form.
func (r SlipwayReference) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// UnmarshalJSON accepts both wire shapes: a reference string, or an
// explicit {publisher,name,version} object for registry references.
func (r *SlipwayReference) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		result, err := Parse(s)
		if err != nil {
			return err
		}
		*r = result.Reference
		return nil
	}

	var obj wireRegistryObjectForm
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("component reference must be a string or a {publisher,name,version} object: %w", err)
	}
	publisher, err := NewPublisher(obj.Publisher)
	if err != nil {
		return err
	}
	name, err := NewName(obj.Name)
	if err != nil {
		return err
	}
	version, err := semver.NewVersion(obj.Version)
	if err != nil {
		return fmt.Errorf("invalid component version %q: %w", obj.Version, err)
	}
	*r = SlipwayReference{Kind: ReferenceRegistry, Publisher: publisher, Name: name, Version: version}
	return nil
}
