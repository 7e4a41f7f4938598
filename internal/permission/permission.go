// Package permission implements Slipway's permission model: the
// Permission tagged-union, the Permissions allow/deny pair, and
// wire-format (de)serialization for payload shapes such as
// {"permission":"http","url":{"domain":"example.com"}}.
package permission

import (
	"encoding/json"
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// Kind discriminates the Permission variants.
type Kind string

const (
	KindAll               Kind = "all"
	KindHTTP              Kind = "http"
	KindFile              Kind = "file"
	KindEnv               Kind = "env"
	KindFont              Kind = "font"
	KindRegistryComponent Kind = "registry_component"
	KindLocalComponent    Kind = "local_component"
	KindHTTPComponent     Kind = "http_component"
	KindNoop              Kind = "noop"
)

// MatchShape discriminates how a string-valued permission matches a
// candidate: match anything, an exact value, a prefix, a suffix, a
// containing directory ("within"), or a domain suffix match for URLs.
type MatchShape string

const (
	MatchAny    MatchShape = "any"
	MatchExact  MatchShape = "exact"
	MatchPrefix MatchShape = "prefix"
	MatchSuffix MatchShape = "suffix"
	MatchWithin MatchShape = "within"
	MatchDomain MatchShape = "domain"
)

// StringMatcher is the {any|exact|prefix|suffix} shape used by
// Http/File/Env/Font permissions.
type StringMatcher struct {
	Shape MatchShape
	Value string // unused when Shape == MatchAny
}

func (m StringMatcher) Matches(candidate string) bool {
	switch m.Shape {
	case MatchAny:
		return true
	case MatchExact:
		return candidate == m.Value
	case MatchPrefix:
		return len(candidate) >= len(m.Value) && candidate[:len(m.Value)] == m.Value
	case MatchSuffix:
		return len(candidate) >= len(m.Value) && candidate[len(candidate)-len(m.Value):] == m.Value
	default:
		return false
	}
}

// RegistryComponentMatcher matches Permission::RegistryComponent's
// {publisher?, name?, version?} shape: any field left unset matches
// anything for that field.
type RegistryComponentMatcher struct {
	Publisher  *string
	Name       *string
	VersionReq *semver.Constraints
}

// Permission is a tagged variant over every permission kind. Only the
// fields relevant to Kind are populated.
type Permission struct {
	Kind Kind

	// Http / File / Env / Font
	String StringMatcher

	// RegistryComponent
	Registry RegistryComponentMatcher

	// LocalComponent / HttpComponent reuse String as a path/url matcher.
}

func All() Permission { return Permission{Kind: KindAll} }

func HTTPAny() Permission    { return Permission{Kind: KindHTTP, String: StringMatcher{Shape: MatchAny}} }
func HTTPExact(u string) Permission {
	return Permission{Kind: KindHTTP, String: StringMatcher{Shape: MatchExact, Value: u}}
}
func HTTPDomain(domain string) Permission {
	return Permission{Kind: KindHTTP, String: StringMatcher{Shape: MatchDomain, Value: domain}}
}

func FileWithin(dir string) Permission {
	return Permission{Kind: KindFile, String: StringMatcher{Shape: MatchWithin, Value: dir}}
}
func FileAny() Permission { return Permission{Kind: KindFile, String: StringMatcher{Shape: MatchAny}} }

func EnvAny() Permission { return Permission{Kind: KindEnv, String: StringMatcher{Shape: MatchAny}} }
func EnvExact(name string) Permission {
	return Permission{Kind: KindEnv, String: StringMatcher{Shape: MatchExact, Value: name}}
}

// Permissions is the {allow, deny} pair checked at every non-Inherit
// call chain link.
type Permissions struct {
	Allow []Permission
	Deny  []Permission
}

// Empty returns the permission set granting nothing, used as the
// implicit extension of a trailing Inherit link.
func Empty() Permissions { return Permissions{} }

// --- JSON wire format -------------------------------------------------

// Fields are pointers so a present-but-empty value (e.g.
// {"exact":""}, matching the empty string) can be told apart from an
// absent field: a plain string with "omitempty" would serialize and
// deserialize both the same way, silently rejecting a legitimate
// (if degenerate) empty-string matcher.
type wireStringMatch struct {
	Any    bool    `json:"any,omitempty"`
	Exact  *string `json:"exact,omitempty"`
	Prefix *string `json:"prefix,omitempty"`
	Suffix *string `json:"suffix,omitempty"`
	Within *string `json:"within,omitempty"`
	Domain *string `json:"domain,omitempty"`
}

func (m StringMatcher) toWire() wireStringMatch {
	w := wireStringMatch{}
	switch m.Shape {
	case MatchAny:
		w.Any = true
	case MatchExact:
		w.Exact = &m.Value
	case MatchPrefix:
		w.Prefix = &m.Value
	case MatchSuffix:
		w.Suffix = &m.Value
	case MatchWithin:
		w.Within = &m.Value
	case MatchDomain:
		w.Domain = &m.Value
	}
	return w
}

func stringMatcherFromWire(w wireStringMatch) (StringMatcher, error) {
	switch {
	case w.Any:
		return StringMatcher{Shape: MatchAny}, nil
	case w.Exact != nil:
		return StringMatcher{Shape: MatchExact, Value: *w.Exact}, nil
	case w.Prefix != nil:
		return StringMatcher{Shape: MatchPrefix, Value: *w.Prefix}, nil
	case w.Suffix != nil:
		return StringMatcher{Shape: MatchSuffix, Value: *w.Suffix}, nil
	case w.Within != nil:
		return StringMatcher{Shape: MatchWithin, Value: *w.Within}, nil
	case w.Domain != nil:
		return StringMatcher{Shape: MatchDomain, Value: *w.Domain}, nil
	default:
		return StringMatcher{}, fmt.Errorf("permission match object has no recognized shape (any/exact/prefix/suffix/within/domain)")
	}
}

type wireRegistryComponent struct {
	Publisher string `json:"publisher,omitempty"`
	Name      string `json:"name,omitempty"`
	Version   string `json:"version,omitempty"`
}

type wirePermission struct {
	Permission string                 `json:"permission"`
	URL        *wireStringMatch        `json:"url,omitempty"`
	Path       *wireStringMatch        `json:"path,omitempty"`
	Name       *wireStringMatch        `json:"name,omitempty"`
	Stack      *wireStringMatch        `json:"stack,omitempty"`
	Component  *wireRegistryComponent `json:"component,omitempty"`
}

func (p Permission) MarshalJSON() ([]byte, error) {
	w := wirePermission{Permission: string(p.Kind)}
	switch p.Kind {
	case KindAll, KindNoop:
		// no payload
	case KindHTTP, KindHTTPComponent:
		sm := p.String.toWire()
		w.URL = &sm
	case KindFile, KindLocalComponent:
		sm := p.String.toWire()
		w.Path = &sm
	case KindEnv:
		sm := p.String.toWire()
		w.Name = &sm
	case KindFont:
		sm := p.String.toWire()
		w.Stack = &sm
	case KindRegistryComponent:
		wc := wireRegistryComponent{}
		if p.Registry.Publisher != nil {
			wc.Publisher = *p.Registry.Publisher
		}
		if p.Registry.Name != nil {
			wc.Name = *p.Registry.Name
		}
		if p.Registry.VersionReq != nil {
			wc.Version = p.Registry.VersionReq.String()
		}
		w.Component = &wc
	}
	return json.Marshal(w)
}

func (p *Permission) UnmarshalJSON(data []byte) error {
	var w wirePermission
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	kind := Kind(w.Permission)
	switch kind {
	case KindAll, KindNoop:
		*p = Permission{Kind: kind}
		return nil
	case KindHTTP, KindHTTPComponent:
		if w.URL == nil {
			return fmt.Errorf("permission %q requires a \"url\" field", kind)
		}
		sm, err := stringMatcherFromWire(*w.URL)
		if err != nil {
			return fmt.Errorf("permission %q: %w", kind, err)
		}
		*p = Permission{Kind: kind, String: sm}
		return nil
	case KindFile, KindLocalComponent:
		if w.Path == nil {
			return fmt.Errorf("permission %q requires a \"path\" field", kind)
		}
		sm, err := stringMatcherFromWire(*w.Path)
		if err != nil {
			return fmt.Errorf("permission %q: %w", kind, err)
		}
		*p = Permission{Kind: kind, String: sm}
		return nil
	case KindEnv:
		if w.Name == nil {
			return fmt.Errorf("permission %q requires a \"name\" field", kind)
		}
		sm, err := stringMatcherFromWire(*w.Name)
		if err != nil {
			return fmt.Errorf("permission %q: %w", kind, err)
		}
		*p = Permission{Kind: kind, String: sm}
		return nil
	case KindFont:
		if w.Stack == nil {
			return fmt.Errorf("permission %q requires a \"stack\" field", kind)
		}
		sm, err := stringMatcherFromWire(*w.Stack)
		if err != nil {
			return fmt.Errorf("permission %q: %w", kind, err)
		}
		*p = Permission{Kind: kind, String: sm}
		return nil
	case KindRegistryComponent:
		rc := RegistryComponentMatcher{}
		if w.Component != nil {
			if w.Component.Publisher != "" {
				v := w.Component.Publisher
				rc.Publisher = &v
			}
			if w.Component.Name != "" {
				v := w.Component.Name
				rc.Name = &v
			}
			if w.Component.Version != "" {
				c, err := semver.NewConstraint(w.Component.Version)
				if err != nil {
					return fmt.Errorf("permission %q: invalid version constraint %q: %w", kind, w.Component.Version, err)
				}
				rc.VersionReq = c
			}
		}
		*p = Permission{Kind: kind, Registry: rc}
		return nil
	default:
		return fmt.Errorf("unknown permission kind %q", w.Permission)
	}
}
