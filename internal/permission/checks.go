package permission

import (
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// CheckFetchURL matches Permission::All or a Http matcher against
// url. Domain matching treats the matcher value as a suffix of the
// URL host.
func CheckFetchURL(url string) Check {
	return func(p Permission) bool {
		switch p.Kind {
		case KindAll:
			return true
		case KindHTTP:
			if p.String.Shape == MatchDomain {
				return urlHostHasDomain(url, p.String.Value)
			}
			return p.String.Matches(url)
		default:
			return false
		}
	}
}

// Hostnames are case-insensitive (RFC 4343), so both sides are folded
// to lowercase before comparing: otherwise a deny rule written against
// "evil.com" would never match a fetch to "EVIL.com".
func urlHostHasDomain(rawURL, domain string) bool {
	host := rawURL
	if idx := strings.Index(host, "://"); idx >= 0 {
		host = host[idx+3:]
	}
	if idx := strings.IndexAny(host, "/?#"); idx >= 0 {
		host = host[:idx]
	}
	if idx := strings.Index(host, "@"); idx >= 0 {
		host = host[idx+1:]
	}
	if idx := strings.LastIndex(host, ":"); idx >= 0 {
		host = host[:idx]
	}
	host = strings.ToLower(host)
	domain = strings.ToLower(domain)
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// CheckReadFile matches Permission::All or a File matcher against
// path. Within uses canonicalized-prefix comparison.
func CheckReadFile(path string) Check {
	return func(p Permission) bool {
		switch p.Kind {
		case KindAll:
			return true
		case KindFile:
			if p.String.Shape == MatchWithin {
				return pathWithin(path, p.String.Value)
			}
			return p.String.Matches(path)
		default:
			return false
		}
	}
}

func pathWithin(path, dir string) bool {
	absPath, err1 := filepath.Abs(path)
	absDir, err2 := filepath.Abs(dir)
	if err1 != nil || err2 != nil {
		return false
	}
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel))
}

// CheckReadEnv matches Permission::All or an Env matcher against
// name.
func CheckReadEnv(name string) Check {
	return func(p Permission) bool {
		switch p.Kind {
		case KindAll:
			return true
		case KindEnv:
			return p.String.Matches(name)
		default:
			return false
		}
	}
}

// CheckResolveFont matches Permission::All or a Font matcher against
// a single font family in the requested stack.
func CheckResolveFont(family string) Check {
	return func(p Permission) bool {
		switch p.Kind {
		case KindAll:
			return true
		case KindFont:
			return p.String.Matches(family)
		default:
			return false
		}
	}
}

// ComponentAccessRequest describes the reference being accessed, for
// CheckComponentAccess's dispatch by reference variant.
type ComponentAccessRequest struct {
	IsRegistry bool
	Publisher  string
	Name       string
	Version    *semver.Version

	IsLocal bool
	Path    string

	IsHTTP bool
	URL    string
}

// CheckComponentAccess matches Permission::All or the reference-kind
// specific component permission, dispatching by reference variant to
// RegistryComponent|LocalComponent|HttpComponent.
func CheckComponentAccess(req ComponentAccessRequest) Check {
	return func(p Permission) bool {
		if p.Kind == KindAll {
			return true
		}
		switch {
		case req.IsRegistry && p.Kind == KindRegistryComponent:
			if p.Registry.Publisher != nil && *p.Registry.Publisher != req.Publisher {
				return false
			}
			if p.Registry.Name != nil && *p.Registry.Name != req.Name {
				return false
			}
			if p.Registry.VersionReq != nil && req.Version != nil && !p.Registry.VersionReq.Check(req.Version) {
				return false
			}
			return true
		case req.IsLocal && p.Kind == KindLocalComponent:
			if p.String.Shape == MatchWithin {
				return pathWithin(req.Path, p.String.Value)
			}
			return p.String.Matches(req.Path)
		case req.IsHTTP && p.Kind == KindHTTPComponent:
			if p.String.Shape == MatchDomain {
				return urlHostHasDomain(req.URL, p.String.Value)
			}
			return p.String.Matches(req.URL)
		default:
			return false
		}
	}
}
