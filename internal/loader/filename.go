package loader

import (
	"crypto/sha256"
	"fmt"
	"net/url"
	"strings"
)

const (
	hashPrefixLength       = 8
	maxFilenameBaseLength  = 100
	componentFileExtension = ".tar"
)

// filenameFromURL builds the deterministic local cache filename for a
// downloaded component tarball: a sanitized, length-capped "host+path"
// base, a dash, an 8-hex-character prefix of the URL's SHA256 hash,
// and a .tar extension. Deterministic so repeated downloads of the
// same URL land on the same cache path.
func filenameFromURL(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid component URL %q: %w", rawURL, err)
	}

	hash := sha256.Sum256([]byte(rawURL))
	hashHex := fmt.Sprintf("%x", hash)
	hashPrefix := hashHex[:hashPrefixLength]

	base := parsed.Hostname() + parsed.EscapedPath()
	sanitized := sanitizeFilename(base)
	if len(sanitized) > maxFilenameBaseLength {
		sanitized = sanitized[:maxFilenameBaseLength]
	}

	return fmt.Sprintf("%s-%s%s", sanitized, hashPrefix, componentFileExtension), nil
}

func sanitizeFilename(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if isFilenameCharAllowed(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	sanitized := b.String()
	if strings.HasPrefix(sanitized, ".") {
		sanitized = "_" + sanitized[1:]
	}
	return sanitized
}

func isFilenameCharAllowed(r rune) bool {
	switch {
	case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		return true
	case r == '.', r == '-', r == '_':
		return true
	default:
		return false
	}
}
