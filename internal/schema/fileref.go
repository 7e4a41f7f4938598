package schema

import (
	"fmt"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// fileRefLoader resolves external $ref URLs that point at a
// component's own auxiliary files (as opposed to http(s):// refs,
// which the compiler already knows how to fetch) against a
// FileResolver, lazily — only once the compiler actually follows the
// $ref.
type fileRefLoader struct {
	files FileResolver
}

func newFileRefLoader(files FileResolver) jsonschema.URLLoader {
	return &fileRefLoader{files: files}
}

func (l *fileRefLoader) Load(url string) (any, error) {
	doc, err := l.files.TryGetJSON(url)
	if err != nil {
		return nil, fmt.Errorf("resolving external schema ref %q: %w", url, err)
	}
	return doc, nil
}
