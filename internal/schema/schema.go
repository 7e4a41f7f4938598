// Package schema implements the uniform validate() contract over the
// two schema dialects components may declare: JSON Schema and JSON
// TypeDef. Dispatch between the two is by inspecting the document's
// declared $schema.
package schema

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// Dialect names which schema language a Schema was parsed from.
type Dialect int

const (
	DialectJSONSchema Dialect = iota
	DialectJSONTypeDef
)

// FileResolver resolves an external schema $ref against a component's
// own auxiliary files rather than the network, mirroring
// files.get_json(path) against the component's own directory.
type FileResolver interface {
	TryGetJSON(path string) (any, error)
}

// ValidationFailure is a single schema violation, normalized to the
// same shape regardless of which dialect produced it.
type ValidationFailure struct {
	InstancePath string
	SchemaPath   string
	Message      string
}

// AbortedError indicates the validator itself could not run (e.g. an
// unreachable external $ref), as distinct from the input simply
// failing validation.
type AbortedError struct {
	Reason string
}

func (e *AbortedError) Error() string {
	return fmt.Sprintf("schema validation aborted: %s", e.Reason)
}

// Schema is the uniform handle returned by Parse: either dialect,
// behind one Validate method.
type Schema struct {
	dialect  Dialect
	name     string
	original json.RawMessage

	jsonSchema *jsonschema.Schema
	typeDef    *jtdSchema
}

// Dialect reports which schema language backs this Schema.
func (s *Schema) Dialect() Dialect { return s.dialect }

// Original returns the schema document exactly as parsed, for
// re-serialization into manifests or debug rigs.
func (s *Schema) Original() json.RawMessage { return s.original }

// Parse detects the dialect of raw and compiles it. name identifies
// the schema in error messages (e.g. "<component>.input").
func Parse(name string, raw json.RawMessage, files FileResolver) (*Schema, error) {
	var probe map[string]any
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("schema %s: invalid JSON: %w", name, err)
	}

	if isJSONSchema(probe) {
		compiled, err := compileJSONSchema(name, raw, files)
		if err != nil {
			return nil, err
		}
		return &Schema{dialect: DialectJSONSchema, name: name, original: raw, jsonSchema: compiled}, nil
	}

	compiled, err := compileJSONTypeDef(name, raw)
	if err != nil {
		return nil, err
	}
	return &Schema{dialect: DialectJSONTypeDef, name: name, original: raw, typeDef: compiled}, nil
}

// isJSONSchema detects the dialect: a string $schema field containing
// "://json-schema.org/" selects JSON Schema; anything else (including
// absence of $schema) is treated as JSON TypeDef.
func isJSONSchema(doc map[string]any) bool {
	raw, ok := doc["$schema"]
	if !ok {
		return false
	}
	s, ok := raw.(string)
	if !ok {
		return false
	}
	return strings.Contains(s, "://json-schema.org/")
}

func compileJSONSchema(name string, raw json.RawMessage, files FileResolver) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("schema %s: %w", name, err)
	}

	resourceURL := name + ".schema.json"
	if err := compiler.AddResource(resourceURL, doc); err != nil {
		return nil, &AbortedError{Reason: fmt.Sprintf("failed to add schema resource for %s: %v", name, err)}
	}

	if files != nil {
		compiler.UseLoader(newFileRefLoader(files))
	}

	compiled, err := compiler.Compile(resourceURL)
	if err != nil {
		return nil, &AbortedError{Reason: fmt.Sprintf("failed to compile schema %s: %v", name, err)}
	}
	return compiled, nil
}

// Validate runs value against the schema, returning normalized
// failures. A nil, nil return means value is valid. An *AbortedError
// means the validator could not evaluate value at all.
func (s *Schema) Validate(value any) ([]ValidationFailure, error) {
	switch s.dialect {
	case DialectJSONSchema:
		return validateJSONSchema(s.jsonSchema, value)
	case DialectJSONTypeDef:
		return validateJSONTypeDef(s.typeDef, value)
	default:
		return nil, &AbortedError{Reason: "unknown schema dialect"}
	}
}

func validateJSONSchema(compiled *jsonschema.Schema, value any) ([]ValidationFailure, error) {
	err := compiled.Validate(value)
	if err == nil {
		return nil, nil
	}

	validationErr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return nil, &AbortedError{Reason: err.Error()}
	}

	var failures []ValidationFailure
	var walk func(*jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			failures = append(failures, ValidationFailure{
				InstancePath: jsonPointerString(e.InstanceLocation),
				SchemaPath:   jsonPointerString(e.ErrorKind.KeywordPath()),
				Message:      e.Error(),
			})
			return
		}
		for _, cause := range e.Causes {
			walk(cause)
		}
	}
	walk(validationErr)
	return failures, nil
}

func jsonPointerString(parts []string) string {
	if len(parts) == 0 {
		return "/"
	}
	return "/" + strings.Join(parts, "/")
}
