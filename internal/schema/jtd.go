package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// jtdSchema is a hand-rolled JSON TypeDef validator. No JSON TypeDef
// library appears anywhere in the retrieved example pack (teacher or
// siblings); per the dependency-justification rule in DESIGN.md this
// half of the Schema Layer is implemented directly against the
// standard library rather than reaching for an unverified dependency.
//
// It supports the JTD schema forms relevant to component manifests:
// empty, type, enum, elements, properties/optionalProperties, values,
// ref, and the nullable modifier, which together cover every shape a
// JSON-value-in/JSON-value-out component contract needs.
type jtdSchema struct {
	root        *jtdNode
	definitions map[string]*jtdNode
}

type jtdNode struct {
	Nullable bool

	// exactly one of the following is set, or none for the empty form
	Type                string
	Enum                map[string]struct{}
	Elements             *jtdNode
	Properties            map[string]*jtdNode
	OptionalProperties    map[string]*jtdNode
	AdditionalProperties  bool
	Values                *jtdNode
	Ref                   string
}

type jtdRaw struct {
	Nullable             bool                      `json:"nullable,omitempty"`
	Type                 string                    `json:"type,omitempty"`
	Enum                 []string                  `json:"enum,omitempty"`
	Elements             *jtdRaw                   `json:"elements,omitempty"`
	Properties           map[string]*jtdRaw        `json:"properties,omitempty"`
	OptionalProperties    map[string]*jtdRaw        `json:"optionalProperties,omitempty"`
	AdditionalProperties  bool                      `json:"additionalProperties,omitempty"`
	Values               *jtdRaw                   `json:"values,omitempty"`
	Ref                  string                    `json:"ref,omitempty"`
	Definitions          map[string]*jtdRaw        `json:"definitions,omitempty"`
}

func compileJSONTypeDef(name string, raw json.RawMessage) (*jtdSchema, error) {
	var doc jtdRaw
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("schema %s: invalid JSON TypeDef document: %w", name, err)
	}

	defs := map[string]*jtdNode{}
	for defName, defRaw := range doc.Definitions {
		defs[defName] = convertJTDNode(defRaw)
	}

	root := convertJTDNode(&doc)

	return &jtdSchema{root: root, definitions: defs}, nil
}

func convertJTDNode(raw *jtdRaw) *jtdNode {
	if raw == nil {
		return &jtdNode{}
	}
	node := &jtdNode{
		Nullable:             raw.Nullable,
		Type:                 raw.Type,
		AdditionalProperties: raw.AdditionalProperties,
		Ref:                  raw.Ref,
	}
	if len(raw.Enum) > 0 {
		node.Enum = make(map[string]struct{}, len(raw.Enum))
		for _, v := range raw.Enum {
			node.Enum[v] = struct{}{}
		}
	}
	if raw.Elements != nil {
		node.Elements = convertJTDNode(raw.Elements)
	}
	if raw.Properties != nil {
		node.Properties = make(map[string]*jtdNode, len(raw.Properties))
		for k, v := range raw.Properties {
			node.Properties[k] = convertJTDNode(v)
		}
	}
	if raw.OptionalProperties != nil {
		node.OptionalProperties = make(map[string]*jtdNode, len(raw.OptionalProperties))
		for k, v := range raw.OptionalProperties {
			node.OptionalProperties[k] = convertJTDNode(v)
		}
	}
	if raw.Values != nil {
		node.Values = convertJTDNode(raw.Values)
	}
	return node
}

func validateJSONTypeDef(s *jtdSchema, value any) ([]ValidationFailure, error) {
	var failures []ValidationFailure
	validateJTDNode(s.root, s.definitions, value, "", &failures)
	return failures, nil
}

func validateJTDNode(node *jtdNode, defs map[string]*jtdNode, value any, path string, failures *[]ValidationFailure) {
	if value == nil {
		if node.Nullable || isEmptyForm(node) {
			return
		}
		*failures = append(*failures, ValidationFailure{InstancePath: path, SchemaPath: path, Message: "value is null but schema is not nullable"})
		return
	}

	switch {
	case node.Ref != "":
		target, ok := defs[node.Ref]
		if !ok {
			*failures = append(*failures, ValidationFailure{InstancePath: path, SchemaPath: path, Message: fmt.Sprintf("unresolved ref %q", node.Ref)})
			return
		}
		validateJTDNode(target, defs, value, path, failures)

	case node.Type != "":
		validateJTDType(node.Type, value, path, failures)

	case node.Enum != nil:
		s, ok := value.(string)
		if !ok {
			*failures = append(*failures, ValidationFailure{InstancePath: path, SchemaPath: path, Message: "value is not a string for enum schema"})
			return
		}
		if _, ok := node.Enum[s]; !ok {
			*failures = append(*failures, ValidationFailure{InstancePath: path, SchemaPath: path, Message: fmt.Sprintf("value %q is not one of the enum values", s)})
		}

	case node.Elements != nil:
		arr, ok := value.([]any)
		if !ok {
			*failures = append(*failures, ValidationFailure{InstancePath: path, SchemaPath: path, Message: "value is not an array"})
			return
		}
		for i, elem := range arr {
			validateJTDNode(node.Elements, defs, elem, fmt.Sprintf("%s[%d]", path, i), failures)
		}

	case node.Values != nil:
		obj, ok := value.(map[string]any)
		if !ok {
			*failures = append(*failures, ValidationFailure{InstancePath: path, SchemaPath: path, Message: "value is not an object"})
			return
		}
		for k, v := range obj {
			validateJTDNode(node.Values, defs, v, path+"/"+k, failures)
		}

	case node.Properties != nil || node.OptionalProperties != nil:
		obj, ok := value.(map[string]any)
		if !ok {
			*failures = append(*failures, ValidationFailure{InstancePath: path, SchemaPath: path, Message: "value is not an object"})
			return
		}
		for k, sub := range node.Properties {
			v, present := obj[k]
			if !present {
				*failures = append(*failures, ValidationFailure{InstancePath: path + "/" + k, SchemaPath: path + "/" + k, Message: fmt.Sprintf("missing required property %q", k)})
				continue
			}
			validateJTDNode(sub, defs, v, path+"/"+k, failures)
		}
		for k, sub := range node.OptionalProperties {
			if v, present := obj[k]; present {
				validateJTDNode(sub, defs, v, path+"/"+k, failures)
			}
		}
		if !node.AdditionalProperties {
			for k := range obj {
				if _, ok := node.Properties[k]; ok {
					continue
				}
				if _, ok := node.OptionalProperties[k]; ok {
					continue
				}
				*failures = append(*failures, ValidationFailure{InstancePath: path + "/" + k, SchemaPath: path, Message: fmt.Sprintf("unexpected additional property %q", k)})
			}
		}

	default:
		// Empty form: any value (including the null already handled above) is valid.
	}
}

func isEmptyForm(node *jtdNode) bool {
	return node.Type == "" && node.Enum == nil && node.Elements == nil &&
		node.Properties == nil && node.OptionalProperties == nil && node.Values == nil && node.Ref == ""
}

func validateJTDType(jtdType string, value any, path string, failures *[]ValidationFailure) {
	switch jtdType {
	case "boolean":
		if _, ok := value.(bool); !ok {
			addTypeFailure(failures, path, "boolean")
		}
	case "string":
		if _, ok := value.(string); !ok {
			addTypeFailure(failures, path, "string")
		}
	case "timestamp":
		s, ok := value.(string)
		if !ok {
			addTypeFailure(failures, path, "timestamp")
			return
		}
		if _, err := time.Parse(time.RFC3339, s); err != nil {
			*failures = append(*failures, ValidationFailure{InstancePath: path, SchemaPath: path, Message: "value is not an RFC3339 timestamp"})
		}
	case "float32", "float64":
		if _, ok := value.(float64); !ok {
			addTypeFailure(failures, path, jtdType)
		}
	case "int8", "uint8", "int16", "uint16", "int32", "uint32":
		n, ok := value.(float64)
		if !ok {
			addTypeFailure(failures, path, jtdType)
			return
		}
		if n != float64(int64(n)) {
			*failures = append(*failures, ValidationFailure{InstancePath: path, SchemaPath: path, Message: fmt.Sprintf("value is not an integer for type %q", jtdType)})
			return
		}
		lo, hi := jtdIntRange(jtdType)
		if n < lo || n > hi {
			*failures = append(*failures, ValidationFailure{InstancePath: path, SchemaPath: path, Message: fmt.Sprintf("value %v is out of range for type %q", int64(n), jtdType)})
		}
	default:
		*failures = append(*failures, ValidationFailure{InstancePath: path, SchemaPath: path, Message: fmt.Sprintf("unknown JSON TypeDef type %q", jtdType)})
	}
}

// jtdIntRange returns the inclusive bounds of one of JSON TypeDef's six
// fixed-width integer types.
func jtdIntRange(jtdType string) (lo, hi float64) {
	switch jtdType {
	case "int8":
		return math.MinInt8, math.MaxInt8
	case "uint8":
		return 0, math.MaxUint8
	case "int16":
		return math.MinInt16, math.MaxInt16
	case "uint16":
		return 0, math.MaxUint16
	case "int32":
		return math.MinInt32, math.MaxInt32
	default: // uint32
		return 0, math.MaxUint32
	}
}

func addTypeFailure(failures *[]ValidationFailure, path, expected string) {
	*failures = append(*failures, ValidationFailure{InstancePath: path, SchemaPath: path, Message: fmt.Sprintf("value is not of type %q", expected)})
}
