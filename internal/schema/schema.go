// Package schema defines the extraction schema contract: the typed shape
// extraction results must conform to, and validation of candidate data
// against it.
//
// A schema describes exactly one item type (named fields, each primitive or
// nested) and one implicit container type: an ordered sequence of items
// stored under the container key.
package schema

import (
	"encoding/json"
	"fmt"
)

// FieldType identifies the primitive or composite type of a field.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeNumber  FieldType = "number"
	TypeInteger FieldType = "integer"
	TypeBoolean FieldType = "boolean"
	TypeObject  FieldType = "object"
	TypeArray   FieldType = "array"
)

// Field describes one named field of the item type.
type Field struct {
	Name        string    `json:"name"`
	Type        FieldType `json:"type"`
	Required    bool      `json:"required"`
	Description string    `json:"description,omitempty"`

	// Fields holds the nested shape when Type is object, or the element
	// shape when Type is array-of-object. Empty for primitives and arrays
	// of primitives.
	Fields []Field `json:"fields,omitempty"`
}

// Schema is the immutable extraction contract for one request.
type Schema struct {
	// Name is the item type name (e.g. "Product").
	Name string `json:"name"`

	// ContainerKey is the key the item sequence lives under (e.g. "products").
	ContainerKey string `json:"container_key"`

	Fields []Field `json:"fields"`
}

// Field returns the named top-level field.
func (s *Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// FieldCount returns the number of top-level item fields.
func (s *Schema) FieldCount() int {
	return len(s.Fields)
}

// HasNestedFields reports whether any item field is an object or an array
// of objects.
func (s *Schema) HasNestedFields() bool {
	for _, f := range s.Fields {
		if f.Type == TypeObject {
			return true
		}
		if f.Type == TypeArray && len(f.Fields) > 0 {
			return true
		}
	}
	return false
}

// RequiredFields returns the names of all required top-level fields.
func (s *Schema) RequiredFields() []string {
	var names []string
	for _, f := range s.Fields {
		if f.Required {
			names = append(names, f.Name)
		}
	}
	return names
}

// ItemJSONSchema renders the item type as a JSON Schema object. Used as the
// strict output contract in model prompts.
func (s *Schema) ItemJSONSchema() map[string]any {
	return fieldsToJSONSchema(s.Fields)
}

// ContainerJSONSchema renders the full container shape as a JSON Schema
// object: one required array property holding item objects.
func (s *Schema) ContainerJSONSchema() map[string]any {
	return map[string]any{
		"type":  "object",
		"title": s.Name + "List",
		"properties": map[string]any{
			s.ContainerKey: map[string]any{
				"type":  "array",
				"items": s.ItemJSONSchema(),
			},
		},
		"required": []string{s.ContainerKey},
	}
}

func fieldsToJSONSchema(fields []Field) map[string]any {
	props := make(map[string]any, len(fields))
	var required []string
	for _, f := range fields {
		var prop map[string]any
		switch f.Type {
		case TypeObject:
			prop = fieldsToJSONSchema(f.Fields)
		case TypeArray:
			items := map[string]any{"type": "string"}
			if len(f.Fields) > 0 {
				items = fieldsToJSONSchema(f.Fields)
			}
			prop = map[string]any{"type": "array", "items": items}
		default:
			prop = map[string]any{"type": string(f.Type)}
		}
		if f.Description != "" {
			prop["description"] = f.Description
		}
		props[f.Name] = prop
		if f.Required {
			required = append(required, f.Name)
		}
	}
	out := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		out["required"] = required
	}
	return out
}

// jsonSchemaDoc is the subset of JSON Schema we accept from the
// schema-generation collaborator.
type jsonSchemaDoc struct {
	Title      string                    `json:"title"`
	Type       string                    `json:"type"`
	Properties map[string]jsonSchemaProp `json:"properties"`
	Required   []string                  `json:"required"`
	Defs       map[string]jsonSchemaProp `json:"$defs"`
}

type jsonSchemaProp struct {
	Type        string                    `json:"type"`
	Description string                    `json:"description"`
	Ref         string                    `json:"$ref"`
	Items       *jsonSchemaProp           `json:"items"`
	Properties  map[string]jsonSchemaProp `json:"properties"`
	Required    []string                  `json:"required"`
	Title       string                    `json:"title"`
	AnyOf       []jsonSchemaProp          `json:"anyOf"`
}

// ParseJSONSchema parses a container-shaped JSON Schema document into a
// Schema. The document must be an object with exactly one array-of-object
// property; that property becomes the container key and the array's item
// shape becomes the item type. This is the shape the schema-generation
// collaborator emits.
func ParseJSONSchema(raw []byte) (*Schema, error) {
	var doc jsonSchemaDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("invalid JSON schema: %w", err)
	}
	if doc.Type != "" && doc.Type != "object" {
		return nil, fmt.Errorf("container schema must be an object, got %q", doc.Type)
	}

	var containerKey string
	var itemProp *jsonSchemaProp
	for key, prop := range doc.Properties {
		p := resolveRef(prop, doc.Defs)
		if p.Type != "array" || p.Items == nil {
			continue
		}
		items := resolveRef(*p.Items, doc.Defs)
		if items.Type != "object" {
			continue
		}
		if containerKey != "" {
			return nil, fmt.Errorf("container schema has more than one item sequence (%q and %q)", containerKey, key)
		}
		containerKey = key
		itemProp = &items
	}
	if containerKey == "" {
		return nil, fmt.Errorf("container schema has no array-of-object property")
	}

	fields, err := parseFields(itemProp.Properties, itemProp.Required, doc.Defs)
	if err != nil {
		return nil, err
	}

	name := itemProp.Title
	if name == "" {
		name = doc.Title
	}
	if name == "" {
		name = "Item"
	}

	return &Schema{
		Name:         name,
		ContainerKey: containerKey,
		Fields:       fields,
	}, nil
}

func parseFields(props map[string]jsonSchemaProp, required []string, defs map[string]jsonSchemaProp) ([]Field, error) {
	isRequired := make(map[string]bool, len(required))
	for _, r := range required {
		isRequired[r] = true
	}

	seen := make(map[string]bool, len(props))
	fields := make([]Field, 0, len(props))
	for name, prop := range props {
		if seen[name] {
			return nil, fmt.Errorf("duplicate field name %q", name)
		}
		seen[name] = true

		f, err := parseField(name, prop, defs)
		if err != nil {
			return nil, err
		}
		f.Required = isRequired[name]
		fields = append(fields, f)
	}
	return fields, nil
}

func parseField(name string, prop jsonSchemaProp, defs map[string]jsonSchemaProp) (Field, error) {
	p := resolveRef(prop, defs)

	// Optional fields come through as anyOf [T, null]; unwrap to T.
	if p.Type == "" && len(p.AnyOf) > 0 {
		for _, alt := range p.AnyOf {
			alt = resolveRef(alt, defs)
			if alt.Type != "" && alt.Type != "null" {
				alt.Description = p.Description
				p = alt
				break
			}
		}
	}

	f := Field{Name: name, Description: p.Description}
	switch p.Type {
	case "string":
		f.Type = TypeString
	case "number":
		f.Type = TypeNumber
	case "integer":
		f.Type = TypeInteger
	case "boolean":
		f.Type = TypeBoolean
	case "object":
		f.Type = TypeObject
		nested, err := parseFields(p.Properties, p.Required, defs)
		if err != nil {
			return Field{}, err
		}
		f.Fields = nested
	case "array":
		f.Type = TypeArray
		if p.Items != nil {
			items := resolveRef(*p.Items, defs)
			if items.Type == "object" {
				nested, err := parseFields(items.Properties, items.Required, defs)
				if err != nil {
					return Field{}, err
				}
				f.Fields = nested
			}
		}
	case "":
		f.Type = TypeString
	default:
		return Field{}, fmt.Errorf("field %q has unsupported type %q", name, p.Type)
	}
	return f, nil
}

func resolveRef(prop jsonSchemaProp, defs map[string]jsonSchemaProp) jsonSchemaProp {
	if prop.Ref == "" {
		return prop
	}
	// Only local refs of the form "#/$defs/Name" are emitted by the
	// generation collaborator.
	const prefix = "#/$defs/"
	name := prop.Ref
	if len(name) > len(prefix) && name[:len(prefix)] == prefix {
		name = name[len(prefix):]
	}
	if def, ok := defs[name]; ok {
		if prop.Description != "" && def.Description == "" {
			def.Description = prop.Description
		}
		return def
	}
	return prop
}
