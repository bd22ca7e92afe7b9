// Package validation checks admin and public payloads against JSON schemas
// before they are bound to models.
package validation

import (
	"embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/definitions.json
var schemaFS embed.FS

// Kind names a payload schema
type Kind string

const (
	Template     Kind = "template"
	Element      Kind = "element"
	ElementPatch Kind = "elementPatch"
	Layout       Kind = "layout"
	Submission   Kind = "submission"
)

// elementPatch is derived from element: every property except identity,
// type and children, none required.
var patchExcluded = map[string]bool{"id": true, "type": true, "children": true}

// FieldError is a single schema violation
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error lists every violation found in a payload
type Error struct {
	Kind   Kind         `json:"kind"`
	Errors []FieldError `json:"errors"`
}

func (e *Error) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Kind, strings.Join(parts, "; "))
}

// Validator holds the compiled schemas
type Validator struct {
	schemas map[Kind]*gojsonschema.Schema
}

// New compiles the embedded schemas
func New() (*Validator, error) {
	raw, err := schemaFS.ReadFile("schemas/definitions.json")
	if err != nil {
		return nil, errors.Wrap(err, "failed to read schema definitions")
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrap(err, "failed to parse schema definitions")
	}
	defs, ok := doc["definitions"].(map[string]interface{})
	if !ok {
		return nil, errors.New("schema definitions missing")
	}
	defs[string(ElementPatch)] = patchSchema(defs[string(Element)].(map[string]interface{}))

	v := &Validator{schemas: make(map[Kind]*gojsonschema.Schema)}
	for _, kind := range []Kind{Template, Element, ElementPatch, Layout, Submission} {
		root := map[string]interface{}{
			"$schema":     doc["$schema"],
			"definitions": defs,
			"$ref":        "#/definitions/" + string(kind),
		}
		schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(root))
		if err != nil {
			return nil, errors.Wrapf(err, "failed to compile %s schema", kind)
		}
		v.schemas[kind] = schema
	}
	return v, nil
}

func patchSchema(element map[string]interface{}) map[string]interface{} {
	props := make(map[string]interface{})
	for name, p := range element["properties"].(map[string]interface{}) {
		if !patchExcluded[name] {
			props[name] = p
		}
	}
	return map[string]interface{}{
		"type":                 "object",
		"minProperties":        1,
		"additionalProperties": false,
		"properties":           props,
	}
}

// Validate checks a JSON document against the schema for kind
func (v *Validator) Validate(kind Kind, document []byte) error {
	return v.validate(kind, gojsonschema.NewBytesLoader(document))
}

// ValidateValue checks an already decoded value against the schema for kind
func (v *Validator) ValidateValue(kind Kind, value interface{}) error {
	return v.validate(kind, gojsonschema.NewGoLoader(value))
}

func (v *Validator) validate(kind Kind, loader gojsonschema.JSONLoader) error {
	schema, ok := v.schemas[kind]
	if !ok {
		return errors.Errorf("unknown schema %q", kind)
	}

	result, err := schema.Validate(loader)
	if err != nil {
		return &Error{Kind: kind, Errors: []FieldError{{Field: "(root)", Message: "malformed JSON: " + err.Error()}}}
	}
	if result.Valid() {
		return nil
	}

	fieldErrs := make([]FieldError, 0, len(result.Errors()))
	seen := make(map[string]bool)
	for _, re := range result.Errors() {
		fe := FieldError{Field: re.Field(), Message: re.Description()}
		key := fe.Field + "\x00" + fe.Message
		if seen[key] {
			continue
		}
		seen[key] = true
		fieldErrs = append(fieldErrs, fe)
	}
	sort.SliceStable(fieldErrs, func(i, j int) bool { return fieldErrs[i].Field < fieldErrs[j].Field })
	return &Error{Kind: kind, Errors: fieldErrs}
}
