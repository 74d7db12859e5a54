// Package schema loads declarative entity templates and compiles each one
// into a runtime validation model. Templates are JSON documents identified
// by their "$id"; compiled models are cached per identifier for the life
// of the process.
package schema

import (
	"encoding/json"
	"fmt"
)

// FieldKind is the declared kind of a template field.
type FieldKind string

const (
	KindString  FieldKind = "string"
	KindInteger FieldKind = "integer"
	KindNumber  FieldKind = "number"
	KindBoolean FieldKind = "boolean"
	KindArray   FieldKind = "array"
	KindObject  FieldKind = "object"
	KindEnum    FieldKind = "enum"
)

// validKinds is the set of kinds a template may declare.
var validKinds = map[FieldKind]bool{
	KindString:  true,
	KindInteger: true,
	KindNumber:  true,
	KindBoolean: true,
	KindArray:   true,
	KindObject:  true,
	KindEnum:    true,
}

// FieldDef declares one template field.
type FieldDef struct {
	Name string    `json:"name"`
	Kind FieldKind `json:"kind"`

	// Values is the allowed set for enum fields. Preserved on the
	// compiled model so constrained-decoding callers can restrict
	// generation to these values.
	Values []string `json:"values,omitempty"`

	// Items is the element kind for array fields. One level of nesting
	// only: array-of-object elements are treated as opaque maps.
	Items FieldKind `json:"items,omitempty"`

	// RefKind marks a field as containing entity identifiers of the
	// named entity type. Non-validating annotation read by the rule
	// checker for cross-reference checks.
	RefKind string `json:"ref_kind,omitempty"`

	// MinItems is the minimum element count for array fields.
	// Non-validating annotation.
	MinItems int `json:"min_items,omitempty"`

	Description string `json:"description,omitempty"`
}

// Template is a declarative schema for one entity type. Immutable once
// loaded; identified globally by its $id.
type Template struct {
	ID       string     `json:"$id"`
	Title    string     `json:"title"`
	Fields   []FieldDef `json:"fields"`
	Required []string   `json:"required,omitempty"`
}

// ParseTemplate decodes and sanity-checks a template document.
func ParseTemplate(data []byte) (*Template, error) {
	var tmpl Template
	if err := json.Unmarshal(data, &tmpl); err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}
	if tmpl.ID == "" {
		return nil, fmt.Errorf("template has no $id")
	}

	seen := make(map[string]bool, len(tmpl.Fields))
	for _, f := range tmpl.Fields {
		if f.Name == "" {
			return nil, fmt.Errorf("template %s: field with empty name", tmpl.ID)
		}
		if seen[f.Name] {
			return nil, fmt.Errorf("template %s: duplicate field %q", tmpl.ID, f.Name)
		}
		seen[f.Name] = true
		if !validKinds[f.Kind] {
			return nil, fmt.Errorf("template %s: field %q has unknown kind %q", tmpl.ID, f.Name, f.Kind)
		}
		if f.Kind == KindEnum && len(f.Values) == 0 {
			return nil, fmt.Errorf("template %s: enum field %q declares no values", tmpl.ID, f.Name)
		}
		if f.Kind == KindArray && f.Items != "" && !validKinds[f.Items] {
			return nil, fmt.Errorf("template %s: array field %q has unknown item kind %q", tmpl.ID, f.Name, f.Items)
		}
	}

	for _, req := range tmpl.Required {
		if !seen[req] {
			return nil, fmt.Errorf("template %s: required field %q is not declared", tmpl.ID, req)
		}
	}

	return &tmpl, nil
}

// IsRequired reports whether the named field is in the required set.
func (t *Template) IsRequired(name string) bool {
	for _, r := range t.Required {
		if r == name {
			return true
		}
	}
	return false
}

// Field returns the declaration for a named field, or nil.
func (t *Template) Field(name string) *FieldDef {
	for i := range t.Fields {
		if t.Fields[i].Name == name {
			return &t.Fields[i]
		}
	}
	return nil
}

// RefFields returns the declarations flagged as cross-reference-bearing.
func (t *Template) RefFields() []FieldDef {
	var refs []FieldDef
	for _, f := range t.Fields {
		if f.RefKind != "" {
			refs = append(refs, f)
		}
	}
	return refs
}
