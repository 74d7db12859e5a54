package schema

import (
	"fmt"
	"sort"
	"strings"
)

// baseFields are accepted on every entity document regardless of template.
// Everything else must be declared by the template or it is rejected.
var baseFields = map[string]bool{
	"id":            true,
	"name":          true,
	"notes":         true,
	"claims":        true,
	"metadata":      true,
	"relationships": true,
}

// FieldRule is the compiled validation rule for one declared field.
type FieldRule struct {
	Name     string
	Kind     FieldKind
	Required bool

	// Enum value set, nil for non-enum fields.
	Values []string

	// Items is the element kind for arrays; empty means any element.
	Items FieldKind

	// Annotations carried through for introspection; not enforced here.
	RefKind     string
	MinItems    int
	Description string
}

// CompiledModel is the runtime validation model for one template. It is a
// pure function of the template content: a single generic interpreter
// walks the field rules instead of generating a type per template.
type CompiledModel struct {
	TemplateID string
	Title      string
	rules      []FieldRule
	byName     map[string]*FieldRule
}

// Result is the outcome of validating untyped input against a model.
type Result struct {
	Passed bool     `json:"passed"`
	Errors []string `json:"errors,omitempty"`
}

// Compile builds the runtime model for a template.
func Compile(tmpl *Template) *CompiledModel {
	m := &CompiledModel{
		TemplateID: tmpl.ID,
		Title:      tmpl.Title,
		rules:      make([]FieldRule, 0, len(tmpl.Fields)),
		byName:     make(map[string]*FieldRule, len(tmpl.Fields)),
	}
	for _, f := range tmpl.Fields {
		rule := FieldRule{
			Name:        f.Name,
			Kind:        f.Kind,
			Required:    tmpl.IsRequired(f.Name),
			Items:       f.Items,
			RefKind:     f.RefKind,
			MinItems:    f.MinItems,
			Description: f.Description,
		}
		if f.Kind == KindEnum {
			rule.Values = append([]string(nil), f.Values...)
		}
		m.rules = append(m.rules, rule)
	}
	for i := range m.rules {
		m.byName[m.rules[i].Name] = &m.rules[i]
	}
	return m
}

// Rules returns the compiled field rules in declaration order.
func (m *CompiledModel) Rules() []FieldRule {
	return m.rules
}

// Rule returns the rule for a named field, or nil.
func (m *CompiledModel) Rule(name string) *FieldRule {
	return m.byName[name]
}

// EnumValues returns the allowed value set for an enum field, or nil.
func (m *CompiledModel) EnumValues(field string) []string {
	if r := m.byName[field]; r != nil {
		return r.Values
	}
	return nil
}

// RefFields returns the rules flagged as cross-reference-bearing.
func (m *CompiledModel) RefFields() []FieldRule {
	var refs []FieldRule
	for _, r := range m.rules {
		if r.RefKind != "" {
			refs = append(refs, r)
		}
	}
	return refs
}

// ConstraintHints summarizes the model for constrained-generation callers:
// required field names plus enum value sets, keyed by field.
func (m *CompiledModel) ConstraintHints() map[string]any {
	hints := make(map[string]any)
	var required []string
	enums := make(map[string][]string)
	for _, r := range m.rules {
		if r.Required {
			required = append(required, r.Name)
		}
		if len(r.Values) > 0 {
			enums[r.Name] = r.Values
		}
	}
	sort.Strings(required)
	hints["template_id"] = m.TemplateID
	hints["required"] = required
	if len(enums) > 0 {
		hints["enums"] = enums
	}
	return hints
}

// Validate checks untyped structured input against the model. Unknown
// fields are rejected; required fields with no value produce a "missing"
// error rather than a silently-defaulted value. Error text never carries
// stack traces, only a dotted field path and the nature of the mismatch.
func (m *CompiledModel) Validate(data map[string]any) *Result {
	res := &Result{Passed: true}
	if data == nil {
		data = map[string]any{}
	}

	// Unknown fields first, in stable order.
	var unknown []string
	for key := range data {
		if baseFields[key] {
			continue
		}
		if m.byName[key] == nil {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	for _, key := range unknown {
		res.Errors = append(res.Errors,
			fmt.Sprintf("Field '%s' is not declared by template %s", key, m.TemplateID))
	}

	for _, rule := range m.rules {
		value, present := data[rule.Name]
		if !present || value == nil {
			if rule.Required {
				res.Errors = append(res.Errors, fmt.Sprintf("'%s' is required", rule.Name))
			}
			continue
		}
		res.Errors = append(res.Errors, checkValue(rule.Name, rule, value)...)
	}

	res.Passed = len(res.Errors) == 0
	return res
}

// checkValue validates one value against a rule, returning error sentences.
func checkValue(path string, rule FieldRule, value any) []string {
	switch rule.Kind {
	case KindString:
		if _, ok := value.(string); !ok {
			return []string{typeError(path, "string", value)}
		}
	case KindBoolean:
		if _, ok := value.(bool); !ok {
			return []string{typeError(path, "boolean", value)}
		}
	case KindInteger:
		f, ok := asNumber(value)
		if !ok {
			return []string{typeError(path, "integer", value)}
		}
		if f != float64(int64(f)) {
			return []string{fmt.Sprintf("Field '%s' expected integer, got fractional number", path)}
		}
	case KindNumber:
		if _, ok := asNumber(value); !ok {
			return []string{typeError(path, "number", value)}
		}
	case KindEnum:
		s, ok := value.(string)
		if !ok {
			return []string{typeError(path, "string", value)}
		}
		for _, allowed := range rule.Values {
			if s == allowed {
				return nil
			}
		}
		return []string{fmt.Sprintf("Field '%s' must be one of [%s], got %q",
			path, strings.Join(rule.Values, ", "), s)}
	case KindArray:
		items, ok := value.([]any)
		if !ok {
			return []string{typeError(path, "array", value)}
		}
		var errs []string
		if rule.Items != "" && rule.Items != KindObject {
			elem := FieldRule{Name: rule.Name, Kind: rule.Items}
			for i, item := range items {
				errs = append(errs, checkValue(fmt.Sprintf("%s.%d", path, i), elem, item)...)
			}
		}
		return errs
	case KindObject:
		// Opaque key-value map; nested structure is not modeled.
		if _, ok := value.(map[string]any); !ok {
			return []string{typeError(path, "object", value)}
		}
	}
	return nil
}

// asNumber accepts the numeric shapes JSON decoding and in-process
// callers produce.
func asNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

func typeError(path, want string, got any) string {
	return fmt.Sprintf("Field '%s' expected %s, got %s", path, want, typeName(got))
}

func typeName(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, float32, int, int64:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// Defaults returns type-appropriate defaults for optional fields: empty
// sequence for arrays, nothing otherwise. Required fields are deliberately
// absent so a missing value surfaces as a "missing" error downstream.
func (m *CompiledModel) Defaults() map[string]any {
	defaults := make(map[string]any)
	for _, r := range m.rules {
		if r.Required {
			continue
		}
		if r.Kind == KindArray {
			defaults[r.Name] = []any{}
		}
	}
	return defaults
}
