package schema

import (
	"strings"
	"testing"
)

func godTemplate(t *testing.T) *Template {
	t.Helper()
	tmpl, err := ParseTemplate([]byte(`{
		"$id": "god-profile",
		"title": "God",
		"required": ["domain_primary", "alignment", "symbol", "pantheon_id"],
		"fields": [
			{"name": "domain_primary", "kind": "string", "description": "Primary divine domain"},
			{"name": "alignment", "kind": "enum", "values": ["good", "neutral", "evil"]},
			{"name": "alignment_nuance", "kind": "string"},
			{"name": "symbol", "kind": "string"},
			{"name": "pantheon_id", "kind": "string", "ref_kind": "pantheon"},
			{"name": "titles", "kind": "array", "items": "string", "min_items": 1},
			{"name": "worship_stats", "kind": "object"},
			{"name": "age", "kind": "integer"}
		]
	}`))
	if err != nil {
		t.Fatalf("parse template: %v", err)
	}
	return tmpl
}

func TestValidateRequiredFields(t *testing.T) {
	model := Compile(godTemplate(t))

	res := model.Validate(map[string]any{
		"name": "Thalor",
	})
	if res.Passed {
		t.Fatal("expected validation failure for missing required fields")
	}

	for _, field := range []string{"domain_primary", "alignment", "symbol", "pantheon_id"} {
		found := false
		for _, e := range res.Errors {
			if strings.Contains(e, "'"+field+"' is required") {
				found = true
			}
			if strings.Contains(e, "goroutine") || strings.Contains(e, ".go:") {
				t.Errorf("error text leaks internals: %q", e)
			}
		}
		if !found {
			t.Errorf("expected a missing-field error for %s, got %v", field, res.Errors)
		}
	}
}

func TestValidateFieldKinds(t *testing.T) {
	model := Compile(godTemplate(t))

	tests := []struct {
		name       string
		data       map[string]any
		wantPassed bool
		wantErr    string
	}{
		{
			name: "valid entity",
			data: map[string]any{
				"name":           "Thalor",
				"domain_primary": "storms",
				"alignment":      "neutral",
				"symbol":         "a forked bolt",
				"pantheon_id":    "pantheon-aesir",
				"titles":         []any{"Stormfather"},
				"worship_stats":  map[string]any{"temples": float64(12)},
				"age":            float64(4000),
			},
			wantPassed: true,
		},
		{
			name: "wrong type",
			data: map[string]any{
				"domain_primary": float64(7),
				"alignment":      "neutral",
				"symbol":         "bolt",
				"pantheon_id":    "pantheon-aesir",
			},
			wantPassed: false,
			wantErr:    "Field 'domain_primary' expected string",
		},
		{
			name: "invalid enum choice",
			data: map[string]any{
				"domain_primary": "storms",
				"alignment":      "chaotic",
				"symbol":         "bolt",
				"pantheon_id":    "pantheon-aesir",
			},
			wantPassed: false,
			wantErr:    "must be one of [good, neutral, evil]",
		},
		{
			name: "unknown field rejected",
			data: map[string]any{
				"domain_primary": "storms",
				"alignment":      "good",
				"symbol":         "bolt",
				"pantheon_id":    "pantheon-aesir",
				"favorite_color": "blue",
			},
			wantPassed: false,
			wantErr:    "Field 'favorite_color' is not declared",
		},
		{
			name: "base fields always accepted",
			data: map[string]any{
				"id":             "god-thalor",
				"name":           "Thalor",
				"notes":          "storm god",
				"claims":         []any{},
				"metadata":       map[string]any{},
				"relationships":  []any{},
				"domain_primary": "storms",
				"alignment":      "good",
				"symbol":         "bolt",
				"pantheon_id":    "pantheon-aesir",
			},
			wantPassed: true,
		},
		{
			name: "array element type checked with indexed path",
			data: map[string]any{
				"domain_primary": "storms",
				"alignment":      "good",
				"symbol":         "bolt",
				"pantheon_id":    "pantheon-aesir",
				"titles":         []any{"Stormfather", float64(3)},
			},
			wantPassed: false,
			wantErr:    "Field 'titles.1' expected string",
		},
		{
			name: "fractional integer rejected",
			data: map[string]any{
				"domain_primary": "storms",
				"alignment":      "good",
				"symbol":         "bolt",
				"pantheon_id":    "pantheon-aesir",
				"age":            4000.5,
			},
			wantPassed: false,
			wantErr:    "expected integer, got fractional",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := model.Validate(tt.data)
			if res.Passed != tt.wantPassed {
				t.Fatalf("passed=%v, want %v (errors: %v)", res.Passed, tt.wantPassed, res.Errors)
			}
			if tt.wantErr != "" {
				found := false
				for _, e := range res.Errors {
					if strings.Contains(e, tt.wantErr) {
						found = true
						break
					}
				}
				if !found {
					t.Errorf("expected error containing %q, got %v", tt.wantErr, res.Errors)
				}
			}
		})
	}
}

func TestCompiledModelIntrospection(t *testing.T) {
	model := Compile(godTemplate(t))

	values := model.EnumValues("alignment")
	if len(values) != 3 || values[0] != "good" {
		t.Errorf("unexpected enum values: %v", values)
	}
	if model.EnumValues("symbol") != nil {
		t.Error("expected nil enum values for non-enum field")
	}

	refs := model.RefFields()
	if len(refs) != 1 || refs[0].Name != "pantheon_id" || refs[0].RefKind != "pantheon" {
		t.Errorf("unexpected ref fields: %+v", refs)
	}

	hints := model.ConstraintHints()
	required, _ := hints["required"].([]string)
	if len(required) != 4 {
		t.Errorf("expected 4 required fields in hints, got %v", required)
	}
	enums, _ := hints["enums"].(map[string][]string)
	if _, ok := enums["alignment"]; !ok {
		t.Errorf("expected alignment enum in hints, got %v", enums)
	}
}

func TestDefaults(t *testing.T) {
	model := Compile(godTemplate(t))
	defaults := model.Defaults()

	// Optional arrays default to an empty sequence.
	if v, ok := defaults["titles"]; !ok {
		t.Error("expected default for optional array field")
	} else if arr, ok := v.([]any); !ok || len(arr) != 0 {
		t.Errorf("expected empty sequence default, got %v", v)
	}

	// Required fields carry no default so absence surfaces as an error.
	if _, ok := defaults["domain_primary"]; ok {
		t.Error("required field must not have a default")
	}
}

func TestParseTemplateErrors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{"missing id", `{"title": "X", "fields": []}`, "no $id"},
		{"unknown kind", `{"$id": "x", "fields": [{"name": "a", "kind": "decimal"}]}`, "unknown kind"},
		{"enum without values", `{"$id": "x", "fields": [{"name": "a", "kind": "enum"}]}`, "declares no values"},
		{"duplicate field", `{"$id": "x", "fields": [{"name": "a", "kind": "string"}, {"name": "a", "kind": "string"}]}`, "duplicate field"},
		{"undeclared required", `{"$id": "x", "fields": [{"name": "a", "kind": "string"}], "required": ["b"]}`, "not declared"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTemplate([]byte(tt.doc))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}
