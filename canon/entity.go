// Package canon defines the worldbuilding document types shared by the
// validation core: entities, relationships, and canon claims.
package canon

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle state of an entity document.
type Status string

const (
	// StatusDraft indicates an entity still being generated or edited.
	StatusDraft Status = "draft"
	// StatusReview indicates an entity awaiting human review.
	StatusReview Status = "review"
	// StatusFinal indicates a canonized entity.
	StatusFinal Status = "final"
	// StatusArchived indicates an entity removed from active canon.
	StatusArchived Status = "archived"
)

// Metadata is the document header owned by the storage layer.
type Metadata struct {
	ID         string    `json:"id"`
	TemplateID string    `json:"template_id"`
	EntityType string    `json:"entity_type,omitempty"`
	Status     Status    `json:"status,omitempty"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
	UpdatedAt  time.Time `json:"updated_at,omitempty"`
}

// Relationship links one entity to another by identifier.
type Relationship struct {
	TargetID    string `json:"target_id"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// Claim is a free-text canon assertion attached to an entity.
type Claim struct {
	Text string   `json:"text"`
	Refs []string `json:"refs,omitempty"`
}

// OwnedClaim is a claim paired with its owning entity, as aggregated
// into the flat corpus consumed by the similarity engine.
type OwnedClaim struct {
	EntityID   string
	EntityName string
	Text       string
}

// Entity is a structured worldbuilding document conforming to a template.
// The validation core treats it as read-only input.
type Entity struct {
	Metadata      Metadata       `json:"metadata"`
	Name          string         `json:"name"`
	Notes         string         `json:"notes,omitempty"`
	Fields        map[string]any `json:"fields,omitempty"`
	Relationships []Relationship `json:"relationships,omitempty"`
	Claims        []Claim        `json:"claims,omitempty"`
}

// ID returns the entity identifier.
func (e *Entity) ID() string {
	return e.Metadata.ID
}

// TemplateID returns the declared template identifier.
func (e *Entity) TemplateID() string {
	return e.Metadata.TemplateID
}

// Field returns a template-declared field value, or nil when absent.
func (e *Entity) Field(name string) any {
	if e.Fields == nil {
		return nil
	}
	return e.Fields[name]
}

// StringField returns a field coerced to string, or "" when absent or
// not a string.
func (e *Entity) StringField(name string) string {
	if s, ok := e.Field(name).(string); ok {
		return s
	}
	return ""
}

// NumberField returns a numeric field value. JSON decoding produces
// float64 for all numbers; integers stored by callers are accepted too.
func (e *Entity) NumberField(name string) (float64, bool) {
	switch v := e.Field(name).(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// OwnedClaims returns the entity's claims paired with its identity.
func (e *Entity) OwnedClaims() []OwnedClaim {
	claims := make([]OwnedClaim, 0, len(e.Claims))
	for _, c := range e.Claims {
		text := strings.TrimSpace(c.Text)
		if text == "" {
			continue
		}
		claims = append(claims, OwnedClaim{
			EntityID:   e.Metadata.ID,
			EntityName: e.Name,
			Text:       text,
		})
	}
	return claims
}

// Validate checks the structural requirements the core places on any
// stored document: a resolvable template identifier and a display name.
func (e *Entity) Validate() error {
	if e.Metadata.ID == "" {
		return fmt.Errorf("entity has no identifier")
	}
	if e.Metadata.TemplateID == "" {
		return fmt.Errorf("entity %s has no template identifier", e.Metadata.ID)
	}
	if strings.TrimSpace(e.Name) == "" {
		return fmt.Errorf("entity %s has no display name", e.Metadata.ID)
	}
	return nil
}

// Summary is the listing shape returned by the document store.
type Summary struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	TemplateID string `json:"template_id"`
	EntityType string `json:"entity_type,omitempty"`
	Status     Status `json:"status,omitempty"`
}

// Summarize produces the listing shape for an entity.
func (e *Entity) Summarize() Summary {
	return Summary{
		ID:         e.Metadata.ID,
		Name:       e.Name,
		TemplateID: e.Metadata.TemplateID,
		EntityType: e.Metadata.EntityType,
		Status:     e.Metadata.Status,
	}
}
