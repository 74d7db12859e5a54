// Package store provides the document-store boundary for entity documents.
// The validation core treats storage as an opaque, read-mostly key-value
// store keyed by entity identifier, with an explicit invalidation hook it
// is told to call after any external write.
package store

import (
	"errors"

	"github.com/loomworks/canoncore/canon"
)

// ErrNotFound is returned when no entity exists for an identifier.
var ErrNotFound = errors.New("entity not found")

// Filter narrows an entity listing. Zero-value fields do not filter.
type Filter struct {
	TemplateID string
	EntityType string
	Status     canon.Status
}

// Match reports whether a summary satisfies the filter.
func (f *Filter) Match(s canon.Summary) bool {
	if f == nil {
		return true
	}
	if f.TemplateID != "" && s.TemplateID != f.TemplateID {
		return false
	}
	if f.EntityType != "" && s.EntityType != f.EntityType {
		return false
	}
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	return true
}

// Store is the document-store contract consumed by the validation core.
type Store interface {
	// ListEntities returns summaries for entities matching the filter.
	ListEntities(filter *Filter) ([]canon.Summary, error)

	// LoadEntity returns the full document, or ErrNotFound.
	LoadEntity(id string) (*canon.Entity, error)

	// Search returns summaries whose name, claims, or field values
	// contain the query, case-insensitively.
	Search(query string) ([]canon.Summary, error)
}

// Writer is implemented by stores that also accept writes. The core never
// writes through it during validation; it exists for the generation flow
// and the CLI.
type Writer interface {
	SaveEntity(entity *canon.Entity) error
	DeleteEntity(id string) error
}
