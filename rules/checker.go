// Package rules implements the deterministic consistency checks run
// against entity documents: cross-reference existence, bidirectional
// relationship symmetry, numeric/logical consistency, and category
// exclusion. All checks run and aggregate; nothing short-circuits.
package rules

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/loomworks/canoncore/canon"
	"github.com/loomworks/canoncore/schema"
	"github.com/loomworks/canoncore/store"
)

// SymmetricTypes are relationship types that must be declared by both
// entities.
var SymmetricTypes = map[string]bool{
	"spouse":  true,
	"sibling": true,
	"twin":    true,
	"ally":    true,
	"rival":   true,
	"enemy":   true,
}

// Result aggregates rule-check errors for one entity.
type Result struct {
	Passed bool     `json:"passed"`
	Errors []string `json:"errors,omitempty"`
}

// Checker runs the deterministic rule checks. The entity corpus is read
// through a short-TTL cache to bound repeated-disk-read cost; callers
// that know a write happened must call InvalidateCorpus.
type Checker struct {
	compiler *schema.Compiler
	corpus   *store.CorpusCache
	logger   *slog.Logger
}

// NewChecker creates a rule checker.
func NewChecker(compiler *schema.Compiler, corpus *store.CorpusCache, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{compiler: compiler, corpus: corpus, logger: logger}
}

// InvalidateCorpus drops the cached entity corpus.
func (c *Checker) InvalidateCorpus() {
	c.corpus.Invalidate()
}

// CheckRules runs all four checks against one entity. Corpus read
// failures surface as check errors rather than aborting, so a broken
// store never yields a silent pass.
func (c *Checker) CheckRules(entity *canon.Entity) *Result {
	res := &Result{Passed: true}

	res.Errors = append(res.Errors, c.checkReferences(entity)...)
	res.Errors = append(res.Errors, c.checkSymmetry(entity)...)
	res.Errors = append(res.Errors, checkNumeric(entity)...)
	res.Errors = append(res.Errors, checkCategories(entity)...)

	res.Passed = len(res.Errors) == 0
	if !res.Passed {
		c.logger.Debug("Rule check failed",
			"entity", entity.Name,
			"errors", len(res.Errors))
	}
	return res
}

// checkReferences verifies that every identifier held in a
// cross-reference-bearing template field resolves to a known entity.
// Self-references are allowed: an entity may reference itself before it
// has been persisted.
func (c *Checker) checkReferences(entity *canon.Entity) []string {
	model, err := c.compiler.GetModel(entity.Metadata.TemplateID)
	if err != nil {
		if errors.Is(err, schema.ErrTemplateNotFound) {
			// Schema-layer concern; reported there with a human message.
			return nil
		}
		return []string{fmt.Sprintf("%s: could not load template %s for reference checks",
			entity.Name, entity.Metadata.TemplateID)}
	}

	known, err := c.corpus.IDs()
	if err != nil {
		return []string{fmt.Sprintf("%s: could not load entity corpus for reference checks", entity.Name)}
	}

	var errs []string
	for _, field := range model.RefFields() {
		for _, ref := range referencedIDs(entity.Field(field.Name)) {
			if ref == entity.Metadata.ID {
				continue
			}
			if !known[ref] {
				errs = append(errs, fmt.Sprintf(
					"%s references unknown %s '%s' in field '%s'",
					entity.Name, field.RefKind, ref, field.Name))
			}
		}
	}
	return errs
}

// referencedIDs extracts identifier values from a ref field: a single
// string or an array of strings.
func referencedIDs(value any) []string {
	switch v := value.(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []any:
		var ids []string
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				ids = append(ids, s)
			}
		}
		return ids
	default:
		return nil
	}
}

// checkSymmetry verifies that symmetric relationships are reciprocated.
// A target that does not exist yet is not an error here; reference
// existence is a separate concern.
func (c *Checker) checkSymmetry(entity *canon.Entity) []string {
	var errs []string
	for _, rel := range entity.Relationships {
		relType := strings.ToLower(rel.Type)
		if !SymmetricTypes[relType] {
			continue
		}
		if rel.TargetID == entity.Metadata.ID {
			continue
		}

		target, err := c.corpus.Entity(rel.TargetID)
		if err != nil {
			errs = append(errs, fmt.Sprintf(
				"%s: could not load entity corpus for symmetry checks", entity.Name))
			return errs
		}
		if target == nil {
			continue
		}

		if !declaresRelationship(target, entity.Metadata.ID, relType) {
			errs = append(errs, fmt.Sprintf(
				"%s declares '%s' relationship to %s, but %s does not declare '%s' back to %s",
				entity.Name, relType, target.Name, target.Name, relType, entity.Name))
		}
	}
	return errs
}

func declaresRelationship(entity *canon.Entity, targetID, relType string) bool {
	for _, rel := range entity.Relationships {
		if rel.TargetID == targetID && strings.EqualFold(rel.Type, relType) {
			return true
		}
	}
	return false
}
