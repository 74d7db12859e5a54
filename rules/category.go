package rules

import (
	"fmt"
	"strings"

	"github.com/loomworks/canoncore/canon"
)

// negations are the markers that let nuance text mention the opposite
// alignment without contradicting it ("never evil", "not good").
var negations = []string{"not ", "never ", "no ", "n't "}

// checkCategories runs the fixed domain-exclusion rules.
func checkCategories(entity *canon.Entity) []string {
	var errs []string

	if isDeity(entity) {
		lifespan := strings.ToLower(entity.StringField("lifespan"))
		if strings.Contains(lifespan, "mortal") && !strings.Contains(lifespan, "immortal") {
			errs = append(errs, fmt.Sprintf(
				"%s is a full deity but its lifespan describes it as mortal", entity.Name))
		}
	}

	alignment := strings.ToLower(entity.StringField("alignment"))
	if alignment == "good" || alignment == "evil" {
		opposite := "evil"
		if alignment == "evil" {
			opposite = "good"
		}
		nuance := strings.ToLower(entity.StringField("alignment_nuance"))
		if mentionsWithoutNegation(nuance, opposite) {
			errs = append(errs, fmt.Sprintf(
				"%s has alignment '%s' but its alignment nuance describes it as %s",
				entity.Name, alignment, opposite))
		}
	}

	if immortal, ok := entity.Field("immortal").(bool); ok && immortal {
		if lifespan, ok := entity.NumberField("average_lifespan"); ok && lifespan > 0 {
			errs = append(errs, fmt.Sprintf(
				"%s is marked immortal but declares an average lifespan of %s",
				entity.Name, formatNumber(lifespan)))
		}
	}

	return errs
}

// isDeity reports whether the entity is a full deity type, from either
// its declared entity type or its template identifier.
func isDeity(entity *canon.Entity) bool {
	entityType := strings.ToLower(entity.Metadata.EntityType)
	if entityType == "god" || entityType == "deity" {
		return true
	}
	templateID := strings.ToLower(entity.Metadata.TemplateID)
	return strings.Contains(templateID, "god") || strings.Contains(templateID, "deity")
}

// mentionsWithoutNegation reports whether text names a polarity word with
// no negation in the few words before it.
func mentionsWithoutNegation(text, word string) bool {
	idx := 0
	for {
		pos := strings.Index(text[idx:], word)
		if pos < 0 {
			return false
		}
		pos += idx

		// Look back a short window for a negation marker.
		start := pos - 16
		if start < 0 {
			start = 0
		}
		window := text[start:pos]
		negated := false
		for _, neg := range negations {
			if strings.Contains(window, neg) {
				negated = true
				break
			}
		}
		if !negated {
			return true
		}
		idx = pos + len(word)
	}
}
