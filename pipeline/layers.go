package pipeline

import (
	"fmt"
	"strings"

	"github.com/loomworks/canoncore/canon"
	"github.com/loomworks/canoncore/similarity"
)

// llmReviewThreshold is the similar-claim count at which the semantic
// layer requests a deep external review.
const llmReviewThreshold = 3

// LayerStatus is the reported state of one validation layer.
type LayerStatus string

const (
	LayerPassed  LayerStatus = "passed"
	LayerFailed  LayerStatus = "failed"
	LayerSkipped LayerStatus = "skipped"
)

// LayerReport is the outcome of one layer in the full entity check.
type LayerReport struct {
	Status LayerStatus `json:"status"`
	Issues []Issue     `json:"issues,omitempty"`
}

// FullResult is the outcome of the three-layer entity check. Each layer
// gates the next; a skipped layer is reported as skipped, never as
// silently passed or silently run.
type FullResult struct {
	Passed bool `json:"passed"`

	Schema   LayerReport `json:"schema"`
	Rules    LayerReport `json:"rules"`
	Semantic LayerReport `json:"semantic"`

	// NeedsLLMReview asks the caller to submit the review prompt to an
	// external deep-review agent. The semantic layer itself never
	// blocks.
	NeedsLLMReview bool   `json:"needs_llm_review"`
	ReviewPrompt   string `json:"review_prompt,omitempty"`

	SimilarClaims []similarity.Match `json:"similar_claims,omitempty"`
	Conflicts     []Conflict         `json:"conflicts,omitempty"`
	HumanMessage  string             `json:"human_message,omitempty"`
}

// CheckEntity runs the full gated pipeline over a persisted or
// about-to-be-persisted entity. The corpus cache is force-invalidated
// first so a just-written entity is visible to cross-reference checks.
func (p *Pipeline) CheckEntity(entity *canon.Entity) *FullResult {
	p.corpus.Invalidate()

	result := &FullResult{
		Schema:   LayerReport{Status: LayerSkipped},
		Rules:    LayerReport{Status: LayerSkipped},
		Semantic: LayerReport{Status: LayerSkipped},
	}

	// Layer 1: schema.
	schemaIssues := p.schemaIssues(entityData(entity), entity.Metadata.TemplateID)
	if entity.Name == "" {
		schemaIssues = append(schemaIssues, Issue{
			Layer:    LayerSchema,
			Severity: SeverityError,
			Message:  "Entity has no name or title",
			Field:    "name",
		})
	}
	result.Schema = LayerReport{Status: LayerPassed, Issues: schemaIssues}
	if hasError(schemaIssues) {
		result.Schema.Status = LayerFailed
		result.HumanMessage = formatLayerMessage(result)
		return result
	}

	// Layer 2: rules.
	ruleRes := p.checker.CheckRules(entity)
	var ruleIssues []Issue
	for _, msg := range ruleRes.Errors {
		ruleIssues = append(ruleIssues, Issue{
			Layer:    LayerRules,
			Severity: SeverityError,
			Message:  msg,
		})
	}
	result.Rules = LayerReport{Status: LayerPassed, Issues: ruleIssues}
	if hasError(ruleIssues) {
		result.Rules.Status = LayerFailed
		result.HumanMessage = formatLayerMessage(result)
		return result
	}

	// Layer 3: semantic. Always completes once reached and never
	// blocks, but may request deep review.
	matches, conflicts := p.semanticContext(entity)
	var semanticIssues []Issue
	for _, c := range conflicts {
		semanticIssues = append(semanticIssues, Issue{
			Layer:    LayerSemantic,
			Severity: SeverityWarning,
			Message:  c.Message,
		})
	}
	result.Semantic = LayerReport{Status: LayerPassed, Issues: semanticIssues}
	result.SimilarClaims = matches
	result.Conflicts = conflicts
	if len(matches) >= llmReviewThreshold || len(conflicts) > 0 {
		result.NeedsLLMReview = true
		result.ReviewPrompt = buildReviewPrompt(entity, matches, conflicts)
	}

	result.Passed = true
	result.HumanMessage = formatLayerMessage(result)
	return result
}

func hasError(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

// entityData rebuilds the untyped map shape the schema layer validates.
// Relationships are always present on the typed document, so they are
// emitted even when empty; templates may declare the field required.
func entityData(entity *canon.Entity) map[string]any {
	data := make(map[string]any, len(entity.Fields)+4)
	for k, v := range entity.Fields {
		data[k] = v
	}
	if entity.Metadata.ID != "" {
		data["id"] = entity.Metadata.ID
	}
	if entity.Name != "" {
		data["name"] = entity.Name
	}
	if entity.Notes != "" {
		data["notes"] = entity.Notes
	}
	rels := make([]any, 0, len(entity.Relationships))
	for _, r := range entity.Relationships {
		rel := map[string]any{
			"target_id": r.TargetID,
			"type":      r.Type,
		}
		if r.Description != "" {
			rel["description"] = r.Description
		}
		rels = append(rels, rel)
	}
	data["relationships"] = rels
	return data
}

// buildReviewPrompt assembles the natural-language prompt handed to an
// external deep-review agent. The heuristic layer only surfaces
// candidates; contradiction judgement is the agent's job.
func buildReviewPrompt(entity *canon.Entity, matches []similarity.Match, conflicts []Conflict) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Review the new entity %q for consistency with established canon.\n\n", entity.Name)

	if len(entity.Claims) > 0 {
		sb.WriteString("New claims:\n")
		for _, c := range entity.Claims {
			fmt.Fprintf(&sb, "- %s\n", c.Text)
		}
		sb.WriteString("\n")
	}

	if len(matches) > 0 {
		sb.WriteString("Existing canon with overlapping vocabulary:\n")
		for _, m := range matches {
			fmt.Fprintf(&sb, "- [%s] %q (similarity %.2f)\n", m.Claim.EntityName, m.Claim.Text, m.Score)
		}
		sb.WriteString("\n")
	}

	if len(conflicts) > 0 {
		sb.WriteString("Detected keyword conflicts:\n")
		for _, c := range conflicts {
			fmt.Fprintf(&sb, "- %s\n", c.Message)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("For each overlap, state whether it is a genuine contradiction, " +
		"an acceptable echo, or unrelated, and explain briefly.")
	return sb.String()
}
