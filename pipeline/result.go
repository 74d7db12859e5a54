// Package pipeline composes the schema compiler, rule checker,
// similarity engine, and drift detector into one validation pass per
// entity or generated response, with a short-lived result cache and
// human-readable feedback for the retry loop.
package pipeline

import (
	"github.com/loomworks/canoncore/drift"
	"github.com/loomworks/canoncore/similarity"
)

// Severity classifies a validation issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Layer tags which validation layer produced an issue.
type Layer string

const (
	LayerSchema   Layer = "schema"
	LayerRules    Layer = "rules"
	LayerSemantic Layer = "semantic"
	LayerDrift    Layer = "drift"
)

// Issue is one validation finding.
type Issue struct {
	Layer    Layer    `json:"layer"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Field    string   `json:"field,omitempty"`
}

// ValidationResult is the outcome of one validation pass. Results are
// values: produced fresh per call (subject to the bounded cache) and
// never mutated after construction.
type ValidationResult struct {
	Passed bool    `json:"passed"`
	Issues []Issue `json:"issues,omitempty"`

	// DriftFlags carries the raw drift signals for callers that render
	// them separately from blocking issues.
	DriftFlags []drift.Issue `json:"drift_flags,omitempty"`

	// NeedsRetry tells the retry manager to regenerate.
	NeedsRetry bool `json:"needs_retry"`

	// HumanMessage is the formatted summary shown to the user and fed
	// back to the generation service on retry.
	HumanMessage string `json:"human_message,omitempty"`

	// SimilarClaims is the semantic-layer context: existing canon
	// claims ranked by keyword similarity to the new content.
	SimilarClaims []similarity.Match `json:"similar_claims,omitempty"`

	// Conflicts are keyword-level canon conflicts found by the
	// semantic layer.
	Conflicts []Conflict `json:"conflicts,omitempty"`
}

// Conflict is a keyword-level canon conflict between two entities.
type Conflict struct {
	Type     string `json:"type"`
	Message  string `json:"message"`
	EntityA  string `json:"entity_a"`
	EntityB  string `json:"entity_b"`
	Keywords string `json:"keywords,omitempty"`
}

// ErrorCount returns the number of ERROR-severity issues.
func (r *ValidationResult) ErrorCount() int {
	n := 0
	for _, issue := range r.Issues {
		if issue.Severity == SeverityError {
			n++
		}
	}
	return n
}

// Errors returns the messages of ERROR-severity issues.
func (r *ValidationResult) Errors() []string {
	var msgs []string
	for _, issue := range r.Issues {
		if issue.Severity == SeverityError {
			msgs = append(msgs, issue.Message)
		}
	}
	return msgs
}

// driftSeverity maps a drift severity onto the pipeline's scale.
func driftSeverity(s drift.Severity) Severity {
	switch s {
	case drift.SeverityError:
		return SeverityError
	case drift.SeverityInfo:
		return SeverityInfo
	default:
		return SeverityWarning
	}
}

// fromDrift converts drift signals into layered issues.
func fromDrift(issues []drift.Issue) []Issue {
	converted := make([]Issue, 0, len(issues))
	for _, d := range issues {
		converted = append(converted, Issue{
			Layer:    LayerDrift,
			Severity: driftSeverity(d.Severity),
			Message:  d.Message,
			Field:    d.Field,
		})
	}
	return converted
}
