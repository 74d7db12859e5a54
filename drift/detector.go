// Package drift scans AI-generated output for heuristic drift signals:
// topic drift (references to future steps), canon drift (references to
// nonexistent entities), scope drift (excessive length), and structural
// format drift in parsed option payloads. Signals are advisory except
// for structural format failures.
package drift

import (
	"fmt"
	"log/slog"
	"regexp"
	"unicode/utf8"

	"github.com/loomworks/canoncore/store"
)

// Severity classifies a drift issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Kind names the drift heuristic that fired.
type Kind string

const (
	KindTopic  Kind = "topic"
	KindCanon  Kind = "canon"
	KindScope  Kind = "scope"
	KindFormat Kind = "format"
)

// Issue is one drift signal.
type Issue struct {
	Kind     Kind     `json:"kind"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Field    string   `json:"field,omitempty"`
}

// NeedsRetry reports whether the issue alone should force regeneration.
// Only structural format failures promote drift to blocking.
func (i Issue) NeedsRetry() bool {
	return i.Severity == SeverityError
}

const (
	// scopeLimit is the free-text length above which scope drift is noted.
	scopeLimit = 5000

	// maxCanonCandidates bounds how many identifier-shaped substrings
	// are checked against the known entity set.
	maxCanonCandidates = 10
)

var (
	// stepRefPattern matches "step N" references in free text.
	stepRefPattern = regexp.MustCompile(`(?i)\bstep\s+(\d+)\b`)

	// identifierPattern matches identifier-shaped substrings like
	// "god-thalor" or "settlement-kel-9".
	identifierPattern = regexp.MustCompile(`\b[a-z][a-z0-9]*(?:-[a-z0-9]+)+\b`)
)

// Detector runs the drift heuristics against generated output.
type Detector struct {
	corpus *store.CorpusCache
	logger *slog.Logger
}

// NewDetector creates a drift detector over the entity corpus.
func NewDetector(corpus *store.CorpusCache, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{corpus: corpus, logger: logger}
}

// Detect scans free text for topic, canon, and scope drift relative to
// the current workflow step.
func (d *Detector) Detect(text string, currentStep int) []Issue {
	var issues []Issue

	if issue := d.topicDrift(text, currentStep); issue != nil {
		issues = append(issues, *issue)
	}
	issues = append(issues, d.canonDrift(text)...)

	if chars := utf8.RuneCountInString(text); chars > scopeLimit {
		issues = append(issues, Issue{
			Kind:     KindScope,
			Severity: SeverityInfo,
			Message: fmt.Sprintf("Response is %d characters (over %d); consider tightening scope",
				chars, scopeLimit),
		})
	}

	return issues
}

// topicDrift reports the first reference to a step beyond the next one.
func (d *Detector) topicDrift(text string, currentStep int) *Issue {
	for _, match := range stepRefPattern.FindAllStringSubmatch(text, -1) {
		step := 0
		if _, err := fmt.Sscanf(match[1], "%d", &step); err != nil {
			continue
		}
		if step > currentStep+1 {
			return &Issue{
				Kind:     KindTopic,
				Severity: SeverityWarning,
				Message: fmt.Sprintf("Response references step %d but the current step is %d",
					step, currentStep),
			}
		}
	}
	return nil
}

// canonDrift flags identifier-shaped substrings that match no known
// entity. Candidate scanning is capped; this is a cheap heuristic, not a
// resolver.
func (d *Detector) canonDrift(text string) []Issue {
	known, err := d.corpus.IDs()
	if err != nil {
		d.logger.Warn("Canon drift check skipped, corpus unavailable", "error", err)
		return nil
	}

	var issues []Issue
	seen := make(map[string]bool)
	for _, candidate := range identifierPattern.FindAllString(text, -1) {
		if seen[candidate] {
			continue
		}
		seen[candidate] = true
		if len(seen) > maxCanonCandidates {
			break
		}
		if !known[candidate] {
			issues = append(issues, Issue{
				Kind:     KindCanon,
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("Response references '%s', which matches no known entity", candidate),
			})
		}
	}
	return issues
}

// DetectFormat validates the shape of a parsed structured payload, as
// produced by option generation. Structural failures are errors; a
// missing display label is only a warning.
func (d *Detector) DetectFormat(payload any) []Issue {
	items, ok := payload.([]any)
	if !ok {
		if payload == nil {
			return []Issue{{
				Kind:     KindFormat,
				Severity: SeverityError,
				Message:  "Structured payload is empty",
			}}
		}
		if m, isMap := payload.(map[string]any); isMap {
			if opts, has := m["options"]; has {
				return d.DetectFormat(opts)
			}
		}
		return []Issue{{
			Kind:     KindFormat,
			Severity: SeverityError,
			Message:  "Structured payload is not an option list",
		}}
	}

	if len(items) == 0 {
		return []Issue{{
			Kind:     KindFormat,
			Severity: SeverityError,
			Message:  "Structured payload is empty",
		}}
	}

	var issues []Issue
	for i, item := range items {
		option, isMap := item.(map[string]any)
		if !isMap {
			issues = append(issues, Issue{
				Kind:     KindFormat,
				Severity: SeverityError,
				Message:  fmt.Sprintf("Option %d is not a structured object", i),
				Field:    fmt.Sprintf("options.%d", i),
			})
			continue
		}
		if _, hasTitle := option["title"].(string); hasTitle {
			continue
		}
		if _, hasName := option["name"].(string); hasName {
			continue
		}
		issues = append(issues, Issue{
			Kind:     KindFormat,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("Option %d has neither a title nor a name", i),
			Field:    fmt.Sprintf("options.%d", i),
		})
	}
	return issues
}
