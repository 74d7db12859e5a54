package pipeline

import (
	"fmt"
	"strings"
)

// nothingChanged closes every failure message so the user knows the
// world is untouched.
const nothingChanged = "Nothing was changed; the entity was not saved."

// formatCompositeMessage renders the summary for the composite
// ValidateEntity pass.
func formatCompositeMessage(result *ValidationResult) string {
	if result.Passed {
		if len(result.Issues) == 0 {
			return "Validation passed."
		}
		return fmt.Sprintf("Validation passed with %d advisory note(s).", len(result.Issues))
	}

	var sb strings.Builder
	sb.WriteString("Validation failed:\n")
	for _, issue := range result.Issues {
		if issue.Severity != SeverityError {
			continue
		}
		fmt.Fprintf(&sb, "- %s\n", issue.Message)
	}
	for _, issue := range result.Issues {
		if issue.Severity == SeverityError {
			continue
		}
		fmt.Fprintf(&sb, "- (%s) %s\n", issue.Severity, issue.Message)
	}
	sb.WriteString(nothingChanged)
	return sb.String()
}

// formatDriftMessage renders the summary for response and options
// validation.
func formatDriftMessage(result *ValidationResult) string {
	if result.Passed {
		if len(result.Issues) == 0 {
			return "Response looks consistent."
		}
		return fmt.Sprintf("Response accepted with %d advisory note(s).", len(result.Issues))
	}

	var sb strings.Builder
	sb.WriteString("The generated response has structural problems:\n")
	for _, issue := range result.Issues {
		fmt.Fprintf(&sb, "- [%s] %s\n", issue.Severity, issue.Message)
	}
	sb.WriteString(nothingChanged)
	return sb.String()
}

// formatLayerMessage renders layer-specific guidance for the full
// three-layer check. Schema failures emphasize data structure, rule
// failures offer remediation options, and semantic findings list each
// conflict with standard resolutions.
func formatLayerMessage(result *FullResult) string {
	var sb strings.Builder

	switch {
	case result.Schema.Status == LayerFailed:
		sb.WriteString("The entity's data structure does not match its template:\n")
		for _, issue := range result.Schema.Issues {
			fmt.Fprintf(&sb, "- %s\n", issue.Message)
		}
		sb.WriteString("\nFix the listed fields so the document matches the template's declared structure.\n")

	case result.Rules.Status == LayerFailed:
		sb.WriteString("The entity conflicts with established world rules:\n")
		for _, issue := range result.Rules.Issues {
			fmt.Fprintf(&sb, "- %s\n", issue.Message)
		}
		sb.WriteString("\nOPTIONS:\n")
		sb.WriteString("  1. Fix the offending value on this entity\n")
		sb.WriteString("  2. Create the missing referenced entity first\n")
		sb.WriteString("  3. Drop the reference or relationship\n")

	case len(result.Conflicts) > 0:
		sb.WriteString("Structural checks passed, but possible canon conflicts were found:\n")
		for _, c := range result.Conflicts {
			fmt.Fprintf(&sb, "- %s\n", c.Message)
			sb.WriteString("    Options: keep both and differentiate them, merge the entities, " +
				"rewrite the new claim, or mark the overlap as intentional\n")
		}

	case result.Passed:
		if result.NeedsLLMReview {
			return "All checks passed. A deep consistency review is recommended before canonizing."
		}
		return "All consistency checks passed."
	}

	sb.WriteString("\n")
	sb.WriteString(nothingChanged)
	return sb.String()
}
