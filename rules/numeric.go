package rules

import (
	"fmt"
	"strings"

	"github.com/loomworks/canoncore/canon"
)

// percentageTolerance is how far a species/population breakdown may drift
// from 100 before it is flagged.
const percentageTolerance = 5.0

// checkNumeric runs the numeric and logical consistency checks:
// non-negative counts, founding before dissolution, and percentage
// breakdowns summing near 100.
func checkNumeric(entity *canon.Entity) []string {
	var errs []string

	for name := range entity.Fields {
		if !isCountField(name) {
			continue
		}
		value, ok := entity.NumberField(name)
		if !ok {
			continue
		}
		if value < 0 {
			errs = append(errs, fmt.Sprintf(
				"%s has a negative %s (%s)", entity.Name, countNoun(name), formatNumber(value)))
		}
	}

	founded, hasFounded := entity.NumberField("founded")
	dissolved, hasDissolved := entity.NumberField("dissolved")
	if hasFounded && hasDissolved && founded > dissolved {
		errs = append(errs, fmt.Sprintf(
			"%s: founding year %s is later than dissolution year %s",
			entity.Name, formatNumber(founded), formatNumber(dissolved)))
	}

	errs = append(errs, checkBreakdowns(entity)...)
	return errs
}

// isCountField marks fields subject to the non-negative rule.
func isCountField(name string) bool {
	lower := strings.ToLower(name)
	if lower == "age" || strings.HasSuffix(lower, "_age") {
		return true
	}
	return strings.Contains(lower, "population") || strings.Contains(lower, "lifespan")
}

// countNoun names the offending quantity in error text, e.g.
// "population" for "total_population".
func countNoun(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "population"):
		return "population"
	case strings.Contains(lower, "lifespan"):
		return "lifespan"
	default:
		return "age"
	}
}

// checkBreakdowns validates percentage breakdown maps when a total
// population is also present.
func checkBreakdowns(entity *canon.Entity) []string {
	if _, hasTotal := totalPopulation(entity); !hasTotal {
		return nil
	}

	var errs []string
	for name, value := range entity.Fields {
		lower := strings.ToLower(name)
		if !strings.Contains(lower, "breakdown") && !strings.Contains(lower, "percentages") {
			continue
		}
		parts, ok := value.(map[string]any)
		if !ok || len(parts) == 0 {
			continue
		}

		sum := 0.0
		numeric := true
		for _, part := range parts {
			f, ok := asFloat(part)
			if !ok {
				numeric = false
				break
			}
			sum += f
		}
		if !numeric {
			continue
		}
		if sum < 100-percentageTolerance || sum > 100+percentageTolerance {
			errs = append(errs, fmt.Sprintf(
				"%s: percentages in '%s' sum to %s, expected about 100",
				entity.Name, name, formatNumber(sum)))
		}
	}
	return errs
}

func totalPopulation(entity *canon.Entity) (float64, bool) {
	for name := range entity.Fields {
		if strings.Contains(strings.ToLower(name), "population") {
			if v, ok := entity.NumberField(name); ok {
				return v, true
			}
		}
	}
	return 0, false
}

func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// formatNumber renders numbers without a trailing .0 for whole values.
func formatNumber(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%g", f)
}
