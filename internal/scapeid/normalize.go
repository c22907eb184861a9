// Package scapeid canonicalizes scape names so callers can spell a
// world loosely ("River Crossing", "river_crossing", "rcd") and still
// address the same registered scape.
package scapeid

import "strings"

// Normalize canonicalizes scape names and reference aliases.
func Normalize(name string) string {
	normalized := strings.TrimSpace(strings.ToLower(name))
	normalized = strings.ReplaceAll(normalized, "_", "-")
	normalized = strings.ReplaceAll(normalized, " ", "-")
	normalized = strings.Trim(normalized, "-")
	if normalized == "" {
		return ""
	}
	if canonical, ok := normalizeKnownAlias(normalized); ok {
		return canonical
	}
	return normalized
}

func normalizeKnownAlias(normalized string) (string, bool) {
	for _, candidate := range aliasCandidates(normalized) {
		if canonical, ok := canonicalScapeName(candidate); ok {
			return canonical, true
		}
	}
	return "", false
}

func aliasCandidates(normalized string) []string {
	candidate := strings.TrimPrefix(normalized, "scape-")
	if candidate == normalized {
		candidate = strings.TrimPrefix(candidate, "scape")
	}
	candidate = strings.Trim(candidate, "-")

	candidates := []string{normalized}
	if candidate != "" && candidate != normalized {
		candidates = append(candidates, candidate)
	}

	trimmedCandidate := trimDilemmaSuffix(candidate)
	if trimmedCandidate != "" && trimmedCandidate != candidate {
		candidates = append(candidates, trimmedCandidate)
	}

	trimmedNormalized := trimDilemmaSuffix(normalized)
	if trimmedNormalized != "" &&
		trimmedNormalized != normalized &&
		trimmedNormalized != candidate &&
		trimmedNormalized != trimmedCandidate {
		candidates = append(candidates, trimmedNormalized)
	}
	return candidates
}

func trimDilemmaSuffix(value string) string {
	switch {
	case strings.HasSuffix(value, "-dilemma"):
		return strings.TrimSuffix(value, "-dilemma")
	case strings.HasSuffix(value, "dilemma") && !strings.Contains(value, "-"):
		return strings.TrimSuffix(value, "dilemma")
	default:
		return value
	}
}

func canonicalScapeName(alias string) (string, bool) {
	switch alias {
	case "river-crossing":
		return "river-crossing", true
	case "river":
		return "river-crossing", true
	case "crossing":
		return "river-crossing", true
	}

	compact := strings.ReplaceAll(alias, "-", "")
	switch compact {
	case "rivercrossing", "rcd":
		return "river-crossing", true
	default:
		return "", false
	}
}
