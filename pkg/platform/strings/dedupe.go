// Package strings provides string normalization utilities.
package strings

import "strings"

// DedupeAndTrimLower removes duplicates and empty entries from a slice,
// trimming whitespace and lowercasing each element. First-seen order is
// preserved. Used to normalize record category filters so "Cardiology" and
// " cardiology " match the same category.
func DedupeAndTrimLower(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))

	for _, v := range values {
		normalized := strings.ToLower(strings.TrimSpace(v))
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; !ok {
			seen[normalized] = struct{}{}
			result = append(result, normalized)
		}
	}

	return result
}

// NormalizeCategory trims and lowercases a single category label.
func NormalizeCategory(category string) string {
	return strings.ToLower(strings.TrimSpace(category))
}
