package types

import "strings"

// MaxNameLength bounds student display names.
const MaxNameLength = 50

// IsValidDisplayName reports whether a student display name is acceptable:
// non-blank after trimming, at most MaxNameLength characters.
func IsValidDisplayName(name string) bool {
	trimmed := strings.TrimSpace(name)
	return trimmed != "" && len(trimmed) <= MaxNameLength
}

// NormalizeOptions trims poll option labels, then drops empties and
// duplicates while preserving first-occurrence order. The caller decides
// whether the survivors are enough to form a poll.
func NormalizeOptions(options []string) []string {
	seen := make(map[string]bool, len(options))
	normalized := make([]string, 0, len(options))

	for _, opt := range options {
		trimmed := strings.TrimSpace(opt)
		if trimmed == "" || seen[trimmed] {
			continue
		}
		seen[trimmed] = true
		normalized = append(normalized, trimmed)
	}

	return normalized
}
