package resolver

import "strings"

// Token overlap guard thresholds (spec.md §4.6, §8 Boundary).
const (
	MinTokenOverlapRatio = 0.5
	MinTokenOverlapCount = 2
)

// ComputeTokenOverlap returns the Jaccard-style overlap ratio (relative to
// the shorter token set) and the raw overlap count between two texts.
func ComputeTokenOverlap(text1, text2 string) (ratio float64, count int) {
	tokens1 := tokenSet(text1)
	tokens2 := tokenSet(text2)

	overlap := 0
	for t := range tokens1 {
		if tokens2[t] {
			overlap++
		}
	}

	shorter := len(tokens1)
	if len(tokens2) < shorter {
		shorter = len(tokens2)
	}
	if shorter == 0 {
		return 0, 0
	}
	return float64(overlap) / float64(shorter), overlap
}

func tokenSet(text string) map[string]bool {
	fields := strings.Fields(strings.ToLower(text))
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}

// PassesTokenOverlapGuard reports whether text1/text2 pass the token-overlap
// requirement a schema with RequireTokenOverlap demands: single-token
// queries always pass; otherwise ratio and count must both clear the
// minimums. This prevents e.g. "Jane Smith" <-> "Jane Doe" matching on the
// shared first name alone.
func PassesTokenOverlapGuard(text1, text2 string, requireOverlap bool) bool {
	if !requireOverlap {
		return true
	}

	tokens1 := strings.Fields(strings.ToLower(text1))
	tokens2 := strings.Fields(strings.ToLower(text2))
	if len(tokens1) == 1 || len(tokens2) == 1 {
		return true
	}

	ratio, count := ComputeTokenOverlap(text1, text2)
	if ratio < MinTokenOverlapRatio {
		return false
	}
	if count < MinTokenOverlapCount {
		return false
	}
	return true
}
