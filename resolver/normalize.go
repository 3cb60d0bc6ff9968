package resolver

import (
	"regexp"
	"strings"
)

// NormalizeEntityText lowercases, trims, collapses underscores/hyphens to
// spaces, collapses doubled spaces, and strips a leading '@'.
func NormalizeEntityText(text string) string {
	s := strings.ToLower(text)
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "_", " ")
	s = strings.ReplaceAll(s, "-", " ")
	for strings.Contains(s, "  ") {
		s = strings.ReplaceAll(s, "  ", " ")
	}
	s = strings.TrimPrefix(s, "@")
	return s
}

var wikilinkPattern = regexp.MustCompile(`\[\[([^\]|]+)(\|[^\]]+)?\]\]`)

// NormalizeAlias strips [[target|display]] wikilink wrappers keeping the
// target, keeps only the last '/'-separated segment, then lowercases/trims.
func NormalizeAlias(alias string) string {
	s := wikilinkPattern.ReplaceAllString(alias, "$1")
	if idx := strings.LastIndex(s, "/"); idx >= 0 {
		s = s[idx+1:]
	}
	return strings.TrimSpace(strings.ToLower(s))
}
