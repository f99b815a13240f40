package analysis

import (
	"regexp"
	"strings"
)

var splitRe = regexp.MustCompile(`(?i)\s*(?:\b(?:as well as|and|or|but|then|also|before|after|while|meanwhile|versus|vs)\b\.?|[,;]|\?\s)\s*`)

// Decompose splits a complex query into its parts in order of appearance.
// Empty fragments are dropped; a query with no usable fragment is returned whole.
func Decompose(query string) []string {
	var parts []string
	for _, frag := range splitRe.Split(query, -1) {
		if frag = strings.TrimSpace(frag); frag != "" {
			parts = append(parts, frag)
		}
	}
	if len(parts) == 0 {
		if q := strings.TrimSpace(query); q != "" {
			return []string{q}
		}
	}
	return parts
}
