package analysis

import (
	"regexp"
	"strings"

	"github.com/hyperjump/shirabe/internal/models"
)

var (
	leadingInterrogativeRe = regexp.MustCompile(`(?i)^\s*(?:what is|what are|who is|who was|when was|when is|where is|where are|how does|how do|how old is|how old)\b\s*`)
	calculatorVerbRe       = regexp.MustCompile(`(?i)\b(?:calculate|compute|solve)\b`)
)

// Preprocess rewrites query into the input shape expected by a source of the given class.
func Preprocess(query string, class models.SourceClass) string {
	q := strings.TrimSpace(query)
	var out string
	switch class {
	case models.ClassKnowledge, models.ClassBook:
		out = leadingInterrogativeRe.ReplaceAllString(q, "")
		out = strings.TrimSpace(strings.TrimRight(out, "? "))
	case models.ClassCalculator:
		out = calculatorVerbRe.ReplaceAllString(q, "")
		out = strings.Join(strings.Fields(strings.ReplaceAll(out, "?", "")), " ")
	case models.ClassConversational:
		out = q
		if !strings.HasSuffix(out, "?") {
			out += "?"
		}
	default:
		return query
	}
	if out == "" {
		return q
	}
	return out
}
