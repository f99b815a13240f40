package analysis

import (
	"regexp"
	"strings"

	"github.com/hyperjump/shirabe/internal/models"
)

var (
	bookRe = regexp.MustCompile(`(?i)\b(?:books?|authors?|novels?|publish|published|publication|title|isbn|chapter|pages)\b`)

	mathOperatorRe = regexp.MustCompile(`\d+\s*[+\-*/%^=]\s*\d+`)
	mathKeywordRe  = regexp.MustCompile(`(?i)\b(?:calculate|compute|solve|equation|math|derivative|integral|integrate|differentiate|factorial|percent|percentage|square root|logarithm|sum of|product of)\b`)
	mathFuncRe     = regexp.MustCompile(`(?i)\b(?:sin|cos|tan|cot|sec|csc|log|ln|sqrt|exp|abs)\b`)

	questionCueRe = regexp.MustCompile(`(?i)\b(?:what|who|whom|whose|when|where|why|how|which|explain|describe|tell|define|summarize|summarise|compare|list|give|show)\b`)
)

// IsBookQuery reports whether query is about books or publishing.
func IsBookQuery(query string) bool {
	return bookRe.MatchString(query)
}

// IsMathQuery reports whether query contains arithmetic, math keywords or function names.
func IsMathQuery(query string) bool {
	return mathOperatorRe.MatchString(query) || mathKeywordRe.MatchString(query) || mathFuncRe.MatchString(query)
}

// LooksLikeQuestion reports whether query ends in "?" or carries an interrogative or imperative cue.
func LooksLikeQuestion(query string) bool {
	return strings.HasSuffix(strings.TrimSpace(query), "?") || questionCueRe.MatchString(query)
}

// Selector picks the sources to consult for a query.
type Selector struct {
	sources []models.SourceDescriptor
}

// NewSelector creates a selector over sources, given in declared priority order.
func NewSelector(sources []models.SourceDescriptor) *Selector {
	return &Selector{sources: append([]models.SourceDescriptor(nil), sources...)}
}

// Select returns the sources for query in declared order.
func (s *Selector) Select(query string) []models.SourceDescriptor {
	book := IsBookQuery(query)
	math := IsMathQuery(query)
	question := LooksLikeQuestion(query)

	var out []models.SourceDescriptor
	for _, d := range s.sources {
		chosen := d.InGroup(models.GroupBase)
		if !chosen && !d.InGroup(models.GroupNoExpansion) {
			chosen = (book && d.InGroup(models.GroupBook)) || (math && d.InGroup(models.GroupMath))
		}
		if chosen && !question && d.InGroup(models.GroupConversational) {
			chosen = false
		}
		if chosen {
			out = append(out, d)
		}
	}
	return out
}
