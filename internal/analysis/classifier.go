// Package analysis holds the surface heuristics the broker applies to query
// text: classification, decomposition, subject tracking, source selection and
// per-source rewriting. None of it parses language; it is keyword and regex
// matching only.
package analysis

import (
	"regexp"
	"strings"

	"github.com/hyperjump/shirabe/internal/models"
)

var (
	connectiveRe = regexp.MustCompile(`(?i)\b(?:as well as|and|or|but|then|also|before|after|while|meanwhile)\b`)
	comparisonRe = regexp.MustCompile(`(?i)\b(?:list|compare|difference|between|advantages|disadvantages|pros|cons)\b`)
	pronounRe    = regexp.MustCompile(`(?i)\b(?:he|she|they|it)\b`)
)

// SubjectSource exposes the subject currently established for a request.
type SubjectSource interface {
	Subject() string
}

// Classifier decides whether a query carries one intent or several.
type Classifier struct{}

// NewClassifier creates a new Classifier.
func NewClassifier() *Classifier {
	return &Classifier{}
}

// Classify returns Complex when query shows any multi-intent cue, Simple otherwise.
// subjects may be nil.
func (c *Classifier) Classify(query string, subjects SubjectSource) models.Classification {
	if c.ComplexCue(query, subjects) != "" {
		return models.Complex
	}
	return models.Simple
}

// ComplexCue names the first cue that makes query complex, or "" for a simple query.
func (c *Classifier) ComplexCue(query string, subjects SubjectSource) string {
	switch {
	case connectiveRe.MatchString(query):
		return "connective"
	case strings.ContainsAny(query, ",;"):
		return "punctuation"
	case questionSegments(query) > 1:
		return "multiple questions"
	case comparisonRe.MatchString(query):
		return "comparison"
	case subjects != nil && subjects.Subject() != "" && pronounRe.MatchString(query):
		return "pronoun"
	}
	return ""
}

func questionSegments(query string) int {
	n := 0
	for _, seg := range strings.Split(query, "?") {
		if strings.TrimSpace(seg) != "" {
			n++
		}
	}
	return n
}
