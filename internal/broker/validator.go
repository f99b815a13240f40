package broker

import (
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/shirabe/internal/config"
	"github.com/hyperjump/shirabe/internal/models"
)

var (
	connectorErrorMarkers = []string{"error fetching", "http error", "api error"}
	rejectMarkers         = []string{"error", "no result", "not found", "http error", "api error"}
	refusalMarkers        = []string{"i cannot answer", "i don't know", "sorry", "unable", "cannot"}
)

// Validator filters replies that carry errors, refusals or too little text.
type Validator struct {
	cfg config.ValidationConfig
}

// NewValidator creates a validator with the given thresholds.
func NewValidator(cfg config.ValidationConfig) *Validator {
	return &Validator{cfg: cfg}
}

// IsValid reports whether text is a usable answer from src.
func (v *Validator) IsValid(text string, src models.SourceDescriptor) bool {
	outcome, _ := v.Judge(text, src)
	return outcome == models.OutcomeOK
}

// Judge classifies a reply. Replies that are connector failure messages are
// OutcomeError; other rejected replies are OutcomeInvalid. The reason is empty
// for valid replies.
func (v *Validator) Judge(text string, src models.SourceDescriptor) (models.Outcome, string) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return models.OutcomeInvalid, "empty reply"
	}
	lower := strings.ToLower(trimmed)
	if m := firstMarker(lower, connectorErrorMarkers); m != "" {
		return models.OutcomeError, "reply reports a failure: " + m
	}
	if m := firstMarker(lower, rejectMarkers); m != "" {
		return models.OutcomeInvalid, "reply contains " + m
	}
	if utf8.RuneCountInString(trimmed) < v.minLength(src.Class) {
		return models.OutcomeInvalid, "reply too short"
	}
	switch src.Class {
	case models.ClassConversational:
		if m := firstMarker(lower, refusalMarkers); m != "" {
			return models.OutcomeInvalid, "refusal: " + m
		}
	case models.ClassSearch:
		if countLines(trimmed) < v.cfg.SnippetMinLines {
			return models.OutcomeInvalid, "too few snippet lines"
		}
	}
	return models.OutcomeOK, ""
}

func (v *Validator) minLength(class models.SourceClass) int {
	switch class {
	case models.ClassConversational:
		return v.cfg.MinLengthConversational
	case models.ClassSearch:
		return v.cfg.MinLengthSnippet
	case models.ClassBook:
		return v.cfg.MinLengthBook
	}
	return v.cfg.MinLength
}

func firstMarker(lower string, markers []string) string {
	for _, m := range markers {
		if strings.Contains(lower, m) {
			return m
		}
	}
	return ""
}

func countLines(s string) int {
	n := 0
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}
