package analysis

import (
	"regexp"
	"strings"
	"sync"
)

// SubjectKey is the context key holding the current subject.
const SubjectKey = "current_subject"

var (
	nameRunRe  = regexp.MustCompile(`\b[A-Z][a-z]+(?: [A-Z][a-z]+)+\b`)
	bornYearRe = regexp.MustCompile(`(?i)\b(?:born|age)\b[^.\n]{0,30}?\b(\d{4})\b`)
)

// Capitalized words that open sentences or questions rather than names.
var nameStopWords = map[string]bool{
	"What": true, "Who": true, "Whom": true, "Whose": true, "When": true, "Where": true,
	"Why": true, "How": true, "Which": true, "Tell": true, "Is": true, "Was": true,
	"Are": true, "Did": true, "Does": true, "Do": true, "Can": true, "Could": true,
	"The": true, "A": true, "An": true, "In": true, "On": true, "Of": true, "And": true,
	"Compare": true, "List": true, "Explain": true, "Describe": true, "Define": true,
	"Give": true, "Show": true, "About": true, "Then": true, "Also": true,
}

// Tracker holds the context entries of one top-level request. It is safe for
// concurrent use; which subject wins between two concurrent updates is not defined.
type Tracker struct {
	mu      sync.RWMutex
	entries map[string]string
	knownRe *regexp.Regexp
	known   map[string]string
}

// NewTracker creates an empty tracker that also recognizes the given proper nouns.
func NewTracker(knownSubjects []string) *Tracker {
	t := &Tracker{
		entries: make(map[string]string),
		known:   make(map[string]string, len(knownSubjects)),
	}
	var alts []string
	for _, s := range knownSubjects {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		t.known[strings.ToLower(s)] = s
		alts = append(alts, regexp.QuoteMeta(s))
	}
	if len(alts) > 0 {
		t.knownRe = regexp.MustCompile(`(?i)\b(?:` + strings.Join(alts, "|") + `)\b`)
	}
	return t
}

// UpdateFromQuery sets the current subject from a name or known proper noun in text.
func (t *Tracker) UpdateFromQuery(text string) {
	subject := t.extractSubject(text)
	if subject == "" {
		return
	}
	t.mu.Lock()
	t.entries[SubjectKey] = subject
	t.mu.Unlock()
}

func (t *Tracker) extractSubject(text string) string {
	for _, run := range nameRunRe.FindAllString(text, -1) {
		tokens := strings.Fields(run)
		for len(tokens) > 0 && nameStopWords[tokens[0]] {
			tokens = tokens[1:]
		}
		for len(tokens) > 0 && nameStopWords[tokens[len(tokens)-1]] {
			tokens = tokens[:len(tokens)-1]
		}
		if len(tokens) >= 2 {
			return strings.Join(tokens, " ")
		}
	}
	if t.knownRe != nil {
		if m := t.knownRe.FindString(text); m != "" {
			return t.known[strings.ToLower(m)]
		}
	}
	return ""
}

// UpdateFromResponse records "<subject>_age" when text mentions a year next to born/age.
func (t *Tracker) UpdateFromResponse(text string) {
	m := bornYearRe.FindStringSubmatch(text)
	if m == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if subject := t.entries[SubjectKey]; subject != "" {
		t.entries[subject+"_age"] = m[1]
	}
}

// ResolvePronouns replaces he, she, they and it with the current subject.
func (t *Tracker) ResolvePronouns(text string) string {
	subject := t.Subject()
	if subject == "" {
		return text
	}
	return pronounRe.ReplaceAllLiteralString(text, subject)
}

// Subject returns the current subject, or "".
func (t *Tracker) Subject() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.entries[SubjectKey]
}

// Get returns the entry for key.
func (t *Tracker) Get(key string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.entries[key]
	return v, ok
}

// Snapshot returns a copy of all entries.
func (t *Tracker) Snapshot() map[string]string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]string, len(t.entries))
	for k, v := range t.entries {
		out[k] = v
	}
	return out
}

// Reset clears every entry.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.entries = make(map[string]string)
	t.mu.Unlock()
}
