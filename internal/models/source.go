package models

import "time"

// SourceClass decides how a query is rewritten for a source, how long the
// source may take, and how strictly its replies are validated.
type SourceClass string

const (
	// ClassKnowledge covers encyclopedia-style lookups (Wikipedia, Wikidata, ...).
	ClassKnowledge SourceClass = "knowledge"
	// ClassBook covers bibliographic sources.
	ClassBook SourceClass = "book"
	// ClassCalculator covers computational engines.
	ClassCalculator SourceClass = "calculator"
	// ClassConversational covers LLM chat providers.
	ClassConversational SourceClass = "conversational"
	// ClassSearch covers web search APIs that return title/URL/snippet lines.
	ClassSearch SourceClass = "search"
	// ClassOther is passed through untouched.
	ClassOther SourceClass = "other"
)

// Group is a topical group a source belongs to for selection.
type Group string

const (
	GroupBase           Group = "base"
	GroupBook           Group = "book"
	GroupMath           Group = "math"
	GroupConversational Group = "conversational"
	// GroupNoExpansion keeps a source out of book/math expansion.
	GroupNoExpansion Group = "excluded-from-specialty-expansion"
)

// SourceDescriptor is the static description of one source. The order in
// which descriptors are declared is the priority order used for output.
type SourceDescriptor struct {
	ID      string        `json:"id"`
	Label   string        `json:"label"`
	Kind    string        `json:"kind"`
	Class   SourceClass   `json:"class"`
	Groups  []Group       `json:"groups"`
	Timeout time.Duration `json:"timeout"`
}

// InGroup reports whether the source belongs to g.
func (d SourceDescriptor) InGroup(g Group) bool {
	for _, x := range d.Groups {
		if x == g {
			return true
		}
	}
	return false
}
