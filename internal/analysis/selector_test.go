package analysis

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/hyperjump/shirabe/internal/models"
)

func testSources() []models.SourceDescriptor {
	return []models.SourceDescriptor{
		{ID: "wikipedia", Groups: []models.Group{models.GroupBase}},
		{ID: "duckduckgo", Groups: []models.Group{models.GroupBase}},
		{ID: "googlebooks", Groups: []models.Group{models.GroupBook}},
		{ID: "openrouter", Groups: []models.Group{models.GroupBase, models.GroupConversational}},
		{ID: "wolframalpha", Groups: []models.Group{models.GroupMath}},
		{ID: "isbndb", Groups: []models.Group{models.GroupBook, models.GroupNoExpansion}},
	}
}

func ids(ds []models.SourceDescriptor) []string {
	var out []string
	for _, d := range ds {
		out = append(out, d.ID)
	}
	return out
}

func TestSelector_Select(t *testing.T) {
	s := NewSelector(testSources())
	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"question uses base set", "What is the capital of France?", []string{"wikipedia", "duckduckgo", "openrouter"}},
		{"keyword query drops conversational", "capital France", []string{"wikipedia", "duckduckgo"}},
		{"book expansion in declared order", "Who is the author of Dune?", []string{"wikipedia", "duckduckgo", "googlebooks", "openrouter"}},
		{"math operator", "12 * 7", []string{"wikipedia", "duckduckgo", "wolframalpha"}},
		{"math function", "What is sin of 30 degrees?", []string{"wikipedia", "duckduckgo", "openrouter", "wolframalpha"}},
		{"math keyword", "solve x^2 = 4", []string{"wikipedia", "duckduckgo", "wolframalpha"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, ids(s.Select(tt.query))); diff != "" {
				t.Errorf("Select(%q) mismatch (-want +got):\n%s", tt.query, diff)
			}
		})
	}
}

func TestSelector_EmptyBaseSet(t *testing.T) {
	s := NewSelector([]models.SourceDescriptor{{ID: "books", Groups: []models.Group{models.GroupBook}}})
	if got := s.Select("weather today"); len(got) != 0 {
		t.Errorf("expected no sources, got %v", ids(got))
	}
}

func TestQueryCues(t *testing.T) {
	tests := []struct {
		query    string
		book     bool
		math     bool
		question bool
	}{
		{"list novels by Tolstoy", true, false, true},
		{"ISBN lookup", true, false, false},
		{"calculate the integral of x", false, true, false},
		{"3+4", false, true, false},
		{"logistics companies", false, false, false},
		{"is it raining?", false, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			if got := IsBookQuery(tt.query); got != tt.book {
				t.Errorf("IsBookQuery = %v, want %v", got, tt.book)
			}
			if got := IsMathQuery(tt.query); got != tt.math {
				t.Errorf("IsMathQuery = %v, want %v", got, tt.math)
			}
			if got := LooksLikeQuestion(tt.query); got != tt.question {
				t.Errorf("LooksLikeQuestion = %v, want %v", got, tt.question)
			}
		})
	}
}
