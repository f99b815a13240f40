package history

import (
	"testing"

	"github.com/hyperjump/shirabe/internal/models"
)

func TestEditDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"kitten", "sitting", 3},
		{"curie", "curei", 2},
		{"einstein", "einstein", 0},
		{"café", "cafe", 1},
	}
	for _, tt := range tests {
		t.Run(tt.a+"/"+tt.b, func(t *testing.T) {
			if got := editDistance(tt.a, tt.b); got != tt.want {
				t.Errorf("editDistance(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestIndex_Correct(t *testing.T) {
	idx, err := NewMemoryIndex()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = idx.Close() }()
	_ = idx.Index(&models.CacheEntry{Key: "k", Query: "Who was Albert Einstein?", Answer: "A theoretical physicist."})

	tests := []struct {
		in      string
		want    string
		changed bool
	}{
		{"einstien", "einstein", true},
		{"albert einstein", "albert einstein", false},
		{"physisist", "physicist", true},
		{"zzzzzz", "zzzzzz", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, changed, err := idx.Correct(tt.in)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want || changed != tt.changed {
				t.Errorf("Correct(%q) = %q, %v, want %q, %v", tt.in, got, changed, tt.want, tt.changed)
			}
		})
	}
}
