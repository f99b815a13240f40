package history

import (
	"sort"
	"strings"
)

const maxSuggestDistance = 2

// Correct rewrites q term by term to the closest indexed terms. It returns
// the corrected query and whether any term changed. Terms already indexed
// and terms with no candidate within two edits are kept as typed.
func (x *Index) Correct(q string) (string, bool, error) {
	dict, err := x.Terms()
	if err != nil {
		return q, false, err
	}
	known := make(map[string]struct{}, len(dict))
	for _, t := range dict {
		known[t] = struct{}{}
	}

	terms := strings.Fields(strings.ToLower(q))
	changed := false
	for i, term := range terms {
		if _, ok := known[term]; ok {
			continue
		}
		if best := closest(term, dict); best != "" {
			terms[i] = best
			changed = true
		}
	}
	return strings.Join(terms, " "), changed, nil
}

// closest returns the dictionary term nearest to term, preferring shorter
// distances and then lexical order, or "" when none is within range.
func closest(term string, dict []string) string {
	type candidate struct {
		term string
		dist int
	}
	var found []candidate
	for _, t := range dict {
		if diff := len(t) - len(term); diff > maxSuggestDistance || -diff > maxSuggestDistance {
			continue
		}
		if d := editDistance(term, t); d <= maxSuggestDistance {
			found = append(found, candidate{t, d})
		}
	}
	if len(found) == 0 {
		return ""
	}
	sort.Slice(found, func(i, j int) bool {
		if found[i].dist != found[j].dist {
			return found[i].dist < found[j].dist
		}
		return found[i].term < found[j].term
	})
	return found[0].term
}

// editDistance is the Levenshtein distance between a and b, over runes.
func editDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}
