package models

import (
	"errors"
	"strings"
)

// ErrEmptyQuery is returned when a query has no text after trimming.
var ErrEmptyQuery = errors.New("query cannot be empty")

// Classification is the shape of a query: one intent or several coordinated ones.
type Classification string

const (
	Simple  Classification = "simple"
	Complex Classification = "complex"
)

// QueryRequest is a free-text query submitted by a caller.
type QueryRequest struct {
	Query string `json:"query"`
	// NoCache skips the cache lookup. Successful answers are still stored.
	NoCache bool `json:"no_cache,omitempty"`
}

// Validate trims the query text and rejects empty queries.
func (q *QueryRequest) Validate() error {
	q.Query = strings.TrimSpace(q.Query)
	if q.Query == "" {
		return ErrEmptyQuery
	}
	return nil
}

// Subquery is one part of a decomposed complex query, in order of appearance.
type Subquery struct {
	Index    int    `json:"index"`
	Text     string `json:"text"`
	Resolved string `json:"resolved"`
}
