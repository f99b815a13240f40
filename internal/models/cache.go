package models

import "time"

// CacheEntry is one cached answer keyed by the normalized query text.
type CacheEntry struct {
	Key       string    `json:"key"`
	Query     string    `json:"query"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"created_at"`
}
