// Package storage defines the cache persistence interface and its SQLite implementation.
package storage

import (
	"context"
	"errors"
	"strings"

	"github.com/hyperjump/shirabe/internal/models"
)

// ErrNotFound is returned when no live entry exists for a key.
var ErrNotFound = errors.New("cache entry not found")

// CacheStore persists normalized query -> answer entries. Implementations keep
// at most one entry per key and never persist answers carrying error markers.
type CacheStore interface {
	// Lookup returns the entry for key, or an error wrapping ErrNotFound.
	Lookup(ctx context.Context, key string) (*models.CacheEntry, error)
	// Upsert stores entry, replacing any prior entry for the same key.
	// It reports false when the entry was rejected.
	Upsert(ctx context.Context, entry *models.CacheEntry) (bool, error)
	Delete(ctx context.Context, key string) error

	// History
	List(ctx context.Context, offset, limit int) ([]*models.CacheEntry, error)
	Entries(ctx context.Context) ([]*models.CacheEntry, error)

	// Stats
	Count(ctx context.Context) (int64, error)

	Close() error
}

var errorMarkers = []string{"error fetching", "no result", "http error", "api error"}

// ContainsErrorMarker reports whether text carries a connector failure marker
// and so must never be cached.
func ContainsErrorMarker(text string) bool {
	lower := strings.ToLower(text)
	for _, m := range errorMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// NormalizeKey lowercases query and collapses runs of whitespace.
func NormalizeKey(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// CacheKey builds the lookup key for query. When subject is non-empty the key
// is suffixed with it so pronoun-dependent answers do not collide.
func CacheKey(query, subject string) string {
	key := NormalizeKey(query)
	if s := NormalizeKey(subject); s != "" {
		key += "|" + s
	}
	return key
}
