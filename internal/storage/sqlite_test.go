package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/shirabe/internal/models"
)

func newTestCache(t *testing.T, opts ...CacheOption) (*SQLiteCache, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.db")
	c, err := NewSQLiteCache(path, opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, path
}

func TestSQLiteCache_UpsertAndLookup(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	entry := &models.CacheEntry{Query: "What is  Go?", Answer: "[Wikipedia Result]\nGo is a programming language."}
	ok, err := c.Upsert(ctx, entry)
	if err != nil || !ok {
		t.Fatalf("Upsert() = %v, %v", ok, err)
	}
	if entry.Key != "what is go?" {
		t.Errorf("key = %q", entry.Key)
	}
	if entry.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}

	got, err := c.Lookup(ctx, NormalizeKey("WHAT IS GO?"))
	if err != nil {
		t.Fatal(err)
	}
	if got.Answer != entry.Answer {
		t.Errorf("Answer = %q", got.Answer)
	}

	if _, err := c.Lookup(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteCache_UpsertReplaces(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	for _, answer := range []string{"first answer text", "second answer text"} {
		if _, err := c.Upsert(ctx, &models.CacheEntry{Key: "k", Query: "k", Answer: answer}); err != nil {
			t.Fatal(err)
		}
	}
	n, err := c.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
	got, _ := c.Lookup(ctx, "k")
	if got.Answer != "second answer text" {
		t.Errorf("Answer = %q", got.Answer)
	}
}

func TestSQLiteCache_RejectsErrorMarkers(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	if _, err := c.Upsert(ctx, &models.CacheEntry{Key: "k", Answer: "a good answer"}); err != nil {
		t.Fatal(err)
	}
	tests := []string{"No result", "Error fetching from Wikipedia: timeout", "HTTP error code: 503", "API Error: 401", "   "}
	for _, answer := range tests {
		t.Run(answer, func(t *testing.T) {
			ok, err := c.Upsert(ctx, &models.CacheEntry{Key: "k", Answer: answer})
			if err != nil {
				t.Fatal(err)
			}
			if ok {
				t.Error("expected rejection")
			}
			got, _ := c.Lookup(ctx, "k")
			if got.Answer != "a good answer" {
				t.Errorf("cache changed to %q", got.Answer)
			}
		})
	}
}

func TestSQLiteCache_LoadsOnOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()
	c, err := NewSQLiteCache(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Upsert(ctx, &models.CacheEntry{Key: "persisted", Query: "persisted", Answer: "kept across restarts"}); err != nil {
		t.Fatal(err)
	}
	_ = c.Close()

	reopened, err := NewSQLiteCache(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	got, err := reopened.Lookup(ctx, "persisted")
	if err != nil {
		t.Fatal(err)
	}
	if got.Answer != "kept across restarts" {
		t.Errorf("Answer = %q", got.Answer)
	}
}

func TestSQLiteCache_ListNewestFirst(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		e := &models.CacheEntry{Key: fmt.Sprintf("q%d", i), Query: fmt.Sprintf("q%d", i), Answer: "answer text", CreatedAt: base.Add(time.Duration(i) * time.Hour)}
		if _, err := c.Upsert(ctx, e); err != nil {
			t.Fatal(err)
		}
	}
	list, err := c.List(ctx, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 || list[0].Key != "q2" || list[2].Key != "q0" {
		t.Errorf("unexpected order: %v", keys(list))
	}
	page, _ := c.List(ctx, 1, 1)
	if len(page) != 1 || page[0].Key != "q1" {
		t.Errorf("unexpected page: %v", keys(page))
	}
	all, _ := c.Entries(ctx)
	if len(all) != 3 || all[0].Key != "q0" {
		t.Errorf("Entries should be oldest first: %v", keys(all))
	}
}

func TestSQLiteCache_Delete(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	_, _ = c.Upsert(ctx, &models.CacheEntry{Key: "k", Answer: "answer text"})
	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Lookup(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := c.Delete(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound deleting twice, got %v", err)
	}
}

func TestSQLiteCache_MaxAge(t *testing.T) {
	c, _ := newTestCache(t, WithMaxAge(time.Hour))
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	_, _ = c.Upsert(ctx, &models.CacheEntry{Key: "old", Answer: "answer text", CreatedAt: now.Add(-2 * time.Hour)})
	_, _ = c.Upsert(ctx, &models.CacheEntry{Key: "fresh", Answer: "answer text", CreatedAt: now.Add(-time.Minute)})
	if _, err := c.Lookup(ctx, "old"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected expired entry to miss, got %v", err)
	}
	if _, err := c.Lookup(ctx, "fresh"); err != nil {
		t.Errorf("fresh entry: %v", err)
	}
}

func TestSQLiteCache_MaxEntriesEvictsOldest(t *testing.T) {
	var evicted []string
	c, _ := newTestCache(t, WithMaxEntries(2), WithEvictHook(func(k string) { evicted = append(evicted, k) }))
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		e := &models.CacheEntry{Key: fmt.Sprintf("q%d", i), Answer: "answer text", CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if _, err := c.Upsert(ctx, e); err != nil {
			t.Fatal(err)
		}
	}
	if len(evicted) != 1 || evicted[0] != "q0" {
		t.Errorf("evicted = %v", evicted)
	}
	if n, _ := c.Count(ctx); n != 2 {
		t.Errorf("Count = %d, want 2", n)
	}
}

func TestSQLiteCache_ConcurrentUpsertSameKey(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = c.Upsert(ctx, &models.CacheEntry{Key: "shared", Answer: fmt.Sprintf("answer number %d", i)})
			_, _ = c.Lookup(ctx, "shared")
		}(i)
	}
	wg.Wait()
	if n, _ := c.Count(ctx); n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
}

func TestCacheKey(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		subject string
		want    string
	}{
		{"lowercases", "What Is Go", "", "what is go"},
		{"collapses whitespace", "  what\tis \n go  ", "", "what is go"},
		{"subject suffix", "When was he born", "Albert Einstein", "when was he born|albert einstein"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CacheKey(tt.query, tt.subject); got != tt.want {
				t.Errorf("CacheKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func keys(entries []*models.CacheEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Key
	}
	return out
}
