package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/shirabe/internal/models"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := NewIndex(filepath.Join(t.TempDir(), "history"))
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func entry(key, query, answer string) *models.CacheEntry {
	return &models.CacheEntry{Key: key, Query: query, Answer: answer, CreatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func TestIndex_SearchFindsQueryAndAnswer(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	if err := idx.Index(entry("who was albert einstein?", "Who was Albert Einstein?", "[Wikipedia Result]\nA theoretical physicist.")); err != nil {
		t.Fatal(err)
	}
	if err := idx.Index(entry("what is go?", "What is Go?", "[Wikipedia Result]\nA programming language designed at Google.")); err != nil {
		t.Fatal(err)
	}

	hits, err := idx.Search(ctx, "einstein", 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].Key != "who was albert einstein?" {
		t.Fatalf("hits = %+v", hits)
	}
	if hits[0].Query != "Who was Albert Einstein?" {
		t.Errorf("query = %q", hits[0].Query)
	}

	hits, err = idx.Search(ctx, "programming", 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].Key != "what is go?" {
		t.Fatalf("answer match hits = %+v", hits)
	}
}

func TestIndex_QueryMatchesRankFirst(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	_ = idx.Index(entry("a", "Tell me about rivers", "The Danube flows through Vienna and Budapest."))
	_ = idx.Index(entry("b", "Where is the Danube?", "It is in central Europe."))

	hits, err := idx.Search(ctx, "danube", 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 || hits[0].Key != "b" {
		t.Errorf("hits = %+v, want query match first", hits)
	}
}

func TestIndex_FuzzySearch(t *testing.T) {
	idx := newTestIndex(t)
	_ = idx.Index(entry("k", "Who was Marie Curie?", "A physicist and chemist."))

	hits, err := idx.Search(context.Background(), "curei", 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Errorf("exact search matched a typo: %+v", hits)
	}
	hits, err = idx.Search(context.Background(), "curei", 10, &SearchOptions{Fuzzy: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Errorf("fuzzy hits = %+v", hits)
	}
}

func TestIndex_DeleteAndRebuild(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	err := idx.Rebuild(ctx, []*models.CacheEntry{
		entry("one", "first question", "first answer text"),
		entry("two", "second question", "second answer text"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if n, _ := idx.DocCount(); n != 2 {
		t.Fatalf("DocCount = %d, want 2", n)
	}
	if err := idx.Delete("one"); err != nil {
		t.Fatal(err)
	}
	if n, _ := idx.DocCount(); n != 1 {
		t.Errorf("DocCount after delete = %d, want 1", n)
	}
}

func TestIndex_ReopensExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history")
	idx, err := NewIndex(path)
	if err != nil {
		t.Fatal(err)
	}
	_ = idx.Index(entry("k", "What is Go?", "A language."))
	_ = idx.Close()

	idx, err = NewIndex(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = idx.Close() }()
	if n, _ := idx.DocCount(); n != 1 {
		t.Errorf("DocCount after reopen = %d, want 1", n)
	}
}

func TestIndex_RejectsKeylessEntry(t *testing.T) {
	idx, err := NewMemoryIndex()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = idx.Close() }()
	if err := idx.Index(&models.CacheEntry{Query: "x"}); err == nil {
		t.Error("expected error for entry without key")
	}
}
