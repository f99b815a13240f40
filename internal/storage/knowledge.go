package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/hyperjump/shirabe/internal/models"
)

// KnowledgeRecord is one element of a knowledge-base JSON array.
type KnowledgeRecord struct {
	Query     string `json:"query"`
	Response  string `json:"response"`
	Timestamp int64  `json:"timestamp"`
}

// ImportKnowledge upserts every record of the JSON array read from r into store.
// It returns the stored entries and the number of records that were rejected.
func ImportKnowledge(ctx context.Context, store CacheStore, r io.Reader) ([]*models.CacheEntry, int, error) {
	var records []KnowledgeRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, 0, fmt.Errorf("failed to decode knowledge base: %w", err)
	}
	var imported []*models.CacheEntry
	skipped := 0
	for _, rec := range records {
		entry := &models.CacheEntry{
			Key:    NormalizeKey(rec.Query),
			Query:  rec.Query,
			Answer: rec.Response,
		}
		if rec.Timestamp > 0 {
			entry.CreatedAt = time.UnixMilli(rec.Timestamp)
		}
		ok, err := store.Upsert(ctx, entry)
		if err != nil {
			return imported, skipped, err
		}
		if !ok {
			skipped++
			continue
		}
		imported = append(imported, entry)
	}
	return imported, skipped, nil
}

// ImportKnowledgeFile imports the knowledge-base file at path.
func ImportKnowledgeFile(ctx context.Context, store CacheStore, path string) ([]*models.CacheEntry, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open knowledge base: %w", err)
	}
	defer f.Close()
	return ImportKnowledge(ctx, store, f)
}

// ExportKnowledge writes every cached entry to w as a knowledge-base JSON array, oldest first.
func ExportKnowledge(ctx context.Context, store CacheStore, w io.Writer) (int, error) {
	entries, err := store.Entries(ctx)
	if err != nil {
		return 0, err
	}
	records := make([]KnowledgeRecord, 0, len(entries))
	for _, e := range entries {
		records = append(records, KnowledgeRecord{
			Query:     e.Key,
			Response:  e.Answer,
			Timestamp: e.CreatedAt.UnixMilli(),
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return 0, fmt.Errorf("failed to encode knowledge base: %w", err)
	}
	return len(records), nil
}
